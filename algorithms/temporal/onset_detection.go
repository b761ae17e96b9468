package temporal

import (
	"github.com/RyanBlaney/sonido-vis/algorithms/spectral"
)

// OnsetDetection turns a spectrogram into an onset-strength envelope
type OnsetDetection struct {
	spectralFlux *spectral.SpectralFlux
}

// NewOnsetDetection creates a new onset detector
func NewOnsetDetection() *OnsetDetection {
	return &OnsetDetection{
		spectralFlux: spectral.NewSpectralFlux(),
	}
}

// Strength computes the onset-strength envelope of a dB spectrogram
// (frames x bins): positive spectral flux averaged over bins, one value per
// frame.
func (od *OnsetDetection) Strength(dbSpectrogram [][]float64) []float64 {
	if len(dbSpectrogram) == 0 {
		return []float64{}
	}
	return od.spectralFlux.Compute(dbSpectrogram)
}
