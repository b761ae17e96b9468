package spectral

// SpectralFlux computes spectral flux (measure of spectral change)
type SpectralFlux struct {
	// Lag is the number of frames between compared spectra
	Lag int
}

// NewSpectralFlux creates a new spectral flux calculator with a one-frame lag
func NewSpectralFlux() *SpectralFlux {
	return &SpectralFlux{Lag: 1}
}

// Compute returns one value per frame: the mean over bins of the positive
// difference to the frame Lag steps earlier. The first Lag frames are 0 so the
// output lines up with the spectrogram's time axis.
func (sf *SpectralFlux) Compute(spectrogram [][]float64) []float64 {
	flux := make([]float64, len(spectrogram))
	lag := max(sf.Lag, 1)

	for t := lag; t < len(spectrogram); t++ {
		cur, prev := spectrogram[t], spectrogram[t-lag]
		if len(cur) == 0 {
			continue
		}

		sum := 0.0
		for f := range cur {
			if f >= len(prev) {
				break
			}
			// Only positive changes (energy increases)
			if diff := cur[f] - prev[f]; diff > 0 {
				sum += diff
			}
		}
		flux[t] = sum / float64(len(cur))
	}

	return flux
}
