package analysis

import (
	"math"

	"github.com/RyanBlaney/sonido-vis/algorithms/common"
	"github.com/RyanBlaney/sonido-vis/algorithms/spectral"
	"github.com/RyanBlaney/sonido-vis/algorithms/windowing"
)

// DefaultHistorySize is the number of spectra averaged into the smoothed output
const DefaultHistorySize = 10

// Spectrum holds the per-frame outputs of SpectrumAnalyzer. All slices have
// chunkSize/2 entries.
type Spectrum struct {
	Raw        []float64 // Uncompressed magnitudes
	Compressed []float64 // log10(raw+1)*10
	Smoothed   []float64 // Mean of the compressed history
}

// SpectrumAnalyzer windows a frame, takes its magnitude spectrum, compresses
// it and smooths it over a bounded history
type SpectrumAnalyzer struct {
	chunkSize int
	window    *windowing.Hann
	fft       *spectral.FFT
	history   *common.FrameRing

	windowed []float64
}

// NewSpectrumAnalyzer creates an analyzer for frames of chunkSize samples
// smoothing over historySize spectra
func NewSpectrumAnalyzer(chunkSize, historySize int) *SpectrumAnalyzer {
	chunkSize = max(chunkSize, 2)
	if historySize < 1 {
		historySize = DefaultHistorySize
	}

	return &SpectrumAnalyzer{
		chunkSize: chunkSize,
		window:    windowing.NewHann(chunkSize, true),
		fft:       spectral.NewFFT(),
		history:   common.NewFrameRing(historySize, chunkSize/2),
		windowed:  make([]float64, chunkSize),
	}
}

// Analyze processes one frame. Frames of the wrong length are zero-padded or
// truncated to the chunk size.
func (sa *SpectrumAnalyzer) Analyze(frame SampleFrame) Spectrum {
	clear(sa.windowed)
	copy(sa.windowed, frame.Samples)
	// Lengths always match
	_ = sa.window.ApplyInPlace(sa.windowed)

	bins := sa.chunkSize / 2
	raw := sa.fft.MagnitudesInto(make([]float64, bins), sa.windowed)

	compressed := make([]float64, bins)
	for i, m := range raw {
		compressed[i] = math.Log10(m+1) * 10
	}

	sa.history.Push(compressed)

	return Spectrum{
		Raw:        raw,
		Compressed: compressed,
		Smoothed:   sa.history.MeanInto(make([]float64, bins)),
	}
}

// ChunkSize returns the frame length the analyzer expects
func (sa *SpectrumAnalyzer) ChunkSize() int {
	return sa.chunkSize
}

// Bins returns the number of spectrum bins produced per frame
func (sa *SpectrumAnalyzer) Bins() int {
	return sa.chunkSize / 2
}

// Reset clears the smoothing history
func (sa *SpectrumAnalyzer) Reset() {
	sa.history.Reset()
}
