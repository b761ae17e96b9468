package spectral

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// FFT provides Fast Fourier Transform functionality
type FFT struct {
	// No state needed: go-dsp caches twiddle factors per size internally
}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes Fast Fourier Transform using mjibson/go-dsp
// Takes []float64 input and returns []complex128 output
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}

	// mjibson/go-dsp handles all sizes efficiently, including non-power-of-2
	return fft.FFTReal(x)
}

// MagnitudesInto computes |FFT(x)| for the first len(dst) bins and stores
// them in dst. Bins past the transform length are zeroed.
func (f *FFT) MagnitudesInto(dst []float64, x []float64) []float64 {
	spectrum := f.Compute(x)
	for i := range dst {
		if i < len(spectrum) {
			dst[i] = cmplx.Abs(spectrum[i])
		} else {
			dst[i] = 0
		}
	}
	return dst
}
