package analysis

import "time"

// SampleFrame is one chunk of mono samples on the signed 16-bit scale
// (-32768..32767)
type SampleFrame struct {
	Samples    []float64
	SampleRate int
}

// ZeroFrame returns a silent frame of n samples
func ZeroFrame(n, sampleRate int) SampleFrame {
	return SampleFrame{
		Samples:    make([]float64, max(n, 0)),
		SampleRate: sampleRate,
	}
}

// Frame is what the renderer receives once per displayed frame
type Frame struct {
	Spectrum []float64 `json:"spectrum"` // Smoothed spectrum, 0 and up
	Beat     bool      `json:"beat"`
	Level    float64   `json:"level"` // 0-100
	Peak     float64   `json:"peak"`  // 0-100
	Active   bool      `json:"active"`
}

// SilentFrame returns an inactive frame with a zeroed spectrum of the given
// number of bins
func SilentFrame(bins int) Frame {
	return Frame{Spectrum: make([]float64, max(bins, 0))}
}

// BeatStats summarises counted beats
type BeatStats struct {
	Total    int       `json:"total"`
	LastBeat time.Time `json:"last_beat"`
	BPM      float64   `json:"bpm"`
}

// BinFrequency maps spectrum bin i of an n-point transform to Hz
func BinFrequency(i, sampleRate, n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(i) * float64(sampleRate) / float64(n)
}
