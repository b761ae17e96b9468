package transcode

import (
	"github.com/gopxl/beep/v2"
)

// MonoStreamer plays a mono sample slice as a beep.Streamer, duplicating each
// sample onto both output channels
type MonoStreamer struct {
	samples []float64
	pos     int
}

// NewMonoStreamer creates a streamer positioned at the first sample
func NewMonoStreamer(samples []float64) *MonoStreamer {
	return &MonoStreamer{samples: samples}
}

// Stream implements beep.Streamer
func (m *MonoStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if m.pos >= len(m.samples) {
		return 0, false
	}
	for n < len(samples) && m.pos < len(m.samples) {
		v := m.samples[m.pos]
		samples[n][0] = v
		samples[n][1] = v
		n++
		m.pos++
	}
	return n, true
}

// Err implements beep.Streamer
func (m *MonoStreamer) Err() error {
	return nil
}

// Len returns the total number of samples
func (m *MonoStreamer) Len() int {
	return len(m.samples)
}

// Position returns the index of the next sample to stream
func (m *MonoStreamer) Position() int {
	return m.pos
}

// Seek moves the read position, clamped to the stream bounds
func (m *MonoStreamer) Seek(p int) error {
	m.pos = min(max(p, 0), len(m.samples))
	return nil
}

var _ beep.StreamSeeker = (*MonoStreamer)(nil)

// Downmix averages interleaved channels into a mono signal
func Downmix(pcm []float64, channels int) []float64 {
	if channels <= 1 {
		out := make([]float64, len(pcm))
		copy(out, pcm)
		return out
	}

	frames := len(pcm) / channels
	out := make([]float64, frames)
	inv := 1.0 / float64(channels)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += pcm[i*channels+c]
		}
		out[i] = sum * inv
	}
	return out
}

// Resample converts a mono signal between sample rates with beep's
// interpolating resampler
func Resample(samples []float64, from, to, quality int) []float64 {
	if from == to || len(samples) == 0 || from <= 0 || to <= 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}

	quality = min(max(quality, 1), 64)
	resampler := beep.Resample(quality, beep.SampleRate(from), beep.SampleRate(to), NewMonoStreamer(samples))

	expected := int(float64(len(samples)) * float64(to) / float64(from))
	out := make([]float64, 0, expected+1)
	buf := make([][2]float64, 4096)
	for {
		n, ok := resampler.Stream(buf)
		for i := range n {
			out = append(out, buf[i][0])
		}
		if !ok || n == 0 {
			break
		}
	}

	return out
}
