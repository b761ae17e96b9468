package analysis

import (
	"github.com/RyanBlaney/sonido-vis/algorithms/common"
)

const (
	// levelScale maps 16-bit RMS onto 0-100
	levelScale = 327.67
	// DefaultPeakDecay is the per-frame peak release factor
	DefaultPeakDecay = 0.98
)

// LevelMeter tracks RMS loudness and a decaying peak on a 0-100 scale
type LevelMeter struct {
	decay float64
	level float64
	peak  float64
}

// NewLevelMeter creates a level meter with the default peak decay
func NewLevelMeter() *LevelMeter {
	return &LevelMeter{decay: DefaultPeakDecay}
}

// Measure updates and returns the level and peak for one frame
func (lm *LevelMeter) Measure(frame SampleFrame) (level, peak float64) {
	lm.level = common.Clamp(common.RMS(frame.Samples)/levelScale, 0, 100)

	if lm.level > lm.peak {
		lm.peak = lm.level
	} else {
		lm.peak *= lm.decay
	}

	return lm.level, lm.peak
}

// Level returns the last measured level
func (lm *LevelMeter) Level() float64 {
	return lm.level
}

// Peak returns the current peak
func (lm *LevelMeter) Peak() float64 {
	return lm.peak
}

// Reset zeroes level and peak
func (lm *LevelMeter) Reset() {
	lm.level = 0
	lm.peak = 0
}
