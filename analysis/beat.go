package analysis

import (
	"math"
	"time"

	"github.com/RyanBlaney/sonido-vis/algorithms/common"
)

// Sensitivity bounds and defaults for the beat threshold
const (
	MinSensitivity     = 0.5
	MaxSensitivity     = 3.0
	DefaultSensitivity = 1.5
	SensitivityStep    = 0.1
)

// BeatConfig holds beat detector parameters
type BeatConfig struct {
	Sensitivity  float64       `json:"sensitivity"`    // Energy must exceed the history mean by this factor
	Refractory   time.Duration `json:"refractory"`     // Minimum time between counted beats
	HistorySize  int           `json:"history_size"`   // Bass energy history length
	BassCutoffHz float64       `json:"bass_cutoff_hz"` // Upper edge of the bass band
	BPMWindow    int           `json:"bpm_window"`     // Inter-beat intervals used for BPM
}

// DefaultBeatConfig returns default beat detector parameters
func DefaultBeatConfig() BeatConfig {
	return BeatConfig{
		Sensitivity:  DefaultSensitivity,
		Refractory:   100 * time.Millisecond,
		HistorySize:  5,
		BassCutoffHz: 250,
		BPMWindow:    8,
	}
}

// BeatDetector flags onsets when the bass-band energy jumps above the mean of
// the preceding frames
type BeatDetector struct {
	config    BeatConfig
	history   *common.FloatRing
	intervals *common.FloatRing

	total    int
	lastBeat time.Time
}

// NewBeatDetector creates a beat detector. Zero-valued fields fall back to
// the defaults.
func NewBeatDetector(config BeatConfig) *BeatDetector {
	defaults := DefaultBeatConfig()
	if config.Sensitivity == 0 {
		config.Sensitivity = defaults.Sensitivity
	}
	if config.Refractory <= 0 {
		config.Refractory = defaults.Refractory
	}
	if config.HistorySize < 3 {
		config.HistorySize = defaults.HistorySize
	}
	if config.BassCutoffHz <= 0 {
		config.BassCutoffHz = defaults.BassCutoffHz
	}
	if config.BPMWindow < 1 {
		config.BPMWindow = defaults.BPMWindow
	}
	config.Sensitivity = common.Clamp(config.Sensitivity, MinSensitivity, MaxSensitivity)

	return &BeatDetector{
		config:    config,
		history:   common.NewFloatRing(config.HistorySize),
		intervals: common.NewFloatRing(config.BPMWindow),
	}
}

// BassCutoffBin returns the first bin at or above cutoffHz:
// floor(cutoffHz*chunkSize/sampleRate)
func BassCutoffBin(cutoffHz float64, chunkSize, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	return int(math.Floor(cutoffHz * float64(chunkSize) / float64(sampleRate)))
}

// Detect consumes the raw magnitude spectrum of one frame and reports whether
// the threshold was crossed. Only crossings at least one refractory period
// after the previous counted beat are counted.
func (bd *BeatDetector) Detect(raw []float64, chunkSize, sampleRate int, now time.Time) bool {
	cutoff := min(BassCutoffBin(bd.config.BassCutoffHz, chunkSize, sampleRate), len(raw))

	energy := 0.0
	for _, m := range raw[:max(cutoff, 0)] {
		energy += m
	}
	bd.history.Push(energy)

	if bd.history.Len() <= 2 {
		return false
	}

	beat := energy > bd.history.MeanOfOlder()*bd.config.Sensitivity
	if beat && (bd.lastBeat.IsZero() || now.Sub(bd.lastBeat) > bd.config.Refractory) {
		if !bd.lastBeat.IsZero() {
			bd.intervals.Push(now.Sub(bd.lastBeat).Seconds())
		}
		bd.total++
		bd.lastBeat = now
	}

	return beat
}

// Sensitivity returns the current threshold factor
func (bd *BeatDetector) Sensitivity() float64 {
	return bd.config.Sensitivity
}

// SetSensitivity sets the threshold factor, clamped to [0.5, 3.0]
func (bd *BeatDetector) SetSensitivity(s float64) {
	bd.config.Sensitivity = common.Clamp(s, MinSensitivity, MaxSensitivity)
}

// AdjustSensitivity moves the threshold factor by delta, rounded to one
// decimal, and returns the new value
func (bd *BeatDetector) AdjustSensitivity(delta float64) float64 {
	bd.SetSensitivity(math.Round((bd.config.Sensitivity+delta)*10) / 10)
	return bd.config.Sensitivity
}

// Stats reports counted beats. BPM comes from the median of the most recent
// inter-beat intervals and is 0 until two beats were counted.
func (bd *BeatDetector) Stats() BeatStats {
	stats := BeatStats{
		Total:    bd.total,
		LastBeat: bd.lastBeat,
	}

	if bd.intervals.Len() > 0 {
		if median := common.Median(bd.intervals.Values()); median > 0 {
			stats.BPM = 60.0 / median
		}
	}

	return stats
}

// Reset clears history and counters, keeping the sensitivity
func (bd *BeatDetector) Reset() {
	bd.history.Reset()
	bd.intervals.Reset()
	bd.total = 0
	bd.lastBeat = time.Time{}
}
