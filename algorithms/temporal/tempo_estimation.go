package temporal

import (
	"math"
)

const (
	// DefaultTempo is returned when no periodicity can be found
	DefaultTempo = 120.0

	minTempo = 60.0
	maxTempo = 180.0
)

// TempoEstimation estimates a global tempo from an onset-strength envelope
type TempoEstimation struct {
	// StartBPM centres the log-normal tempo prior
	StartBPM float64
	// StdOctaves is the prior width in octaves
	StdOctaves float64
}

// NewTempoEstimation creates a new tempo estimator
func NewTempoEstimation() *TempoEstimation {
	return &TempoEstimation{
		StartBPM:   120.0,
		StdOctaves: 1.0,
	}
}

// EstimateFromEnvelope estimates tempo in BPM from an onset envelope sampled
// at frameRate frames per second. It picks the autocorrelation peak in the
// 60-180 BPM range, weighted by the tempo prior.
func (te *TempoEstimation) EstimateFromEnvelope(envelope []float64, frameRate float64) float64 {
	if len(envelope) < 10 || frameRate <= 0 {
		return 0.0
	}

	minLag := max(int(60.0/maxTempo*frameRate), 1)
	maxLag := int(math.Ceil(60.0 / minTempo * frameRate))

	autocorr := te.calculateAutocorrelation(envelope, maxLag+2)
	if len(autocorr) == 0 || autocorr[0] == 0 {
		return 0.0
	}
	maxLag = min(maxLag, len(autocorr)-2)

	bestScore := 0.0
	bestLag := 0

	for lag := minLag; lag <= maxLag; lag++ {
		if autocorr[lag] <= autocorr[lag-1] || autocorr[lag] < autocorr[lag+1] {
			continue
		}

		bpm := 60.0 * frameRate / float64(lag)
		score := autocorr[lag] * te.prior(bpm)
		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}

	if bestLag == 0 {
		return DefaultTempo
	}

	return 60.0 * frameRate / float64(bestLag)
}

// prior is a log-normal weight centred on StartBPM
func (te *TempoEstimation) prior(bpm float64) float64 {
	octaves := math.Log2(bpm / te.StartBPM)
	return math.Exp(-0.5 * (octaves / te.StdOctaves) * (octaves / te.StdOctaves))
}

// calculateAutocorrelation calculates the normalised autocorrelation function
func (te *TempoEstimation) calculateAutocorrelation(signal []float64, maxLag int) []float64 {
	if maxLag > len(signal) {
		maxLag = len(signal)
	}

	autocorr := make([]float64, maxLag)

	for lag := 0; lag < maxLag; lag++ {
		sum := 0.0
		count := 0

		for i := 0; i < len(signal)-lag; i++ {
			sum += signal[i] * signal[i+lag]
			count++
		}

		if count > 0 {
			autocorr[lag] = sum / float64(count)
		}
	}

	if len(autocorr) > 0 && autocorr[0] > 0 {
		norm := autocorr[0]
		for i := range autocorr {
			autocorr[i] /= norm
		}
	}

	return autocorr
}
