package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-vis/algorithms/common"
	"gonum.org/v1/gonum/stat"
)

// BeatTracker places beats on an onset envelope with dynamic programming:
// every beat maximises its onset strength plus the best score of a
// predecessor roughly one tempo period earlier.
type BeatTracker struct {
	// Tightness penalises deviations from the tempo period
	Tightness float64
}

// NewBeatTracker creates a beat tracker with the usual tightness of 100
func NewBeatTracker() *BeatTracker {
	return &BeatTracker{Tightness: 100}
}

// Track returns beat frame indices in ascending order
func (bt *BeatTracker) Track(envelope []float64, frameRate, bpm float64) []int {
	if len(envelope) == 0 || bpm <= 0 || frameRate <= 0 {
		return nil
	}

	onsets := normalizeOnsets(envelope)
	if onsets == nil {
		return nil
	}

	period := frameRate * 60.0 / bpm
	localScore := smoothByPeriod(onsets, period)

	backlink, cumScore := bt.dynamicProgram(localScore, period)

	last := lastBeat(cumScore)
	if last < 0 {
		return nil
	}

	var beats []int
	for b := last; b >= 0; b = backlink[b] {
		beats = append(beats, b)
	}
	for i, j := 0, len(beats)-1; i < j; i, j = i+1, j-1 {
		beats[i], beats[j] = beats[j], beats[i]
	}

	return trimBeats(localScore, beats)
}

// FramesToTimes converts frame indices to seconds
func FramesToTimes(frames []int, hopSize, sampleRate int) []float64 {
	times := make([]float64, len(frames))
	for i, f := range frames {
		times[i] = float64(f*hopSize) / float64(sampleRate)
	}
	return times
}

func (bt *BeatTracker) dynamicProgram(localScore []float64, period float64) ([]int, []float64) {
	n := len(localScore)
	backlink := make([]int, n)
	cumScore := make([]float64, n)

	windowStart := -int(math.Round(2 * period))
	windowEnd := -int(math.Round(period / 2))

	maxScore := 0.0
	for _, v := range localScore {
		maxScore = math.Max(maxScore, v)
	}
	scoreThreshold := 0.01 * maxScore

	firstBeat := true
	for i := range n {
		bestPrev := -1
		bestScore := math.Inf(-1)

		for offset := windowStart; offset <= windowEnd; offset++ {
			prev := i + offset
			if prev < 0 {
				continue
			}
			if prev >= i {
				break
			}
			interval := float64(i-prev) / period
			penalty := -bt.Tightness * math.Log(interval) * math.Log(interval)
			if s := cumScore[prev] + penalty; s > bestScore {
				bestScore = s
				bestPrev = prev
			}
		}

		cumScore[i] = localScore[i]
		backlink[i] = -1
		if bestPrev >= 0 && !firstBeat {
			cumScore[i] += bestScore
			backlink[i] = bestPrev
		}

		// Until the first real onset every frame starts a new chain
		if firstBeat && localScore[i] >= scoreThreshold {
			firstBeat = false
		}
	}

	return backlink, cumScore
}

// normalizeOnsets scales the envelope to unit standard deviation. An all-zero
// envelope yields nil.
func normalizeOnsets(envelope []float64) []float64 {
	std := stat.StdDev(envelope, nil)
	if std <= 0 || math.IsNaN(std) {
		return nil
	}

	out := make([]float64, len(envelope))
	for i, v := range envelope {
		out[i] = v / std
	}
	return out
}

// smoothByPeriod convolves the onsets with a Gaussian spanning one period
func smoothByPeriod(onsets []float64, period float64) []float64 {
	half := int(math.Round(period))
	kernel := make([]float64, 2*half+1)
	for k := -half; k <= half; k++ {
		x := float64(k) * 32.0 / period
		kernel[k+half] = math.Exp(-0.5 * x * x)
	}

	out := make([]float64, len(onsets))
	for i := range onsets {
		sum := 0.0
		for k := -half; k <= half; k++ {
			j := i + k
			if j < 0 || j >= len(onsets) {
				continue
			}
			sum += onsets[j] * kernel[k+half]
		}
		out[i] = sum
	}
	return out
}

// lastBeat picks the final frame whose cumulative score is a local maximum
// reaching half the median of all local maxima
func lastBeat(cumScore []float64) int {
	var maxima []float64
	isMax := make([]bool, len(cumScore))
	for i := range cumScore {
		left := i == 0 || cumScore[i] > cumScore[i-1]
		right := i == len(cumScore)-1 || cumScore[i] >= cumScore[i+1]
		if left && right {
			isMax[i] = true
			maxima = append(maxima, cumScore[i])
		}
	}
	if len(maxima) == 0 {
		return -1
	}

	threshold := 0.5 * common.Median(maxima)
	for i := len(cumScore) - 1; i >= 0; i-- {
		if isMax[i] && cumScore[i] >= threshold {
			return i
		}
	}
	return -1
}

// trimBeats drops weak leading and trailing beats
func trimBeats(localScore []float64, beats []int) []int {
	if len(beats) == 0 {
		return beats
	}

	strengths := make([]float64, len(beats))
	for i, b := range beats {
		strengths[i] = localScore[b]
	}
	threshold := 0.5 * common.RMS(strengths)

	start, end := 0, len(beats)
	for start < end && localScore[beats[start]] < threshold {
		start++
	}
	for end > start && localScore[beats[end-1]] < threshold {
		end--
	}
	return beats[start:end]
}
