package spectral

import (
	"math"
)

const (
	// DefaultAmin is the magnitude floor applied before taking logarithms
	DefaultAmin = 1e-5
	// DefaultTopDB limits the dynamic range below the reference
	DefaultTopDB = 80.0
)

// AmplitudeToDB converts a magnitude spectrogram to decibels relative to its
// global maximum: 20*log10(max(amin, S)/ref). Values more than topDB below the
// peak are clipped to max-topDB. topDB <= 0 disables clipping.
func AmplitudeToDB(spectrogram [][]float64, amin, topDB float64) [][]float64 {
	if amin <= 0 {
		amin = DefaultAmin
	}

	ref := 0.0
	for _, frame := range spectrogram {
		for _, v := range frame {
			ref = math.Max(ref, v)
		}
	}
	refDB := 20 * math.Log10(math.Max(amin, ref))

	out := make([][]float64, len(spectrogram))
	peak := math.Inf(-1)
	for t, frame := range spectrogram {
		out[t] = make([]float64, len(frame))
		for f, v := range frame {
			db := 20*math.Log10(math.Max(amin, v)) - refDB
			out[t][f] = db
			peak = math.Max(peak, db)
		}
	}

	if topDB > 0 {
		floor := peak - topDB
		for _, frame := range out {
			for f, v := range frame {
				if v < floor {
					frame[f] = floor
				}
			}
		}
	}

	return out
}
