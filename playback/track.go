package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-vis/algorithms/spectral"
	"github.com/RyanBlaney/sonido-vis/algorithms/temporal"
	"github.com/RyanBlaney/sonido-vis/algorithms/windowing"
	"github.com/RyanBlaney/sonido-vis/logging"
	"github.com/RyanBlaney/sonido-vis/transcode"
)

var (
	// ErrDecodeFailure is returned when a track cannot be decoded or analysed
	ErrDecodeFailure = errors.New("track decode failed")
	// ErrLoadInProgress is returned when a load is requested while one runs
	ErrLoadInProgress = errors.New("track load already in progress")
	// ErrNotAnalyzed is returned by playback controls when no track is loaded
	ErrNotAnalyzed = errors.New("no analysed track")
)

// Track is a decoded and analysed file. It is read-only once built.
type Track struct {
	Path       string        `json:"path"`
	Samples    []float64     `json:"-"` // Mono samples in [-1, 1]
	SampleRate int           `json:"sample_rate"`
	Duration   time.Duration `json:"duration"`

	// Spectrogram[col][bin] in dB relative to the loudest bin
	Spectrogram [][]float64 `json:"-"`
	BeatTimes   []float64   `json:"beat_times"` // Seconds, ascending
	Tempo       float64     `json:"tempo"`
}

// Columns returns the number of spectrogram columns
func (t *Track) Columns() int {
	return len(t.Spectrogram)
}

// Bins returns the number of bins per spectrogram column
func (t *Track) Bins() int {
	if len(t.Spectrogram) == 0 {
		return 0
	}
	return len(t.Spectrogram[0])
}

// AudioDecoder produces mono samples for a file
type AudioDecoder interface {
	Decode(ctx context.Context, path string) (*transcode.AudioData, error)
}

// AnalyzerConfig holds the offline analysis parameters
type AnalyzerConfig struct {
	SampleRate int `json:"sample_rate"`
	FFTSize    int `json:"fft_size"`
	HopSize    int `json:"hop_size"`
}

// DefaultAnalyzerConfig returns 2048-point frames with a 1024 hop at 44100 Hz
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		SampleRate: 44100,
		FFTSize:    2048,
		HopSize:    1024,
	}
}

// TrackAnalyzer decodes a file and precomputes its spectrogram and beats
type TrackAnalyzer struct {
	decoder AudioDecoder
	config  AnalyzerConfig

	stft    *spectral.STFT
	window  *windowing.Hann
	onsets  *temporal.OnsetDetection
	tempo   *temporal.TempoEstimation
	tracker *temporal.BeatTracker
}

// NewTrackAnalyzer creates a track analyzer
func NewTrackAnalyzer(decoder AudioDecoder, config AnalyzerConfig) *TrackAnalyzer {
	defaults := DefaultAnalyzerConfig()
	if config.SampleRate <= 0 {
		config.SampleRate = defaults.SampleRate
	}
	if config.FFTSize <= 0 {
		config.FFTSize = defaults.FFTSize
	}
	if config.HopSize <= 0 {
		config.HopSize = defaults.HopSize
	}

	return &TrackAnalyzer{
		decoder: decoder,
		config:  config,
		stft:    spectral.NewSTFT(),
		window:  windowing.NewHann(config.FFTSize, false),
		onsets:  temporal.NewOnsetDetection(),
		tempo:   temporal.NewTempoEstimation(),
		tracker: temporal.NewBeatTracker(),
	}
}

// LoadAndAnalyze decodes path and analyses it. Failures wrap
// ErrDecodeFailure; cancellation returns the context error.
func (ta *TrackAnalyzer) LoadAndAnalyze(ctx context.Context, path string) (*Track, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "track_analyzer",
		"function":  "LoadAndAnalyze",
		"path":      path,
	})

	logger.Info("Loading track")
	startTime := time.Now()

	audio, err := ta.decoder.Decode(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrDecodeFailure, path, err)
	}

	track, err := ta.Analyze(ctx, path, audio.PCM, audio.SampleRate)
	if err != nil {
		return nil, err
	}

	logger.Info("Track analysed", logging.Fields{
		"duration":     track.Duration.Seconds(),
		"columns":      track.Columns(),
		"beats":        len(track.BeatTimes),
		"tempo":        track.Tempo,
		"elapsed_time": time.Since(startTime).Seconds(),
	})

	return track, nil
}

// Analyze builds a Track from already decoded mono samples
func (ta *TrackAnalyzer) Analyze(ctx context.Context, path string, samples []float64, sampleRate int) (*Track, error) {
	if len(samples) == 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %s: no audio samples", ErrDecodeFailure, path)
	}

	result, err := ta.stft.ComputeWithWindow(ctx, samples, ta.config.FFTSize, ta.config.HopSize, sampleRate, ta.window, true)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: spectrogram: %w", ErrDecodeFailure, path, err)
	}

	spectrogram := spectral.AmplitudeToDB(result.Magnitude, spectral.DefaultAmin, spectral.DefaultTopDB)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frameRate := float64(sampleRate) / float64(ta.config.HopSize)
	envelope := ta.onsets.Strength(spectrogram)
	tempo := ta.tempo.EstimateFromEnvelope(envelope, frameRate)

	var beatTimes []float64
	if tempo > 0 {
		frames := ta.tracker.Track(envelope, frameRate, tempo)
		beatTimes = temporal.FramesToTimes(frames, ta.config.HopSize, sampleRate)
	}

	return &Track{
		Path:        path,
		Samples:     samples,
		SampleRate:  sampleRate,
		Duration:    time.Duration(len(samples)) * time.Second / time.Duration(sampleRate),
		Spectrogram: spectrogram,
		BeatTimes:   beatTimes,
		Tempo:       tempo,
	}, nil
}

// NewDefaultAnalyzer wires a TrackAnalyzer to the file decoder
func NewDefaultAnalyzer(decoderConfig *transcode.DecoderConfig, config AnalyzerConfig) *TrackAnalyzer {
	if decoderConfig == nil {
		decoderConfig = transcode.DefaultDecoderConfig()
	}
	decoderConfig.TargetSampleRate = config.SampleRate
	if decoderConfig.TargetSampleRate <= 0 {
		decoderConfig.TargetSampleRate = DefaultAnalyzerConfig().SampleRate
	}
	return NewTrackAnalyzer(transcode.NewFileDecoder(decoderConfig), config)
}
