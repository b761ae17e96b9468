package analysis

import "time"

// ChainConfig configures an analysis chain
type ChainConfig struct {
	ChunkSize   int        `json:"chunk_size"`
	SampleRate  int        `json:"sample_rate"`
	HistorySize int        `json:"history_size"`
	Beat        BeatConfig `json:"beat"`
}

// DefaultChainConfig returns the default chain configuration: 2048-sample
// chunks at 44100 Hz
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		ChunkSize:   2048,
		SampleRate:  44100,
		HistorySize: DefaultHistorySize,
		Beat:        DefaultBeatConfig(),
	}
}

// Chain runs a sample frame through spectrum, beat and level analysis. Each
// component owns its own history; a chain is not safe for concurrent use.
type Chain struct {
	config   ChainConfig
	spectrum *SpectrumAnalyzer
	beat     *BeatDetector
	level    *LevelMeter
}

// NewChain builds a chain with fresh histories
func NewChain(config ChainConfig) *Chain {
	defaults := DefaultChainConfig()
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaults.ChunkSize
	}
	if config.SampleRate <= 0 {
		config.SampleRate = defaults.SampleRate
	}

	return &Chain{
		config:   config,
		spectrum: NewSpectrumAnalyzer(config.ChunkSize, config.HistorySize),
		beat:     NewBeatDetector(config.Beat),
		level:    NewLevelMeter(),
	}
}

// Process analyses one frame. active is passed through to the result.
func (c *Chain) Process(frame SampleFrame, now time.Time, active bool) Frame {
	rate := frame.SampleRate
	if rate <= 0 {
		rate = c.config.SampleRate
	}

	spec := c.spectrum.Analyze(frame)
	beat := c.beat.Detect(spec.Raw, c.config.ChunkSize, rate, now)
	level, peak := c.level.Measure(frame)

	return Frame{
		Spectrum: spec.Smoothed,
		Beat:     beat,
		Level:    level,
		Peak:     peak,
		Active:   active,
	}
}

// Beat exposes the chain's beat detector
func (c *Chain) Beat() *BeatDetector {
	return c.beat
}

// Bins returns the spectrum length produced by Process
func (c *Chain) Bins() int {
	return c.spectrum.Bins()
}

// Config returns the configuration the chain was built with
func (c *Chain) Config() ChainConfig {
	return c.config
}
