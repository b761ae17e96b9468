package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/RyanBlaney/sonido-vis/analysis"
	"github.com/RyanBlaney/sonido-vis/logging"
)

// ErrInvalidConfig is returned when settings or a report cannot be used
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds visualizer settings
type Config struct {
	LogLevel string `json:"log_level"`

	// Capture
	DeviceIndex  int  `json:"device_index"` // -1 selects automatically
	ChunkSize    int  `json:"chunk_size"`
	SampleRate   int  `json:"sample_rate"`
	AsyncCapture bool `json:"async_capture"`
	QueueDepth   int  `json:"queue_depth"`

	// Analysis
	HistorySize  int     `json:"history_size"`
	Sensitivity  float64 `json:"sensitivity"`
	RefractoryMs int     `json:"refractory_ms"`

	// File mode
	FFTSize    int    `json:"fft_size"`
	HopSize    int    `json:"hop_size"`
	FFmpegPath string `json:"ffmpeg_path"` // Overrides the report

	ReportPath string `json:"report_path"`
	TargetFPS  int    `json:"target_fps"`
}

// DefaultConfig returns default settings
func DefaultConfig() *Config {
	return &Config{
		LogLevel:     "info",
		DeviceIndex:  -1,
		ChunkSize:    2048,
		SampleRate:   44100,
		AsyncCapture: false,
		QueueDepth:   2,
		HistorySize:  analysis.DefaultHistorySize,
		Sensitivity:  analysis.DefaultSensitivity,
		RefractoryMs: 100,
		FFTSize:      2048,
		HopSize:      1024,
		ReportPath:   "system_report.json",
		TargetFPS:    60,
	}
}

// LoadFile overlays the JSON settings file at path onto c. A missing file
// leaves c unchanged.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("settings file not found, using defaults", logging.Fields{
				"component": "config",
				"path":      path,
			})
			return nil
		}
		return fmt.Errorf("failed to read settings: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	return nil
}

// ApplyEnv overrides settings from SONIDO_* environment variables
func (c *Config) ApplyEnv() {
	c.LogLevel = envStr("SONIDO_LOG_LEVEL", c.LogLevel)
	c.DeviceIndex = envInt("SONIDO_DEVICE", c.DeviceIndex)
	c.ChunkSize = envInt("SONIDO_CHUNK_SIZE", c.ChunkSize)
	c.SampleRate = envInt("SONIDO_SAMPLE_RATE", c.SampleRate)
	c.AsyncCapture = envBool("SONIDO_ASYNC_CAPTURE", c.AsyncCapture)
	c.QueueDepth = envInt("SONIDO_QUEUE_DEPTH", c.QueueDepth)
	c.HistorySize = envInt("SONIDO_HISTORY_SIZE", c.HistorySize)
	c.Sensitivity = envFloat("SONIDO_SENSITIVITY", c.Sensitivity)
	c.RefractoryMs = envInt("SONIDO_REFRACTORY_MS", c.RefractoryMs)
	c.FFTSize = envInt("SONIDO_FFT_SIZE", c.FFTSize)
	c.HopSize = envInt("SONIDO_HOP_SIZE", c.HopSize)
	c.FFmpegPath = envStr("SONIDO_FFMPEG_PATH", c.FFmpegPath)
	c.ReportPath = envStr("SONIDO_REPORT_PATH", c.ReportPath)
	c.TargetFPS = envInt("SONIDO_FPS", c.TargetFPS)
}

// Validate checks the settings for values the pipeline cannot run with
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.ChunkSize < 64 || c.ChunkSize%2 != 0 {
		return fmt.Errorf("%w: chunk size must be even and at least 64, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidConfig, c.SampleRate)
	}
	if c.QueueDepth < 1 {
		return fmt.Errorf("%w: queue depth must be at least 1, got %d", ErrInvalidConfig, c.QueueDepth)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("%w: history size must be at least 1, got %d", ErrInvalidConfig, c.HistorySize)
	}
	if c.Sensitivity < analysis.MinSensitivity || c.Sensitivity > analysis.MaxSensitivity {
		return fmt.Errorf("%w: sensitivity must be within [%.1f, %.1f], got %.2f",
			ErrInvalidConfig, analysis.MinSensitivity, analysis.MaxSensitivity, c.Sensitivity)
	}
	if c.RefractoryMs < 0 {
		return fmt.Errorf("%w: refractory period cannot be negative", ErrInvalidConfig)
	}
	if c.FFTSize <= 0 || c.HopSize <= 0 || c.HopSize > c.FFTSize {
		return fmt.Errorf("%w: invalid STFT sizes fft=%d hop=%d", ErrInvalidConfig, c.FFTSize, c.HopSize)
	}
	if c.TargetFPS <= 0 {
		return fmt.Errorf("%w: target fps must be positive, got %d", ErrInvalidConfig, c.TargetFPS)
	}
	return nil
}

// Chain returns the analysis chain configuration these settings describe
func (c *Config) Chain() analysis.ChainConfig {
	beat := analysis.DefaultBeatConfig()
	beat.Sensitivity = c.Sensitivity
	beat.Refractory = time.Duration(c.RefractoryMs) * time.Millisecond

	return analysis.ChainConfig{
		ChunkSize:   c.ChunkSize,
		SampleRate:  c.SampleRate,
		HistorySize: c.HistorySize,
		Beat:        beat,
	}
}

// FrameInterval returns the render period for TargetFPS
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(max(c.TargetFPS, 1))
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
