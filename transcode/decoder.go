package transcode

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-vis/logging"
)

var (
	// ErrUnsupportedFormat is returned when no decoder handles a file
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrFFmpegUnavailable is returned when the ffmpeg fallback is needed but not configured
	ErrFFmpegUnavailable = errors.New("ffmpeg unavailable")
)

// AudioData represents decoded audio data
type AudioData struct {
	PCM        []float64      `json:"-"` // Interleaved samples in [-1, 1]
	SampleRate int            `json:"sample_rate"`
	Channels   int            `json:"channels"`
	Duration   time.Duration  `json:"duration"`
	Format     string         `json:"format"` // Decoder that produced the data
	Metadata   *AudioMetadata `json:"metadata,omitempty"`
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"`
	TargetChannels   int           `json:"target_channels"`
	ResampleQuality  int           `json:"resample_quality"` // beep.Resample quality, 1-64
	MaxDuration      time.Duration `json:"max_duration"`
	FFmpegPath       string        `json:"ffmpeg_path"`  // Empty disables the ffmpeg fallback
	FFprobePath      string        `json:"ffprobe_path"` // Empty skips the metadata lookup
	Timeout          time.Duration `json:"timeout"`      // Timeout for ffmpeg operations
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 44100,
		TargetChannels:   1,
		ResampleQuality:  4,
		MaxDuration:      0, // No limit
		Timeout:          2 * time.Minute,
	}
}

// WithFFmpeg sets the ffmpeg binary and looks for ffprobe next to it
func (c *DecoderConfig) WithFFmpeg(path string) *DecoderConfig {
	c.FFmpegPath = path
	c.FFprobePath = ""
	if path == "" {
		return c
	}

	ffprobe := filepath.Join(filepath.Dir(path), "ffprobe"+filepath.Ext(path))
	if info, err := os.Stat(ffprobe); err == nil && !info.IsDir() {
		c.FFprobePath = ffprobe
	}
	return c
}

// Decoder handles audio decoding using FFmpeg
type Decoder struct {
	config *DecoderConfig
}

// AudioMetadata holds detected audio properties from FFprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// NewDecoder creates a new ffmpeg decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// DecodeFile decodes an audio file with ffmpeg into TargetChannels at
// TargetSampleRate
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeFile",
		"filename":  filename,
	})

	if d.config.FFmpegPath == "" {
		return nil, ErrFFmpegUnavailable
	}

	logger.Debug("Starting ffmpeg decode")

	// Probing is informational only
	var metadata *AudioMetadata
	if d.config.FFprobePath != "" {
		m, err := d.readMetadata(ctx, filename)
		if err != nil {
			logger.Warn("Failed to read audio metadata", logging.Fields{"error": err.Error()})
		} else {
			metadata = m
			logger.Debug("Audio metadata detected", logging.Fields{
				"input_sample_rate": m.SampleRate,
				"input_channels":    m.Channels,
				"input_codec":       m.Codec,
				"input_duration":    m.Duration,
			})
		}
	}

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	args := d.buildFFmpegArgs(filename)
	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, args...)

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	startTime := time.Now()
	output, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			logger.Error(err, "Ffmpeg decode failed", logging.Fields{
				"stderr": string(exitError.Stderr),
			})
			return nil, fmt.Errorf("ffmpeg decode failed: %w, stderr: %s", err, strings.TrimSpace(string(exitError.Stderr)))
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, fmt.Errorf("no audio samples decoded from %s", filename)
	}

	channels := max(d.config.TargetChannels, 1)
	samplesPerChannel := len(samples) / channels
	duration := time.Duration(samplesPerChannel) * time.Second / time.Duration(d.config.TargetSampleRate)

	logger.Debug("FFmpeg decode completed", logging.Fields{
		"output_samples": len(samples),
		"duration":       duration.Seconds(),
		"decode_time":    time.Since(startTime).Seconds(),
	})

	return &AudioData{
		PCM:        samples,
		SampleRate: d.config.TargetSampleRate,
		Channels:   channels,
		Duration:   duration,
		Format:     "ffmpeg",
		Metadata:   metadata,
	}, nil
}

// readMetadata uses ffprobe to get input audio information
func (d *Decoder) readMetadata(ctx context.Context, filename string) (*AudioMetadata, error) {
	args := []string{
		"-v", "quiet", // Suppress verbose output
		"-print_format", "json", // JSON output
		"-show_streams",          // Show stream info
		"-select_streams", "a:0", // First audio stream only
		filename,
	}

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	output, err := exec.CommandContext(ctx, d.config.FFprobePath, args...).Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseFFprobeOutput(output)
}

// parseFFprobeOutput parses the JSON stream listing printed by ffprobe
func parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var parsed struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			Duration      string `json:"duration"`
			BitRate       string `json:"bit_rate"`
			CodecLongName string `json:"codec_long_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(parsed.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found")
	}

	stream := parsed.Streams[0]

	// Validate that this is an audio stream
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", stream.CodecType)
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil {
		sampleRate = 44100 // Fallback to common sample rate
	}

	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil {
		duration = 0
	}

	bitrate, err := strconv.Atoi(stream.BitRate)
	if err != nil {
		bitrate = 0
	}

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     stream.CodecLongName,
	}, nil
}

// buildFFmpegArgs builds the ffmpeg arguments for decoding filename to stdout
func (d *Decoder) buildFFmpegArgs(filename string) []string {
	args := []string{
		"-v", "error", // Suppress ffmpeg output
		"-i", filename,
		"-vn",         // No video
		"-f", "f64le", // Output raw float64 little-endian
		"-ac", strconv.Itoa(max(d.config.TargetChannels, 1)),
		"-ar", strconv.Itoa(d.config.TargetSampleRate),
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds()))
	}

	return append(args, "pipe:1")
}

// bytesToFloat64 converts raw float64 bytes to []float64
func bytesToFloat64(data []byte) []float64 {
	if len(data)%8 != 0 {
		// Trim to multiple of 8 bytes
		data = data[:len(data)-(len(data)%8)]
	}

	if len(data) == 0 {
		return nil
	}

	sampleCount := len(data) / 8
	samples := make([]float64, sampleCount)

	for i := range sampleCount {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// ValidateConfig validates the decoder configuration
func (d *Decoder) ValidateConfig() error {
	if d.config.TargetSampleRate <= 0 {
		return fmt.Errorf("target sample rate must be positive: %d", d.config.TargetSampleRate)
	}

	if d.config.TargetChannels <= 0 || d.config.TargetChannels > 8 {
		return fmt.Errorf("target channels must be between 1 and 8: %d", d.config.TargetChannels)
	}

	if d.config.ResampleQuality < 1 || d.config.ResampleQuality > 64 {
		return fmt.Errorf("resample quality must be between 1 and 64: %d", d.config.ResampleQuality)
	}

	return nil
}

// CheckFFmpegAvailability checks if the configured ffmpeg binary runs
func (d *Decoder) CheckFFmpegAvailability(ctx context.Context) error {
	if d.config.FFmpegPath == "" {
		return ErrFFmpegUnavailable
	}

	if err := exec.CommandContext(ctx, d.config.FFmpegPath, "-version").Run(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFFmpegUnavailable, d.config.FFmpegPath, err)
	}

	return nil
}
