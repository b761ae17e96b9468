package transcode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-vis/logging"
)

// FileDecoder turns an audio file into mono samples at the target rate. WAV,
// MP3 and Ogg Vorbis are decoded in-process; anything else, or a native
// failure, goes through ffmpeg when one is configured.
type FileDecoder struct {
	config *DecoderConfig
	ffmpeg *Decoder
	logger logging.Logger
}

// NewFileDecoder creates a file decoder
func NewFileDecoder(config *DecoderConfig) *FileDecoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	if config.TargetSampleRate <= 0 {
		config.TargetSampleRate = 44100
	}
	config.TargetChannels = 1

	return &FileDecoder{
		config: config,
		ffmpeg: NewDecoder(config),
		logger: logging.WithFields(logging.Fields{
			"component": "file_decoder",
		}),
	}
}

// Decode reads path and returns mono samples at TargetSampleRate
func (fd *FileDecoder) Decode(ctx context.Context, path string) (*AudioData, error) {
	logger := fd.logger.WithFields(logging.Fields{
		"function": "Decode",
		"path":     path,
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := fd.ffmpeg.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("invalid decoder configuration: %w", err)
	}

	native, ok := lookupNative(path)
	if !ok {
		if fd.config.FFmpegPath == "" {
			return nil, fmt.Errorf("%w: %q, native formats are %s (%w)", ErrUnsupportedFormat,
				filepath.Ext(path), strings.Join(NativeFormats(), " "), ErrFFmpegUnavailable)
		}
		return fd.ffmpeg.DecodeFile(ctx, path)
	}

	data, err := fd.decodeNative(native, path)
	if err == nil {
		return data, nil
	}

	if fd.config.FFmpegPath == "" {
		return nil, err
	}

	logger.Warn("Native decode failed, falling back to ffmpeg", logging.Fields{
		"error": err.Error(),
	})
	return fd.ffmpeg.DecodeFile(ctx, path)
}

func (fd *FileDecoder) decodeNative(decode nativeDecoder, path string) (*AudioData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer f.Close()

	startTime := time.Now()
	data, err := decode(f)
	if err != nil {
		return nil, err
	}
	if len(data.PCM) == 0 || data.SampleRate <= 0 {
		return nil, fmt.Errorf("no audio samples decoded from %s", path)
	}

	mono := Downmix(data.PCM, data.Channels)
	mono = Resample(mono, data.SampleRate, fd.config.TargetSampleRate, fd.config.ResampleQuality)

	if fd.config.MaxDuration > 0 {
		limit := int(fd.config.MaxDuration.Seconds() * float64(fd.config.TargetSampleRate))
		if limit < len(mono) {
			mono = mono[:limit]
		}
	}

	duration := time.Duration(len(mono)) * time.Second / time.Duration(fd.config.TargetSampleRate)

	fd.logger.Debug("Native decode completed", logging.Fields{
		"format":            data.Format,
		"input_sample_rate": data.SampleRate,
		"input_channels":    data.Channels,
		"output_samples":    len(mono),
		"duration":          duration.Seconds(),
		"decode_time":       time.Since(startTime).Seconds(),
	})

	return &AudioData{
		PCM:        mono,
		SampleRate: fd.config.TargetSampleRate,
		Channels:   1,
		Duration:   duration,
		Format:     data.Format,
	}, nil
}
