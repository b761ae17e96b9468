package capture

import (
	"errors"
	"fmt"

	"github.com/RyanBlaney/sonido-vis/analysis"
	"github.com/RyanBlaney/sonido-vis/logging"
)

// State is the capture state
type State int

const (
	StateStopped State = iota
	StateActive
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// LiveConfig holds capture format parameters
type LiveConfig struct {
	ChunkSize  int `json:"chunk_size"`
	SampleRate int `json:"sample_rate"`
}

// DefaultLiveConfig returns 2048-sample chunks at 44100 Hz
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		ChunkSize:  2048,
		SampleRate: 44100,
	}
}

// LiveSource reads fixed-size frames from an input device. Failures never
// propagate to the caller of Pull: it returns silent frames instead. A
// LiveSource is not safe for concurrent use.
type LiveSource struct {
	opener StreamOpener
	config LiveConfig
	logger logging.Logger

	stream InputStream
	state  State
	device int
	err    error
	buf    []int16

	readErrors int
}

// NewLiveSource creates a stopped live source
func NewLiveSource(opener StreamOpener, config LiveConfig) *LiveSource {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultLiveConfig().ChunkSize
	}
	if config.SampleRate <= 0 {
		config.SampleRate = DefaultLiveConfig().SampleRate
	}

	return &LiveSource{
		opener: opener,
		config: config,
		device: -1,
		buf:    make([]int16, config.ChunkSize),
		logger: logging.WithFields(logging.Fields{
			"component": "live_capture",
		}),
	}
}

// Open starts capturing from device, closing any current stream first. On
// failure the source enters StateError and the error is logged once.
func (s *LiveSource) Open(device int) error {
	s.closeStream()
	s.device = device
	s.readErrors = 0

	if device < 0 || s.opener == nil {
		s.fail(ErrNoDevices)
		return s.err
	}

	stream, err := s.opener.OpenInput(device, float64(s.config.SampleRate), s.config.ChunkSize)
	if err != nil {
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: device %d: %v", ErrDeviceUnavailable, device, err)
		}
		s.fail(err)
		return s.err
	}

	s.stream = stream
	s.state = StateActive
	s.err = nil

	s.logger.Info("Capture stream opened", logging.Fields{
		"device":      device,
		"sample_rate": s.config.SampleRate,
		"chunk_size":  s.config.ChunkSize,
	})
	return nil
}

// ChangeDevice closes the current stream and opens device
func (s *LiveSource) ChangeDevice(device int) error {
	return s.Open(device)
}

// Pull reads one chunk. It returns a silent frame and false when the source
// is not active or the read failed; the stream stays open after a failed read.
func (s *LiveSource) Pull() (analysis.SampleFrame, bool) {
	if s.state != StateActive || s.stream == nil {
		return s.zero(), false
	}

	if err := s.stream.Read(s.buf); err != nil {
		s.readErrors++
		// Logged on the first failure and every 100th after
		if s.readErrors%100 == 1 {
			s.logger.Warn("Capture read failed", logging.Fields{
				"device":      s.device,
				"error":       err.Error(),
				"read_errors": s.readErrors,
			})
		}
		return s.zero(), false
	}

	frame := analysis.SampleFrame{
		Samples:    make([]float64, len(s.buf)),
		SampleRate: s.config.SampleRate,
	}
	for i, v := range s.buf {
		frame.Samples[i] = float64(v)
	}
	return frame, true
}

// Close stops capturing
func (s *LiveSource) Close() error {
	err := s.closeStream()
	s.state = StateStopped
	s.err = nil
	return err
}

// State returns the current state
func (s *LiveSource) State() State {
	return s.state
}

// Device returns the index of the last opened device (-1 if none)
func (s *LiveSource) Device() int {
	return s.device
}

// Err returns the error that put the source into StateError
func (s *LiveSource) Err() error {
	return s.err
}

// Config returns the capture format
func (s *LiveSource) Config() LiveConfig {
	return s.config
}

func (s *LiveSource) fail(err error) {
	s.state = StateError
	s.err = err
	s.logger.Error(err, "Failed to open capture stream", logging.Fields{
		"device": s.device,
	})
}

func (s *LiveSource) closeStream() error {
	if s.stream == nil {
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	if err != nil {
		s.logger.Warn("Error closing capture stream", logging.Fields{
			"device": s.device,
			"error":  err.Error(),
		})
	}
	return err
}

func (s *LiveSource) zero() analysis.SampleFrame {
	return analysis.ZeroFrame(s.config.ChunkSize, s.config.SampleRate)
}
