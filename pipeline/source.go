package pipeline

import (
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-vis/analysis"
	"github.com/RyanBlaney/sonido-vis/capture"
	"github.com/RyanBlaney/sonido-vis/logging"
	"github.com/RyanBlaney/sonido-vis/playback"
)

// SourceKind identifies where frames come from
type SourceKind int

const (
	LiveMode SourceKind = iota
	FileMode
)

func (k SourceKind) String() string {
	switch k {
	case LiveMode:
		return "live"
	case FileMode:
		return "file"
	default:
		return "unknown"
	}
}

// Source produces one analysis frame per render tick
type Source interface {
	Kind() SourceKind
	// Activate starts the source. A failed activation still leaves the
	// source pullable; it yields silent frames.
	Activate() error
	// Deactivate stops the source and returns once it is idle
	Deactivate()
	Pull(now time.Time) analysis.Frame
	Stats() analysis.BeatStats
}

// FrameSource is a capture source such as capture.LiveSource or
// capture.AsyncSource
type FrameSource interface {
	Open(device int) error
	ChangeDevice(device int) error
	Pull() (analysis.SampleFrame, bool)
	Close() error
	State() capture.State
}

// LiveInput runs captured frames through an analysis chain. The chain is
// rebuilt on every activation and device change so no history carries over;
// the beat sensitivity does.
type LiveInput struct {
	source FrameSource
	device int
	config analysis.ChainConfig
	logger logging.Logger

	chain  *analysis.Chain
	active bool

	// Async sources have no new chunk on most render ticks; the last frame
	// is repeated until one arrives
	holdLast bool
	last     *analysis.Frame
}

// NewLiveInput creates a live input capturing from device
func NewLiveInput(source FrameSource, device int, config analysis.ChainConfig) *LiveInput {
	l := &LiveInput{
		source: source,
		device: device,
		logger: logging.WithFields(logging.Fields{
			"component": "live_input",
		}),
	}
	_, l.holdLast = source.(*capture.AsyncSource)
	l.chain = analysis.NewChain(config)
	l.config = l.chain.Config()
	return l
}

func (l *LiveInput) Kind() SourceKind {
	return LiveMode
}

func (l *LiveInput) Activate() error {
	l.resetChain()
	l.active = true

	if l.device < 0 {
		l.logger.Warn("No capture device selected, producing silence")
		return capture.ErrNoDevices
	}
	if err := l.source.Open(l.device); err != nil {
		return fmt.Errorf("failed to activate live input: %w", err)
	}

	l.logger.Debug("Live input active", logging.Fields{"device": l.device})
	return nil
}

func (l *LiveInput) Deactivate() {
	if !l.active {
		return
	}
	l.active = false
	l.closeSource()
}

func (l *LiveInput) closeSource() {
	if err := l.source.Close(); err != nil {
		l.logger.Warn("Error closing capture source", logging.Fields{
			"device": l.device,
			"error":  err.Error(),
		})
	}
}

func (l *LiveInput) Pull(now time.Time) analysis.Frame {
	if !l.active {
		return analysis.SilentFrame(l.chain.Bins())
	}
	frame, ok := l.source.Pull()
	if !ok && l.holdLast && l.last != nil && l.source.State() == capture.StateActive {
		held := *l.last
		held.Beat = false
		return held
	}

	out := l.chain.Process(frame, now, ok)
	l.last = &out
	return out
}

func (l *LiveInput) Stats() analysis.BeatStats {
	return l.chain.Beat().Stats()
}

// ChangeDevice switches to device. The analysis history starts over.
func (l *LiveInput) ChangeDevice(device int) error {
	l.device = device
	l.resetChain()

	if !l.active {
		return nil
	}
	if device < 0 {
		l.closeSource()
		return capture.ErrNoDevices
	}
	return l.source.ChangeDevice(device)
}

// Device returns the selected device index
func (l *LiveInput) Device() int {
	return l.device
}

// AdjustSensitivity nudges the beat threshold multiplier and returns the
// new value
func (l *LiveInput) AdjustSensitivity(delta float64) float64 {
	s := l.chain.Beat().AdjustSensitivity(delta)
	l.config.Beat.Sensitivity = s
	return s
}

// Sensitivity returns the beat threshold multiplier
func (l *LiveInput) Sensitivity() float64 {
	return l.chain.Beat().Sensitivity()
}

// CaptureState returns the state of the underlying capture source
func (l *LiveInput) CaptureState() capture.State {
	return l.source.State()
}

func (l *LiveInput) resetChain() {
	l.config.Beat.Sensitivity = l.chain.Beat().Sensitivity()
	l.chain = analysis.NewChain(l.config)
	l.last = nil
}

// FileInput replays analysed tracks and owns the background loader
type FileInput struct {
	source *playback.FileSource
	loader *playback.Loader
	logger logging.Logger

	autoPlay bool
	lastErr  error
}

// NewFileInput creates a file input. Tracks are built by analyzer on a
// background goroutine.
func NewFileInput(source *playback.FileSource, analyzer playback.TrackLoader) *FileInput {
	return &FileInput{
		source: source,
		loader: playback.NewLoader(analyzer),
		logger: logging.WithFields(logging.Fields{
			"component": "file_input",
		}),
	}
}

func (f *FileInput) Kind() SourceKind {
	return FileMode
}

func (f *FileInput) Activate() error {
	return nil
}

// Deactivate stops playback. A load in flight keeps running and is
// installed when it completes.
func (f *FileInput) Deactivate() {
	f.source.Stop()
}

func (f *FileInput) Pull(now time.Time) analysis.Frame {
	return f.source.Pull(now)
}

func (f *FileInput) Stats() analysis.BeatStats {
	return f.source.Stats()
}

// Load starts analysing path in the background
func (f *FileInput) Load(path string) error {
	if err := f.loader.Start(path); err != nil {
		return err
	}
	f.source.Stop()
	f.lastErr = nil
	return nil
}

// Poll installs a finished load, if any, starting playback when auto play
// is on and play is set. It reports whether a result was collected.
func (f *FileInput) Poll(play bool) bool {
	result, ok := f.loader.Poll()
	if !ok {
		return false
	}

	if result.Err != nil {
		f.lastErr = result.Err
		f.source.ClearTrack()
		f.logger.Error(result.Err, "Track load failed", logging.Fields{
			"path": result.Path,
		})
		return true
	}

	if err := f.source.SetTrack(result.Track); err != nil {
		f.lastErr = err
		return true
	}

	if f.autoPlay && play {
		if err := f.source.Play(); err != nil {
			f.lastErr = err
		}
	}
	return true
}

// Loading reports whether a track is being analysed
func (f *FileInput) Loading() bool {
	return f.loader.Loading()
}

// LastError returns the error of the most recent load, if it failed
func (f *FileInput) LastError() error {
	return f.lastErr
}

// Source returns the underlying file source
func (f *FileInput) Source() *playback.FileSource {
	return f.source
}

// Close cancels any load and releases the player
func (f *FileInput) Close() error {
	f.loader.Close()
	return f.source.Close()
}
