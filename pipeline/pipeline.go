package pipeline

import (
	"sync"
	"time"

	"github.com/RyanBlaney/sonido-vis/analysis"
	"github.com/RyanBlaney/sonido-vis/logging"
	"github.com/RyanBlaney/sonido-vis/playback"
)

// Config holds pipeline behaviour
type Config struct {
	// Mode is the source active after New
	Mode SourceKind `json:"mode"`
	// AutoPlay starts playback as soon as a loaded track is installed
	AutoPlay bool `json:"auto_play"`
}

// DefaultConfig starts in live mode without auto play
func DefaultConfig() Config {
	return Config{Mode: LiveMode}
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithClock sets the clock used to timestamp frames
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// Pipeline owns the live and file sources and hands the active one's frames
// to the renderer. Exactly one source is active at a time; the previous one
// is deactivated before the next starts. Methods are safe to call from an
// input goroutine while the render goroutine pulls.
type Pipeline struct {
	mu     sync.Mutex
	config Config
	now    func() time.Time
	logger logging.Logger

	live   *LiveInput
	file   *FileInput
	active Source // nil after Close
	mode   SourceKind
}

// New creates a pipeline and activates the source named by config.Mode
func New(config Config, live *LiveInput, file *FileInput, opts ...Option) *Pipeline {
	p := &Pipeline{
		config: config,
		now:    time.Now,
		live:   live,
		file:   file,
		logger: logging.WithFields(logging.Fields{
			"component": "pipeline",
		}),
	}
	for _, opt := range opts {
		opt(p)
	}
	file.autoPlay = config.AutoPlay

	initial := Source(live)
	if config.Mode == FileMode {
		initial = file
	}
	p.activate(initial)

	return p
}

// Pull returns the next frame from the active source. It also installs a
// track whose background load has finished.
func (p *Pipeline) Pull() analysis.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == nil {
		return analysis.SilentFrame(p.live.chain.Bins())
	}
	p.file.Poll(p.active == p.file)
	return p.active.Pull(p.now())
}

// UseLive switches to live capture
func (p *Pipeline) UseLive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.switchTo(p.live)
}

// UseFile switches to file playback
func (p *Pipeline) UseFile() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.switchTo(p.file)
}

// LoadFile switches to file mode and starts analysing path in the
// background. It returns playback.ErrLoadInProgress while a load runs, in
// which case the mode is unchanged.
func (p *Pipeline) LoadFile(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file.Loading() {
		return playback.ErrLoadInProgress
	}
	p.switchTo(p.file)
	if err := p.file.Load(path); err != nil {
		return err
	}

	p.logger.Info("Analysing file", logging.Fields{"path": path})
	return nil
}

// Loading reports whether a file is being analysed
func (p *Pipeline) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file.Loading()
}

// LastLoadError returns why the most recent load failed, or nil
func (p *Pipeline) LastLoadError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file.LastError()
}

// ChangeDevice selects a capture device. It takes effect immediately in live
// mode and on the next switch to live otherwise.
func (p *Pipeline) ChangeDevice(device int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Info("Changing capture device", logging.Fields{"device": device})
	return p.live.ChangeDevice(device)
}

// AdjustSensitivity changes the live beat sensitivity by delta and returns
// the new value
func (p *Pipeline) AdjustSensitivity(delta float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live.AdjustSensitivity(delta)
}

// TogglePlayPause toggles file playback. It is a no-op outside file mode.
func (p *Pipeline) TogglePlayPause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != p.file {
		return nil
	}
	return p.file.Source().TogglePlayPause()
}

// StopPlayback stops file playback
func (p *Pipeline) StopPlayback() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == p.file {
		p.file.Source().Stop()
	}
}

// Stats returns beat statistics of the active source
func (p *Pipeline) Stats() analysis.BeatStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == nil {
		return analysis.BeatStats{}
	}
	return p.active.Stats()
}

// Active returns the kind of the active source
func (p *Pipeline) Active() SourceKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Status summarises the pipeline for display
type Status struct {
	Mode        SourceKind     `json:"mode"`
	Loading     bool           `json:"loading"`
	Playback    playback.State `json:"playback"`
	Track       string         `json:"track,omitempty"`
	Device      int            `json:"device"`
	Sensitivity float64        `json:"sensitivity"`
	LoadError   error          `json:"-"`
}

// Status returns the current status
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := Status{
		Mode:        p.mode,
		Loading:     p.file.Loading(),
		Playback:    p.file.Source().State(),
		Device:      p.live.Device(),
		Sensitivity: p.live.Sensitivity(),
		LoadError:   p.file.LastError(),
	}
	if track := p.file.Source().Track(); track != nil {
		status.Track = track.Path
	}
	return status
}

// Close deactivates the active source and releases both
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != nil {
		p.active.Deactivate()
		p.active = nil
	}
	p.live.Deactivate()
	return p.file.Close()
}

func (p *Pipeline) switchTo(next Source) {
	if p.active == next {
		return
	}

	prev := p.active
	if prev != nil {
		prev.Deactivate()
	}
	p.activate(next)

	fields := logging.Fields{"to": next.Kind().String()}
	if prev != nil {
		fields["from"] = prev.Kind().String()
	}
	p.logger.Info("Switched source", fields)
}

// activate starts next. Failures are logged by the source itself and leave
// it producing silence.
func (p *Pipeline) activate(next Source) {
	p.active = next
	p.mode = next.Kind()
	_ = next.Activate()
}
