package playback

import (
	"sync"
	"time"
)

// Player plays a loaded track and acts as the playback clock
type Player interface {
	// Load prepares track for playback, stopping anything playing
	Load(track *Track) error
	// Play starts from the beginning
	Play() error
	Pause()
	Resume()
	Stop()
	// Elapsed returns the playback position
	Elapsed() time.Duration
	// Busy reports whether audio is playing or paused before the end
	Busy() bool
	Close() error
}

// ClockPlayer is a silent Player driven by a clock. It keeps file mode
// usable on hosts without an audio output.
type ClockPlayer struct {
	mu  sync.Mutex
	now func() time.Time

	duration time.Duration
	loaded   bool
	playing  bool
	paused   bool
	started  time.Time
	offset   time.Duration
}

// NewClockPlayer creates a clock player. A nil now uses time.Now.
func NewClockPlayer(now func() time.Time) *ClockPlayer {
	if now == nil {
		now = time.Now
	}
	return &ClockPlayer{now: now}
}

func (p *ClockPlayer) Load(track *Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if track == nil {
		return ErrNotAnalyzed
	}
	p.duration = track.Duration
	p.loaded = true
	p.playing, p.paused, p.offset = false, false, 0
	return nil
}

func (p *ClockPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		return ErrNotAnalyzed
	}
	p.playing, p.paused = true, false
	p.offset = 0
	p.started = p.now()
	return nil
}

func (p *ClockPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playing && !p.paused {
		p.offset += p.now().Sub(p.started)
		p.paused = true
	}
}

func (p *ClockPlayer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playing && p.paused {
		p.started = p.now()
		p.paused = false
	}
}

func (p *ClockPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.playing, p.paused, p.offset = false, false, 0
}

func (p *ClockPlayer) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsed()
}

func (p *ClockPlayer) elapsed() time.Duration {
	if !p.playing {
		return 0
	}
	e := p.offset
	if !p.paused {
		e += p.now().Sub(p.started)
	}
	return min(e, p.duration)
}

func (p *ClockPlayer) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing && p.elapsed() < p.duration
}

func (p *ClockPlayer) Close() error {
	p.Stop()
	return nil
}
