package playback

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RyanBlaney/sonido-vis/logging"
	"github.com/RyanBlaney/sonido-vis/transcode"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// SpeakerPlayer plays tracks on the default audio output through beep's
// speaker. The streamed sample count, read under the speaker lock, is the
// playback clock.
type SpeakerPlayer struct {
	mu         sync.Mutex
	sampleRate beep.SampleRate
	bufferSize time.Duration
	ready      bool

	source    *transcode.MonoStreamer
	rate      beep.SampleRate // Track sample rate
	ctrl      *beep.Ctrl
	playing   bool
	finished  atomic.Bool
	resampled bool

	logger logging.Logger
}

// NewSpeakerPlayer creates a player for the given output rate. The speaker is
// initialised on the first Load.
func NewSpeakerPlayer(sampleRate int, bufferSize time.Duration) *SpeakerPlayer {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	if bufferSize <= 0 {
		bufferSize = 100 * time.Millisecond
	}
	return &SpeakerPlayer{
		sampleRate: beep.SampleRate(sampleRate),
		bufferSize: bufferSize,
		logger: logging.WithFields(logging.Fields{
			"component": "speaker_player",
		}),
	}
}

func (p *SpeakerPlayer) Load(track *Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if track == nil {
		return ErrNotAnalyzed
	}

	if !p.ready {
		if err := speaker.Init(p.sampleRate, p.sampleRate.N(p.bufferSize)); err != nil {
			return fmt.Errorf("failed to initialise audio output: %w", err)
		}
		p.ready = true
	}

	p.stopLocked()

	p.source = transcode.NewMonoStreamer(track.Samples)
	p.rate = beep.SampleRate(track.SampleRate)
	p.resampled = p.rate != p.sampleRate
	p.ctrl = nil

	p.logger.Debug("Track loaded for playback", logging.Fields{
		"path":        track.Path,
		"sample_rate": track.SampleRate,
		"resampled":   p.resampled,
	})
	return nil
}

func (p *SpeakerPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source == nil {
		return ErrNotAnalyzed
	}

	p.stopLocked()
	if err := p.source.Seek(0); err != nil {
		return err
	}

	var stream beep.Streamer = p.source
	if p.resampled {
		stream = beep.Resample(4, p.rate, p.sampleRate, p.source)
	}

	p.ctrl = &beep.Ctrl{Streamer: stream}
	p.finished.Store(false)
	p.playing = true

	speaker.Play(beep.Seq(p.ctrl, beep.Callback(func() {
		p.finished.Store(true)
	})))
	return nil
}

func (p *SpeakerPlayer) Pause() {
	p.setPaused(true)
}

func (p *SpeakerPlayer) Resume() {
	p.setPaused(false)
}

func (p *SpeakerPlayer) setPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctrl == nil {
		return
	}
	speaker.Lock()
	p.ctrl.Paused = paused
	speaker.Unlock()
}

func (p *SpeakerPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *SpeakerPlayer) stopLocked() {
	if !p.playing {
		return
	}
	speaker.Clear()
	p.playing = false
	p.ctrl = nil
}

func (p *SpeakerPlayer) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source == nil || !p.playing {
		return 0
	}

	speaker.Lock()
	pos := p.source.Position()
	speaker.Unlock()

	return p.rate.D(pos)
}

func (p *SpeakerPlayer) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing && !p.finished.Load()
}

func (p *SpeakerPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	if p.ready {
		speaker.Close()
		p.ready = false
	}
	return nil
}
