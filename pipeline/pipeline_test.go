package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-vis/analysis"
	"github.com/RyanBlaney/sonido-vis/capture"
	"github.com/RyanBlaney/sonido-vis/logging"
	"github.com/RyanBlaney/sonido-vis/playback"
)

func init() {
	logging.SetGlobalLogger(&logging.NoOpLogger{})
}

// recorder tracks which sources are producing audio
type recorder struct {
	mu      sync.Mutex
	events  []string
	running int
	overlap bool
}

func (r *recorder) start(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.running++
	if r.running > 1 {
		r.overlap = true
	}
}

func (r *recorder) stop(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.running--
}

type fakeCapture struct {
	rec      *recorder
	state    capture.State
	device   int
	changes  []int
	closeErr error
}

func (c *fakeCapture) Open(device int) error {
	if c.state == capture.StateActive {
		c.rec.stop("live.close")
	}
	c.device = device
	c.state = capture.StateActive
	c.rec.start("live.open")
	return nil
}

func (c *fakeCapture) ChangeDevice(device int) error {
	c.changes = append(c.changes, device)
	return c.Open(device)
}

func (c *fakeCapture) Pull() (analysis.SampleFrame, bool) {
	if c.state != capture.StateActive {
		return analysis.ZeroFrame(2048, 44100), false
	}
	frame := analysis.ZeroFrame(2048, 44100)
	for i := range frame.Samples {
		frame.Samples[i] = 16383.5
	}
	return frame, true
}

func (c *fakeCapture) Close() error {
	if c.state == capture.StateActive {
		c.rec.stop("live.close")
	}
	c.state = capture.StateStopped
	return c.closeErr
}

func (c *fakeCapture) State() capture.State {
	return c.state
}

type fakePlayer struct {
	rec     *recorder
	playing bool
	elapsed time.Duration
}

func (p *fakePlayer) Load(track *playback.Track) error { return nil }
func (p *fakePlayer) Play() error {
	p.playing = true
	p.rec.start("file.play")
	return nil
}
func (p *fakePlayer) Pause()  {}
func (p *fakePlayer) Resume() {}
func (p *fakePlayer) Stop() {
	if p.playing {
		p.playing = false
		p.rec.stop("file.stop")
	}
}
func (p *fakePlayer) Elapsed() time.Duration { return p.elapsed }
func (p *fakePlayer) Busy() bool             { return p.playing }
func (p *fakePlayer) Close() error           { return nil }

// fakeAnalyzer returns a fixed track, or err, once released. Loads of
// failPath always fail.
type fakeAnalyzer struct {
	release  chan struct{}
	err      error
	failPath string
}

func (a *fakeAnalyzer) LoadAndAnalyze(ctx context.Context, path string) (*playback.Track, error) {
	if a.release != nil {
		select {
		case <-a.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	if path == a.failPath {
		return nil, playback.ErrDecodeFailure
	}
	return &playback.Track{
		Path:        path,
		SampleRate:  44100,
		Duration:    2 * time.Second,
		Spectrogram: [][]float64{{-80, 0}, {0, -80}},
		BeatTimes:   []float64{0.5},
	}, nil
}

type harness struct {
	rec      *recorder
	capture  *fakeCapture
	player   *fakePlayer
	analyzer *fakeAnalyzer
	pipeline *Pipeline
}

func newHarness(t *testing.T, config Config, analyzer *fakeAnalyzer) *harness {
	t.Helper()
	rec := &recorder{}
	h := &harness{
		rec:      rec,
		capture:  &fakeCapture{rec: rec, device: -1},
		player:   &fakePlayer{rec: rec},
		analyzer: analyzer,
	}

	live := NewLiveInput(h.capture, 3, analysis.DefaultChainConfig())
	file := NewFileInput(playback.NewFileSource(h.player, 2048), analyzer)

	clock := time.Unix(1000, 0)
	h.pipeline = New(config, live, file, WithClock(func() time.Time {
		clock = clock.Add(16 * time.Millisecond)
		return clock
	}))
	t.Cleanup(func() { h.pipeline.Close() })
	return h
}

// waitLoaded pulls frames until the background load has been installed
func (h *harness) waitLoaded(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.pipeline.Loading() {
		if time.Now().After(deadline) {
			t.Fatal("load did not finish")
		}
		h.pipeline.Pull()
		time.Sleep(time.Millisecond)
	}
}

func TestStartsInLiveMode(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &fakeAnalyzer{})

	if h.pipeline.Active() != LiveMode {
		t.Fatalf("expected live mode, got %v", h.pipeline.Active())
	}
	if h.capture.device != 3 || h.capture.state != capture.StateActive {
		t.Errorf("expected device 3 to be open, got %d (%v)", h.capture.device, h.capture.state)
	}

	frame := h.pipeline.Pull()
	if !frame.Active || len(frame.Spectrum) != 1024 {
		t.Errorf("expected an active 1024-bin frame, got active=%v bins=%d", frame.Active, len(frame.Spectrum))
	}
	if frame.Level < 49.9 || frame.Level > 50.1 {
		t.Errorf("expected level of about 50, got %v", frame.Level)
	}
}

func TestSourceSwitchExclusivity(t *testing.T) {
	h := newHarness(t, Config{Mode: LiveMode, AutoPlay: true}, &fakeAnalyzer{})

	if err := h.pipeline.LoadFile("song.wav"); err != nil {
		t.Fatal(err)
	}
	if h.pipeline.Active() != FileMode {
		t.Fatal("LoadFile should switch to file mode")
	}
	h.waitLoaded(t)

	if !h.player.playing {
		t.Fatal("expected auto play after load")
	}
	if frame := h.pipeline.Pull(); !frame.Active || len(frame.Spectrum) != 2 {
		t.Errorf("expected an active 2-bin file frame, got %+v", frame)
	}

	h.pipeline.UseLive()
	h.pipeline.UseFile()
	h.pipeline.UseLive()

	if h.rec.overlap {
		t.Errorf("two sources were running at once: %v", h.rec.events)
	}

	want := []string{"live.open", "live.close", "file.play", "file.stop", "live.open", "live.close", "live.open"}
	if len(h.rec.events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, h.rec.events)
	}
	for i := range want {
		if h.rec.events[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, h.rec.events)
		}
	}
}

func TestSwitchToActiveSourceIsNoOp(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &fakeAnalyzer{})

	h.pipeline.UseLive()
	h.pipeline.UseLive()

	if len(h.rec.events) != 1 {
		t.Errorf("expected a single open, got %v", h.rec.events)
	}
}

func TestLoadFileRejectedWhileLoading(t *testing.T) {
	analyzer := &fakeAnalyzer{release: make(chan struct{})}
	h := newHarness(t, DefaultConfig(), analyzer)

	if err := h.pipeline.LoadFile("a.wav"); err != nil {
		t.Fatal(err)
	}
	if !h.pipeline.Loading() {
		t.Error("expected the analysing indicator")
	}
	if err := h.pipeline.LoadFile("b.wav"); !errors.Is(err, playback.ErrLoadInProgress) {
		t.Errorf("expected ErrLoadInProgress, got %v", err)
	}

	// Frames stay silent until the track is installed
	if frame := h.pipeline.Pull(); frame.Active {
		t.Error("expected a silent frame while loading")
	}

	close(analyzer.release)
	h.waitLoaded(t)

	status := h.pipeline.Status()
	if status.Track != "a.wav" || status.Mode != FileMode {
		t.Errorf("unexpected status %+v", status)
	}
	if status.Playback != playback.Stopped {
		t.Errorf("expected playback to wait without auto play, got %v", status.Playback)
	}
}

func TestLoadFailureRecorded(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &fakeAnalyzer{err: playback.ErrDecodeFailure})

	if err := h.pipeline.LoadFile("broken.mp3"); err != nil {
		t.Fatal(err)
	}
	h.waitLoaded(t)

	if err := h.pipeline.LastLoadError(); !errors.Is(err, playback.ErrDecodeFailure) {
		t.Errorf("expected ErrDecodeFailure, got %v", err)
	}
	if h.pipeline.Active() != FileMode {
		t.Error("expected to stay in file mode")
	}
	if err := h.pipeline.TogglePlayPause(); !errors.Is(err, playback.ErrNotAnalyzed) {
		t.Errorf("expected ErrNotAnalyzed, got %v", err)
	}
}

func TestLoadCompletingInLiveModeDoesNotPlay(t *testing.T) {
	analyzer := &fakeAnalyzer{release: make(chan struct{})}
	h := newHarness(t, Config{Mode: LiveMode, AutoPlay: true}, analyzer)

	if err := h.pipeline.LoadFile("a.wav"); err != nil {
		t.Fatal(err)
	}
	h.pipeline.UseLive()

	close(analyzer.release)
	h.waitLoaded(t)

	if h.player.playing {
		t.Error("track should not play while live mode is active")
	}
	if h.rec.overlap {
		t.Errorf("two sources were running at once: %v", h.rec.events)
	}
}

func TestChangeDeviceKeepsSensitivity(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &fakeAnalyzer{})

	if s := h.pipeline.AdjustSensitivity(0.5); s != 2.0 {
		t.Fatalf("expected 2.0, got %v", s)
	}
	if err := h.pipeline.ChangeDevice(5); err != nil {
		t.Fatal(err)
	}

	if len(h.capture.changes) != 1 || h.capture.changes[0] != 5 {
		t.Errorf("expected a change to device 5, got %v", h.capture.changes)
	}
	status := h.pipeline.Status()
	if status.Device != 5 || status.Sensitivity != 2.0 {
		t.Errorf("unexpected status %+v", status)
	}

	if s := h.pipeline.AdjustSensitivity(5); s != analysis.MaxSensitivity {
		t.Errorf("expected clamp to %v, got %v", analysis.MaxSensitivity, s)
	}
}

func TestChangeDeviceInFileModeDefersOpen(t *testing.T) {
	h := newHarness(t, Config{Mode: FileMode}, &fakeAnalyzer{})

	if h.capture.state == capture.StateActive {
		t.Fatal("capture should not start in file mode")
	}
	if err := h.pipeline.ChangeDevice(7); err != nil {
		t.Fatal(err)
	}
	if len(h.capture.changes) != 0 {
		t.Error("device should not be opened outside live mode")
	}

	h.pipeline.UseLive()
	if h.capture.device != 7 {
		t.Errorf("expected device 7 on switch, got %d", h.capture.device)
	}
}

func TestPlaybackControlsIgnoredInLiveMode(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &fakeAnalyzer{})

	if err := h.pipeline.TogglePlayPause(); err != nil {
		t.Errorf("expected a no-op, got %v", err)
	}
	h.pipeline.StopPlayback()

	if h.player.playing {
		t.Error("player should not start in live mode")
	}
}

func TestStatsFollowActiveSource(t *testing.T) {
	h := newHarness(t, Config{Mode: FileMode, AutoPlay: true}, &fakeAnalyzer{})

	if err := h.pipeline.LoadFile("song.wav"); err != nil {
		t.Fatal(err)
	}
	h.waitLoaded(t)

	h.player.elapsed = 600 * time.Millisecond
	if frame := h.pipeline.Pull(); !frame.Beat {
		t.Fatal("expected the beat at 0.5s")
	}
	if stats := h.pipeline.Stats(); stats.Total != 1 {
		t.Errorf("expected 1 file beat, got %d", stats.Total)
	}

	h.pipeline.UseLive()
	if stats := h.pipeline.Stats(); stats.Total != 0 {
		t.Errorf("expected fresh live stats, got %d", stats.Total)
	}
}

// chunkStream delivers one full-scale chunk per value sent on chunks
type chunkStream struct {
	chunks chan int16
}

func (s *chunkStream) Read(dst []int16) error {
	v, ok := <-s.chunks
	if !ok {
		return capture.ErrTransientIO
	}
	for i := range dst {
		dst[i] = v
	}
	return nil
}

func (s *chunkStream) Close() error { return nil }

type chunkOpener struct {
	stream *chunkStream
}

func (o chunkOpener) OpenInput(device int, sampleRate float64, frames int) (capture.InputStream, error) {
	return o.stream, nil
}

func TestAsyncLiveInputHoldsLastFrame(t *testing.T) {
	stream := &chunkStream{chunks: make(chan int16)}
	source := capture.NewAsyncSource(capture.NewLiveSource(chunkOpener{stream}, capture.DefaultLiveConfig()), 2)
	live := NewLiveInput(source, 0, analysis.DefaultChainConfig())

	if err := live.Activate(); err != nil {
		t.Fatal(err)
	}
	defer live.Deactivate()
	defer close(stream.chunks)

	now := time.Unix(0, 0)
	if frame := live.Pull(now); frame.Active {
		t.Fatal("no chunk was captured yet")
	}

	stream.chunks <- 16383
	deadline := time.Now().Add(2 * time.Second)
	var frame analysis.Frame
	for !frame.Active {
		if time.Now().After(deadline) {
			t.Fatal("captured chunk never arrived")
		}
		time.Sleep(time.Millisecond)
		frame = live.Pull(now)
	}

	for range 3 {
		held := live.Pull(now)
		if !held.Active || held.Beat || held.Level != frame.Level {
			t.Errorf("expected the last frame to be held, got active=%v beat=%v level=%v", held.Active, held.Beat, held.Level)
		}
	}
}

func TestFailedReloadClearsPreviousTrack(t *testing.T) {
	h := newHarness(t, Config{Mode: FileMode}, &fakeAnalyzer{failPath: "broken.mp3"})

	if err := h.pipeline.LoadFile("good.wav"); err != nil {
		t.Fatal(err)
	}
	h.waitLoaded(t)
	if got := h.pipeline.Status().Track; got != "good.wav" {
		t.Fatalf("expected good.wav installed, got %q", got)
	}
	if err := h.pipeline.TogglePlayPause(); err != nil {
		t.Fatal(err)
	}

	if err := h.pipeline.LoadFile("broken.mp3"); err != nil {
		t.Fatal(err)
	}
	h.waitLoaded(t)

	if err := h.pipeline.LastLoadError(); !errors.Is(err, playback.ErrDecodeFailure) {
		t.Errorf("expected ErrDecodeFailure, got %v", err)
	}
	status := h.pipeline.Status()
	if status.Track != "" || status.Playback != playback.Stopped {
		t.Errorf("expected no track after the failed load, got %+v", status)
	}
	if err := h.pipeline.TogglePlayPause(); !errors.Is(err, playback.ErrNotAnalyzed) {
		t.Errorf("expected ErrNotAnalyzed, got %v", err)
	}
	if h.player.playing {
		t.Error("the previous track should not be playing")
	}
	if frame := h.pipeline.Pull(); frame.Active {
		t.Error("expected silent frames without a track")
	}
}

// countingLogger counts warnings and errors
type countingLogger struct {
	mu       sync.Mutex
	warnings int
	errors   int
}

func (l *countingLogger) Debug(msg string, fields ...logging.Fields) {}
func (l *countingLogger) Info(msg string, fields ...logging.Fields)  {}
func (l *countingLogger) Warn(msg string, fields ...logging.Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings++
}
func (l *countingLogger) Error(err error, msg string, fields ...logging.Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors++
}
func (l *countingLogger) Fatal(err error, msg string, fields ...logging.Fields) {}
func (l *countingLogger) WithFields(fields logging.Fields) logging.Logger     { return l }
func (l *countingLogger) WithContext(ctx context.Context) logging.Logger      { return l }
func (l *countingLogger) SetLevel(level logging.Level)                        {}

func (l *countingLogger) reports() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.warnings + l.errors
}

func useCountingLogger(t *testing.T) *countingLogger {
	t.Helper()
	logger := &countingLogger{}
	logging.SetGlobalLogger(logger)
	t.Cleanup(func() { logging.SetGlobalLogger(&logging.NoOpLogger{}) })
	return logger
}

type failingOpener struct{}

func (failingOpener) OpenInput(device int, sampleRate float64, frames int) (capture.InputStream, error) {
	return nil, fmt.Errorf("%w: unplugged", capture.ErrDeviceUnavailable)
}

func TestOpenFailureReportedOnce(t *testing.T) {
	logger := useCountingLogger(t)

	source := capture.NewLiveSource(failingOpener{}, capture.DefaultLiveConfig())
	live := NewLiveInput(source, 2, analysis.DefaultChainConfig())
	file := NewFileInput(playback.NewFileSource(&fakePlayer{rec: &recorder{}}, 2048), &fakeAnalyzer{})
	p := New(DefaultConfig(), live, file)
	defer p.Close()

	if got := logger.reports(); got != 1 {
		t.Errorf("expected one report for the failed open, got %d", got)
	}
	if source.State() != capture.StateError {
		t.Errorf("expected StateError, got %v", source.State())
	}
	if frame := p.Pull(); frame.Active {
		t.Error("expected silence from a failed device")
	}
}

func TestChangeDeviceLogsCloseError(t *testing.T) {
	logger := useCountingLogger(t)
	h := newHarness(t, DefaultConfig(), &fakeAnalyzer{})
	h.capture.closeErr = errors.New("stream busy")

	if err := h.pipeline.ChangeDevice(-1); !errors.Is(err, capture.ErrNoDevices) {
		t.Errorf("expected ErrNoDevices, got %v", err)
	}
	if got := logger.reports(); got != 1 {
		t.Errorf("expected the close error to be logged once, got %d", got)
	}
	if h.capture.state != capture.StateStopped {
		t.Error("expected the stream to be closed")
	}
}

func TestQueriesAfterClose(t *testing.T) {
	h := newHarness(t, Config{Mode: FileMode}, &fakeAnalyzer{})
	if err := h.pipeline.Close(); err != nil {
		t.Fatal(err)
	}

	if stats := h.pipeline.Stats(); stats.Total != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}
	if mode := h.pipeline.Active(); mode != FileMode {
		t.Errorf("expected the last mode, got %v", mode)
	}
	if status := h.pipeline.Status(); status.Mode != FileMode {
		t.Errorf("unexpected status %+v", status)
	}
	if frame := h.pipeline.Pull(); frame.Active {
		t.Error("expected a silent frame after Close")
	}
}
