package capture

import (
	"context"
	"sync"
	"time"

	"github.com/RyanBlaney/sonido-vis/analysis"
	"github.com/RyanBlaney/sonido-vis/logging"
)

// DefaultQueueDepth is the number of frames buffered between the capture
// goroutine and the consumer
const DefaultQueueDepth = 2

// AsyncSource moves blocking reads of a LiveSource onto a producer goroutine.
// Pull never blocks: it returns the newest complete frame and discards older
// ones.
type AsyncSource struct {
	source *LiveSource
	depth  int
	logger logging.Logger

	mu     sync.Mutex
	frames chan analysis.SampleFrame
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAsyncSource wraps source with a bounded frame queue of the given depth
func NewAsyncSource(source *LiveSource, depth int) *AsyncSource {
	if depth < 1 {
		depth = DefaultQueueDepth
	}
	return &AsyncSource{
		source: source,
		depth:  depth,
		logger: logging.WithFields(logging.Fields{
			"component": "async_capture",
		}),
	}
}

// Open opens device on the underlying source and starts the producer
func (a *AsyncSource) Open(device int) error {
	a.stop()
	err := a.source.Open(device)
	a.start()
	return err
}

// ChangeDevice stops the producer, reopens the source and restarts it
func (a *AsyncSource) ChangeDevice(device int) error {
	return a.Open(device)
}

// Pull returns the most recent queued frame, or a silent frame and false when
// none is ready
func (a *AsyncSource) Pull() (analysis.SampleFrame, bool) {
	a.mu.Lock()
	frames := a.frames
	a.mu.Unlock()

	if frames == nil {
		return a.source.zero(), false
	}

	var (
		latest analysis.SampleFrame
		got    bool
	)
drain:
	for {
		select {
		case f := <-frames:
			latest, got = f, true
		default:
			break drain
		}
	}

	if !got {
		return a.source.zero(), false
	}
	return latest, true
}

// Close stops the producer and the underlying stream
func (a *AsyncSource) Close() error {
	a.stop()
	return a.source.Close()
}

// State returns the underlying source state
func (a *AsyncSource) State() State {
	return a.source.State()
}

// Running reports whether the producer goroutine is active
func (a *AsyncSource) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done != nil
}

func (a *AsyncSource) start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	a.frames = make(chan analysis.SampleFrame, a.depth)
	a.cancel = cancel
	a.done = make(chan struct{})

	go a.produce(ctx, a.frames, a.done)
}

// stop cancels the producer and waits for it; a read in progress finishes first
func (a *AsyncSource) stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done, a.frames = nil, nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (a *AsyncSource) produce(ctx context.Context, frames chan analysis.SampleFrame, done chan struct{}) {
	defer close(done)

	cfg := a.source.Config()
	idle := time.Duration(cfg.ChunkSize) * time.Second / time.Duration(cfg.SampleRate)
	dropped := 0

	for {
		if ctx.Err() != nil {
			a.logger.Debug("Capture producer stopped", logging.Fields{"dropped": dropped})
			return
		}

		frame, ok := a.source.Pull()
		if !ok {
			// Nothing to read: wait one chunk period instead of spinning
			select {
			case <-ctx.Done():
			case <-time.After(idle):
			}
			continue
		}

		select {
		case frames <- frame:
			continue
		default:
		}

		// Queue full: evict the oldest frame
		select {
		case <-frames:
			dropped++
		default:
		}
		select {
		case frames <- frame:
		default:
			dropped++
		}
	}
}
