package playback

import (
	"context"
	"sync"

	"github.com/RyanBlaney/sonido-vis/logging"
)

// TrackLoader builds a Track from a file path
type TrackLoader interface {
	LoadAndAnalyze(ctx context.Context, path string) (*Track, error)
}

// Result is the outcome of a background load
type Result struct {
	Path  string
	Track *Track
	Err   error
}

// Loader runs at most one track load in the background. The caller polls
// for the result without blocking.
type Loader struct {
	loader TrackLoader
	logger logging.Logger

	mu      sync.Mutex
	results chan Result
	cancel  context.CancelFunc
	path    string
}

// NewLoader creates a loader around loader
func NewLoader(loader TrackLoader) *Loader {
	return &Loader{
		loader: loader,
		logger: logging.WithFields(logging.Fields{
			"component": "track_loader",
		}),
	}
}

// Start begins loading path on a new goroutine. It returns ErrLoadInProgress
// while a previous load has not been collected by Poll.
func (l *Loader) Start(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.results != nil {
		return ErrLoadInProgress
	}

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan Result, 1)
	l.results, l.cancel, l.path = results, cancel, path

	l.logger.Debug("Starting background load", logging.Fields{"path": path})

	go func() {
		track, err := l.loader.LoadAndAnalyze(ctx, path)
		results <- Result{Path: path, Track: track, Err: err}
	}()

	return nil
}

// Poll returns the finished result, if any
func (l *Loader) Poll() (Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.results == nil {
		return Result{}, false
	}

	select {
	case r := <-l.results:
		l.cancel()
		l.results, l.cancel, l.path = nil, nil, ""
		return r, true
	default:
		return Result{}, false
	}
}

// Loading reports whether a load is in flight or waiting to be polled
func (l *Loader) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.results != nil
}

// Path returns the path being loaded, or "" when idle
func (l *Loader) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Cancel asks the running load to stop. Its result still has to be polled.
func (l *Loader) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
}

// Close cancels any running load and waits for its goroutine to finish
func (l *Loader) Close() {
	l.mu.Lock()
	results, cancel := l.results, l.cancel
	l.results, l.cancel, l.path = nil, nil, ""
	l.mu.Unlock()

	if results == nil {
		return
	}
	cancel()
	<-results
}
