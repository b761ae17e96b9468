package playback

import (
	"math"
	"time"

	"github.com/RyanBlaney/sonido-vis/algorithms/common"
	"github.com/RyanBlaney/sonido-vis/analysis"
	"github.com/RyanBlaney/sonido-vis/logging"
)

// State is the playback state
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// FileSource replays an analysed track. Each pull maps the player clock onto
// the precomputed spectrogram and beat list. It is not safe for concurrent use.
type FileSource struct {
	player    Player
	chunkSize int
	logger    logging.Logger

	track *Track
	state State

	beatCursor int
	beats      int
	lastBeat   time.Time
}

// NewFileSource creates a file source. chunkSize sizes the silent frame
// returned before a track is loaded.
func NewFileSource(player Player, chunkSize int) *FileSource {
	if chunkSize <= 0 {
		chunkSize = 2048
	}
	return &FileSource{
		player:    player,
		chunkSize: chunkSize,
		logger: logging.WithFields(logging.Fields{
			"component": "file_source",
		}),
	}
}

// SetTrack installs a freshly analysed track, stopping any playback. On
// failure the source is left without a track.
func (fs *FileSource) SetTrack(track *Track) error {
	fs.ClearTrack()
	if track == nil {
		return ErrNotAnalyzed
	}
	if err := fs.player.Load(track); err != nil {
		fs.logger.Error(err, "Failed to load track into player", logging.Fields{
			"path": track.Path,
		})
		return err
	}

	fs.track = track
	fs.logger.Info("Track ready", logging.Fields{
		"path":     track.Path,
		"duration": track.Duration.Seconds(),
		"beats":    len(track.BeatTimes),
	})
	return nil
}

// ClearTrack stops playback and drops the loaded track
func (fs *FileSource) ClearTrack() {
	fs.Stop()
	fs.track = nil
	fs.beatCursor, fs.beats = 0, 0
	fs.lastBeat = time.Time{}
}

// IsAnalyzed reports whether a track is loaded
func (fs *FileSource) IsAnalyzed() bool {
	return fs.track != nil
}

// Track returns the loaded track
func (fs *FileSource) Track() *Track {
	return fs.track
}

// State returns the playback state
func (fs *FileSource) State() State {
	return fs.state
}

// Play starts playback, or resumes it when paused. Starting from Stopped
// rewinds the beat cursor and count.
func (fs *FileSource) Play() error {
	if fs.track == nil {
		return ErrNotAnalyzed
	}

	switch fs.state {
	case Playing:
		return nil
	case Paused:
		fs.player.Resume()
	case Stopped:
		fs.beatCursor, fs.beats = 0, 0
		fs.lastBeat = time.Time{}
		if err := fs.player.Play(); err != nil {
			return err
		}
	}

	fs.state = Playing
	return nil
}

// Pause pauses playback
func (fs *FileSource) Pause() {
	if fs.track == nil || fs.state != Playing {
		return
	}
	fs.player.Pause()
	fs.state = Paused
}

// TogglePlayPause pauses when playing, otherwise plays
func (fs *FileSource) TogglePlayPause() error {
	if fs.state == Playing {
		fs.Pause()
		return nil
	}
	return fs.Play()
}

// Stop halts playback
func (fs *FileSource) Stop() {
	if fs.track == nil || fs.state == Stopped {
		return
	}
	fs.player.Stop()
	fs.state = Stopped
}

// Close stops playback and releases the player
func (fs *FileSource) Close() error {
	fs.Stop()
	return fs.player.Close()
}

// Pull returns the frame for the current playback position. Outside Playing,
// or once the player has run out, it returns a silent frame; running out also
// moves the source to Stopped.
func (fs *FileSource) Pull(now time.Time) analysis.Frame {
	if fs.track == nil || fs.state != Playing {
		return analysis.SilentFrame(fs.bins())
	}

	if !fs.player.Busy() {
		fs.state = Stopped
		fs.logger.Debug("Playback finished", logging.Fields{"beats": fs.beats})
		return analysis.SilentFrame(fs.bins())
	}

	cols := fs.track.Columns()
	duration := fs.track.Duration.Seconds()
	if cols == 0 || duration <= 0 {
		return analysis.SilentFrame(fs.bins())
	}

	elapsed := fs.player.Elapsed().Seconds()
	col := common.ClampInt(int(math.Floor(elapsed*float64(cols)/duration)), 0, cols-1)
	spectrum := common.MinMaxScale(fs.track.Spectrogram[col], 0, 100)

	beat := false
	if fs.beatCursor < len(fs.track.BeatTimes) && fs.track.BeatTimes[fs.beatCursor] <= elapsed {
		beat = true
		fs.beatCursor++
		fs.beats++
		fs.lastBeat = now
	}

	return analysis.Frame{
		Spectrum: spectrum,
		Beat:     beat,
		Level:    common.Mean(spectrum),
		Peak:     maxOf(spectrum),
		Active:   true,
	}
}

// Stats reports beats played since the last start. BPM is beats per elapsed
// minute of playback.
func (fs *FileSource) Stats() analysis.BeatStats {
	stats := analysis.BeatStats{
		Total:    fs.beats,
		LastBeat: fs.lastBeat,
	}
	if fs.state != Stopped {
		if minutes := fs.player.Elapsed().Minutes(); minutes > 0 && fs.beats > 0 {
			stats.BPM = float64(fs.beats) / minutes
		}
	}
	return stats
}

// Elapsed returns the playback position
func (fs *FileSource) Elapsed() time.Duration {
	if fs.state == Stopped {
		return 0
	}
	return fs.player.Elapsed()
}

func (fs *FileSource) bins() int {
	if fs.track != nil && fs.track.Bins() > 0 {
		return fs.track.Bins()
	}
	return fs.chunkSize / 2
}

func maxOf(values []float64) float64 {
	peak := 0.0
	for _, v := range values {
		peak = math.Max(peak, v)
	}
	return peak
}
