package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/RyanBlaney/sonido-vis/capture"
	"github.com/RyanBlaney/sonido-vis/config"
	"github.com/RyanBlaney/sonido-vis/logging"
	"github.com/RyanBlaney/sonido-vis/pipeline"
	"github.com/RyanBlaney/sonido-vis/playback"
	"github.com/RyanBlaney/sonido-vis/transcode"
	"golang.org/x/term"
)

func main() {
	var (
		settingsPath = flag.String("config", "settings.json", "JSON settings file")
		device       = flag.Int("device", -2, "capture device index (-1 selects automatically)")
		filePath     = flag.String("file", "", fmt.Sprintf("analyse and play this file instead of live input (%s natively, others through ffmpeg)",
			strings.Join(transcode.NativeFormats(), " ")))
		mute         = flag.Bool("mute", false, "replay files without audio output")
		listDevices  = flag.Bool("list-devices", false, "list capture devices and exit")
		logLevel     = flag.String("log-level", "", "debug, info, warn or error")
	)
	flag.Parse()

	if err := run(*settingsPath, *device, *filePath, *mute, *listDevices, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "sonido-vis: %v\n", err)
		os.Exit(1)
	}
}

func run(settingsPath string, device int, filePath string, mute, listDevices bool, logLevel string) error {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFile(settingsPath); err != nil {
		return err
	}
	cfg.ApplyEnv()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if device != -2 {
		cfg.DeviceIndex = device
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// The meter owns stdout
	logger := logging.NewWriterLogger(os.Stderr, os.Stderr)
	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)
	logging.SetGlobalLogger(logger)

	report, err := config.LoadSystemReport(cfg.ReportPath)
	if err != nil {
		logger.Warn("Ignoring unreadable system report", logging.Fields{
			"path":  cfg.ReportPath,
			"error": err.Error(),
		})
		report = &config.SystemReport{}
	}

	backend, selected := openBackend(cfg, report)
	if backend != nil {
		defer backend.Close()
	}

	if listDevices {
		return printDevices(backend)
	}

	var reportedFFmpeg string
	if report.FFmpegAvailable() {
		reportedFFmpeg = report.FFmpegPath()
	}

	live := pipeline.NewLiveInput(newFrameSource(cfg, backend), selected, cfg.Chain())
	file := pipeline.NewFileInput(
		playback.NewFileSource(newPlayer(cfg, mute), cfg.ChunkSize),
		newAnalyzer(cfg, resolveFFmpeg(context.Background(), cfg.FFmpegPath, reportedFFmpeg)),
	)

	mode := pipeline.LiveMode
	if filePath != "" {
		mode = pipeline.FileMode
	}
	p := pipeline.New(pipeline.Config{Mode: mode, AutoPlay: true}, live, file)
	defer p.Close()

	if filePath != "" {
		if err := p.LoadFile(filePath); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	keys, restore := readKeys(ctx)
	defer restore()

	devices := listInputs(backend)
	ticker := time.NewTicker(cfg.FrameInterval())
	defer ticker.Stop()

	meter := newMeter(os.Stdout)
	defer meter.Clear()

	for {
		select {
		case <-ctx.Done():
			return nil
		case key := <-keys:
			if quit := handleKey(p, key, devices); quit {
				return nil
			}
		case <-ticker.C:
			frame := p.Pull()
			meter.Render(frame, p.Stats(), p.Status())
		}
	}
}

// openBackend initialises PortAudio and picks the capture device. Without a
// backend live mode produces silence.
func openBackend(cfg *config.Config, report *config.SystemReport) (*capture.PortAudioBackend, int) {
	backend, err := capture.NewPortAudioBackend()
	if err != nil {
		logging.Warn("Audio input unavailable, live mode will be silent", logging.Fields{
			"error": err.Error(),
		})
		return nil, -1
	}

	devices, err := backend.Devices()
	if err != nil {
		logging.Warn("Failed to enumerate capture devices", logging.Fields{
			"error": err.Error(),
		})
		return backend, -1
	}

	defaultIndex, err := backend.DefaultDevice()
	if err != nil {
		defaultIndex = -1
	}

	selected := capture.SelectDevice(devices, defaultIndex, report, cfg.DeviceIndex)
	logging.Info("Selected capture device", logging.Fields{
		"device":      selected,
		"available":   len(devices),
		"microphones": report.MicrophoneNames(),
	})
	return backend, selected
}

func newFrameSource(cfg *config.Config, backend *capture.PortAudioBackend) pipeline.FrameSource {
	var opener capture.StreamOpener = noDevices{}
	if backend != nil {
		opener = backend
	}

	source := capture.NewLiveSource(opener, capture.LiveConfig{
		ChunkSize:  cfg.ChunkSize,
		SampleRate: cfg.SampleRate,
	})
	if cfg.AsyncCapture {
		return capture.NewAsyncSource(source, cfg.QueueDepth)
	}
	return source
}

func newPlayer(cfg *config.Config, mute bool) playback.Player {
	if mute {
		return playback.NewClockPlayer(nil)
	}
	return playback.NewSpeakerPlayer(cfg.SampleRate, 100*time.Millisecond)
}

func newAnalyzer(cfg *config.Config, ffmpeg string) *playback.TrackAnalyzer {
	return playback.NewDefaultAnalyzer(
		transcode.DefaultDecoderConfig().WithFFmpeg(ffmpeg),
		playback.AnalyzerConfig{
			SampleRate: cfg.SampleRate,
			FFTSize:    cfg.FFTSize,
			HopSize:    cfg.HopSize,
		},
	)
}

// resolveFFmpeg returns the first candidate binary that runs, or "" to
// decode native formats only
func resolveFFmpeg(ctx context.Context, candidates ...string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for _, path := range candidates {
		if path == "" {
			continue
		}
		decoder := transcode.NewDecoder(transcode.DefaultDecoderConfig().WithFFmpeg(path))
		if err := decoder.CheckFFmpegAvailability(ctx); err != nil {
			logging.Warn("Skipping unusable ffmpeg", logging.Fields{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		return path
	}

	logging.Info("ffmpeg unavailable, decoding native formats only", logging.Fields{
		"formats": transcode.NativeFormats(),
	})
	return ""
}

func listInputs(backend *capture.PortAudioBackend) []capture.Device {
	if backend == nil {
		return nil
	}
	devices, err := backend.Devices()
	if err != nil {
		return nil
	}
	return devices
}

func printDevices(backend *capture.PortAudioBackend) error {
	if backend == nil {
		return capture.ErrNoDevices
	}
	devices, err := backend.Devices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return capture.ErrNoDevices
	}
	for _, d := range devices {
		fmt.Println(d)
	}
	return nil
}

// noDevices is the opener used when no audio backend could be initialised
type noDevices struct{}

func (noDevices) OpenInput(int, float64, int) (capture.InputStream, error) {
	return nil, fmt.Errorf("%w: no audio backend", capture.ErrDeviceUnavailable)
}

// readKeys delivers single key presses from a terminal stdin. The returned
// function restores the terminal.
func readKeys(ctx context.Context) (<-chan byte, func()) {
	keys := make(chan byte, 8)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return keys, func() {}
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		logging.Warn("Keyboard controls unavailable", logging.Fields{"error": err.Error()})
		return keys, func() {}
	}

	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			select {
			case keys <- buf[0]:
			case <-ctx.Done():
				return
			}
		}
	}()

	return keys, func() { _ = term.Restore(fd, state) }
}

// handleKey applies a control key and reports whether to quit
func handleKey(p *pipeline.Pipeline, key byte, devices []capture.Device) bool {
	switch key {
	case 'x', 3, 27: // x, Ctrl-C, Esc
		return true
	case 'l':
		p.UseLive()
	case 'f':
		p.UseFile()
	case 'p':
		if err := p.TogglePlayPause(); err != nil && !errors.Is(err, playback.ErrNotAnalyzed) {
			logging.Warn("Play/pause failed", logging.Fields{"error": err.Error()})
		}
	case 'k':
		p.StopPlayback()
	case 'q':
		p.AdjustSensitivity(-0.1)
	case 'w':
		p.AdjustSensitivity(0.1)
	case 'd':
		if next, ok := nextDevice(devices, p.Status().Device); ok {
			if err := p.ChangeDevice(next); err != nil {
				logging.Warn("Device change failed", logging.Fields{
					"device": next,
					"error":  err.Error(),
				})
			}
		}
	}
	return false
}

// nextDevice returns the device listed after current, wrapping around
func nextDevice(devices []capture.Device, current int) (int, bool) {
	if len(devices) == 0 {
		return -1, false
	}
	for i, d := range devices {
		if d.Index == current {
			return devices[(i+1)%len(devices)].Index, true
		}
	}
	return devices[0].Index, true
}
