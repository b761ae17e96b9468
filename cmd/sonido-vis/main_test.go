package main

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RyanBlaney/sonido-vis/analysis"
	"github.com/RyanBlaney/sonido-vis/capture"
	"github.com/RyanBlaney/sonido-vis/logging"
	"github.com/RyanBlaney/sonido-vis/pipeline"
	"github.com/RyanBlaney/sonido-vis/playback"
	"github.com/charmbracelet/lipgloss"
)

// plain renders without colour, as on a non-terminal writer
var plain = newPalette(lipgloss.NewRenderer(io.Discard))

func init() {
	logging.SetGlobalLogger(&logging.NoOpLogger{})
}

func TestSpectrumBars(t *testing.T) {
	tests := []struct {
		name     string
		spectrum []float64
		n        int
		want     string
	}{
		{"empty spectrum", nil, 4, "    "},
		{"silence", make([]float64, 16), 4, "    "},
		{"full scale", []float64{100, 100, 100, 100}, 2, "██"},
		{"clamped", []float64{250, -10}, 2, "█ "},
		{"zero width", []float64{50}, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := spectrumBars(tt.spectrum, tt.n, plain); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSpectrumBarsWidth(t *testing.T) {
	spectrum := make([]float64, 1024)
	for i := range spectrum {
		spectrum[i] = float64(i % 101)
	}

	for _, n := range []int{1, 7, 40, 200} {
		if got := lipgloss.Width(spectrumBars(spectrum, n, plain)); got != n {
			t.Errorf("n=%d: expected %d glyphs, got %d", n, n, got)
		}
	}
}

func TestFormatLine(t *testing.T) {
	frame := analysis.Frame{Spectrum: make([]float64, 8), Beat: true, Level: 42, Peak: 80, Active: true}
	stats := analysis.BeatStats{Total: 3, BPM: 120}

	line := formatLine(frame, stats, pipeline.Status{Mode: pipeline.LiveMode, Device: 2, Sensitivity: 1.5}, 100, plain)
	for _, want := range []string{"[LIVE dev 2 sens 1.5]", "●", "lvl  42", "pk  80", "bpm 120.0", "beats 3", "|"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %q", want, line)
		}
	}
	if got := lipgloss.Width(line); got != 100 {
		t.Errorf("expected the line to fill 100 columns, got %d", got)
	}

	loading := formatLine(frame, stats, pipeline.Status{Mode: pipeline.FileMode, Loading: true}, 100, plain)
	if !strings.Contains(loading, "[FILE analysing]") {
		t.Errorf("expected the analysing indicator, got %q", loading)
	}

	failed := formatLine(frame, stats, pipeline.Status{Mode: pipeline.FileMode, LoadError: errors.New("boom")}, 100, plain)
	if !strings.Contains(failed, "load failed") {
		t.Errorf("expected the load error, got %q", failed)
	}

	paused := formatLine(frame, stats, pipeline.Status{Mode: pipeline.FileMode, Playback: playback.Paused}, 100, plain)
	if !strings.Contains(paused, "[FILE paused]") {
		t.Errorf("expected the playback state, got %q", paused)
	}

	if narrow := formatLine(frame, stats, pipeline.Status{}, 20, plain); strings.Contains(narrow, "|") {
		t.Errorf("expected no spectrum on a narrow terminal, got %q", narrow)
	}
}

func TestNextDevice(t *testing.T) {
	devices := []capture.Device{{Index: 1}, {Index: 4}, {Index: 6}}

	tests := []struct {
		current int
		want    int
	}{
		{1, 4},
		{4, 6},
		{6, 1},
		{-1, 1},
	}
	for _, tt := range tests {
		if got, ok := nextDevice(devices, tt.current); !ok || got != tt.want {
			t.Errorf("current %d: expected %d, got %d", tt.current, tt.want, got)
		}
	}

	if _, ok := nextDevice(nil, 0); ok {
		t.Error("expected no device from an empty list")
	}
}

func TestResolveFFmpegSkipsUnusableBinaries(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "ffmpeg")

	if got := resolveFFmpeg(context.Background(), "", missing); got != "" {
		t.Errorf("expected no ffmpeg, got %q", got)
	}
	if got := resolveFFmpeg(context.Background()); got != "" {
		t.Errorf("expected no ffmpeg without candidates, got %q", got)
	}
}
