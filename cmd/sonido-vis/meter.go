package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/RyanBlaney/sonido-vis/algorithms/common"
	"github.com/RyanBlaney/sonido-vis/analysis"
	"github.com/RyanBlaney/sonido-vis/pipeline"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Unicode block elements for bar height (9 levels including space)
var barBlocks = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

var (
	spectrumLow  = lipgloss.Color("#5FD787")
	spectrumMid  = lipgloss.Color("#FFD75F")
	spectrumHigh = lipgloss.Color("#FF5F5F")
	beatColor    = lipgloss.Color("#FF87D7")
	modeColor    = lipgloss.Color("#87AFFF")
)

// palette holds the meter styles for one output
type palette struct {
	low, mid, high lipgloss.Style
	beat, mode     lipgloss.Style
}

func newPalette(r *lipgloss.Renderer) palette {
	return palette{
		low:  r.NewStyle().Foreground(spectrumLow),
		mid:  r.NewStyle().Foreground(spectrumMid),
		high: r.NewStyle().Foreground(spectrumHigh),
		beat: r.NewStyle().Foreground(beatColor).Bold(true),
		mode: r.NewStyle().Foreground(modeColor),
	}
}

// meter redraws a single status line per frame
type meter struct {
	out     io.Writer
	fd      int
	tty     bool
	palette palette
	width   int
}

func newMeter(out *os.File) *meter {
	fd := int(out.Fd())
	return &meter{
		out:     out,
		fd:      fd,
		tty:     term.IsTerminal(fd),
		palette: newPalette(lipgloss.NewRenderer(out)),
	}
}

func (m *meter) columns() int {
	if !m.tty {
		return 80
	}
	w, _, err := term.GetSize(m.fd)
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// Render draws frame over the previous line
func (m *meter) Render(frame analysis.Frame, stats analysis.BeatStats, status pipeline.Status) {
	m.width = m.columns()
	line := formatLine(frame, stats, status, m.width, m.palette)
	if m.tty {
		// Padding to the full width overwrites what the previous frame left
		fmt.Fprint(m.out, "\r"+lipgloss.NewStyle().Width(m.width).MaxWidth(m.width).Render(line))
		return
	}
	fmt.Fprintln(m.out, line)
}

// Clear blanks the meter line
func (m *meter) Clear() {
	if m.tty && m.width > 0 {
		fmt.Fprint(m.out, "\r"+strings.Repeat(" ", m.width)+"\r")
	}
}

func formatLine(frame analysis.Frame, stats analysis.BeatStats, status pipeline.Status, width int, pal palette) string {
	beat := " "
	if frame.Beat {
		beat = pal.beat.Render("●")
	}

	var mode strings.Builder
	fmt.Fprintf(&mode, "[%s", strings.ToUpper(status.Mode.String()))
	switch {
	case status.Mode == pipeline.FileMode && status.Loading:
		mode.WriteString(" analysing")
	case status.Mode == pipeline.FileMode && status.LoadError != nil:
		mode.WriteString(" load failed")
	case status.Mode == pipeline.FileMode:
		mode.WriteString(" " + status.Playback.String())
	default:
		fmt.Fprintf(&mode, " dev %d sens %.1f", status.Device, status.Sensitivity)
	}
	mode.WriteString("]")

	prefix := fmt.Sprintf("%s %s lvl %3.0f pk %3.0f bpm %5.1f beats %d ",
		pal.mode.Render(mode.String()), beat, frame.Level, frame.Peak, stats.BPM, stats.Total)

	bars := width - lipgloss.Width(prefix) - 2
	if bars < 8 {
		return prefix
	}
	return prefix + "|" + spectrumBars(frame.Spectrum, bars, pal) + "|"
}

// spectrumBars renders spectrum as n glyphs over logarithmically spaced bin
// groups. Values are on a 0-100 scale.
func spectrumBars(spectrum []float64, n int, pal palette) string {
	if n <= 0 {
		return ""
	}
	if len(spectrum) == 0 {
		return strings.Repeat(barBlocks[0], n)
	}

	var sb strings.Builder
	top := len(barBlocks) - 1
	lo := 0
	for i := range n {
		hi := int(math.Round(math.Pow(float64(len(spectrum)), float64(i+1)/float64(n))))
		hi = common.ClampInt(max(hi, lo+1), 1, len(spectrum))
		if lo >= len(spectrum) {
			lo = len(spectrum) - 1
		}

		peak := 0.0
		for _, v := range spectrum[lo:hi] {
			peak = math.Max(peak, v)
		}
		level := common.Clamp(peak, 0, 100) / 100
		block := barBlocks[common.ClampInt(int(math.Round(level*float64(top))), 0, top)]

		// Color gradient: green -> yellow -> red based on level
		var style lipgloss.Style
		switch {
		case level > 0.75:
			style = pal.high
		case level > 0.45:
			style = pal.mid
		default:
			style = pal.low
		}
		sb.WriteString(style.Render(block))
		lo = hi
	}
	return sb.String()
}
