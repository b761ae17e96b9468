package analysis

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats"
)

func sineFrame(n, rate, bin int, amplitude float64) SampleFrame {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*float64(bin)*float64(i)/float64(n))
	}
	return SampleFrame{Samples: samples, SampleRate: rate}
}

func TestZeroFrameIsSilent(t *testing.T) {
	sa := NewSpectrumAnalyzer(2048, 10)
	spec := sa.Analyze(ZeroFrame(2048, 44100))

	if len(spec.Smoothed) != 1024 {
		t.Fatalf("expected 1024 bins, got %d", len(spec.Smoothed))
	}
	for i, v := range spec.Smoothed {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > 1e-9 {
			t.Fatalf("bin %d: expected near-zero finite value, got %v", i, v)
		}
	}

	level, peak := NewLevelMeter().Measure(ZeroFrame(2048, 44100))
	if level != 0 || peak != 0 {
		t.Errorf("expected level 0 and peak 0, got %v and %v", level, peak)
	}
}

func TestFirstCallSmoothedEqualsCompressed(t *testing.T) {
	sa := NewSpectrumAnalyzer(2048, 10)
	spec := sa.Analyze(sineFrame(2048, 44100, 20, 1000))

	if !floats.Equal(spec.Smoothed, spec.Compressed) {
		t.Error("expected smoothed output to equal compressed output on the first call")
	}
}

func TestSmoothingConvergesAfterFullHistory(t *testing.T) {
	sa := NewSpectrumAnalyzer(2048, 10)

	// Fill the history with a different signal first
	for range 10 {
		sa.Analyze(sineFrame(2048, 44100, 100, 8000))
	}

	target := sineFrame(2048, 44100, 20, 1000)
	var spec Spectrum
	for i := range 10 {
		spec = sa.Analyze(target)
		if i < 9 && floats.EqualApprox(spec.Smoothed, spec.Compressed, 1e-9) {
			t.Fatalf("call %d: smoothed output converged before the history was refreshed", i)
		}
	}

	if !floats.EqualApprox(spec.Smoothed, spec.Compressed, 1e-9) {
		t.Error("expected smoothed output to match compressed output after 10 identical frames")
	}
}

func TestSpectrumPadsShortFrames(t *testing.T) {
	sa := NewSpectrumAnalyzer(2048, 10)
	spec := sa.Analyze(SampleFrame{Samples: []float64{1, 2, 3}, SampleRate: 44100})

	if len(spec.Raw) != 1024 || len(spec.Smoothed) != 1024 {
		t.Errorf("expected 1024 bins, got raw=%d smoothed=%d", len(spec.Raw), len(spec.Smoothed))
	}
}

func TestBassCutoffBin(t *testing.T) {
	if got := BassCutoffBin(250, 2048, 44100); got != 11 {
		t.Errorf("expected cutoff bin 11, got %d", got)
	}
}

func TestBeatOnFourthCallSpike(t *testing.T) {
	bd := NewBeatDetector(DefaultBeatConfig())

	bass := make([]float64, 1024)
	for i := range 11 {
		bass[i] = 1
	}
	for i := 11; i < len(bass); i++ {
		bass[i] = 1e-9
	}
	spike := make([]float64, len(bass))
	for i := range bass {
		spike[i] = bass[i] * 3
	}
	// Energy above the cutoff must not count
	loudTreble := make([]float64, len(bass))
	copy(loudTreble, bass)
	for i := 11; i < len(loudTreble); i++ {
		loudTreble[i] = 1000
	}

	start := time.Unix(0, 0)
	inputs := [][]float64{bass, bass, loudTreble, spike, bass, bass}
	want := []bool{false, false, false, true, false, false}

	for i, raw := range inputs {
		got := bd.Detect(raw, 2048, 44100, start.Add(time.Duration(i)*200*time.Millisecond))
		if got != want[i] {
			t.Errorf("call %d: expected beat=%v, got %v", i+1, want[i], got)
		}
	}

	if stats := bd.Stats(); stats.Total != 1 {
		t.Errorf("expected 1 counted beat, got %d", stats.Total)
	}
}

func TestBeatSpikeThroughChain(t *testing.T) {
	chain := NewChain(DefaultChainConfig())
	start := time.Unix(0, 0)

	for i := range 3 {
		frame := chain.Process(sineFrame(2048, 44100, 5, 1000), start.Add(time.Duration(i)*time.Second), true)
		if frame.Beat {
			t.Fatalf("call %d: unexpected beat", i+1)
		}
	}

	frame := chain.Process(sineFrame(2048, 44100, 5, 3000), start.Add(3*time.Second), true)
	if !frame.Beat {
		t.Error("expected a beat on the spike")
	}
	if !frame.Active {
		t.Error("expected active flag to pass through")
	}
}

func TestRefractoryPeriod(t *testing.T) {
	bd := NewBeatDetector(DefaultBeatConfig())
	raw := make([]float64, 1024)
	start := time.Unix(0, 0)

	var counted []time.Time
	energy := 1.0
	for i := range 200 {
		energy *= 2
		for b := range 11 {
			raw[b] = energy
		}
		now := start.Add(time.Duration(i) * 30 * time.Millisecond)
		before := bd.Stats().Total

		flagged := bd.Detect(raw, 2048, 44100, now)
		if i >= 2 && !flagged {
			t.Fatalf("call %d: expected the threshold to be crossed", i+1)
		}
		if bd.Stats().Total > before {
			counted = append(counted, now)
		}
	}

	if len(counted) < 2 {
		t.Fatalf("expected several counted beats, got %d", len(counted))
	}
	for i := 1; i < len(counted); i++ {
		if gap := counted[i].Sub(counted[i-1]); gap <= 100*time.Millisecond {
			t.Errorf("counted beats %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestBeatStatsBPM(t *testing.T) {
	bd := NewBeatDetector(DefaultBeatConfig())
	quiet := make([]float64, 1024)
	loud := make([]float64, 1024)
	for i := range 11 {
		quiet[i] = 1
		loud[i] = 10
	}

	start := time.Unix(0, 0)
	step := 50 * time.Millisecond
	now := start
	// One loud frame after every nine quiet ones: a beat each 500ms
	for range 5 {
		for range 9 {
			bd.Detect(quiet, 2048, 44100, now)
			now = now.Add(step)
		}
		bd.Detect(loud, 2048, 44100, now)
		now = now.Add(step)
	}

	stats := bd.Stats()
	if stats.Total != 5 {
		t.Fatalf("expected 5 beats, got %d", stats.Total)
	}
	if math.Abs(stats.BPM-120) > 1e-6 {
		t.Errorf("expected 120 BPM, got %v", stats.BPM)
	}
}

func TestSensitivityClamp(t *testing.T) {
	bd := NewBeatDetector(DefaultBeatConfig())

	if got := bd.AdjustSensitivity(SensitivityStep); got != 1.6 {
		t.Errorf("expected 1.6, got %v", got)
	}
	for range 50 {
		bd.AdjustSensitivity(SensitivityStep)
	}
	if got := bd.Sensitivity(); got != MaxSensitivity {
		t.Errorf("expected clamp at %v, got %v", MaxSensitivity, got)
	}
	for range 50 {
		bd.AdjustSensitivity(-SensitivityStep)
	}
	if got := bd.Sensitivity(); got != MinSensitivity {
		t.Errorf("expected clamp at %v, got %v", MinSensitivity, got)
	}
}

func TestLevelFullScale(t *testing.T) {
	samples := make([]float64, 2048)
	for i := range samples {
		samples[i] = 32767
	}

	level, _ := NewLevelMeter().Measure(SampleFrame{Samples: samples, SampleRate: 44100})
	if math.Abs(level-100) > 1e-6 {
		t.Errorf("expected level 100, got %v", level)
	}
}

func TestPeakDecay(t *testing.T) {
	lm := NewLevelMeter()
	samples := make([]float64, 2048)
	for i := range samples {
		samples[i] = 16000
	}

	_, p := lm.Measure(SampleFrame{Samples: samples, SampleRate: 44100})
	silence := ZeroFrame(2048, 44100)

	prev := p
	for k := 1; k <= 50; k++ {
		level, peak := lm.Measure(silence)
		if level != 0 {
			t.Fatalf("expected level 0, got %v", level)
		}
		want := p * math.Pow(DefaultPeakDecay, float64(k))
		if math.Abs(peak-want) > 1e-9 {
			t.Fatalf("frame %d: expected peak %v, got %v", k, want, peak)
		}
		if peak > prev {
			t.Fatalf("frame %d: peak increased from %v to %v", k, prev, peak)
		}
		prev = peak
	}
}

func TestBinFrequency(t *testing.T) {
	if got := BinFrequency(11, 44100, 2048); math.Abs(got-236.865234375) > 1e-9 {
		t.Errorf("expected 236.865234375 Hz, got %v", got)
	}
}
