package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWriterLoggerRoutesByLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	logger := NewWriterLogger(&out, &errOut)
	logger.SetLevel(DebugLevel)

	scoped := logger.WithFields(Fields{"component": "test"})
	scoped.Debug("debug line", Fields{"frame": 3})
	scoped.Error(errors.New("boom"), "failed")

	if !strings.Contains(out.String(), "[DEBUG] debug line component=test frame=3") {
		t.Errorf("stdout = %q, missing debug line with sorted fields", out.String())
	}
	if !strings.Contains(errOut.String(), "[ERROR] failed: boom component=test") {
		t.Errorf("stderr = %q, missing error line", errOut.String())
	}
}

func TestWriterLoggerFiltersBelowLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	logger := NewWriterLogger(&out, &errOut)
	logger.SetLevel(WarnLevel)

	logger.Info("hidden")
	logger.Warn("shown")

	if out.Len() != 0 {
		t.Errorf("info should be filtered, got %q", out.String())
	}
	if !strings.Contains(errOut.String(), "[WARN] shown") {
		t.Errorf("stderr = %q, want warn line", errOut.String())
	}
}

func TestWithContextPicksUpFields(t *testing.T) {
	var out bytes.Buffer
	logger := NewWriterLogger(&out, &out)

	ctx := ContextWithFields(context.Background(), Fields{"track": "a.wav"})
	logger.WithContext(ctx).Info("loaded")

	if !strings.Contains(out.String(), "track=a.wav") {
		t.Errorf("output = %q, want context fields", out.String())
	}
}
