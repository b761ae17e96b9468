package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/RyanBlaney/sonido-vis/logging"
)

// SystemReport is the host capability report written by the device detector
// (system_report.json). It is read, never generated, here.
type SystemReport struct {
	SystemInfo   SystemInfo   `json:"system_info"`
	WorkdirCheck WorkdirCheck `json:"workdir_check"`
	FFmpeg       FFmpegInfo   `json:"ffmpeg"`
	AudioDevices AudioDevices `json:"audio_devices"`

	// Older reports carried the ffmpeg path at the top level
	LegacyFFmpegPath string `json:"ffmpeg_path,omitempty"`
}

// SystemInfo describes the host
type SystemInfo struct {
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	Architecture    string `json:"architecture"`
	Timestamp       string `json:"timestamp"`
}

// WorkdirCheck records whether the working directory was writable
type WorkdirCheck struct {
	Writable bool    `json:"writable"`
	Path     string  `json:"path"`
	Error    *string `json:"error"`
}

// FFmpegInfo records where ffmpeg was found
type FFmpegInfo struct {
	Path   *string `json:"path"`
	Status string  `json:"status"` // "found" or "not_found"
}

// AudioDevices lists detected input devices
type AudioDevices struct {
	Microphones     []Microphone `json:"microphones"`
	AllAudioInputs  []Microphone `json:"all_audio_inputs"`
	DetectionMethod *string      `json:"detection_method"`
	Error           *string      `json:"error"`
}

// Microphone is one detected input device
type Microphone struct {
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Type            string    `json:"type"`
	DetectionMethod string    `json:"detection_method"`
	Endpoints       Endpoints `json:"endpoints"`
}

// Endpoints are the identifiers the detector derived for a device
type Endpoints struct {
	EndpointID       string `json:"endpoint_id"`
	APIPath          string `json:"api_path"`
	RESTEndpoint     string `json:"rest_endpoint"`
	DirectAccess     string `json:"direct_access"`
	FFmpegIdentifier string `json:"ffmpeg_identifier,omitempty"`
	DeviceIndex      *int   `json:"pyaudio_index,omitempty"`
}

// LoadSystemReport reads the capability report at path. A missing report
// yields an empty report so startup never depends on it.
func LoadSystemReport(path string) (*SystemReport, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "system_report",
		"path":      path,
	})

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("capability report not found, continuing without it")
			return &SystemReport{}, nil
		}
		return nil, fmt.Errorf("failed to read capability report: %w", err)
	}

	var report SystemReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("%w: capability report %s: %v", ErrInvalidConfig, path, err)
	}

	logger.Debug("capability report loaded", logging.Fields{
		"microphones": len(report.AudioDevices.Microphones),
		"ffmpeg":      report.FFmpegPath(),
	})

	return &report, nil
}

// FFmpegPath returns the reported ffmpeg binary, or "" when none was found
func (r *SystemReport) FFmpegPath() string {
	if r == nil {
		return ""
	}
	if r.FFmpeg.Path != nil && *r.FFmpeg.Path != "" && r.FFmpeg.Status != "not_found" {
		return *r.FFmpeg.Path
	}
	return r.LegacyFFmpegPath
}

// FFmpegAvailable reports whether the reported ffmpeg binary exists
func (r *SystemReport) FFmpegAvailable() bool {
	path := r.FFmpegPath()
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// MicrophoneNames returns the names of all reported microphones
func (r *SystemReport) MicrophoneNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.AudioDevices.Microphones))
	for _, mic := range r.AudioDevices.Microphones {
		names = append(names, mic.Name)
	}
	return names
}

// HasMicrophone reports whether a device name matches a reported microphone,
// case-insensitively and allowing either name to contain the other
func (r *SystemReport) HasMicrophone(deviceName string) bool {
	want := strings.ToLower(strings.TrimSpace(deviceName))
	if want == "" {
		return false
	}
	for _, name := range r.MicrophoneNames() {
		have := strings.ToLower(strings.TrimSpace(name))
		if have == "" {
			continue
		}
		if have == want || strings.Contains(have, want) || strings.Contains(want, have) {
			return true
		}
	}
	return false
}
