package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceUnavailable is returned when an input stream cannot be opened
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrTransientIO marks a single failed read on an open stream
	ErrTransientIO = errors.New("transient capture read error")
	// ErrNoDevices is returned when no input device can be selected
	ErrNoDevices = errors.New("no capture devices")
)

// Device describes an input device as enumerated by the backend
type Device struct {
	Index      int     `json:"index"`
	Name       string  `json:"name"`
	Channels   int     `json:"channels"`
	SampleRate float64 `json:"sample_rate"`
}

func (d Device) String() string {
	return fmt.Sprintf("%d: %s (%d ch, %.0f Hz)", d.Index, d.Name, d.Channels, d.SampleRate)
}

// DeviceEnumerator lists input devices and the host default
type DeviceEnumerator interface {
	Devices() ([]Device, error)
	DefaultDevice() (int, error)
}

// InputStream is an open mono 16-bit input stream
type InputStream interface {
	// Read blocks until len(dst) samples were captured
	Read(dst []int16) error
	Close() error
}

// StreamOpener opens input streams by device index
type StreamOpener interface {
	OpenInput(device int, sampleRate float64, framesPerBuffer int) (InputStream, error)
}

// MicrophoneMatcher reports whether a device name is a known microphone
type MicrophoneMatcher interface {
	HasMicrophone(name string) bool
}

// SelectDevice picks the device to open: the requested index when it is
// listed, else the first device the report knows as a microphone, else the
// host default, else the first device. It returns -1 when there is nothing
// to open.
func SelectDevice(devices []Device, defaultIndex int, report MicrophoneMatcher, requested int) int {
	if len(devices) == 0 {
		return -1
	}

	has := func(index int) bool {
		for _, d := range devices {
			if d.Index == index {
				return true
			}
		}
		return false
	}

	if requested >= 0 && has(requested) {
		return requested
	}

	if report != nil {
		for _, d := range devices {
			if report.HasMicrophone(d.Name) {
				return d.Index
			}
		}
	}

	if defaultIndex >= 0 && has(defaultIndex) {
		return defaultIndex
	}

	return devices[0].Index
}
