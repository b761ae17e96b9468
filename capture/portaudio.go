package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/RyanBlaney/sonido-vis/logging"
	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend enumerates and opens input devices through PortAudio.
// Device indices are positions in the host's full device list.
type PortAudioBackend struct {
	mu     sync.Mutex
	closed bool
	logger logging.Logger
}

// NewPortAudioBackend initialises PortAudio. Close must be called to release it.
func NewPortAudioBackend() (*PortAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio init: %v", ErrDeviceUnavailable, err)
	}
	return &PortAudioBackend{
		logger: logging.WithFields(logging.Fields{
			"component": "portaudio",
		}),
	}, nil
}

// Devices lists devices with at least one input channel
func (b *PortAudioBackend) Devices() ([]Device, error) {
	infos, err := b.deviceInfos()
	if err != nil {
		return nil, err
	}

	var devices []Device
	for i, info := range infos {
		if info.MaxInputChannels <= 0 {
			continue
		}
		devices = append(devices, Device{
			Index:      i,
			Name:       info.Name,
			Channels:   info.MaxInputChannels,
			SampleRate: info.DefaultSampleRate,
		})
	}

	b.logger.Debug("Enumerated input devices", logging.Fields{
		"total": len(infos),
		"input": len(devices),
	})
	return devices, nil
}

// DefaultDevice returns the index of the host's default input device
func (b *PortAudioBackend) DefaultDevice() (int, error) {
	def, err := portaudio.DefaultInputDevice()
	if err != nil {
		return -1, fmt.Errorf("%w: %v", ErrNoDevices, err)
	}

	infos, err := b.deviceInfos()
	if err != nil {
		return -1, err
	}
	for i, info := range infos {
		if info.Name == def.Name && sameHostAPI(info, def) {
			return i, nil
		}
	}
	return -1, ErrNoDevices
}

// OpenInput opens and starts a blocking mono int16 stream on device
func (b *PortAudioBackend) OpenInput(device int, sampleRate float64, framesPerBuffer int) (InputStream, error) {
	infos, err := b.deviceInfos()
	if err != nil {
		return nil, err
	}
	if device < 0 || device >= len(infos) {
		return nil, fmt.Errorf("%w: no device with index %d", ErrDeviceUnavailable, device)
	}
	info := infos[device]
	if info.MaxInputChannels <= 0 {
		return nil, fmt.Errorf("%w: %s has no input channels", ErrDeviceUnavailable, info.Name)
	}

	buf := make([]int16, framesPerBuffer)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: 1,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDeviceUnavailable, info.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: start %s: %v", ErrDeviceUnavailable, info.Name, err)
	}

	return &paStream{stream: stream, buf: buf}, nil
}

// Close terminates PortAudio
func (b *PortAudioBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return portaudio.Terminate()
}

func (b *PortAudioBackend) deviceInfos() ([]*portaudio.DeviceInfo, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: portaudio terminated", ErrDeviceUnavailable)
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate: %v", ErrNoDevices, err)
	}
	return infos, nil
}

func sameHostAPI(a, b *portaudio.DeviceInfo) bool {
	if a.HostApi == nil || b.HostApi == nil {
		return a.HostApi == b.HostApi
	}
	return a.HostApi.Name == b.HostApi.Name
}

// paStream adapts a blocking PortAudio stream to InputStream
type paStream struct {
	stream *portaudio.Stream
	buf    []int16
}

func (s *paStream) Read(dst []int16) error {
	err := s.stream.Read()
	if err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return fmt.Errorf("%w: %v", ErrTransientIO, err)
	}
	copy(dst, s.buf)
	return nil
}

func (s *paStream) Close() error {
	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	return errors.Join(stopErr, closeErr)
}
