package transcode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// nativeDecoder decodes a whole file into interleaved samples in [-1, 1]
type nativeDecoder func(r io.ReadSeeker) (*AudioData, error)

// nativeDecoders maps lower-case file extensions to in-process decoders
var nativeDecoders = map[string]nativeDecoder{
	".wav":  decodeWAV,
	".wave": decodeWAV,
	".mp3":  decodeMP3,
	".ogg":  decodeVorbis,
	".oga":  decodeVorbis,
}

// NativeFormats lists the extensions decoded without ffmpeg, sorted
func NativeFormats() []string {
	formats := make([]string, 0, len(nativeDecoders))
	for ext := range nativeDecoders {
		formats = append(formats, ext)
	}
	sort.Strings(formats)
	return formats
}

func lookupNative(path string) (nativeDecoder, bool) {
	dec, ok := nativeDecoders[strings.ToLower(filepath.Ext(path))]
	return dec, ok
}

var errNotPCM = errors.New("only integer PCM wav is decoded natively")

func decodeWAV(r io.ReadSeeker) (*AudioData, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}
	if dec.WavAudioFormat != 1 {
		return nil, errNotPCM
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("could not read PCM buffer: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, errors.New("wav header has no usable format")
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	scale := float64(int64(1) << (bitDepth - 1))

	pcm := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		pcm[i] = float64(v) / scale
	}

	return &AudioData{
		PCM:        pcm,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		Format:     "wav",
	}, nil
}

func decodeMP3(r io.ReadSeeker) (*AudioData, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}

	// go-mp3 always yields 16-bit little-endian stereo
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}

	samples := len(raw) / 2
	pcm := make([]float64, samples)
	for i := range samples {
		pcm[i] = float64(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768.0
	}

	return &AudioData{
		PCM:        pcm,
		SampleRate: dec.SampleRate(),
		Channels:   2,
		Format:     "mp3",
	}, nil
}

func decodeVorbis(r io.ReadSeeker) (*AudioData, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("vorbis: %w", err)
	}
	if format == nil || format.Channels <= 0 {
		return nil, errors.New("vorbis: missing stream format")
	}

	pcm := make([]float64, len(data))
	for i, v := range data {
		pcm[i] = float64(v)
	}

	return &AudioData{
		PCM:        pcm,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Format:     "vorbis",
	}, nil
}
