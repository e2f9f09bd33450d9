package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// ReadFile decodes a WAV file into a float32 buffer. 8/16/24/32-bit PCM and
// 32-bit IEEE float files are supported, including their
// WAVE_FORMAT_EXTENSIBLE variants.
func ReadFile(path string) (Buffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return Buffer{}, err
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return Buffer{}, fmt.Errorf("read wav header %s: %w", path, err)
	}
	if dec.NumChans < 1 || dec.SampleRate == 0 {
		return Buffer{}, fmt.Errorf("read wav header %s: invalid format", path)
	}
	format := int(dec.WavAudioFormat)
	if format == wavFormatExtensible {
		if format, err = extensibleSubFormat(file); err != nil {
			return Buffer{}, fmt.Errorf("read wav header %s: %w", path, err)
		}
	}
	if format != wavFormatPCM && format != wavFormatFloat {
		return Buffer{}, fmt.Errorf("unsupported wav format %d in %s", format, path)
	}
	if format == wavFormatFloat && dec.BitDepth != 32 {
		return Buffer{}, fmt.Errorf("unsupported float bit depth %d in %s", dec.BitDepth, path)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("decode wav %s: %w", path, err)
	}

	samples := make([]float32, len(pcm.Data))
	switch {
	case format == wavFormatFloat:
		for i, v := range pcm.Data {
			samples[i] = math.Float32frombits(uint32(int32(v)))
		}
	case dec.BitDepth == 8:
		for i, v := range pcm.Data {
			samples[i] = float32(v-128) / 128
		}
	default:
		scale := float32(int64(1) << (dec.BitDepth - 1))
		for i, v := range pcm.Data {
			samples[i] = float32(v) / scale
		}
	}

	return Buffer{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

// WriteFile encodes buf as a 32-bit IEEE float WAV file and returns a handle
// describing it.
func WriteFile(path string, buf Buffer) (Handle, error) {
	if buf.SampleRate <= 0 || buf.Channels <= 0 {
		return Handle{}, fmt.Errorf("write wav %s: invalid format %d Hz / %d ch", path, buf.SampleRate, buf.Channels)
	}
	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		data[i] = int(int32(math.Float32bits(s)))
	}
	if err := encode(path, buf.SampleRate, buf.Channels, 32, wavFormatFloat, data); err != nil {
		return Handle{}, err
	}
	return Handle{
		Path:       path,
		SampleRate: buf.SampleRate,
		Channels:   buf.Channels,
		Duration:   buf.Duration(),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// DecodePCM16 converts interleaved little-endian signed 16-bit PCM bytes
// into a float32 buffer.
func DecodePCM16(pcm []byte, sampleRate, channels int) (Buffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return Buffer{}, fmt.Errorf("invalid pcm format %d Hz / %d ch", sampleRate, channels)
	}
	if len(pcm)%(2*channels) != 0 {
		return Buffer{}, errors.New("pcm payload not aligned")
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return Buffer{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// extensibleSubFormat walks the RIFF chunks of f and returns the format code
// carried in the sub-format GUID of a WAVE_FORMAT_EXTENSIBLE fmt chunk.
func extensibleSubFormat(f io.ReaderAt) (int, error) {
	var hdr [8]byte
	for off := int64(12); ; {
		if _, err := f.ReadAt(hdr[:], off); err != nil {
			return 0, fmt.Errorf("fmt chunk not found: %w", err)
		}
		size := int64(binary.LittleEndian.Uint32(hdr[4:]))
		if string(hdr[:4]) == "fmt " {
			if size < 40 {
				return 0, fmt.Errorf("extensible fmt chunk too short (%d bytes)", size)
			}
			var code [2]byte
			if _, err := f.ReadAt(code[:], off+8+24); err != nil {
				return 0, err
			}
			return int(binary.LittleEndian.Uint16(code[:])), nil
		}
		off += 8 + size + size%2
	}
}

func encode(path string, sampleRate, channels, bitDepth, format int, data []int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav %s: %w", path, err)
	}
	defer file.Close()

	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	enc := wav.NewEncoder(file, sampleRate, bitDepth, channels, format)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// Probe reads the header of a WAV file and returns a handle for it. The
// samples are not decoded.
func Probe(path string) (Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Handle{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		return Handle{}, err
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return Handle{}, fmt.Errorf("read wav header %s: %w", path, err)
	}
	handle := Handle{
		Path:       path,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		CreatedAt:  info.ModTime().UTC(),
	}
	if d, err := dec.Duration(); err == nil {
		handle.Duration = d
	}
	return handle, nil
}
