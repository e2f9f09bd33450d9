package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/loqalabs/loqa-translate/internal/audio"
	"github.com/loqalabs/loqa-translate/internal/ledger"
)

// Device records a fixed number of seconds of interleaved float32 samples.
// Implementations block until the recording is complete.
type Device interface {
	Record(seconds float64, sampleRate, channels int) ([]float32, error)
}

// DeviceInfo describes one capture device.
type DeviceInfo struct {
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// Lister is implemented by devices that can enumerate their inputs.
type Lister interface {
	Devices() ([]DeviceInfo, error)
}

// Source produces the raw audio handle for a session, either by recording or
// by wrapping a file the caller already has.
type Source struct {
	device Device
	ledger *ledger.Ledger
	log    *slog.Logger
}

func NewSource(device Device, l *ledger.Ledger, log *slog.Logger) *Source {
	return &Source{
		device: device,
		ledger: l,
		log:    log.With(slog.String("component", "capture")),
	}
}

// Capture records from the input device for the given duration and writes
// the samples to a new tracked file in the session directory. The context is
// only checked before recording starts.
func (s *Source) Capture(ctx context.Context, seconds float64, sampleRate, channels int) (audio.Handle, error) {
	if err := ctx.Err(); err != nil {
		return audio.Handle{}, err
	}
	if seconds <= 0 || sampleRate <= 0 || channels <= 0 {
		return audio.Handle{}, fmt.Errorf("invalid capture request: %.2fs at %d Hz / %d ch", seconds, sampleRate, channels)
	}
	if s.device == nil {
		return audio.Handle{}, &DeviceError{Op: "open", Err: errors.New("no input device configured")}
	}

	want := int(math.Round(seconds*float64(sampleRate))) * channels
	s.log.Info("recording", slog.Float64("seconds", seconds), slog.Int("sample_rate", sampleRate), slog.Int("channels", channels))
	start := time.Now()
	samples, err := s.device.Record(seconds, sampleRate, channels)
	if err != nil {
		var devErr *DeviceError
		if errors.As(err, &devErr) {
			return audio.Handle{}, err
		}
		return audio.Handle{}, &DeviceError{Op: "record", Err: err}
	}
	if len(samples) < want {
		return audio.Handle{}, &DeviceError{
			Op:  "record",
			Err: fmt.Errorf("short read: got %d of %d samples", len(samples), want),
		}
	}

	buf := audio.Buffer{Samples: samples[:want], SampleRate: sampleRate, Channels: channels}
	handle, err := audio.WriteFile(s.ledger.NewPath("recording", ".wav"), buf)
	if err != nil {
		return audio.Handle{}, fmt.Errorf("write recording: %w", err)
	}
	s.ledger.Track(&handle)
	s.log.Info("recording complete", slog.String("path", handle.Path), slog.Duration("elapsed", time.Since(start)))
	return handle, nil
}

// UseExisting wraps a file that already exists without copying it. The file
// is not tracked, so the ledger never deletes it.
func (s *Source) UseExisting(path string) (audio.Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return audio.Handle{}, &NotFoundError{Path: path}
		}
		return audio.Handle{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return audio.Handle{}, &NotFoundError{Path: path}
	}
	handle, err := audio.Probe(path)
	if err != nil {
		s.log.Debug("could not read wav header", slog.String("path", path), slog.String("error", err.Error()))
		handle = audio.Handle{Path: path, CreatedAt: info.ModTime().UTC()}
	}
	return handle, nil
}

// ListDevices enumerates capture devices when the configured device supports
// it.
func (s *Source) ListDevices() ([]DeviceInfo, error) {
	lister, ok := s.device.(Lister)
	if !ok {
		return nil, nil
	}
	return lister.Devices()
}
