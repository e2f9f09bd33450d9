package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// captureGrace is how long past the requested duration the device may take
// to deliver its final period.
const captureGrace = 2 * time.Second

// MalgoDevice records from a miniaudio capture device. An empty name selects
// the system default input.
type MalgoDevice struct {
	Name string
}

func (m MalgoDevice) Record(seconds float64, sampleRate, channels int) ([]float32, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, &DeviceError{Op: "init", Err: err}
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(channels)
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, &DeviceError{Op: "enumerate", Err: err}
	}
	if len(infos) == 0 {
		return nil, &DeviceError{Op: "open", Err: errors.New("no input device available")}
	}
	if m.Name != "" {
		idx := -1
		for i := range infos {
			if strings.EqualFold(infos[i].Name(), m.Name) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, &DeviceError{Op: "open", Err: fmt.Errorf("input device %q not found", m.Name)}
		}
		cfg.Capture.DeviceID = infos[idx].ID.Pointer()
	}

	want := int(math.Round(seconds*float64(sampleRate))) * channels
	var (
		mu      sync.Mutex
		samples = make([]float32, 0, want)
		done    = make(chan struct{})
		once    sync.Once
	)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			mu.Lock()
			defer mu.Unlock()
			for i := 0; i+4 <= len(in) && len(samples) < want; i += 4 {
				samples = append(samples, math.Float32frombits(binary.LittleEndian.Uint32(in[i:])))
			}
			if len(samples) >= want {
				once.Do(func() { close(done) })
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		return nil, &DeviceError{Op: "open", Err: err}
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return nil, &DeviceError{Op: "start", Err: err}
	}
	timer := time.NewTimer(time.Duration(seconds*float64(time.Second)) + captureGrace)
	select {
	case <-done:
	case <-timer.C:
	}
	timer.Stop()
	_ = device.Stop()

	mu.Lock()
	defer mu.Unlock()
	return append([]float32(nil), samples...), nil
}

// Devices lists the capture devices known to miniaudio.
func (m MalgoDevice) Devices() ([]DeviceInfo, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, &DeviceError{Op: "init", Err: err}
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, &DeviceError{Op: "enumerate", Err: err}
	}
	out := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		out = append(out, DeviceInfo{
			Name:    infos[i].Name(),
			Default: infos[i].IsDefault != 0,
		})
	}
	return out, nil
}
