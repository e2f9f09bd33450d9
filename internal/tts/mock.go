package tts

import (
	"context"
	"encoding/binary"
	"math"
	"time"
	"unicode/utf8"
)

const (
	mockSecondsPerRune = 0.05
	mockMinSeconds     = 0.2
	mockToneHz         = 220
	mockAmplitude      = 0.2
)

type mockSynth struct {
	sampleRate int
	channels   int
}

// NewMockSynth produces a quiet tone whose length follows the text length.
func NewMockSynth(sampleRate, channels int) Engine {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return
		case <-time.After(10 * time.Millisecond):
		}
		chunks <- SynthChunk{
			SessionID:  req.SessionID,
			Sequence:   0,
			SampleRate: m.sampleRate,
			Channels:   m.channels,
			PCM:        m.tone(req.Text),
			Final:      true,
		}
	}()
	return chunks, errs
}

func (m *mockSynth) tone(text string) []byte {
	seconds := math.Max(mockMinSeconds, float64(utf8.RuneCountInString(text))*mockSecondsPerRune)
	frames := int(seconds * float64(m.sampleRate))
	pcm := make([]byte, frames*m.channels*2)
	for i := 0; i < frames; i++ {
		v := int16(mockAmplitude * math.MaxInt16 * math.Sin(2*math.Pi*mockToneHz*float64(i)/float64(m.sampleRate)))
		for c := 0; c < m.channels; c++ {
			binary.LittleEndian.PutUint16(pcm[(i*m.channels+c)*2:], uint16(v))
		}
	}
	return pcm
}
