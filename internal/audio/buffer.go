// Package audio holds the in-memory sample buffer, file handles and the
// signal operations applied during preprocessing.
package audio

import (
	"math"
	"time"
)

// Buffer is an interleaved sequence of float32 samples at a fixed rate and
// channel count.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Peak returns the largest absolute sample value.
func (b Buffer) Peak() float32 {
	var peak float32
	for _, s := range b.Samples {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	return peak
}

// Empty reports whether the buffer has no samples.
func (b Buffer) Empty() bool { return len(b.Samples) == 0 }

// Clone returns a deep copy.
func (b Buffer) Clone() Buffer {
	out := b
	out.Samples = append([]float32(nil), b.Samples...)
	return out
}

// Handle references an audio file on disk plus the metadata recorded when it
// was written. Owned is set once a ledger has taken responsibility for
// removing the file.
type Handle struct {
	Path       string        `json:"path"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
	Owned      bool          `json:"owned"`
}
