package tts

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-translate/internal/audio"
)

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	SessionID string
	Text      string
	Voice     string
}

// SynthChunk contains PCM data.
type SynthChunk struct {
	SessionID  string
	Sequence   int
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Engine streams 16-bit little-endian PCM for a request.
type Engine interface {
	Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error)
}

// Synthesizer renders text in a language to a WAV file at path.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language, path string) (audio.Handle, error)
}

// SynthesisError wraps any failure of the synthesis backend.
type SynthesisError struct {
	Language string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize %s speech: %v", e.Language, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
