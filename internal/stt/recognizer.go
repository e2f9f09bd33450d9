package stt

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/loqalabs/loqa-translate/internal/audio"
	"github.com/loqalabs/loqa-translate/internal/config"
)

// TranscriptResult captures recognizer output.
type TranscriptResult struct {
	Text       string
	Language   string
	Confidence float64
}

// Recognizer abstracts STT backends. Implementations read the audio file
// behind the handle and must reject language codes they do not support with
// an UnsupportedLanguageError.
type Recognizer interface {
	Recognize(ctx context.Context, in audio.Handle, language string) (TranscriptResult, error)
	Languages() []string
}

// UnsupportedLanguageError reports a language code the recognizer cannot
// transcribe.
type UnsupportedLanguageError struct {
	Language string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported recognition language %q", e.Language)
}

// New builds the recognizer selected by cfg.Mode.
func New(cfg config.STTConfig, logger *slog.Logger) (Recognizer, error) {
	switch strings.ToLower(cfg.Mode) {
	case "", "mock":
		return NewMockRecognizer(cfg.Languages), nil
	case "exec":
		return NewExecRecognizer(cfg)
	case "whisper":
		return NewWhisperRecognizer(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
}

type languageSet []string

func (s languageSet) check(language string) error {
	if !slices.Contains(s, strings.ToLower(language)) {
		return &UnsupportedLanguageError{Language: language}
	}
	return nil
}

func normalizeLanguages(langs []string) languageSet {
	out := make(languageSet, 0, len(langs))
	for _, l := range langs {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" && !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}
