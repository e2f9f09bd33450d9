//go:build whisper

package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/loqalabs/loqa-translate/internal/audio"
	"github.com/loqalabs/loqa-translate/internal/config"
)

// whisperSampleRate is the only rate the whisper.cpp encoder accepts.
const whisperSampleRate = 16000

type whisperRecognizer struct {
	model     whisper.Model
	cfg       config.STTConfig
	languages languageSet
	logger    *slog.Logger
	mu        sync.Mutex
}

// NewWhisperRecognizer loads a ggml model for in-process transcription.
func NewWhisperRecognizer(cfg config.STTConfig, logger *slog.Logger) (Recognizer, error) {
	model, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %s: %w", cfg.ModelPath, err)
	}
	return &whisperRecognizer{
		model:     model,
		cfg:       cfg,
		languages: normalizeLanguages(cfg.Languages),
		logger:    logger.With(slog.String("component", "stt"), slog.String("backend", "whisper")),
	}, nil
}

func (r *whisperRecognizer) Recognize(ctx context.Context, in audio.Handle, language string) (TranscriptResult, error) {
	if err := r.languages.check(language); err != nil {
		return TranscriptResult{}, err
	}
	buf, err := audio.ReadFile(in.Path)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("load audio: %w", err)
	}
	samples := audio.Resample(audio.Remix(buf, 1), whisperSampleRate).Samples

	r.mu.Lock()
	defer r.mu.Unlock()

	wctx, err := r.model.NewContext()
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("whisper context: %w", err)
	}
	if err := wctx.SetLanguage(language); err != nil {
		return TranscriptResult{}, &UnsupportedLanguageError{Language: language}
	}
	if r.cfg.BeamSize > 0 {
		wctx.SetBeamSize(r.cfg.BeamSize)
	}
	if err := ctx.Err(); err != nil {
		return TranscriptResult{}, err
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return TranscriptResult{}, fmt.Errorf("whisper process: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return TranscriptResult{}, fmt.Errorf("whisper segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	r.logger.Debug("transcribed", slog.String("path", in.Path), slog.Int("segments", len(parts)))
	return TranscriptResult{Text: strings.Join(parts, " "), Language: language}, nil
}

func (r *whisperRecognizer) Languages() []string {
	return append([]string(nil), r.languages...)
}

func (r *whisperRecognizer) Close() error {
	return r.model.Close()
}
