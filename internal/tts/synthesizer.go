package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loqalabs/loqa-translate/internal/audio"
	"github.com/loqalabs/loqa-translate/internal/config"
)

// fallbackVoice is used for languages missing from the voice table.
const fallbackVoice = "en"

// Converter collects an engine's PCM stream into a WAV file at the
// configured output rate.
type Converter struct {
	engine     Engine
	voices     map[string]string
	sampleRate int
	channels   int
	logger     *slog.Logger
}

// New builds the converter for cfg.Mode.
func New(cfg config.TTSConfig, logger *slog.Logger) (*Converter, error) {
	var engine Engine
	switch strings.ToLower(cfg.Mode) {
	case "", "mock":
		engine = NewMockSynth(cfg.SampleRate, cfg.Channels)
	case "exec":
		e, err := NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
		if err != nil {
			return nil, err
		}
		engine = e
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
	return NewConverter(engine, cfg, logger), nil
}

func NewConverter(engine Engine, cfg config.TTSConfig, logger *slog.Logger) *Converter {
	voices := make(map[string]string, len(cfg.Voices))
	for lang, voice := range cfg.Voices {
		voices[strings.ToLower(lang)] = voice
	}
	return &Converter{
		engine:     engine,
		voices:     voices,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		logger:     logger.With(slog.String("component", "tts")),
	}
}

// Voice maps a language code to the engine's voice, falling back to English.
func (c *Converter) Voice(language string) string {
	if voice, ok := c.voices[strings.ToLower(language)]; ok {
		return voice
	}
	return fallbackVoice
}

func (c *Converter) Synthesize(ctx context.Context, text, language, path string) (audio.Handle, error) {
	fail := func(err error) (audio.Handle, error) {
		return audio.Handle{}, &SynthesisError{Language: language, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return fail(errors.New("no text to synthesize"))
	}
	voice := c.Voice(language)

	chunks, errs := c.engine.Synthesize(ctx, SynthRequest{Text: text, Voice: voice})
	var pcm []byte
	rate, channels := c.sampleRate, c.channels
	for chunk := range chunks {
		pcm = append(pcm, chunk.PCM...)
		if chunk.SampleRate > 0 {
			rate = chunk.SampleRate
		}
		if chunk.Channels > 0 {
			channels = chunk.Channels
		}
	}
	if err := <-errs; err != nil {
		return fail(err)
	}
	if len(pcm) == 0 {
		return fail(errors.New("engine returned no audio"))
	}

	buf, err := audio.DecodePCM16(pcm, rate, channels)
	if err != nil {
		return fail(err)
	}
	handle, err := audio.WriteFile(path, audio.Resample(buf, c.sampleRate))
	if err != nil {
		return fail(err)
	}
	c.logger.Info("generated speech", slog.String("path", path), slog.String("voice", voice), slog.Duration("duration", handle.Duration))
	return handle, nil
}
