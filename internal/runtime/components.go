package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/loqalabs/loqa-translate/internal/capture"
	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/eventstore"
	"github.com/loqalabs/loqa-translate/internal/pipeline"
	"github.com/loqalabs/loqa-translate/internal/stt"
	"github.com/loqalabs/loqa-translate/internal/translate"
	"github.com/loqalabs/loqa-translate/internal/tts"
)

// Components holds the collaborators shared by every session, built once per
// process from configuration.
type Components struct {
	Config       config.Config
	Device       capture.Device
	Recognizer   stt.Recognizer
	Translator   *translate.Service
	Synthesizer  *tts.Converter
	Store        *eventstore.Store
	Orchestrator *pipeline.Orchestrator
}

// Build wires the configured backends into an orchestrator. A nil device
// selects the system default capture device.
func Build(ctx context.Context, cfg config.Config, device capture.Device, logger *slog.Logger) (*Components, error) {
	recognizer, err := stt.New(cfg.STT, logger)
	if err != nil {
		return nil, fmt.Errorf("init stt: %w", err)
	}
	translator, err := translate.New(cfg.Translation, logger)
	if err != nil {
		closeRecognizer(recognizer)
		return nil, fmt.Errorf("init translation: %w", err)
	}
	synth, err := tts.New(cfg.TTS, logger)
	if err != nil {
		closeRecognizer(recognizer)
		return nil, fmt.Errorf("init tts: %w", err)
	}
	store, err := eventstore.Open(ctx, cfg.EventStore, logger)
	if err != nil {
		closeRecognizer(recognizer)
		return nil, fmt.Errorf("open event store: %w", err)
	}
	if device == nil {
		device = capture.MalgoDevice{Name: cfg.Audio.Device}
	}

	c := &Components{
		Config:      cfg,
		Device:      device,
		Recognizer:  recognizer,
		Translator:  translator,
		Synthesizer: synth,
		Store:       store,
	}
	c.Orchestrator = pipeline.New(cfg, pipeline.Dependencies{
		Device:      device,
		Recognizer:  recognizer,
		Translator:  translator,
		Synthesizer: synth,
		Observers: []pipeline.Observer{
			pipeline.LogObserver(logger),
			pipeline.HistoryObserver(store, logger),
		},
	}, logger)
	return c, nil
}

// Close releases loaded models and the event store.
func (c *Components) Close() error {
	var errs []error
	if closer, ok := c.Recognizer.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close recognizer: %w", err))
		}
	}
	if c.Translator != nil {
		c.Translator.Cache().Purge()
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func closeRecognizer(r stt.Recognizer) {
	if closer, ok := r.(io.Closer); ok {
		_ = closer.Close()
	}
}
