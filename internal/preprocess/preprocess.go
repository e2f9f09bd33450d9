package preprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-translate/internal/audio"
	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/ledger"
)

// EmptySignalError reports that silence removal left no audio.
type EmptySignalError struct {
	Path string
}

func (e *EmptySignalError) Error() string {
	return fmt.Sprintf("preprocess %s: %s", e.Path, audio.ErrEmptySignal)
}

func (e *EmptySignalError) Unwrap() error { return audio.ErrEmptySignal }

// Options selects the optional processing steps for one call.
type Options struct {
	RemoveSilence bool
	Normalize     bool
}

// Preprocessor turns raw recordings into the canonical intermediate format
// of a session. It is not safe for concurrent use.
type Preprocessor struct {
	ledger     *ledger.Ledger
	sampleRate int
	channels   int
	split      audio.SplitOptions
	log        *slog.Logger
}

func New(l *ledger.Ledger, cfg config.AudioConfig, log *slog.Logger) *Preprocessor {
	return &Preprocessor{
		ledger:     l,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		split: audio.SplitOptions{
			TopDB:       cfg.TopDB,
			FrameLength: cfg.FrameLength,
			HopLength:   cfg.HopLength,
		},
		log: log.With(slog.String("component", "preprocess")),
	}
}

// DefaultOptions mirrors the audio section of the configuration.
func DefaultOptions(cfg config.AudioConfig) Options {
	return Options{RemoveSilence: cfg.RemoveSilence, Normalize: cfg.Normalize}
}

// Process loads the file behind in, converts it to the session format, applies
// the selected steps and writes the result as a new tracked file.
func (p *Preprocessor) Process(ctx context.Context, in audio.Handle, opts Options) (audio.Handle, error) {
	if err := ctx.Err(); err != nil {
		return audio.Handle{}, err
	}
	buf, err := audio.ReadFile(in.Path)
	if err != nil {
		return audio.Handle{}, fmt.Errorf("load audio: %w", err)
	}
	inFrames := buf.Frames()

	buf = audio.Resample(audio.Remix(buf, p.channels), p.sampleRate)

	if opts.RemoveSilence {
		trimmed, err := audio.RemoveSilence(buf, p.split)
		if err != nil {
			if errors.Is(err, audio.ErrEmptySignal) {
				return audio.Handle{}, &EmptySignalError{Path: in.Path}
			}
			return audio.Handle{}, fmt.Errorf("remove silence: %w", err)
		}
		buf = trimmed
	}
	if opts.Normalize {
		buf = audio.Normalize(buf)
	}

	out, err := audio.WriteFile(p.ledger.NewPath("processed", ".wav"), buf)
	if err != nil {
		return audio.Handle{}, fmt.Errorf("write processed audio: %w", err)
	}
	p.ledger.Track(&out)

	p.log.Debug("audio preprocessed",
		slog.String("input", in.Path),
		slog.String("output", out.Path),
		slog.Int("input_frames", inFrames),
		slog.Int("output_frames", buf.Frames()),
		slog.Bool("remove_silence", opts.RemoveSilence),
		slog.Bool("normalize", opts.Normalize),
	)
	return out, nil
}
