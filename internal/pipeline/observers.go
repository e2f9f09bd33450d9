package pipeline

import (
	"context"
	"log/slog"

	"github.com/loqalabs/loqa-translate/internal/eventstore"
)

// LogObserver logs every transition at debug level and terminal states at
// info level.
func LogObserver(logger *slog.Logger) Observer {
	logger = logger.With(slog.String("component", "pipeline"))
	return ObserverFunc(func(ctx context.Context, t Transition) {
		attrs := []slog.Attr{
			slog.String("session_id", t.SessionID),
			slog.String("from", string(t.From)),
			slog.String("to", string(t.To)),
			slog.Duration("elapsed", t.Elapsed),
		}
		level := slog.LevelDebug
		if t.To.Terminal() {
			level = slog.LevelInfo
			if t.Result != nil {
				attrs = append(attrs, slog.Duration("total", t.Result.Duration))
			}
		}
		logger.LogAttrs(ctx, level, "pipeline transition", attrs...)
	})
}

// HistoryObserver records runs and their transitions in the event store.
// Store failures are logged and never affect the run.
func HistoryObserver(store *eventstore.Store, logger *slog.Logger) Observer {
	logger = logger.With(slog.String("component", "history"))
	return ObserverFunc(func(ctx context.Context, t Transition) {
		ctx = context.WithoutCancel(ctx)
		if t.From == StateIdle {
			input := t.Request.AudioFile
			if input == "" {
				input = "microphone"
			}
			err := store.StartRun(ctx, eventstore.Run{
				SessionID:      t.SessionID,
				Input:          input,
				SourceLanguage: t.Request.SourceLanguage,
				TargetLanguage: t.Request.TargetLanguage,
				Stage:          string(t.From),
				StartedAt:      t.At.Add(-t.Elapsed),
			})
			if err != nil {
				logger.Warn("failed to record run start", slog.String("session_id", t.SessionID), slogError(err))
			}
		}

		evt := eventstore.Event{
			SessionID: t.SessionID,
			From:      string(t.From),
			To:        string(t.To),
			Elapsed:   t.Elapsed,
			CreatedAt: t.At,
		}
		if t.Err != nil {
			evt.Error = t.Err.Error()
		}
		if err := store.AppendEvent(ctx, evt); err != nil {
			logger.Warn("failed to record transition", slog.String("session_id", t.SessionID), slogError(err))
		}

		if !t.To.Terminal() || t.Result == nil {
			return
		}
		run := eventstore.Run{
			SessionID:      t.SessionID,
			Status:         eventstore.StatusDone,
			Stage:          string(t.Result.Stage),
			SourceText:     t.Result.SourceText,
			TranslatedText: t.Result.TranslatedText,
			OutputAudio:    t.Result.OutputAudio,
			FinishedAt:     t.At,
		}
		if !t.Result.OK() {
			run.Status = eventstore.StatusFailed
			run.Error = t.Result.Error
		}
		if err := store.FinishRun(ctx, run); err != nil {
			logger.Warn("failed to record run outcome", slog.String("session_id", t.SessionID), slogError(err))
		}
	})
}
