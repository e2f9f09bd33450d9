package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-translate/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.EventStoreConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "history.db")
	}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if es.Enabled() {
		t.Fatal("ephemeral store should not persist")
	}
	if err := es.StartRun(ctx, Run{SessionID: "s"}); err != nil {
		t.Fatalf("start run: %v", err)
	}
	runs, err := es.ListRuns(ctx, 10)
	if err != nil || runs != nil {
		t.Fatalf("expected nothing recorded, got %v, %v", runs, err)
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{RetentionMode: "session"})

	run := Run{SessionID: "session-123", Input: "microphone", SourceLanguage: "en", TargetLanguage: "es", Stage: "idle"}
	if err := es.StartRun(ctx, run); err != nil {
		t.Fatalf("start run: %v", err)
	}
	for _, evt := range []Event{
		{SessionID: run.SessionID, From: "idle", To: "capturing"},
		{SessionID: run.SessionID, From: "capturing", To: "preprocessing", Elapsed: 3 * time.Second},
	} {
		if err := es.AppendEvent(ctx, evt); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}
	run.Status = StatusDone
	run.Stage = "done"
	run.SourceText = "hello"
	run.TranslatedText = "hola"
	run.OutputAudio = "/tmp/tts.wav"
	if err := es.FinishRun(ctx, run); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	runs, err := es.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.Status != StatusDone || got.TranslatedText != "hola" || got.Input != "microphone" || got.FinishedAt.IsZero() {
		t.Fatalf("unexpected run %+v", got)
	}

	events, err := es.ListSessionEvents(ctx, run.SessionID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].To != "preprocessing" || events[1].Elapsed != 3*time.Second {
		t.Fatalf("unexpected event %+v", events[1])
	}
}

func TestFinishUnknownRun(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "persistent"})
	if err := es.FinishRun(context.Background(), Run{SessionID: "missing", Status: StatusFailed}); err == nil {
		t.Fatal("expected error finishing an unknown run")
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1})

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.StartRun(ctx, Run{SessionID: "old-session"}); err != nil {
		t.Fatalf("start run: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{SessionID: "old-session", To: "capturing"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.StartRun(ctx, Run{SessionID: "new-session"}); err != nil {
		t.Fatalf("start run: %v", err)
	}
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListSessionEvents(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old session pruned")
	}
	runs, err := es.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].SessionID != "new-session" {
		t.Fatalf("unexpected runs after prune: %+v", runs)
	}
}
