package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-translate/internal/config"
	_ "modernc.org/sqlite"
)

// Run is one pipeline invocation as recorded in the history.
type Run struct {
	SessionID      string    `json:"session_id"`
	Input          string    `json:"input"`
	SourceLanguage string    `json:"source_language"`
	TargetLanguage string    `json:"target_language"`
	Status         string    `json:"status"`
	Stage          string    `json:"stage,omitempty"`
	Error          string    `json:"error,omitempty"`
	SourceText     string    `json:"source_text,omitempty"`
	TranslatedText string    `json:"translated_text,omitempty"`
	OutputAudio    string    `json:"output_audio,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at,omitzero"`
}

// Event represents a recorded stage transition.
type Event struct {
	ID        int64         `json:"id"`
	SessionID string        `json:"session_id"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Store wraps a SQLite-backed run history.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the event store according to config.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "eventstore"))
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    session_id TEXT PRIMARY KEY,
    input TEXT,
    source_language TEXT,
    target_language TEXT,
    status TEXT NOT NULL,
    stage TEXT,
    error TEXT,
    source_text TEXT,
    translated_text TEXT,
    output_audio TEXT,
    started_at INTEGER NOT NULL,
    finished_at INTEGER
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    from_stage TEXT,
    to_stage TEXT NOT NULL,
    elapsed_ms INTEGER,
    error TEXT,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(session_id) REFERENCES runs(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_session_created ON events(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Enabled reports whether anything is persisted.
func (s *Store) Enabled() bool {
	return s.cfg.RetentionMode != "ephemeral" && s.db != nil
}

// StartRun inserts the run row, replacing a previous row with the same id.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	if !s.Enabled() {
		return nil
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.clock()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(session_id, input, source_language, target_language, status, stage, started_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET input=excluded.input, status=excluded.status, stage=excluded.stage`,
		run.SessionID, run.Input, run.SourceLanguage, run.TargetLanguage, run.Status, run.Stage, toMillis(run.StartedAt))
	return err
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	if !s.Enabled() {
		return nil
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = s.clock()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status=?, stage=?, error=?, source_text=?, translated_text=?, output_audio=?, finished_at=?
		 WHERE session_id=?`,
		run.Status, run.Stage, run.Error, run.SourceText, run.TranslatedText, run.OutputAudio, toMillis(run.FinishedAt), run.SessionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: no such run", run.SessionID)
	}
	return nil
}

// AppendEvent writes a stage transition into the store.
func (s *Store) AppendEvent(ctx context.Context, evt Event) error {
	if !s.Enabled() {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(session_id, from_stage, to_stage, elapsed_ms, error, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		evt.SessionID, evt.From, evt.To, evt.Elapsed.Milliseconds(), evt.Error, toMillis(evt.CreatedAt))
	return err
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, input, source_language, target_language, status, stage, error,
		        source_text, translated_text, output_audio, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var input, stage, errText, source, translated, out sql.NullString
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&r.SessionID, &input, &r.SourceLanguage, &r.TargetLanguage, &r.Status, &stage, &errText,
			&source, &translated, &out, &started, &finished); err != nil {
			return nil, err
		}
		r.Input = input.String
		r.Stage = stage.String
		r.Error = errText.String
		r.SourceText = source.String
		r.TranslatedText = translated.String
		r.OutputAudio = out.String
		r.StartedAt = fromMillis(started)
		if finished.Valid {
			r.FinishedAt = fromMillis(finished.Int64)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListSessionEvents retrieves up to limit events for a session ordered ascending by time.
func (s *Store) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, from_stage, to_stage, elapsed_ms, error, created_at
		 FROM events WHERE session_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var from, errText sql.NullString
		var elapsed, stamp int64
		if err := rows.Scan(&e.ID, &e.SessionID, &from, &e.To, &elapsed, &errText, &stamp); err != nil {
			return nil, err
		}
		e.From = from.String
		e.Error = errText.String
		e.Elapsed = time.Duration(elapsed) * time.Millisecond
		e.CreatedAt = fromMillis(stamp)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) (err error) {
	if !s.Enabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := toMillis(s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour))
		if _, err = tx.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE session_id IN (
			SELECT session_id FROM runs ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Ensure supplies a no-op store when persistence disabled.
func (s *Store) Ensure() error {
	if s.cfg.RetentionMode == "ephemeral" && s.db != nil {
		return errors.New("ephemeral store should not have database connection")
	}
	return nil
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
