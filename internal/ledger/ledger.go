package ledger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-translate/internal/audio"
)

// Ledger owns one session's temp directory and the files written into it.
// Cleanup never returns an error: failed removals are logged and skipped.
type Ledger struct {
	dir         string
	autoCleanup bool
	log         *slog.Logger
	remove      func(string) error

	mu      sync.Mutex
	entries map[string]*audio.Handle
	order   []string
	cleaned bool
}

// New creates a fresh session directory under root (os.TempDir when empty).
func New(root string, autoCleanup bool, log *slog.Logger) (*Ledger, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create temp root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(root, "loqa-translate-")
	if err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	l := &Ledger{
		dir:         dir,
		autoCleanup: autoCleanup,
		log:         log.With(slog.String("component", "ledger"), slog.String("dir", dir)),
		remove:      os.Remove,
		entries:     make(map[string]*audio.Handle),
	}
	l.log.Debug("session directory created")
	return l, nil
}

// Dir returns the session directory.
func (l *Ledger) Dir() string { return l.dir }

// AutoCleanup reports whether Cleanup deletes anything.
func (l *Ledger) AutoCleanup() bool { return l.autoCleanup }

// NewPath returns a unique file path inside the session directory.
func (l *Ledger) NewPath(prefix, ext string) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s_%s%s", prefix, uuid.NewString(), ext))
}

// Track registers a handle. Tracking a path that is already tracked is a
// no-op. The handle is marked as owned by the ledger.
func (l *Ledger) Track(h *audio.Handle) {
	if h == nil || h.Path == "" {
		return
	}
	key := filepath.Clean(h.Path)
	l.mu.Lock()
	defer l.mu.Unlock()
	h.Owned = true
	if _, ok := l.entries[key]; ok {
		return
	}
	l.entries[key] = h
	l.order = append(l.order, key)
}

// Tracked returns the tracked paths in registration order.
func (l *Ledger) Tracked() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.order...)
}

// Retained reports whether the session files remain on disk after Close.
func (l *Ledger) Retained() bool { return !l.autoCleanup }

// Cleanup deletes every tracked file and then the session directory. It is a
// no-op unless auto cleanup is enabled, and safe to call more than once.
func (l *Ledger) Cleanup() {
	if !l.autoCleanup {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var failed []string
	for _, path := range l.order {
		if err := l.remove(path); err != nil && !os.IsNotExist(err) {
			l.log.Warn("could not delete temp file", slog.String("path", path), slogError(err))
			failed = append(failed, path)
			continue
		}
		delete(l.entries, path)
	}
	l.order = failed

	if l.cleaned {
		return
	}
	if err := l.remove(l.dir); err != nil {
		if os.IsNotExist(err) {
			l.cleaned = true
			return
		}
		l.log.Warn("could not remove temp directory", slog.String("path", l.dir), slogError(err))
		return
	}
	l.cleaned = true
	l.log.Info("cleaned up temporary audio files")
}

// Close ends the session and releases its files according to the cleanup
// policy.
func (l *Ledger) Close() {
	l.Cleanup()
	if l.autoCleanup {
		return
	}
	l.log.Info("temporary audio files retained", slog.Int("files", len(l.Tracked())))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
