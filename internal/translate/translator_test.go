package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/loqalabs/loqa-translate/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingBackend struct {
	loads  atomic.Int32
	closed atomic.Int32
}

func (b *countingBackend) Load(_ context.Context, pair Pair, name string) (Model, error) {
	b.loads.Add(1)
	return &closingModel{backend: b, pair: pair, name: name}, nil
}

type closingModel struct {
	backend *countingBackend
	pair    Pair
	name    string
}

func (m *closingModel) Translate(_ context.Context, text string) (string, error) {
	return fmt.Sprintf("%s(%s)", m.name, text), nil
}

func (m *closingModel) Close() error {
	m.backend.closed.Add(1)
	return nil
}

func TestDefaultPairs(t *testing.T) {
	svc, err := New(config.Default().Translation, testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var got []string
	for _, p := range svc.Pairs() {
		got = append(got, p.String())
	}
	want := "en-de,en-es,en-fr,en-it,en-ja"
	if strings.Join(got, ",") != want {
		t.Fatalf("pairs = %v, want %s", got, want)
	}

	out, err := svc.Translate(context.Background(), "hello world", "en", "es")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out != "[es] hello world" {
		t.Fatalf("unexpected translation %q", out)
	}
}

func TestUnsupportedPair(t *testing.T) {
	svc, err := New(config.Default().Translation, testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = svc.Translate(context.Background(), "hola", "es", "en")
	var unsupported *UnsupportedPairError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedPairError, got %v", err)
	}
	if unsupported.Pair != (Pair{Source: "es", Target: "en"}) {
		t.Fatalf("unexpected pair %+v", unsupported.Pair)
	}
	if len(svc.Cache().Loaded()) != 0 {
		t.Fatal("no model should be loaded for an unsupported pair")
	}
}

func TestModelCacheLoadsOncePerPair(t *testing.T) {
	backend := &countingBackend{}
	svc, err := NewService(backend, map[string]string{"en-es": "m-es", "en-fr": "m-fr"}, 1, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		out, err := svc.Translate(ctx, "hi", "en", "es")
		if err != nil {
			t.Fatalf("translate: %v", err)
		}
		if out != "m-es(hi)" {
			t.Fatalf("unexpected output %q", out)
		}
	}
	if backend.loads.Load() != 1 {
		t.Fatalf("expected 1 load, got %d", backend.loads.Load())
	}

	if _, err := svc.Translate(ctx, "hi", "EN", "FR"); err != nil {
		t.Fatalf("translate: %v", err)
	}
	if backend.loads.Load() != 2 {
		t.Fatalf("expected 2 loads, got %d", backend.loads.Load())
	}
	if backend.closed.Load() != 1 {
		t.Fatalf("expected evicted model to be closed, got %d closes", backend.closed.Load())
	}
	loaded := svc.Cache().Loaded()
	if len(loaded) != 1 || loaded[0] != (Pair{Source: "en", Target: "fr"}) {
		t.Fatalf("unexpected cache contents %v", loaded)
	}
}

func TestEmptyTextSkipsModel(t *testing.T) {
	backend := &countingBackend{}
	svc, err := NewService(backend, map[string]string{"en-es": "m"}, 2, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	out, err := svc.Translate(context.Background(), "   ", "en", "es")
	if err != nil || out != "" {
		t.Fatalf("expected empty translation, got %q, %v", out, err)
	}
	if backend.loads.Load() != 0 {
		t.Fatal("model should not load for empty text")
	}
}

func TestParsePair(t *testing.T) {
	if _, err := ParsePair("english"); err == nil {
		t.Fatal("expected error for malformed pair")
	}
	if _, err := NewService(NewMockBackend(), map[string]string{"bad": "x"}, 1, testLogger()); err == nil {
		t.Fatal("expected error for malformed table key")
	}
	p, err := ParsePair(" EN-Es ")
	if err != nil || p != (Pair{Source: "en", Target: "es"}) {
		t.Fatalf("unexpected pair %+v, %v", p, err)
	}
}

func TestOllamaBackend(t *testing.T) {
	var generated ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/show":
			var req ollamaShowRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Model != "aya" {
				http.Error(w, "model not found", http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{}`))
		case "/api/generate":
			_ = json.NewDecoder(r.Body).Decode(&generated)
			_, _ = io.WriteString(w, "{\"response\":\"hola \",\"done\":false}\n{\"response\":\"mundo\",\"done\":true}\n")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := config.Default().Translation
	cfg.Mode = "ollama"
	cfg.Endpoint = srv.URL + "/"
	cfg.Models = map[string]string{"en-es": "aya", "en-fr": "missing"}
	svc, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, err := svc.Translate(context.Background(), "hello world", "en", "es")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out != "hola mundo" {
		t.Fatalf("unexpected translation %q", out)
	}
	if generated.Model != "aya" || generated.Prompt != "hello world" || !generated.Stream {
		t.Fatalf("unexpected generate request %+v", generated)
	}

	if _, err := svc.Translate(context.Background(), "hello", "en", "fr"); err == nil {
		t.Fatal("expected load failure for unknown model")
	}
}

func TestExecBackend(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script backend")
	}
	dir := t.TempDir()
	stdin := filepath.Join(dir, "stdin.json")
	script := filepath.Join(dir, "mt.sh")
	body := "#!/bin/sh\ncat > " + stdin + "\necho '{\"translation\":\"bonjour\"}'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	cfg := config.Default().Translation
	cfg.Mode = "exec"
	cfg.Command = script
	svc, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, err := svc.Translate(context.Background(), "hello", "en", "fr")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out != "bonjour" {
		t.Fatalf("unexpected translation %q", out)
	}
	raw, err := os.ReadFile(stdin)
	if err != nil {
		t.Fatalf("read stdin: %v", err)
	}
	var req execRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		t.Fatalf("decode stdin: %v", err)
	}
	if req.Model != "Helsinki-NLP/opus-mt-en-fr" || req.Source != "en" || req.Target != "fr" || req.Text != "hello" {
		t.Fatalf("unexpected request %+v", req)
	}
}
