package natsserver

import (
	"io"
	"log/slog"
	"testing"

	"github.com/loqalabs/loqa-translate/internal/config"
)

func TestServerOptions(t *testing.T) {
	opts := serverOptions(config.BusConfig{Embedded: true, Port: 4333})
	if opts.Host != "127.0.0.1" || opts.Port != 4333 || !opts.JetStream || !opts.NoSigs {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.StoreDir != defaultStoreDir {
		t.Fatalf("expected default store dir, got %q", opts.StoreDir)
	}
	if opts.Authorization != "" || opts.Username != "" {
		t.Fatalf("expected no auth, got token %q user %q", opts.Authorization, opts.Username)
	}

	opts = serverOptions(config.BusConfig{StoreDir: "/tmp/nats", Token: "s3cret", Username: "ignored"})
	if opts.StoreDir != "/tmp/nats" || opts.Authorization != "s3cret" || opts.Username != "" {
		t.Fatalf("unexpected token options %+v", opts)
	}

	opts = serverOptions(config.BusConfig{Username: "loqa", Password: "pw"})
	if opts.Username != "loqa" || opts.Password != "pw" || opts.Authorization != "" {
		t.Fatalf("unexpected user options %+v", opts)
	}
}

func TestStart(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := Start(config.BusConfig{Embedded: false}, logger)
	if err != nil || srv != nil {
		t.Fatalf("expected no server, got %v (%v)", srv, err)
	}
	srv.Shutdown()

	srv, err = Start(config.BusConfig{Embedded: true, Port: -1, StoreDir: t.TempDir()}, logger)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Shutdown()
	if srv.ClientURL() == "" {
		t.Fatal("expected a client url")
	}
}
