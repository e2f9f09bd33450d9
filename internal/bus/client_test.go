package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/natsserver"
	"github.com/nats-io/nats.go"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func applyOptions(t *testing.T, cfg config.BusConfig) nats.Options {
	t.Helper()
	var opts nats.Options
	for _, opt := range connectOptions(cfg, testLogger()) {
		if err := opt(&opts); err != nil {
			t.Fatalf("apply option: %v", err)
		}
	}
	return opts
}

func TestConnectOptions(t *testing.T) {
	opts := applyOptions(t, config.BusConfig{})
	if opts.Name != "loqa-translate" || opts.Timeout != nats.DefaultTimeout || opts.MaxReconnect != -1 {
		t.Fatalf("unexpected defaults name=%q timeout=%v reconnect=%d", opts.Name, opts.Timeout, opts.MaxReconnect)
	}
	if opts.User != "" || opts.Token != "" || opts.Secure {
		t.Fatalf("expected no credentials, got %+v", opts)
	}

	opts = applyOptions(t, config.BusConfig{ConnectTimeout: 1500, Username: "loqa", Password: "pw", Token: "tok", TLSInsecure: true})
	if opts.Timeout != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s timeout, got %v", opts.Timeout)
	}
	if opts.User != "loqa" || opts.Password != "pw" || opts.Token != "tok" {
		t.Fatalf("credentials not applied: %+v", opts)
	}
	if !opts.Secure || opts.TLSConfig == nil || !opts.TLSConfig.InsecureSkipVerify {
		t.Fatal("expected insecure tls")
	}
}

func TestConnectAndPublish(t *testing.T) {
	if _, err := Connect(context.Background(), config.BusConfig{}, testLogger()); err == nil {
		t.Fatal("expected error without servers")
	}

	cfg := config.BusConfig{Embedded: true, Port: -1, StoreDir: t.TempDir(), Token: "s3cret", ConnectTimeout: 2000}
	server, err := natsserver.Start(cfg, testLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(server.Shutdown)

	cfg.Servers = []string{server.ClientURL()}
	anonymous := cfg
	anonymous.Token = ""
	if _, err := Connect(context.Background(), anonymous, testLogger()); err == nil {
		t.Fatal("expected authorization failure without token")
	}

	client, err := Connect(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	if !client.Healthy() {
		t.Fatal("expected healthy client")
	}

	sub, err := client.Conn().SubscribeSync("translate.test")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.PublishJSON("translate.test", map[string]string{"session_id": "abc"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("next msg: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(msg.Data, &got); err != nil || got["session_id"] != "abc" {
		t.Fatalf("unexpected payload %s (%v)", msg.Data, err)
	}
	if err := client.PublishJSON("translate.test", func() {}); err == nil {
		t.Fatal("expected marshal error")
	}

	if err := client.EnsureStream("TEST_RESULTS", "translate.results.test"); err != nil {
		t.Fatalf("ensure stream: %v", err)
	}
	if err := client.EnsureStream("TEST_RESULTS", "translate.results.test"); err != nil {
		t.Fatalf("ensure existing stream: %v", err)
	}
}
