package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Fatalf("expected 16kHz mono defaults, got %d/%d", cfg.Audio.SampleRate, cfg.Audio.Channels)
	}
	if cfg.Audio.TopDB != 20 || cfg.Audio.FrameLength != 2048 || cfg.Audio.HopLength != 512 {
		t.Fatalf("unexpected silence defaults: %+v", cfg.Audio)
	}
	if cfg.Session.AutoCleanup {
		t.Fatal("expected auto cleanup disabled by default")
	}
	if cfg.Translation.Models["en-es"] != "Helsinki-NLP/opus-mt-en-es" {
		t.Fatalf("expected default en-es model, got %q", cfg.Translation.Models["en-es"])
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_AUDIO_SAMPLE_RATE", "22050")
	t.Setenv("LOQA_AUDIO_RECORD_SECONDS", "3.5")
	t.Setenv("LOQA_AUDIO_REMOVE_SILENCE", "false")
	t.Setenv("LOQA_SESSION_AUTO_CLEANUP", "true")
	t.Setenv("LOQA_SESSION_TEMP_ROOT", "/var/tmp/loqa")
	t.Setenv("LOQA_STT_LANGUAGES", "en, de ,fr")
	t.Setenv("LOQA_TRANSLATION_CACHE_SIZE", "9")
	t.Setenv("LOQA_PIPELINE_TARGET_LANGUAGE", "fr")
	t.Setenv("LOQA_BUS_SERVERS", "nats://one:4222, nats://two:4222")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.SampleRate != 22050 {
		t.Fatalf("expected sample rate override, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.RecordSeconds != 3.5 {
		t.Fatalf("expected record seconds override, got %v", cfg.Audio.RecordSeconds)
	}
	if cfg.Audio.RemoveSilence {
		t.Fatal("expected remove silence override false")
	}
	if !cfg.Session.AutoCleanup || cfg.Session.TempRoot != "/var/tmp/loqa" {
		t.Fatalf("expected session overrides, got %+v", cfg.Session)
	}
	if len(cfg.STT.Languages) != 3 || cfg.STT.Languages[1] != "de" {
		t.Fatalf("expected trimmed languages, got %v", cfg.STT.Languages)
	}
	if cfg.Translation.CacheSize != 9 {
		t.Fatalf("expected cache size 9, got %d", cfg.Translation.CacheSize)
	}
	if cfg.Pipeline.TargetLanguage != "fr" {
		t.Fatalf("expected target language override")
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loqa-translate.yaml")
	data := []byte(`audio:
  sample_rate: 8000
  top_db: 30
translation:
  mode: exec
  command: "translate-cli --device cpu"
  models:
    de-en: Helsinki-NLP/opus-mt-de-en
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Audio.SampleRate != 8000 || cfg.Audio.TopDB != 30 {
		t.Fatalf("expected file values, got %+v", cfg.Audio)
	}
	if cfg.Audio.Channels != 1 {
		t.Fatalf("expected default channels preserved, got %d", cfg.Audio.Channels)
	}
	if cfg.Translation.Models["de-en"] == "" {
		t.Fatalf("expected de-en model from file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }},
		{"hop larger than frame", func(c *Config) { c.Audio.HopLength = 4096 }},
		{"exec stt without command", func(c *Config) { c.STT.Mode = "exec" }},
		{"whisper without model", func(c *Config) { c.STT.Mode = "whisper" }},
		{"unknown translation mode", func(c *Config) { c.Translation.Mode = "marian" }},
		{"zero cache", func(c *Config) { c.Translation.CacheSize = 0 }},
		{"exec tts without command", func(c *Config) { c.TTS.Mode = "exec" }},
		{"bad retention", func(c *Config) { c.EventStore.RetentionMode = "forever" }},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.mutate(&cfg)
		if err := validate(cfg); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}
