package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
	TraceStdout    bool   `yaml:"trace_stdout"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	EventStore  EventStoreConfig  `yaml:"event_store"`
	Audio       AudioConfig       `yaml:"audio"`
	Session     SessionConfig     `yaml:"session"`
	STT         STTConfig         `yaml:"stt"`
	Translation TranslationConfig `yaml:"translation"`
	TTS         TTSConfig         `yaml:"tts"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// AudioConfig fixes the canonical format of a processing session.
type AudioConfig struct {
	SampleRate    int     `yaml:"sample_rate"`
	Channels      int     `yaml:"channels"`
	RecordSeconds float64 `yaml:"record_seconds"`
	RemoveSilence bool    `yaml:"remove_silence"`
	Normalize     bool    `yaml:"normalize"`
	TopDB         float64 `yaml:"top_db"`
	FrameLength   int     `yaml:"frame_length"`
	HopLength     int     `yaml:"hop_length"`
	Device        string  `yaml:"device"`
}

type SessionConfig struct {
	TempRoot    string `yaml:"temp_root"`
	AutoCleanup bool   `yaml:"auto_cleanup"`
}

type STTConfig struct {
	Mode      string   `yaml:"mode"` // mock, exec, whisper
	Command   string   `yaml:"command"`
	ModelPath string   `yaml:"model_path"`
	Model     string   `yaml:"model"`
	BeamSize  int      `yaml:"beam_size"`
	Languages []string `yaml:"languages"`
}

type TranslationConfig struct {
	Mode      string            `yaml:"mode"` // mock, exec, ollama
	Command   string            `yaml:"command"`
	Endpoint  string            `yaml:"endpoint"`
	Models    map[string]string `yaml:"models"` // "en-es" -> model name
	CacheSize int               `yaml:"cache_size"`
}

type TTSConfig struct {
	Mode       string            `yaml:"mode"` // mock, exec
	Command    string            `yaml:"command"`
	SampleRate int               `yaml:"sample_rate"`
	Channels   int               `yaml:"channels"`
	Voices     map[string]string `yaml:"voices"`
}

type PipelineConfig struct {
	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`
	StageTimeoutMS int    `yaml:"stage_timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-translate",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-translate.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Audio: AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			RecordSeconds: 10,
			RemoveSilence: true,
			Normalize:     true,
			TopDB:         20,
			FrameLength:   2048,
			HopLength:     512,
		},
		Session: SessionConfig{
			TempRoot:    "",
			AutoCleanup: false,
		},
		STT: STTConfig{
			Mode:      "mock",
			Model:     "openai/whisper-large-v3",
			BeamSize:  5,
			Languages: []string{"en", "es", "fr", "de", "it", "ja", "zh", "ar", "ru", "pt"},
		},
		Translation: TranslationConfig{
			Mode:     "mock",
			Endpoint: "http://localhost:11434",
			Models: map[string]string{
				"en-es": "Helsinki-NLP/opus-mt-en-es",
				"en-fr": "Helsinki-NLP/opus-mt-en-fr",
				"en-de": "Helsinki-NLP/opus-mt-en-de",
				"en-it": "Helsinki-NLP/opus-mt-en-it",
				"en-ja": "Helsinki-NLP/opus-mt-en-ja",
			},
			CacheSize: 4,
		},
		TTS: TTSConfig{
			Mode:       "mock",
			SampleRate: 22050,
			Channels:   1,
			Voices: map[string]string{
				"en": "en",
				"es": "es",
				"fr": "fr",
				"de": "de",
				"it": "it",
				"ja": "ja",
				"zh": "zh-CN",
				"ar": "ar",
				"ru": "ru",
				"pt": "pt-BR",
			},
		},
		Pipeline: PipelineConfig{
			SourceLanguage: "en",
			TargetLanguage: "es",
			StageTimeoutMS: 120000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Telemetry.TraceStdout, "LOQA_TELEMETRY_TRACE_STDOUT")
	overrideBool(&cfg.Bus.Enabled, "LOQA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideInt(&cfg.Audio.SampleRate, "LOQA_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "LOQA_AUDIO_CHANNELS")
	overrideFloat(&cfg.Audio.RecordSeconds, "LOQA_AUDIO_RECORD_SECONDS")
	overrideBool(&cfg.Audio.RemoveSilence, "LOQA_AUDIO_REMOVE_SILENCE")
	overrideBool(&cfg.Audio.Normalize, "LOQA_AUDIO_NORMALIZE")
	overrideFloat(&cfg.Audio.TopDB, "LOQA_AUDIO_TOP_DB")
	overrideInt(&cfg.Audio.FrameLength, "LOQA_AUDIO_FRAME_LENGTH")
	overrideInt(&cfg.Audio.HopLength, "LOQA_AUDIO_HOP_LENGTH")
	overrideString(&cfg.Audio.Device, "LOQA_AUDIO_DEVICE")
	overrideString(&cfg.Session.TempRoot, "LOQA_SESSION_TEMP_ROOT")
	overrideBool(&cfg.Session.AutoCleanup, "LOQA_SESSION_AUTO_CLEANUP")
	overrideString(&cfg.STT.Mode, "LOQA_STT_MODE")
	overrideString(&cfg.STT.Command, "LOQA_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "LOQA_STT_MODEL_PATH")
	overrideString(&cfg.STT.Model, "LOQA_STT_MODEL")
	overrideInt(&cfg.STT.BeamSize, "LOQA_STT_BEAM_SIZE")
	overrideStringSlice(&cfg.STT.Languages, "LOQA_STT_LANGUAGES")
	overrideString(&cfg.Translation.Mode, "LOQA_TRANSLATION_MODE")
	overrideString(&cfg.Translation.Command, "LOQA_TRANSLATION_COMMAND")
	overrideString(&cfg.Translation.Endpoint, "LOQA_TRANSLATION_ENDPOINT")
	overrideInt(&cfg.Translation.CacheSize, "LOQA_TRANSLATION_CACHE_SIZE")
	overrideString(&cfg.TTS.Mode, "LOQA_TTS_MODE")
	overrideString(&cfg.TTS.Command, "LOQA_TTS_COMMAND")
	overrideInt(&cfg.TTS.SampleRate, "LOQA_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "LOQA_TTS_CHANNELS")
	overrideString(&cfg.Pipeline.SourceLanguage, "LOQA_PIPELINE_SOURCE_LANGUAGE")
	overrideString(&cfg.Pipeline.TargetLanguage, "LOQA_PIPELINE_TARGET_LANGUAGE")
	overrideInt(&cfg.Pipeline.StageTimeoutMS, "LOQA_PIPELINE_STAGE_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" && cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if cfg.Audio.RecordSeconds <= 0 {
		return errors.New("audio.record_seconds must be positive")
	}
	if cfg.Audio.TopDB <= 0 {
		return errors.New("audio.top_db must be positive")
	}
	if cfg.Audio.FrameLength <= 0 || cfg.Audio.HopLength <= 0 {
		return errors.New("audio.frame_length and audio.hop_length must be positive")
	}
	if cfg.Audio.HopLength > cfg.Audio.FrameLength {
		return errors.New("audio.hop_length must not exceed audio.frame_length")
	}
	switch cfg.STT.Mode {
	case "mock", "whisper":
	case "exec":
		if cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	default:
		return errors.New("stt.mode must be one of mock|exec|whisper")
	}
	if cfg.STT.Mode == "whisper" && cfg.STT.ModelPath == "" {
		return errors.New("stt.model_path must be set when mode=whisper")
	}
	if len(cfg.STT.Languages) == 0 {
		return errors.New("stt.languages must not be empty")
	}
	switch cfg.Translation.Mode {
	case "mock":
	case "exec":
		if cfg.Translation.Command == "" {
			return errors.New("translation.command must be set when mode=exec")
		}
	case "ollama":
		if cfg.Translation.Endpoint == "" {
			return errors.New("translation.endpoint must be set when mode=ollama")
		}
	default:
		return errors.New("translation.mode must be one of mock|exec|ollama")
	}
	if cfg.Translation.CacheSize <= 0 {
		return errors.New("translation.cache_size must be >= 1")
	}
	switch cfg.TTS.Mode {
	case "mock":
	case "exec":
		if cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	if cfg.Pipeline.SourceLanguage == "" || cfg.Pipeline.TargetLanguage == "" {
		return errors.New("pipeline.source_language and pipeline.target_language must not be empty")
	}
	return nil
}
