package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/spf13/cobra"
)

// errRunFailed signals a failure that has already been reported on stdout.
var errRunFailed = errors.New("run failed")

var (
	configPath string
	logLevel   string
	version    = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "loqa-translate",
	Short: "Speech-to-speech translation pipeline",
	Long: `loqa-translate records or loads speech, transcribes it, translates the
text and synthesizes the translation as a new audio file.

Examples:
  loqa-translate translate --file hello.wav --source en --target es
  loqa-translate translate --duration 5 --target fr
  loqa-translate serve --config loqa-translate.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute(v string) {
	if v != "" {
		version = v
	}
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
}

// loadConfig reads the configuration and builds the process logger. Logs go to
// w so commands printing JSON on stdout can keep it clean.
func loadConfig(w io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	if logLevel != "" {
		cfg.Telemetry.LogLevel = logLevel
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.Telemetry.LogLevel))); err != nil {
		return cfg, nil, fmt.Errorf("invalid log level %q: %w", cfg.Telemetry.LogLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
