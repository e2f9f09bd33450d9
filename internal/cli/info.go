package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/loqalabs/loqa-translate/internal/eventstore"
	"github.com/loqalabs/loqa-translate/internal/stt"
	"github.com/loqalabs/loqa-translate/internal/translate"
	"github.com/spf13/cobra"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List recognition languages and translation pairs",
	Args:  cobra.NoArgs,
	RunE:  runLanguages,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded pipeline runs",
	Long: `Show runs recorded in the event store, newest first. Requires
event_store.retention_mode other than "ephemeral".

Examples:
  loqa-translate history --limit 5
  loqa-translate history --session <id>   # stage transitions of one run`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and exit",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

var (
	historyLimit   int
	historySession string
)

func init() {
	rootCmd.AddCommand(languagesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list")
	historyCmd.Flags().StringVar(&historySession, "session", "", "Show stage transitions for this session")
}

func runLanguages(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	recognizer, err := stt.New(cfg.STT, logger)
	if err != nil {
		return err
	}
	if closer, ok := recognizer.(io.Closer); ok {
		defer closer.Close()
	}
	translator, err := translate.New(cfg.Translation, logger)
	if err != nil {
		return err
	}

	pairs := translator.Pairs()
	names := make([]string, len(pairs))
	for i, p := range pairs {
		names[i] = p.String()
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{
		"recognition": recognizer.Languages(),
		"pairs":       names,
	})
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, err := eventstore.Open(ctx, cfg.EventStore, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if !store.Enabled() {
		return errors.New("run history is disabled: set event_store.retention_mode to session or persistent")
	}

	if historySession != "" {
		// --limit applies to the run listing only.
		events, err := store.ListSessionEvents(ctx, historySession, 0)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		if len(events) == 0 {
			return fmt.Errorf("session %q not found", historySession)
		}
		return printJSON(cmd.OutOrStdout(), events)
	}

	runs, err := store.ListRuns(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if runs == nil {
		runs = []eventstore.Run{}
	}
	return printJSON(cmd.OutOrStdout(), runs)
}
