package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/loqalabs/loqa-translate/internal/pipeline"
	"github.com/loqalabs/loqa-translate/internal/runtime"
	"github.com/spf13/cobra"
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate speech from a file or the microphone",
	Long: `Run one session through capture, preprocessing, recognition, translation
and synthesis. The result record is printed as JSON; the exit status is 1
when any stage fails.`,
	Args: cobra.NoArgs,
	RunE: runTranslate,
}

var (
	translateSource   string
	translateTarget   string
	translateFile     string
	translateDuration float64
	translateModel    string
	translateKeep     bool
	translateCleanup  bool
)

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVar(&translateSource, "source", "en", "Source language code (defaults to pipeline.source_language)")
	translateCmd.Flags().StringVar(&translateTarget, "target", "es", "Target language code (defaults to pipeline.target_language)")
	translateCmd.Flags().StringVar(&translateFile, "file", "", "Input audio file path (records from the microphone when empty)")
	translateCmd.Flags().Float64Var(&translateDuration, "duration", 10, "Recording duration in seconds (defaults to audio.record_seconds)")
	translateCmd.Flags().StringVar(&translateModel, "model", "", "Speech recognition model override")
	translateCmd.Flags().BoolVar(&translateKeep, "keep-files", false, "Keep session temp files after the run")
	translateCmd.Flags().BoolVar(&translateCleanup, "cleanup", false, "Delete session temp files after the run")
	translateCmd.MarkFlagsMutuallyExclusive("keep-files", "cleanup")
}

func runTranslate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	switch {
	case translateKeep:
		cfg.Session.AutoCleanup = false
	case translateCleanup:
		cfg.Session.AutoCleanup = true
	}
	if translateModel != "" {
		cfg.STT.Model = translateModel
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := runtime.Build(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	// Unset flags leave the request empty so pipeline and audio config apply.
	req := pipeline.Request{AudioFile: translateFile}
	flags := cmd.Flags()
	if flags.Changed("source") {
		req.SourceLanguage = translateSource
	}
	if flags.Changed("target") {
		req.TargetLanguage = translateTarget
	}
	if flags.Changed("duration") {
		req.RecordSeconds = translateDuration
	}
	res := comps.Orchestrator.Run(ctx, req)
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if !res.OK() {
		return errRunFailed
	}
	return nil
}
