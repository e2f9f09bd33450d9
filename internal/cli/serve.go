package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/loqalabs/loqa-translate/internal/runtime"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve translation requests over HTTP and NATS",
	Long: `Start the translation runtime. It exposes /healthz, /readyz, /metrics and
POST /v1/translate, and when bus.enabled is set it answers requests on the
translate.request subject.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := runtime.Build(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	if err := runtime.New(cfg, comps, logger).Start(ctx); err != nil {
		return fmt.Errorf("runtime exited with error: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
