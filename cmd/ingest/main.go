// Command ingest runs the document ingestion side of librag: the asynq
// worker that parses uploaded files, and offline commands that parse local
// files, rebuild a taxonomy or preview the splitter.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"librag/internal/bootstrap"
	"librag/pkg/config"
	"librag/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ingest",
		Short: "librag ingestion worker and tools",
		Long: `ingest parses documents into paragraphs, describes them with the LLM and
files them under categories and domains of a knowledge base.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newWorkerCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newRebuildCommand())
	rootCmd.AddCommand(newSplitCommand())

	return rootCmd
}

// setup loads the configuration and the global logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(cfg.Logger); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.Get(), nil
}

// withCore runs fn with the shared dependencies and releases them after.
func withCore(ctx context.Context, fn func(cfg *config.Config, core *bootstrap.Core, log *zap.Logger) error) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	core, err := bootstrap.NewCore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer core.Close()

	return fn(cfg, core, log)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
