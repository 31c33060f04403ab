package main

import (
	"librag/internal/bootstrap"
	"librag/internal/ingest"
	"librag/pkg/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued parse and rebuild tasks",
		Long:  `Runs the asynq worker until SIGINT or SIGTERM. Uploads made through the API are parsed here.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd.Context(), func(cfg *config.Config, core *bootstrap.Core, log *zap.Logger) error {
				pipeline, err := core.Pipeline()
				if err != nil {
					return err
				}

				log.Info("Starting ingestion worker",
					zap.Int("concurrency", cfg.Worker.Concurrency),
					zap.Int("llm_pool", core.Pool.Size()),
				)
				return ingest.NewWorker(&cfg.Redis, cfg.Worker, pipeline, log).Run()
			})
		},
	}
}
