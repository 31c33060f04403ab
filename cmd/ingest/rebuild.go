package main

import (
	"fmt"

	"librag/internal/bootstrap"
	"librag/internal/ingest"
	"librag/internal/repository"
	"librag/pkg/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRebuildCommand() *cobra.Command {
	var (
		kbID    int64
		enqueue bool
	)

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Reclassify every document of a knowledge base",
		Long:  `Rebuilds the categories and domains of a knowledge base from its document descriptions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd.Context(), func(cfg *config.Config, core *bootstrap.Core, log *zap.Logger) error {
				if _, err := repository.NewKnowledgeBaseRepository(core.DB, log).GetByID(cmd.Context(), kbID); err != nil {
					return fmt.Errorf("knowledge base %d: %w", kbID, err)
				}

				if enqueue {
					q := ingest.NewQueue(&cfg.Redis, cfg.Worker, log)
					defer q.Close()
					return q.EnqueueRebuild(cmd.Context(), kbID)
				}

				pipeline, err := core.Pipeline()
				if err != nil {
					return err
				}
				return pipeline.Rebuild(cmd.Context(), kbID)
			})
		},
	}

	cmd.Flags().Int64Var(&kbID, "kb", 0, "Knowledge base ID")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "Queue the rebuild for the worker instead of running it here")
	_ = cmd.MarkFlagRequired("kb")

	return cmd
}
