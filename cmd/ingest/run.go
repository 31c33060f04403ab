package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"librag/internal/bootstrap"
	"librag/internal/ingest"
	"librag/internal/models"
	"librag/internal/repository"
	"librag/internal/service"
	"librag/pkg/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// collectQueue records parse requests so run can process them in-process.
type collectQueue struct {
	ids []uuid.UUID
}

func (q *collectQueue) EnqueueParse(_ context.Context, taskID uuid.UUID) error {
	q.ids = append(q.ids, taskID)
	return nil
}

func newRunCommand() *cobra.Command {
	var (
		kbID     int64
		strategy string
		enqueue  bool
	)

	cmd := &cobra.Command{
		Use:   "run [file or directory]...",
		Short: "Ingest local files into a knowledge base",
		Long: `Uploads every supported file (pdf, txt, md) found in the arguments and parses it
in this process. Directories are walked recursively. With --enqueue the files are
only queued and a running worker parses them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := collectFiles(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no supported files in %v", args)
			}

			return withCore(cmd.Context(), func(cfg *config.Config, core *bootstrap.Core, log *zap.Logger) error {
				kbService := service.NewKnowledgeService(
					repository.NewKnowledgeBaseRepository(core.DB, log), core.Store, nil, core.Invalidator(), log,
				)

				collected := &collectQueue{}
				var queue service.ParseQueue = collected
				if enqueue {
					q := ingest.NewQueue(&cfg.Redis, cfg.Worker, log)
					defer q.Close()
					queue = q
				}
				docService := service.NewDocumentService(core.Files, core.Tasks, core.Store, queue, kbService, core.Invalidator(), log)

				return ingestFiles(cmd.Context(), core, docService, collected, paths, kbID, models.ParseStrategy(strategy), log)
			})
		},
	}

	cmd.Flags().Int64Var(&kbID, "kb", 0, "Knowledge base ID")
	cmd.Flags().StringVar(&strategy, "strategy", string(models.ParseStrategyPageSplit), "page_split or agentic_chunking")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "Queue the files for the worker instead of parsing them here")
	_ = cmd.MarkFlagRequired("kb")

	return cmd
}

func ingestFiles(
	ctx context.Context,
	core *bootstrap.Core,
	docService *service.DocumentService,
	collected *collectQueue,
	paths []string,
	kbID int64,
	strategy models.ParseStrategy,
	log *zap.Logger,
) error {
	for _, path := range paths {
		err := upload(ctx, docService, path, kbID, strategy)
		if errors.Is(err, service.ErrDuplicate) {
			fmt.Printf("skipped %v\n", err)
			continue
		}
		if err != nil {
			return err
		}
		fmt.Printf("uploaded %s\n", path)
	}
	if len(collected.ids) == 0 {
		return nil
	}

	pipeline, err := core.Pipeline()
	if err != nil {
		return err
	}

	failed := 0
	for _, id := range collected.ids {
		if err := pipeline.Process(ctx, id); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			fmt.Printf("task %s failed: %v\n", id, err)
			continue
		}
		task, err := core.Tasks.GetTask(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("task %s done: %s\n", id, task.FileName)
	}

	log.Info("Ingestion finished",
		zap.Int64("kb_id", kbID),
		zap.Int("files", len(collected.ids)),
		zap.Int("failed", failed),
	)
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(collected.ids))
	}
	return nil
}

func upload(ctx context.Context, docService *service.DocumentService, path string, kbID int64, strategy models.ParseStrategy) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := docService.UploadDocument(ctx, uuid.Nil, kbID, filepath.Base(path), strategy, f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// collectFiles expands directories into the supported files under them.
// Files named explicitly are kept even when unsupported so the upload
// reports the error.
func collectFiles(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && ingest.Supported(d.Name()) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", arg, err)
		}
	}
	return paths, nil
}
