// Package bootstrap builds the dependencies shared by the API server and
// the ingestion CLI from one Config.
package bootstrap

import (
	"context"
	"fmt"
	"io"

	"librag/internal/cache"
	"librag/internal/ingest"
	"librag/internal/llm"
	"librag/internal/repository"
	"librag/internal/splitter"
	"librag/pkg/config"
	"librag/pkg/postgres"
	"librag/pkg/storage"
	"librag/pkg/workerpool"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Invalidator drops cached recall results of a knowledge base.
type Invalidator interface {
	Invalidate(ctx context.Context, kbID int64) error
}

type Core struct {
	Config     *config.Config
	DB         *pgxpool.Pool
	Store      *repository.Store
	Tasks      *repository.TaskRepository
	Files      storage.Storage
	Pool       *workerpool.Pool
	Classifier *llm.LLMClassifier
	Prompts    llm.Prompts
	// Cache is nil when the recall cache is disabled.
	Cache *cache.RecallCache

	logger  *zap.Logger
	closers []io.Closer
}

func NewCore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Core, error) {
	c := &Core{Config: cfg, logger: logger}

	db, err := postgres.NewPool(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	c.DB = db
	c.Store = repository.NewStore(db, logger)
	c.Tasks = repository.NewTaskRepository(db, logger)

	files, err := storage.New(ctx, &cfg.Storage, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	c.Files = files

	prompts, err := llm.LoadPrompts()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	c.Prompts = prompts

	completer, closer, err := llm.NewCompleter(ctx, &cfg.LLM, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to init llm: %w", err)
	}
	c.closers = append(c.closers, closer)

	c.Pool = workerpool.New("llm", cfg.Worker.PoolSize, logger)
	c.Classifier = llm.NewClassifier(completer, c.Pool, llm.ClassifierConfig{
		MaxAttempts: cfg.LLM.MaxAttempts,
		BackoffBase: cfg.LLM.BackoffBase,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	if cfg.Cache.Enabled {
		client, err := cache.NewClient(ctx, &cfg.Redis)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, client)
		c.Cache = cache.NewRecallCache(client, cfg.Cache.TTL, logger)
		logger.Info("Recall cache enabled", zap.Duration("ttl", cfg.Cache.TTL))
	}

	return c, nil
}

// Invalidator returns the recall cache, or nil when caching is disabled.
func (c *Core) Invalidator() Invalidator {
	if c.Cache == nil {
		return nil
	}
	return c.Cache
}

// Pipeline builds the ingestion pipeline with the configured splitter.
func (c *Core) Pipeline() (*ingest.Pipeline, error) {
	g, err := splitter.ParseGranularity(c.Config.Splitter.Granularity)
	if err != nil {
		return nil, err
	}
	split, err := splitter.New(g, c.Config.Splitter.ChunkSize, splitter.WithOverlap(c.Config.Splitter.OverlapUnits))
	if err != nil {
		return nil, fmt.Errorf("failed to build splitter: %w", err)
	}

	parsers := ingest.NewParsers(c.Classifier, c.Prompts, c.Pool, split, c.logger)
	return ingest.NewPipeline(c.Store, c.Tasks, c.Files, parsers, c.Invalidator(), c.logger), nil
}

func (c *Core) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			c.logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
