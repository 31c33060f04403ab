package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"librag/internal/repository"
	"librag/pkg/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypeParseDocument = "document:parse"
	TypeRebuildIndex  = "kb:rebuild"

	queueName = "ingest"
)

type parsePayload struct {
	TaskID uuid.UUID `json:"task_id"`
}

type rebuildPayload struct {
	KBID int64 `json:"kb_id"`
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// Queue hands ingestion work to the worker process.
type Queue struct {
	client *asynq.Client
	cfg    config.WorkerConfig
	logger *zap.Logger
}

func NewQueue(redisCfg *config.RedisConfig, workerCfg config.WorkerConfig, logger *zap.Logger) *Queue {
	return &Queue{
		client: asynq.NewClient(redisOpt(redisCfg)),
		cfg:    workerCfg,
		logger: logger,
	}
}

// EnqueueParse schedules the processing task taskID. The asynq task ID is
// the processing task ID, so a task cannot be queued twice.
func (q *Queue) EnqueueParse(ctx context.Context, taskID uuid.UUID) error {
	payload, err := json.Marshal(parsePayload{TaskID: taskID})
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	return q.enqueue(ctx, asynq.NewTask(TypeParseDocument, payload), asynq.TaskID(taskID.String()))
}

// EnqueueRebuild schedules a taxonomy rebuild of kbID.
func (q *Queue) EnqueueRebuild(ctx context.Context, kbID int64) error {
	payload, err := json.Marshal(rebuildPayload{KBID: kbID})
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	return q.enqueue(ctx, asynq.NewTask(TypeRebuildIndex, payload))
}

func (q *Queue) enqueue(ctx context.Context, t *asynq.Task, opts ...asynq.Option) error {
	opts = append(opts,
		asynq.Queue(queueName),
		asynq.MaxRetry(q.cfg.MaxRetry),
		asynq.Timeout(q.cfg.TaskTimeout),
	)
	info, err := q.client.EnqueueContext(ctx, t, opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.Info("Task enqueued",
		zap.String("type", t.Type()),
		zap.String("id", info.ID),
		zap.String("queue", info.Queue),
	)
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Processor is the work behind the queue; *Pipeline implements it.
type Processor interface {
	Process(ctx context.Context, taskID uuid.UUID) error
	Rebuild(ctx context.Context, kbID int64) error
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor Processor
	logger    *zap.Logger
}

func NewWorker(redisCfg *config.RedisConfig, workerCfg config.WorkerConfig, processor Processor, logger *zap.Logger) *Worker {
	server := asynq.NewServer(redisOpt(redisCfg), asynq.Config{
		Concurrency: workerCfg.Concurrency,
		Queues:      map[string]int{queueName: 1},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return time.Duration(n) * time.Minute
		},
		Logger:          logger.Sugar(),
		ShutdownTimeout: 30 * time.Second,
	})

	w := &Worker{
		server:    server,
		mux:       asynq.NewServeMux(),
		processor: processor,
		logger:    logger,
	}
	w.mux.HandleFunc(TypeParseDocument, w.handleParse)
	w.mux.HandleFunc(TypeRebuildIndex, w.handleRebuild)
	return w
}

// Run processes tasks until the process gets SIGTERM or SIGINT.
func (w *Worker) Run() error {
	return w.server.Run(w.mux)
}

func (w *Worker) handleParse(ctx context.Context, t *asynq.Task) error {
	var p parsePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		w.logger.Error("Failed to unmarshal task", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}

	w.logger.Info("Processing document task", zap.String("task_id", p.TaskID.String()))
	if err := w.processor.Process(ctx, p.TaskID); err != nil {
		if permanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

func (w *Worker) handleRebuild(ctx context.Context, t *asynq.Task) error {
	var p rebuildPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}

	w.logger.Info("Rebuilding index", zap.Int64("kb_id", p.KBID))
	return w.processor.Rebuild(ctx, p.KBID)
}

// permanent reports errors a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, ErrUnsupportedFile) ||
		errors.Is(err, ErrUnknownStrategy) ||
		errors.Is(err, ErrEmptyDocument)
}
