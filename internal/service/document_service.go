package service

import (
	"cmp"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"librag/internal/dto"
	"librag/internal/ingest"
	"librag/internal/models"
	"librag/internal/repository"
	"librag/internal/splitter"
	"librag/pkg/config"
	"librag/pkg/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrDuplicate       = errors.New("document already uploaded")
)

// TaskStore is implemented by *repository.TaskRepository.
type TaskStore interface {
	CreateTask(ctx context.Context, t *models.ProcessingTask) error
	ListTasks(ctx context.Context, kbID int64) ([]*models.ProcessingTask, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.TaskStatus, errMsg string) error
	FindActiveTask(ctx context.Context, kbID int64, fileName string, strategy models.ParseStrategy) (*models.ProcessingTask, error)
}

// DocumentStore is implemented by *repository.Store.
type DocumentStore interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	GetParagraph(ctx context.Context, id uuid.UUID) (*models.Paragraph, error)
	ListParagraphsByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.Paragraph, error)
}

// ParseQueue schedules ingestion; *ingest.Queue implements it.
type ParseQueue interface {
	EnqueueParse(ctx context.Context, taskID uuid.UUID) error
}

type DocumentService struct {
	files       storage.Storage
	tasks       TaskStore
	store       DocumentStore
	queue       ParseQueue
	access      Authorizer
	invalidator Invalidator
	logger      *zap.Logger
}

// NewDocumentService builds the service. invalidator may be nil.
func NewDocumentService(
	files storage.Storage,
	tasks TaskStore,
	store DocumentStore,
	queue ParseQueue,
	access Authorizer,
	invalidator Invalidator,
	logger *zap.Logger,
) *DocumentService {
	return &DocumentService{
		files:       files,
		tasks:       tasks,
		store:       store,
		queue:       queue,
		access:      access,
		invalidator: invalidator,
		logger:      logger,
	}
}

// UploadDocument stores the file, records a pending processing task and
// queues it for ingestion. A file name already pending, processing or
// parsed under the same strategy in the knowledge base is rejected with
// ErrDuplicate; failed uploads may be retried.
func (s *DocumentService) UploadDocument(ctx context.Context, userID uuid.UUID, kbID int64, fileName string, strategy models.ParseStrategy, file io.Reader) (*dto.TaskResponse, error) {
	if err := s.access.Authorize(ctx, userID, kbID); err != nil {
		return nil, err
	}
	if strategy == "" {
		strategy = models.ParseStrategyPageSplit
	}
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: parse_strategy %q", ErrInvalidInput, strategy)
	}
	fileName = filepath.Base(fileName)
	if !ingest.Supported(fileName) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(fileName))
	}

	existing, err := s.tasks.FindActiveTask(ctx, kbID, fileName, strategy)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s with strategy %s (task %s)", ErrDuplicate, fileName, strategy, existing.ID)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to check duplicate upload: %w", err)
	}

	taskID := uuid.New()
	hash := md5.New()
	key := fmt.Sprintf("%d/%s%s", kbID, taskID, strings.ToLower(filepath.Ext(fileName)))
	key, err = s.files.Store(ctx, io.TeeReader(file, hash), key)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	now := time.Now()
	task := &models.ProcessingTask{
		ID:            taskID,
		KBID:          kbID,
		FileName:      fileName,
		FilePath:      key,
		FileHash:      hex.EncodeToString(hash.Sum(nil)),
		ParseStrategy: strategy,
		Status:        models.TaskStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		if delErr := s.files.Delete(ctx, key); delErr != nil {
			s.logger.Warn("Failed to remove stored file", zap.String("key", key), zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if err := s.queue.EnqueueParse(ctx, task.ID); err != nil {
		task.Status = models.TaskStatusFailed
		task.Error = err.Error()
		if setErr := s.tasks.SetStatus(context.WithoutCancel(ctx), task.ID, task.Status, task.Error); setErr != nil {
			s.logger.Error("Failed to mark task failed", zap.String("task_id", task.ID.String()), zap.Error(setErr))
		}
		return nil, fmt.Errorf("failed to queue task: %w", err)
	}

	s.logger.Info("Document uploaded",
		zap.String("task_id", task.ID.String()),
		zap.Int64("kb_id", kbID),
		zap.String("file", fileName),
		zap.String("strategy", string(strategy)),
		zap.String("md5", task.FileHash),
	)
	resp := dto.NewTaskResponse(task)
	return &resp, nil
}

func (s *DocumentService) ListTasks(ctx context.Context, userID uuid.UUID, kbID int64) ([]dto.TaskResponse, error) {
	if err := s.access.Authorize(ctx, userID, kbID); err != nil {
		return nil, err
	}

	tasks, err := s.tasks.ListTasks(ctx, kbID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	resp := make([]dto.TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, dto.NewTaskResponse(t))
	}
	return resp, nil
}

func (s *DocumentService) document(ctx context.Context, userID, id uuid.UUID) (*models.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if err := s.access.Authorize(ctx, userID, doc.KBID); err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteDocument removes a document with its paragraphs and source file.
// Categories and domains stay until the next rebuild.
func (s *DocumentService) DeleteDocument(ctx context.Context, userID, id uuid.UUID) error {
	doc, err := s.document(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if doc.FilePath != "" {
		if err := s.files.Delete(ctx, doc.FilePath); err != nil {
			s.logger.Warn("Failed to remove stored file", zap.String("key", doc.FilePath), zap.Error(err))
		}
	}
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, doc.KBID); err != nil {
			s.logger.Warn("Failed to invalidate recall cache", zap.Int64("kb_id", doc.KBID), zap.Error(err))
		}
	}

	s.logger.Info("Document deleted", zap.String("document_id", id.String()), zap.Int64("kb_id", doc.KBID))
	return nil
}

// Paragraphs lists the paragraphs of a document. Page-split documents are
// ordered by page number.
func (s *DocumentService) Paragraphs(ctx context.Context, userID, documentID uuid.UUID) ([]dto.ParagraphResponse, error) {
	doc, err := s.document(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}

	paragraphs, err := s.store.ListParagraphsByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list paragraphs: %w", err)
	}
	if doc.ParseStrategy == models.ParseStrategyPageSplit {
		sortByPage(paragraphs)
	}

	resp := make([]dto.ParagraphResponse, 0, len(paragraphs))
	for _, p := range paragraphs {
		resp = append(resp, dto.NewParagraphResponse(p))
	}
	return resp, nil
}

// sortByPage orders paragraphs by page number, keeping the stored order
// within a page. Positions that are not page labels sort last.
func sortByPage(paragraphs []*models.Paragraph) {
	page := func(p *models.Paragraph) int {
		if n, ok := ingest.PageNumber(p.Position); ok {
			return n
		}
		return math.MaxInt
	}
	slices.SortStableFunc(paragraphs, func(a, b *models.Paragraph) int {
		return cmp.Compare(page(a), page(b))
	})
}

func (s *DocumentService) Paragraph(ctx context.Context, userID, id uuid.UUID) (*dto.ParagraphResponse, error) {
	p, err := s.store.GetParagraph(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get paragraph: %w", err)
	}
	if err := s.access.Authorize(ctx, userID, p.KBID); err != nil {
		return nil, err
	}
	resp := dto.NewParagraphResponse(p)
	return &resp, nil
}

// SplitText chunks req.Text. Empty granularity and a missing overlap take
// the configured defaults.
func SplitText(req *dto.SplitRequest, defaults config.SplitterConfig) (*dto.SplitResponse, error) {
	granularity := req.Granularity
	if granularity == "" {
		granularity = defaults.Granularity
	}
	g, err := splitter.ParseGranularity(granularity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	overlap := defaults.OverlapUnits
	if req.OverlapUnits != nil {
		overlap = *req.OverlapUnits
	}

	chunks, err := splitter.Split(req.Text, g, req.ChunkSize, overlap)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if chunks == nil {
		chunks = []string{}
	}
	return &dto.SplitResponse{Chunks: chunks}, nil
}
