package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"librag/internal/dto"
	"librag/internal/retrieval"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Retriever runs the retrieval funnel; *retrieval.Funnel implements it.
type Retriever interface {
	RetrieveObserved(ctx context.Context, question string, kbID int64, opts retrieval.Options, observe retrieval.Observer) ([]dto.ParagraphRecord, error)
}

// RecallCache stores recall results; *cache.RecallCache implements it.
type RecallCache interface {
	Get(ctx context.Context, req dto.RecallRequest) ([]dto.ParagraphRecord, bool)
	Set(ctx context.Context, req dto.RecallRequest, records []dto.ParagraphRecord)
}

// Authorizer checks knowledge base access; *KnowledgeService implements it.
type Authorizer interface {
	Authorize(ctx context.Context, userID uuid.UUID, kbID int64) error
}

type RecallService struct {
	retriever Retriever
	access    Authorizer
	cache     RecallCache
	logger    *zap.Logger
}

// NewRecallService builds the service. cache may be nil.
func NewRecallService(retriever Retriever, access Authorizer, cache RecallCache, logger *zap.Logger) *RecallService {
	return &RecallService{
		retriever: retriever,
		access:    access,
		cache:     cache,
		logger:    logger,
	}
}

// Validate trims the question, checks the required fields and authorizes
// userID on the knowledge base.
func (s *RecallService) Validate(ctx context.Context, userID uuid.UUID, req *dto.RecallRequest) error {
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	if req.KBID <= 0 {
		return fmt.Errorf("%w: kb_id is required", ErrInvalidInput)
	}
	return s.access.Authorize(ctx, userID, req.KBID)
}

func options(req *dto.RecallRequest) retrieval.Options {
	return retrieval.Options{
		HasSourceText:  req.HasSourceText,
		ScoreThreshold: req.ScoreThreshold,
		HasScore:       req.Scoring(),
	}
}

// Recall answers req from the cache when possible and from the funnel
// otherwise.
func (s *RecallService) Recall(ctx context.Context, userID uuid.UUID, req *dto.RecallRequest) ([]dto.ParagraphRecord, error) {
	if err := s.Validate(ctx, userID, req); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if records, ok := s.cache.Get(ctx, *req); ok {
			s.logger.Debug("Recall cache hit", zap.Int64("kb_id", req.KBID))
			return records, nil
		}
	}

	return s.retrieve(ctx, req, nil)
}

// RecallStream is Recall with stage events for a request that already
// passed Validate. It always runs the funnel so every stage is reported.
func (s *RecallService) RecallStream(ctx context.Context, req *dto.RecallRequest, observe retrieval.Observer) ([]dto.ParagraphRecord, error) {
	return s.retrieve(ctx, req, observe)
}

func (s *RecallService) retrieve(ctx context.Context, req *dto.RecallRequest, observe retrieval.Observer) ([]dto.ParagraphRecord, error) {
	started := time.Now()
	records, err := s.retriever.RetrieveObserved(ctx, req.Question, req.KBID, options(req), observe)
	if err != nil {
		return nil, fmt.Errorf("failed to recall: %w", err)
	}

	s.logger.Info("Recall completed",
		zap.Int64("kb_id", req.KBID),
		zap.Int("paragraphs", len(records)),
		zap.Duration("elapsed", time.Since(started)),
	)

	if s.cache != nil {
		s.cache.Set(ctx, *req, records)
	}
	return records, nil
}
