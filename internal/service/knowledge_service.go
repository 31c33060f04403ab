package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"librag/internal/dto"
	"librag/internal/models"
	"librag/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidMetaType = errors.New("invalid meta type")
)

type MetaType string

const (
	MetaDomain   MetaType = "domain"
	MetaCategory MetaType = "category"
	MetaDocument MetaType = "document"
)

// KnowledgeBaseStore is implemented by *repository.KnowledgeBaseRepository.
type KnowledgeBaseStore interface {
	Create(ctx context.Context, kb *models.KnowledgeBase) error
	GetByID(ctx context.Context, id int64) (*models.KnowledgeBase, error)
	List(ctx context.Context, userID uuid.UUID) ([]*models.KnowledgeBase, error)
	Update(ctx context.Context, kb *models.KnowledgeBase) error
	Delete(ctx context.Context, id int64) error
}

// TaxonomyReader lists the nodes of a knowledge base. *repository.Store
// implements it.
type TaxonomyReader interface {
	ListDomains(ctx context.Context, kbID int64) ([]*models.Domain, error)
	ListCategories(ctx context.Context, kbID int64) ([]*models.Category, error)
	ListCategoriesByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.Category, error)
	ListDocuments(ctx context.Context, kbID int64) ([]*models.Document, error)
}

// Rebuilder schedules a taxonomy rebuild; *ingest.Queue implements it.
type Rebuilder interface {
	EnqueueRebuild(ctx context.Context, kbID int64) error
}

// Invalidator drops cached recall results of a knowledge base.
type Invalidator interface {
	Invalidate(ctx context.Context, kbID int64) error
}

type KnowledgeService struct {
	kbRepo      KnowledgeBaseStore
	taxonomy    TaxonomyReader
	rebuilder   Rebuilder
	invalidator Invalidator
	logger      *zap.Logger
}

// NewKnowledgeService builds the service. invalidator may be nil.
func NewKnowledgeService(kbRepo KnowledgeBaseStore, taxonomy TaxonomyReader, rebuilder Rebuilder, invalidator Invalidator, logger *zap.Logger) *KnowledgeService {
	return &KnowledgeService{
		kbRepo:      kbRepo,
		taxonomy:    taxonomy,
		rebuilder:   rebuilder,
		invalidator: invalidator,
		logger:      logger,
	}
}

// Authorize checks that userID owns knowledge base kbID. The zero UUID is
// the service token and may access every knowledge base.
func (s *KnowledgeService) Authorize(ctx context.Context, userID uuid.UUID, kbID int64) error {
	_, err := s.get(ctx, userID, kbID)
	return err
}

func (s *KnowledgeService) get(ctx context.Context, userID uuid.UUID, kbID int64) (*models.KnowledgeBase, error) {
	kb, err := s.kbRepo.GetByID(ctx, kbID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get knowledge base: %w", err)
	}
	if userID != uuid.Nil && kb.UserID != userID {
		return nil, ErrForbidden
	}
	return kb, nil
}

func (s *KnowledgeService) Create(ctx context.Context, userID uuid.UUID, req *dto.KnowledgeBaseRequest) (*dto.KnowledgeBaseResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	now := time.Now()
	kb := &models.KnowledgeBase{
		UserID:      userID,
		Name:        name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.kbRepo.Create(ctx, kb); err != nil {
		return nil, fmt.Errorf("failed to create knowledge base: %w", err)
	}

	s.logger.Info("Knowledge base created", zap.Int64("kb_id", kb.ID), zap.String("name", kb.Name))
	resp := dto.NewKnowledgeBaseResponse(kb)
	return &resp, nil
}

func (s *KnowledgeService) Get(ctx context.Context, userID uuid.UUID, kbID int64) (*dto.KnowledgeBaseResponse, error) {
	kb, err := s.get(ctx, userID, kbID)
	if err != nil {
		return nil, err
	}
	resp := dto.NewKnowledgeBaseResponse(kb)
	return &resp, nil
}

func (s *KnowledgeService) List(ctx context.Context, userID uuid.UUID) ([]dto.KnowledgeBaseResponse, error) {
	kbs, err := s.kbRepo.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge bases: %w", err)
	}

	resp := make([]dto.KnowledgeBaseResponse, 0, len(kbs))
	for _, kb := range kbs {
		resp = append(resp, dto.NewKnowledgeBaseResponse(kb))
	}
	return resp, nil
}

func (s *KnowledgeService) Update(ctx context.Context, userID uuid.UUID, kbID int64, req *dto.KnowledgeBaseRequest) (*dto.KnowledgeBaseResponse, error) {
	kb, err := s.get(ctx, userID, kbID)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		kb.Name = name
	}
	kb.Description = req.Description
	kb.UpdatedAt = time.Now()

	if err := s.kbRepo.Update(ctx, kb); err != nil {
		return nil, fmt.Errorf("failed to update knowledge base: %w", err)
	}
	resp := dto.NewKnowledgeBaseResponse(kb)
	return &resp, nil
}

// Delete removes the knowledge base with its whole taxonomy.
func (s *KnowledgeService) Delete(ctx context.Context, userID uuid.UUID, kbID int64) error {
	if _, err := s.get(ctx, userID, kbID); err != nil {
		return err
	}
	if err := s.kbRepo.Delete(ctx, kbID); err != nil {
		return fmt.Errorf("failed to delete knowledge base: %w", err)
	}
	s.invalidate(ctx, kbID)
	return nil
}

// Meta lists the taxonomy nodes of one level.
func (s *KnowledgeService) Meta(ctx context.Context, userID uuid.UUID, kbID int64, metaType MetaType) ([]dto.MetaResponse, error) {
	if _, err := s.get(ctx, userID, kbID); err != nil {
		return nil, err
	}

	switch metaType {
	case MetaDomain:
		domains, err := s.taxonomy.ListDomains(ctx, kbID)
		if err != nil {
			return nil, fmt.Errorf("failed to list domains: %w", err)
		}
		resp := make([]dto.MetaResponse, 0, len(domains))
		for _, d := range domains {
			resp = append(resp, dto.MetaResponse{
				ID:          d.ID.String(),
				Name:        d.Name,
				Description: d.Description,
				Metadata:    d.Metadata,
			})
		}
		return resp, nil

	case MetaCategory:
		categories, err := s.taxonomy.ListCategories(ctx, kbID)
		if err != nil {
			return nil, fmt.Errorf("failed to list categories: %w", err)
		}
		resp := make([]dto.MetaResponse, 0, len(categories))
		for _, c := range categories {
			m := dto.MetaResponse{
				ID:          c.ID.String(),
				Name:        c.Name,
				Description: c.Description,
				Metadata:    c.Metadata,
			}
			if c.ParentID != nil {
				parent := c.ParentID.String()
				m.ParentID = &parent
			}
			resp = append(resp, m)
		}
		return resp, nil

	case MetaDocument:
		documents, err := s.taxonomy.ListDocuments(ctx, kbID)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		resp := make([]dto.MetaResponse, 0, len(documents))
		for _, d := range documents {
			categories, err := s.taxonomy.ListCategoriesByDocument(ctx, d.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to list document categories: %w", err)
			}
			m := dto.MetaResponse{
				ID:          d.ID.String(),
				Name:        d.Name,
				Description: d.Description,
				Metadata:    d.Metadata,
			}
			for _, c := range categories {
				m.ParentDescription = append(m.ParentDescription, c.Name)
			}
			resp = append(resp, m)
		}
		return resp, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrInvalidMetaType, metaType)
}

// Rebuild schedules a reclassification of every document of kbID.
func (s *KnowledgeService) Rebuild(ctx context.Context, userID uuid.UUID, kbID int64) error {
	if _, err := s.get(ctx, userID, kbID); err != nil {
		return err
	}
	if err := s.rebuilder.EnqueueRebuild(ctx, kbID); err != nil {
		return fmt.Errorf("failed to schedule rebuild: %w", err)
	}
	return nil
}

func (s *KnowledgeService) invalidate(ctx context.Context, kbID int64) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, kbID); err != nil {
		s.logger.Warn("Failed to invalidate recall cache", zap.Int64("kb_id", kbID), zap.Error(err))
	}
}
