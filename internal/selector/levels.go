package selector

import (
	"context"

	"librag/internal/llm"
	"librag/internal/models"
	"librag/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Source is the read side of the taxonomy store. *repository.Store
// implements it.
type Source interface {
	ListDomains(ctx context.Context, kbID int64) ([]*models.Domain, error)
	ListCategories(ctx context.Context, kbID int64) ([]*models.Category, error)
	ListCategoriesByDomains(ctx context.Context, kbID int64, domainIDs []uuid.UUID) ([]*models.Category, error)
	ListDocuments(ctx context.Context, kbID int64) ([]*models.Document, error)
	ListDocumentsByCategories(ctx context.Context, kbID int64, categoryIDs []uuid.UUID) ([]*models.Document, error)
	ListParagraphsByDocuments(ctx context.Context, kbID int64, documentIDs []uuid.UUID) ([]*models.Paragraph, error)
}

func fallback(cfg config.SelectorConfig) FallbackPolicy {
	if cfg.FallbackEnabled {
		return FallbackToLevel
	}
	return NoFallback
}

func NewDomainSelector(src Source, classifier llm.Classifier, prompts llm.Prompts, logger *zap.Logger) *Stage {
	return NewStage(Level{
		Name:   "domain",
		Plural: "domains",
		Prompt: llm.PromptDomainSelect,
		All: func(ctx context.Context, kbID int64) ([]Candidate, error) {
			ds, err := src.ListDomains(ctx, kbID)
			return domainCandidates(ds), err
		},
	}, classifier, prompts, logger)
}

func NewCategorySelector(src Source, classifier llm.Classifier, prompts llm.Prompts, cfg config.SelectorConfig, logger *zap.Logger) *Stage {
	return NewStage(Level{
		Name:     "category",
		Plural:   "categories",
		Prompt:   llm.PromptCategorySelect,
		Fallback: fallback(cfg),
		All: func(ctx context.Context, kbID int64) ([]Candidate, error) {
			cs, err := src.ListCategories(ctx, kbID)
			return categoryCandidates(cs), err
		},
		Children: func(ctx context.Context, kbID int64, parents []uuid.UUID) ([]Candidate, error) {
			cs, err := src.ListCategoriesByDomains(ctx, kbID, parents)
			return categoryCandidates(cs), err
		},
	}, classifier, prompts, logger)
}

func NewDocumentSelector(src Source, classifier llm.Classifier, prompts llm.Prompts, cfg config.SelectorConfig, logger *zap.Logger) *Stage {
	return NewStage(Level{
		Name:      "document",
		Plural:    "documents",
		Prompt:    llm.PromptDocumentSelect,
		GroupSize: cfg.GroupSize,
		Fallback:  fallback(cfg),
		All: func(ctx context.Context, kbID int64) ([]Candidate, error) {
			ds, err := src.ListDocuments(ctx, kbID)
			return documentCandidates(ds), err
		},
		Children: func(ctx context.Context, kbID int64, parents []uuid.UUID) ([]Candidate, error) {
			ds, err := src.ListDocumentsByCategories(ctx, kbID, parents)
			return documentCandidates(ds), err
		},
	}, classifier, prompts, logger)
}

// NewParagraphSelector never falls back: no selected document means no
// paragraph.
func NewParagraphSelector(src Source, classifier llm.Classifier, prompts llm.Prompts, cfg config.SelectorConfig, logger *zap.Logger) *Stage {
	return NewStage(Level{
		Name:      "paragraph",
		Plural:    "paragraphs",
		Prompt:    llm.PromptParagraphSelect,
		GroupSize: cfg.GroupSize,
		Fallback:  NoFallback,
		Children: func(ctx context.Context, kbID int64, parents []uuid.UUID) ([]Candidate, error) {
			ps, err := src.ListParagraphsByDocuments(ctx, kbID, parents)
			return paragraphCandidates(ps), err
		},
	}, classifier, prompts, logger)
}

func domainCandidates(ds []*models.Domain) []Candidate {
	out := make([]Candidate, 0, len(ds))
	for _, d := range ds {
		out = append(out, Candidate{ID: d.ID, Name: d.Name, Description: d.Description})
	}
	return out
}

func categoryCandidates(cs []*models.Category) []Candidate {
	out := make([]Candidate, 0, len(cs))
	for _, c := range cs {
		out = append(out, Candidate{ID: c.ID, Name: c.Name, Description: c.Description})
	}
	return out
}

func documentCandidates(ds []*models.Document) []Candidate {
	out := make([]Candidate, 0, len(ds))
	for _, d := range ds {
		out = append(out, Candidate{ID: d.ID, Name: d.Name, Description: d.Description})
	}
	return out
}

func paragraphCandidates(ps []*models.Paragraph) []Candidate {
	out := make([]Candidate, 0, len(ps))
	for _, p := range ps {
		out = append(out, Candidate{ID: p.ID, Name: p.Name, Description: p.Summary + ";" + p.ParentDescription})
	}
	return out
}
