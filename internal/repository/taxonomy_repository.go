package repository

import (
	"context"
	"fmt"

	"librag/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ParsedDocument is everything one ingestion run writes.
type ParsedDocument struct {
	Document    *models.Document
	Paragraphs  []*models.Paragraph
	Category    *models.Category
	NewCategory bool
	Domain      *models.Domain
	NewDomain   bool
}

// DocumentLink files a document under a category.
type DocumentLink struct {
	DocumentID uuid.UUID
	CategoryID uuid.UUID
}

// Taxonomy is a complete set of domains and categories for one knowledge
// base, with the document links into it.
type Taxonomy struct {
	Domains    []*models.Domain
	Categories []*models.Category
	Links      []DocumentLink
}

// SaveParsedDocument writes a parsed document, its paragraphs and its
// classification in one transaction. Existing category and domain rows are
// updated, new ones inserted.
func (s *Store) SaveParsedDocument(ctx context.Context, p *ParsedDocument) error {
	steps := []squirrel.Sqlizer{insertDocument(p.Document)}
	for _, para := range p.Paragraphs {
		steps = append(steps, insertParagraph(para))
	}
	if p.NewDomain {
		steps = append(steps, insertDomain(p.Domain))
	} else {
		steps = append(steps, updateDomain(p.Domain))
	}
	if p.NewCategory {
		steps = append(steps, insertCategory(p.Category))
	} else {
		steps = append(steps, updateCategory(p.Category))
	}
	steps = append(steps, linkDocument(p.Document.ID, p.Category.ID))

	if err := s.inTx(ctx, steps); err != nil {
		return fmt.Errorf("failed to save document %s: %w", p.Document.ID, err)
	}

	s.logger.Info("Parsed document saved",
		zap.String("document_id", p.Document.ID.String()),
		zap.Int("paragraphs", len(p.Paragraphs)),
		zap.Bool("new_category", p.NewCategory),
		zap.Bool("new_domain", p.NewDomain),
	)
	return nil
}

// ReplaceTaxonomy swaps the domains, categories and document links of a
// knowledge base for t in one transaction. Documents and paragraphs are
// kept.
func (s *Store) ReplaceTaxonomy(ctx context.Context, kbID int64, t *Taxonomy) error {
	steps := []squirrel.Sqlizer{
		squirrel.Delete("document_categories").
			Where(squirrel.Expr("category_id IN (SELECT id FROM categories WHERE kb_id = ?)", kbID)),
		squirrel.Delete("categories").Where(squirrel.Eq{"kb_id": kbID}),
		squirrel.Delete("domains").Where(squirrel.Eq{"kb_id": kbID}),
	}
	for _, d := range t.Domains {
		steps = append(steps, insertDomain(d))
	}
	for _, c := range t.Categories {
		steps = append(steps, insertCategory(c))
	}
	for _, l := range t.Links {
		steps = append(steps, linkDocument(l.DocumentID, l.CategoryID))
	}

	if err := s.inTx(ctx, steps); err != nil {
		return fmt.Errorf("failed to replace taxonomy of knowledge base %d: %w", kbID, err)
	}

	s.logger.Info("Taxonomy rebuilt",
		zap.Int64("kb_id", kbID),
		zap.Int("domains", len(t.Domains)),
		zap.Int("categories", len(t.Categories)),
	)
	return nil
}

func (s *Store) inTx(ctx context.Context, steps []squirrel.Sqlizer) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, step := range steps {
		if err := execTx(ctx, tx, step); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
