package repository

import (
	"context"

	"librag/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var paragraphColumns = []string{
	"id", "kb_id", "parent_id", "name", "summary", "content", "position", "keywords",
	"parent_description", "source_text", "metadata", "created_at", "updated_at",
}

type ParagraphRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewParagraphRepository(db *pgxpool.Pool, logger *zap.Logger) *ParagraphRepository {
	return &ParagraphRepository{
		db:     db,
		logger: logger,
	}
}

func insertParagraph(p *models.Paragraph) squirrel.InsertBuilder {
	return squirrel.Insert("paragraphs").
		Columns(paragraphColumns...).
		Values(p.ID, p.KBID, p.ParentID, p.Name, p.Summary, p.Content, p.Position, p.Keywords,
			p.ParentDescription, p.SourceText, p.Metadata, p.CreatedAt, p.UpdatedAt)
}

func (r *ParagraphRepository) GetParagraph(ctx context.Context, id uuid.UUID) (*models.Paragraph, error) {
	ps, err := r.list(ctx, squirrel.Eq{"id": id})
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, ErrNotFound
	}
	return ps[0], nil
}

func (r *ParagraphRepository) GetParagraphsByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Paragraph, error) {
	return r.list(ctx, squirrel.Eq{"id": ids})
}

func (r *ParagraphRepository) ListParagraphsByDocuments(ctx context.Context, kbID int64, documentIDs []uuid.UUID) ([]*models.Paragraph, error) {
	return r.list(ctx, squirrel.Eq{"kb_id": kbID, "parent_id": documentIDs})
}

func (r *ParagraphRepository) ListParagraphsByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.Paragraph, error) {
	return r.list(ctx, squirrel.Eq{"parent_id": documentID})
}

func (r *ParagraphRepository) list(ctx context.Context, where squirrel.Sqlizer) ([]*models.Paragraph, error) {
	query := squirrel.Select(paragraphColumns...).
		From("paragraphs").
		Where(where).
		OrderBy("created_at", "id").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paragraphs []*models.Paragraph
	for rows.Next() {
		var p models.Paragraph
		if err := rows.Scan(
			&p.ID, &p.KBID, &p.ParentID, &p.Name, &p.Summary, &p.Content, &p.Position, &p.Keywords,
			&p.ParentDescription, &p.SourceText, &p.Metadata, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		paragraphs = append(paragraphs, &p)
	}

	return paragraphs, rows.Err()
}
