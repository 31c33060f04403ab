package repository

import (
	"context"

	"librag/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var categoryColumns = []string{"c.id", "c.kb_id", "c.parent_id", "c.name", "c.description", "c.metadata", "c.created_at", "c.updated_at"}

type CategoryRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewCategoryRepository(db *pgxpool.Pool, logger *zap.Logger) *CategoryRepository {
	return &CategoryRepository{
		db:     db,
		logger: logger,
	}
}

func insertCategory(c *models.Category) squirrel.InsertBuilder {
	return squirrel.Insert("categories").
		Columns("id", "kb_id", "parent_id", "name", "description", "metadata", "created_at", "updated_at").
		Values(c.ID, c.KBID, c.ParentID, c.Name, c.Description, c.Metadata, c.CreatedAt, c.UpdatedAt)
}

func updateCategory(c *models.Category) squirrel.UpdateBuilder {
	return squirrel.Update("categories").
		Set("parent_id", c.ParentID).
		Set("name", c.Name).
		Set("description", c.Description).
		Set("metadata", c.Metadata).
		Set("updated_at", c.UpdatedAt).
		Where(squirrel.Eq{"id": c.ID})
}

func linkDocument(documentID, categoryID uuid.UUID) squirrel.InsertBuilder {
	return squirrel.Insert("document_categories").
		Columns("document_id", "category_id").
		Values(documentID, categoryID).
		Suffix("ON CONFLICT DO NOTHING")
}

func (r *CategoryRepository) ListCategories(ctx context.Context, kbID int64) ([]*models.Category, error) {
	return r.list(ctx, squirrel.Select(categoryColumns...).
		From("categories c").
		Where(squirrel.Eq{"c.kb_id": kbID}))
}

// ListCategoriesByDomains returns the categories whose parent is one of
// domainIDs.
func (r *CategoryRepository) ListCategoriesByDomains(ctx context.Context, kbID int64, domainIDs []uuid.UUID) ([]*models.Category, error) {
	return r.list(ctx, squirrel.Select(categoryColumns...).
		From("categories c").
		Where(squirrel.Eq{"c.kb_id": kbID, "c.parent_id": domainIDs}))
}

func (r *CategoryRepository) ListCategoriesByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.Category, error) {
	return r.list(ctx, squirrel.Select(categoryColumns...).
		From("categories c").
		Join("document_categories dc ON dc.category_id = c.id").
		Where(squirrel.Eq{"dc.document_id": documentID}))
}

func (r *CategoryRepository) list(ctx context.Context, query squirrel.SelectBuilder) ([]*models.Category, error) {
	sql, args, err := query.
		OrderBy("c.created_at", "c.id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []*models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}

func scanCategory(row pgx.Row) (*models.Category, error) {
	var c models.Category
	if err := row.Scan(&c.ID, &c.KBID, &c.ParentID, &c.Name, &c.Description, &c.Metadata, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
