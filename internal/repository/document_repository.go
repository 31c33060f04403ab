package repository

import (
	"context"
	"fmt"

	"librag/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var documentColumns = []string{"d.id", "d.kb_id", "d.name", "d.description", "d.parse_strategy", "d.file_path", "d.metadata", "d.created_at", "d.updated_at"}

type DocumentRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDocumentRepository(db *pgxpool.Pool, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

func insertDocument(doc *models.Document) squirrel.InsertBuilder {
	return squirrel.Insert("documents").
		Columns("id", "kb_id", "name", "description", "parse_strategy", "file_path", "metadata", "created_at", "updated_at").
		Values(doc.ID, doc.KBID, doc.Name, doc.Description, doc.ParseStrategy, doc.FilePath, doc.Metadata, doc.CreatedAt, doc.UpdatedAt)
}

func (r *DocumentRepository) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	docs, err := r.list(ctx, squirrel.Select(documentColumns...).
		From("documents d").
		Where(squirrel.Eq{"d.id": id}))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

func (r *DocumentRepository) GetDocumentsByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Document, error) {
	return r.list(ctx, squirrel.Select(documentColumns...).
		From("documents d").
		Where(squirrel.Eq{"d.id": ids}))
}

func (r *DocumentRepository) ListDocuments(ctx context.Context, kbID int64) ([]*models.Document, error) {
	return r.list(ctx, squirrel.Select(documentColumns...).
		From("documents d").
		Where(squirrel.Eq{"d.kb_id": kbID}))
}

// ListDocumentsByCategories returns the documents linked to any of
// categoryIDs, each once.
func (r *DocumentRepository) ListDocumentsByCategories(ctx context.Context, kbID int64, categoryIDs []uuid.UUID) ([]*models.Document, error) {
	linked := squirrel.Select("1").
		From("document_categories dc").
		Where("dc.document_id = d.id").
		Where(squirrel.Eq{"dc.category_id": categoryIDs})

	return r.list(ctx, squirrel.Select(documentColumns...).
		From("documents d").
		Where(squirrel.Eq{"d.kb_id": kbID}).
		Where(squirrel.Expr("EXISTS (?)", linked)))
}

// DeleteDocument removes the document with its paragraphs and category
// links in one transaction.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	steps := []squirrel.Sqlizer{
		squirrel.Delete("paragraphs").Where(squirrel.Eq{"parent_id": id}),
		squirrel.Delete("document_categories").Where(squirrel.Eq{"document_id": id}),
		squirrel.Update("processing_tasks").Set("document_id", nil).Where(squirrel.Eq{"document_id": id}),
	}
	for _, step := range steps {
		if err := execTx(ctx, tx, step); err != nil {
			return err
		}
	}

	sql, args, err := squirrel.Delete("documents").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

func (r *DocumentRepository) list(ctx context.Context, query squirrel.SelectBuilder) ([]*models.Document, error) {
	sql, args, err := query.
		OrderBy("d.created_at", "d.id").
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

	var documents []*models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(
			&doc.ID, &doc.KBID, &doc.Name, &doc.Description, &doc.ParseStrategy, &doc.FilePath, &doc.Metadata, &doc.CreatedAt, &doc.UpdatedAt,
		); err != nil {
			return nil, err
		}
		documents = append(documents, &doc)
	}

	return documents, rows.Err()
}
