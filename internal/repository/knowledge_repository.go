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

var kbColumns = []string{"id", "user_id", "name", "description", "created_at", "updated_at"}

type KnowledgeBaseRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewKnowledgeBaseRepository(db *pgxpool.Pool, logger *zap.Logger) *KnowledgeBaseRepository {
	return &KnowledgeBaseRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts kb and fills in its generated id.
func (r *KnowledgeBaseRepository) Create(ctx context.Context, kb *models.KnowledgeBase) error {
	query := squirrel.Insert("knowledge_bases").
		Columns("user_id", "name", "description", "created_at", "updated_at").
		Values(kb.UserID, kb.Name, kb.Description, kb.CreatedAt, kb.UpdatedAt).
		Suffix("RETURNING id").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	return r.db.QueryRow(ctx, sql, args...).Scan(&kb.ID)
}

func (r *KnowledgeBaseRepository) GetByID(ctx context.Context, id int64) (*models.KnowledgeBase, error) {
	query := squirrel.Select(kbColumns...).
		From("knowledge_bases").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var kb models.KnowledgeBase
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&kb.ID, &kb.UserID, &kb.Name, &kb.Description, &kb.CreatedAt, &kb.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	return &kb, nil
}

// List returns the knowledge bases of userID, or all of them when userID is
// the zero UUID.
func (r *KnowledgeBaseRepository) List(ctx context.Context, userID uuid.UUID) ([]*models.KnowledgeBase, error) {
	query := squirrel.Select(kbColumns...).
		From("knowledge_bases").
		OrderBy("id").
		PlaceholderFormat(squirrel.Dollar)
	if userID != uuid.Nil {
		query = query.Where(squirrel.Eq{"user_id": userID})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kbs []*models.KnowledgeBase
	for rows.Next() {
		var kb models.KnowledgeBase
		if err := rows.Scan(&kb.ID, &kb.UserID, &kb.Name, &kb.Description, &kb.CreatedAt, &kb.UpdatedAt); err != nil {
			return nil, err
		}
		kbs = append(kbs, &kb)
	}

	return kbs, rows.Err()
}

func (r *KnowledgeBaseRepository) Update(ctx context.Context, kb *models.KnowledgeBase) error {
	query := squirrel.Update("knowledge_bases").
		Set("name", kb.Name).
		Set("description", kb.Description).
		Set("updated_at", kb.UpdatedAt).
		Where(squirrel.Eq{"id": kb.ID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the knowledge base and its whole taxonomy in one
// transaction, children first.
func (r *KnowledgeBaseRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	steps := []squirrel.Sqlizer{
		squirrel.Delete("paragraphs").Where(squirrel.Eq{"kb_id": id}),
		squirrel.Delete("document_categories").
			Where(squirrel.Expr("document_id IN (SELECT id FROM documents WHERE kb_id = ?)", id)),
		squirrel.Delete("processing_tasks").Where(squirrel.Eq{"kb_id": id}),
		squirrel.Delete("documents").Where(squirrel.Eq{"kb_id": id}),
		squirrel.Delete("categories").Where(squirrel.Eq{"kb_id": id}),
		squirrel.Delete("domains").Where(squirrel.Eq{"kb_id": id}),
	}
	for _, step := range steps {
		if err := execTx(ctx, tx, step); err != nil {
			return err
		}
	}

	sql, args, err := squirrel.Delete("knowledge_bases").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to delete knowledge base: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	r.logger.Info("Knowledge base deleted", zap.Int64("kb_id", id))
	return nil
}

// execTx runs a statement built with ? placeholders inside tx.
func execTx(ctx context.Context, tx pgx.Tx, stmt squirrel.Sqlizer) error {
	sql, args, err := stmt.ToSql()
	if err != nil {
		return err
	}
	sql, err = squirrel.Dollar.ReplacePlaceholders(sql)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to exec %q: %w", sql, err)
	}
	return nil
}
