package repository

import (
	"context"

	"librag/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var taskColumns = []string{
	"id", "kb_id", "document_id", "file_name", "file_path", "file_hash", "parse_strategy",
	"status", "progress", "error", "created_at", "updated_at",
}

type TaskRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTaskRepository(db *pgxpool.Pool, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

func (r *TaskRepository) CreateTask(ctx context.Context, t *models.ProcessingTask) error {
	query := squirrel.Insert("processing_tasks").
		Columns(taskColumns...).
		Values(t.ID, t.KBID, t.DocumentID, t.FileName, t.FilePath, t.FileHash, t.ParseStrategy,
			t.Status, t.Progress, t.Error, t.CreatedAt, t.UpdatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *TaskRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.TaskStatus, errMsg string) error {
	return r.update(ctx, id, map[string]any{"status": status, "error": errMsg})
}

func (r *TaskRepository) SetProgress(ctx context.Context, id uuid.UUID, progress int) error {
	return r.update(ctx, id, map[string]any{"progress": progress})
}

func (r *TaskRepository) SetDocument(ctx context.Context, id, documentID uuid.UUID) error {
	return r.update(ctx, id, map[string]any{"document_id": documentID})
}

func (r *TaskRepository) update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	query := squirrel.Update("processing_tasks").
		SetMap(fields).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
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

func (r *TaskRepository) GetTask(ctx context.Context, id uuid.UUID) (*models.ProcessingTask, error) {
	tasks, err := r.list(ctx, squirrel.Eq{"id": id})
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrNotFound
	}
	return tasks[0], nil
}

func (r *TaskRepository) ListTasks(ctx context.Context, kbID int64) ([]*models.ProcessingTask, error) {
	return r.list(ctx, squirrel.Eq{"kb_id": kbID})
}

// FindActiveTask returns the newest task of kbID that already holds
// fileName under strategy.
func (r *TaskRepository) FindActiveTask(ctx context.Context, kbID int64, fileName string, strategy models.ParseStrategy) (*models.ProcessingTask, error) {
	tasks, err := r.list(ctx, activeTaskWhere(kbID, fileName, strategy))
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrNotFound
	}
	return tasks[0], nil
}

// activeTaskWhere matches tasks still pending or processing, and succeeded
// tasks whose document was not deleted since.
func activeTaskWhere(kbID int64, fileName string, strategy models.ParseStrategy) squirrel.Sqlizer {
	return squirrel.And{
		squirrel.Eq{"kb_id": kbID, "file_name": fileName, "parse_strategy": strategy},
		squirrel.Or{
			squirrel.Eq{"status": []models.TaskStatus{models.TaskStatusPending, models.TaskStatusProcessing}},
			squirrel.And{
				squirrel.Eq{"status": models.TaskStatusSucceed},
				squirrel.NotEq{"document_id": nil},
			},
		},
	}
}

func (r *TaskRepository) list(ctx context.Context, where squirrel.Sqlizer) ([]*models.ProcessingTask, error) {
	query := squirrel.Select(taskColumns...).
		From("processing_tasks").
		Where(where).
		OrderBy("created_at DESC").
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

	var tasks []*models.ProcessingTask
	for rows.Next() {
		var t models.ProcessingTask
		if err := rows.Scan(
			&t.ID, &t.KBID, &t.DocumentID, &t.FileName, &t.FilePath, &t.FileHash, &t.ParseStrategy,
			&t.Status, &t.Progress, &t.Error, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		tasks = append(tasks, &t)
	}

	return tasks, rows.Err()
}
