package repository

import (
	"context"

	"librag/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var domainColumns = []string{"id", "kb_id", "name", "description", "metadata", "created_at", "updated_at"}

type DomainRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDomainRepository(db *pgxpool.Pool, logger *zap.Logger) *DomainRepository {
	return &DomainRepository{
		db:     db,
		logger: logger,
	}
}

func insertDomain(d *models.Domain) squirrel.InsertBuilder {
	return squirrel.Insert("domains").
		Columns(domainColumns...).
		Values(d.ID, d.KBID, d.Name, d.Description, d.Metadata, d.CreatedAt, d.UpdatedAt)
}

func updateDomain(d *models.Domain) squirrel.UpdateBuilder {
	return squirrel.Update("domains").
		Set("name", d.Name).
		Set("description", d.Description).
		Set("metadata", d.Metadata).
		Set("updated_at", d.UpdatedAt).
		Where(squirrel.Eq{"id": d.ID})
}

// ListDomains returns the domains of a knowledge base in creation order.
func (r *DomainRepository) ListDomains(ctx context.Context, kbID int64) ([]*models.Domain, error) {
	return r.list(ctx, squirrel.Eq{"kb_id": kbID})
}

func (r *DomainRepository) list(ctx context.Context, where squirrel.Sqlizer) ([]*models.Domain, error) {
	query := squirrel.Select(domainColumns...).
		From("domains").
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

	var domains []*models.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}

	return domains, rows.Err()
}

func scanDomain(row pgx.Row) (*models.Domain, error) {
	var d models.Domain
	if err := row.Scan(&d.ID, &d.KBID, &d.Name, &d.Description, &d.Metadata, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
