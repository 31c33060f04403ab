package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store bundles the taxonomy repositories of one pool. Their method names
// are distinct, so Store exposes all of them, plus the multi-table writes
// of ingestion.
type Store struct {
	*DomainRepository
	*CategoryRepository
	*DocumentRepository
	*ParagraphRepository

	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewStore(db *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{
		DomainRepository:    NewDomainRepository(db, logger),
		CategoryRepository:  NewCategoryRepository(db, logger),
		DocumentRepository:  NewDocumentRepository(db, logger),
		ParagraphRepository: NewParagraphRepository(db, logger),
		db:                  db,
		logger:              logger,
	}
}
