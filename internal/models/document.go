package models

import (
	"time"

	"github.com/google/uuid"
)

type ParseStrategy string

const (
	ParseStrategyPageSplit       ParseStrategy = "page_split"
	ParseStrategyAgenticChunking ParseStrategy = "agentic_chunking"
)

func (s ParseStrategy) Valid() bool {
	return s == ParseStrategyPageSplit || s == ParseStrategyAgenticChunking
}

type Document struct {
	ID            uuid.UUID     `db:"id"`
	KBID          int64         `db:"kb_id"`
	Name          string        `db:"name"`
	Description   string        `db:"description"`
	ParseStrategy ParseStrategy `db:"parse_strategy"`
	FilePath      string        `db:"file_path"`
	Metadata      Metadata      `db:"metadata"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`

	// CategoryIDs is loaded from document_categories, not a column.
	CategoryIDs []uuid.UUID `db:"-"`
}
