package models

import (
	"time"

	"github.com/google/uuid"
)

// MetaLastUpdated is the metadata key stamped on every create or update of
// a taxonomy node.
const (
	MetaLastUpdated = "最后更新时间"
	MetaTimeLayout  = "2006-01-02 15:04:05"
)

type Metadata map[string]any

// Touch sets the last-updated stamp to now and returns m, allocating it
// when nil.
func (m Metadata) Touch(now time.Time) Metadata {
	if m == nil {
		m = Metadata{}
	}
	m[MetaLastUpdated] = now.Format(MetaTimeLayout)
	return m
}

type Domain struct {
	ID          uuid.UUID `db:"id"`
	KBID        int64     `db:"kb_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Metadata    Metadata  `db:"metadata"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type Category struct {
	ID          uuid.UUID  `db:"id"`
	KBID        int64      `db:"kb_id"`
	ParentID    *uuid.UUID `db:"parent_id"` // domain; nil until the domain parser ran
	Name        string     `db:"name"`
	Description string     `db:"description"`
	Metadata    Metadata   `db:"metadata"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

type Paragraph struct {
	ID                uuid.UUID `db:"id"`
	KBID              int64     `db:"kb_id"`
	ParentID          uuid.UUID `db:"parent_id"` // document
	Name              string    `db:"name"`
	Summary           string    `db:"summary"`
	Content           string    `db:"content"`
	Position          string    `db:"position"`
	Keywords          []string  `db:"keywords"`
	ParentDescription string    `db:"parent_description"`
	SourceText        string    `db:"source_text"`
	Metadata          Metadata  `db:"metadata"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}
