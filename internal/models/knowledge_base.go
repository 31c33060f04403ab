package models

import (
	"time"

	"github.com/google/uuid"
)

type KnowledgeBase struct {
	ID          int64     `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}
