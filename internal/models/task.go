package models

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSucceed    TaskStatus = "succeed"
	TaskStatusFailed     TaskStatus = "failed"
)

// TaskProgressDone is the progress of a task whose four parsers finished.
const TaskProgressDone = 4

type ProcessingTask struct {
	ID            uuid.UUID     `db:"id"`
	KBID          int64         `db:"kb_id"`
	DocumentID    *uuid.UUID    `db:"document_id"`
	FileName      string        `db:"file_name"`
	FilePath      string        `db:"file_path"`
	FileHash      string        `db:"file_hash"`
	ParseStrategy ParseStrategy `db:"parse_strategy"`
	Status        TaskStatus    `db:"status"`
	Progress      int           `db:"progress"`
	Error         string        `db:"error"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
}
