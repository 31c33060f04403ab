package dto

import (
	"time"

	"librag/internal/models"
)

type KnowledgeBaseRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type KnowledgeBaseResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func NewKnowledgeBaseResponse(kb *models.KnowledgeBase) KnowledgeBaseResponse {
	return KnowledgeBaseResponse{
		ID:          kb.ID,
		Name:        kb.Name,
		Description: kb.Description,
		CreatedAt:   kb.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   kb.UpdatedAt.Format(time.RFC3339),
	}
}

// MetaResponse is one taxonomy node as listed by the metadata endpoint.
type MetaResponse struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	ParentID          *string         `json:"parent_id,omitempty"`
	ParentDescription []string        `json:"parent_description,omitempty"`
	Metadata          models.Metadata `json:"metadata"`
}

type ParagraphResponse struct {
	ID                string          `json:"paragraph_id"`
	ParentID          string          `json:"parent_id"`
	Name              string          `json:"paragraph_name"`
	Summary           string          `json:"summary"`
	Content           string          `json:"content"`
	Position          string          `json:"position"`
	Keywords          []string        `json:"keywords"`
	ParentDescription string          `json:"parent_description"`
	Metadata          models.Metadata `json:"metadata"`
}

func NewParagraphResponse(p *models.Paragraph) ParagraphResponse {
	return ParagraphResponse{
		ID:                p.ID.String(),
		ParentID:          p.ParentID.String(),
		Name:              p.Name,
		Summary:           p.Summary,
		Content:           p.Content,
		Position:          p.Position,
		Keywords:          p.Keywords,
		ParentDescription: p.ParentDescription,
		Metadata:          p.Metadata,
	}
}

type TaskResponse struct {
	ID            string `json:"task_id"`
	KBID          int64  `json:"kb_id"`
	DocumentID    string `json:"document_id,omitempty"`
	FileName      string `json:"file_name"`
	FileMD5       string `json:"file_md5,omitempty"`
	ParseStrategy string `json:"parse_strategy"`
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	Error         string `json:"error,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func NewTaskResponse(t *models.ProcessingTask) TaskResponse {
	resp := TaskResponse{
		ID:            t.ID.String(),
		KBID:          t.KBID,
		FileName:      t.FileName,
		FileMD5:       t.FileHash,
		ParseStrategy: string(t.ParseStrategy),
		Status:        string(t.Status),
		Progress:      t.Progress,
		Error:         t.Error,
		CreatedAt:     t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     t.UpdatedAt.Format(time.RFC3339),
	}
	if t.DocumentID != nil {
		resp.DocumentID = t.DocumentID.String()
	}
	return resp
}

type SplitRequest struct {
	Text         string `json:"text"`
	Granularity  string `json:"granularity"`
	ChunkSize    int    `json:"chunk_size"`
	OverlapUnits *int   `json:"overlap_units"`
}

type SplitResponse struct {
	Chunks []string `json:"chunks"`
}
