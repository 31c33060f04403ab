package dto

import (
	"librag/internal/scoring"
)

type RecallRequest struct {
	Question       string   `json:"question"`
	KBID           int64    `json:"kb_id"`
	HasSourceText  bool     `json:"has_source_text"`
	ScoreThreshold *float64 `json:"score_threshold"`
	// HasScore defaults to true when omitted.
	HasScore *bool `json:"has_score"`
}

func (r RecallRequest) Scoring() bool {
	return r.HasScore == nil || *r.HasScore
}

// ParagraphRecord is one recalled paragraph. Score fields are present only
// when the paragraph was scored.
type ParagraphRecord struct {
	ParagraphID       string   `json:"paragraph_id"`
	ParentID          string   `json:"parent_id"`
	DocumentName      string   `json:"document_name"`
	ParagraphName     string   `json:"paragraph_name"`
	Summary           string   `json:"summary"`
	Content           string   `json:"content"`
	ParentDescription string   `json:"parent_description"`
	Keywords          []string `json:"keywords"`
	Position          string   `json:"position"`
	SourceText        *string  `json:"source_text,omitempty"`

	*scoring.Score
}
