// Package retrieval chains the domain, category, document and paragraph
// selectors into a funnel and scores what comes out of it.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"librag/internal/dto"
	"librag/internal/models"
	"librag/internal/scoring"
	"librag/internal/selector"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Stage string

const (
	StageDomain    Stage = "domain"
	StageCategory  Stage = "category"
	StageDocument  Stage = "document"
	StageParagraph Stage = "paragraph"
	StageScoring   Stage = "scoring"
	StageComplete  Stage = "complete"
)

// Event reports a finished funnel stage.
type Event struct {
	Stage   Stage
	Items   []selector.Item
	Count   int
	Elapsed time.Duration
}

// Observer receives stage events in funnel order on the calling goroutine.
type Observer func(Event)

type Options struct {
	HasSourceText  bool
	ScoreThreshold *float64
	HasScore       bool
}

// scoring runs only when asked for and the threshold, if any, is not
// negative.
func (o Options) scoring() bool {
	return o.HasScore && (o.ScoreThreshold == nil || *o.ScoreThreshold >= 0)
}

// ParagraphStore resolves selected paragraphs and their documents.
// *repository.Store implements it.
type ParagraphStore interface {
	GetParagraphsByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Paragraph, error)
	GetDocumentsByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Document, error)
}

type Scorer interface {
	Score(ctx context.Context, question string, passages []string) ([]scoring.Score, error)
}

type Funnel struct {
	domains    selector.Selector
	categories selector.Selector
	documents  selector.Selector
	paragraphs selector.Selector
	store      ParagraphStore
	scorer     Scorer
	logger     *zap.Logger
}

func NewFunnel(
	domains, categories, documents, paragraphs selector.Selector,
	store ParagraphStore,
	scorer Scorer,
	logger *zap.Logger,
) *Funnel {
	return &Funnel{
		domains:    domains,
		categories: categories,
		documents:  documents,
		paragraphs: paragraphs,
		store:      store,
		scorer:     scorer,
		logger:     logger,
	}
}

func (f *Funnel) Retrieve(ctx context.Context, question string, kbID int64, opts Options) ([]dto.ParagraphRecord, error) {
	return f.RetrieveObserved(ctx, question, kbID, opts, nil)
}

// RetrieveObserved is Retrieve with a per-stage callback. observe may be nil.
// An empty document selection ends the funnel with an empty result.
func (f *Funnel) RetrieveObserved(ctx context.Context, question string, kbID int64, opts Options, observe Observer) ([]dto.ParagraphRecord, error) {
	if observe == nil {
		observe = func(Event) {}
	}
	started := time.Now()
	log := f.logger.With(zap.Int64("kb_id", kbID))

	var parents []uuid.UUID
	for _, step := range []struct {
		stage Stage
		sel   selector.Selector
	}{
		{StageDomain, f.domains},
		{StageCategory, f.categories},
		{StageDocument, f.documents},
	} {
		t := time.Now()
		got, err := step.sel.Select(ctx, selector.Request{KBID: kbID, Question: question, Parents: parents})
		if err != nil {
			return nil, fmt.Errorf("%s stage: %w", step.stage, err)
		}
		observe(Event{Stage: step.stage, Items: got.Items, Count: len(got.IDs), Elapsed: time.Since(t)})
		parents = got.IDs
	}

	if len(parents) == 0 {
		log.Info("No document selected", zap.Duration("elapsed", time.Since(started)))
		observe(Event{Stage: StageComplete, Elapsed: time.Since(started)})
		return []dto.ParagraphRecord{}, nil
	}

	t := time.Now()
	picked, err := f.paragraphs.Select(ctx, selector.Request{KBID: kbID, Question: question, Parents: parents})
	if err != nil {
		return nil, fmt.Errorf("%s stage: %w", StageParagraph, err)
	}
	records, err := f.collate(ctx, picked.IDs, opts.HasSourceText)
	if err != nil {
		return nil, err
	}
	observe(Event{Stage: StageParagraph, Items: picked.Items, Count: len(records), Elapsed: time.Since(t)})

	if opts.scoring() && len(records) > 0 {
		t = time.Now()
		if records, err = f.score(ctx, question, records, opts.ScoreThreshold); err != nil {
			return nil, fmt.Errorf("%s stage: %w", StageScoring, err)
		}
		observe(Event{Stage: StageScoring, Count: len(records), Elapsed: time.Since(t)})
	}

	log.Info("Recall done",
		zap.Int("paragraphs", len(records)),
		zap.Duration("elapsed", time.Since(started)),
	)
	observe(Event{Stage: StageComplete, Count: len(records), Elapsed: time.Since(started)})
	return records, nil
}

// collate loads the selected paragraphs in selection order and attaches
// their document names.
func (f *Funnel) collate(ctx context.Context, ids []uuid.UUID, withSource bool) ([]dto.ParagraphRecord, error) {
	if len(ids) == 0 {
		return []dto.ParagraphRecord{}, nil
	}

	paragraphs, err := f.store.GetParagraphsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load paragraphs: %w", err)
	}
	byID := make(map[uuid.UUID]*models.Paragraph, len(paragraphs))
	var docIDs []uuid.UUID
	seenDoc := make(map[uuid.UUID]bool)
	for _, p := range paragraphs {
		byID[p.ID] = p
		if !seenDoc[p.ParentID] {
			seenDoc[p.ParentID] = true
			docIDs = append(docIDs, p.ParentID)
		}
	}

	docs, err := f.store.GetDocumentsByIDs(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	docNames := make(map[uuid.UUID]string, len(docs))
	for _, d := range docs {
		docNames[d.ID] = d.Name
	}

	records := make([]dto.ParagraphRecord, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			continue
		}
		rec := dto.ParagraphRecord{
			ParagraphID:       p.ID.String(),
			ParentID:          p.ParentID.String(),
			DocumentName:      docNames[p.ParentID],
			ParagraphName:     p.Name,
			Summary:           p.Summary,
			Content:           p.Content,
			ParentDescription: p.ParentDescription,
			Keywords:          p.Keywords,
			Position:          p.Position,
		}
		if withSource {
			src := p.SourceText
			rec.SourceText = &src
		}
		records = append(records, rec)
	}
	return records, nil
}

func (f *Funnel) score(ctx context.Context, question string, records []dto.ParagraphRecord, threshold *float64) ([]dto.ParagraphRecord, error) {
	passages := make([]string, len(records))
	for i, r := range records {
		passages[i] = r.ParentDescription + r.Content
	}

	scores, err := f.scorer.Score(ctx, question, passages)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Score = &scores[i]
	}

	order := scoring.Rank(scores, threshold)
	ranked := make([]dto.ParagraphRecord, 0, len(order))
	for _, i := range order {
		ranked = append(ranked, records[i])
	}
	return ranked, nil
}
