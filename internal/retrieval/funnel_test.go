package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"librag/internal/models"
	"librag/internal/scoring"
	"librag/internal/selector"
	"librag/pkg/config"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSelector struct {
	sel   selector.Selection
	err   error
	calls int
	reqs  []selector.Request
}

func (f *fakeSelector) Select(_ context.Context, req selector.Request) (selector.Selection, error) {
	f.calls++
	f.reqs = append(f.reqs, req)
	return f.sel, f.err
}

func picked(ids ...uuid.UUID) selector.Selection {
	s := selector.Selection{IDs: ids}
	for _, id := range ids {
		s.Items = append(s.Items, selector.Item{ID: id, Name: id.String()[:8]})
	}
	return s
}

type fakeStore struct {
	paragraphs []*models.Paragraph
	documents  []*models.Document
}

func (f *fakeStore) GetParagraphsByIDs(_ context.Context, ids []uuid.UUID) ([]*models.Paragraph, error) {
	var out []*models.Paragraph
	for _, p := range f.paragraphs {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) GetDocumentsByIDs(context.Context, []uuid.UUID) ([]*models.Document, error) {
	return f.documents, nil
}

// fakeScorer scores a passage from a table keyed by passage text.
type fakeScorer struct {
	totals map[string]string
	calls  int
}

func (f *fakeScorer) Score(_ context.Context, _ string, passages []string) ([]scoring.Score, error) {
	f.calls++
	out := make([]scoring.Score, len(passages))
	for i, p := range passages {
		out[i] = scoreOf(f.totals[p])
	}
	return out, nil
}

func scoreOf(total string) scoring.Score {
	scores, _ := scoring.NewScorer(constRater(total), inline{}, config.ScoringConfig{}, zap.NewNop()).
		Score(context.Background(), "", []string{""})
	return scores[0]
}

type constRater string

func (c constRater) Rate(context.Context, string, string) (scoring.Rating, error) {
	return scoring.Rating{Relevance: decimal.RequireFromString(string(c))}, nil
}

type inline struct{}

func (inline) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	for i := 0; i < n; i++ {
		if err := fn(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

type funnelFixture struct {
	domains, categories, documents, paragraphs *fakeSelector
	store                                      *fakeStore
	scorer                                     *fakeScorer
	funnel                                     *Funnel
	ids                                        []uuid.UUID
}

func newFixture() *funnelFixture {
	doc := uuid.New()
	p1, p2, p3 := uuid.New(), uuid.New(), uuid.New()
	f := &funnelFixture{
		domains:    &fakeSelector{sel: picked(uuid.New())},
		categories: &fakeSelector{sel: picked(uuid.New())},
		documents:  &fakeSelector{sel: picked(doc)},
		paragraphs: &fakeSelector{sel: picked(p1, p2, p3)},
		store: &fakeStore{
			paragraphs: []*models.Paragraph{
				{ID: p3, ParentID: doc, Content: "c3", ParentDescription: "d:", SourceText: "raw3"},
				{ID: p1, ParentID: doc, Content: "c1", ParentDescription: "d:", SourceText: "raw1"},
				{ID: p2, ParentID: doc, Content: "c2", ParentDescription: "d:", SourceText: "raw2"},
			},
			documents: []*models.Document{{ID: doc, Name: "Tariffs"}},
		},
		scorer: &fakeScorer{totals: map[string]string{"d:c1": "2.1", "d:c2": "0.4", "d:c3": "1.8"}},
		ids:    []uuid.UUID{p1, p2, p3},
	}
	f.funnel = NewFunnel(f.domains, f.categories, f.documents, f.paragraphs, f.store, f.scorer, zap.NewNop())
	return f
}

func TestRetrieve_ScoresAndFiltersByThreshold(t *testing.T) {
	f := newFixture()
	threshold := 1.0

	records, err := f.funnel.Retrieve(context.Background(), "q", 7, Options{HasScore: true, ScoreThreshold: &threshold})
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, f.ids[0].String(), records[0].ParagraphID)
	assert.Equal(t, 2.1, records[0].TotalScore)
	assert.Equal(t, f.ids[2].String(), records[1].ParagraphID)
	assert.Equal(t, 1.8, records[1].TotalScore)
	assert.Equal(t, "Tariffs", records[0].DocumentName)
	assert.Nil(t, records[0].SourceText)
}

func TestRetrieve_PassesSelectionsDownTheFunnel(t *testing.T) {
	f := newFixture()

	_, err := f.funnel.Retrieve(context.Background(), "q", 7, Options{})
	require.NoError(t, err)

	assert.Empty(t, f.domains.reqs[0].Parents)
	assert.Equal(t, f.domains.sel.IDs, f.categories.reqs[0].Parents)
	assert.Equal(t, f.categories.sel.IDs, f.documents.reqs[0].Parents)
	assert.Equal(t, f.documents.sel.IDs, f.paragraphs.reqs[0].Parents)
	assert.Equal(t, int64(7), f.paragraphs.reqs[0].KBID)
}

func TestRetrieve_EmptyDocumentSelectionShortCircuits(t *testing.T) {
	f := newFixture()
	f.documents.sel = selector.Selection{}

	var stages []Stage
	records, err := f.funnel.RetrieveObserved(context.Background(), "q", 7, Options{HasScore: true},
		func(e Event) { stages = append(stages, e.Stage) })
	require.NoError(t, err)

	assert.Empty(t, records)
	assert.NotNil(t, records)
	assert.Equal(t, 0, f.paragraphs.calls)
	assert.Equal(t, 0, f.scorer.calls)
	assert.Equal(t, []Stage{StageDomain, StageCategory, StageDocument, StageComplete}, stages)
}

func TestRetrieve_WithoutScoreKeepsSelectionOrder(t *testing.T) {
	f := newFixture()

	records, err := f.funnel.Retrieve(context.Background(), "q", 7, Options{HasScore: false, HasSourceText: true})
	require.NoError(t, err)

	require.Len(t, records, 3)
	for i, id := range f.ids {
		assert.Equal(t, id.String(), records[i].ParagraphID)
		assert.Nil(t, records[i].Score)
	}
	require.NotNil(t, records[0].SourceText)
	assert.Equal(t, "raw1", *records[0].SourceText)
	assert.Equal(t, 0, f.scorer.calls)

	b, err := json.Marshal(records[0])
	require.NoError(t, err)
	assert.NotContains(t, string(b), "total_score")
	assert.Contains(t, string(b), "source_text")
}

func TestRetrieve_NegativeThresholdDisablesScoring(t *testing.T) {
	f := newFixture()
	threshold := -1.0

	records, err := f.funnel.Retrieve(context.Background(), "q", 7, Options{HasScore: true, ScoreThreshold: &threshold})
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, 0, f.scorer.calls)
}

func TestRetrieve_StageErrorPropagates(t *testing.T) {
	f := newFixture()
	boom := errors.New("llm down")
	f.categories.err = boom

	_, err := f.funnel.Retrieve(context.Background(), "q", 7, Options{HasScore: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, f.documents.calls)
}

func TestRetrieve_ObserverSeesEveryStage(t *testing.T) {
	f := newFixture()

	var events []Event
	_, err := f.funnel.RetrieveObserved(context.Background(), "q", 7, Options{HasScore: true},
		func(e Event) { events = append(events, e) })
	require.NoError(t, err)

	require.Len(t, events, 6)
	assert.Equal(t, StageParagraph, events[3].Stage)
	assert.Equal(t, 3, events[3].Count)
	assert.Equal(t, StageScoring, events[4].Stage)
	assert.Equal(t, StageComplete, events[5].Stage)
}
