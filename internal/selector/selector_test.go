package selector

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"librag/internal/llm"
	"librag/internal/models"
	"librag/pkg/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	domains      []*models.Domain
	categories   []*models.Category
	documents    []*models.Document
	paragraphs   []*models.Paragraph
	docsByParent map[uuid.UUID][]*models.Document
}

func (f *fakeSource) ListDomains(context.Context, int64) ([]*models.Domain, error) {
	return f.domains, nil
}

func (f *fakeSource) ListCategories(context.Context, int64) ([]*models.Category, error) {
	return f.categories, nil
}

func (f *fakeSource) ListCategoriesByDomains(_ context.Context, _ int64, ids []uuid.UUID) ([]*models.Category, error) {
	var out []*models.Category
	for _, c := range f.categories {
		for _, id := range ids {
			if c.ParentID != nil && *c.ParentID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeSource) ListDocuments(context.Context, int64) ([]*models.Document, error) {
	return f.documents, nil
}

func (f *fakeSource) ListDocumentsByCategories(_ context.Context, _ int64, ids []uuid.UUID) ([]*models.Document, error) {
	var out []*models.Document
	for _, id := range ids {
		out = append(out, f.docsByParent[id]...)
	}
	return out, nil
}

func (f *fakeSource) ListParagraphsByDocuments(_ context.Context, _ int64, ids []uuid.UUID) ([]*models.Paragraph, error) {
	var out []*models.Paragraph
	for _, p := range f.paragraphs {
		for _, id := range ids {
			if p.ParentID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

type fakeClassifier struct {
	reply     llm.Result
	err       error
	calls     int
	lastMsgs  []llm.Message
	lastGroup int
}

func (f *fakeClassifier) Chat(_ context.Context, msgs []llm.Message, groupSize int) (llm.Result, error) {
	f.calls++
	f.lastMsgs = msgs
	f.lastGroup = groupSize
	return f.reply, f.err
}

// offered decodes the candidate list of the last user message.
func (f *fakeClassifier) offered(t *testing.T, key string) []map[string]string {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(f.lastMsgs[len(f.lastMsgs)-1].Content), &body))
	var items []map[string]string
	require.NoError(t, json.Unmarshal(body[key], &items))
	return items
}

func loadPrompts(t *testing.T) llm.Prompts {
	t.Helper()
	ps, err := llm.LoadPrompts()
	require.NoError(t, err)
	return ps
}

var selCfg = config.SelectorConfig{GroupSize: 10, FallbackEnabled: true}

func TestDomainSelector_RemapsAndDropsUnknown(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	src := &fakeSource{domains: []*models.Domain{
		{ID: a, Name: "Banking", Description: "retail banking"},
		{ID: b, Name: "HR", Description: "people policies"},
	}}
	cl := &fakeClassifier{reply: llm.ObjectResult{"selected_domains": []any{"2", "9"}}}

	sel, err := NewDomainSelector(src, cl, loadPrompts(t), zap.NewNop()).
		Select(context.Background(), Request{KBID: 1, Question: "leave policy?"})
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{b}, sel.IDs)
	assert.Equal(t, []Item{{ID: b, Name: "HR"}}, sel.Items)
	assert.Equal(t, 0, cl.lastGroup)

	offered := cl.offered(t, "domains")
	require.Len(t, offered, 2)
	assert.Equal(t, "1", offered[0]["domain_id"])
	assert.Equal(t, "retail banking", offered[0]["domain_description"])
	assert.NotContains(t, cl.lastMsgs[len(cl.lastMsgs)-1].Content, a.String())
}

func TestCategorySelector_FallsBackToWholeLevel(t *testing.T) {
	c1, c2 := uuid.New(), uuid.New()
	src := &fakeSource{categories: []*models.Category{
		{ID: c1, Name: "Cards", Description: "card products"},
		{ID: c2, Name: "Loans", Description: "loan products"},
	}}
	cl := &fakeClassifier{reply: llm.ObjectResult{"selected_categories": []any{"1"}}}

	sel, err := NewCategorySelector(src, cl, loadPrompts(t), selCfg, zap.NewNop()).
		Select(context.Background(), Request{KBID: 1, Question: "q", Parents: []uuid.UUID{uuid.New()}})
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{c1}, sel.IDs)
	assert.Len(t, cl.offered(t, "categories"), 2)
}

func TestCategorySelector_FallbackDisabled(t *testing.T) {
	src := &fakeSource{categories: []*models.Category{{ID: uuid.New(), Name: "Cards"}}}
	cl := &fakeClassifier{}

	cfg := selCfg
	cfg.FallbackEnabled = false
	sel, err := NewCategorySelector(src, cl, loadPrompts(t), cfg, zap.NewNop()).
		Select(context.Background(), Request{KBID: 1, Question: "q", Parents: []uuid.UUID{uuid.New()}})
	require.NoError(t, err)

	assert.True(t, sel.Empty())
	assert.Equal(t, 0, cl.calls)
}

func TestDocumentSelector_ExtendsAliasesAndFansOut(t *testing.T) {
	cat := uuid.New()
	docA, docB, docC := uuid.New(), uuid.New(), uuid.New()
	c := &models.Document{ID: docC, Name: "C", Description: "doc c"}
	src := &fakeSource{
		documents: []*models.Document{
			{ID: docA, Name: "A", Description: "doc a"},
			{ID: docB, Name: "B", Description: "doc b"},
			c,
		},
		docsByParent: map[uuid.UUID][]*models.Document{cat: {c}},
	}
	cl := &fakeClassifier{reply: llm.ListResult{"3", "1"}}

	sel, err := NewDocumentSelector(src, cl, loadPrompts(t), selCfg, zap.NewNop()).
		Select(context.Background(), Request{KBID: 1, Question: "q", Parents: []uuid.UUID{cat}})
	require.NoError(t, err)

	offered := cl.offered(t, "documents")
	require.Len(t, offered, 1)
	assert.Equal(t, "3", offered[0]["document_id"])
	assert.Equal(t, 10, cl.lastGroup)

	// "1" maps to a document of the level, so it resolves even though only
	// the restricted set was offered.
	assert.Equal(t, []uuid.UUID{docC, docA}, sel.IDs)
}

func TestParagraphSelector_NoFallback(t *testing.T) {
	src := &fakeSource{paragraphs: []*models.Paragraph{{ID: uuid.New(), ParentID: uuid.New()}}}
	cl := &fakeClassifier{}

	sel, err := NewParagraphSelector(src, cl, loadPrompts(t), selCfg, zap.NewNop()).
		Select(context.Background(), Request{KBID: 1, Question: "q"})
	require.NoError(t, err)

	assert.True(t, sel.Empty())
	assert.Equal(t, 0, cl.calls)
}

func TestParagraphSelector_DescribesLineage(t *testing.T) {
	doc := uuid.New()
	p := &models.Paragraph{ID: uuid.New(), ParentID: doc, Name: "fees", Summary: "fee table", ParentDescription: "tariff guide"}
	src := &fakeSource{paragraphs: []*models.Paragraph{p}}
	cl := &fakeClassifier{reply: llm.ObjectResult{"selected_paragraphs": []any{int64(1)}}}

	s := NewParagraphSelector(src, cl, loadPrompts(t), selCfg, zap.NewNop())
	s.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }

	sel, err := s.Select(context.Background(), Request{KBID: 1, Question: "q", Parents: []uuid.UUID{doc}})
	require.NoError(t, err)

	assert.Equal(t, []Item{{ID: p.ID, Name: "fees"}}, sel.Items)
	assert.Equal(t, "fee table;tariff guide", cl.offered(t, "paragraphs")[0]["paragraph_description"])
	assert.Contains(t, cl.lastMsgs[0].Content, "2024-05-01 09:30:00")
}

func TestStage_PropagatesClassifierError(t *testing.T) {
	src := &fakeSource{domains: []*models.Domain{{ID: uuid.New()}}}
	boom := errors.New("model down")
	cl := &fakeClassifier{err: boom}

	_, err := NewDomainSelector(src, cl, loadPrompts(t), zap.NewNop()).
		Select(context.Background(), Request{KBID: 1, Question: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
