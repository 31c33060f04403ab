package ingest

import (
	"context"
	"strings"
	"testing"

	"librag/internal/llm"
	"librag/internal/models"
	"librag/internal/splitter"
	"librag/pkg/workerpool"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDoc(strategy models.ParseStrategy) *models.Document {
	return &models.Document{ID: uuid.New(), KBID: 3, Name: "fees", ParseStrategy: strategy}
}

func newParagraphParser(t *testing.T, cl llm.Classifier, pool Runner) *ParagraphParser {
	split, err := splitter.New(splitter.Sentence, 40, splitter.WithOverlap(0))
	require.NoError(t, err)
	p := NewParagraphParser(cl, loadPrompts(t), pool, split, nop())
	p.now = fixedClock
	return p
}

func TestParagraphParser_PageSplit(t *testing.T) {
	cl := newFakeClassifier()
	cl.on(llm.PromptPageParse, func(user string) (llm.Result, error) {
		if strings.Contains(user, "Page 1 ") {
			return llm.ListResult{
				map[string]any{"paragraph_name": "Intro", "summary": "s1", "keywords": []any{"fee"}, "content": "c1"},
				map[string]any{"paragraph_name": "Rates", "summary": "s2", "content": "c2"},
			}, nil
		}
		return llm.ObjectResult{"paragraph_name": "Annex", "summary": "s3", "content": "c3"}, nil
	})

	doc := newDoc(models.ParseStrategyPageSplit)
	pages := []string{"first page text", "  \n", "third page text"}
	paragraphs, err := newParagraphParser(t, cl, workerpool.New("test", 4, nop())).
		Parse(context.Background(), doc, pages)
	require.NoError(t, err)

	require.Len(t, paragraphs, 3)
	assert.Equal(t, 2, cl.count(llm.PromptPageParse))

	assert.Equal(t, []string{"Intro", "Rates", "Annex"},
		[]string{paragraphs[0].Name, paragraphs[1].Name, paragraphs[2].Name})
	assert.Equal(t, "第1页", paragraphs[0].Position)
	assert.Equal(t, "第1页", paragraphs[1].Position)
	assert.Equal(t, "第3页", paragraphs[2].Position)
	assert.Equal(t, "third page text", paragraphs[2].SourceText)
	assert.Equal(t, []string{"fee"}, paragraphs[0].Keywords)

	for _, p := range paragraphs {
		assert.Equal(t, doc.ID, p.ParentID)
		assert.Equal(t, int64(3), p.KBID)
		assert.Equal(t, "2025-03-14 09:26:53", p.Metadata[models.MetaLastUpdated])
	}
}

func TestParagraphParser_PageSplitDropsEmptyContent(t *testing.T) {
	cl := newFakeClassifier()
	cl.on(llm.PromptPageParse, func(string) (llm.Result, error) {
		return llm.ListResult{
			map[string]any{"paragraph_name": "Header", "summary": "logo only"},
			map[string]any{"paragraph_name": "Body", "content": "text"},
		}, nil
	})

	paragraphs, err := newParagraphParser(t, cl, inline{}).
		Parse(context.Background(), newDoc(models.ParseStrategyPageSplit), []string{"page"})
	require.NoError(t, err)
	require.Len(t, paragraphs, 1)
	assert.Equal(t, "Body", paragraphs[0].Name)
}

func TestParagraphParser_AgenticChunking(t *testing.T) {
	cl := newFakeClassifier()
	cl.on(llm.PromptChunkSummary, func(user string) (llm.Result, error) {
		return llm.ObjectResult{"paragraph_name": "chunk", "summary": "about " + user[len(user)-5:], "keywords": []any{"k"}}, nil
	})

	pages := []string{"Fees are charged monthly. Rates change yearly.", "Early exit costs one percent. Contact the bank."}
	paragraphs, err := newParagraphParser(t, cl, inline{}).
		Parse(context.Background(), newDoc(models.ParseStrategyAgenticChunking), pages)
	require.NoError(t, err)

	require.Greater(t, len(paragraphs), 1)
	assert.Equal(t, len(paragraphs), cl.count(llm.PromptChunkSummary))
	for i, p := range paragraphs {
		assert.NotEmpty(t, p.Content)
		assert.Equal(t, p.Content, p.SourceText)
		assert.LessOrEqual(t, len([]rune(p.Content)), 40)
		assert.Equal(t, chunkPosition(i+1), p.Position)
		assert.Equal(t, "chunk", p.Name)
	}
}

func TestParagraphParser_Errors(t *testing.T) {
	p := newParagraphParser(t, newFakeClassifier(), inline{})

	_, err := p.Parse(context.Background(), newDoc(models.ParseStrategyPageSplit), []string{"", " "})
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = p.Parse(context.Background(), newDoc("by_magic"), []string{"text"})
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = p.Parse(context.Background(), newDoc(models.ParseStrategyPageSplit), []string{"text"})
	assert.ErrorIs(t, err, llm.ErrMalformedResponse)
}

func TestPageNumber(t *testing.T) {
	n, ok := PageNumber(PagePosition(12))
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	for _, bad := range []string{"", "第x页", "第3段", "page 3"} {
		_, ok := PageNumber(bad)
		assert.False(t, ok, bad)
	}
}

func TestObjects(t *testing.T) {
	single := llm.ObjectResult{"paragraph_name": "a", "keywords": []any{"x", "y"}}
	assert.Equal(t, []llm.ObjectResult{single}, objects(single))

	wrapped := llm.ObjectResult{"paragraphs": []any{map[string]any{"content": "b"}, "junk"}}
	got := objects(wrapped)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0]["content"])
}
