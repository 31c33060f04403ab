package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPrompts(t *testing.T) {
	ps, err := LoadPrompts()
	require.NoError(t, err)

	for _, name := range []string{
		PromptDomainSelect, PromptCategorySelect, PromptDocumentSelect, PromptParagraphSelect,
		PromptParagraphScore, PromptPageParse, PromptChunkSummary, PromptDocumentSummary,
		PromptCategoryClassify, PromptDomainClassify,
	} {
		assert.Contains(t, ps, name)
	}
}

func TestRender_SelectorIsShardable(t *testing.T) {
	ps, err := LoadPrompts()
	require.NoError(t, err)

	candidates := []map[string]string{
		{"document_id": "1", "document_description": `quoted "desc"`},
		{"document_id": "2", "document_description": "第二"},
	}
	msgs, err := ps.Render(PromptDocumentSelect, map[string]any{
		"Now":        "2024-01-01 00:00:00",
		"Question":   "what's the limit?",
		"Candidates": candidates,
	})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "2024-01-01 00:00:00")

	last := msgs[len(msgs)-1]
	assert.Equal(t, RoleUser, last.Role)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(last.Content), &body))
	assert.Equal(t, "what's the limit?", body[InputTextKey])

	req, ok := parseShardable(last.Content)
	require.True(t, ok)
	assert.Equal(t, "documents", req.listKey)
	assert.Len(t, req.items, 2)
}

func TestRender_DoesNotMutateTemplates(t *testing.T) {
	ps, err := LoadPrompts()
	require.NoError(t, err)

	vars := map[string]any{"Now": "t", "Question": "q1", "Candidates": []string{}}
	first, err := ps.Render(PromptDomainSelect, vars)
	require.NoError(t, err)

	first[0].Content = "changed"
	vars["Question"] = "q2"
	second, err := ps.Render(PromptDomainSelect, vars)
	require.NoError(t, err)

	assert.NotEqual(t, "changed", second[0].Content)
	assert.Contains(t, second[len(second)-1].Content, "q2")
	assert.Equal(t, RoleAssistant, ps[PromptDomainSelect].FewShot[1].Role)
}

func TestRender_Errors(t *testing.T) {
	ps, err := LoadPrompts()
	require.NoError(t, err)

	_, err = ps.Render("missing", nil)
	require.Error(t, err)

	_, err = ps.Render(PromptDomainSelect, map[string]any{"Now": "t"})
	require.Error(t, err)
}
