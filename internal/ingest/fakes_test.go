package ingest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"librag/internal/llm"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClassifier answers by prompt. The prompt is recognised from the
// system message.
type fakeClassifier struct {
	mu      sync.Mutex
	answers map[string]func(user string) (llm.Result, error)
	calls   map[string][]string
}

func newFakeClassifier() *fakeClassifier {
	return &fakeClassifier{
		answers: map[string]func(string) (llm.Result, error){},
		calls:   map[string][]string{},
	}
}

var promptMarkers = map[string]string{
	"one page of a document":    llm.PromptPageParse,
	"one passage of a document": llm.PromptChunkSummary,
	"index card":                llm.PromptDocumentSummary,
	"file documents":            llm.PromptCategoryClassify,
	"group categories":          llm.PromptDomainClassify,
}

func (f *fakeClassifier) on(prompt string, fn func(user string) (llm.Result, error)) {
	f.answers[prompt] = fn
}

func (f *fakeClassifier) Chat(_ context.Context, msgs []llm.Message, _ int) (llm.Result, error) {
	var prompt string
	for marker, name := range promptMarkers {
		if strings.Contains(msgs[0].Content, marker) {
			prompt = name
		}
	}
	user := msgs[len(msgs)-1].Content

	f.mu.Lock()
	f.calls[prompt] = append(f.calls[prompt], user)
	answer := f.answers[prompt]
	f.mu.Unlock()

	if answer == nil {
		return nil, llm.ErrMalformedResponse
	}
	return answer(user)
}

func (f *fakeClassifier) count(prompt string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[prompt])
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

func loadPrompts(t *testing.T) llm.Prompts {
	t.Helper()
	prompts, err := llm.LoadPrompts()
	require.NoError(t, err)
	return prompts
}

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func nop() *zap.Logger { return zap.NewNop() }
