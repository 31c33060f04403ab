package scoring

import (
	"context"
	"fmt"
	"strings"

	"librag/internal/llm"

	"github.com/shopspring/decimal"
)

// LLMRater asks the model for the A-D sub-scores and an E diagnosis.
type LLMRater struct {
	classifier llm.Classifier
	prompts    llm.Prompts
}

func NewLLMRater(classifier llm.Classifier, prompts llm.Prompts) *LLMRater {
	return &LLMRater{
		classifier: classifier,
		prompts:    prompts,
	}
}

// Keys accepted for each criterion, short form first.
var (
	relevanceKeys   = []string{"A", "context_relevance", "relevance"}
	sufficiencyKeys = []string{"B", "context_sufficiency", "sufficiency"}
	clarityKeys     = []string{"C", "context_clarity", "clarity"}
	reliabilityKeys = []string{"D", "context_reliability", "reliability"}
	diagnosisKeys   = []string{"E", "diagnosis"}
)

func (r *LLMRater) Rate(ctx context.Context, question, passage string) (Rating, error) {
	msgs, err := r.prompts.Render(llm.PromptParagraphScore, map[string]string{
		"Question": question,
		"Passage":  passage,
	})
	if err != nil {
		return Rating{}, err
	}

	res, err := r.classifier.Chat(ctx, msgs, 0)
	if err != nil {
		return Rating{}, err
	}
	obj, ok := res.(llm.ObjectResult)
	if !ok {
		return Rating{}, fmt.Errorf("%w: rating is not a dict", llm.ErrMalformedResponse)
	}
	return parseRating(obj)
}

func parseRating(obj llm.ObjectResult) (Rating, error) {
	var (
		rating Rating
		found  int
	)
	for _, f := range []struct {
		keys []string
		dst  *decimal.Decimal
	}{
		{relevanceKeys, &rating.Relevance},
		{sufficiencyKeys, &rating.Sufficiency},
		{clarityKeys, &rating.Clarity},
		{reliabilityKeys, &rating.Reliability},
	} {
		v, ok := lookup(obj, f.keys)
		if !ok {
			continue
		}
		d, err := toDecimal(v)
		if err != nil {
			return Rating{}, fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
		}
		*f.dst = d
		found++
	}
	if found == 0 {
		return Rating{}, fmt.Errorf("%w: rating has no score field", llm.ErrMalformedResponse)
	}

	if v, ok := lookup(obj, diagnosisKeys); ok {
		rating.Diagnosis = llm.String(v)
	}
	return rating, nil
}

func lookup(obj llm.ObjectResult, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v, true
		}
	}
	// Some models lower-case the letters.
	for _, k := range keys {
		if v, ok := obj[strings.ToLower(k)]; ok {
			return v, true
		}
	}
	return nil, false
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case int64:
		return decimal.NewFromInt(t), nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(t))
	case nil:
		return decimal.Zero, nil
	}
	return decimal.Zero, fmt.Errorf("score %v is not a number", v)
}
