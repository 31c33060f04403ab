// Package scoring grades retrieved passages against a question and ranks
// them by the summed grade.
package scoring

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"librag/pkg/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Rating is one grader verdict. Sub-scores are decimals so that sums do not
// depend on float rounding.
type Rating struct {
	Relevance   decimal.Decimal
	Sufficiency decimal.Decimal
	Clarity     decimal.Decimal
	Reliability decimal.Decimal
	Diagnosis   string
}

func (r Rating) Total() decimal.Decimal {
	return decimal.Sum(r.Relevance, r.Sufficiency, r.Clarity, r.Reliability)
}

type Rater interface {
	Rate(ctx context.Context, question, passage string) (Rating, error)
}

// Runner runs n calls with bounded concurrency; *workerpool.Pool
// satisfies it.
type Runner interface {
	Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error
}

type Score struct {
	ContextRelevance   float64 `json:"context_relevance"`
	ContextSufficiency float64 `json:"context_sufficiency"`
	ContextClarity     float64 `json:"context_clarity"`
	ContextReliability float64 `json:"context_reliability"`
	TotalScore         float64 `json:"total_score"`
	Diagnosis          string  `json:"diagnosis"`

	total decimal.Decimal
}

func newScore(r Rating) Score {
	total := r.Total()
	return Score{
		ContextRelevance:   r.Relevance.InexactFloat64(),
		ContextSufficiency: r.Sufficiency.InexactFloat64(),
		ContextClarity:     r.Clarity.InexactFloat64(),
		ContextReliability: r.Reliability.InexactFloat64(),
		TotalScore:         total.InexactFloat64(),
		Diagnosis:          r.Diagnosis,
		total:              total,
	}
}

// Total is the exact sum behind TotalScore.
func (s Score) Total() decimal.Decimal {
	return s.total
}

type Scorer struct {
	rater   Rater
	pool    Runner
	isolate bool
	logger  *zap.Logger
}

func NewScorer(rater Rater, pool Runner, cfg config.ScoringConfig, logger *zap.Logger) *Scorer {
	return &Scorer{
		rater:   rater,
		pool:    pool,
		isolate: cfg.IsolateFailures,
		logger:  logger,
	}
}

// Score rates every passage on the pool. The result is aligned with
// passages by index whatever order the ratings complete in. Unless failure
// isolation is on, the first failed rating fails the whole call; with it,
// a failed passage gets a zero score whose diagnosis carries the error.
func (s *Scorer) Score(ctx context.Context, question string, passages []string) ([]Score, error) {
	scores := make([]Score, len(passages))
	var failed atomic.Int32

	err := s.pool.Run(ctx, len(passages), func(ctx context.Context, i int) error {
		rating, err := s.rater.Rate(ctx, question, passages[i])
		if err != nil {
			if !s.isolate || ctx.Err() != nil {
				return fmt.Errorf("failed to score passage %d: %w", i, err)
			}
			failed.Add(1)
			s.logger.Warn("Scoring failed, passage gets zero", zap.Int("index", i), zap.Error(err))
			rating = Rating{Diagnosis: "scoring failed: " + err.Error()}
		}
		scores[i] = newScore(rating)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Scoring done",
		zap.Int("passages", len(passages)),
		zap.Int32("failed", failed.Load()),
	)
	return scores, nil
}

// Rank returns the indexes of scores ordered by total score, highest first,
// keeping equal totals in input order. With a threshold, indexes whose total
// is below it are dropped.
func Rank(scores []Score, threshold *float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]].total.GreaterThan(scores[order[b]].total)
	})

	if threshold == nil {
		return order
	}
	floor := decimal.NewFromFloat(*threshold)
	kept := order[:0]
	for _, i := range order {
		if scores[i].total.GreaterThanOrEqual(floor) {
			kept = append(kept, i)
		}
	}
	return kept
}
