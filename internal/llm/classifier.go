package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// InputTextKey marks a user message that can be sharded by Chat: a JSON
// object holding the question under this key and one candidate list.
const InputTextKey = "input_text"

type Classifier interface {
	// Chat sends msgs and parses the reply. With groupSize > 0 and a
	// shardable last message, the candidate list is split into groups of
	// groupSize, each group is classified on its own, and the returned
	// ListResult concatenates the groups' lists in completion order.
	Chat(ctx context.Context, msgs []Message, groupSize int) (Result, error)
}

type ClassifierConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	// Timeout bounds a single attempt.
	Timeout time.Duration
}

type LLMClassifier struct {
	completer Completer
	pool      Runner
	cfg       ClassifierConfig
	logger    *zap.Logger
}

func NewClassifier(completer Completer, pool Runner, cfg ClassifierConfig, logger *zap.Logger) *LLMClassifier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &LLMClassifier{
		completer: completer,
		pool:      pool,
		cfg:       cfg,
		logger:    logger,
	}
}

func (c *LLMClassifier) Chat(ctx context.Context, msgs []Message, groupSize int) (Result, error) {
	if len(msgs) == 0 {
		return nil, newError(KindPermanent, "chat", errors.New("no messages"))
	}
	if groupSize > 0 {
		if req, ok := parseShardable(msgs[len(msgs)-1].Content); ok {
			return c.fanOut(ctx, msgs, req, groupSize)
		}
	}
	return c.chatWithRetry(ctx, msgs)
}

func (c *LLMClassifier) chatWithRetry(ctx context.Context, msgs []Message) (Result, error) {
	var (
		res     Result
		attempt int
	)
	op := func() error {
		attempt++
		r, err := c.attempt(ctx, msgs)
		if err == nil {
			res = r
			return nil
		}

		kind := KindOf(err)
		if ctx.Err() != nil {
			kind = KindPermanent
		}
		c.logger.Warn("LLM call failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.cfg.MaxAttempts),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		if kind == KindPermanent {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.cfg.MaxAttempts-1)), ctx)
	err := backoff.Retry(op, b)
	if err == nil {
		return res, nil
	}

	c.logger.Error("LLM call gave up", zap.Int("attempts", attempt), zap.Error(err))
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return nil, newError(KindPermanent, "chat", err)
	}
	var e *Error
	if errors.As(err, &e) {
		return nil, err
	}
	return nil, newError(KindOf(err), "chat", err)
}

func (c *LLMClassifier) attempt(ctx context.Context, msgs []Message) (Result, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	text, err := c.completer.Complete(ctx, msgs)
	if err != nil {
		return nil, err
	}
	res, err := Parse(text)
	if err != nil {
		return nil, newError(KindMalformed, "parse", err)
	}
	return res, nil
}

// newBackOff doubles BackoffBase per retry, without jitter, up to 30s.
func (c *LLMClassifier) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.BackoffBase
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

type shardable struct {
	inputText any
	listKey   string
	items     []any
}

// parseShardable accepts a JSON or literal object with InputTextKey and
// exactly one other list-valued key.
func parseShardable(content string) (shardable, bool) {
	v, err := parseLiteral(content)
	if err != nil {
		return shardable{}, false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return shardable{}, false
	}
	input, ok := obj[InputTextKey]
	if !ok || len(obj) != 2 {
		return shardable{}, false
	}
	for k, val := range obj {
		if k == InputTextKey {
			continue
		}
		items, ok := val.([]any)
		if !ok {
			return shardable{}, false
		}
		return shardable{inputText: input, listKey: k, items: items}, true
	}
	return shardable{}, false
}

func (c *LLMClassifier) fanOut(ctx context.Context, msgs []Message, req shardable, groupSize int) (Result, error) {
	var groups [][]any
	for start := 0; start < len(req.items); start += groupSize {
		groups = append(groups, req.items[start:min(start+groupSize, len(req.items))])
	}

	c.logger.Debug("LLM fan-out",
		zap.String("key", req.listKey),
		zap.Int("items", len(req.items)),
		zap.Int("groups", len(groups)),
	)

	var (
		mu     sync.Mutex
		merged = ListResult{}
	)
	err := c.pool.Run(ctx, len(groups), func(ctx context.Context, i int) error {
		content, err := json.Marshal(map[string]any{
			InputTextKey: req.inputText,
			req.listKey:  groups[i],
		})
		if err != nil {
			return newError(KindPermanent, "fan-out", fmt.Errorf("failed to encode shard: %w", err))
		}

		shard := make([]Message, len(msgs))
		copy(shard, msgs)
		shard[len(shard)-1].Content = string(content)

		res, err := c.chatWithRetry(ctx, shard)
		if err != nil {
			return err
		}

		mu.Lock()
		merged = append(merged, res.Items()...)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}
