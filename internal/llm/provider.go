package llm

import (
	"context"
	"fmt"
	"io"

	"librag/pkg/config"

	"go.uber.org/zap"
)

// NewCompleter builds the completer named by cfg.Provider. The returned
// closer releases provider resources and is never nil.
func NewCompleter(ctx context.Context, cfg *config.LLMConfig, logger *zap.Logger) (Completer, io.Closer, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAICompleter(cfg, logger), nopCloser{}, nil
	case "gigachat":
		c, err := NewGigaChatCompleter(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
