package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"librag/pkg/config"

	"github.com/Role1776/gigago"
	"go.uber.org/zap"
)

// GigaChatCompleter sends chats to GigaChat. System messages become the
// model's system instruction; the rest are sent as turns.
type GigaChatCompleter struct {
	client    *gigago.Client
	modelName string
	logger    *zap.Logger
}

func NewGigaChatCompleter(ctx context.Context, cfg *config.LLMConfig, logger *zap.Logger) (*GigaChatCompleter, error) {
	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" || strings.HasPrefix(modelName, "gpt") {
		modelName = "GigaChat"
	}
	logger.Info("Using GigaChat model", zap.String("model", modelName))

	return &GigaChatCompleter{
		client:    client,
		modelName: modelName,
		logger:    logger,
	}, nil
}

func (c *GigaChatCompleter) Complete(ctx context.Context, msgs []Message) (string, error) {
	// A model value per call keeps SystemInstruction request-local.
	model := c.client.GenerativeModel(c.modelName)
	model.Temperature = 0.1

	var system []string
	turns := make([]gigago.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			turns = append(turns, gigago.Message{Role: "assistant", Content: m.Content})
		default:
			turns = append(turns, gigago.Message{Role: gigago.RoleUser, Content: m.Content})
		}
	}
	model.SystemInstruction = strings.Join(system, "\n\n")

	resp, err := model.Generate(ctx, turns)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", newError(KindPermanent, "complete", err)
		}
		return "", newError(KindTransient, "complete", fmt.Errorf("failed to generate response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", newError(KindMalformed, "complete", errors.New("no response from LLM"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *GigaChatCompleter) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
