// Package llm is the boundary to chat models. A Completer sends messages to
// a provider and returns raw text; a Classifier turns that text into a
// structured Result with retries and optional fan-out.
package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Completer returns the raw text of the model's reply to msgs.
type Completer interface {
	Complete(ctx context.Context, msgs []Message) (string, error)
}

// Runner runs n independent calls with bounded concurrency.
// *workerpool.Pool satisfies it.
type Runner interface {
	Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error
}
