package llm

import (
	"context"
)

// Client sends a single prompt to a chat model and returns its reply
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
