package provider

import (
	"context"

	"github.com/promptum/promptum/internal/metrics"
	"github.com/promptum/promptum/internal/retry"
)

// Request describes a single generation to run against a model.
type Request struct {
	Prompt       string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64
	Extra        map[string]any
	Retry        *retry.Config // per-call override; nil uses the provider default
}

// Provider abstracts a chat completion backend. Generate blocks until the
// call succeeds or fails terminally, honoring ctx for cancellation, and
// returns the completion text together with the call's metrics.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, *metrics.Metrics, error)
}
