package runner

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/promptum/promptum/internal/metrics"
	"github.com/promptum/promptum/internal/provider"
	"github.com/promptum/promptum/internal/retry"
)

// TestCase describes one prompt to execute and how to judge its response.
// Cases are treated as immutable once handed to Run.
type TestCase struct {
	Name         string         `json:"name" yaml:"name"`
	Prompt       string         `json:"prompt" yaml:"prompt"`
	Model        string         `json:"model" yaml:"model"`
	SystemPrompt string         `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Temperature  *float64       `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    int            `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Extra        map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
	Validator    Validator      `json:"-" yaml:"-"`
	Retry        *retry.Config  `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// TestResult is the outcome of one executed case. Exactly one of Response
// and ExecutionError is populated: a result carries either the model's
// reply or the reason execution failed, never both.
type TestResult struct {
	Case              *TestCase        `json:"case" yaml:"case"`
	Response          *string          `json:"response,omitempty" yaml:"response,omitempty"`
	Passed            bool             `json:"passed" yaml:"passed"`
	Metrics           *metrics.Metrics `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	ValidationDetails map[string]any   `json:"validation_details,omitempty" yaml:"validation_details,omitempty"`
	ExecutionError    string           `json:"execution_error,omitempty" yaml:"execution_error,omitempty"`
	ErrorClass        string           `json:"error_class,omitempty" yaml:"error_class,omitempty"`
	Timestamp         time.Time        `json:"timestamp" yaml:"timestamp"`
}

// Errored reports whether the case failed to execute at all, as opposed to
// executing and failing validation.
func (r TestResult) Errored() bool {
	return r.ExecutionError != ""
}

// Runner executes batches of independent test cases with bounded concurrency.
type Runner struct {
	opt     Options
	limiter *rate.Limiter
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{
		opt:     opt,
		limiter: opt.LimiterFactory(opt.RatePerSecond),
	}
}

// Run executes every case and returns one result per case, index-aligned
// with the input. A case never fails the batch: provider errors become
// failed results. The progress callback fires exactly once per case with a
// consistent (completed, total, result) triple; completion order is
// whatever order cases finish in.
func (r *Runner) Run(ctx context.Context, cases []TestCase) []TestResult {
	results := make([]TestResult, len(cases))
	if len(cases) == 0 {
		return results
	}

	total := len(cases)
	var mu sync.Mutex
	completed := 0

	var g errgroup.Group
	g.SetLimit(r.opt.MaxConcurrent)
	for i := range cases {
		g.Go(func() error {
			res := r.execute(ctx, &cases[i])
			results[i] = res

			mu.Lock()
			completed++
			if r.opt.Progress != nil {
				r.opt.Progress(completed, total, res)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// execute runs a single case end to end: hooks, pacing, the generate call,
// and validation of the response.
func (r *Runner) execute(ctx context.Context, tc *TestCase) TestResult {
	for _, h := range r.opt.Hooks {
		h.BeforeCase(tc)
	}

	result := r.executeCase(ctx, tc)

	for _, h := range r.opt.Hooks {
		h.AfterCase(result)
	}
	return result
}

func (r *Runner) executeCase(ctx context.Context, tc *TestCase) TestResult {
	if err := r.limiter.Wait(ctx); err != nil {
		return errorResult(tc, err)
	}

	text, m, err := r.opt.Provider.Generate(ctx, provider.Request{
		Prompt:       tc.Prompt,
		Model:        tc.Model,
		SystemPrompt: tc.SystemPrompt,
		Temperature:  tc.Temperature,
		MaxTokens:    tc.MaxTokens,
		Extra:        tc.Extra,
		Retry:        tc.Retry,
	})
	if err != nil {
		return errorResult(tc, err)
	}

	// A case without a validator passes on any successful response.
	passed := true
	var details map[string]any
	if tc.Validator != nil {
		passed, details = tc.Validator.Validate(text)
	}

	return TestResult{
		Case:              tc,
		Response:          &text,
		Passed:            passed,
		Metrics:           m,
		ValidationDetails: details,
		Timestamp:         time.Now().UTC(),
	}
}

func errorResult(tc *TestCase, err error) TestResult {
	return TestResult{
		Case:           tc,
		Passed:         false,
		ExecutionError: err.Error(),
		ErrorClass:     metrics.ErrorTypeName(err),
		Timestamp:      time.Now().UTC(),
	}
}
