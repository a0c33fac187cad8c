package runner

import (
	"golang.org/x/time/rate"

	"github.com/promptum/promptum/internal/provider"
)

// Validator judges a model response. Implementations report whether the
// response passes together with details explaining the judgment.
type Validator interface {
	Validate(response string) (bool, map[string]any)
	Describe() string
}

// DefaultMaxConcurrent caps in-flight cases when Options.MaxConcurrent is unset.
const DefaultMaxConcurrent = 5

// Options configure the Runner.
type Options struct {
	Provider       provider.Provider                             // executes generate calls (required)
	MaxConcurrent  int                                           // max in-flight cases (default DefaultMaxConcurrent)
	RatePerSecond  int                                           // request pacing (0 means unpaced)
	Progress       func(completed, total int, result TestResult) // invoked once per finished case
	Hooks          []Hook
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst equal to rps to smooth pacing under concurrency.
			return rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}
