package metrics

import "time"

// Metrics captures the observable cost of a single generate call: wall-clock
// latency spanning every attempt, token usage and billed cost when the
// provider reports them, and each backoff pause the call sat through.
type Metrics struct {
	Latency   time.Duration `json:"-" yaml:"-"`
	LatencyMS float64       `json:"latency_ms" yaml:"latency_ms"`

	PromptTokens     *int     `json:"prompt_tokens,omitempty" yaml:"prompt_tokens,omitempty"`
	CompletionTokens *int     `json:"completion_tokens,omitempty" yaml:"completion_tokens,omitempty"`
	TotalTokens      *int     `json:"total_tokens,omitempty" yaml:"total_tokens,omitempty"`
	CostUSD          *float64 `json:"cost_usd,omitempty" yaml:"cost_usd,omitempty"`

	RetryDelays   []time.Duration `json:"-" yaml:"-"`
	RetryDelaysMS []float64       `json:"retry_delays_ms,omitempty" yaml:"retry_delays_ms,omitempty"`
}

// SetLatency stores the duration and keeps the millisecond mirror in sync.
func (m *Metrics) SetLatency(d time.Duration) {
	m.Latency = d
	m.LatencyMS = float64(d) / float64(time.Millisecond)
}

// AddRetryDelay appends one backoff pause in call order.
func (m *Metrics) AddRetryDelay(d time.Duration) {
	m.RetryDelays = append(m.RetryDelays, d)
	m.RetryDelaysMS = append(m.RetryDelaysMS, float64(d)/float64(time.Millisecond))
}

// Retries reports how many reattempts the call needed.
func (m *Metrics) Retries() int {
	return len(m.RetryDelays)
}
