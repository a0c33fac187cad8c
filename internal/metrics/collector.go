package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector aggregates finished test cases in a thread-safe manner.
type Collector struct {
	mu               sync.Mutex
	hist             *hdrhistogram.Histogram
	passed           int64
	failed           int64
	errored          int64
	minLatency       time.Duration
	maxLatency       time.Duration
	sumLatency       time.Duration
	timed            int64
	promptTokens     int64
	completionTokens int64
	totalTokens      int64
	costUSD          float64
	hasTokens        bool
	hasCost          bool
	retries          int64
	errorsByClass    map[string]int64
	models           map[string]*ModelBucket
	start            time.Time
}

// Summary represents aggregated statistics over a batch of test cases.
type Summary struct {
	Total    int64   `json:"total" yaml:"total"`
	Passed   int64   `json:"passed" yaml:"passed"`
	Failed   int64   `json:"failed" yaml:"failed"`
	Errored  int64   `json:"errored" yaml:"errored"`
	PassRate float64 `json:"pass_rate" yaml:"pass_rate"`

	MinLatency  time.Duration `json:"-" yaml:"-"`
	MaxLatency  time.Duration `json:"-" yaml:"-"`
	MeanLatency time.Duration `json:"-" yaml:"-"`
	P50Latency  time.Duration `json:"-" yaml:"-"`
	P90Latency  time.Duration `json:"-" yaml:"-"`
	P99Latency  time.Duration `json:"-" yaml:"-"`
	Duration    time.Duration `json:"-" yaml:"-"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64 `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64 `json:"duration_ms" yaml:"duration_ms"`

	TotalPromptTokens     *int64         `json:"total_prompt_tokens,omitempty" yaml:"total_prompt_tokens,omitempty"`
	TotalCompletionTokens *int64         `json:"total_completion_tokens,omitempty" yaml:"total_completion_tokens,omitempty"`
	TotalTokens           *int64         `json:"total_tokens,omitempty" yaml:"total_tokens,omitempty"`
	TotalCostUSD          *float64       `json:"total_cost_usd,omitempty" yaml:"total_cost_usd,omitempty"`
	TotalRetries          int64          `json:"total_retries" yaml:"total_retries"`
	Errors                map[string]int `json:"errors,omitempty" yaml:"errors,omitempty"`
	Models                []ModelBucket  `json:"models,omitempty" yaml:"models,omitempty"`
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 10min with 3 significant figures;
	// a generate call can sit through several long backoffs.
	h := hdrhistogram.New(1, 600_000_000, 3)
	return &Collector{
		hist:          h,
		errorsByClass: make(map[string]int64),
		models:        make(map[string]*ModelBucket),
		start:         time.Now(),
	}
}

// Record adds one finished case to the aggregate. m may be nil when the case
// failed before producing metrics; errClass is empty when the case executed.
func (c *Collector) Record(model string, m *Metrics, passed bool, errClass string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.models[model]
	if bucket == nil {
		bucket = &ModelBucket{Model: model}
		c.models[model] = bucket
	}

	switch {
	case errClass != "":
		c.errored++
		c.errorsByClass[errClass]++
		bucket.Errored++
	case passed:
		c.passed++
		bucket.Passed++
	default:
		c.failed++
		bucket.Failed++
	}

	if m == nil {
		return
	}

	latency := m.Latency
	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency
	c.timed++

	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	if m.PromptTokens != nil {
		c.promptTokens += int64(*m.PromptTokens)
		c.hasTokens = true
	}
	if m.CompletionTokens != nil {
		c.completionTokens += int64(*m.CompletionTokens)
		c.hasTokens = true
	}
	if m.TotalTokens != nil {
		c.totalTokens += int64(*m.TotalTokens)
		c.hasTokens = true
	}
	if m.CostUSD != nil {
		c.costUSD += *m.CostUSD
		c.hasCost = true
	}
	c.retries += int64(len(m.RetryDelays))
}

// Snapshot computes and returns current aggregated statistics.
func (c *Collector) Snapshot(elapsed time.Duration) Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.passed + c.failed + c.errored
	sum := Summary{
		Total:        total,
		Passed:       c.passed,
		Failed:       c.failed,
		Errored:      c.errored,
		MinLatency:   c.minLatency,
		MaxLatency:   c.maxLatency,
		TotalRetries: c.retries,
	}

	if total > 0 {
		sum.PassRate = float64(c.passed) / float64(total)
	}
	if c.timed > 0 {
		sum.MeanLatency = time.Duration(int64(c.sumLatency) / c.timed)
	}

	if c.hist.TotalCount() > 0 {
		sum.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		sum.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		sum.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	sum.MinLatencyMs = float64(sum.MinLatency) / float64(time.Millisecond)
	sum.MaxLatencyMs = float64(sum.MaxLatency) / float64(time.Millisecond)
	sum.MeanLatencyMs = float64(sum.MeanLatency) / float64(time.Millisecond)
	sum.P50LatencyMs = float64(sum.P50Latency) / float64(time.Millisecond)
	sum.P90LatencyMs = float64(sum.P90Latency) / float64(time.Millisecond)
	sum.P99LatencyMs = float64(sum.P99Latency) / float64(time.Millisecond)

	sum.Duration = elapsed
	sum.DurationMs = float64(elapsed) / float64(time.Millisecond)

	if c.hasTokens {
		prompt, completion, totalTok := c.promptTokens, c.completionTokens, c.totalTokens
		sum.TotalPromptTokens = &prompt
		sum.TotalCompletionTokens = &completion
		sum.TotalTokens = &totalTok
	}
	if c.hasCost {
		cost := c.costUSD
		sum.TotalCostUSD = &cost
	}

	if len(c.errorsByClass) > 0 {
		sum.Errors = make(map[string]int, len(c.errorsByClass))
		for k, v := range c.errorsByClass {
			sum.Errors[k] = int(v)
		}
	}

	sum.Models = flattenModelBuckets(c.models)

	return sum
}

// Started returns when the collector began observing the run.
func (c *Collector) Started() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start
}

// ErrorBreakdown returns a copy of the per-class error counts.
func (c *Collector) ErrorBreakdown() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[string]int)
	for k, v := range c.errorsByClass {
		result[k] = int(v)
	}
	return result
}
