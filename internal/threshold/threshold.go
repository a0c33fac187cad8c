// Package threshold parses and evaluates pass/fail assertions over a run
// summary, in the "metric:aggregate op value" form used for CI gates.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/promptum/promptum/internal/metrics"
)

// Threshold is one parsed assertion over the run summary.
type Threshold struct {
	Metric    string
	Aggregate string
	Operator  string
	Value     float64
	Raw       string // original expression, kept for display
}

// Result pairs a threshold with the value it saw and the verdict.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

var thresholdExpr = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

var (
	validMetrics = map[string]bool{
		"case_duration": true, "case_failed": true, "pass_rate": true,
		"cases": true, "cost_total": true, "tokens_total": true,
	}
	validAggregates = map[string]bool{
		"p50": true, "p90": true, "p95": true, "p99": true, "avg": true,
		"min": true, "max": true, "rate": true, "count": true, "sum": true,
	}
	validOperators = map[string]bool{
		"<": true, "<=": true, ">": true, ">=": true, "==": true,
	}
)

// Parse turns an expression like "case_duration:p95 < 5000" into a
// Threshold. Supported metrics and their aggregates:
//
//	case_duration: p50 p90 p95 p99 avg min max  (milliseconds)
//	case_failed:   count rate                   (failed or errored cases)
//	pass_rate:     rate                         (passed share, 0..1)
//	cases:         count rate                   (executed cases, per second)
//	cost_total:    sum                          (USD)
//	tokens_total:  sum
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold expression")
	}
	m := thresholdExpr.FindStringSubmatch(s)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold %q: want \"metric:aggregate op value\", e.g. \"case_duration:p95 < 5000\"", s)
	}

	value, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", m[4], err)
	}
	if !validMetrics[m[1]] {
		return Threshold{}, fmt.Errorf("unsupported metric %q (supported: case_duration, case_failed, pass_rate, cases, cost_total, tokens_total)", m[1])
	}
	if !validAggregates[m[2]] {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q (supported: p50, p90, p95, p99, avg, min, max, rate, count, sum)", m[2])
	}
	if !validOperators[m[3]] {
		return Threshold{}, fmt.Errorf("unsupported operator %q (supported: <, <=, >, >=, ==)", m[3])
	}

	return Threshold{Metric: m[1], Aggregate: m[2], Operator: m[3], Value: value, Raw: s}, nil
}

// ParseMultiple parses a list of expressions, stopping at the first bad one.
func ParseMultiple(exprs []string) ([]Threshold, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	out := make([]Threshold, 0, len(exprs))
	for i, s := range exprs {
		t, err := Parse(s)
		if err != nil {
			return nil, fmt.Errorf("threshold %d: %w", i+1, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Evaluator holds parsed thresholds and applies them to run summaries.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator builds an evaluator over already-parsed thresholds.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate applies every threshold to sum, in input order.
func (e *Evaluator) Evaluate(sum metrics.Summary) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}
	out := make([]Result, len(e.thresholds))
	for i, t := range e.thresholds {
		out[i] = evaluate(t, sum)
	}
	return out
}

// evaluate resolves the observed value and renders the verdict line shown
// in reports.
func evaluate(t Threshold, sum metrics.Summary) Result {
	actual, err := metricValue(t, sum)
	if err != nil {
		return Result{Threshold: t, Message: fmt.Sprintf("error: %v", err)}
	}
	pass := compare(actual, t.Operator, t.Value)
	mark := "✓"
	if !pass {
		mark = "✗"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", mark, t.Raw, actual, t.Operator, t.Value),
	}
}

func metricValue(t Threshold, sum metrics.Summary) (float64, error) {
	switch t.Metric {
	case "case_duration":
		return latencyValue(t.Aggregate, sum)
	case "case_failed":
		return failureValue(t.Aggregate, sum)
	case "pass_rate":
		if t.Aggregate != "rate" {
			return 0, fmt.Errorf("unsupported aggregate %q for pass_rate (use \"rate\")", t.Aggregate)
		}
		return sum.PassRate, nil
	case "cases":
		return caseValue(t.Aggregate, sum)
	case "cost_total":
		if t.Aggregate != "sum" {
			return 0, fmt.Errorf("unsupported aggregate %q for cost_total (use \"sum\")", t.Aggregate)
		}
		if sum.TotalCostUSD == nil {
			return 0, fmt.Errorf("no cost data recorded for this run")
		}
		return *sum.TotalCostUSD, nil
	case "tokens_total":
		if t.Aggregate != "sum" {
			return 0, fmt.Errorf("unsupported aggregate %q for tokens_total (use \"sum\")", t.Aggregate)
		}
		if sum.TotalTokens == nil {
			return 0, fmt.Errorf("no token usage recorded for this run")
		}
		return float64(*sum.TotalTokens), nil
	default:
		return 0, fmt.Errorf("unknown metric %s", t.Metric)
	}
}

// latencyValue reads a latency aggregate in milliseconds. p95 is not
// tracked directly and is approximated from p90 and p99.
func latencyValue(aggregate string, sum metrics.Summary) (float64, error) {
	switch aggregate {
	case "p50":
		return sum.P50LatencyMs, nil
	case "p90":
		return sum.P90LatencyMs, nil
	case "p95":
		return (sum.P90LatencyMs + sum.P99LatencyMs) / 2, nil
	case "p99":
		return sum.P99LatencyMs, nil
	case "avg":
		return sum.MeanLatencyMs, nil
	case "min":
		return sum.MinLatencyMs, nil
	case "max":
		return sum.MaxLatencyMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for case_duration", aggregate)
	}
}

// failureValue counts validation failures and execution errors together.
func failureValue(aggregate string, sum metrics.Summary) (float64, error) {
	failed := sum.Failed + sum.Errored
	switch aggregate {
	case "count":
		return float64(failed), nil
	case "rate":
		if sum.Total == 0 {
			return 0, nil
		}
		return float64(failed) / float64(sum.Total), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for case_failed (use \"count\" or \"rate\")", aggregate)
	}
}

// caseValue reports executed-case volume: a plain count, or cases per
// second over the run's wall time.
func caseValue(aggregate string, sum metrics.Summary) (float64, error) {
	switch aggregate {
	case "count":
		return float64(sum.Total), nil
	case "rate":
		if sum.Duration <= 0 {
			return 0, nil
		}
		return float64(sum.Total) / sum.Duration.Seconds(), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for cases (use \"count\" or \"rate\")", aggregate)
	}
}

const epsilon = 1e-9

func compare(actual float64, op string, want float64) bool {
	switch op {
	case "<":
		return actual < want
	case "<=":
		return actual <= want || math.Abs(actual-want) < epsilon
	case ">":
		return actual > want
	case ">=":
		return actual >= want || math.Abs(actual-want) < epsilon
	case "==":
		return math.Abs(actual-want) < epsilon
	default:
		return false
	}
}
