// Package bench orchestrates one benchmark run end to end: it feeds the
// suite's test cases through the runner, aggregates outcomes into a metrics
// collector as they land, and assembles the final report.
package bench

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/promptum/promptum/internal/metrics"
	"github.com/promptum/promptum/internal/provider"
	"github.com/promptum/promptum/internal/report"
	"github.com/promptum/promptum/internal/runner"
	"github.com/promptum/promptum/internal/tracing"
)

// Options configure a benchmark session.
type Options struct {
	SuiteName     string
	Provider      provider.Provider
	MaxConcurrent int
	RatePerSecond int
	Logger        logrus.FieldLogger // optional; logs every case when set
	Tracer        trace.Tracer       // optional; wraps the run in a span when set
	Progress      func(completed, total int, result runner.TestResult)
	Hooks         []runner.Hook
}

// Session owns one benchmark run: the queued cases, the collector that
// aggregates their outcomes, and the options the runner executes under.
// Queue cases with AddCase/AddCases, then call Run once.
type Session struct {
	opt       Options
	cases     []runner.TestCase
	collector *metrics.Collector
}

func NewSession(opt Options) *Session {
	return &Session{
		opt:       opt,
		collector: metrics.NewCollector(),
	}
}

// AddCase queues one test case for the run.
func (s *Session) AddCase(tc runner.TestCase) {
	s.cases = append(s.cases, tc)
}

// AddCases queues test cases preserving their order.
func (s *Session) AddCases(cases []runner.TestCase) {
	s.cases = append(s.cases, cases...)
}

// Len returns the number of cases queued so far.
func (s *Session) Len() int {
	return len(s.cases)
}

// Collector exposes the session's metrics collector so live observers
// (progress line, dashboard) can snapshot it while the run executes.
func (s *Session) Collector() *metrics.Collector {
	return s.collector
}

// Run executes every queued case and returns the finished report. A failing
// case never aborts the run; it lands in the report as a failed result.
// Cancelling ctx stops scheduling and records the remaining cases as errored.
func (s *Session) Run(ctx context.Context) report.Report {
	started := time.Now().UTC()

	var span trace.Span
	if s.opt.Tracer != nil {
		ctx, span = tracing.StartRunSpan(ctx, s.opt.Tracer, s.opt.SuiteName, len(s.cases))
	}

	// The collector hook runs last so user hooks observe results before
	// they count toward the summary.
	hooks := make([]runner.Hook, 0, len(s.opt.Hooks)+2)
	hooks = append(hooks, s.opt.Hooks...)
	if s.opt.Logger != nil {
		hooks = append(hooks, &runner.LoggingHook{Logger: s.opt.Logger})
	}
	hooks = append(hooks, &collectorHook{collector: s.collector})

	r := runner.New(runner.Options{
		Provider:      s.opt.Provider,
		MaxConcurrent: s.opt.MaxConcurrent,
		RatePerSecond: s.opt.RatePerSecond,
		Progress:      s.opt.Progress,
		Hooks:         hooks,
	})

	results := r.Run(ctx, s.cases)
	finished := time.Now().UTC()
	summary := s.collector.Snapshot(finished.Sub(started))

	if span != nil {
		tracing.EndSpan(span, ctx.Err(),
			attribute.Int64("promptum.passed", summary.Passed),
			attribute.Int64("promptum.failed", summary.Failed),
			attribute.Int64("promptum.errored", summary.Errored),
		)
	}

	return report.Report{
		SuiteName:  s.opt.SuiteName,
		RunID:      report.NewRunID(),
		StartedAt:  started,
		FinishedAt: finished,
		Results:    results,
		Summary:    summary,
	}
}

// collectorHook feeds finished cases into the session's collector.
type collectorHook struct {
	collector *metrics.Collector
}

func (h *collectorHook) BeforeCase(*runner.TestCase) {}

func (h *collectorHook) AfterCase(r runner.TestResult) {
	model := ""
	if r.Case != nil {
		model = r.Case.Model
	}
	h.collector.Record(model, r.Metrics, r.Passed, r.ErrorClass)
}
