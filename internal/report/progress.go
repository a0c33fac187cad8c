package report

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/promptum/promptum/internal/metrics"
)

// ProgressReporter displays real-time progress updates while a run executes.
type ProgressReporter struct {
	collector *metrics.Collector
	total     int
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. total is the number of cases the run will execute.
func NewProgressReporter(collector *metrics.Collector, total int, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		total:     total,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			elapsed := time.Since(p.start)
			sum := p.collector.Snapshot(elapsed)
			line := fmt.Sprintf("\rCases: %d/%d | Passed: %d | Failed: %d | Errored: %d | Elapsed: %s",
				sum.Total, p.total, sum.Passed, sum.Failed, sum.Errored, elapsed.Round(time.Second))
			if sum.P50Latency > 0 {
				line += fmt.Sprintf(" | P50 %s", sum.P50Latency.Round(time.Millisecond))
			}
			if sum.TotalCostUSD != nil {
				line += fmt.Sprintf(" | $%.4f", *sum.TotalCostUSD)
			}
			fmt.Fprint(p.writer, line)
		case <-p.done:
			return
		}
	}
}
