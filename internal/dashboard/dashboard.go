package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/promptum/promptum/internal/metrics"
	"github.com/promptum/promptum/internal/runner"
)

// RunConfig holds benchmark parameters for the header display.
type RunConfig struct {
	SuiteName     string        // suite name from config
	BaseURL       string        // provider endpoint
	Model         string        // default model, cases may override
	MaxConcurrent int           // concurrent case cap
	Rate          int           // cases per second (0 = unpaced)
	Timeout       time.Duration // per-request timeout
	MaxAttempts   int           // retry budget per generate call
	ConfigFile    string        // path to suite file if used
	TotalCases    int           // number of cases in the run
}

const (
	maxFailureRows    = 10
	latencyHistoryLen = 100
	refreshInterval   = 500 * time.Millisecond
)

// Dashboard renders a live terminal UI while a benchmark runs.
type Dashboard struct {
	collector    *metrics.Collector
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	summaryPara    *widgets.Paragraph
	progressGauge  *widgets.Gauge
	countsPara     *widgets.Paragraph
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	modelList      *widgets.List
	failureList    *widgets.List
	latencyHistory []float64
	startTime      time.Time
	runConfig      RunConfig

	completed int
	failures  []string
}

// New initializes termui and builds the widget tree. It takes over the
// terminal; the caller must pair it with exactly one Stop.
func New(collector *metrics.Collector, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		collector:      collector,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, latencyHistoryLen),
		startTime:      time.Now(),
		runConfig:      cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	// Latency Sparkline
	sparkline := widgets.NewSparkline()
	sparkline.Title = "Latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Generate Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	// Latency Metrics Paragraph
	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "Min: 0ms\nMean: 0ms\nP50: 0ms\nP90: 0ms\nP99: 0ms"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	// Progress Gauge
	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Progress"
	d.progressGauge.Percent = 0
	d.progressGauge.BarColor = ui.ColorBlue
	d.progressGauge.BorderStyle.Fg = ui.ColorCyan
	d.progressGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	// Recent Failures List
	d.failureList = widgets.NewList()
	d.failureList.Title = "Recent Failures"
	d.failureList.Rows = []string{"No failures"}
	d.failureList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.failureList.BorderStyle.Fg = ui.ColorCyan

	// Model List
	d.modelList = widgets.NewList()
	d.modelList.Title = "Models"
	d.modelList.Rows = []string{"Awaiting results"}
	d.modelList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.modelList.BorderStyle.Fg = ui.ColorCyan

	// Summary Paragraph
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Benchmark"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	// Counts Paragraph
	d.countsPara = widgets.NewParagraph()
	d.countsPara.Title = "Cases"
	d.countsPara.Text = "Waiting for data..."
	d.countsPara.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.20,
			ui.NewCol(0.5, d.progressGauge),
			ui.NewCol(0.5, d.countsPara),
		),
		ui.NewRow(0.30,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.34,
			ui.NewCol(0.5, d.modelList),
			ui.NewCol(0.5, d.failureList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// Progress records a finished case. Wire it as the runner's progress
// callback; it is safe to call from worker goroutines.
func (d *Dashboard) Progress(completed, total int, res runner.TestResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.completed = completed
	if line, bad := formatFailureRow(res); bad {
		d.failures = append(d.failures, line)
		if len(d.failures) > maxFailureRows {
			d.failures = d.failures[1:]
		}
	}
}

// run owns the screen: it repaints on a timer and reacts to key presses
// and resizes until the context is cancelled.
func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	events := ui.PollEvents()
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(events) > 0 {
				<-events
			}
			return
		case e := <-events:
			select {
			case <-d.ctx.Done():
				return
			default:
			}
			d.handleEvent(e)
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

func (d *Dashboard) handleEvent(e ui.Event) {
	switch e.ID {
	case "q", "<C-c>":
		// Request shutdown; the loop keeps painting until Stop cancels
		// the context, so the final state stays visible.
		if d.shutdownFunc != nil {
			d.shutdownFunc()
		}
	case "<Resize>":
		size := e.Payload.(ui.Resize)
		d.grid.SetRect(0, 0, size.Width, size.Height)
		ui.Clear()
		d.render()
	}
}

// update refreshes all widget data from the collector.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	sum := d.collector.Snapshot(elapsed)

	// Update latency history for sparkline
	if sum.MeanLatency > 0 {
		latencyMs := sum.MeanLatencyMs
		d.latencyHistory = append(d.latencyHistory, latencyMs)
		if len(d.latencyHistory) > latencyHistoryLen {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Generate Latency | Mean: %.0fms | Min: %.0fms | Max: %.0fms",
			latencyMs,
			sum.MinLatencyMs,
			sum.MaxLatencyMs,
		)
	}

	total := d.runConfig.TotalCases
	percent := 0
	if total > 0 {
		percent = int((float64(d.completed) / float64(total)) * 100)
	}
	if percent > 100 {
		percent = 100
	}
	d.progressGauge.Percent = percent
	d.progressGauge.Label = fmt.Sprintf("%d/%d cases", d.completed, total)

	d.summaryPara.Text = fmt.Sprintf(
		"Suite: %s | Target: %s\n%s\nElapsed: %s | Completed: %d | Pass Rate: %.1f%%",
		d.runConfig.SuiteName,
		d.runConfig.BaseURL,
		d.formatRunParams(),
		elapsed.Round(time.Second),
		sum.Total,
		sum.PassRate*100,
	)

	d.countsPara.Text = formatCounts(sum)

	d.latencyPara.Text = fmt.Sprintf(
		"Min:  %.0fms\nMean: %.0fms\nP50:  %.0fms\nP90:  %.0fms\nP99:  %.0fms",
		sum.MinLatencyMs,
		sum.MeanLatencyMs,
		sum.P50LatencyMs,
		sum.P90LatencyMs,
		sum.P99LatencyMs,
	)

	d.updateModelList(sum)

	if len(d.failures) == 0 {
		d.failureList.Rows = []string{"[No failures](fg:green)"}
	} else {
		d.failureList.Rows = append([]string(nil), d.failures...)
	}
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func (d *Dashboard) updateModelList(sum metrics.Summary) {
	if len(sum.Models) == 0 {
		d.modelList.Rows = []string{"[Awaiting results](fg:green)"}
		return
	}
	// Models arrive sorted by case count from the collector.
	formatted := make([]string, 0, len(sum.Models))
	for _, b := range sum.Models {
		total := b.Passed + b.Failed + b.Errored
		share := 0.0
		if sum.Total > 0 {
			share = (float64(total) / float64(sum.Total)) * 100
		}
		passRate := 0.0
		if total > 0 {
			passRate = (float64(b.Passed) / float64(total)) * 100
		}
		formatted = append(formatted, fmt.Sprintf("[%s](fg:cyan) | %5.1f%% of run | pass %5.1f%% | err %d",
			b.Model,
			share,
			passRate,
			b.Errored,
		))
	}
	d.modelList.Rows = formatted
}

func formatCounts(sum metrics.Summary) string {
	lines := []string{
		fmt.Sprintf("Completed:  %d", sum.Total),
		fmt.Sprintf("Passed:     %d", sum.Passed),
		fmt.Sprintf("Failed:     %d", sum.Failed),
		fmt.Sprintf("Errored:    %d", sum.Errored),
		fmt.Sprintf("Retries:    %d", sum.TotalRetries),
	}
	if sum.TotalTokens != nil {
		lines = append(lines, fmt.Sprintf("Tokens:     %d", *sum.TotalTokens))
	}
	if sum.TotalCostUSD != nil {
		lines = append(lines, fmt.Sprintf("Cost:       $%.4f", *sum.TotalCostUSD))
	}
	return strings.Join(lines, "\n")
}

func formatFailureRow(res runner.TestResult) (string, bool) {
	name := "?"
	if res.Case != nil {
		name = res.Case.Name
	}
	switch {
	case res.Errored():
		return fmt.Sprintf("[%s](fg:red) %s: %s",
			name,
			metrics.FriendlyErrorName(res.ErrorClass),
			truncate(res.ExecutionError, 60),
		), true
	case !res.Passed:
		return fmt.Sprintf("[%s](fg:yellow) failed validation", name), true
	default:
		return "", false
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// formatRunParams formats the benchmark parameters for display.
func (d *Dashboard) formatRunParams() string {
	var parts []string

	if d.runConfig.Model != "" {
		parts = append(parts, fmt.Sprintf("Model: %s", d.runConfig.Model))
	}

	if d.runConfig.MaxConcurrent > 0 {
		parts = append(parts, fmt.Sprintf("Workers: %d", d.runConfig.MaxConcurrent))
	}

	if d.runConfig.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %d/s", d.runConfig.Rate))
	} else {
		parts = append(parts, "Rate: unpaced")
	}

	if d.runConfig.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", d.runConfig.Timeout))
	}

	// Only worth a slot when retries are actually configured.
	if d.runConfig.MaxAttempts > 1 {
		parts = append(parts, fmt.Sprintf("Attempts: %d", d.runConfig.MaxAttempts))
	}

	if d.runConfig.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.runConfig.ConfigFile))
	}

	if len(parts) == 0 {
		return ""
	}

	return strings.Join(parts, " | ")
}
