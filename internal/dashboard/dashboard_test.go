package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/gizak/termui/v3/widgets"

	"github.com/promptum/promptum/internal/metrics"
	"github.com/promptum/promptum/internal/runner"
)

func failedResult(name, execErr, class string) runner.TestResult {
	return runner.TestResult{
		Case:           &runner.TestCase{Name: name, Prompt: "p", Model: "m"},
		Passed:         false,
		ExecutionError: execErr,
		ErrorClass:     class,
	}
}

func TestFormatFailureRow(t *testing.T) {
	errored := failedResult("timeout-case", "request failed after 3 attempts: context deadline exceeded", "*url.Error")
	row, bad := formatFailureRow(errored)
	if !bad {
		t.Fatal("errored result should produce a failure row")
	}
	if !strings.Contains(row, "timeout-case") {
		t.Errorf("row missing case name: %s", row)
	}

	failed := runner.TestResult{
		Case:   &runner.TestCase{Name: "wrong-answer"},
		Passed: false,
	}
	row, bad = formatFailureRow(failed)
	if !bad {
		t.Fatal("failed result should produce a failure row")
	}
	if !strings.Contains(row, "failed validation") {
		t.Errorf("row missing validation note: %s", row)
	}

	passed := runner.TestResult{
		Case:   &runner.TestCase{Name: "fine"},
		Passed: true,
	}
	if _, bad := formatFailureRow(passed); bad {
		t.Error("passed result must not produce a failure row")
	}
}

func TestProgressKeepsRecentFailures(t *testing.T) {
	d := &Dashboard{}

	for i := 0; i < 15; i++ {
		d.Progress(i+1, 15, failedResult("case", "boom", "*errors.errorString"))
	}

	if d.completed != 15 {
		t.Errorf("completed = %d, want 15", d.completed)
	}
	if len(d.failures) != maxFailureRows {
		t.Errorf("failure list length = %d, want %d", len(d.failures), maxFailureRows)
	}
}

func TestProgressIgnoresPassingCases(t *testing.T) {
	d := &Dashboard{}

	d.Progress(1, 2, runner.TestResult{Case: &runner.TestCase{Name: "ok"}, Passed: true})

	if len(d.failures) != 0 {
		t.Errorf("passing case added a failure row: %v", d.failures)
	}
	if d.completed != 1 {
		t.Errorf("completed = %d, want 1", d.completed)
	}
}

func TestUpdateModelList(t *testing.T) {
	d := &Dashboard{
		modelList: widgets.NewList(),
	}

	sum := metrics.Summary{
		Total: 10,
		Models: []metrics.ModelBucket{
			{Model: "openai/gpt-4o-mini", Passed: 7, Failed: 1, Errored: 0},
			{Model: "anthropic/claude-sonnet-4", Passed: 1, Failed: 0, Errored: 1},
		},
	}

	d.updateModelList(sum)

	if len(d.modelList.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(d.modelList.Rows))
	}
	if !strings.Contains(d.modelList.Rows[0], "openai/gpt-4o-mini") {
		t.Errorf("first row should name the busiest model: %s", d.modelList.Rows[0])
	}
	if !strings.Contains(d.modelList.Rows[0], "pass  87.5%") {
		t.Errorf("first row pass rate wrong: %s", d.modelList.Rows[0])
	}
	if !strings.Contains(d.modelList.Rows[1], "err 1") {
		t.Errorf("second row should count errors: %s", d.modelList.Rows[1])
	}
}

func TestUpdateModelListEmpty(t *testing.T) {
	d := &Dashboard{modelList: widgets.NewList()}

	d.updateModelList(metrics.Summary{})

	if len(d.modelList.Rows) != 1 || !strings.Contains(d.modelList.Rows[0], "Awaiting results") {
		t.Errorf("empty summary rows = %v", d.modelList.Rows)
	}
}

func TestFormatCounts(t *testing.T) {
	tokens := int64(1234)
	cost := 0.0567
	sum := metrics.Summary{
		Total:        12,
		Passed:       9,
		Failed:       2,
		Errored:      1,
		TotalRetries: 4,
		TotalTokens:  &tokens,
		TotalCostUSD: &cost,
	}

	text := formatCounts(sum)
	for _, want := range []string{"Completed:  12", "Passed:     9", "Failed:     2", "Errored:    1", "Retries:    4", "Tokens:     1234", "Cost:       $0.0567"} {
		if !strings.Contains(text, want) {
			t.Errorf("counts text missing %q:\n%s", want, text)
		}
	}

	bare := formatCounts(metrics.Summary{Total: 1, Passed: 1})
	if strings.Contains(bare, "Tokens") || strings.Contains(bare, "Cost") {
		t.Errorf("counts without usage data must omit token/cost lines:\n%s", bare)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 60); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := strings.Repeat("x", 80)
	got := truncate(long, 60)
	if len(got) != 60 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate(long) = %q (len %d)", got, len(got))
	}
}

func TestFormatRunParams(t *testing.T) {
	tests := []struct {
		name     string
		config   RunConfig
		contains []string
		excludes []string
	}{
		{
			name: "basic config",
			config: RunConfig{
				Model:         "openai/gpt-4o-mini",
				MaxConcurrent: 5,
				Rate:          2,
				Timeout:       30 * time.Second,
			},
			contains: []string{"Model: openai/gpt-4o-mini", "Workers: 5", "Rate: 2/s", "Timeout: 30s"},
			excludes: []string{"Attempts:", "Config:"},
		},
		{
			name: "unpaced rate",
			config: RunConfig{
				MaxConcurrent: 3,
			},
			contains: []string{"Workers: 3", "Rate: unpaced"},
		},
		{
			name: "with retries",
			config: RunConfig{
				MaxConcurrent: 5,
				MaxAttempts:   3,
			},
			contains: []string{"Attempts: 3"},
		},
		{
			name: "single attempt not shown",
			config: RunConfig{
				MaxConcurrent: 5,
				MaxAttempts:   1,
			},
			excludes: []string{"Attempts:"},
		},
		{
			name: "with suite file",
			config: RunConfig{
				MaxConcurrent: 5,
				ConfigFile:    "suite.yml",
			},
			contains: []string{"Config: suite.yml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Dashboard{runConfig: tt.config}
			result := d.formatRunParams()

			for _, s := range tt.contains {
				if !strings.Contains(result, s) {
					t.Errorf("expected result to contain %q, got %q", s, result)
				}
			}

			for _, s := range tt.excludes {
				if strings.Contains(result, s) {
					t.Errorf("expected result NOT to contain %q, got %q", s, result)
				}
			}
		})
	}
}
