package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/promptum/promptum/internal/metrics"
	"github.com/promptum/promptum/internal/runner"
	"github.com/promptum/promptum/internal/threshold"
)

const maxDetailWidth = 60

var (
	passLabel  = color.New(color.FgGreen).SprintFunc()
	failLabel  = color.New(color.FgRed).SprintFunc()
	errorLabel = color.New(color.FgYellow).SprintFunc()
)

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, rep Report) {
	sum := rep.Summary

	fmt.Fprintln(w, "\n--- Benchmark Results ---")
	if rep.SuiteName != "" {
		fmt.Fprintf(w, "Suite:             %s\n", rep.SuiteName)
	}
	if rep.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", rep.RunID)
	}
	fmt.Fprintf(w, "Total Cases:       %d\n", sum.Total)
	fmt.Fprintf(w, "Passed:            %d\n", sum.Passed)
	fmt.Fprintf(w, "Failed:            %d\n", sum.Failed)
	fmt.Fprintf(w, "Errored:           %d\n", sum.Errored)
	fmt.Fprintf(w, "Pass Rate:         %.1f%%\n", sum.PassRate*100)
	fmt.Fprintf(w, "Duration:          %s\n", sum.Duration)
	if sum.TotalRetries > 0 {
		fmt.Fprintf(w, "Total Retries:     %d\n", sum.TotalRetries)
	}

	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", sum.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", sum.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", sum.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", sum.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", sum.P90Latency)
	fmt.Fprintf(w, "  P99:             %s\n", sum.P99Latency)

	if sum.TotalTokens != nil || sum.TotalCostUSD != nil {
		fmt.Fprintln(w, "\nUsage:")
		if sum.TotalPromptTokens != nil {
			fmt.Fprintf(w, "  Prompt Tokens:     %d\n", *sum.TotalPromptTokens)
		}
		if sum.TotalCompletionTokens != nil {
			fmt.Fprintf(w, "  Completion Tokens: %d\n", *sum.TotalCompletionTokens)
		}
		if sum.TotalTokens != nil {
			fmt.Fprintf(w, "  Total Tokens:      %d\n", *sum.TotalTokens)
		}
		if sum.TotalCostUSD != nil {
			fmt.Fprintf(w, "  Cost:              $%.6f\n", *sum.TotalCostUSD)
		}
	}

	if len(sum.Models) > 1 {
		fmt.Fprintln(w, "\nModel Breakdown:")
		for _, bucket := range sum.Models {
			total := bucket.Passed + bucket.Failed + bucket.Errored
			share := 0.0
			if sum.Total > 0 {
				share = (float64(total) / float64(sum.Total)) * 100
			}
			fmt.Fprintf(
				w,
				"  - %s: total=%d (%.1f%%), passed=%d, failed=%d, errored=%d\n",
				bucket.Model,
				total,
				share,
				bucket.Passed,
				bucket.Failed,
				bucket.Errored,
			)
		}
	}

	if len(sum.Errors) > 0 {
		fmt.Fprintln(w, "\nError Breakdown:")
		writeErrorBreakdown(w, sum.Errors, "  ")
	}
}

// PrintThresholds writes one verdict line per evaluated threshold.
func PrintThresholds(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w, "\nThresholds:")
	for _, res := range results {
		if res.Pass {
			fmt.Fprintf(w, "  %s\n", passLabel(res.Message))
		} else {
			fmt.Fprintf(w, "  %s\n", failLabel(res.Message))
		}
	}
}

// PrintCaseTable writes a per-case results table.
func PrintCaseTable(w io.Writer, results []runner.TestResult) {
	if len(results) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Case", "Model", "Status", "Latency", "Retries", "Detail"})
	for _, res := range results {
		table.Append([]string{
			res.Case.Name,
			res.Case.Model,
			statusCell(res),
			latencyCell(res),
			retriesCell(res),
			detailCell(res),
		})
	}
	table.Render()
}

func statusCell(res runner.TestResult) string {
	switch {
	case res.Errored():
		return errorLabel("ERROR")
	case res.Passed:
		return passLabel("PASS")
	default:
		return failLabel("FAIL")
	}
}

func latencyCell(res runner.TestResult) string {
	if res.Metrics == nil {
		return "-"
	}
	return res.Metrics.Latency.Round(time.Millisecond).String()
}

func retriesCell(res runner.TestResult) string {
	if res.Metrics == nil {
		return "-"
	}
	return strconv.Itoa(res.Metrics.Retries())
}

func detailCell(res runner.TestResult) string {
	switch {
	case res.Errored():
		return truncateCell(res.ExecutionError)
	case !res.Passed && res.Case.Validator != nil:
		return truncateCell("expected " + res.Case.Validator.Describe())
	default:
		return ""
	}
}

func truncateCell(s string) string {
	runes := []rune(s)
	if len(runes) <= maxDetailWidth {
		return s
	}
	return string(runes[:maxDetailWidth]) + "..."
}

func writeErrorBreakdown(w io.Writer, errorCounts map[string]int, indent string) {
	type errorRow struct {
		class string
		count int
	}
	rows := make([]errorRow, 0, len(errorCounts))
	for class, count := range errorCounts {
		rows = append(rows, errorRow{class: class, count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].class < rows[j].class
	})
	for _, row := range rows {
		fmt.Fprintf(w, "%s%s: %d\n", indent, metrics.FriendlyErrorName(row.class), row.count)
	}
}
