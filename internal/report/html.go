package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/promptum/promptum/internal/metrics"
	"github.com/promptum/promptum/internal/threshold"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Report           Report
	Summary          metrics.Summary
	ThresholdSummary *ThresholdSummary
	CaseRows         []CaseRow
	ModelRows        []ModelRow
	ErrorRows        []ErrorRow
	LatencyJSON      string
	Metadata         ReportMetadata
}

// ThresholdSummary aggregates threshold outcomes for display.
type ThresholdSummary struct {
	Total   int
	Passed  int
	Failed  int
	Results []ThresholdResultJSON
}

// ThresholdResultJSON is a display-friendly flattening of one threshold result.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold"`
	Metric    string  `json:"metric"`
	Aggregate string  `json:"aggregate"`
	Operator  string  `json:"operator"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Pass      bool    `json:"pass"`
}

// ReportMetadata contains configuration information about the benchmark run.
type ReportMetadata struct {
	BaseURL string
	Dataset string
}

// CaseRow is one row of the per-case results table.
type CaseRow struct {
	Name    string
	Model   string
	Status  string // "passed", "failed" or "errored"
	Latency string
	Retries string
	Detail  string
}

// ModelRow is one row of the per-model breakdown table.
type ModelRow struct {
	Model   string
	Total   int
	Passed  int
	Failed  int
	Errored int
	Share   string
}

// ErrorRow is one row of the error breakdown table.
type ErrorRow struct {
	Label string
	Count int
}

// GenerateHTMLReport generates a standalone HTML report with embedded charts.
func GenerateHTMLReport(w io.Writer, rep Report, thresholdResults []threshold.Result, metadata ReportMetadata) error {
	var thresholdSummary *ThresholdSummary
	if len(thresholdResults) > 0 {
		thresholdSummary = &ThresholdSummary{
			Total:   len(thresholdResults),
			Results: make([]ThresholdResultJSON, len(thresholdResults)),
		}
		for i, tr := range thresholdResults {
			thresholdSummary.Results[i] = ThresholdResultJSON{
				Threshold: tr.Threshold.Raw,
				Metric:    tr.Threshold.Metric,
				Aggregate: tr.Threshold.Aggregate,
				Operator:  tr.Threshold.Operator,
				Expected:  tr.Threshold.Value,
				Actual:    tr.Actual,
				Pass:      tr.Pass,
			}
			if tr.Pass {
				thresholdSummary.Passed++
			} else {
				thresholdSummary.Failed++
			}
		}
	}

	caseRows := make([]CaseRow, 0, len(rep.Results))
	latencies := make([]*float64, 0, len(rep.Results))
	hasLatency := false
	for _, res := range rep.Results {
		status := "failed"
		switch {
		case res.Errored():
			status = "errored"
		case res.Passed:
			status = "passed"
		}
		caseRows = append(caseRows, CaseRow{
			Name:    res.Case.Name,
			Model:   res.Case.Model,
			Status:  status,
			Latency: latencyCell(res),
			Retries: retriesCell(res),
			Detail:  detailCell(res),
		})
		if res.Metrics != nil {
			ms := res.Metrics.LatencyMS
			latencies = append(latencies, &ms)
			hasLatency = true
		} else {
			latencies = append(latencies, nil)
		}
	}

	// Errored cases appear as chart gaps; a run with no timed cases gets no chart.
	latencyJSON := ""
	if hasLatency {
		encoded, err := json.Marshal(latencies)
		if err != nil {
			return fmt.Errorf("failed to marshal latencies: %w", err)
		}
		latencyJSON = string(encoded)
	}

	modelRows := make([]ModelRow, 0, len(rep.Summary.Models))
	for _, bucket := range rep.Summary.Models {
		total := bucket.Passed + bucket.Failed + bucket.Errored
		share := "0.0"
		if rep.Summary.Total > 0 {
			share = fmt.Sprintf("%.1f", (float64(total)/float64(rep.Summary.Total))*100)
		}
		modelRows = append(modelRows, ModelRow{
			Model:   bucket.Model,
			Total:   total,
			Passed:  bucket.Passed,
			Failed:  bucket.Failed,
			Errored: bucket.Errored,
			Share:   share,
		})
	}

	var errorRows []ErrorRow
	for class, count := range rep.Summary.Errors {
		errorRows = append(errorRows, ErrorRow{Label: metrics.FriendlyErrorName(class), Count: count})
	}
	sort.Slice(errorRows, func(i, j int) bool {
		if errorRows[i].Count != errorRows[j].Count {
			return errorRows[i].Count > errorRows[j].Count
		}
		return errorRows[i].Label < errorRows[j].Label
	})

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Report:           rep,
		Summary:          rep.Summary,
		ThresholdSummary: thresholdSummary,
		CaseRows:         caseRows,
		ModelRows:        modelRows,
		ErrorRows:        errorRows,
		LatencyJSON:      latencyJSON,
		Metadata:         metadata,
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			return d.String()
		},
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatPercent": func(part, total int64) string {
			if total == 0 {
				return "0.0"
			}
			return fmt.Sprintf("%.1f", (float64(part)/float64(total))*100)
		},
		"formatCost": func(f *float64) string {
			if f == nil {
				return "-"
			}
			return fmt.Sprintf("$%.6f", *f)
		},
		"formatTokens": func(n *int64) string {
			if n == nil {
				return "-"
			}
			return fmt.Sprintf("%d", *n)
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Promptum Benchmark Report</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 {
            font-size: 2rem;
            margin-bottom: 10px;
        }
        header .meta {
            opacity: 0.9;
            font-size: 0.9rem;
        }
        .content {
            padding: 40px;
        }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #667eea;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value {
            font-size: 2rem;
            font-weight: bold;
            color: #2c3e50;
        }
        .card .subvalue {
            font-size: 0.85rem;
            color: #6c757d;
            margin-top: 5px;
        }
        .card.success {
            border-left-color: #10b981;
        }
        .card.error {
            border-left-color: #ef4444;
        }
        .card.warning {
            border-left-color: #f59e0b;
        }
        .section {
            margin-bottom: 40px;
        }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        .chart-container {
            background: white;
            border-radius: 8px;
            padding: 20px;
            margin-bottom: 30px;
            border: 1px solid #e5e7eb;
        }
        .chart-container h3 {
            font-size: 1.1rem;
            margin-bottom: 15px;
            color: #4b5563;
        }
        .chart {
            width: 100%;
            height: 300px;
        }
        table {
            width: 100%;
            border-collapse: collapse;
            background: white;
        }
        th, td {
            text-align: left;
            padding: 12px;
            border-bottom: 1px solid #e5e7eb;
        }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
            letter-spacing: 0.5px;
        }
        tr:hover {
            background: #f8f9fa;
        }
        .badge {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 12px;
            font-size: 0.85rem;
            font-weight: 600;
        }
        .badge-success {
            background: #d1fae5;
            color: #065f46;
        }
        .badge-error {
            background: #fee2e2;
            color: #991b1b;
        }
        .badge-warning {
            background: #fef3c7;
            color: #92400e;
        }
        .latency-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(150px, 1fr));
            gap: 15px;
            margin-top: 20px;
        }
        .latency-item {
            background: #f8f9fa;
            padding: 15px;
            border-radius: 6px;
            text-align: center;
        }
        .latency-item .label {
            font-size: 0.85rem;
            color: #6c757d;
            margin-bottom: 5px;
        }
        .latency-item .value {
            font-size: 1.3rem;
            font-weight: bold;
            color: #2c3e50;
        }
        .no-data {
            text-align: center;
            padding: 40px;
            color: #6c757d;
            font-style: italic;
        }
    </style>
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
    <div class="container">
        <header>
            <h1>🧪 Promptum Benchmark Report</h1>
            {{if .Report.SuiteName}}
            <div class="meta" style="margin-top: 5px;">Suite: <strong>{{.Report.SuiteName}}</strong>{{if .Report.RunID}} | Run: {{.Report.RunID}}{{end}}</div>
            {{end}}
            {{if .Metadata.BaseURL}}
            <div class="meta">Endpoint: <a href="{{.Metadata.BaseURL}}" style="color: white; text-decoration: underline;">{{.Metadata.BaseURL}}</a></div>
            {{end}}
            <div class="meta">Generated: {{.GeneratedAt}} | Duration: {{formatDuration .Summary.Duration}}</div>
        </header>

        <div class="content">
            <!-- Summary Cards -->
            <div class="grid">
                <div class="card">
                    <h3>Total Cases</h3>
                    <div class="value">{{.Summary.Total}}</div>
                </div>
                <div class="card success">
                    <h3>Passed</h3>
                    <div class="value">{{.Summary.Passed}}</div>
                    <div class="subvalue">{{formatPercent .Summary.Passed .Summary.Total}}%</div>
                </div>
                <div class="card error">
                    <h3>Failed</h3>
                    <div class="value">{{.Summary.Failed}}</div>
                    <div class="subvalue">{{formatPercent .Summary.Failed .Summary.Total}}%</div>
                </div>
                <div class="card warning">
                    <h3>Errored</h3>
                    <div class="value">{{.Summary.Errored}}</div>
                    <div class="subvalue">{{formatPercent .Summary.Errored .Summary.Total}}%</div>
                </div>
                {{if .Summary.TotalCostUSD}}
                <div class="card">
                    <h3>Total Cost</h3>
                    <div class="value">{{formatCost .Summary.TotalCostUSD}}</div>
                    {{if .Summary.TotalTokens}}
                    <div class="subvalue">{{formatTokens .Summary.TotalTokens}} tokens</div>
                    {{end}}
                </div>
                {{end}}
            </div>

            <!-- Charts Section -->
            {{if .LatencyJSON}}
            <div class="section">
                <h2>Latency Per Case</h2>

                <div class="chart-container">
                    <h3>Call Latency (ms)</h3>
                    <div id="latency-chart" class="chart"></div>
                </div>
            </div>
            {{end}}

            <!-- Latency Statistics -->
            <div class="section">
                <h2>Latency Statistics</h2>
                <div class="latency-grid">
                    <div class="latency-item">
                        <div class="label">Min</div>
                        <div class="value">{{formatDuration .Summary.MinLatency}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">Max</div>
                        <div class="value">{{formatDuration .Summary.MaxLatency}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">Mean</div>
                        <div class="value">{{formatDuration .Summary.MeanLatency}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">P50</div>
                        <div class="value">{{formatDuration .Summary.P50Latency}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">P90</div>
                        <div class="value">{{formatDuration .Summary.P90Latency}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">P99</div>
                        <div class="value">{{formatDuration .Summary.P99Latency}}</div>
                    </div>
                </div>
            </div>

            <!-- Thresholds -->
            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Threshold</th>
                            <th>Metric</th>
                            <th>Expected</th>
                            <th>Actual</th>
                            <th>Status</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .ThresholdSummary.Results}}
                        <tr>
                            <td>{{.Threshold}}</td>
                            <td>{{.Metric}} ({{.Aggregate}})</td>
                            <td>{{.Operator}} {{formatFloat .Expected}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>
                                {{if .Pass}}
                                <span class="badge badge-success">✓ PASS</span>
                                {{else}}
                                <span class="badge badge-error">✗ FAIL</span>
                                {{end}}
                            </td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            <!-- Model Breakdown -->
            {{if .ModelRows}}
            <div class="section">
                <h2>Model Breakdown</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Model</th>
                            <th>Total</th>
                            <th>Passed</th>
                            <th>Failed</th>
                            <th>Errored</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .ModelRows}}
                        <tr>
                            <td><strong>{{.Model}}</strong></td>
                            <td>{{.Total}} ({{.Share}}%)</td>
                            <td>{{.Passed}}</td>
                            <td>{{.Failed}}</td>
                            <td>{{.Errored}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            <!-- Error Breakdown -->
            {{if .ErrorRows}}
            <div class="section">
                <h2>Error Breakdown</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Error</th>
                            <th>Count</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .ErrorRows}}
                        <tr>
                            <td>{{.Label}}</td>
                            <td>{{.Count}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            <!-- Case Results -->
            {{if .CaseRows}}
            <div class="section">
                <h2>Case Results</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Case</th>
                            <th>Model</th>
                            <th>Status</th>
                            <th>Latency</th>
                            <th>Retries</th>
                            <th>Detail</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .CaseRows}}
                        <tr>
                            <td><strong>{{.Name}}</strong></td>
                            <td>{{.Model}}</td>
                            <td>
                                {{if eq .Status "passed"}}
                                <span class="badge badge-success">✓ PASS</span>
                                {{else if eq .Status "errored"}}
                                <span class="badge badge-warning">⚠ ERROR</span>
                                {{else}}
                                <span class="badge badge-error">✗ FAIL</span>
                                {{end}}
                            </td>
                            <td>{{.Latency}}</td>
                            <td>{{.Retries}}</td>
                            <td>{{.Detail}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>

    {{if .LatencyJSON}}
    <script>
        // Prepare data for the latency chart
        const latencyJSON = {{.LatencyJSON}};
        const latencies = JSON.parse(latencyJSON);

        if (latencies && latencies.length > 0) {
            const indexes = latencies.map((_, i) => i + 1);

            const latencyData = [
                indexes,
                latencies
            ];

            new uPlot({
                title: "Latency Per Case",
                width: document.getElementById('latency-chart').offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: [
                    { label: "Case #" },
                    {
                        label: "Latency (ms)",
                        stroke: "#667eea",
                        fill: "rgba(102, 126, 234, 0.1)",
                        width: 2,
                        points: { show: true }
                    }
                ],
                axes: [
                    { label: "Case" },
                    { label: "Latency (ms)" }
                ]
            }, latencyData, document.getElementById('latency-chart'));
        }
    </script>
    {{end}}
</body>
</html>
`
