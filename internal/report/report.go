package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/promptum/promptum/internal/metrics"
	"github.com/promptum/promptum/internal/runner"
)

// Report is the durable artifact of one benchmark run: every case result in
// input order plus the aggregated summary.
type Report struct {
	SuiteName  string              `json:"suite_name" yaml:"suite_name"`
	RunID      string              `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time           `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time           `json:"finished_at" yaml:"finished_at"`
	Results    []runner.TestResult `json:"results" yaml:"results"`
	Summary    metrics.Summary     `json:"summary" yaml:"summary"`
}

// NewRunID mints a sortable identifier for a run. ULIDs sort by creation
// time, so stored reports list chronologically by name.
func NewRunID() string {
	return ulid.Make().String()
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// ReadJSON decodes a report previously written with WriteJSON.
func ReadJSON(r io.Reader) (Report, error) {
	var rep Report
	err := json.NewDecoder(r).Decode(&rep)
	return rep, err
}

// WriteYAML writes the report as YAML.
func WriteYAML(w io.Writer, rep Report) error {
	data, err := yaml.Marshal(rep)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
