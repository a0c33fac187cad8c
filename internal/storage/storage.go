package storage

import (
	"time"

	"github.com/promptum/promptum/internal/report"
)

// RunInfo is a lightweight listing entry for one stored run.
type RunInfo struct {
	RunID     string    `json:"run_id"`
	SuiteName string    `json:"suite_name"`
	StartedAt time.Time `json:"started_at"`
	Total     int64     `json:"total"`
	Passed    int64     `json:"passed"`
	Location  string    `json:"location"`
}

// Store persists benchmark reports between runs. Save returns the location
// the report can be loaded back from: a file path for FileStore, a run id
// for SQLiteStore.
type Store interface {
	Save(rep report.Report) (string, error)
	Load(ref string) (report.Report, error)
	List() ([]RunInfo, error)
	Close() error
}
