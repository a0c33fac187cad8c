package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/promptum/promptum/internal/report"
)

// SQLiteStore persists runs in a single SQLite database: one row per run
// carrying the full report as JSON, plus one row per case result so stored
// runs can be queried with plain SQL.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	suite_name TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	total INTEGER NOT NULL,
	passed INTEGER NOT NULL,
	report BLOB NOT NULL
);
`

const createResultsTable = `
CREATE TABLE IF NOT EXISTS results (
	run_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	case_name TEXT NOT NULL,
	model TEXT NOT NULL,
	passed INTEGER NOT NULL,
	errored INTEGER NOT NULL,
	latency_ms REAL,
	execution_error TEXT,
	PRIMARY KEY (run_id, idx)
);
`

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open report db: %w", err)
	}

	for _, stmt := range []string{createRunsTable, createResultsTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate report db: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(rep report.Report) (string, error) {
	if rep.RunID == "" {
		return "", fmt.Errorf("report has no run id")
	}

	blob, err := json.Marshal(rep)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin report save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO runs (run_id, suite_name, started_at, finished_at, total, passed, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rep.RunID, rep.SuiteName, rep.StartedAt.UTC(), rep.FinishedAt.UTC(),
		rep.Summary.Total, rep.Summary.Passed, blob,
	)
	if err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM results WHERE run_id = ?`, rep.RunID); err != nil {
		return "", fmt.Errorf("clear previous results: %w", err)
	}
	for i, res := range rep.Results {
		var latencyMS *float64
		if res.Metrics != nil {
			ms := res.Metrics.LatencyMS
			latencyMS = &ms
		}
		_, err = tx.Exec(
			`INSERT INTO results (run_id, idx, case_name, model, passed, errored, latency_ms, execution_error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rep.RunID, i, res.Case.Name, res.Case.Model,
			boolToInt(res.Passed), boolToInt(res.Errored()), latencyMS, res.ExecutionError,
		)
		if err != nil {
			return "", fmt.Errorf("save result %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit report save: %w", err)
	}
	return rep.RunID, nil
}

func (s *SQLiteStore) Load(ref string) (report.Report, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT report FROM runs WHERE run_id = ?`, ref).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return report.Report{}, fmt.Errorf("run %q not found", ref)
	}
	if err != nil {
		return report.Report{}, fmt.Errorf("load run: %w", err)
	}

	var rep report.Report
	if err := json.Unmarshal(blob, &rep); err != nil {
		return report.Report{}, fmt.Errorf("decode run %q: %w", ref, err)
	}
	return rep, nil
}

// List returns listing entries for every stored run, newest first.
func (s *SQLiteStore) List() ([]RunInfo, error) {
	rows, err := s.db.Query(
		`SELECT run_id, suite_name, started_at, total, passed FROM runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var infos []RunInfo
	for rows.Next() {
		var info RunInfo
		if err := rows.Scan(&info.RunID, &info.SuiteName, &info.StartedAt, &info.Total, &info.Passed); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		info.Location = info.RunID
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return infos, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
