// Package dataset loads benchmark cases from external data files. A CSV or
// JSON source yields records in file order; BuildCases turns each record
// into a runnable test case using the columns the file provides.
package dataset

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Record is a single row of a dataset with named string fields.
type Record map[string]string

// Source yields dataset records in deterministic file order.
// Implementations are safe for concurrent use.
type Source interface {
	// Next returns the next record, or ErrExhausted after the last one.
	Next(ctx context.Context) (Record, error)

	// Close releases any resources held by the source.
	Close() error

	// Len returns the total number of records.
	Len() int
}

// ErrExhausted is returned by Next once every record has been consumed.
var ErrExhausted = fmt.Errorf("dataset exhausted: no more records available")

// Open reads the file at path into a Source. typ selects the format,
// "csv" or "json".
func Open(path, typ string) (Source, error) {
	var records []Record
	var err error
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "csv":
		records, err = readCSV(path)
	case "json":
		records, err = readJSON(path)
	default:
		return nil, fmt.Errorf("unsupported dataset type %q: use \"csv\" or \"json\"", typ)
	}
	if err != nil {
		return nil, err
	}
	return &memorySource{records: records}, nil
}

// memorySource hands out preloaded records in file order.
type memorySource struct {
	records []Record
	index   int
	mu      sync.Mutex
}

func (s *memorySource) Next(ctx context.Context) (Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index >= len(s.records) {
		return nil, ErrExhausted
	}
	record := s.records[s.index]
	s.index++
	return record, nil
}

func (s *memorySource) Close() error {
	return nil
}

func (s *memorySource) Len() int {
	return len(s.records)
}
