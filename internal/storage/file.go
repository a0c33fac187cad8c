package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/promptum/promptum/internal/report"
)

// FileStore persists each report as one JSON file named
// <suite>-<run id>.json. A directory lock serializes writers so concurrent
// runs pointed at the same directory cannot interleave partial files.
type FileStore struct {
	dir    string
	lock   *flock.Flock
	logger logrus.FieldLogger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string, logger logrus.FieldLogger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &FileStore{
		dir:    dir,
		lock:   flock.New(filepath.Join(dir, ".promptum.lock")),
		logger: logger,
	}, nil
}

func (s *FileStore) Save(rep report.Report) (string, error) {
	if rep.RunID == "" {
		return "", fmt.Errorf("report has no run id")
	}

	if err := s.lock.Lock(); err != nil {
		return "", fmt.Errorf("acquire report dir lock: %w", err)
	}
	defer s.lock.Unlock()

	name := fmt.Sprintf("%s-%s.json", sanitizeName(rep.SuiteName), rep.RunID)
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	if err := report.WriteJSON(f, rep); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write report file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report file: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"run_id": rep.RunID, "path": path}).Debug("report saved")
	return path, nil
}

func (s *FileStore) Load(ref string) (report.Report, error) {
	path := ref
	if !filepath.IsAbs(path) && !strings.ContainsRune(path, os.PathSeparator) {
		path = filepath.Join(s.dir, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return report.Report{}, fmt.Errorf("open report file: %w", err)
	}
	defer f.Close()

	rep, err := report.ReadJSON(f)
	if err != nil {
		return report.Report{}, fmt.Errorf("decode report file %s: %w", path, err)
	}
	return rep, nil
}

// List decodes every stored report and returns listing entries, newest first.
func (s *FileStore) List() ([]RunInfo, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan report dir: %w", err)
	}

	infos := make([]RunInfo, 0, len(paths))
	for _, path := range paths {
		rep, err := s.Load(path)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{"path": path}).Warn("skipping unreadable report")
			continue
		}
		infos = append(infos, RunInfo{
			RunID:     rep.RunID,
			SuiteName: rep.SuiteName,
			StartedAt: rep.StartedAt,
			Total:     rep.Summary.Total,
			Passed:    rep.Summary.Passed,
			Location:  path,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.After(infos[j].StartedAt)
	})
	return infos, nil
}

func (s *FileStore) Close() error {
	return nil
}

// sanitizeName keeps file names portable: anything outside [a-zA-Z0-9._-]
// becomes a dash.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "run"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
