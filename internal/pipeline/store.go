package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bencmd88/venicegate/internal/fsutil"
)

// ReportFile is the Markdown report of the latest run, relative to the state dir.
const ReportFile = "last_deployment_report.md"

// RunStore keeps deployment results on disk: one JSON file per run under
// runs/ and a Markdown report of the latest run.
type RunStore struct {
	baseDir string
}

// NewRunStore creates a RunStore rooted at baseDir.
func NewRunStore(baseDir string) *RunStore {
	return &RunStore{baseDir: baseDir}
}

// BaseDir returns the store's root directory.
func (s *RunStore) BaseDir() string {
	return s.baseDir
}

// ReportPath returns the path of the latest run's Markdown report.
func (s *RunStore) ReportPath() string {
	return filepath.Join(s.baseDir, ReportFile)
}

func (s *RunStore) runsDir() string {
	return filepath.Join(s.baseDir, "runs")
}

func (s *RunStore) runPath(runID string) string {
	return filepath.Join(s.runsDir(), runID+".json")
}

// Save writes the result and replaces the latest report.
func (s *RunStore) Save(res *Result) error {
	if res.RunID == "" || strings.ContainsAny(res.RunID, `/\`) {
		return fmt.Errorf("invalid run id %q", res.RunID)
	}
	if err := fsutil.WriteJSON(s.runPath(res.RunID), res); err != nil {
		return fmt.Errorf("write run %s: %w", res.RunID, err)
	}
	if err := fsutil.WriteAtomic(s.ReportPath(), []byte(Report(res))); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Get reads one run.
func (s *RunStore) Get(runID string) (*Result, error) {
	var res Result
	if err := fsutil.ReadJSON(s.runPath(runID), &res); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, err
	}
	return &res, nil
}

// List returns stored runs newest first, optionally filtered by status.
// Unreadable files are skipped.
func (s *RunStore) List(statusFilter string) ([]Result, error) {
	entries, err := os.ReadDir(s.runsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read runs dir: %w", err)
	}

	var results []Result
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		res, err := s.Get(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		if statusFilter != "" && res.Status != statusFilter {
			continue
		}
		results = append(results, *res)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].StartedAt.After(results[j].StartedAt)
	})
	return results, nil
}
