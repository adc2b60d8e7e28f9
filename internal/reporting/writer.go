// Package reporting persists batch results as JSON report files.
package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"brain-alpha-lab/internal/domain"
	"brain-alpha-lab/internal/simulator"
)

// Entry pairs one input expression with its job outcome and metrics.
type Entry struct {
	Expression string            `json:"expression"`
	AlphaID    string            `json:"alpha_id,omitempty"`
	Status     domain.JobStatus  `json:"status,omitempty"`
	Metrics    *domain.MetricSet `json:"metrics,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// BatchReport is the file payload for one batch run.
type BatchReport struct {
	GeneratedAt int64                  `json:"generated_at"`
	Entries     []Entry                `json:"entries"`
	Summary     simulator.BatchSummary `json:"summary"`
}

// RegionReport is the file payload for one multi-region run.
type RegionReport struct {
	GeneratedAt int64                  `json:"generated_at"`
	Regions     map[string]BatchReport `json:"regions"`
}

// Writer writes timestamped JSON reports into a directory.
type Writer struct {
	dir string
	now func() time.Time // Injectable clock for deterministic output
}

// NewWriter creates a Writer rooted at dir; the directory is created
// on first write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock sets a custom clock function for deterministic output.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

// FromOutcomes flattens batch outcomes into report entries.
func FromOutcomes(outcomes []simulator.Outcome) []Entry {
	entries := make([]Entry, 0, len(outcomes))
	for _, o := range outcomes {
		entry := Entry{Expression: o.Input.Expression}
		if o.Err != nil {
			entry.Error = o.Err.Error()
		}
		if o.Result != nil {
			entry.AlphaID = o.Result.Job.AlphaID
			entry.Status = o.Result.Job.Status
			entry.Metrics = o.Result.MetricsOrNil()
		}
		entries = append(entries, entry)
	}
	return entries
}

// WriteBatch writes one batch's outcomes as <prefix>_<unix>.json and
// returns the file path.
func (w *Writer) WriteBatch(prefix string, outcomes []simulator.Outcome) (string, error) {
	report := BatchReport{
		GeneratedAt: w.now().Unix(),
		Entries:     FromOutcomes(outcomes),
		Summary:     simulator.Summarize(outcomes),
	}
	return w.WriteJSON(prefix, report)
}

// WriteRegions writes a multi-region run as a single file keyed by
// region.
func (w *Writer) WriteRegions(prefix string, results map[string][]simulator.Outcome) (string, error) {
	ts := w.now().Unix()
	report := RegionReport{GeneratedAt: ts, Regions: make(map[string]BatchReport, len(results))}
	for region, outcomes := range results {
		report.Regions[region] = BatchReport{
			GeneratedAt: ts,
			Entries:     FromOutcomes(outcomes),
			Summary:     simulator.Summarize(outcomes),
		}
	}
	return w.WriteJSON(prefix, report)
}

// WriteJSON writes any payload as <prefix>_<unix>.json under the
// writer's directory.
func (w *Writer) WriteJSON(prefix string, payload any) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	path := filepath.Join(w.dir, fmt.Sprintf("%s_%d.json", prefix, w.now().Unix()))
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	return path, nil
}
