package report

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jgivc/harvester/internal/entity"
	"github.com/spf13/afero"
)

const (
	FailureMarkerName = "HARVEST_FAILURE.txt"

	reportTimeFormat = "20060102_150405"
	separator        = "============================================================"
)

// reportStorage writes the per-run report artifact and maintains the failure
// marker file that external monitoring watches for.
type reportStorage struct {
	fs  afero.Fs
	dir string
	log *slog.Logger
}

func NewStorage(dir string, log *slog.Logger) *reportStorage {
	return NewStorageWithFS(afero.NewOsFs(), dir, log)
}

func NewStorageWithFS(fs afero.Fs, dir string, log *slog.Logger) *reportStorage {
	return &reportStorage{
		fs:  fs,
		dir: dir,
		log: log.With(slog.String("item", "ReportStorage")),
	}
}

// WriteReport renders the run summary to report_<timestamp>.txt in the data
// dir. Ledger entries supply the per-category totals.
func (s *reportStorage) WriteReport(report *entity.RunReport, entries []entity.LedgerEntry) error {
	counts := make(map[entity.Category]int)
	sizes := make(map[entity.Category]int64)
	var totalSize int64

	for _, entry := range entries {
		counts[entry.Category]++
		sizes[entry.Category] += entry.SizeBytes
		totalSize += entry.SizeBytes
	}

	buf := bytes.Buffer{}
	fmt.Fprintln(&buf, separator)
	fmt.Fprintln(&buf, "Harvest Run Report")
	fmt.Fprintf(&buf, "Run: %s\n", report.ID)
	fmt.Fprintf(&buf, "Started: %s\n", report.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&buf, "Finished: %s\n", report.FinishedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(&buf, separator)
	fmt.Fprintf(&buf, "Candidates: %d, succeeded: %d, skipped: %d, failed: %d\n",
		report.Candidates, report.Succeeded, report.Skipped, len(report.Failed))
	fmt.Fprintf(&buf, "Result: %s\n", report.Class())
	fmt.Fprintln(&buf)

	for cat := entity.CategoryH1B; cat <= entity.CategoryEB; cat++ {
		if counts[cat] == 0 {
			continue
		}

		fmt.Fprintf(&buf, "%s: %d files (%.2f MB)\n", cat, counts[cat], float64(sizes[cat])/1024/1024)
	}

	fmt.Fprintln(&buf)
	fmt.Fprintf(&buf, "Total files: %d\n", len(entries))
	fmt.Fprintf(&buf, "Total size: %.2f MB\n", float64(totalSize)/1024/1024)

	for _, failed := range report.Failed {
		fmt.Fprintf(&buf, "FAILED %s: %s after %d attempts\n", failed.LogicalID, failed.Kind, failed.Attempts)
	}

	fmt.Fprintln(&buf, separator)

	name := filepath.Join(s.dir, fmt.Sprintf("report_%s.txt", report.FinishedAt.Format(reportTimeFormat)))
	if err := afero.WriteFile(s.fs, name, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("cannot write report: %w", err)
	}

	s.log.Info("Report written", slog.String("path", name))

	return nil
}

// WriteFailureMarker leaves a marker file monitoring systems can detect when
// a run ends in total failure.
func (s *reportStorage) WriteFailureMarker(report *entity.RunReport) error {
	buf := bytes.Buffer{}
	fmt.Fprintf(&buf, "ALERT: harvest run %s failed for all %d candidates\n", report.ID, report.Candidates)
	fmt.Fprintf(&buf, "Time: %s\n", report.FinishedAt.Format("2006-01-02 15:04:05"))

	for _, failed := range report.Failed {
		fmt.Fprintf(&buf, "%s: %s\n", failed.LogicalID, failed.Kind)
	}

	path := filepath.Join(s.dir, FailureMarkerName)
	if err := afero.WriteFile(s.fs, path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("cannot write failure marker: %w", err)
	}

	s.log.Warn("Failure marker written", slog.String("path", path))

	return nil
}

// ClearFailureMarker removes a marker left by a previous failed run.
func (s *reportStorage) ClearFailureMarker() error {
	path := filepath.Join(s.dir, FailureMarkerName)

	err := s.fs.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot remove failure marker: %w", err)
	}

	if err == nil {
		s.log.Info("Cleared previous failure marker")
	}

	return nil
}
