package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"nightly-price/models"
	"nightly-price/utils"
)

// CSVReportWriter writes every report table of a run as its own CSV file.
type CSVReportWriter struct {
	dir    string
	logger *utils.Logger
}

// NewCSVReportWriter creates a writer targeting dir.
func NewCSVReportWriter(dir string, logger *utils.Logger) *CSVReportWriter {
	return &CSVReportWriter{dir: dir, logger: logger}
}

func (w *CSVReportWriter) Name() string { return "csv" }

// Write implements ReportSink.
func (w *CSVReportWriter) Write(ctx context.Context, result *models.AnalysisResult) error {
	_, err := w.WriteAll(ctx, result)
	return err
}

// WriteAll writes the report tables and returns the paths written.
func (w *CSVReportWriter) WriteAll(ctx context.Context, result *models.AnalysisResult) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	var paths []string
	for _, t := range BuildTables(result) {
		if err := ctx.Err(); err != nil {
			return paths, fmt.Errorf("csv: %w", err)
		}
		path := filepath.Join(w.dir, t.File)
		if err := writeTable(path, t); err != nil {
			return paths, err
		}
		paths = append(paths, path)
		w.logger.Debug("[csv] Wrote %d rows to %s", len(t.Rows), path)
	}
	w.logger.Info("[csv] Wrote %d report files to %s", len(paths), w.dir)
	return paths, nil
}

func writeTable(path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: create file %q: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, row := range t.Rows {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = formatCell(v)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv: flush %q: %w", path, err)
	}
	return f.Close()
}
