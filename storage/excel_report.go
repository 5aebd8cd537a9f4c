package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"nightly-price/models"
	"nightly-price/utils"
)

// WorkbookFileName is the spreadsheet written for every run.
const WorkbookFileName = "nightly_price_analysis.xlsx"

// maxSheetName is the spreadsheet limit on sheet name length.
const maxSheetName = 31

// ExcelReportWriter writes all report tables of a run into one workbook, one
// sheet per table.
type ExcelReportWriter struct {
	dir    string
	logger *utils.Logger
}

// NewExcelReportWriter creates a writer targeting dir.
func NewExcelReportWriter(dir string, logger *utils.Logger) *ExcelReportWriter {
	return &ExcelReportWriter{dir: dir, logger: logger}
}

func (w *ExcelReportWriter) Name() string { return "excel" }

// Path returns the workbook location.
func (w *ExcelReportWriter) Path() string { return filepath.Join(w.dir, WorkbookFileName) }

// Write implements ReportSink.
func (w *ExcelReportWriter) Write(ctx context.Context, result *models.AnalysisResult) error {
	tables := BuildTables(result)
	if len(tables) == 0 {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("excel: create output dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("excel: header style: %w", err)
	}

	for i, t := range tables {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("excel: %w", err)
		}
		name := sheetName(t.Sheet)
		idx, err := f.NewSheet(name)
		if err != nil {
			return fmt.Errorf("excel: new sheet %q: %w", name, err)
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}
		if err := writeSheet(f, name, t, header); err != nil {
			return err
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("excel: drop default sheet: %w", err)
	}

	if err := f.SaveAs(w.Path()); err != nil {
		return fmt.Errorf("excel: save %q: %w", w.Path(), err)
	}
	w.logger.Info("[excel] Wrote %d sheets to %s", len(tables), w.Path())
	return nil
}

func writeSheet(f *excelize.File, sheet string, t Table, headerStyle int) error {
	for col, h := range t.Header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("excel: header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("excel: %s!%s: %w", sheet, cell, err)
		}
		width := float64(len(h) + 4)
		if width < 12 {
			width = 12
		}
		name := cell[:len(cell)-1]
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return fmt.Errorf("excel: column width: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(t.Header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("excel: header style: %w", err)
	}

	for r, row := range t.Rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			if ts, ok := v.(time.Time); ok {
				v = ts.Format(dateLayout)
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return fmt.Errorf("excel: cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("excel: %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

// sheetName trims a title to the spreadsheet limit.
func sheetName(title string) string {
	if len(title) > maxSheetName {
		return title[:maxSheetName]
	}
	return title
}

// ReadWorkbookDataset reads price rows from the first sheet of a workbook
// using the same header rules as ReadDataset.
func ReadWorkbookDataset(r io.Reader) (*models.Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("excel: open: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel: workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("excel: read sheet %q: %w", sheets[0], err)
	}
	return datasetFromRows(rows)
}
