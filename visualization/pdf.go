package visualization

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"nightly-price/models"
	"nightly-price/services"
	"nightly-price/utils"
)

const (
	ReportHTMLFile = "nightly_price_report.html"
	ReportPDFFile  = "nightly_price_report.pdf"
)

//go:embed report.html.tmpl
var reportTemplate string

var reportTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"date":  func(t time.Time) string { return t.Format("2006-01-02") },
	"money": func(v float64) string { return fmt.Sprintf("$%.2f", v) },
	"opt": func(p *float64) string {
		if p == nil {
			return ""
		}
		return fmt.Sprintf("$%.2f", *p)
	},
}).Parse(reportTemplate))

type reasonRow struct {
	Reason models.MatchReason
	Count  int
}

type peakRow struct {
	EntityID string
	Months   string
}

type reportView struct {
	RunID     string
	Generated string
	Overview  *models.DatasetOverview
	Reasons   []reasonRow
	Summaries []models.EntitySummary
	Peaks     []peakRow
	Charts    []string
}

// PDFRenderer renders an HTML run report and prints it to PDF with headless
// Chrome.
type PDFRenderer struct {
	dir       string
	chromeBin string
	timeout   time.Duration
	logger    *utils.Logger
}

// NewPDFRenderer creates a renderer writing into dir. An empty chromeBin
// searches the usual install locations.
func NewPDFRenderer(dir, chromeBin string, logger *utils.Logger) *PDFRenderer {
	return &PDFRenderer{dir: dir, chromeBin: chromeBin, timeout: 60 * time.Second, logger: logger}
}

func (r *PDFRenderer) Name() string { return "pdf" }

// Write renders the HTML report, then the PDF next to it.
func (r *PDFRenderer) Write(ctx context.Context, result *models.AnalysisResult) error {
	htmlPath, err := r.RenderHTML(result)
	if err != nil {
		return err
	}
	_, err = r.PrintPDF(ctx, htmlPath)
	return err
}

// RenderHTML writes the report page, linking the charts in the output
// directory that belong to the run's entities, and returns its path.
func (r *PDFRenderer) RenderHTML(result *models.AnalysisResult) (string, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("pdf: create output dir: %w", err)
	}
	view := reportView{
		RunID:     result.RunID,
		Generated: result.GeneratedAt.Format("2006-01-02 15:04:05"),
		Overview:  result.Overview,
		Summaries: result.Summaries,
		Charts:    r.runCharts(result),
	}
	for reason, n := range result.Matches.ReasonCounts() {
		view.Reasons = append(view.Reasons, reasonRow{Reason: reason, Count: n})
	}
	sort.Slice(view.Reasons, func(i, j int) bool { return view.Reasons[i].Reason < view.Reasons[j].Reason })

	peaks := services.NewInsightService(r.logger).PeakMonths(result.Seasonal)
	for id, months := range peaks {
		view.Peaks = append(view.Peaks, peakRow{EntityID: id, Months: strings.Join(months, ", ")})
	}
	sort.Slice(view.Peaks, func(i, j int) bool { return view.Peaks[i].EntityID < view.Peaks[j].EntityID })

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("pdf: render template: %w", err)
	}
	path := filepath.Join(r.dir, ReportHTMLFile)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("pdf: write %q: %w", path, err)
	}
	return path, nil
}

// PrintPDF loads htmlPath in headless Chrome and saves it as a PDF.
func (r *PDFRenderer) PrintPDF(ctx context.Context, htmlPath string) (string, error) {
	chromeBin := r.chromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	r.logger.Info("[pdf] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("allow-file-access-from-files", true),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()
	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, r.timeout)
	defer cancelTimeout()

	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return "", fmt.Errorf("pdf: resolve %q: %w", htmlPath, err)
	}

	var pdf []byte
	err = chromedp.Run(browserCtx,
		chromedp.Navigate("file://"+filepath.ToSlash(abs)),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return "", fmt.Errorf("pdf: print: %w", err)
	}

	out := filepath.Join(r.dir, ReportPDFFile)
	if err := os.WriteFile(out, pdf, 0644); err != nil {
		return "", fmt.Errorf("pdf: write %q: %w", out, err)
	}
	r.logger.Info("[pdf] Wrote %s (%d bytes)", out, len(pdf))
	return out, nil
}

// findChromeBinary returns the first Chrome/Chromium binary found, or "" to
// let chromedp use its own lookup.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}
	for _, name := range []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	for _, p := range []string{"/usr/bin/chromium", "/snap/bin/chromium", "/opt/google/chrome/google-chrome"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// runCharts lists existing chart files named after the result's entities, so
// charts left by earlier runs over other entities are not linked.
func (r *PDFRenderer) runCharts(result *models.AnalysisResult) []string {
	ds := result.Extended
	if ds == nil {
		ds = result.Original
	}
	if ds == nil {
		return nil
	}
	var charts []string
	for _, id := range ds.EntityIDs() {
		for _, kind := range chartKinds {
			name := chartFileName(kind, id)
			if _, err := os.Stat(filepath.Join(r.dir, name)); err == nil {
				charts = append(charts, name)
			}
		}
	}
	return charts
}
