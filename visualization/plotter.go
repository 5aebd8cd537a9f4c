package visualization

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"nightly-price/models"
	"nightly-price/services"
	"nightly-price/utils"
)

const histogramBins = 20

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// chartKinds is the per-entity chart order; factors is drawn only when every
// factor column has data.
var chartKinds = []string{"total_price", "base_price", "monthly_avg", "dow_avg", "price_dist", "factors"}

func chartFileName(kind, id string) string {
	return fmt.Sprintf("%s_%s.png", kind, unsafeName.ReplaceAllString(id, "_"))
}

var (
	observedColor     = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	extrapolatedColor = color.RGBA{R: 255, G: 127, B: 14, A: 255}
)

// Plotter renders per-entity PNG charts of an extended dataset.
type Plotter struct {
	dir    string
	sample int
	logger *utils.Logger
}

// NewPlotter creates a Plotter writing into dir. Only the first sample
// entities by id are charted; sample < 1 charts every entity.
func NewPlotter(dir string, sample int, logger *utils.Logger) *Plotter {
	return &Plotter{dir: dir, sample: sample, logger: logger}
}

func (p *Plotter) Name() string { return "charts" }

// Write implements the report sink contract.
func (p *Plotter) Write(ctx context.Context, result *models.AnalysisResult) error {
	_, err := p.Render(ctx, result.Extended)
	return err
}

// Render draws the charts and returns the files written.
func (p *Plotter) Render(ctx context.Context, ds *models.Dataset) ([]string, error) {
	if ds.Len() == 0 {
		p.logger.Warn("[charts] No data to plot")
		return nil, nil
	}
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return nil, fmt.Errorf("charts: create output dir: %w", err)
	}

	ids, series := ds.Partition()
	if p.sample > 0 && len(ids) > p.sample {
		ids = ids[:p.sample]
	}
	withFactors := true
	for _, c := range models.FactorColumns {
		if !ds.HasData(c) {
			withFactors = false
		}
	}

	var files []string
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return files, fmt.Errorf("charts: %w", err)
		}
		written, err := p.renderEntity(id, series[id], withFactors)
		files = append(files, written...)
		if err != nil {
			return files, err
		}
	}
	p.logger.Info("[charts] Wrote %d charts for %d entities to %s", len(files), len(ids), p.dir)
	return files, nil
}

func (p *Plotter) renderEntity(id string, recs []*models.PriceRecord, withFactors bool) ([]string, error) {
	type chart struct {
		kind  string
		build func() (*plot.Plot, error)
	}
	charts := []chart{
		{chartKinds[0], func() (*plot.Plot, error) { return totalPriceChart(id, recs) }},
		{chartKinds[1], func() (*plot.Plot, error) { return factorLineChart(id, "Base Price", recs, models.ColBase) }},
		{chartKinds[2], func() (*plot.Plot, error) { return monthlyChart(id, recs) }},
		{chartKinds[3], func() (*plot.Plot, error) { return weekdayChart(id, recs) }},
		{chartKinds[4], func() (*plot.Plot, error) { return distributionChart(id, recs) }},
	}
	if withFactors {
		charts = append(charts, chart{chartKinds[5], func() (*plot.Plot, error) { return factorsChart(id, recs) }})
	}

	var files []string
	for _, c := range charts {
		pl, err := c.build()
		if err != nil {
			return files, fmt.Errorf("charts: %s for %s: %w", c.kind, id, err)
		}
		if pl == nil {
			p.logger.Debug("[charts] Skipping %s for %s: not enough data", c.kind, id)
			continue
		}
		path := filepath.Join(p.dir, chartFileName(c.kind, id))
		if err := pl.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
			return files, fmt.Errorf("charts: save %q: %w", path, err)
		}
		files = append(files, path)
	}
	return files, nil
}

func newPlot(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())
	return p
}

func timeAxis(p *plot.Plot) {
	p.X.Label.Text = "Date"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01"}
}

// totalPriceChart draws observed and extrapolated total price as separate
// series.
func totalPriceChart(id string, recs []*models.PriceRecord) (*plot.Plot, error) {
	var observed, extrapolated plotter.XYs
	for _, r := range recs {
		pt := plotter.XY{X: float64(r.Date.Unix()), Y: r.TotalPrice}
		if r.IsExtrapolated {
			extrapolated = append(extrapolated, pt)
		} else {
			observed = append(observed, pt)
		}
	}
	p := newPlot("Total Price - Property "+id, "Price")
	timeAxis(p)

	if len(observed) > 0 {
		line, err := plotter.NewLine(observed)
		if err != nil {
			return nil, err
		}
		line.Color = observedColor
		p.Add(line)
		p.Legend.Add("observed", line)
	}
	if len(extrapolated) > 0 {
		sc, err := plotter.NewScatter(extrapolated)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = extrapolatedColor
		sc.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(sc)
		p.Legend.Add("extrapolated", sc)
	}
	p.Legend.Top = true
	return p, nil
}

func factorPoints(recs []*models.PriceRecord, c models.Column) plotter.XYs {
	var pts plotter.XYs
	for _, r := range recs {
		if v := r.Factor(c); v != nil {
			pts = append(pts, plotter.XY{X: float64(r.Date.Unix()), Y: *v})
		}
	}
	return pts
}

func factorLineChart(id, title string, recs []*models.PriceRecord, c models.Column) (*plot.Plot, error) {
	pts := factorPoints(recs, c)
	if len(pts) == 0 {
		return nil, nil
	}
	p := newPlot(title+" - Property "+id, "Price")
	timeAxis(p)
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Color = observedColor
	p.Add(line)
	return p, nil
}

func factorsChart(id string, recs []*models.PriceRecord) (*plot.Plot, error) {
	p := newPlot("Price Factors - Property "+id, "Value")
	timeAxis(p)
	var lines []interface{}
	for _, c := range models.FactorColumns {
		if pts := factorPoints(recs, c); len(pts) > 0 {
			lines = append(lines, c.String(), pts)
		}
	}
	if len(lines) == 0 {
		return nil, nil
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return nil, err
	}
	p.Legend.Top = true
	return p, nil
}

func barChart(title, xlabel string, labels []string, values plotter.Values) (*plot.Plot, error) {
	if len(values) == 0 {
		return nil, nil
	}
	p := newPlot(title, "Average Price")
	p.X.Label.Text = xlabel
	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return nil, err
	}
	bars.Color = observedColor
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(labels...)
	return p, nil
}

func monthlyChart(id string, recs []*models.PriceRecord) (*plot.Plot, error) {
	groups := make(map[time.Month][]float64)
	for _, r := range recs {
		groups[r.Date.Month()] = append(groups[r.Date.Month()], r.TotalPrice)
	}
	var labels []string
	var values plotter.Values
	for m := time.January; m <= time.December; m++ {
		if xs := groups[m]; len(xs) > 0 {
			labels = append(labels, m.String()[:3])
			values = append(values, stat.Mean(xs, nil))
		}
	}
	return barChart("Monthly Average - Property "+id, "Month", labels, values)
}

func weekdayChart(id string, recs []*models.PriceRecord) (*plot.Plot, error) {
	groups := make(map[time.Weekday][]float64)
	for _, r := range recs {
		groups[r.Date.Weekday()] = append(groups[r.Date.Weekday()], r.TotalPrice)
	}
	var labels []string
	var values plotter.Values
	for _, wd := range services.WeekdayOrder {
		if xs := groups[wd]; len(xs) > 0 {
			labels = append(labels, wd.String()[:3])
			values = append(values, stat.Mean(xs, nil))
		}
	}
	return barChart("Day of Week Average - Property "+id, "Day", labels, values)
}

// distributionChart is a histogram of total price. A constant series has no
// spread to bin and is skipped.
func distributionChart(id string, recs []*models.PriceRecord) (*plot.Plot, error) {
	values := make(plotter.Values, len(recs))
	for i, r := range recs {
		values[i] = r.TotalPrice
	}
	if len(values) < 2 || floats.Min(values) == floats.Max(values) {
		return nil, nil
	}
	p := newPlot("Price Distribution - Property "+id, "Count")
	p.X.Label.Text = "Price"
	h, err := plotter.NewHist(values, histogramBins)
	if err != nil {
		return nil, err
	}
	h.FillColor = observedColor
	p.Add(h)
	return p, nil
}
