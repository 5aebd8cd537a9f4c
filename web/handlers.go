package web

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"nightly-price/models"
	"nightly-price/storage"
)

const (
	stepExtrapolate = "extrapolate"
	stepMatch       = "match"
	stepSummary     = "summary"
	stepEvents      = "events"
	stepSeasonal    = "seasonal"
	stepPatterns    = "patterns"
	stepAll         = "all"
)

const maxUploadBytes = 32 << 20

var (
	errNoData     = errors.New("no data loaded")
	errNotRun     = errors.New("step has not been run")
	errNoSuchStep = errors.New("unknown step")
)

// errResponse is the JSON error body of every failed request.
type errResponse struct {
	HTTPStatusCode int    `json:"-"`
	Status         string `json:"status"`
	Error          string `json:"error"`
}

func (e *errResponse) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("[web] %s %s: %v", r.Method, r.URL.Path, err)
	} else {
		s.logger.Warn("[web] %s %s: %v", r.Method, r.URL.Path, err)
	}
	_ = render.Render(w, r, &errResponse{HTTPStatusCode: status, Status: "error", Error: err.Error()})
}

type okResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Step    string `json:"step,omitempty"`
	Source  string `json:"source,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	Rows    int    `json:"rows,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.session.Status())
}

// handleLoad fetches the dataset. source=cache forces the cache; source=db
// asks the database and falls back to the cache on failure.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var opts storage.FetchOptions
	switch src := r.URL.Query().Get("source"); src {
	case "", "db":
		opts.UseCache = true
	case "cache":
		opts.ForceFallback = true
	default:
		s.fail(w, r, http.StatusBadRequest, fmt.Errorf("unknown source %q, expected cache or db", src))
		return
	}

	ds, source, err := s.deps.Fetcher.Fetch(r.Context(), s.deps.EntityIDs, opts)
	if err != nil {
		s.fail(w, r, http.StatusBadGateway, err)
		return
	}
	s.session.Load(ds, string(source))
	render.JSON(w, r, okResponse{
		Status:  "ok",
		Message: fmt.Sprintf("Loaded %d records for %d properties", ds.Len(), len(ds.EntityIDs())),
		Source:  string(source),
		Rows:    ds.Len(),
	})
}

// handleUpload loads a CSV or xlsx file posted as the "file" form field.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.fail(w, r, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer f.Close()

	var ds *models.Dataset
	if strings.EqualFold(filepath.Ext(hdr.Filename), ".xlsx") {
		ds, err = storage.ReadWorkbookDataset(f)
	} else {
		ds, err = storage.ReadDataset(f)
	}
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	s.session.Load(ds, "upload:"+hdr.Filename)
	render.JSON(w, r, okResponse{
		Status:  "ok",
		Message: fmt.Sprintf("Uploaded %d records from %s", ds.Len(), hdr.Filename),
		Source:  "upload",
		Rows:    ds.Len(),
	})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	step := chi.URLParam(r, "step")
	var runID string
	msg, err := s.session.Update(func(res *models.AnalysisResult) (string, error) {
		if res.Original == nil {
			return "", errNoData
		}
		if step == stepAll {
			full, err := s.deps.Pipeline.Run(r.Context(), res.Original)
			if err != nil {
				return "", err
			}
			*res = *full
			s.runs.Add(full)
			runID = full.RunID
			return fmt.Sprintf("Run %s complete: %d records, %d matches", full.RunID, full.Extended.Len(), full.Matches.Len()), nil
		}
		return s.runStep(step, res)
	})
	switch {
	case errors.Is(err, errNoData):
		s.fail(w, r, http.StatusConflict, err)
		return
	case errors.Is(err, errNoSuchStep):
		s.fail(w, r, http.StatusNotFound, err)
		return
	case isPrecondition(err):
		s.fail(w, r, http.StatusBadRequest, err)
		return
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	s.session.Log(step, msg)
	render.JSON(w, r, okResponse{Status: "ok", Step: step, Message: msg, RunID: runID})
}

// runStep runs one analysis step, extending the dataset first when the step
// needs it.
func (s *Server) runStep(step string, res *models.AnalysisResult) (string, error) {
	p := s.deps.Pipeline
	switch step {
	case stepExtrapolate, stepMatch, stepSummary, stepEvents, stepSeasonal, stepPatterns:
	default:
		return "", fmt.Errorf("%w %q", errNoSuchStep, step)
	}

	if res.Extended == nil || step == stepExtrapolate {
		ext, err := p.Extend(res.Original)
		if err != nil {
			return "", err
		}
		res.Extended = ext
		res.Overview = nil
	}
	ext := res.Extended

	switch step {
	case stepExtrapolate:
		return fmt.Sprintf("Extended %d records to %d", res.Original.Len(), ext.Len()), nil
	case stepMatch:
		res.Matches = p.Match(ext)
		res.Overview = p.Overview(ext, res.Matches)
		return fmt.Sprintf("Found %d improved matches", res.Matches.Len()), nil
	case stepSummary:
		res.Summaries = p.Summaries(ext)
		return fmt.Sprintf("Summarised %d properties", len(res.Summaries)), nil
	case stepEvents:
		res.Events = p.Events(ext)
		if !res.Events.Available {
			return res.Events.Message, nil
		}
		return fmt.Sprintf("Found %d distinct event values", len(res.Events.Counts)), nil
	case stepSeasonal:
		res.Seasonal = p.Seasonal(ext)
		return fmt.Sprintf("Computed %d seasonal indices", len(res.Seasonal)), nil
	default:
		res.Patterns = p.Patterns(ext)
		return fmt.Sprintf("Computed %d weekday and %d month breakdowns", len(res.Patterns.ByWeekday), len(res.Patterns.ByMonth)), nil
	}
}

func isPrecondition(err error) bool {
	var pe *models.PreconditionError
	return errors.As(err, &pe)
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	snap := s.session.Snapshot()
	if snap.Original == nil {
		s.fail(w, r, http.StatusConflict, errNoData)
		return
	}

	var body any
	switch name {
	case "original":
		body = datasetRows(snap.Original)
	case "extended":
		if snap.Extended != nil {
			body = datasetRows(snap.Extended)
		}
	case "matches":
		if snap.Matches != nil {
			body = matchRows(snap.Matches)
		}
	case "summary":
		if snap.Summaries != nil {
			body = snap.Summaries
		}
	case "events":
		if snap.Events != nil {
			body = snap.Events
		}
	case "seasonal":
		if snap.Seasonal != nil {
			body = snap.Seasonal
		}
	case "patterns":
		if snap.Patterns != nil {
			body = snap.Patterns
		}
	case "overview":
		if snap.Extended != nil {
			body = s.deps.Pipeline.Overview(snap.Extended, snap.Matches)
		}
	default:
		s.fail(w, r, http.StatusNotFound, fmt.Errorf("unknown dataset %q", name))
		return
	}
	if body == nil {
		s.fail(w, r, http.StatusNotFound, fmt.Errorf("%s: %w", name, errNotRun))
		return
	}
	render.JSON(w, r, body)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	if snap.Original == nil {
		s.fail(w, r, http.StatusConflict, errNoData)
		return
	}
	paths, err := s.deps.Exporter.WriteAll(r.Context(), &snap)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	files := make([]string, len(paths))
	for i, p := range paths {
		files[i] = filepath.Base(p)
	}
	s.session.Log("export", fmt.Sprintf("Exported %d files", len(files)))
	render.JSON(w, r, map[string]any{"status": "ok", "files": files})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{"runs": s.runs.IDs()})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, ok := s.runs.Get(id)
	if !ok {
		s.fail(w, r, http.StatusNotFound, fmt.Errorf("run %q not found", id))
		return
	}
	render.JSON(w, r, run)
}

// recordRow is the JSON form of a price record.
type recordRow struct {
	EntityID       string   `json:"entity_id"`
	Date           string   `json:"date"`
	Base           *float64 `json:"base"`
	Seasonality    *float64 `json:"seasonality"`
	DOW            *float64 `json:"dow"`
	Event          *float64 `json:"event"`
	Price          *float64 `json:"price"`
	TotalPrice     *float64 `json:"total_price,omitempty"`
	IsExtrapolated *bool    `json:"is_extrapolated,omitempty"`
}

func datasetRows(ds *models.Dataset) []recordRow {
	rows := make([]recordRow, len(ds.Records))
	for i, rec := range ds.Records {
		row := recordRow{
			EntityID:    rec.EntityID,
			Date:        rec.Date.Format("2006-01-02"),
			Base:        rec.Base,
			Seasonality: rec.Seasonality,
			DOW:         rec.DOW,
			Event:       rec.Event,
			Price:       rec.Price,
		}
		if ds.Columns.Has(models.ColTotalPrice) {
			total := rec.TotalPrice
			row.TotalPrice = &total
		}
		if ds.Columns.Has(models.ColIsExtrapolated) {
			ext := rec.IsExtrapolated
			row.IsExtrapolated = &ext
		}
		rows[i] = row
	}
	return rows
}

type matchRow struct {
	EntityID        string             `json:"entity_id"`
	Date            string             `json:"date"`
	MatchedFrom     string             `json:"matched_from"`
	DaysDiff        int                `json:"days_diff"`
	MatchReason     models.MatchReason `json:"match_reason"`
	IsImprovedMatch bool               `json:"is_improved_match"`
	EventMatch      *bool              `json:"event_match,omitempty"`
	Price           *float64           `json:"price"`
	Base            *float64           `json:"base"`
	Seasonality     *float64           `json:"seasonality"`
	DOW             *float64           `json:"dow"`
	Event           *float64           `json:"event"`
}

func matchRows(set *models.MatchSet) []matchRow {
	rows := make([]matchRow, len(set.Records))
	for i, m := range set.Records {
		row := matchRow{
			EntityID:        m.EntityID,
			Date:            m.Date.Format("2006-01-02"),
			MatchedFrom:     m.MatchedFrom.Format("2006-01-02"),
			DaysDiff:        m.DaysDiff,
			MatchReason:     m.MatchReason,
			IsImprovedMatch: m.IsImprovedMatch,
			Price:           m.Price,
			Base:            m.Base,
			Seasonality:     m.Seasonality,
			DOW:             m.DOW,
			Event:           m.Event,
		}
		if set.HasEventMatch {
			em := m.EventMatch
			row.EventMatch = &em
		}
		rows[i] = row
	}
	return rows
}
