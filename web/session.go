package web

import (
	"fmt"
	"sync"
	"time"

	"nightly-price/models"
)

// Session is the dashboard's working state: the loaded dataset plus whatever
// steps have run on it. Steps are serialized by the session lock.
type Session struct {
	mu      sync.Mutex
	source  string
	result  *models.AnalysisResult
	lastLog map[string]string
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{result: &models.AnalysisResult{}, lastLog: make(map[string]string)}
}

// Load replaces the session with a freshly loaded dataset, discarding every
// derived result.
func (s *Session) Load(ds *models.Dataset, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = source
	s.result = &models.AnalysisResult{Original: ds, GeneratedAt: time.Now().UTC()}
	s.lastLog = map[string]string{"load": fmt.Sprintf("Loaded %d records from %s", ds.Len(), source)}
}

// Update runs fn with exclusive access to the current result.
func (s *Session) Update(fn func(r *models.AnalysisResult) (string, error)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.result)
}

// Log records the last message of a step.
func (s *Session) Log(step, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLog[step] = msg
}

// Snapshot returns a shallow copy of the current result. Datasets are never
// mutated once stored, so sharing them is safe.
func (s *Session) Snapshot() models.AnalysisResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.result
}

// Status describes what the session holds.
type Status struct {
	Loaded   bool              `json:"loaded"`
	Source   string            `json:"source,omitempty"`
	Rows     int               `json:"rows"`
	Entities int               `json:"entities"`
	Steps    []string          `json:"completed_steps"`
	Logs     map[string]string `json:"logs"`
}

// Status reports the loaded dataset and the completed steps.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.result
	st := Status{
		Loaded: r.Original != nil,
		Source: s.source,
		Rows:   r.Original.Len(),
		Logs:   make(map[string]string, len(s.lastLog)),
	}
	if r.Original != nil {
		st.Entities = len(r.Original.EntityIDs())
	}
	for k, v := range s.lastLog {
		st.Logs[k] = v
	}
	done := []struct {
		name string
		ok   bool
	}{
		{stepExtrapolate, r.Extended != nil},
		{stepMatch, r.Matches != nil},
		{stepSummary, r.Summaries != nil},
		{stepEvents, r.Events != nil},
		{stepSeasonal, r.Seasonal != nil},
		{stepPatterns, r.Patterns != nil},
	}
	st.Steps = []string{}
	for _, d := range done {
		if d.ok {
			st.Steps = append(st.Steps, d.name)
		}
	}
	return st
}
