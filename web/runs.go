package web

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"nightly-price/models"
)

// RunStore keeps the most recent complete analysis runs, evicting the least
// recently used.
type RunStore struct {
	cache *lru.Cache[string, *models.AnalysisResult]
}

// NewRunStore creates a store holding at most size runs.
func NewRunStore(size int) (*RunStore, error) {
	if size < 1 {
		size = 1
	}
	c, err := lru.New[string, *models.AnalysisResult](size)
	if err != nil {
		return nil, fmt.Errorf("web: run store: %w", err)
	}
	return &RunStore{cache: c}, nil
}

// Add stores a run under its id.
func (s *RunStore) Add(r *models.AnalysisResult) {
	s.cache.Add(r.RunID, r)
}

// Get returns a stored run.
func (s *RunStore) Get(id string) (*models.AnalysisResult, bool) {
	return s.cache.Get(id)
}

// IDs lists stored run ids from oldest to newest.
func (s *RunStore) IDs() []string {
	return s.cache.Keys()
}
