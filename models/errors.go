package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingKey marks a record without an entity id or date.
	ErrMissingKey = errors.New("record is missing its entity_id or date key")
	// ErrDuplicateKey marks a repeated (entity_id, date) pair.
	ErrDuplicateKey = errors.New("duplicate (entity_id, date) pair")
)

// PreconditionError reports a structurally malformed dataset. It is the only
// error class the analysis core propagates; everything else degrades locally.
type PreconditionError struct {
	Row      int
	EntityID string
	Date     time.Time
	Err      error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("dataset precondition violated at row %d (entity %q, date %s): %v",
		e.Row, e.EntityID, e.Date.Format("2006-01-02"), e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }
