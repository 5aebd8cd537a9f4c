package services

import (
	"time"

	"nightly-price/models"
	"nightly-price/utils"
)

// ValidateDataset checks the structural preconditions every analysis step
// relies on: each record has an entity id and a date, and (entity_id, date)
// is unique. Violations come back as *models.PreconditionError.
func ValidateDataset(ds *models.Dataset) error {
	if ds == nil {
		return nil
	}
	keys := utils.NewKeySet()
	for i, r := range ds.Records {
		if r == nil || r.EntityID == "" || r.Date.IsZero() {
			perr := &models.PreconditionError{Row: i, Err: models.ErrMissingKey}
			if r != nil {
				perr.EntityID, perr.Date = r.EntityID, r.Date
			}
			return perr
		}
		if !keys.Add(recordKey(r.EntityID, r.Date)) {
			return &models.PreconditionError{
				Row: i, EntityID: r.EntityID, Date: r.Date, Err: models.ErrDuplicateKey,
			}
		}
	}
	return nil
}

func recordKey(entityID string, date time.Time) string {
	return entityID + "|" + date.Format("2006-01-02")
}
