package storage

import (
	"time"

	"linkvault-server/pkg/models"
)

// matchesFilter checks if a record matches the given filter criteria.
// Shared by every RecordStore implementation that supports listing.
func matchesFilter(rec *models.ContentRecord, filter *RecordFilter) bool {
	now := time.Now()
	if filter != nil && !filter.Now.IsZero() {
		now = filter.Now
	}

	// If no filter provided, include only active records
	if filter == nil {
		return rec.IsActive(now)
	}

	if !filter.IncludeInactive && !rec.IsActive(now) {
		return false
	}

	if filter.Kind != "" && rec.Kind != filter.Kind {
		return false
	}

	if filter.PolicyMode != "" && rec.Policy.Mode != filter.PolicyMode {
		return false
	}

	// CreatedAfter is inclusive
	if filter.CreatedAfter != nil && rec.CreatedAt.Before(*filter.CreatedAfter) {
		return false
	}

	// CreatedBefore is exclusive
	if filter.CreatedBefore != nil && !rec.CreatedAt.Before(*filter.CreatedBefore) {
		return false
	}

	return true
}
