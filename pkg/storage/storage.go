package storage

import (
	"context"
	"errors"
	"time"

	"linkvault-server/pkg/models"
)

var (
	// ErrRecordNotFound is returned when no record exists for the given ID
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordExists is returned when creating a record whose ID is taken
	ErrRecordExists = errors.New("record already exists")

	// ErrStorageNotReady is returned when storage is not ready for operations
	ErrStorageNotReady = errors.New("storage not ready")

	// ErrTooManyConflicts is returned when an update kept losing to concurrent writers
	ErrTooManyConflicts = errors.New("update abandoned after repeated conflicts")

	// ErrShutdownTimeout is returned when graceful shutdown times out
	ErrShutdownTimeout = errors.New("graceful shutdown timeout exceeded")
)

// Mutation is the write decided by a MutateFunc
type Mutation int

const (
	// MutationNone leaves the record untouched
	MutationNone Mutation = iota
	// MutationSave persists the modified record
	MutationSave
	// MutationDelete removes the record and its expiry index entry
	MutationDelete
)

func (m Mutation) String() string {
	switch m {
	case MutationNone:
		return "none"
	case MutationSave:
		return "save"
	case MutationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// MutateFunc inspects a fresh copy of a record and decides what to write.
// It may be invoked more than once when a concurrent writer wins the race,
// so it must derive everything from its argument.
type MutateFunc func(rec *models.ContentRecord) (Mutation, error)

// RecordFilter defines filtering options for admin listing
type RecordFilter struct {
	// Kind filters by record kind
	Kind models.Kind

	// PolicyMode filters by access policy
	PolicyMode models.PolicyMode

	// CreatedAfter filters records created at or after this time
	CreatedAfter *time.Time

	// CreatedBefore filters records created before this time
	CreatedBefore *time.Time

	// IncludeInactive includes expired and exhausted records (default: false)
	IncludeInactive bool

	// Now is the reference instant for activity checks; zero means time.Now()
	Now time.Time
}

// RecordStore is durable keyed storage for content records
type RecordStore interface {
	// Create persists a new record; ErrRecordExists if the ID is taken
	Create(ctx context.Context, rec *models.ContentRecord) error

	// Get returns a copy of the record; ErrRecordNotFound if absent
	Get(ctx context.Context, id string) (*models.ContentRecord, error)

	// Update performs an atomic read-modify-write. It returns the record as
	// persisted, or the last snapshot for MutationNone / MutationDelete.
	Update(ctx context.Context, id string, fn MutateFunc) (*models.ContentRecord, error)

	// Delete removes the record; ErrRecordNotFound if absent
	Delete(ctx context.Context, id string) error

	// ListExpired returns up to limit records with ExpiryTime strictly before now, oldest first
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.ContentRecord, error)

	// Count returns the number of stored records
	Count(ctx context.Context) (int, error)

	// Close releases the store
	Close() error
}

// Lister is implemented by stores that support admin listing
type Lister interface {
	ListWithFilter(ctx context.Context, limit, offset int, filter *RecordFilter) ([]*models.ContentRecord, error)
	CountWithFilter(ctx context.Context, filter *RecordFilter) (int, error)
}

// Maintainer is implemented by stores with background maintenance
// (value-log GC, backups, health monitoring)
type Maintainer interface {
	RunGC() error
	CreateBackup() error
	GetResourceStats() map[string]interface{}
	IsHealthy() bool
}
