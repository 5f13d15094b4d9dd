package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"linkvault-server/pkg/models"

	badger "github.com/dgraph-io/badger/v4"
)

func recordKey(id string) []byte {
	key := make([]byte, 0, len(recordPrefix)+len(id))
	key = append(key, recordPrefix...)
	return append(key, id...)
}

func expiryKey(expiry time.Time, id string) []byte {
	key := make([]byte, 0, len(expiryPrefix)+8+len(id))
	key = append(key, expiryPrefix...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], expiryNanos(expiry))
	key = append(key, ts[:]...)
	return append(key, id...)
}

// expiryNanos maps an instant onto an unsigned sort key; pre-epoch instants sort first
func expiryNanos(t time.Time) uint64 {
	n := t.UnixNano()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func (s *BadgerStorage) ready() error {
	if s.db == nil || atomic.LoadInt32(&s.isClosed) == 1 {
		return ErrStorageNotReady
	}
	return nil
}

// Count returns the number of records in storage
func (s *BadgerStorage) Count(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.countItemsWithPrefix(recordPrefix)
}

// Create persists a new record and its expiry index entry
func (s *BadgerStorage) Create(ctx context.Context, rec *models.ContentRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("record must have an id")
	}

	toStore := rec.Clone()
	toStore.Version = 1

	err := s.withRetry(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(recordKey(toStore.ID))
		if err == nil {
			return ErrRecordExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return s.writeRecord(txn, toStore, nil)
	})
	if err != nil {
		return err
	}

	rec.Version = toStore.Version
	return nil
}

// Get retrieves a record by ID
func (s *BadgerStorage) Get(ctx context.Context, id string) (*models.ContentRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var rec *models.ContentRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = s.readRecord(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Update runs fn against the current record inside a conflict-detecting
// transaction. When another writer commits the same record first, Badger
// reports ErrConflict and fn is re-run on the fresh state.
func (s *BadgerStorage) Update(ctx context.Context, id string, fn MutateFunc) (*models.ContentRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var result *models.ContentRecord
	err := s.withRetry(ctx, func(txn *badger.Txn) error {
		result = nil

		current, err := s.readRecord(txn, id)
		if err != nil {
			return err
		}

		working := current.Clone()
		mutation, err := fn(working)
		if err != nil {
			return err
		}

		switch mutation {
		case MutationNone:
			result = current
			return nil
		case MutationSave:
			working.ID = current.ID
			working.Version = current.Version + 1
			if err := s.writeRecord(txn, working, current); err != nil {
				return err
			}
			result = working
			return nil
		case MutationDelete:
			if err := s.deleteRecord(txn, current); err != nil {
				return err
			}
			result = current
			return nil
		default:
			return fmt.Errorf("unknown mutation %d", mutation)
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a record and its expiry index entry
func (s *BadgerStorage) Delete(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}

	return s.withRetry(ctx, func(txn *badger.Txn) error {
		current, err := s.readRecord(txn, id)
		if err != nil {
			return err
		}
		return s.deleteRecord(txn, current)
	})
}

// ListExpired walks the expiry index in ascending order and returns records
// whose expiry instant is strictly before now
func (s *BadgerStorage) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.ContentRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	cutoff := expiryNanos(now)
	records := []*models.ContentRecord{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = expiryPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(expiryPrefix); it.ValidForPrefix(expiryPrefix) && len(records) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			key := it.Item().Key()
			if len(key) <= len(expiryPrefix)+8 {
				continue
			}
			ts := binary.BigEndian.Uint64(key[len(expiryPrefix) : len(expiryPrefix)+8])
			if ts >= cutoff {
				break
			}

			id := string(key[len(expiryPrefix)+8:])
			rec, err := s.readRecord(txn, id)
			if errors.Is(err, ErrRecordNotFound) {
				// dangling index entry; the record was deleted in the meantime
				continue
			}
			if err != nil {
				return err
			}
			if !rec.ExpiryTime.Before(now) {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// readRecord loads and decodes a record inside txn
func (s *BadgerStorage) readRecord(txn *badger.Txn, id string) (*models.ContentRecord, error) {
	item, err := txn.Get(recordKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	var rec models.ContentRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s: %w", id, err)
	}
	return &rec, nil
}

// writeRecord stores rec and keeps the expiry index in step with previous
func (s *BadgerStorage) writeRecord(txn *badger.Txn, rec, previous *models.ContentRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.ID, err)
	}

	if err := txn.Set(recordKey(rec.ID), data); err != nil {
		return err
	}

	if previous != nil && previous.ExpiryTime.Equal(rec.ExpiryTime) {
		return nil
	}
	if previous != nil {
		if err := txn.Delete(expiryKey(previous.ExpiryTime, previous.ID)); err != nil {
			return err
		}
	}
	return txn.Set(expiryKey(rec.ExpiryTime, rec.ID), nil)
}

func (s *BadgerStorage) deleteRecord(txn *badger.Txn, rec *models.ContentRecord) error {
	if err := txn.Delete(recordKey(rec.ID)); err != nil {
		return err
	}
	return txn.Delete(expiryKey(rec.ExpiryTime, rec.ID))
}

// withRetry runs fn in an update transaction, retrying on conflicts
func (s *BadgerStorage) withRetry(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < s.maxUpdateAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = s.db.Update(fn)
		if err == nil || !s.isRetryableTransactionError(err) {
			return err
		}

		if attempt < s.maxUpdateAttempts-1 {
			if werr := waitBackoff(ctx, attempt); werr != nil {
				return werr
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrTooManyConflicts, err)
}
