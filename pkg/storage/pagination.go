package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"linkvault-server/pkg/models"

	badger "github.com/dgraph-io/badger/v4"
)

// List retrieves active records with pagination
func (s *BadgerStorage) List(ctx context.Context, limit, offset int) ([]*models.ContentRecord, error) {
	return s.ListWithFilter(ctx, limit, offset, nil)
}

// ListWithFilter retrieves records with pagination and filtering
func (s *BadgerStorage) ListWithFilter(ctx context.Context, limit, offset int, filter *RecordFilter) ([]*models.ContentRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if offset < 0 {
		return nil, fmt.Errorf("offset must be non-negative")
	}

	records := []*models.ContentRecord{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = recordPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		skipped := 0
		for it.Seek(recordPrefix); it.ValidForPrefix(recordPrefix) && len(records) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			err := item.Value(func(val []byte) error {
				var rec models.ContentRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("failed to unmarshal record for key '%s': %w", string(item.Key()), err)
				}

				if !matchesFilter(&rec, filter) {
					return nil
				}

				if skipped < offset {
					skipped++
					return nil
				}

				records = append(records, &rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// CountWithFilter returns the number of records matching the filter
func (s *BadgerStorage) CountWithFilter(ctx context.Context, filter *RecordFilter) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = recordPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(recordPrefix); it.ValidForPrefix(recordPrefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec models.ContentRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				if matchesFilter(&rec, filter) {
					count++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}
