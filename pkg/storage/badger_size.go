package storage

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// GetDatabaseSize returns the logical size of all keys and values, as opposed
// to the allocated file size which includes preallocation
func (s *BadgerStorage) GetDatabaseSize() (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	var totalDataSize int64

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			totalDataSize += int64(item.KeySize()) + item.ValueSize()
		}
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("failed to calculate database size: %w", err)
	}

	return totalDataSize, nil
}

// GetDatabaseFileSize returns the LSM plus value-log file sizes in bytes
func (s *BadgerStorage) GetDatabaseFileSize() (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	lsmSize, vlogSize := s.db.Size()
	return lsmSize + vlogSize, nil
}
