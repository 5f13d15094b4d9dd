package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Retry backoff bounds for conflicting updates
const (
	baseBackoff = time.Millisecond
	maxBackoff  = 32 * time.Millisecond
)

// retryDelay is the wait before retry attempt+1: exponential from 1ms, capped
// at 32ms, with up to half of it added as jitter so colliding writers spread out
func retryDelay(attempt int) time.Duration {
	d := maxBackoff
	if attempt < 6 {
		d = baseBackoff << uint(attempt)
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d + rand.N(d/2+1)
}

// waitBackoff sleeps for the retry delay or until ctx is done
func waitBackoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(retryDelay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isRetryableTransactionError checks if an error is a retryable transaction conflict
func (s *BadgerStorage) isRetryableTransactionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, badger.ErrConflict) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Transaction Conflict") ||
		strings.Contains(errStr, "transaction conflict")
}

// countItemsWithPrefix counts keys under prefix without loading values
func (s *BadgerStorage) countItemsWithPrefix(prefix []byte) (int, error) {
	count := 0

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
