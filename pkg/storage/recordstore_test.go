package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"linkvault-server/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTextRecord(id string, expiry time.Time, policy models.AccessPolicy) *models.ContentRecord {
	return &models.ContentRecord{
		ID:         id,
		Kind:       models.KindText,
		TextData:   "hello " + id,
		ExpiryTime: expiry,
		CreatedAt:  baseTime,
		Policy:     policy,
	}
}

// runRecordStoreSuite exercises the RecordStore contract against any backend
func runRecordStoreSuite(t *testing.T, newStore func(t *testing.T) RecordStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		rec := newTextRecord("rec-1", baseTime.Add(10*time.Minute), models.ViewQuota(2))
		rec.PasswordHash = "hash"

		require.NoError(t, store.Create(ctx, rec))
		assert.Equal(t, int64(1), rec.Version)

		got, err := store.Get(ctx, "rec-1")
		require.NoError(t, err)
		assert.Equal(t, rec.TextData, got.TextData)
		assert.Equal(t, models.ViewQuota(2), got.Policy)
		assert.True(t, got.ExpiryTime.Equal(rec.ExpiryTime))
		assert.Equal(t, "hash", got.PasswordHash)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("duplicate create is rejected", func(t *testing.T) {
		store := newStore(t)
		rec := newTextRecord("dup", baseTime.Add(time.Minute), models.NoLimit())
		require.NoError(t, store.Create(ctx, rec))
		assert.ErrorIs(t, store.Create(ctx, rec.Clone()), ErrRecordExists)
	})

	t.Run("missing record", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrRecordNotFound)

		_, err = store.Update(ctx, "nope", func(rec *models.ContentRecord) (Mutation, error) {
			t.Fatal("mutate must not run for a missing record")
			return MutationNone, nil
		})
		assert.ErrorIs(t, err, ErrRecordNotFound)

		assert.ErrorIs(t, store.Delete(ctx, "nope"), ErrRecordNotFound)
	})

	t.Run("update save bumps version", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newTextRecord("u1", baseTime.Add(time.Hour), models.NoLimit())))

		updated, err := store.Update(ctx, "u1", func(rec *models.ContentRecord) (Mutation, error) {
			rec.ViewCount++
			return MutationSave, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, updated.ViewCount)
		assert.Equal(t, int64(2), updated.Version)

		got, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.ViewCount)
	})

	t.Run("update none leaves record untouched", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newTextRecord("u2", baseTime.Add(time.Hour), models.NoLimit())))

		snapshot, err := store.Update(ctx, "u2", func(rec *models.ContentRecord) (Mutation, error) {
			rec.ViewCount = 99
			return MutationNone, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 0, snapshot.ViewCount)

		got, err := store.Get(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, 0, got.ViewCount)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("update delete removes record", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newTextRecord("u3", baseTime.Add(-time.Hour), models.OneTimeView())))

		deleted, err := store.Update(ctx, "u3", func(rec *models.ContentRecord) (Mutation, error) {
			return MutationDelete, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "u3", deleted.ID)

		_, err = store.Get(ctx, "u3")
		assert.ErrorIs(t, err, ErrRecordNotFound)

		expired, err := store.ListExpired(ctx, baseTime, 10)
		require.NoError(t, err)
		assert.Empty(t, expired, "expiry index entry must go with the record")
	})

	t.Run("mutate error aborts without write", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newTextRecord("u4", baseTime.Add(time.Hour), models.NoLimit())))

		boom := fmt.Errorf("boom")
		_, err := store.Update(ctx, "u4", func(rec *models.ContentRecord) (Mutation, error) {
			rec.ViewCount = 5
			return MutationSave, boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := store.Get(ctx, "u4")
		require.NoError(t, err)
		assert.Equal(t, 0, got.ViewCount)
	})

	t.Run("list expired is strict and ordered", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newTextRecord("late", baseTime.Add(-1*time.Minute), models.NoLimit())))
		require.NoError(t, store.Create(ctx, newTextRecord("early", baseTime.Add(-5*time.Minute), models.NoLimit())))
		require.NoError(t, store.Create(ctx, newTextRecord("exact", baseTime, models.NoLimit())))
		require.NoError(t, store.Create(ctx, newTextRecord("future", baseTime.Add(time.Minute), models.NoLimit())))

		expired, err := store.ListExpired(ctx, baseTime, 10)
		require.NoError(t, err)
		require.Len(t, expired, 2)
		assert.Equal(t, "early", expired[0].ID)
		assert.Equal(t, "late", expired[1].ID)

		limited, err := store.ListExpired(ctx, baseTime, 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, "early", limited[0].ID)

		_, err = store.ListExpired(ctx, baseTime, 0)
		assert.Error(t, err)
	})

	t.Run("expiry change moves index entry", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newTextRecord("move", baseTime.Add(time.Hour), models.NoLimit())))

		_, err := store.Update(ctx, "move", func(rec *models.ContentRecord) (Mutation, error) {
			rec.ExpiryTime = baseTime.Add(-time.Hour)
			return MutationSave, nil
		})
		require.NoError(t, err)

		expired, err := store.ListExpired(ctx, baseTime, 10)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, "move", expired[0].ID)
	})

	t.Run("concurrent one-time claim has a single winner", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newTextRecord("race", baseTime.Add(time.Hour), models.OneTimeView())))

		const workers = 8
		var winners int32
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				won := false
				_, err := store.Update(ctx, "race", func(rec *models.ContentRecord) (Mutation, error) {
					won = false
					if rec.IsConsumed {
						return MutationNone, nil
					}
					rec.IsConsumed = true
					won = true
					return MutationSave, nil
				})
				assert.NoError(t, err)
				if won {
					atomic.AddInt32(&winners, 1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), winners)
	})

	t.Run("concurrent quota increments never overshoot", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newTextRecord("quota", baseTime.Add(time.Hour), models.ViewQuota(3))))

		const workers = 10
		var delivered int32
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				ok := false
				_, err := store.Update(ctx, "quota", func(rec *models.ContentRecord) (Mutation, error) {
					ok = false
					if rec.ViewCount >= rec.Policy.Limit {
						return MutationNone, nil
					}
					rec.ViewCount++
					ok = true
					return MutationSave, nil
				})
				assert.NoError(t, err)
				if ok {
					atomic.AddInt32(&delivered, 1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(3), delivered)
		got, err := store.Get(ctx, "quota")
		require.NoError(t, err)
		assert.Equal(t, 3, got.ViewCount)
	})

	t.Run("list with filter", func(t *testing.T) {
		store := newStore(t)
		lister, ok := store.(Lister)
		require.True(t, ok)

		now := baseTime
		require.NoError(t, store.Create(ctx, newTextRecord("a", now.Add(time.Hour), models.NoLimit())))
		require.NoError(t, store.Create(ctx, newTextRecord("b", now.Add(time.Hour), models.ViewQuota(1))))
		require.NoError(t, store.Create(ctx, newTextRecord("c", now.Add(-time.Hour), models.NoLimit())))
		file := &models.ContentRecord{
			ID: "d", Kind: models.KindFile, FilePath: "x.pdf", OriginalFileName: "x.pdf",
			ExpiryTime: now.Add(time.Hour), CreatedAt: baseTime, Policy: models.OneTimeView(),
		}
		require.NoError(t, store.Create(ctx, file))

		active, err := lister.ListWithFilter(ctx, 10, 0, &RecordFilter{Now: now})
		require.NoError(t, err)
		assert.Len(t, active, 3)

		all, err := lister.CountWithFilter(ctx, &RecordFilter{Now: now, IncludeInactive: true})
		require.NoError(t, err)
		assert.Equal(t, 4, all)

		files, err := lister.ListWithFilter(ctx, 10, 0, &RecordFilter{Now: now, Kind: models.KindFile})
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, "d", files[0].ID)

		quota, err := lister.CountWithFilter(ctx, &RecordFilter{Now: now, PolicyMode: models.PolicyViewQuota})
		require.NoError(t, err)
		assert.Equal(t, 1, quota)

		page, err := lister.ListWithFilter(ctx, 2, 2, &RecordFilter{Now: now})
		require.NoError(t, err)
		assert.Len(t, page, 1)

		_, err = lister.ListWithFilter(ctx, 0, 0, nil)
		assert.Error(t, err)
	})
}
