package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"linkvault-server/pkg/blobstore"
	"linkvault-server/pkg/models"
	"linkvault-server/pkg/secret"
	"linkvault-server/pkg/storage"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
	creates  int
	sweeps   int
}

func (o *recordingObserver) ObserveOutcome(op string, kind OutcomeKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string]int{}
	}
	o.outcomes[op+"/"+kind.String()]++
}

func (o *recordingObserver) ObserveCreate(models.Kind, models.PolicyMode) {
	o.mu.Lock()
	o.creates++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveSweep(int, time.Duration, error) {
	o.mu.Lock()
	o.sweeps++
	o.mu.Unlock()
}

type fixture struct {
	engine   *Engine
	records  *storage.BadgerStorage
	blobs    *blobstore.FileStore
	fs       afero.Fs
	observer *recordingObserver
	now      time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	records, err := storage.NewBadgerStorage(storage.BadgerOptions{
		InMemory:  true,
		BackupDir: filepath.Join(t.TempDir(), "backups"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { records.Close() })

	fsys := afero.NewMemMapFs()
	blobs, err := blobstore.NewFileStore(fsys, blobstore.FileStoreOptions{Dir: "uploads"})
	require.NoError(t, err)

	hasher, err := secret.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)

	f := &fixture{records: records, blobs: blobs, fs: fsys, observer: &recordingObserver{}, now: t0}
	base := []Option{WithClock(func() time.Time { return f.now }), WithObserver(f.observer)}
	f.engine = NewEngine(records, blobs, hasher, append(base, opts...)...)
	return f
}

func (f *fixture) blobCount(t *testing.T) int {
	t.Helper()
	entries, err := afero.ReadDir(f.fs, "uploads")
	require.NoError(t, err)
	return len(entries)
}

func (f *fixture) resolve(t *testing.T, id string, verified bool) *Outcome {
	t.Helper()
	out, err := f.engine.Resolve(context.Background(), id, f.now, verified)
	require.NoError(t, err)
	return out
}

func (f *fixture) createFile(t *testing.T, req CreateRequest) *models.ContentRecord {
	t.Helper()
	req.File = &FileUpload{Name: "report.pdf", Reader: strings.NewReader("%PDF-1.4 quarterly numbers")}
	rec, err := f.engine.Create(context.Background(), req)
	require.NoError(t, err)
	return rec
}

func TestCreateText(t *testing.T) {
	f := newFixture(t)

	rec, err := f.engine.Create(context.Background(), CreateRequest{Text: "  hello  \r\n   world \n\n"})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, models.KindText, rec.Kind)
	assert.Equal(t, "hello\nworld", rec.TextData)
	assert.Equal(t, t0.Add(DefaultExpiry), rec.ExpiryTime)
	assert.Equal(t, t0, rec.CreatedAt)
	assert.Equal(t, models.NoLimit(), rec.Policy)
	assert.False(t, rec.HasPassword())
	assert.Equal(t, 1, f.observer.creates)

	stored, err := f.engine.Inspect(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.TextData, stored.TextData)
}

func TestCreateMissingContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, req := range []CreateRequest{
		{},
		{Text: "   \n\t  "},
		{File: &FileUpload{Name: "x.pdf"}},
	} {
		_, err := f.engine.Create(ctx, req)
		assert.ErrorIs(t, err, ErrMissingContent)
	}

	count, err := f.records.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateTextWinsOverFile(t *testing.T) {
	f := newFixture(t)
	rec, err := f.engine.Create(context.Background(), CreateRequest{
		Text: "note",
		File: &FileUpload{Name: "a.pdf", Reader: strings.NewReader("%PDF")},
	})
	require.NoError(t, err)
	assert.Equal(t, models.KindText, rec.Kind)
	assert.Empty(t, rec.FilePath)
	assert.Zero(t, f.blobCount(t))
}

func TestCreateFileRecord(t *testing.T) {
	f := newFixture(t)
	rec := f.createFile(t, CreateRequest{MaxDownloads: 2, MaxViews: 9})

	assert.Equal(t, models.KindFile, rec.Kind)
	assert.Equal(t, "report.pdf", rec.OriginalFileName)
	assert.Equal(t, "application/pdf", rec.ContentType)
	assert.True(t, strings.HasSuffix(rec.FilePath, ".pdf"))
	assert.Equal(t, models.DownloadQuota(2), rec.Policy, "view quota does not apply to files")
	assert.Equal(t, 1, f.blobCount(t))
}

func TestCreatePolicyPrecedence(t *testing.T) {
	f := newFixture(t)
	rec, err := f.engine.Create(context.Background(), CreateRequest{Text: "x", OneTimeView: true, MaxViews: 5})
	require.NoError(t, err)
	assert.Equal(t, models.OneTimeView(), rec.Policy)
}

func TestCreateFailureRemovesBlob(t *testing.T) {
	f := newFixture(t, WithIDGenerator(func() string { return "fixed" }))
	f.createFile(t, CreateRequest{})

	_, err := f.engine.Create(context.Background(), CreateRequest{
		File: &FileUpload{Name: "second.pdf", Reader: strings.NewReader("%PDF-1.4 other")},
	})
	assert.ErrorIs(t, err, storage.ErrRecordExists)
	assert.Equal(t, 1, f.blobCount(t), "blob of the failed create must be removed")
}

func TestCreatePastExpiryIsInert(t *testing.T) {
	f := newFixture(t)
	past := t0.Add(-time.Minute)
	rec, err := f.engine.Create(context.Background(), CreateRequest{Text: "too late", Expiry: &past})
	require.NoError(t, err)

	assert.Equal(t, OutcomeExpired, f.resolve(t, rec.ID, false).Kind)
}

func TestResolveUnknownID(t *testing.T) {
	f := newFixture(t)
	out := f.resolve(t, "does-not-exist", true)
	assert.Equal(t, OutcomeInvalid, out.Kind)
	assert.Nil(t, out.Record)

	_, err := f.engine.Resolve(context.Background(), "", t0, false)
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestResolveViewQuota(t *testing.T) {
	f := newFixture(t)
	rec, err := f.engine.Create(context.Background(), CreateRequest{Text: "limited", MaxViews: 2})
	require.NoError(t, err)

	first := f.resolve(t, rec.ID, false)
	require.Equal(t, OutcomeDeliver, first.Kind)
	assert.Equal(t, 1, first.Record.ViewCount)
	assert.Equal(t, "limited", first.Record.TextData)

	second := f.resolve(t, rec.ID, false)
	require.Equal(t, OutcomeDeliver, second.Kind)
	assert.Equal(t, 2, second.Record.ViewCount)

	third := f.resolve(t, rec.ID, false)
	assert.Equal(t, OutcomeQuotaExhausted, third.Kind)
	assert.Equal(t, 2, third.Record.ViewCount)
}

func TestResolveOneTimeText(t *testing.T) {
	f := newFixture(t)
	rec, err := f.engine.Create(context.Background(), CreateRequest{Text: "burn after reading", OneTimeView: true})
	require.NoError(t, err)

	out := f.resolve(t, rec.ID, false)
	require.Equal(t, OutcomeDeliver, out.Kind)
	assert.Equal(t, "burn after reading", out.Record.TextData)
	assert.False(t, out.NeedsCompletion())

	assert.Equal(t, OutcomeInvalid, f.resolve(t, rec.ID, false).Kind)
}

func TestResolveOneTimeFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createFile(t, CreateRequest{OneTimeView: true})

	out := f.resolve(t, rec.ID, false)
	require.Equal(t, OutcomeDeliver, out.Kind)
	assert.True(t, out.Record.IsConsumed)
	assert.True(t, out.NeedsCompletion())

	rc, err := f.engine.OpenFile(ctx, out.Record)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	require.NoError(t, f.engine.CompleteDownload(ctx, rec.ID, true))
	assert.Zero(t, f.blobCount(t))
	assert.Equal(t, OutcomeInvalid, f.resolve(t, rec.ID, false).Kind)

	// finalizing again is harmless
	assert.NoError(t, f.engine.CompleteDownload(ctx, rec.ID, true))
}

func TestFailedTransferKeepsRecordConsumed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createFile(t, CreateRequest{OneTimeView: true})

	require.Equal(t, OutcomeDeliver, f.resolve(t, rec.ID, false).Kind)
	require.NoError(t, f.engine.CompleteDownload(ctx, rec.ID, false))

	assert.Equal(t, 1, f.blobCount(t))
	assert.Equal(t, OutcomeAlreadyConsumed, f.resolve(t, rec.ID, false).Kind)

	f.now = rec.ExpiryTime.Add(time.Second)
	purged, err := f.engine.Sweep(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
	assert.Zero(t, f.blobCount(t))
}

func TestResolveDownloadQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createFile(t, CreateRequest{MaxDownloads: 1})

	out := f.resolve(t, rec.ID, false)
	require.Equal(t, OutcomeDeliver, out.Kind)
	assert.Equal(t, 1, out.Record.DownloadCount)
	assert.False(t, out.NeedsCompletion())

	// completion does nothing for quota-governed files
	require.NoError(t, f.engine.CompleteDownload(ctx, rec.ID, true))
	assert.Equal(t, 1, f.blobCount(t))

	assert.Equal(t, OutcomeQuotaExhausted, f.resolve(t, rec.ID, false).Kind)
}

func TestMissingBlobIsDistinct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createFile(t, CreateRequest{})
	require.NoError(t, f.blobs.Delete(ctx, rec.FilePath))

	out := f.resolve(t, rec.ID, false)
	require.Equal(t, OutcomeDeliver, out.Kind)

	_, err := f.engine.OpenFile(ctx, out.Record)
	assert.ErrorIs(t, err, blobstore.ErrBlobNotFound)
}

func TestPasswordFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.engine.Create(ctx, CreateRequest{Text: "secret note", Password: "correct horse"})
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", rec.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte("correct horse")))

	assert.Equal(t, OutcomePasswordRequired, f.resolve(t, rec.ID, false).Kind)

	wrong, err := f.engine.VerifyPassword(ctx, rec.ID, "wrong", f.now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeWrongPassword, wrong.Kind)

	stored, err := f.engine.Inspect(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version, "verification never mutates")
	assert.Zero(t, stored.ViewCount)

	ok, err := f.engine.VerifyPassword(ctx, rec.ID, "correct horse", f.now)
	require.NoError(t, err)
	assert.Equal(t, OutcomePasswordVerified, ok.Kind)

	out := f.resolve(t, rec.ID, true)
	require.Equal(t, OutcomeDeliver, out.Kind)
	assert.Equal(t, "secret note", out.Record.TextData)
}

func TestWrongPasswordOnExhaustedLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.engine.Create(ctx, CreateRequest{Text: "once", Password: "pw", MaxViews: 1})
	require.NoError(t, err)
	require.Equal(t, OutcomeDeliver, f.resolve(t, rec.ID, true).Kind)

	wrong, err := f.engine.VerifyPassword(ctx, rec.ID, "nope", f.now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeWrongPassword, wrong.Kind)

	right, err := f.engine.VerifyPassword(ctx, rec.ID, "pw", f.now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeQuotaExhausted, right.Kind)

	file := f.createFile(t, CreateRequest{Password: "pw", OneTimeView: true})
	require.Equal(t, OutcomeDeliver, f.resolve(t, file.ID, true).Kind)
	consumed, err := f.engine.VerifyPassword(ctx, file.ID, "pw", f.now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyConsumed, consumed.Kind)
}

func TestVerifyPasswordGates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.engine.VerifyPassword(ctx, "missing", "pw", f.now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalid, out.Kind)

	rec, err := f.engine.Create(ctx, CreateRequest{Text: "x", Password: "pw"})
	require.NoError(t, err)
	out, err = f.engine.VerifyPassword(ctx, rec.ID, "pw", rec.ExpiryTime)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, out.Kind, "expiry is checked before the password")

	open, err := f.engine.Create(ctx, CreateRequest{Text: "no password"})
	require.NoError(t, err)
	out, err = f.engine.VerifyPassword(ctx, open.ID, "anything", f.now)
	require.NoError(t, err)
	assert.Equal(t, OutcomePasswordVerified, out.Kind)
}

func TestExpiryOverridesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []CreateRequest{
		{Text: "plain"},
		{Text: "protected", Password: "pw"},
		{Text: "quota", MaxViews: 1},
		{Text: "once", OneTimeView: true},
	}
	var ids []string
	for _, req := range cases {
		rec, err := f.engine.Create(ctx, req)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	// exactly at the expiry instant
	f.now = t0.Add(DefaultExpiry)
	for _, id := range ids {
		assert.Equal(t, OutcomeExpired, f.resolve(t, id, false).Kind)
		assert.Equal(t, OutcomeExpired, f.resolve(t, id, true).Kind)
	}
}

func TestConcurrentOneTimeFile(t *testing.T) {
	f := newFixture(t)
	rec := f.createFile(t, CreateRequest{OneTimeView: true})

	const workers = 8
	results := make(chan OutcomeKind, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			out, err := f.engine.Resolve(context.Background(), rec.ID, t0, false)
			if assert.NoError(t, err) {
				results <- out.Kind
			}
		}()
	}
	wg.Wait()
	close(results)

	counts := map[OutcomeKind]int{}
	for k := range results {
		counts[k]++
	}
	assert.Equal(t, 1, counts[OutcomeDeliver])
	assert.Equal(t, workers-1, counts[OutcomeAlreadyConsumed])
}

func TestConcurrentViewQuota(t *testing.T) {
	f := newFixture(t)
	rec, err := f.engine.Create(context.Background(), CreateRequest{Text: "popular", MaxViews: 3})
	require.NoError(t, err)

	const workers = 12
	results := make(chan OutcomeKind, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			out, err := f.engine.Resolve(context.Background(), rec.ID, t0, false)
			if assert.NoError(t, err) {
				results <- out.Kind
			}
		}()
	}
	wg.Wait()
	close(results)

	delivered := 0
	for k := range results {
		if k == OutcomeDeliver {
			delivered++
		} else {
			assert.Equal(t, OutcomeQuotaExhausted, k)
		}
	}
	assert.Equal(t, 3, delivered)

	stored, err := f.engine.Inspect(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.ViewCount)
}

func TestSweep(t *testing.T) {
	f := newFixture(t, WithSweepBatchSize(2))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		expiry := t0.Add(time.Duration(i+1) * time.Minute)
		_, err := f.engine.Create(ctx, CreateRequest{Text: fmt.Sprintf("note %d", i), Expiry: &expiry})
		require.NoError(t, err)
	}
	fileExpiry := t0.Add(3 * time.Minute)
	file := f.createFile(t, CreateRequest{Expiry: &fileExpiry})
	keep, err := f.engine.Create(ctx, CreateRequest{Text: "keep"})
	require.NoError(t, err)

	// strictly before: the record expiring at exactly now stays
	now := t0.Add(5 * time.Minute)
	purged, err := f.engine.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 5, purged)
	assert.Zero(t, f.blobCount(t))

	_, err = f.engine.Inspect(ctx, file.ID)
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
	_, err = f.engine.Inspect(ctx, keep.ID)
	assert.NoError(t, err)

	again, err := f.engine.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, again)

	count, err := f.records.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, f.observer.sweeps)
}

func TestSweepToleratesMissingBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createFile(t, CreateRequest{})
	require.NoError(t, f.blobs.Delete(ctx, rec.FilePath))

	purged, err := f.engine.Sweep(ctx, rec.ExpiryTime.Add(time.Nanosecond))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
}

func TestObserverSeesOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.engine.Create(ctx, CreateRequest{Text: "x", Password: "pw"})
	require.NoError(t, err)

	f.resolve(t, rec.ID, false)
	_, err = f.engine.VerifyPassword(ctx, rec.ID, "bad", f.now)
	require.NoError(t, err)

	assert.Equal(t, 1, f.observer.outcomes["resolve/password_required"])
	assert.Equal(t, 1, f.observer.outcomes["verify/wrong_password"])
}

// vanishingStore deletes chosen records right after they are listed, as a
// concurrent delivery or a second sweeper would
type vanishingStore struct {
	storage.RecordStore
	vanish map[string]bool
}

func (s *vanishingStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.ContentRecord, error) {
	batch, err := s.RecordStore.ListExpired(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	for _, rec := range batch {
		if s.vanish[rec.ID] {
			if err := s.RecordStore.Delete(ctx, rec.ID); err != nil {
				return nil, err
			}
			delete(s.vanish, rec.ID)
		}
	}
	return batch, nil
}

func TestSweepSkipsRecordsGoneBeforePurge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expiry := t0.Add(time.Minute)
	ids := make([]string, 3)
	for i := range ids {
		rec, err := f.engine.Create(ctx, CreateRequest{Text: fmt.Sprintf("short %d", i), Expiry: &expiry})
		require.NoError(t, err)
		ids[i] = rec.ID
	}

	hasher, err := secret.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	store := &vanishingStore{RecordStore: f.records, vanish: map[string]bool{ids[1]: true}}
	engine := NewEngine(store, f.blobs, hasher, WithClock(func() time.Time { return f.now }))

	purged, err := engine.Sweep(ctx, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	count, err := f.records.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestResolveRacingSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expiry := t0.Add(time.Minute)
	var ids []string
	for i := 0; i < 10; i++ {
		rec, err := f.engine.Create(ctx, CreateRequest{Text: fmt.Sprintf("burn %d", i), OneTimeView: true, Expiry: &expiry})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
		file := f.createFile(t, CreateRequest{OneTimeView: true, Expiry: &expiry})
		ids = append(ids, file.ID)
	}
	now := t0.Add(2 * time.Minute)

	results := make(chan OutcomeKind, len(ids)*2)
	var wg sync.WaitGroup
	for _, id := range ids {
		for r := 0; r < 2; r++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				out, err := f.engine.Resolve(ctx, id, now, false)
				if assert.NoError(t, err) {
					results <- out.Kind
				}
			}(id)
		}
	}
	for s := 0; s < 2; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Sweep(ctx, now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	close(results)

	for k := range results {
		assert.Contains(t, []OutcomeKind{OutcomeExpired, OutcomeInvalid}, k)
	}

	count, err := f.records.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, f.blobCount(t))
}
