// Package lifecycle decides what happens when a shared link is created,
// opened, unlocked, downloaded or swept.
//
// Access resolution runs an ordered list of gates against a record:
// existence, expiry, password, consumption, quota, then delivery. The
// delivery mutation is applied in the same atomic read-modify-write as the
// gate evaluation, so concurrent readers of a one-time link cannot both win.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"linkvault-server/pkg/blobstore"
	"linkvault-server/pkg/models"
	"linkvault-server/pkg/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultExpiry applies when a create request has no expiry
	DefaultExpiry = 10 * time.Minute

	defaultSweepBatchSize = 256
)

// SecretHasher derives and checks password hashes
type SecretHasher interface {
	Hash(password string) (string, error)
	Verify(hash, candidate string) bool
}

// Observer receives engine events, typically to feed metrics
type Observer interface {
	ObserveOutcome(operation string, kind OutcomeKind)
	ObserveCreate(kind models.Kind, policy models.PolicyMode)
	ObserveSweep(purged int, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveOutcome(string, OutcomeKind) {}
func (nopObserver) ObserveCreate(models.Kind, models.PolicyMode) {}
func (nopObserver) ObserveSweep(int, time.Duration, error) {}

// FileUpload is the file half of a create request
type FileUpload struct {
	Name   string
	Reader io.Reader
}

// CreateRequest carries the raw inputs of an upload
type CreateRequest struct {
	Text         string
	File         *FileUpload
	Expiry       *time.Time
	Password     string
	OneTimeView  bool
	MaxViews     int
	MaxDownloads int
}

// Engine owns the content lifecycle. It is safe for concurrent use and holds
// no per-record state between calls.
type Engine struct {
	records        storage.RecordStore
	blobs          blobstore.BlobStore
	hasher         SecretHasher
	now            func() time.Time
	newID          func() string
	defaultExpiry  time.Duration
	sweepBatchSize int
	logger         *zap.Logger
	observer       Observer
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source used for creation timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides record ID generation
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithDefaultExpiry sets the lifetime given to records created without an expiry
func WithDefaultExpiry(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.defaultExpiry = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithSweepBatchSize bounds how many expired records are loaded per sweep page
func WithSweepBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sweepBatchSize = n
		}
	}
}

// NewEngine wires the engine to its stores
func NewEngine(records storage.RecordStore, blobs blobstore.BlobStore, hasher SecretHasher, opts ...Option) *Engine {
	e := &Engine{
		records:        records,
		blobs:          blobs,
		hasher:         hasher,
		now:            time.Now,
		newID:          uuid.NewString,
		defaultExpiry:  DefaultExpiry,
		sweepBatchSize: defaultSweepBatchSize,
		logger:         zap.NewNop(),
		observer:       nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine's current time
func (e *Engine) Now() time.Time {
	return e.now()
}

// Create normalizes and persists a new record. Text wins when both text and
// a file are supplied. A file is stored before its record; if the record
// cannot be persisted the file is removed again.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*models.ContentRecord, error) {
	text := NormalizeText(req.Text)
	hasFile := req.File != nil && req.File.Reader != nil
	if text == "" && !hasFile {
		return nil, ErrMissingContent
	}

	now := e.now()
	rec := &models.ContentRecord{
		ID:         e.newID(),
		CreatedAt:  now,
		ExpiryTime: now.Add(e.defaultExpiry),
	}
	// Past instants are accepted; such a record is inert from the start.
	if req.Expiry != nil {
		rec.ExpiryTime = *req.Expiry
	}

	if req.Password != "" {
		hash, err := e.hasher.Hash(req.Password)
		if err != nil {
			return nil, err
		}
		rec.PasswordHash = hash
	}

	if text != "" {
		rec.Kind = models.KindText
		rec.TextData = text
		rec.Size = int64(len(text))
	} else {
		rec.Kind = models.KindFile
		info, err := e.blobs.Save(ctx, req.File.Reader, req.File.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to store file: %w", err)
		}
		rec.FilePath = info.Path
		rec.OriginalFileName = req.File.Name
		rec.ContentType = info.ContentType
		rec.Size = info.Size
	}

	rec.Policy = models.SelectPolicy(rec.Kind, req.OneTimeView, req.MaxViews, req.MaxDownloads)

	if err := e.records.Create(ctx, rec); err != nil {
		if rec.FilePath != "" {
			if delErr := e.blobs.Delete(ctx, rec.FilePath); delErr != nil {
				e.logger.Error("Failed to remove blob after record persistence failure",
					zap.String("content_id", rec.ID),
					zap.String("file_path", rec.FilePath),
					zap.Error(delErr))
			}
		}
		return nil, fmt.Errorf("failed to persist record: %w", err)
	}

	e.observer.ObserveCreate(rec.Kind, rec.Policy.Mode)
	e.logger.Info("Content created",
		zap.String("content_id", rec.ID),
		zap.String("kind", string(rec.Kind)),
		zap.Stringer("policy", rec.Policy),
		zap.Bool("password_protected", rec.HasPassword()),
		zap.Time("expires_at", rec.ExpiryTime))

	return rec, nil
}

// Resolve runs the access gates for id at now. passwordVerified is the
// caller's claim that a valid password proof was presented. A Deliver
// outcome has already been applied to the store when Resolve returns.
func (e *Engine) Resolve(ctx context.Context, id string, now time.Time, passwordVerified bool) (*Outcome, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	var kind OutcomeKind
	rec, err := e.records.Update(ctx, id, func(rec *models.ContentRecord) (storage.Mutation, error) {
		kind = gate(rec, now, passwordVerified)
		if kind != OutcomeDeliver {
			return storage.MutationNone, nil
		}
		return deliver(rec), nil
	})
	if errors.Is(err, storage.ErrRecordNotFound) {
		return e.outcome("resolve", id, OutcomeInvalid, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", id, err)
	}

	return e.outcome("resolve", id, kind, rec), nil
}

// VerifyPassword checks candidate against the record's password. It never
// modifies the record. The password is compared before consumption and quota
// state, so a wrong password reveals nothing about an exhausted link.
func (e *Engine) VerifyPassword(ctx context.Context, id, candidate string, now time.Time) (*Outcome, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	rec, err := e.records.Get(ctx, id)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return e.outcome("verify", id, OutcomeInvalid, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", id, err)
	}

	if rec.IsExpired(now) {
		return e.outcome("verify", id, OutcomeExpired, rec), nil
	}
	if rec.HasPassword() && !e.hasher.Verify(rec.PasswordHash, candidate) {
		return e.outcome("verify", id, OutcomeWrongPassword, rec), nil
	}
	if kind, ok := exhausted(rec); ok {
		return e.outcome("verify", id, kind, rec), nil
	}
	return e.outcome("verify", id, OutcomePasswordVerified, rec), nil
}

// CompleteDownload finalizes a file delivery. After a successful transfer of
// a one-time file the record and its blob are deleted. A failed transfer
// leaves the record consumed and the blob in place for the sweep.
func (e *Engine) CompleteDownload(ctx context.Context, id string, transferSucceeded bool) error {
	if id == "" {
		return ErrEmptyID
	}
	if !transferSucceeded {
		e.logger.Warn("Download did not complete, keeping blob until expiry", zap.String("content_id", id))
		return nil
	}

	deleted := false
	rec, err := e.records.Update(ctx, id, func(rec *models.ContentRecord) (storage.Mutation, error) {
		deleted = rec.Kind == models.KindFile && rec.Policy.IsOneTimeView() && rec.IsConsumed
		if !deleted {
			return storage.MutationNone, nil
		}
		return storage.MutationDelete, nil
	})
	if errors.Is(err, storage.ErrRecordNotFound) {
		// swept in the meantime
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to finalize download %s: %w", id, err)
	}
	if !deleted {
		return nil
	}

	if err := e.blobs.Delete(ctx, rec.FilePath); err != nil {
		return fmt.Errorf("record %s deleted but blob %s remains: %w", id, rec.FilePath, err)
	}
	e.logger.Debug("One-time download finalized", zap.String("content_id", id))
	return nil
}

// Sweep deletes every record whose expiry is strictly before now, together
// with its blob, and returns how many records it removed. Records that are
// already gone are skipped, so repeated sweeps are harmless.
func (e *Engine) Sweep(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	purged, err := e.sweep(ctx, now)
	e.observer.ObserveSweep(purged, time.Since(start), err)
	if err != nil {
		return purged, err
	}
	if purged > 0 {
		e.logger.Info("Expired content swept", zap.Int("purged", purged), zap.Duration("elapsed", time.Since(start)))
	}
	return purged, nil
}

func (e *Engine) sweep(ctx context.Context, now time.Time) (int, error) {
	purged := 0
	for {
		if err := ctx.Err(); err != nil {
			return purged, err
		}

		batch, err := e.records.ListExpired(ctx, now, e.sweepBatchSize)
		if err != nil {
			return purged, fmt.Errorf("failed to list expired records: %w", err)
		}

		progress := 0
		for _, candidate := range batch {
			ok, err := e.purge(ctx, candidate.ID, now)
			if err != nil {
				return purged, err
			}
			if ok {
				progress++
			}
		}
		purged += progress

		if len(batch) < e.sweepBatchSize || progress == 0 {
			return purged, nil
		}
	}
}

// purge removes one expired record. The expiry is re-checked inside the
// transaction so a record is never deleted on stale information.
func (e *Engine) purge(ctx context.Context, id string, now time.Time) (bool, error) {
	deleted := false
	rec, err := e.records.Update(ctx, id, func(rec *models.ContentRecord) (storage.Mutation, error) {
		deleted = rec.ExpiryTime.Before(now)
		if !deleted {
			return storage.MutationNone, nil
		}
		return storage.MutationDelete, nil
	})
	if errors.Is(err, storage.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to purge %s: %w", id, err)
	}
	if !deleted {
		return false, nil
	}

	if rec.FilePath != "" {
		if err := e.blobs.Delete(ctx, rec.FilePath); err != nil {
			e.logger.Warn("Failed to delete blob of expired record",
				zap.String("content_id", id),
				zap.String("file_path", rec.FilePath),
				zap.Error(err))
		}
	}
	return true, nil
}

// Inspect returns the stored record without evaluating any gate
func (e *Engine) Inspect(ctx context.Context, id string) (*models.ContentRecord, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	return e.records.Get(ctx, id)
}

// OpenFile streams the bytes of a delivered file record. A record whose blob
// has disappeared yields blobstore.ErrBlobNotFound.
func (e *Engine) OpenFile(ctx context.Context, rec *models.ContentRecord) (io.ReadCloser, error) {
	if rec == nil || rec.Kind != models.KindFile || rec.FilePath == "" {
		return nil, fmt.Errorf("%w: record has no file", blobstore.ErrBlobNotFound)
	}
	return e.blobs.Open(ctx, rec.FilePath)
}

// BlobPresent reports whether the bytes behind a file record are still stored.
// Text records have no blob and report false.
func (e *Engine) BlobPresent(ctx context.Context, rec *models.ContentRecord) (bool, error) {
	if rec == nil || rec.Kind != models.KindFile || rec.FilePath == "" {
		return false, nil
	}
	return e.blobs.Exists(ctx, rec.FilePath)
}

func (e *Engine) outcome(operation, id string, kind OutcomeKind, rec *models.ContentRecord) *Outcome {
	e.observer.ObserveOutcome(operation, kind)
	e.logger.Debug("Access evaluated",
		zap.String("operation", operation),
		zap.String("content_id", id),
		zap.Stringer("outcome", kind))
	return &Outcome{Kind: kind, Record: rec}
}

// gate evaluates gates 2 to 5 on an existing record
func gate(rec *models.ContentRecord, now time.Time, passwordVerified bool) OutcomeKind {
	if rec.IsExpired(now) {
		return OutcomeExpired
	}
	if rec.HasPassword() && !passwordVerified {
		return OutcomePasswordRequired
	}
	if kind, ok := exhausted(rec); ok {
		return kind
	}
	return OutcomeDeliver
}

// exhausted runs the consumption gate and then the quota gate
func exhausted(rec *models.ContentRecord) (OutcomeKind, bool) {
	if rec.Policy.IsOneTimeView() {
		if rec.IsConsumed {
			return OutcomeAlreadyConsumed, true
		}
		return 0, false
	}
	if rec.IsExhausted() {
		return OutcomeQuotaExhausted, true
	}
	return 0, false
}

// deliver applies the delivery mutation to rec and reports how to persist it
func deliver(rec *models.ContentRecord) storage.Mutation {
	switch rec.Kind {
	case models.KindText:
		if rec.Policy.IsOneTimeView() {
			return storage.MutationDelete
		}
		rec.ViewCount++
	case models.KindFile:
		if rec.Policy.IsOneTimeView() {
			rec.IsConsumed = true
		} else {
			rec.DownloadCount++
		}
	}
	return storage.MutationSave
}
