package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"linkvault-server/pkg/models"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS content_records (
	id                 TEXT PRIMARY KEY,
	kind               TEXT NOT NULL,
	text_data          TEXT NOT NULL DEFAULT '',
	file_path          TEXT NOT NULL DEFAULT '',
	original_file_name TEXT NOT NULL DEFAULT '',
	content_type       TEXT NOT NULL DEFAULT '',
	size               INTEGER NOT NULL DEFAULT 0,
	expiry_time        INTEGER NOT NULL,
	created_at         INTEGER NOT NULL,
	policy_mode        TEXT NOT NULL,
	policy_limit       INTEGER NOT NULL DEFAULT 0,
	is_consumed        INTEGER NOT NULL DEFAULT 0,
	password_hash      TEXT NOT NULL DEFAULT '',
	view_count         INTEGER NOT NULL DEFAULT 0,
	download_count     INTEGER NOT NULL DEFAULT 0,
	version            INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_content_records_expiry ON content_records(expiry_time);
`

const sqliteColumns = `id, kind, text_data, file_path, original_file_name, content_type, size,
	expiry_time, created_at, policy_mode, policy_limit, is_consumed, password_hash,
	view_count, download_count, version`

// SQLiteOptions configures the SQLite record store
type SQLiteOptions struct {
	Path              string // Database file
	BackupDir         string // Destination for VACUUM INTO backups
	MaxUpdateAttempts int
	Logger            *zap.Logger
}

// SQLiteStorage implements RecordStore on SQLite. Update is a compare-and-swap
// on the version column.
type SQLiteStorage struct {
	db                *sql.DB
	path              string
	backupDir         string
	maxUpdateAttempts int
	logger            *zap.Logger
}

// NewSQLiteStorage opens (and migrates) an SQLite record store
func NewSQLiteStorage(opts SQLiteOptions) (*SQLiteStorage, error) {
	if opts.Path == "" {
		opts.Path = "data/linkvault.db"
	}
	if opts.BackupDir == "" {
		opts.BackupDir = "backups"
	}
	if opts.MaxUpdateAttempts <= 0 {
		opts.MaxUpdateAttempts = 10
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// A single connection serialises writers and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{
		db:                db,
		path:              opts.Path,
		backupDir:         opts.BackupDir,
		maxUpdateAttempts: opts.MaxUpdateAttempts,
		logger:            opts.Logger.Named("sqlite"),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.ContentRecord, error) {
	var (
		rec        models.ContentRecord
		kind, mode string
		expiry     int64
		created    int64
		consumed   int
	)
	err := row.Scan(&rec.ID, &kind, &rec.TextData, &rec.FilePath, &rec.OriginalFileName,
		&rec.ContentType, &rec.Size, &expiry, &created, &mode, &rec.Policy.Limit, &consumed,
		&rec.PasswordHash, &rec.ViewCount, &rec.DownloadCount, &rec.Version)
	if err != nil {
		return nil, err
	}
	rec.Kind = models.Kind(kind)
	rec.Policy.Mode = models.PolicyMode(mode)
	rec.ExpiryTime = time.Unix(0, expiry).UTC()
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.IsConsumed = consumed != 0
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Create inserts a new record
func (s *SQLiteStorage) Create(ctx context.Context, rec *models.ContentRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("record must have an id")
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO content_records (`+sqliteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(id) DO NOTHING`,
		rec.ID, string(rec.Kind), rec.TextData, rec.FilePath, rec.OriginalFileName, rec.ContentType,
		rec.Size, rec.ExpiryTime.UnixNano(), rec.CreatedAt.UnixNano(), string(rec.Policy.Mode),
		rec.Policy.Limit, boolToInt(rec.IsConsumed), rec.PasswordHash, rec.ViewCount, rec.DownloadCount)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordExists
	}

	rec.Version = 1
	return nil
}

// Get retrieves a record by ID
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*models.ContentRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM content_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", id, err)
	}
	return rec, nil
}

// Update applies fn with optimistic concurrency on the version column
func (s *SQLiteStorage) Update(ctx context.Context, id string, fn MutateFunc) (*models.ContentRecord, error) {
	for attempt := 0; attempt < s.maxUpdateAttempts; attempt++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		working := current.Clone()
		mutation, err := fn(working)
		if err != nil {
			return nil, err
		}

		var res sql.Result
		switch mutation {
		case MutationNone:
			return current, nil
		case MutationSave:
			working.ID = current.ID
			working.Version = current.Version + 1
			res, err = s.db.ExecContext(ctx, `UPDATE content_records SET
				text_data = ?, file_path = ?, original_file_name = ?, content_type = ?, size = ?,
				expiry_time = ?, policy_mode = ?, policy_limit = ?, is_consumed = ?, password_hash = ?,
				view_count = ?, download_count = ?, version = ?
				WHERE id = ? AND version = ?`,
				working.TextData, working.FilePath, working.OriginalFileName, working.ContentType, working.Size,
				working.ExpiryTime.UnixNano(), string(working.Policy.Mode), working.Policy.Limit,
				boolToInt(working.IsConsumed), working.PasswordHash, working.ViewCount, working.DownloadCount,
				working.Version, id, current.Version)
		case MutationDelete:
			res, err = s.db.ExecContext(ctx, `DELETE FROM content_records WHERE id = ? AND version = ?`, id, current.Version)
		default:
			return nil, fmt.Errorf("unknown mutation %d", mutation)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to apply %s to record %s: %w", mutation, id, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 1 {
			if mutation == MutationDelete {
				return current, nil
			}
			return working, nil
		}

		// Lost the race: someone else changed the version first
		s.logger.Debug("Version conflict, retrying", zap.String("content_id", id), zap.Int("attempt", attempt+1))
		if attempt < s.maxUpdateAttempts-1 {
			if err := waitBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, ErrTooManyConflicts
}

// Delete removes a record
func (s *SQLiteStorage) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM content_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListExpired returns records with expiry strictly before now, oldest first
func (s *SQLiteStorage) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.ContentRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM content_records
		WHERE expiry_time < ? ORDER BY expiry_time ASC LIMIT ?`, now.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// Count returns the number of stored records
func (s *SQLiteStorage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_records`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListWithFilter retrieves records with pagination and filtering
func (s *SQLiteStorage) ListWithFilter(ctx context.Context, limit, offset int, filter *RecordFilter) ([]*models.ContentRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if offset < 0 {
		return nil, fmt.Errorf("offset must be non-negative")
	}

	all, err := s.allRecords(ctx)
	if err != nil {
		return nil, err
	}

	records := []*models.ContentRecord{}
	skipped := 0
	for _, rec := range all {
		if !matchesFilter(rec, filter) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		records = append(records, rec)
		if len(records) == limit {
			break
		}
	}
	return records, nil
}

// CountWithFilter returns the number of records matching the filter
func (s *SQLiteStorage) CountWithFilter(ctx context.Context, filter *RecordFilter) (int, error) {
	all, err := s.allRecords(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, rec := range all {
		if matchesFilter(rec, filter) {
			count++
		}
	}
	return count, nil
}

func (s *SQLiteStorage) allRecords(ctx context.Context) ([]*models.ContentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM content_records ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]*models.ContentRecord, error) {
	records := []*models.ContentRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RunGC compacts the database file
func (s *SQLiteStorage) RunGC() error {
	_, err := s.db.Exec(`VACUUM`)
	return err
}

// CreateBackup writes a consistent copy of the database with VACUUM INTO
func (s *SQLiteStorage) CreateBackup() error {
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	path := filepath.Join(s.backupDir, fmt.Sprintf("linkvault-sqlite-%s.db", time.Now().Format("20060102-150405.000")))
	if _, err := s.db.Exec(`VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("backup operation failed: %w", err)
	}
	s.logger.Info("Backup created", zap.String("path", path))
	return nil
}

// IsHealthy pings the database
func (s *SQLiteStorage) IsHealthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx) == nil
}

// GetResourceStats returns basic statistics for the admin endpoints
func (s *SQLiteStorage) GetResourceStats() map[string]interface{} {
	stats := map[string]interface{}{
		"backend": "sqlite",
		"path":    s.path,
	}
	if n, err := s.Count(context.Background()); err == nil {
		stats["record_count"] = n
	} else {
		stats["record_count_error"] = err.Error()
	}
	if info, err := os.Stat(s.path); err == nil {
		stats["database_file_size_bytes"] = info.Size()
	}
	stats["healthy"] = s.IsHealthy()
	return stats
}

// Close closes the database
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
