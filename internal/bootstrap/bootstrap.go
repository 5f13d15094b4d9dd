// Package bootstrap wires configuration into the record store, blob store,
// hasher, token issuer and lifecycle engine shared by the server and the CLI.
package bootstrap

import (
	"errors"
	"fmt"
	"path/filepath"

	"linkvault-server/pkg/blobstore"
	"linkvault-server/pkg/config"
	"linkvault-server/pkg/lifecycle"
	"linkvault-server/pkg/metrics"
	"linkvault-server/pkg/secret"
	"linkvault-server/pkg/storage"
	"linkvault-server/pkg/token"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Options controls which background services are started
type Options struct {
	// StartMaintenance starts value-log GC, scheduled backups and health
	// monitoring on the Badger backend. The CLI leaves it off.
	StartMaintenance bool

	// Collector receives engine outcomes; nil disables instrumentation
	Collector *metrics.Collector

	// Fs backs the filesystem blob store; nil means the OS filesystem
	Fs afero.Fs
}

// App holds the wired components
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Records storage.RecordStore
	Blobs   blobstore.BlobStore
	Hasher  *secret.BcryptHasher
	Tokens  *token.Issuer
	Engine  *lifecycle.Engine
}

// New builds every component from cfg. On error, anything already opened is closed.
func New(cfg *config.Config, appLogger *zap.Logger, opts Options) (*App, error) {
	if appLogger == nil {
		appLogger = zap.NewNop()
	}

	records, err := OpenRecordStore(cfg, appLogger, opts.StartMaintenance)
	if err != nil {
		return nil, err
	}

	app, err := assemble(cfg, appLogger, records, opts)
	if err != nil {
		records.Close()
		return nil, err
	}
	return app, nil
}

func assemble(cfg *config.Config, appLogger *zap.Logger, records storage.RecordStore, opts Options) (*App, error) {
	blobs, err := OpenBlobStore(cfg, appLogger, opts.Fs)
	if err != nil {
		return nil, err
	}

	hasher, err := secret.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to create password hasher: %w", err)
	}
	appLogger.Debug("Password hasher ready", zap.Int("bcrypt_cost", hasher.Cost()))

	tokens, err := NewTokenIssuer(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	engineOpts := []lifecycle.Option{
		lifecycle.WithDefaultExpiry(cfg.DefaultExpiry),
		lifecycle.WithSweepBatchSize(cfg.SweepBatchSize),
		lifecycle.WithLogger(appLogger),
	}
	if opts.Collector != nil {
		engineOpts = append(engineOpts, lifecycle.WithObserver(opts.Collector))
	}

	return &App{
		Config:  cfg,
		Logger:  appLogger,
		Records: records,
		Blobs:   blobs,
		Hasher:  hasher,
		Tokens:  tokens,
		Engine:  lifecycle.NewEngine(records, blobs, hasher, engineOpts...),
	}, nil
}

// OpenRecordStore opens the backend named by RECORD_BACKEND
func OpenRecordStore(cfg *config.Config, appLogger *zap.Logger, startMaintenance bool) (storage.RecordStore, error) {
	switch cfg.RecordBackend {
	case config.BackendSQLite:
		store, err := storage.NewSQLiteStorage(storage.SQLiteOptions{
			Path:      cfg.SQLitePath,
			BackupDir: cfg.BackupDir,
			Logger:    appLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite record store: %w", err)
		}
		appLogger.Info("Record store ready", zap.String("backend", "sqlite"), zap.String("path", cfg.SQLitePath))
		return store, nil

	case config.BackendBadger, "":
		store, err := storage.NewBadgerStorage(storage.BadgerOptions{
			DataDir:          filepath.Join(cfg.DataDir, "badger"),
			BackupDir:        cfg.BackupDir,
			BackupInterval:   cfg.BackupInterval,
			MaxBackups:       cfg.MaxBackups,
			EnableAdaptiveGC: cfg.EnableAdaptiveGC,
			LowTrafficHours:  []int{2, 3, 4, 5},
			GCInterval:       cfg.GCInterval,
			GCThreshold:      cfg.GCThreshold,
			PerformanceMode:  cfg.PerformanceMode,
			CacheSize:        cfg.CacheSize,
			Logger:           appLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open BadgerDB record store: %w", err)
		}
		if startMaintenance {
			store.StartGCLoop(cfg.GCInterval)
			if err := store.StartBackups(); err != nil {
				appLogger.Warn("Failed to start automated backups", zap.Error(err))
			}
			store.StartHealthMonitoring()
		}
		appLogger.Info("Record store ready",
			zap.String("backend", "badger"),
			zap.String("data_dir", cfg.DataDir),
			zap.Bool("maintenance", startMaintenance))
		return store, nil

	default:
		return nil, fmt.Errorf("unknown record backend %q", cfg.RecordBackend)
	}
}

// OpenBlobStore opens the backend named by BLOB_BACKEND
func OpenBlobStore(cfg *config.Config, appLogger *zap.Logger, fsys afero.Fs) (blobstore.BlobStore, error) {
	switch cfg.BlobBackend {
	case config.BlobS3:
		s3Opts := blobstore.S3Options{
			Bucket:         cfg.S3Bucket,
			Region:         cfg.S3Region,
			Endpoint:       cfg.S3Endpoint,
			Prefix:         cfg.S3Prefix,
			ForcePathStyle: cfg.S3ForcePathStyle,
			MaxSize:        cfg.MaxFileSize,
			Logger:         appLogger,
		}
		client, err := blobstore.NewS3Client(s3Opts)
		if err != nil {
			return nil, err
		}
		return blobstore.NewS3Store(client, s3Opts)

	case config.BlobFilesystem, "":
		if fsys == nil {
			fsys = afero.NewOsFs()
		}
		return blobstore.NewFileStore(fsys, blobstore.FileStoreOptions{
			Dir:     cfg.UploadDir,
			MaxSize: cfg.MaxFileSize,
			Logger:  appLogger,
		})

	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

// NewTokenIssuer uses TOKEN_SECRET, or a per-process random key when unset.
// With a random key, proofs do not survive a restart.
func NewTokenIssuer(cfg *config.Config, appLogger *zap.Logger) (*token.Issuer, error) {
	if appLogger == nil {
		appLogger = zap.NewNop()
	}
	key := []byte(cfg.TokenSecret)
	if len(key) == 0 {
		var err error
		key, err = token.RandomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token secret: %w", err)
		}
		appLogger.Warn("TOKEN_SECRET not set, using a random key; password proofs will not survive a restart")
	}
	issuer, err := token.NewIssuer(key, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	return issuer, nil
}

// Maintainer exposes GC and backup controls when the backend has them
func (a *App) Maintainer() (storage.Maintainer, bool) {
	m, ok := a.Records.(storage.Maintainer)
	return m, ok
}

// Lister exposes admin listing when the backend supports it
func (a *App) Lister() (storage.Lister, bool) {
	l, ok := a.Records.(storage.Lister)
	return l, ok
}

// Close releases the record store
func (a *App) Close() error {
	if a.Records == nil {
		return errors.New("record store not open")
	}
	return a.Records.Close()
}
