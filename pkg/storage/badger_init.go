package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// getOptimizedBadgerOptions returns BadgerDB options tuned for small records
func getOptimizedBadgerOptions(dataDir string, opts BadgerOptions) badger.Options {
	options := badger.DefaultOptions(dataDir)
	if opts.InMemory {
		options = badger.DefaultOptions("").WithInMemory(true)
	}

	if opts.PerformanceMode {
		options = options.
			WithMemTableSize(8 << 20).      // 8MB memtable
			WithValueLogFileSize(16 << 20). // 16MB value log files
			WithValueLogMaxEntries(50000).
			WithBaseTableSize(4 << 20). // 4MB SST files
			WithSyncWrites(false).
			WithBlockSize(4096).
			WithBloomFalsePositive(0.01).
			WithNumCompactors(2).
			WithNumLevelZeroTables(2).
			WithNumLevelZeroTablesStall(4)
	} else {
		options = options.
			WithSyncWrites(!opts.InMemory).
			WithNumCompactors(2)
	}

	// Conflict detection is what makes Update a compare-and-swap
	options = options.
		WithLogger(nil).
		WithDetectConflicts(true).
		WithNumVersionsToKeep(1)

	if opts.CacheSize > 0 {
		options = options.WithBlockCacheSize(opts.CacheSize)
	}

	return options
}

// NewBadgerStorage opens a BadgerDB-backed record store
func NewBadgerStorage(opts BadgerOptions) (*BadgerStorage, error) {
	if opts.DataDir == "" {
		opts.DataDir = "data/badger"
	}
	if opts.BackupDir == "" {
		opts.BackupDir = "backups"
	}
	if opts.BackupInterval == 0 {
		opts.BackupInterval = 6 * time.Hour
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 7
	}
	if opts.MaxUpdateAttempts <= 0 {
		opts.MaxUpdateAttempts = 10
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	dataDir := filepath.Clean(opts.DataDir)
	badgerOpts := getOptimizedBadgerOptions(dataDir, opts)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())

	storage := &BadgerStorage{
		db:                  db,
		logger:              opts.Logger.Named("badger"),
		maxUpdateAttempts:   opts.MaxUpdateAttempts,
		backgroundOpsCtx:    bgCtx,
		backgroundOpsCancel: bgCancel,
	}

	storage.gc = NewGarbageCollector(db, storage.logger)
	if opts.GCInterval > 0 {
		storage.gc.SetInterval(opts.GCInterval)
	}
	if opts.EnableAdaptiveGC {
		storage.gc.SetAdaptiveSchedule(true)
		if len(opts.LowTrafficHours) > 0 {
			storage.gc.SetLowTrafficHours(opts.LowTrafficHours)
		}
	}
	if opts.GCThreshold > 0 {
		storage.gc.SetGCThreshold(opts.GCThreshold)
	}

	storage.backupManager = NewBackupManager(db, BackupOptions{
		BackupDir:    opts.BackupDir,
		Interval:     opts.BackupInterval,
		MaxBackups:   opts.MaxBackups,
		BackupPrefix: "linkvault-backup",
		Logger:       storage.logger,
	})

	storage.healthMonitor = NewHealthMonitor(storage)

	if opts.PerformanceMode && !opts.InMemory {
		storage.optimizeDatabaseOnStartup()
	}

	return storage, nil
}

// optimizeDatabaseOnStartup runs a couple of value-log GC passes in the background
func (s *BadgerStorage) optimizeDatabaseOnStartup() {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Background optimization panic recovered", zap.Any("panic", r))
			}
		}()

		for i := 0; i < 2; i++ {
			select {
			case <-s.backgroundOpsCtx.Done():
				return
			default:
			}

			gcDone := make(chan error, 1)
			go func() {
				gcDone <- s.db.RunValueLogGC(0.5)
			}()

			select {
			case err := <-gcDone:
				if err != nil {
					return
				}
			case <-time.After(2 * time.Second):
				s.logger.Debug("Background value-log GC timed out")
				return
			case <-s.backgroundOpsCtx.Done():
				return
			}
		}
		s.logger.Debug("Background optimization completed")
	}()
}
