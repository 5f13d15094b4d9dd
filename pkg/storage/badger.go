package storage

import (
	"context"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerStorage implements RecordStore using BadgerDB. Conflict-detecting
// transactions provide the compare-and-swap used by Update.
type BadgerStorage struct {
	db       *badger.DB
	isClosed int32 // Track if database has been closed (atomic)
	logger   *zap.Logger

	maxUpdateAttempts int

	// Background operation tracking (for proper shutdown)
	backgroundOpsCancel context.CancelFunc
	backgroundOpsCtx    context.Context
	backgroundOpsMu     sync.Mutex

	// Managers
	gc            *GarbageCollector // Value-log garbage collector
	backupManager *BackupManager    // Automated backup system
	healthMonitor *HealthMonitor    // Health monitoring system
}

// BadgerOptions contains options for the BadgerDB storage
type BadgerOptions struct {
	DataDir          string        // Directory to store BadgerDB files
	InMemory         bool          // Keep everything in memory (tests, ephemeral runs)
	GCInterval       time.Duration // GC interval (optional)
	BackupDir        string        // Directory for backups
	BackupInterval   time.Duration // How often to create backups
	MaxBackups       int           // Maximum number of backups to retain
	EnableAdaptiveGC bool          // Enable adaptive GC scheduling
	LowTrafficHours  []int         // Hours considered low traffic for GC

	// Minimum ratio of reclaimable space to trigger GC
	GCThreshold float64

	// Performance Optimization Options
	PerformanceMode bool  // Favour throughput over fsync-per-write durability
	CacheSize       int64 // In-memory block cache size in bytes

	// Update retries on transaction conflict before giving up
	MaxUpdateAttempts int

	Logger *zap.Logger
}

// Key layout:
//   rec/<id>                          -> JSON ContentRecord
//   exp/<8-byte big-endian nanos><id> -> empty, expiry index
var (
	recordPrefix = []byte("rec/")
	expiryPrefix = []byte("exp/")
)

// File contents:
// badger_CRUD.go --- record operations and expiry index
// pagination.go and filter.go --- admin listing
// badger_close.go --- Shutdown operations
// badger_gc.go and gc.go --- Value-log garbage collection
// badger_backup.go and backup.go --- Backup manager
// badger_health.go and health.go --- Health monitoring
// badger_stats.go --- Resource statistics
