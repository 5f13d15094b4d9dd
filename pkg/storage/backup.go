package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BackupManager handles automated backup operations for BadgerDB
type BackupManager struct {
	db           *badger.DB
	logger       *zap.Logger
	backupDir    string
	interval     time.Duration
	maxBackups   int
	stopChan     chan struct{}
	isRunning    bool
	mu           sync.RWMutex
	stopOnce     sync.Once
	lastBackup   time.Time
	backupPrefix string
	wg           sync.WaitGroup // Tracks the loop and in-flight backups
	backupMu     sync.Mutex     // Serialises backup operations
	ctx          context.Context
	cancel       context.CancelFunc
}

// BackupOptions contains configuration for backup operations
type BackupOptions struct {
	BackupDir    string        // Directory to store backups
	Interval     time.Duration // How often to create backups
	MaxBackups   int           // Maximum number of backups to retain
	BackupPrefix string        // Prefix for backup file names
	Logger       *zap.Logger
}

// NewBackupManager creates a new backup manager for BadgerDB
func NewBackupManager(db *badger.DB, opts BackupOptions) *BackupManager {
	if opts.BackupDir == "" {
		opts.BackupDir = "backups"
	}
	if opts.Interval == 0 {
		opts.Interval = 6 * time.Hour
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 7
	}
	if opts.BackupPrefix == "" {
		opts.BackupPrefix = "badger-backup"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &BackupManager{
		db:           db,
		logger:       opts.Logger,
		backupDir:    opts.BackupDir,
		interval:     opts.Interval,
		maxBackups:   opts.MaxBackups,
		stopChan:     make(chan struct{}),
		backupPrefix: opts.BackupPrefix,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins the automated backup process
func (bm *BackupManager) Start() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.isRunning {
		return fmt.Errorf("backup manager is already running")
	}

	if err := os.MkdirAll(bm.backupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	bm.isRunning = true
	bm.stopChan = make(chan struct{})

	bm.wg.Add(1)
	go bm.backupLoop(bm.interval, bm.stopChan)

	return nil
}

// Stop halts the automated backup process and waits for ongoing operations
func (bm *BackupManager) Stop() {
	bm.stopOnce.Do(func() {
		bm.mu.Lock()
		if !bm.isRunning {
			bm.mu.Unlock()
			return
		}
		bm.cancel()
		close(bm.stopChan)
		bm.isRunning = false
		bm.mu.Unlock()

		// Badger iterators panic if the DB closes under a running backup
		bm.wg.Wait()
	})
}

func (bm *BackupManager) backupLoop(interval time.Duration, stop <-chan struct{}) {
	defer bm.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-bm.ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := bm.doBackup(); err != nil {
				bm.logger.Error("Scheduled backup failed", zap.Error(err))
			}
		}
	}
}

// CreateBackup creates a manual backup immediately and returns its path
func (bm *BackupManager) CreateBackup() (string, error) {
	bm.wg.Add(1)
	defer bm.wg.Done()
	return bm.doBackupPath()
}

func (bm *BackupManager) doBackup() error {
	_, err := bm.doBackupPath()
	return err
}

func (bm *BackupManager) doBackupPath() (string, error) {
	if err := bm.ctx.Err(); err != nil {
		return "", fmt.Errorf("backup cancelled: %w", err)
	}

	bm.backupMu.Lock()
	defer bm.backupMu.Unlock()

	if err := os.MkdirAll(bm.backupDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	backupPath := filepath.Join(bm.backupDir, fmt.Sprintf("%s-%s.backup", bm.backupPrefix, timestamp))

	backupFile, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}

	// Badger's Backup cannot be interrupted once started
	_, err = bm.db.Backup(backupFile, 0)
	closeErr := backupFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(backupPath)
		return "", fmt.Errorf("backup operation failed: %w", err)
	}

	bm.mu.Lock()
	bm.lastBackup = time.Now()
	bm.mu.Unlock()

	bm.logger.Info("Backup created", zap.String("path", backupPath))

	if err := bm.cleanupOldBackups(); err != nil {
		bm.logger.Warn("Failed to clean up old backups", zap.Error(err))
	}

	return backupPath, nil
}

// IsRunning returns whether the backup loop is active
func (bm *BackupManager) IsRunning() bool {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	return bm.isRunning
}

// RestoreFromBackup loads a backup file into the database
func (bm *BackupManager) RestoreFromBackup(backupPath string) error {
	if err := bm.VerifyBackup(backupPath); err != nil {
		return err
	}

	backupFile, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer backupFile.Close()

	return bm.db.Load(backupFile, 256)
}

// VerifyBackup verifies that a backup file exists and is readable
func (bm *BackupManager) VerifyBackup(backupPath string) error {
	info, err := os.Stat(backupPath)
	if err != nil {
		return fmt.Errorf("backup file not accessible: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("backup path is not a regular file")
	}
	if info.Size() == 0 {
		return fmt.Errorf("backup file is empty")
	}
	return nil
}

// GetLastBackupTime returns the timestamp of the last successful backup
func (bm *BackupManager) GetLastBackupTime() time.Time {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	return bm.lastBackup
}

// ListBackups returns the available backup files
func (bm *BackupManager) ListBackups() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(bm.backupDir, fmt.Sprintf("%s-*.backup", bm.backupPrefix)))
	if err != nil {
		return nil, fmt.Errorf("failed to list backup files: %w", err)
	}
	return files, nil
}

// cleanupOldBackups removes the oldest backups beyond the retention limit
func (bm *BackupManager) cleanupOldBackups() error {
	backups, err := bm.ListBackups()
	if err != nil {
		return err
	}
	if len(backups) <= bm.maxBackups {
		return nil
	}

	type backupFileInfo struct {
		path    string
		modTime time.Time
	}

	var infos []backupFileInfo
	for _, backup := range backups {
		info, err := os.Stat(backup)
		if err != nil {
			continue
		}
		infos = append(infos, backupFileInfo{path: backup, modTime: info.ModTime()})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].modTime.Before(infos[j].modTime)
	})

	for i := 0; i < len(infos)-bm.maxBackups; i++ {
		if err := os.Remove(infos[i].path); err != nil {
			bm.logger.Warn("Failed to remove old backup", zap.String("path", infos[i].path), zap.Error(err))
		}
	}
	return nil
}
