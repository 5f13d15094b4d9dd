package storage

import (
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// HealthStatus represents the health status of a component
type HealthStatus int

const (
	HealthStatusHealthy HealthStatus = iota
	HealthStatusDegraded
	HealthStatusUnhealthy
)

func (hs HealthStatus) String() string {
	switch hs {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusDegraded:
		return "degraded"
	case HealthStatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// HealthMonitor monitors the health of BadgerDB storage components
type HealthMonitor struct {
	storage       *BadgerStorage
	startTime     time.Time
	stopChan      chan struct{}
	isRunning     bool
	wg            sync.WaitGroup
	mu            sync.RWMutex
	stopOnce      sync.Once
	checkInterval time.Duration
	lastCheck     time.Time
	lastStatus    HealthStatus
}

// NewHealthMonitor creates a new health monitor for BadgerDB storage
func NewHealthMonitor(storage *BadgerStorage) *HealthMonitor {
	return &HealthMonitor{
		storage:       storage,
		startTime:     time.Now(),
		stopChan:      make(chan struct{}),
		checkInterval: 60 * time.Second,
	}
}

// Start begins health monitoring
func (hm *HealthMonitor) Start() {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.isRunning {
		return
	}

	hm.isRunning = true
	hm.stopChan = make(chan struct{})

	hm.wg.Add(1)
	go hm.healthCheckLoop(hm.stopChan)
}

// Stop halts health monitoring
func (hm *HealthMonitor) Stop() {
	hm.stopOnce.Do(func() {
		hm.mu.Lock()
		if !hm.isRunning {
			hm.mu.Unlock()
			return
		}
		close(hm.stopChan)
		hm.isRunning = false
		hm.mu.Unlock()

		hm.wg.Wait()
	})
}

// IsRunning returns whether health monitoring is active
func (hm *HealthMonitor) IsRunning() bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return hm.isRunning
}

// GetOverallHealth aggregates component health.
//
// An unreachable database makes the whole system unhealthy. Backup and GC
// problems only degrade it: records are still served, but data protection
// or disk reclamation is compromised.
func (hm *HealthMonitor) GetOverallHealth() HealthStatus {
	if hm.CheckDatabaseHealth() == HealthStatusUnhealthy {
		return HealthStatusUnhealthy
	}

	backupHealth := hm.checkBackupHealth()
	gcHealth := hm.checkGCHealth()

	if backupHealth != HealthStatusHealthy || gcHealth != HealthStatusHealthy {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

func (hm *HealthMonitor) healthCheckLoop(stop <-chan struct{}) {
	defer hm.wg.Done()

	hm.mu.RLock()
	interval := hm.checkInterval
	hm.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	hm.performHealthCheck()

	for {
		select {
		case <-ticker.C:
			hm.performHealthCheck()
		case <-stop:
			return
		}
	}
}

func (hm *HealthMonitor) performHealthCheck() {
	status := hm.GetOverallHealth()

	hm.mu.Lock()
	hm.lastCheck = time.Now()
	prev := hm.lastStatus
	hm.lastStatus = status
	hm.mu.Unlock()

	if status != prev {
		hm.storage.logger.Info("Storage health changed",
			zap.String("from", prev.String()),
			zap.String("to", status.String()))
	}
}

// CheckDatabaseHealth verifies that a read transaction can be opened
func (hm *HealthMonitor) CheckDatabaseHealth() HealthStatus {
	if hm.storage.ready() != nil {
		return HealthStatusUnhealthy
	}

	err := hm.storage.db.View(func(txn *badger.Txn) error {
		return nil
	})
	if err != nil {
		return HealthStatusUnhealthy
	}
	return HealthStatusHealthy
}

func (hm *HealthMonitor) checkBackupHealth() HealthStatus {
	bm := hm.storage.backupManager
	if bm == nil || !bm.IsRunning() {
		return HealthStatusDegraded
	}

	// A running manager that has not produced its first backup yet is fine
	lastBackup := bm.GetLastBackupTime()
	if !lastBackup.IsZero() && time.Since(lastBackup) > 48*time.Hour {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

func (hm *HealthMonitor) checkGCHealth() HealthStatus {
	if hm.storage.gc == nil {
		return HealthStatusUnhealthy
	}
	if !hm.storage.gc.IsRunning() {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

// GetHealthSummary reports per-component status for the detailed health endpoint
func (hm *HealthMonitor) GetHealthSummary() map[string]interface{} {
	overall := hm.GetOverallHealth()

	hm.mu.RLock()
	lastCheck := hm.lastCheck
	uptime := time.Since(hm.startTime)
	hm.mu.RUnlock()

	return map[string]interface{}{
		"overall_status":  overall.String(),
		"database_status": hm.CheckDatabaseHealth().String(),
		"backup_status":   hm.checkBackupHealth().String(),
		"gc_status":       hm.checkGCHealth().String(),
		"last_check":      lastCheck,
		"uptime_seconds":  uptime.Seconds(),
		"is_monitoring":   hm.IsRunning(),
	}
}
