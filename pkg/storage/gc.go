package storage

import (
	"errors"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// GCMetrics tracks value-log garbage collection runs
type GCMetrics struct {
	TotalRuns       int64         // Total number of GC runs
	SuccessfulRuns  int64         // Number of successful GC runs
	FailedRuns      int64         // Number of failed GC runs
	LastRunTime     time.Time     // Time of last GC run
	LastRunDuration time.Duration // Duration of last GC run
	SpaceReclaimed  int64         // Total space reclaimed (bytes)
	mu              sync.RWMutex
}

// GarbageCollector reclaims BadgerDB value-log space left behind by deleted
// and rewritten records. It does not decide record expiry.
type GarbageCollector struct {
	db               *badger.DB
	logger           *zap.Logger
	interval         time.Duration
	stopChan         chan struct{}
	isRunning        bool
	wg               sync.WaitGroup
	mu               sync.RWMutex
	stopOnce         sync.Once
	lastGCTime       time.Time
	gcThreshold      float64 // Minimum ratio of reclaimable space to trigger GC
	adaptiveSchedule bool
	lowTrafficHours  []int // Hours considered low traffic (0-23)
	metrics          *GCMetrics
}

// NewGarbageCollector creates a garbage collector with defaults
func NewGarbageCollector(db *badger.DB, logger *zap.Logger) *GarbageCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GarbageCollector{
		db:              db,
		logger:          logger,
		interval:        5 * time.Minute,
		stopChan:        make(chan struct{}),
		gcThreshold:     0.5,
		lowTrafficHours: []int{2, 3, 4, 5, 6},
		metrics:         &GCMetrics{},
	}
}

// RunGC performs a single value-log GC pass with metrics tracking
func (gc *GarbageCollector) RunGC() error {
	startTime := time.Now()

	gc.metrics.mu.Lock()
	gc.metrics.TotalRuns++
	gc.metrics.mu.Unlock()

	lsmBefore, vlogBefore := gc.db.Size()

	gc.mu.RLock()
	threshold := gc.gcThreshold
	gc.mu.RUnlock()

	err := gc.db.RunValueLogGC(threshold)

	lsmAfter, vlogAfter := gc.db.Size()
	duration := time.Since(startTime)
	spaceReclaimed := (lsmBefore + vlogBefore) - (lsmAfter + vlogAfter)

	gc.metrics.mu.Lock()
	gc.metrics.LastRunTime = startTime
	gc.metrics.LastRunDuration = duration
	if spaceReclaimed > 0 {
		gc.metrics.SpaceReclaimed += spaceReclaimed
	}
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		gc.metrics.FailedRuns++
	} else {
		gc.metrics.SuccessfulRuns++
	}
	gc.metrics.mu.Unlock()

	if err == nil || errors.Is(err, badger.ErrNoRewrite) {
		gc.mu.Lock()
		gc.lastGCTime = startTime
		gc.mu.Unlock()
		return nil
	}
	return err
}

// SetInterval changes the GC interval, restarting the loop if it is running
func (gc *GarbageCollector) SetInterval(interval time.Duration) {
	gc.mu.Lock()
	gc.interval = interval
	wasRunning := gc.signalStopLocked()
	gc.mu.Unlock()

	if wasRunning {
		gc.wg.Wait()
		gc.Start()
	}
}

// Start begins the garbage collection loop
func (gc *GarbageCollector) Start() {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	if gc.isRunning {
		return
	}
	gc.stopChan = make(chan struct{})
	gc.isRunning = true

	gc.wg.Add(1)
	go gc.gcLoop(gc.interval, gc.stopChan)
}

// Stop halts the garbage collection loop and waits for it to exit
func (gc *GarbageCollector) Stop() {
	gc.stopOnce.Do(func() {
		gc.mu.Lock()
		gc.signalStopLocked()
		gc.mu.Unlock()

		// the loop takes gc.mu itself, so wait outside the lock
		gc.wg.Wait()
	})
}

// signalStopLocked closes the stop channel; callers hold gc.mu
func (gc *GarbageCollector) signalStopLocked() bool {
	if !gc.isRunning {
		return false
	}
	close(gc.stopChan)
	gc.isRunning = false
	return true
}

// IsRunning returns whether the garbage collector loop is active
func (gc *GarbageCollector) IsRunning() bool {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	return gc.isRunning
}

func (gc *GarbageCollector) gcLoop(interval time.Duration, stop <-chan struct{}) {
	defer gc.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !gc.shouldRunGC(time.Now()) {
				continue
			}
			if err := gc.RunGC(); err != nil {
				gc.logger.Warn("Value-log GC failed", zap.Error(err))
			}
		case <-stop:
			return
		}
	}
}

// shouldRunGC applies the adaptive schedule, if enabled
func (gc *GarbageCollector) shouldRunGC(now time.Time) bool {
	gc.mu.RLock()
	defer gc.mu.RUnlock()

	if !gc.adaptiveSchedule || gc.lastGCTime.IsZero() {
		return true
	}

	for _, hour := range gc.lowTrafficHours {
		if now.Hour() == hour {
			return true
		}
	}

	// Outside the low-traffic window run at most once per interval
	return now.Sub(gc.lastGCTime) >= gc.interval
}

// SetGCThreshold sets the minimum ratio of reclaimable space to trigger GC
func (gc *GarbageCollector) SetGCThreshold(threshold float64) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.gcThreshold = threshold
}

// SetAdaptiveSchedule enables or disables adaptive GC scheduling
func (gc *GarbageCollector) SetAdaptiveSchedule(enabled bool) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.adaptiveSchedule = enabled
}

// SetLowTrafficHours sets the hours considered low traffic for GC scheduling
func (gc *GarbageCollector) SetLowTrafficHours(hours []int) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.lowTrafficHours = make([]int, len(hours))
	copy(gc.lowTrafficHours, hours)
}

// GetMetrics returns a copy of the current GC metrics
func (gc *GarbageCollector) GetMetrics() GCMetrics {
	gc.metrics.mu.RLock()
	defer gc.metrics.mu.RUnlock()

	return GCMetrics{
		TotalRuns:       gc.metrics.TotalRuns,
		SuccessfulRuns:  gc.metrics.SuccessfulRuns,
		FailedRuns:      gc.metrics.FailedRuns,
		LastRunTime:     gc.metrics.LastRunTime,
		LastRunDuration: gc.metrics.LastRunDuration,
		SpaceReclaimed:  gc.metrics.SpaceReclaimed,
	}
}
