// Package sweeper purges expired content on a fixed schedule.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval matches the once-a-minute cleanup cadence
const DefaultInterval = time.Minute

// ErrAlreadyRunning is returned by RunOnce while another pass is in progress
var ErrAlreadyRunning = errors.New("sweep already running")

// Target is the component that knows how to purge expired records
type Target interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
	Now() time.Time
}

// Metrics tracks sweep runs
type Metrics struct {
	TotalRuns       int64
	FailedRuns      int64
	TotalPurged     int64
	LastPurged      int
	LastRunTime     time.Time
	LastRunDuration time.Duration
	LastError       string
}

// Sweeper runs Target.Sweep every interval. It sweeps once immediately on Start.
type Sweeper struct {
	target   Target
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup

	// serializes passes between the loop and manual triggers
	runMu sync.Mutex

	metricsMu sync.RWMutex
	metrics   Metrics
}

// Options configures a Sweeper
type Options struct {
	Interval time.Duration
	// Timeout bounds a single pass; zero means the interval
	Timeout time.Duration
	Logger  *zap.Logger
}

func New(target Target, opts Options) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = opts.Interval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Sweeper{
		target:   target,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		logger:   opts.Logger.Named("sweeper"),
		stopChan: make(chan struct{}),
	}
}

// Start launches the sweep loop. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return
	}
	s.stopChan = make(chan struct{})
	s.isRunning = true

	s.wg.Add(1)
	go s.loop(s.stopChan)

	s.logger.Info("Sweeper started", zap.Duration("interval", s.interval))
}

// Stop halts the loop and waits for an in-flight pass to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.isRunning = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Sweeper stopped")
}

func (s *Sweeper) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Sweeper) loop(stop <-chan struct{}) {
	defer s.wg.Done()

	s.runScheduled(stop)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runScheduled(stop)
		case <-stop:
			return
		}
	}
}

func (s *Sweeper) runScheduled(stop <-chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.runMu.Lock()
	defer s.runMu.Unlock()
	if _, err := s.run(ctx); err != nil {
		s.logger.Error("Scheduled sweep failed", zap.Error(err))
	}
}

// RunOnce performs a pass immediately. It fails with ErrAlreadyRunning if a
// pass is already in progress.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if !s.runMu.TryLock() {
		return 0, ErrAlreadyRunning
	}
	defer s.runMu.Unlock()
	return s.run(ctx)
}

func (s *Sweeper) run(ctx context.Context) (int, error) {
	start := time.Now()
	purged, err := s.target.Sweep(ctx, s.target.Now())
	elapsed := time.Since(start)

	s.metricsMu.Lock()
	s.metrics.TotalRuns++
	s.metrics.TotalPurged += int64(purged)
	s.metrics.LastPurged = purged
	s.metrics.LastRunTime = start
	s.metrics.LastRunDuration = elapsed
	s.metrics.LastError = ""
	if err != nil {
		s.metrics.FailedRuns++
		s.metrics.LastError = err.Error()
	}
	s.metricsMu.Unlock()

	s.logger.Debug("Sweep pass finished", zap.Int("purged", purged), zap.Duration("elapsed", elapsed))
	return purged, err
}

// GetMetrics returns a copy of the current metrics
func (s *Sweeper) GetMetrics() Metrics {
	s.metricsMu.RLock()
	defer s.metricsMu.RUnlock()
	return s.metrics
}

// GetStats returns the metrics as a map for health endpoints
func (s *Sweeper) GetStats() map[string]interface{} {
	m := s.GetMetrics()
	stats := map[string]interface{}{
		"running":           s.IsRunning(),
		"interval":          s.interval.String(),
		"total_runs":        m.TotalRuns,
		"failed_runs":       m.FailedRuns,
		"total_purged":      m.TotalPurged,
		"last_purged":       m.LastPurged,
		"last_run_duration": m.LastRunDuration.String(),
	}
	if !m.LastRunTime.IsZero() {
		stats["last_run_time"] = m.LastRunTime
	}
	if m.LastError != "" {
		stats["last_error"] = m.LastError
	}
	return stats
}
