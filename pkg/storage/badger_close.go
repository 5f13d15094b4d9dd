package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Close stops background components and closes the database
func (s *BadgerStorage) Close() error {
	return s.CloseWithTimeout(30 * time.Second)
}

// CloseWithTimeout closes the BadgerDB database with a bound on graceful shutdown
func (s *BadgerStorage) CloseWithTimeout(timeout time.Duration) error {
	if !atomic.CompareAndSwapInt32(&s.isClosed, 0, 1) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	errs := s.executeSequentialShutdown(ctx)

	s.backgroundOpsMu.Lock()
	if s.backgroundOpsCancel != nil {
		s.backgroundOpsCancel()
	}
	s.backgroundOpsMu.Unlock()

	dbCloseStart := time.Now()
	dbCloseDone := make(chan error, 1)
	go func() {
		dbCloseDone <- s.db.Close()
	}()

	select {
	case dbErr := <-dbCloseDone:
		if dbErr != nil {
			s.logger.Error("BadgerDB close failed", zap.Error(dbErr), zap.Duration("elapsed", time.Since(dbCloseStart)))
			errs = append(errs, fmt.Errorf("database close error: %w", dbErr))
		} else {
			s.logger.Info("BadgerDB closed", zap.Duration("elapsed", time.Since(dbCloseStart)))
		}
	case <-ctx.Done():
		s.logger.Error("BadgerDB close timed out", zap.Duration("elapsed", time.Since(dbCloseStart)))
		errs = append(errs, fmt.Errorf("%w: database close still running after %v", ErrShutdownTimeout, time.Since(dbCloseStart)))
	}

	return errors.Join(errs...)
}

// executeSequentialShutdown stops background components in dependency order:
// health checks first, then backups which hold iterators, then GC.
func (s *BadgerStorage) executeSequentialShutdown(ctx context.Context) []error {
	var errs []error

	steps := []struct {
		name string
		stop func()
	}{
		{"health monitor", s.StopHealthMonitoring},
		{"backup manager", s.StopBackups},
		{"garbage collector", s.StopGCLoop},
	}

	for _, step := range steps {
		if err := s.stopComponentWithTimeout(ctx, step.name, step.stop); err != nil {
			s.logger.Warn("Component shutdown failed", zap.String("component", step.name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		s.logger.Debug("Component stopped", zap.String("component", step.name))
	}

	return errs
}

// stopComponentWithTimeout stops a single component with timeout protection
func (s *BadgerStorage) stopComponentWithTimeout(ctx context.Context, name string, stopFunc func()) error {
	done := make(chan struct{})

	go func() {
		defer close(done)
		stopFunc()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s shutdown timeout", name)
	}
}

// VerifyCleanShutdown reports, per component, whether it has stopped
func (s *BadgerStorage) VerifyCleanShutdown() map[string]bool {
	return map[string]bool{
		"garbage_collector": s.gc == nil || !s.gc.IsRunning(),
		"backup_manager":    s.backupManager == nil || !s.backupManager.IsRunning(),
		"health_monitor":    s.healthMonitor == nil || !s.healthMonitor.IsRunning(),
	}
}

// IsFullyShutdown returns true if all components have been properly shut down
func (s *BadgerStorage) IsFullyShutdown() bool {
	for _, stopped := range s.VerifyCleanShutdown() {
		if !stopped {
			return false
		}
	}
	return true
}

// IsClosed returns true if the database has been closed
func (s *BadgerStorage) IsClosed() bool {
	return atomic.LoadInt32(&s.isClosed) == 1
}
