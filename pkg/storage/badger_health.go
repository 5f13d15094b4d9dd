package storage

// StartHealthMonitoring starts the health monitoring system
func (s *BadgerStorage) StartHealthMonitoring() {
	if s.healthMonitor != nil {
		s.healthMonitor.Start()
	}
}

// GetHealthStatus returns the current health summary
func (s *BadgerStorage) GetHealthStatus() map[string]interface{} {
	if s.healthMonitor == nil {
		return map[string]interface{}{"error": "health monitor not initialized"}
	}
	return s.healthMonitor.GetHealthSummary()
}

// GetOverallHealth returns the overall health status
func (s *BadgerStorage) GetOverallHealth() HealthStatus {
	if s.healthMonitor == nil {
		return HealthStatusUnhealthy
	}
	return s.healthMonitor.GetOverallHealth()
}

// IsHealthy reports whether records can be read and written.
// Degraded backup or GC state does not make the store unhealthy.
func (s *BadgerStorage) IsHealthy() bool {
	if s.healthMonitor == nil {
		return false
	}
	return s.healthMonitor.CheckDatabaseHealth() == HealthStatusHealthy
}

// StopHealthMonitoring stops the health monitoring system
func (s *BadgerStorage) StopHealthMonitoring() {
	if s.healthMonitor != nil {
		s.healthMonitor.Stop()
	}
}
