package storage

import "context"

// GetResourceStats returns statistics about resource usage and component states
func (s *BadgerStorage) GetResourceStats() map[string]interface{} {
	stats := make(map[string]interface{})

	stats["backend"] = "badger"
	stats["component_states"] = s.VerifyCleanShutdown()

	if count, err := s.Count(context.Background()); err == nil {
		stats["record_count"] = count
	} else {
		stats["record_count_error"] = err.Error()
	}

	if dbSize, err := s.GetDatabaseSize(); err == nil {
		stats["database_data_size_bytes"] = dbSize
	} else {
		stats["database_data_size_error"] = err.Error()
	}

	if fileSize, err := s.GetDatabaseFileSize(); err == nil {
		stats["database_file_size_bytes"] = fileSize
	} else {
		stats["database_file_size_error"] = err.Error()
	}

	if s.gc != nil {
		stats["gc_stats"] = s.GetGCStats()
	}

	if s.backupManager != nil {
		if backupStats, err := s.GetBackupStats(); err == nil {
			stats["backup_stats"] = backupStats
		} else {
			stats["backup_stats_error"] = err.Error()
		}
	}

	if s.healthMonitor != nil {
		stats["health_stats"] = s.GetHealthStatus()
	}

	return stats
}
