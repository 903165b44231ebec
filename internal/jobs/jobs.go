// Package jobs runs the periodic maintenance tasks of a running instance.
package jobs

import (
	"log/slog"
	"time"

	"storepulse/internal/config"
	"storepulse/internal/database"
)

// NewDefaultScheduler creates the scheduler with every application job.
func NewDefaultScheduler(cfg *config.Config, dbManager *database.DBManager, geo GeoDatabase, logger *slog.Logger) *Scheduler {
	interval := time.Duration(cfg.JobIntervalSeconds) * time.Second

	return NewScheduler(logger,
		NewGeoLiteUpdaterJob(cfg, dbManager, geo, logger, interval),
		NewMaintenanceJob(dbManager, logger, interval),
	)
}
