package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"storepulse/internal/database"
)

// MaintenanceJob truncates the SQLite write-ahead log and refreshes the query
// planner statistics. It does nothing on PostgreSQL.
type MaintenanceJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	interval  time.Duration
}

func NewMaintenanceJob(dbManager *database.DBManager, logger *slog.Logger, interval time.Duration) *MaintenanceJob {
	return &MaintenanceJob{
		dbManager: dbManager,
		logger:    logger,
		interval:  interval,
	}
}

func (j *MaintenanceJob) Name() string { return "maintenance" }

func (j *MaintenanceJob) Interval() time.Duration { return j.interval }

func (j *MaintenanceJob) Run(ctx context.Context) error {
	db := j.dbManager.GetConnection()
	if db == nil || db.Dialector.Name() != "sqlite" {
		return nil
	}

	start := time.Now()
	if err := j.dbManager.CheckpointWAL("TRUNCATE"); err != nil {
		return fmt.Errorf("checkpoint wal: %w", err)
	}
	if err := db.WithContext(ctx).Exec("PRAGMA optimize").Error; err != nil {
		return fmt.Errorf("optimize: %w", err)
	}

	j.logger.Debug("Database maintenance completed", slog.Duration("took", time.Since(start)))
	return nil
}
