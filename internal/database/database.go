package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storepulse/internal/config"
	"storepulse/internal/events"
	"storepulse/internal/settings"
)

// Models lists every table owned by the service, in migration order.
func Models() []any {
	return []any{
		&events.VisitorEvent{},
		&events.BotStat{},
		&settings.Setting{},
	}
}

// DBManager owns the gorm connection for either SQLite or PostgreSQL.
type DBManager struct {
	cfg    *config.Config
	logger *slog.Logger

	mu sync.RWMutex
	db *gorm.DB
}

// NewDBManager creates a new database manager. Call Init before use.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	return &DBManager{cfg: cfg, logger: logger}
}

// NewDBManagerFromConnection wraps an already open connection, as tests do.
func NewDBManagerFromConnection(db *gorm.DB, logger *slog.Logger) *DBManager {
	return &DBManager{db: db, logger: logger}
}

// Init opens the connection and configures the pool.
func (dm *DBManager) Init() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.db != nil {
		return nil
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(dm.cfg)),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch dm.cfg.DatabaseType {
	case config.PostgresDatabase:
		gormConfig.PrepareStmt = true
		db, err = gorm.Open(postgres.Open(dm.cfg.DatabaseDSN), gormConfig)
	default:
		path := dm.cfg.GetDatabasePath()
		if dir := filepath.Dir(path); dir != "" {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return fmt.Errorf("create storage directory: %w", mkErr)
			}
		}
		db, err = gorm.Open(sqlite.Open(sqliteDSN(path)), gormConfig)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(dm.cfg.GetMaxOpenConns())
	sqlDB.SetMaxIdleConns(dm.cfg.GetMaxIdleConns())
	sqlDB.SetConnMaxLifetime(time.Hour)

	dm.db = db
	dm.logger.Info("Database connection established",
		slog.String("type", dm.cfg.DatabaseType),
		slog.Int("max_open_conns", dm.cfg.GetMaxOpenConns()))
	return nil
}

// sqliteDSN enables WAL, a busy timeout and immediate transactions so
// concurrent beacons queue instead of failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	return path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
}

func gormLogLevel(cfg *config.Config) logger.LogLevel {
	if cfg.IsTest() {
		return logger.Silent
	}
	if cfg.LogLevel == config.LogLevelDebug {
		return logger.Warn
	}
	return logger.Error
}

// GetConnection returns the open connection, or nil before Init.
func (dm *DBManager) GetConnection() *gorm.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

// MigrateDatabase creates or updates every table.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	// Run migrations in a transaction
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(Models()...)
	})
	if err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}

// CheckpointWAL flushes the SQLite write-ahead log. It is a no-op on PostgreSQL.
func (dm *DBManager) CheckpointWAL(mode string) error {
	db := dm.GetConnection()
	if db == nil || db.Dialector.Name() != "sqlite" {
		return nil
	}
	return db.Exec(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)).Error
}

// Ping checks that the database answers.
func (dm *DBManager) Ping(ctx context.Context) error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying pool.
func (dm *DBManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.db == nil {
		return nil
	}
	sqlDB, err := dm.db.DB()
	if err != nil {
		return err
	}
	dm.db = nil
	return sqlDB.Close()
}
