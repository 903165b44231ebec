package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/internal/config"
	"storepulse/internal/database"
	"storepulse/internal/events"
	"storepulse/internal/settings"
	"storepulse/internal/testsupport"
)

func TestDBManagerSQLiteLifecycle(t *testing.T) {
	cfg := testsupport.TestConfig()
	cfg.DatabaseType = config.SQLiteDatabase
	cfg.DatabasePath = filepath.Join(t.TempDir(), "nested")
	cfg.DatabaseName = ""

	dm := database.NewDBManager(cfg, testsupport.GetLogger())
	assert.Nil(t, dm.GetConnection(), "no connection before Init")
	assert.Error(t, dm.MigrateDatabase())

	require.NoError(t, dm.Init())
	require.NoError(t, dm.Init(), "Init is idempotent")
	require.NoError(t, dm.MigrateDatabase())
	require.NoError(t, dm.Ping(context.Background()))

	db := dm.GetConnection()
	require.NotNil(t, db)
	assert.FileExists(t, cfg.GetDatabasePath())

	for _, model := range database.Models() {
		assert.True(t, db.Migrator().HasTable(model))
	}

	var journal string
	require.NoError(t, db.Raw("PRAGMA journal_mode").Scan(&journal).Error)
	assert.Equal(t, "wal", journal)

	require.NoError(t, dm.CheckpointWAL("PASSIVE"))

	require.NoError(t, dm.Close())
	require.NoError(t, dm.Close())
	assert.Nil(t, dm.GetConnection())
	assert.Error(t, dm.Ping(context.Background()))
}

func TestMigrationIsRepeatable(t *testing.T) {
	dm, _ := testsupport.SetupTestDBManager(t)

	require.NoError(t, dm.MigrateDatabase())
	require.NoError(t, dm.MigrateDatabase())

	db := dm.GetConnection()
	assert.True(t, db.Migrator().HasIndex(&events.BotStat{}, "idx_bot_stats_name_hour"))
	assert.True(t, db.Migrator().HasTable(&settings.Setting{}))
}
