package testsupport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storepulse/internal/config"
	"storepulse/internal/database"
	"storepulse/internal/events"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// SetupTestDB creates a test database with all models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	// A single connection keeps the shared in-memory database alive and
	// serialises writers the way WAL does on disk.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// TestConfig returns a copy of the configuration forced into the test environment.
func TestConfig() *config.Config {
	cfg := *config.GetConfig()
	cfg.Environment = config.Test
	cfg.Timezone = "UTC"
	cfg.AdminAPIKey = ""
	cfg.RedisURL = ""
	cfg.GeoDBPath = ""
	cfg.GeoServiceURL = ""
	cfg.GeoLicenseKey = ""
	cfg.AnonymizeIPs = false
	return &cfg
}

// SetupTestDBManager wraps a fresh test database in a DBManager.
func SetupTestDBManager(t *testing.T) (*database.DBManager, *slog.Logger) {
	t.Helper()
	logger := GetLogger()
	return database.NewDBManagerFromConnection(SetupTestDB(t), logger), logger
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)
	if len(tableNames) == 0 {
		return
	}

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tableNames {
			tx.Exec("DELETE FROM " + table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// EventOption customises an event built by CreateEvent.
type EventOption func(*events.VisitorEvent)

// WithType sets the event type and payload.
func WithType(eventType events.EventType, data any) EventOption {
	return func(e *events.VisitorEvent) {
		e.EventType = eventType
		if data == nil {
			e.EventData = ""
			return
		}
		raw, err := json.Marshal(data)
		if err != nil {
			panic(fmt.Sprintf("testsupport: marshal event data: %v", err))
		}
		e.EventData = string(raw)
	}
}

// WithDevice sets the device buckets.
func WithDevice(deviceType, browser, os, brand string) EventOption {
	return func(e *events.VisitorEvent) {
		e.DeviceType = deviceType
		e.Browser = browser
		e.OS = os
		e.DeviceBrand = brand
	}
}

// WithReferrer sets the classified referrer columns.
func WithReferrer(raw, host, category, platform string) EventOption {
	return func(e *events.VisitorEvent) {
		e.Referrer = raw
		e.ReferrerHost = host
		e.ReferrerCategory = category
		e.ReferrerPlatform = platform
	}
}

// WithUTM sets campaign parameters.
func WithUTM(source, medium, campaign string) EventOption {
	return func(e *events.VisitorEvent) {
		e.UTMSource = source
		e.UTMMedium = medium
		e.UTMCampaign = campaign
	}
}

// WithLocation sets the geolocation columns.
func WithLocation(city, country, code string, lat, lon float64) EventOption {
	return func(e *events.VisitorEvent) {
		e.City = &city
		e.Country = &country
		e.CountryCode = &code
		e.Latitude = &lat
		e.Longitude = &lon
	}
}

// WithIP sets the client IP.
func WithIP(ip string) EventOption {
	return func(e *events.VisitorEvent) { e.IP = ip }
}

// WithScreen sets the screen resolution.
func WithScreen(resolution string) EventOption {
	return func(e *events.VisitorEvent) { e.ScreenResolution = resolution }
}

// AsAutomated marks the event as self-reported automation.
func AsAutomated() EventOption {
	return func(e *events.VisitorEvent) { e.IsBot = true }
}

// CreateEvent inserts a page view for visitorID at path and timestamp, adjusted by opts.
func CreateEvent(t *testing.T, db *gorm.DB, visitorID, path string, timestamp time.Time, opts ...EventOption) *events.VisitorEvent {
	t.Helper()

	event := &events.VisitorEvent{
		Timestamp:        timestamp,
		IP:               "203.0.113.10",
		VisitorID:        visitorID,
		Path:             path,
		ReferrerHost:     "Direct",
		ReferrerCategory: "Direct",
		DeviceType:       "desktop",
		Browser:          "chrome",
		OS:               "windows",
		DeviceBrand:      "unknown",
		EventType:        events.EventTypePageView,
	}
	for _, opt := range opts {
		opt(event)
	}

	require.NoError(t, events.Insert(db, event))
	return event
}
