// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase   = "sqlite"
	PostgresDatabase = "postgres"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName               string   `mapstructure:"appname"`
	AppPort               string   `mapstructure:"appport"`
	Environment           string   `mapstructure:"environment"`
	LogLevel              LogLevel `mapstructure:"loglevel"`
	SessionTimeoutSeconds int      `mapstructure:"sessiontimeoutseconds"`
	AdminAPIKey           string   `mapstructure:"adminapikey"`
	RateLimitPerMinute    int      `mapstructure:"ratelimitperminute"`
	VisitorSalt           string   `mapstructure:"visitorsalt"`

	// Storage
	DatabasePath         string `mapstructure:"storagepath"`
	DatabaseName         string `mapstructure:"-"` // Derived from other settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseDSN          string `mapstructure:"dbdsn"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Geolocation
	GeoDBPath       string `mapstructure:"geodbpath"`
	GeoServiceURL   string `mapstructure:"geoserviceurl"`
	GeoAPIKey       string `mapstructure:"geoapikey"`
	GeoTimeoutMilli int    `mapstructure:"geotimeoutms"`
	GeoLicenseKey   string `mapstructure:"geolicensekey"`
	GeoDownloadURL  string `mapstructure:"geodownloadurl"`

	// Live fan-out
	RedisURL     string `mapstructure:"redisurl"`
	RedisChannel string `mapstructure:"redischannel"`

	// Query layer
	Timezone           string `mapstructure:"timezone"`
	BreakdownLimit     int    `mapstructure:"breakdownlimit"`
	GeoPointsLimit     int    `mapstructure:"geopointslimit"`
	ActivityMaxLimit   int    `mapstructure:"activitymax"`
	AnonymizeIPs       bool   `mapstructure:"anonymizeips"`
	ExcludedIPsTTLSecs int    `mapstructure:"excludedipsttlseconds"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		// A missing .env is the normal case outside local development.
		_ = godotenv.Load()

		v := viper.New()

		v.SetDefault("appname", "storepulse")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("sessiontimeoutseconds", 1800)
		v.SetDefault("adminapikey", "")
		v.SetDefault("ratelimitperminute", 120)
		v.SetDefault("visitorsalt", "storepulse")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbdsn", "")
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("geoserviceurl", "http://ip-api.com/json")
		v.SetDefault("geoapikey", "")
		v.SetDefault("geotimeoutms", 3000)
		v.SetDefault("geolicensekey", "")
		v.SetDefault("geodownloadurl", "https://download.maxmind.com/app/geoip_download?edition_id=GeoLite2-City&license_key=%s&suffix=tar.gz")
		v.SetDefault("redisurl", "")
		v.SetDefault("redischannel", "storepulse:visitors")
		v.SetDefault("timezone", "UTC")
		v.SetDefault("breakdownlimit", 20)
		v.SetDefault("geopointslimit", 500)
		v.SetDefault("activitymax", 500)
		v.SetDefault("anonymizeips", false)
		v.SetDefault("excludedipsttlseconds", 60)
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("jobintervalseconds", 3600)

		v.BindEnv("appname", "STOREPULSE_APP_NAME")
		v.BindEnv("appport", "STOREPULSE_APP_PORT")
		v.BindEnv("environment", "STOREPULSE_ENV")
		v.BindEnv("loglevel", "STOREPULSE_LOG_LEVEL")
		v.BindEnv("sessiontimeoutseconds", "STOREPULSE_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("adminapikey", "STOREPULSE_ADMIN_API_KEY")
		v.BindEnv("ratelimitperminute", "STOREPULSE_RATE_LIMIT_PER_MINUTE")
		v.BindEnv("visitorsalt", "STOREPULSE_VISITOR_SALT")
		v.BindEnv("storagepath", "STOREPULSE_STORAGE_PATH")
		v.BindEnv("dbtype", "STOREPULSE_DB_TYPE")
		v.BindEnv("dbdsn", "STOREPULSE_DB_DSN")
		v.BindEnv("dbmaxopenconns", "STOREPULSE_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "STOREPULSE_DB_MAX_IDLE_CONNS")
		v.BindEnv("geodbpath", "STOREPULSE_GEO_DB_PATH")
		v.BindEnv("geoserviceurl", "STOREPULSE_GEO_SERVICE_URL")
		v.BindEnv("geoapikey", "STOREPULSE_GEO_API_KEY")
		v.BindEnv("geotimeoutms", "STOREPULSE_GEO_TIMEOUT_MS")
		v.BindEnv("geolicensekey", "STOREPULSE_GEO_LICENSE_KEY")
		v.BindEnv("geodownloadurl", "STOREPULSE_GEO_DOWNLOAD_URL")
		v.BindEnv("redisurl", "STOREPULSE_REDIS_URL")
		v.BindEnv("redischannel", "STOREPULSE_REDIS_CHANNEL")
		v.BindEnv("timezone", "STOREPULSE_TIMEZONE")
		v.BindEnv("breakdownlimit", "STOREPULSE_BREAKDOWN_LIMIT")
		v.BindEnv("geopointslimit", "STOREPULSE_GEO_POINTS_LIMIT")
		v.BindEnv("activitymax", "STOREPULSE_ACTIVITY_MAX")
		v.BindEnv("anonymizeips", "STOREPULSE_ANONYMIZE_IPS")
		v.BindEnv("excludedipsttlseconds", "STOREPULSE_EXCLUDED_IPS_TTL_SECONDS")
		v.BindEnv("logsdir", "STOREPULSE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "STOREPULSE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "STOREPULSE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "STOREPULSE_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("jobintervalseconds", "STOREPULSE_JOB_INTERVAL_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase:   true,
		PostgresDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}
	if c.DatabaseType == PostgresDatabase && c.DatabaseDSN == "" {
		return fmt.Errorf("database type %s requires STOREPULSE_DB_DSN", c.DatabaseType)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	if c.SessionTimeoutSeconds <= 0 {
		return fmt.Errorf("session timeout must be positive, got %d", c.SessionTimeoutSeconds)
	}

	return nil
}

// GetDatabasePath returns the sqlite file path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// SessionGap is the inactivity gap that splits one visitor's page views into sessions.
func (c *Config) SessionGap() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

// GeoTimeout bounds the single outbound geolocation call made per beacon.
func (c *Config) GeoTimeout() time.Duration {
	if c.GeoTimeoutMilli <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.GeoTimeoutMilli) * time.Millisecond
}

// Location returns the configured reporting timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ExcludedIPsTTL returns how long the excluded IP list is cached in memory.
func (c *Config) ExcludedIPsTTL() time.Duration {
	return time.Duration(c.ExcludedIPsTTLSecs) * time.Second
}

// LiveRelayEnabled reports whether live signals are relayed through Redis.
func (c *Config) LiveRelayEnabled() bool {
	return strings.TrimSpace(c.RedisURL) != ""
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (in-memory sqlite is shared through a single connection)
// - Development/Production: 10 (allows concurrent reads for parallel dashboard queries)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
