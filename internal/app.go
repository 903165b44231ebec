// Package internal contains core application functionality
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"storepulse/internal/analytics"
	"storepulse/internal/config"
	"storepulse/internal/database"
	"storepulse/internal/http"
	"storepulse/internal/ingest"
	"storepulse/internal/jobs"
	"storepulse/internal/live"
	"storepulse/internal/logging"
	"storepulse/internal/pkg/geoip"
	"storepulse/internal/settings"
	"storepulse/internal/timeframe"
)

// Application holds every long-lived component of a running instance.
type Application struct {
	Config      *config.Config
	Logger      *slog.Logger
	DBManager   *database.DBManager
	Fiber       *fiber.App
	Hub         *live.Hub
	Broadcaster live.Broadcaster
	Geo         *geoip.Service
	Ingest      *ingest.Service
	Analytics   *analytics.Service
	Handlers    *http.Handlers
	Scheduler   *jobs.Scheduler

	redis       *redis.Client
	relay       *live.RedisBroadcaster
	relayCancel context.CancelFunc
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig opens and migrates the database described by cfg, then
// builds the application around it.
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := logging.New(cfg)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := dbManager.MigrateDatabase(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return NewAppWithDB(cfg, dbManager, logger)
}

// NewAppWithDB builds the application on an already migrated database.
func NewAppWithDB(cfg *config.Config, dbManager *database.DBManager, logger *slog.Logger) (*Application, error) {
	db := dbManager.GetConnection()
	if err := settings.SetupDefaultSettings(db); err != nil {
		return nil, fmt.Errorf("failed to set up default settings: %w", err)
	}

	app := &Application{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		Hub:       live.NewHub(logger, 0),
		Geo:       geoip.New(geoip.OptionsFromConfig(cfg), logger),
	}

	app.Broadcaster = app.Hub
	if cfg.LiveRelayEnabled() {
		client, err := live.NewRedisClient(context.Background(), cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis unavailable, live updates stay on this instance", slog.Any("error", err))
		} else {
			app.redis = client
			app.relay = live.NewRedisBroadcaster(client, cfg.RedisChannel, app.Hub, logger)
			app.Broadcaster = app.relay
		}
	}

	excluded := settings.NewExcludedIPs(db, cfg.ExcludedIPsTTL(), logger)

	app.Ingest = ingest.NewService(db, app.Geo, app.Broadcaster, excluded, logger, ingest.Options{
		GeoTimeout:  cfg.GeoTimeout(),
		VisitorSalt: cfg.VisitorSalt,
	})
	app.Analytics = analytics.NewService(db, logger, analytics.OptionsFromConfig(cfg))
	app.Handlers = &http.Handlers{
		Analytics:   app.Analytics,
		Parser:      timeframe.NewTimeFrameParser(cfg.Location()),
		Hub:         app.Hub,
		DBManager:   dbManager,
		ExcludedIPs: excluded,
		Logger:      logger,
	}
	app.Scheduler = jobs.NewDefaultScheduler(cfg, dbManager, app.Geo, logger)

	app.Fiber = fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		IdleTimeout:           60 * time.Second,
		ErrorHandler:          errorHandler(logger),
	})
	MountAppRoutes(app)

	return app, nil
}

// errorHandler renders unhandled errors in the API's JSON error shape.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal server error"

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
			message = fiberErr.Message
		} else {
			logger.Error("Unhandled request error",
				slog.String("path", c.Path()),
				slog.Any("error", err))
		}

		return c.Status(code).JSON(fiber.Map{"error": message})
	}
}

// StartBackground starts the jobs and the Redis relay.
func (a *Application) StartBackground() error {
	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start jobs: %w", err)
	}

	if a.relay != nil {
		ctx, cancel := context.WithCancel(context.Background())
		a.relayCancel = cancel
		go func() {
			if err := a.relay.Run(ctx); err != nil {
				a.Logger.Error("Live relay stopped, live signals stay on this instance", slog.Any("error", err))
			}
		}()
	}
	return nil
}

// Start runs the background components and serves HTTP until Shutdown.
func (a *Application) Start() error {
	if err := a.StartBackground(); err != nil {
		return err
	}

	addr := ":" + a.Config.AppPort
	a.Logger.Info("Starting server",
		slog.String("addr", addr),
		slog.String("environment", a.Config.Environment),
		slog.Bool("live_relay", a.relay != nil),
		slog.Bool("geo_database", a.Geo.HasDatabase()))
	return a.Fiber.Listen(addr)
}

// Shutdown stops the jobs and the relay, ends live streams, drains HTTP and
// closes the database.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Logger.Info("Shutting down")

	a.Scheduler.Stop()

	if a.relayCancel != nil {
		a.relayCancel()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("Failed to close Redis client", slog.Any("error", err))
		}
	}

	a.Hub.Close()

	var errs []error
	if err := a.Fiber.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown server: %w", err))
	}
	if err := a.Geo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close geo database: %w", err))
	}
	if err := a.DBManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
