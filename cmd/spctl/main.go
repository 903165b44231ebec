// spctl - administrative commands for a storepulse installation
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"storepulse/internal"
	"storepulse/internal/events"
	"storepulse/internal/jobs"
	"storepulse/internal/seeder"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&SeedCommand{},
	&ExcludedIPsCommand{},
	&GeoUpdateCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	if _, ok := cmd.(*HelpCommand); ok {
		_ = cmd.Execute(ctx, nil, args)
		return
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}

	execErr := cmd.Execute(ctx, app, args)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer shutdownCancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: Cleanup error: %v", err)
	}

	if execErr != nil {
		log.Fatalf("Command failed: %v", execErr)
	}
	log.Printf("Command %s completed successfully", cmd.Name())
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand populates the DB with sample storefront traffic
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample visitor events" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	count := fs.Int("events", 10000, "number of beacons to generate")
	days := fs.Int("days", 30, "spread events over this many past days")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return seeder.NewSeeder(app.DBManager, app.Logger, *count, *days).Run(ctx)
}

// ExcludedIPsCommand lists or replaces the excluded IP list
type ExcludedIPsCommand struct{}

func (c *ExcludedIPsCommand) Name() string { return "excluded-ips" }
func (c *ExcludedIPsCommand) Description() string {
	return "Lists excluded IPs, or replaces them: excluded-ips set <ip|cidr>[,...]"
}

func (c *ExcludedIPsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	list := app.Handlers.ExcludedIPs

	if len(args) >= 1 && args[0] == "set" {
		var entries []string
		if len(args) >= 2 {
			entries = strings.Split(args[1], ",")
		}
		stored, err := list.Replace(ctx, entries)
		if err != nil {
			return err
		}
		fmt.Printf("Excluded IPs updated (%d entries)\n", len(stored))
		return nil
	}

	ips, err := list.List(ctx)
	if err != nil {
		return err
	}
	if len(ips) == 0 {
		fmt.Println("No excluded IPs")
		return nil
	}
	for _, ip := range ips {
		fmt.Println(ip)
	}
	return nil
}

// GeoUpdateCommand downloads or reloads the GeoLite database once
type GeoUpdateCommand struct{}

func (c *GeoUpdateCommand) Name() string        { return "geo-update" }
func (c *GeoUpdateCommand) Description() string { return "Downloads the GeoLite2 database if due" }

func (c *GeoUpdateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	job := jobs.NewGeoLiteUpdaterJob(app.Config, app.DBManager, app.Geo, app.Logger, 0)
	if err := job.Run(ctx); err != nil {
		return err
	}
	log.Printf("GeoLite database loaded: %v", app.Geo.HasDatabase())
	return nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if err := app.DBManager.Ping(ctx); err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	db := app.DBManager.GetConnection()

	var eventCount, botHits int64
	if err := db.WithContext(ctx).Model(&events.VisitorEvent{}).Count(&eventCount).Error; err != nil {
		return fmt.Errorf("count events: %w", err)
	}
	if err := db.WithContext(ctx).Model(&events.BotStat{}).Select("COALESCE(SUM(hits), 0)").Scan(&botHits).Error; err != nil {
		return fmt.Errorf("count bot hits: %w", err)
	}

	log.Println("System Status:")
	log.Printf("- Database: %s (connected)", app.Config.DatabaseType)
	log.Printf("- Visitor events: %d", eventCount)
	log.Printf("- Bot hits: %d", botHits)
	log.Printf("- GeoLite database: %v", app.Geo.HasDatabase())
	log.Printf("- Live relay: %v", app.Config.LiveRelayEnabled())

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	stats := sqlDB.Stats()
	app.Logger.Debug("Connection pool",
		slog.Int("max_open", stats.MaxOpenConnections),
		slog.Int("open", stats.OpenConnections),
		slog.Int("in_use", stats.InUse),
		slog.Int("idle", stats.Idle))
	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := flag.Args()
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: spctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
