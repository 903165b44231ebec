// Package analytics answers the dashboard's aggregate queries over the
// visitor event store.
//
// The package is organized into focused modules:
//   - analytics.go: Service, shared result types and query scopes
//   - sessions.go: session reconstruction from page views
//   - totals.go: Overview
//   - pageviews.go: Timeline and Pages
//   - metrics.go: Devices and Geographic breakdowns
//   - referrers.go: traffic source breakdowns
//   - revenue.go, conversions.go: e-commerce funnel and revenue
//   - interactions.go: Bots and Interactions
//   - visitors.go: visitor change, activity feed and today snapshot
//
// Every query is read-only, takes a timeframe.Window and returns zeroed or
// empty structures for windows without data.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"storepulse/internal/config"
	"storepulse/internal/events"
	"storepulse/internal/metrics"
	"storepulse/internal/timeframe"
)

// BreakdownItem is one row of a grouped breakdown.
type BreakdownItem struct {
	Name     string `json:"name"`
	Count    int64  `json:"count"`
	Visitors int64  `json:"visitors"`
}

// MetricCountResult represents a generic key-count pair for query results
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Options tunes the query layer.
type Options struct {
	SessionGap       time.Duration
	BreakdownLimit   int
	GeoPointsLimit   int
	ActivityMaxLimit int
	AnonymizeIPs     bool
}

// OptionsFromConfig reads query options from the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SessionGap:       cfg.SessionGap(),
		BreakdownLimit:   cfg.BreakdownLimit,
		GeoPointsLimit:   cfg.GeoPointsLimit,
		ActivityMaxLimit: cfg.ActivityMaxLimit,
		AnonymizeIPs:     cfg.AnonymizeIPs,
	}
}

const (
	defaultSessionGap     = 30 * time.Minute
	defaultBreakdownLimit = 20
	defaultGeoPointsLimit = 500
	defaultActivityMax    = 500
	defaultActivityLimit  = 50
)

// Service runs aggregate queries against the event store.
type Service struct {
	db     *gorm.DB
	logger *slog.Logger
	opts   Options
}

// NewService creates a query service. Zero options fall back to defaults.
func NewService(db *gorm.DB, logger *slog.Logger, opts Options) *Service {
	if opts.SessionGap <= 0 {
		opts.SessionGap = defaultSessionGap
	}
	if opts.BreakdownLimit <= 0 {
		opts.BreakdownLimit = defaultBreakdownLimit
	}
	if opts.GeoPointsLimit <= 0 {
		opts.GeoPointsLimit = defaultGeoPointsLimit
	}
	if opts.ActivityMaxLimit <= 0 {
		opts.ActivityMaxLimit = defaultActivityMax
	}
	return &Service{db: db, logger: logger, opts: opts}
}

// Options returns the effective options.
func (s *Service) Options() Options {
	return s.opts
}

// humanEvents returns a query over human events inside the window.
func (s *Service) humanEvents(ctx context.Context, w timeframe.Window) *gorm.DB {
	return events.EventFilters{From: w.Start, To: w.End, HumanOnly: true}.
		Apply(s.db.WithContext(ctx).Model(&events.VisitorEvent{}))
}

// pageViews narrows events to page views.
func (s *Service) pageViews(ctx context.Context, w timeframe.Window) *gorm.DB {
	return s.humanEvents(ctx, w).Where("event_type = ?", events.EventTypePageView)
}

// breakdown groups page views in the window by a column expression.
// Empty values are reported as fallback.
func (s *Service) breakdown(ctx context.Context, w timeframe.Window, column, fallback string, scopes ...func(*gorm.DB) *gorm.DB) ([]BreakdownItem, error) {
	expr := fmt.Sprintf("COALESCE(NULLIF(%s, ''), '%s')", column, fallback)

	var rows []BreakdownItem
	err := s.pageViews(ctx, w).
		Scopes(scopes...).
		Select(expr + " AS name, COUNT(*) AS count, COUNT(DISTINCT visitor_id) AS visitors").
		Group(expr).
		Order("count DESC").
		Order("name ASC").
		Limit(s.opts.BreakdownLimit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching %s breakdown: %w", column, err)
	}
	if rows == nil {
		rows = []BreakdownItem{}
	}
	return rows, nil
}

// observe records a widget's query latency. Use with defer.
func observe(widget string, start time.Time) {
	metrics.QueryDuration.WithLabelValues(widget).Observe(time.Since(start).Seconds())
}
