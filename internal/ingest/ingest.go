// Package ingest turns tracking beacons into stored visitor events.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"storepulse/internal/events"
	"storepulse/internal/live"
	"storepulse/internal/metrics"
	"storepulse/internal/pkg/geoip"
	"storepulse/internal/pkg/referrers"
	"storepulse/internal/pkg/user_agent"
	"storepulse/internal/visitors"
)

// Skip reasons reported to the tracking script.
const (
	ReasonBot      = "bot"
	ReasonExcluded = "excluded"
)

const (
	maxReferrerLength = 2048
	maxHintLength     = 64
)

// Beacon is one tracking request as received from the browser.
type Beacon struct {
	Path      string
	Referrer  string
	EventType string
	EventData json.RawMessage
	VisitorID string
	UTM       events.UTM

	ScreenWidth  int
	ScreenHeight int
	Language     string
	Timezone     string
	Webdriver    bool

	UserAgent string
	IP        string

	// Timestamp backdates the event. Zero means now; the HTTP endpoint never sets it.
	Timestamp time.Time
}

// Outcome describes what happened to a beacon.
type Outcome struct {
	Skipped bool
	Reason  string
	Event   *events.VisitorEvent
}

// ExclusionList reports IPs whose beacons are ignored.
type ExclusionList interface {
	Contains(ctx context.Context, ip string) (bool, error)
}

// Options tunes a Service.
type Options struct {
	GeoTimeout  time.Duration
	VisitorSalt string
}

// Service runs the ingest pipeline: classify, resolve, persist, broadcast.
type Service struct {
	db          *gorm.DB
	resolver    geoip.Resolver
	broadcaster live.Broadcaster
	excluded    ExclusionList
	logger      *slog.Logger
	opts        Options
	now         func() time.Time
}

// NewService wires the pipeline. excluded may be nil.
func NewService(db *gorm.DB, resolver geoip.Resolver, broadcaster live.Broadcaster, excluded ExclusionList, logger *slog.Logger, opts Options) *Service {
	if opts.GeoTimeout <= 0 {
		opts.GeoTimeout = 3 * time.Second
	}
	return &Service{
		db:          db,
		resolver:    resolver,
		broadcaster: broadcaster,
		excluded:    excluded,
		logger:      logger,
		opts:        opts,
		now:         time.Now,
	}
}

// Track processes one beacon. Only storage failures are returned as errors;
// classifier, exclusion and geolocation problems degrade the stored event.
func (s *Service) Track(ctx context.Context, b Beacon) (Outcome, error) {
	client := user_agent.Classify(b.UserAgent, user_agent.ClientHints{
		ScreenWidth:  b.ScreenWidth,
		ScreenHeight: b.ScreenHeight,
		Webdriver:    b.Webdriver,
	})

	seenAt := b.Timestamp
	if seenAt.IsZero() {
		seenAt = s.now()
	}

	if client.IsBot {
		s.recordBot(ctx, client.BotName, seenAt)
		return Outcome{Skipped: true, Reason: ReasonBot}, nil
	}

	if s.isExcluded(ctx, b.IP) {
		metrics.RecordBeacon(metrics.OutcomeExcluded)
		return Outcome{Skipped: true, Reason: ReasonExcluded}, nil
	}

	ref := referrers.Classify(b.Referrer)
	path, urlUTM := events.ParseLocation(b.Path)
	utm := b.UTM.Merge(urlUTM)

	event := &events.VisitorEvent{
		IP:               b.IP,
		VisitorID:        visitors.BuildVisitorID(b.VisitorID, b.IP, b.UserAgent, s.opts.VisitorSalt),
		Path:             path,
		Referrer:         truncate(strings.TrimSpace(b.Referrer), maxReferrerLength),
		ReferrerHost:     ref.Host,
		ReferrerCategory: string(ref.Category),
		ReferrerPlatform: ref.Platform,
		UTMSource:        utm.Source,
		UTMMedium:        utm.Medium,
		UTMCampaign:      utm.Campaign,
		UTMTerm:          utm.Term,
		UTMContent:       utm.Content,
		DeviceType:       client.DeviceType,
		Browser:          client.Browser,
		OS:               client.OS,
		DeviceBrand:      client.DeviceBrand,
		ScreenResolution: client.ScreenResolution,
		Language:         truncate(strings.TrimSpace(b.Language), maxHintLength),
		Timezone:         truncate(strings.TrimSpace(b.Timezone), maxHintLength),
		EventType:        events.NormalizeEventType(b.EventType),
		EventData:        events.EncodeEventData(b.EventData),
		IsBot:            client.Automated,
	}

	s.applyLocation(ctx, event, b.IP)

	event.Timestamp = seenAt.UTC()
	if err := events.Insert(s.db.WithContext(ctx), event); err != nil {
		metrics.RecordBeacon(metrics.OutcomeError)
		s.logger.Error("Failed to store visitor event",
			slog.String("path", event.Path),
			slog.String("event_type", string(event.EventType)),
			slog.Any("error", err))
		return Outcome{}, fmt.Errorf("track visitor: %w", err)
	}
	metrics.RecordBeacon(metrics.OutcomeStored)

	if s.broadcaster != nil {
		s.broadcaster.Notify(live.TopicVisitors)
	}

	s.logger.Debug("Visitor event stored",
		slog.String("id", event.ID),
		slog.String("path", event.Path),
		slog.String("event_type", string(event.EventType)),
		slog.String("referrer_category", event.ReferrerCategory))

	return Outcome{Event: event}, nil
}

func (s *Service) recordBot(ctx context.Context, botName string, seenAt time.Time) {
	metrics.RecordBeacon(metrics.OutcomeBot)
	metrics.RecordBotHit(botName)
	if err := events.RecordBotHit(s.db.WithContext(ctx), botName, seenAt); err != nil {
		s.logger.Warn("Failed to tally bot hit", slog.String("bot", botName), slog.Any("error", err))
	}
}

func (s *Service) isExcluded(ctx context.Context, ip string) bool {
	if s.excluded == nil {
		return false
	}
	excluded, err := s.excluded.Contains(ctx, ip)
	if err != nil {
		s.logger.Warn("Failed to check excluded IPs", slog.Any("error", err))
		return false
	}
	return excluded
}

// applyLocation fills the geo columns. Any failure leaves them null.
func (s *Service) applyLocation(ctx context.Context, event *events.VisitorEvent, ip string) {
	if s.resolver == nil {
		return
	}

	geoCtx, cancel := context.WithTimeout(ctx, s.opts.GeoTimeout)
	defer cancel()

	loc, err := s.resolver.Resolve(geoCtx, ip)
	if err != nil || loc == nil {
		metrics.RecordGeoLookup("none", "miss")
		s.logger.Debug("Geolocation unavailable", slog.String("ip", ip), slog.Any("error", err))
		return
	}
	metrics.RecordGeoLookup(loc.Source, "hit")

	event.City = optional(loc.City)
	event.Country = optional(loc.Country)
	event.CountryCode = optional(strings.ToUpper(loc.CountryCode))
	lat, lon := loc.Latitude, loc.Longitude
	event.Latitude = &lat
	event.Longitude = &lon
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func truncate(value string, limit int) string {
	if len(value) > limit {
		return value[:limit]
	}
	return value
}
