package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storepulse/internal/events"
	"storepulse/internal/timeframe"
	"storepulse/internal/visitors"
)

// changeBaselineDays is the number of days averaged for the visitor change widget.
const changeBaselineDays = 30

// VisitorChange compares today's traffic with the recent daily average.
type VisitorChange struct {
	TodayCount       int64   `json:"todayCount"`
	AverageDaily     float64 `json:"averageDaily"`
	PercentageChange float64 `json:"percentageChange"`
}

// ActivityEvent is the feed representation of a stored event.
type ActivityEvent struct {
	ID               string           `json:"id"`
	Timestamp        time.Time        `json:"timestamp"`
	VisitorID        string           `json:"visitorId"`
	VisitorAlias     string           `json:"visitorAlias"`
	IP               string           `json:"ip"`
	Path             string           `json:"path"`
	Referrer         string           `json:"referrer,omitempty"`
	ReferrerHost     string           `json:"referrerHost"`
	ReferrerCategory string           `json:"referrerCategory"`
	City             *string          `json:"city"`
	Country          *string          `json:"country"`
	CountryCode      *string          `json:"countryCode"`
	Latitude         *float64         `json:"latitude"`
	Longitude        *float64         `json:"longitude"`
	DeviceType       string           `json:"deviceType"`
	Browser          string           `json:"browser"`
	OS               string           `json:"os"`
	EventType        events.EventType `json:"eventType"`
	EventData        json.RawMessage  `json:"eventData,omitempty"`
	IsBot            bool             `json:"isBot"`
}

// Snapshot is what a live client receives on connect.
type Snapshot struct {
	Count    int64           `json:"count"`
	Visitors []ActivityEvent `json:"visitors"`
}

// VisitorChange compares human events today with the daily average of the
// preceding 30 days. It ignores the selected range.
func (s *Service) VisitorChange(ctx context.Context, w timeframe.Window) (*VisitorChange, error) {
	defer observe("change", time.Now())

	loc := w.Location()
	todayStart := timeframe.StartOfDay(w.Now, loc)
	baselineStart := todayStart.In(loc).AddDate(0, 0, -changeBaselineDays).UTC()

	today := timeframe.Window{Start: todayStart, Now: w.Now, Loc: loc}
	baseline := timeframe.Window{Start: baselineStart, End: todayStart, Now: w.Now, Loc: loc}

	var todayCount, baselineCount int64
	if err := s.humanEvents(ctx, today).Count(&todayCount).Error; err != nil {
		return nil, fmt.Errorf("error counting today's events: %w", err)
	}
	if err := s.humanEvents(ctx, baseline).Count(&baselineCount).Error; err != nil {
		return nil, fmt.Errorf("error counting baseline events: %w", err)
	}

	average := float64(baselineCount) / changeBaselineDays
	return &VisitorChange{
		TodayCount:       todayCount,
		AverageDaily:     round2(average),
		PercentageChange: percentageChange(float64(todayCount), average),
	}, nil
}

// ClampActivityLimit applies the feed's default and bounds.
func (s *Service) ClampActivityLimit(limit int) int {
	if limit <= 0 {
		return defaultActivityLimit
	}
	return min(limit, s.opts.ActivityMaxLimit)
}

// RecentActivity returns the newest stored events, newest first.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]ActivityEvent, error) {
	defer observe("activity", time.Now())

	return s.activity(ctx, timeframe.Window{}, s.ClampActivityLimit(limit))
}

// TodaySnapshot returns today's human event count and newest events.
func (s *Service) TodaySnapshot(ctx context.Context, today timeframe.Window) (*Snapshot, error) {
	defer observe("snapshot", time.Now())

	var count int64
	if err := s.humanEvents(ctx, today).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("error counting today's events: %w", err)
	}

	feed, err := s.activity(ctx, today, s.opts.ActivityMaxLimit)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Count: count, Visitors: feed}, nil
}

func (s *Service) activity(ctx context.Context, w timeframe.Window, limit int) ([]ActivityEvent, error) {
	list, err := events.GetFilteredEvents(s.db.WithContext(ctx), events.EventFilters{
		From:  w.Start,
		To:    w.End,
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}

	feed := make([]ActivityEvent, 0, len(list))
	for i := range list {
		feed = append(feed, s.toActivity(&list[i]))
	}
	return feed, nil
}

func (s *Service) toActivity(e *events.VisitorEvent) ActivityEvent {
	ip := e.IP
	if s.opts.AnonymizeIPs {
		ip = visitors.AnonymizeIP(ip)
	}

	var data json.RawMessage
	if e.EventData != "" {
		data = json.RawMessage(e.EventData)
	}

	return ActivityEvent{
		ID:               e.ID,
		Timestamp:        e.Timestamp,
		VisitorID:        e.VisitorID,
		VisitorAlias:     visitors.Alias(e.VisitorID),
		IP:               ip,
		Path:             e.Path,
		Referrer:         e.Referrer,
		ReferrerHost:     e.ReferrerHost,
		ReferrerCategory: e.ReferrerCategory,
		City:             e.City,
		Country:          e.Country,
		CountryCode:      e.CountryCode,
		Latitude:         e.Latitude,
		Longitude:        e.Longitude,
		DeviceType:       e.DeviceType,
		Browser:          e.Browser,
		OS:               e.OS,
		EventType:        e.EventType,
		EventData:        data,
		IsBot:            e.IsBot,
	}
}

// countNewVisitors counts visitors whose first ever event falls inside the window.
func (s *Service) countNewVisitors(ctx context.Context, w timeframe.Window, visitorIDs []string) (int64, error) {
	firstSeen, err := events.FirstSeen(s.db.WithContext(ctx), visitorIDs)
	if err != nil {
		return 0, err
	}

	var count int64
	for _, id := range visitorIDs {
		if first, ok := firstSeen[id]; ok && w.Contains(first) {
			count++
		}
	}
	return count, nil
}
