package events

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Insert appends one event. The timestamp is assigned here when the caller
// left it empty, and is always stored in UTC so text comparisons in SQLite
// order correctly.
func Insert(db *gorm.DB, event *VisitorEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Timestamp = event.Timestamp.UTC()
	if err := db.Create(event).Error; err != nil {
		return fmt.Errorf("insert visitor event: %w", err)
	}
	return nil
}

// RecordBotHit increments the hourly tally for a bot family.
func RecordBotHit(db *gorm.DB, botName string, at time.Time) error {
	hour := at.UTC().Truncate(time.Hour)
	query := `
		INSERT INTO bot_stats (bot_name, hour, hits)
		VALUES (?, ?, 1)
		ON CONFLICT (bot_name, hour) DO UPDATE SET
			hits = bot_stats.hits + 1
	`
	if err := db.Exec(query, botName, hour).Error; err != nil {
		return fmt.Errorf("record bot hit: %w", err)
	}
	return nil
}

// EventFilters narrows GetFilteredEvents.
type EventFilters struct {
	From       time.Time // inclusive, zero means unbounded
	To         time.Time // exclusive, zero means unbounded
	EventTypes []EventType
	HumanOnly  bool
	Limit      int
}

// Apply adds the filters' WHERE clauses to a query over visitor_events.
func (f EventFilters) Apply(query *gorm.DB) *gorm.DB {
	if !f.From.IsZero() {
		query = query.Where("timestamp >= ?", f.From)
	}
	if !f.To.IsZero() {
		query = query.Where("timestamp < ?", f.To)
	}
	if len(f.EventTypes) == 1 {
		query = query.Where("event_type = ?", f.EventTypes[0])
	} else if len(f.EventTypes) > 1 {
		query = query.Where("event_type IN ?", f.EventTypes)
	}
	if f.HumanOnly {
		query = query.Where("is_bot = ?", false)
	}
	return query
}

// GetFilteredEvents returns events matching filters, newest first.
func GetFilteredEvents(db *gorm.DB, filters EventFilters) ([]VisitorEvent, error) {
	query := filters.Apply(db.Model(&VisitorEvent{}))
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}

	var events []VisitorEvent
	if err := query.Order("timestamp DESC").Order("id DESC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("get filtered events: %w", err)
	}
	return events, nil
}

// CountEvents counts events matching filters.
func CountEvents(db *gorm.DB, filters EventFilters) (int64, error) {
	var count int64
	if err := filters.Apply(db.Model(&VisitorEvent{})).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// FirstSeen returns the earliest event timestamp of each given visitor.
func FirstSeen(db *gorm.DB, visitorIDs []string) (map[string]time.Time, error) {
	firstSeen := make(map[string]time.Time, len(visitorIDs))
	if len(visitorIDs) == 0 {
		return firstSeen, nil
	}

	type row struct {
		VisitorID string
		FirstSeen string
	}

	const chunkSize = 500
	for start := 0; start < len(visitorIDs); start += chunkSize {
		end := min(start+chunkSize, len(visitorIDs))

		var rows []row
		err := db.Model(&VisitorEvent{}).
			Select("visitor_id, MIN(timestamp) AS first_seen").
			Where("visitor_id IN ?", visitorIDs[start:end]).
			Group("visitor_id").
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("get first seen: %w", err)
		}
		for _, r := range rows {
			first, err := ParseDBTime(r.FirstSeen)
			if err != nil {
				return nil, fmt.Errorf("get first seen: %w", err)
			}
			firstSeen[r.VisitorID] = first
		}
	}
	return firstSeen, nil
}

// EarliestTimestamp returns the oldest stored event time, or zero when the store is empty.
func EarliestTimestamp(db *gorm.DB) (time.Time, error) {
	var event VisitorEvent
	err := db.Model(&VisitorEvent{}).Order("timestamp ASC").Limit(1).Find(&event).Error
	if err != nil {
		return time.Time{}, fmt.Errorf("get earliest timestamp: %w", err)
	}
	return event.Timestamp, nil
}

// Aggregates such as MIN(timestamp) come back from sqlite as text and from
// postgres as time.Time, which database/sql renders as RFC 3339.
var dbTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// ParseDBTime parses a timestamp rendered as text by the database driver.
func ParseDBTime(value string) (time.Time, error) {
	for _, layout := range dbTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
