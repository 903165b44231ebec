package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"storepulse/internal/events"
	"storepulse/internal/pkg/user_agent"
	"storepulse/internal/timeframe"
)

// AutomatedBotName labels stored events whose client reported webdriver control.
const AutomatedBotName = user_agent.AutomatedClient

// BotStats splits traffic between humans and bots.
type BotStats struct {
	Humans          int64               `json:"humans"`
	Bots            int64               `json:"bots"`
	HumanPercentage float64             `json:"humanPercentage"`
	BotPercentage   float64             `json:"botPercentage"`
	BotTypes        []MetricCountResult `json:"botTypes"`
}

// Interactions summarises everything that is not a page view.
type Interactions struct {
	EventTypes        []MetricCountResult `json:"eventTypes"`
	ButtonClicks      []MetricCountResult `json:"buttonClicks"`
	TotalInteractions int64               `json:"totalInteractions"`
}

// Bots counts human events against flagged events plus tallied crawler hits.
func (s *Service) Bots(ctx context.Context, w timeframe.Window) (*BotStats, error) {
	defer observe("bots", time.Now())

	db := s.db.WithContext(ctx)

	humans, err := events.CountEvents(db, events.EventFilters{From: w.Start, To: w.End, HumanOnly: true})
	if err != nil {
		return nil, err
	}
	total, err := events.CountEvents(db, events.EventFilters{From: w.Start, To: w.End})
	if err != nil {
		return nil, err
	}
	automated := total - humans

	var tallies []MetricCountResult
	query := db.Model(&events.BotStat{})
	// Tallies are hourly, so the bucket holding Start counts in full.
	if w.HasStart() {
		query = query.Where("hour >= ?", w.Start.Truncate(time.Hour))
	}
	if w.HasEnd() {
		query = query.Where("hour < ?", w.End)
	}
	err = query.
		Select("bot_name AS name, CAST(SUM(hits) AS BIGINT) AS count").
		Group("bot_name").
		Scan(&tallies).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching bot tallies: %w", err)
	}

	bots := automated
	botTypes := make([]MetricCountResult, 0, len(tallies)+1)
	for _, tally := range tallies {
		bots += tally.Count
		botTypes = append(botTypes, tally)
	}
	if automated > 0 {
		botTypes = append(botTypes, MetricCountResult{Name: AutomatedBotName, Count: automated})
	}
	sortCounts(botTypes)

	return &BotStats{
		Humans:          humans,
		Bots:            bots,
		HumanPercentage: percentage(humans, humans+bots),
		BotPercentage:   percentage(bots, humans+bots),
		BotTypes:        botTypes,
	}, nil
}

// Interactions returns counts per custom event type and per clicked button.
func (s *Service) Interactions(ctx context.Context, w timeframe.Window) (*Interactions, error) {
	defer observe("interactions", time.Now())

	var eventTypes []MetricCountResult
	err := s.humanEvents(ctx, w).
		Where("event_type <> ?", events.EventTypePageView).
		Select("event_type AS name, COUNT(*) AS count").
		Group("event_type").
		Scan(&eventTypes).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching event types: %w", err)
	}

	var total int64
	for _, et := range eventTypes {
		total += et.Count
	}
	if eventTypes == nil {
		eventTypes = []MetricCountResult{}
	}
	sortCounts(eventTypes)

	var payloads []string
	err = s.humanEvents(ctx, w).
		Where("event_type = ?", events.EventTypeButtonClick).
		Pluck("event_data", &payloads).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching button clicks: %w", err)
	}

	clicks := make(map[string]int64)
	for _, raw := range payloads {
		name := events.UnknownButton
		if data, ok := events.DecodeEventData(events.EventTypeButtonClick, []byte(raw)).(events.ButtonClickData); ok && data.ButtonName != "" {
			name = data.ButtonName
		}
		clicks[name]++
	}
	buttons := make([]MetricCountResult, 0, len(clicks))
	for name, count := range clicks {
		buttons = append(buttons, MetricCountResult{Name: name, Count: count})
	}
	sortCounts(buttons)
	if len(buttons) > s.opts.BreakdownLimit {
		buttons = buttons[:s.opts.BreakdownLimit]
	}

	return &Interactions{
		EventTypes:        eventTypes,
		ButtonClicks:      buttons,
		TotalInteractions: total,
	}, nil
}

// sortCounts orders by count descending, then name.
func sortCounts(items []MetricCountResult) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Name < items[j].Name
	})
}
