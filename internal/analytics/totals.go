package analytics

import (
	"context"
	"fmt"
	"time"

	"storepulse/internal/timeframe"
)

// Overview holds the headline numbers of a window.
type Overview struct {
	TotalPageViews     int64   `json:"totalPageViews"`
	TotalEvents        int64   `json:"totalEvents"`
	UniqueVisitors     int64   `json:"uniqueVisitors"`
	NewVisitors        int64   `json:"newVisitors"`
	ReturningVisitors  int64   `json:"returningVisitors"`
	TotalSessions      int64   `json:"totalSessions"`
	AvgSessionDuration float64 `json:"avgSessionDuration"`
	AvgPagesPerSession float64 `json:"avgPagesPerSession"`
	BounceRate         float64 `json:"bounceRate"`
}

// Overview computes totals, visitor split and session statistics.
func (s *Service) Overview(ctx context.Context, w timeframe.Window) (*Overview, error) {
	defer observe("overview", time.Now())

	var totalEvents int64
	if err := s.humanEvents(ctx, w).Count(&totalEvents).Error; err != nil {
		return nil, fmt.Errorf("error counting events: %w", err)
	}

	var (
		pageViews int64
		visitors  visitorSet
		summary   sessionSummary
	)
	err := s.eachSession(ctx, w, func(sess session) {
		pageViews += int64(len(sess.Hits))
		visitors.add(sess.VisitorID)
		summary.add(sess)
	})
	if err != nil {
		return nil, err
	}

	visitorIDs := visitors.ids
	newVisitors, err := s.countNewVisitors(ctx, w, visitorIDs)
	if err != nil {
		return nil, err
	}

	stats := summary.stats()

	return &Overview{
		TotalPageViews:     pageViews,
		TotalEvents:        totalEvents,
		UniqueVisitors:     int64(len(visitorIDs)),
		NewVisitors:        newVisitors,
		ReturningVisitors:  int64(len(visitorIDs)) - newVisitors,
		TotalSessions:      stats.Sessions,
		AvgSessionDuration: stats.AvgDuration,
		AvgPagesPerSession: stats.AvgPagesPerSession,
		BounceRate:         stats.BounceRate,
	}, nil
}

// visitorSet collects distinct visitor ids in first-seen order.
type visitorSet struct {
	seen map[string]bool
	ids  []string
}

func (v *visitorSet) add(id string) {
	if v.seen == nil {
		v.seen = make(map[string]bool)
	}
	if !v.seen[id] {
		v.seen[id] = true
		v.ids = append(v.ids, id)
	}
}
