package analytics

import (
	"context"
	"sort"
	"time"

	"storepulse/internal/events"
	"storepulse/internal/timeframe"
)

// TimelinePoint is one calendar day of the timeline.
type TimelinePoint struct {
	Date           string `json:"date"`
	PageViews      int64  `json:"pageViews"`
	UniqueVisitors int64  `json:"uniqueVisitors"`
	NewVisitors    int64  `json:"newVisitors"`
}

// PageStat summarises one path.
type PageStat struct {
	Path          string  `json:"path"`
	Views         int64   `json:"views"`
	Visitors      int64   `json:"visitors"`
	AvgTimeOnPage float64 `json:"avgTimeOnPage"`
	Entries       int64   `json:"entries"`
	Exits         int64   `json:"exits"`
}

// Timeline returns one zero-filled point per calendar day in the reporting
// timezone. For the all range the first day is the day of the oldest event.
func (s *Service) Timeline(ctx context.Context, w timeframe.Window) ([]TimelinePoint, error) {
	defer observe("timeline", time.Now())

	var firstEvent time.Time
	if !w.HasStart() {
		earliest, err := events.EarliestTimestamp(s.db.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		firstEvent = earliest
	}

	days := w.Days(firstEvent)
	points := make([]TimelinePoint, len(days))
	index := make(map[string]int, len(days))
	loc := w.Location()
	for i, day := range days {
		key := timeframe.DayKey(day, loc)
		points[i] = TimelinePoint{Date: key}
		index[key] = i
	}
	if len(points) == 0 {
		return points, nil
	}

	var visitors visitorSet
	dayVisitors := make(map[string]map[string]bool)
	err := s.eachPageHit(ctx, w, func(hit pageHit) {
		visitors.add(hit.VisitorID)
		key := timeframe.DayKey(hit.Timestamp, loc)
		i, ok := index[key]
		if !ok {
			return
		}
		points[i].PageViews++
		if dayVisitors[key] == nil {
			dayVisitors[key] = make(map[string]bool)
		}
		if !dayVisitors[key][hit.VisitorID] {
			dayVisitors[key][hit.VisitorID] = true
			points[i].UniqueVisitors++
		}
	})
	if err != nil {
		return nil, err
	}

	firstSeen, err := events.FirstSeen(s.db.WithContext(ctx), visitors.ids)
	if err != nil {
		return nil, err
	}
	for _, first := range firstSeen {
		if !w.Contains(first) {
			continue
		}
		if i, ok := index[timeframe.DayKey(first, loc)]; ok {
			points[i].NewVisitors++
		}
	}

	return points, nil
}

// Pages returns per-path views, visitors, time on page and entry/exit counts,
// ordered by views.
func (s *Service) Pages(ctx context.Context, w timeframe.Window) ([]PageStat, error) {
	defer observe("pages", time.Now())

	type accumulator struct {
		stat      PageStat
		visitors  map[string]bool
		timeSpent time.Duration
		timed     int64
	}
	pages := make(map[string]*accumulator)
	get := func(path string) *accumulator {
		acc, ok := pages[path]
		if !ok {
			acc = &accumulator{stat: PageStat{Path: path}, visitors: make(map[string]bool)}
			pages[path] = acc
		}
		return acc
	}

	err := s.eachSession(ctx, w, func(sess session) {
		for i, hit := range sess.Hits {
			acc := get(hit.Path)
			acc.stat.Views++
			acc.visitors[hit.VisitorID] = true
			if i+1 < len(sess.Hits) {
				acc.timeSpent += sess.Hits[i+1].Timestamp.Sub(hit.Timestamp)
				acc.timed++
			}
		}
		get(sess.Hits[0].Path).stat.Entries++
		get(sess.Hits[len(sess.Hits)-1].Path).stat.Exits++
	})
	if err != nil {
		return nil, err
	}

	result := make([]PageStat, 0, len(pages))
	for _, acc := range pages {
		acc.stat.Visitors = int64(len(acc.visitors))
		if acc.timed > 0 {
			acc.stat.AvgTimeOnPage = round2(acc.timeSpent.Seconds() / float64(acc.timed))
		}
		result = append(result, acc.stat)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Views != result[j].Views {
			return result[i].Views > result[j].Views
		}
		return result[i].Path < result[j].Path
	})
	if len(result) > s.opts.BreakdownLimit {
		result = result[:s.opts.BreakdownLimit]
	}
	return result, nil
}
