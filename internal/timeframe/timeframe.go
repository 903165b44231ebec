package timeframe

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTimeRange is returned for time range labels outside the enum.
var ErrInvalidTimeRange = errors.New("invalid time range")

// Range is a dashboard time range label.
type Range string

const (
	RangeToday       Range = "today"
	RangeYesterday   Range = "yesterday"
	RangeWeek        Range = "week"
	RangeMonth       Range = "month"
	RangeThreeMonths Range = "3months"
	RangeAll         Range = "all"
)

// Ranges lists the accepted labels in display order.
var Ranges = []Range{RangeToday, RangeYesterday, RangeWeek, RangeMonth, RangeThreeMonths, RangeAll}

// DefaultRange is used when the client sends no range.
const DefaultRange = RangeToday

// Rolling lengths of the week, month and 3months ranges.
const (
	weekSpan        = 7 * 24 * time.Hour
	monthSpan       = 30 * 24 * time.Hour
	threeMonthsSpan = 90 * 24 * time.Hour
)

// ParseRange parses a label case-insensitively. Empty means DefaultRange.
func ParseRange(raw string) (Range, error) {
	label := strings.ToLower(strings.TrimSpace(raw))
	if label == "" {
		return DefaultRange, nil
	}
	for _, r := range Ranges {
		if string(r) == label {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTimeRange, raw)
}

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// Window is a half-open interval [Start, End) in UTC. A zero Start or End
// means the window is unbounded on that side.
type Window struct {
	Range Range
	Start time.Time
	End   time.Time
	// Now is the instant the window was computed at.
	Now time.Time
	Loc *time.Location
}

// NewWindow computes the window for r as seen at now in loc.
//
//	today:     [midnight, ∞)
//	yesterday: [midnight - 1 day, midnight)
//	week:      [now - 7d, ∞)
//	month:     [now - 30d, ∞)
//	3months:   [now - 90d, ∞)
//	all:       unbounded
func NewWindow(r Range, now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	w := Window{Range: r, Now: now.UTC(), Loc: loc}
	midnight := StartOfDay(now, loc)

	switch r {
	case RangeToday:
		w.Start = midnight
	case RangeYesterday:
		w.Start = midnight.In(loc).AddDate(0, 0, -1).UTC()
		w.End = midnight
	case RangeWeek:
		w.Start = now.Add(-weekSpan).UTC()
	case RangeMonth:
		w.Start = now.Add(-monthSpan).UTC()
	case RangeThreeMonths:
		w.Start = now.Add(-threeMonthsSpan).UTC()
	case RangeAll:
	}
	return w
}

// HasStart reports whether the window is bounded below.
func (w Window) HasStart() bool { return !w.Start.IsZero() }

// HasEnd reports whether the window is bounded above.
func (w Window) HasEnd() bool { return !w.End.IsZero() }

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.HasStart() && t.Before(w.Start) {
		return false
	}
	if w.HasEnd() && !t.Before(w.End) {
		return false
	}
	return true
}

// Location returns the reporting timezone, UTC when unset.
func (w Window) Location() *time.Location {
	if w.Loc == nil {
		return time.UTC
	}
	return w.Loc
}

// Days lists the calendar days, as local midnights in UTC, that the window
// covers. An open start is replaced by firstEvent; an open end by Now. It
// returns nil when there is nothing to cover.
func (w Window) Days(firstEvent time.Time) []time.Time {
	loc := w.Location()

	from := w.Start
	if !w.HasStart() {
		if firstEvent.IsZero() {
			return nil
		}
		from = firstEvent
	}

	to := w.Now
	if w.HasEnd() {
		// End is exclusive.
		to = w.End.Add(-time.Nanosecond)
	}
	if to.Before(from) {
		return nil
	}

	var days []time.Time
	last := StartOfDay(to, loc)
	for day := StartOfDay(from, loc); !day.After(last); day = day.In(loc).AddDate(0, 0, 1).UTC() {
		days = append(days, day)
	}
	return days
}

// StartOfDay returns local midnight of t's calendar day in loc, in UTC.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).UTC()
}

// DayKey formats t as its calendar date in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
