package timeframe

import (
	"time"
)

type TimeFrameParser struct {
	timeProvider TimeProvider
	loc          *time.Location
}

// NewTimeFrameParser builds a parser for the reporting timezone loc.
func NewTimeFrameParser(loc *time.Location, timeProvider ...TimeProvider) *TimeFrameParser {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}
	if loc == nil {
		loc = time.UTC
	}

	return &TimeFrameParser{
		timeProvider: provider,
		loc:          loc,
	}
}

// Parse turns a timeRange query value into a window anchored at the current time.
func (p *TimeFrameParser) Parse(raw string) (Window, error) {
	r, err := ParseRange(raw)
	if err != nil {
		return Window{}, err
	}
	return NewWindow(r, p.Now(), p.loc), nil
}

// Today returns the today window.
func (p *TimeFrameParser) Today() Window {
	return NewWindow(RangeToday, p.Now(), p.loc)
}

// Now returns the provider's current time in the reporting timezone.
func (p *TimeFrameParser) Now() time.Time {
	return p.timeProvider.Now(p.loc)
}

// Location returns the reporting timezone.
func (p *TimeFrameParser) Location() *time.Location {
	return p.loc
}
