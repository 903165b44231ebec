package analytics

import (
	"math"
	"strconv"
)

// round2 rounds to two decimals.
func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

// percentage returns part/total*100 rounded to two decimals, or 0 for an empty total.
func percentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

// percentageChange returns the relative change from previous to current in
// percent, or 0 when there is no baseline.
func percentageChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return round2((current - previous) / previous * 100)
}

// formatRate renders successor/predecessor as a percentage string with at most
// two decimals and no trailing zeros. A zero predecessor yields "0".
func formatRate(successor, predecessor int64) string {
	if predecessor <= 0 || successor <= 0 {
		return "0"
	}
	rate := round2(float64(successor) / float64(predecessor) * 100)
	return strconv.FormatFloat(rate, 'f', -1, 64)
}
