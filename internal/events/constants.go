package events

// Constants for unknown or default values
const (
	UnknownDevice  = "unknown"
	UnknownBrowser = "other"
	UnknownOS      = "other"
	UnknownBrand   = "unknown"
	UnknownCountry = "Unknown"
	UnknownButton  = "unknown"

	maxEventTypeLength = 64
	maxPathLength      = 2048
)
