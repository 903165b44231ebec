package events

import (
	"net/url"
	"strings"
)

// UTM holds campaign attribution parameters.
type UTM struct {
	Source   string
	Medium   string
	Campaign string
	Term     string
	Content  string
}

// Merge fills empty fields of u from other.
func (u UTM) Merge(other UTM) UTM {
	if u.Source == "" {
		u.Source = other.Source
	}
	if u.Medium == "" {
		u.Medium = other.Medium
	}
	if u.Campaign == "" {
		u.Campaign = other.Campaign
	}
	if u.Term == "" {
		u.Term = other.Term
	}
	if u.Content == "" {
		u.Content = other.Content
	}
	return u
}

// ParseLocation splits a beacon location, either a bare path or a full URL,
// into the stored path and the UTM parameters found in its query string.
func ParseLocation(raw string) (string, UTM) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "/", UTM{}
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		path := raw
		if idx := strings.IndexAny(path, "?#"); idx >= 0 {
			path = path[:idx]
		}
		return normalizePath(path), UTM{}
	}

	query := parsed.Query()
	utm := UTM{
		Source:   getUTMParam(query, "utm_source"),
		Medium:   getUTMParam(query, "utm_medium"),
		Campaign: getUTMParam(query, "utm_campaign"),
		Term:     getUTMParam(query, "utm_term"),
		Content:  getUTMParam(query, "utm_content"),
	}

	return normalizePath(parsed.Path), utm
}

func getUTMParam(query url.Values, param string) string {
	return strings.TrimSpace(query.Get(param))
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > maxPathLength {
		path = path[:maxPathLength]
	}
	return path
}
