package user_agent

import (
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Coarse buckets reported by Classify.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	DeviceTV      = "tv"
	DeviceUnknown = "unknown"

	BrowserOther = "other"
	OSOther      = "other"
	BrandUnknown = "unknown"

	// OtherBot names bots that match the generic tokens but no known family.
	OtherBot = "Other bot"
	// AutomatedClient names traffic flagged by the client's webdriver hint.
	AutomatedClient = "Automated"
)

// botTokens are the generic markers that make a User-Agent a bot.
var botTokens = []string{"bot", "crawler", "spider"}

//go:embed families.yml
var familiesFile []byte

// Family is one named token family from the embedded table.
type Family struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`
}

type familyTable struct {
	Bots     []Family `yaml:"bots"`
	Devices  []Family `yaml:"devices"`
	Browsers []Family `yaml:"browsers"`
	OSs      []Family `yaml:"oss"`
	Brands   []Family `yaml:"brands"`
}

// ClientHints carries what the tracking script reports about the client.
type ClientHints struct {
	ScreenWidth  int
	ScreenHeight int
	Webdriver    bool
}

// Result is the classification of one request.
type Result struct {
	IsBot            bool
	BotName          string
	Automated        bool
	DeviceType       string
	Browser          string
	OS               string
	DeviceBrand      string
	ScreenResolution string
}

// Compiled regex cache
type RegexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *RegexCache {
	return &RegexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *RegexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	// Double-check pattern
	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

// Global parser instance
var (
	parser *familyParser
	once   sync.Once
)

type familyParser struct {
	table      familyTable
	regexCache *RegexCache
}

func getParser() *familyParser {
	once.Do(func() {
		parser = &familyParser{regexCache: newRegexCache()}
		table, err := loadFamilies(familiesFile)
		if err != nil {
			slog.Default().Error("Failed to load user agent families", slog.Any("error", err))
			return
		}
		parser.table = table
	})
	return parser
}

func loadFamilies(data []byte) (familyTable, error) {
	var table familyTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return familyTable{}, fmt.Errorf("parse families: %w", err)
	}
	return table, nil
}

// match returns the name of the first family whose pattern matches ua.
func (p *familyParser) match(families []Family, ua string) (string, bool) {
	for _, family := range families {
		regex, err := p.regexCache.get(family.Regex)
		if err != nil {
			slog.Default().Warn("Skipping invalid user agent pattern",
				slog.String("family", family.Name),
				slog.Any("error", err))
			continue
		}
		if regex.MatchString(ua) {
			return family.Name, true
		}
	}
	return "", false
}

// IsBot reports whether the User-Agent carries one of the generic bot tokens, in any casing.
func IsBot(userAgent string) bool {
	lower := strings.ToLower(userAgent)
	for _, token := range botTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// Classify buckets a User-Agent and the client's hints.
func Classify(userAgent string, hints ClientHints) Result {
	result := Result{
		DeviceType:       DeviceUnknown,
		Browser:          BrowserOther,
		OS:               OSOther,
		DeviceBrand:      BrandUnknown,
		ScreenResolution: ScreenResolution(hints.ScreenWidth, hints.ScreenHeight),
		Automated:        hints.Webdriver,
	}

	ua := strings.TrimSpace(userAgent)
	p := getParser()

	if IsBot(ua) {
		result.IsBot = true
		result.BotName = OtherBot
		if name, ok := p.match(p.table.Bots, ua); ok {
			result.BotName = name
		}
		return result
	}

	if ua == "" {
		return result
	}

	if name, ok := p.match(p.table.Devices, ua); ok {
		result.DeviceType = name
	}
	if name, ok := p.match(p.table.Browsers, ua); ok {
		result.Browser = name
	}
	if name, ok := p.match(p.table.OSs, ua); ok {
		result.OS = name
	}
	if name, ok := p.match(p.table.Brands, ua); ok {
		result.DeviceBrand = name
	}

	return result
}

// ScreenResolution formats client screen dimensions, or "" when either is missing.
func ScreenResolution(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", width, height)
}
