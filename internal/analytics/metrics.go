package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storepulse/internal/events"
	"storepulse/internal/timeframe"
)

// DeviceBreakdown groups page views by client characteristics.
type DeviceBreakdown struct {
	DeviceTypes       []BreakdownItem `json:"deviceTypes"`
	Browsers          []BreakdownItem `json:"browsers"`
	OperatingSystems  []BreakdownItem `json:"operatingSystems"`
	DeviceBrands      []BreakdownItem `json:"deviceBrands"`
	ScreenResolutions []BreakdownItem `json:"screenResolutions"`
}

// CountryItem is a country row of the geographic breakdown.
type CountryItem struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	Count    int64  `json:"count"`
	Visitors int64  `json:"visitors"`
}

// CityItem is a city row of the geographic breakdown.
type CityItem struct {
	Name     string `json:"name"`
	Country  string `json:"country"`
	Count    int64  `json:"count"`
	Visitors int64  `json:"visitors"`
}

// GeoPoint is a map marker aggregating page views at one coordinate.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Count     int64   `json:"count"`
}

// Geographic groups page views by location.
type Geographic struct {
	Countries []CountryItem `json:"countries"`
	Cities    []CityItem    `json:"cities"`
	Points    []GeoPoint    `json:"points"`
}

// Devices returns device type, browser, OS, brand and screen breakdowns.
func (s *Service) Devices(ctx context.Context, w timeframe.Window) (*DeviceBreakdown, error) {
	defer observe("devices", time.Now())

	deviceTypes, err := s.breakdown(ctx, w, "device_type", events.UnknownDevice)
	if err != nil {
		return nil, err
	}
	browsers, err := s.breakdown(ctx, w, "browser", events.UnknownBrowser)
	if err != nil {
		return nil, err
	}
	systems, err := s.breakdown(ctx, w, "os", events.UnknownOS)
	if err != nil {
		return nil, err
	}
	brands, err := s.breakdown(ctx, w, "device_brand", events.UnknownBrand)
	if err != nil {
		return nil, err
	}
	screens, err := s.breakdown(ctx, w, "screen_resolution", events.UnknownDevice)
	if err != nil {
		return nil, err
	}

	return &DeviceBreakdown{
		DeviceTypes:       convertDeviceStats(deviceTypes),
		Browsers:          convertBrowserStats(browsers),
		OperatingSystems:  convertOSStats(systems),
		DeviceBrands:      brands,
		ScreenResolutions: screens,
	}, nil
}

// Geographic returns country, city and coordinate breakdowns.
func (s *Service) Geographic(ctx context.Context, w timeframe.Window) (*Geographic, error) {
	defer observe("geographic", time.Now())

	countries, err := s.countryBreakdown(ctx, w)
	if err != nil {
		return nil, err
	}

	cityExpr := fmt.Sprintf("COALESCE(NULLIF(city, ''), '%s')", unknownCity)
	countryExpr := fmt.Sprintf("COALESCE(NULLIF(country, ''), '%s')", events.UnknownCountry)

	var cities []CityItem
	err = s.pageViews(ctx, w).
		Select(cityExpr + " AS name, " + countryExpr + " AS country, COUNT(*) AS count, COUNT(DISTINCT visitor_id) AS visitors").
		Group(cityExpr + ", " + countryExpr).
		Order("count DESC").
		Order("name ASC").
		Limit(s.opts.BreakdownLimit).
		Scan(&cities).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching city breakdown: %w", err)
	}

	var points []GeoPoint
	err = s.pageViews(ctx, w).
		Where("latitude IS NOT NULL AND longitude IS NOT NULL").
		Select("latitude, longitude, COALESCE(city, '') AS city, COALESCE(country, '') AS country, COUNT(*) AS count").
		Group("latitude, longitude, city, country").
		Order("count DESC").
		Order("latitude ASC").
		Order("longitude ASC").
		Limit(s.opts.GeoPointsLimit).
		Scan(&points).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching geo points: %w", err)
	}

	if cities == nil {
		cities = []CityItem{}
	}
	if points == nil {
		points = []GeoPoint{}
	}
	return &Geographic{Countries: countries, Cities: cities, Points: points}, nil
}

// countryBreakdown groups by ISO code, filling missing names from gountries.
func (s *Service) countryBreakdown(ctx context.Context, w timeframe.Window) ([]CountryItem, error) {
	var rows []CountryItem
	err := s.pageViews(ctx, w).
		Select("COALESCE(country, '') AS name, COALESCE(country_code, '') AS code, COUNT(*) AS count, COUNT(DISTINCT visitor_id) AS visitors").
		Group("country, country_code").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching country breakdown: %w", err)
	}

	// Rows with the same code but differently spelled names are merged.
	merged := make(map[string]*CountryItem)
	var order []string
	for _, row := range rows {
		code := strings.ToUpper(strings.TrimSpace(row.Code))
		name := countryName(code, row.Name)
		key := code
		if key == "" {
			key = "name:" + name
		}
		if existing, ok := merged[key]; ok {
			existing.Count += row.Count
			existing.Visitors += row.Visitors
			continue
		}
		merged[key] = &CountryItem{Name: name, Code: code, Count: row.Count, Visitors: row.Visitors}
		order = append(order, key)
	}

	result := make([]CountryItem, 0, len(order))
	for _, key := range order {
		result = append(result, *merged[key])
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})
	if len(result) > s.opts.BreakdownLimit {
		result = result[:s.opts.BreakdownLimit]
	}
	return result, nil
}

const unknownCity = "Unknown"

var countryIndex = gountries.New()

// countryName prefers the stored name, then the ISO lookup, then Unknown.
func countryName(code, stored string) string {
	if name := strings.TrimSpace(stored); name != "" {
		return name
	}
	if code == "" {
		return events.UnknownCountry
	}
	country, err := countryIndex.FindCountryByAlpha(code)
	if err != nil {
		return cases.Upper(language.AmericanEnglish).String(code)
	}
	return country.Name.Common
}

func convertDeviceStats(items []BreakdownItem) []BreakdownItem {
	caser := cases.Title(language.AmericanEnglish)
	for i := range items {
		items[i].Name = caser.String(items[i].Name)
	}
	return items
}

func convertBrowserStats(items []BreakdownItem) []BreakdownItem {
	caser := cases.Title(language.AmericanEnglish)
	for i := range items {
		items[i].Name = caser.String(items[i].Name)
	}
	return items
}

func convertOSStats(items []BreakdownItem) []BreakdownItem {
	caser := cases.Title(language.AmericanEnglish)
	for i := range items {
		// Special handling for iOS and macOS to maintain correct capitalization
		switch strings.ToLower(items[i].Name) {
		case "ios":
			items[i].Name = "iOS"
		case "macos":
			items[i].Name = "macOS"
		default:
			items[i].Name = caser.String(items[i].Name)
		}
	}
	return items
}
