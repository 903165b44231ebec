// Package seeder fills the event store with realistic storefront traffic for
// local development and demos.
package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/google/uuid"

	"storepulse/internal/database"
	"storepulse/internal/events"
	"storepulse/internal/ingest"
	"storepulse/internal/pkg/geoip"
)

// Seeder replays generated shopping sessions through the ingest pipeline.
type Seeder struct {
	DBManager  *database.DBManager
	Logger     *slog.Logger
	EventCount int
	Days       int
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager *database.DBManager, logger *slog.Logger, eventCount, days int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if days <= 0 {
		days = 30
	}
	return &Seeder{
		DBManager:  dbManager,
		Logger:     logger,
		EventCount: eventCount,
		Days:       days,
	}
}

type product struct {
	id    string
	name  string
	price float64
}

var catalog = []product{
	{"mug-classic", "Classic Mug", 14.5},
	{"mug-travel", "Travel Mug", 24},
	{"tee-logo", "Logo Tee", 29},
	{"hoodie-zip", "Zip Hoodie", 59},
	{"poster-a2", "A2 Poster", 19.99},
	{"sticker-pack", "Sticker Pack", 6},
}

// Run generates sessions until roughly EventCount events have been tracked.
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	s.Logger.Info("Seeding visitor events...", slog.Int("eventCount", s.EventCount), slog.Int("days", s.Days))

	svc := ingest.NewService(s.DBManager.GetConnection(), cityResolver{}, nil, nil, s.Logger, ingest.Options{
		VisitorSalt: "seed",
	})

	ipPool := generateIPPool(100)
	userAgents := getUserAgents()
	referrers := getReferrers()

	tracked := 0
	sessions := 0
	for tracked < s.EventCount {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := s.seedSession(ctx, svc, sessionParams{
			visitorID: uuid.NewString(),
			ip:        ipPool[rand.IntN(len(ipPool))],
			userAgent: userAgents[rand.IntN(len(userAgents))],
			referrer:  referrers[rand.IntN(len(referrers))],
			startedAt: time.Now().Add(-time.Hour - time.Duration(rand.Int64N(int64(s.Days)*int64(24*time.Hour)))),
		})
		if err != nil {
			return fmt.Errorf("seed session: %w", err)
		}
		tracked += n
		sessions++
	}

	s.Logger.Info("Seeding completed successfully",
		slog.Int("sessions", sessions),
		slog.Int("events", tracked),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

type sessionParams struct {
	visitorID string
	ip        string
	userAgent string
	referrer  string
	startedAt time.Time
}

// seedSession walks one visitor from landing page towards checkout. Returns
// the number of beacons sent.
func (s *Seeder) seedSession(ctx context.Context, svc *ingest.Service, p sessionParams) (int, error) {
	at := p.startedAt
	count := 0

	track := func(path, eventType string, data any) error {
		var raw json.RawMessage
		if data != nil {
			encoded, err := json.Marshal(data)
			if err != nil {
				return err
			}
			raw = encoded
		}

		referrer := ""
		if count == 0 {
			referrer = p.referrer
		}
		_, err := svc.Track(ctx, ingest.Beacon{
			Path:         path,
			Referrer:     referrer,
			EventType:    eventType,
			EventData:    raw,
			VisitorID:    p.visitorID,
			ScreenWidth:  1440,
			ScreenHeight: 900,
			Language:     "en-US",
			UserAgent:    p.userAgent,
			IP:           p.ip,
			Timestamp:    at,
		})
		count++
		at = at.Add(time.Duration(rand.IntN(110)+10) * time.Second)
		return err
	}

	landing := []string{"/", "/collections/all", "/collections/mugs", "/blog/gift-guide"}
	if err := track(addUTMParams(addQueryParams(landing[rand.IntN(len(landing))])), string(events.EventTypePageView), nil); err != nil {
		return count, err
	}

	// Bounce
	if rand.Float64() < 0.35 {
		return count, nil
	}

	item := catalog[rand.IntN(len(catalog))]
	productPath := "/products/" + item.id
	if err := track(productPath, string(events.EventTypePageView), nil); err != nil {
		return count, err
	}
	if err := track(productPath, string(events.EventTypeProductView), events.ProductData{
		ProductID:   events.FlexString(item.id),
		ProductName: item.name,
		Price:       events.FlexFloat(item.price),
	}); err != nil {
		return count, err
	}

	if rand.Float64() < 0.3 {
		buttons := []string{"size_guide", "share", "wishlist"}
		if err := track(productPath, string(events.EventTypeButtonClick), events.ButtonClickData{
			ButtonName: buttons[rand.IntN(len(buttons))],
		}); err != nil {
			return count, err
		}
	}

	if rand.Float64() > 0.4 {
		return count, nil
	}
	quantity := rand.IntN(3) + 1
	if err := track(productPath, string(events.EventTypeAddToCart), events.CartData{
		ProductID:   events.FlexString(item.id),
		ProductName: item.name,
		Quantity:    events.FlexFloat(quantity),
		Price:       events.FlexFloat(item.price),
	}); err != nil {
		return count, err
	}

	if rand.Float64() > 0.6 {
		return count, nil
	}
	total := item.price * float64(quantity)
	if err := track("/checkout", string(events.EventTypeCheckoutStarted), events.CheckoutData{
		CartValue: events.FlexFloat(total),
		ItemCount: events.FlexFloat(quantity),
	}); err != nil {
		return count, err
	}

	if rand.Float64() > 0.7 {
		return count, nil
	}
	err := track("/checkout/thank-you", string(events.EventTypePurchase), events.PurchaseData{
		ProductID:   events.FlexString(item.id),
		ProductName: item.name,
		OrderID:     events.FlexString(fmt.Sprintf("order-%d", rand.IntN(1_000_000))),
		Amount:      events.FlexFloat(total),
		Currency:    "USD",
	})
	return count, err
}

// cityResolver places seeded visitors in a handful of cities.
type cityResolver struct{}

var cities = []geoip.Location{
	{City: "Berlin", Country: "Germany", CountryCode: "de", Latitude: 52.52, Longitude: 13.405},
	{City: "Paris", Country: "France", CountryCode: "fr", Latitude: 48.8566, Longitude: 2.3522},
	{City: "New York", Country: "United States", CountryCode: "us", Latitude: 40.7128, Longitude: -74.006},
	{City: "Madrid", Country: "Spain", CountryCode: "es", Latitude: 40.4168, Longitude: -3.7038},
	{City: "Tokyo", Country: "Japan", CountryCode: "jp", Latitude: 35.6762, Longitude: 139.6503},
	{City: "São Paulo", Country: "Brazil", CountryCode: "br", Latitude: -23.5505, Longitude: -46.6333},
}

func (cityResolver) Resolve(_ context.Context, ip string) (*geoip.Location, error) {
	var sum int
	for _, r := range ip {
		sum += int(r)
	}
	loc := cities[sum%len(cities)]
	loc.Source = geoip.SourceLocal
	return &loc, nil
}

// --- Helper functions ---

// generateIPPool creates a pool of unique IPv4 addresses
func generateIPPool(count int) []string {
	ipPool := make(map[string]bool)
	var ips []string
	for len(ips) < count {
		ip := fmt.Sprintf("%d.%d.%d.%d", rand.IntN(223)+1, rand.IntN(256), rand.IntN(256), rand.IntN(254)+1)
		if !ipPool[ip] {
			ipPool[ip] = true
			ips = append(ips, ip)
		}
	}
	return ips
}

// getUserAgents returns a list of common user agent strings. The crawlers
// end up in the bot tallies rather than the event table.
func getUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
		"Mozilla/5.0 (iPad; CPU OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		"Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)",
	}
}

// getReferrers returns a list of common referrer URLs
func getReferrers() []string {
	return []string{
		"", // Direct visit
		"https://www.google.com/search?q=coffee+mug",
		"https://www.bing.com/search?q=logo+tee",
		"https://duckduckgo.com/",
		"https://www.facebook.com/",
		"https://t.co/abc123",
		"https://www.instagram.com/",
		"https://www.pinterest.com/pin/123",
		"https://mail.google.com/",
		"https://some-other-website.com/blog/post",
	}
}

// addQueryParams adds random query parameters to a path
func addQueryParams(path string) string {
	// Only add params sometimes (e.g., 30% chance)
	if rand.IntN(10) < 7 {
		return path
	}

	params := url.Values{}
	numParams := rand.IntN(3) + 1
	possibleParams := []string{"ref", "variant", "sort", "page"}

	for i := 0; i < numParams; i++ {
		key := possibleParams[rand.IntN(len(possibleParams))]
		params.Add(key, fmt.Sprintf("value%d", rand.IntN(100)))
	}
	return path + "?" + params.Encode()
}

// addUTMParams adds UTM tracking parameters randomly
func addUTMParams(path string) string {
	// Only add UTM params sometimes (e.g., 20% chance)
	if rand.IntN(10) < 8 {
		return path
	}

	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	params := u.Query()

	utms := []struct {
		key   string
		value []string
	}{
		{"utm_source", []string{"google", "facebook", "newsletter", "instagram", "pinterest"}},
		{"utm_medium", []string{"cpc", "social", "email", "organic", "referral"}},
		{"utm_campaign", []string{"spring_sale", "new_collection", "black_friday", "restock"}},
		{"utm_term", []string{"coffee_mug", "logo_tee", ""}},
		{"utm_content", []string{"hero_banner", "footer_link", ""}},
	}

	for _, utm := range utms {
		// source, medium and campaign always; the rest 80% of the time
		if rand.IntN(10) < 8 || utm.key == "utm_source" || utm.key == "utm_medium" || utm.key == "utm_campaign" {
			if value := utm.value[rand.IntN(len(utm.value))]; value != "" {
				params.Set(utm.key, value)
			}
		}
	}

	u.RawQuery = params.Encode()
	return u.String()
}
