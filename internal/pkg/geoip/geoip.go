package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"

	"storepulse/internal/config"
)

// ErrNoLocation is returned when no source could place the IP.
var ErrNoLocation = errors.New("geoip: no location")

// Labels reported for loopback and private addresses.
const (
	LocalCity        = "Local"
	LocalCountry     = "Development"
	LocalCountryCode = "ZZ"
)

// Lookup sources, reported in Location.Source.
const (
	SourceLocal   = "local"
	SourceMaxMind = "maxmind"
	SourceService = "service"
)

// Location is a resolved geographic position.
type Location struct {
	City        string
	Country     string
	CountryCode string
	Latitude    float64
	Longitude   float64
	Source      string
}

// Resolver places an IP on the map. A nil location means unresolved; the
// error is informational only.
type Resolver interface {
	Resolve(ctx context.Context, ip string) (*Location, error)
}

// Options configures a Service.
type Options struct {
	// DBPath points to a GeoLite2-City mmdb file. Optional.
	DBPath string
	// ServiceURL is an ip-api compatible endpoint, e.g. http://ip-api.com/json. Optional.
	ServiceURL string
	APIKey     string
	Timeout    time.Duration
}

// OptionsFromConfig reads resolver options from the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DBPath:     cfg.GeoDBPath,
		ServiceURL: cfg.GeoServiceURL,
		APIKey:     cfg.GeoAPIKey,
		Timeout:    cfg.GeoTimeout(),
	}
}

// Service resolves IPs through a local mock, a MaxMind database, then a lookup service.
type Service struct {
	opts   Options
	logger *slog.Logger
	client *http.Client

	mu       sync.RWMutex
	reader   *geoip2.Reader
	loadedAt time.Time
}

// New creates a Service and opens the MaxMind database if one is configured.
func New(opts Options, logger *slog.Logger) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	s := &Service{
		opts:   opts,
		logger: logger,
		client: &http.Client{Timeout: opts.Timeout},
	}
	s.reader, s.loadedAt = openReader(opts.DBPath, logger)
	return s
}

// openReader opens the GeoLite2 database.
// Returns nil if the database is not configured or not found (GeoIP is optional).
func openReader(path string, logger *slog.Logger) (*geoip2.Reader, time.Time) {
	if path == "" {
		logger.Debug("GeoIP database path not configured - local lookups disabled")
		return nil, time.Time{}
	}

	fileInfo, err := os.Stat(path)
	if os.IsNotExist(err) {
		logger.Info("GeoLite2 database not found - local lookups disabled",
			slog.String("path", path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil, time.Time{}
	} else if err != nil {
		logger.Warn("Error checking GeoLite2 database file",
			slog.String("path", path),
			slog.Any("error", err))
		return nil, time.Time{}
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		logger.Error("Failed to open GeoLite2 database",
			slog.String("path", path),
			slog.Any("error", err))
		return nil, time.Time{}
	}

	logger.Info("GeoLite2 database opened",
		slog.String("path", path),
		slog.Int64("size_bytes", fileInfo.Size()),
		slog.Time("mod_time", fileInfo.ModTime()))
	return reader, fileInfo.ModTime()
}

// HasDatabase reports whether a MaxMind database is loaded.
func (s *Service) HasDatabase() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader != nil
}

// LoadedAt returns the modification time of the loaded database file.
func (s *Service) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Reload reopens the database from disk.
// Call this after a new database file has been put in place.
func (s *Service) Reload() {
	reader, loadedAt := openReader(s.opts.DBPath, s.logger)

	s.mu.Lock()
	old := s.reader
	s.reader = reader
	s.loadedAt = loadedAt
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	if reader != nil {
		s.logger.Info("GeoLite2 database reloaded successfully")
	}
}

// Close releases the database reader.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}

// Resolve implements Resolver.
func (s *Service) Resolve(ctx context.Context, ip string) (*Location, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return nil, fmt.Errorf("invalid ip %q: %w", ip, ErrNoLocation)
	}

	if IsLocal(parsed) {
		return MockLocation(), nil
	}

	if loc, err := s.lookupDatabase(parsed); err != nil {
		s.logger.Debug("GeoLite2 lookup failed", slog.String("ip", ip), slog.Any("error", err))
	} else if loc != nil {
		return loc, nil
	}

	if s.opts.ServiceURL == "" {
		return nil, ErrNoLocation
	}
	return s.lookupService(ctx, parsed.String())
}

func (s *Service) lookupDatabase(ip net.IP) (*Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reader == nil {
		return nil, nil
	}

	record, err := s.reader.City(ip)
	if err != nil {
		return nil, err
	}
	if record.Country.IsoCode == "" && record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return nil, ErrNoLocation
	}

	return &Location{
		City:        record.City.Names["en"],
		Country:     record.Country.Names["en"],
		CountryCode: record.Country.IsoCode,
		Latitude:    record.Location.Latitude,
		Longitude:   record.Location.Longitude,
		Source:      SourceMaxMind,
	}, nil
}

// serviceResponse is the ip-api JSON contract.
type serviceResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	City        string  `json:"city"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// lookupService makes exactly one request with no retry.
func (s *Service) lookupService(ctx context.Context, ip string) (*Location, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.serviceURL(ip), nil)
	if err != nil {
		return nil, fmt.Errorf("build geo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo service returned %d: %w", resp.StatusCode, ErrNoLocation)
	}

	var body serviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode geo response: %w", err)
	}
	if body.Status != "success" {
		return nil, fmt.Errorf("geo service status %q %s: %w", body.Status, body.Message, ErrNoLocation)
	}

	return &Location{
		City:        body.City,
		Country:     body.Country,
		CountryCode: body.CountryCode,
		Latitude:    body.Lat,
		Longitude:   body.Lon,
		Source:      SourceService,
	}, nil
}

func (s *Service) serviceURL(ip string) string {
	endpoint := strings.TrimRight(s.opts.ServiceURL, "/") + "/" + url.PathEscape(ip)
	query := url.Values{}
	query.Set("fields", "status,message,country,countryCode,city,lat,lon")
	if s.opts.APIKey != "" {
		query.Set("key", s.opts.APIKey)
	}
	return endpoint + "?" + query.Encode()
}

// IsLocal reports loopback, private, link-local and unspecified addresses.
func IsLocal(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// MockLocation returns fixed labels with random coordinates, so local
// development traffic still shows up on the map.
func MockLocation() *Location {
	return &Location{
		City:        LocalCity,
		Country:     LocalCountry,
		CountryCode: LocalCountryCode,
		Latitude:    rand.Float64()*140 - 70,
		Longitude:   rand.Float64()*360 - 180,
		Source:      SourceLocal,
	}
}
