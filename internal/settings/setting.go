package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
)

// KeyExcludedIPs holds a comma-separated list of IPs or CIDR ranges whose
// beacons are not recorded.
const KeyExcludedIPs = "excluded_ips"

// ErrInvalidIP is returned when an exclusion entry is neither an IP nor a CIDR range.
var ErrInvalidIP = errors.New("invalid ip or range")

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

// SetupDefaultSettings inserts missing default settings.
func SetupDefaultSettings(dbConn *gorm.DB) error {
	defaults := []Setting{
		{Key: KeyExcludedIPs, Value: ""},
	}
	return dbConn.Transaction(func(tx *gorm.DB) error {
		for _, setting := range defaults {
			now := time.Now().UTC()
			err := tx.Exec(`
                INSERT INTO settings (key, value, created_at, updated_at)
                VALUES (?, ?, ?, ?)
                ON CONFLICT(key) DO NOTHING
            `, setting.Key, setting.Value, now, now).Error
			if err != nil {
				return fmt.Errorf("failed to insert setting %s: %w", setting.Key, err)
			}
		}
		return nil
	})
}

// GetSetting retrieves a setting value from the database
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	result := dbConn.Where("key = ?", key).First(&setting)

	if result.Error != nil {
		return "", result.Error
	}

	return setting.Value, nil
}

// UpdateSetting creates or replaces a setting.
func UpdateSetting(dbConn *gorm.DB, key string, value string) error {
	now := time.Now().UTC()
	err := dbConn.Exec(`
        INSERT INTO settings (key, value, created_at, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
    `, key, value, now, now).Error
	if err != nil {
		return fmt.Errorf("failed to update setting %s: %w", key, err)
	}
	return nil
}

// ParseIPList splits a stored list, trimming blanks.
func ParseIPList(value string) []string {
	var ips []string
	for _, part := range strings.Split(value, ",") {
		if ip := strings.TrimSpace(part); ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

// NormalizeIPList validates entries and returns them canonicalised and de-duplicated.
func NormalizeIPList(entries []string) ([]string, error) {
	seen := make(map[string]bool, len(entries))
	normalized := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		var canonical string
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidIP, entry)
			}
			canonical = prefix.Masked().String()
		} else {
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidIP, entry)
			}
			canonical = addr.Unmap().String()
		}
		if !seen[canonical] {
			seen[canonical] = true
			normalized = append(normalized, canonical)
		}
	}
	return normalized, nil
}

// ExcludedIPs is a TTL cached view of the excluded IP setting.
type ExcludedIPs struct {
	db     *gorm.DB
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	entries  []string
	addrs    map[netip.Addr]bool
	prefixes []netip.Prefix
	loadedAt time.Time
}

// NewExcludedIPs creates the cache. A non-positive ttl reloads on every check.
func NewExcludedIPs(db *gorm.DB, ttl time.Duration, logger *slog.Logger) *ExcludedIPs {
	return &ExcludedIPs{
		db:     db,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Contains reports whether ip is excluded.
func (e *ExcludedIPs) Contains(ctx context.Context, ip string) (bool, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false, nil
	}
	addr = addr.Unmap()

	if err := e.ensureLoaded(ctx); err != nil {
		return false, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.addrs[addr] {
		return true, nil
	}
	for _, prefix := range e.prefixes {
		if prefix.Contains(addr) {
			return true, nil
		}
	}
	return false, nil
}

// List returns the current entries.
func (e *ExcludedIPs) List(ctx context.Context) ([]string, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string{}, e.entries...), nil
}

// Replace validates and stores a new list, returning the stored entries.
func (e *ExcludedIPs) Replace(ctx context.Context, entries []string) ([]string, error) {
	normalized, err := NormalizeIPList(entries)
	if err != nil {
		return nil, err
	}
	if err := UpdateSetting(e.db.WithContext(ctx), KeyExcludedIPs, strings.Join(normalized, ",")); err != nil {
		return nil, err
	}
	e.Invalidate()
	return normalized, nil
}

// Invalidate forces the next check to reload from the database.
func (e *ExcludedIPs) Invalidate() {
	e.mu.Lock()
	e.loadedAt = time.Time{}
	e.mu.Unlock()
}

func (e *ExcludedIPs) ensureLoaded(ctx context.Context) error {
	e.mu.RLock()
	fresh := !e.loadedAt.IsZero() && e.ttl > 0 && e.now().Sub(e.loadedAt) < e.ttl
	e.mu.RUnlock()
	if fresh {
		return nil
	}

	value, err := GetSetting(e.db.WithContext(ctx), KeyExcludedIPs)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load excluded IPs: %w", err)
	}

	entries := ParseIPList(value)
	addrs := make(map[netip.Addr]bool, len(entries))
	var prefixes []netip.Prefix
	for _, entry := range entries {
		if prefix, perr := netip.ParsePrefix(entry); perr == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		if addr, aerr := netip.ParseAddr(entry); aerr == nil {
			addrs[addr.Unmap()] = true
			continue
		}
		e.logger.Warn("Ignoring invalid excluded IP entry", slog.String("entry", entry))
	}

	e.mu.Lock()
	e.entries = entries
	e.addrs = addrs
	e.prefixes = prefixes
	e.loadedAt = e.now()
	e.mu.Unlock()
	return nil
}
