package events

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventType discriminates what a beacon reports. Any custom name is allowed
// besides the built-in types below.
type EventType string

const (
	EventTypePageView        EventType = "page_view"
	EventTypeProductView     EventType = "product_view"
	EventTypeAddToCart       EventType = "add_to_cart"
	EventTypeCheckoutStarted EventType = "checkout_started"
	EventTypePurchase        EventType = "purchase"
	EventTypeButtonClick     EventType = "button_click"
)

// FunnelSteps lists the e-commerce funnel in its logical order.
var FunnelSteps = []EventType{
	EventTypeProductView,
	EventTypeAddToCart,
	EventTypeCheckoutStarted,
	EventTypePurchase,
}

// NormalizeEventType lower-cases and trims a client supplied type.
// An empty type is a page view.
func NormalizeEventType(raw string) EventType {
	t := strings.ToLower(strings.TrimSpace(raw))
	if t == "" {
		return EventTypePageView
	}
	t = strings.Join(strings.Fields(t), "_")
	if len(t) > maxEventTypeLength {
		t = t[:maxEventTypeLength]
	}
	return EventType(t)
}

// VisitorEvent is one persisted beacon. Rows are append-only.
type VisitorEvent struct {
	ID               string    `gorm:"primaryKey;size:36"`
	Timestamp        time.Time `gorm:"index;not null"`
	IP               string    `gorm:"column:ip;size:45;not null"`
	VisitorID        string    `gorm:"index;size:64;not null"`
	Path             string    `gorm:"index;not null"`
	Referrer         string
	ReferrerHost     string
	ReferrerCategory string `gorm:"index;not null"`
	ReferrerPlatform string
	UTMSource        string `gorm:"column:utm_source"`
	UTMMedium        string `gorm:"column:utm_medium"`
	UTMCampaign      string `gorm:"column:utm_campaign"`
	UTMTerm          string `gorm:"column:utm_term"`
	UTMContent       string `gorm:"column:utm_content"`
	City             *string
	Country          *string
	CountryCode      *string `gorm:"size:2"`
	Latitude         *float64
	Longitude        *float64
	DeviceType       string `gorm:"not null;default:unknown"`
	Browser          string `gorm:"not null;default:other"`
	OS               string `gorm:"column:os;not null;default:other"`
	DeviceBrand      string
	ScreenResolution string
	Language         string
	Timezone         string
	EventType        EventType `gorm:"index;size:64;not null"`
	EventData        string    `gorm:"type:text"`
	IsBot            bool      `gorm:"index;not null;default:false"`
}

// TableName pins the table name independently of the struct name.
func (VisitorEvent) TableName() string {
	return "visitor_events"
}

// BeforeCreate assigns the opaque identifier.
func (e *VisitorEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// Data decodes the stored payload into its typed variant.
func (e *VisitorEvent) Data() EventData {
	return DecodeEventData(e.EventType, []byte(e.EventData))
}

// HasLocation reports whether geolocation resolved for this event.
func (e *VisitorEvent) HasLocation() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// BotStat tallies short-circuited bot beacons per bot family and hour.
type BotStat struct {
	ID      uint      `gorm:"primaryKey"`
	BotName string    `gorm:"uniqueIndex:idx_bot_stats_name_hour;size:128;not null"`
	Hour    time.Time `gorm:"uniqueIndex:idx_bot_stats_name_hour;not null"`
	Hits    int64     `gorm:"not null;default:0"`
}
