package events_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/internal/events"
	"storepulse/internal/testsupport"
)

func TestNormalizeEventType(t *testing.T) {
	tests := []struct {
		input    string
		expected events.EventType
	}{
		{"", events.EventTypePageView},
		{"   ", events.EventTypePageView},
		{"page_view", events.EventTypePageView},
		{"PURCHASE", events.EventTypePurchase},
		{" Add_To_Cart ", events.EventTypeAddToCart},
		{"quiz started", events.EventType("quiz_started")},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, events.NormalizeEventType(tt.input))
		})
	}

	long := events.NormalizeEventType(fmt.Sprintf("%0100d", 0))
	assert.Len(t, string(long), 64)
}

func TestDecodeEventData(t *testing.T) {
	tests := []struct {
		name      string
		eventType events.EventType
		raw       string
		expected  events.EventData
	}{
		{
			name:      "page view with title",
			eventType: events.EventTypePageView,
			raw:       `{"title":"Home"}`,
			expected:  events.PageViewData{Title: "Home"},
		},
		{
			name:      "page view without payload",
			eventType: events.EventTypePageView,
			raw:       "",
			expected:  events.PageViewData{},
		},
		{
			name:      "product view with numeric id and string price",
			eventType: events.EventTypeProductView,
			raw:       `{"productId":42,"productName":"Space Quiz Pack","price":"9.99"}`,
			expected:  events.ProductData{ProductID: "42", ProductName: "Space Quiz Pack", Price: 9.99},
		},
		{
			name:      "add to cart",
			eventType: events.EventTypeAddToCart,
			raw:       `{"productId":"p-1","quantity":2,"price":4.5}`,
			expected:  events.CartData{ProductID: "p-1", Quantity: 2, Price: 4.5},
		},
		{
			name:      "checkout",
			eventType: events.EventTypeCheckoutStarted,
			raw:       `{"cartValue":19.98,"itemCount":2}`,
			expected:  events.CheckoutData{CartValue: 19.98, ItemCount: 2},
		},
		{
			name:      "purchase",
			eventType: events.EventTypePurchase,
			raw:       `{"productId":"p-1","orderId":1001,"amount":19.98,"currency":"EUR"}`,
			expected:  events.PurchaseData{ProductID: "p-1", OrderID: "1001", Amount: 19.98, Currency: "EUR"},
		},
		{
			name:      "button click",
			eventType: events.EventTypeButtonClick,
			raw:       `{"buttonName":"buy-now"}`,
			expected:  events.ButtonClickData{ButtonName: "buy-now"},
		},
		{
			name:      "known type with wrong shape falls back to custom",
			eventType: events.EventTypePurchase,
			raw:       `{"amount":{"value":10}}`,
			expected:  events.CustomData{Name: events.EventTypePurchase, Raw: json.RawMessage(`{"amount":{"value":10}}`)},
		},
		{
			name:      "known type with array payload falls back to custom",
			eventType: events.EventTypeButtonClick,
			raw:       `["a","b"]`,
			expected:  events.CustomData{Name: events.EventTypeButtonClick, Raw: json.RawMessage(`["a","b"]`)},
		},
		{
			name:      "non-finite amount falls back to custom",
			eventType: events.EventTypePurchase,
			raw:       `{"productId":"p","amount":"NaN"}`,
			expected:  events.CustomData{Name: events.EventTypePurchase, Raw: json.RawMessage(`{"productId":"p","amount":"NaN"}`)},
		},
		{
			name:      "infinite price falls back to custom",
			eventType: events.EventTypeProductView,
			raw:       `{"productId":"p","price":"-Infinity"}`,
			expected:  events.CustomData{Name: events.EventTypeProductView, Raw: json.RawMessage(`{"productId":"p","price":"-Infinity"}`)},
		},
		{
			name:      "custom type keeps raw payload",
			eventType: "quiz_completed",
			raw:       `{"score":8,"of":10}`,
			expected:  events.CustomData{Name: "quiz_completed", Raw: json.RawMessage(`{"score":8,"of":10}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := events.DecodeEventData(tt.eventType, []byte(tt.raw))
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.eventType, got.Type())
		})
	}
}

func TestDecodeEventDataNeverFails(t *testing.T) {
	payloads := []string{"", "null", "{", "[]", `"x"`, "12", `{"productId":[1]}`, `{"price":"free"}`, "\x00"}
	types := append([]events.EventType{"custom"}, events.FunnelSteps...)
	types = append(types, events.EventTypePageView, events.EventTypeButtonClick)

	for _, eventType := range types {
		for _, payload := range payloads {
			assert.NotPanics(t, func() {
				data := events.DecodeEventData(eventType, []byte(payload))
				assert.NotNil(t, data)
				assert.Equal(t, eventType, data.Type())
			})
		}
	}
}

func TestEncodeEventData(t *testing.T) {
	assert.Equal(t, `{"a":1,"b":"x"}`, events.EncodeEventData(json.RawMessage(" {\n \"a\": 1, \"b\": \"x\" } ")))
	assert.Equal(t, "", events.EncodeEventData(nil))
	assert.Equal(t, "", events.EncodeEventData(json.RawMessage("null")))
	assert.Equal(t, "", events.EncodeEventData(json.RawMessage("{broken")))
}

func TestCustomDataFields(t *testing.T) {
	data := events.CustomData{Name: "quiz_completed", Raw: json.RawMessage(`{"score":8}`)}
	assert.Equal(t, map[string]any{"score": float64(8)}, data.Fields())

	out, err := json.Marshal(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":8}`, string(out))

	assert.Nil(t, events.CustomData{Raw: json.RawMessage(`[1]`)}.Fields())
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		path string
		utm  events.UTM
	}{
		{"empty", "", "/", events.UTM{}},
		{"bare path", "/quizzes/space", "/quizzes/space", events.UTM{}},
		{"path without slash", "cart", "/cart", events.UTM{}},
		{"query stripped", "/shop?ref=x", "/shop", events.UTM{}},
		{
			name: "full url with utm",
			raw:  "https://shop.example.com/packs/history?utm_source=newsletter&utm_medium=email&utm_campaign=spring&utm_term=quiz&utm_content=hero",
			path: "/packs/history",
			utm:  events.UTM{Source: "newsletter", Medium: "email", Campaign: "spring", Term: "quiz", Content: "hero"},
		},
		{"url without path", "https://shop.example.com", "/", events.UTM{}},
		{"unparseable keeps path", "/bad%zz?utm_source=x", "/bad%zz", events.UTM{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, utm := events.ParseLocation(tt.raw)
			assert.Equal(t, tt.path, path)
			assert.Equal(t, tt.utm, utm)
		})
	}
}

func TestUTMMerge(t *testing.T) {
	explicit := events.UTM{Source: "ads"}
	fromURL := events.UTM{Source: "newsletter", Medium: "email"}

	assert.Equal(t, events.UTM{Source: "ads", Medium: "email"}, explicit.Merge(fromURL))
}

func TestInsertAndQuery(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	first := testsupport.CreateEvent(t, db, "v1", "/", base.In(berlin))
	testsupport.CreateEvent(t, db, "v1", "/cart", base.Add(time.Minute),
		testsupport.WithType(events.EventTypeAddToCart, map[string]any{"productId": "p-1"}))
	testsupport.CreateEvent(t, db, "v2", "/", base.Add(2*time.Minute), testsupport.AsAutomated())
	testsupport.CreateEvent(t, db, "v3", "/", base.Add(-48*time.Hour))

	assert.NotEmpty(t, first.ID)
	assert.Equal(t, time.UTC, first.Timestamp.Location(), "timestamps are stored in UTC")

	t.Run("window filters are half open", func(t *testing.T) {
		count, err := events.CountEvents(db, events.EventFilters{From: base, To: base.Add(2 * time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("type and human filters", func(t *testing.T) {
		count, err := events.CountEvents(db, events.EventFilters{EventTypes: []events.EventType{events.EventTypePageView}, HumanOnly: true})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("newest first with limit", func(t *testing.T) {
		list, err := events.GetFilteredEvents(db, events.EventFilters{Limit: 2})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "v2", list[0].VisitorID)
		assert.Equal(t, "/cart", list[1].Path)
		assert.Equal(t, events.CartData{ProductID: "p-1"}, list[1].Data())
	})

	t.Run("first seen per visitor", func(t *testing.T) {
		seen, err := events.FirstSeen(db, []string{"v1", "v3", "missing"})
		require.NoError(t, err)
		assert.True(t, base.Equal(seen["v1"]))
		assert.True(t, base.Add(-48*time.Hour).Equal(seen["v3"]))
		_, ok := seen["missing"]
		assert.False(t, ok)
	})

	t.Run("earliest timestamp", func(t *testing.T) {
		earliest, err := events.EarliestTimestamp(db)
		require.NoError(t, err)
		assert.True(t, base.Add(-48*time.Hour).Equal(earliest))
	})
}

func TestRecordBotHit(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	at := time.Date(2025, 6, 1, 12, 15, 0, 0, time.UTC)

	require.NoError(t, events.RecordBotHit(db, "Googlebot", at))
	require.NoError(t, events.RecordBotHit(db, "Googlebot", at.Add(30*time.Minute)))
	require.NoError(t, events.RecordBotHit(db, "Googlebot", at.Add(time.Hour)))
	require.NoError(t, events.RecordBotHit(db, "Bingbot", at))

	var stats []events.BotStat
	require.NoError(t, db.Order("bot_name, hour").Find(&stats).Error)
	require.Len(t, stats, 3)
	assert.Equal(t, "Bingbot", stats[0].BotName)
	assert.Equal(t, int64(1), stats[0].Hits)
	assert.Equal(t, "Googlebot", stats[1].BotName)
	assert.Equal(t, int64(2), stats[1].Hits)
	assert.Equal(t, int64(1), stats[2].Hits)

	var stored []events.VisitorEvent
	require.NoError(t, db.Find(&stored).Error)
	assert.Empty(t, stored, "bot hits are tallied, never stored as events")
}

func TestEmptyStore(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	earliest, err := events.EarliestTimestamp(db)
	require.NoError(t, err)
	assert.True(t, earliest.IsZero())

	seen, err := events.FirstSeen(db, nil)
	require.NoError(t, err)
	assert.Empty(t, seen)

	list, err := events.GetFilteredEvents(db, events.EventFilters{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestParseDBTime(t *testing.T) {
	want := time.Date(2025, 6, 1, 12, 0, 0, 500, time.UTC)
	for _, value := range []string{
		"2025-06-01T12:00:00.0000005Z",
		"2025-06-01 12:00:00.0000005+00:00",
		"2025-06-01 14:00:00.0000005+02:00",
		"2025-06-01 12:00:00.0000005",
	} {
		got, err := events.ParseDBTime(value)
		require.NoError(t, err, value)
		assert.True(t, want.Equal(got), value)
	}

	_, err := events.ParseDBTime("yesterday")
	assert.Error(t, err)
}
