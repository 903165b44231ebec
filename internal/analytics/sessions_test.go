package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/internal/events"
	"storepulse/internal/testsupport"
	"storepulse/internal/timeframe"
)

func TestBuildSessions(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	hit := func(visitor, path string, offset time.Duration) pageHit {
		return pageHit{VisitorID: visitor, Path: path, Timestamp: base.Add(offset)}
	}

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, buildSessions(nil, 30*time.Minute))
	})

	t.Run("splits on gap and visitor", func(t *testing.T) {
		hits := []pageHit{
			hit("b", "/", 0),
			hit("a", "/", 0),
			hit("a", "/products", 5*time.Minute),
			hit("a", "/cart", 50*time.Minute),
		}

		sessions := buildSessions(hits, 30*time.Minute)
		require.Len(t, sessions, 3)

		assert.Equal(t, "a", sessions[0].VisitorID)
		assert.Len(t, sessions[0].Hits, 2)
		assert.Equal(t, 5*time.Minute, sessions[0].Duration())

		assert.Equal(t, "a", sessions[1].VisitorID)
		assert.True(t, sessions[1].Bounced())

		assert.Equal(t, "b", sessions[2].VisitorID)
		assert.True(t, sessions[2].Bounced())
		assert.Zero(t, sessions[2].Duration())
	})

	t.Run("gap equal to timeout keeps session", func(t *testing.T) {
		hits := []pageHit{hit("a", "/", 0), hit("a", "/next", 30*time.Minute)}
		assert.Len(t, buildSessions(hits, 30*time.Minute), 1)
	})

	t.Run("does not reorder caller slice", func(t *testing.T) {
		hits := []pageHit{hit("b", "/", 0), hit("a", "/", 0)}
		buildSessions(hits, time.Minute)
		assert.Equal(t, "b", hits[0].VisitorID)
	})
}

func TestEachSessionMatchesBuildSessions(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	svc := NewService(db, testsupport.GetLogger(), Options{SessionGap: 30 * time.Minute})
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	testsupport.CreateEvent(t, db, "b", "/", base)
	testsupport.CreateEvent(t, db, "a", "/products", base.Add(5*time.Minute))
	testsupport.CreateEvent(t, db, "a", "/", base)
	testsupport.CreateEvent(t, db, "a", "/cart", base.Add(50*time.Minute))
	testsupport.CreateEvent(t, db, "a", "/", base.Add(time.Minute), testsupport.WithType(events.EventTypeButtonClick, nil))

	var streamed []session
	w := timeframe.NewWindow(timeframe.RangeToday, base.Add(time.Hour), time.UTC)
	require.NoError(t, svc.eachSession(context.Background(), w, func(sess session) {
		streamed = append(streamed, sess)
	}))

	require.Len(t, streamed, 3)
	assert.Equal(t, "a", streamed[0].VisitorID)
	assert.Equal(t, []string{"/", "/products"}, []string{streamed[0].Hits[0].Path, streamed[0].Hits[1].Path})
	assert.Equal(t, 5*time.Minute, streamed[0].Duration())
	assert.True(t, streamed[1].Bounced())
	assert.Equal(t, "/cart", streamed[1].Hits[0].Path)
	assert.Equal(t, "b", streamed[2].VisitorID)
}

func TestSummarizeSessions(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, sessionStats{}, summarizeSessions(nil))

	sessions := []session{
		{VisitorID: "a", Hits: []pageHit{
			{VisitorID: "a", Path: "/", Timestamp: base},
			{VisitorID: "a", Path: "/p", Timestamp: base.Add(60 * time.Second)},
			{VisitorID: "a", Path: "/c", Timestamp: base.Add(120 * time.Second)},
		}},
		{VisitorID: "b", Hits: []pageHit{{VisitorID: "b", Path: "/", Timestamp: base}}},
	}

	stats := summarizeSessions(sessions)
	assert.Equal(t, int64(2), stats.Sessions)
	assert.Equal(t, 60.0, stats.AvgDuration)
	assert.Equal(t, 2.0, stats.AvgPagesPerSession)
	assert.Equal(t, 50.0, stats.BounceRate)
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		name        string
		successor   int64
		predecessor int64
		want        string
	}{
		{"zero predecessor", 5, 0, "0"},
		{"zero successor", 0, 5, "0"},
		{"whole percent", 1, 2, "50"},
		{"two decimals", 1, 3, "33.33"},
		{"trailing zero trimmed", 1, 8, "12.5"},
		{"above one hundred", 3, 2, "150"},
		{"full", 4, 4, "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatRate(tt.successor, tt.predecessor))
		})
	}
}

func TestPercentageHelpers(t *testing.T) {
	assert.Equal(t, 0.0, percentage(3, 0))
	assert.Equal(t, 66.67, percentage(2, 3))
	assert.Equal(t, 0.0, percentageChange(10, 0))
	assert.Equal(t, 100.0, percentageChange(20, 10))
	assert.Equal(t, -50.0, percentageChange(5, 10))
}

func TestFunnelRates(t *testing.T) {
	var funnel FunnelCounts
	funnel.add(events.EventTypeProductView, 4)
	funnel.add(events.EventTypeAddToCart, 1)
	funnel.add(events.EventTypePurchase, 1)
	funnel.add(events.EventTypePageView, 10)

	assert.Equal(t, FunnelCounts{ProductViews: 4, AddedToCart: 1, Purchases: 1}, funnel)
	assert.Equal(t, ConversionRates{
		ViewToCart:         "25",
		CartToCheckout:     "0",
		CheckoutToPurchase: "0",
		Overall:            "25",
	}, funnel.Rates())
}
