package seeder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/internal/events"
	"storepulse/internal/testsupport"
)

func TestSeederRun(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	s := NewSeeder(dbManager, logger, 60, 7)
	require.NoError(t, s.Run(context.Background()))

	stored, err := events.GetFilteredEvents(db, events.EventFilters{})
	require.NoError(t, err)

	var botHits int64
	require.NoError(t, db.Model(&events.BotStat{}).Select("COALESCE(SUM(hits), 0)").Scan(&botHits).Error)
	assert.GreaterOrEqual(t, int64(len(stored))+botHits, int64(60), "every beacon is either stored or tallied")

	oldest := time.Now().AddDate(0, 0, -8)
	for _, event := range stored {
		assert.True(t, event.Timestamp.After(oldest), "event %s is older than the seeded range", event.ID)
		assert.True(t, event.Timestamp.Before(time.Now()), "event %s is in the future", event.ID)
		assert.NotNil(t, event.City)
	}
}

func TestSeederHonorsCancellation(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSeeder(dbManager, logger, 1000, 30).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCityResolverIsStable(t *testing.T) {
	first, err := cityResolver{}.Resolve(context.Background(), "198.51.100.7")
	require.NoError(t, err)
	second, err := cityResolver{}.Resolve(context.Background(), "198.51.100.7")
	require.NoError(t, err)

	assert.Equal(t, first.City, second.City)
	assert.NotEmpty(t, first.CountryCode)
}

func TestAddUTMParamsKeepsPath(t *testing.T) {
	for i := 0; i < 50; i++ {
		path := addUTMParams("/collections/mugs?sort=price")
		assert.Contains(t, path, "/collections/mugs")
		assert.Contains(t, path, "sort=price")
	}
}
