package analytics

import (
	"context"
	"time"

	"gorm.io/gorm"

	"storepulse/internal/pkg/referrers"
	"storepulse/internal/timeframe"
)

// ReferrerBreakdown groups page views by traffic source.
type ReferrerBreakdown struct {
	Categories      []BreakdownItem `json:"categories"`
	Platforms       []BreakdownItem `json:"platforms"`
	SearchEngines   []BreakdownItem `json:"searchEngines"`
	SocialPlatforms []BreakdownItem `json:"socialPlatforms"`
	UTMSources      []BreakdownItem `json:"utmSources"`
	UTMMediums      []BreakdownItem `json:"utmMediums"`
	UTMCampaigns    []BreakdownItem `json:"utmCampaigns"`
}

func inCategory(category referrers.Category) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("referrer_category = ?", string(category))
	}
}

func notEmpty(column string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(column + " <> ''")
	}
}

// Referrers returns category, platform and campaign breakdowns. Lists other
// than categories leave out page views without a value.
func (s *Service) Referrers(ctx context.Context, w timeframe.Window) (*ReferrerBreakdown, error) {
	defer observe("referrers", time.Now())

	const unknown = "unknown"
	queries := []struct {
		column string
		scopes []func(*gorm.DB) *gorm.DB
	}{
		{column: "referrer_category"},
		{column: "referrer_platform", scopes: []func(*gorm.DB) *gorm.DB{notEmpty("referrer_platform")}},
		{column: "referrer_platform", scopes: []func(*gorm.DB) *gorm.DB{notEmpty("referrer_platform"), inCategory(referrers.CategoryOrganicSearch)}},
		{column: "referrer_platform", scopes: []func(*gorm.DB) *gorm.DB{notEmpty("referrer_platform"), inCategory(referrers.CategorySocialMedia)}},
		{column: "utm_source", scopes: []func(*gorm.DB) *gorm.DB{notEmpty("utm_source")}},
		{column: "utm_medium", scopes: []func(*gorm.DB) *gorm.DB{notEmpty("utm_medium")}},
		{column: "utm_campaign", scopes: []func(*gorm.DB) *gorm.DB{notEmpty("utm_campaign")}},
	}

	result := &ReferrerBreakdown{}
	targets := []*[]BreakdownItem{
		&result.Categories,
		&result.Platforms,
		&result.SearchEngines,
		&result.SocialPlatforms,
		&result.UTMSources,
		&result.UTMMediums,
		&result.UTMCampaigns,
	}

	for i, q := range queries {
		rows, err := s.breakdown(ctx, w, q.column, unknown, q.scopes...)
		if err != nil {
			return nil, err
		}
		*targets[i] = rows
	}
	return result, nil
}
