package referrers

import (
	"net/url"
	"strings"
)

// Category is the traffic source bucket of a referrer.
type Category string

const (
	CategoryDirect        Category = "Direct"
	CategoryOrganicSearch Category = "Organic Search"
	CategorySocialMedia   Category = "Social Media"
	CategoryEmail         Category = "Email"
	CategoryPaidAds       Category = "Paid Ads"
	CategoryOther         Category = "Other"
	// CategoryUnknown marks referrers that could not be parsed at all.
	CategoryUnknown Category = "Unknown"
)

// DirectHost is the cleaned host reported for direct traffic.
const DirectHost = "Direct"

// Categories lists every value Classify can return.
var Categories = []Category{
	CategoryDirect,
	CategoryOrganicSearch,
	CategorySocialMedia,
	CategoryEmail,
	CategoryPaidAds,
	CategoryOther,
	CategoryUnknown,
}

type categoryRule struct {
	category Category
	keywords []string
}

// Checked in order; the first rule with a keyword contained in the host wins.
// "yahoo" sits in both search and email, so Yahoo Mail is reported as search.
var categoryRules = []categoryRule{
	{CategoryOrganicSearch, []string{"google", "bing", "yahoo", "duckduckgo", "baidu", "yandex"}},
	{CategorySocialMedia, []string{"twitter", "x.com", "facebook", "instagram", "linkedin", "pinterest", "reddit", "tiktok", "youtube"}},
	{CategoryEmail, []string{"gmail", "outlook", "yahoo", "hotmail", "mail.", "mailchimp"}},
	{CategoryPaidAds, []string{"ad.", "ads.", "adwords", "doubleclick", "campaign"}},
}

// Classification is the result of classifying one referrer.
type Classification struct {
	Host     string
	Category Category
	// Platform is the friendly source name, empty for direct and unparseable referrers.
	Platform string
}

// SearchEngine returns the platform name when the referrer is organic search.
func (c Classification) SearchEngine() string {
	if c.Category == CategoryOrganicSearch {
		return c.Platform
	}
	return ""
}

// SocialPlatform returns the platform name when the referrer is social media.
func (c Classification) SocialPlatform() string {
	if c.Category == CategorySocialMedia {
		return c.Platform
	}
	return ""
}

// Classify maps a raw referrer URL or host to its cleaned host and category.
// It is total: every input yields exactly one category.
func Classify(referrer string) Classification {
	raw := strings.TrimSpace(referrer)
	if raw == "" || strings.EqualFold(raw, "direct") || strings.EqualFold(raw, "null") {
		return Classification{Host: DirectHost, Category: CategoryDirect}
	}

	host, ok := parseHost(raw)
	if !ok {
		return Classification{Host: raw, Category: CategoryUnknown}
	}

	return Classification{
		Host:     host,
		Category: categorize(host),
		Platform: FriendlyName(host),
	}
}

func categorize(host string) Category {
	for _, rule := range categoryRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(host, keyword) {
				return rule.category
			}
		}
	}
	return CategoryOther
}

// parseHost extracts the lower-cased host without a leading "www.".
// Inputs without a scheme, such as "google.com/search", are treated as http URLs.
func parseHost(raw string) (string, bool) {
	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "http://" + strings.TrimPrefix(candidate, "//")
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return "", false
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" || strings.ContainsAny(host, " \t") {
		return "", false
	}
	return host, true
}
