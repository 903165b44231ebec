package referrers

import "strings"

// Common referrer hostnames mapped to friendly display names
var knownReferrers = map[string]string{
	// Search engines
	"google.com":       "Google",
	"google.co.uk":     "Google",
	"google.de":        "Google",
	"google.fr":        "Google",
	"google.es":        "Google",
	"google.it":        "Google",
	"google.ca":        "Google",
	"google.com.au":    "Google",
	"google.co.in":     "Google",
	"google.com.br":    "Google",
	"bing.com":         "Bing",
	"duckduckgo.com":   "DuckDuckGo",
	"yahoo.com":        "Yahoo",
	"search.yahoo.com": "Yahoo",
	"baidu.com":        "Baidu",
	"yandex.ru":        "Yandex",
	"yandex.com":       "Yandex",
	"ecosia.org":       "Ecosia",

	// Social media
	"x.com":           "X/Twitter",
	"twitter.com":     "X/Twitter",
	"t.co":            "X/Twitter",
	"facebook.com":    "Facebook",
	"fb.com":          "Facebook",
	"l.facebook.com":  "Facebook",
	"lm.facebook.com": "Facebook",
	"instagram.com":   "Instagram",
	"l.instagram.com": "Instagram",
	"linkedin.com":    "LinkedIn",
	"lnkd.in":         "LinkedIn",
	"tiktok.com":      "TikTok",
	"pinterest.com":   "Pinterest",
	"reddit.com":      "Reddit",
	"old.reddit.com":  "Reddit",
	"youtube.com":     "YouTube",
	"youtu.be":        "YouTube",
	"threads.net":     "Threads",
	"bsky.app":        "Bluesky",
	"discord.com":     "Discord",
	"whatsapp.com":    "WhatsApp",
	"t.me":            "Telegram",

	// Email providers (for newsletter clicks)
	"mail.google.com":    "Gmail",
	"gmail.com":          "Gmail",
	"outlook.live.com":   "Outlook",
	"outlook.office.com": "Outlook",
	"hotmail.com":        "Hotmail",
	"mail.yahoo.com":     "Yahoo Mail",
	"mailchimp.com":      "Mailchimp",
	"mail.proton.me":     "Proton Mail",

	// Ad networks
	"googleadservices.com":  "Google Ads",
	"ads.google.com":        "Google Ads",
	"doubleclick.net":       "DoubleClick",
	"googlesyndication.com": "Google AdSense",
	"ads.linkedin.com":      "LinkedIn Ads",
	"ads.tiktok.com":        "TikTok Ads",

	// Link shorteners
	"bit.ly":      "Bitly",
	"tinyurl.com": "TinyURL",
	"ow.ly":       "Hootsuite",
}

// FriendlyName returns a human-friendly name for a referrer hostname.
// If the hostname is not in the known list, it returns the hostname
// with common prefixes like "www." removed and first letter capitalized.
func FriendlyName(hostname string) string {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	hostname = strings.TrimPrefix(hostname, "www.")
	if hostname == "" {
		return ""
	}

	// Exact match first, then walk up parent domains so the most specific entry wins
	candidate := hostname
	for {
		if name, ok := knownReferrers[candidate]; ok {
			return name
		}
		dot := strings.IndexByte(candidate, '.')
		if dot < 0 {
			break
		}
		candidate = candidate[dot+1:]
	}

	return capitalizeFirst(hostname)
}

// capitalizeFirst capitalizes the first letter of a string
func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
