package solver

import (
	"net/url"
	"strings"
)

// SiteKeys maps target domains to their challenge site keys.
type SiteKeys map[string]string

// Lookup resolves the site key for a page URL. It tries the exact
// domain first, then flips the www prefix either way, since targets
// frequently serve the same challenge from both forms.
func (s SiteKeys) Lookup(pageURL string) (string, bool) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	domain := u.Hostname()
	if domain == "" {
		return "", false
	}

	if key, ok := s[domain]; ok {
		return key, true
	}
	if stripped, ok := strings.CutPrefix(domain, "www."); ok {
		if key, ok := s[stripped]; ok {
			return key, true
		}
	} else if key, ok := s["www."+domain]; ok {
		return key, true
	}
	return "", false
}
