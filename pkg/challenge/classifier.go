package challenge

import (
	"net/http"
	"regexp"
	"strings"
)

// Kind identifies which challenge system gated the response.
type Kind string

const (
	KindRecaptchaV2 Kind = "recaptcha_v2"
	KindHCaptcha    Kind = "hcaptcha"
)

// Classification is the verdict for one response: ordinary content, or
// a challenge page with enough detail to start a solve.
type Classification struct {
	Challenge bool
	Kind      Kind
	// SiteKey is the key embedded in the page, when present. Empty
	// means the coordinator falls back to configured site keys.
	SiteKey string
}

// ClassifierFunc inspects one response. The heuristic is content
// dependent, so it is pluggable; DefaultClassifier covers the targets
// this scraper knows about.
type ClassifierFunc func(status int, header http.Header, body []byte) Classification

var siteKeyPattern = regexp.MustCompile(`data-sitekey="([^"]+)"`)

// DefaultClassifier detects challenge interstitials conservatively.
// Only a blocking status combined with an unmistakable widget marker
// counts; anything ambiguous is treated as ordinary content and left
// to the normal retry path.
func DefaultClassifier(status int, header http.Header, body []byte) Classification {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
	default:
		return Classification{}
	}

	page := strings.ToLower(string(body))

	var kind Kind
	switch {
	case strings.Contains(page, "g-recaptcha") || strings.Contains(page, "google.com/recaptcha"):
		kind = KindRecaptchaV2
	case strings.Contains(page, "hcaptcha.com") || strings.Contains(page, "h-captcha"):
		kind = KindHCaptcha
	default:
		return Classification{}
	}

	c := Classification{Challenge: true, Kind: kind}
	if m := siteKeyPattern.FindSubmatch(body); m != nil {
		c.SiteKey = string(m[1])
	}
	return c
}
