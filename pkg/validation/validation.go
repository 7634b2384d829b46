// Package validation checks user-supplied scrape targets before they
// reach the dispatch core. Invalid input fails fast as a malformed
// request and never burns an attempt or a proxy.
package validation

import (
	"net/url"
	"regexp"
	"strings"

	errs "redscrape/pkg/errors"
)

var (
	subredditPattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,21}$`)
	usernamePattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,20}$`)
	postIDPattern    = regexp.MustCompile(`^[a-z0-9]{4,10}$`)
)

// reservedSubreddits are names that collide with site routing.
var reservedSubreddits = map[string]bool{
	"api":   true,
	"www":   true,
	"old":   true,
	"new":   true,
	"mod":   true,
	"admin": true,
}

// MaxLimit bounds how many items a single scrape may request.
const MaxLimit = 50000

// Subreddit normalizes and validates a subreddit name. A leading "r/"
// is stripped; the result is lowercased.
func Subreddit(name string) (string, error) {
	if name == "" {
		return "", errs.New(errs.ErrorTypeMalformed, "subreddit name cannot be empty", 0)
	}
	name = strings.TrimPrefix(name, "r/")
	if !subredditPattern.MatchString(name) {
		return "", errs.Newf(errs.ErrorTypeMalformed, 0,
			"invalid subreddit name %q: must be 1-21 characters, letters/numbers/underscores only", name)
	}
	name = strings.ToLower(name)
	if reservedSubreddits[name] {
		return "", errs.Newf(errs.ErrorTypeMalformed, 0, "subreddit name %q is reserved", name)
	}
	return name, nil
}

// Username normalizes and validates a username. A leading "u/" is
// stripped; case is preserved.
func Username(name string) (string, error) {
	if name == "" {
		return "", errs.New(errs.ErrorTypeMalformed, "username cannot be empty", 0)
	}
	name = strings.TrimPrefix(name, "u/")
	if !usernamePattern.MatchString(name) {
		return "", errs.Newf(errs.ErrorTypeMalformed, 0,
			"invalid username %q: must be 3-20 characters, letters/numbers/underscores/hyphens only", name)
	}
	return name, nil
}

// PostID validates and lowercases a post identifier.
func PostID(id string) (string, error) {
	if id == "" {
		return "", errs.New(errs.ErrorTypeMalformed, "post ID cannot be empty", 0)
	}
	id = strings.ToLower(id)
	if !postIDPattern.MatchString(id) {
		return "", errs.Newf(errs.ErrorTypeMalformed, 0,
			"invalid post ID %q: must be 4-10 characters, letters and numbers only", id)
	}
	return id, nil
}

// Limit validates an item count.
func Limit(limit int) (int, error) {
	if limit < 1 {
		return 0, errs.New(errs.ErrorTypeMalformed, "limit must be a positive integer", 0)
	}
	if limit > MaxLimit {
		return 0, errs.Newf(errs.ErrorTypeMalformed, 0, "maximum limit is %d", MaxLimit)
	}
	return limit, nil
}

// Sort validates a sort method against the set a given endpoint
// accepts.
func Sort(sort string, valid []string) (string, error) {
	if sort == "" {
		return "", errs.New(errs.ErrorTypeMalformed, "sort method cannot be empty", 0)
	}
	sort = strings.ToLower(sort)
	for _, v := range valid {
		if sort == v {
			return sort, nil
		}
	}
	return "", errs.Newf(errs.ErrorTypeMalformed, 0,
		"invalid sort method %q: valid options are %s", sort, strings.Join(valid, ", "))
}

// URL validates that a URL is absolute and speaks HTTP.
func URL(raw string) (string, error) {
	if raw == "" {
		return "", errs.New(errs.ErrorTypeMalformed, "URL cannot be empty", 0)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", errs.Newf(errs.ErrorTypeMalformed, 0, "invalid URL format %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errs.Newf(errs.ErrorTypeMalformed, 0, "invalid URL %q: only HTTP and HTTPS are allowed", raw)
	}
	return raw, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\s]`)

// SanitizeFilename makes a string safe to use as a file name.
func SanitizeFilename(name string) string {
	if name == "" {
		return "untitled"
	}
	out := unsafeFilenameChars.ReplaceAllString(name, "_")
	if len(out) > 100 {
		out = out[:100]
	}
	out = strings.Trim(out, "_")
	if out == "" {
		return "untitled"
	}
	return out
}
