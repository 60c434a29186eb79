package normal

import (
	"regexp"
	"strings"
)

const openAlexPrefix = "https://openalex.org/"

var (
	doiURLPrefix  = regexp.MustCompile(`^https?://(?:dx\.)?doi\.org/`)
	doiPrefix     = regexp.MustCompile(`^doi:\s*`)
	doiPattern    = regexp.MustCompile(`10\.\d{4,9}/\S+`)
	openAlexShort = regexp.MustCompile(`^W\d+$`)
)

// DOI extracts a lowercased DOI from a raw value, which may be a doi.org
// link, a "doi:" prefixed string or contain a DOI somewhere. Trailing
// punctuation is dropped. Returns the empty string if nothing DOI-shaped
// can be found.
func DOI(s string) string {
	raw := strings.ToLower(CollapseWS(s))
	if raw == "" {
		return ""
	}
	raw = doiURLPrefix.ReplaceAllString(raw, "")
	raw = doiPrefix.ReplaceAllString(raw, "")
	match := doiPattern.FindString(raw)
	if match == "" {
		return ""
	}
	return strings.TrimRight(match, ".,;)")
}

// LenientDOI is like DOI, but falls back to the lowercased, trimmed input,
// if it does not look like a DOI, e.g. short test prefixes like "10.1/x".
func LenientDOI(s string) string {
	if v := DOI(s); v != "" {
		return v
	}
	return strings.TrimRight(strings.ToLower(CollapseWS(s)), ".,;)")
}

// OpenAlexShortID returns the uppercased work id (W123...) from a bare id
// or any URL ending in one, or the empty string.
func OpenAlexShortID(s string) string {
	raw := strings.TrimRight(CollapseWS(s), "/")
	if raw == "" {
		return ""
	}
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	raw = strings.ToUpper(raw)
	if openAlexShort.MatchString(raw) {
		return raw
	}
	return ""
}

// OpenAlexURL returns the canonical URL for a short id, or the empty string.
func OpenAlexURL(shortID string) string {
	if shortID == "" {
		return ""
	}
	return openAlexPrefix + shortID
}
