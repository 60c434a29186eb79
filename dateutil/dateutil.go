// Package dateutil provides timestamp handling for cache freshness and data
// versions.
package dateutil

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const (
	// TimeLayout is used for all timestamps we write.
	TimeLayout = "2006-01-02T15:04:05Z"
	// DataVersionSuffix identifies the single database build.
	DataVersionSuffix = "-papers-single-db-openalex-v1"
)

// Parse parses a timestamp in any common format; timestamps without a zone
// are taken as UTC. The result is in UTC.
func Parse(value string) (time.Time, error) {
	t, err := dateparse.ParseIn(strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// MustParse is like Parse but panics on error
func MustParse(value string) time.Time {
	t, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return t
}

// Stamp formats t in UTC with second precision.
func Stamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimeLayout)
}

// OlderThan reports whether the timestamp value is at least days old at
// time t. Unparsable or empty values count as old. A negative number of days
// disables the check.
func OlderThan(value string, days int, t time.Time) bool {
	if days < 0 {
		return false
	}
	if strings.TrimSpace(value) == "" {
		return true
	}
	parsed, err := Parse(value)
	if err != nil {
		return true
	}
	return t.Sub(parsed) >= time.Duration(days)*24*time.Hour
}

// DataVersion returns the manifest data version for the UTC day of t, e.g.
// "2026-10-18-papers-single-db-openalex-v1".
func DataVersion(t time.Time) string {
	return t.UTC().Format("2006-01-02") + DataVersionSuffix
}
