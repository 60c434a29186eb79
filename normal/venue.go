package normal

import (
	"regexp"
	"strings"
)

var (
	volumePart      = regexp.MustCompile(`(?i)^Vol\.\s*(.+?)(?:\s*\(Issue\s*(.+?)\))?$`)
	issuePart       = regexp.MustCompile(`(?i)^Issue\s*(.+)$`)
	volumeOrIssue   = regexp.MustCompile(`(?i)^(?:vol\.|issue\b)`)
	missingMetaKeys = map[string]struct{}{"none": {}, "null": {}, "nan": {}, "n/a": {}}
)

// MetaValue collapses whitespace and maps placeholder tokens like "None" or
// "n/a" to the empty string.
func MetaValue(s string) string {
	s = CollapseWS(s)
	if _, ok := missingMetaKeys[strings.ToLower(s)]; ok {
		return ""
	}
	return s
}

// venueParts splits a "A | B | Vol. 1" style venue into its non-empty parts.
func venueParts(venue string) []string {
	var parts []string
	for _, p := range strings.Split(CollapseWS(venue), "|") {
		if p = CollapseWS(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// Publication returns the cleaned publication, or, if there is none, the
// first venue part, unless that is a volume or issue.
func Publication(publication, venue string) string {
	if v := MetaValue(publication); v != "" {
		return v
	}
	parts := venueParts(venue)
	if len(parts) == 0 {
		return ""
	}
	first := MetaValue(parts[0])
	if first == "" || volumeOrIssue.MatchString(first) {
		return ""
	}
	return first
}

// Venue rebuilds a venue as publication, other parts and a final volume and
// issue part. Placeholder volumes and issues, as in "Vol. None (Issue None)",
// are dropped.
func Venue(publication, venue string) string {
	parts := venueParts(venue)
	var volume, issue string
	for _, p := range parts {
		if m := volumePart.FindStringSubmatch(p); m != nil {
			volume, issue = MetaValue(m[1]), MetaValue(m[2])
			continue
		}
		if m := issuePart.FindStringSubmatch(p); m != nil {
			issue = MetaValue(m[1])
		}
	}
	var out []string
	seen := make(map[string]bool)
	if publication != "" {
		out = append(out, publication)
		seen[strings.ToLower(publication)] = true
	}
	for _, p := range parts {
		p = MetaValue(p)
		if p == "" || volumeOrIssue.MatchString(p) || seen[strings.ToLower(p)] {
			continue
		}
		seen[strings.ToLower(p)] = true
		out = append(out, p)
	}
	switch {
	case volume != "" && issue != "":
		out = append(out, "Vol. "+volume+" (Issue "+issue+")")
	case volume != "":
		out = append(out, "Vol. "+volume)
	case issue != "":
		out = append(out, "Issue "+issue)
	}
	return strings.Join(out, " | ")
}
