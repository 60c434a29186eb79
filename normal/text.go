package normal

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

const (
	// DefaultEnglishThreshold is the ASCII letter ratio below which general
	// text is considered non-English.
	DefaultEnglishThreshold = 0.35
	// AbstractEnglishThreshold is used before replacing an abstract with a
	// fallback; more text qualifies as non-English than with the default.
	AbstractEnglishThreshold = 0.45

	maxUnescapePasses = 4
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleBlock  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	anyTag      = regexp.MustCompile(`<[^>]+>`)

	spaceBeforeComma = regexp.MustCompile(`\s+,`)
	spaceAfterParen  = regexp.MustCompile(`\(\s+`)
	spaceBeforeParen = regexp.MustCompile(`\s+\)`)

	// PlaceholderAbstracts are emitted by upstream scrapers when no abstract
	// could be found.
	PlaceholderAbstracts = []string{
		"No abstract available in OpenAlex metadata.",
		"No abstract available in discovery metadata.",
		"No abstract available in llvm.org/pubs metadata.",
		"No abstract available in llvmorgpubs metadata.",
		"No abstract available in llvm org pubs metadata.",
	}
	placeholderKeys = make(map[string]struct{})

	missingAffiliation = map[string]struct{}{
		"":               {},
		"-":              {},
		"--":             {},
		"none":           {},
		"null":           {},
		"nan":            {},
		"n/a":            {},
		"na":             {},
		"unknown":        {},
		"no affiliation": {},
		"not available":  {},
	}
)

func init() {
	for _, p := range PlaceholderAbstracts {
		placeholderKeys[TextKey(p)] = struct{}{}
	}
}

// FullUnescape decodes HTML entities repeatedly, until a fixed point or at
// most four passes; "&amp;amp;" becomes "&".
func FullUnescape(s string) string {
	for i := 0; i < maxUnescapePasses; i++ {
		next := html.UnescapeString(s)
		if next == s {
			return next
		}
		s = next
	}
	return s
}

// StripMarkup unescapes entities, removes script and style blocks and all
// remaining tags, then collapses whitespace.
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}
	s = FullUnescape(s)
	s = scriptBlock.ReplaceAllString(s, " ")
	s = styleBlock.ReplaceAllString(s, " ")
	s = anyTag.ReplaceAllString(s, " ")
	return CollapseWS(s)
}

// Affiliation cleans an institution string and maps the usual "missing"
// sentinels (n/a, unknown, ...) to the empty string.
func Affiliation(s string) string {
	clean := strings.Trim(StripMarkup(s), " ,;|")
	clean = spaceBeforeComma.ReplaceAllString(clean, ",")
	clean = spaceAfterParen.ReplaceAllString(clean, "(")
	clean = spaceBeforeParen.ReplaceAllString(clean, ")")
	if _, ok := missingAffiliation[strings.ToLower(clean)]; ok {
		return ""
	}
	return clean
}

// IsPlaceholderAbstract reports whether an abstract is empty or one of the
// known scraper placeholders, ignoring case, punctuation and whitespace.
func IsPlaceholderAbstract(s string) bool {
	key := TextKey(s)
	if key == "" {
		return true
	}
	_, ok := placeholderKeys[key]
	return ok
}

// EnglishRatio returns the fraction of letters that are ASCII a-z, ignoring
// case. Returns 0 if there are no letters at all.
func EnglishRatio(s string) float64 {
	var letters, ascii int
	for _, r := range StripMarkup(s) {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if lr := unicode.ToLower(r); lr >= 'a' && lr <= 'z' {
			ascii++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(ascii) / float64(letters)
}

// LooksNonEnglish is true, if s has at least one letter and its English
// ratio is below threshold. Text without letters is not considered
// non-English.
func LooksNonEnglish(s string, threshold float64) bool {
	for _, r := range StripMarkup(s) {
		if unicode.IsLetter(r) {
			return EnglishRatio(s) < threshold
		}
	}
	return false
}
