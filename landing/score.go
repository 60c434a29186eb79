package landing

import (
	"strings"
	"unicode/utf8"

	"github.com/llvm-library/papersdb/normal"
)

const (
	// MinEnglishRatio is required of a winning candidate.
	MinEnglishRatio = 0.6
	noisePenalty    = 0.4
)

var (
	// LowQualityTitles are normalized titles of error and navigation pages.
	LowQualityTitles = map[string]bool{
		"404":            true,
		"404 not found":  true,
		"error":          true,
		"forbidden":      true,
		"access denied":  true,
		"not found":      true,
		"page not found": true,
		"home":           true,
		"homepage":       true,
		"index":          true,
		"login":          true,
		"sign in":        true,
	}
	noiseMarkers = []string{
		"all rights reserved",
		"cookie",
		"javascript is disabled",
		"subscribe",
		"sign in",
		"log in",
		"privacy policy",
	}
	provenanceMarkers = []string{"citation_", "dc.", "dcterms.", "ldjson", "script:translated", "script:english"}
	socialMarkers     = []string{"og:", "twitter:", "html:title"}
)

// LabelBonus rewards candidates with an explicit English language hint or a
// scholarly provenance.
func LabelBonus(label string) float64 {
	clean := strings.ToLower(normal.CollapseWS(label))
	var bonus float64
	if strings.Contains(clean, "lang=en") || strings.HasSuffix(clean, ":en") || strings.HasSuffix(clean, "|en") {
		bonus += 0.2
	}
	if strings.Contains(clean, "english") {
		bonus += 0.15
	}
	if containsAny(clean, provenanceMarkers) {
		bonus += 0.08
	}
	if containsAny(clean, socialMarkers) {
		bonus += 0.02
	}
	return bonus
}

// NoisePenalty is 0.4 for text containing boilerplate, like cookie banners.
func NoisePenalty(value string) float64 {
	if containsAny(strings.ToLower(normal.CollapseWS(value)), noiseMarkers) {
		return noisePenalty
	}
	return 0
}

// Score of a candidate: English ratio, a length bonus of up to 0.2, the label
// bonus minus the noise penalty.
func Score(label, value string) float64 {
	clean := normal.StripMarkup(value)
	if clean == "" {
		return 0
	}
	lengthBonus := float64(utf8.RuneCountInString(clean)) / 400
	if lengthBonus > 0.2 {
		lengthBonus = 0.2
	}
	return normal.EnglishRatio(clean) + lengthBonus + LabelBonus(label) - NoisePenalty(clean)
}

func best(candidates []Candidate, accept func(string) bool) string {
	var (
		winner    string
		bestScore float64
	)
	for _, c := range candidates {
		clean := normal.StripMarkup(c.Value)
		if !accept(clean) {
			continue
		}
		if score := Score(c.Label, clean); score > bestScore {
			winner, bestScore = clean, score
		}
	}
	if normal.EnglishRatio(winner) < MinEnglishRatio {
		return ""
	}
	return winner
}

// BestTitle returns the highest scoring title between 8 and 320 characters,
// which is not an error page title. Returns the empty string, if the winner
// is not English enough.
func BestTitle(candidates []Candidate) string {
	return best(candidates, func(s string) bool {
		n := utf8.RuneCountInString(s)
		return n >= 8 && n <= 320 && !LowQualityTitles[normal.TextKey(s)]
	})
}

// BestAbstract is like BestTitle for abstracts between 70 and 6000
// characters.
func BestAbstract(candidates []Candidate) string {
	return best(candidates, func(s string) bool {
		n := utf8.RuneCountInString(s)
		return n >= 70 && n <= 6000
	})
}

// IsLowQualityTitle reports whether a fallback title is likely landing page
// boilerplate: an error page title, the journal name or a very short label.
func IsLowQualityTitle(value, publication, venue string) bool {
	key := normal.TextKey(value)
	if key == "" || LowQualityTitles[key] {
		return true
	}
	if pub := normal.TextKey(publication); pub != "" && key == pub {
		return true
	}
	if v := normal.TextKey(venue); v != "" && key == v {
		return true
	}
	return len(strings.Fields(key)) <= 2 && len(key) <= 20
}

// Page extracts candidates from a page and returns the best English title
// and abstract, either may be empty.
func Page(page string) (title, abstract string, err error) {
	titles, abstracts, err := ExtractString(page)
	if err != nil {
		return "", "", err
	}
	return BestTitle(titles), BestAbstract(abstracts), nil
}
