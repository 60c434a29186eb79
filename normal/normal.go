// Package normal provides string normalizations used to compare and clean
// bibliographic metadata: whitespace, markup, titles, names, affiliations,
// DOI and OpenAlex identifiers.
package normal

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Pipeline applies a number of normalizers in order.
type Pipeline struct {
	Normalizer []Normalizer
}

func (p *Pipeline) Normalize(s string) string {
	for _, n := range p.Normalizer {
		s = n.Normalize(s)
	}
	return s
}

type Normalizer interface {
	Normalize(string) string
}

// NormalizerFunc adapts a plain function to a Normalizer.
type NormalizerFunc func(string) string

func (f NormalizerFunc) Normalize(s string) string { return f(s) }

type SimpleNormalizer struct{}

func (s *SimpleNormalizer) Normalize(v string) string {
	return strings.ToLower(v)
}

// AlnumSpaceNormalizer replaces every run of characters outside [a-z0-9 ]
// with a single space. Expects lowercased input.
type AlnumSpaceNormalizer struct{}

func (s *AlnumSpaceNormalizer) Normalize(v string) string {
	return nonAlnumSpace.ReplaceAllString(v, " ")
}

// FoldNormalizer decomposes (NFKD) and drops combining marks, so "Müller"
// becomes "Muller".
type FoldNormalizer struct{}

func (s *FoldNormalizer) Normalize(v string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	result, _, err := transform.String(t, v)
	if err != nil {
		return v
	}
	return result
}

var (
	nonAlnumSpace = regexp.MustCompile(`[^a-z0-9 ]+`)

	titleKeyPipeline = &Pipeline{Normalizer: []Normalizer{
		NormalizerFunc(StripMarkup),
		&SimpleNormalizer{},
		&AlnumSpaceNormalizer{},
		NormalizerFunc(CollapseWS),
	}}
	nameKeyPipeline = &Pipeline{Normalizer: []Normalizer{
		NormalizerFunc(StripMarkup),
		&FoldNormalizer{},
		&SimpleNormalizer{},
		&AlnumSpaceNormalizer{},
		NormalizerFunc(CollapseWS),
	}}
)

// CollapseWS replaces any run of whitespace with a single space and trims
// both ends.
func CollapseWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TitleKey is the comparison key for titles: no markup, lowercase, only
// ASCII letters, digits and single spaces.
func TitleKey(s string) string {
	return titleKeyPipeline.Normalize(s)
}

// TextKey is an alias for TitleKey, used when comparing arbitrary text
// snippets, e.g. abstracts or candidate strings.
func TextKey(s string) string {
	return titleKeyPipeline.Normalize(s)
}

// NameKey is the comparison key for person names; diacritics are folded
// before non-ASCII characters are dropped.
func NameKey(s string) string {
	return nameKeyPipeline.Normalize(s)
}

// DedupeFold removes empty values and case-insensitive duplicates, keeping
// the first occurrence and its spelling. Values are whitespace-collapsed.
func DedupeFold(values ...[]string) []string {
	var (
		result []string
		seen   = make(map[string]struct{})
	)
	for _, vs := range values {
		for _, v := range vs {
			clean := CollapseWS(v)
			if clean == "" {
				continue
			}
			key := strings.ToLower(clean)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, clean)
		}
	}
	return result
}
