// Package topics assigns canonical tags to records.
package topics

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/llvm-library/papersdb/normal"
	"github.com/llvm-library/papersdb/schema/papers"
	"github.com/segmentio/encoding/json"
)

// MaxKeywords per record.
const MaxKeywords = 24

var (
	ErrNoTags = errors.New("no tags found in vocabulary")

	allTagsDecl = regexp.MustCompile(`(?s)const\s+ALL_TAGS\s*=\s*\[(.*?)\];`)
	quotedTag   = regexp.MustCompile(`'([^']+)'|"([^"]+)"`)
	nonAlnum    = regexp.MustCompile(`[^a-z0-9]+`)
)

// Extractor finds tags and keywords for a paper.
type Extractor interface {
	Extract(title, abstract, publication, venue string) (tags, keywords []string)
}

// tagKey identifies a tag regardless of case, spacing and punctuation.
func tagKey(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(normal.CollapseWS(s)), "")
}

// Vocabulary matches a fixed list of canonical tags in text.
type Vocabulary struct {
	tags     []string
	patterns []*regexp.Regexp
}

// NewVocabulary returns a vocabulary for the given tags; tags with the same
// key are kept once, first one wins.
func NewVocabulary(tags []string) *Vocabulary {
	var (
		v    = &Vocabulary{}
		seen = make(map[string]bool)
	)
	for _, tag := range tags {
		tag = normal.CollapseWS(tag)
		key := tagKey(tag)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		// Tags like "C++" end in punctuation, so \b cannot be used.
		p := regexp.MustCompile(`(?i)(?:^|[^a-z0-9])` + regexp.QuoteMeta(tag) + `(?:$|[^a-z0-9])`)
		v.tags = append(v.tags, tag)
		v.patterns = append(v.patterns, p)
	}
	return v
}

// LoadVocabulary reads tags from a JSON list or from a script file, which
// declares them as "const ALL_TAGS = [...]".
func LoadVocabulary(filename string) (*Vocabulary, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	tags, err := parseTags(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return NewVocabulary(tags), nil
}

func parseTags(b []byte) ([]string, error) {
	var tags []string
	if err := json.Unmarshal(b, &tags); err == nil {
		if len(tags) == 0 {
			return nil, ErrNoTags
		}
		return tags, nil
	}
	m := allTagsDecl.FindSubmatch(b)
	if m == nil {
		return nil, ErrNoTags
	}
	for _, q := range quotedTag.FindAllSubmatch(m[1], -1) {
		tag := string(q[1])
		if tag == "" {
			tag = string(q[2])
		}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return nil, ErrNoTags
	}
	return tags, nil
}

// Tags returns the canonical tags.
func (v *Vocabulary) Tags() []string {
	return v.tags
}

// Extract returns the tags found in any of the fields, in vocabulary order.
// Matched tags double as keywords.
func (v *Vocabulary) Extract(title, abstract, publication, venue string) (tags, keywords []string) {
	text := normal.CollapseWS(strings.Join([]string{title, abstract, publication, venue}, " "))
	if text == "" {
		return nil, nil
	}
	for i, p := range v.patterns {
		if p.MatchString(text) {
			tags = append(tags, v.tags[i])
		}
	}
	return tags, tags
}

// Apply tags records without tags and a non-empty title. Keywords are
// extended with the found terms, up to MaxKeywords. Returns the number of
// records changed.
func Apply(ex Extractor, records []papers.Record) int {
	var changed int
	for i := range records {
		r := &records[i]
		if len(r.Tags) > 0 || normal.CollapseWS(r.Title) == "" {
			continue
		}
		tags, keywords := ex.Extract(r.Title, r.Abstract, r.Publication, r.Venue)
		if len(tags) == 0 && len(keywords) == 0 {
			continue
		}
		r.Tags = normal.DedupeFold(tags)
		kws := normal.DedupeFold(r.Keywords, keywords, r.Tags)
		if len(kws) > MaxKeywords {
			kws = kws[:MaxKeywords]
		}
		r.Keywords = kws
		changed++
	}
	return changed
}
