// Package landing extracts English title and abstract candidates from
// publisher landing pages. Pages are often partial or broken HTML, so
// extraction never fails on content, only on unreadable input.
package landing

import (
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/llvm-library/papersdb/normal"
	"github.com/segmentio/encoding/json"
)

// maxScriptSize is the maximum length of a script block to scan for
// embedded string literals.
const maxScriptSize = 1500000

var (
	// TitleMetaKeys are substrings of meta names, that carry a title.
	TitleMetaKeys = []string{
		"citation_title",
		"dc.title",
		"dcterms.title",
		"title",
		"og:title",
		"twitter:title",
	}
	// AbstractMetaKeys are substrings of meta names, that carry an abstract.
	AbstractMetaKeys = []string{
		"citation_abstract",
		"dc.description",
		"dcterms.abstract",
		"description",
		"og:description",
		"twitter:description",
	}

	scriptTitle = regexp.MustCompile(`(?is)((?:translated|english)?title|headline|name|citation_title|dc\.title|dcterms\.title)` +
		`\s*[:=]\s*(?:"((?:\\.|[^"\\])+)"|'((?:\\.|[^'\\])+)')`)
	scriptAbstract = regexp.MustCompile(`(?is)((?:translated|english)?abstract|description|summary|citation_abstract|dc\.description|dcterms\.abstract)` +
		`\s*[:=]\s*(?:"((?:\\.|[^"\\])+)"|'((?:\\.|[^'\\])+)')`)
)

// literalBounds are the accepted rune lengths of raw script literals.
type literalBounds struct {
	min, max int
}

var (
	titleLiteral    = literalBounds{4, 1600}
	abstractLiteral = literalBounds{20, 12000}
)

// Candidate is a title or abstract found on a page, labeled with where it
// came from, e.g. "citation_title|lang=en", "html:title", "ldjson:headline"
// or "script:translatedtitle".
type Candidate struct {
	Label string
	Value string
}

// collector gathers cleaned candidates.
type collector struct {
	titles    []Candidate
	abstracts []Candidate
}

func (c *collector) addTitle(label, value string) {
	if clean := normal.StripMarkup(value); clean != "" {
		c.titles = append(c.titles, Candidate{Label: label, Value: clean})
	}
}

func (c *collector) addAbstract(label, value string) {
	if clean := normal.StripMarkup(value); clean != "" {
		c.abstracts = append(c.abstracts, Candidate{Label: label, Value: clean})
	}
}

// Extract parses an HTML page and returns title and abstract candidates from
// meta tags, the title element, JSON-LD blocks and string literals in
// scripts, in this order. Candidates are deduplicated by normalized text,
// the first occurrence wins.
func Extract(r io.Reader) (titles, abstracts []Candidate, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, nil, err
	}
	var c collector
	extractMeta(doc, &c)
	if s := doc.Find("title").First(); s.Length() > 0 {
		c.addTitle("html:title", s.Text())
	}
	extractLinkedData(doc, &c)
	var s collector
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		extractScript(sel.Text(), &s)
	})
	titles = dedupe(append(c.titles, s.titles...))
	abstracts = dedupe(append(c.abstracts, s.abstracts...))
	return titles, abstracts, nil
}

// ExtractString is a convenience wrapper around Extract.
func ExtractString(page string) (titles, abstracts []Candidate, err error) {
	return Extract(strings.NewReader(page))
}

func langHint(s *goquery.Selection) string {
	for _, attr := range []string{"xml:lang", "lang"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return normal.CollapseWS(strings.ToLower(v))
		}
	}
	return ""
}

func containsAny(s string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func extractMeta(doc *goquery.Document, c *collector) {
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		var name string
		for _, attr := range []string{"name", "property", "itemprop"} {
			if v, ok := s.Attr(attr); ok && v != "" {
				name = normal.CollapseWS(strings.ToLower(v))
				break
			}
		}
		content, ok := s.Attr("content")
		if !ok || content == "" || name == "" {
			return
		}
		label := name
		if hint := langHint(s); hint != "" {
			label = label + "|lang=" + hint
		}
		if containsAny(name, TitleMetaKeys) {
			c.addTitle(label, content)
		}
		if containsAny(name, AbstractMetaKeys) {
			c.addAbstract(label, content)
		}
	})
}

func extractLinkedData(doc *goquery.Document, c *collector) {
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		if !strings.EqualFold(strings.TrimSpace(typ), "application/ld+json") {
			return
		}
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var payload interface{}
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return
		}
		nodes, ok := payload.([]interface{})
		if !ok {
			nodes = []interface{}{payload}
		}
		for _, n := range nodes {
			node, ok := n.(map[string]interface{})
			if !ok {
				continue
			}
			var hint string
			if v, ok := node["inLanguage"].(string); ok {
				hint = normal.CollapseWS(strings.ToLower(v))
			}
			label := func(key string) string {
				if hint != "" {
					return "ldjson:" + key + "|lang=" + hint
				}
				return "ldjson:" + key
			}
			for _, key := range []string{"headline", "name", "title"} {
				if v, ok := node[key].(string); ok {
					c.addTitle(label(key), v)
				}
			}
			for _, key := range []string{"description", "abstract"} {
				if v, ok := node[key].(string); ok {
					c.addAbstract(label(key), v)
				}
			}
		}
	})
}

func extractScript(block string, c *collector) {
	if block == "" {
		return
	}
	text := normal.FullUnescape(block)
	if len(text) > maxScriptSize {
		return
	}
	for _, m := range literalMatches(scriptTitle, text, titleLiteral) {
		c.addTitle("script:"+m.Label, decodeStringLiteral(m.Value))
	}
	for _, m := range literalMatches(scriptAbstract, text, abstractLiteral) {
		c.addAbstract("script:"+m.Label, decodeStringLiteral(m.Value))
	}
}

// literalMatches returns key and raw value of all quoted assignments whose
// value length is within bounds.
func literalMatches(re *regexp.Regexp, text string, b literalBounds) []Candidate {
	var result []Candidate
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		value := m[2]
		if value == "" {
			value = m[3]
		}
		if n := len([]rune(value)); n < b.min || n > b.max {
			continue
		}
		result = append(result, Candidate{
			Label: normal.CollapseWS(strings.ToLower(m[1])),
			Value: value,
		})
	}
	return result
}

// decodeStringLiteral resolves JSON escapes in a raw literal. Literals that
// are not valid JSON get the common escapes replaced.
func decodeStringLiteral(raw string) string {
	if raw == "" {
		return ""
	}
	for _, candidate := range []string{raw, normal.FullUnescape(raw)} {
		var s string
		if err := json.Unmarshal([]byte(`"`+candidate+`"`), &s); err == nil {
			return s
		}
	}
	r := strings.NewReplacer(`\/`, "/", `\n`, " ", `\r`, " ", `\t`, " ", `\"`, `"`)
	return normal.CollapseWS(normal.FullUnescape(r.Replace(raw)))
}

func dedupe(cs []Candidate) []Candidate {
	var (
		result []Candidate
		seen   = make(map[string]bool)
	)
	for _, c := range cs {
		key := normal.TextKey(c.Value)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, c)
	}
	return result
}
