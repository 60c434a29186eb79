// Package papers contains the bundle format shared by all paper sources and
// by the combined database.
package papers

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"
)

// Record types, as used by the upstream scrapers.
const (
	TypeResearchPaper     = "research-paper"
	TypeThesis            = "thesis"
	TypePresentationPaper = "presentation-paper"
	TypeBlogPost          = "blog-post"
)

// Author of a paper, affiliation may be empty.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation"`
}

// Record is a single paper, talk or blog post. Raw records from source
// bundles and canonical records of the combined database share this shape.
type Record struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Authors            []Author `json:"authors"`
	Year               string   `json:"year"`
	Publication        string   `json:"publication"`
	Venue              string   `json:"venue"`
	Type               string   `json:"type"`
	Abstract           string   `json:"abstract"`
	ContentFormat      string   `json:"contentFormat,omitempty"`
	Content            string   `json:"content,omitempty"`
	PaperURL           string   `json:"paperUrl"`
	SourceURL          string   `json:"sourceUrl"`
	OpenAlexID         string   `json:"openalexId,omitempty"`
	DOI                string   `json:"doi"`
	Tags               []string `json:"tags"`
	Keywords           []string `json:"keywords"`
	CitationCount      *int     `json:"citationCount,omitempty"`
	MatchedAuthors     []string `json:"matchedAuthors,omitempty"`
	MatchedSubprojects []string `json:"matchedSubprojects,omitempty"`
	Source             string   `json:"source"`
	SourceName         string   `json:"sourceName"`
}

// UnmarshalJSON accepts years and citation counts as numbers or strings, as
// different scrapers emit either.
func (r *Record) UnmarshalJSON(b []byte) error {
	type plain Record
	var aux struct {
		*plain
		Year          json.RawMessage `json:"year"`
		CitationCount json.RawMessage `json:"citationCount"`
	}
	aux.plain = (*plain)(r)
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.Year = rawScalarString(aux.Year)
	r.CitationCount = nil
	if v := rawScalarString(aux.CitationCount); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c := int(n)
			r.CitationCount = &c
		}
	}
	return nil
}

// rawScalarString returns a JSON string or number as string, anything else
// as the empty string.
func rawScalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	if raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9') {
		return string(raw)
	}
	return ""
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	c := r
	if r.Authors != nil {
		c.Authors = append([]Author(nil), r.Authors...)
	}
	c.Tags = cloneStrings(r.Tags)
	c.Keywords = cloneStrings(r.Keywords)
	c.MatchedAuthors = cloneStrings(r.MatchedAuthors)
	c.MatchedSubprojects = cloneStrings(r.MatchedSubprojects)
	if r.CitationCount != nil {
		v := *r.CitationCount
		c.CitationCount = &v
	}
	return c
}

func cloneStrings(ss []string) []string {
	if ss == nil {
		return nil
	}
	return append([]string(nil), ss...)
}

// String is a short description for log messages.
func (r Record) String() string {
	return fmt.Sprintf("%s [%s] %q", r.ID, r.Source, r.Title)
}

// Source describes the origin of a bundle.
type Source struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Bundle is a list of records from a single source.
type Bundle struct {
	Source Source   `json:"source"`
	Papers []Record `json:"papers"`

	// Skipped counts list items that could not be decoded as records.
	Skipped int `json:"-"`
}
