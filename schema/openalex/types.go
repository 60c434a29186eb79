// Package openalex contains the subset of the OpenAlex work entity used to
// refresh paper metadata. Only fields requested via the "select" parameter
// are mapped.
package openalex

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/segmentio/encoding/json"
)

// SelectFields is the field list requested from the works API.
var SelectFields = []string{
	"id",
	"updated_date",
	"title",
	"type",
	"doi",
	"publication_year",
	"abstract_inverted_index",
	"authorships",
	"cited_by_count",
	"primary_location",
	"best_oa_location",
	"open_access",
	"locations",
	"biblio",
}

// Source is the host venue of a location, e.g. a journal.
type Source struct {
	DisplayName string `json:"display_name"`
	ID          string `json:"id"`
	Type        string `json:"type"`
}

// Location is a place where a work is hosted.
type Location struct {
	IsOA           bool    `json:"is_oa"`
	LandingPageURL string  `json:"landing_page_url"`
	PdfURL         string  `json:"pdf_url"`
	Source         *Source `json:"source"`
}

// SourceName returns the display name of the location source, if any.
func (l *Location) SourceName() string {
	if l == nil || l.Source == nil {
		return ""
	}
	return l.Source.DisplayName
}

// Landing returns the landing page URL, nil safe.
func (l *Location) Landing() string {
	if l == nil {
		return ""
	}
	return l.LandingPageURL
}

// PDF returns the PDF URL, nil safe.
func (l *Location) PDF() string {
	if l == nil {
		return ""
	}
	return l.PdfURL
}

// Institution of an author.
type Institution struct {
	DisplayName string `json:"display_name"`
	ID          string `json:"id"`
}

// Authorship links an author to a work, with institutions at the time.
type Authorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
		ID          string `json:"id"`
	} `json:"author"`
	AuthorPosition string         `json:"author_position"`
	Institutions   []*Institution `json:"institutions"`
}

// Biblio holds volume and issue, both as strings.
type Biblio struct {
	Issue  string `json:"issue"`
	Volume string `json:"volume"`
}

// OpenAccess summarizes the open access status of a work.
type OpenAccess struct {
	IsOA     bool   `json:"is_oa"`
	OAStatus string `json:"oa_status"`
	OAURL    string `json:"oa_url"`
}

// Work entity in OpenAlex, reduced to the selected fields. Pointer fields
// may be absent or null.
type Work struct {
	ID                    string           `json:"id"`
	UpdatedDate           string           `json:"updated_date"`
	Title                 string           `json:"title"`
	Type                  string           `json:"type"`
	DOI                   string           `json:"doi"`
	PublicationYear       int64            `json:"publication_year"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	Authorships           []*Authorship    `json:"authorships"`
	CitedByCount          *int64           `json:"cited_by_count"`
	PrimaryLocation       *Location        `json:"primary_location"`
	BestOALocation        *Location        `json:"best_oa_location"`
	OpenAccess            *OpenAccess      `json:"open_access"`
	Locations             []*Location      `json:"locations"`
	Biblio                *Biblio          `json:"biblio"`
}

// MaxAbstractPosition bounds word positions in an inverted index; larger
// positions are ignored.
const MaxAbstractPosition = 100000

// AbstractText decodes the inverted index into plain text: each word is
// placed at its listed positions, positions nobody claims are dropped.
func (w *Work) AbstractText() string {
	maxPos := -1
	for _, positions := range w.AbstractInvertedIndex {
		for _, p := range positions {
			if p > maxPos && p <= MaxAbstractPosition {
				maxPos = p
			}
		}
	}
	if maxPos < 0 {
		return ""
	}
	words := make([]string, maxPos+1)
	for token, positions := range w.AbstractInvertedIndex {
		token = strings.Join(strings.Fields(token), " ")
		if token == "" {
			continue
		}
		for _, p := range positions {
			if p >= 0 && p <= maxPos {
				words[p] = token
			}
		}
	}
	return strings.Join(strings.Fields(strings.Join(words, " ")), " ")
}

// Year returns the publication year as four digit string or the empty
// string.
func (w *Work) Year() string {
	if w.PublicationYear < 1000 || w.PublicationYear > 9999 {
		return ""
	}
	return fmt.Sprintf("%d", w.PublicationYear)
}

// DecodeWorks parses an API payload, which is either a list response with
// a "results" array or a single work object with an id. Non-object results
// are skipped.
func DecodeWorks(b []byte) ([]Work, error) {
	var envelope struct {
		Results json.RawMessage `json:"results"`
		ID      json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return nil, err
	}
	results := bytes.TrimSpace(envelope.Results)
	if len(results) > 0 && results[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(results, &items); err != nil {
			return nil, err
		}
		var works []Work
		for _, item := range items {
			item = bytes.TrimSpace(item)
			if len(item) == 0 || item[0] != '{' {
				continue
			}
			var w Work
			if err := json.Unmarshal(item, &w); err != nil {
				return nil, err
			}
			works = append(works, w)
		}
		return works, nil
	}
	id := bytes.TrimSpace(envelope.ID)
	if len(id) > 0 && id[0] == '"' {
		var w Work
		if err := json.Unmarshal(b, &w); err != nil {
			return nil, err
		}
		return []Work{w}, nil
	}
	return nil, nil
}
