package convert

import (
	"errors"
	"regexp"
	"strings"

	"github.com/llvm-library/papersdb/normal"
	"github.com/llvm-library/papersdb/schema/openalex"
	"github.com/llvm-library/papersdb/schema/papers"
)

var (
	ErrMissingOpenAlexIdentifier = errors.New("missing openalex identifier")
	ErrEmptyDoc                  = errors.New("empty doc")
)

var (
	pdfSuffix = regexp.MustCompile(`(?i)\.pdf(?:$|[?#])`)
	httpURL   = regexp.MustCompile(`(?i)^https?://`)
)

// ApplyWork overwrites record fields with values from an OpenAlex work. Only
// non-empty values are applied; authors keep known affiliations, if OpenAlex
// has none for them. The record openalexId is set to the canonical URL.
func ApplyWork(r *papers.Record, work *openalex.Work) error {
	if r == nil || work == nil {
		return ErrEmptyDoc
	}
	short := normal.OpenAlexShortID(r.OpenAlexID)
	if short == "" {
		short = normal.OpenAlexShortID(work.ID)
	}
	if short == "" {
		return ErrMissingOpenAlexIdentifier
	}
	if title := normal.StripMarkup(work.Title); title != "" {
		r.Title = title
	}
	if abstract := work.AbstractText(); abstract != "" {
		r.Abstract = abstract
	}
	if authors := Authors(work, r.Authors); len(authors) > 0 {
		r.Authors = authors
	}
	if year := work.Year(); year != "" {
		r.Year = year
	}
	publication, venue := PublicationAndVenue(work)
	if publication != "" {
		r.Publication = publication
	}
	if venue != "" {
		r.Venue = venue
	}
	paperURL, sourceURL := PickURLs(work)
	if paperURL != "" {
		r.PaperURL = paperURL
	}
	if sourceURL != "" {
		r.SourceURL = sourceURL
	}
	if doi := normal.DOI(work.DOI); doi != "" {
		r.DOI = doi
	}
	if work.CitedByCount != nil {
		c := int(*work.CitedByCount)
		if c < 0 {
			c = 0
		}
		r.CitationCount = &c
	}
	r.Type = ClassifyType(work.Type, r.Type)
	r.OpenAlexID = normal.OpenAlexURL(short)
	return nil
}

// Authors returns the authors of a work, deduplicated by name key. The
// affiliation is the first usable institution name; if there is none, a
// known affiliation of a name-matched existing author is kept.
func Authors(work *openalex.Work, existing []papers.Author) []papers.Author {
	known := make(map[string]string)
	for _, a := range existing {
		key := normal.NameKey(a.Name)
		if aff := normal.Affiliation(a.Affiliation); key != "" && aff != "" {
			known[key] = aff
		}
	}
	var (
		result []papers.Author
		seen   = make(map[string]bool)
	)
	for _, authorship := range work.Authorships {
		if authorship == nil {
			continue
		}
		name := normal.CollapseWS(authorship.Author.DisplayName)
		key := normal.NameKey(name)
		if name == "" || key == "" || seen[key] {
			continue
		}
		seen[key] = true
		var affiliation string
		for _, inst := range authorship.Institutions {
			if inst == nil {
				continue
			}
			if v := normal.Affiliation(inst.DisplayName); v != "" {
				affiliation = v
				break
			}
		}
		if affiliation == "" {
			affiliation = known[key]
		}
		result = append(result, papers.Author{Name: name, Affiliation: affiliation})
	}
	return result
}

// PublicationAndVenue returns the source name of the primary location, or
// of the first location with a name, and a venue string with volume and
// issue appended, e.g. "Proc. ACM | Vol. 7 (Issue 2)".
func PublicationAndVenue(work *openalex.Work) (publication, venue string) {
	publication = normal.MetaValue(work.PrimaryLocation.SourceName())
	if publication == "" {
		for _, loc := range work.Locations {
			if v := normal.MetaValue(loc.SourceName()); v != "" {
				publication = v
				break
			}
		}
	}
	var volume, issue string
	if work.Biblio != nil {
		volume = normal.MetaValue(work.Biblio.Volume)
		issue = normal.MetaValue(work.Biblio.Issue)
	}
	var parts []string
	if publication != "" {
		parts = append(parts, publication)
	}
	switch {
	case volume != "" && issue != "":
		parts = append(parts, "Vol. "+volume+" (Issue "+issue+")")
	case volume != "":
		parts = append(parts, "Vol. "+volume)
	case issue != "":
		parts = append(parts, "Issue "+issue)
	}
	return publication, strings.Join(parts, " | ")
}

// PickURLs returns a paper URL, preferring a direct PDF link, and a distinct
// source URL, preferring DOI over landing page over OpenAlex id.
func PickURLs(work *openalex.Work) (paperURL, sourceURL string) {
	var oaURL string
	if work.OpenAccess != nil {
		oaURL = work.OpenAccess.OAURL
	}
	var candidates []string
	for _, v := range []string{
		work.BestOALocation.PDF(),
		work.PrimaryLocation.PDF(),
		oaURL,
		work.BestOALocation.Landing(),
		work.PrimaryLocation.Landing(),
		work.DOI,
	} {
		if u := normal.CollapseWS(v); u != "" {
			candidates = append(candidates, u)
		}
	}
	for _, u := range candidates {
		if pdfSuffix.MatchString(u) {
			paperURL = u
			break
		}
	}
	if paperURL == "" && len(candidates) > 0 {
		paperURL = candidates[0]
	}
	sourceURL = normal.CollapseWS(work.DOI)
	if sourceURL == "" {
		sourceURL = normal.CollapseWS(work.PrimaryLocation.Landing())
	}
	if sourceURL == "" {
		sourceURL = normal.CollapseWS(work.BestOALocation.Landing())
	}
	if sourceURL == "" {
		sourceURL = normal.CollapseWS(work.ID)
	}
	if sourceURL == paperURL {
		sourceURL = ""
	}
	return paperURL, sourceURL
}

// ClassifyType maps an OpenAlex work type to a record type. Dissertations
// become theses, any other known type a research paper. Without an OpenAlex
// type, the existing type is kept.
func ClassifyType(openalexType, existing string) string {
	switch t := strings.ToLower(normal.CollapseWS(openalexType)); t {
	case "dissertation":
		return papers.TypeThesis
	case "":
		if v := normal.CollapseWS(existing); v != "" {
			return v
		}
		return papers.TypeResearchPaper
	default:
		return papers.TypeResearchPaper
	}
}

// LandingURLs lists candidate landing pages for a work, best open access
// location first, then primary and other locations, then the DOI link. Only
// http and https URLs are returned, without duplicates.
func LandingURLs(work *openalex.Work) []string {
	var (
		result []string
		seen   = make(map[string]bool)
	)
	add := func(u string) {
		u = normal.CollapseWS(u)
		if u == "" || seen[u] || !httpURL.MatchString(u) {
			return
		}
		seen[u] = true
		result = append(result, u)
	}
	add(work.BestOALocation.Landing())
	add(work.PrimaryLocation.Landing())
	for _, loc := range work.Locations {
		add(loc.Landing())
	}
	add(work.DOI)
	return result
}
