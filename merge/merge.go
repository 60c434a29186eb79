package merge

import (
	"regexp"
	"sort"

	"github.com/llvm-library/papersdb/clustering"
	"github.com/llvm-library/papersdb/normal"
	"github.com/llvm-library/papersdb/schema/papers"
)

var initialsOnly = regexp.MustCompile(`^[A-Za-z]\.?$`)

// authorQuality is (valid names, names with at least six characters,
// negated count of names that are only an initial).
type authorQuality [3]int

func (q authorQuality) greater(o authorQuality) bool {
	for i := range q {
		if q[i] != o[i] {
			return q[i] > o[i]
		}
	}
	return false
}

func qualityOf(authors []papers.Author) authorQuality {
	var q authorQuality
	for _, a := range authors {
		name := normal.CollapseWS(a.Name)
		if name == "" {
			continue
		}
		q[0]++
		if len(name) >= 6 {
			q[1]++
		}
		if initialsOnly.MatchString(name) {
			q[2]--
		}
	}
	return q
}

// Authors picks the better of two author lists. An empty list always loses;
// otherwise the incoming list must have a strictly better quality to win.
func Authors(base, incoming []papers.Author) []papers.Author {
	switch {
	case len(base) == 0:
		return append([]papers.Author(nil), incoming...)
	case len(incoming) == 0:
		return append([]papers.Author(nil), base...)
	case qualityOf(incoming).greater(qualityOf(base)):
		return append([]papers.Author(nil), incoming...)
	default:
		return append([]papers.Author(nil), base...)
	}
}

// fillScalar sets *dst to v, if *dst is blank and v is not.
func fillScalar(dst *string, v string) {
	if normal.CollapseWS(*dst) == "" && normal.CollapseWS(v) != "" {
		*dst = v
	}
}

// Records merges incoming into a copy of base and returns the result. Base
// values win, incoming values fill empty fields. A placeholder abstract is
// replaced by a real one. List fields are unioned, case-insensitively,
// citation counts take the maximum.
func Records(base, incoming papers.Record) papers.Record {
	out := base.Clone()
	for _, f := range []struct {
		dst *string
		v   string
	}{
		{&out.ID, incoming.ID},
		{&out.Title, incoming.Title},
		{&out.Year, incoming.Year},
		{&out.Publication, incoming.Publication},
		{&out.Venue, incoming.Venue},
		{&out.Type, incoming.Type},
		{&out.ContentFormat, incoming.ContentFormat},
		{&out.Content, incoming.Content},
		{&out.PaperURL, incoming.PaperURL},
		{&out.SourceURL, incoming.SourceURL},
		{&out.OpenAlexID, incoming.OpenAlexID},
		{&out.DOI, incoming.DOI},
		{&out.Source, incoming.Source},
		{&out.SourceName, incoming.SourceName},
	} {
		fillScalar(f.dst, f.v)
	}
	switch {
	case normal.CollapseWS(out.Abstract) == "":
		fillScalar(&out.Abstract, incoming.Abstract)
	case normal.IsPlaceholderAbstract(out.Abstract) && !normal.IsPlaceholderAbstract(incoming.Abstract):
		out.Abstract = incoming.Abstract
	}
	out.Authors = Authors(out.Authors, incoming.Authors)
	out.Tags = unionList(out.Tags, incoming.Tags)
	out.Keywords = unionList(out.Keywords, incoming.Keywords)
	out.MatchedAuthors = unionList(out.MatchedAuthors, incoming.MatchedAuthors)
	out.MatchedSubprojects = unionList(out.MatchedSubprojects, incoming.MatchedSubprojects)
	if c := incoming.CitationCount; c != nil && (out.CitationCount == nil || *c > *out.CitationCount) {
		v := *c
		out.CitationCount = &v
	}
	if short := normal.OpenAlexShortID(out.OpenAlexID); short != "" {
		out.OpenAlexID = normal.OpenAlexURL(short)
	}
	return out
}

// unionList keeps a as is, if the union would be empty.
func unionList(a, b []string) []string {
	if v := normal.DedupeFold(a, b); v != nil {
		return v
	}
	return a
}

// Group merges the members of one equivalence class. The highest scoring
// member is the base, the first one wins ties. The remaining members are
// folded in by descending priority, members with equal priority in their
// original order.
func Group(members []papers.Record) papers.Record {
	if len(members) == 0 {
		return papers.Record{}
	}
	scores := make([]Priority, len(members))
	best := 0
	for i, m := range members {
		scores[i] = Score(m)
		if scores[best].Less(scores[i]) {
			best = i
		}
	}
	var rest []int
	for i := range members {
		if i != best {
			rest = append(rest, i)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		return scores[rest[j]].Less(scores[rest[i]])
	})
	result := members[best].Clone()
	if short := normal.OpenAlexShortID(result.OpenAlexID); short != "" {
		result.OpenAlexID = normal.OpenAlexURL(short)
	}
	for _, i := range rest {
		result = Records(result, members[i])
	}
	return result
}

// Dedupe groups records by identity keys and merges each group, returning
// one canonical record per group, in order of each group's first member.
func Dedupe(records []papers.Record) []papers.Record {
	var result []papers.Record
	for _, g := range clustering.Group(records) {
		members := make([]papers.Record, len(g))
		for i, idx := range g {
			members[i] = records[idx]
		}
		result = append(result, Group(members))
	}
	return result
}
