// Package merge folds the members of an equivalence class into a single
// canonical record. The member with the highest priority becomes the base,
// other members only fill gaps.
package merge

import (
	"github.com/llvm-library/papersdb/normal"
	"github.com/llvm-library/papersdb/schema/papers"
)

// SourcePriority ranks source bundles; unknown sources rank 0.
var SourcePriority = map[string]int{
	"openalex-discovery":  300,
	"openalex-llvm-query": 250,
	"llvm-blog-www":       200,
	"llvm-org-pubs":       150,
}

// Priority is the ordered score tuple of a record, compared
// lexicographically in field order.
type Priority struct {
	Source      int
	HasOpenAlex int
	HasDOI      int
	HasAbstract int
	HasTitle    int
	Authors     int
	Citations   int
	Terms       int // tags plus keywords
}

func (p Priority) tuple() [8]int {
	return [8]int{p.Source, p.HasOpenAlex, p.HasDOI, p.HasAbstract, p.HasTitle,
		p.Authors, p.Citations, p.Terms}
}

// Less reports whether p ranks strictly lower than q.
func (p Priority) Less(q Priority) bool {
	a, b := p.tuple(), q.tuple()
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Score computes the priority of a record.
func Score(r papers.Record) Priority {
	p := Priority{
		Source:  SourcePriority[normal.CollapseWS(r.Source)],
		Authors: countNames(r.Authors),
		Terms:   len(r.Tags) + len(r.Keywords),
	}
	if normal.OpenAlexShortID(r.OpenAlexID) != "" {
		p.HasOpenAlex = 1
	}
	if normal.DOI(r.DOI) != "" {
		p.HasDOI = 1
	}
	if !normal.IsPlaceholderAbstract(r.Abstract) {
		p.HasAbstract = 1
	}
	if normal.CollapseWS(r.Title) != "" {
		p.HasTitle = 1
	}
	if r.CitationCount != nil {
		p.Citations = *r.CitationCount
	}
	return p
}

func countNames(authors []papers.Author) int {
	var n int
	for _, a := range authors {
		if normal.CollapseWS(a.Name) != "" {
			n++
		}
	}
	return n
}
