// Package clustering groups records that describe the same work. Records
// are linked by typed identity keys: OpenAlex id, DOI, blog URL and, for
// everything but blog posts, year plus normalized title.
package clustering

import (
	"strings"

	"github.com/llvm-library/papersdb/normal"
	"github.com/llvm-library/papersdb/schema/papers"
)

// BlogSource is the source slug of the LLVM blog bundle.
const BlogSource = "llvm-blog-www"

// Key prefixes.
const (
	PrefixOpenAlex = "oa:"
	PrefixDOI      = "doi:"
	PrefixBlog     = "blog:"
	PrefixTitle    = "title:"
)

// IsBlog reports whether a record is a blog post, either by source or by
// type. Blog posts are never linked by title.
func IsBlog(r papers.Record) bool {
	if strings.ToLower(normal.CollapseWS(r.Source)) == BlogSource {
		return true
	}
	switch strings.ToLower(normal.CollapseWS(r.Type)) {
	case papers.TypeBlogPost, "blog":
		return true
	}
	return false
}

// Keys returns the identity keys of a record. Two records sharing any key
// are considered the same work. A record may have no keys at all.
func Keys(r papers.Record) []string {
	var keys []string
	if short := normal.OpenAlexShortID(r.OpenAlexID); short != "" {
		keys = append(keys, PrefixOpenAlex+short)
	}
	if doi := normal.DOI(r.DOI); doi != "" {
		keys = append(keys, PrefixDOI+doi)
	}
	blog := IsBlog(r)
	if blog {
		link := normal.CollapseWS(r.PaperURL)
		if link == "" {
			link = normal.CollapseWS(r.SourceURL)
		}
		if link != "" {
			keys = append(keys, PrefixBlog+strings.ToLower(link))
		}
	}
	var (
		year  = normal.CollapseWS(r.Year)
		title = normal.TitleKey(r.Title)
	)
	if !blog && isYear(year) && title != "" {
		keys = append(keys, PrefixTitle+year+":"+title)
	}
	return keys
}

func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
