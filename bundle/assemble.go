package bundle

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/llvm-library/papersdb/normal"
	"github.com/llvm-library/papersdb/schema/papers"
)

var fourDigits = regexp.MustCompile(`^\d{4}$`)

// EnsureUniqueIDs assigns every record an id not used by any record before
// it. Records without id get "openalex-<short id>" or "paper"; collisions
// get a numeric suffix, starting at 2.
func EnsureUniqueIDs(records []papers.Record) {
	seen := make(map[string]struct{})
	for i := range records {
		base := normal.CollapseWS(records[i].ID)
		if base == "" {
			if short := normal.OpenAlexShortID(records[i].OpenAlexID); short != "" {
				base = "openalex-" + strings.ToLower(short)
			} else {
				base = "paper"
			}
		}
		candidate := base
		for suffix := 2; ; suffix++ {
			if _, ok := seen[candidate]; !ok {
				break
			}
			candidate = fmt.Sprintf("%s-%d", base, suffix)
		}
		records[i].ID = candidate
		seen[candidate] = struct{}{}
	}
}

type sortKey struct {
	year, title, id string
}

func keyOf(r papers.Record) sortKey {
	year := normal.CollapseWS(r.Year)
	if !fourDigits.MatchString(year) {
		year = "0000"
	}
	return sortKey{
		year:  year,
		title: normal.CollapseWS(strings.ToLower(r.Title)),
		id:    normal.CollapseWS(r.ID),
	}
}

func (k sortKey) less(o sortKey) bool {
	if k.year != o.year {
		return k.year < o.year
	}
	if k.title != o.title {
		return k.title < o.title
	}
	return k.id < o.id
}

// Sort orders records by (year, lowercased title, id), all descending: newest
// first, unknown years last, and within a year, titles in reverse
// alphabetical order. Records with equal keys keep their relative order.
func Sort(records []papers.Record) {
	idx := make([]int, len(records))
	keys := make([]sortKey, len(records))
	for i := range records {
		idx[i] = i
		keys[i] = keyOf(records[i])
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return keys[idx[j]].less(keys[idx[i]])
	})
	sorted := make([]papers.Record, len(records))
	for i, k := range idx {
		sorted[i] = records[k]
	}
	copy(records, sorted)
}
