package clustering

import "github.com/llvm-library/papersdb/schema/papers"

// KeyFunc returns the identity keys of a record.
type KeyFunc func(papers.Record) []string

// Group partitions records into equivalence classes: records sharing a key,
// directly or transitively, end up in the same group. Groups are ordered by
// their first member, members by index.
func Group(records []papers.Record) [][]int {
	return GroupBy(records, Keys)
}

// GroupBy is like Group with a custom key function.
func GroupBy(records []papers.Record, keyFunc KeyFunc) [][]int {
	if len(records) == 0 {
		return nil
	}
	var (
		uf    = NewUnionFind(len(records))
		owner = make(map[string]int)
	)
	for i, r := range records {
		for _, key := range keyFunc(r) {
			if j, ok := owner[key]; ok {
				uf.Union(i, j)
			} else {
				owner[key] = i
			}
		}
	}
	var (
		groups [][]int
		slot   = make(map[int]int) // root -> index into groups
	)
	for i := range records {
		root := uf.Find(i)
		k, ok := slot[root]
		if !ok {
			k = len(groups)
			slot[root] = k
			groups = append(groups, nil)
		}
		groups[k] = append(groups[k], i)
	}
	return groups
}
