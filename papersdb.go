// Package papersdb builds a single, deduplicated database of LLVM related
// papers, talks and blog posts from several source bundles, refreshed from
// OpenAlex metadata.
package papersdb

const (
	AppName = "papersdb"
	Version = "0.1.0"
)
