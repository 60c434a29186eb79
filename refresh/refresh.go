// Package refresh applies fetched OpenAlex works to canonical records and
// falls back to publisher landing pages, when a record still lacks an English
// title or a real abstract.
//
// Probe outcomes are cached per work. A cached hit is probed again only when
// the work changed upstream; a cached miss also when it is older than the
// recheck interval. Probing is bounded by a per-run budget.
package refresh

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/llvm-library/papersdb/cache"
	"github.com/llvm-library/papersdb/convert"
	"github.com/llvm-library/papersdb/dateutil"
	"github.com/llvm-library/papersdb/landing"
	"github.com/llvm-library/papersdb/normal"
	"github.com/llvm-library/papersdb/schema/openalex"
	"github.com/llvm-library/papersdb/schema/papers"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// progressEvery is the number of probes between progress log lines.
const progressEvery = 20

// PageFetcher returns the text of a web page.
type PageFetcher interface {
	Fetch(ctx context.Context, link string) (string, error)
}

// Stats of a refresh run.
type Stats struct {
	Refreshed     int // records with an OpenAlex work applied
	Probes        int // landing pages probed
	Hits          int // title or abstract values taken from landing pages
	SkippedBudget int // probes skipped, because the budget was used up
}

// Refresher updates records in place.
type Refresher struct {
	// Store keeps landing page outcomes across runs, required if Enabled.
	Store   cache.LandingStore
	Fetcher PageFetcher
	// Enabled turns on the landing page fallback.
	Enabled bool
	// MaxProbes limits probes per run, zero means unlimited.
	MaxProbes int
	// MissRecheckDays is the age after which a cached miss is retried.
	MissRecheckDays int
	// Workers is the number of concurrent probes.
	Workers int
	Now     func() time.Time
	Logger  log.FieldLogger
}

func (r *Refresher) logger() log.FieldLogger {
	if r.Logger == nil {
		return log.StandardLogger()
	}
	return r.Logger
}

func (r *Refresher) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Refresher) workers() int {
	if r.Workers < 1 {
		return 1
	}
	return r.Workers
}

// probe is a scheduled landing page lookup for one work.
type probe struct {
	shortID         string
	work            *openalex.Work
	title, abstract string
}

// pending is a record waiting for its fallback values.
type pending struct {
	index   int
	shortID string
	probe   *probe // nil if the cached entry is used
}

// ShouldTryLanding reports whether a record would benefit from a landing
// page: its title is missing or not English, or its abstract is a
// placeholder or not English.
func ShouldTryLanding(r *papers.Record) bool {
	switch {
	case normal.LooksNonEnglish(r.Title, normal.DefaultEnglishThreshold):
		return true
	case normal.CollapseWS(r.Title) == "":
		return true
	case normal.IsPlaceholderAbstract(r.Abstract):
		return true
	case normal.LooksNonEnglish(r.Abstract, normal.AbstractEnglishThreshold):
		return true
	}
	return false
}

// shouldProbe decides, whether a cached entry is stale for a work.
func (r *Refresher) shouldProbe(e cache.Entry, ok bool, work *openalex.Work) bool {
	var (
		status        = strings.ToLower(normal.CollapseWS(e.Status))
		workUpdated   = normal.CollapseWS(work.UpdatedDate)
		sourceUpdated = normal.CollapseWS(e.SourceUpdatedAt)
		changed       = workUpdated != "" && sourceUpdated != "" && workUpdated != sourceUpdated
	)
	if !ok {
		return true
	}
	switch status {
	case cache.StatusHit:
		return changed
	case cache.StatusMiss:
		return changed || dateutil.OlderThan(e.UpdatedAt, r.MissRecheckDays, r.now())
	default:
		return normal.CollapseWS(e.Title) == "" && normal.CollapseWS(e.Abstract) == ""
	}
}

// Run applies works, keyed by OpenAlex short id, to the records and runs the
// landing page fallback. Decisions and the probe budget are taken in record
// order; probes run concurrently and their results are applied in record
// order again, so the outcome does not depend on the number of workers.
func (r *Refresher) Run(ctx context.Context, records []papers.Record, works map[string]*openalex.Work) (Stats, error) {
	var (
		stats     Stats
		queue     []pending
		scheduled = make(map[string]*probe)
		probes    []*probe
	)
	for i := range records {
		rec := &records[i]
		shortID := normal.OpenAlexShortID(rec.OpenAlexID)
		if shortID == "" {
			continue
		}
		work := works[shortID]
		if work == nil {
			continue
		}
		if err := convert.ApplyWork(rec, work); err != nil {
			r.logger().WithField("id", shortID).Warnf("skipping work: %v", err)
			continue
		}
		stats.Refreshed++
		if !r.Enabled || r.Store == nil || !ShouldTryLanding(rec) {
			continue
		}
		if p, ok := scheduled[shortID]; ok {
			queue = append(queue, pending{index: i, shortID: shortID, probe: p})
			continue
		}
		entry, ok := r.Store.Get(shortID)
		if !r.shouldProbe(entry, ok, work) {
			queue = append(queue, pending{index: i, shortID: shortID})
			continue
		}
		if r.MaxProbes > 0 && stats.Probes >= r.MaxProbes {
			stats.SkippedBudget++
			continue
		}
		stats.Probes++
		p := &probe{shortID: shortID, work: work}
		scheduled[shortID] = p
		probes = append(probes, p)
		queue = append(queue, pending{index: i, shortID: shortID, probe: p})
	}
	if err := r.runProbes(ctx, probes); err != nil {
		return stats, err
	}
	stamp := dateutil.Stamp(r.now())
	for _, p := range probes {
		status := cache.StatusMiss
		if p.title != "" || p.abstract != "" {
			status = cache.StatusHit
		}
		r.Store.Put(p.shortID, cache.Entry{
			Title:           p.title,
			Abstract:        p.abstract,
			Status:          status,
			SourceUpdatedAt: normal.CollapseWS(p.work.UpdatedDate),
			UpdatedAt:       stamp,
		})
	}
	for _, q := range queue {
		stats.Hits += r.applyFallback(&records[q.index], q.shortID)
	}
	return stats, nil
}

// runProbes fetches landing pages on a bounded pool. A failing page is not an
// error; only a cancelled context stops the run.
func (r *Refresher) runProbes(ctx context.Context, probes []*probe) error {
	if len(probes) == 0 {
		return nil
	}
	var done atomic.Int64
	total := len(probes)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for _, p := range probes {
		p := p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p.title, p.abstract = r.lookup(gctx, p.work)
			if n := done.Add(1); n%progressEvery == 0 {
				r.logger().Infof("landing probes done: %d/%d", n, total)
			}
			return nil
		})
	}
	return g.Wait()
}

// lookup tries the landing pages of a work in order and returns the first
// usable title or abstract.
func (r *Refresher) lookup(ctx context.Context, work *openalex.Work) (title, abstract string) {
	if r.Fetcher == nil {
		return "", ""
	}
	for _, link := range convert.LandingURLs(work) {
		page, err := r.Fetcher.Fetch(ctx, link)
		if err != nil {
			r.logger().WithField("url", link).Debugf("landing fetch failed: %v", err)
			continue
		}
		title, abstract, err := landing.Page(page)
		if err != nil {
			r.logger().WithField("url", link).Debugf("landing parse failed: %v", err)
			continue
		}
		if title != "" || abstract != "" {
			return title, abstract
		}
	}
	return "", ""
}

// applyFallback replaces a non-English or missing title and a placeholder or
// non-English abstract with cached landing page values. Boilerplate titles
// are removed from the cache. Returns the number of values applied.
func (r *Refresher) applyFallback(rec *papers.Record, shortID string) int {
	entry, ok := r.Store.Get(shortID)
	if !ok {
		return 0
	}
	var hits int
	var (
		title        = normal.CollapseWS(entry.Title)
		abstract     = normal.CollapseWS(entry.Abstract)
		currentTitle = normal.CollapseWS(rec.Title)
	)
	if title != "" {
		if landing.IsLowQualityTitle(title, rec.Publication, rec.Venue) {
			title = ""
			entry.Title = ""
			entry.Status = cache.StatusHit
			if abstract == "" {
				entry.Status = cache.StatusMiss
			}
			r.Store.Put(shortID, entry)
		}
		if title != "" && (currentTitle == "" || normal.LooksNonEnglish(currentTitle, normal.DefaultEnglishThreshold)) {
			rec.Title = title
			hits++
		}
	}
	if abstract != "" {
		current := normal.CollapseWS(rec.Abstract)
		if normal.IsPlaceholderAbstract(current) || normal.LooksNonEnglish(current, normal.AbstractEnglishThreshold) {
			rec.Abstract = abstract
			hits++
		}
	}
	return hits
}
