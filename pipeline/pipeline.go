// Package pipeline builds the combined papers database: load bundles,
// deduplicate, refresh from OpenAlex and landing pages, write output and
// manifest.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/llvm-library/papersdb/bundle"
	"github.com/llvm-library/papersdb/cache"
	"github.com/llvm-library/papersdb/config"
	"github.com/llvm-library/papersdb/dateutil"
	"github.com/llvm-library/papersdb/feeds"
	"github.com/llvm-library/papersdb/merge"
	"github.com/llvm-library/papersdb/normal"
	"github.com/llvm-library/papersdb/refresh"
	"github.com/llvm-library/papersdb/schema/openalex"
	"github.com/llvm-library/papersdb/schema/papers"
	"github.com/llvm-library/papersdb/topics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// OutputSource describes the combined database.
var OutputSource = papers.Source{
	Slug: "combined-all-papers-deduped",
	Name: "Combined Papers (single canonical database)",
	URL:  "https://llvm.org/pubs/",
}

// Options are collaborators, which differ between production and tests.
type Options struct {
	Logger log.FieldLogger
	Now    func() time.Time
	// OpenAlexClient and LandingClient default to retrying HTTP clients.
	OpenAlexClient feeds.Doer
	LandingClient  feeds.Doer
	// OpenAlexEndpoint overrides the works API URL.
	OpenAlexEndpoint string
}

// Stats are the counters of a single run.
type Stats struct {
	RunID             string
	Bundles           int
	Records           int
	Canonical         int
	OpenAlexIDs       int
	FromCache         int
	Missing           int
	Fetched           int
	FailedIDs         int
	CacheFilesWritten int
	Refresh           refresh.Stats
	Tagged            int
	LandingChanged    bool
	OutputChanged     bool
	ManifestChanged   bool
	DataVersion       string
}

// Fields returns the counters as log fields.
func (s *Stats) Fields() log.Fields {
	return log.Fields{
		"bundles":        s.Bundles,
		"records":        s.Records,
		"groups":         s.Canonical,
		"refreshed":      s.Refresh.Refreshed,
		"probes":         s.Refresh.Probes,
		"hits":           s.Refresh.Hits,
		"skipped_budget": s.Refresh.SkippedBudget,
		"changed":        s.OutputChanged,
	}
}

func (o *Options) logger() log.FieldLogger {
	if o == nil || o.Logger == nil {
		return log.StandardLogger()
	}
	return o.Logger
}

func (o *Options) now() time.Time {
	if o == nil || o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// Run executes a build. Only setup failures, unreadable bundles and write
// errors are returned as error; network trouble results in fewer refreshed
// records.
func Run(ctx context.Context, cfg *config.Config, opts *Options) (*Stats, error) {
	if opts == nil {
		opts = &Options{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stats := &Stats{RunID: uuid.New().String(), Bundles: len(cfg.Bundles)}
	logger := opts.logger().WithField("run", stats.RunID)
	logger.WithField("bundles", stats.Bundles).Info("source bundles")

	records, err := bundle.LoadRecords(logger, cfg.Bundles...)
	if err != nil {
		return nil, err
	}
	stats.Records = len(records)
	logger.WithField("records", stats.Records).Info("source records loaded")

	canonical := merge.Dedupe(records)
	stats.Canonical = len(canonical)
	logger.WithField("groups", stats.Canonical).Info("records after dedupe")

	works, err := collectWorks(ctx, cfg, opts, canonical, stats, logger)
	if err != nil {
		return nil, err
	}

	store, err := cache.OpenLandingStore(cfg.LandingCache)
	if err != nil {
		return nil, fmt.Errorf("landing cache: %w", err)
	}
	landingClient := opts.LandingClient
	if landingClient == nil {
		landingClient = feeds.NewClient(cfg.LandingTimeout, 1, feeds.MaxRedirects)
	}
	refresher := &refresh.Refresher{
		Store:           store,
		Fetcher:         &feeds.LandingFetcher{Client: landingClient, UserAgent: cfg.UserAgent},
		Enabled:         cfg.LandingEnabled(),
		MaxProbes:       cfg.LandingMaxProbes,
		MissRecheckDays: cfg.LandingMissRecheckDays,
		Workers:         cfg.Workers,
		Now:             opts.now,
		Logger:          logger,
	}
	if stats.Refresh, err = refresher.Run(ctx, canonical, works); err != nil {
		return nil, err
	}
	logger.WithFields(log.Fields{
		"refreshed":      stats.Refresh.Refreshed,
		"probes":         stats.Refresh.Probes,
		"hits":           stats.Refresh.Hits,
		"skipped_budget": stats.Refresh.SkippedBudget,
	}).Info("openalex records refreshed")
	if cfg.LandingEnabled() {
		if stats.LandingChanged, err = store.Save(); err != nil {
			return nil, fmt.Errorf("landing cache: %w", err)
		}
	}

	if cfg.TagVocabulary != "" {
		vocab, err := topics.LoadVocabulary(cfg.TagVocabulary)
		if err != nil {
			return nil, err
		}
		stats.Tagged = topics.Apply(vocab, canonical)
		logger.WithFields(log.Fields{
			"vocabulary": len(vocab.Tags()),
			"tagged":     stats.Tagged,
		}).Info("records tagged")
	}

	bundle.EnsureUniqueIDs(canonical)
	bundle.Sort(canonical)
	out := &papers.Bundle{Source: OutputSource, Papers: canonical}
	if stats.OutputChanged, err = bundle.Write(cfg.Output, out); err != nil {
		return nil, err
	}
	logger.WithFields(log.Fields{"output": cfg.Output, "changed": stats.OutputChanged}).Info("output bundle")

	outputName := filepath.Base(cfg.Output)
	stats.ManifestChanged, stats.DataVersion, err = bundle.UpdateManifest(
		cfg.Manifest, outputName, dateutil.DataVersion(opts.now()), stats.OutputChanged)
	if err != nil {
		return nil, err
	}
	logger.WithFields(log.Fields{
		"manifest":    cfg.Manifest,
		"changed":     stats.ManifestChanged,
		"paperFiles":  outputName,
		"dataVersion": stats.DataVersion,
	}).Info("manifest state")
	return stats, nil
}

// collectWorks returns OpenAlex works for all canonical records, from the
// cache first, then from the API unless the network is disabled.
func collectWorks(ctx context.Context, cfg *config.Config, opts *Options, canonical []papers.Record, stats *Stats, logger log.FieldLogger) (map[string]*openalex.Work, error) {
	wanted := make(map[string]bool)
	for _, r := range canonical {
		if short := normal.OpenAlexShortID(r.OpenAlexID); short != "" {
			wanted[short] = true
		}
	}
	stats.OpenAlexIDs = len(wanted)
	logger.WithField("ids", stats.OpenAlexIDs).Info("openalex ids")

	worksCache := &cache.WorksCache{Dir: cfg.CacheDir, Compress: cfg.CompressCache, Logger: logger}
	works, err := worksCache.Load(wanted)
	if err != nil {
		return nil, fmt.Errorf("works cache: %w", err)
	}
	stats.FromCache = len(works)
	var missing []string
	for id := range wanted {
		if _, ok := works[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	stats.Missing = len(missing)
	logger.WithFields(log.Fields{"cached": stats.FromCache, "missing": stats.Missing}).Info("openalex cache scan")
	switch {
	case len(missing) == 0:
		return works, nil
	case cfg.SkipNetwork:
		logger.Info("skipping openalex network fetch")
		return works, nil
	}
	client := opts.OpenAlexClient
	if client == nil {
		client = feeds.NewClient(30*time.Second, cfg.MaxRetries, 0)
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	fetcher := &feeds.OpenAlexFetcher{
		Client:      client,
		ApiEndpoint: opts.OpenAlexEndpoint,
		ApiEmail:    normal.CollapseWS(cfg.Mailto),
		UserAgent:   cfg.UserAgent,
		BatchSize:   cfg.BatchSize,
		Backoff:     time.Second,
		Limiter:     limiter,
		Saver:       worksCache,
		Strict:      cfg.StrictFetch,
		Logger:      logger,
	}
	result, err := fetcher.Fetch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, w := range result.Works {
		if wanted[id] {
			works[id] = w
		}
	}
	stats.Fetched = len(result.Works)
	stats.FailedIDs = len(result.Failed)
	stats.CacheFilesWritten = result.FilesWritten
	logger.WithFields(log.Fields{
		"fetched": stats.Fetched,
		"failed":  stats.FailedIDs,
		"written": stats.CacheFilesWritten,
	}).Info("openalex works fetched")
	return works, nil
}
