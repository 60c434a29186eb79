// sk-papers builds the single canonical LLVM papers database from a number of
// source bundles, refreshed with OpenAlex metadata and landing page fallbacks.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/llvm-library/papersdb"
	"github.com/llvm-library/papersdb/config"
	"github.com/llvm-library/papersdb/pipeline"
	"github.com/sirupsen/logrus"
)

var docs = strings.TrimLeft(`
# sk-papers - build the combined papers database

Reads source bundles, merges records describing the same work, refreshes
them from OpenAlex and writes a single bundle plus manifest. Output and
manifest are only written, if their content changed.

OpenAlex batches are cached on disk, as are landing page outcomes; with
-skip-network only cached data is used.

    $ sk-papers
    $ sk-papers -b papers/llvm-org-pubs.json -b papers/openalex-discovered.json -o combined.json
    $ sk-papers -c papersdb.yaml -skip-network

## flags

`, "\n")

// stringsFlag collects repeated flag values.
type stringsFlag []string

func (s *stringsFlag) String() string { return strings.Join(*s, ",") }

func (s *stringsFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

var bundles stringsFlag

var (
	configFile             = flag.String("c", "", "YAML config file, flags override its values")
	output                 = flag.String("o", "", "output bundle path")
	manifest               = flag.String("m", "", "manifest path")
	cacheDir               = flag.String("cache-dir", "", "directory for cached OpenAlex batches")
	compressCache          = flag.Bool("z", false, "write zstd compressed OpenAlex batches")
	landingCache           = flag.String("landing-cache", "", "landing page cache file")
	batchSize              = flag.Int("batch-size", 0, "OpenAlex ids per request")
	mailto                 = flag.String("mailto", "", "email for the OpenAlex polite pool")
	userAgent              = flag.String("user-agent", "", "user agent for all requests")
	skipNetwork            = flag.Bool("skip-network", false, "use cached data only")
	skipLandingFallback    = flag.Bool("skip-landing-fallback", false, "do not probe landing pages")
	landingTimeout         = flag.Duration("landing-timeout", 0, "timeout per landing page, at least 5s")
	landingMaxProbes       = flag.Int("landing-max-probes", 0, "landing page probe budget per run, 0 means unlimited")
	landingMissRecheckDays = flag.Int("landing-miss-recheck-days", 0, "days after which a landing page miss is probed again")
	numWorkers             = flag.Int("w", 0, "number of concurrent landing page probes")
	strictFetch            = flag.Bool("strict", false, "fail, if a single OpenAlex work cannot be fetched")
	tagVocabulary          = flag.String("tags", "", "tag vocabulary, JSON list or script with ALL_TAGS")
	verbose                = flag.Bool("verbose", false, "debug logging")
	showVersion            = flag.Bool("version", false, "show version")
)

// applyFlags overrides config values with flags explicitly given.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "b":
			cfg.Bundles = bundles
		case "o":
			cfg.Output = *output
		case "m":
			cfg.Manifest = *manifest
		case "cache-dir":
			cfg.CacheDir = *cacheDir
		case "z":
			cfg.CompressCache = *compressCache
		case "landing-cache":
			cfg.LandingCache = *landingCache
		case "batch-size":
			cfg.BatchSize = *batchSize
		case "mailto":
			cfg.Mailto = *mailto
		case "user-agent":
			cfg.UserAgent = *userAgent
		case "skip-network":
			cfg.SkipNetwork = *skipNetwork
		case "skip-landing-fallback":
			cfg.SkipLandingFallback = *skipLandingFallback
		case "landing-timeout":
			cfg.LandingTimeout = *landingTimeout
		case "landing-max-probes":
			cfg.LandingMaxProbes = *landingMaxProbes
		case "landing-miss-recheck-days":
			cfg.LandingMissRecheckDays = *landingMissRecheckDays
		case "w":
			cfg.Workers = *numWorkers
		case "strict":
			cfg.StrictFetch = *strictFetch
		case "tags":
			cfg.TagVocabulary = *tagVocabulary
		}
	})
}

func main() {
	flag.Var(&bundles, "b", "input bundle, repeatable (default: llvm-org-pubs, blog posts, OpenAlex query and discovery bundles)")
	flag.Usage = func() {
		io.WriteString(os.Stderr, docs)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Println(papersdb.Version)
		os.Exit(0)
	}
	cfg := config.Default()
	if *configFile != "" {
		c, err := config.Load(*configFile)
		if err != nil {
			log.Fatal(err)
		}
		cfg = c
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	started := time.Now()
	stats, err := pipeline.Run(ctx, cfg, &pipeline.Options{Logger: logger})
	if err != nil {
		log.Fatal(err)
	}
	logger.WithFields(stats.Fields()).Infof("done in %s", time.Since(started).Round(time.Millisecond))
}
