// Package config holds the settings of a database build. Values come from
// defaults, an optional YAML file and command line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/llvm-library/papersdb"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidBatchSize = errors.New("batch size must be > 0")
	ErrNoBundles        = errors.New("no input bundles")
	ErrMissingBundle    = errors.New("missing input bundle")
)

const minLandingTimeout = 5 * time.Second

// DefaultBundles are read, if no bundles are given.
var DefaultBundles = []string{
	"papers/llvm-org-pubs.json",
	"papers/llvm-blog-posts.json",
	"papers/openalex-llvm-query.json",
	"papers/openalex-discovered.json",
}

// Config for a single database build.
type Config struct {
	// Bundles are the input paper bundles, read in order.
	Bundles []string `yaml:"bundles"`
	// Output is the combined database file.
	Output string `yaml:"output"`
	// Manifest lists the paper files served to clients.
	Manifest string `yaml:"manifest"`
	// CacheDir holds raw OpenAlex batch payloads.
	CacheDir string `yaml:"cache_dir"`
	// CompressCache writes new batch payloads zstd compressed.
	CompressCache bool `yaml:"compress_cache"`
	// LandingCache is the JSON file with landing page probe outcomes.
	LandingCache string `yaml:"landing_cache"`
	// BatchSize is the number of OpenAlex ids per request.
	BatchSize int `yaml:"batch_size"`
	// Mailto is sent to OpenAlex to join the polite pool.
	Mailto    string `yaml:"mailto"`
	UserAgent string `yaml:"user_agent"`
	// RequestsPerSecond limits OpenAlex requests; zero means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxRetries        int     `yaml:"max_retries"`
	// SkipNetwork disables all network access, only cached data is used.
	SkipNetwork bool `yaml:"skip_network"`
	// SkipLandingFallback disables landing page probes.
	SkipLandingFallback bool          `yaml:"skip_landing_fallback"`
	LandingTimeout      time.Duration `yaml:"landing_timeout"`
	// LandingMaxProbes limits probes per run; zero means unlimited.
	LandingMaxProbes int `yaml:"landing_max_probes"`
	// LandingMissRecheckDays is the age after which a miss is probed again.
	LandingMissRecheckDays int `yaml:"landing_miss_recheck_days"`
	// Workers is the number of concurrent landing page probes.
	Workers int `yaml:"workers"`
	// StrictFetch aborts the build, if a single OpenAlex work cannot be
	// fetched.
	StrictFetch bool `yaml:"strict_fetch"`
	// TagVocabulary is a JSON list or JS file of canonical tags, optional.
	TagVocabulary string `yaml:"tag_vocabulary"`
}

// Default returns the default configuration; caches live in the user cache
// directory.
func Default() *Config {
	cacheBase := filepath.Join(xdg.CacheHome, papersdb.AppName)
	return &Config{
		Bundles:                append([]string(nil), DefaultBundles...),
		Output:                 "papers/combined-all-papers-deduped.json",
		Manifest:               "papers/index.json",
		CacheDir:               filepath.Join(cacheBase, "openalex"),
		LandingCache:           filepath.Join(cacheBase, "openalex-landing-enrichment.json"),
		BatchSize:              40,
		Mailto:                 "llvm-library-bot@users.noreply.github.com",
		UserAgent:              "library-single-papers-db/1.0",
		RequestsPerSecond:      1 / 0.06,
		MaxRetries:             5,
		LandingTimeout:         25 * time.Second,
		LandingMaxProbes:       300,
		LandingMissRecheckDays: 30,
		Workers:                1,
	}
}

// Load reads a YAML file on top of the defaults. Keys missing from the file
// keep their default value.
func Load(filename string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks settings, ensures all bundles exist and clamps numeric values into their valid range.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if len(c.Bundles) == 0 {
		return ErrNoBundles
	}
	for _, fn := range c.Bundles {
		if _, err := os.Stat(fn); err != nil {
			return fmt.Errorf("%w: %s", ErrMissingBundle, fn)
		}
	}
	if c.LandingTimeout < minLandingTimeout {
		c.LandingTimeout = minLandingTimeout
	}
	if c.LandingMaxProbes < 0 {
		c.LandingMaxProbes = 0
	}
	if c.LandingMissRecheckDays < 0 {
		c.LandingMissRecheckDays = 0
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return nil
}

// LandingEnabled reports whether landing pages may be probed.
func (c *Config) LandingEnabled() bool {
	return !c.SkipLandingFallback && !c.SkipNetwork
}
