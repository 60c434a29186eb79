package refresh

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/llvm-library/papersdb/cache"
	"github.com/llvm-library/papersdb/schema/openalex"
	"github.com/llvm-library/papersdb/schema/papers"
	log "github.com/sirupsen/logrus"
)

const (
	englishTitle    = "A Study of Compiler Optimization in LLVM"
	englishAbstract = "We study the LLVM optimization pipeline and measure the effect of pass ordering on code size."
	japaneseTitle   = "コンパイラ最適化の研究"
)

var landingPage = `<html><head>
<meta name="citation_title" content="` + englishTitle + `">
<meta name="citation_abstract" content="` + englishAbstract + `">
</head><body></body></html>`

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// pageServer serves pages from a map and counts requests.
type pageServer struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func newPageServer(pages map[string]string) *pageServer {
	return &pageServer{pages: pages, calls: make(map[string]int)}
}

func (s *pageServer) Fetch(ctx context.Context, link string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[link]++
	page, ok := s.pages[link]
	if !ok {
		return "", fmt.Errorf("not found: %s", link)
	}
	return page, nil
}

func (s *pageServer) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, v := range s.calls {
		n += v
	}
	return n
}

func quietLogger() log.FieldLogger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testWork(id, updated string) *openalex.Work {
	return &openalex.Work{
		ID:          "https://openalex.org/" + id,
		UpdatedDate: updated,
		Title:       japaneseTitle,
		PrimaryLocation: &openalex.Location{
			LandingPageURL: "https://example.org/" + id,
		},
	}
}

func testRecord(id string) papers.Record {
	return papers.Record{ID: id, Title: japaneseTitle, OpenAlexID: "https://openalex.org/" + id}
}

func newRefresher(store cache.LandingStore, fetcher PageFetcher) *Refresher {
	return &Refresher{
		Store:           store,
		Fetcher:         fetcher,
		Enabled:         true,
		MissRecheckDays: 30,
		Now:             func() time.Time { return testNow },
		Logger:          quietLogger(),
	}
}

func TestShouldTryLanding(t *testing.T) {
	testCases := []struct {
		record papers.Record
		result bool
	}{
		{papers.Record{Title: englishTitle, Abstract: englishAbstract}, false},
		{papers.Record{Title: "", Abstract: englishAbstract}, true},
		{papers.Record{Title: japaneseTitle, Abstract: englishAbstract}, true},
		{papers.Record{Title: englishTitle, Abstract: "No abstract available in OpenAlex metadata."}, true},
		{papers.Record{Title: englishTitle, Abstract: "abcd日本語日本語"}, true},
	}
	for _, tc := range testCases {
		if got := ShouldTryLanding(&tc.record); got != tc.result {
			t.Errorf("ShouldTryLanding(%q, %q): want %v, got %v", tc.record.Title, tc.record.Abstract, tc.result, got)
		}
	}
}

func TestRunWithoutCacheEntry(t *testing.T) {
	var (
		server  = newPageServer(map[string]string{"https://example.org/W1": landingPage})
		store   = cache.NewMemoryLandingStore()
		records = []papers.Record{testRecord("W1"), {ID: "local", Title: "Local only"}}
		works   = map[string]*openalex.Work{"W1": testWork("W1", "2026-01-01")}
	)
	stats, err := newRefresher(store, server).Run(context.Background(), records, works)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Stats{Refreshed: 1, Probes: 1, Hits: 2}, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if records[0].Title != englishTitle || records[0].Abstract != englishAbstract {
		t.Errorf("fallback not applied: %+v", records[0])
	}
	if records[1].Title != "Local only" {
		t.Errorf("record without work changed: %+v", records[1])
	}
	want := cache.Entry{
		Title:           englishTitle,
		Abstract:        englishAbstract,
		Status:          cache.StatusHit,
		SourceUpdatedAt: "2026-01-01",
		UpdatedAt:       "2026-10-18T12:00:00Z",
	}
	got, ok := store.Get("W1")
	if !ok {
		t.Fatalf("no cache entry written")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
}

func TestRunProbeDecisions(t *testing.T) {
	testCases := []struct {
		about string
		entry *cache.Entry
		probe bool
	}{
		{"no entry", nil, true},
		{"hit, unchanged", &cache.Entry{Title: englishTitle, Status: cache.StatusHit, SourceUpdatedAt: "2026-01-01"}, false},
		{"hit, changed upstream", &cache.Entry{Title: englishTitle, Status: cache.StatusHit, SourceUpdatedAt: "2025-01-01"}, true},
		{"hit, no source date", &cache.Entry{Title: englishTitle, Status: cache.StatusHit}, false},
		{"miss, recent", &cache.Entry{Status: cache.StatusMiss, SourceUpdatedAt: "2026-01-01", UpdatedAt: "2026-10-10T00:00:00Z"}, false},
		{"miss, old", &cache.Entry{Status: cache.StatusMiss, SourceUpdatedAt: "2026-01-01", UpdatedAt: "2026-01-01T00:00:00Z"}, true},
		{"miss, no timestamp", &cache.Entry{Status: cache.StatusMiss, SourceUpdatedAt: "2026-01-01"}, true},
		{"miss, changed upstream", &cache.Entry{Status: cache.StatusMiss, SourceUpdatedAt: "2025-01-01", UpdatedAt: "2026-10-10T00:00:00Z"}, true},
		{"unknown status with text", &cache.Entry{Title: englishTitle}, false},
		{"unknown status without text", &cache.Entry{Status: "pending"}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.about, func(t *testing.T) {
			var (
				server  = newPageServer(map[string]string{"https://example.org/W1": landingPage})
				store   = cache.NewMemoryLandingStore()
				records = []papers.Record{testRecord("W1")}
				works   = map[string]*openalex.Work{"W1": testWork("W1", "2026-01-01")}
			)
			if tc.entry != nil {
				store.Put("W1", *tc.entry)
			}
			stats, err := newRefresher(store, server).Run(context.Background(), records, works)
			if err != nil {
				t.Fatal(err)
			}
			if got := server.total() > 0; got != tc.probe {
				t.Errorf("want probe %v, got %v", tc.probe, got)
			}
			if got := stats.Probes > 0; got != tc.probe {
				t.Errorf("want probe count %v, got %d", tc.probe, stats.Probes)
			}
		})
	}
}

func TestRunUsesCachedValues(t *testing.T) {
	var (
		server  = newPageServer(nil)
		store   = cache.NewMemoryLandingStore()
		records = []papers.Record{testRecord("W1")}
		works   = map[string]*openalex.Work{"W1": testWork("W1", "2026-01-01")}
	)
	store.Put("W1", cache.Entry{Title: englishTitle, Status: cache.StatusHit, SourceUpdatedAt: "2026-01-01"})
	stats, err := newRefresher(store, server).Run(context.Background(), records, works)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Hits != 1 || stats.Probes != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if records[0].Title != englishTitle {
		t.Errorf("cached title not applied: %q", records[0].Title)
	}
}

func TestRunClearsLowQualityTitle(t *testing.T) {
	var (
		store   = cache.NewMemoryLandingStore()
		records = []papers.Record{testRecord("W1")}
		works   = map[string]*openalex.Work{"W1": testWork("W1", "2026-01-01")}
	)
	store.Put("W1", cache.Entry{Title: "ACM DL", Status: cache.StatusHit, SourceUpdatedAt: "2026-01-01"})
	stats, err := newRefresher(store, newPageServer(nil)).Run(context.Background(), records, works)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Hits != 0 {
		t.Errorf("want no hits, got %d", stats.Hits)
	}
	if records[0].Title != japaneseTitle {
		t.Errorf("low quality title applied: %q", records[0].Title)
	}
	entry, _ := store.Get("W1")
	if entry.Title != "" || entry.Status != cache.StatusMiss {
		t.Errorf("entry not cleared: %+v", entry)
	}
}

func TestRunBudget(t *testing.T) {
	var (
		server  = newPageServer(map[string]string{"https://example.org/W1": landingPage, "https://example.org/W2": landingPage})
		store   = cache.NewMemoryLandingStore()
		records = []papers.Record{testRecord("W1"), testRecord("W2")}
		works   = map[string]*openalex.Work{
			"W1": testWork("W1", "2026-01-01"),
			"W2": testWork("W2", "2026-01-01"),
		}
	)
	r := newRefresher(store, server)
	r.MaxProbes = 1
	stats, err := r.Run(context.Background(), records, works)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Stats{Refreshed: 2, Probes: 1, Hits: 2, SkippedBudget: 1}, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if _, ok := store.Get("W2"); ok {
		t.Errorf("skipped work should have no cache entry")
	}
	if records[1].Title != japaneseTitle {
		t.Errorf("skipped record changed: %q", records[1].Title)
	}
}

func TestRunDisabled(t *testing.T) {
	var (
		server  = newPageServer(map[string]string{"https://example.org/W1": landingPage})
		store   = cache.NewMemoryLandingStore()
		records = []papers.Record{testRecord("W1")}
		works   = map[string]*openalex.Work{"W1": testWork("W1", "2026-01-01")}
	)
	r := newRefresher(store, server)
	r.Enabled = false
	stats, err := r.Run(context.Background(), records, works)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Stats{Refreshed: 1}, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if server.total() != 0 || store.Len() != 0 {
		t.Errorf("disabled fallback touched network or cache")
	}
}

func TestRunFallsThroughFailingPages(t *testing.T) {
	work := testWork("W1", "2026-01-01")
	work.BestOALocation = &openalex.Location{LandingPageURL: "https://broken.example.org/W1"}
	var (
		server  = newPageServer(map[string]string{"https://example.org/W1": landingPage})
		store   = cache.NewMemoryLandingStore()
		records = []papers.Record{testRecord("W1")}
	)
	stats, err := newRefresher(store, server).Run(context.Background(), records, map[string]*openalex.Work{"W1": work})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Probes != 1 || stats.Hits != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if server.total() != 2 {
		t.Errorf("want two fetches, got %d", server.total())
	}
}

func TestRunMissWritesEntry(t *testing.T) {
	var (
		store   = cache.NewMemoryLandingStore()
		records = []papers.Record{testRecord("W1")}
		works   = map[string]*openalex.Work{"W1": testWork("W1", "2026-01-01")}
	)
	stats, err := newRefresher(store, newPageServer(nil)).Run(context.Background(), records, works)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Probes != 1 || stats.Hits != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	entry, ok := store.Get("W1")
	if !ok || entry.Status != cache.StatusMiss || entry.UpdatedAt != "2026-10-18T12:00:00Z" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestRunWorkersDoNotChangeResult(t *testing.T) {
	pages := make(map[string]string)
	works := make(map[string]*openalex.Work)
	var base []papers.Record
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("W%d", i+1)
		if i%3 != 0 {
			pages["https://example.org/"+id] = landingPage
		}
		works[id] = testWork(id, "2026-01-01")
		base = append(base, testRecord(id))
	}
	run := func(workers int) ([]papers.Record, Stats) {
		records := make([]papers.Record, len(base))
		for i, r := range base {
			records[i] = r.Clone()
		}
		r := newRefresher(cache.NewMemoryLandingStore(), newPageServer(pages))
		r.Workers = workers
		r.MaxProbes = 40
		stats, err := r.Run(context.Background(), records, works)
		if err != nil {
			t.Fatal(err)
		}
		return records, stats
	}
	seqRecords, seqStats := run(1)
	parRecords, parStats := run(8)
	if diff := cmp.Diff(seqStats, parStats); diff != "" {
		t.Errorf("stats differ (-sequential +parallel):\n%s", diff)
	}
	if diff := cmp.Diff(seqRecords, parRecords); diff != "" {
		t.Errorf("records differ (-sequential +parallel):\n%s", diff)
	}
	if seqStats.SkippedBudget != 10 {
		t.Errorf("want 10 skipped, got %d", seqStats.SkippedBudget)
	}
}
