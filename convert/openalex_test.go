package convert

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/llvm-library/papersdb/schema/openalex"
	"github.com/llvm-library/papersdb/schema/papers"
	"github.com/segmentio/encoding/json"
)

func TestApplyWork(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "openalex-*.input"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no test inputs")
	}
	for _, path := range paths {
		base := filepath.Base(path)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		t.Run(name, func(t *testing.T) {
			b, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			var work openalex.Work
			if err := json.Unmarshal(b, &work); err != nil {
				t.Fatal(err)
			}
			rb, err := os.ReadFile(filepath.Join("testdata", name+".record"))
			if err != nil {
				t.Fatal(err)
			}
			var record papers.Record
			if err := json.Unmarshal(rb, &record); err != nil {
				t.Fatal(err)
			}
			if err := ApplyWork(&record, &work); err != nil {
				t.Fatal(err)
			}
			got, err := json.MarshalIndent(record, "", "    ")
			if err != nil {
				t.Fatal(err)
			}
			goldenfile := filepath.Join("testdata", name+".golden")
			want, err := os.ReadFile(goldenfile)
			if err != nil {
				if os.IsNotExist(err) {
					if err := os.WriteFile(goldenfile, got, 0644); err != nil {
						t.Fatal(err)
					}
					t.Logf("created golden file: %s", goldenfile)
					return
				}
				t.Fatal(err)
			}
			compareJSONWithDiff(t, name, got, want)
		})
	}
}

func TestApplyWorkErrors(t *testing.T) {
	if err := ApplyWork(nil, &openalex.Work{}); err != ErrEmptyDoc {
		t.Errorf("want ErrEmptyDoc, got %v", err)
	}
	r := papers.Record{Title: "x"}
	if err := ApplyWork(&r, &openalex.Work{ID: "https://openalex.org/A1"}); err != ErrMissingOpenAlexIdentifier {
		t.Errorf("want ErrMissingOpenAlexIdentifier, got %v", err)
	}
	if r.Title != "x" {
		t.Errorf("record must not change on error")
	}
}

func TestApplyWorkClampsCitations(t *testing.T) {
	n := int64(-3)
	r := papers.Record{OpenAlexID: "W1", Type: "blog-post"}
	if err := ApplyWork(&r, &openalex.Work{CitedByCount: &n}); err != nil {
		t.Fatal(err)
	}
	if r.CitationCount == nil || *r.CitationCount != 0 {
		t.Errorf("want 0, got %v", r.CitationCount)
	}
	if r.Type != "blog-post" {
		t.Errorf("type without OpenAlex type should be kept, got %s", r.Type)
	}
	if r.OpenAlexID != "https://openalex.org/W1" {
		t.Errorf("got %s", r.OpenAlexID)
	}
}

func TestPublicationAndVenue(t *testing.T) {
	testCases := []struct {
		about       string
		work        openalex.Work
		publication string
		venue       string
	}{
		{"empty", openalex.Work{}, "", ""},
		{
			"primary with volume and issue",
			openalex.Work{
				PrimaryLocation: &openalex.Location{Source: &openalex.Source{DisplayName: "TACO"}},
				Biblio:          &openalex.Biblio{Volume: "7", Issue: "2"},
			},
			"TACO", "TACO | Vol. 7 (Issue 2)",
		},
		{
			"fallback location, issue only",
			openalex.Work{
				PrimaryLocation: &openalex.Location{Source: &openalex.Source{DisplayName: "None"}},
				Locations: []*openalex.Location{
					nil,
					{Source: &openalex.Source{DisplayName: " "}},
					{Source: &openalex.Source{DisplayName: "arXiv"}},
				},
				Biblio: &openalex.Biblio{Issue: "3"},
			},
			"arXiv", "arXiv | Issue 3",
		},
		{
			"volume without publication",
			openalex.Work{Biblio: &openalex.Biblio{Volume: "12"}},
			"", "Vol. 12",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.about, func(t *testing.T) {
			p, v := PublicationAndVenue(&tc.work)
			if p != tc.publication || v != tc.venue {
				t.Errorf("want (%q, %q), but got (%q, %q)", tc.publication, tc.venue, p, v)
			}
		})
	}
}

func TestPickURLs(t *testing.T) {
	testCases := []struct {
		about     string
		work      openalex.Work
		paperURL  string
		sourceURL string
	}{
		{"empty", openalex.Work{}, "", ""},
		{"only id", openalex.Work{ID: "https://openalex.org/W1"}, "", "https://openalex.org/W1"},
		{
			"pdf preferred over earlier candidates",
			openalex.Work{
				OpenAccess:      &openalex.OpenAccess{OAURL: "https://x.org/landing"},
				PrimaryLocation: &openalex.Location{LandingPageURL: "https://x.org/paper.PDF?download=1"},
				DOI:             "https://doi.org/10.1145/1",
			},
			"https://x.org/paper.PDF?download=1", "https://doi.org/10.1145/1",
		},
		{
			"first candidate without pdf, source equals paper",
			openalex.Work{DOI: "https://doi.org/10.1145/1"},
			"https://doi.org/10.1145/1", "",
		},
		{
			"landing as source without doi",
			openalex.Work{
				BestOALocation:  &openalex.Location{PdfURL: "https://a.org/p.pdf"},
				PrimaryLocation: &openalex.Location{LandingPageURL: "https://a.org/p"},
			},
			"https://a.org/p.pdf", "https://a.org/p",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.about, func(t *testing.T) {
			p, s := PickURLs(&tc.work)
			if p != tc.paperURL || s != tc.sourceURL {
				t.Errorf("want (%q, %q), but got (%q, %q)", tc.paperURL, tc.sourceURL, p, s)
			}
		})
	}
}

func TestClassifyType(t *testing.T) {
	testCases := []struct {
		openalexType string
		existing     string
		result       string
	}{
		{"dissertation", "research-paper", "thesis"},
		{"Dissertation", "", "thesis"},
		{"article", "blog-post", "research-paper"},
		{"", "presentation-paper", "presentation-paper"},
		{"", "", "research-paper"},
	}
	for _, tc := range testCases {
		if got := ClassifyType(tc.openalexType, tc.existing); got != tc.result {
			t.Errorf("ClassifyType(%q, %q): want %s, but got %s", tc.openalexType, tc.existing, tc.result, got)
		}
	}
}

func TestLandingURLs(t *testing.T) {
	work := openalex.Work{
		BestOALocation:  &openalex.Location{LandingPageURL: "https://a.org/1"},
		PrimaryLocation: &openalex.Location{LandingPageURL: "https://b.org/2"},
		Locations: []*openalex.Location{
			{LandingPageURL: "https://a.org/1"},
			{LandingPageURL: "ftp://c.org/3"},
			{LandingPageURL: "HTTP://d.org/4"},
		},
		DOI: "https://doi.org/10.1145/1",
	}
	want := []string{"https://a.org/1", "https://b.org/2", "HTTP://d.org/4", "https://doi.org/10.1145/1"}
	if diff := cmp.Diff(want, LandingURLs(&work)); diff != "" {
		t.Errorf("LandingURLs mismatch (-want +got):\n%s", diff)
	}
}

// Helper function to compare JSON with better diff output
func compareJSONWithDiff(t *testing.T, name string, got, want []byte) {
	var gotObj, wantObj interface{}
	if err := json.Unmarshal(got, &gotObj); err != nil {
		t.Fatalf("failed to unmarshal got JSON: %v", err)
	}
	if err := json.Unmarshal(want, &wantObj); err != nil {
		t.Fatalf("failed to unmarshal want JSON: %v", err)
	}
	if diff := cmp.Diff(wantObj, gotObj); diff != "" {
		t.Errorf("%s: JSON mismatch (-want +got):\n%s", name, diff)
	}
}
