package bundle

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
	gzip "github.com/klauspost/pgzip"
	"github.com/llvm-library/papersdb/schema/papers"
	log "github.com/sirupsen/logrus"
)

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

const sampleBundle = `{
  "source": {"slug": "llvm-org-pubs", "name": "LLVM pubs", "url": "https://llvm.org/pubs/"},
  "papers": [
    {"id": "a", "title": "  LLVM:  A Compilation Framework ", "year": 2004, "openalexId": "w123", "doi": "DOI: 10.1109/CGO.2004.1281665"},
    {"id": "b", "title": "Blog", "source": "llvm-blog-www", "sourceName": "LLVM Blog", "citationCount": "12"},
    "not an object",
    {"id": "c", "title": "Test DOI", "doi": "10.1/ABC", "unknownField": true}
  ]
}`

func TestDecode(t *testing.T) {
	b, err := Decode([]byte(sampleBundle))
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Papers) != 3 {
		t.Fatalf("want 3 papers, got %d", len(b.Papers))
	}
	a := b.Papers[0]
	if a.Source != "llvm-org-pubs" || a.SourceName != "LLVM pubs" {
		t.Errorf("source not inherited: %+v", a)
	}
	if a.Year != "2004" || a.OpenAlexID != "https://openalex.org/W123" || a.DOI != "10.1109/cgo.2004.1281665" {
		t.Errorf("record not normalized: %+v", a)
	}
	blog := b.Papers[1]
	if blog.Source != "llvm-blog-www" || blog.SourceName != "LLVM Blog" {
		t.Errorf("own source overwritten: %+v", blog)
	}
	if blog.CitationCount == nil || *blog.CitationCount != 12 {
		t.Errorf("want citation count 12, got %v", blog.CitationCount)
	}
	if got := b.Papers[2].DOI; got != "10.1/abc" {
		t.Errorf("want lenient DOI 10.1/abc, got %s", got)
	}
}

func TestDecodeSkipsMalformedRecords(t *testing.T) {
	data := `{"papers": [
		{"id": "a", "authors": ["Jane Doe"]},
		{"id": "b", "title": 42},
		{"id": "c", "title": "Kept", "publication": "None", "venue": "CGO | Vol. None (Issue None)"}
	]}`
	b, err := Decode([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if b.Skipped != 2 || len(b.Papers) != 1 {
		t.Fatalf("want 2 skipped and 1 kept, got %d and %d", b.Skipped, len(b.Papers))
	}
	if r := b.Papers[0]; r.Publication != "CGO" || r.Venue != "CGO" {
		t.Errorf("publication and venue not cleaned: %q, %q", r.Publication, r.Venue)
	}
}

func TestDecodeMissingPapers(t *testing.T) {
	for _, data := range []string{`{}`, `{"papers": null}`, `{"papers": {"a": 1}}`, `{"source": {}}`} {
		if _, err := Decode([]byte(data)); !errors.Is(err, ErrMissingPapers) {
			t.Errorf("Decode(%s): want ErrMissingPapers, got %v", data, err)
		}
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Errorf("want error for invalid JSON")
	}
}

func TestLoadCompressed(t *testing.T) {
	dir := t.TempDir()
	var gzBuf bytes.Buffer
	zw := gzip.NewWriter(&gzBuf)
	if _, err := zw.Write([]byte(sampleBundle)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	zstData := enc.EncodeAll([]byte(sampleBundle), nil)
	enc.Close()
	files := map[string][]byte{
		"plain.json":    []byte(sampleBundle),
		"pubs.json.gz":  gzBuf.Bytes(),
		"pubs.json.zst": zstData,
	}
	var filenames []string
	for _, name := range []string{"plain.json", "pubs.json.gz", "pubs.json.zst"} {
		filename := filepath.Join(dir, name)
		if err := os.WriteFile(filename, files[name], 0644); err != nil {
			t.Fatal(err)
		}
		filenames = append(filenames, filename)
	}
	records, err := LoadRecords(quietLogger(), filenames...)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 9 {
		t.Fatalf("want 9 records, got %d", len(records))
	}
	for i := 0; i < 3; i++ {
		if diff := cmp.Diff(records[i], records[i+3]); diff != "" {
			t.Errorf("gzip record differs (-plain +gz):\n%s", diff)
		}
		if diff := cmp.Diff(records[i], records[i+6]); diff != "" {
			t.Errorf("zstd record differs (-plain +zst):\n%s", diff)
		}
	}
	if _, err := Load(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("want not exist error, got %v", err)
	}
}

func TestEnsureUniqueIDs(t *testing.T) {
	records := []papers.Record{
		{ID: "x"},
		{ID: "x"},
		{OpenAlexID: "https://openalex.org/W123"},
		{ID: "openalex-w123"},
		{},
		{},
		{ID: "x-2"},
	}
	EnsureUniqueIDs(records)
	var got []string
	for _, r := range records {
		got = append(got, r.ID)
	}
	want := []string{"x", "x-2", "openalex-w123", "openalex-w123-2", "paper", "paper-2", "x-2-2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestSort(t *testing.T) {
	records := []papers.Record{
		{ID: "1", Year: "2010", Title: "Beta"},
		{ID: "2", Year: "n.d.", Title: "Zeta"},
		{ID: "3", Year: "2020", Title: "alpha"},
		{ID: "4", Year: "2010", Title: "Alpha"},
		{ID: "5", Year: "2010", Title: "alpha"},
	}
	Sort(records)
	var got []string
	for _, r := range records {
		got = append(got, r.ID)
	}
	want := []string{"3", "1", "5", "4", "2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteIfChanged(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "out", "combined.json")
	b := &papers.Bundle{
		Source: papers.Source{Slug: "combined", Name: "Combined"},
		Papers: []papers.Record{{ID: "a", Title: "R&D <in> LLVM"}},
	}
	changed, err := Write(filename, b)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Errorf("first write should report a change")
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"title": "R&D <in> LLVM"`)) {
		t.Errorf("want unescaped HTML characters, got:\n%s", data)
	}
	if !bytes.Contains(data, []byte(`"tags": []`)) {
		t.Errorf("want empty lists written as [], got:\n%s", data)
	}
	if !bytes.HasSuffix(data, []byte("}\n")) {
		t.Errorf("want trailing newline")
	}
	info, err := os.Stat(filename)
	if err != nil {
		t.Fatal(err)
	}
	changed, err = Write(filename, b)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Errorf("identical content should not be written again")
	}
	again, err := os.Stat(filename)
	if err != nil {
		t.Fatal(err)
	}
	if !again.ModTime().Equal(info.ModTime()) {
		t.Errorf("file was touched")
	}
}

func TestUpdateManifest(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "index.json")
	initial := `{"title": "LLVM papers", "dataVersion": "2025-01-01-papers", "paperFiles": ["a.json", "b.json"]}`
	if err := os.WriteFile(filename, []byte(initial), 0644); err != nil {
		t.Fatal(err)
	}
	changed, version, err := UpdateManifest(filename, "combined.json", "2026-10-18-v1", false)
	if err != nil {
		t.Fatal(err)
	}
	if !changed || version != "2025-01-01-papers" {
		t.Errorf("want changed paper files and kept version, got %v %s", changed, version)
	}
	m, err := ReadManifest(filename)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"combined.json"}, m.PaperFiles()); diff != "" {
		t.Errorf("paper files mismatch (-want +got):\n%s", diff)
	}
	if _, ok := m["title"]; !ok {
		t.Errorf("unknown keys must be kept")
	}
	changed, _, err = UpdateManifest(filename, "combined.json", "2026-10-18-v1", false)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Errorf("second update should be a no-op")
	}
	changed, version, err = UpdateManifest(filename, "combined.json", "2026-10-18-v1", true)
	if err != nil {
		t.Fatal(err)
	}
	if !changed || version != "2026-10-18-v1" {
		t.Errorf("want bumped version, got %v %s", changed, version)
	}
}

func TestReadManifestMissing(t *testing.T) {
	m, err := ReadManifest(filepath.Join(t.TempDir(), "index.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(m) != 0 || m.DataVersion() != "" || m.PaperFiles() != nil {
		t.Errorf("want empty manifest, got %v", m)
	}
}
