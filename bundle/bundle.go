// Package bundle reads source bundles and writes the combined database and
// its manifest. Writes are skipped, if the serialized content did not change.
package bundle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	gzip "github.com/klauspost/pgzip"
	"github.com/llvm-library/papersdb/atomicfile"
	"github.com/llvm-library/papersdb/normal"
	"github.com/llvm-library/papersdb/schema/papers"
	"github.com/segmentio/encoding/json"
	log "github.com/sirupsen/logrus"
)

// ErrMissingPapers signals a bundle without a "papers" list.
var ErrMissingPapers = errors.New(`bundle has no "papers" list`)

// openFile opens a file and returns a reader, detecting if the file is
// compressed by its extension.
func openFile(filename string) (io.ReadCloser, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(filename, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case strings.HasSuffix(filename, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zstdCloser{zr}, f}}, nil
	default:
		return f, nil
	}
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var err error
	for _, c := range s.closers {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

type zstdCloser struct{ d *zstd.Decoder }

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}

// Load reads a single bundle from a file, which may be gzip or zstd
// compressed. Each record inherits source slug and name from the bundle, if
// it has none of its own; OpenAlex ids, DOI, publication and venue are
// normalized. Records that do not decode are skipped and counted.
func Load(filename string) (*papers.Bundle, error) {
	rc, err := openFile(filename)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	bundle, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return bundle, nil
}

// Decode parses bundle JSON and normalizes its records, cf. Load.
func Decode(b []byte) (*papers.Bundle, error) {
	var raw struct {
		Source json.RawMessage `json:"source"`
		Papers json.RawMessage `json:"papers"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	list := bytes.TrimSpace(raw.Papers)
	if len(list) == 0 || list[0] != '[' {
		return nil, ErrMissingPapers
	}
	var bundle papers.Bundle
	// A source that is not an object is ignored, as are non-object papers.
	_ = json.Unmarshal(raw.Source, &bundle.Source)
	var items []json.RawMessage
	if err := json.Unmarshal(list, &items); err != nil {
		return nil, err
	}
	var (
		slug = normal.CollapseWS(bundle.Source.Slug)
		name = normal.CollapseWS(bundle.Source.Name)
	)
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		var r papers.Record
		if err := json.Unmarshal(item, &r); err != nil {
			// A record with mistyped fields, e.g. authors as plain strings.
			bundle.Skipped++
			continue
		}
		if v := normal.CollapseWS(r.Source); v != "" {
			r.Source = v
		} else {
			r.Source = slug
		}
		if v := normal.CollapseWS(r.SourceName); v != "" {
			r.SourceName = v
		} else {
			r.SourceName = name
		}
		if short := normal.OpenAlexShortID(r.OpenAlexID); short != "" {
			r.OpenAlexID = normal.OpenAlexURL(short)
		}
		if normal.CollapseWS(r.DOI) != "" {
			r.DOI = normal.LenientDOI(r.DOI)
		}
		r.Publication = normal.Publication(r.Publication, r.Venue)
		r.Venue = normal.Venue(r.Publication, r.Venue)
		bundle.Papers = append(bundle.Papers, r)
	}
	return &bundle, nil
}

// LoadRecords reads all records from a number of bundle files, in order.
// Skipped records are logged per file.
func LoadRecords(logger log.FieldLogger, filenames ...string) ([]papers.Record, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	var result []papers.Record
	for _, fn := range filenames {
		b, err := Load(fn)
		if err != nil {
			return nil, err
		}
		if b.Skipped > 0 {
			logger.WithFields(log.Fields{
				"bundle":  fn,
				"skipped": b.Skipped,
			}).Warn("skipped malformed records")
		}
		result = append(result, b.Papers...)
	}
	return result, nil
}

// Marshal serializes a value deterministically: two space indent, no HTML
// escaping and a final newline.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteIfChanged writes data to filename, unless the file already has
// exactly this content. Reports whether a write happened.
func WriteIfChanged(filename string, data []byte) (bool, error) {
	existing, err := os.ReadFile(filename)
	switch {
	case err == nil && bytes.Equal(existing, data):
		return false, nil
	case err != nil && !os.IsNotExist(err):
		return false, err
	}
	if err := atomicfile.WriteFile(filename, data, 0644); err != nil {
		return false, err
	}
	return true, nil
}

// Write serializes a bundle and writes it, if changed. Nil lists are
// written as empty lists.
func Write(filename string, b *papers.Bundle) (bool, error) {
	if b.Papers == nil {
		b.Papers = []papers.Record{}
	}
	for i := range b.Papers {
		fillLists(&b.Papers[i])
	}
	data, err := Marshal(b)
	if err != nil {
		return false, err
	}
	return WriteIfChanged(filename, data)
}

func fillLists(r *papers.Record) {
	if r.Authors == nil {
		r.Authors = []papers.Author{}
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if r.Keywords == nil {
		r.Keywords = []string{}
	}
}
