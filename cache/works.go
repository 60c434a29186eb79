// Package cache keeps OpenAlex batch payloads and landing page results on
// disk, so that repeated runs need no or few network requests.
package cache

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/llvm-library/papersdb/atomicfile"
	"github.com/llvm-library/papersdb/normal"
	"github.com/llvm-library/papersdb/schema/openalex"
	log "github.com/sirupsen/logrus"
)

const worksPrefix = "single-db-openalex-"

// WorksCache is a directory of raw OpenAlex batch payloads, one file per
// batch, named by a hash of the sorted batch ids.
type WorksCache struct {
	Dir string
	// Compress writes new payloads zstd compressed.
	Compress bool
	Logger   log.FieldLogger
}

func (c *WorksCache) logger() log.FieldLogger {
	if c.Logger == nil {
		return log.StandardLogger()
	}
	return c.Logger
}

// Filename returns the cache file for a batch of ids, independent of their
// order.
func (c *WorksCache) Filename(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	h := sha1.New()
	_, _ = io.WriteString(h, strings.Join(sorted, "|"))
	name := fmt.Sprintf("%s%x", worksPrefix, h.Sum(nil))[:len(worksPrefix)+20] + ".json"
	if c.Compress {
		name += ".zst"
	}
	return filepath.Join(c.Dir, name)
}

// Save writes a payload for a batch, unless the file already has the same
// content. Reports whether a file was written.
func (c *WorksCache) Save(ids []string, payload []byte) (bool, error) {
	filename := c.Filename(ids)
	if existing, err := readPayload(filename); err == nil && bytes.Equal(existing, payload) {
		return false, nil
	}
	data := payload
	if c.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return false, err
		}
		data = enc.EncodeAll(payload, nil)
		if err := enc.Close(); err != nil {
			return false, err
		}
	}
	if err := atomicfile.WriteFile(filename, data, 0644); err != nil {
		return false, err
	}
	return true, nil
}

// Load scans all cached payloads in name order and returns works for the
// wanted short ids; the first file containing a work wins. Unreadable files
// are skipped. A missing directory yields no works.
func (c *WorksCache) Load(wanted map[string]bool) (map[string]*openalex.Work, error) {
	result := make(map[string]*openalex.Work)
	entries, err := os.ReadDir(c.Dir)
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := readPayload(filepath.Join(c.Dir, name))
		if err != nil {
			c.logger().Warnf("skipping cache file %s: %v", name, err)
			continue
		}
		works, err := openalex.DecodeWorks(b)
		if err != nil {
			c.logger().Warnf("skipping cache file %s: %v", name, err)
			continue
		}
		for i := range works {
			short := normal.OpenAlexShortID(works[i].ID)
			if short == "" || !wanted[short] {
				continue
			}
			if _, ok := result[short]; !ok {
				result[short] = &works[i]
			}
		}
	}
	return result, nil
}

// readPayload reads a plain or zstd compressed file.
func readPayload(filename string) ([]byte, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(filename, ".zst") {
		return b, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(b, nil)
}
