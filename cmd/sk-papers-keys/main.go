// sk-papers-keys writes the identity keys of newline delimited paper records,
// one "id<TAB>key" line per key. Records sharing a key end up in the same
// canonical record of the combined database.
//
//	$ jq -c '.papers[]' papers/llvm-org-pubs.json | sk-papers-keys | sort -k2 | uniq -D -f1
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/llvm-library/papersdb/clustering"
	"github.com/llvm-library/papersdb/pproc"
	"github.com/llvm-library/papersdb/schema/papers"
	"github.com/segmentio/encoding/json"
)

var (
	inputFile  = flag.String("i", "", "input NDJSON file (default: stdin)")
	outputFile = flag.String("o", "", "output file (default: stdout)")
	separator  = flag.String("s", "\t", "field separator")
	numWorkers = flag.Int("w", runtime.NumCPU(), "number of workers")
	batchSize  = flag.Int("n", 1000, "records per batch")
	skipErrors = flag.Bool("k", false, "skip lines, that are not records")
)

// recordKeys returns a function, that emits one line per identity key.
func recordKeys(sep string, skipErrors bool) pproc.ProcessFunc {
	return func(line []byte) ([]byte, error) {
		if len(bytes.TrimSpace(line)) == 0 {
			return nil, nil
		}
		var r papers.Record
		if err := json.Unmarshal(line, &r); err != nil {
			if skipErrors {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid record: %w", err)
		}
		var buf bytes.Buffer
		for _, key := range clustering.Keys(r) {
			buf.WriteString(r.ID)
			buf.WriteString(sep)
			buf.WriteString(key)
			buf.WriteByte('\n')
		}
		return buf.Bytes(), nil
	}
}

func main() {
	flag.Parse()
	var r io.Reader = os.Stdin
	if *inputFile != "" {
		f, err := os.Open(*inputFile)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		r = f
	}
	var w io.Writer = os.Stdout
	if *outputFile != "" {
		f, err := os.Create(*outputFile)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		w = f
	}
	p := pproc.New(recordKeys(*separator, *skipErrors),
		pproc.WithWorkers(*numWorkers),
		pproc.WithBatchSize(*batchSize))
	if err := p.Process(context.Background(), r, w); err != nil {
		log.Fatal(err)
	}
}
