// Package pproc applies a function to lines of input on a number of workers.
// Lines are grouped into batches; results are written in input order.
package pproc

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize   = 1000
	defaultMaxLineSize = 1 << 24 // 16MB
)

// ProcessFunc transforms a single line, without its newline. The result is
// written as is, so it needs to carry its own newline; nil results are
// skipped.
type ProcessFunc func(line []byte) ([]byte, error)

// Option configures a Processor.
type Option func(*Processor)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithBatchSize sets the number of lines handed to a worker at once.
func WithBatchSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithMaxLineSize sets the longest accepted line.
func WithMaxLineSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxLineSize = n
		}
	}
}

// Processor runs a ProcessFunc over lines.
type Processor struct {
	f           ProcessFunc
	workers     int
	batchSize   int
	maxLineSize int
}

// New returns a processor with one worker per CPU by default.
func New(f ProcessFunc, opts ...Option) *Processor {
	p := &Processor{
		f:           f,
		workers:     runtime.NumCPU(),
		batchSize:   defaultBatchSize,
		maxLineSize: defaultMaxLineSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type batch struct {
	seq   int
	lines [][]byte
	out   []byte
}

// Process reads lines from r and writes results to w. The first error of
// the function, reader or writer stops processing.
func (p *Processor) Process(ctx context.Context, r io.Reader, w io.Writer) error {
	var wg sync.WaitGroup
	in := make(chan *batch, p.workers)
	out := make(chan *batch, p.workers)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(in)
		return p.split(gctx, r, in)
	})
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for b := range in {
				if err := p.run(b); err != nil {
					return err
				}
				select {
				case out <- b:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	g.Go(func() error {
		return writeOrdered(w, out)
	})
	return g.Wait()
}

// split groups lines into numbered batches.
func (p *Processor) split(ctx context.Context, r io.Reader, in chan<- *batch) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), p.maxLineSize)
	b := &batch{}
	send := func() error {
		select {
		case in <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
		b = &batch{seq: b.seq + 1}
		return nil
	}
	for scanner.Scan() {
		b.lines = append(b.lines, append([]byte(nil), scanner.Bytes()...))
		if len(b.lines) == p.batchSize {
			if err := send(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if len(b.lines) > 0 {
		return send()
	}
	return nil
}

func (p *Processor) run(b *batch) error {
	var buf bytes.Buffer
	for _, line := range b.lines {
		result, err := p.f(line)
		if err != nil {
			return err
		}
		buf.Write(result)
	}
	b.lines, b.out = nil, buf.Bytes()
	return nil
}

// writeOrdered writes batches by sequence number, holding back batches that
// finish early.
func writeOrdered(w io.Writer, out <-chan *batch) error {
	var (
		bw      = bufio.NewWriter(w)
		pending = make(map[int][]byte)
		next    int
	)
	for b := range out {
		pending[b.seq] = b.out
		for {
			data, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if _, err := bw.Write(data); err != nil {
				return err
			}
			next++
		}
	}
	return bw.Flush()
}
