package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/llvm-library/papersdb/normal"
	"github.com/llvm-library/papersdb/schema/openalex"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// OpenAlexWorksAPI is the works endpoint.
	OpenAlexWorksAPI = "https://api.openalex.org/works"
	// DefaultBatchSize is the number of ids requested at once.
	DefaultBatchSize = 40
	// DefaultAttempts per batch, before the batch is split.
	DefaultAttempts = 3
)

// FetchError reports an OpenAlex work that could not be fetched, even when
// requested alone.
type FetchError struct {
	ID  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed fetching OpenAlex work %s: %v", e.ID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// BatchSaver persists the raw payload of a successful batch request.
type BatchSaver interface {
	Save(ids []string, payload []byte) (bool, error)
}

// OpenAlexFetcher fetches works by id in batches. A failing batch is split
// in halves and retried, until single ids remain.
type OpenAlexFetcher struct {
	Client      Doer
	ApiEndpoint string
	ApiEmail    string
	UserAgent   string
	BatchSize   int
	Attempts    int
	// Backoff is multiplied by the attempt number between attempts.
	Backoff time.Duration
	// Limiter spaces out requests, optional.
	Limiter *rate.Limiter
	// Saver receives raw batch payloads, optional.
	Saver BatchSaver
	// Strict makes the first irrecoverable id abort the fetch.
	Strict bool
	Logger log.FieldLogger
}

// FetchResult contains works by short id.
type FetchResult struct {
	Works        map[string]*openalex.Work
	FilesWritten int
	Failed       []*FetchError
}

func (f *OpenAlexFetcher) logger() log.FieldLogger {
	if f.Logger == nil {
		return log.StandardLogger()
	}
	return f.Logger
}

func (f *OpenAlexFetcher) batchSize() int {
	if f.BatchSize > 0 {
		return f.BatchSize
	}
	return DefaultBatchSize
}

func (f *OpenAlexFetcher) attempts() int {
	if f.Attempts > 0 {
		return f.Attempts
	}
	return DefaultAttempts
}

// BatchURL returns the request URL for a batch of short ids.
func (f *OpenAlexFetcher) BatchURL(ids []string) string {
	endpoint := f.ApiEndpoint
	if endpoint == "" {
		endpoint = OpenAlexWorksAPI
	}
	vs := url.Values{}
	vs.Set("filter", "openalex:"+strings.Join(ids, "|"))
	vs.Set("per-page", strconv.Itoa(len(ids)))
	vs.Set("select", strings.Join(openalex.SelectFields, ","))
	if f.ApiEmail != "" {
		vs.Set("mailto", f.ApiEmail)
	}
	return endpoint + "?" + vs.Encode()
}

// Fetch retrieves works for the given short ids. Ids that fail even alone are
// reported in the result, or returned as error in strict mode.
func (f *OpenAlexFetcher) Fetch(ctx context.Context, ids []string) (*FetchResult, error) {
	result := &FetchResult{Works: make(map[string]*openalex.Work)}
	if len(ids) == 0 {
		return result, nil
	}
	var (
		pending   [][]string
		size      = f.batchSize()
		completed int
	)
	for i := 0; i < len(ids); i += size {
		j := i + size
		if j > len(ids) {
			j = len(ids)
		}
		pending = append(pending, ids[i:j])
	}
	for len(pending) > 0 {
		batch := pending[0]
		pending = pending[1:]
		payload, err := f.fetchBatch(ctx, batch)
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if err != nil {
			if len(batch) > 1 {
				half := len(batch) / 2
				f.logger().Warnf("batch request failed; splitting %d -> %d+%d (%v)",
					len(batch), half, len(batch)-half, err)
				pending = append([][]string{batch[:half], batch[half:]}, pending...)
				continue
			}
			ferr := &FetchError{ID: batch[0], Err: err}
			if f.Strict {
				return result, ferr
			}
			f.logger().Warn(ferr)
			result.Failed = append(result.Failed, ferr)
			continue
		}
		completed++
		works, err := openalex.DecodeWorks(payload)
		if err != nil {
			return result, err
		}
		if f.Saver != nil {
			written, err := f.Saver.Save(batch, payload)
			if err != nil {
				return result, err
			}
			if written {
				result.FilesWritten++
			}
		}
		for i := range works {
			if short := normal.OpenAlexShortID(works[i].ID); short != "" {
				result.Works[short] = &works[i]
			}
		}
		f.logger().Infof("fetched batch %d/%d (%d ids)", completed, completed+len(pending), len(batch))
	}
	return result, nil
}

// fetchBatch requests a batch, retrying on transport and decode errors.
func (f *OpenAlexFetcher) fetchBatch(ctx context.Context, batch []string) ([]byte, error) {
	var err error
	for attempt := 1; attempt <= f.attempts(); attempt++ {
		var b []byte
		if b, err = f.fetchOnce(ctx, batch); err == nil {
			return b, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if f.Backoff <= 0 || attempt == f.attempts() {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * f.Backoff):
		}
	}
	return nil, err
}

func (f *OpenAlexFetcher) fetchOnce(ctx context.Context, batch []string) ([]byte, error) {
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	link := f.BatchURL(batch)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", "application/json")
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("openalex: HTTP %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if _, err := openalex.DecodeWorks(b); err != nil {
		return nil, fmt.Errorf("openalex: decode failed with %v", err)
	}
	return b, nil
}
