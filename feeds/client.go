// Package feeds fetches metadata from remote services: batches of works
// from the OpenAlex API and publisher landing pages.
package feeds

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sethgrid/pester"
)

// Doer abstracts https://pkg.go.dev/net/http#Client.Do.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// ErrTooManyRedirects is returned when a page redirects too often.
var ErrTooManyRedirects = errors.New("too many redirects")

// NewClient returns a retrying HTTP client with exponential backoff, which
// also retries on HTTP 429. With maxRedirects > 0, at most that many
// redirects are followed.
func NewClient(timeout time.Duration, maxRetries, maxRedirects int) *pester.Client {
	hc := &http.Client{Timeout: timeout}
	if maxRedirects > 0 {
		hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("%w: %s", ErrTooManyRedirects, req.URL)
			}
			return nil
		}
	}
	client := pester.NewExtendedClient(hc)
	client.Backoff = pester.ExponentialBackoff
	client.MaxRetries = maxRetries
	client.RetryOnHTTP429 = true
	client.Timeout = timeout
	return client
}
