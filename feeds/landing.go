package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxPageSize is the number of bytes read from a landing page.
	MaxPageSize = 600000
	// MaxRedirects followed for a landing page.
	MaxRedirects = 4
)

var (
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	httpScheme = regexp.MustCompile(`(?i)^https?://`)
)

// LandingFetcher fetches publisher landing pages as text.
type LandingFetcher struct {
	Client    Doer
	UserAgent string
}

// Fetch returns the first MaxPageSize bytes of a page as text; invalid UTF-8
// sequences are dropped. Only http and https URLs are fetched.
func (f *LandingFetcher) Fetch(ctx context.Context, link string) (string, error) {
	if !httpScheme.MatchString(link) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, link)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("landing: HTTP %d while fetching %s", resp.StatusCode, link)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, MaxPageSize))
	if err != nil {
		return "", err
	}
	if utf8.Valid(b) {
		return string(b), nil
	}
	return strings.ToValidUTF8(string(b), ""), nil
}
