// Package httpx provides the outbound HTTP client used for release lookups
// and binary downloads. Redirects are followed manually so the original
// header set survives every hop, with an explicit bound instead of the
// standard library's silent limit.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	defaultUserAgent = "lspup/1.0"

	// maxRedirects bounds redirect chains. A malicious or misconfigured
	// feed must not be able to keep the client hopping forever.
	maxRedirects = 10
)

var (
	// ErrTooManyRedirects is returned when a redirect chain exceeds
	// maxRedirects hops without reaching a terminal response.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrMalformedResponse is returned when a JSON payload fails to decode.
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError reports a non-2xx, non-redirect response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request %s: unexpected status %d", e.URL, e.Status)
}

// ProgressFunc receives incremental download progress. total is -1 when the
// response carried no Content-Length header.
type ProgressFunc func(written, total int64)

// Client issues GET requests with a fixed User-Agent.
type Client struct {
	hc        *http.Client
	userAgent string
}

// NewClient builds a client with the given overall request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		hc: &http.Client{
			Timeout: timeout,
			// Redirects are handled in get so headers carry across hops.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: defaultUserAgent,
	}
}

// FetchJSON issues a GET for url and decodes the JSON body into v.
func (c *Client) FetchJSON(ctx context.Context, url string, v any) error {
	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")

	resp, err := c.get(ctx, url, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// Download streams the response body for url into the file at dest,
// reporting progress as bytes arrive. dest is created or truncated in
// place; callers wanting atomicity download to a temp path and rename.
func (c *Client) Download(ctx context.Context, url, dest string, onProgress ProgressFunc) error {
	resp, err := c.get(ctx, url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create download destination: %w", err)
	}

	total := resp.ContentLength
	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				return fmt.Errorf("write download: %w", writeErr)
			}
			written += int64(n)
			if onProgress != nil {
				onProgress(written, total)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			out.Close()
			return fmt.Errorf("read download body: %w", readErr)
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close download destination: %w", err)
	}
	return nil
}

// get performs the request, following up to maxRedirects hops while
// re-applying the caller's headers on each one.
func (c *Client) get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	for hop := 0; hop <= maxRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		for key, values := range header {
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", url, err)
		}

		if resp.StatusCode >= 300 && resp.StatusCode <= 399 {
			location := resp.Header.Get("Location")
			resp.Body.Close()
			if location == "" {
				return nil, &StatusError{URL: url, Status: resp.StatusCode}
			}
			next, err := resp.Request.URL.Parse(location)
			if err != nil {
				return nil, fmt.Errorf("parse redirect location %q: %w", location, err)
			}
			url = next.String()
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, &StatusError{URL: url, Status: resp.StatusCode}
		}
		return resp, nil
	}
	return nil, fmt.Errorf("request %s: %w", url, ErrTooManyRedirects)
}
