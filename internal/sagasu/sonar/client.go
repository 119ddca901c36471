// Package sonar is a thin client for the AssetSonar-style inventory REST API.
//
// It owns the transport concerns the rest of Sagasu must never see: bearer
// token auth, network retries with exponential backoff, the single delayed
// retry on HTTP 429, page-by-page iteration, and normalisation of the API's
// inconsistent response shapes.
package sonar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bdobrica/Sagasu/common/redact"
	"github.com/bdobrica/Sagasu/common/retry"
)

const (
	// DefaultPageSize is the per_page value requested from listing endpoints.
	DefaultPageSize = 25

	// defaultTimeout covers connect + read for a single request.
	defaultTimeout = 20 * time.Second

	// rateLimitDefaultWait is used when a 429 carries no Retry-After header.
	rateLimitDefaultWait = 60 * time.Second

	// rateLimitMaxWait caps the wait regardless of what the server asks for.
	rateLimitMaxWait = 120 * time.Second

	// networkRetryBase is the initial backoff for transport-level failures.
	networkRetryBase = 400 * time.Millisecond
)

// Config configures a Client.
type Config struct {
	// Subdomain is the tenant subdomain, e.g. "acme" for
	// https://acme.assetsonar.com/api/v1.
	Subdomain string

	// Token is the static API access token.
	Token string

	// BaseURL overrides the URL derived from Subdomain.  Used by tests.
	BaseURL string

	// PageSize overrides DefaultPageSize.
	PageSize int

	// Timeout overrides the per-request HTTP timeout.
	Timeout time.Duration
}

// APIError is returned when the remote API answers with a non-2xx status
// after the client's retry policy is exhausted.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inventory API returned HTTP %d: %.200s", e.Status, e.Body)
}

// rateLimitError is the internal signal for a 429 response.  It never escapes
// Get: an unrecovered rate limit is converted to *APIError.
type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.retryAfter)
}

// Client talks to one tenant's inventory API.  It is safe for concurrent use.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	pageSize int
}

// New creates a Client for the given tenant.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.assetsonar.com/api/v1", cfg.Subdomain)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:  base,
		token:    cfg.Token,
		http:     &http.Client{Timeout: timeout},
		pageSize: pageSize,
	}
}

// PageSize returns the nominal page size used by Paginate.
func (c *Client) PageSize() int {
	return c.pageSize
}

// Get performs a GET against the API and returns the parsed JSON body.
//
// Transport failures are retried up to 3 times with exponential backoff
// (GET is idempotent).  A 429 is retried exactly once after honouring the
// Retry-After header (default 60s, capped at 120s); a second 429 and every
// other non-2xx status surface as *APIError.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (gjson.Result, error) {
	var body []byte

	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  2, // first try + one rate-limit retry
		InitialDelay: rateLimitDefaultWait,
		MaxDelay:     rateLimitMaxWait,
		ShouldRetry: func(err error) bool {
			var rl *rateLimitError
			return errors.As(err, &rl)
		},
		DelayHint: func(err error) time.Duration {
			var rl *rateLimitError
			if errors.As(err, &rl) {
				return rl.retryAfter
			}
			return 0
		},
	}, func() error {
		var err error
		body, err = c.doGET(ctx, path, params)
		return err
	})

	if err != nil {
		var rl *rateLimitError
		if errors.As(err, &rl) {
			return gjson.Result{}, &APIError{Status: http.StatusTooManyRequests, Body: "rate limit persisted after retry"}
		}
		return gjson.Result{}, err
	}

	return gjson.ParseBytes(body), nil
}

// doGET performs one logical GET, retrying transport-level failures.
func (c *Client) doGET(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var body []byte

	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  3,
		InitialDelay: networkRetryBase,
		MaxDelay:     5 * time.Second,
		ShouldRetry:  isTransient,
	}, func() error {
		var err error
		body, err = c.roundTrip(ctx, path, params)
		return err
	})

	return body, err
}

// roundTrip performs a single HTTP round trip and classifies the outcome.
func (c *Client) roundTrip(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("sonar: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token token="+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sonar: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sonar: read body: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &rateLimitError{retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	default:
		// Error bodies end up in logs and notices; make sure the tenant
		// token never rides along.
		return nil, &APIError{Status: resp.StatusCode, Body: redact.String(string(body), c.token)}
	}
}

// parseRetryAfter interprets a Retry-After header as integer seconds.  The
// HTTP-date form is not produced by this API and falls back to the default.
func parseRetryAfter(value string) time.Duration {
	secs, err := strconv.Atoi(value)
	if err != nil || secs <= 0 {
		return rateLimitDefaultWait
	}
	d := time.Duration(secs) * time.Second
	if d > rateLimitMaxWait {
		d = rateLimitMaxWait
	}
	return d
}

// isTransient reports whether err is a network-level failure worth retrying.
// Anything the server actually answered (including 429) is not transient.
func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}
	var rl *rateLimitError
	if errors.As(err, &rl) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// url.Error wraps connection resets and similar transport failures.
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// Paginate walks a listing endpoint page by page, sequentially, invoking fn
// for every record.  The sequence is finite and not restartable.
//
// Termination policy (one policy, applied consistently): stop when a page is
// empty, when the response's explicit total-pages field says the current page
// is the last, or — absent that field — when a page comes back shorter than
// the nominal page size.  maxPages > 0 additionally caps the number of pages
// fetched.
func (c *Client) Paginate(ctx context.Context, path string, params url.Values, maxPages int, fn func(rec gjson.Result) error) error {
	merged := url.Values{}
	for k, vs := range params {
		merged[k] = vs
	}
	merged.Set("per_page", strconv.Itoa(c.pageSize))

	for page := 1; ; page++ {
		if maxPages > 0 && page > maxPages {
			return nil
		}

		merged.Set("page", strconv.Itoa(page))
		body, err := c.Get(ctx, path, merged)
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}

		recs := Records(body)
		if len(recs) == 0 {
			return nil
		}
		for _, rec := range recs {
			if err := fn(rec); err != nil {
				return err
			}
		}

		if total := TotalPages(body); total > 0 {
			if page >= total {
				return nil
			}
			continue
		}
		if len(recs) < c.pageSize {
			return nil
		}
	}
}
