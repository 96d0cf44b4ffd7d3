package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout  = 90 * time.Second
	DefaultCacheTTL = 5 * time.Minute
)

type Options struct {
	BaseURL string
	Token   string
	// Timeout applies to each request. Zero uses DefaultTimeout.
	Timeout time.Duration
	// CacheTTL bounds how long collection and model lists are reused.
	// Negative disables caching.
	CacheTTL   time.Duration
	HTTPClient *http.Client
}

// Client talks to the Data Lens HTTP API.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	cache   *cache.Cache
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("base URL is required")
	}
	u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid base URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("unsupported base URL scheme %q", u.Scheme)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	var c *cache.Cache
	switch {
	case opts.CacheTTL < 0:
	case opts.CacheTTL == 0:
		c = cache.New(DefaultCacheTTL, 2*DefaultCacheTTL)
	default:
		c = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}

	return &Client{baseURL: u, token: opts.Token, http: hc, cache: c}, nil
}

// Refresh drops cached collection and model lists.
func (c *Client) Refresh() {
	if c.cache != nil {
		c.cache.Flush()
	}
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return c.baseURL.String() + "/api/" + strings.Join(escaped, "/")
}

// do sends a JSON request and decodes a JSON response into out, which may be
// nil. Non-2xx responses become *Error.
func (c *Client) do(ctx context.Context, method string, endpoint string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request body")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrap(ctxErr, "request aborted")
		}
		return errors.Wrapf(err, "%s %s", method, req.URL.Path)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	log.Debug().
		Str("method", method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(resp.StatusCode, respBody)
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Wrap(err, "failed to parse response body")
	}
	return nil
}

func (c *Client) String() string {
	return fmt.Sprintf("datalens api at %s", c.baseURL)
}
