// Package fetcher issues single identified GET requests and classifies the outcome.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultUserAgent    = "OrgwatchBot/1.0 (+https://orgwatch.org/bot; bot@orgwatch.org)"
	DefaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 5 * 1024 * 1024
)

// defaultBlockIndicators mark transport errors that really mean "refused".
var defaultBlockIndicators = []string{"403 forbidden", "forbidden", "access denied", "captcha", "blocked"}

type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusBlocked
	StatusServerError
	StatusNetworkError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusBlocked:
		return "blocked"
	case StatusServerError:
		return "server_error"
	default:
		return "network_error"
	}
}

// Result is the classified outcome of one fetch. Outcomes are values, not errors.
type Result struct {
	URL        string
	Status     Status
	StatusCode int
	Body       []byte
	Message    string
	// ServerFault is set for 5xx responses; sessions back off on it.
	ServerFault bool
}

func (r Result) OK() bool { return r.Status == StatusOK }

// Fetcher is the HTTP fetch capability.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) Result
}

// Observer receives every classified outcome.
type Observer interface {
	ObserveFetch(status string)
}

type Config struct {
	UserAgent       string
	Timeout         time.Duration
	BlockIndicators []string
	MaxBodyBytes    int64
}

// WithDefaults returns a copy of the config with zero fields defaulted.
func (c Config) WithDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if len(c.BlockIndicators) == 0 {
		c.BlockIndicators = defaultBlockIndicators
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	return c
}

// Client is stateless and safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	observer   Observer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

func WithObserver(o Observer) Option { return func(c *Client) { c.observer = o } }

func New(cfg Config, opts ...Option) *Client {
	cfg = cfg.WithDefaults()
	c := &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) UserAgent() string { return c.cfg.UserAgent }

func (c *Client) Fetch(ctx context.Context, rawURL string) Result {
	res := c.fetch(ctx, rawURL)
	if c.observer != nil {
		c.observer.ObserveFetch(res.Status.String())
	}
	return res
}

func (c *Client) fetch(ctx context.Context, rawURL string) Result {
	res := Result{URL: rawURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		res.Status = StatusNetworkError
		res.Message = fmt.Sprintf("create request: %v", err)
		return res
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		res.Message = err.Error()
		res.Status = StatusNetworkError
		if c.hasBlockIndicator(res.Message) {
			res.Status = StatusBlocked
		}
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
		if readErr != nil {
			res.Status = StatusNetworkError
			res.Message = fmt.Sprintf("read body: %v", readErr)
			return res
		}
		res.Status = StatusOK
		res.Body = body
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		res.Status = StatusBlocked
		res.Message = fmt.Sprintf("http status %d", code)
	case code == http.StatusNotFound || code == http.StatusGone:
		res.Status = StatusNotFound
		res.Message = fmt.Sprintf("http status %d", code)
	case code >= 500:
		res.Status = StatusServerError
		res.ServerFault = true
		res.Message = fmt.Sprintf("http status %d", code)
	default:
		res.Status = StatusServerError
		res.Message = fmt.Sprintf("unexpected http status %d", code)
	}
	return res
}

func (c *Client) hasBlockIndicator(msg string) bool {
	msg = strings.ToLower(msg)
	for _, ind := range c.cfg.BlockIndicators {
		if strings.Contains(msg, strings.ToLower(ind)) {
			return true
		}
	}
	return false
}
