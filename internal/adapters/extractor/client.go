// Package extractor is the HTTP client for the AI event-extraction service.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"orgwatch/internal/domain"
)

const (
	extractPath     = "/extract"
	defaultTimeout  = 60 * time.Second
	defaultRetries  = 3
	maxResponseBody = 2 << 20
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries uint64
	// Backoff is the first retry delay; it doubles on each attempt.
	Backoff time.Duration
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    uint64
	backoff    time.Duration
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retries:    cfg.MaxRetries,
		backoff:    cfg.Backoff,
	}
}

type extractRequest struct {
	PageText string   `json:"page_text"`
	Links    []string `json:"links"`
}

type extractResponse struct {
	Events []domain.EventDraft `json:"events"`
}

// ExtractStructuredEvents posts the page text and links to the service.
// Transport errors and 5xx responses are retried with exponential backoff.
func (c *Client) ExtractStructuredEvents(ctx context.Context, pageText string, links []string) ([]domain.EventDraft, error) {
	if links == nil {
		links = []string{}
	}
	payload, err := json.Marshal(extractRequest{PageText: pageText, Links: links})
	if err != nil {
		return nil, fmt.Errorf("encode extract request: %w", err)
	}

	var out extractResponse
	b := retry.WithMaxRetries(c.retries, retry.NewExponential(c.backoff))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+extractPath, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read extract response: %w", err))
		}
		switch {
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("extractor returned %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("extractor returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		out = extractResponse{}
		if err := json.Unmarshal(body, &out); err != nil {
			return fmt.Errorf("decode extract response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Events, nil
}
