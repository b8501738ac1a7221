package fetcher

import (
	"context"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// Pacing is the randomized minimum gap between two requests to the same host.
type Pacing struct {
	Min time.Duration
	Max time.Duration
}

// Backoff bounds the sleep applied after a 5xx response.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

type SessionOptions struct {
	Pacing  Pacing
	Backoff Backoff
	// Sleep replaces the context-aware sleep; tests use it to record delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Session is the per-organization view of a Fetcher. It holds the only
// mutable fetch state: last request time per host and the 5xx backoff
// sequence. A Session must not be shared between organization scans.
type Session struct {
	fetcher  Fetcher
	opts     SessionOptions
	backoff  retry.Backoff
	last     map[string]time.Time
	requests int
	now      func() time.Time
}

func NewSession(f Fetcher, opts SessionOptions) *Session {
	if opts.Pacing.Max < opts.Pacing.Min {
		opts.Pacing.Max = opts.Pacing.Min
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	s := &Session{fetcher: f, opts: opts, last: make(map[string]time.Time), now: time.Now}
	s.resetBackoff()
	return s
}

// Fetch waits out the politeness gap for the URL's host, fetches, and sleeps
// the next backoff step when the server faulted.
func (s *Session) Fetch(ctx context.Context, rawURL string) Result {
	host := hostOf(rawURL)
	if err := s.pace(ctx, host); err != nil {
		return Result{URL: rawURL, Status: StatusNetworkError, Message: err.Error()}
	}

	res := s.fetcher.Fetch(ctx, rawURL)
	s.requests++
	s.last[host] = s.now()

	if res.ServerFault {
		if s.backoff != nil {
			d, _ := s.backoff.Next()
			_ = s.opts.Sleep(ctx, d)
		}
	} else {
		s.resetBackoff()
	}
	return res
}

// Requests is the number of requests issued through the session.
func (s *Session) Requests() int { return s.requests }

func (s *Session) pace(ctx context.Context, host string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	last, ok := s.last[host]
	if !ok {
		return nil
	}
	wait := s.gap() - s.now().Sub(last)
	if wait <= 0 {
		return nil
	}
	return s.opts.Sleep(ctx, wait)
}

func (s *Session) gap() time.Duration {
	p := s.opts.Pacing
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + time.Duration(rand.Int63n(int64(p.Max-p.Min)))
}

func (s *Session) resetBackoff() {
	if s.opts.Backoff.Base <= 0 {
		s.backoff = nil
		return
	}
	b := retry.NewExponential(s.opts.Backoff.Base)
	if s.opts.Backoff.Max > 0 {
		b = retry.WithCappedDuration(s.opts.Backoff.Max, b)
	}
	s.backoff = b
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.ToLower(u.Host)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
