package fetcher_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"orgwatch/internal/fetcher"
)

// stubFetcher returns canned results keyed by URL.
type stubFetcher struct {
	results map[string]fetcher.Result
	calls   []string
}

func (s *stubFetcher) Fetch(_ context.Context, rawURL string) fetcher.Result {
	s.calls = append(s.calls, rawURL)
	if r, ok := s.results[rawURL]; ok {
		r.URL = rawURL
		return r
	}
	return fetcher.Result{URL: rawURL, Status: fetcher.StatusNotFound}
}

type sleepRecorder struct{ sleeps []time.Duration }

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.sleeps = append(s.sleeps, d)
	return nil
}

func TestSession_BacksOffOnServerErrors(t *testing.T) {
	stub := &stubFetcher{results: map[string]fetcher.Result{
		"https://a.example/1": {Status: fetcher.StatusServerError, ServerFault: true},
		"https://a.example/2": {Status: fetcher.StatusServerError, ServerFault: true},
		"https://a.example/3": {Status: fetcher.StatusServerError, ServerFault: true},
		"https://a.example/4": {Status: fetcher.StatusServerError, ServerFault: true},
		"https://a.example/5": {Status: fetcher.StatusOK},
		"https://a.example/6": {Status: fetcher.StatusServerError, ServerFault: true},
	}}
	rec := &sleepRecorder{}
	s := fetcher.NewSession(stub, fetcher.SessionOptions{
		Backoff: fetcher.Backoff{Base: time.Second, Max: 3 * time.Second},
		Sleep:   rec.sleep,
	})

	for _, u := range []string{"1", "2", "3", "4", "5", "6"} {
		s.Fetch(context.Background(), "https://a.example/"+u)
	}

	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second,
		time.Second,
	}, rec.sleeps)
	assert.Equal(t, 6, s.Requests())
}

func TestSession_NoBackoffForOtherFailures(t *testing.T) {
	stub := &stubFetcher{results: map[string]fetcher.Result{
		"https://a.example/teapot": {Status: fetcher.StatusServerError},
	}}
	rec := &sleepRecorder{}
	s := fetcher.NewSession(stub, fetcher.SessionOptions{
		Backoff: fetcher.Backoff{Base: time.Second},
		Sleep:   rec.sleep,
	})

	s.Fetch(context.Background(), "https://a.example/teapot")
	assert.Empty(t, rec.sleeps)
}

func TestSession_PacesSameHostOnly(t *testing.T) {
	stub := &stubFetcher{}
	rec := &sleepRecorder{}
	s := fetcher.NewSession(stub, fetcher.SessionOptions{
		Pacing: fetcher.Pacing{Min: time.Hour, Max: time.Hour},
		Sleep:  rec.sleep,
	})

	s.Fetch(context.Background(), "https://a.example/x")
	s.Fetch(context.Background(), "https://b.example/x")
	assert.Empty(t, rec.sleeps)

	s.Fetch(context.Background(), "https://a.example/y")
	if assert.Len(t, rec.sleeps, 1) {
		assert.InDelta(t, float64(time.Hour), float64(rec.sleeps[0]), float64(time.Second))
	}
}

func TestSession_CancelledContext(t *testing.T) {
	stub := &stubFetcher{}
	s := fetcher.NewSession(stub, fetcher.SessionOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := s.Fetch(ctx, "https://a.example/")
	assert.Equal(t, fetcher.StatusNetworkError, res.Status)
	assert.Empty(t, stub.calls)
}

func TestRobotsAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: TestBot\nDisallow: /private\n\nUser-agent: *\nDisallow:\n"))
		}
	}))
	defer srv.Close()

	s := fetcher.NewSession(fetcher.New(fetcher.Config{UserAgent: testAgent}), fetcher.SessionOptions{})
	allowed, res := fetcher.RobotsAllowed(context.Background(), s, srv.URL+"/", testAgent)
	assert.True(t, allowed)
	assert.Equal(t, fetcher.StatusOK, res.Status)
	allowed, _ = fetcher.RobotsAllowed(context.Background(), s, srv.URL+"/private/page", testAgent)
	assert.False(t, allowed)
}

func TestRobotsAllowed_MissingFileAllows(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	s := fetcher.NewSession(fetcher.New(fetcher.Config{}), fetcher.SessionOptions{})
	allowed, res := fetcher.RobotsAllowed(context.Background(), s, srv.URL+"/", "AnyBot")
	assert.True(t, allowed)
	assert.Equal(t, fetcher.StatusNotFound, res.Status)
}

func TestRobotsAllowed_ForbiddenDenies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := fetcher.NewSession(fetcher.New(fetcher.Config{}), fetcher.SessionOptions{})
	allowed, res := fetcher.RobotsAllowed(context.Background(), s, srv.URL+"/", "AnyBot")
	assert.False(t, allowed)
	assert.Equal(t, fetcher.StatusBlocked, res.Status)
}
