package events_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgwatch/internal/domain"
	"orgwatch/internal/fetcher"
	"orgwatch/internal/logger"
	"orgwatch/internal/page"
	"orgwatch/internal/rules"
	"orgwatch/internal/services/events"
)

const validEvents = `<html><body><h2>Upcoming Events</h2>
<p>Spring Gala, March 14, 2025. Register Now!</p><p>RSVP by Friday</p></body></html>`

const weakEvents = `<html><body><h2>Upcoming Events</h2><p>Check back soon.</p></body></html>`

const noEvents = `<html><body><p>About our society.</p></body></html>`

type site struct {
	*httptest.Server
	mu   sync.Mutex
	hits []string
}

func newSite(t *testing.T, routes map[string]string, blocked ...string) *site {
	t.Helper()
	s := &site{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits = append(s.hits, r.URL.Path)
		s.mu.Unlock()
		for _, b := range blocked {
			if r.URL.Path == b {
				w.WriteHeader(http.StatusForbidden)
				return
			}
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func newFinder() *events.Finder {
	return events.New(rules.MustDefault(), logger.NewNop())
}

func newSession() *fetcher.Session {
	return fetcher.NewSession(fetcher.New(fetcher.Config{}), fetcher.SessionOptions{})
}

func TestValidate(t *testing.T) {
	f := newFinder()

	v := f.Validate("Upcoming Events... Register Now... RSVP by Friday. June 5, 2025")
	assert.Equal(t, 3, v.Indicators)
	assert.True(t, v.HasDate)
	assert.True(t, v.Valid())

	v = f.Validate("Welcome to our website. We love gardening.")
	assert.Equal(t, 0, v.Indicators)
	assert.False(t, v.HasDate)
	assert.False(t, v.Valid())

	assert.True(t, events.Validation{Indicators: 1, HasDate: true}.Valid())
	assert.False(t, events.Validation{Indicators: 1}.Valid())
	assert.False(t, events.Validation{HasDate: true}.Valid())
}

func TestDeriveFromTriggering(t *testing.T) {
	kw := rules.MustDefault().Events.TopicKeywords
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://ex.org/about/events/2025/spring-gala?ref=x", "https://ex.org/about/events", true},
		{"https://ex.org/calendar/month/events-list/item", "https://ex.org/calendar/month/events-list", true},
		{"https://ex.org/news/event/123", "https://ex.org/news", true},
		{"https://ex.org/programs", "https://ex.org/programs", true},
		{"https://ex.org/club/event-detail/55", "https://ex.org/club", true},
		{"https://ex.org/event/55", "", false},
		{"https://ex.org/about/team", "", false},
		{"", "", false},
		{"not a url", "", false},
	}
	for _, tt := range tests {
		got, ok := events.DeriveFromTriggering(tt.in, kw)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestHomepageCandidates_Scored(t *testing.T) {
	home, err := page.Parse("https://ex.org/", []byte(`<html><body>
<a href="/programs">Programs</a>
<a href="/cal">Calendar</a>
<a href="/whats-happening">Events</a>
<a href="/about">About</a>
</body></html>`))
	require.NoError(t, err)

	got := newFinder().HomepageCandidates(home)

	require.Len(t, got, 3)
	assert.Equal(t, "https://ex.org/whats-happening", got[0].URL)
	assert.Equal(t, 10, got[0].Score)
	assert.Equal(t, "https://ex.org/cal", got[1].URL)
	assert.Equal(t, 8, got[1].Score)
	assert.Equal(t, 5, got[2].Score)
}

func TestDiscover_TriggeringWins(t *testing.T) {
	s := newSite(t, map[string]string{"/club/events": validEvents, "/events": validEvents})
	desc := domain.Descriptor{Website: s.URL, TriggeringURL: s.URL + "/club/events/spring-gala"}

	out := newFinder().Discover(context.Background(), newSession(), desc, nil)

	assert.True(t, out.Validated)
	assert.Equal(t, domain.EventsMethodTriggering, out.Method)
	assert.Equal(t, s.URL+"/club/events", out.URL)
	assert.Equal(t, 1, out.Tried)
	require.NotNil(t, out.Page)
}

func TestDiscover_HomepageBeforeProbe(t *testing.T) {
	s := newSite(t, map[string]string{"/whats-on-now": validEvents, "/events": validEvents})
	home, err := page.Parse(s.URL+"/", []byte(`<a href="/whats-on-now">Our Events</a>`))
	require.NoError(t, err)

	out := newFinder().Discover(context.Background(), newSession(), domain.Descriptor{Website: s.URL}, home)

	assert.True(t, out.Validated)
	assert.Equal(t, domain.EventsMethodHomepage, out.Method)
	assert.Equal(t, s.URL+"/whats-on-now", out.URL)
}

func TestDiscover_ExistingURLFirst(t *testing.T) {
	s := newSite(t, map[string]string{"/known": validEvents, "/events": validEvents})
	desc := domain.Descriptor{Website: s.URL, EventsURL: s.URL + "/known"}

	out := newFinder().Discover(context.Background(), newSession(), desc, nil)

	assert.Equal(t, domain.EventsMethodExisting, out.Method)
	assert.Equal(t, []string{"/known"}, s.hits)
}

func TestDiscover_FallbackToBestUnvalidated(t *testing.T) {
	s := newSite(t, map[string]string{"/calendar": noEvents, "/programs": weakEvents})

	out := newFinder().Discover(context.Background(), newSession(), domain.Descriptor{Website: s.URL}, nil)

	assert.False(t, out.Validated)
	assert.Equal(t, domain.EventsMethodCommonPath, out.Method)
	assert.Equal(t, s.URL+"/programs", out.URL)
	assert.Equal(t, 1, out.Validation.Indicators)
	assert.Equal(t, len(rules.MustDefault().Events.ProbePaths), out.Tried)
}

func TestDiscover_NothingFound(t *testing.T) {
	s := newSite(t, nil)

	out := newFinder().Discover(context.Background(), newSession(), domain.Descriptor{Website: s.URL}, nil)

	assert.Empty(t, out.URL)
	assert.Equal(t, domain.EventsMethodNone, out.Method)
	assert.False(t, out.Blocked)
}

func TestDiscover_BlockedStops(t *testing.T) {
	s := newSite(t, map[string]string{"/calendar": validEvents}, "/events")

	out := newFinder().Discover(context.Background(), newSession(), domain.Descriptor{Website: s.URL}, nil)

	assert.True(t, out.Blocked)
	assert.Equal(t, []string{"/events"}, s.hits)
}
