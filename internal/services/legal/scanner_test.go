package legal_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgwatch/internal/domain"
	"orgwatch/internal/fetcher"
	"orgwatch/internal/logger"
	"orgwatch/internal/page"
	"orgwatch/internal/rules"
	"orgwatch/internal/services/legal"
)

const homepage = `<html><body>
<a href="/terms-of-use">Terms of Use</a>
<a href="/privacy">Privacy Policy</a>
<a href="/photos">Photos</a>
<a href="https://twitter.com/tos">Twitter terms</a>
</body></html>`

const restrictiveTerms = `<html><body><h1>Terms of Use</h1>
<p>You may not use any crawler, scraper or other automated access tool without prior written consent.</p>
</body></html>`

const restrictivePrivacy = `<html><body><p>Data mining of this site is prohibited.</p></body></html>`

const clearPrivacy = `<html><body><p>We respect your privacy and store cookies.</p></body></html>`

type route struct {
	status int
	body   string
}

// site serves fixed routes and records every requested path.
type site struct {
	*httptest.Server
	mu   sync.Mutex
	hits []string
}

func newSite(t *testing.T, routes map[string]route) *site {
	t.Helper()
	s := &site{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits = append(s.hits, r.URL.Path)
		s.mu.Unlock()
		rt, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if rt.status != 0 {
			w.WriteHeader(rt.status)
		}
		_, _ = w.Write([]byte(rt.body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *site) requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hits...)
}

func scan(t *testing.T, s *site, home string) legal.Report {
	t.Helper()
	origin, err := url.Parse(s.URL)
	require.NoError(t, err)
	var doc *page.Document
	if home != "" {
		doc, err = page.Parse(s.URL+"/", []byte(home))
		require.NoError(t, err)
	}
	sess := fetcher.NewSession(fetcher.New(fetcher.Config{}), fetcher.SessionOptions{})
	return legal.New(rules.MustDefault(), logger.NewNop()).Scan(context.Background(), sess, origin, doc)
}

func TestScan_AggregatesFindingsAcrossPages(t *testing.T) {
	s := newSite(t, map[string]route{
		"/terms-of-use": {body: restrictiveTerms},
		"/privacy":      {body: restrictivePrivacy},
	})

	rep := scan(t, s, homepage)

	assert.Equal(t, domain.LegalRestricted, rep.Outcome)
	assert.Equal(t, s.URL+"/terms-of-use", rep.TouURL)
	assert.Equal(t, []string{"automated access", "crawler", "data mining", "may not use", "prior written consent", "scrape"}, rep.Keywords)
	require.Len(t, rep.Pages, 2)
	assert.Equal(t, domain.LinkedFromHomepage, rep.Pages[0].DiscoveryMethod)
	assert.Equal(t, domain.PageTermsOfUse, rep.Pages[0].PageType)
	assert.Equal(t, domain.PagePrivacy, rep.Pages[1].PageType)
	assert.Equal(t, 2, rep.Scanned)

	var sources []string
	for _, f := range rep.Findings {
		sources = append(sources, f.SourcePage.URL)
	}
	assert.Contains(t, sources, s.URL+"/privacy")

	assert.NotContains(t, s.requested(), "/photos")
}

func TestScan_FindingInvariant(t *testing.T) {
	s := newSite(t, map[string]route{"/terms-of-use": {body: restrictiveTerms}})
	rep := scan(t, s, homepage)

	text, err := page.Text([]byte(restrictiveTerms))
	require.NoError(t, err)
	for _, f := range rep.Findings {
		assert.Contains(t, strings.ToLower(text), f.KeywordOrPhrase)
		assert.Contains(t, strings.ToLower(f.ContextSnippet), f.KeywordOrPhrase)
	}
}

func TestScan_ClearPages(t *testing.T) {
	s := newSite(t, map[string]route{"/privacy": {body: clearPrivacy}})

	rep := scan(t, s, homepage)

	assert.Equal(t, domain.LegalClear, rep.Outcome)
	assert.Empty(t, rep.Findings)
	assert.Empty(t, rep.TouURL)
	assert.Equal(t, []string{s.URL + "/terms-of-use"}, rep.Unfetched)
}

func TestScan_NoLegalPages(t *testing.T) {
	s := newSite(t, nil)

	rep := scan(t, s, `<html><body><a href="/about">About</a></body></html>`)

	assert.Equal(t, domain.LegalNoPages, rep.Outcome)
	assert.Empty(t, rep.Pages)
	assert.Len(t, s.requested(), len(rules.MustDefault().Legal.ProbePaths))
	assert.Contains(t, rep.Notes(), "no legal pages")
}

func TestScan_ProbeDiscoversPages(t *testing.T) {
	s := newSite(t, map[string]route{"/tos": {body: restrictiveTerms}})

	rep := scan(t, s, "")

	require.Len(t, rep.Pages, 1)
	assert.Equal(t, domain.CommonPathProbe, rep.Pages[0].DiscoveryMethod)
	assert.Equal(t, domain.PageTermsOfService, rep.Pages[0].PageType)
	assert.Equal(t, domain.LegalRestricted, rep.Outcome)
	assert.Equal(t, 1, strings.Count(strings.Join(s.requested(), ","), "/tos"))
}

func TestScan_BlockedProbeStopsDiscovery(t *testing.T) {
	s := newSite(t, map[string]route{"/terms-of-use": {status: http.StatusForbidden}})

	rep := scan(t, s, "")

	assert.True(t, rep.Blocked())
	assert.Equal(t, []string{"/terms", "/terms-of-use"}, s.requested())
}

func TestScan_UnfetchablePageIsNotEvidence(t *testing.T) {
	s := newSite(t, map[string]route{"/terms": {status: http.StatusInternalServerError}})

	rep := scan(t, s, "")

	assert.Equal(t, domain.LegalUnverified, rep.Outcome)
	assert.Empty(t, rep.Findings)
	assert.Equal(t, []string{s.URL + "/terms"}, rep.Unfetched)
}

func TestScan_Idempotent(t *testing.T) {
	s := newSite(t, map[string]route{
		"/terms-of-use": {body: restrictiveTerms},
		"/privacy":      {body: restrictivePrivacy},
		"/legal":        {body: restrictiveTerms},
	})

	first := scan(t, s, homepage)
	second := scan(t, s, homepage)

	assert.Equal(t, first.Keywords, second.Keywords)
	assert.Equal(t, first.TouURL, second.TouURL)
}

func TestFindRestrictions_Snippet(t *testing.T) {
	sc := legal.New(rules.MustDefault(), logger.NewNop())
	text := strings.Repeat("a", 200) + " Web SCRAPING is forbidden " + strings.Repeat("b", 200)

	found := sc.FindRestrictions(text, domain.LegalPageRef{URL: "https://example.org/terms"})

	require.Len(t, found, 1)
	assert.Equal(t, "scraping", found[0].KeywordOrPhrase)
	assert.Contains(t, found[0].ContextSnippet, "SCRAPING")
	assert.LessOrEqual(t, len(found[0].ContextSnippet), 80+len("scraping")+80)
}

func TestClassifyPage(t *testing.T) {
	tests := []struct {
		url, text string
		want      domain.LegalPageType
	}{
		{"https://x.org/terms-of-use", "", domain.PageTermsOfUse},
		{"https://x.org/tos", "", domain.PageTermsOfService},
		{"https://x.org/legal", "Terms and Conditions", domain.PageTermsOfService},
		{"https://x.org/privacy-policy", "", domain.PagePrivacy},
		{"https://x.org/aup", "Acceptable Use", domain.PageAcceptableUse},
		{"https://x.org/user-agreement", "", domain.PageUserAgreement},
		{"https://x.org/copyright", "", domain.PageCopyright},
		{"https://x.org/policies", "", domain.PageOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, legal.ClassifyPage(tt.url, tt.text), tt.url)
	}
}
