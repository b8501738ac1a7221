// Package legal discovers a site's legal documents and scans them for
// language restricting automated access.
package legal

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"orgwatch/internal/domain"
	"orgwatch/internal/fetcher"
	"orgwatch/internal/logger"
	"orgwatch/internal/page"
	"orgwatch/internal/registrable"
	"orgwatch/internal/rules"
)

// maxFindingsPerTerm bounds repeated matches of one term on one page.
const maxFindingsPerTerm = 5

// Report is the outcome of discovery plus scanning for one site origin.
type Report struct {
	Outcome  domain.LegalOutcome
	Pages    []domain.LegalPageRef
	Findings []domain.RestrictionFinding
	Keywords []string
	TouURL   string
	// Unfetched lists discovered pages that could not be fetched.
	Unfetched []string
	Scanned   int
}

func (r Report) Blocked() bool { return r.Outcome == domain.LegalBlocked }

type Scanner struct {
	rules    *rules.Legal
	suffixes []string
	log      logger.Logger
}

func New(r *rules.Rules, log logger.Logger) *Scanner {
	return &Scanner{rules: &r.Legal, suffixes: r.Duplicates.SecondLevelSuffixes, log: log}
}

type discovered struct {
	ref domain.LegalPageRef
	res *fetcher.Result
}

// Scan discovers legal pages for origin, using the anchors of source (may be
// nil) and probing common paths, then scans every discovered page. A Blocked
// fetch anywhere stops the run with outcome LegalBlocked.
func (s *Scanner) Scan(ctx context.Context, sess *fetcher.Session, origin *url.URL, source *page.Document) Report {
	pages, blocked := s.discover(ctx, sess, origin, source)
	rep := Report{}
	for _, p := range pages {
		rep.Pages = append(rep.Pages, p.ref)
	}
	if blocked {
		rep.Outcome = domain.LegalBlocked
		return rep
	}
	if len(pages) == 0 {
		rep.Outcome = domain.LegalNoPages
		return rep
	}

	keywords := make(map[string]struct{})
	for _, p := range pages {
		res := p.res
		if res == nil {
			r := sess.Fetch(ctx, p.ref.URL)
			res = &r
		}
		if res.Status == fetcher.StatusBlocked {
			rep.Outcome = domain.LegalBlocked
			return rep
		}
		if !res.OK() {
			s.log.Warn("could not fetch legal page",
				logger.String("url", p.ref.URL),
				logger.String("outcome", res.Status.String()),
				logger.String("message", res.Message))
			rep.Unfetched = append(rep.Unfetched, p.ref.URL)
			continue
		}
		text, err := page.Text(res.Body)
		if err != nil {
			s.log.Warn("could not parse legal page", logger.String("url", p.ref.URL), logger.Error(err))
			rep.Unfetched = append(rep.Unfetched, p.ref.URL)
			continue
		}
		rep.Scanned++

		found := s.FindRestrictions(text, p.ref)
		if len(found) > 0 && rep.TouURL == "" {
			rep.TouURL = p.ref.URL
		}
		for _, f := range found {
			keywords[f.KeywordOrPhrase] = struct{}{}
		}
		rep.Findings = append(rep.Findings, found...)
	}

	for k := range keywords {
		rep.Keywords = append(rep.Keywords, k)
	}
	sort.Strings(rep.Keywords)

	switch {
	case len(rep.Findings) > 0:
		rep.Outcome = domain.LegalRestricted
	case rep.Scanned == 0:
		rep.Outcome = domain.LegalUnverified
	default:
		rep.Outcome = domain.LegalClear
	}
	return rep
}

func (s *Scanner) discover(ctx context.Context, sess *fetcher.Session, origin *url.URL, source *page.Document) ([]discovered, bool) {
	var out []discovered
	seen := make(map[string]struct{})

	if source != nil {
		for _, link := range source.Links {
			if registrable.SameSite(link.URL, origin.String(), s.suffixes) {
				if !s.isLegalLink(link) {
					continue
				}
			} else if !s.isOffsiteTerms(link) {
				continue
			}
			key := pageKey(link.URL)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, discovered{ref: domain.LegalPageRef{
				URL:             link.URL,
				PageType:        ClassifyPage(link.URL, link.Text),
				DiscoveryMethod: domain.LinkedFromHomepage,
			}})
		}
	}

	for _, path := range s.rules.ProbePaths {
		candidate := page.Origin(origin) + path
		key := pageKey(candidate)
		if _, ok := seen[key]; ok {
			continue
		}
		res := sess.Fetch(ctx, candidate)
		switch res.Status {
		case fetcher.StatusBlocked:
			s.log.Warn("legal probe blocked", logger.String("url", candidate))
			return out, true
		case fetcher.StatusNotFound:
			continue
		}
		seen[key] = struct{}{}
		out = append(out, discovered{
			ref: domain.LegalPageRef{
				URL:             candidate,
				PageType:        ClassifyPage(candidate, ""),
				DiscoveryMethod: domain.CommonPathProbe,
			},
			res: &res,
		})
	}
	return out, false
}

// isLegalLink matches the legal-topic substrings against the link path and
// text. Terms of three letters or fewer ("tos") must match a whole token so
// that "/photos" does not qualify.
func (s *Scanner) isLegalLink(link page.Link) bool {
	return matchesTopic(link, s.rules.LinkSubstrings)
}

// isOffsiteTerms accepts a link to another site, such as a parent
// organization's hosted terms, when it names a terms or acceptable-use topic
// and does not point at a social or ticketing platform.
func (s *Scanner) isOffsiteTerms(link page.Link) bool {
	root, err := registrable.FromURL(link.URL, s.suffixes)
	if err != nil {
		return false
	}
	for _, h := range s.rules.PlatformHosts {
		if root == h {
			return false
		}
	}
	return matchesTopic(link, s.rules.OffsiteTopics)
}

func matchesTopic(link page.Link, terms []string) bool {
	path := link.URL
	if u, err := url.Parse(link.URL); err == nil {
		path = u.Path
	}
	for _, hay := range []string{strings.ToLower(path), strings.ToLower(link.Text)} {
		for _, term := range terms {
			if len(term) <= 3 {
				if hasToken(hay, term) {
					return true
				}
				continue
			}
			if strings.Contains(hay, term) {
				return true
			}
		}
	}
	return false
}

func hasToken(s, token string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if f == token {
			return true
		}
	}
	return false
}

// ClassifyPage infers the legal document type from its URL and link text.
func ClassifyPage(rawURL, text string) domain.LegalPageType {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	s := strings.ToLower(path + " " + text)
	s = strings.NewReplacer("-", " ", "_", " ", "/", " ").Replace(s)
	switch {
	case strings.Contains(s, "terms of use"), strings.Contains(s, "termsofuse"):
		return domain.PageTermsOfUse
	case strings.Contains(s, "terms of service"), hasToken(s, "tos"),
		strings.Contains(s, "terms"), strings.Contains(s, "conditions"):
		return domain.PageTermsOfService
	case strings.Contains(s, "acceptable"):
		return domain.PageAcceptableUse
	case strings.Contains(s, "agreement"):
		return domain.PageUserAgreement
	case strings.Contains(s, "privacy"):
		return domain.PagePrivacy
	case strings.Contains(s, "copyright"):
		return domain.PageCopyright
	default:
		return domain.PageOther
	}
}

// FindRestrictions scans text case-insensitively for the restriction
// keywords and phrases. Each finding carries the matched term and a snippet of
// up to SnippetRadius bytes either side.
func (s *Scanner) FindRestrictions(text string, source domain.LegalPageRef) []domain.RestrictionFinding {
	lower := lowerASCII(text)
	var out []domain.RestrictionFinding
	terms := append(append([]string{}, s.rules.RestrictionKeywords...), s.rules.RestrictionPhrases...)
	for _, term := range terms {
		from := 0
		for n := 0; n < maxFindingsPerTerm; n++ {
			i := strings.Index(lower[from:], term)
			if i < 0 {
				break
			}
			start := from + i
			out = append(out, domain.RestrictionFinding{
				KeywordOrPhrase: term,
				ContextSnippet:  snippet(text, start, start+len(term), s.rules.SnippetRadius),
				SourcePage:      source,
			})
			from = start + len(term)
		}
	}
	return out
}

// lowerASCII lowercases A-Z only so byte offsets match the original text.
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func snippet(text string, start, end, radius int) string {
	lo := max(0, start-radius)
	hi := min(len(text), end+radius)
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return strings.TrimSpace(text[lo:hi])
}

// pageKey identifies a page for de-duplication: host plus path, no trailing slash.
func pageKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	return host + strings.TrimSuffix(strings.ToLower(u.Path), "/")
}

// Notes renders a human-readable summary of the report.
func (r Report) Notes() string {
	switch r.Outcome {
	case domain.LegalBlocked:
		return "blocked while discovering legal pages; restriction cannot be ruled out"
	case domain.LegalNoPages:
		return "no legal pages found; treated as unrestricted"
	case domain.LegalUnverified:
		return fmt.Sprintf("found %d legal page(s) but could not fetch any; could not verify", len(r.Pages))
	case domain.LegalRestricted:
		return fmt.Sprintf("restriction language on %s: %s", r.TouURL, strings.Join(r.Keywords, ", "))
	default:
		return fmt.Sprintf("scanned %d legal page(s); no restriction language found", r.Scanned)
	}
}
