// Package events locates and validates the page most likely to list an
// organization's upcoming events.
package events

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"orgwatch/internal/domain"
	"orgwatch/internal/fetcher"
	"orgwatch/internal/logger"
	"orgwatch/internal/page"
	"orgwatch/internal/rules"
)

// Link scores for the homepage heuristic.
const (
	scoreEvents   = 10
	scoreCalendar = 8
	scoreOther    = 5
)

// Validation is the evidence gathered from a candidate page's text.
type Validation struct {
	Indicators int
	HasDate    bool
}

// Valid requires two indicator matches, or one together with a date.
func (v Validation) Valid() bool {
	return v.Indicators >= 2 || (v.Indicators >= 1 && v.HasDate)
}

type Candidate struct {
	URL    string
	Method domain.EventsURLMethod
	Score  int
}

// Outcome is the result of events-URL discovery. Page is the parsed events
// page when one was chosen and fetched.
type Outcome struct {
	URL        string
	Method     domain.EventsURLMethod
	Validated  bool
	Validation Validation
	Page       *page.Document
	Blocked    bool
	Tried      int
}

type Finder struct {
	rules *rules.Events
	log   logger.Logger
}

func New(r *rules.Rules, log logger.Logger) *Finder {
	return &Finder{rules: &r.Events, log: log}
}

type attempt struct {
	cand Candidate
	val  Validation
	doc  *page.Document
}

// Discover runs the strategies in priority order: a previously known events
// URL, the triggering-URL derivation, homepage links, then common paths. The
// first validated candidate wins; otherwise the best fetched candidate is
// returned unvalidated.
func (f *Finder) Discover(ctx context.Context, sess *fetcher.Session, desc domain.Descriptor, home *page.Document) Outcome {
	out := Outcome{Method: domain.EventsMethodNone}
	tried := make(map[string]struct{})
	var best *attempt

	try := func(c Candidate) bool {
		key := candidateKey(c.URL)
		if _, ok := tried[key]; ok {
			return false
		}
		tried[key] = struct{}{}
		out.Tried++

		res := sess.Fetch(ctx, c.URL)
		if res.Status == fetcher.StatusBlocked {
			out.Blocked = true
			return true
		}
		if !res.OK() {
			if res.Status != fetcher.StatusNotFound {
				f.log.Warn("could not fetch events candidate",
					logger.String("url", c.URL),
					logger.String("outcome", res.Status.String()))
			}
			return false
		}
		doc, err := page.Parse(c.URL, res.Body)
		if err != nil {
			f.log.Warn("could not parse events candidate", logger.String("url", c.URL), logger.Error(err))
			return false
		}
		a := &attempt{cand: c, val: f.Validate(doc.Text), doc: doc}
		if a.val.Valid() {
			out.URL, out.Method, out.Validated, out.Validation, out.Page = c.URL, c.Method, true, a.val, doc
			return true
		}
		if best == nil || better(a, best) {
			best = a
		}
		return false
	}

	for _, c := range f.Candidates(desc, home) {
		if try(c) {
			return out
		}
		if ctx.Err() != nil {
			break
		}
	}

	if best != nil {
		out.URL, out.Method, out.Validation, out.Page = best.cand.URL, best.cand.Method, best.val, best.doc
	}
	return out
}

// Candidates lists every candidate in strategy order.
func (f *Finder) Candidates(desc domain.Descriptor, home *page.Document) []Candidate {
	var out []Candidate
	if desc.EventsURL != "" {
		out = append(out, Candidate{URL: desc.EventsURL, Method: domain.EventsMethodExisting})
	}
	if derived, ok := DeriveFromTriggering(desc.TriggeringURL, f.rules.TopicKeywords); ok {
		out = append(out, Candidate{URL: derived, Method: domain.EventsMethodTriggering})
	}
	out = append(out, f.HomepageCandidates(home)...)
	if base, err := url.Parse(desc.Website); err == nil && base.Host != "" {
		for _, p := range f.rules.ProbePaths {
			out = append(out, Candidate{URL: page.Origin(base) + p, Method: domain.EventsMethodCommonPath})
		}
	}
	return out
}

// HomepageCandidates scores homepage anchors whose text or href mentions an
// events topic, highest score first.
func (f *Finder) HomepageCandidates(home *page.Document) []Candidate {
	if home == nil {
		return nil
	}
	var out []Candidate
	for _, l := range home.Links {
		hay := strings.ToLower(l.URL + " " + l.Text)
		if !containsAny(hay, f.rules.TopicKeywords) {
			continue
		}
		score := scoreOther
		switch {
		case strings.Contains(hay, "events"):
			score = scoreEvents
		case strings.Contains(hay, "calendar"):
			score = scoreCalendar
		}
		out = append(out, Candidate{URL: l.URL, Method: domain.EventsMethodHomepage, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > f.rules.MaxLinkCandidates {
		out = out[:f.rules.MaxLinkCandidates]
	}
	return out
}

// Validate counts indicator phrase occurrences and looks for a date.
func (f *Finder) Validate(text string) Validation {
	lower := strings.ToLower(text)
	v := Validation{HasDate: page.HasDate(text)}
	for _, phrase := range f.rules.IndicatorPhrases {
		v.Indicators += strings.Count(lower, phrase)
	}
	return v
}

// DeriveFromTriggering cuts the triggering URL's path back to the last segment
// naming an events topic, or failing that to the parent of an "event" or
// "detail" segment. Query and fragment are dropped.
func DeriveFromTriggering(raw string, keywords []string) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })

	cut := -1
	for i, seg := range segments {
		if containsAny(strings.ToLower(seg), keywords) {
			cut = i + 1
		}
	}
	if cut < 0 {
		for i, seg := range segments {
			seg = strings.ToLower(seg)
			if seg == "event" || strings.Contains(seg, "detail") {
				cut = i
				break
			}
		}
	}
	if cut <= 0 {
		return "", false
	}
	return page.Origin(u) + "/" + strings.Join(segments[:cut], "/"), true
}

func better(a, b *attempt) bool {
	if a.val.Indicators != b.val.Indicators {
		return a.val.Indicators > b.val.Indicators
	}
	if a.val.HasDate != b.val.HasDate {
		return a.val.HasDate
	}
	return a.cand.Score > b.cand.Score
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func candidateKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.") + strings.TrimSuffix(u.Path, "/") + "?" + u.RawQuery
}
