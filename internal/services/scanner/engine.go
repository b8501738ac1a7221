package scanner

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"orgwatch/internal/domain"
	"orgwatch/internal/fetcher"
	"orgwatch/internal/logger"
	"orgwatch/internal/page"
	"orgwatch/internal/ports"
	"orgwatch/internal/registrable"
	"orgwatch/internal/rules"
	"orgwatch/internal/services/events"
	"orgwatch/internal/services/legal"
	"orgwatch/internal/services/render"
)

// Step outcomes recorded in a ScanResult.
const (
	outcomeOK       = "ok"
	outcomeBlocked  = "blocked"
	outcomeAllowed  = "allowed"
	outcomeSkipped  = "skipped"
	outcomeFailed   = "failed"
	outcomeNotFound = "not_found"
)

// EngineConfig carries the per-scan fetch policy.
type EngineConfig struct {
	Session       fetcher.SessionOptions
	RespectRobots bool
	UserAgent     string
}

// Engine runs one organization's discovery: robots, homepage, legal pages,
// events URL, legal pages on a second events domain, extraction and the
// render check. Steps run in order and a Blocked outcome ends the run.
type Engine struct {
	fetcher   fetcher.Fetcher
	cfg       EngineConfig
	legal     *legal.Scanner
	events    *events.Finder
	render    *render.Classifier
	extractor ports.EventExtractor
	suffixes  []string
	log       logger.Logger
}

// NewEngine wires the discovery components. extractor may be nil, in which
// case extraction and the render check are skipped.
func NewEngine(f fetcher.Fetcher, r *rules.Rules, extractor ports.EventExtractor, cfg EngineConfig, log logger.Logger) *Engine {
	if cfg.UserAgent == "" {
		cfg.UserAgent = fetcher.DefaultUserAgent
	}
	return &Engine{
		fetcher:   f,
		cfg:       cfg,
		legal:     legal.New(r, log),
		events:    events.New(r, log),
		render:    render.New(r),
		extractor: extractor,
		suffixes:  r.Duplicates.SecondLevelSuffixes,
		log:       log,
	}
}

// Scan runs discovery for desc. A cancelled context returns the partial
// result with Complete unset together with the context error.
func (e *Engine) Scan(ctx context.Context, desc domain.Descriptor) (domain.ScanResult, error) {
	res := domain.ScanResult{FoundKeywords: []string{}, EventsURLMethod: domain.EventsMethodNone}

	home, err := websiteURL(desc.Website)
	if err != nil {
		return res, err
	}
	log := e.log.With(logger.String("website", home.String()))
	sess := fetcher.NewSession(e.fetcher, e.cfg.Session)
	var notes []string

	blocked := func(step, detail string) (domain.ScanResult, error) {
		res.TechBlockFlag, res.TouFlag = true, true
		res.LegalOutcome = domain.LegalBlocked
		res.Record(step, outcomeBlocked, detail)
		res.TouNotes = strings.Join(append(notes, "blocked at "+step+": "+detail), "; ")
		res.Complete = true
		log.Warn("site blocked automated access", logger.String("step", step), logger.String("detail", detail))
		return res, nil
	}

	if e.cfg.RespectRobots {
		allowed, rr := fetcher.RobotsAllowed(ctx, sess, home.String(), e.cfg.UserAgent)
		switch {
		case rr.Status == fetcher.StatusBlocked:
			return blocked(domain.StepRobots, "robots.txt refused: "+describe(rr))
		case !allowed:
			return blocked(domain.StepRobots, "robots.txt disallows the homepage")
		}
		res.Record(domain.StepRobots, outcomeAllowed, "")
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	var homeDoc *page.Document
	hr := sess.Fetch(ctx, home.String())
	switch {
	case hr.Status == fetcher.StatusBlocked:
		return blocked(domain.StepHomepage, describe(hr))
	case hr.OK():
		homeDoc, err = page.Parse(home.String(), hr.Body)
		if err != nil {
			res.Record(domain.StepHomepage, outcomeFailed, err.Error())
			res.Note("could not parse homepage: " + err.Error())
			break
		}
		res.Record(domain.StepHomepage, outcomeOK, "")
	default:
		res.Record(domain.StepHomepage, hr.Status.String(), hr.Message)
		res.Note("could not fetch homepage: " + describe(hr))
		log.Warn("could not fetch homepage", logger.String("outcome", hr.Status.String()), logger.String("message", hr.Message))
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	rep := e.legal.Scan(ctx, sess, home, homeDoc)
	if rep.Blocked() {
		res.LegalPages = rep.Pages
		return blocked(domain.StepLegal, rep.Notes())
	}
	legalNote := rep.Notes()
	if homeDoc == nil && (rep.Outcome == domain.LegalClear || rep.Outcome == domain.LegalNoPages) {
		// Without the homepage only probed paths were checked; a linked
		// terms page may still restrict.
		rep.Outcome = domain.LegalUnverified
		legalNote = fmt.Sprintf("homepage unavailable, legal links not checked; %d probed page(s) scanned; could not verify", rep.Scanned)
	}
	e.mergeLegal(&res, rep)
	notes = append(notes, legalNote)
	res.Record(domain.StepLegal, string(rep.Outcome), legalNote)
	for _, u := range rep.Unfetched {
		res.Note("could not fetch legal page " + u)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	out := e.events.Discover(ctx, sess, desc, homeDoc)
	if out.Blocked {
		return blocked(domain.StepEvents, fmt.Sprintf("after %d candidate(s)", out.Tried))
	}
	res.EventsURL, res.EventsURLValidated, res.EventsURLMethod = out.URL, out.Validated, out.Method
	res.Record(domain.StepEvents, eventsOutcome(out), fmt.Sprintf("%d candidate(s) tried", out.Tried))
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if out.URL != "" && !registrable.SameSite(out.URL, home.String(), e.suffixes) {
		eventsOrigin, err := url.Parse(out.URL)
		if err == nil {
			crossRep := e.legal.Scan(ctx, sess, &url.URL{Scheme: eventsOrigin.Scheme, Host: eventsOrigin.Host}, out.Page)
			if crossRep.Blocked() {
				res.LegalPages = append(res.LegalPages, crossRep.Pages...)
				return blocked(domain.StepLegalCrossDomain, crossRep.Notes())
			}
			e.mergeLegal(&res, crossRep)
			note := eventsOrigin.Host + ": " + crossRep.Notes()
			notes = append(notes, note)
			res.Record(domain.StepLegalCrossDomain, string(crossRep.Outcome), note)
			for _, u := range crossRep.Unfetched {
				res.Note("could not fetch legal page " + u)
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}
	res.TouNotes = strings.Join(notes, "; ")

	switch {
	case out.Page == nil:
		res.Record(domain.StepExtract, outcomeSkipped, "no events page fetched")
	case e.extractor == nil:
		res.Record(domain.StepExtract, outcomeSkipped, "no extractor configured")
	default:
		e.extractAndClassify(ctx, &res, out.Page, log)
	}

	res.Complete = true
	return res, nil
}

func (e *Engine) extractAndClassify(ctx context.Context, res *domain.ScanResult, doc *page.Document, log logger.Logger) {
	links := make([]string, 0, len(doc.Links))
	for _, l := range doc.Links {
		links = append(links, l.URL)
	}
	drafts, err := e.extractor.ExtractStructuredEvents(ctx, doc.Text, links)
	if err != nil {
		res.Record(domain.StepExtract, outcomeFailed, err.Error())
		res.Note("could not extract events: " + err.Error())
		log.Warn("event extraction failed", logger.Error(err))
		return
	}
	res.EventsFound = len(drafts)
	res.Record(domain.StepExtract, outcomeOK, fmt.Sprintf("%d event(s)", len(drafts)))
	if len(drafts) > 0 {
		return
	}

	rr := e.render.Classify(render.FromDocument(doc, 0))
	res.RenderChecked = true
	res.RenderDependencyDetected = rr.Detected
	res.RenderConfidence = rr.Confidence
	res.RenderExplanation = rr.Explanation
	res.Record(domain.StepRender, string(rr.Confidence), fmt.Sprintf("%d signal(s)", rr.Signals))
}

// mergeLegal folds a legal report into the result. The first restricted
// page across all reports stays the canonical TouURL.
func (e *Engine) mergeLegal(res *domain.ScanResult, rep legal.Report) {
	res.LegalPages = append(res.LegalPages, rep.Pages...)
	res.Findings = append(res.Findings, rep.Findings...)
	if res.TouURL == "" {
		res.TouURL = rep.TouURL
	}
	res.TouFlag = len(res.Findings) > 0

	set := make(map[string]struct{}, len(res.FoundKeywords)+len(rep.Keywords))
	for _, k := range res.FoundKeywords {
		set[k] = struct{}{}
	}
	for _, k := range rep.Keywords {
		set[k] = struct{}{}
	}
	res.FoundKeywords = res.FoundKeywords[:0]
	for k := range set {
		res.FoundKeywords = append(res.FoundKeywords, k)
	}
	sort.Strings(res.FoundKeywords)

	if legalRank[rep.Outcome] > legalRank[res.LegalOutcome] {
		res.LegalOutcome = rep.Outcome
	}
}

// legalRank orders outcomes when reports from several domains are merged.
var legalRank = map[domain.LegalOutcome]int{
	domain.LegalNotAttempted: 0,
	domain.LegalNoPages:      1,
	domain.LegalClear:        2,
	domain.LegalUnverified:   3,
	domain.LegalRestricted:   4,
	domain.LegalBlocked:      5,
}

func eventsOutcome(out events.Outcome) string {
	switch {
	case out.URL == "":
		return outcomeNotFound
	case out.Validated:
		return "validated"
	default:
		return "unvalidated"
	}
}

func describe(r fetcher.Result) string {
	if r.Message != "" {
		return fmt.Sprintf("%s (%s)", r.Status, r.Message)
	}
	if r.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d)", r.Status, r.StatusCode)
	}
	return r.Status.String()
}

// websiteURL accepts scheme-less websites and keeps only scheme and host.
func websiteURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid website %q: %w", raw, err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid website %q", raw)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, nil
}
