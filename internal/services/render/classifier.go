// Package render infers from static HTML whether a page's content is injected
// by client-side script.
package render

import (
	"fmt"
	"strings"

	"orgwatch/internal/domain"
	"orgwatch/internal/page"
	"orgwatch/internal/rules"
)

// Input is a fetched page plus the extractor's event count for it.
type Input struct {
	HTML        string
	Text        string
	Links       []page.Link
	EventsFound int
}

// FromDocument builds an Input from a parsed page.
func FromDocument(doc *page.Document, eventsFound int) Input {
	return Input{HTML: doc.HTML, Text: doc.Text, Links: doc.Links, EventsFound: eventsFound}
}

type Result struct {
	Detected    bool
	Confidence  domain.RenderConfidence
	Signals     int
	Explanation []string
}

type Classifier struct {
	rules        *rules.Render
	linkPatterns []string
}

func New(r *rules.Rules) *Classifier {
	return &Classifier{rules: &r.Render, linkPatterns: r.Events.EventLinkPatterns}
}

// Classify sums the weighted signals and maps the total onto a confidence.
// Only MEDIUM and HIGH are reported as render-dependent.
func (c *Classifier) Classify(in Input) Result {
	var res Result
	add := func(weight int, why string) {
		res.Signals += weight
		res.Explanation = append(res.Explanation, fmt.Sprintf("+%d %s", weight, why))
	}

	switch dates := page.CountDates(in.Text); {
	case dates == 0:
		add(2, "no date-like text on the page")
	case dates <= 2:
		add(1, fmt.Sprintf("only %d date-like string(s) on the page", dates))
	}

	if len(c.EventLinks(in.Links)) == 0 {
		add(2, fmt.Sprintf("none of %d link(s) look event-specific", len(in.Links)))
	}

	if len(in.HTML) > 0 {
		ratio := float64(len(in.Text)) / float64(len(in.HTML))
		if ratio < c.rules.TextRatioFloor {
			add(1, fmt.Sprintf("text is %.1f%% of the HTML", ratio*100))
		}
	}

	for _, re := range c.rules.Fingerprints() {
		if m := re.FindString(in.HTML); m != "" {
			add(1, fmt.Sprintf("front-end framework fingerprint %q", truncate(m, 60)))
			break
		}
	}

	if len(in.HTML) > c.rules.LargePageBytes && in.EventsFound == 0 {
		add(1, fmt.Sprintf("page is %d bytes yet no events were extracted", len(in.HTML)))
	}

	switch {
	case res.Signals >= c.rules.HighThreshold:
		res.Confidence, res.Detected = domain.ConfidenceHigh, true
	case res.Signals >= c.rules.MediumThreshold:
		res.Confidence, res.Detected = domain.ConfidenceMedium, true
	default:
		res.Confidence = domain.ConfidenceLow
	}
	return res
}

// EventLinks returns the links whose URL or text matches an event pattern.
func (c *Classifier) EventLinks(links []page.Link) []page.Link {
	var out []page.Link
	for _, l := range links {
		hay := strings.ToLower(l.URL + " " + l.Text)
		for _, p := range c.linkPatterns {
			if strings.Contains(hay, p) {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
