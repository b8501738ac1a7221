// Package page reduces fetched HTML to plain text and resolved anchors.
package page

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// nonTextSelectors are removed before text extraction.
const nonTextSelectors = "script, style, noscript, template, iframe, svg"

// residualTag matches markup that survives as text after entity decoding.
var residualTag = regexp.MustCompile(`<[a-zA-Z/!][^<>]*>`)

// Link is an anchor resolved against the page URL.
type Link struct {
	URL  string
	Text string
}

// Document is a parsed page.
type Document struct {
	URL   *url.URL
	HTML  string
	Text  string
	Links []Link
}

// Parse builds a Document from a response body fetched from pageURL.
func Parse(pageURL string, body []byte) (*Document, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	out := &Document{URL: base, HTML: string(body)}
	out.Links = extractLinks(doc, base)

	doc.Find(nonTextSelectors).Remove()
	out.Text = cleanText(nodeText(doc.Selection))
	return out, nil
}

// Text extracts plain text from raw HTML.
func Text(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(nonTextSelectors).Remove()
	return cleanText(nodeText(doc.Selection)), nil
}

// nodeText joins text nodes with a separator so adjacent block elements do not
// run together.
func nodeText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}

func cleanText(s string) string {
	s = residualTag.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func extractLinks(doc *goquery.Document, base *url.URL) []Link {
	var links []Link
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		resolved, ok := Resolve(base, href)
		if !ok {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		links = append(links, Link{URL: resolved, Text: cleanText(nodeText(a))})
	})
	return links
}

// Resolve turns href into an absolute http(s) URL without fragment. In-page
// anchors, javascript:, mailto: and tel: targets are rejected.
func Resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	switch {
	case href == "", strings.HasPrefix(href, "#"),
		strings.HasPrefix(lower, "javascript:"),
		strings.HasPrefix(lower, "mailto:"),
		strings.HasPrefix(lower, "tel:"):
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), true
}

// Origin returns scheme://host of u.
func Origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
