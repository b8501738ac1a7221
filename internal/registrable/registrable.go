// Package registrable collapses hosts to the registrable root domain used for
// same-site checks and duplicate detection.
package registrable

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Root collapses host to its last two labels, or three when the last two form
// a recognized second-level country-code suffix (co.uk). ICANN two-label
// suffixes from the public suffix list count as recognized, as does any
// suffix in extra.
func Root(host string, extra []string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" || net.ParseIP(strings.Trim(host, "[]")) != nil {
		return host
	}
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	lastTwo := strings.Join(labels[len(labels)-2:], ".")
	if isSecondLevelSuffix(host, lastTwo, extra) {
		return strings.Join(labels[len(labels)-3:], ".")
	}
	return lastTwo
}

func isSecondLevelSuffix(host, lastTwo string, extra []string) bool {
	for _, s := range extra {
		if s == lastTwo {
			return true
		}
	}
	suffix, icann := publicsuffix.PublicSuffix(host)
	return icann && suffix == lastTwo
}

// FromURL returns the root domain of a website URL. Scheme-less input such as
// "www.example.org/about" is accepted.
func FromURL(raw string, extra []string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	return Root(u.Hostname(), extra), nil
}

// SameSite reports whether two URLs share a root domain.
func SameSite(a, b string, extra []string) bool {
	ra, errA := FromURL(a, extra)
	rb, errB := FromURL(b, extra)
	return errA == nil && errB == nil && ra == rb
}
