package fetcher

import (
	"context"
	"net/url"

	"github.com/temoto/robotstxt"
)

const robotsTxtPath = "/robots.txt"

// RobotsAllowed reports whether userAgent may fetch pageURL according to the
// host's robots.txt, along with the robots.txt fetch result. A robots.txt
// answered with StatusBlocked denies; a missing, failing or unparsable one
// allows.
func RobotsAllowed(ctx context.Context, s *Session, pageURL, userAgent string) (bool, Result) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return true, Result{URL: pageURL}
	}
	robotsURL := u.Scheme + "://" + u.Host + robotsTxtPath

	res := s.Fetch(ctx, robotsURL)
	if res.Status == StatusBlocked {
		return false, res
	}
	if !res.OK() {
		return true, res
	}
	data, err := robotstxt.FromBytes(res.Body)
	if err != nil {
		return true, res
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, userAgent), res
}
