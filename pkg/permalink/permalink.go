// Package permalink canonicalizes track permalink URLs so they can serve as dedup keys.
package permalink

import (
	"errors"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrNotHTTP is returned for URLs without an http or https scheme
	ErrNotHTTP = errors.New("permalink must be an http(s) URL")
	// ErrNoHost is returned for URLs without a host
	ErrNoHost = errors.New("permalink has no host")
)

// hostAliases maps mobile and www hosts onto the canonical host.
var hostAliases = map[string]string{
	"www.soundcloud.com": "soundcloud.com",
	"m.soundcloud.com":   "soundcloud.com",
}

// Canonicalize returns the canonical form of rawURL: https scheme, lowercase
// host without www/m prefixes, NFKC path without trailing slash, and no query
// or fragment.
func Canonicalize(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	rawURL = strings.TrimRight(rawURL, ".,!?;")

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrNotHTTP
	}
	if u.Host == "" {
		return "", ErrNoHost
	}

	host := strings.ToLower(u.Hostname())
	if alias, ok := hostAliases[host]; ok {
		host = alias
	}

	path := norm.NFKC.String(u.Path)
	path = strings.TrimRight(path, "/")

	out := url.URL{Scheme: "https", Host: host, Path: path}
	return out.String(), nil
}

// Key returns the canonical form of rawURL, or rawURL unchanged when it
// cannot be parsed. Keys are never empty for non-empty input.
func Key(rawURL string) string {
	if c, err := Canonicalize(rawURL); err == nil {
		return c
	}
	return rawURL
}

// IsTrackURL reports whether rawURL points at a single track, "/<user>/<track>",
// rather than a profile, set or system page.
func IsTrackURL(rawURL string) bool {
	c, err := Canonicalize(rawURL)
	if err != nil {
		return false
	}
	u, _ := url.Parse(c)
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 {
		return false
	}
	switch parts[1] {
	case "sets", "likes", "reposts", "tracks", "albums", "followers", "following":
		return false
	}
	return true
}
