// Package urlnorm canonicalizes URLs so that one page has exactly one
// identity in the frontier, the link graph and the index.
package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrUnsupportedScheme is returned for anything other than http and https
var ErrUnsupportedScheme = errors.New("unsupported URL scheme")

// Options controls the choices that differ between deployments
type Options struct {
	StripQuery        bool // drop the query string entirely
	KeepTrailingSlash bool // leave "/a/" distinct from "/a"
}

// Normalizer applies Options to raw URLs
type Normalizer struct {
	opts Options
}

// New returns a Normalizer
func New(opts Options) *Normalizer {
	return &Normalizer{opts: opts}
}

// Normalize parses rawURL and returns its canonical string form:
// lowercase scheme and host, default port removed, fragment stripped,
// dot segments resolved, empty path as "/", trailing slash canonicalized,
// query parameters sorted (or dropped).
func (n *Normalizer) Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return n.normalizeURL(u)
}

// Resolve resolves href against base and normalizes the result
func (n *Normalizer) Resolve(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	return n.normalizeURL(base.ResolveReference(ref))
}

func (n *Normalizer) normalizeURL(u *url.URL) (string, error) {
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", u.String())
	}

	host := strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = strings.TrimSuffix(host, ".")

	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	hadSlash := strings.HasSuffix(p, "/")
	p = path.Clean(p)
	if hadSlash && p != "/" && n.opts.KeepTrailingSlash {
		p += "/"
	}
	// path.Clean works on the escaped form so percent-encodings survive.
	u.RawPath = p
	if unescaped, err := url.PathUnescape(p); err == nil {
		u.Path = unescaped
	} else {
		u.Path = p
	}

	u.ForceQuery = false
	if n.opts.StripQuery {
		u.RawQuery = ""
	} else {
		u.RawQuery = u.Query().Encode()
	}

	return u.String(), nil
}

// Host returns the lowercase host (with port) of a normalized URL
func Host(normalized string) string {
	u, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	return u.Host
}
