package uhttp

import (
	"net/http"
	"net/url"
	"strings"
)

// resolveURL parses raw and resolves it against origin when it is relative.
func resolveURL(raw string, origin *url.URL) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() && origin != nil {
		u = origin.ResolveReference(u)
	}
	return u, nil
}

// sameOrigin compares scheme and host (including any port) for exact
// equality. Without an origin nothing is same-origin.
func sameOrigin(target, origin *url.URL) bool {
	if target == nil || origin == nil {
		return false
	}
	return strings.EqualFold(target.Scheme, origin.Scheme) && strings.EqualFold(target.Host, origin.Host)
}

// IsSameOrigin reports whether rawURL shares scheme and host with origin.
// Relative URLs are same-origin.
func IsSameOrigin(rawURL, origin string) bool {
	o, err := url.Parse(origin)
	if err != nil || o.Scheme == "" || o.Host == "" {
		return false
	}
	u, err := resolveURL(rawURL, o)
	if err != nil {
		return false
	}
	return sameOrigin(u, o)
}

// applyXSRF copies the XSRF cookie into the XSRF header for same-origin
// requests, leaving a header the caller already set alone.
func applyXSRF(cfg *Config, origin *url.URL, jar *CookieJar) bool {
	if jar == nil || cfg.Options.XSRFCookieName == "" || cfg.Options.XSRFHeaderName == "" {
		return false
	}

	u, err := resolveURL(cfg.URL, origin)
	if err != nil || !sameOrigin(u, origin) {
		return false
	}

	token := jar.Get(cfg.Options.XSRFCookieName)
	if token == "" {
		return false
	}

	name := http.CanonicalHeaderKey(cfg.Options.XSRFHeaderName)
	if _, set := cfg.Headers[name]; set {
		return false
	}
	cfg.Headers[name] = token
	return true
}
