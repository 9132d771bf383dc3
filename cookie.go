package uhttp

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// CookieJar is a process scoped, simulated cookie store. It is not keyed by
// domain: every cookie is visible to every same-origin request.
type CookieJar struct {
	mu      sync.RWMutex
	cookies []*jarCookie
	now     func() time.Time
}

type jarCookie struct {
	name    string
	value   string
	expires time.Time
}

var (
	defaultJar     *CookieJar
	defaultJarOnce sync.Once
)

// NewCookieJar returns an empty jar.
func NewCookieJar() *CookieJar {
	return &CookieJar{now: time.Now}
}

// DefaultCookieJar returns the jar shared by the package level functions
// and by clients that were not given a jar explicitly.
func DefaultCookieJar() *CookieJar {
	defaultJarOnce.Do(func() {
		defaultJar = NewCookieJar()
	})
	return defaultJar
}

// Get returns the value of the named cookie, or "" when it is absent or
// expired. An empty name returns the whole jar rendered as a Cookie header.
func (j *CookieJar) Get(name string) string {
	if name == "" {
		return j.String()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	now := j.now()
	for _, c := range j.cookies {
		if c.name == name && c.live(now) {
			return c.value
		}
	}
	return ""
}

// Set stores a cookie. days > 0 sets an expiry that many days from now;
// otherwise the cookie lives for the process lifetime.
func (j *CookieJar) Set(name, value string, days int) {
	var expires time.Time
	if days > 0 {
		expires = j.now().Add(time.Duration(days) * 24 * time.Hour)
	}
	j.put(&jarCookie{name: name, value: value, expires: expires})
}

// Delete removes the named cookie.
func (j *CookieJar) Delete(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	kept := j.cookies[:0]
	for _, c := range j.cookies {
		if c.name != name {
			kept = append(kept, c)
		}
	}
	j.cookies = kept
}

// SetFromString replaces the jar contents with the cookies of a Cookie
// header style string such as "a=1; b=2". Attribute pairs (expires, path,
// domain, max-age) are ignored.
func (j *CookieJar) SetFromString(s string) {
	req := http.Request{Header: http.Header{"Cookie": []string{s}}}

	var cookies []*jarCookie
	for _, c := range req.Cookies() {
		switch strings.ToLower(c.Name) {
		case "expires", "path", "domain", "max-age", "secure", "httponly", "samesite":
			continue
		}
		cookies = append(cookies, &jarCookie{name: c.Name, value: c.Value})
	}

	j.mu.Lock()
	j.cookies = cookies
	j.mu.Unlock()
}

// String renders the live cookies as a Cookie header value.
func (j *CookieJar) String() string {
	j.mu.RLock()
	defer j.mu.RUnlock()

	now := j.now()
	parts := make([]string, 0, len(j.cookies))
	for _, c := range j.cookies {
		if c.live(now) {
			parts = append(parts, c.name+"="+c.value)
		}
	}
	return strings.Join(parts, "; ")
}

// Cookies returns the live cookies for attaching to a credentialed request.
func (j *CookieJar) Cookies() []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()

	now := j.now()
	out := make([]*http.Cookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		if c.live(now) {
			out = append(out, &http.Cookie{Name: c.name, Value: c.value})
		}
	}
	return out
}

// store records a cookie received in a Set-Cookie header.
func (j *CookieJar) store(c *http.Cookie) {
	if c.MaxAge < 0 {
		j.Delete(c.Name)
		return
	}

	var expires time.Time
	switch {
	case c.MaxAge > 0:
		expires = j.now().Add(time.Duration(c.MaxAge) * time.Second)
	case !c.Expires.IsZero():
		expires = c.Expires
	}
	j.put(&jarCookie{name: c.Name, value: c.Value, expires: expires})
}

func (j *CookieJar) put(nc *jarCookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i, c := range j.cookies {
		if c.name == nc.name {
			j.cookies[i] = nc
			return
		}
	}
	j.cookies = append(j.cookies, nc)
}

func (c *jarCookie) live(now time.Time) bool {
	return c.expires.IsZero() || now.Before(c.expires)
}

// GetCookie reads a cookie from the default jar.
func GetCookie(name string) string {
	return DefaultCookieJar().Get(name)
}

// SetCookie stores a cookie in the default jar.
func SetCookie(name, value string, days int) {
	DefaultCookieJar().Set(name, value, days)
}

// DeleteCookie removes a cookie from the default jar.
func DeleteCookie(name string) {
	DefaultCookieJar().Delete(name)
}

// SetCookieFromString replaces the default jar contents.
func SetCookieFromString(s string) {
	DefaultCookieJar().SetFromString(s)
}
