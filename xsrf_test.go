package uhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSameOrigin(t *testing.T) {
	tests := []struct {
		url    string
		origin string
		want   bool
	}{
		{"/api/get", "http://localhost:8080", true},
		{"api/get", "http://localhost:8080", true},
		{"http://localhost:8080/api", "http://localhost:8080", true},
		{"HTTP://LOCALHOST:8080/api", "http://localhost:8080", true},
		{"https://localhost:8080/api", "http://localhost:8080", false},
		{"http://localhost:9090/api", "http://localhost:8080", false},
		{"http://evil.example.com/api", "http://localhost:8080", false},
		{"/api", "", false},
		{"/api", "not-an-origin", false},
	}

	for _, tt := range tests {
		if got := IsSameOrigin(tt.url, tt.origin); got != tt.want {
			t.Errorf("IsSameOrigin(%q, %q) = %v, want %v", tt.url, tt.origin, got, tt.want)
		}
	}
}

func TestApplyXSRF(t *testing.T) {
	origin, _ := url.Parse("http://localhost:8080")
	header := http.CanonicalHeaderKey(DefaultXSRFHeaderName)
	jar := NewCookieJar()
	jar.Set(DefaultXSRFCookieName, "token-1", 0)

	newCfg := func(rawURL string) *Config {
		cfg, err := mergeConfig(http.MethodPost, rawURL, nil, nil, nil, NewCacheRegistry())
		require.NoError(t, err)
		return cfg
	}

	cfg := newCfg("/api/xsrf")
	assert.True(t, applyXSRF(cfg, origin, jar))
	assert.Equal(t, "token-1", cfg.Headers[header])

	cfg = newCfg("http://other.example.com/api/xsrf")
	assert.False(t, applyXSRF(cfg, origin, jar))
	assert.NotContains(t, cfg.Headers, header)

	cfg = newCfg("/api/xsrf")
	assert.False(t, applyXSRF(cfg, nil, jar), "no origin means nothing is same-origin")

	cfg = newCfg("/api/xsrf")
	cfg.Headers[header] = "caller"
	assert.False(t, applyXSRF(cfg, origin, jar))
	assert.Equal(t, "caller", cfg.Headers[header])

	cfg = newCfg("/api/xsrf")
	assert.False(t, applyXSRF(cfg, origin, NewCookieJar()), "no token means no header")
}

func TestXSRFHeaderOnSameOriginRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Csrf"))
		writeBody(t, w, "ok")
	}))
	defer server.Close()

	jar := NewCookieJar()
	jar.Set("csrf", "secret", 0)
	client := New(
		WithCacheRegistry(NewCacheRegistry()),
		WithCookieJar(jar),
		WithOrigin(server.URL),
		WithGlobalOptions(&Options{XSRFCookieName: "csrf", XSRFHeaderName: "x-csrf"}),
	)

	res := await(t, client.Post(context.Background(), "/api/xsrf", nil, map[string]bool{"ok": true}))
	require.NoError(t, res.Err)
}

func TestXSRFHeaderOmittedCrossOrigin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(DefaultXSRFHeaderName))
		writeBody(t, w, "ok")
	}))
	defer server.Close()

	jar := NewCookieJar()
	jar.Set(DefaultXSRFCookieName, "secret", 0)
	client := New(
		WithCacheRegistry(NewCacheRegistry()),
		WithCookieJar(jar),
		WithOrigin("http://app.example.com"),
	)

	res := await(t, client.Get(context.Background(), server.URL, nil))
	require.NoError(t, res.Err)
}
