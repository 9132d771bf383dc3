package uhttp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Client runs requests through the uhttp pipeline: option merging, XSRF
// protection, the transform hooks, the response cache and a Transport. It is
// safe for concurrent use.
type Client struct {
	transport  Transport
	httpClient *http.Client

	globalMu sync.RWMutex
	global   *Options

	caches      *CacheRegistry
	jar         *CookieJar
	origin      *url.URL
	originError error

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger
	jsonp   *jsonpRegistry

	validationError error
}

// New constructs a Client using the provided functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		global: normalizeGlobal(nil),
		caches: DefaultCacheRegistry(),
		jar:    DefaultCookieJar(),
		debug:  DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if client.transport == nil {
		client.transport = NewHTTPTransport(client.httpClient, client.jar)
	}
	if client.logger == nil {
		client.logger = NopLogger()
	}
	client.jsonp = newJSONPRegistry(client.metrics)
	if client.caches != nil {
		client.caches.observe(client.metrics)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

var (
	defaultClient     *Client
	defaultClientOnce sync.Once
)

// Default returns the process wide client used by the package level functions.
func Default() *Client {
	defaultClientOnce.Do(func() {
		defaultClient = New()
	})
	return defaultClient
}

func normalizeGlobal(o *Options) *Options {
	if o == nil {
		o = &Options{}
	}
	if o.Headers == nil {
		o.Headers = map[string]string{}
	}
	return o
}

// SetGlobalOptions replaces the global options wholesale. Fields not set in
// o are unset afterwards; nothing is merged with the previous value.
func (c *Client) SetGlobalOptions(o *Options) {
	c.globalMu.Lock()
	c.global = normalizeGlobal(o)
	c.globalMu.Unlock()
}

// GlobalOptions returns the live global options. Mutations are visible to
// requests started afterwards.
func (c *Client) GlobalOptions() *Options {
	c.globalMu.RLock()
	defer c.globalMu.RUnlock()
	return c.global
}

// Caches returns the registry resolving Options.Cache.
func (c *Client) Caches() *CacheRegistry {
	return c.caches
}

// Cookies returns the jar used by the XSRF guard.
func (c *Client) Cookies() *CookieJar {
	return c.jar
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// ValidateConfigurationStrict panics if configuration is invalid.
func (c *Client) ValidateConfigurationStrict() {
	if err := c.ValidateConfiguration(); err != nil {
		panic(fmt.Sprintf("invalid client configuration: %v", err))
	}
}

// Get issues a GET request. Successful responses are cached when opts or
// the global options select a cache.
func (c *Client) Get(ctx context.Context, url string, opts *Options) *Broker {
	return c.Request(ctx, http.MethodGet, url, opts, nil)
}

// Head issues a HEAD request. The response body is never read.
func (c *Client) Head(ctx context.Context, url string, opts *Options) *Broker {
	return c.Request(ctx, http.MethodHead, url, opts, nil)
}

// Put issues a PUT request with data as body.
func (c *Client) Put(ctx context.Context, url string, opts *Options, data any) *Broker {
	return c.Request(ctx, http.MethodPut, url, opts, data)
}

// Patch issues a PATCH request with data as body.
func (c *Client) Patch(ctx context.Context, url string, opts *Options, data any) *Broker {
	return c.Request(ctx, http.MethodPatch, url, opts, data)
}

// Post issues a POST request with data as body.
func (c *Client) Post(ctx context.Context, url string, opts *Options, data any) *Broker {
	return c.Request(ctx, http.MethodPost, url, opts, data)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, opts *Options) *Broker {
	return c.Request(ctx, http.MethodDelete, url, opts, nil)
}

// Request issues a request with an arbitrary method. It never blocks on I/O.
func (c *Client) Request(ctx context.Context, method, url string, opts *Options, data any) *Broker {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.start(ctx, strings.ToUpper(method), url, opts, data)
}

// SetGlobalOptions replaces the default client's global options.
func SetGlobalOptions(o *Options) { Default().SetGlobalOptions(o) }

// GetGlobalOptions returns the default client's live global options.
func GetGlobalOptions() *Options { return Default().GlobalOptions() }

// Get issues a GET through the default client.
func Get(ctx context.Context, url string, opts *Options) *Broker {
	return Default().Get(ctx, url, opts)
}

// Head issues a HEAD through the default client.
func Head(ctx context.Context, url string, opts *Options) *Broker {
	return Default().Head(ctx, url, opts)
}

// Put issues a PUT through the default client.
func Put(ctx context.Context, url string, opts *Options, data any) *Broker {
	return Default().Put(ctx, url, opts, data)
}

// Patch issues a PATCH through the default client.
func Patch(ctx context.Context, url string, opts *Options, data any) *Broker {
	return Default().Patch(ctx, url, opts, data)
}

// Post issues a POST through the default client.
func Post(ctx context.Context, url string, opts *Options, data any) *Broker {
	return Default().Post(ctx, url, opts, data)
}

// Delete issues a DELETE through the default client.
func Delete(ctx context.Context, url string, opts *Options) *Broker {
	return Default().Delete(ctx, url, opts)
}

// JSONP issues a JSONP request through the default client.
func JSONP(ctx context.Context, url string) *Broker {
	return Default().JSONP(ctx, url)
}

func getEndpoint(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}

	var builder strings.Builder
	builder.WriteString(u.Host)
	if u.Path != "" && u.Path != "/" {
		builder.WriteString(u.Path)
	} else {
		builder.WriteByte('/')
	}
	return builder.String()
}
