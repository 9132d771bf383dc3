package uhttp

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Options are the per-request and global request options. Pointer fields
// are presence markers: nil means "unset" and falls through to the next
// level, while an explicit zero value wins. Function fields and strings
// are unset when nil / empty.
type Options struct {
	Headers         map[string]string `mapstructure:"headers"`
	Timeout         *time.Duration    `mapstructure:"timeout"`
	Cache           any               `mapstructure:"cache"`
	WithCredentials *bool             `mapstructure:"withCredentials"`
	XSRFCookieName  string            `mapstructure:"xsrfCookieName"`
	XSRFHeaderName  string            `mapstructure:"xsrfHeaderName"`

	ProgressHandler       ProgressFunc          `mapstructure:"-"`
	TransformRequest      RequestTransform      `mapstructure:"-"`
	TransformResponse     ResponseTransform     `mapstructure:"-"`
	TransformRequestData  RequestDataTransform  `mapstructure:"-"`
	TransformResponseData ResponseDataTransform `mapstructure:"-"`
}

// Duration returns a pointer to d, for use in Options.Timeout.
func Duration(d time.Duration) *time.Duration {
	return &d
}

// Bool returns a pointer to b, for use in Options.WithCredentials.
func Bool(b bool) *bool {
	return &b
}

// ValidateOptions reports every problem found in o. A nil o is valid.
func ValidateOptions(o *Options) error {
	if o == nil {
		return nil
	}

	var err error
	if o.Timeout != nil && *o.Timeout < 0 {
		err = multierr.Append(err, fmt.Errorf("timeout must be non-negative, got %v", *o.Timeout))
	}
	for k := range o.Headers {
		if strings.TrimSpace(k) == "" {
			err = multierr.Append(err, fmt.Errorf("header names cannot be empty"))
		}
	}
	if o.XSRFCookieName != "" && strings.ContainsAny(o.XSRFCookieName, "=; ") {
		err = multierr.Append(err, fmt.Errorf("xsrfCookieName %q is not a valid cookie name", o.XSRFCookieName))
	}
	if o.XSRFHeaderName != "" && strings.ContainsAny(o.XSRFHeaderName, ": ") {
		err = multierr.Append(err, fmt.Errorf("xsrfHeaderName %q is not a valid header name", o.XSRFHeaderName))
	}
	if o.Cache != nil {
		if _, cerr := resolveCache(o.Cache, NewCacheRegistry()); cerr != nil {
			err = multierr.Append(err, cerr)
		}
	}

	if err != nil {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "options validation failed",
			Cause:   err,
		}
	}
	return nil
}

// Option configures a Client.
type Option func(*Client)

// WithTransport sets the transport used to dispatch requests.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithHTTPClient dispatches through an HTTPTransport built on client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithGlobalOptions sets the initial global options.
func WithGlobalOptions(o *Options) Option {
	return func(c *Client) {
		c.global = normalizeGlobal(o)
	}
}

// WithCacheRegistry sets the registry resolving Options.Cache.
func WithCacheRegistry(r *CacheRegistry) Option {
	return func(c *Client) {
		c.caches = r
	}
}

// WithCookieJar sets the jar read by the XSRF guard and credentialed requests.
func WithCookieJar(j *CookieJar) Option {
	return func(c *Client) {
		c.jar = j
	}
}

// WithOrigin sets the page origin used for same-origin decisions and for
// resolving relative request URLs, e.g. "http://localhost:8080".
func WithOrigin(origin string) Option {
	return func(c *Client) {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			c.originError = fmt.Errorf("invalid origin %q", origin)
			return
		}
		c.origin = &url.URL{Scheme: strings.ToLower(u.Scheme), Host: strings.ToLower(u.Host)}
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a console logger
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var err error

	if c.originError != nil {
		err = multierr.Append(err, c.originError)
	}
	if c.transport == nil {
		err = multierr.Append(err, fmt.Errorf("transport cannot be nil"))
	}
	if c.caches == nil {
		err = multierr.Append(err, fmt.Errorf("cache registry cannot be nil"))
	}
	if c.jar == nil {
		err = multierr.Append(err, fmt.Errorf("cookie jar cannot be nil"))
	}
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen == nil {
		err = multierr.Append(err, fmt.Errorf("debug RequestIDGen must be set when debug is enabled"))
	}
	if verr := ValidateOptions(c.global); verr != nil {
		err = multierr.Append(err, verr)
	}

	if err != nil {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   err,
		}
	}
	return nil
}
