package uhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// start runs the synchronous part of the pipeline (merge, XSRF, the
// request transform) on the caller's goroutine and hands the rest to a
// new goroutine.
func (c *Client) start(ctx context.Context, method, rawURL string, opts *Options, data any) *Broker {
	b := newBroker(c.logger)

	requestID := c.newRequestID()
	if requestID != "" {
		ctx = context.WithValue(ctx, requestIDKey, requestID)
	}

	cfg, err := c.prepare(method, rawURL, opts, data)
	if err != nil {
		var clientErr *ClientError
		if errors.As(err, &clientErr) {
			clientErr.RequestID = requestID
			clientErr.Method = method
			clientErr.URL = rawURL
		}
		c.recordError(err, method, getEndpoint(rawURL))
		go b.settle(Result{Err: err}, StateFailed)
		return b
	}

	if c.logRequests() {
		c.logger.Debug("Starting request", "requestID", requestID, "method", cfg.Method, "url", cfg.URL)
	}

	go c.run(ctx, cfg, b, requestID)
	return b
}

// prepare merges options, applies the XSRF guard and runs TransformRequest.
func (c *Client) prepare(method, rawURL string, opts *Options, data any) (cfg *Config, err error) {
	cfg, err = mergeConfig(method, rawURL, data, opts, c.GlobalOptions(), c.caches)
	if err != nil {
		return nil, err
	}

	applyXSRF(cfg, c.origin, c.jar)

	defer func() {
		if r := recover(); r != nil {
			cfg, err = nil, configError("transformRequest panicked", fmt.Errorf("%v", r))
		}
	}()
	cfg.Options.TransformRequest(cfg)
	cfg.Headers = canonicalHeaders(cfg.Headers)

	// The hook may have replaced the cache selection.
	target, err := resolveCache(cfg.Options.Cache, c.caches)
	if err != nil {
		return nil, err
	}
	cfg.cache = target

	if u, perr := resolveURL(cfg.URL, c.origin); perr == nil {
		cfg.URL = u.String()
	} else {
		return nil, configError(fmt.Sprintf("invalid url %q", cfg.URL), perr)
	}

	return cfg, nil
}

// run performs the cache lookup, dispatch, response transforms,
// classification and cache write, then settles b.
func (c *Client) run(ctx context.Context, cfg *Config, b *Broker, requestID string) {
	start := time.Now()
	endpoint := getEndpoint(cfg.URL)

	defer func() {
		if r := recover(); r != nil {
			err := newClientError(ErrorTypeConfig, "transform hook panicked", fmt.Errorf("%v", r), cfg, requestID, start)
			c.recordError(err, cfg.Method, endpoint)
			b.settle(Result{Err: err}, StateFailed)
		}
	}()

	target := cfg.cache
	cacheable := cfg.Method == http.MethodGet && target != nil

	if cacheable {
		if value, found := target.cache.Get(cfg.URL); found {
			if c.logCache() {
				c.logger.Debug("Cache hit", "requestID", requestID, "cache", target.name, "key", cfg.URL)
			}
			c.metrics.RecordCacheHit(target.name, endpoint)
			c.metrics.RecordRequest(cfg.Method, endpoint, http.StatusNotModified, time.Since(start))
			b.setState(StateCacheHit)
			b.settle(Result{Data: value, Status: http.StatusNotModified, Cached: true}, StateCompleted)
			return
		}
		c.metrics.RecordCacheMiss(target.name, endpoint)
		if c.logCache() {
			c.logger.Debug("Cache miss", "requestID", requestID, "cache", target.name, "key", cfg.URL)
		}
	}

	payload, err := cfg.Options.TransformRequestData(cfg.Body)
	if err != nil {
		cerr := newClientError(ErrorTypeConfig, "failed to encode request body", err, cfg, requestID, start)
		c.recordError(cerr, cfg.Method, endpoint)
		b.settle(Result{Err: cerr}, StateFailed)
		return
	}

	req := &Request{
		Method:          cfg.Method,
		URL:             cfg.URL,
		Headers:         cfg.Headers,
		Body:            payload,
		WithCredentials: cfg.Options.WithCredentials,
		Progress:        cfg.Options.ProgressHandler,
		Timeout:         cfg.Options.Timeout,
	}

	b.setState(StateDispatched)
	c.metrics.RecordRequestStart(cfg.Method, endpoint)
	resp, timedOut, err := c.dispatch(ctx, req, cfg.Options.Timeout)
	c.metrics.RecordRequestEnd(cfg.Method, endpoint)

	if timedOut {
		terr := newClientError(ErrorTypeTimeout, fmt.Sprintf("request timed out after %v", cfg.Options.Timeout), context.DeadlineExceeded, cfg, requestID, start)
		if c.logTimeouts() {
			c.logger.Warn("Request timed out", "requestID", requestID, "url", cfg.URL, "timeout", cfg.Options.Timeout)
		}
		c.metrics.RecordTimeout(cfg.Method, endpoint)
		c.recordError(terr, cfg.Method, endpoint)
		c.metrics.RecordRequest(cfg.Method, endpoint, 0, time.Since(start))
		b.settle(Result{Err: terr}, StateTimedOut)
		return
	}
	if err == nil && resp == nil {
		err = errors.New("transport returned no response")
	}
	if err != nil {
		nerr := newClientError(ErrorTypeNetwork, "network request failed", err, cfg, requestID, start)
		if c.logRequests() {
			c.logger.Warn("Request failed", "requestID", requestID, "url", cfg.URL, "error", err.Error())
		}
		c.recordError(nerr, cfg.Method, endpoint)
		c.metrics.RecordRequest(cfg.Method, endpoint, 0, time.Since(start))
		b.settle(Result{Err: nerr}, StateFailed)
		return
	}

	if resp.Method == "" {
		resp.Method = cfg.Method
	}
	if resp.URL == "" {
		resp.URL = cfg.URL
	}
	if cfg.Method == http.MethodHead {
		resp.BodyText = ""
	}

	if transformed := cfg.Options.TransformResponse(resp); transformed != nil {
		resp = transformed
	}
	data := cfg.Options.TransformResponseData(resp)

	c.metrics.RecordRequest(cfg.Method, endpoint, resp.Status, time.Since(start))
	if c.logRequests() {
		c.logger.Debug("Request completed", "requestID", requestID, "url", cfg.URL, "status", resp.Status, "duration", time.Since(start))
	}

	if !IsSuccessStatus(resp.Status) {
		herr := newClientError(ErrorTypeHTTP, httpStatusMessage(resp.Status), nil, cfg, requestID, start)
		herr.StatusCode = resp.Status
		herr.Body = data
		c.recordError(herr, cfg.Method, endpoint)
		b.settle(Result{Data: data, Status: resp.Status, Response: resp, Err: herr}, StateFailed)
		return
	}

	if cacheable {
		target.cache.Set(cfg.URL, data, target.options)
		if c.logCache() {
			c.logger.Debug("Response cached", "requestID", requestID, "cache", target.name, "key", cfg.URL)
		}
	}
	b.settle(Result{Data: data, Status: resp.Status, Response: resp}, StateCompleted)
}

type outcome struct {
	resp *Response
	err  error
}

// dispatch calls the transport and races it against the timeout. On expiry
// the transport's context is cancelled and its eventual result discarded.
func (c *Client) dispatch(ctx context.Context, req *Request, timeout time.Duration) (*Response, bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("transport panicked: %v", r)}
			}
		}()
		resp, err := c.transport.RoundTrip(ctx, req)
		ch <- outcome{resp: resp, err: err}
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case o := <-ch:
		return o.resp, false, o.err
	case <-expired:
		return nil, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func httpStatusMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("%d %s", status, text)
	}
	return fmt.Sprintf("unexpected status %d", status)
}

func (c *Client) recordError(err error, method, endpoint string) {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		c.metrics.RecordError(clientErr.Type, method, endpoint)
	}
}

func (c *Client) newRequestID() string {
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		return c.debug.RequestIDGen()
	}
	return ""
}

func (c *Client) logRequests() bool {
	return c.debug != nil && c.debug.Enabled && c.debug.LogRequests
}

func (c *Client) logCache() bool {
	return c.debug != nil && c.debug.Enabled && c.debug.LogCache
}

func (c *Client) logTimeouts() bool {
	return c.debug != nil && c.debug.Enabled && c.debug.LogTimeouts
}
