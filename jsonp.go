package uhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JSONPPlaceholder in a JSONP URL is replaced by the generated callback name.
const JSONPPlaceholder = "JSON_CALLBACK"

// jsonpRegistry holds the callbacks of in-flight JSONP requests. Payloads
// are parsed as name(json) and may only invoke the callback their request
// registered; nothing in them is evaluated.
type jsonpRegistry struct {
	mu        sync.Mutex
	callbacks map[string]func(json.RawMessage)
	metrics   *MetricsCollector
}

func newJSONPRegistry(metrics *MetricsCollector) *jsonpRegistry {
	return &jsonpRegistry{
		callbacks: make(map[string]func(json.RawMessage)),
		metrics:   metrics,
	}
}

// register adds fn under a fresh name. The returned revoke func removes it
// and is safe to call any number of times.
func (r *jsonpRegistry) register(fn func(json.RawMessage)) (string, func()) {
	name := "uhttp_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	r.mu.Lock()
	r.callbacks[name] = fn
	pending := len(r.callbacks)
	r.mu.Unlock()
	r.metrics.RecordJSONPPending(pending)

	var once sync.Once
	return name, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.callbacks, name)
			pending := len(r.callbacks)
			r.mu.Unlock()
			r.metrics.RecordJSONPPending(pending)
		})
	}
}

// invoke parses payload and calls the callback registered as expected.
func (r *jsonpRegistry) invoke(expected, payload string) error {
	name, arg, err := parseJSONP(payload)
	if err != nil {
		return err
	}
	if name != expected {
		return fmt.Errorf("%w: got %q, want %q", ErrJSONPCallback, name, expected)
	}

	r.mu.Lock()
	fn, ok := r.callbacks[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q is not registered", ErrJSONPCallback, name)
	}

	fn(arg)
	return nil
}

func (r *jsonpRegistry) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.callbacks)
}

// parseJSONP splits `name(<json>)` with an optional trailing semicolon.
func parseJSONP(payload string) (string, json.RawMessage, error) {
	p := strings.TrimSpace(payload)
	p = strings.TrimSpace(strings.TrimSuffix(p, ";"))

	open := strings.IndexByte(p, '(')
	if open <= 0 || !strings.HasSuffix(p, ")") {
		return "", nil, fmt.Errorf("%w: malformed payload", ErrJSONPCallback)
	}

	name := strings.TrimSpace(p[:open])
	if !isIdentifier(name) {
		return "", nil, fmt.Errorf("%w: invalid callback name %q", ErrJSONPCallback, name)
	}

	arg := strings.TrimSpace(p[open+1 : len(p)-1])
	if arg == "" {
		arg = "null"
	}
	if !json.Valid([]byte(arg)) {
		return "", nil, fmt.Errorf("%w: argument is not JSON", ErrJSONPCallback)
	}
	return name, json.RawMessage(arg), nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// jsonpURL substitutes the callback name for the placeholder, or sets the
// callback query parameter when there is no placeholder.
func jsonpURL(rawURL, name string) (string, error) {
	if strings.Contains(rawURL, JSONPPlaceholder) {
		return strings.ReplaceAll(rawURL, JSONPPlaceholder, name), nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("callback", name)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// JSONP issues a GET whose payload must call back the registered callback
// with a JSON argument. The callback registration is revoked exactly once
// whatever the outcome.
func (c *Client) JSONP(ctx context.Context, rawURL string) *Broker {
	if ctx == nil {
		ctx = context.Background()
	}
	b := newBroker(c.logger)
	requestID := c.newRequestID()

	cfg, err := mergeConfig(http.MethodGet, rawURL, nil, nil, c.GlobalOptions(), c.caches)
	if err == nil {
		if u, perr := resolveURL(cfg.URL, c.origin); perr == nil {
			cfg.URL = u.String()
		} else {
			err = configError(fmt.Sprintf("invalid url %q", rawURL), perr)
		}
	}
	if err != nil {
		go b.settle(Result{Err: err}, StateFailed)
		return b
	}

	var status int
	var resp *Response
	var revoke func()
	name, revoke := c.jsonp.register(func(arg json.RawMessage) {
		revoke()
		var v any
		// arg was validated by parseJSONP.
		_ = json.Unmarshal(arg, &v)
		b.settle(Result{Data: v, Status: status, Response: resp}, StateCompleted)
	})

	target, err := jsonpURL(cfg.URL, name)
	if err != nil {
		revoke()
		go b.settle(Result{Err: configError(fmt.Sprintf("invalid url %q", rawURL), err)}, StateFailed)
		return b
	}
	cfg.URL = target

	go func() {
		defer revoke()
		start := time.Now()
		endpoint := getEndpoint(cfg.URL)

		b.setState(StateDispatched)
		c.metrics.RecordRequestStart(cfg.Method, endpoint)
		r, timedOut, err := c.dispatch(ctx, &Request{
			Method:  cfg.Method,
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Options.Timeout,
		}, cfg.Options.Timeout)
		c.metrics.RecordRequestEnd(cfg.Method, endpoint)

		if timedOut || err != nil || r == nil || !IsSuccessStatus(r.Status) {
			revoke()
		}

		switch {
		case timedOut:
			terr := newClientError(ErrorTypeTimeout, fmt.Sprintf("request timed out after %v", cfg.Options.Timeout), context.DeadlineExceeded, cfg, requestID, start)
			c.metrics.RecordTimeout(cfg.Method, endpoint)
			c.recordError(terr, cfg.Method, endpoint)
			b.settle(Result{Err: terr}, StateTimedOut)
			return
		case err != nil || r == nil:
			if err == nil {
				err = fmt.Errorf("transport returned no response")
			}
			nerr := newClientError(ErrorTypeNetwork, "network request failed", err, cfg, requestID, start)
			c.recordError(nerr, cfg.Method, endpoint)
			b.settle(Result{Err: nerr}, StateFailed)
			return
		}

		c.metrics.RecordRequest(cfg.Method, endpoint, r.Status, time.Since(start))
		if !IsSuccessStatus(r.Status) {
			herr := newClientError(ErrorTypeHTTP, httpStatusMessage(r.Status), nil, cfg, requestID, start)
			herr.StatusCode = r.Status
			herr.Body = r.BodyText
			c.recordError(herr, cfg.Method, endpoint)
			b.settle(Result{Data: r.BodyText, Status: r.Status, Response: r, Err: herr}, StateFailed)
			return
		}

		status, resp = r.Status, r
		if ierr := c.jsonp.invoke(name, r.BodyText); ierr != nil {
			revoke()
			jerr := newClientError(ErrorTypeJSONP, "invalid jsonp payload", ierr, cfg, requestID, start)
			c.recordError(jerr, cfg.Method, endpoint)
			b.settle(Result{Data: r.BodyText, Status: r.Status, Response: r, Err: jerr}, StateFailed)
		}
	}()

	return b
}

// PendingJSONP returns the number of JSONP callbacks still registered.
func (c *Client) PendingJSONP() int {
	return c.jsonp.pending()
}
