package uhttp

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"
)

// JSONContentType is the Content-Type sent with structured request bodies.
const JSONContentType = "application/json;charset=utf-8"

// DefaultAccept is the Accept header sent with every request unless overridden.
const DefaultAccept = "application/json, text/plain, */*"

// ProgressFunc reports transfer progress. total is -1 when unknown.
type ProgressFunc func(loaded, total int64)

// Request is the descriptor handed to a Transport.
type Request struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            []byte
	WithCredentials bool
	Progress        ProgressFunc
	Timeout         time.Duration
}

// Response is the descriptor produced by a Transport and consumed by the
// response transform chain.
type Response struct {
	Method   string
	URL      string
	Status   int
	Headers  http.Header
	BodyText string
}

// GetHeader returns the first value of the named header. Lookup is case-insensitive.
func (r *Response) GetHeader(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	if v := r.Headers.Get(name); v != "" {
		return v
	}
	// Headers built by hand may not be canonicalised.
	for k, vs := range r.Headers {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

// AllHeaders renders the headers one per line as "Key: value".
func (r *Response) AllHeaders() string {
	if r == nil || len(r.Headers) == 0 {
		return ""
	}
	keys := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(strings.Join(r.Headers[k], ", "))
		b.WriteByte('\n')
	}
	return b.String()
}

// Transport performs the actual I/O for a request.
type Transport interface {
	RoundTrip(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Hook types used by Options.
type (
	// RequestTransform inspects or mutates the request configuration before dispatch.
	RequestTransform func(cfg *Config)
	// ResponseTransform inspects or replaces the response descriptor. Returning nil keeps the input.
	ResponseTransform func(resp *Response) *Response
	// RequestDataTransform serializes a request body.
	RequestDataTransform func(body any) ([]byte, error)
	// ResponseDataTransform turns a response descriptor into the value delivered to handlers.
	ResponseDataTransform func(resp *Response) any
)

// Config is the effective per-request configuration. TransformRequest may
// change URL, Headers and Body before any I/O happens.
type Config struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
	Options MergedOptions

	cache *cacheTarget
}

// MergedOptions is the result of merging request, global and built-in options.
type MergedOptions struct {
	Timeout               time.Duration
	Cache                 any
	WithCredentials       bool
	ProgressHandler       ProgressFunc
	TransformRequest      RequestTransform
	TransformResponse     ResponseTransform
	TransformRequestData  RequestDataTransform
	TransformResponseData ResponseDataTransform
	XSRFCookieName        string
	XSRFHeaderName        string
}

type contextKey string

const requestIDKey contextKey = "uhttp_request_id"

// RequestIDFromContext returns the request ID attached by the pipeline, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
