package uhttp

import (
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"time"
)

// CacheRef selects a specific cache and the options passed to its Set.
type CacheRef struct {
	Cache   Cacher
	Options *CacheOptions
}

type cacheTarget struct {
	cache   Cacher
	name    string
	options *CacheOptions
}

type namedCache interface {
	Name() string
}

// Built-in defaults at the bottom of the precedence chain.
const (
	DefaultXSRFCookieName = "XSRF-TOKEN"
	DefaultXSRFHeaderName = "X-XSRF-TOKEN"
)

func defaultHeaders() map[string]string {
	return map[string]string{
		"Accept":     DefaultAccept,
		"User-Agent": UserAgent,
	}
}

func mergeHeaders(dst, src map[string]string) {
	for k, v := range src {
		dst[http.CanonicalHeaderKey(k)] = v
	}
}

func hasBodyMethod(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// mergeConfig builds the effective configuration for one request from the
// request options, the given global snapshot and the built-in defaults.
func mergeConfig(method, rawURL string, body any, request, global *Options, registry *CacheRegistry) (*Config, error) {
	if request == nil {
		request = &Options{}
	}
	if global == nil {
		global = &Options{}
	}

	headers := defaultHeaders()
	if hasBodyMethod(method) && isStructuredBody(body) {
		headers["Content-Type"] = JSONContentType
	}
	mergeHeaders(headers, global.Headers)
	mergeHeaders(headers, request.Headers)

	merged := MergedOptions{
		Timeout:               pickDuration(request.Timeout, global.Timeout),
		Cache:                 pickAny(request.Cache, global.Cache),
		WithCredentials:       pickBool(request.WithCredentials, global.WithCredentials),
		ProgressHandler:       request.ProgressHandler,
		TransformRequest:      request.TransformRequest,
		TransformResponse:     request.TransformResponse,
		TransformRequestData:  request.TransformRequestData,
		TransformResponseData: request.TransformResponseData,
		XSRFCookieName:        pickString(request.XSRFCookieName, global.XSRFCookieName, DefaultXSRFCookieName),
		XSRFHeaderName:        pickString(request.XSRFHeaderName, global.XSRFHeaderName, DefaultXSRFHeaderName),
	}
	if merged.ProgressHandler == nil {
		merged.ProgressHandler = global.ProgressHandler
	}
	if merged.TransformRequest == nil {
		merged.TransformRequest = global.TransformRequest
	}
	if merged.TransformRequest == nil {
		merged.TransformRequest = DefaultTransformRequest
	}
	if merged.TransformResponse == nil {
		merged.TransformResponse = global.TransformResponse
	}
	if merged.TransformResponse == nil {
		merged.TransformResponse = DefaultTransformResponse
	}
	if merged.TransformRequestData == nil {
		merged.TransformRequestData = global.TransformRequestData
	}
	if merged.TransformRequestData == nil {
		merged.TransformRequestData = DefaultTransformRequestData
	}
	if merged.TransformResponseData == nil {
		merged.TransformResponseData = global.TransformResponseData
	}
	if merged.TransformResponseData == nil {
		merged.TransformResponseData = DefaultTransformResponseData
	}

	cfg := &Config{
		Method:  method,
		URL:     rawURL,
		Headers: headers,
		Body:    body,
		Options: merged,
	}

	target, err := resolveCache(merged.Cache, registry)
	if err != nil {
		return nil, err
	}
	cfg.cache = target

	return cfg, nil
}

func pickDuration(values ...*time.Duration) time.Duration {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

func pickBool(values ...*bool) bool {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return false
}

func pickString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func pickAny(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// resolveCache interprets Options.Cache by shape: a bool, a named cache in
// registry, anything with the Cacher methods, a CacheRef, or a decoded map
// {cache|name, options|timeout}.
func resolveCache(v any, registry *CacheRegistry) (*cacheTarget, error) {
	switch c := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if !c {
			return nil, nil
		}
		if registry == nil {
			return nil, errNoRegistry()
		}
		return &cacheTarget{cache: registry.Default(), name: DefaultCacheName}, nil
	case string:
		if c == "" {
			return nil, nil
		}
		if registry == nil {
			return nil, errNoRegistry()
		}
		return &cacheTarget{cache: registry.Get(c), name: c}, nil
	case CacheRef:
		return refTarget(c.Cache, c.Options)
	case *CacheRef:
		if c == nil {
			return nil, nil
		}
		return refTarget(c.Cache, c.Options)
	case Cacher:
		if isNilCacher(c) {
			return nil, configError(fmt.Sprintf("cache option is a nil %T", c), ErrInvalidCache)
		}
		return &cacheTarget{cache: c, name: cacherName(c)}, nil
	case map[string]any:
		return mapTarget(c, registry)
	default:
		return nil, configError(fmt.Sprintf("unsupported cache option of type %T", v), ErrInvalidCache)
	}
}

func refTarget(cache Cacher, opts *CacheOptions) (*cacheTarget, error) {
	if isNilCacher(cache) {
		return nil, configError("cache reference has no cache", ErrInvalidCache)
	}
	return &cacheTarget{cache: cache, name: cacherName(cache), options: opts}, nil
}

func mapTarget(m map[string]any, registry *CacheRegistry) (*cacheTarget, error) {
	var target *cacheTarget
	switch c := m["cache"].(type) {
	case Cacher:
		if isNilCacher(c) {
			return nil, configError(fmt.Sprintf("cache entry is a nil %T", c), ErrInvalidCache)
		}
		target = &cacheTarget{cache: c, name: cacherName(c)}
	case nil:
		name, _ := m["name"].(string)
		if name == "" {
			return nil, configError("cache map needs a cache or a name", ErrInvalidCache)
		}
		if registry == nil {
			return nil, errNoRegistry()
		}
		target = &cacheTarget{cache: registry.Get(name), name: name}
	default:
		return nil, configError(fmt.Sprintf("cache entry of type %T does not implement Get/Set/Remove/Clear", c), ErrInvalidCache)
	}

	raw, ok := m["options"]
	if !ok {
		raw, ok = m["timeout"]
		if ok {
			raw = map[string]any{"timeout": raw}
		}
	}
	if ok {
		opts, err := cacheOptionsFrom(raw)
		if err != nil {
			return nil, err
		}
		target.options = opts
	}
	return target, nil
}

func cacheOptionsFrom(raw any) (*CacheOptions, error) {
	switch o := raw.(type) {
	case nil:
		return nil, nil
	case CacheOptions:
		return &o, nil
	case *CacheOptions:
		return o, nil
	case map[string]any:
		d, err := durationFrom(o["timeout"])
		if err != nil {
			return nil, err
		}
		return &CacheOptions{Timeout: d}, nil
	default:
		return nil, configError(fmt.Sprintf("unsupported cache options of type %T", raw), ErrInvalidCache)
	}
}

// durationFrom accepts a time.Duration, a duration string or a number of milliseconds.
func durationFrom(v any) (time.Duration, error) {
	switch d := v.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return d, nil
	case int:
		return time.Duration(d) * time.Millisecond, nil
	case int64:
		return time.Duration(d) * time.Millisecond, nil
	case float64:
		return time.Duration(d * float64(time.Millisecond)), nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, configError(fmt.Sprintf("invalid cache timeout %q", d), err)
		}
		return parsed, nil
	default:
		return 0, configError(fmt.Sprintf("unsupported cache timeout of type %T", v), ErrInvalidCache)
	}
}

// isNilCacher also catches typed nils such as (*Cache)(nil), which satisfy
// the interface but cannot be called.
func isNilCacher(c Cacher) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func errNoRegistry() *ClientError {
	return configError("named caches need a cache registry", ErrInvalidCache)
}

// canonicalHeaders folds header keys to their canonical form. When several
// keys fold to the same name, a key already in canonical form loses to the
// others, and the others are applied in sorted order. mergeConfig only
// writes canonical keys, so a differently cased key set by TransformRequest
// overrides the merged value.
func canonicalHeaders(h map[string]string) map[string]string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci := keys[i] == http.CanonicalHeaderKey(keys[i])
		cj := keys[j] == http.CanonicalHeaderKey(keys[j])
		if ci != cj {
			return ci
		}
		return keys[i] < keys[j]
	})

	out := make(map[string]string, len(h))
	for _, k := range keys {
		out[http.CanonicalHeaderKey(k)] = h[k]
	}
	return out
}

func cacherName(c Cacher) string {
	if n, ok := c.(namedCache); ok {
		return n.Name()
	}
	return "custom"
}

func configError(message string, cause error) *ClientError {
	return &ClientError{
		Type:      ErrorTypeConfig,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}
