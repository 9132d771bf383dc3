// Package uhttp provides an asynchronous HTTP client built around a small
// request pipeline:
//
//   - Three-level option merging (request, global, built-in defaults)
//   - Named in-memory response caches with per-write TTLs
//   - XSRF cookie-to-header protection for same-origin requests
//   - Request, response and body transform hooks
//   - A settle-once Broker delivering each outcome to success, error and
//     finally handlers
//   - JSONP requests through a revocable callback registry
//   - Prometheus metrics and opt-in structured debug logging
//
// Every request call returns immediately with a *Broker; the work happens on
// a new goroutine. Handlers may be attached before or after the outcome is
// known:
//
//	client := uhttp.New(uhttp.WithOrigin("http://localhost:8080"))
//	client.Get(ctx, "/api/users", &uhttp.Options{Cache: true}).
//	    Then(func(r uhttp.Result) { fmt.Println(r.Status, r.Data) }).
//	    Catch(func(r uhttp.Result) { log.Println(r.Err) })
//
// Successful GET responses are cached under the final request URL when a
// cache is selected; a later hit completes with status 304 and Cached set.
// A Timeout of zero disables the timer. Options pointer fields distinguish
// an explicit zero from "unset", so a request can override a global timeout
// with no timeout at all.
package uhttp
