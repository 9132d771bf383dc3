package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	xsrfCookieName = "XSRF-TOKEN"
	xsrfHeaderName = "X-XSRF-TOKEN"
)

var callbackPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

type api struct {
	cfg    Config
	logger *zap.Logger
}

type payload struct {
	Content string `json:"content"`
}

// newHandler builds the routed API wrapped in recovery and access logging.
func newHandler(cfg Config, logger *zap.Logger, registry *prometheus.Registry) http.Handler {
	a := &api{cfg: cfg, logger: logger}
	requests := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "uhttp_testserver_requests_total",
			Help: "Requests served by the test server",
		},
		[]string{"route", "method", "code"},
	)

	r := mux.NewRouter()
	r.HandleFunc("/api/get", a.get("GET")).Methods(http.MethodGet)
	r.HandleFunc("/api/get/again", a.get("GET AGAIN")).Methods(http.MethodGet)
	r.HandleFunc("/api/get404", a.notFound).Methods(http.MethodGet)
	r.HandleFunc("/api/post", a.jsonContent("Testing POST", "POST")).Methods(http.MethodPost)
	r.HandleFunc("/api/post/form", a.formContent("Testing POST form", "POST FORM")).Methods(http.MethodPost)
	r.HandleFunc("/api/post/urlform", a.formContent("Testing POST form", "POST FORM")).Methods(http.MethodPost)
	r.HandleFunc("/api/put", a.jsonContent("Testing PUT", "PUT")).Methods(http.MethodPut)
	r.HandleFunc("/api/patch", a.jsonContent("Testing PATCH", "PATCH")).Methods(http.MethodPatch)
	r.HandleFunc("/api/delete", a.get("DELETE")).Methods(http.MethodDelete)
	r.HandleFunc("/api/head", a.head).Methods(http.MethodHead)
	r.HandleFunc("/api/jsonp", a.jsonp).Methods(http.MethodGet)
	r.HandleFunc("/api/timeout", a.timeout).Methods(http.MethodGet)
	r.HandleFunc("/api/xsrf", a.xsrf).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/api/xsrf/cookie", a.xsrfCookie).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// Route templates are only known once mux has matched the request.
	r.Use(mux.MiddlewareFunc(countRequests(requests)))

	return alice.New(
		recovery(logger),
		accessLog(logger),
	).Then(r)
}

func (a *api) get(data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.writeJSON(w, http.StatusOK, map[string]string{"data": data})
	}
}

func (a *api) notFound(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusNotFound, "Not Found")
}

func (a *api) jsonContent(want, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p payload
		if !hasMediaType(r, "application/json") || json.NewDecoder(r.Body).Decode(&p) != nil || p.Content != want {
			a.writeJSON(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]string{"data": data})
	}
}

func (a *api) formContent(want, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("content") != want {
			a.writeJSON(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]string{"data": data})
	}
}

func (a *api) head(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Custom-Header", "HEAD")
	w.WriteHeader(http.StatusOK)
}

func (a *api) jsonp(w http.ResponseWriter, r *http.Request) {
	callback := r.URL.Query().Get("callback")
	if !callbackPattern.MatchString(callback) {
		a.writeJSON(w, http.StatusBadRequest, "invalid callback")
		return
	}

	body, err := json.Marshal(map[string]string{"data": "JSONP"})
	if err != nil {
		a.writeJSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	fmt.Fprintf(w, "%s(%s);", callback, body)
}

func (a *api) timeout(w http.ResponseWriter, r *http.Request) {
	select {
	case <-time.After(a.cfg.TimeoutDelay):
		a.writeJSON(w, http.StatusOK, map[string]string{"data": "TIMEOUT"})
	case <-r.Context().Done():
	}
}

func (a *api) xsrf(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(xsrfHeaderName) != a.cfg.XSRFToken {
		a.writeJSON(w, http.StatusForbidden, "Forbidden")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"data": "XSRF"})
}

func (a *api) xsrfCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: xsrfCookieName, Value: a.cfg.XSRFToken, Path: "/"})
	a.writeJSON(w, http.StatusOK, map[string]string{"data": "COOKIE"})
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to write response", zap.Error(err))
	}
}

func hasMediaType(r *http.Request, want string) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == want
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func recovery(logger *zap.Logger) alice.Constructor {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("handler panicked", zap.Any("panic", p), zap.String("path", r.URL.Path))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func accessLog(logger *zap.Logger) alice.Constructor {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func countRequests(counter *prometheus.CounterVec) alice.Constructor {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := "unknown"
			if m := mux.CurrentRoute(r); m != nil {
				if tpl, err := m.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			counter.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		})
	}
}
