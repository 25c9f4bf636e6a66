// Package middleware holds the gorilla/mux middleware chain shared by every route: request id,
// panic recovery, access logging and OTel HTTP instrumentation.
package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tg-gateway/backend/internal/platform/apperr"
	"tg-gateway/backend/internal/platform/httpx"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

// RequestID takes the caller's X-Request-ID or assigns a new uuid, echoes it on the response and
// stores it in the request context.
func RequestID() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
		})
	}
}

// Recover turns a handler panic into a logged 500.
func Recover(logger zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					id, _ := GetRequestID(r.Context())
					logger.Error().
						Str("request_id", id).
						Str("path", r.URL.Path).
						Interface("panic", v).
						Msg("handler panic")
					httpx.WriteError(w, zerolog.Nop(), apperr.Internal(fmt.Errorf("panic: %v", v)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// AccessLog writes one line per request: method, path template, status, duration and request id.
// 5xx responses are logged at error level, 4xx at warn.
func AccessLog(logger zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			ev := logger.Info()
			switch {
			case rw.statusCode >= http.StatusInternalServerError:
				ev = logger.Error()
			case rw.statusCode >= http.StatusBadRequest:
				ev = logger.Warn()
			}
			id, _ := GetRequestID(r.Context())
			ev.Str("method", r.Method).
				Str("path", routeTemplate(r)).
				Int("status", rw.statusCode).
				Dur("duration", time.Since(start)).
				Str("request_id", id).
				Msg("http request")
		})
	}
}

// Telemetry wraps each route in an otelhttp handler named after its path template.
func Telemetry(opts ...otelhttp.Option) mux.MiddlewareFunc {
	opts = append([]otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + routeTemplate(r)
		}),
	}, opts...)
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "http.server", opts...)
	}
}

// routeTemplate returns the matched route's path template, or the raw path outside the router.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// responseWriter captures the response status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
