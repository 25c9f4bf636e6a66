// Package server assembles the HTTP surface: the gorilla/mux router, its middleware chain and CORS.
package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tg-gateway/backend/internal/platform/apperr"
	"tg-gateway/backend/internal/platform/httpx"
	"tg-gateway/backend/internal/server/middleware"
)

// Registrar mounts a handler's routes.
type Registrar interface {
	Register(r *mux.Router)
}

// Options configure the router.
type Options struct {
	// AllowedOrigins are the browser origins admitted by CORS. Empty admits none.
	AllowedOrigins []string
	// Telemetry options are passed to otelhttp. Nil uses the global providers.
	Telemetry []otelhttp.Option
}

// NewRouter mounts every handler on one router behind request id, recovery, access log and
// OTel middleware, then wraps it in CORS.
func NewRouter(logger zerolog.Logger, opts Options, handlers ...Registrar) http.Handler {
	log := logger.With().Str("component", "http").Logger()
	r := mux.NewRouter()
	r.Use(
		middleware.RequestID(),
		middleware.Telemetry(opts.Telemetry...),
		middleware.AccessLog(log),
		middleware.Recover(log),
	)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, log, apperr.New(apperr.KindNotFound, "not_found", "Not found."))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusMethodNotAllowed, map[string]map[string]string{
			"detail": {"error": "method_not_allowed", "message": "Method not allowed."},
		})
	})
	for _, h := range handlers {
		h.Register(r)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodOptions,
			http.MethodHead},
	})
	return c.Handler(r)
}

// NewServer returns an HTTP server for handler on addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
