// Package handler serves liveness and readiness over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"tg-gateway/backend/internal/platform/httpx"
)

const pingTimeout = 2 * time.Second

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler serves GET /health and GET /.
type Handler struct {
	db  Pinger
	log zerolog.Logger
}

// NewHandler returns a health handler. A nil db skips the ping.
func NewHandler(db Pinger, log zerolog.Logger) *Handler {
	return &Handler{db: db, log: log}
}

// Register mounts the health routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/", h.root).Methods(http.MethodGet)
}

type healthResponse struct {
	OK bool `json:"ok"`
}

type rootResponse struct {
	Message string `json:"message"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.log.Warn().Err(err).Msg("health: database ping failed")
			httpx.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{OK: false})
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, healthResponse{OK: true})
}

func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, rootResponse{Message: "TG gateway API"})
}
