// Package handler serves the dev-only callback loopback receiver.
package handler

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"tg-gateway/backend/internal/devcallback"
	"tg-gateway/backend/internal/platform/apperr"
	"tg-gateway/backend/internal/platform/httpx"
)

const maxBodyBytes = 1 << 20

// Handler serves /dev/callback-receiver. Mount only when DEV_CALLBACK_RECEIVER is on.
type Handler struct {
	store devcallback.Store
	log   zerolog.Logger
}

// NewHandler returns a dev receiver handler over store.
func NewHandler(store devcallback.Store, log zerolog.Logger) *Handler {
	return &Handler{store: store, log: log.With().Str("component", "dev_callback_receiver").Logger()}
}

// Register mounts the receiver routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/dev/callback-receiver", h.receive).Methods(http.MethodPost)
	r.HandleFunc("/dev/callback-receiver", h.list).Methods(http.MethodGet)
}

type okResponse struct {
	OK bool `json:"ok"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httpx.WriteError(w, h.log, apperr.Wrap(err, apperr.KindValidation, "invalid_body", "Could not read request body."))
		return
	}
	h.store.Add(body)
	h.log.Debug().Int("bytes", len(body)).Str("signature", r.Header.Get("X-Signature")).Msg("callback received")
	httpx.WriteJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) list(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.store.List())
}
