// Package handler exposes outbound messaging over HTTP.
package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"tg-gateway/backend/internal/dispatch"
	"tg-gateway/backend/internal/message/service"
	"tg-gateway/backend/internal/platform/httpx"
)

// Handler serves /tenants/{tenant_id}/messages/*.
type Handler struct {
	svc *service.Service
	log zerolog.Logger
}

// NewHandler returns a message HTTP handler.
func NewHandler(svc *service.Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Register mounts the message routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/tenants/{tenant_id}/messages/send", h.send).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{tenant_id}/messages/read-receipt", h.readReceipt).Methods(http.MethodPost)
}

type sendRequest struct {
	Peer string `json:"peer"`
	Text string `json:"text"`
	// AllowImportContact defaults to true when omitted.
	AllowImportContact *bool `json:"allow_import_contact"`
}

type readReceiptRequest struct {
	Peer  string `json:"peer"`
	MaxID int    `json:"max_id"`
}

// SendResponse acknowledges a sent message.
type SendResponse struct {
	OK           bool   `json:"ok"`
	PeerResolved string `json:"peer_resolved"`
	MessageID    int    `json:"message_id"`
	Date         string `json:"date"`
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	allowImport := req.AllowImportContact == nil || *req.AllowImportContact
	sent, err := h.svc.Send(r.Context(), mux.Vars(r)["tenant_id"], req.Peer, req.Text, allowImport)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, SendResponse{
		OK:           true,
		PeerResolved: sent.PeerResolved,
		MessageID:    sent.MessageID,
		Date:         sent.Date.UTC().Format(dispatch.DateLayout),
	})
}

func (h *Handler) readReceipt(w http.ResponseWriter, r *http.Request) {
	var req readReceiptRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if err := h.svc.MarkRead(r.Context(), mux.Vars(r)["tenant_id"], req.Peer, req.MaxID); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.OK{OK: true, Message: "Read receipt sent."})
}
