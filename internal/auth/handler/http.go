// Package handler exposes the auth state machine over HTTP.
package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"tg-gateway/backend/internal/auth/service"
	"tg-gateway/backend/internal/platform/httpx"
)

// Handler serves /tenants/{tenant_id}/auth/*, /logout and /status.
type Handler struct {
	svc *service.Service
	log zerolog.Logger
}

// NewHandler returns an auth HTTP handler.
func NewHandler(svc *service.Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Register mounts the auth routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/tenants/{tenant_id}/auth/start", h.start).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{tenant_id}/auth/verify", h.verify).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{tenant_id}/auth/resend", h.resend).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{tenant_id}/logout", h.logout).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{tenant_id}/status", h.status).Methods(http.MethodGet)
}

type startRequest struct {
	Phone string `json:"phone"`
}

type verifyRequest struct {
	Phone    string `json:"phone"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

// CodeSentResponse acknowledges a code send or resend.
type CodeSentResponse struct {
	OK             bool   `json:"ok"`
	Message        string `json:"message"`
	Delivery       string `json:"delivery"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Hint           string `json:"hint"`
}

// StatusResponse is the wire form of service.Status.
type StatusResponse struct {
	Authorized      bool    `json:"authorized"`
	Phone           *string `json:"phone"`
	LastError       *string `json:"last_error"`
	CooldownSeconds int     `json:"cooldown_seconds"`
	State           string  `json:"state"`
}

func codeSent(sent service.CodeSent, msg string) CodeSentResponse {
	return CodeSentResponse{
		OK:             true,
		Message:        msg,
		Delivery:       string(sent.Delivery),
		TimeoutSeconds: sent.TimeoutSeconds,
		Hint:           sent.Hint,
	}
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	sent, err := h.svc.Start(r.Context(), mux.Vars(r)["tenant_id"], req.Phone)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, codeSent(sent, "Code sent. Use POST /auth/verify with code."))
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if err := h.svc.Verify(r.Context(), mux.Vars(r)["tenant_id"], req.Phone, req.Code, req.Password); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.OK{OK: true, Message: "Signed in. Session stored."})
}

func (h *Handler) resend(w http.ResponseWriter, r *http.Request) {
	sent, err := h.svc.Resend(r.Context(), mux.Vars(r)["tenant_id"])
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, codeSent(sent, "Code resent."))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), mux.Vars(r)["tenant_id"]); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.OK{OK: true, Message: "Logged out. Session cleared."})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context(), mux.Vars(r)["tenant_id"])
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	resp := StatusResponse{
		Authorized:      st.Authorized,
		CooldownSeconds: st.CooldownSeconds,
		State:           string(st.State),
	}
	if st.Phone != "" {
		resp.Phone = &st.Phone
	}
	if st.LastError != "" {
		resp.LastError = &st.LastError
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
