// Package handler exposes the tenant registry over HTTP.
package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"tg-gateway/backend/internal/platform/httpx"
	"tg-gateway/backend/internal/tenant/domain"
	"tg-gateway/backend/internal/tenant/service"
)

// Handler serves /tenants and /tenants/{tenant_id}/callback/test.
type Handler struct {
	svc *service.Service
	log zerolog.Logger
}

// NewHandler returns a tenant HTTP handler.
func NewHandler(svc *service.Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Register mounts the tenant routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/tenants", h.list).Methods(http.MethodGet)
	r.HandleFunc("/tenants", h.create).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{tenant_id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{tenant_id}", h.update).Methods(http.MethodPatch)
	r.HandleFunc("/tenants/{tenant_id}/callback/test", h.testCallback).Methods(http.MethodPost)
}

// TenantResponse is the wire form of a tenant.
type TenantResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	CallbackURL *string `json:"callback_url"`
	CreatedAt   string  `json:"created_at"`
}

type createRequest struct {
	Name        string  `json:"name"`
	CallbackURL *string `json:"callback_url"`
}

type updateRequest struct {
	CallbackURL *string `json:"callback_url"`
}

func toResponse(t *domain.Tenant) TenantResponse {
	resp := TenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.CallbackURL != "" {
		cb := t.CallbackURL
		resp.CallbackURL = &cb
	}
	return resp
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	out := make([]TenantResponse, 0, len(list))
	for _, t := range list {
		out = append(out, toResponse(t))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), mux.Vars(r)["tenant_id"])
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	cb := ""
	if req.CallbackURL != nil {
		cb = *req.CallbackURL
	}
	t, err := h.svc.Create(r.Context(), req.Name, cb)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(t))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	cb := ""
	if req.CallbackURL != nil {
		cb = *req.CallbackURL
	}
	t, err := h.svc.UpdateCallbackURL(r.Context(), mux.Vars(r)["tenant_id"], cb)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) testCallback(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.TestCallback(r.Context(), mux.Vars(r)["tenant_id"]); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.OK{OK: true, Message: "Test callback sent."})
}
