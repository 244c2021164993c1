// Package reporthttp exposes report generation and export endpoints.
package reporthttp

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/groupledger/groupledger/internal/platform/httpx"
	"github.com/groupledger/groupledger/internal/report"
)

// Handler wires report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *report.Service
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *report.Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/consolidations/{id}/reports", h.list)
	r.Post("/consolidations/{id}/reports", h.generate)
	r.Route("/reports/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/finalize", h.finalize)
		r.Post("/export", h.export)
	})
}

type generateRequest struct {
	Type report.Type `json:"type" validate:"required"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rep, err := h.service.Generate(r.Context(), pathID(r), req.Type)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rep)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	reports, err := h.service.List(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	rep, err := h.service.Get(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

type finalizeRequest struct {
	Version int64 `json:"version" validate:"required"`
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	rep, err := h.service.Finalize(r.Context(), pathID(r), req.Version)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

type exportRequest struct {
	Format report.Format `json:"format" validate:"required"`
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	exp, err := h.service.Export(r.Context(), pathID(r), req.Format)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, exp)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}
