// Package consolidationhttp exposes the consolidation run endpoints.
package consolidationhttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/groupledger/groupledger/internal/consolidation"
	"github.com/groupledger/groupledger/internal/platform/httpx"
)

// Handler wires consolidation endpoints.
type Handler struct {
	logger       *slog.Logger
	service      *consolidation.Service
	orchestrator *consolidation.Orchestrator
	enqueue      func(consolidationID, expectedVersion int64) error
}

// NewHandler constructs handler. enqueue may be nil; recalculation then runs
// inline.
func NewHandler(logger *slog.Logger, service *consolidation.Service, orchestrator *consolidation.Orchestrator,
	enqueue func(consolidationID, expectedVersion int64) error) *Handler {
	return &Handler{logger: logger, service: service, orchestrator: orchestrator, enqueue: enqueue}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/perimeters/{id}/consolidations", h.listByPerimeter)
	r.Post("/consolidations", h.create)
	r.Get("/consolidations/{id}", h.get)
	r.Post("/consolidations/{id}/recalculate", h.recalculate)
	r.Post("/consolidations/{id}/start", h.start)
	r.Post("/consolidations/{id}/submit", h.submit)
	r.Post("/consolidations/{id}/validate", h.validate)
	r.Post("/consolidations/{id}/publish", h.publish)
	r.Post("/consolidations/{id}/archive", h.archive)
	r.Post("/consolidations/{id}/acknowledge-unreconciled", h.acknowledge)
}

type createRequest struct {
	PerimeterID int64     `json:"perimeter_id" validate:"required"`
	Name        string    `json:"name" validate:"required"`
	PeriodEnd   time.Time `json:"period_end" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Create(r.Context(), consolidation.CreateInput{
		PerimeterID: req.PerimeterID,
		Name:        req.Name,
		PeriodEnd:   req.PeriodEnd,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) listByPerimeter(w http.ResponseWriter, r *http.Request) {
	consolidations, err := h.service.ListByPerimeter(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"consolidations": consolidations})
}

type versionRequest struct {
	Version int64 `json:"version" validate:"required"`
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	id := pathID(r)
	if h.enqueue != nil {
		if err := h.enqueue(id, req.Version); err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"consolidation_id": id, "enqueued": true})
		return
	}
	c, err := h.orchestrator.Recalculate(r.Context(), id, req.Version)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Start)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Submit)
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Validate)
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Publish)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Archive)
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.AcknowledgeUnreconciled)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, id, expectedVersion int64) (consolidation.Consolidation, error)) {
	var req versionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	c, err := op(r.Context(), pathID(r), req.Version)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}
