// Package perimeterhttp exposes the perimeter, entity, and participation
// endpoints.
package perimeterhttp

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/perimeter"
	"github.com/groupledger/groupledger/internal/platform/httpx"
	"github.com/groupledger/groupledger/internal/shared"
)

// Handler wires perimeter endpoints.
type Handler struct {
	logger  *slog.Logger
	service *perimeter.Service
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *perimeter.Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/perimeters", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/{id}/transition", h.transition)
		r.Get("/{id}/graph", h.validateGraph)
		r.Post("/{id}/entities", h.addEntity)
		r.Post("/{id}/participations", h.addParticipation)
		r.Get("/{id}/participations", h.listParticipations)
	})
	r.Route("/entities", func(r chi.Router) {
		r.Put("/{id}/ownership", h.updateOwnership)
		r.Post("/{id}/deactivate", h.deactivate)
		r.Delete("/{id}", h.deleteEntity)
	})
	r.Post("/participations/{id}/ownership-changes", h.recordOwnershipChange)
}

type createPerimeterRequest struct {
	Code                  string    `json:"code" validate:"required"`
	Name                  string    `json:"name" validate:"required"`
	FiscalYear            int       `json:"fiscal_year" validate:"required"`
	StartDate             time.Time `json:"start_date" validate:"required"`
	EndDate               time.Time `json:"end_date" validate:"required"`
	ConsolidationCurrency string    `json:"consolidation_currency" validate:"required,len=3"`
	AccountingStandard    string    `json:"accounting_standard" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPerimeterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.CreatePerimeter(r.Context(), perimeter.CreatePerimeterInput{
		Code:                  req.Code,
		Name:                  req.Name,
		FiscalYear:            req.FiscalYear,
		StartDate:             req.StartDate,
		EndDate:               req.EndDate,
		ConsolidationCurrency: req.ConsolidationCurrency,
		AccountingStandard:    req.AccountingStandard,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := listParams(r)
	perimeters, meta, err := h.service.ListPerimeters(r.Context(), page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"perimeters": perimeters, "pagination": meta})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPerimeter(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

type transitionRequest struct {
	Status  perimeter.Status `json:"status" validate:"required"`
	Version int64            `json:"version" validate:"required"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	p, err := h.service.Transition(r.Context(), pathID(r), req.Version, req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) validateGraph(w http.ResponseWriter, r *http.Request) {
	graph, err := h.service.BuildGraph(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, perimeterError(err))
		return
	}
	var entities []perimeter.Entity
	graph.Walk(func(e perimeter.Entity) { entities = append(entities, e) })
	httpx.JSON(w, http.StatusOK, map[string]any{
		"roots":    graph.Roots(),
		"entities": entities,
	})
}

type entityRequest struct {
	Code                 string                `json:"code" validate:"required"`
	Name                 string                `json:"name"`
	Currency             string                `json:"currency" validate:"required,len=3"`
	Country              string                `json:"country"`
	ParentEntityID       *int64                `json:"parent_entity_id"`
	IsParent             bool                  `json:"is_parent"`
	DirectOwnershipPct   decimal.Decimal       `json:"direct_ownership_pct"`
	IndirectOwnershipPct decimal.Decimal       `json:"indirect_ownership_pct"`
	TotalOwnershipPct    decimal.Decimal       `json:"total_ownership_pct"`
	IntegrationPct       decimal.Decimal       `json:"integration_pct"`
	ControlType          perimeter.ControlType `json:"control_type" validate:"required"`
	Method               perimeter.Method      `json:"consolidation_method"`
	AcquisitionDate      *time.Time            `json:"acquisition_date"`
}

func (h *Handler) addEntity(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entity, err := h.service.AddEntity(r.Context(), perimeter.CreateEntityInput{
		PerimeterID:          pathID(r),
		Code:                 req.Code,
		Name:                 req.Name,
		Currency:             req.Currency,
		Country:              req.Country,
		ParentEntityID:       req.ParentEntityID,
		IsParent:             req.IsParent,
		DirectOwnershipPct:   req.DirectOwnershipPct,
		IndirectOwnershipPct: req.IndirectOwnershipPct,
		TotalOwnershipPct:    req.TotalOwnershipPct,
		IntegrationPct:       req.IntegrationPct,
		ControlType:          req.ControlType,
		Method:               req.Method,
		AcquisitionDate:      req.AcquisitionDate,
	})
	if err != nil {
		httpx.RespondError(w, perimeterError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, entity)
}

type ownershipUpdateRequest struct {
	Version              int64                 `json:"version" validate:"required"`
	DirectOwnershipPct   decimal.Decimal       `json:"direct_ownership_pct"`
	IndirectOwnershipPct decimal.Decimal       `json:"indirect_ownership_pct"`
	TotalOwnershipPct    decimal.Decimal       `json:"total_ownership_pct"`
	IntegrationPct       decimal.Decimal       `json:"integration_pct"`
	ControlType          perimeter.ControlType `json:"control_type" validate:"required"`
	Method               perimeter.Method      `json:"consolidation_method"`
	AcquisitionDate      *time.Time            `json:"acquisition_date"`
	DisposalDate         *time.Time            `json:"disposal_date"`
}

func (h *Handler) updateOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownershipUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	current, err := h.service.GetEntity(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, perimeterError(err))
		return
	}
	current.Version = req.Version
	current.DirectOwnershipPct = req.DirectOwnershipPct
	current.IndirectOwnershipPct = req.IndirectOwnershipPct
	current.TotalOwnershipPct = req.TotalOwnershipPct
	current.IntegrationPct = req.IntegrationPct
	current.ControlType = req.ControlType
	current.Method = req.Method
	current.AcquisitionDate = req.AcquisitionDate
	current.DisposalDate = req.DisposalDate

	entity, err := h.service.UpdateEntityOwnership(r.Context(), current)
	if err != nil {
		httpx.RespondError(w, perimeterError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, entity)
}

type versionRequest struct {
	Version int64 `json:"version" validate:"required"`
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	entity, err := h.service.DeactivateEntity(r.Context(), pathID(r), req.Version)
	if err != nil {
		httpx.RespondError(w, perimeterError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, entity)
}

func (h *Handler) deleteEntity(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.service.DeleteEntity(r.Context(), pathID(r), req.Version); err != nil {
		httpx.RespondError(w, perimeterError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type participationRequest struct {
	ParentEntityID         int64           `json:"parent_entity_id" validate:"required"`
	SubsidiaryEntityID     int64           `json:"subsidiary_entity_id" validate:"required"`
	AcquisitionDate        time.Time       `json:"acquisition_date" validate:"required"`
	AcquisitionCost        decimal.Decimal `json:"acquisition_cost"`
	FairValueAtAcquisition decimal.Decimal `json:"fair_value_at_acquisition"`
	OwnershipPct           decimal.Decimal `json:"ownership_pct"`
}

func (h *Handler) addParticipation(w http.ResponseWriter, r *http.Request) {
	var req participationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.AddParticipation(r.Context(), perimeter.CreateParticipationInput{
		PerimeterID:            pathID(r),
		ParentEntityID:         req.ParentEntityID,
		SubsidiaryEntityID:     req.SubsidiaryEntityID,
		AcquisitionDate:        req.AcquisitionDate,
		AcquisitionCost:        req.AcquisitionCost,
		FairValueAtAcquisition: req.FairValueAtAcquisition,
		OwnershipPct:           req.OwnershipPct,
	})
	if err != nil {
		httpx.RespondError(w, perimeterError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) listParticipations(w http.ResponseWriter, r *http.Request) {
	participations, err := h.service.ListParticipations(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"participations": participations})
}

type ownershipChangeRequest struct {
	Version       int64           `json:"version" validate:"required"`
	EffectiveDate time.Time       `json:"effective_date" validate:"required"`
	NewPct        decimal.Decimal `json:"new_pct"`
	Reason        string          `json:"reason" validate:"required"`
}

func (h *Handler) recordOwnershipChange(w http.ResponseWriter, r *http.Request) {
	var req ownershipChangeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.RecordOwnershipChange(r.Context(), pathID(r), req.Version,
		req.EffectiveDate, req.NewPct, req.Reason)
	if err != nil {
		httpx.RespondError(w, perimeterError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

// perimeterError maps package sentinels onto the shared taxonomy for the
// RFC7807 responder.
func perimeterError(err error) error {
	switch {
	case errors.Is(err, perimeter.ErrInvalidOwnershipGraph),
		errors.Is(err, perimeter.ErrAmbiguousControl):
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	case errors.Is(err, perimeter.ErrEntityReferenced):
		return fmt.Errorf("%w: %v", shared.ErrWorkflow, err)
	case errors.Is(err, perimeter.ErrPerimeterNotFound),
		errors.Is(err, perimeter.ErrEntityNotFound),
		errors.Is(err, perimeter.ErrParticipationNotFound):
		return fmt.Errorf("%w: %v", shared.ErrNotFound, err)
	}
	return err
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func listParams(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage > 200 {
		perPage = 200
	}
	return page, perPage
}
