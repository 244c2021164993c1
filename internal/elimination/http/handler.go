// Package eliminationhttp exposes elimination journal endpoints. Automatic
// generation runs through the consolidation recalculation; this surface covers
// manual entries, review, and listing.
package eliminationhttp

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/elimination"
	"github.com/groupledger/groupledger/internal/platform/httpx"
)

// Handler wires elimination endpoints.
type Handler struct {
	logger  *slog.Logger
	service *elimination.Service
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *elimination.Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/consolidations/{id}/eliminations", h.list)
	r.Post("/consolidations/{id}/eliminations", h.createManual)
	r.Post("/eliminations/{id}/validate", h.validateEntry)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.List(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type journalLineRequest struct {
	AccountCode string          `json:"account_code" validate:"required"`
	Label       string          `json:"label"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

type manualEntryRequest struct {
	Type        elimination.EntryType `json:"type" validate:"required"`
	EntityID1   int64                 `json:"entity_id_1" validate:"required"`
	EntityID2   int64                 `json:"entity_id_2"`
	Amount      decimal.Decimal       `json:"amount"`
	Description string                `json:"description" validate:"required"`
	Lines       []journalLineRequest  `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) createManual(w http.ResponseWriter, r *http.Request) {
	var req manualEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry := elimination.Entry{
		ConsolidationID: pathID(r),
		Type:            req.Type,
		EntityID1:       req.EntityID1,
		EntityID2:       req.EntityID2,
		Amount:          req.Amount,
		Description:     req.Description,
	}
	for _, line := range req.Lines {
		entry.Lines = append(entry.Lines, elimination.JournalLine{
			AccountCode: line.AccountCode,
			Label:       line.Label,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	created, err := h.service.CreateManual(r.Context(), entry)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

type validateEntryRequest struct {
	Version int64 `json:"version" validate:"required"`
}

func (h *Handler) validateEntry(w http.ResponseWriter, r *http.Request) {
	var req validateEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	entry, err := h.service.ValidateEntry(r.Context(), pathID(r), req.Version)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}
