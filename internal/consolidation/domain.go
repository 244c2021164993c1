// Package consolidation owns the consolidation run: its lifecycle state
// machine, the recalculation pipeline, and the aggregated group totals.
package consolidation

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the run lifecycle. Transitions are forward-only.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSubmitted  Status = "SUBMITTED"
	StatusValidated  Status = "VALIDATED"
	StatusPublished  Status = "PUBLISHED"
	StatusArchived   Status = "ARCHIVED"
)

// statusTransitions is the forward-only lifecycle table.
var statusTransitions = map[Status]Status{
	StatusDraft:      StatusInProgress,
	StatusInProgress: StatusSubmitted,
	StatusSubmitted:  StatusValidated,
	StatusValidated:  StatusPublished,
	StatusPublished:  StatusArchived,
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to Status) bool {
	next, ok := statusTransitions[from]
	return ok && next == to
}

// Recalculable reports whether the computed block may still be replaced.
func (s Status) Recalculable() bool {
	return s == StatusDraft || s == StatusInProgress
}

// Aggregate is the computed block of a run. It is replaced atomically by a
// recalculation, never patched in place.
type Aggregate struct {
	TotalAssets           decimal.Decimal `json:"total_assets"`
	TotalLiabilities      decimal.Decimal `json:"total_liabilities"`
	TotalEquity           decimal.Decimal `json:"total_equity"`
	TotalRevenue          decimal.Decimal `json:"total_revenue"`
	TotalExpenses         decimal.Decimal `json:"total_expenses"`
	GroupNetIncome        decimal.Decimal `json:"group_net_income"`
	MinorityNetIncome     decimal.Decimal `json:"minority_net_income"`
	MinorityInterests     decimal.Decimal `json:"minority_interests"`
	TranslationDifference decimal.Decimal `json:"translation_difference"`
	TotalGoodwill         decimal.Decimal `json:"total_goodwill"`
	TotalEliminated       decimal.Decimal `json:"total_eliminated"`
}

// Consolidation is one run over a perimeter for one closing date.
type Consolidation struct {
	ID          int64     `json:"id"`
	PerimeterID int64     `json:"perimeter_id"`
	Name        string    `json:"name"`
	Currency    string    `json:"currency"`
	PeriodEnd   time.Time `json:"period_end"`
	Status      Status    `json:"status"`

	Aggregate Aggregate `json:"aggregate"`

	// UnreconciledAcknowledged records the explicit sign-off on pairs left
	// outside tolerance, required before validation.
	UnreconciledAcknowledged bool       `json:"unreconciled_acknowledged"`
	EliminationsGeneratedAt  *time.Time `json:"eliminations_generated_at,omitempty"`
	RecalculatedAt           *time.Time `json:"recalculated_at,omitempty"`
	SubmittedAt              *time.Time `json:"submitted_at,omitempty"`
	ValidatedAt              *time.Time `json:"validated_at,omitempty"`
	PublishedAt              *time.Time `json:"published_at,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrConsolidationNotFound indicates the run is missing.
	ErrConsolidationNotFound = errors.New("consolidation: not found")
	// ErrNotRecalculable indicates a recalculation after submission.
	ErrNotRecalculable = errors.New("consolidation: recalculation only allowed before submission")
	// ErrRecalcInFlight indicates a concurrent recalculation on the same run.
	ErrRecalcInFlight = errors.New("consolidation: recalculation already in progress")
)

// CreateInput validates new run requests.
type CreateInput struct {
	PerimeterID int64
	Name        string
	PeriodEnd   time.Time
}

// Validate ensures identifiers are supplied.
func (in CreateInput) Validate() error {
	if in.PerimeterID == 0 {
		return errors.New("consolidation: perimeter required")
	}
	if in.Name == "" {
		return errors.New("consolidation: name required")
	}
	if in.PeriodEnd.IsZero() {
		return errors.New("consolidation: period end required")
	}
	return nil
}
