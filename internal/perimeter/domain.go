// Package perimeter models consolidation scopes: the perimeter itself, the
// entities forming its ownership forest, and the capital participations
// linking parents to subsidiaries.
package perimeter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/fxrate"
)

// Status enumerates the perimeter lifecycle. Transitions are forward-only.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSubmitted  Status = "SUBMITTED"
	StatusValidated  Status = "VALIDATED"
	StatusPublished  Status = "PUBLISHED"
	StatusArchived   Status = "ARCHIVED"
)

// ControlType classifies the group's control over an entity.
type ControlType string

const (
	ControlExclusive            ControlType = "EXCLUSIVE"
	ControlJoint                ControlType = "JOINT"
	ControlSignificantInfluence ControlType = "SIGNIFICANT_INFLUENCE"
	ControlNone                 ControlType = "NONE"
)

// Method enumerates consolidation methods.
type Method string

const (
	MethodFull            Method = "FULL"
	MethodProportional    Method = "PROPORTIONAL"
	MethodEquity          Method = "EQUITY"
	MethodNotConsolidated Method = "NOT_CONSOLIDATED"
)

// OwnershipEpsilon is the tolerance on the total = direct + indirect invariant,
// in percentage points.
var OwnershipEpsilon = decimal.RequireFromString("0.01")

// Perimeter is a consolidation scope for one fiscal year.
type Perimeter struct {
	ID                    int64     `json:"id"`
	Code                  string    `json:"code"`
	Name                  string    `json:"name"`
	FiscalYear            int       `json:"fiscal_year"`
	StartDate             time.Time `json:"start_date"`
	EndDate               time.Time `json:"end_date"`
	ConsolidationCurrency string    `json:"consolidation_currency"`
	AccountingStandard    string    `json:"accounting_standard"`
	Status                Status    `json:"status"`
	Version               int64     `json:"version"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Entity is a node in the ownership forest of a perimeter.
type Entity struct {
	ID                   int64           `json:"id"`
	PerimeterID          int64           `json:"perimeter_id"`
	Code                 string          `json:"code"`
	Name                 string          `json:"name"`
	Currency             string          `json:"currency"`
	Country              string          `json:"country"`
	ParentEntityID       *int64          `json:"parent_entity_id,omitempty"`
	IsParent             bool            `json:"is_parent"`
	DirectOwnershipPct   decimal.Decimal `json:"direct_ownership_pct"`
	IndirectOwnershipPct decimal.Decimal `json:"indirect_ownership_pct"`
	TotalOwnershipPct    decimal.Decimal `json:"total_ownership_pct"`
	IntegrationPct       decimal.Decimal `json:"integration_pct"`
	ControlType          ControlType     `json:"control_type"`
	// Method is the explicit consolidation method, empty when derivation applies.
	Method          Method     `json:"consolidation_method,omitempty"`
	AcquisitionDate *time.Time `json:"acquisition_date,omitempty"`
	DisposalDate    *time.Time `json:"disposal_date,omitempty"`
	Active          bool       `json:"active"`
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Participation is the capital-investment edge between a parent and a
// subsidiary. Ownership changes over time are appended, never overwritten.
type Participation struct {
	ID                     int64             `json:"id"`
	PerimeterID            int64             `json:"perimeter_id"`
	ParentEntityID         int64             `json:"parent_entity_id"`
	SubsidiaryEntityID     int64             `json:"subsidiary_entity_id"`
	AcquisitionDate        time.Time         `json:"acquisition_date"`
	AcquisitionCost        decimal.Decimal   `json:"acquisition_cost"`
	FairValueAtAcquisition decimal.Decimal   `json:"fair_value_at_acquisition"`
	OwnershipPct           decimal.Decimal   `json:"ownership_pct"`
	Goodwill               decimal.Decimal   `json:"goodwill"`
	AccumulatedImpairment  decimal.Decimal   `json:"accumulated_impairment"`
	Version                int64             `json:"version"`
	Changes                []OwnershipChange `json:"changes,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

// OwnershipChange records one acquisition or disposal step on a participation.
type OwnershipChange struct {
	ID              int64           `json:"id"`
	ParticipationID int64           `json:"participation_id"`
	EffectiveDate   time.Time       `json:"effective_date"`
	PreviousPct     decimal.Decimal `json:"previous_pct"`
	NewPct          decimal.Decimal `json:"new_pct"`
	Reason          string          `json:"reason"`
	CreatedAt       time.Time       `json:"created_at"`
}

var (
	// ErrInvalidOwnershipGraph indicates a cycle, a missing root, or an
	// unreachable subsidiary in the ownership forest.
	ErrInvalidOwnershipGraph = errors.New("perimeter: invalid ownership graph")
	// ErrAmbiguousControl indicates the explicit control type and the
	// ownership thresholds disagree on the consolidation method.
	ErrAmbiguousControl = errors.New("perimeter: ambiguous control")
	// ErrPerimeterNotFound indicates the perimeter is missing.
	ErrPerimeterNotFound = errors.New("perimeter: not found")
	// ErrEntityNotFound indicates the entity is missing.
	ErrEntityNotFound = errors.New("perimeter: entity not found")
	// ErrParticipationNotFound indicates the participation is missing.
	ErrParticipationNotFound = errors.New("perimeter: participation not found")
	// ErrEntityReferenced prevents hard deletion of entities referenced by a
	// consolidation run; they are soft-deactivated instead.
	ErrEntityReferenced = errors.New("perimeter: entity referenced by consolidation run")
)

// CreatePerimeterInput validates new perimeter requests.
type CreatePerimeterInput struct {
	Code                  string
	Name                  string
	FiscalYear            int
	StartDate             time.Time
	EndDate               time.Time
	ConsolidationCurrency string
	AccountingStandard    string
}

// Validate ensures the input is coherent.
func (in CreatePerimeterInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return errors.New("perimeter: code required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("perimeter: name required")
	}
	if in.FiscalYear < 1900 {
		return errors.New("perimeter: fiscal year required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return errors.New("perimeter: start and end date required")
	}
	if in.StartDate.After(in.EndDate) {
		return errors.New("perimeter: start date cannot be after end date")
	}
	if err := fxrate.ValidateCurrency(in.ConsolidationCurrency); err != nil {
		return err
	}
	if strings.TrimSpace(in.AccountingStandard) == "" {
		return errors.New("perimeter: accounting standard required")
	}
	return nil
}

// CreateEntityInput validates new entity requests.
type CreateEntityInput struct {
	PerimeterID          int64
	Code                 string
	Name                 string
	Currency             string
	Country              string
	ParentEntityID       *int64
	IsParent             bool
	DirectOwnershipPct   decimal.Decimal
	IndirectOwnershipPct decimal.Decimal
	TotalOwnershipPct    decimal.Decimal
	IntegrationPct       decimal.Decimal
	ControlType          ControlType
	Method               Method
	AcquisitionDate      *time.Time
}

// Validate ensures ownership percentages and classification are coherent.
func (in CreateEntityInput) Validate() error {
	if in.PerimeterID == 0 {
		return errors.New("perimeter: perimeter id required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return errors.New("perimeter: entity code required")
	}
	if err := fxrate.ValidateCurrency(in.Currency); err != nil {
		return err
	}
	hundred := decimal.NewFromInt(100)
	for name, pct := range map[string]decimal.Decimal{
		"direct":   in.DirectOwnershipPct,
		"indirect": in.IndirectOwnershipPct,
		"total":    in.TotalOwnershipPct,
	} {
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return fmt.Errorf("perimeter: %s ownership pct out of range [0,100]", name)
		}
	}
	if !in.IsParent {
		sum := in.DirectOwnershipPct.Add(in.IndirectOwnershipPct)
		if in.TotalOwnershipPct.Sub(sum).Abs().GreaterThanOrEqual(OwnershipEpsilon) {
			return fmt.Errorf("perimeter: total ownership %s does not match direct+indirect %s",
				in.TotalOwnershipPct, sum)
		}
	}
	switch in.ControlType {
	case ControlExclusive, ControlJoint, ControlSignificantInfluence, ControlNone:
	default:
		return fmt.Errorf("perimeter: unknown control type %q", in.ControlType)
	}
	switch in.Method {
	case "", MethodFull, MethodProportional, MethodEquity, MethodNotConsolidated:
	default:
		return fmt.Errorf("perimeter: unknown consolidation method %q", in.Method)
	}
	return nil
}

// CreateParticipationInput validates new participation requests.
type CreateParticipationInput struct {
	PerimeterID            int64
	ParentEntityID         int64
	SubsidiaryEntityID     int64
	AcquisitionDate        time.Time
	AcquisitionCost        decimal.Decimal
	FairValueAtAcquisition decimal.Decimal
	OwnershipPct           decimal.Decimal
}

// Validate ensures identifiers and amounts are supplied.
func (in CreateParticipationInput) Validate() error {
	if in.PerimeterID == 0 || in.ParentEntityID == 0 || in.SubsidiaryEntityID == 0 {
		return errors.New("perimeter: perimeter, parent, and subsidiary required")
	}
	if in.ParentEntityID == in.SubsidiaryEntityID {
		return errors.New("perimeter: parent and subsidiary must differ")
	}
	if in.AcquisitionDate.IsZero() {
		return errors.New("perimeter: acquisition date required")
	}
	if in.AcquisitionCost.IsNegative() {
		return errors.New("perimeter: acquisition cost cannot be negative")
	}
	if in.OwnershipPct.IsNegative() || in.OwnershipPct.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("perimeter: ownership pct out of range [0,100]")
	}
	return nil
}
