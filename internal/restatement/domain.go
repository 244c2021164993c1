// Package restatement models standard-alignment adjustments: entries that
// bring an entity's locally reported figures onto the group accounting
// standard before aggregation.
package restatement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Type is the closed set of restatement natures.
type Type string

const (
	TypeLeaseCapitalization Type = "LEASE_CAPITALIZATION"
	TypePensionProvision    Type = "PENSION_PROVISION"
	TypeDepreciationMethod  Type = "DEPRECIATION_METHOD"
	TypeInventoryValuation  Type = "INVENTORY_VALUATION"
	TypeRevenueRecognition  Type = "REVENUE_RECOGNITION"
	TypeDeferredTax         Type = "DEFERRED_TAX"
	TypeOther               Type = "OTHER"
)

func (t Type) valid() bool {
	switch t {
	case TypeLeaseCapitalization, TypePensionProvision, TypeDepreciationMethod,
		TypeInventoryValuation, TypeRevenueRecognition, TypeDeferredTax, TypeOther:
		return true
	}
	return false
}

// Status is the restatement workflow. Recurring proposals re-enter as DRAFT
// and must be validated again each period.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusValidated Status = "VALIDATED"
	StatusRejected  Status = "REJECTED"
)

var transitions = map[Status][]Status{
	StatusDraft:    {StatusValidated, StatusRejected},
	StatusRejected: {StatusDraft},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// JournalLine is one supporting line of a restatement.
type JournalLine struct {
	AccountCode string          `json:"account_code"`
	Label       string          `json:"label"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// Restatement is one adjustment against one entity inside a run. The impact
// is decomposed into additive deltas so application order never matters.
type Restatement struct {
	ID              int64  `json:"id"`
	ConsolidationID int64  `json:"consolidation_id"`
	EntityID        int64  `json:"entity_id"`
	Type            Type   `json:"type"`
	Description     string `json:"description"`
	Status          Status `json:"status"`

	AssetsDelta      decimal.Decimal `json:"assets_delta"`
	LiabilitiesDelta decimal.Decimal `json:"liabilities_delta"`
	EquityDelta      decimal.Decimal `json:"equity_delta"`
	IncomeDelta      decimal.Decimal `json:"income_delta"`
	ExpenseDelta     decimal.Decimal `json:"expense_delta"`
	TaxDelta         decimal.Decimal `json:"tax_delta"`

	Lines       []JournalLine `json:"lines,omitempty"`
	IsRecurring bool          `json:"is_recurring"`
	// SourceRestatementID links a recurring proposal back to the entry it
	// was carried forward from.
	SourceRestatementID *int64    `json:"source_restatement_id,omitempty"`
	Version             int64     `json:"version"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

var (
	// ErrRestatementNotFound indicates the restatement is missing.
	ErrRestatementNotFound = errors.New("restatement: not found")
	// ErrUnbalanced indicates journal lines whose debits and credits differ.
	ErrUnbalanced = errors.New("restatement: journal lines not balanced")
	// ErrNotDraft indicates an edit attempt outside DRAFT.
	ErrNotDraft = errors.New("restatement: only DRAFT restatements may change")
)

// Balanced verifies Σdebit = Σcredit over the supporting lines.
func (r Restatement) Balanced() error {
	var debit, credit decimal.Decimal
	for _, line := range r.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s vs credit %s", ErrUnbalanced, debit, credit)
	}
	return nil
}

// NetIncomeDelta is the adjustment's effect on net income.
func (r Restatement) NetIncomeDelta() decimal.Decimal {
	return r.IncomeDelta.Sub(r.ExpenseDelta).Sub(r.TaxDelta)
}

// Validate checks a restatement before insertion or validation.
func (r Restatement) Validate() error {
	if r.ConsolidationID == 0 || r.EntityID == 0 {
		return errors.New("restatement: consolidation and entity required")
	}
	if !r.Type.valid() {
		return fmt.Errorf("restatement: unknown type %q", r.Type)
	}
	if strings.TrimSpace(r.Description) == "" {
		return errors.New("restatement: description required")
	}
	if len(r.Lines) < 2 {
		return errors.New("restatement: at least two journal lines required")
	}
	return r.Balanced()
}
