// Package goodwill computes acquisition goodwill or badwill per participation
// and tracks impairment over time.
package goodwill

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Calculation is the goodwill position of one participation inside one run.
type Calculation struct {
	ID              int64 `json:"id"`
	ConsolidationID int64 `json:"consolidation_id"`
	ParticipationID int64 `json:"participation_id"`

	AcquisitionCost      decimal.Decimal `json:"acquisition_cost"`
	AssetsFairValue      decimal.Decimal `json:"assets_fair_value"`
	LiabilitiesFairValue decimal.Decimal `json:"liabilities_fair_value"`
	OwnershipPct         decimal.Decimal `json:"ownership_pct"`

	GroupShareNetAssets decimal.Decimal `json:"group_share_net_assets"`
	GoodwillAmount      decimal.Decimal `json:"goodwill_amount"`
	BadwillAmount       decimal.Decimal `json:"badwill_amount"`

	CumulativeImpairment    decimal.Decimal `json:"cumulative_impairment"`
	CurrentPeriodImpairment decimal.Decimal `json:"current_period_impairment"`
	CarryingValue           decimal.Decimal `json:"carrying_value"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ImpairmentTest is a recorded impairment event. Impairment is never
// inferred; it exists only as an explicit test result.
type ImpairmentTest struct {
	ID            int64           `json:"id"`
	CalculationID int64           `json:"calculation_id"`
	TestDate      time.Time       `json:"test_date"`
	Amount        decimal.Decimal `json:"amount"`
	Conclusion    string          `json:"conclusion"`
	Clamped       bool            `json:"clamped"`
	CreatedAt     time.Time       `json:"created_at"`
}

var (
	// ErrCalculationNotFound indicates the calculation is missing.
	ErrCalculationNotFound = errors.New("goodwill: calculation not found")
	// ErrNegativeImpairment indicates an impairment below zero.
	ErrNegativeImpairment = errors.New("goodwill: impairment must not be negative")
)
