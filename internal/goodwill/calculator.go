package goodwill

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/perimeter"
)

var hundred = decimal.NewFromInt(100)

// Input is the fair-value picture of one acquisition.
type Input struct {
	ParticipationID      int64
	AcquisitionCost      decimal.Decimal
	AssetsFairValue      decimal.Decimal
	LiabilitiesFairValue decimal.Decimal
	OwnershipPct         decimal.Decimal
	CumulativeImpairment decimal.Decimal
}

// InputFromParticipation seeds an Input from the participation record, using
// the recorded fair value at acquisition as the net-asset base.
func InputFromParticipation(part perimeter.Participation) Input {
	return Input{
		ParticipationID:      part.ID,
		AcquisitionCost:      part.AcquisitionCost,
		AssetsFairValue:      part.FairValueAtAcquisition,
		OwnershipPct:         part.OwnershipPct,
		CumulativeImpairment: part.AccumulatedImpairment,
	}
}

// Calculator derives goodwill positions. Pure; persistence lives in the
// service.
type Calculator struct{}

// NewCalculator constructs a Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Calculate produces the goodwill position for one acquisition. Exactly one
// of goodwill and badwill is non-zero (both zero on an exact match).
func (c *Calculator) Calculate(consolidationID int64, in Input) Calculation {
	netAssets := in.AssetsFairValue.Sub(in.LiabilitiesFairValue)
	share := in.OwnershipPct.Div(hundred)
	groupShare := share.Mul(netAssets)
	residual := in.AcquisitionCost.Sub(groupShare)

	calc := Calculation{
		ConsolidationID:      consolidationID,
		ParticipationID:      in.ParticipationID,
		AcquisitionCost:      in.AcquisitionCost,
		AssetsFairValue:      in.AssetsFairValue,
		LiabilitiesFairValue: in.LiabilitiesFairValue,
		OwnershipPct:         in.OwnershipPct,
		GroupShareNetAssets:  groupShare,
		GoodwillAmount:       decimal.Max(decimal.Zero, residual),
		BadwillAmount:        decimal.Max(decimal.Zero, residual.Neg()),
		CumulativeImpairment: in.CumulativeImpairment,
	}
	calc.CarryingValue = calc.GoodwillAmount.Sub(calc.CumulativeImpairment)
	if calc.CarryingValue.IsNegative() {
		calc.CarryingValue = decimal.Zero
	}
	return calc
}

// CalculateFromResidual derives the position from the equity-elimination
// residual when no fair value was recorded at acquisition. The net-asset
// share is implied as acquisition cost minus the residual.
func (c *Calculator) CalculateFromResidual(consolidationID int64, part perimeter.Participation, residual decimal.Decimal) Calculation {
	calc := Calculation{
		ConsolidationID:      consolidationID,
		ParticipationID:      part.ID,
		AcquisitionCost:      part.AcquisitionCost,
		OwnershipPct:         part.OwnershipPct,
		GroupShareNetAssets:  part.AcquisitionCost.Sub(residual),
		GoodwillAmount:       decimal.Max(decimal.Zero, residual),
		BadwillAmount:        decimal.Max(decimal.Zero, residual.Neg()),
		CumulativeImpairment: part.AccumulatedImpairment,
	}
	calc.CarryingValue = calc.GoodwillAmount.Sub(calc.CumulativeImpairment)
	if calc.CarryingValue.IsNegative() {
		calc.CarryingValue = decimal.Zero
	}
	return calc
}

// ApplyImpairment books a current-period impairment onto a calculation. An
// impairment beyond the remaining carrying value is clamped and the clamp is
// reported, never silently truncated.
func (c *Calculator) ApplyImpairment(calc Calculation, amount decimal.Decimal) (Calculation, bool, error) {
	if amount.IsNegative() {
		return Calculation{}, false, fmt.Errorf("%w: %s", ErrNegativeImpairment, amount)
	}
	remaining := calc.GoodwillAmount.Sub(calc.CumulativeImpairment).Sub(calc.CurrentPeriodImpairment)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	clamped := false
	if amount.GreaterThan(remaining) {
		amount = remaining
		clamped = true
	}
	calc.CurrentPeriodImpairment = calc.CurrentPeriodImpairment.Add(amount)
	calc.CarryingValue = calc.GoodwillAmount.Sub(calc.CumulativeImpairment).Sub(calc.CurrentPeriodImpairment)
	return calc, clamped, nil
}
