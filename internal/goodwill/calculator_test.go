package goodwill

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/groupledger/groupledger/internal/perimeter"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCalculateGoodwill(t *testing.T) {
	calc := NewCalculator().Calculate(1, Input{
		ParticipationID:      7,
		AcquisitionCost:      dec("350000"),
		AssetsFairValue:      dec("900000"),
		LiabilitiesFairValue: dec("500000"),
		OwnershipPct:         dec("80"),
	})

	// group share is 80% of 400,000 net assets
	require.True(t, calc.GroupShareNetAssets.Equal(dec("320000")))
	require.True(t, calc.GoodwillAmount.Equal(dec("30000")))
	require.True(t, calc.BadwillAmount.IsZero())
	require.True(t, calc.CarryingValue.Equal(dec("30000")))
}

func TestCalculateBadwill(t *testing.T) {
	calc := NewCalculator().Calculate(1, Input{
		ParticipationID:      7,
		AcquisitionCost:      dec("250000"),
		AssetsFairValue:      dec("900000"),
		LiabilitiesFairValue: dec("500000"),
		OwnershipPct:         dec("80"),
	})

	require.True(t, calc.GoodwillAmount.IsZero())
	require.True(t, calc.BadwillAmount.Equal(dec("70000")))
	require.True(t, calc.CarryingValue.IsZero())
}

func TestCalculateExactMatchHasNeither(t *testing.T) {
	calc := NewCalculator().Calculate(1, Input{
		AcquisitionCost:      dec("320000"),
		AssetsFairValue:      dec("900000"),
		LiabilitiesFairValue: dec("500000"),
		OwnershipPct:         dec("80"),
	})

	require.True(t, calc.GoodwillAmount.IsZero())
	require.True(t, calc.BadwillAmount.IsZero())
}

func TestCalculateFromResidual(t *testing.T) {
	part := perimeter.Participation{
		ID:              7,
		AcquisitionCost: dec("350000"),
		OwnershipPct:    dec("80"),
	}
	calc := NewCalculator().CalculateFromResidual(1, part, dec("30000"))

	require.True(t, calc.GroupShareNetAssets.Equal(dec("320000")))
	require.True(t, calc.GoodwillAmount.Equal(dec("30000")))
	require.True(t, calc.BadwillAmount.IsZero())
	require.True(t, calc.CarryingValue.Equal(dec("30000")))
}

func TestCalculateFromResidualBadwill(t *testing.T) {
	part := perimeter.Participation{
		ID:              7,
		AcquisitionCost: dec("250000"),
		OwnershipPct:    dec("80"),
	}
	calc := NewCalculator().CalculateFromResidual(1, part, dec("-70000"))

	require.True(t, calc.GoodwillAmount.IsZero())
	require.True(t, calc.BadwillAmount.Equal(dec("70000")))
	require.True(t, calc.CarryingValue.IsZero())
}

func TestCarryingValueNetsCumulativeImpairment(t *testing.T) {
	calc := NewCalculator().Calculate(1, Input{
		AcquisitionCost:      dec("350000"),
		AssetsFairValue:      dec("900000"),
		LiabilitiesFairValue: dec("500000"),
		OwnershipPct:         dec("80"),
		CumulativeImpairment: dec("10000"),
	})

	require.True(t, calc.CarryingValue.Equal(dec("20000")))
}

func TestApplyImpairment(t *testing.T) {
	calculator := NewCalculator()
	calc := calculator.Calculate(1, Input{
		AcquisitionCost:      dec("350000"),
		AssetsFairValue:      dec("900000"),
		LiabilitiesFairValue: dec("500000"),
		OwnershipPct:         dec("80"),
	})

	updated, clamped, err := calculator.ApplyImpairment(calc, dec("12000"))
	require.NoError(t, err)
	require.False(t, clamped)
	require.True(t, updated.CurrentPeriodImpairment.Equal(dec("12000")))
	require.True(t, updated.CarryingValue.Equal(dec("18000")))
}

func TestApplyImpairmentClampsToCarryingValue(t *testing.T) {
	calculator := NewCalculator()
	calc := calculator.Calculate(1, Input{
		AcquisitionCost:      dec("350000"),
		AssetsFairValue:      dec("900000"),
		LiabilitiesFairValue: dec("500000"),
		OwnershipPct:         dec("80"),
	})

	updated, clamped, err := calculator.ApplyImpairment(calc, dec("99999999"))
	require.NoError(t, err)
	require.True(t, clamped)
	require.True(t, updated.CurrentPeriodImpairment.Equal(dec("30000")))
	require.True(t, updated.CarryingValue.IsZero())

	// a second test on a fully impaired position books nothing
	again, clamped, err := calculator.ApplyImpairment(updated, dec("1"))
	require.NoError(t, err)
	require.True(t, clamped)
	require.True(t, again.CurrentPeriodImpairment.Equal(dec("30000")))
}

func TestApplyImpairmentRejectsNegative(t *testing.T) {
	calculator := NewCalculator()
	_, _, err := calculator.ApplyImpairment(Calculation{}, dec("-1"))
	require.ErrorIs(t, err, ErrNegativeImpairment)
}
