package pack

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/groupledger/groupledger/internal/fxrate"
)

type fixedRates struct {
	quote fxrate.Quote
	err   error
}

func (f fixedRates) Lookup(ctx context.Context, from, to string, asOf time.Time) (fxrate.Quote, error) {
	if f.err != nil {
		return fxrate.Quote{}, f.err
	}
	return f.quote, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func usdEurQuote() fxrate.Quote {
	return fxrate.Quote{
		From:       "USD",
		To:         "EUR",
		Closing:    dec("0.92"),
		Average:    dec("0.90"),
		Historical: dec("0.88"),
	}
}

func usdPackage() Package {
	return Package{
		ID:                    7,
		EntityID:              2,
		LocalCurrency:         "USD",
		TotalAssetsLocal:      dec("1000000"),
		TotalLiabilitiesLocal: dec("600000"),
		TotalEquityLocal:      dec("400000"),
		OpeningEquityLocal:    dec("300000"),
		TotalRevenueLocal:     dec("500000"),
		TotalExpensesLocal:    dec("400000"),
		NetIncomeLocal:        dec("100000"),
		Lines: []TrialBalanceLine{
			{AccountCode: "2000", Nature: NatureAsset, AmountLocal: dec("1000000")},
			{AccountCode: "7000", Nature: NatureIncome, AmountLocal: dec("500000")},
		},
		Intercompany: []IntercompanyBalance{
			{CounterpartyEntityID: 1, Type: IntercoReceivable, AmountLocal: dec("50000")},
			{CounterpartyEntityID: 1, Type: IntercoDividend, AmountLocal: dec("10000")},
		},
	}
}

func TestTranslateAppliesClosingAndAverageRates(t *testing.T) {
	tr := NewTranslator(fixedRates{quote: usdEurQuote()})
	out, err := tr.Translate(context.Background(), usdPackage(), "EUR", time.Now())
	require.NoError(t, err)

	require.True(t, out.TotalAssetsConverted.Equal(dec("920000")), "assets: %s", out.TotalAssetsConverted)
	require.True(t, out.NetIncomeConverted.Equal(dec("90000")), "net income: %s", out.NetIncomeConverted)

	// balance-sheet line at closing, flow line at average
	require.True(t, out.Lines[0].AmountConverted.Equal(dec("920000")))
	require.True(t, out.Lines[1].AmountConverted.Equal(dec("450000")))

	// intercompany receivable at closing, dividend flow at average
	require.True(t, out.Intercompany[0].AmountConverted.Equal(dec("46000")))
	require.True(t, out.Intercompany[1].AmountConverted.Equal(dec("9000")))
}

func TestTranslateBooksTranslationDifference(t *testing.T) {
	tr := NewTranslator(fixedRates{quote: usdEurQuote()})
	out, err := tr.Translate(context.Background(), usdPackage(), "EUR", time.Now())
	require.NoError(t, err)

	// opening equity gap: 300000 x (0.92 - 0.88) = 12000
	// net income gap:     100000 x (0.92 - 0.90) = 2000
	require.True(t, out.TranslationDifference.Equal(dec("14000")),
		"translation difference: %s", out.TranslationDifference)
}

func TestTranslateDoesNotMutateLocalFields(t *testing.T) {
	tr := NewTranslator(fixedRates{quote: usdEurQuote()})
	in := usdPackage()
	out, err := tr.Translate(context.Background(), in, "EUR", time.Now())
	require.NoError(t, err)

	require.True(t, out.TotalAssetsLocal.Equal(in.TotalAssetsLocal))
	require.True(t, out.NetIncomeLocal.Equal(in.NetIncomeLocal))
	require.True(t, in.TotalAssetsConverted.IsZero(), "input must stay untouched")
}

func TestTranslateMissingRateIsHardStop(t *testing.T) {
	tr := NewTranslator(fixedRates{err: fxrate.ErrRateNotFound})
	_, err := tr.Translate(context.Background(), usdPackage(), "EUR", time.Now())
	require.ErrorIs(t, err, fxrate.ErrRateNotFound)
}
