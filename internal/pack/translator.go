package pack

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/fxrate"
)

// RateSource is the narrow getRate contract the translator depends on.
type RateSource interface {
	Lookup(ctx context.Context, from, to string, asOf time.Time) (fxrate.Quote, error)
}

// Translator converts a package's local-currency figures into the
// consolidation currency. Balance-sheet items translate at the closing rate,
// flow items at the average rate, and the equity-side residual between the
// two bases is booked as the translation difference, never discarded.
type Translator struct {
	rates RateSource
}

// NewTranslator constructs a Translator.
func NewTranslator(rates RateSource) *Translator {
	return &Translator{rates: rates}
}

// Translate returns a copy of the package with converted fields populated.
// Local-currency fields are left untouched. A missing rate is a hard stop:
// the error propagates and no converted figure is written.
func (t *Translator) Translate(ctx context.Context, p Package, consolidationCurrency string, periodEnd time.Time) (Package, error) {
	if t == nil || t.rates == nil {
		return Package{}, fmt.Errorf("pack: translator not initialised")
	}
	quote, err := t.rates.Lookup(ctx, p.LocalCurrency, consolidationCurrency, periodEnd)
	if err != nil {
		return Package{}, fmt.Errorf("pack: translate package %d (entity %d): %w", p.ID, p.EntityID, err)
	}

	out := p
	out.TotalAssetsConverted = p.TotalAssetsLocal.Mul(quote.Closing)
	out.TotalLiabilitiesConverted = p.TotalLiabilitiesLocal.Mul(quote.Closing)
	out.TotalEquityConverted = p.TotalEquityLocal.Mul(quote.Closing)
	out.TotalRevenueConverted = p.TotalRevenueLocal.Mul(quote.Average)
	out.TotalExpensesConverted = p.TotalExpensesLocal.Mul(quote.Average)
	out.NetIncomeConverted = p.NetIncomeLocal.Mul(quote.Average)
	out.TranslationDifference = translationDifference(p, quote)

	out.Lines = make([]TrialBalanceLine, len(p.Lines))
	for i, line := range p.Lines {
		converted := line
		if line.Nature.IsFlow() {
			converted.AmountConverted = line.AmountLocal.Mul(quote.Average)
		} else {
			converted.AmountConverted = line.AmountLocal.Mul(quote.Closing)
		}
		out.Lines[i] = converted
	}

	out.Intercompany = make([]IntercompanyBalance, len(p.Intercompany))
	for i, ic := range p.Intercompany {
		converted := ic
		if ic.Type.IsFlow() {
			converted.AmountConverted = ic.AmountLocal.Mul(quote.Average)
		} else {
			converted.AmountConverted = ic.AmountLocal.Mul(quote.Closing)
		}
		out.Intercompany[i] = converted
	}
	return out, nil
}

// translationDifference is the equity-side residual: equity at the closing
// rate versus opening equity at the historical rate plus the period's net
// income at the average rate.
func translationDifference(p Package, quote fxrate.Quote) decimal.Decimal {
	closingBasis := p.TotalEquityLocal.Mul(quote.Closing)
	historicalBasis := p.OpeningEquityLocal.Mul(quote.Historical).
		Add(p.NetIncomeLocal.Mul(quote.Average)).
		Add(p.TotalEquityLocal.Sub(p.OpeningEquityLocal).Sub(p.NetIncomeLocal).Mul(quote.Closing))
	return closingBasis.Sub(historicalBasis)
}
