// Package fxrate stores and serves exchange-rate quotes used by the
// consolidation pipeline. A quote carries the closing, average, and historical
// rates for one currency pair on one date; lookups are exact-date and never
// fall back to a stale quote.
package fxrate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Quote holds the three rates for a currency pair on a given date.
type Quote struct {
	From       string          `json:"from"`
	To         string          `json:"to"`
	AsOf       time.Time       `json:"as_of"`
	Closing    decimal.Decimal `json:"closing"`
	Average    decimal.Decimal `json:"average"`
	Historical decimal.Decimal `json:"historical"`
}

// ErrRateNotFound indicates no quote exists for the requested pair/date. The
// pipeline treats this as a hard stop; there is no implicit fallback.
var ErrRateNotFound = errors.New("fxrate: exchange rate not found")

// ErrInvalidCurrency indicates a currency code that is not ISO 4217.
var ErrInvalidCurrency = errors.New("fxrate: invalid currency code")

// Pair renders the conventional FROM/TO pair key.
func (q Quote) Pair() string {
	return q.From + "/" + q.To
}

// Validate checks currency codes and rate signs.
func (q Quote) Validate() error {
	for _, code := range []string{q.From, q.To} {
		if err := ValidateCurrency(code); err != nil {
			return err
		}
	}
	if q.From == q.To {
		return errors.New("fxrate: pair currencies must differ")
	}
	if q.AsOf.IsZero() {
		return errors.New("fxrate: as-of date required")
	}
	for _, rate := range []decimal.Decimal{q.Closing, q.Average, q.Historical} {
		if rate.Sign() <= 0 {
			return errors.New("fxrate: rates must be positive")
		}
	}
	return nil
}

// ValidateCurrency rejects codes that are not ISO 4217.
func ValidateCurrency(code string) error {
	if _, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code))); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return nil
}

// Gap reports a pair/date combination with no stored quote.
type Gap struct {
	Pair string    `json:"pair"`
	AsOf time.Time `json:"as_of"`
}

// CoverageSummary is the outcome of a coverage validation sweep.
type CoverageSummary struct {
	OK        bool    `json:"ok"`
	Gaps      []Gap   `json:"gaps"`
	Available []Quote `json:"available_quotes"`
}
