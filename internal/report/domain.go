// Package report assembles the published statements of a consolidation run
// into versioned, immutable artifacts.
package report

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Type enumerates the statements a run can produce.
type Type string

const (
	TypeBalanceSheet    Type = "BALANCE_SHEET"
	TypeIncomeStatement Type = "INCOME_STATEMENT"
	TypeCashFlow        Type = "CASH_FLOW"
	TypeEquityVariation Type = "EQUITY_VARIATION"
	TypeNotes           Type = "NOTES"
	TypeSegment         Type = "SEGMENT"
	TypeIntercompany    Type = "INTERCOMPANY"
)

// Valid reports whether t names a known statement.
func (t Type) Valid() bool {
	switch t {
	case TypeBalanceSheet, TypeIncomeStatement, TypeCashFlow,
		TypeEquityVariation, TypeNotes, TypeSegment, TypeIntercompany:
		return true
	}
	return false
}

// Format enumerates the export formats the renderer supports.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// Valid reports whether f is renderable.
func (f Format) Valid() bool {
	return f == FormatPDF || f == FormatHTML
}

// Line is one labelled amount inside a report section.
type Line struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// Section groups lines under a heading, with an optional subtotal.
type Section struct {
	Heading string          `json:"heading"`
	Lines   []Line          `json:"lines"`
	Total   decimal.Decimal `json:"total"`
}

// ConsolidatedReport is one generated statement. Revision counts generations
// of the same statement for the same run; once final the content never
// changes, only exports remain possible.
type ConsolidatedReport struct {
	ID              int64     `json:"id"`
	ConsolidationID int64     `json:"consolidation_id"`
	Type            Type      `json:"type"`
	Title           string    `json:"title"`
	Currency        string    `json:"currency"`
	PeriodEnd       time.Time `json:"period_end"`
	Revision        int       `json:"revision"`
	IsFinal         bool      `json:"is_final"`

	Sections []Section `json:"sections"`
	Exports  []Export  `json:"exports,omitempty"`

	GeneratedAt time.Time  `json:"generated_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	Version     int64      `json:"version"`
}

// Export is one rendered artifact of a report.
type Export struct {
	ID          string    `json:"id"`
	ReportID    int64     `json:"report_id"`
	Format      Format    `json:"format"`
	DownloadURL string    `json:"download_url"`
	CreatedAt   time.Time `json:"created_at"`
}

var (
	// ErrReportNotFound indicates the report is missing.
	ErrReportNotFound = errors.New("report: not found")
	// ErrReportFinal indicates a mutation of a finalized report.
	ErrReportFinal = errors.New("report: finalized reports are immutable")
	// ErrRunNotFinalized indicates generation from a run that was not yet
	// validated or published.
	ErrRunNotFinalized = errors.New("report: consolidation must be validated or published")
	// ErrUnknownType indicates an unrecognized statement type.
	ErrUnknownType = errors.New("report: unknown report type")
	// ErrUnknownFormat indicates an unrecognized export format.
	ErrUnknownFormat = errors.New("report: unknown export format")
)
