// Package cli offers operational helpers for the service binary: FX rate
// maintenance and consolidation job control.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/groupledger/groupledger/internal/fxrate"
)

// FXService is the slice of the FX service the commands depend on.
type FXService interface {
	ImportCSV(ctx context.Context, r io.Reader) (int, error)
	ValidateCoverage(ctx context.Context, pairs []string, asOf time.Time) (fxrate.CoverageSummary, error)
}

// FXOpsCLI offers operational helpers to manage FX rates used by consolidation.
type FXOpsCLI struct {
	service FXService
}

// NewFXOpsCLI constructs a new helper instance.
func NewFXOpsCLI(service FXService) *FXOpsCLI {
	return &FXOpsCLI{service: service}
}

// FXImportOptions defines available flags for the fx import command.
type FXImportOptions struct {
	Path       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ImportCommand ingests a rate CSV and prints the outcome.
func (c *FXOpsCLI) ImportCommand(ctx context.Context, opts FXImportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if strings.TrimSpace(opts.Path) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "fx import: --file is required")
		return 1
	}
	f, err := os.Open(opts.Path)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx import: %v\n", err)
		return 1
	}
	defer func() { _ = f.Close() }()

	imported, err := c.service.ImportCSV(ctx, f)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx import: %v (imported %d before failure)\n", err, imported)
		return 1
	}
	if opts.JSONOutput {
		_ = json.NewEncoder(opts.Stdout).Encode(map[string]int{"imported": imported})
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "imported %d rates\n", imported)
	}
	return 0
}

// FXValidateOptions defines available flags for the fx validate command.
type FXValidateOptions struct {
	Pairs      []string
	AsOf       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ValidateCommand checks rate coverage for the given pairs and date.
func (c *FXOpsCLI) ValidateCommand(ctx context.Context, opts FXValidateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if len(opts.Pairs) == 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "fx validate: --pairs is required")
		return 1
	}
	asOf, err := time.Parse("2006-01-02", strings.TrimSpace(opts.AsOf))
	if err != nil {
		_, _ = fmt.Fprintln(opts.Stderr, "fx validate: --as-of must be YYYY-MM-DD")
		return 1
	}

	summary, err := c.service.ValidateCoverage(ctx, opts.Pairs, asOf)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx validate: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		_ = json.NewEncoder(opts.Stdout).Encode(summary)
	} else if summary.OK {
		_, _ = fmt.Fprintf(opts.Stdout, "coverage ok: %d pairs quoted\n", len(summary.Available))
	} else {
		for _, gap := range summary.Gaps {
			_, _ = fmt.Fprintf(opts.Stdout, "missing: %s as of %s\n", gap.Pair, gap.AsOf.Format("2006-01-02"))
		}
	}
	if !summary.OK {
		return 2
	}
	return 0
}
