package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/platform/db"
	"github.com/groupledger/groupledger/internal/shared"
)

// Repository persists consolidated reports, their lines and exports.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const reportColumns = `id, consolidation_id, type, title, currency, period_end,
	revision, is_final, generated_at, finalized_at, version`

func scanReport(row pgx.Row) (ConsolidatedReport, error) {
	var rep ConsolidatedReport
	err := row.Scan(&rep.ID, &rep.ConsolidationID, &rep.Type, &rep.Title, &rep.Currency,
		&rep.PeriodEnd, &rep.Revision, &rep.IsFinal, &rep.GeneratedAt, &rep.FinalizedAt,
		&rep.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return ConsolidatedReport{}, fmt.Errorf("%w: %w", ErrReportNotFound, shared.ErrNotFound)
	}
	if err != nil {
		return ConsolidatedReport{}, err
	}
	return rep, nil
}

// Insert stores a report and its lines in one transaction.
func (r *Repository) Insert(ctx context.Context, rep ConsolidatedReport) (ConsolidatedReport, error) {
	var stored ConsolidatedReport
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		const query = `
			INSERT INTO consolidated_reports (consolidation_id, type, title, currency,
				period_end, revision, is_final, generated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, false, $7, 1)
			RETURNING ` + reportColumns
		var err error
		stored, err = scanReport(tx.QueryRow(ctx, query, rep.ConsolidationID, rep.Type,
			rep.Title, rep.Currency, rep.PeriodEnd, rep.Revision, rep.GeneratedAt))
		if err != nil {
			return err
		}
		position := 0
		for _, sec := range rep.Sections {
			for _, line := range sec.Lines {
				if _, err := tx.Exec(ctx, `
					INSERT INTO report_lines (report_id, heading, label, amount, position)
					VALUES ($1, $2, $3, $4, $5)`,
					stored.ID, sec.Heading, line.Label, line.Amount.String(), position); err != nil {
					return err
				}
				position++
			}
		}
		return nil
	})
	if err != nil {
		return ConsolidatedReport{}, err
	}
	stored.Sections = rep.Sections
	return stored, nil
}

// Get returns one report with its lines and exports.
func (r *Repository) Get(ctx context.Context, id int64) (ConsolidatedReport, error) {
	const query = `SELECT ` + reportColumns + ` FROM consolidated_reports WHERE id = $1`
	rep, err := scanReport(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return ConsolidatedReport{}, err
	}
	if rep.Sections, err = r.listSections(ctx, id); err != nil {
		return ConsolidatedReport{}, err
	}
	if rep.Exports, err = r.listExports(ctx, id); err != nil {
		return ConsolidatedReport{}, err
	}
	return rep, nil
}

// ListByConsolidation returns the reports of a run, newest revision first.
func (r *Repository) ListByConsolidation(ctx context.Context, consolidationID int64) ([]ConsolidatedReport, error) {
	const query = `SELECT ` + reportColumns + `
		FROM consolidated_reports WHERE consolidation_id = $1 ORDER BY type, revision DESC`
	rows, err := r.pool.Query(ctx, query, consolidationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ConsolidatedReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Sections, err = r.listSections(ctx, out[i].ID); err != nil {
			return nil, err
		}
		if out[i].Exports, err = r.listExports(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// NextRevision returns one past the highest stored revision for the pair.
func (r *Repository) NextRevision(ctx context.Context, consolidationID int64, typ Type) (int, error) {
	var revision int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(revision), 0) + 1 FROM consolidated_reports
		WHERE consolidation_id = $1 AND type = $2`, consolidationID, typ).Scan(&revision)
	return revision, err
}

// Finalize freezes the report, version-guarded.
func (r *Repository) Finalize(ctx context.Context, id, expectedVersion int64, at time.Time) (ConsolidatedReport, error) {
	const query = `
		UPDATE consolidated_reports
		SET is_final = true, finalized_at = $3, version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING ` + reportColumns
	rep, err := scanReport(r.pool.QueryRow(ctx, query, id, expectedVersion, at))
	if err != nil {
		return ConsolidatedReport{}, r.staleOrMissing(ctx, id, err)
	}
	if rep.Sections, err = r.listSections(ctx, id); err != nil {
		return ConsolidatedReport{}, err
	}
	return rep, nil
}

// SaveExport records a rendered artifact.
func (r *Repository) SaveExport(ctx context.Context, exp Export) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO report_exports (id, report_id, format, download_url, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		exp.ID, exp.ReportID, exp.Format, exp.DownloadURL, exp.CreatedAt)
	return err
}

func (r *Repository) listSections(ctx context.Context, reportID int64) ([]Section, error) {
	const query = `
		SELECT heading, label, amount FROM report_lines
		WHERE report_id = $1 ORDER BY position`
	rows, err := r.pool.Query(ctx, query, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sections []Section
	for rows.Next() {
		var heading, label, amount string
		if err := rows.Scan(&heading, &label, &amount); err != nil {
			return nil, err
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("report: parse amount: %w", err)
		}
		if len(sections) == 0 || sections[len(sections)-1].Heading != heading {
			sections = append(sections, Section{Heading: heading})
		}
		last := &sections[len(sections)-1]
		last.Lines = append(last.Lines, Line{Label: label, Amount: value})
		last.Total = last.Total.Add(value)
	}
	return sections, rows.Err()
}

func (r *Repository) listExports(ctx context.Context, reportID int64) ([]Export, error) {
	const query = `
		SELECT id, report_id, format, download_url, created_at
		FROM report_exports WHERE report_id = $1 ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Export
	for rows.Next() {
		var exp Export
		if err := rows.Scan(&exp.ID, &exp.ReportID, &exp.Format, &exp.DownloadURL,
			&exp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, exp)
	}
	return out, rows.Err()
}

func (r *Repository) staleOrMissing(ctx context.Context, id int64, cause error) error {
	if !errors.Is(cause, shared.ErrNotFound) {
		return cause
	}
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM consolidated_reports WHERE id = $1)`, id).Scan(&exists); err == nil && exists {
		return fmt.Errorf("%w: report %d", shared.ErrStaleVersion, id)
	}
	return cause
}
