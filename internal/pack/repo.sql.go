package pack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/shared"
)

// Repository persists consolidation packages.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const packageColumns = `id, consolidation_id, entity_id, local_ccy, status, rejection_reason,
	assets_local, liabilities_local, equity_local, opening_equity_local,
	revenue_local, expenses_local, net_income_local,
	assets_conv, liabilities_conv, equity_conv, revenue_conv, expenses_conv,
	net_income_conv, translation_diff,
	submitted_at, validated_at, version, created_at, updated_at`

func scanPackage(row pgx.Row) (Package, error) {
	var p Package
	var reason *string
	amounts := make([]string, 14)
	dest := []any{&p.ID, &p.ConsolidationID, &p.EntityID, &p.LocalCurrency, &p.Status, &reason}
	for i := range amounts {
		dest = append(dest, &amounts[i])
	}
	dest = append(dest, &p.SubmittedAt, &p.ValidatedAt, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Package{}, fmt.Errorf("%w: %w", ErrPackageNotFound, shared.ErrNotFound)
		}
		return Package{}, err
	}
	if reason != nil {
		p.RejectionReason = *reason
	}
	fields := []*decimal.Decimal{
		&p.TotalAssetsLocal, &p.TotalLiabilitiesLocal, &p.TotalEquityLocal, &p.OpeningEquityLocal,
		&p.TotalRevenueLocal, &p.TotalExpensesLocal, &p.NetIncomeLocal,
		&p.TotalAssetsConverted, &p.TotalLiabilitiesConverted, &p.TotalEquityConverted,
		&p.TotalRevenueConverted, &p.TotalExpensesConverted, &p.NetIncomeConverted,
		&p.TranslationDifference,
	}
	for i, field := range fields {
		d, err := decimal.NewFromString(amounts[i])
		if err != nil {
			return Package{}, fmt.Errorf("pack: parse amount: %w", err)
		}
		*field = d
	}
	return p, nil
}

// Insert creates a DRAFT package at version 1. One package per entity per
// run; the unique constraint enforces it.
func (r *Repository) Insert(ctx context.Context, in CreateInput) (Package, error) {
	const query = `
		INSERT INTO consolidation_packages (consolidation_id, entity_id, local_ccy, status, version)
		VALUES ($1, $2, $3, 'DRAFT', 1)
		RETURNING ` + packageColumns
	p, err := scanPackage(r.pool.QueryRow(ctx, query, in.ConsolidationID, in.EntityID, in.LocalCurrency))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_packages_consolidation_entity" {
			return Package{}, fmt.Errorf("%w: entity %d already has a package in consolidation %d",
				shared.ErrValidation, in.EntityID, in.ConsolidationID)
		}
		return Package{}, err
	}
	return p, nil
}

// Get fetches a package with lines and intercompany balances.
func (r *Repository) Get(ctx context.Context, id int64) (Package, error) {
	const query = `SELECT ` + packageColumns + ` FROM consolidation_packages WHERE id = $1`
	p, err := scanPackage(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return Package{}, err
	}
	if p.Lines, err = r.listLines(ctx, id); err != nil {
		return Package{}, err
	}
	if p.Intercompany, err = r.listIntercompany(ctx, id); err != nil {
		return Package{}, err
	}
	return p, nil
}

// ListByConsolidation returns every package of a run, with details.
func (r *Repository) ListByConsolidation(ctx context.Context, consolidationID int64) ([]Package, error) {
	const query = `SELECT ` + packageColumns + `
		FROM consolidation_packages WHERE consolidation_id = $1 ORDER BY entity_id`
	rows, err := r.pool.Query(ctx, query, consolidationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Lines, err = r.listLines(ctx, out[i].ID); err != nil {
			return nil, err
		}
		if out[i].Intercompany, err = r.listIntercompany(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReplaceContents rewrites local figures, lines, and intercompany balances in
// one version-guarded transaction.
func (r *Repository) ReplaceContents(ctx context.Context, p Package) (Package, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Package{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const update = `
		UPDATE consolidation_packages
		SET assets_local = $3, liabilities_local = $4, equity_local = $5,
			opening_equity_local = $6, revenue_local = $7, expenses_local = $8,
			net_income_local = $9, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + packageColumns
	updated, err := scanPackage(tx.QueryRow(ctx, update, p.ID, p.Version,
		p.TotalAssetsLocal.String(), p.TotalLiabilitiesLocal.String(),
		p.TotalEquityLocal.String(), p.OpeningEquityLocal.String(),
		p.TotalRevenueLocal.String(), p.TotalExpensesLocal.String(),
		p.NetIncomeLocal.String()))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Package{}, fmt.Errorf("%w: package id %d", shared.ErrStaleVersion, p.ID)
		}
		return Package{}, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM package_lines WHERE package_id = $1`, p.ID); err != nil {
		return Package{}, err
	}
	for _, line := range p.Lines {
		const insert = `
			INSERT INTO package_lines (package_id, account_code, account_name, nature, amount_local, amount_conv)
			VALUES ($1, $2, $3, $4, $5, 0)`
		if _, err := tx.Exec(ctx, insert, p.ID, line.AccountCode, line.AccountName,
			line.Nature, line.AmountLocal.String()); err != nil {
			return Package{}, err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM package_intercompany WHERE package_id = $1`, p.ID); err != nil {
		return Package{}, err
	}
	for _, ic := range p.Intercompany {
		const insert = `
			INSERT INTO package_intercompany (package_id, counterparty_entity_id, ic_type, amount_local, amount_conv)
			VALUES ($1, $2, $3, $4, 0)`
		if _, err := tx.Exec(ctx, insert, p.ID, ic.CounterpartyEntityID, ic.Type, ic.AmountLocal.String()); err != nil {
			return Package{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Package{}, err
	}
	return r.Get(ctx, updated.ID)
}

// UpdateStatus moves the workflow status with a version guard.
func (r *Repository) UpdateStatus(ctx context.Context, id, expectedVersion int64, status Status, reason string, at time.Time) (Package, error) {
	const query = `
		UPDATE consolidation_packages
		SET status = $3,
			rejection_reason = NULLIF($4, ''),
			submitted_at = CASE WHEN $3 = 'SUBMITTED' THEN $5 ELSE submitted_at END,
			validated_at = CASE WHEN $3 = 'VALIDATED' THEN $5 ELSE validated_at END,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + packageColumns
	p, err := scanPackage(r.pool.QueryRow(ctx, query, id, expectedVersion, status, reason, at))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			var exists bool
			if scanErr := r.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM consolidation_packages WHERE id = $1)`, id).Scan(&exists); scanErr == nil && exists {
				return Package{}, fmt.Errorf("%w: package id %d", shared.ErrStaleVersion, id)
			}
		}
		return Package{}, err
	}
	return p, nil
}

// SaveConverted persists the translator's output: converted totals, the
// translation difference, and per-line converted amounts. Local fields are
// not touched.
func (r *Repository) SaveConverted(ctx context.Context, p Package) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const update = `
		UPDATE consolidation_packages
		SET assets_conv = $2, liabilities_conv = $3, equity_conv = $4,
			revenue_conv = $5, expenses_conv = $6, net_income_conv = $7,
			translation_diff = $8, updated_at = now()
		WHERE id = $1`
	if _, err := tx.Exec(ctx, update, p.ID,
		p.TotalAssetsConverted.String(), p.TotalLiabilitiesConverted.String(),
		p.TotalEquityConverted.String(), p.TotalRevenueConverted.String(),
		p.TotalExpensesConverted.String(), p.NetIncomeConverted.String(),
		p.TranslationDifference.String()); err != nil {
		return err
	}
	for _, line := range p.Lines {
		if _, err := tx.Exec(ctx,
			`UPDATE package_lines SET amount_conv = $3 WHERE package_id = $1 AND account_code = $2`,
			p.ID, line.AccountCode, line.AmountConverted.String()); err != nil {
			return err
		}
	}
	for _, ic := range p.Intercompany {
		if _, err := tx.Exec(ctx,
			`UPDATE package_intercompany SET amount_conv = $4
			 WHERE package_id = $1 AND counterparty_entity_id = $2 AND ic_type = $3`,
			p.ID, ic.CounterpartyEntityID, ic.Type, ic.AmountConverted.String()); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) listLines(ctx context.Context, packageID int64) ([]TrialBalanceLine, error) {
	const query = `
		SELECT id, account_code, account_name, nature, amount_local, amount_conv
		FROM package_lines WHERE package_id = $1 ORDER BY account_code`
	rows, err := r.pool.Query(ctx, query, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrialBalanceLine
	for rows.Next() {
		var line TrialBalanceLine
		var local, conv string
		if err := rows.Scan(&line.ID, &line.AccountCode, &line.AccountName, &line.Nature, &local, &conv); err != nil {
			return nil, err
		}
		if line.AmountLocal, err = decimal.NewFromString(local); err != nil {
			return nil, err
		}
		if line.AmountConverted, err = decimal.NewFromString(conv); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

func (r *Repository) listIntercompany(ctx context.Context, packageID int64) ([]IntercompanyBalance, error) {
	const query = `
		SELECT id, counterparty_entity_id, ic_type, amount_local, amount_conv
		FROM package_intercompany WHERE package_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IntercompanyBalance
	for rows.Next() {
		var ic IntercompanyBalance
		var local, conv string
		if err := rows.Scan(&ic.ID, &ic.CounterpartyEntityID, &ic.Type, &local, &conv); err != nil {
			return nil, err
		}
		if ic.AmountLocal, err = decimal.NewFromString(local); err != nil {
			return nil, err
		}
		if ic.AmountConverted, err = decimal.NewFromString(conv); err != nil {
			return nil, err
		}
		out = append(out, ic)
	}
	return out, rows.Err()
}
