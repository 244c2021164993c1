package goodwill

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/shared"
)

// Repository persists goodwill calculations and impairment tests.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const calcColumns = `id, consolidation_id, participation_id, acquisition_cost,
	assets_fair_value, liabilities_fair_value, ownership_pct, group_share_net_assets,
	goodwill_amount, badwill_amount, cumulative_impairment, current_period_impairment,
	carrying_value, version, created_at, updated_at`

func scanCalculation(row pgx.Row) (Calculation, error) {
	var c Calculation
	amounts := make([]string, 10)
	err := row.Scan(&c.ID, &c.ConsolidationID, &c.ParticipationID, &amounts[0],
		&amounts[1], &amounts[2], &amounts[3], &amounts[4],
		&amounts[5], &amounts[6], &amounts[7], &amounts[8],
		&amounts[9], &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Calculation{}, fmt.Errorf("%w: %w", ErrCalculationNotFound, shared.ErrNotFound)
	}
	if err != nil {
		return Calculation{}, err
	}
	targets := []*decimal.Decimal{&c.AcquisitionCost, &c.AssetsFairValue, &c.LiabilitiesFairValue,
		&c.OwnershipPct, &c.GroupShareNetAssets, &c.GoodwillAmount, &c.BadwillAmount,
		&c.CumulativeImpairment, &c.CurrentPeriodImpairment, &c.CarryingValue}
	for i, raw := range amounts {
		if *targets[i], err = decimal.NewFromString(raw); err != nil {
			return Calculation{}, fmt.Errorf("goodwill: parse amount: %w", err)
		}
	}
	return c, nil
}

// Replace swaps the calculation set of a run in one transaction.
func (r *Repository) Replace(ctx context.Context, consolidationID int64, calcs []Calculation) ([]Calculation, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM goodwill_impairments
		WHERE calculation_id IN (SELECT id FROM goodwill_calculations WHERE consolidation_id = $1)`,
		consolidationID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM goodwill_calculations WHERE consolidation_id = $1`, consolidationID); err != nil {
		return nil, err
	}

	stored := make([]Calculation, 0, len(calcs))
	for _, calc := range calcs {
		const query = `
			INSERT INTO goodwill_calculations (consolidation_id, participation_id, acquisition_cost,
				assets_fair_value, liabilities_fair_value, ownership_pct, group_share_net_assets,
				goodwill_amount, badwill_amount, cumulative_impairment, current_period_impairment,
				carrying_value, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)
			RETURNING ` + calcColumns
		inserted, err := scanCalculation(tx.QueryRow(ctx, query,
			calc.ConsolidationID, calc.ParticipationID, calc.AcquisitionCost.String(),
			calc.AssetsFairValue.String(), calc.LiabilitiesFairValue.String(),
			calc.OwnershipPct.String(), calc.GroupShareNetAssets.String(),
			calc.GoodwillAmount.String(), calc.BadwillAmount.String(),
			calc.CumulativeImpairment.String(), calc.CurrentPeriodImpairment.String(),
			calc.CarryingValue.String()))
		if err != nil {
			return nil, err
		}
		stored = append(stored, inserted)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return stored, nil
}

// Get returns one calculation.
func (r *Repository) Get(ctx context.Context, id int64) (Calculation, error) {
	const query = `SELECT ` + calcColumns + ` FROM goodwill_calculations WHERE id = $1`
	return scanCalculation(r.pool.QueryRow(ctx, query, id))
}

// List returns the calculations of a run.
func (r *Repository) List(ctx context.Context, consolidationID int64) ([]Calculation, error) {
	const query = `SELECT ` + calcColumns + `
		FROM goodwill_calculations WHERE consolidation_id = $1 ORDER BY participation_id`
	rows, err := r.pool.Query(ctx, query, consolidationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Calculation
	for rows.Next() {
		c, err := scanCalculation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveImpairment persists the updated calculation and the test event in one
// transaction, version-guarded.
func (r *Repository) SaveImpairment(ctx context.Context, calc Calculation, expectedVersion int64, test ImpairmentTest) (Calculation, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Calculation{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `
		UPDATE goodwill_calculations
		SET current_period_impairment = $3, carrying_value = $4, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + calcColumns
	updated, err := scanCalculation(tx.QueryRow(ctx, query, calc.ID, expectedVersion,
		calc.CurrentPeriodImpairment.String(), calc.CarryingValue.String()))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			var exists bool
			scanErr := r.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM goodwill_calculations WHERE id = $1)`, calc.ID).Scan(&exists)
			if scanErr == nil && exists {
				return Calculation{}, fmt.Errorf("%w: goodwill calculation %d", shared.ErrStaleVersion, calc.ID)
			}
		}
		return Calculation{}, err
	}
	const insertTest = `
		INSERT INTO goodwill_impairments (calculation_id, test_date, amount, conclusion, clamped)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.Exec(ctx, insertTest, test.CalculationID, test.TestDate,
		test.Amount.String(), test.Conclusion, test.Clamped); err != nil {
		return Calculation{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Calculation{}, err
	}
	return updated, nil
}

// ListImpairments returns the recorded tests of a calculation.
func (r *Repository) ListImpairments(ctx context.Context, calculationID int64) ([]ImpairmentTest, error) {
	const query = `
		SELECT id, calculation_id, test_date, amount, conclusion, clamped, created_at
		FROM goodwill_impairments WHERE calculation_id = $1 ORDER BY test_date, id`
	rows, err := r.pool.Query(ctx, query, calculationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ImpairmentTest
	for rows.Next() {
		var t ImpairmentTest
		var amount string
		if err := rows.Scan(&t.ID, &t.CalculationID, &t.TestDate, &amount, &t.Conclusion,
			&t.Clamped, &t.CreatedAt); err != nil {
			return nil, err
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
