package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/shared"
)

// Repository persists reconciliation pairs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const pairColumns = `id, consolidation_id, entity_id_1, entity_id_2, transaction_type,
	amount_1, amount_2, difference, difference_pct, tolerance_amount, tolerance_pct,
	is_within_tolerance, is_reconciled, difference_reason, action_taken, reconciled_at,
	version, created_at, updated_at`

func scanPair(row pgx.Row) (Reconciliation, error) {
	var p Reconciliation
	amounts := make([]string, 6)
	var reason, action *string
	err := row.Scan(&p.ID, &p.ConsolidationID, &p.EntityID1, &p.EntityID2, &p.Type,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4], &amounts[5],
		&p.IsWithinTolerance, &p.IsReconciled, &reason, &action, &p.ReconciledAt,
		&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reconciliation{}, fmt.Errorf("%w: %w", ErrReconciliationNotFound, shared.ErrNotFound)
	}
	if err != nil {
		return Reconciliation{}, err
	}
	if reason != nil {
		p.DifferenceReason = *reason
	}
	if action != nil {
		p.ActionTaken = *action
	}
	targets := []*decimal.Decimal{&p.Amount1, &p.Amount2, &p.Difference, &p.DifferencePct,
		&p.ToleranceAmount, &p.TolerancePct}
	for i, raw := range amounts {
		if *targets[i], err = decimal.NewFromString(raw); err != nil {
			return Reconciliation{}, fmt.Errorf("reconciliation: parse amount: %w", err)
		}
	}
	return p, nil
}

// Replace swaps the full pair set of a run in one transaction.
func (r *Repository) Replace(ctx context.Context, consolidationID int64, pairs []Reconciliation) ([]Reconciliation, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM reconciliations WHERE consolidation_id = $1`, consolidationID); err != nil {
		return nil, err
	}
	stored := make([]Reconciliation, 0, len(pairs))
	for _, pair := range pairs {
		const query = `
			INSERT INTO reconciliations (consolidation_id, entity_id_1, entity_id_2, transaction_type,
				amount_1, amount_2, difference, difference_pct, tolerance_amount, tolerance_pct,
				is_within_tolerance, is_reconciled, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false, 1)
			RETURNING ` + pairColumns
		inserted, err := scanPair(tx.QueryRow(ctx, query,
			pair.ConsolidationID, pair.EntityID1, pair.EntityID2, pair.Type,
			pair.Amount1.String(), pair.Amount2.String(), pair.Difference.String(),
			pair.DifferencePct.String(), pair.ToleranceAmount.String(), pair.TolerancePct.String(),
			pair.IsWithinTolerance))
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

// Get returns one pair.
func (r *Repository) Get(ctx context.Context, id int64) (Reconciliation, error) {
	const query = `SELECT ` + pairColumns + ` FROM reconciliations WHERE id = $1`
	return scanPair(r.pool.QueryRow(ctx, query, id))
}

// List returns all pairs of a run.
func (r *Repository) List(ctx context.Context, consolidationID int64) ([]Reconciliation, error) {
	const query = `SELECT ` + pairColumns + `
		FROM reconciliations WHERE consolidation_id = $1
		ORDER BY transaction_type, entity_id_1, entity_id_2`
	rows, err := r.pool.Query(ctx, query, consolidationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reconciliation
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkReconciled signs off one pair, version-guarded.
func (r *Repository) MarkReconciled(ctx context.Context, id, expectedVersion int64, reason, action string, at time.Time) (Reconciliation, error) {
	const query = `
		UPDATE reconciliations
		SET is_reconciled = true, difference_reason = NULLIF($3, ''), action_taken = NULLIF($4, ''),
			reconciled_at = $5, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + pairColumns
	pair, err := scanPair(r.pool.QueryRow(ctx, query, id, expectedVersion, reason, action, at))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			var exists bool
			scanErr := r.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM reconciliations WHERE id = $1)`, id).Scan(&exists)
			if scanErr == nil && exists {
				return Reconciliation{}, fmt.Errorf("%w: reconciliation %d", shared.ErrStaleVersion, id)
			}
		}
		return Reconciliation{}, err
	}
	return pair, nil
}
