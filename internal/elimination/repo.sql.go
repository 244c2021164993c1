package elimination

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/shared"
)

// Repository persists elimination entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `id, consolidation_id, entry_type, entity_id_1, entity_id_2, amount,
	description, is_automatic, is_validated, source_key, version, created_at, updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var amount string
	var entity2 *int64
	var sourceKey *string
	err := row.Scan(&e.ID, &e.ConsolidationID, &e.Type, &e.EntityID1, &entity2, &amount,
		&e.Description, &e.IsAutomatic, &e.IsValidated, &sourceKey, &e.Version,
		&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %w", ErrEntryNotFound, shared.ErrNotFound)
	}
	if err != nil {
		return Entry{}, err
	}
	if entity2 != nil {
		e.EntityID2 = *entity2
	}
	if sourceKey != nil {
		e.SourceKey = *sourceKey
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return Entry{}, fmt.Errorf("elimination: parse amount: %w", err)
	}
	return e, nil
}

// ReplaceAutomatic swaps all automatic entries of a run for the new set in a
// single transaction. Manual entries are untouched.
func (r *Repository) ReplaceAutomatic(ctx context.Context, consolidationID int64, entries []Entry) ([]Entry, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM elimination_lines
		WHERE entry_id IN (SELECT id FROM elimination_entries WHERE consolidation_id = $1 AND is_automatic)`,
		consolidationID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM elimination_entries WHERE consolidation_id = $1 AND is_automatic`,
		consolidationID); err != nil {
		return nil, err
	}

	stored := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		inserted, err := insertEntry(ctx, tx, entry)
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

// InsertManual stores a manual entry with its lines.
func (r *Repository) InsertManual(ctx context.Context, entry Entry) (Entry, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Entry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	inserted, err := insertEntry(ctx, tx, entry)
	if err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return inserted, nil
}

func insertEntry(ctx context.Context, tx pgx.Tx, entry Entry) (Entry, error) {
	const query = `
		INSERT INTO elimination_entries (consolidation_id, entry_type, entity_id_1, entity_id_2,
			amount, description, is_automatic, is_validated, source_key, version)
		VALUES ($1, $2, $3, NULLIF($4, 0), $5, $6, $7, $8, NULLIF($9, ''), 1)
		RETURNING ` + entryColumns
	inserted, err := scanEntry(tx.QueryRow(ctx, query,
		entry.ConsolidationID, entry.Type, entry.EntityID1, entry.EntityID2,
		entry.Amount.String(), entry.Description, entry.IsAutomatic, entry.IsValidated,
		entry.SourceKey))
	if err != nil {
		return Entry{}, err
	}
	for _, line := range entry.Lines {
		const insertLine = `
			INSERT INTO elimination_lines (entry_id, account_code, label, debit, credit)
			VALUES ($1, $2, $3, $4, $5)`
		if _, err := tx.Exec(ctx, insertLine, inserted.ID, line.AccountCode, line.Label,
			line.Debit.String(), line.Credit.String()); err != nil {
			return Entry{}, err
		}
	}
	inserted.Lines = entry.Lines
	return inserted, nil
}

// List returns all entries of a run with their lines.
func (r *Repository) List(ctx context.Context, consolidationID int64) ([]Entry, error) {
	const query = `SELECT ` + entryColumns + `
		FROM elimination_entries WHERE consolidation_id = $1 ORDER BY is_automatic DESC, source_key, id`
	rows, err := r.pool.Query(ctx, query, consolidationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Lines, err = r.listLines(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MarkValidated flags an entry as reviewed, version-guarded.
func (r *Repository) MarkValidated(ctx context.Context, id, expectedVersion int64) (Entry, error) {
	const query = `
		UPDATE elimination_entries
		SET is_validated = true, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + entryColumns
	e, err := scanEntry(r.pool.QueryRow(ctx, query, id, expectedVersion))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			var exists bool
			scanErr := r.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM elimination_entries WHERE id = $1)`, id).Scan(&exists)
			if scanErr == nil && exists {
				return Entry{}, fmt.Errorf("%w: elimination entry %d", shared.ErrStaleVersion, id)
			}
		}
		return Entry{}, err
	}
	e.Lines, err = r.listLines(ctx, id)
	return e, err
}

func (r *Repository) listLines(ctx context.Context, entryID int64) ([]JournalLine, error) {
	const query = `
		SELECT account_code, label, debit, credit
		FROM elimination_lines WHERE entry_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JournalLine
	for rows.Next() {
		var line JournalLine
		var debit, credit string
		if err := rows.Scan(&line.AccountCode, &line.Label, &debit, &credit); err != nil {
			return nil, err
		}
		if line.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, err
		}
		if line.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}
