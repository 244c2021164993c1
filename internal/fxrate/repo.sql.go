package fxrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository provides persistence for FX quotes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertQuote stores or replaces the quote for a pair/date.
func (r *Repository) UpsertQuote(ctx context.Context, q Quote) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("fxrate: repository not initialised")
	}
	const query = `
		INSERT INTO fx_quotes (from_ccy, to_ccy, as_of, closing_rate, average_rate, historical_rate)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (from_ccy, to_ccy, as_of)
		DO UPDATE SET closing_rate = EXCLUDED.closing_rate,
		              average_rate = EXCLUDED.average_rate,
		              historical_rate = EXCLUDED.historical_rate`
	_, err := r.pool.Exec(ctx, query, q.From, q.To, q.AsOf,
		q.Closing.String(), q.Average.String(), q.Historical.String())
	return err
}

// GetQuote fetches the quote for an exact pair/date.
func (r *Repository) GetQuote(ctx context.Context, from, to string, asOf time.Time) (Quote, error) {
	if r == nil || r.pool == nil {
		return Quote{}, fmt.Errorf("fxrate: repository not initialised")
	}
	const query = `
		SELECT closing_rate, average_rate, historical_rate
		FROM fx_quotes
		WHERE from_ccy = $1 AND to_ccy = $2 AND as_of = $3`
	var closing, average, historical string
	if err := r.pool.QueryRow(ctx, query, from, to, asOf).Scan(&closing, &average, &historical); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, fmt.Errorf("%w: %s/%s @ %s", ErrRateNotFound, from, to, asOf.Format("2006-01-02"))
		}
		return Quote{}, err
	}
	q := Quote{From: from, To: to, AsOf: asOf}
	var err error
	if q.Closing, err = decimal.NewFromString(closing); err != nil {
		return Quote{}, fmt.Errorf("fxrate: parse closing: %w", err)
	}
	if q.Average, err = decimal.NewFromString(average); err != nil {
		return Quote{}, fmt.Errorf("fxrate: parse average: %w", err)
	}
	if q.Historical, err = decimal.NewFromString(historical); err != nil {
		return Quote{}, fmt.Errorf("fxrate: parse historical: %w", err)
	}
	return q, nil
}

// ListQuotes returns all quotes for a date, ordered by pair.
func (r *Repository) ListQuotes(ctx context.Context, asOf time.Time) ([]Quote, error) {
	const query = `
		SELECT from_ccy, to_ccy, closing_rate, average_rate, historical_rate
		FROM fx_quotes
		WHERE as_of = $1
		ORDER BY from_ccy, to_ccy`
	rows, err := r.pool.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []Quote
	for rows.Next() {
		var q Quote
		var closing, average, historical string
		if err := rows.Scan(&q.From, &q.To, &closing, &average, &historical); err != nil {
			return nil, err
		}
		q.AsOf = asOf
		if q.Closing, err = decimal.NewFromString(closing); err != nil {
			return nil, err
		}
		if q.Average, err = decimal.NewFromString(average); err != nil {
			return nil, err
		}
		if q.Historical, err = decimal.NewFromString(historical); err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}
