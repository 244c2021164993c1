package fxrate

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Store describes the persistence behaviour required by the service.
type Store interface {
	UpsertQuote(ctx context.Context, q Quote) error
	GetQuote(ctx context.Context, from, to string, asOf time.Time) (Quote, error)
	ListQuotes(ctx context.Context, asOf time.Time) ([]Quote, error)
}

// Service serves exchange-rate lookups with a redis read-through cache.
type Service struct {
	store         Store
	cache         *redis.Client
	logger        *slog.Logger
	lookupTimeout time.Duration
	cacheTTL      time.Duration
}

// NewService constructs the FX service. The cache client may be nil, in which
// case every lookup hits the store.
func NewService(store Store, cache *redis.Client, logger *slog.Logger, lookupTimeout time.Duration) *Service {
	if lookupTimeout <= 0 {
		lookupTimeout = 5 * time.Second
	}
	return &Service{
		store:         store,
		cache:         cache,
		logger:        logger,
		lookupTimeout: lookupTimeout,
		cacheTTL:      12 * time.Hour,
	}
}

func cacheKey(from, to string, asOf time.Time) string {
	return fmt.Sprintf("fx:%s:%s:%s", from, to, asOf.Format("2006-01-02"))
}

// Lookup returns the quote for a pair/date. It is the narrow getRate contract
// the consolidation pipeline depends on: a miss is ErrRateNotFound, never a
// stale substitute, and the call is bounded by the configured lookup timeout.
func (s *Service) Lookup(ctx context.Context, from, to string, asOf time.Time) (Quote, error) {
	if s == nil || s.store == nil {
		return Quote{}, fmt.Errorf("fxrate: service not initialised")
	}
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == to {
		return identityQuote(from, asOf), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	key := cacheKey(from, to, asOf)
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key).Result()
		if err == nil {
			var q Quote
			if err := json.Unmarshal([]byte(raw), &q); err == nil {
				return q, nil
			}
		}
	}

	q, err := s.store.GetQuote(ctx, from, to, asOf)
	if err != nil {
		return Quote{}, err
	}
	if s.cache != nil {
		if data, err := json.Marshal(q); err == nil {
			if err := s.cache.Set(ctx, key, data, s.cacheTTL).Err(); err != nil && s.logger != nil {
				s.logger.Warn("fx cache set failed", slog.String("key", key), slog.Any("error", err))
			}
		}
	}
	return q, nil
}

// Upsert validates and stores a quote, invalidating any cached copy.
func (s *Service) Upsert(ctx context.Context, q Quote) error {
	q.From = strings.ToUpper(strings.TrimSpace(q.From))
	q.To = strings.ToUpper(strings.TrimSpace(q.To))
	if err := q.Validate(); err != nil {
		return err
	}
	if err := s.store.UpsertQuote(ctx, q); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, cacheKey(q.From, q.To, q.AsOf)).Err()
	}
	return nil
}

// ImportCSV ingests quotes from a CSV stream with the header
// date,from,to,closing,average,historical. Returns the number imported.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("fxrate: read csv header: %w", err)
	}
	if len(header) < 6 {
		return 0, fmt.Errorf("fxrate: csv header must be date,from,to,closing,average,historical")
	}

	imported := 0
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("fxrate: read csv line %d: %w", line, err)
		}
		q, err := parseCSVRecord(record)
		if err != nil {
			return imported, fmt.Errorf("fxrate: csv line %d: %w", line, err)
		}
		if err := s.Upsert(ctx, q); err != nil {
			return imported, fmt.Errorf("fxrate: csv line %d: %w", line, err)
		}
		imported++
	}
	return imported, nil
}

// ValidateCoverage reports the pairs with no quote on the given date.
func (s *Service) ValidateCoverage(ctx context.Context, pairs []string, asOf time.Time) (CoverageSummary, error) {
	summary := CoverageSummary{OK: true}
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), "/", 2)
		if len(parts) != 2 {
			return CoverageSummary{}, fmt.Errorf("fxrate: malformed pair %q", pair)
		}
		q, err := s.Lookup(ctx, parts[0], parts[1], asOf)
		if err != nil {
			if errors.Is(err, ErrRateNotFound) {
				summary.OK = false
				summary.Gaps = append(summary.Gaps, Gap{Pair: pair, AsOf: asOf})
				continue
			}
			return CoverageSummary{}, err
		}
		summary.Available = append(summary.Available, q)
	}
	return summary, nil
}

func parseCSVRecord(record []string) (Quote, error) {
	if len(record) < 6 {
		return Quote{}, fmt.Errorf("expected 6 fields, got %d", len(record))
	}
	asOf, err := time.Parse("2006-01-02", strings.TrimSpace(record[0]))
	if err != nil {
		return Quote{}, fmt.Errorf("parse date: %w", err)
	}
	q := Quote{From: record[1], To: record[2], AsOf: asOf}
	if q.Closing, err = decimal.NewFromString(strings.TrimSpace(record[3])); err != nil {
		return Quote{}, fmt.Errorf("parse closing: %w", err)
	}
	if q.Average, err = decimal.NewFromString(strings.TrimSpace(record[4])); err != nil {
		return Quote{}, fmt.Errorf("parse average: %w", err)
	}
	if q.Historical, err = decimal.NewFromString(strings.TrimSpace(record[5])); err != nil {
		return Quote{}, fmt.Errorf("parse historical: %w", err)
	}
	return q, nil
}

func identityQuote(code string, asOf time.Time) Quote {
	one := decimal.NewFromInt(1)
	return Quote{From: code, To: code, AsOf: asOf, Closing: one, Average: one, Historical: one}
}
