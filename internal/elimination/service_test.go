package elimination

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/groupledger/groupledger/internal/pack"
	"github.com/groupledger/groupledger/internal/shared"
)

type memoryStore struct {
	nextID  int64
	entries []Entry
}

func (m *memoryStore) ReplaceAutomatic(_ context.Context, consolidationID int64, entries []Entry) ([]Entry, error) {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.ConsolidationID != consolidationID || !e.IsAutomatic {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	var stored []Entry
	for _, e := range entries {
		m.nextID++
		e.ID = m.nextID
		e.Version = 1
		m.entries = append(m.entries, e)
		stored = append(stored, e)
	}
	return stored, nil
}

func (m *memoryStore) InsertManual(_ context.Context, entry Entry) (Entry, error) {
	m.nextID++
	entry.ID = m.nextID
	entry.Version = 1
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *memoryStore) List(_ context.Context, consolidationID int64) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if e.ConsolidationID == consolidationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryStore) MarkValidated(_ context.Context, id, expectedVersion int64) (Entry, error) {
	for i, e := range m.entries {
		if e.ID != id {
			continue
		}
		if e.Version != expectedVersion {
			return Entry{}, shared.ErrStaleVersion
		}
		m.entries[i].IsValidated = true
		m.entries[i].Version++
		return m.entries[i], nil
	}
	return Entry{}, ErrEntryNotFound
}

func reciprocalPackages() []pack.Package {
	return []pack.Package{
		pkgWithInterco(10, pack.IntercompanyBalance{CounterpartyEntityID: 20, Type: pack.IntercoReceivable, AmountConverted: dec("5000")}),
		pkgWithInterco(20, pack.IntercompanyBalance{CounterpartyEntityID: 10, Type: pack.IntercoPayable, AmountConverted: dec("5000")}),
	}
}

func TestServiceGenerateIsIdempotent(t *testing.T) {
	store := &memoryStore{}
	svc := NewService(store, nil)
	ctx := context.Background()

	manual, err := svc.CreateManual(ctx, Entry{
		ConsolidationID: 1,
		Type:            TypeOther,
		EntityID1:       10,
		Description:     "manual margin adjustment",
		Lines: []JournalLine{
			{AccountCode: "ADJ-DR", Debit: dec("100")},
			{AccountCode: "ADJ-CR", Credit: dec("100")},
		},
	})
	require.NoError(t, err)

	first, err := svc.Generate(ctx, 1, reciprocalPackages(), nil, nil)
	require.NoError(t, err)
	require.Len(t, first.Entries, 1)

	second, err := svc.Generate(ctx, 1, reciprocalPackages(), nil, nil)
	require.NoError(t, err)
	require.Len(t, second.Entries, 1)
	require.Equal(t, first.Entries[0].SourceKey, second.Entries[0].SourceKey)

	all, err := svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 2)
	var manualSurvived bool
	for _, e := range all {
		if e.ID == manual.ID {
			manualSurvived = true
		}
	}
	require.True(t, manualSurvived)
}

func TestServiceGenerateRejectsUnvalidatedPackage(t *testing.T) {
	store := &memoryStore{}
	svc := NewService(store, nil)

	packages := reciprocalPackages()
	packages[1].Status = pack.StatusSubmitted

	_, err := svc.Generate(context.Background(), 1, packages, nil, nil)
	require.ErrorIs(t, err, shared.ErrWorkflow)
	require.Empty(t, store.entries)
}

func TestServiceCreateManualRejectsUnbalanced(t *testing.T) {
	svc := NewService(&memoryStore{}, nil)

	_, err := svc.CreateManual(context.Background(), Entry{
		ConsolidationID: 1,
		Type:            TypeOther,
		EntityID1:       10,
		Description:     "lopsided",
		Lines: []JournalLine{
			{AccountCode: "A", Debit: dec("100")},
			{AccountCode: "B", Credit: dec("90")},
		},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceValidateEntryStaleVersion(t *testing.T) {
	store := &memoryStore{}
	svc := NewService(store, nil)
	ctx := context.Background()

	entry, err := svc.CreateManual(ctx, Entry{
		ConsolidationID: 1,
		Type:            TypeOther,
		EntityID1:       10,
		Description:     "manual",
		Lines: []JournalLine{
			{AccountCode: "A", Debit: dec("10")},
			{AccountCode: "B", Credit: dec("10")},
		},
	})
	require.NoError(t, err)

	validated, err := svc.ValidateEntry(ctx, entry.ID, entry.Version)
	require.NoError(t, err)
	require.True(t, validated.IsValidated)

	_, err = svc.ValidateEntry(ctx, entry.ID, entry.Version)
	require.True(t, errors.Is(err, shared.ErrStaleVersion))
}
