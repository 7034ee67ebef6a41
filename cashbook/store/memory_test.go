package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gemiprint/ledger-engine/cashbook"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func testEntry(id string, seq int64, date cashbook.Date) cashbook.Entry {
	return cashbook.Entry{
		ID:         cashbook.EntryID(id),
		OccurredOn: date,
		RecordedAt: t0.Add(time.Duration(seq) * time.Minute),
		Sequence:   seq,
		Category:   cashbook.CategoryRevenue,
		Debit:      decimal.NewFromInt(1000),
		Credit:     decimal.Zero,
	}
}

func TestMemory_InsertGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	day := cashbook.NewDate(2025, time.March, 1)

	require.NoError(t, m.Insert(ctx, testEntry("a", 1, day)))

	err := m.Insert(ctx, testEntry("a", 2, day))
	assert.ErrorIs(t, err, cashbook.ErrInvalidEntry)

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Sequence)

	_, err = m.Get(ctx, "missing")
	assert.ErrorIs(t, err, cashbook.ErrEntryNotFound)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Insert(ctx, testEntry("a", 1, cashbook.NewDate(2025, time.March, 1))))

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	got.Values.Set(cashbook.KindBalance, decimal.NewFromInt(99))
	got.Pinned.Pin(cashbook.KindBalance)

	again, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, again.Values.Get(cashbook.KindBalance).IsZero())
	assert.False(t, again.Pinned.Any())
}

func TestMemory_LoadActiveIsOrdered(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	day := cashbook.NewDate(2025, time.March, 1)

	require.NoError(t, m.Insert(ctx, testEntry("c", 3, day)))
	require.NoError(t, m.Insert(ctx, testEntry("a", 1, day)))
	require.NoError(t, m.Insert(ctx, testEntry("b", 2, day)))

	entries, err := m.LoadActive(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, cashbook.EntryID("a"), entries[0].ID)
	assert.Equal(t, cashbook.EntryID("c"), entries[2].ID)

	maxSeq, err := m.MaxSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), maxSeq)
}

func TestMemory_SaveValuesOnlyTouchesValues(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Insert(ctx, testEntry("a", 1, cashbook.NewDate(2025, time.March, 1))))

	e := testEntry("a", 1, cashbook.NewDate(2025, time.March, 1))
	e.Purpose = "ignored"
	e.Values.Set(cashbook.KindBalance, decimal.NewFromInt(1000))
	require.NoError(t, m.SaveValues(ctx, []cashbook.Entry{e}))

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.Values.Get(cashbook.KindBalance).Equal(decimal.NewFromInt(1000)))
	assert.Empty(t, got.Purpose)

	err = m.SaveValues(ctx, []cashbook.Entry{testEntry("missing", 9, got.OccurredOn)})
	assert.ErrorIs(t, err, cashbook.ErrEntryNotFound)
}

func TestMemory_ArchiveAndRestore(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	mar1 := cashbook.NewDate(2025, time.March, 1)
	mar2 := cashbook.NewDate(2025, time.March, 2)
	apr1 := cashbook.NewDate(2025, time.April, 1)

	require.NoError(t, m.Insert(ctx, testEntry("a", 1, mar1)))
	require.NoError(t, m.Insert(ctx, testEntry("b", 2, mar2)))
	require.NoError(t, m.Insert(ctx, testEntry("c", 3, apr1)))

	ref := cashbook.ArchiveRef{Label: "March", At: t0.Add(time.Hour)}
	n, err := m.ArchiveRange(ctx, mar1, cashbook.NewDate(2025, time.March, 31), ref)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	active, err := m.LoadActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	archives, err := m.ListArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	assert.Equal(t, 2, archives[0].Count)
	assert.Equal(t, mar1, archives[0].FirstDate)
	assert.Equal(t, mar2, archives[0].LastDate)

	// The timestamp is part of the batch identity.
	n, err = m.Restore(ctx, cashbook.ArchiveRef{Label: "March", At: t0})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = m.Restore(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	archives, err = m.ListArchives(ctx)
	require.NoError(t, err)
	assert.Empty(t, archives)
}

func TestMemory_DeleteActive(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	mar1 := cashbook.NewDate(2025, time.March, 1)

	require.NoError(t, m.Insert(ctx, testEntry("a", 1, mar1)))
	require.NoError(t, m.Insert(ctx, testEntry("b", 2, cashbook.NewDate(2025, time.April, 1))))
	_, err := m.ArchiveRange(ctx, mar1, mar1, cashbook.ArchiveRef{Label: "March", At: t0})
	require.NoError(t, err)

	n, err := m.DeleteActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = m.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	// GIVEN: A store with one row
	// WHEN: A transaction inserts a row then fails
	// THEN: The insert is discarded

	tm := NewTxMemory()
	ctx := context.Background()
	day := cashbook.NewDate(2025, time.March, 1)
	require.NoError(t, tm.Insert(ctx, testEntry("a", 1, day)))

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(s cashbook.Store) error {
		require.NoError(t, s.Insert(ctx, testEntry("b", 2, day)))
		_, err := s.Delete(ctx, []cashbook.EntryID{"a"})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, err := tm.LoadActive(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, cashbook.EntryID("a"), entries[0].ID)
}

func TestTxMemory_CommitOnSuccess(t *testing.T) {
	tm := NewTxMemory()
	ctx := context.Background()

	err := tm.WithTx(ctx, func(s cashbook.Store) error {
		return s.Insert(ctx, testEntry("a", 1, cashbook.NewDate(2025, time.March, 1)))
	})
	require.NoError(t, err)

	_, err = tm.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestTxMemory_RollbackOnCancelledContext(t *testing.T) {
	tm := NewTxMemory()
	ctx, cancel := context.WithCancel(context.Background())

	err := tm.WithTx(ctx, func(s cashbook.Store) error {
		cancel()
		return s.Insert(ctx, testEntry("a", 1, cashbook.NewDate(2025, time.March, 1)))
	})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = tm.Get(context.Background(), "a")
	assert.ErrorIs(t, err, cashbook.ErrEntryNotFound)
}
