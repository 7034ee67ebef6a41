package cashbook_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gemiprint/ledger-engine/cashbook"
	"github.com/gemiprint/ledger-engine/cashbook/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*cashbook.Ledger, *store.TxMemory) {
	t.Helper()
	mem := store.NewTxMemory()
	ledger := cashbook.NewLedger(mem)

	var (
		mu    sync.Mutex
		clock = baseTime
		next  int
	)
	ledger.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	ledger.NewID = func() cashbook.EntryID {
		mu.Lock()
		defer mu.Unlock()
		next++
		return cashbook.EntryID(fmt.Sprintf("e%02d", next))
	}
	return ledger, mem
}

func entry(date cashbook.Date, category cashbook.Category, debit, credit string) cashbook.NewEntry {
	return cashbook.NewEntry{
		OccurredOn: date,
		Category:   category,
		Debit:      amt(debit),
		Credit:     amt(credit),
		Purpose:    "test",
	}
}

func mustCreate(t *testing.T, l *cashbook.Ledger, n cashbook.NewEntry) cashbook.Entry {
	t.Helper()
	e, err := l.Create(context.Background(), n)
	require.NoError(t, err)
	return e
}

func activeBalances(t *testing.T, l *cashbook.Ledger) []string {
	t.Helper()
	entries, err := l.Active(context.Background())
	require.NoError(t, err)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Values.Get(cashbook.KindBalance).String()
	}
	return out
}

var (
	jan1 = cashbook.NewDate(2025, time.January, 1)
	jan2 = cashbook.NewDate(2025, time.January, 2)
	feb1 = cashbook.NewDate(2025, time.February, 1)
)

// =============================================================================
// CREATE
// =============================================================================

func TestLedger_Create_AppendsAndRecalculates(t *testing.T) {
	// GIVEN: An empty ledger
	// WHEN: Creating three revenue entries of 100000
	// THEN: Sequences are 1..3 and balances accumulate

	ledger, _ := newTestLedger(t)

	var created []cashbook.Entry
	for i := 0; i < 3; i++ {
		created = append(created, mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "100000", "0")))
	}

	assert.Equal(t, int64(1), created[0].Sequence)
	assert.Equal(t, int64(3), created[2].Sequence)
	assertAmount(t, "300000", created[2].Values.Get(cashbook.KindBalance), "returned entry carries computed values")
	assert.Equal(t, []string{"100000", "200000", "300000"}, activeBalances(t, ledger))
}

func TestLedger_Create_Validation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		entry cashbook.NewEntry
	}{
		{"missing date", entry(cashbook.Date{}, cashbook.CategoryRevenue, "1", "0")},
		{"unknown category", entry(jan1, cashbook.Category("gift"), "1", "0")},
		{"negative debit", entry(jan1, cashbook.CategoryRevenue, "-1", "0")},
		{"both sides", entry(jan1, cashbook.CategoryRevenue, "1", "1")},
		{"both zero", entry(jan1, cashbook.CategoryRevenue, "0", "0")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Create(ctx, tt.entry)
			assert.ErrorIs(t, err, cashbook.ErrInvalidEntry)
			assert.True(t, cashbook.IsClientError(err))
		})
	}

	entries, err := ledger.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// OVERRIDES
// =============================================================================

func TestLedger_Override_ReanchorsFollowingRows(t *testing.T) {
	// GIVEN: Three rows of 100000 (balances 100000, 200000, 300000)
	// WHEN: Pinning row 2's balance to 5,000,000
	// THEN: Row 3's balance becomes 5,100,000

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))
	second := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))
	mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))

	updated, err := ledger.Override(ctx, second.ID, map[cashbook.Kind]decimal.Decimal{
		cashbook.KindBalance: amt("5000000"),
	})
	require.NoError(t, err)

	assert.True(t, updated.Pinned.Has(cashbook.KindBalance))
	assert.Equal(t, []string{"100000", "5000000", "5100000"}, activeBalances(t, ledger))

	// WHEN: A new row is appended
	// THEN: It continues from the re-anchored chain
	mustCreate(t, ledger, entry(jan2, cashbook.CategoryRevenue, "100000", "0"))
	assert.Equal(t, []string{"100000", "5000000", "5100000", "5200000"}, activeBalances(t, ledger))
}

func TestLedger_RemoveOverride_RestoresComputedChain(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))
	second := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))
	mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))

	_, err := ledger.Override(ctx, second.ID, map[cashbook.Kind]decimal.Decimal{
		cashbook.KindBalance: amt("5000000"),
	})
	require.NoError(t, err)

	e, err := ledger.RemoveOverride(ctx, second.ID, cashbook.KindBalance)
	require.NoError(t, err)

	assert.False(t, e.Pinned.Any())
	assert.Equal(t, []string{"100000", "200000", "300000"}, activeBalances(t, ledger))
}

func TestLedger_Override_Errors(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	e := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))

	_, err := ledger.Override(ctx, e.ID, nil)
	assert.ErrorIs(t, err, cashbook.ErrNoChanges)

	_, err = ledger.Override(ctx, e.ID, map[cashbook.Kind]decimal.Decimal{cashbook.NumKinds: amt("1")})
	assert.ErrorIs(t, err, cashbook.ErrUnknownKind)

	_, err = ledger.Override(ctx, "missing", map[cashbook.Kind]decimal.Decimal{cashbook.KindBalance: amt("1")})
	assert.True(t, cashbook.IsNotFound(err))
}

// =============================================================================
// UPDATE / DELETE
// =============================================================================

func TestLedger_Update_Recalculates(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	first := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))
	mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))

	debit := amt("150000")
	purpose := "DP banner"
	updated, err := ledger.Update(ctx, first.ID, cashbook.Patch{Debit: &debit, Purpose: &purpose})
	require.NoError(t, err)

	assert.Equal(t, "DP banner", updated.Purpose)
	assert.Equal(t, []string{"150000", "250000"}, activeBalances(t, ledger))

	_, err = ledger.Update(ctx, first.ID, cashbook.Patch{})
	assert.ErrorIs(t, err, cashbook.ErrNoChanges)

	credit := amt("10")
	_, err = ledger.Update(ctx, first.ID, cashbook.Patch{Credit: &credit})
	assert.ErrorIs(t, err, cashbook.ErrInvalidEntry, "debit and credit cannot both be set")
}

func TestLedger_Delete_Recalculates(t *testing.T) {
	// GIVEN: Three rows of 100000
	// WHEN: Deleting the middle row
	// THEN: Remaining balances are 100000 and 200000

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))
	middle := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))
	mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))

	n, err := ledger.Delete(ctx, middle.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"100000", "200000"}, activeBalances(t, ledger))

	_, err = ledger.Delete(ctx, middle.ID)
	assert.ErrorIs(t, err, cashbook.ErrEntryNotFound)
}

// =============================================================================
// REORDER
// =============================================================================

func TestLedger_Reorder_DoesNotRecalculate(t *testing.T) {
	// GIVEN: A revenue row followed by an expense row
	// WHEN: Reordering so the expense comes first
	// THEN: Order changes but stored values stay as they were,
	//       until an explicit recalculation

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	sale := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))
	rent := mustCreate(t, ledger, entry(jan1, cashbook.CategoryOperatingExpense, "0", "50000"))
	assert.Equal(t, []string{"100000", "50000"}, activeBalances(t, ledger))

	require.NoError(t, ledger.Reorder(ctx, []cashbook.EntryID{rent.ID, sale.ID}))

	entries, err := ledger.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, []cashbook.EntryID{rent.ID, sale.ID}, ids(entries))
	assert.Equal(t, []string{"50000", "100000"}, activeBalances(t, ledger), "values are not recalculated")

	_, err = ledger.Recalculate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"-50000", "50000"}, activeBalances(t, ledger))
}

func TestLedger_Reorder_KeepsUnlistedPositions(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	a := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "1", "0"))
	b := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "2", "0"))
	c := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "3", "0"))

	require.NoError(t, ledger.Reorder(ctx, []cashbook.EntryID{c.ID, a.ID}))

	entries, err := ledger.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, []cashbook.EntryID{c.ID, b.ID, a.ID}, ids(entries))
	assert.Equal(t, int64(2), entries[1].Sequence, "unlisted entry keeps its position")
}

func TestLedger_Reorder_SpreadsCollidingPositions(t *testing.T) {
	// GIVEN: a and b share position 1, c holds position 2
	// WHEN: Reordering b before a, leaving c unlisted
	// THEN: a skips c's position, so no two active entries share one

	ledger, mem := newTestLedger(t)
	ctx := context.Background()

	a := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "1", "0"))
	b := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "2", "0"))
	c := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "3", "0"))
	require.NoError(t, mem.SetSequences(ctx, map[cashbook.EntryID]int64{b.ID: 1, c.ID: 2}))

	require.NoError(t, ledger.Reorder(ctx, []cashbook.EntryID{b.ID, a.ID}))

	r, err := ledger.Recalculate(ctx)
	require.NoError(t, err)
	assert.Empty(t, r.Collisions)
	assert.Equal(t, []cashbook.EntryID{b.ID, c.ID, a.ID}, ids(r.Entries))

	got, err := ledger.Entry(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Sequence, "unlisted entry keeps its position")
}

func TestLedger_Reorder_AvoidsPositionSharedWithUnlistedEntry(t *testing.T) {
	// GIVEN: a (listed) shares position 1 with c (unlisted)
	// WHEN: Reordering a and b
	// THEN: The listed entries move off c's position

	ledger, mem := newTestLedger(t)
	ctx := context.Background()

	a := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "1", "0"))
	b := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "2", "0"))
	c := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "3", "0"))
	require.NoError(t, mem.SetSequences(ctx, map[cashbook.EntryID]int64{c.ID: 1}))

	require.NoError(t, ledger.Reorder(ctx, []cashbook.EntryID{b.ID, a.ID}))

	r, err := ledger.Recalculate(ctx)
	require.NoError(t, err)
	assert.Empty(t, r.Collisions)
	assert.Equal(t, []cashbook.EntryID{c.ID, b.ID, a.ID}, ids(r.Entries))
}

func TestLedger_Reorder_Errors(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	a := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "1", "0"))
	old := mustCreate(t, ledger, entry(feb1, cashbook.CategoryRevenue, "1", "0"))
	_, _, err := ledger.Archive(ctx, feb1, feb1, "Feb")
	require.NoError(t, err)

	assert.ErrorIs(t, ledger.Reorder(ctx, nil), cashbook.ErrInvalidOrder)
	assert.ErrorIs(t, ledger.Reorder(ctx, []cashbook.EntryID{a.ID, a.ID}), cashbook.ErrInvalidOrder)
	assert.ErrorIs(t, ledger.Reorder(ctx, []cashbook.EntryID{a.ID, old.ID}), cashbook.ErrInvalidOrder)
	assert.True(t, cashbook.IsNotFound(ledger.Reorder(ctx, []cashbook.EntryID{"missing"})))
}

// =============================================================================
// ARCHIVE / RESTORE
// =============================================================================

func TestLedger_Archive_FreezesRows(t *testing.T) {
	// GIVEN: Two January rows and one February row
	// WHEN: Archiving January
	// THEN: The archived rows keep their values; the February row is not
	//       touched until an explicit recalculation

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))
	mustCreate(t, ledger, entry(jan2, cashbook.CategoryRevenue, "100000", "0"))
	feb := mustCreate(t, ledger, entry(feb1, cashbook.CategoryRevenue, "100000", "0"))

	ref, n, err := ledger.Archive(ctx, jan1, cashbook.NewDate(2025, time.January, 31), "January 2025")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "January 2025", ref.Label)

	assert.Equal(t, []string{"300000"}, activeBalances(t, ledger), "archive does not recalculate")

	_, err = ledger.Recalculate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"100000"}, activeBalances(t, ledger))

	archived, err := ledger.ArchivedEntries(ctx, ref)
	require.NoError(t, err)
	require.Len(t, archived, 2)
	assertAmount(t, "100000", archived[0].Values.Get(cashbook.KindBalance))
	assertAmount(t, "200000", archived[1].Values.Get(cashbook.KindBalance), "archived values are frozen")

	// Archived rows cannot be edited.
	_, err = ledger.Override(ctx, archived[0].ID, map[cashbook.Kind]decimal.Decimal{cashbook.KindBalance: amt("1")})
	assert.ErrorIs(t, err, cashbook.ErrArchived)
	assert.True(t, cashbook.IsConflict(err))

	got, err := ledger.Entry(ctx, feb.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive())
}

func TestLedger_Restore_Recalculates(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))
	mustCreate(t, ledger, entry(jan2, cashbook.CategoryRevenue, "100000", "0"))
	mustCreate(t, ledger, entry(feb1, cashbook.CategoryRevenue, "100000", "0"))

	ref, _, err := ledger.Archive(ctx, jan1, jan2, "January")
	require.NoError(t, err)
	_, err = ledger.Recalculate(ctx)
	require.NoError(t, err)

	n, err := ledger.Restore(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"100000", "200000", "300000"}, activeBalances(t, ledger),
		"restored rows rejoin at their original positions")

	_, err = ledger.Restore(ctx, ref)
	assert.ErrorIs(t, err, cashbook.ErrArchiveNotFound)
}

func TestLedger_Archive_Validation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, _, err := ledger.Archive(ctx, jan1, jan2, "  ")
	assert.ErrorIs(t, err, cashbook.ErrEmptyLabel)

	_, _, err = ledger.Archive(ctx, jan2, jan1, "backwards")
	assert.ErrorIs(t, err, cashbook.ErrInvalidRange)
}

func TestLedger_Archives_NewestFirst(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "1", "0"))
	mustCreate(t, ledger, entry(jan2, cashbook.CategoryRevenue, "1", "0"))
	mustCreate(t, ledger, entry(feb1, cashbook.CategoryRevenue, "1", "0"))

	jan, _, err := ledger.Archive(ctx, jan1, jan2, "Q1")
	require.NoError(t, err)
	febRef, _, err := ledger.Archive(ctx, feb1, feb1, "Q1")
	require.NoError(t, err)

	archives, err := ledger.Archives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 2, "batches sharing a label stay distinct")

	assert.True(t, archives[0].Ref.At.Equal(febRef.At))
	assert.Equal(t, 1, archives[0].Count)
	assert.True(t, archives[1].Ref.At.Equal(jan.At))
	assert.Equal(t, 2, archives[1].Count)
	assert.Equal(t, jan1, archives[1].FirstDate)
	assert.Equal(t, jan2, archives[1].LastDate)
}

func TestLedger_DeleteActive_KeepsArchives(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "1", "0"))
	mustCreate(t, ledger, entry(feb1, cashbook.CategoryRevenue, "1", "0"))
	mustCreate(t, ledger, entry(feb1, cashbook.CategoryRevenue, "1", "0"))
	ref, _, err := ledger.Archive(ctx, jan1, jan1, "Jan")
	require.NoError(t, err)

	n, err := ledger.DeleteActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	archived, err := ledger.ArchivedEntries(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, archived, 1)

	// New entries sort after the archived rows.
	e := mustCreate(t, ledger, entry(feb1, cashbook.CategoryRevenue, "1", "0"))
	assert.Equal(t, int64(2), e.Sequence)
}

// =============================================================================
// SUMMARY / REPORT
// =============================================================================

func TestLedger_SummaryAndReport(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	summary, err := ledger.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Entries)

	mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "800000", "0"))
	mustCreate(t, ledger, entry(jan1, cashbook.CategoryReceivableSettlement, "200000", "0"))
	mustCreate(t, ledger, entry(jan2, cashbook.CategoryOperatingExpense, "0", "150000"))
	last := mustCreate(t, ledger, entry(jan2, cashbook.CategoryMaterialSupply, "0", "250000"))

	summary, err = ledger.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Entries)
	assert.Equal(t, last.ID, summary.LastID)
	assertAmount(t, "600000", summary.Values.Get(cashbook.KindNetProfit))

	ref, _, err := ledger.Archive(ctx, jan1, jan2, "January")
	require.NoError(t, err)

	report, err := ledger.Report(ctx, ref)
	require.NoError(t, err)

	assertAmount(t, "1000000", report.TotalIncome)
	assertAmount(t, "400000", report.TotalExpenses)
	assertAmount(t, "600000", report.NetProfit)
	assertAmount(t, "60", report.ProfitMargin)
	assert.Equal(t, jan1, report.FirstDate)
	assert.Equal(t, jan2, report.LastDate)
	assertAmount(t, "600000", report.Closing.Get(cashbook.KindNetProfit))

	require.Len(t, report.Breakdown, 4)
	assert.Equal(t, cashbook.CategoryRevenue, report.Breakdown[0].Category)
	assertAmount(t, "57.14", report.Breakdown[0].Percentage)

	_, err = ledger.Report(ctx, cashbook.ArchiveRef{Label: "nope", At: baseTime})
	assert.ErrorIs(t, err, cashbook.ErrArchiveNotFound)
}

// =============================================================================
// ATOMICITY / CONCURRENCY
// =============================================================================

var errSaveFailed = errors.New("disk full")

// failingStore fails SaveValues inside transactions.
type failingStore struct {
	cashbook.TxStore
}

func (f failingStore) WithTx(ctx context.Context, fn func(cashbook.Store) error) error {
	return f.TxStore.WithTx(ctx, func(s cashbook.Store) error {
		return fn(failingTx{Store: s})
	})
}

type failingTx struct {
	cashbook.Store
}

func (failingTx) SaveValues(context.Context, []cashbook.Entry) error {
	return errSaveFailed
}

func TestLedger_RollsBackOnStoreFailure(t *testing.T) {
	// GIVEN: A store whose value writes fail
	// WHEN: Creating an entry
	// THEN: The insert is rolled back together with the recalculation

	mem := store.NewTxMemory()
	ledger := cashbook.NewLedger(failingStore{TxStore: mem})
	ctx := context.Background()

	_, err := ledger.Create(ctx, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))
	assert.ErrorIs(t, err, errSaveFailed)

	entries, err := mem.LoadActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLedger_CancelledContextRollsBack(t *testing.T) {
	ledger, mem := newTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ledger.Create(ctx, entry(jan1, cashbook.CategoryRevenue, "100000", "0"))
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := mem.LoadActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLedger_ConcurrentCreatesAreSerialized(t *testing.T) {
	// GIVEN: 20 writers creating entries at once
	// WHEN: All complete
	// THEN: Every entry has its own position and the last balance is the sum

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Create(ctx, entry(jan1, cashbook.CategoryRevenue, "1000", "0"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	r, err := ledger.Recalculate(ctx)
	require.NoError(t, err)
	assert.Empty(t, r.Collisions)
	assert.Empty(t, r.Changed, "every committed mutation left the ledger consistent")
	last, ok := r.Last()
	require.True(t, ok)
	assertAmount(t, "20000", last.Values.Get(cashbook.KindBalance))
}

// =============================================================================
// OBSERVER
// =============================================================================

type recordingObserver struct {
	mu        sync.Mutex
	recalcs   int
	mutations []string
}

func (o *recordingObserver) ObserveRecalculation(cashbook.Recalculation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recalcs++
}

func (o *recordingObserver) ObserveMutation(op string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.mutations = append(o.mutations, op+":"+result)
}

func TestLedger_Observer(t *testing.T) {
	ledger, _ := newTestLedger(t)
	obs := &recordingObserver{}
	ledger.Observer = obs
	ctx := context.Background()

	a := mustCreate(t, ledger, entry(jan1, cashbook.CategoryRevenue, "1", "0"))
	require.NoError(t, ledger.Reorder(ctx, []cashbook.EntryID{a.ID}))
	_, err := ledger.Delete(ctx, "missing")
	require.Error(t, err)

	assert.Equal(t, 1, obs.recalcs, "reorder and failed mutations do not report a recalculation")
	assert.Equal(t, []string{"create:ok", "reorder:ok", "delete:error"}, obs.mutations)
}
