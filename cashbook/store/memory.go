// Package store provides in-memory cashbook.TxStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/gemiprint/ledger-engine/cashbook"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	rows table
}

func NewMemory() *Memory {
	return &Memory{rows: make(table)}
}

func (m *Memory) Insert(ctx context.Context, e cashbook.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows.Insert(ctx, e)
}

func (m *Memory) Get(ctx context.Context, id cashbook.EntryID) (cashbook.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rows.Get(ctx, id)
}

func (m *Memory) LoadActive(ctx context.Context) ([]cashbook.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rows.LoadActive(ctx)
}

func (m *Memory) LoadArchived(ctx context.Context, ref cashbook.ArchiveRef) ([]cashbook.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rows.LoadArchived(ctx, ref)
}

func (m *Memory) ListArchives(ctx context.Context) ([]cashbook.Archive, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rows.ListArchives(ctx)
}

func (m *Memory) MaxSequence(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rows.MaxSequence(ctx)
}

func (m *Memory) Update(ctx context.Context, e cashbook.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows.Update(ctx, e)
}

func (m *Memory) SaveValues(ctx context.Context, entries []cashbook.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows.SaveValues(ctx, entries)
}

func (m *Memory) SetSequences(ctx context.Context, positions map[cashbook.EntryID]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows.SetSequences(ctx, positions)
}

func (m *Memory) Delete(ctx context.Context, ids []cashbook.EntryID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows.Delete(ctx, ids)
}

func (m *Memory) DeleteActive(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows.DeleteActive(ctx)
}

func (m *Memory) ArchiveRange(ctx context.Context, from, to cashbook.Date, ref cashbook.ArchiveRef) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows.ArchiveRange(ctx, from, to, ref)
}

func (m *Memory) Restore(ctx context.Context, ref cashbook.ArchiveRef) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows.Restore(ctx, ref)
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The store lock is held for the whole of fn, so fn must only use the Store
// it is given.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(cashbook.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.rows.clone()
	if err := fn(tm.rows); err != nil {
		tm.rows = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		tm.rows = snapshot
		return err
	}
	return nil
}

// =============================================================================
// TABLE - Unlocked row storage shared by Memory and transactions
// =============================================================================

type table map[cashbook.EntryID]cashbook.Entry

func (t table) clone() table {
	c := make(table, len(t))
	for id, e := range t {
		c[id] = e.Clone()
	}
	return c
}

func (t table) Insert(_ context.Context, e cashbook.Entry) error {
	if _, ok := t[e.ID]; ok {
		return &cashbook.ValidationError{Field: "id", Reason: "duplicate id " + string(e.ID)}
	}
	t[e.ID] = e.Clone()
	return nil
}

func (t table) Get(_ context.Context, id cashbook.EntryID) (cashbook.Entry, error) {
	e, ok := t[id]
	if !ok {
		return cashbook.Entry{}, &cashbook.NotFoundError{ID: id}
	}
	return e.Clone(), nil
}

func (t table) LoadActive(_ context.Context) ([]cashbook.Entry, error) {
	return t.collect(func(e cashbook.Entry) bool { return e.IsActive() }), nil
}

func (t table) LoadArchived(_ context.Context, ref cashbook.ArchiveRef) ([]cashbook.Entry, error) {
	return t.collect(func(e cashbook.Entry) bool { return inBatch(e, ref) }), nil
}

func (t table) ListArchives(_ context.Context) ([]cashbook.Archive, error) {
	type batchKey struct {
		label string
		at    int64
	}
	batches := make(map[batchKey]*cashbook.Archive)
	for _, e := range t {
		if e.IsActive() {
			continue
		}
		k := batchKey{label: e.Archive.Label, at: e.Archive.At.UnixNano()}
		a, ok := batches[k]
		if !ok {
			a = &cashbook.Archive{Ref: *e.Archive, FirstDate: e.OccurredOn, LastDate: e.OccurredOn}
			batches[k] = a
		}
		a.Count++
		if e.OccurredOn.Before(a.FirstDate) {
			a.FirstDate = e.OccurredOn
		}
		if e.OccurredOn.After(a.LastDate) {
			a.LastDate = e.OccurredOn
		}
	}

	out := make([]cashbook.Archive, 0, len(batches))
	for _, a := range batches {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Ref.At.Equal(out[j].Ref.At) {
			return out[i].Ref.At.After(out[j].Ref.At)
		}
		return out[i].Ref.Label < out[j].Ref.Label
	})
	return out, nil
}

func (t table) MaxSequence(_ context.Context) (int64, error) {
	var maxSeq int64
	for _, e := range t {
		if e.Sequence > maxSeq {
			maxSeq = e.Sequence
		}
	}
	return maxSeq, nil
}

func (t table) Update(_ context.Context, e cashbook.Entry) error {
	if _, ok := t[e.ID]; !ok {
		return &cashbook.NotFoundError{ID: e.ID}
	}
	t[e.ID] = e.Clone()
	return nil
}

func (t table) SaveValues(_ context.Context, entries []cashbook.Entry) error {
	for _, e := range entries {
		stored, ok := t[e.ID]
		if !ok {
			return &cashbook.NotFoundError{ID: e.ID}
		}
		stored.Values = e.Values
		t[e.ID] = stored
	}
	return nil
}

func (t table) SetSequences(_ context.Context, positions map[cashbook.EntryID]int64) error {
	for id := range positions {
		if _, ok := t[id]; !ok {
			return &cashbook.NotFoundError{ID: id}
		}
	}
	for id, seq := range positions {
		e := t[id]
		e.Sequence = seq
		t[id] = e
	}
	return nil
}

func (t table) Delete(_ context.Context, ids []cashbook.EntryID) (int, error) {
	n := 0
	for _, id := range ids {
		if _, ok := t[id]; ok {
			delete(t, id)
			n++
		}
	}
	return n, nil
}

func (t table) DeleteActive(_ context.Context) (int, error) {
	n := 0
	for id, e := range t {
		if e.IsActive() {
			delete(t, id)
			n++
		}
	}
	return n, nil
}

func (t table) ArchiveRange(_ context.Context, from, to cashbook.Date, ref cashbook.ArchiveRef) (int, error) {
	n := 0
	for id, e := range t {
		if e.IsActive() && e.OccurredOn.Within(from, to) {
			r := ref
			e.Archive = &r
			t[id] = e
			n++
		}
	}
	return n, nil
}

func (t table) Restore(_ context.Context, ref cashbook.ArchiveRef) (int, error) {
	n := 0
	for id, e := range t {
		if inBatch(e, ref) {
			e.Archive = nil
			t[id] = e
			n++
		}
	}
	return n, nil
}

func (t table) collect(keep func(cashbook.Entry) bool) []cashbook.Entry {
	var out []cashbook.Entry
	for _, e := range t {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	cashbook.SortCanonical(out)
	return out
}

func inBatch(e cashbook.Entry, ref cashbook.ArchiveRef) bool {
	return e.Archive != nil && e.Archive.Label == ref.Label && e.Archive.At.Equal(ref.At)
}
