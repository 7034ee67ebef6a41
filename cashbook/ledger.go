/*
ledger.go - Cashbook mutations with recalculation

PURPOSE:
  The Ledger is the only writer of the cashbook. Every operation that changes
  the economic meaning of the active rows runs the engine over the full
  active set before it is considered complete.

TRIGGER TABLE:
  Create          -> recalculates
  Update          -> recalculates (base fields: date, category, amounts, text)
  Override        -> recalculates (pins the given fields on one row)
  RemoveOverride  -> recalculates
  Delete          -> recalculates
  DeleteActive    -> recalculates
  Restore         -> recalculates
  Reorder         -> does NOT recalculate
  Archive         -> does NOT recalculate (archived rows are frozen)

  Reorder is a display operation. Dragging a row must not silently rewrite
  historical figures; callers that want the new order reflected call
  Recalculate explicitly.

SERIALIZATION:
  One mutation at a time per Ledger (mutex), and each mutation runs inside
  one store transaction: the engine's read of the active set and its write
  of the results see nothing in between. A failure anywhere rolls back the
  mutation and the recalculation together.

SEE ALSO:
  - engine.go: The recalculation pass
  - store.go: TxStore contract
*/
package cashbook

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultMutationTimeout bounds one mutation including its recalculation.
const DefaultMutationTimeout = 30 * time.Second

// Observer receives notifications after committed work. Implementations must
// not block.
type Observer interface {
	ObserveRecalculation(r Recalculation)
	ObserveMutation(op string, err error)
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store    TxStore
	Engine   *Engine
	Observer Observer

	// Timeout bounds each mutation. Zero disables it.
	Timeout time.Duration

	// Now and NewID are replaceable for tests.
	Now   func() time.Time
	NewID func() EntryID

	mu sync.Mutex
}

func NewLedger(store TxStore) *Ledger {
	return &Ledger{
		Store:   store,
		Engine:  NewEngine(),
		Timeout: DefaultMutationTimeout,
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   func() EntryID { return EntryID(uuid.NewString()) },
	}
}

// Find returns the recalculated entry with the given id.
func (r Recalculation) Find(id EntryID) (Entry, bool) {
	for _, e := range r.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Create appends an entry at the end of the sequence.
func (l *Ledger) Create(ctx context.Context, n NewEntry) (Entry, error) {
	if err := n.Validate(); err != nil {
		return Entry{}, err
	}

	id := l.NewID()
	r, err := l.mutate(ctx, "create", true, func(ctx context.Context, s Store) error {
		maxSeq, err := s.MaxSequence(ctx)
		if err != nil {
			return err
		}
		return s.Insert(ctx, Entry{
			ID:         id,
			OccurredOn: n.OccurredOn,
			RecordedAt: l.Now(),
			Sequence:   maxSeq + 1,
			Category:   n.Category,
			Debit:      n.Debit,
			Credit:     n.Credit,
			Purpose:    n.Purpose,
			Note:       n.Note,
			CreatedBy:  n.CreatedBy,
		})
	})
	if err != nil {
		return Entry{}, err
	}
	return l.resultEntry(ctx, r, id)
}

// Update edits the base fields of an active entry.
func (l *Ledger) Update(ctx context.Context, id EntryID, p Patch) (Entry, error) {
	if p.IsEmpty() {
		return Entry{}, ErrNoChanges
	}

	r, err := l.mutate(ctx, "update", true, func(ctx context.Context, s Store) error {
		e, err := getActive(ctx, s, id)
		if err != nil {
			return err
		}
		updated, err := p.Apply(e)
		if err != nil {
			return err
		}
		return s.Update(ctx, updated)
	})
	if err != nil {
		return Entry{}, err
	}
	return l.resultEntry(ctx, r, id)
}

// Override sets the given accumulator fields and pins them. Editing a
// derived field is always a pin; there is no unpinned edit.
func (l *Ledger) Override(ctx context.Context, id EntryID, values map[Kind]decimal.Decimal) (Entry, error) {
	if len(values) == 0 {
		return Entry{}, ErrNoChanges
	}
	for k := range values {
		if !k.Valid() {
			return Entry{}, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
		}
	}

	r, err := l.mutate(ctx, "override", true, func(ctx context.Context, s Store) error {
		e, err := getActive(ctx, s, id)
		if err != nil {
			return err
		}
		for k, v := range values {
			e.Values.Set(k, v)
			e.Pinned.Pin(k)
		}
		return s.Update(ctx, e)
	})
	if err != nil {
		return Entry{}, err
	}
	return l.resultEntry(ctx, r, id)
}

// RemoveOverride unpins one field so the engine owns it again.
func (l *Ledger) RemoveOverride(ctx context.Context, id EntryID, k Kind) (Entry, error) {
	if !k.Valid() {
		return Entry{}, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}

	r, err := l.mutate(ctx, "remove_override", true, func(ctx context.Context, s Store) error {
		e, err := getActive(ctx, s, id)
		if err != nil {
			return err
		}
		e.Pinned.Unpin(k)
		return s.Update(ctx, e)
	})
	if err != nil {
		return Entry{}, err
	}
	return l.resultEntry(ctx, r, id)
}

// Reorder puts the listed active entries in the given order. The entries
// exchange their current positions, so positions held by unlisted entries
// are untouched. Stored values are NOT recalculated.
func (l *Ledger) Reorder(ctx context.Context, ids []EntryID) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: empty list", ErrInvalidOrder)
	}
	seen := make(map[EntryID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidOrder, id)
		}
		seen[id] = true
	}

	_, err := l.mutate(ctx, "reorder", false, func(ctx context.Context, s Store) error {
		slots := make([]int64, 0, len(ids))
		for _, id := range ids {
			e, err := s.Get(ctx, id)
			if err != nil {
				return err
			}
			if !e.IsActive() {
				return fmt.Errorf("%w: %s is archived", ErrInvalidOrder, id)
			}
			slots = append(slots, e.Sequence)
		}
		sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

		active, err := s.LoadActive(ctx)
		if err != nil {
			return err
		}
		taken := make(map[int64]bool, len(active))
		for _, e := range active {
			if !seen[e.ID] {
				taken[e.Sequence] = true
			}
		}

		positions := make(map[EntryID]int64, len(ids))
		for i, id := range ids {
			// Shared slots (a past collision) are spread out, skipping
			// positions held by unlisted entries.
			slot := slots[i]
			if i > 0 && slot <= slots[i-1] {
				slot = slots[i-1] + 1
			}
			for taken[slot] {
				slot++
			}
			slots[i] = slot
			positions[id] = slot
		}
		return s.SetSequences(ctx, positions)
	})
	return err
}

// Archive freezes every active entry dated within [from, to] under one
// label and one shared timestamp. Values are not recalculated.
func (l *Ledger) Archive(ctx context.Context, from, to Date, label string) (ArchiveRef, int, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return ArchiveRef{}, 0, ErrEmptyLabel
	}
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return ArchiveRef{}, 0, ErrInvalidRange
	}

	ref := ArchiveRef{Label: label, At: l.Now()}
	var n int
	_, err := l.mutate(ctx, "archive", false, func(ctx context.Context, s Store) error {
		var err error
		n, err = s.ArchiveRange(ctx, from, to, ref)
		return err
	})
	if err != nil {
		return ArchiveRef{}, 0, err
	}
	log.Printf("[Cashbook] Archived %d entries (%s to %s) as %s", n, from, to, ref)
	return ref, n, nil
}

// Restore returns one archive batch to the active set and recalculates.
func (l *Ledger) Restore(ctx context.Context, ref ArchiveRef) (int, error) {
	var n int
	_, err := l.mutate(ctx, "restore", true, func(ctx context.Context, s Store) error {
		var err error
		n, err = s.Restore(ctx, ref)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrArchiveNotFound, ref)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Printf("[Cashbook] Restored %d entries from %s", n, ref)
	return n, nil
}

// Delete removes entries permanently and recalculates the rest.
func (l *Ledger) Delete(ctx context.Context, ids ...EntryID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int
	_, err := l.mutate(ctx, "delete", true, func(ctx context.Context, s Store) error {
		var err error
		n, err = s.Delete(ctx, ids)
		if err != nil {
			return err
		}
		if n == 0 {
			return &NotFoundError{ID: ids[0]}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteActive removes every active entry. Archived batches are kept.
func (l *Ledger) DeleteActive(ctx context.Context) (int, error) {
	var n int
	_, err := l.mutate(ctx, "delete_active", true, func(ctx context.Context, s Store) error {
		var err error
		n, err = s.DeleteActive(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Recalculate runs the engine over the active set and persists the result.
func (l *Ledger) Recalculate(ctx context.Context) (Recalculation, error) {
	r, err := l.mutate(ctx, "recalculate", true, nil)
	if err != nil {
		return Recalculation{}, err
	}
	return *r, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (l *Ledger) Entry(ctx context.Context, id EntryID) (Entry, error) {
	return l.Store.Get(ctx, id)
}

// Active returns the active entries in calculation order.
func (l *Ledger) Active(ctx context.Context) ([]Entry, error) {
	entries, err := l.Store.LoadActive(ctx)
	if err != nil {
		return nil, err
	}
	SortCanonical(entries)
	return entries, nil
}

func (l *Ledger) Archives(ctx context.Context) ([]Archive, error) {
	return l.Store.ListArchives(ctx)
}

// ArchivedEntries returns the rows of one batch in calculation order.
func (l *Ledger) ArchivedEntries(ctx context.Context, ref ArchiveRef) ([]Entry, error) {
	entries, err := l.Store.LoadArchived(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrArchiveNotFound, ref)
	}
	SortCanonical(entries)
	return entries, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// mutate runs fn and, when recalc is set, the engine, inside one transaction
// while holding the ledger lock. A nil fn only recalculates.
func (l *Ledger) mutate(ctx context.Context, op string, recalc bool, fn func(context.Context, Store) error) (*Recalculation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	var result *Recalculation
	err := l.Store.WithTx(ctx, func(s Store) error {
		if fn != nil {
			if err := fn(ctx, s); err != nil {
				return err
			}
		}
		if !recalc {
			return nil
		}
		r, err := l.recalculate(ctx, s)
		if err != nil {
			return err
		}
		result = &r
		return nil
	})

	if l.Observer != nil {
		l.Observer.ObserveMutation(op, err)
	}
	if err != nil {
		return nil, err
	}
	if result != nil {
		l.report(*result)
	}
	return result, nil
}

func (l *Ledger) recalculate(ctx context.Context, s Store) (Recalculation, error) {
	active, err := s.LoadActive(ctx)
	if err != nil {
		return Recalculation{}, fmt.Errorf("load active entries: %w", err)
	}
	r := l.Engine.Recalculate(active)
	if changed := r.ChangedEntries(); len(changed) > 0 {
		if err := s.SaveValues(ctx, changed); err != nil {
			return Recalculation{}, fmt.Errorf("save recalculated values: %w", err)
		}
	}
	return r, nil
}

func (l *Ledger) report(r Recalculation) {
	for _, c := range r.Collisions {
		log.Printf("[Cashbook] warning: sequence position %d shared by %d entries %v; ordered by recorded time",
			c.Sequence, len(c.IDs), c.IDs)
	}
	if l.Observer != nil {
		l.Observer.ObserveRecalculation(r)
	}
}

func (l *Ledger) resultEntry(ctx context.Context, r *Recalculation, id EntryID) (Entry, error) {
	if r != nil {
		if e, ok := r.Find(id); ok {
			return e, nil
		}
	}
	return l.Store.Get(ctx, id)
}

func getActive(ctx context.Context, s Store, id EntryID) (Entry, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if !e.IsActive() {
		return Entry{}, fmt.Errorf("%w: %s", ErrArchived, id)
	}
	return e, nil
}
