/*
store.go - Persistence interface for cashbook entries

PURPOSE:
  Defines the interface between the ledger logic and the database.
  The Store only moves rows in and out; it never computes accumulators.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:   Row persistence (insert, load, update values, archive, delete)
  TxStore: Store + transactions (a mutation and its recalculation commit
           or roll back together)

ORDERING CONTRACT:
  LoadActive and LoadArchived return rows in canonical calculation order
  (sequence ASC, recorded_at ASC, id ASC). The engine sorts again anyway,
  so a store that gets this wrong produces slower code, not wrong numbers.

ARCHIVE ATOMICITY:
  ArchiveRange and Restore flip every matching row in one statement. Inside
  WithTx they are part of the enclosing transaction.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - cashbook/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Uses TxStore for every mutation
*/
package cashbook

import "context"

// =============================================================================
// STORE - Interface for entry persistence
// =============================================================================

type Store interface {
	// Insert adds a new entry. The id must be unique.
	Insert(ctx context.Context, e Entry) error

	// Get returns one entry (active or archived). Returns *NotFoundError.
	Get(ctx context.Context, id EntryID) (Entry, error)

	// LoadActive returns every active entry in canonical order.
	LoadActive(ctx context.Context) ([]Entry, error)

	// LoadArchived returns the entries of one archive batch in canonical order.
	LoadArchived(ctx context.Context, ref ArchiveRef) ([]Entry, error)

	// ListArchives returns archive batches, newest first.
	ListArchives(ctx context.Context) ([]Archive, error)

	// MaxSequence returns the highest sequence over all rows, 0 when empty.
	MaxSequence(ctx context.Context) (int64, error)

	// Update rewrites the base fields, values and pins of an existing entry.
	Update(ctx context.Context, e Entry) error

	// SaveValues writes the accumulator values of the given entries.
	SaveValues(ctx context.Context, entries []Entry) error

	// SetSequences assigns new sequence positions.
	SetSequences(ctx context.Context, positions map[EntryID]int64) error

	// Delete removes entries permanently and returns how many existed.
	Delete(ctx context.Context, ids []EntryID) (int, error)

	// DeleteActive removes every active entry. Archived rows are kept.
	DeleteActive(ctx context.Context) (int, error)

	// ArchiveRange archives active entries with OccurredOn in [from, to].
	ArchiveRange(ctx context.Context, from, to Date, ref ArchiveRef) (int, error)

	// Restore makes every entry of the batch active again.
	Restore(ctx context.Context, ref ArchiveRef) (int, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic mutation + recalculation
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
