/*
Package sqlite provides a SQLite-backed implementation of cashbook.TxStore.

PURPOSE:
  Persists cashbook rows, their stored accumulator values, pins, and archive
  markers. The store never computes anything; the ledger writes the engine's
  output back through SaveValues.

KEY TABLE:
  cashbook: one row per entry
    - base fields (occurred_on, recorded_at, sequence, category, debit, ...)
    - one TEXT column per accumulator kind (balance, revenue, ...)
    - one override_<kind> INTEGER flag per accumulator kind
    - archived_at / archived_label: NULL while active

DECIMALS:
  Money is stored as TEXT in decimal notation and parsed with
  shopspring/decimal. REAL columns would drift across recalculations.

TIMESTAMPS:
  recorded_at and archived_at use a fixed-width UTC layout with nanoseconds
  so that string comparison equals time comparison and an ArchiveRef read
  back from the database matches the rows it names exactly.

INDEXES:
  - idx_cashbook_active_order: LoadActive (hot path, every recalculation)
  - idx_cashbook_archive: archive listing, restore, archived entries

TRANSACTIONS:
  WithTx hands fn a Store bound to the *sql.Tx. Every read and write inside
  fn goes through the transaction, so the recalculation reads its own
  uncommitted writes and a failure rolls back all of them.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/cashbook.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := cashbook.NewLedger(store)

SEE ALSO:
  - cashbook/store.go: Interface definitions
  - cashbook/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gemiprint/ledger-engine/cashbook"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// timeLayout is fixed-width so TEXT ordering matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements cashbook.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	var cols strings.Builder
	for _, k := range cashbook.Kinds() {
		fmt.Fprintf(&cols, "\t\t%s TEXT NOT NULL DEFAULT '0',\n", k.Column())
	}
	for _, k := range cashbook.Kinds() {
		fmt.Fprintf(&cols, "\t\toverride_%s INTEGER NOT NULL DEFAULT 0,\n", k.Column())
	}

	schema := `
	CREATE TABLE IF NOT EXISTS cashbook (
		id TEXT PRIMARY KEY,
		occurred_on TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		category TEXT NOT NULL,
		debit TEXT NOT NULL DEFAULT '0',
		credit TEXT NOT NULL DEFAULT '0',
		purpose TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
` + cols.String() + `
		archived_at TEXT,
		archived_label TEXT
	);

	-- Active rows in calculation order (hot path)
	CREATE INDEX IF NOT EXISTS idx_cashbook_active_order
		ON cashbook(archived_at, sequence, recorded_at);

	-- Archive batches
	CREATE INDEX IF NOT EXISTS idx_cashbook_archive
		ON cashbook(archived_label, archived_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Backup writes a consistent copy of the database to path.
func (s *Store) Backup(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	// VACUUM INTO refuses to overwrite.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to replace backup: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("failed to back up database: %w", err)
	}
	return nil
}

// =============================================================================
// STORE (cashbook.Store interface)
// =============================================================================

func (s *Store) rows() rowStore { return rowStore{q: s.db} }

func (s *Store) Insert(ctx context.Context, e cashbook.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows().Insert(ctx, e)
}

func (s *Store) Get(ctx context.Context, id cashbook.EntryID) (cashbook.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows().Get(ctx, id)
}

func (s *Store) LoadActive(ctx context.Context) ([]cashbook.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows().LoadActive(ctx)
}

func (s *Store) LoadArchived(ctx context.Context, ref cashbook.ArchiveRef) ([]cashbook.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows().LoadArchived(ctx, ref)
}

func (s *Store) ListArchives(ctx context.Context) ([]cashbook.Archive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows().ListArchives(ctx)
}

func (s *Store) MaxSequence(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows().MaxSequence(ctx)
}

func (s *Store) Update(ctx context.Context, e cashbook.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows().Update(ctx, e)
}

func (s *Store) SaveValues(ctx context.Context, entries []cashbook.Entry) error {
	return s.WithTx(ctx, func(tx cashbook.Store) error {
		return tx.SaveValues(ctx, entries)
	})
}

func (s *Store) SetSequences(ctx context.Context, positions map[cashbook.EntryID]int64) error {
	return s.WithTx(ctx, func(tx cashbook.Store) error {
		return tx.SetSequences(ctx, positions)
	})
}

func (s *Store) Delete(ctx context.Context, ids []cashbook.EntryID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows().Delete(ctx, ids)
}

func (s *Store) DeleteActive(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows().DeleteActive(ctx)
}

func (s *Store) ArchiveRange(ctx context.Context, from, to cashbook.Date, ref cashbook.ArchiveRef) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows().ArchiveRange(ctx, from, to, ref)
}

func (s *Store) Restore(ctx context.Context, ref cashbook.ArchiveRef) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows().Restore(ctx, ref)
}

// =============================================================================
// TRANSACTIONAL STORE (cashbook.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store cashbook.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(rowStore{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// ROW STORE - cashbook.Store over a querier (db or tx)
// =============================================================================

type rowStore struct {
	q querier
}

var (
	kindColumns     []string
	overrideColumns []string
	entryColumns    string
)

func init() {
	for _, k := range cashbook.Kinds() {
		kindColumns = append(kindColumns, k.Column())
		overrideColumns = append(overrideColumns, "override_"+k.Column())
	}
	base := []string{
		"id", "occurred_on", "recorded_at", "sequence", "category",
		"debit", "credit", "purpose", "note", "created_by",
	}
	all := append(append(append(base, kindColumns...), overrideColumns...), "archived_at", "archived_label")
	entryColumns = strings.Join(all, ", ")
}

func (r rowStore) Insert(ctx context.Context, e cashbook.Entry) error {
	args := []any{
		string(e.ID), e.OccurredOn.String(), formatTime(e.RecordedAt), e.Sequence, string(e.Category),
		e.Debit.String(), e.Credit.String(), e.Purpose, e.Note, e.CreatedBy,
	}
	args = append(args, valueArgs(e)...)
	args = append(args, pinArgs(e)...)
	archivedAt, archivedLabel := archiveArgs(e.Archive)
	args = append(args, archivedAt, archivedLabel)

	query := fmt.Sprintf("INSERT INTO cashbook (%s) VALUES (%s)", entryColumns, placeholders(len(args)))
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		if isUniqueConstraintError(err) {
			return &cashbook.ValidationError{Field: "id", Reason: "duplicate id " + string(e.ID)}
		}
		return fmt.Errorf("failed to insert cashbook entry: %w", err)
	}
	return nil
}

func (r rowStore) Get(ctx context.Context, id cashbook.EntryID) (cashbook.Entry, error) {
	entries, err := r.query(ctx, "WHERE id = ?", string(id))
	if err != nil {
		return cashbook.Entry{}, err
	}
	if len(entries) == 0 {
		return cashbook.Entry{}, &cashbook.NotFoundError{ID: id}
	}
	return entries[0], nil
}

func (r rowStore) LoadActive(ctx context.Context) ([]cashbook.Entry, error) {
	return r.query(ctx, "WHERE archived_at IS NULL ORDER BY sequence ASC, recorded_at ASC, id ASC")
}

func (r rowStore) LoadArchived(ctx context.Context, ref cashbook.ArchiveRef) ([]cashbook.Entry, error) {
	return r.query(ctx,
		"WHERE archived_label = ? AND archived_at = ? ORDER BY sequence ASC, recorded_at ASC, id ASC",
		ref.Label, formatTime(ref.At))
}

func (r rowStore) ListArchives(ctx context.Context) ([]cashbook.Archive, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT archived_label, archived_at, COUNT(*), MIN(occurred_on), MAX(occurred_on)
		FROM cashbook
		WHERE archived_at IS NOT NULL
		GROUP BY archived_label, archived_at
		ORDER BY archived_at DESC, archived_label ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	defer rows.Close()

	var archives []cashbook.Archive
	for rows.Next() {
		var (
			a               cashbook.Archive
			at, first, last string
		)
		if err := rows.Scan(&a.Ref.Label, &at, &a.Count, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan archive: %w", err)
		}
		if a.Ref.At, err = parseTime(at); err != nil {
			return nil, err
		}
		if a.FirstDate, err = cashbook.ParseDate(first); err != nil {
			return nil, err
		}
		if a.LastDate, err = cashbook.ParseDate(last); err != nil {
			return nil, err
		}
		archives = append(archives, a)
	}
	return archives, rows.Err()
}

func (r rowStore) MaxSequence(ctx context.Context) (int64, error) {
	var maxSeq int64
	err := r.q.QueryRowContext(ctx, "SELECT COALESCE(MAX(sequence), 0) FROM cashbook").Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to read max sequence: %w", err)
	}
	return maxSeq, nil
}

func (r rowStore) Update(ctx context.Context, e cashbook.Entry) error {
	sets := []string{"occurred_on = ?", "category = ?", "debit = ?", "credit = ?", "purpose = ?", "note = ?"}
	args := []any{e.OccurredOn.String(), string(e.Category), e.Debit.String(), e.Credit.String(), e.Purpose, e.Note}
	for _, c := range kindColumns {
		sets = append(sets, c+" = ?")
	}
	args = append(args, valueArgs(e)...)
	for _, c := range overrideColumns {
		sets = append(sets, c+" = ?")
	}
	args = append(args, pinArgs(e)...)
	args = append(args, string(e.ID))

	query := fmt.Sprintf("UPDATE cashbook SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update cashbook entry: %w", err)
	}
	return requireRow(res, e.ID)
}

func (r rowStore) SaveValues(ctx context.Context, entries []cashbook.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	sets := make([]string, len(kindColumns))
	for i, c := range kindColumns {
		sets[i] = c + " = ?"
	}
	stmt, err := r.q.PrepareContext(ctx,
		fmt.Sprintf("UPDATE cashbook SET %s WHERE id = ?", strings.Join(sets, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare value update: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		args := append(valueArgs(e), string(e.ID))
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return fmt.Errorf("failed to save values of %s: %w", e.ID, err)
		}
		if err := requireRow(res, e.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r rowStore) SetSequences(ctx context.Context, positions map[cashbook.EntryID]int64) error {
	stmt, err := r.q.PrepareContext(ctx, "UPDATE cashbook SET sequence = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare sequence update: %w", err)
	}
	defer stmt.Close()

	for id, seq := range positions {
		res, err := stmt.ExecContext(ctx, seq, string(id))
		if err != nil {
			return fmt.Errorf("failed to set sequence of %s: %w", id, err)
		}
		if err := requireRow(res, id); err != nil {
			return err
		}
	}
	return nil
}

func (r rowStore) Delete(ctx context.Context, ids []cashbook.EntryID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}
	res, err := r.q.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM cashbook WHERE id IN (%s)", placeholders(len(ids))), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cashbook entries: %w", err)
	}
	return affected(res)
}

func (r rowStore) DeleteActive(ctx context.Context) (int, error) {
	res, err := r.q.ExecContext(ctx, "DELETE FROM cashbook WHERE archived_at IS NULL")
	if err != nil {
		return 0, fmt.Errorf("failed to delete active entries: %w", err)
	}
	return affected(res)
}

func (r rowStore) ArchiveRange(ctx context.Context, from, to cashbook.Date, ref cashbook.ArchiveRef) (int, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE cashbook SET archived_at = ?, archived_label = ?
		WHERE archived_at IS NULL AND occurred_on >= ? AND occurred_on <= ?
	`, formatTime(ref.At), ref.Label, from.String(), to.String())
	if err != nil {
		return 0, fmt.Errorf("failed to archive entries: %w", err)
	}
	return affected(res)
}

func (r rowStore) Restore(ctx context.Context, ref cashbook.ArchiveRef) (int, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE cashbook SET archived_at = NULL, archived_label = NULL
		WHERE archived_label = ? AND archived_at = ?
	`, ref.Label, formatTime(ref.At))
	if err != nil {
		return 0, fmt.Errorf("failed to restore archive: %w", err)
	}
	return affected(res)
}

// =============================================================================
// SCANNING
// =============================================================================

func (r rowStore) query(ctx context.Context, where string, args ...any) ([]cashbook.Entry, error) {
	rows, err := r.q.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM cashbook %s", entryColumns, where), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cashbook: %w", err)
	}
	defer rows.Close()

	var entries []cashbook.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (cashbook.Entry, error) {
	var (
		e                         cashbook.Entry
		id, occurredOn, category  string
		recordedAt, debit, credit string
		values                    [cashbook.NumKinds]string
		pins                      [cashbook.NumKinds]bool
		archivedAt, archivedLabel sql.NullString
	)

	dest := []any{
		&id, &occurredOn, &recordedAt, &e.Sequence, &category,
		&debit, &credit, &e.Purpose, &e.Note, &e.CreatedBy,
	}
	for i := range values {
		dest = append(dest, &values[i])
	}
	for i := range pins {
		dest = append(dest, &pins[i])
	}
	dest = append(dest, &archivedAt, &archivedLabel)

	if err := rows.Scan(dest...); err != nil {
		return e, fmt.Errorf("failed to scan cashbook entry: %w", err)
	}

	var err error
	e.ID = cashbook.EntryID(id)
	e.Category = cashbook.Category(category)
	if e.OccurredOn, err = cashbook.ParseDate(occurredOn); err != nil {
		return e, err
	}
	if e.RecordedAt, err = parseTime(recordedAt); err != nil {
		return e, err
	}
	if e.Debit, err = parseDecimal("debit", debit); err != nil {
		return e, err
	}
	if e.Credit, err = parseDecimal("credit", credit); err != nil {
		return e, err
	}
	for _, k := range cashbook.Kinds() {
		v, err := parseDecimal(k.Column(), values[k])
		if err != nil {
			return e, err
		}
		e.Values.Set(k, v)
		if pins[k] {
			e.Pinned.Pin(k)
		}
	}
	if archivedAt.Valid {
		at, err := parseTime(archivedAt.String)
		if err != nil {
			return e, err
		}
		e.Archive = &cashbook.ArchiveRef{Label: archivedLabel.String, At: at}
	}
	return e, nil
}

// Helper functions

func valueArgs(e cashbook.Entry) []any {
	args := make([]any, 0, cashbook.NumKinds)
	for _, k := range cashbook.Kinds() {
		args = append(args, e.Values.Get(k).String())
	}
	return args
}

func pinArgs(e cashbook.Entry) []any {
	args := make([]any, 0, cashbook.NumKinds)
	for _, k := range cashbook.Kinds() {
		args = append(args, e.Pinned.Has(k))
	}
	return args
}

func archiveArgs(ref *cashbook.ArchiveRef) (sql.NullString, sql.NullString) {
	if ref == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: formatTime(ref.At), Valid: true},
		sql.NullString{String: ref.Label, Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s value %q: %w", column, s, err)
	}
	return d, nil
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

func requireRow(res sql.Result, id cashbook.EntryID) error {
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return &cashbook.NotFoundError{ID: id}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
