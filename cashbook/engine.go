/*
engine.go - Full-pass recalculation of the running accumulators

PURPOSE:
  Derives every accumulator of every active row from scratch, in one pass,
  in canonical order. This is a pure function: it reads entries, returns new
  entries, and never touches storage. The Ledger decides when to run it and
  persists the result.

ALGORITHM:
  1. Keep active entries only (Archive == nil)
  2. Sort by Sequence ASC, RecordedAt ASC, ID ASC
  3. Start every running accumulator at zero
  4. For each row, for each kind in table order:
       pinned   -> adopt the stored value as the new running value
       unpinned -> running = rule(previous running, this row); store it
  5. Return the rows; the caller writes them in one transaction

RE-ANCHORING:
  A pinned value does not just survive recalculation, it becomes the base
  for every row after it:

    Row  Debit    Pinned balance   Computed balance
    1    100000                    100000
    2    100000   5000000          5000000  (pinned)
    3    100000                    5100000  (5000000 + 100000)

DETERMINISM:
  Same input, same output. Running the engine over its own output is a
  fixed point: the second pass reports zero changed rows.

COLLISIONS:
  Two active rows sharing a Sequence are not rejected. They are ordered by
  RecordedAt then ID and reported so the caller can log a data-quality
  warning; a collision means two writers raced without serialization.

SEE ALSO:
  - rules.go: What each kind adds per row
  - ledger.go: Which mutations trigger a recalculation
*/
package cashbook

import (
	"sort"
	"time"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Rules RuleSet
}

// NewEngine returns an engine using the default business rules.
func NewEngine() *Engine {
	return &Engine{Rules: DefaultRules()}
}

// Collision reports active rows sharing one sequence position.
type Collision struct {
	Sequence int64
	IDs      []EntryID
}

// Recalculation is the output of one engine pass.
type Recalculation struct {
	// Entries are the active entries in canonical order with new values.
	Entries []Entry

	// Changed lists entries whose stored values differ from the input.
	Changed []EntryID

	Collisions []Collision
	Duration   time.Duration
}

// Last returns the final row of the chain, if any.
func (r Recalculation) Last() (Entry, bool) {
	if len(r.Entries) == 0 {
		return Entry{}, false
	}
	return r.Entries[len(r.Entries)-1], true
}

// ChangedEntries returns the entries listed in Changed, in canonical order.
func (r Recalculation) ChangedEntries() []Entry {
	if len(r.Changed) == 0 {
		return nil
	}
	changed := make(map[EntryID]bool, len(r.Changed))
	for _, id := range r.Changed {
		changed[id] = true
	}
	out := make([]Entry, 0, len(r.Changed))
	for _, e := range r.Entries {
		if changed[e.ID] {
			out = append(out, e)
		}
	}
	return out
}

// Recalculate runs one full pass over entries. Archived entries in the input
// are ignored. The input slice is not modified.
func (eng *Engine) Recalculate(entries []Entry) Recalculation {
	start := time.Now()

	active := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsActive() {
			active = append(active, e.Clone())
		}
	}
	SortCanonical(active)

	var (
		prev    Accumulators
		changed []EntryID
	)
	for i := range active {
		e := &active[i]
		before := e.Values
		cur := prev
		step := Step{Entry: e, prev: &prev, cur: &cur}

		for k := Kind(0); k < NumKinds; k++ {
			if e.Pinned.Has(k) {
				cur[k] = e.Values[k]
				continue
			}
			rule := eng.Rules[k]
			if rule == nil {
				// No rule: the value is carried forward unchanged.
				e.Values[k] = cur[k]
				continue
			}
			v := rule(step)
			cur[k] = v
			e.Values[k] = v
		}

		if !before.Equal(e.Values) {
			changed = append(changed, e.ID)
		}
		prev = cur
	}

	return Recalculation{
		Entries:    active,
		Changed:    changed,
		Collisions: FindCollisions(active),
		Duration:   time.Since(start),
	}
}

// =============================================================================
// ORDERING
// =============================================================================

// Less is the canonical calculation order.
func Less(a, b Entry) bool {
	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	if !a.RecordedAt.Equal(b.RecordedAt) {
		return a.RecordedAt.Before(b.RecordedAt)
	}
	return a.ID < b.ID
}

// SortCanonical sorts entries in place into calculation order.
func SortCanonical(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
}

// FindCollisions expects entries in canonical order.
func FindCollisions(entries []Entry) []Collision {
	var out []Collision
	for i := 0; i < len(entries); {
		j := i + 1
		for j < len(entries) && entries[j].Sequence == entries[i].Sequence {
			j++
		}
		if j-i > 1 {
			c := Collision{Sequence: entries[i].Sequence}
			for _, e := range entries[i:j] {
				c.IDs = append(c.IDs, e.ID)
			}
			out = append(out, c)
		}
		i = j
	}
	return out
}
