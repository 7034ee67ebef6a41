/*
Package cashbook provides the cashbook ledger and its recalculation engine.

PURPOSE:
  The cashbook is a single running-balance ledger. Every row carries its own
  debit/credit plus a set of running accumulators (cash balance, revenue,
  costs, net profit, per-party loans and profit shares) that are derived from
  all rows before it. Rows can be pinned field by field: a pinned value is a
  human correction the engine must respect and re-anchor the chain on.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: One financial event with its stored accumulator values
  - Category: What kind of event it is (drives which accumulators move)
  - Date: Business date, informational only (never orders calculation)
  - ArchiveRef: Label + timestamp pair identifying one archive batch

ORDERING:
  Calculation order is Sequence ASC, then RecordedAt ASC, then ID ASC.
  OccurredOn is NOT an ordering key. Business dates are not unique and do
  not follow insertion order once rows are backdated.

SEE ALSO:
  - accumulator.go: Accumulator kinds and pin sets
  - rules.go: Contribution rules per kind
  - engine.go: The recalculation pass
  - ledger.go: Mutation operations
*/
package cashbook

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntryID string

// =============================================================================
// CATEGORY - Fixed enumeration of transaction kinds
// =============================================================================

type Category string

const (
	CategoryUnclassified         Category = "unclassified"
	CategoryRevenue              Category = "revenue"
	CategoryReceivableSettlement Category = "receivable_settlement"
	CategoryOperatingExpense     Category = "operating_expense"
	CategorySavings              Category = "savings"
	CategoryMaterialSupply       Category = "material_supply"
	CategoryPayableSettlement    Category = "payable_settlement"
	CategoryInvestor             Category = "investor"
	CategorySubsidy              Category = "subsidy"
	CategoryProfitDistribution   Category = "profit_distribution"
	CategoryPersonalAnwar        Category = "personal_anwar"
	CategoryPersonalSuri         Category = "personal_suri"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryUnclassified,
	CategoryRevenue,
	CategoryReceivableSettlement,
	CategoryOperatingExpense,
	CategorySavings,
	CategoryMaterialSupply,
	CategoryPayableSettlement,
	CategoryInvestor,
	CategorySubsidy,
	CategoryProfitDistribution,
	CategoryPersonalAnwar,
	CategoryPersonalSuri,
}

// legacyCategories maps the codes written by the POS, purchasing and old
// spreadsheet exports onto the canonical categories.
var legacyCategories = map[string]Category{
	"KAS":           CategoryUnclassified,
	"OMZET":         CategoryRevenue,
	"PIUTANG":       CategoryReceivableSettlement,
	"LUNAS":         CategoryReceivableSettlement,
	"BIAYA":         CategoryOperatingExpense,
	"KOMISI":        CategoryOperatingExpense,
	"TABUNGAN":      CategorySavings,
	"SUPPLY":        CategoryMaterialSupply,
	"HUTANG":        CategoryPayableSettlement,
	"INVESTOR":      CategoryInvestor,
	"SUBSIDI":       CategorySubsidy,
	"LABA":          CategoryProfitDistribution,
	"PRIBADI-A":     CategoryPersonalAnwar,
	"PRIBADI-ANWAR": CategoryPersonalAnwar,
	"PRIBADI-S":     CategoryPersonalSuri,
	"PRIBADI-SURI":  CategoryPersonalSuri,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory accepts a canonical category name (any case) or a legacy code.
func ParseCategory(s string) (Category, error) {
	v := strings.TrimSpace(s)
	if c := Category(strings.ToLower(v)); c.Valid() {
		return c, nil
	}
	code := strings.ToUpper(strings.Join(strings.Fields(v), "-"))
	if c, ok := legacyCategories[code]; ok {
		return c, nil
	}
	return "", &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", s)}
}

// =============================================================================
// DATE - Business date (calendar day, no time of day)
// =============================================================================

const DateLayout = "2006-01-02"

type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Reason: fmt.Sprintf("invalid date %q", s)}
	}
	return Date{Time: t}, nil
}

func (d Date) IsZero() bool { return d.Time.IsZero() }
func (d Date) String() string { return d.Time.Format(DateLayout) }
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool { return d.Time.Equal(other.Time) }
func (d Date) Within(from, to Date) bool { return !d.Before(from) && !d.After(to) }

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// ARCHIVE
// =============================================================================

// ArchiveRef identifies one archive batch. Rows archived together share both
// the label and the timestamp; two batches may reuse a label.
type ArchiveRef struct {
	Label string
	At    time.Time
}

func (r ArchiveRef) String() string {
	return fmt.Sprintf("%s@%s", r.Label, r.At.UTC().Format(time.RFC3339Nano))
}

// Archive summarizes one archive batch.
type Archive struct {
	Ref       ArchiveRef
	Count     int
	FirstDate Date
	LastDate  Date
}

// =============================================================================
// ENTRY - One row of the cashbook
// =============================================================================

type Entry struct {
	ID         EntryID
	OccurredOn Date
	RecordedAt time.Time
	Sequence   int64
	Category   Category
	Debit      decimal.Decimal
	Credit     decimal.Decimal
	Purpose    string
	Note       string
	CreatedBy  string

	// Stored accumulator values and their pins.
	Values Accumulators
	Pinned PinSet

	// Archive is nil while the entry is active.
	Archive *ArchiveRef
}

func (e Entry) IsActive() bool { return e.Archive == nil }

// Clone returns a copy that shares no pointers with e.
func (e Entry) Clone() Entry {
	c := e
	if e.Archive != nil {
		ref := *e.Archive
		c.Archive = &ref
	}
	return c
}

// =============================================================================
// NEW ENTRY / PATCH - Mutation payloads
// =============================================================================

// NewEntry is the payload written by upstream writers (POS, purchasing,
// manual entry, debt settlement).
type NewEntry struct {
	OccurredOn Date
	Category   Category
	Debit      decimal.Decimal
	Credit     decimal.Decimal
	Purpose    string
	Note       string
	CreatedBy  string
}

func (n NewEntry) Validate() error {
	if n.OccurredOn.IsZero() {
		return &ValidationError{Field: "date", Reason: "date is required"}
	}
	if !n.Category.Valid() {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", n.Category)}
	}
	return validateAmounts(n.Debit, n.Credit)
}

// Patch edits the base fields of an entry. Nil fields are left unchanged.
type Patch struct {
	OccurredOn *Date
	Category   *Category
	Debit      *decimal.Decimal
	Credit     *decimal.Decimal
	Purpose    *string
	Note       *string
}

func (p Patch) IsEmpty() bool {
	return p.OccurredOn == nil && p.Category == nil && p.Debit == nil &&
		p.Credit == nil && p.Purpose == nil && p.Note == nil
}

// Apply returns e with the patch applied and validated.
func (p Patch) Apply(e Entry) (Entry, error) {
	out := e.Clone()
	if p.OccurredOn != nil {
		if p.OccurredOn.IsZero() {
			return e, &ValidationError{Field: "date", Reason: "date is required"}
		}
		out.OccurredOn = *p.OccurredOn
	}
	if p.Category != nil {
		if !p.Category.Valid() {
			return e, &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", *p.Category)}
		}
		out.Category = *p.Category
	}
	if p.Debit != nil {
		out.Debit = *p.Debit
	}
	if p.Credit != nil {
		out.Credit = *p.Credit
	}
	if p.Purpose != nil {
		out.Purpose = *p.Purpose
	}
	if p.Note != nil {
		out.Note = *p.Note
	}
	if err := validateAmounts(out.Debit, out.Credit); err != nil {
		return e, err
	}
	return out, nil
}

func validateAmounts(debit, credit decimal.Decimal) error {
	switch {
	case debit.IsNegative():
		return &ValidationError{Field: "debit", Reason: "must not be negative"}
	case credit.IsNegative():
		return &ValidationError{Field: "credit", Reason: "must not be negative"}
	case debit.IsPositive() && credit.IsPositive():
		return &ValidationError{Field: "debit", Reason: "debit and credit cannot both be set"}
	case debit.IsZero() && credit.IsZero():
		return &ValidationError{Field: "debit", Reason: "debit or credit is required"}
	}
	return nil
}
