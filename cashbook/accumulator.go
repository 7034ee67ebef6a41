package cashbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// KIND - Fixed table of running accumulators
// =============================================================================

// Kind identifies one running accumulator. The declaration order is the
// evaluation order inside a row: later kinds may read the current-row value
// of earlier kinds (net profit reads revenue and costs, shares read net
// profit and loans).
type Kind int

const (
	KindBalance Kind = iota
	KindRevenue
	KindOperatingCost
	KindMaterialCost
	KindNetProfit
	KindLoanAnwar
	KindLoanSuri
	KindLoanCahaya
	KindLoanDinil
	KindShareAnwar
	KindShareSuri
	KindShareGemi

	NumKinds
)

var kindColumns = [NumKinds]string{
	KindBalance:       "balance",
	KindRevenue:       "revenue",
	KindOperatingCost: "operating_cost",
	KindMaterialCost:  "material_cost",
	KindNetProfit:     "net_profit",
	KindLoanAnwar:     "loan_anwar",
	KindLoanSuri:      "loan_suri",
	KindLoanCahaya:    "loan_cahaya",
	KindLoanDinil:     "loan_dinil",
	KindShareAnwar:    "share_anwar",
	KindShareSuri:     "share_suri",
	KindShareGemi:     "share_gemi",
}

// Kinds returns every accumulator kind in evaluation order.
func Kinds() []Kind {
	out := make([]Kind, NumKinds)
	for k := range out {
		out[k] = Kind(k)
	}
	return out
}

func (k Kind) Valid() bool { return k >= 0 && k < NumKinds }

// Column is the stable field name used by storage and the API.
func (k Kind) Column() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindColumns[k]
}

func (k Kind) String() string { return k.Column() }

// ParseKind resolves a column name back to its kind.
func ParseKind(column string) (Kind, error) {
	for k, c := range kindColumns {
		if c == column {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, column)
}

// =============================================================================
// ACCUMULATORS / PIN SET
// =============================================================================

// Accumulators holds one value per kind.
type Accumulators [NumKinds]decimal.Decimal

func (a Accumulators) Get(k Kind) decimal.Decimal { return a[k] }

func (a *Accumulators) Set(k Kind, v decimal.Decimal) { a[k] = v }

// Equal compares numerically, ignoring representation (1.0 == 1).
func (a Accumulators) Equal(b Accumulators) bool {
	for k := range a {
		if !a[k].Equal(b[k]) {
			return false
		}
	}
	return true
}

// PinSet records which kinds are manually overridden on a row.
type PinSet [NumKinds]bool

func (p PinSet) Has(k Kind) bool { return p[k] }

func (p *PinSet) Pin(k Kind) { p[k] = true }

func (p *PinSet) Unpin(k Kind) { p[k] = false }

func (p PinSet) Any() bool {
	for _, pinned := range p {
		if pinned {
			return true
		}
	}
	return false
}

// Kinds returns the pinned kinds in evaluation order.
func (p PinSet) Kinds() []Kind {
	var out []Kind
	for k, pinned := range p {
		if pinned {
			out = append(out, Kind(k))
		}
	}
	return out
}
