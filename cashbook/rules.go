package cashbook

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RULES - Per-kind contribution functions
// =============================================================================

// Step is what a rule sees while the engine evaluates one row.
//
// Prev returns the running value after the previous row (zero on the first
// row). Current returns the running value at this row for kinds already
// evaluated (declared earlier in the Kind table), including pinned values
// that re-anchored the chain; for kinds not yet evaluated it equals Prev.
type Step struct {
	Entry *Entry
	prev  *Accumulators
	cur   *Accumulators
}

func (s Step) Prev(k Kind) decimal.Decimal    { return s.prev[k] }
func (s Step) Current(k Kind) decimal.Decimal { return s.cur[k] }

// Rule computes the new running value of one kind at the current row.
type Rule func(s Step) decimal.Decimal

// RuleSet holds exactly one rule per kind.
type RuleSet [NumKinds]Rule

// shareDivisor is the number of partners net profit is split between.
var shareDivisor = decimal.NewFromInt(3)

// SharePrecision is the number of decimal places kept when splitting profit.
// A fixed precision keeps repeated recalculations bit-identical.
const SharePrecision int32 = 6

// DefaultRules returns the cashbook's business rules.
func DefaultRules() RuleSet {
	return RuleSet{
		KindBalance: func(s Step) decimal.Decimal {
			return s.Prev(KindBalance).Add(s.Entry.Debit).Sub(s.Entry.Credit)
		},
		KindRevenue: accumulateDebit(KindRevenue,
			CategoryRevenue, CategoryReceivableSettlement),
		KindOperatingCost: accumulateCredit(KindOperatingCost,
			CategoryOperatingExpense, CategorySavings),
		KindMaterialCost: accumulateCredit(KindMaterialCost,
			CategoryMaterialSupply, CategoryPayableSettlement),
		KindNetProfit: func(s Step) decimal.Decimal {
			return s.Current(KindRevenue).
				Sub(s.Current(KindOperatingCost)).
				Sub(s.Current(KindMaterialCost))
		},

		KindLoanAnwar:  loan(KindLoanAnwar, inCategory(CategoryPersonalAnwar)),
		KindLoanSuri:   loan(KindLoanSuri, inCategory(CategoryPersonalSuri)),
		KindLoanCahaya: loan(KindLoanCahaya, mentions("cahaya", CategoryInvestor, CategoryOperatingExpense)),
		KindLoanDinil:  loan(KindLoanDinil, mentions("dinil", CategoryInvestor, CategoryOperatingExpense)),

		KindShareAnwar: partnerShare(KindLoanAnwar),
		KindShareSuri:  partnerShare(KindLoanSuri),
		KindShareGemi: func(s Step) decimal.Decimal {
			increment := s.Current(KindNetProfit).Sub(s.Prev(KindNetProfit))
			v := s.Prev(KindShareGemi).Add(increment.DivRound(shareDivisor, SharePrecision))
			if s.Entry.Category == CategoryInvestor {
				v = v.Add(s.Entry.Debit).Sub(s.Entry.Credit)
			}
			return v
		},
	}
}

// Complete reports whether every kind has a rule.
func (rs RuleSet) Complete() bool {
	for _, r := range rs {
		if r == nil {
			return false
		}
	}
	return true
}

// =============================================================================
// RULE BUILDERS
// =============================================================================

type matcher func(e *Entry) bool

func inCategory(categories ...Category) matcher {
	return func(e *Entry) bool {
		for _, c := range categories {
			if e.Category == c {
				return true
			}
		}
		return false
	}
}

// mentions matches rows of the given categories whose purpose names the
// party. Upstream writers record advances to staff as ordinary expenses
// with the person's name in the purpose.
func mentions(keyword string, categories ...Category) matcher {
	in := inCategory(categories...)
	return func(e *Entry) bool {
		return in(e) && strings.Contains(strings.ToLower(e.Purpose), keyword)
	}
}

func accumulateDebit(k Kind, categories ...Category) Rule {
	match := inCategory(categories...)
	return func(s Step) decimal.Decimal {
		if match(s.Entry) {
			return s.Prev(k).Add(s.Entry.Debit)
		}
		return s.Prev(k)
	}
}

func accumulateCredit(k Kind, categories ...Category) Rule {
	match := inCategory(categories...)
	return func(s Step) decimal.Decimal {
		if match(s.Entry) {
			return s.Prev(k).Add(s.Entry.Credit)
		}
		return s.Prev(k)
	}
}

// loan grows with money paid out to the party and shrinks with repayments.
func loan(k Kind, match matcher) Rule {
	return func(s Step) decimal.Decimal {
		if match(s.Entry) {
			return s.Prev(k).Add(s.Entry.Credit).Sub(s.Entry.Debit)
		}
		return s.Prev(k)
	}
}

// partnerShare is the partner's third of net profit less their open loan.
func partnerShare(loanKind Kind) Rule {
	return func(s Step) decimal.Decimal {
		return s.Current(KindNetProfit).
			DivRound(shareDivisor, SharePrecision).
			Sub(s.Current(loanKind))
	}
}
