package cashbook

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SUMMARY - Running position of the active ledger
// =============================================================================

// Summary is the state of the active ledger as of its last row.
type Summary struct {
	Entries int
	Values  Accumulators
	LastID  EntryID
}

// Summary returns the running values of the last active entry. An empty
// ledger reports zero values.
func (l *Ledger) Summary(ctx context.Context) (Summary, error) {
	entries, err := l.Active(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(entries), nil
}

// Summarize expects entries in canonical order.
func Summarize(entries []Entry) Summary {
	s := Summary{Entries: len(entries)}
	if len(entries) > 0 {
		last := entries[len(entries)-1]
		s.Values = last.Values
		s.LastID = last.ID
	}
	return s
}

// =============================================================================
// REPORT - Financial report of one archive batch
// =============================================================================

// CategoryTotal is one line of a report's category breakdown.
type CategoryTotal struct {
	Category Category
	Amount   decimal.Decimal
	// Share of total turnover (income + expenses), in percent.
	Percentage decimal.Decimal
}

type Report struct {
	Archive   ArchiveRef
	FirstDate Date
	LastDate  Date

	TotalIncome   decimal.Decimal
	TotalExpenses decimal.Decimal
	NetProfit     decimal.Decimal
	// ProfitMargin is net profit over income in percent, zero without income.
	ProfitMargin decimal.Decimal

	Breakdown []CategoryTotal

	// Closing holds the frozen running values of the batch's last row.
	Closing Accumulators

	Entries     []Entry
	GeneratedAt time.Time
}

// ReportPrecision is the number of decimal places kept in percentages.
const ReportPrecision int32 = 2

var hundred = decimal.NewFromInt(100)

// Report builds the financial report of one archive batch.
func (l *Ledger) Report(ctx context.Context, ref ArchiveRef) (Report, error) {
	entries, err := l.ArchivedEntries(ctx, ref)
	if err != nil {
		return Report{}, err
	}
	r := BuildReport(entries)
	r.Archive = ref
	r.GeneratedAt = l.Now()
	return r, nil
}

// BuildReport expects entries in canonical order.
func BuildReport(entries []Entry) Report {
	r := Report{Entries: entries}
	if len(entries) == 0 {
		return r
	}

	totals := make(map[Category]decimal.Decimal)
	for i, e := range entries {
		if i == 0 || e.OccurredOn.Before(r.FirstDate) {
			r.FirstDate = e.OccurredOn
		}
		if i == 0 || e.OccurredOn.After(r.LastDate) {
			r.LastDate = e.OccurredOn
		}
		r.TotalIncome = r.TotalIncome.Add(e.Debit)
		r.TotalExpenses = r.TotalExpenses.Add(e.Credit)
		totals[e.Category] = totals[e.Category].Add(e.Debit).Add(e.Credit)
	}
	r.NetProfit = r.TotalIncome.Sub(r.TotalExpenses)
	if r.TotalIncome.IsPositive() {
		r.ProfitMargin = r.NetProfit.Mul(hundred).DivRound(r.TotalIncome, ReportPrecision)
	}

	turnover := r.TotalIncome.Add(r.TotalExpenses)
	for _, c := range Categories {
		amount, ok := totals[c]
		if !ok {
			continue
		}
		line := CategoryTotal{Category: c, Amount: amount}
		if turnover.IsPositive() {
			line.Percentage = amount.Mul(hundred).DivRound(turnover, ReportPrecision)
		}
		r.Breakdown = append(r.Breakdown, line)
	}

	r.Closing = entries[len(entries)-1].Values
	return r
}
