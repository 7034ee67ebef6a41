/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the cashbook domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

AMOUNTS:
  All money fields are decimal.Decimal. They are written as JSON strings
  ("150000.5") and accepted as either strings or numbers.

ACCUMULATOR FIELDS:
  Running values are keyed by column name (balance, revenue, operating_cost,
  ...), the same names the override endpoint accepts.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/gemiprint/ledger-engine/cashbook"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTRIES
// =============================================================================

// EntryDTO represents one cashbook row in API responses.
type EntryDTO struct {
	ID         string                     `json:"id"`
	Date       string                     `json:"date"`
	RecordedAt string                     `json:"recorded_at"`
	Sequence   int64                      `json:"sequence"`
	Category   string                     `json:"category"`
	Debit      decimal.Decimal            `json:"debit"`
	Credit     decimal.Decimal            `json:"credit"`
	Purpose    string                     `json:"purpose"`
	Note       string                     `json:"note,omitempty"`
	CreatedBy  string                     `json:"created_by,omitempty"`
	Values     map[string]decimal.Decimal `json:"values"`
	Overrides  []string                   `json:"overrides"`
	Archive    *ArchiveRefDTO             `json:"archive,omitempty"`
}

// CreateEntryRequest is the request to append an entry.
type CreateEntryRequest struct {
	Date      string          `json:"date"`
	Category  string          `json:"category"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Purpose   string          `json:"purpose"`
	Note      string          `json:"note"`
	CreatedBy string          `json:"created_by"`
}

// UpdateEntryRequest edits base fields. Omitted fields are unchanged.
type UpdateEntryRequest struct {
	Date     *string          `json:"date"`
	Category *string          `json:"category"`
	Debit    *decimal.Decimal `json:"debit"`
	Credit   *decimal.Decimal `json:"credit"`
	Purpose  *string          `json:"purpose"`
	Note     *string          `json:"note"`
}

// OverrideRequest maps accumulator column names to pinned values.
type OverrideRequest map[string]decimal.Decimal

// ReorderRequest lists entry ids in their new order.
type ReorderRequest struct {
	IDs []string `json:"ids"`
}

// SummaryDTO is the running position of the active ledger.
type SummaryDTO struct {
	Entries int                        `json:"entries"`
	LastID  string                     `json:"last_id,omitempty"`
	Values  map[string]decimal.Decimal `json:"values"`
}

// ListEntriesResponse is returned by GET /api/cashbook.
type ListEntriesResponse struct {
	Entries []EntryDTO `json:"entries"`
	Summary SummaryDTO `json:"summary"`
}

// CollisionDTO reports active rows sharing one sequence position.
type CollisionDTO struct {
	Sequence int64    `json:"sequence"`
	IDs      []string `json:"ids"`
}

// RecalculationDTO is returned by POST /api/cashbook/recalculate.
type RecalculationDTO struct {
	Rows       int            `json:"rows"`
	Changed    int            `json:"changed"`
	Collisions []CollisionDTO `json:"collisions"`
	DurationMS float64        `json:"duration_ms"`
	Summary    SummaryDTO     `json:"summary"`
}

// DeleteResponse reports how many rows were removed.
type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

// =============================================================================
// ARCHIVES
// =============================================================================

// ArchiveRefDTO identifies one archive batch.
type ArchiveRefDTO struct {
	Label string `json:"label"`
	At    string `json:"at"`
}

// ArchiveDTO summarizes one archive batch.
type ArchiveDTO struct {
	Label     string `json:"label"`
	At        string `json:"at"`
	Count     int    `json:"count"`
	FirstDate string `json:"first_date"`
	LastDate  string `json:"last_date"`
}

// ArchiveRequest archives every active entry dated within the range.
type ArchiveRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Label     string `json:"label"`
}

// ArchiveResponse is returned after archiving.
type ArchiveResponse struct {
	Archive  ArchiveRefDTO `json:"archive"`
	Archived int           `json:"archived"`
}

// RestoreResponse is returned after restoring.
type RestoreResponse struct {
	Restored int        `json:"restored"`
	Summary  SummaryDTO `json:"summary"`
}

// CategoryTotalDTO is one line of a report breakdown.
type CategoryTotalDTO struct {
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
}

// ReportDTO is the financial report of one archive batch.
type ReportDTO struct {
	Archive   ArchiveRefDTO `json:"archive"`
	DateRange struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	} `json:"date_range"`
	Summary struct {
		TotalIncome   decimal.Decimal `json:"total_income"`
		TotalExpenses decimal.Decimal `json:"total_expenses"`
		NetProfit     decimal.Decimal `json:"net_profit"`
		ProfitMargin  decimal.Decimal `json:"profit_margin"`
	} `json:"summary"`
	CategoryBreakdown []CategoryTotalDTO         `json:"category_breakdown"`
	Closing           map[string]decimal.Decimal `json:"closing"`
	Transactions      []EntryDTO                 `json:"transactions"`
	GeneratedAt       string                     `json:"generated_at"`
}

// =============================================================================
// BACKUP
// =============================================================================

// BackupStatusDTO reports the backup scheduler state.
type BackupStatusDTO struct {
	Enabled         bool   `json:"enabled"`
	Running         bool   `json:"running"`
	IntervalSeconds int64  `json:"interval_seconds"`
	Path            string `json:"path"`
	LastRun         string `json:"last_run,omitempty"`
	LastError       string `json:"last_error,omitempty"`
	NextRun         string `json:"next_run,omitempty"`
	TotalRuns       int    `json:"total_runs"`
	FailedRuns      int    `json:"failed_runs"`
}

// BackupSettingsRequest changes the schedule. The interval is clamped to
// [30s, 24h].
type BackupSettingsRequest struct {
	Enabled         bool  `json:"enabled"`
	IntervalSeconds int64 `json:"interval_seconds"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEntryDTO(e cashbook.Entry) EntryDTO {
	dto := EntryDTO{
		ID:         string(e.ID),
		Date:       e.OccurredOn.String(),
		RecordedAt: formatTime(e.RecordedAt),
		Sequence:   e.Sequence,
		Category:   string(e.Category),
		Debit:      e.Debit,
		Credit:     e.Credit,
		Purpose:    e.Purpose,
		Note:       e.Note,
		CreatedBy:  e.CreatedBy,
		Values:     toValues(e.Values),
		Overrides:  []string{},
	}
	for _, k := range e.Pinned.Kinds() {
		dto.Overrides = append(dto.Overrides, k.Column())
	}
	if e.Archive != nil {
		ref := toArchiveRefDTO(*e.Archive)
		dto.Archive = &ref
	}
	return dto
}

func toEntryDTOs(entries []cashbook.Entry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toValues(a cashbook.Accumulators) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, cashbook.NumKinds)
	for _, k := range cashbook.Kinds() {
		m[k.Column()] = a.Get(k)
	}
	return m
}

func toSummaryDTO(s cashbook.Summary) SummaryDTO {
	return SummaryDTO{Entries: s.Entries, LastID: string(s.LastID), Values: toValues(s.Values)}
}

func toArchiveRefDTO(r cashbook.ArchiveRef) ArchiveRefDTO {
	return ArchiveRefDTO{Label: r.Label, At: formatTime(r.At)}
}

func toArchiveDTO(a cashbook.Archive) ArchiveDTO {
	return ArchiveDTO{
		Label:     a.Ref.Label,
		At:        formatTime(a.Ref.At),
		Count:     a.Count,
		FirstDate: a.FirstDate.String(),
		LastDate:  a.LastDate.String(),
	}
}

func toReportDTO(r cashbook.Report) ReportDTO {
	var dto ReportDTO
	dto.Archive = toArchiveRefDTO(r.Archive)
	dto.DateRange.StartDate = r.FirstDate.String()
	dto.DateRange.EndDate = r.LastDate.String()
	dto.Summary.TotalIncome = r.TotalIncome
	dto.Summary.TotalExpenses = r.TotalExpenses
	dto.Summary.NetProfit = r.NetProfit
	dto.Summary.ProfitMargin = r.ProfitMargin
	dto.CategoryBreakdown = make([]CategoryTotalDTO, len(r.Breakdown))
	for i, line := range r.Breakdown {
		dto.CategoryBreakdown[i] = CategoryTotalDTO{
			Category:   string(line.Category),
			Amount:     line.Amount,
			Percentage: line.Percentage,
		}
	}
	dto.Closing = toValues(r.Closing)
	dto.Transactions = toEntryDTOs(r.Entries)
	dto.GeneratedAt = formatTime(r.GeneratedAt)
	return dto
}

func toRecalculationDTO(r cashbook.Recalculation) RecalculationDTO {
	dto := RecalculationDTO{
		Rows:       len(r.Entries),
		Changed:    len(r.Changed),
		Collisions: make([]CollisionDTO, len(r.Collisions)),
		DurationMS: float64(r.Duration.Microseconds()) / 1000,
		Summary:    toSummaryDTO(cashbook.Summarize(r.Entries)),
	}
	for i, c := range r.Collisions {
		ids := make([]string, len(c.IDs))
		for j, id := range c.IDs {
			ids[j] = string(id)
		}
		dto.Collisions[i] = CollisionDTO{Sequence: c.Sequence, IDs: ids}
	}
	return dto
}

func toBackupStatusDTO(s BackupStatus) BackupStatusDTO {
	dto := BackupStatusDTO{
		Enabled:         s.Enabled,
		Running:         s.Running,
		IntervalSeconds: int64(s.Interval / time.Second),
		Path:            s.Path,
		LastError:       s.LastError,
		TotalRuns:       s.TotalRuns,
		FailedRuns:      s.FailedRuns,
	}
	if !s.LastRun.IsZero() {
		dto.LastRun = formatTime(s.LastRun)
	}
	if !s.NextRun.IsZero() {
		dto.NextRun = formatTime(s.NextRun)
	}
	return dto
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
