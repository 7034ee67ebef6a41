/*
handlers.go - HTTP API handlers for the cashbook

PURPOSE:
  Exposes the cashbook ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every mutation to cashbook.Ledger so the
  recalculation rules apply no matter which client writes.

ENDPOINTS:
  Entries:
    GET    /api/cashbook                    Active entries + running summary
    POST   /api/cashbook                    Append entry
    DELETE /api/cashbook                    Delete all active entries
    GET    /api/cashbook/{id}               Get entry
    PUT    /api/cashbook/{id}               Edit base fields
    DELETE /api/cashbook/{id}               Delete entry
    PATCH  /api/cashbook/{id}/override      Pin accumulator fields
    DELETE /api/cashbook/{id}/override      Unpin one field (?field=)
    POST   /api/cashbook/reorder            Reorder (no recalculation)
    POST   /api/cashbook/recalculate        Explicit recalculation

  Archives:
    GET    /api/cashbook/archives           List batches, newest first
    POST   /api/cashbook/archives           Archive a date range
    GET    /api/cashbook/archives/entries   Rows of one batch (?label=&at=)
    GET    /api/cashbook/archives/report    Financial report (?label=&at=)
    POST   /api/cashbook/archives/restore   Restore one batch

  Backup:
    GET    /api/backup/status               Scheduler state
    POST   /api/backup                      Back up now
    PUT    /api/backup/settings             Change schedule

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Entry or archive not found
  - 409: Conflict (entry is archived)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gemiprint/ledger-engine/cashbook"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger *cashbook.Ledger

	// Backups is optional; backup endpoints return 404 without it.
	Backups *BackupScheduler
}

// NewHandler creates a new handler over the given ledger.
func NewHandler(ledger *cashbook.Ledger, backups *BackupScheduler) *Handler {
	return &Handler{Ledger: ledger, Backups: backups}
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// ListEntries returns the active entries in calculation order.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Ledger.Active(r.Context())
	if err != nil {
		writeLedgerError(w, "Failed to list entries", err)
		return
	}

	writeJSON(w, http.StatusOK, ListEntriesResponse{
		Entries: toEntryDTOs(entries),
		Summary: toSummaryDTO(cashbook.Summarize(entries)),
	})
}

// GetEntry returns one entry, active or archived.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.Ledger.Entry(r.Context(), entryID(r))
	if err != nil {
		writeLedgerError(w, "Failed to get entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

// CreateEntry appends an entry and recalculates.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	date, err := cashbook.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	category, err := cashbook.ParseCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category", err)
		return
	}

	e, err := h.Ledger.Create(r.Context(), cashbook.NewEntry{
		OccurredOn: date,
		Category:   category,
		Debit:      req.Debit,
		Credit:     req.Credit,
		Purpose:    strings.TrimSpace(req.Purpose),
		Note:       strings.TrimSpace(req.Note),
		CreatedBy:  req.CreatedBy,
	})
	if err != nil {
		writeLedgerError(w, "Failed to create entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(e))
}

// UpdateEntry edits base fields and recalculates.
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req UpdateEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	patch := cashbook.Patch{
		Debit:   req.Debit,
		Credit:  req.Credit,
		Purpose: req.Purpose,
		Note:    req.Note,
	}
	if req.Date != nil {
		date, err := cashbook.ParseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		patch.OccurredOn = &date
	}
	if req.Category != nil {
		category, err := cashbook.ParseCategory(*req.Category)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid category", err)
			return
		}
		patch.Category = &category
	}

	e, err := h.Ledger.Update(r.Context(), entryID(r), patch)
	if err != nil {
		writeLedgerError(w, "Failed to update entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

// DeleteEntry removes one entry and recalculates.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	n, err := h.Ledger.Delete(r.Context(), entryID(r))
	if err != nil {
		writeLedgerError(w, "Failed to delete entry", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

// DeleteActiveEntries removes every active entry. Archives are kept.
func (h *Handler) DeleteActiveEntries(w http.ResponseWriter, r *http.Request) {
	n, err := h.Ledger.DeleteActive(r.Context())
	if err != nil {
		writeLedgerError(w, "Failed to delete entries", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

// OverrideFields pins accumulator fields of one entry.
func (h *Handler) OverrideFields(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	values := make(map[cashbook.Kind]decimal.Decimal, len(req))
	for column, v := range req {
		k, err := cashbook.ParseKind(column)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid field", err)
			return
		}
		values[k] = v
	}

	e, err := h.Ledger.Override(r.Context(), entryID(r), values)
	if err != nil {
		writeLedgerError(w, "Failed to override fields", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

// RemoveOverride unpins one accumulator field.
func (h *Handler) RemoveOverride(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	if field == "" {
		writeError(w, http.StatusBadRequest, "field query parameter is required", nil)
		return
	}
	k, err := cashbook.ParseKind(field)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid field", err)
		return
	}

	e, err := h.Ledger.RemoveOverride(r.Context(), entryID(r), k)
	if err != nil {
		writeLedgerError(w, "Failed to remove override", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

// Reorder assigns new positions. Stored values are not recalculated.
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ids := make([]cashbook.EntryID, len(req.IDs))
	for i, id := range req.IDs {
		ids[i] = cashbook.EntryID(id)
	}
	if err := h.Ledger.Reorder(r.Context(), ids); err != nil {
		writeLedgerError(w, "Failed to reorder entries", err)
		return
	}

	entries, err := h.Ledger.Active(r.Context())
	if err != nil {
		writeLedgerError(w, "Failed to list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, ListEntriesResponse{
		Entries: toEntryDTOs(entries),
		Summary: toSummaryDTO(cashbook.Summarize(entries)),
	})
}

// Recalculate runs the engine over the active entries.
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	result, err := h.Ledger.Recalculate(r.Context())
	if err != nil {
		writeLedgerError(w, "Failed to recalculate", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecalculationDTO(result))
}

// =============================================================================
// ARCHIVE HANDLERS
// =============================================================================

// ListArchives returns archive batches, newest first.
func (h *Handler) ListArchives(w http.ResponseWriter, r *http.Request) {
	archives, err := h.Ledger.Archives(r.Context())
	if err != nil {
		writeLedgerError(w, "Failed to list archives", err)
		return
	}

	dtos := make([]ArchiveDTO, len(archives))
	for i, a := range archives {
		dtos[i] = toArchiveDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateArchive archives every active entry dated within the range.
func (h *Handler) CreateArchive(w http.ResponseWriter, r *http.Request) {
	var req ArchiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	from, err := cashbook.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	to, err := cashbook.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return
	}

	ref, n, err := h.Ledger.Archive(r.Context(), from, to, req.Label)
	if err != nil {
		writeLedgerError(w, "Failed to archive entries", err)
		return
	}
	writeJSON(w, http.StatusCreated, ArchiveResponse{Archive: toArchiveRefDTO(ref), Archived: n})
}

// ArchivedEntries returns the rows of one batch.
func (h *Handler) ArchivedEntries(w http.ResponseWriter, r *http.Request) {
	ref, err := archiveRefFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid archive reference", err)
		return
	}

	entries, err := h.Ledger.ArchivedEntries(r.Context(), ref)
	if err != nil {
		writeLedgerError(w, "Failed to load archive", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// ArchiveReport returns the financial report of one batch.
func (h *Handler) ArchiveReport(w http.ResponseWriter, r *http.Request) {
	ref, err := archiveRefFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid archive reference", err)
		return
	}

	report, err := h.Ledger.Report(r.Context(), ref)
	if err != nil {
		writeLedgerError(w, "Failed to generate report", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report))
}

// RestoreArchive returns one batch to the active entries and recalculates.
func (h *Handler) RestoreArchive(w http.ResponseWriter, r *http.Request) {
	var req ArchiveRefDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	ref, err := parseArchiveRef(req.Label, req.At)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid archive reference", err)
		return
	}

	n, err := h.Ledger.Restore(r.Context(), ref)
	if err != nil {
		writeLedgerError(w, "Failed to restore archive", err)
		return
	}

	summary, err := h.Ledger.Summary(r.Context())
	if err != nil {
		writeLedgerError(w, "Failed to load summary", err)
		return
	}
	writeJSON(w, http.StatusOK, RestoreResponse{Restored: n, Summary: toSummaryDTO(summary)})
}

// =============================================================================
// BACKUP HANDLERS
// =============================================================================

// BackupStatus returns the scheduler state.
func (h *Handler) BackupStatus(w http.ResponseWriter, r *http.Request) {
	if h.Backups == nil {
		writeError(w, http.StatusNotFound, "Backups are not configured", nil)
		return
	}
	writeJSON(w, http.StatusOK, toBackupStatusDTO(h.Backups.Status()))
}

// RunBackup backs up the database now.
func (h *Handler) RunBackup(w http.ResponseWriter, r *http.Request) {
	if h.Backups == nil {
		writeError(w, http.StatusNotFound, "Backups are not configured", nil)
		return
	}
	if err := h.Backups.RunNow(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Backup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toBackupStatusDTO(h.Backups.Status()))
}

// UpdateBackupSettings changes the backup schedule.
func (h *Handler) UpdateBackupSettings(w http.ResponseWriter, r *http.Request) {
	if h.Backups == nil {
		writeError(w, http.StatusNotFound, "Backups are not configured", nil)
		return
	}
	var req BackupSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IntervalSeconds < 0 {
		writeError(w, http.StatusBadRequest, "interval_seconds must not be negative", nil)
		return
	}

	h.Backups.Configure(req.Enabled, time.Duration(req.IntervalSeconds)*time.Second)
	if req.Enabled {
		h.Backups.Start()
	} else {
		h.Backups.Stop()
	}
	writeJSON(w, http.StatusOK, toBackupStatusDTO(h.Backups.Status()))
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func entryID(r *http.Request) cashbook.EntryID {
	return cashbook.EntryID(chi.URLParam(r, "id"))
}

func archiveRefFromQuery(r *http.Request) (cashbook.ArchiveRef, error) {
	q := r.URL.Query()
	return parseArchiveRef(q.Get("label"), q.Get("at"))
}

func parseArchiveRef(label, at string) (cashbook.ArchiveRef, error) {
	if strings.TrimSpace(label) == "" {
		return cashbook.ArchiveRef{}, cashbook.ErrEmptyLabel
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return cashbook.ArchiveRef{}, fmt.Errorf("invalid archive timestamp %q: %w", at, err)
	}
	return cashbook.ArchiveRef{Label: label, At: t.UTC()}, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps cashbook errors to HTTP status codes.
func writeLedgerError(w http.ResponseWriter, message string, err error) {
	switch {
	case cashbook.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case cashbook.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case cashbook.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
