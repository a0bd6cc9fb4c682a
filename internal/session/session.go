package session

import (
	"time"

	"reconstudy/internal/models"
)

// Session is the full per-participant study state. It is persisted as a JSON
// blob keyed by an opaque token, so every field must round-trip through
// encoding/json.
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`

	// ActiveLevel is the level the participant is currently working in.
	// Empty until the first level page is entered.
	ActiveLevel models.Level `json:"active_level,omitempty"`

	// Completed counts finalized tasks per level toward the per-level cap.
	Completed map[models.Level]int `json:"completed"`

	// UsedDocumentIDs lists pair identifiers already shown to this
	// participant, across all levels. A pair is never reused.
	UsedDocumentIDs []string `json:"used_document_ids,omitempty"`

	// Task is the in-flight task state, nil between tasks.
	Task *TaskState `json:"task,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TaskState tracks a single document pair from selection to finalization.
// Level-specific fields stay zero for the levels that never touch them.
type TaskState struct {
	Pair      models.DocumentPair `json:"pair"`
	StartedAt time.Time           `json:"started_at"`

	// HumanErrors collects discrepancies entered by the participant
	// (manual and assistive levels).
	HumanErrors []models.Discrepancy `json:"human_errors,omitempty"`

	// Analyzer output, populated once analysis has run.
	Analyzed          bool                 `json:"analyzed,omitempty"`
	InvoiceExtracted  models.Extraction    `json:"invoice_extracted,omitempty"`
	PurchaseExtracted models.Extraction    `json:"purchase_extracted,omitempty"`
	AIErrors          []models.Discrepancy `json:"ai_errors,omitempty"`
	Suggestions       string               `json:"suggestions,omitempty"`

	// Cooperative decision trail.
	FirstDecision  string `json:"first_decision,omitempty"`  // "ok" | "not_ok"
	SecondDecision string `json:"second_decision,omitempty"` // "no_fix" | "ai_fix"
	Instructions   string `json:"instructions,omitempty"`
	FixApplied     bool   `json:"fix_applied,omitempty"`
	AIAnswer       string `json:"ai_answer,omitempty"`

	// Supervisory routing.
	Decision       models.Decision `json:"decision,omitempty"`
	SupervisorNote string          `json:"supervisor_note,omitempty"`

	// Fully automated correction output.
	InvoiceCorrected models.Extraction `json:"invoice_corrected,omitempty"`

	// Booking proposed by the analyzer, pending human confirmation where
	// the level requires it.
	ProposedBooking models.Booking `json:"proposed_booking,omitempty"`
}

// EnterLevel switches the active level and clears any in-flight task. The
// cross-level bookkeeping (completed counts, used pairs) survives.
func (s *Session) EnterLevel(level models.Level) {
	s.ActiveLevel = level
	s.Task = nil
}

// CompletedAt returns the finalized task count for the level.
func (s *Session) CompletedAt(level models.Level) int {
	if s.Completed == nil {
		return 0
	}
	return s.Completed[level]
}

// MarkCompleted increments the finalized count for the level.
func (s *Session) MarkCompleted(level models.Level) {
	if s.Completed == nil {
		s.Completed = make(map[models.Level]int)
	}
	s.Completed[level]++
}

// SyncCompleted raises the finalized count for the level to n. Used when the
// persisted outcome log is ahead of the session, e.g. after a re-login.
func (s *Session) SyncCompleted(level models.Level, n int) {
	if n <= s.Completed[level] {
		return
	}
	if s.Completed == nil {
		s.Completed = make(map[models.Level]int)
	}
	s.Completed[level] = n
}

// UsedSet builds a lookup of already-shown pair identifiers.
func (s *Session) UsedSet() map[string]struct{} {
	used := make(map[string]struct{}, len(s.UsedDocumentIDs))
	for _, id := range s.UsedDocumentIDs {
		used[id] = struct{}{}
	}
	return used
}

// MarkUsed records a pair identifier as consumed.
func (s *Session) MarkUsed(id string) {
	for _, existing := range s.UsedDocumentIDs {
		if existing == id {
			return
		}
	}
	s.UsedDocumentIDs = append(s.UsedDocumentIDs, id)
}
