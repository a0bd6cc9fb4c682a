package models

// TaskRecord is one finalized outcome per completed document pair per level.
// Records are appended to a per-user per-level log and never mutated.
type TaskRecord struct {
	InvoiceFile       string        `json:"invoice_file"`
	PurchaseFile      string        `json:"purchase_file"`
	DurationSeconds   float64       `json:"duration_seconds"`
	InvoiceExtracted  Extraction    `json:"invoice_extracted,omitempty"`
	PurchaseExtracted Extraction    `json:"purchase_extracted,omitempty"`
	Errors            []Discrepancy `json:"errors"`
	Booking           Booking       `json:"booking"`

	// Level-specific extras.
	Decision         Decision   `json:"decision,omitempty"`          // supervisory
	SupervisorNote   string     `json:"supervisor_note,omitempty"`   // supervisory escalation
	InvoiceCorrected Extraction `json:"invoice_corrected,omitempty"` // fully automated
	AIAnswer         string     `json:"ai_answer,omitempty"`         // cooperative fix
}
