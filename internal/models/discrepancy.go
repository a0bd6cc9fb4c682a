package models

// ErrorType is the fixed vocabulary of mismatches the analyzer may report.
type ErrorType string

const (
	ErrorOrderID        ErrorType = "Order ID"
	ErrorDate           ErrorType = "Date"
	ErrorContactName    ErrorType = "Contact Name"
	ErrorProductID      ErrorType = "Product ID"
	ErrorProductName    ErrorType = "Product Name"
	ErrorQuantity       ErrorType = "Quantity"
	ErrorUnitPrice      ErrorType = "Unit Price"
	ErrorTotalPrice     ErrorType = "Total Price"
	ErrorProductMissing ErrorType = "Product is missing"
)

// ValidErrorType reports whether the analyzer-side vocabulary contains t.
// Human-reported discrepancies are free-form and bypass this check.
func ValidErrorType(t ErrorType) bool {
	switch t {
	case ErrorOrderID, ErrorDate, ErrorContactName, ErrorProductID,
		ErrorProductName, ErrorQuantity, ErrorUnitPrice, ErrorTotalPrice,
		ErrorProductMissing:
		return true
	}
	return false
}

// Discrepancy is one reported or detected mismatch between invoice and
// purchase-order fields.
type Discrepancy struct {
	ErrorType   ErrorType `json:"error_type"`
	Description string    `json:"description,omitempty"`
	Correction  string    `json:"correction,omitempty"`
	FreeText    string    `json:"free_text,omitempty"`
}

// Extraction holds document fields pulled out by the analyzer. The field set
// is model-defined, so it stays schemaless.
type Extraction map[string]any

// Booking is the final accept/reject outcome for a task.
type Booking string

const (
	BookingBook    Booking = "book"
	BookingDecline Booking = "decline"
)

// ParseBooking defaults anything unrecognized to decline, matching the
// conservative side of the study protocol.
func ParseBooking(s string) Booking {
	if Booking(s) == BookingBook {
		return BookingBook
	}
	return BookingDecline
}

// Decision is the supervisory-level routing verdict from the analyzer.
type Decision string

const (
	DecisionAuto     Decision = "auto"
	DecisionEscalate Decision = "escalate"
)
