package models

import "fmt"

// DocumentPair is an immutable reference to one invoice and the purchase
// order sharing its numeric identifier. The invoice may be the clean
// original or the error-injected variant.
type DocumentPair struct {
	ID           string `json:"id"`
	InvoiceFile  string `json:"invoice_file"`
	PurchaseFile string `json:"purchase_file"`
	Modified     bool   `json:"modified"`
}

// NewDocumentPair builds the filenames for an identifier using the dataset
// naming convention.
func NewDocumentPair(id string, modified bool) DocumentPair {
	invoice := fmt.Sprintf("invoice_%s.pdf", id)
	if modified {
		invoice = fmt.Sprintf("modified_invoice_%s.pdf", id)
	}
	return DocumentPair{
		ID:           id,
		InvoiceFile:  invoice,
		PurchaseFile: fmt.Sprintf("purchase_orders_%s.pdf", id),
		Modified:     modified,
	}
}
