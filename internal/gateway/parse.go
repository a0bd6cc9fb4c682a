package gateway

import (
	"encoding/json"
	"log"
	"strings"

	"reconstudy/internal/models"
)

// parseAnalysis decodes a raw completion into an Analysis. Anything that does
// not decode into a JSON object falls back to the supplied default; invalid
// error types are dropped rather than surfaced.
func parseAnalysis(raw string, fallback *Analysis) *Analysis {
	content := stripFences(raw)
	if content == "" {
		return fallback
	}

	var result Analysis
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		log.Printf("gateway: discarding malformed analysis: %v", err)
		return fallback
	}

	if result.InvoiceExtracted == nil {
		result.InvoiceExtracted = models.Extraction{}
	}
	if result.PurchaseExtracted == nil {
		result.PurchaseExtracted = models.Extraction{}
	}
	result.Errors = filterErrors(result.Errors)

	// Fields the prompt did not request inherit the fallback so the
	// level-specific defaults (decision, booking) survive omission.
	if result.Decision == "" {
		result.Decision = fallback.Decision
	}
	if result.Booking == "" {
		result.Booking = fallback.Booking
	}
	if result.InvoiceCorrected == nil {
		result.InvoiceCorrected = fallback.InvoiceCorrected
	}
	return &result
}

// filterErrors keeps only discrepancies with a known error type.
func filterErrors(errors []models.Discrepancy) []models.Discrepancy {
	kept := make([]models.Discrepancy, 0, len(errors))
	for _, e := range errors {
		if !models.ValidErrorType(e.ErrorType) {
			log.Printf("gateway: dropping unknown error type %q", e.ErrorType)
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(raw string) string {
	content := strings.TrimSpace(raw)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if idx := strings.Index(content, "\n"); idx >= 0 {
		// Drop the language tag on the opening fence.
		first := strings.TrimSpace(content[:idx])
		if first == "json" || first == "" {
			content = content[idx+1:]
		}
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
