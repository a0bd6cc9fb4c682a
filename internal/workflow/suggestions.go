package workflow

import (
	"context"
	"fmt"
	"strings"

	"reconstudy/internal/models"
	"reconstudy/internal/session"
)

// Correction is one user-entered fix for a detected discrepancy. ProductID
// scopes item-level fields when the purchase order lists multiple items.
type Correction struct {
	Type       models.ErrorType `json:"type"`
	ProductID  string           `json:"product_id,omitempty"`
	Correction string           `json:"correction"`
}

// ValidatedCorrection reports whether a user correction matches the expected
// document value.
type ValidatedCorrection struct {
	Type     models.ErrorType `json:"type"`
	IsValid  bool             `json:"is_valid"`
	Expected string           `json:"expected"`
	Entered  string           `json:"entered"`
}

// exactMatchTypes are compared verbatim; everything else (names) passes on
// substring containment in either direction.
var exactMatchTypes = map[models.ErrorType]bool{
	models.ErrorDate:       true,
	models.ErrorQuantity:   true,
	models.ErrorUnitPrice:  true,
	models.ErrorTotalPrice: true,
	models.ErrorOrderID:    true,
}

// Suggestions validates the participant's corrections against the extracted
// documents and refreshes the AI remarks for the error types still open.
func (c *Controller) Suggestions(ctx context.Context, sess *session.Session, manualErrors []models.Discrepancy, corrections []Correction) (string, []ValidatedCorrection, error) {
	if sess.ActiveLevel != models.LevelAssistive {
		return "", nil, ErrWrongLevel
	}
	task := sess.Task
	if task == nil {
		return "", nil, ErrNoTask
	}

	expected := expectedValues(task.InvoiceExtracted, task.PurchaseExtracted)

	validated := make([]ValidatedCorrection, 0, len(corrections))
	resolved := make(map[models.ErrorType]bool)
	for _, cor := range corrections {
		key := string(cor.Type)
		if cor.ProductID != "" {
			switch cor.Type {
			case models.ErrorProductName, models.ErrorQuantity, models.ErrorUnitPrice:
				key = fmt.Sprintf("%s:%s", cor.Type, normalize(cor.ProductID))
			}
		}
		entered := normalize(cor.Correction)
		want := expected[key]
		var ok bool
		if exactMatchTypes[cor.Type] {
			ok = entered == want
		} else {
			ok = want != "" && entered != "" && (strings.Contains(entered, want) || strings.Contains(want, entered))
		}
		if ok {
			resolved[cor.Type] = true
		}
		validated = append(validated, ValidatedCorrection{
			Type:     cor.Type,
			IsValid:  ok,
			Expected: want,
			Entered:  entered,
		})
	}

	types := uniqueErrorTypes(task.AIErrors, manualErrors, resolved)
	var remark string
	err := c.dispatch.Do(ctx, sess.UserID, func() {
		remark = c.analyzer.Suggest(ctx, types)
	})
	if err != nil {
		return "", nil, err
	}
	return remark, validated, nil
}

// uniqueErrorTypes lists the distinct error types, in first-seen order, that
// have not been resolved by a valid correction.
func uniqueErrorTypes(auto, manual []models.Discrepancy, resolved map[models.ErrorType]bool) []models.ErrorType {
	seen := make(map[models.ErrorType]bool)
	var types []models.ErrorType
	for _, e := range append(append([]models.Discrepancy{}, auto...), manual...) {
		if e.ErrorType == "" || seen[e.ErrorType] || resolved[e.ErrorType] {
			continue
		}
		seen[e.ErrorType] = true
		types = append(types, e.ErrorType)
	}
	return types
}

// expectedValues builds the lookup of correct values per error type. The
// purchase order is authoritative for everything except the total price,
// which only exists on the invoice.
func expectedValues(invoice, purchase models.Extraction) map[string]string {
	expected := map[string]string{
		string(models.ErrorContactName):    normalizeAny(purchase["customer_name"]),
		string(models.ErrorTotalPrice):     normalizeAny(invoice["total_price"]),
		string(models.ErrorOrderID):        normalizeAny(purchase["order_id"]),
		string(models.ErrorUnitPrice):      normalizeAny(purchase["unit_price"]),
		string(models.ErrorProductName):    normalizeAny(purchase["product_name"]),
		string(models.ErrorProductMissing): normalizeAny(purchase["product_missing"]),
		string(models.ErrorQuantity):       normalizeAny(purchase["quantity"]),
		string(models.ErrorDate):           normalizeAny(purchase["order_date"]),
	}

	items, ok := purchase["items"].([]any)
	if !ok {
		return expected
	}
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		pid := normalizeAny(item["product_id"])
		if pid == "" {
			continue
		}
		expected[fmt.Sprintf("%s:%s", models.ErrorProductName, pid)] = normalizeAny(item["product_name"])
		expected[fmt.Sprintf("%s:%s", models.ErrorQuantity, pid)] = normalizeAny(item["quantity"])
		expected[fmt.Sprintf("%s:%s", models.ErrorUnitPrice, pid)] = normalizeAny(item["unit_price"])
	}
	return expected
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAny(v any) string {
	if v == nil {
		return ""
	}
	return normalize(fmt.Sprintf("%v", v))
}
