package workflow

import (
	"context"
	"testing"

	"reconstudy/internal/gateway"
	"reconstudy/internal/models"
)

func newSuggestionFixture(t *testing.T) *fixture {
	t.Helper()
	fx := newFixture(t, []string{"1", "2"}, 3)
	fx.analyzer.compare = &gateway.Analysis{
		InvoiceExtracted: models.Extraction{"total_price": "100"},
		PurchaseExtracted: models.Extraction{
			"customer_name": "Acme Corporation",
			"order_id":      "1042",
			"items": []any{
				map[string]any{
					"product_id":   "P-7",
					"product_name": "Widget",
					"quantity":     float64(4),
					"unit_price":   "12.5",
				},
			},
		},
		Errors: []models.Discrepancy{
			{ErrorType: models.ErrorContactName, Correction: "Acme Corporation"},
			{ErrorType: models.ErrorOrderID, Correction: "1042"},
		},
	}
	fx.analyzer.suggestion = "- Maybe a field is wrong."
	beginPair(t, fx, fx.sess, models.LevelAssistive)
	if _, err := fx.controller.Analyze(context.Background(), fx.sess); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	return fx
}

func TestSuggestionsValidatesExactAndContainment(t *testing.T) {
	fx := newSuggestionFixture(t)

	_, validated, err := fx.controller.Suggestions(context.Background(), fx.sess, nil, []Correction{
		{Type: models.ErrorOrderID, Correction: "1042"},       // exact match required, matches
		{Type: models.ErrorOrderID, Correction: "1042 "},      // trimmed, still matches
		{Type: models.ErrorContactName, Correction: "acme"},   // containment suffices for names
		{Type: models.ErrorTotalPrice, Correction: "99"},      // exact mismatch
		{Type: models.ErrorQuantity, ProductID: "P-7", Correction: "4"}, // item-scoped exact
	})
	if err != nil {
		t.Fatalf("Suggestions: %v", err)
	}

	want := []bool{true, true, true, false, true}
	if len(validated) != len(want) {
		t.Fatalf("validated %d corrections, want %d", len(validated), len(want))
	}
	for i, v := range validated {
		if v.IsValid != want[i] {
			t.Errorf("correction %d (%s): valid=%v, want %v (expected %q entered %q)",
				i, v.Type, v.IsValid, want[i], v.Expected, v.Entered)
		}
	}
}

func TestSuggestionsSkipsResolvedErrorTypes(t *testing.T) {
	fx := newSuggestionFixture(t)

	remark, _, err := fx.controller.Suggestions(context.Background(), fx.sess, []models.Discrepancy{
		{ErrorType: models.ErrorDate},
	}, []Correction{
		{Type: models.ErrorOrderID, Correction: "1042"}, // valid, resolves Order ID
	})
	if err != nil {
		t.Fatalf("Suggestions: %v", err)
	}
	if remark == "" {
		t.Error("expected a remark for the open error types")
	}

	got := fx.analyzer.suggestTypes
	if len(got) != 2 {
		t.Fatalf("suggest types = %v, want contact name and date only", got)
	}
	for _, typ := range got {
		if typ == models.ErrorOrderID {
			t.Errorf("resolved type leaked into suggestions: %v", got)
		}
	}
}

func TestSuggestionsRequiresAssistiveLevel(t *testing.T) {
	fx := newFixture(t, []string{"1"}, 3)
	beginPair(t, fx, fx.sess, models.LevelManual)

	if _, _, err := fx.controller.Suggestions(context.Background(), fx.sess, nil, nil); err != ErrWrongLevel {
		t.Fatalf("expected ErrWrongLevel, got %v", err)
	}
}
