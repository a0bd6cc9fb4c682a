package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"reconstudy/internal/models"
)

type fakeModel struct {
	replies []string
	err     error
	calls   int
}

func (f *fakeModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return &schema.Message{Role: schema.Assistant, Content: reply}, nil
}

func (f *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func newTestGateway(m model.BaseChatModel, retries int) *Gateway {
	return &Gateway{chatModel: m, timeout: time.Second, retries: retries}
}

func TestExtractAndCompareParsesAnalysis(t *testing.T) {
	reply := `{
		"invoice_extracted": {"order_id": "17"},
		"purchase_extracted": {"order_id": "17"},
		"errors": [
			{"error_type": "Quantity", "description": "qty differs", "correction": "4"},
			{"error_type": "Bogus Field", "description": "should be dropped"}
		]
	}`
	g := newTestGateway(&fakeModel{replies: []string{reply}}, 0)

	result := g.ExtractAndCompare(context.Background(), "inv text", "po text", false)
	if result.InvoiceExtracted["order_id"] != "17" {
		t.Errorf("invoice extraction lost: %+v", result.InvoiceExtracted)
	}
	if len(result.Errors) != 1 || result.Errors[0].ErrorType != models.ErrorQuantity {
		t.Errorf("expected one valid error, got %+v", result.Errors)
	}
}

func TestExtractAndCompareStripsMarkdownFence(t *testing.T) {
	reply := "```json\n{\"invoice_extracted\": {\"order_id\": \"9\"}, \"purchase_extracted\": {}, \"errors\": []}\n```"
	g := newTestGateway(&fakeModel{replies: []string{reply}}, 0)

	result := g.ExtractAndCompare(context.Background(), "inv", "po", false)
	if result.InvoiceExtracted["order_id"] != "9" {
		t.Errorf("fenced response not parsed: %+v", result)
	}
}

func TestExtractAndCompareMalformedFallsBack(t *testing.T) {
	g := newTestGateway(&fakeModel{replies: []string{"sorry, I cannot do that"}}, 0)

	result := g.ExtractAndCompare(context.Background(), "inv", "po", false)
	if result == nil {
		t.Fatal("expected default analysis, got nil")
	}
	if len(result.Errors) != 0 || len(result.InvoiceExtracted) != 0 {
		t.Errorf("expected empty default, got %+v", result)
	}
}

func TestExtractAndDecideDefaultsOnFailure(t *testing.T) {
	fake := &fakeModel{err: errors.New("provider down")}
	g := newTestGateway(fake, 2)

	result := g.ExtractAndDecide(context.Background(), "inv", "po")
	if fake.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", fake.calls)
	}
	if result.Decision != models.DecisionAuto {
		t.Errorf("expected auto decision default, got %s", result.Decision)
	}
	if result.Booking != models.BookingDecline {
		t.Errorf("expected decline booking default, got %s", result.Booking)
	}
}

func TestExtractAndDecideNormalizesVerdicts(t *testing.T) {
	reply := `{"invoice_extracted": {}, "purchase_extracted": {}, "errors": [], "decision": "maybe", "booking": "perhaps"}`
	g := newTestGateway(&fakeModel{replies: []string{reply}}, 0)

	result := g.ExtractAndDecide(context.Background(), "inv", "po")
	if result.Decision != models.DecisionAuto {
		t.Errorf("unrecognized decision should normalize to auto, got %s", result.Decision)
	}
	if result.Booking != models.BookingDecline {
		t.Errorf("unrecognized booking should normalize to decline, got %s", result.Booking)
	}
}

func TestResolveAutomatedKeepsCorrection(t *testing.T) {
	reply := `{
		"invoice_extracted": {"total_price": 90},
		"purchase_extracted": {},
		"errors": [{"error_type": "Total Price", "correction": "100"}],
		"invoice_corrected": {"total_price": 100},
		"booking": "book"
	}`
	g := newTestGateway(&fakeModel{replies: []string{reply}}, 0)

	result := g.ResolveAutomated(context.Background(), "inv", "po")
	if result.Booking != models.BookingBook {
		t.Errorf("booking not preserved: %s", result.Booking)
	}
	if result.InvoiceCorrected["total_price"] != float64(100) {
		t.Errorf("correction not preserved: %+v", result.InvoiceCorrected)
	}
}

func TestApplyFixFallbackEchoesInputs(t *testing.T) {
	invoice := models.Extraction{"order_id": "3"}
	purchase := models.Extraction{"order_id": "3"}
	g := newTestGateway(&fakeModel{err: errors.New("provider down")}, 0)

	result := g.ApplyFix(context.Background(), invoice, purchase, "change date to 2024-01-01")
	if result.InvoiceExtracted["order_id"] != "3" {
		t.Errorf("fallback must echo invoice input: %+v", result.InvoiceExtracted)
	}
	if len(result.Errors) != 0 {
		t.Errorf("fallback errors must be empty: %+v", result.Errors)
	}
}

func TestSuggestEmptyInputSkipsCall(t *testing.T) {
	fake := &fakeModel{replies: []string{"- bullet"}}
	g := newTestGateway(fake, 0)

	if got := g.Suggest(context.Background(), nil); got != "" {
		t.Errorf("expected empty suggestion, got %q", got)
	}
	if fake.calls != 0 {
		t.Errorf("no call expected for empty input, got %d", fake.calls)
	}
}

func TestSuggestReturnsBullets(t *testing.T) {
	fake := &fakeModel{replies: []string{"- Maybe Unit Price is wrong.\n- Maybe Date is wrong."}}
	g := newTestGateway(fake, 0)

	got := g.Suggest(context.Background(), []models.ErrorType{models.ErrorUnitPrice, models.ErrorDate})
	if !strings.Contains(got, "Unit Price") {
		t.Errorf("suggestion lost: %q", got)
	}
}

func TestGenerateRetriesOnEmptyCompletion(t *testing.T) {
	fake := &fakeModel{replies: []string{"", `{"invoice_extracted": {}, "purchase_extracted": {}, "errors": []}`}}
	g := newTestGateway(fake, 1)

	result := g.ExtractAndCompare(context.Background(), "inv", "po", false)
	if fake.calls != 2 {
		t.Errorf("expected retry after empty completion, got %d calls", fake.calls)
	}
	if result == nil {
		t.Fatal("expected analysis after retry")
	}
}
