package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"reconstudy/internal/config"
	"reconstudy/internal/models"
)

// Analysis is the normalized analyzer output shared by all automated levels.
// Fields that a level does not request stay zero.
type Analysis struct {
	InvoiceExtracted  models.Extraction    `json:"invoice_extracted"`
	PurchaseExtracted models.Extraction    `json:"purchase_extracted"`
	Errors            []models.Discrepancy `json:"errors"`
	InvoiceCorrected  models.Extraction    `json:"invoice_corrected,omitempty"`
	Decision          models.Decision      `json:"decision,omitempty"`
	Booking           models.Booking       `json:"booking,omitempty"`
	AIAnswer          string               `json:"ai_answer,omitempty"`
}

// Analyzer is the external document analyzer. Implementations must never
// surface transport or parse failures to callers: every method degrades to a
// conservative, well-formed default so the study flow is never interrupted.
type Analyzer interface {
	// ExtractAndCompare extracts both documents and lists discrepancies.
	// withCorrection additionally requests a corrected invoice.
	ExtractAndCompare(ctx context.Context, invoiceText, purchaseText string, withCorrection bool) *Analysis
	// ExtractAndDecide adds an auto/escalate routing verdict and a booking
	// proposal for the supervisory level.
	ExtractAndDecide(ctx context.Context, invoiceText, purchaseText string) *Analysis
	// ResolveAutomated produces the complete fully-automated outcome,
	// corrected invoice and booking included.
	ResolveAutomated(ctx context.Context, invoiceText, purchaseText string) *Analysis
	// ApplyFix rewrites the extracted invoice per the participant's
	// instructions, keeping unrelated fields and errors intact.
	ApplyFix(ctx context.Context, invoice, purchase models.Extraction, instructions string) *Analysis
	// Suggest renders hint bullet points for the still-unresolved error
	// types. Empty input or any failure yields the empty string.
	Suggest(ctx context.Context, errorTypes []models.ErrorType) string
}

// Gateway talks to the configured chat model provider.
type Gateway struct {
	chatModel model.BaseChatModel
	timeout   time.Duration
	retries   int
}

// buildChatModel is swapped out by tests to avoid real provider clients.
var buildChatModel = newProviderModel

// New constructs a Gateway for the provider named in the config.
func New(cfg *config.Config) (*Gateway, error) {
	chatModel, err := buildChatModel(cfg)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.BasicConfig.GatewayTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retries := cfg.BasicConfig.GatewayRetries
	if retries < 0 {
		retries = 0
	}
	return &Gateway{chatModel: chatModel, timeout: timeout, retries: retries}, nil
}

func newProviderModel(cfg *config.Config) (model.BaseChatModel, error) {
	provider := cfg.BasicConfig.Provider
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	ctx := context.Background()
	switch provider {
	case "openai":
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	}
	return nil, fmt.Errorf("unknown provider: %s", provider)
}

// ExtractAndCompare implements Analyzer.
func (g *Gateway) ExtractAndCompare(ctx context.Context, invoiceText, purchaseText string, withCorrection bool) *Analysis {
	prompt := comparePrompt
	if withCorrection {
		prompt = compareCorrectPrompt
	}
	raw, err := g.generate(ctx, prompt, documentPayload(invoiceText, purchaseText))
	if err != nil {
		log.Printf("gateway: compare failed: %v", err)
		return defaultAnalysis()
	}
	return parseAnalysis(raw, defaultAnalysis())
}

// ExtractAndDecide implements Analyzer.
func (g *Gateway) ExtractAndDecide(ctx context.Context, invoiceText, purchaseText string) *Analysis {
	fallback := defaultAnalysis()
	fallback.Decision = models.DecisionAuto
	fallback.Booking = models.BookingDecline

	raw, err := g.generate(ctx, decidePrompt, documentPayload(invoiceText, purchaseText))
	if err != nil {
		log.Printf("gateway: decide failed: %v", err)
		return fallback
	}
	result := parseAnalysis(raw, fallback)
	if result.Decision != models.DecisionEscalate {
		result.Decision = models.DecisionAuto
	}
	result.Booking = models.ParseBooking(string(result.Booking))
	return result
}

// ResolveAutomated implements Analyzer.
func (g *Gateway) ResolveAutomated(ctx context.Context, invoiceText, purchaseText string) *Analysis {
	fallback := defaultAnalysis()
	fallback.InvoiceCorrected = models.Extraction{}
	fallback.Booking = models.BookingDecline

	raw, err := g.generate(ctx, fullyAutoPrompt, documentPayload(invoiceText, purchaseText))
	if err != nil {
		log.Printf("gateway: fully automated resolve failed: %v", err)
		return fallback
	}
	result := parseAnalysis(raw, fallback)
	result.Booking = models.ParseBooking(string(result.Booking))
	return result
}

// ApplyFix implements Analyzer. The fallback echoes the inputs unchanged so a
// failed fix never destroys the analysis already on screen.
func (g *Gateway) ApplyFix(ctx context.Context, invoice, purchase models.Extraction, instructions string) *Analysis {
	fallback := &Analysis{
		InvoiceExtracted:  invoice,
		PurchaseExtracted: purchase,
		Errors:            []models.Discrepancy{},
	}

	payload, err := json.Marshal(map[string]any{
		"invoice_extracted":  invoice,
		"purchase_extracted": purchase,
		"instructions":       instructions,
	})
	if err != nil {
		log.Printf("gateway: encode fix payload: %v", err)
		return fallback
	}
	raw, err := g.generate(ctx, fixPrompt, string(payload))
	if err != nil {
		log.Printf("gateway: apply fix failed: %v", err)
		return fallback
	}
	return parseAnalysis(raw, fallback)
}

// Suggest implements Analyzer.
func (g *Gateway) Suggest(ctx context.Context, errorTypes []models.ErrorType) string {
	if len(errorTypes) == 0 {
		return ""
	}
	list := ""
	for _, t := range errorTypes {
		list += "- " + string(t) + "\n"
	}
	raw, err := g.generate(ctx, suggestSystemPrompt, fmt.Sprintf(suggestUserPrompt, list))
	if err != nil {
		log.Printf("gateway: suggest failed: %v", err)
		return ""
	}
	return stripFences(raw)
}

// generate runs one chat completion with timeout and bounded retry.
func (g *Gateway) generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: userPrompt},
	}

	var lastErr error
	for attempt := 0; attempt <= g.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		resp, err := g.chatModel.Generate(callCtx, messages)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		if resp == nil || resp.Content == "" {
			lastErr = fmt.Errorf("empty completion")
			continue
		}
		return resp.Content, nil
	}
	return "", fmt.Errorf("chat completion failed after %d attempts: %w", g.retries+1, lastErr)
}

func documentPayload(invoiceText, purchaseText string) string {
	payload, err := json.Marshal(map[string]string{
		"invoice_pdf_text":  invoiceText,
		"purchase_pdf_text": purchaseText,
	})
	if err != nil {
		return ""
	}
	return string(payload)
}

func defaultAnalysis() *Analysis {
	return &Analysis{
		InvoiceExtracted:  models.Extraction{},
		PurchaseExtracted: models.Extraction{},
		Errors:            []models.Discrepancy{},
	}
}
