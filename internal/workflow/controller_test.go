package workflow

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reconstudy/internal/dataset"
	"reconstudy/internal/gateway"
	"reconstudy/internal/models"
	"reconstudy/internal/recorder"
	"reconstudy/internal/session"
	"reconstudy/internal/worker"
)

type stubAnalyzer struct {
	compare *gateway.Analysis
	decide  *gateway.Analysis
	resolve *gateway.Analysis
	fix     *gateway.Analysis

	suggestion   string
	suggestTypes []models.ErrorType
	fixCalls     int
}

func (s *stubAnalyzer) ExtractAndCompare(ctx context.Context, inv, po string, withCorrection bool) *gateway.Analysis {
	return s.compare
}

func (s *stubAnalyzer) ExtractAndDecide(ctx context.Context, inv, po string) *gateway.Analysis {
	return s.decide
}

func (s *stubAnalyzer) ResolveAutomated(ctx context.Context, inv, po string) *gateway.Analysis {
	return s.resolve
}

func (s *stubAnalyzer) ApplyFix(ctx context.Context, invoice, purchase models.Extraction, instructions string) *gateway.Analysis {
	s.fixCalls++
	return s.fix
}

func (s *stubAnalyzer) Suggest(ctx context.Context, types []models.ErrorType) string {
	s.suggestTypes = types
	return s.suggestion
}

type stubExtractor struct{}

func (stubExtractor) Text(ctx context.Context, path string) (string, error) {
	return "text of " + filepath.Base(path), nil
}

type fixture struct {
	controller *Controller
	analyzer   *stubAnalyzer
	recorder   *recorder.Recorder
	sess       *session.Session
}

// newFixture builds a controller over a temp dataset with the given pair IDs
// (all with modified invoices, selected deterministically) and quota.
func newFixture(t *testing.T, ids []string, quota int) *fixture {
	t.Helper()
	base := t.TempDir()
	invoiceDir := filepath.Join(base, "invoices")
	purchaseDir := filepath.Join(base, "purchase_orders")
	modifiedDir := filepath.Join(base, "invoices_modified")
	for _, dir := range []string{invoiceDir, purchaseDir, modifiedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	for _, id := range ids {
		for _, f := range []string{
			filepath.Join(invoiceDir, "invoice_"+id+".pdf"),
			filepath.Join(modifiedDir, "modified_invoice_"+id+".pdf"),
			filepath.Join(purchaseDir, "purchase_orders_"+id+".pdf"),
		} {
			if err := os.WriteFile(f, []byte("pdf"), 0o644); err != nil {
				t.Fatalf("write fixture: %v", err)
			}
		}
	}

	lib := dataset.NewLibrary(invoiceDir, purchaseDir, modifiedDir, 1.0, rand.New(rand.NewSource(1)))
	rec := recorder.New(filepath.Join(base, "results"))
	analyzer := &stubAnalyzer{}
	dispatch := worker.NewDispatcher(1, 2, 8, time.Minute)
	ctrl := NewController(lib, stubExtractor{}, analyzer, rec, dispatch, quota)

	return &fixture{
		controller: ctrl,
		analyzer:   analyzer,
		recorder:   rec,
		sess:       &session.Session{Token: "t", UserID: "alice"},
	}
}

func mustOutcome(t *testing.T, out *Outcome, err error, want State) *Outcome {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.State != want {
		t.Fatalf("expected state %s, got %s (warning: %s)", want, out.State, out.Warning)
	}
	return out
}

func beginPair(t *testing.T, fx *fixture, sess *session.Session, level models.Level) {
	t.Helper()
	out, err := fx.controller.Begin(sess, level)
	mustOutcome(t, out, err, StatePairSelected)
}

func TestManualLevelEndToEnd(t *testing.T) {
	fx := newFixture(t, []string{"1", "2", "3", "4"}, 3)
	sess := fx.sess

	out, err := fx.controller.Begin(sess, models.LevelManual)
	mustOutcome(t, out, err, StatePairSelected)

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		if sess.Task == nil {
			t.Fatalf("no task before submit %d", i)
		}
		if seen[sess.Task.Pair.ID] {
			t.Fatalf("pair %s repeated", sess.Task.Pair.ID)
		}
		seen[sess.Task.Pair.ID] = true

		sess.Task.StartedAt = time.Now().UTC().Add(-1500 * time.Millisecond)
		out, err = fx.controller.Submit(sess, []models.Discrepancy{
			{ErrorType: models.ErrorQuantity, Correction: "4"},
		}, models.BookingDecline)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if out.State != StateDone {
		t.Fatalf("expected done after third submit, got %s", out.State)
	}
	if sess.CompletedAt(models.LevelManual) != 3 {
		t.Fatalf("completed count = %d", sess.CompletedAt(models.LevelManual))
	}

	records, err := fx.recorder.Read("alice", models.LevelManual)
	if err != nil {
		t.Fatalf("read records: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for _, r := range records {
		if r.DurationSeconds < 1.0 || r.DurationSeconds > 10 {
			t.Errorf("implausible duration %v", r.DurationSeconds)
		}
		if r.Booking != models.BookingDecline {
			t.Errorf("booking not recorded: %s", r.Booking)
		}
		if len(r.InvoiceExtracted) != 0 {
			t.Errorf("manual record must not carry extractions: %+v", r.InvoiceExtracted)
		}
	}

	// Re-entering a finished level is done without consuming a pair.
	used := len(sess.UsedDocumentIDs)
	out, err = fx.controller.Begin(sess, models.LevelManual)
	mustOutcome(t, out, err, StateDone)
	if len(sess.UsedDocumentIDs) != used {
		t.Error("done entry consumed a pair")
	}
}

func TestBeginHonorsPersistedOutcomeLog(t *testing.T) {
	fx := newFixture(t, []string{"1", "2", "3", "4"}, 3)

	beginPair(t, fx, fx.sess, models.LevelManual)
	for i := 0; i < 3; i++ {
		if _, err := fx.controller.Submit(fx.sess, nil, models.BookingBook); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	// A fresh session for the same user must not restart a finished level.
	relogin := &session.Session{Token: "t2", UserID: "alice"}
	out, err := fx.controller.Begin(relogin, models.LevelManual)
	mustOutcome(t, out, err, StateDone)
	if relogin.Task != nil {
		t.Fatal("done entry must not select a pair")
	}
	if relogin.CompletedAt(models.LevelManual) != 3 {
		t.Fatalf("count not seeded from log: %d", relogin.CompletedAt(models.LevelManual))
	}

	records, err := fx.recorder.Read("alice", models.LevelManual)
	if err != nil || len(records) != 3 {
		t.Fatalf("log must stay at the cap: %d records, err %v", len(records), err)
	}
}

func TestBeginResumesPartialLevelAcrossSessions(t *testing.T) {
	fx := newFixture(t, []string{"1", "2", "3", "4"}, 3)

	beginPair(t, fx, fx.sess, models.LevelManual)
	if _, err := fx.controller.Submit(fx.sess, nil, models.BookingBook); err != nil {
		t.Fatalf("submit: %v", err)
	}

	relogin := &session.Session{Token: "t2", UserID: "alice"}
	out, err := fx.controller.Begin(relogin, models.LevelManual)
	mustOutcome(t, out, err, StatePairSelected)
	if relogin.CompletedAt(models.LevelManual) != 1 {
		t.Fatalf("count not seeded from log: %d", relogin.CompletedAt(models.LevelManual))
	}

	for i := 0; i < 2; i++ {
		out, err = fx.controller.Submit(relogin, nil, models.BookingBook)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if out.State != StateDone {
		t.Fatalf("expected done after the remaining tasks, got %s", out.State)
	}
}

func TestBeginExhaustedDistinctFromDone(t *testing.T) {
	fx := newFixture(t, []string{"1"}, 3)
	sess := fx.sess

	out, err := fx.controller.Begin(sess, models.LevelManual)
	mustOutcome(t, out, err, StatePairSelected)

	out, err = fx.controller.Submit(sess, nil, models.BookingBook)
	mustOutcome(t, out, err, StateExhausted)
	if sess.CompletedAt(models.LevelManual) != 1 {
		t.Fatalf("completed submit must still count: %d", sess.CompletedAt(models.LevelManual))
	}
}

func TestLevelSwitchPreservesUsedPairs(t *testing.T) {
	fx := newFixture(t, []string{"1", "2"}, 3)
	sess := fx.sess

	beginPair(t, fx, sess, models.LevelManual)
	firstID := sess.Task.Pair.ID
	sess.Task.HumanErrors = []models.Discrepancy{{ErrorType: models.ErrorDate}}

	out, err := fx.controller.Begin(sess, models.LevelAssistive)
	mustOutcome(t, out, err, StatePairSelected)

	if sess.Task.Pair.ID == firstID {
		t.Error("used pair repeated after level switch")
	}
	if len(sess.Task.HumanErrors) != 0 {
		t.Error("task state leaked across levels")
	}
	if _, ok := sess.UsedSet()[firstID]; !ok {
		t.Error("used set lost on level switch")
	}
}

func TestAnalyzeRejectsManualLevel(t *testing.T) {
	fx := newFixture(t, []string{"1"}, 3)
	sess := fx.sess
	beginPair(t, fx, sess, models.LevelManual)

	if _, err := fx.controller.Analyze(context.Background(), sess); !errors.Is(err, ErrWrongLevel) {
		t.Fatalf("expected ErrWrongLevel, got %v", err)
	}
}

func TestAssistiveAnalyzeAndSubmit(t *testing.T) {
	fx := newFixture(t, []string{"1", "2"}, 3)
	fx.analyzer.compare = &gateway.Analysis{
		InvoiceExtracted:  models.Extraction{"order_id": "1", "total_price": "100"},
		PurchaseExtracted: models.Extraction{"order_id": "1"},
		Errors: []models.Discrepancy{
			{ErrorType: models.ErrorTotalPrice, Description: "total differs", Correction: "100"},
		},
	}
	fx.analyzer.suggestion = "- Maybe Total Price is wrong."
	sess := fx.sess

	beginPair(t, fx, sess, models.LevelAssistive)
	out, err := fx.controller.Analyze(context.Background(), sess)
	mustOutcome(t, out, err, StateAwaitingInput)

	if out.Data["suggestions"] != "- Maybe Total Price is wrong." {
		t.Errorf("suggestions missing: %v", out.Data["suggestions"])
	}
	if len(fx.analyzer.suggestTypes) != 1 || fx.analyzer.suggestTypes[0] != models.ErrorTotalPrice {
		t.Errorf("suggest types wrong: %v", fx.analyzer.suggestTypes)
	}

	out, err = fx.controller.Submit(sess, []models.Discrepancy{
		{ErrorType: models.ErrorTotalPrice, Correction: "100"},
	}, models.BookingBook)
	mustOutcome(t, out, err, StatePairSelected)

	records, err := fx.recorder.Read("alice", models.LevelAssistive)
	if err != nil || len(records) != 1 {
		t.Fatalf("records: %v err %v", records, err)
	}
	if records[0].InvoiceExtracted["total_price"] != "100" {
		t.Errorf("assistive record must carry extractions: %+v", records[0])
	}
}

func TestSupervisoryAutoFinalizesWithoutHuman(t *testing.T) {
	fx := newFixture(t, []string{"1", "2"}, 3)
	fx.analyzer.decide = &gateway.Analysis{
		InvoiceExtracted:  models.Extraction{},
		PurchaseExtracted: models.Extraction{},
		Errors:            []models.Discrepancy{},
		Decision:          models.DecisionAuto,
		Booking:           models.BookingBook,
	}
	sess := fx.sess

	beginPair(t, fx, sess, models.LevelSupervisory)
	out, err := fx.controller.Analyze(context.Background(), sess)
	mustOutcome(t, out, err, StatePairSelected) // advanced straight to the next pair

	records, err := fx.recorder.Read("alice", models.LevelSupervisory)
	if err != nil || len(records) != 1 {
		t.Fatalf("records: %v err %v", records, err)
	}
	if records[0].Decision != models.DecisionAuto || records[0].Booking != models.BookingBook {
		t.Errorf("auto verdict not recorded: %+v", records[0])
	}
	if records[0].SupervisorNote != "" {
		t.Errorf("auto record must not have a note: %+v", records[0])
	}
}

func TestSupervisoryEscalationRequiresNote(t *testing.T) {
	fx := newFixture(t, []string{"1", "2"}, 3)
	fx.analyzer.decide = &gateway.Analysis{
		InvoiceExtracted:  models.Extraction{},
		PurchaseExtracted: models.Extraction{},
		Errors: []models.Discrepancy{
			{ErrorType: models.ErrorQuantity}, {ErrorType: models.ErrorUnitPrice}, {ErrorType: models.ErrorDate},
		},
		Decision: models.DecisionEscalate,
		Booking:  models.BookingDecline,
	}
	sess := fx.sess

	beginPair(t, fx, sess, models.LevelSupervisory)
	out, err := fx.controller.Analyze(context.Background(), sess)
	mustOutcome(t, out, err, StateEscalated)
	if out.Data["proposed_booking"] != models.BookingDecline {
		t.Errorf("analyzer recommendation missing: %v", out.Data["proposed_booking"])
	}

	out, err = fx.controller.Display(sess)
	mustOutcome(t, out, err, StateEscalated)
	if out.Data["proposed_booking"] != models.BookingDecline {
		t.Errorf("recommendation lost on redisplay: %v", out.Data["proposed_booking"])
	}

	if _, err := fx.controller.SupervisorNote(sess, "", models.BookingDecline); !errors.Is(err, ErrNoteRequired) {
		t.Fatalf("expected ErrNoteRequired, got %v", err)
	}
	if sess.Task == nil {
		t.Fatal("rejected note must not consume the task")
	}

	out, err = fx.controller.SupervisorNote(sess, "three discrepancies, declining", models.BookingDecline)
	mustOutcome(t, out, err, StatePairSelected)

	records, err := fx.recorder.Read("alice", models.LevelSupervisory)
	if err != nil || len(records) != 1 {
		t.Fatalf("records: %v err %v", records, err)
	}
	if records[0].SupervisorNote == "" || records[0].Decision != models.DecisionEscalate {
		t.Errorf("escalation not recorded: %+v", records[0])
	}
}

func TestFullyAutomatedRecordsCorrectedInvoice(t *testing.T) {
	fx := newFixture(t, []string{"1", "2"}, 3)
	fx.analyzer.resolve = &gateway.Analysis{
		InvoiceExtracted:  models.Extraction{"total_price": float64(90)},
		PurchaseExtracted: models.Extraction{},
		Errors: []models.Discrepancy{
			{ErrorType: models.ErrorTotalPrice, Correction: "100"},
		},
		InvoiceCorrected: models.Extraction{"total_price": float64(100)},
		Booking:          models.BookingBook,
	}
	sess := fx.sess

	beginPair(t, fx, sess, models.LevelFullyAutomated)
	out, err := fx.controller.Analyze(context.Background(), sess)
	mustOutcome(t, out, err, StatePairSelected)

	records, err := fx.recorder.Read("alice", models.LevelFullyAutomated)
	if err != nil || len(records) != 1 {
		t.Fatalf("records: %v err %v", records, err)
	}
	if records[0].InvoiceCorrected["total_price"] != float64(100) {
		t.Errorf("correction not recorded: %+v", records[0])
	}
	if records[0].Booking != models.BookingBook {
		t.Errorf("booking not recorded: %+v", records[0])
	}
}

func TestAddErrorNeedsTask(t *testing.T) {
	fx := newFixture(t, []string{"1"}, 3)
	sess := fx.sess

	err := fx.controller.AddError(sess, models.Discrepancy{ErrorType: models.ErrorDate})
	if !errors.Is(err, ErrNoTask) {
		t.Fatalf("expected ErrNoTask, got %v", err)
	}

	beginPair(t, fx, sess, models.LevelManual)
	if err := fx.controller.AddError(sess, models.Discrepancy{ErrorType: models.ErrorDate}); err != nil {
		t.Fatalf("AddError: %v", err)
	}
	if len(sess.Task.HumanErrors) != 1 {
		t.Fatalf("error not stored: %+v", sess.Task)
	}
}
