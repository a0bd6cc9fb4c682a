package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"reconstudy/internal/dataset"
	"reconstudy/internal/gateway"
	"reconstudy/internal/models"
	"reconstudy/internal/recorder"
	"reconstudy/internal/session"
	"reconstudy/internal/worker"
)

// DefaultTasksPerLevel is the study quota of document pairs per level.
const DefaultTasksPerLevel = 3

// Input errors; the API layer maps these to 400.
var (
	ErrNoTask       = errors.New("no task in progress")
	ErrWrongLevel   = errors.New("operation not valid for the active level")
	ErrNotAnalyzed  = errors.New("analysis has not run for this task")
	ErrNoteRequired = errors.New("supervisor note is required")
)

// TextExtractor turns a document file into plain text for the analyzer.
type TextExtractor interface {
	Text(ctx context.Context, path string) (string, error)
}

// Controller drives the per-level workflows over a participant session. It
// mutates the session in place; the caller persists it afterwards.
type Controller struct {
	library   *dataset.Library
	extractor TextExtractor
	analyzer  gateway.Analyzer
	recorder  *recorder.Recorder
	dispatch  *worker.Dispatcher
	quota     int
}

func NewController(lib *dataset.Library, ext TextExtractor, analyzer gateway.Analyzer, rec *recorder.Recorder, dispatch *worker.Dispatcher, tasksPerLevel int) *Controller {
	if tasksPerLevel <= 0 {
		tasksPerLevel = DefaultTasksPerLevel
	}
	return &Controller{
		library:   lib,
		extractor: ext,
		analyzer:  analyzer,
		recorder:  rec,
		dispatch:  dispatch,
		quota:     tasksPerLevel,
	}
}

// Begin enters a level: clears task state, checks the quota, and selects the
// next document pair. The quota check happens on entry, so a participant
// returning to a finished level lands on done without consuming a pair. The
// outcome log is authoritative for the count, so a fresh session for the
// same user cannot repeat a level it already finished.
func (c *Controller) Begin(sess *session.Session, level models.Level) (*Outcome, error) {
	sess.EnterLevel(level)
	recorded, err := c.recorder.Count(sess.UserID, level)
	if err != nil {
		return nil, fmt.Errorf("count recorded outcomes: %w", err)
	}
	sess.SyncCompleted(level, recorded)
	if sess.CompletedAt(level) >= c.quota {
		return &Outcome{State: StateDone, Data: c.progress(sess, level)}, nil
	}
	return c.selectPair(sess, level)
}

// Analyze runs the level's analyzer pass on the current pair. Manual has no
// analyzer involvement, so calling it there is an input error.
func (c *Controller) Analyze(ctx context.Context, sess *session.Session) (*Outcome, error) {
	level := sess.ActiveLevel
	if !level.Automated() {
		return nil, ErrWrongLevel
	}
	task := sess.Task
	if task == nil {
		return nil, ErrNoTask
	}

	invoiceText, err := c.extractor.Text(ctx, c.library.InvoicePath(task.Pair))
	if err != nil {
		return nil, fmt.Errorf("extract invoice: %w", err)
	}
	purchaseText, err := c.extractor.Text(ctx, c.library.PurchasePath(task.Pair))
	if err != nil {
		return nil, fmt.Errorf("extract purchase order: %w", err)
	}

	var analysis *gateway.Analysis
	run := func() {}
	switch level {
	case models.LevelAssistive:
		run = func() { analysis = c.analyzer.ExtractAndCompare(ctx, invoiceText, purchaseText, false) }
	case models.LevelCooperative:
		run = func() { analysis = c.analyzer.ExtractAndCompare(ctx, invoiceText, purchaseText, true) }
	case models.LevelSupervisory:
		run = func() { analysis = c.analyzer.ExtractAndDecide(ctx, invoiceText, purchaseText) }
	case models.LevelFullyAutomated:
		run = func() { analysis = c.analyzer.ResolveAutomated(ctx, invoiceText, purchaseText) }
	}
	if err := c.dispatch.Do(ctx, sess.UserID, run); err != nil {
		return nil, err
	}

	task.Analyzed = true
	task.InvoiceExtracted = analysis.InvoiceExtracted
	task.PurchaseExtracted = analysis.PurchaseExtracted
	task.AIErrors = analysis.Errors

	switch level {
	case models.LevelAssistive:
		var remark string
		types := uniqueErrorTypes(analysis.Errors, nil, nil)
		if err := c.dispatch.Do(ctx, sess.UserID, func() {
			remark = c.analyzer.Suggest(ctx, types)
		}); err != nil {
			return nil, err
		}
		task.Suggestions = remark
		return &Outcome{State: StateAwaitingInput, Data: map[string]any{
			"invoice_extracted":  task.InvoiceExtracted,
			"purchase_extracted": task.PurchaseExtracted,
			"errors":             task.AIErrors,
			"suggestions":        remark,
		}}, nil

	case models.LevelCooperative:
		task.FirstDecision = ""
		task.SecondDecision = ""
		task.Instructions = ""
		task.FixApplied = false
		task.AIAnswer = ""
		return &Outcome{State: StateAwaitingInput, Data: c.cooperativeView(task)}, nil

	case models.LevelSupervisory:
		task.Decision = analysis.Decision
		task.ProposedBooking = analysis.Booking
		if analysis.Decision == models.DecisionEscalate {
			return &Outcome{State: StateEscalated, Data: map[string]any{
				"invoice_extracted":  task.InvoiceExtracted,
				"purchase_extracted": task.PurchaseExtracted,
				"errors":             task.AIErrors,
				"proposed_booking":   task.ProposedBooking,
			}}, nil
		}
		return c.finalize(sess, models.TaskRecord{
			Errors:   task.AIErrors,
			Booking:  analysis.Booking,
			Decision: models.DecisionAuto,
		}, true)

	case models.LevelFullyAutomated:
		task.InvoiceCorrected = analysis.InvoiceCorrected
		return c.finalize(sess, models.TaskRecord{
			Errors:           task.AIErrors,
			Booking:          analysis.Booking,
			InvoiceCorrected: analysis.InvoiceCorrected,
		}, true)
	}
	return nil, ErrWrongLevel
}

// Display reports the current view of the in-flight task without mutating
// anything, so a page reload lands where the participant left off.
func (c *Controller) Display(sess *session.Session) (*Outcome, error) {
	task := sess.Task
	if task == nil {
		return nil, ErrNoTask
	}
	level := sess.ActiveLevel

	if !task.Analyzed {
		data := c.progress(sess, level)
		data["invoice_file"] = task.Pair.InvoiceFile
		data["purchase_file"] = task.Pair.PurchaseFile
		return &Outcome{State: StatePairSelected, Data: data}, nil
	}

	switch level {
	case models.LevelAssistive:
		return &Outcome{State: StateAwaitingInput, Data: map[string]any{
			"invoice_extracted":  task.InvoiceExtracted,
			"purchase_extracted": task.PurchaseExtracted,
			"errors":             task.AIErrors,
			"suggestions":        task.Suggestions,
		}}, nil
	case models.LevelCooperative:
		state := StateAwaitingInput
		switch {
		case task.FixApplied:
			state = StateFixApplied
		case task.FirstDecision == FirstDecisionNotOK && task.SecondDecision == SecondDecisionAIFix && task.Instructions == "":
			state = StateInstructionEntry
		case task.FirstDecision == FirstDecisionNotOK && task.SecondDecision == "":
			state = StateSecondDecision
		}
		return &Outcome{State: state, Data: c.cooperativeView(task)}, nil
	case models.LevelSupervisory:
		if task.Decision == models.DecisionEscalate {
			return &Outcome{State: StateEscalated, Data: map[string]any{
				"invoice_extracted":  task.InvoiceExtracted,
				"purchase_extracted": task.PurchaseExtracted,
				"errors":             task.AIErrors,
				"proposed_booking":   task.ProposedBooking,
			}}, nil
		}
	}
	return &Outcome{State: StateAwaitingInput, Data: map[string]any{
		"invoice_extracted":  task.InvoiceExtracted,
		"purchase_extracted": task.PurchaseExtracted,
		"errors":             task.AIErrors,
	}}, nil
}

// Submit records the participant's verdict for the manual and assistive
// levels and advances to the next pair.
func (c *Controller) Submit(sess *session.Session, reported []models.Discrepancy, booking models.Booking) (*Outcome, error) {
	level := sess.ActiveLevel
	if level != models.LevelManual && level != models.LevelAssistive {
		return nil, ErrWrongLevel
	}
	task := sess.Task
	if task == nil {
		return nil, ErrNoTask
	}

	all := append(append([]models.Discrepancy{}, task.HumanErrors...), reported...)
	record := models.TaskRecord{
		Errors:  all,
		Booking: booking,
	}
	// Manual reviews carry no extractions; assistive keeps the analyzer's.
	return c.finalize(sess, record, level == models.LevelAssistive)
}

// AddError records one human-reported discrepancy against the current task.
func (c *Controller) AddError(sess *session.Session, d models.Discrepancy) error {
	if sess.Task == nil {
		return ErrNoTask
	}
	sess.Task.HumanErrors = append(sess.Task.HumanErrors, d)
	return nil
}

// SupervisorNote finalizes an escalated supervisory task with the human
// verdict. The note is mandatory.
func (c *Controller) SupervisorNote(sess *session.Session, note string, booking models.Booking) (*Outcome, error) {
	if sess.ActiveLevel != models.LevelSupervisory {
		return nil, ErrWrongLevel
	}
	task := sess.Task
	if task == nil {
		return nil, ErrNoTask
	}
	if task.Decision != models.DecisionEscalate {
		return nil, ErrNotAnalyzed
	}
	if note == "" {
		return nil, ErrNoteRequired
	}
	task.SupervisorNote = note
	return c.finalize(sess, models.TaskRecord{
		Errors:         task.AIErrors,
		Booking:        booking,
		Decision:       models.DecisionEscalate,
		SupervisorNote: note,
	}, true)
}

// finalize closes out the current task: writes the outcome record, counts it
// toward the quota, and either selects the next pair or reports done.
// withExtractions controls whether the analyzer snapshots go in the record.
func (c *Controller) finalize(sess *session.Session, record models.TaskRecord, withExtractions bool) (*Outcome, error) {
	level := sess.ActiveLevel
	task := sess.Task

	record.InvoiceFile = task.Pair.InvoiceFile
	record.PurchaseFile = task.Pair.PurchaseFile
	record.DurationSeconds = roundDuration(time.Since(task.StartedAt))
	if withExtractions {
		record.InvoiceExtracted = task.InvoiceExtracted
		record.PurchaseExtracted = task.PurchaseExtracted
	}
	if record.Errors == nil {
		record.Errors = []models.Discrepancy{}
	}

	if err := c.recorder.Append(sess.UserID, level, record); err != nil {
		return nil, fmt.Errorf("record outcome: %w", err)
	}

	sess.MarkCompleted(level)
	sess.Task = nil

	if sess.CompletedAt(level) >= c.quota {
		return &Outcome{State: StateDone, Data: c.progress(sess, level)}, nil
	}
	return c.selectPair(sess, level)
}

func (c *Controller) selectPair(sess *session.Session, level models.Level) (*Outcome, error) {
	pair, err := c.library.SelectPair(sess.UsedSet())
	if err != nil {
		if errors.Is(err, dataset.ErrNoPairs) {
			return &Outcome{State: StateExhausted, Data: c.progress(sess, level)}, nil
		}
		return nil, err
	}
	sess.MarkUsed(pair.ID)
	sess.Task = &session.TaskState{
		Pair:      pair,
		StartedAt: time.Now().UTC(),
	}
	data := c.progress(sess, level)
	data["invoice_file"] = pair.InvoiceFile
	data["purchase_file"] = pair.PurchaseFile
	return &Outcome{State: StatePairSelected, Data: data}, nil
}

func (c *Controller) progress(sess *session.Session, level models.Level) map[string]any {
	return map[string]any{
		"level":     level,
		"completed": sess.CompletedAt(level),
		"quota":     c.quota,
	}
}

// roundDuration reports elapsed seconds with two decimals.
func roundDuration(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
