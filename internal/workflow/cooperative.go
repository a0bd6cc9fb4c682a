package workflow

import (
	"context"

	"reconstudy/internal/gateway"
	"reconstudy/internal/models"
	"reconstudy/internal/session"
)

// Cooperative decision vocabulary.
const (
	FirstDecisionOK    = "ok"
	FirstDecisionNotOK = "not_ok"

	SecondDecisionNoFix = "no_fix"
	SecondDecisionAIFix = "ai_fix"

	NextDecisionOKNow      = "ok_now"
	NextDecisionStillError = "still_error"
)

// CooperativeDecide advances the cooperative decision flow. The participant
// first accepts or rejects the analysis; a rejection asks whether the AI
// should attempt a fix, and a fix needs written instructions before the
// analyzer is called.
func (c *Controller) CooperativeDecide(ctx context.Context, sess *session.Session, first, second, instructions string) (*Outcome, error) {
	if sess.ActiveLevel != models.LevelCooperative {
		return nil, ErrWrongLevel
	}
	task := sess.Task
	if task == nil {
		return nil, ErrNoTask
	}
	if !task.Analyzed {
		return nil, ErrNotAnalyzed
	}

	if first != "" {
		task.FirstDecision = first
	}
	if second != "" {
		task.SecondDecision = second
	}

	switch first {
	case FirstDecisionOK:
		return c.finalizeCooperative(sess, models.BookingBook)

	case FirstDecisionNotOK:
		switch second {
		case "":
			return &Outcome{State: StateSecondDecision, Data: c.cooperativeView(task)}, nil
		case SecondDecisionNoFix:
			return c.finalizeCooperative(sess, models.BookingDecline)
		case SecondDecisionAIFix:
			if instructions == "" {
				return &Outcome{State: StateInstructionEntry, Data: c.cooperativeView(task)}, nil
			}
			return c.applyFix(ctx, sess, instructions)
		default:
			return &Outcome{
				State:   StateSecondDecision,
				Data:    c.cooperativeView(task),
				Warning: "unknown second decision: " + second,
			}, nil
		}

	default:
		return &Outcome{
			State:   StateAwaitingInput,
			Data:    c.cooperativeView(task),
			Warning: "unknown first decision: " + first,
		}, nil
	}
}

// CooperativeNext handles the verdict on an applied fix. still_error loops
// back to the second-decision prompt on the preserved analysis; the task is
// not re-analyzed.
func (c *Controller) CooperativeNext(sess *session.Session, next string) (*Outcome, error) {
	if sess.ActiveLevel != models.LevelCooperative {
		return nil, ErrWrongLevel
	}
	task := sess.Task
	if task == nil {
		return nil, ErrNoTask
	}
	if !task.FixApplied {
		return nil, ErrNotAnalyzed
	}

	switch next {
	case NextDecisionOKNow:
		return c.finalizeCooperative(sess, models.BookingBook)
	case NextDecisionStillError:
		task.FixApplied = false
		return &Outcome{State: StateSecondDecision, Data: c.cooperativeView(task)}, nil
	default:
		return &Outcome{
			State:   StateFixApplied,
			Data:    c.cooperativeView(task),
			Warning: "invalid decision: " + next,
		}, nil
	}
}

func (c *Controller) applyFix(ctx context.Context, sess *session.Session, instructions string) (*Outcome, error) {
	task := sess.Task
	task.Instructions = instructions

	var result *gateway.Analysis
	err := c.dispatch.Do(ctx, sess.UserID, func() {
		result = c.analyzer.ApplyFix(ctx, task.InvoiceExtracted, task.PurchaseExtracted, instructions)
	})
	if err != nil {
		return nil, err
	}

	task.InvoiceExtracted = result.InvoiceExtracted
	task.PurchaseExtracted = result.PurchaseExtracted
	task.AIErrors = result.Errors
	task.AIAnswer = result.AIAnswer
	task.FixApplied = true
	return &Outcome{State: StateFixApplied, Data: c.cooperativeView(task)}, nil
}

func (c *Controller) finalizeCooperative(sess *session.Session, booking models.Booking) (*Outcome, error) {
	task := sess.Task
	return c.finalize(sess, models.TaskRecord{
		Errors:   task.AIErrors,
		Booking:  booking,
		AIAnswer: task.AIAnswer,
	}, true)
}

func (c *Controller) cooperativeView(task *session.TaskState) map[string]any {
	return map[string]any{
		"invoice_extracted":  task.InvoiceExtracted,
		"purchase_extracted": task.PurchaseExtracted,
		"errors":             task.AIErrors,
		"fix_applied":        task.FixApplied,
		"ai_answer":          task.AIAnswer,
	}
}
