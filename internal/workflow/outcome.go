package workflow

// State names the phase a level workflow is in after an operation. The API
// layer serializes outcomes as-is; rendering is the frontend's concern.
type State string

const (
	// StatePairSelected means a document pair is on screen and timing runs.
	StatePairSelected State = "pair_selected"
	// StateAwaitingInput means analysis results are displayed and the
	// participant must act.
	StateAwaitingInput State = "awaiting_input"
	// StateSecondDecision is the cooperative no_fix/ai_fix prompt.
	StateSecondDecision State = "second_decision"
	// StateInstructionEntry is the cooperative fix-instruction prompt.
	StateInstructionEntry State = "instruction_entry"
	// StateFixApplied shows the reworked analysis after an AI fix.
	StateFixApplied State = "fix_applied"
	// StateEscalated means the supervisory analyzer handed the task to the
	// human and a supervisor note is required.
	StateEscalated State = "escalated"
	// StateDone means the per-level task quota is reached.
	StateDone State = "done"
	// StateExhausted means no unused document pair remains. Terminal, and
	// deliberately distinct from done.
	StateExhausted State = "exhausted"
)

// Outcome is the structured result of a workflow operation.
type Outcome struct {
	State   State          `json:"state"`
	Data    map[string]any `json:"data,omitempty"`
	Warning string         `json:"warning,omitempty"`
}
