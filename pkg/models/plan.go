package models

// PlanStatus represents the state of a planning session.
type PlanStatus string

const (
	// PlanStatusProcessing indicates the agent is exploring or planning.
	PlanStatusProcessing PlanStatus = "processing"
	// PlanStatusWaitingForAnswer indicates questions are pending user answers.
	PlanStatusWaitingForAnswer PlanStatus = "waiting_for_answer"
	// PlanStatusSummary indicates the agent produced a final plan.
	PlanStatusSummary PlanStatus = "summary"
	// PlanStatusCompleted indicates the plan was accepted and the session closed.
	PlanStatusCompleted PlanStatus = "completed"
	// PlanStatusCancelled indicates the user cancelled the session.
	PlanStatusCancelled PlanStatus = "cancelled"
	// PlanStatusError indicates the session failed.
	PlanStatusError PlanStatus = "error"
)

// Terminal returns true if no further rounds will run for this status.
func (s PlanStatus) Terminal() bool {
	switch s {
	case PlanStatusCompleted, PlanStatusCancelled, PlanStatusError:
		return true
	default:
		return false
	}
}

// QuestionOption is one selectable choice attached to a plan question.
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// PlanQuestion is a single question raised by the agent during planning.
type PlanQuestion struct {
	// Index is the question's position in the session's cumulative log.
	Index int `json:"index"`
	// Header is a short topic label for the question.
	Header string `json:"header,omitempty"`
	// Question is the question text.
	Question string `json:"question"`
	// Options lists the selectable answers, if the question is structured.
	Options []QuestionOption `json:"options,omitempty"`
	// MultiSelect indicates more than one option may be chosen.
	MultiSelect bool `json:"multi_select,omitempty"`
	// ToolUseID ties the question back to the agent's tool invocation.
	ToolUseID string `json:"tool_use_id,omitempty"`
}

// PlanAnswer is the user's answer to one question.
type PlanAnswer struct {
	// QuestionIndex correlates the answer with a question by Index.
	QuestionIndex int `json:"question_index"`
	// Answers holds the chosen values; more than one for multi-select.
	Answers []string `json:"answers"`
}
