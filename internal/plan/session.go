// Package plan runs multi-turn planning sessions on top of a stateless
// agent invocation. The agent has no memory across invocations, so every
// round after the first is spawned with a prompt that replays the full
// question/answer transcript so far.
package plan

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/taskforge/taskforge/pkg/models"
)

// InterviewSuffix is appended to the prompt when the session should
// interview the user before producing a plan.
const InterviewSuffix = `

Interview me in detail using the AskUserQuestion tool about literally anything: technical implementation, UI & UX, concerns, tradeoffs, etc. but make sure the questions are not obvious.
Be very in-depth and continue interviewing me continually until it's complete. After gathering all information, provide a summary of the implementation plan.`

// Session tracks the state of one planning interaction.
type Session struct {
	mu sync.Mutex

	id        string
	title     string
	prompt    string
	questions []models.PlanQuestion
	answers   []models.PlanAnswer
	pending   []models.PlanQuestion
	status    models.PlanStatus
	summary   string
	// output accumulates raw agent output across rounds.
	output strings.Builder
	// askQuestions controls whether the interview suffix is applied.
	askQuestions bool

	createdAt    time.Time
	lastActivity time.Time
}

// Info is a point-in-time snapshot of a session, safe to hand out.
type Info struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Prompt       string                `json:"prompt"`
	Questions    []models.PlanQuestion `json:"questions"`
	Answers      []models.PlanAnswer   `json:"answers"`
	Pending      []models.PlanQuestion `json:"pending_questions"`
	Status       models.PlanStatus     `json:"status"`
	Summary      string                `json:"summary,omitempty"`
	AskQuestions bool                  `json:"ask_questions"`
}

// NewSession creates a session in the Processing state.
func NewSession(id, title, prompt string, askQuestions bool) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		title:        title,
		prompt:       prompt,
		status:       models.PlanStatusProcessing,
		askQuestions: askQuestions,
		createdAt:    now,
		lastActivity: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Status returns the current status.
func (s *Session) Status() models.PlanStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// RecordQuestions appends newly asked questions to the cumulative log,
// makes them the pending set, and moves to WaitingForAnswer.
func (s *Session) RecordQuestions(questions []models.PlanQuestion) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = questions
	s.questions = append(s.questions, questions...)
	s.status = models.PlanStatusWaitingForAnswer
	s.lastActivity = time.Now()
}

// RecordAnswers appends the user's answers, clears the pending set, and
// moves back to Processing for the next round.
func (s *Session) RecordAnswers(answers []models.PlanAnswer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.answers = append(s.answers, answers...)
	s.pending = nil
	s.status = models.PlanStatusProcessing
	s.lastActivity = time.Now()
}

// RecordSummary stores the final plan text and moves to Summary.
func (s *Session) RecordSummary(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summary = text
	s.status = models.PlanStatusSummary
	s.lastActivity = time.Now()
}

// SetStatus moves the session to the given status.
func (s *Session) SetStatus(status models.PlanStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = status
	s.lastActivity = time.Now()
}

// AppendOutput accumulates a line of raw agent output.
func (s *Session) AppendOutput(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.output.WriteString(line)
	s.output.WriteByte('\n')
	s.lastActivity = time.Now()
}

// NextQuestionIndex returns the index the next asked question should carry.
func (s *Session) NextQuestionIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.questions)
}

// IdleSince reports how long the session has been without activity.
func (s *Session) IdleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// SpawnPrompt is the prompt for the session's first round: the original
// prompt, with the interview instruction appended when the session should
// question the user.
func (s *Session) SpawnPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return spawnPrompt(s.prompt, s.askQuestions)
}

func spawnPrompt(prompt string, askQuestions bool) string {
	if askQuestions {
		return prompt + InterviewSuffix
	}
	return prompt
}

// BuildContinuationPrompt renders the prompt for a re-spawn round: the
// original prompt followed by every question/answer pair so far and an
// instruction to continue. With no history it equals the first-round prompt.
func (s *Session) BuildContinuationPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return buildContinuationPrompt(s.prompt, s.questions, s.answers, s.askQuestions)
}

// buildContinuationPrompt is the pure prompt-reconstruction rule, kept
// separate from session state so it can be reasoned about on its own.
func buildContinuationPrompt(prompt string, questions []models.PlanQuestion, answers []models.PlanAnswer, askQuestions bool) string {
	if len(questions) == 0 {
		return spawnPrompt(prompt, askQuestions)
	}

	byIndex := make(map[int]models.PlanAnswer, len(answers))
	for _, a := range answers {
		byIndex[a.QuestionIndex] = a
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n## Previous conversation with the user\n\n")

	for _, q := range questions {
		a, ok := byIndex[q.Index]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "**Question (%s)**: %s\n", q.Header, q.Question)
		fmt.Fprintf(&b, "**User's answer**: %s\n\n", strings.Join(a.Answers, ", "))
	}

	b.WriteString("## Continue from here\n\n")
	b.WriteString("Based on the user's answers above, continue the planning process. ")
	b.WriteString("Ask more questions if needed or provide the final implementation plan.")

	return b.String()
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Info{
		ID:           s.id,
		Title:        s.title,
		Prompt:       s.prompt,
		Questions:    append([]models.PlanQuestion(nil), s.questions...),
		Answers:      append([]models.PlanAnswer(nil), s.answers...),
		Pending:      append([]models.PlanQuestion(nil), s.pending...),
		Status:       s.status,
		Summary:      s.summary,
		AskQuestions: s.askQuestions,
	}
}
