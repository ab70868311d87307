// Package tui provides the terminal Kanban board for taskforge.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/taskforge/taskforge/internal/broadcast"
	"github.com/taskforge/taskforge/internal/orchestrator"
	"github.com/taskforge/taskforge/pkg/models"
)

// columns is the board's left-to-right column order.
var columns = []models.TaskStatus{
	models.TaskStatusTodo,
	models.TaskStatusInProgress,
	models.TaskStatusReview,
	models.TaskStatusDone,
}

// columnTitles maps a status to its board heading.
var columnTitles = map[models.TaskStatus]string{
	models.TaskStatusTodo:       "Todo",
	models.TaskStatusInProgress: "In Progress",
	models.TaskStatusReview:     "Review",
	models.TaskStatusDone:       "Done",
}

// EventMsg wraps a broadcast event for the board.
type EventMsg struct {
	Event broadcast.Event
}

// ErrMsg carries an operation failure into the footer.
type ErrMsg struct {
	Err error
}

// LogEntry is one line of agent output shown in the log pane.
type LogEntry struct {
	Timestamp time.Time
	TaskID    string
	Stream    string
	Message   string
}

// Board is the bubbletea model for the Kanban board.
type Board struct {
	orch   *orchestrator.Orchestrator
	events <-chan broadcast.Event

	tasks []*models.Task
	logs  []LogEntry

	// col and row track the selected column and task within it.
	col int
	row int

	input    textinput.Model
	entering bool

	status   string
	showLogs bool
	width    int
	height   int
	quitting bool
}

// NewBoard creates a board bound to the orchestrator and an event
// subscription. The initial task list is loaded immediately.
func NewBoard(orch *orchestrator.Orchestrator, events <-chan broadcast.Event) (*Board, error) {
	tasks, err := orch.ListTasks()
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	ti := textinput.New()
	ti.Placeholder = "Task title, then Enter..."
	ti.CharLimit = 200
	ti.Width = 60

	return &Board{
		orch:   orch,
		events: events,
		tasks:  tasks,
		input:  ti,
	}, nil
}

// waitForEvent blocks on the next broadcast event.
func (b *Board) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-b.events
		if !ok {
			return nil
		}
		return EventMsg{Event: ev}
	}
}

// Init implements tea.Model.
func (b *Board) Init() tea.Cmd {
	return b.waitForEvent()
}

// Update implements tea.Model.
func (b *Board) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width = msg.Width
		b.height = msg.Height
		return b, nil

	case EventMsg:
		b.applyEvent(msg.Event)
		return b, b.waitForEvent()

	case ErrMsg:
		b.status = msg.Err.Error()
		return b, nil

	case tea.KeyMsg:
		if b.entering {
			return b.updateInput(msg)
		}
		return b.updateKeys(msg)
	}

	return b, nil
}

// updateInput handles keys while the new-task prompt is open.
func (b *Board) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		title := b.input.Value()
		b.input.Reset()
		b.entering = false
		if title == "" {
			return b, nil
		}
		return b, b.do(func() error {
			_, err := b.orch.CreateTask(models.CreateTask{Title: title, ProjectPath: mustGetwd()})
			return err
		})
	case "esc":
		b.input.Reset()
		b.entering = false
		return b, nil
	}

	var cmd tea.Cmd
	b.input, cmd = b.input.Update(msg)
	return b, cmd
}

// updateKeys handles board-level keys.
func (b *Board) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		b.quitting = true
		return b, tea.Quit
	case "left", "h":
		b.moveColumn(-1)
	case "right", "l":
		b.moveColumn(1)
	case "up", "k":
		b.moveRow(-1)
	case "down", "j":
		b.moveRow(1)
	case "n":
		b.entering = true
		b.input.Focus()
		return b, textinput.Blink
	case "L":
		b.showLogs = !b.showLogs
	case "s":
		if task := b.selected(); task != nil {
			id := task.ID
			return b, b.do(func() error { _, err := b.orch.Start(id); return err })
		}
	case "c":
		if task := b.selected(); task != nil {
			id := task.ID
			return b, b.do(func() error { _, err := b.orch.Cancel(id); return err })
		}
	case "m":
		if task := b.selected(); task != nil {
			id := task.ID
			return b, b.do(func() error { _, err := b.orch.Merge(id); return err })
		}
	case "x":
		if task := b.selected(); task != nil {
			id := task.ID
			return b, b.do(func() error { return b.orch.Delete(id) })
		}
	}
	return b, nil
}

// do runs an orchestrator operation off the render loop, surfacing any
// failure in the footer. State changes arrive back as broadcast events.
func (b *Board) do(op func() error) tea.Cmd {
	return func() tea.Msg {
		if err := op(); err != nil {
			return ErrMsg{Err: err}
		}
		return nil
	}
}

// applyEvent folds one broadcast event into the board state.
func (b *Board) applyEvent(ev broadcast.Event) {
	switch ev.Type {
	case broadcast.EventTaskUpdated:
		if ev.Task != nil {
			b.upsertTask(ev.Task)
		}
	case broadcast.EventTaskDeleted:
		b.removeTask(ev.TaskID)
	case broadcast.EventLog:
		b.appendLog(LogEntry{
			Timestamp: ev.Timestamp,
			TaskID:    ev.TaskID,
			Stream:    ev.Stream,
			Message:   ev.Content,
		})
	case broadcast.EventExecutionComplete:
		if ev.Success {
			b.status = "Agent finished; task ready for review"
		} else {
			b.status = "Agent failed; see the task's error"
		}
	case broadcast.EventMergeProgress:
		b.status = ev.Content
	case broadcast.EventMergeComplete:
		b.status = fmt.Sprintf("Merged as %.8s", ev.Commit)
	case broadcast.EventMergeFailed:
		b.status = "Merge failed: " + ev.Content
	}
	b.clampSelection()
}

func (b *Board) upsertTask(task *models.Task) {
	for i, existing := range b.tasks {
		if existing.ID == task.ID {
			b.tasks[i] = task
			return
		}
	}
	b.tasks = append(b.tasks, task)
}

func (b *Board) removeTask(id string) {
	for i, existing := range b.tasks {
		if existing.ID == id {
			b.tasks = append(b.tasks[:i], b.tasks[i+1:]...)
			return
		}
	}
}

const maxLogLines = 500

func (b *Board) appendLog(entry LogEntry) {
	b.logs = append(b.logs, entry)
	if len(b.logs) > maxLogLines {
		b.logs = b.logs[len(b.logs)-maxLogLines:]
	}
}

// columnTasks returns the tasks in the given column, in creation order.
func (b *Board) columnTasks(status models.TaskStatus) []*models.Task {
	var out []*models.Task
	for _, task := range b.tasks {
		if task.Status == status {
			out = append(out, task)
		}
	}
	return out
}

// selected returns the task under the cursor, or nil.
func (b *Board) selected() *models.Task {
	tasks := b.columnTasks(columns[b.col])
	if b.row < 0 || b.row >= len(tasks) {
		return nil
	}
	return tasks[b.row]
}

func (b *Board) moveColumn(delta int) {
	b.col += delta
	if b.col < 0 {
		b.col = 0
	}
	if b.col > len(columns)-1 {
		b.col = len(columns) - 1
	}
	b.clampSelection()
}

func (b *Board) moveRow(delta int) {
	b.row += delta
	b.clampSelection()
}

// clampSelection keeps the cursor inside the current column.
func (b *Board) clampSelection() {
	n := len(b.columnTasks(columns[b.col]))
	if n == 0 {
		b.row = 0
		return
	}
	if b.row < 0 {
		b.row = 0
	}
	if b.row > n-1 {
		b.row = n - 1
	}
}

// Run starts the board with the standard program options.
func Run(orch *orchestrator.Orchestrator, events <-chan broadcast.Event) error {
	board, err := NewBoard(orch, events)
	if err != nil {
		return err
	}
	p := tea.NewProgram(board, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
