package plan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/taskforge/internal/broadcast"
	"github.com/taskforge/taskforge/internal/executor"
	"github.com/taskforge/taskforge/pkg/models"
)

// ErrSessionNotFound is returned when no session exists for an ID.
var ErrSessionNotFound = errors.New("plan session not found")

// ErrNotWaiting is returned when answers arrive for a session that has no
// pending questions.
var ErrNotWaiting = errors.New("plan session is not waiting for answers")

// Spawner is the process-spawn primitive the engine drives. Satisfied by
// *executor.Executor.
type Spawner interface {
	Spawn(ctx context.Context, workingDir, prompt string, opts executor.SpawnOptions) (<-chan executor.Event, *executor.Process, error)
}

// Engine owns all live planning sessions and drives their rounds.
type Engine struct {
	spawner Spawner
	bus     *broadcast.Broadcaster

	mu       sync.Mutex
	sessions map[string]*Session
	procs    map[string]*executor.Process
	dirs     map[string]string

	idleTimeout time.Duration
}

// NewEngine creates a plan engine. Sessions idle beyond idleTimeout become
// eligible for eviction.
func NewEngine(spawner Spawner, bus *broadcast.Broadcaster, idleTimeout time.Duration) *Engine {
	return &Engine{
		spawner:     spawner,
		bus:         bus,
		sessions:    make(map[string]*Session),
		procs:       make(map[string]*executor.Process),
		dirs:        make(map[string]string),
		idleTimeout: idleTimeout,
	}
}

// Create starts a new session in workingDir and spawns its first round.
func (e *Engine) Create(workingDir, title, prompt string, askQuestions bool) (Info, error) {
	session := NewSession(uuid.New().String(), title, prompt, askQuestions)

	e.mu.Lock()
	e.sessions[session.ID()] = session
	e.dirs[session.ID()] = workingDir
	e.mu.Unlock()

	if err := e.runRound(session, session.SpawnPrompt()); err != nil {
		e.mu.Lock()
		delete(e.sessions, session.ID())
		delete(e.dirs, session.ID())
		e.mu.Unlock()
		return Info{}, err
	}

	return session.Snapshot(), nil
}

// Get returns a snapshot of the session.
func (e *Engine) Get(id string) (Info, error) {
	e.mu.Lock()
	session, ok := e.sessions[id]
	e.mu.Unlock()
	if !ok {
		return Info{}, ErrSessionNotFound
	}
	return session.Snapshot(), nil
}

// Answer records the user's answers and re-spawns the agent with the
// reconstructed transcript.
func (e *Engine) Answer(id string, answers []models.PlanAnswer) (Info, error) {
	e.mu.Lock()
	session, ok := e.sessions[id]
	e.mu.Unlock()
	if !ok {
		return Info{}, ErrSessionNotFound
	}
	if session.Status() != models.PlanStatusWaitingForAnswer {
		return Info{}, ErrNotWaiting
	}

	session.RecordAnswers(answers)
	e.publishStatus(id, models.PlanStatusProcessing)

	if err := e.runRound(session, session.BuildContinuationPrompt()); err != nil {
		session.SetStatus(models.PlanStatusError)
		e.publishStatus(id, models.PlanStatusError)
		return Info{}, err
	}

	return session.Snapshot(), nil
}

// Cancel kills any in-flight round and removes the session.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	session, ok := e.sessions[id]
	proc := e.procs[id]
	delete(e.sessions, id)
	delete(e.procs, id)
	delete(e.dirs, id)
	e.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	if proc != nil {
		proc.Kill()
	}

	session.SetStatus(models.PlanStatusCancelled)
	e.publishStatus(id, models.PlanStatusCancelled)
	return nil
}

// Complete marks the session's plan as accepted and removes it.
func (e *Engine) Complete(id string) (Info, error) {
	e.mu.Lock()
	session, ok := e.sessions[id]
	delete(e.sessions, id)
	delete(e.procs, id)
	delete(e.dirs, id)
	e.mu.Unlock()

	if !ok {
		return Info{}, ErrSessionNotFound
	}

	session.SetStatus(models.PlanStatusCompleted)
	e.publishStatus(id, models.PlanStatusCompleted)
	return session.Snapshot(), nil
}

// EvictIdle removes sessions idle beyond the engine's timeout and returns
// how many were removed. Sessions mid-round (Processing) are never evicted,
// whatever their idle time.
func (e *Engine) EvictIdle() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	evicted := 0
	for id, session := range e.sessions {
		if session.Status() == models.PlanStatusProcessing {
			continue
		}
		if session.IdleSince() < e.idleTimeout {
			continue
		}
		delete(e.sessions, id)
		delete(e.procs, id)
		delete(e.dirs, id)
		evicted++
	}
	return evicted
}

// RunEvictionLoop sweeps idle sessions on the given interval until the
// context is cancelled.
func (e *Engine) RunEvictionLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.EvictIdle()
		}
	}
}

// runRound spawns one agent invocation for the session and consumes its
// event stream in the background.
func (e *Engine) runRound(session *Session, prompt string) error {
	e.mu.Lock()
	workingDir := e.dirs[session.ID()]
	e.mu.Unlock()

	events, proc, err := e.spawner.Spawn(context.Background(), workingDir, prompt, executor.SpawnOptions{PlanMode: true})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.procs[session.ID()] = proc
	e.mu.Unlock()

	go e.consumeRound(session, events, proc)
	return nil
}

func (e *Engine) consumeRound(session *Session, events <-chan executor.Event, proc *executor.Process) {
	id := session.ID()
	sawTerminal := false

	for ev := range events {
		switch ev.Type {
		case executor.EventStdout:
			session.AppendOutput(ev.Line)

			questions, summary, ok := ParseLine(ev.Line, session.NextQuestionIndex())
			if !ok {
				continue
			}
			if len(questions) > 0 {
				session.RecordQuestions(questions)
				e.publishQuestions(id, questions)
				// The round cannot proceed without answers; answers arrive
				// via a fresh spawn, so this process is done.
				proc.Kill()
			}
			if summary != "" && session.Status() != models.PlanStatusWaitingForAnswer {
				session.RecordSummary(summary)
				e.publishSummary(id, summary)
			}
		case executor.EventStderr:
			session.AppendOutput(ev.Line)
		case executor.EventCompleted:
			sawTerminal = true
			if !ev.Success && session.Status() == models.PlanStatusProcessing {
				session.SetStatus(models.PlanStatusError)
				e.publishStatus(id, models.PlanStatusError)
			}
		}
	}

	// A round that ended while still Processing produced neither questions
	// nor a summary; without a terminal event it was killed, which the
	// killer already accounted for.
	if sawTerminal && session.Status() == models.PlanStatusProcessing {
		session.SetStatus(models.PlanStatusError)
		e.publishStatus(id, models.PlanStatusError)
	}

	e.mu.Lock()
	if e.procs[id] == proc {
		delete(e.procs, id)
	}
	e.mu.Unlock()
}

func (e *Engine) publishStatus(id string, status models.PlanStatus) {
	ev := broadcast.NewEvent(broadcast.EventPlanStatus)
	ev.SessionID = id
	ev.Status = status
	e.bus.Publish(ev)
}

func (e *Engine) publishQuestions(id string, questions []models.PlanQuestion) {
	ev := broadcast.NewEvent(broadcast.EventPlanQuestions)
	ev.SessionID = id
	ev.Status = models.PlanStatusWaitingForAnswer
	ev.Questions = questions
	e.bus.Publish(ev)
}

func (e *Engine) publishSummary(id, summary string) {
	ev := broadcast.NewEvent(broadcast.EventPlanSummary)
	ev.SessionID = id
	ev.Status = models.PlanStatusSummary
	ev.Content = summary
	e.bus.Publish(ev)
}
