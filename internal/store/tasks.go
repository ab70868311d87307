package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/taskforge/pkg/models"
)

// TaskStore persists tasks in SQLite.
type TaskStore struct {
	db *DB
}

// NewTaskStore creates a task store on the given database.
func NewTaskStore(db *DB) *TaskStore {
	return &TaskStore{db: db}
}

// Create inserts a new task in the todo state and returns it.
func (s *TaskStore) Create(req models.CreateTask) (*models.Task, error) {
	now := time.Now().UTC()
	task := &models.Task{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: req.Description,
		Status:      models.TaskStatusTodo,
		ProjectPath: req.ProjectPath,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	_, err := s.db.conn.Exec(`
		INSERT INTO tasks (id, title, description, status, error_message, branch_name, worktree_path, project_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, '', '', '', ?, ?, ?)`,
		task.ID, task.Title, task.Description, string(task.Status), task.ProjectPath,
		formatTime(task.CreatedAt), formatTime(task.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	return task, nil
}

// Get returns the task with the given ID, or ErrNotFound.
func (s *TaskStore) Get(id string) (*models.Task, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	row := s.db.conn.QueryRow(`
		SELECT id, title, description, status, error_message, branch_name, worktree_path, project_path, created_at, updated_at
		FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// List returns all tasks ordered by creation time.
func (s *TaskStore) List() ([]*models.Task, error) {
	return s.query(`
		SELECT id, title, description, status, error_message, branch_name, worktree_path, project_path, created_at, updated_at
		FROM tasks ORDER BY created_at, rowid`)
}

// FindAllByProject returns all tasks for the given project path.
func (s *TaskStore) FindAllByProject(projectPath string) ([]*models.Task, error) {
	return s.query(`
		SELECT id, title, description, status, error_message, branch_name, worktree_path, project_path, created_at, updated_at
		FROM tasks WHERE project_path = ? ORDER BY created_at, rowid`, projectPath)
}

// Update applies a partial update to the task and returns the new row.
// Nil fields in the update are left unchanged.
func (s *TaskStore) Update(id string, upd models.UpdateTask) (*models.Task, error) {
	s.db.mu.Lock()

	set := "updated_at = ?"
	args := []any{formatTime(time.Now().UTC())}

	if upd.Title != nil {
		set += ", title = ?"
		args = append(args, *upd.Title)
	}
	if upd.Description != nil {
		set += ", description = ?"
		args = append(args, *upd.Description)
	}
	if upd.Status != nil {
		set += ", status = ?"
		args = append(args, string(*upd.Status))
	}
	if upd.ErrorMessage != nil {
		set += ", error_message = ?"
		args = append(args, *upd.ErrorMessage)
	}
	if upd.BranchName != nil {
		set += ", branch_name = ?"
		args = append(args, *upd.BranchName)
	}
	if upd.WorktreePath != nil {
		set += ", worktree_path = ?"
		args = append(args, *upd.WorktreePath)
	}

	args = append(args, id)
	res, err := s.db.conn.Exec("UPDATE tasks SET "+set+" WHERE id = ?", args...)
	if err != nil {
		s.db.mu.Unlock()
		return nil, fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	s.db.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	return s.Get(id)
}

// Delete removes the task with the given ID.
func (s *TaskStore) Delete(id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	res, err := s.db.conn.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus moves the task to the given status.
func (s *TaskStore) SetStatus(id string, status models.TaskStatus) (*models.Task, error) {
	return s.Update(id, models.UpdateTask{Status: &status})
}

// SetError records a failure message and moves the task to review so the
// user can inspect what happened.
func (s *TaskStore) SetError(id, message string) (*models.Task, error) {
	status := models.TaskStatusReview
	return s.Update(id, models.UpdateTask{Status: &status, ErrorMessage: &message})
}

// SetWorkspace records the branch and worktree allocated for the task.
func (s *TaskStore) SetWorkspace(id, branch, worktree string) (*models.Task, error) {
	return s.Update(id, models.UpdateTask{BranchName: &branch, WorktreePath: &worktree})
}

// ClearWorkspace removes the task's branch and worktree association.
func (s *TaskStore) ClearWorkspace(id string) (*models.Task, error) {
	empty := ""
	return s.Update(id, models.UpdateTask{BranchName: &empty, WorktreePath: &empty})
}

func (s *TaskStore) query(q string, args ...any) ([]*models.Task, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	rows, err := s.db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (*models.Task, error) {
	var (
		task               models.Task
		status             string
		createdAt, updated string
	)
	err := sc.Scan(&task.ID, &task.Title, &task.Description, &status, &task.ErrorMessage,
		&task.BranchName, &task.WorktreePath, &task.ProjectPath, &createdAt, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.Status = models.TaskStatus(status)
	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if task.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &task, nil
}
