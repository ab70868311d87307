package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/taskforge/pkg/models"
)

// ChatStore persists project assistant conversations in SQLite.
type ChatStore struct {
	db *DB
}

// NewChatStore creates a chat store on the given database.
func NewChatStore(db *DB) *ChatStore {
	return &ChatStore{db: db}
}

// Create inserts a new chat message and returns it.
func (s *ChatStore) Create(req models.CreateChatMessage) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		ID:          uuid.New().String(),
		ProjectPath: req.ProjectPath,
		Role:        req.Role,
		Content:     req.Content,
		ImageData:   req.ImageData,
		CreatedAt:   time.Now().UTC(),
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	_, err := s.db.conn.Exec(`
		INSERT INTO chat_messages (id, project_path, role, content, image_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ProjectPath, string(msg.Role), msg.Content, msg.ImageData, formatTime(msg.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert chat message: %w", err)
	}

	return msg, nil
}

// FindByProject returns the most recent messages for a project in
// chronological order. A limit of 0 means no limit.
func (s *ChatStore) FindByProject(projectPath string, limit int) ([]*models.ChatMessage, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	q := `
		SELECT id, project_path, role, content, image_data, created_at
		FROM chat_messages WHERE project_path = ? ORDER BY created_at DESC, rowid DESC`
	args := []any{projectPath}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.ChatMessage
	for rows.Next() {
		var (
			msg       models.ChatMessage
			role      string
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.ProjectPath, &role, &msg.Content, &msg.ImageData, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msg.Role = models.ChatRole(role)
		if msg.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse newest-first into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// DeleteByProject removes all chat history for a project.
func (s *ChatStore) DeleteByProject(projectPath string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, err := s.db.conn.Exec("DELETE FROM chat_messages WHERE project_path = ?", projectPath); err != nil {
		return fmt.Errorf("delete chat messages: %w", err)
	}
	return nil
}
