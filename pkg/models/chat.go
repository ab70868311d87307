package models

import "time"

// ChatRole identifies the author of a chat message.
type ChatRole string

const (
	// ChatRoleUser is a message written by the user.
	ChatRoleUser ChatRole = "user"
	// ChatRoleAssistant is a message produced by the assistant.
	ChatRoleAssistant ChatRole = "assistant"
)

// Valid returns true if the role is a known value.
func (r ChatRole) Valid() bool {
	return r == ChatRoleUser || r == ChatRoleAssistant
}

// ChatMessage is one turn of the project-scoped assistant conversation.
type ChatMessage struct {
	ID          string    `json:"id"`
	ProjectPath string    `json:"project_path"`
	Role        ChatRole  `json:"role"`
	Content     string    `json:"content"`
	ImageData   string    `json:"image_data,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateChatMessage carries the fields for persisting a new chat message.
type CreateChatMessage struct {
	ProjectPath string   `json:"project_path"`
	Role        ChatRole `json:"role"`
	Content     string   `json:"content"`
	ImageData   string   `json:"image_data,omitempty"`
}
