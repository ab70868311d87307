package chat

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/taskforge/taskforge/internal/broadcast"
	"github.com/taskforge/taskforge/internal/store"
	"github.com/taskforge/taskforge/pkg/models"
)

const defaultHistoryLimit = 100

// systemPrompt frames the assistant as a read-only helper for the
// project the board is managing.
const systemPrompt = "You are a helpful assistant integrated into a Kanban task management app. " +
	"You are running in READ-ONLY mode - you can read and analyze code, " +
	"but you cannot modify files or execute commands that change the codebase. " +
	"Help the user understand their code, debug issues, and plan implementations."

// completer abstracts the API client so the assistant can be tested
// without network access.
type completer interface {
	complete(ctx context.Context, system string, messages []anthropic.MessageParam) (string, error)
}

// Assistant answers project-scoped chat messages, replaying persisted
// history as conversation context on every turn.
type Assistant struct {
	client       completer
	store        *store.ChatStore
	bus          *broadcast.Broadcaster
	historyLimit int
}

// NewAssistant creates an assistant on top of an API client, a message
// store, and the event bus. A non-positive historyLimit falls back to
// the default.
func NewAssistant(client *Client, chats *store.ChatStore, bus *broadcast.Broadcaster, historyLimit int) *Assistant {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Assistant{
		client:       client,
		store:        chats,
		bus:          bus,
		historyLimit: historyLimit,
	}
}

// Send persists the user message, asks the model for a reply with the
// project's recent history as context, persists the reply, and emits
// chat events on the bus. It returns the persisted assistant message.
func (a *Assistant) Send(ctx context.Context, projectPath, content string) (*models.ChatMessage, error) {
	if content == "" {
		return nil, fmt.Errorf("chat message content is empty")
	}

	// History is loaded before the new message is saved so the user
	// turn is not duplicated in the context.
	history, err := a.store.FindByProject(projectPath, a.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}

	if _, err := a.store.Create(models.CreateChatMessage{
		ProjectPath: projectPath,
		Role:        models.ChatRoleUser,
		Content:     content,
	}); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	messages := buildMessages(history, content)

	reply, err := a.client.complete(ctx, systemPrompt, messages)
	if err != nil {
		return nil, err
	}

	saved, err := a.store.Create(models.CreateChatMessage{
		ProjectPath: projectPath,
		Role:        models.ChatRoleAssistant,
		Content:     reply,
	})
	if err != nil {
		return nil, fmt.Errorf("save assistant message: %w", err)
	}

	chunk := broadcast.NewEvent(broadcast.EventChatChunk)
	chunk.Content = reply
	a.bus.Publish(chunk)
	a.bus.Publish(broadcast.NewEvent(broadcast.EventChatDone))

	return saved, nil
}

// History returns the project's stored conversation, oldest first.
func (a *Assistant) History(projectPath string) ([]*models.ChatMessage, error) {
	return a.store.FindByProject(projectPath, a.historyLimit)
}

// Clear removes the project's stored conversation.
func (a *Assistant) Clear(projectPath string) error {
	return a.store.DeleteByProject(projectPath)
}

// buildMessages converts stored history plus the new user turn into
// API message params. Roles the API does not know are skipped.
func buildMessages(history []*models.ChatMessage, content string) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, msg := range history {
		switch msg.Role {
		case models.ChatRoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case models.ChatRoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
	return messages
}
