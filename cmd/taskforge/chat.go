package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskforge/taskforge/internal/chat"
	"github.com/taskforge/taskforge/pkg/models"
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Ask the read-only project assistant",
	Long: `Send a message to the project assistant.

The assistant answers questions about the codebase without modifying
it. Conversation history is kept per project and replayed as context.

Examples:
  taskforge chat "Where is the retry logic for uploads?"
  taskforge chat --history           # print the stored conversation
  taskforge chat --clear             # forget the stored conversation`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

var (
	chatShowHistory bool
	chatClear       bool
)

func init() {
	chatCmd.Flags().BoolVar(&chatShowHistory, "history", false, "Print the stored conversation and exit")
	chatCmd.Flags().BoolVar(&chatClear, "clear", false, "Delete the stored conversation and exit")
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	client, err := chat.NewClient(a.cfg.Chat)
	if err != nil {
		return fmt.Errorf("create chat client: %w", err)
	}
	assistant := chat.NewAssistant(client, a.chats, a.bus, a.cfg.Chat.HistoryLimit)

	if chatClear {
		if err := assistant.Clear(cwd); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		fmt.Println("Conversation cleared.")
		return nil
	}

	if chatShowHistory {
		history, err := assistant.History(cwd)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		for _, msg := range history {
			printChatMessage(msg)
		}
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("provide a message, or use --history / --clear")
	}

	reply, err := assistant.Send(context.Background(), cwd, args[0])
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Println(reply.Content)
	return nil
}

func printChatMessage(msg *models.ChatMessage) {
	if msg.Role == models.ChatRoleUser {
		color.Yellow("you: %s", msg.Content)
	} else {
		fmt.Printf("assistant: %s\n", msg.Content)
	}
}
