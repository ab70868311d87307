package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/taskforge/taskforge/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate should be a no-op: %v", err)
	}
}

func TestTaskCreateAndGet(t *testing.T) {
	tasks := NewTaskStore(openTestDB(t))

	created, err := tasks.Create(models.CreateTask{
		Title:       "Fix login",
		Description: "The login page redirects in a loop",
		ProjectPath: "/home/dev/webapp",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated ID")
	}
	if created.Status != models.TaskStatusTodo {
		t.Errorf("new task should be todo, got %q", created.Status)
	}

	got, err := tasks.Get(created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Fix login" || got.ProjectPath != "/home/dev/webapp" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestTaskGetNotFound(t *testing.T) {
	tasks := NewTaskStore(openTestDB(t))
	if _, err := tasks.Get("missing-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTaskPartialUpdate(t *testing.T) {
	tasks := NewTaskStore(openTestDB(t))
	created, err := tasks.Create(models.CreateTask{Title: "original", Description: "keep me", ProjectPath: "/p"})
	if err != nil {
		t.Fatal(err)
	}

	newTitle := "renamed"
	updated, err := tasks.Update(created.ID, models.UpdateTask{Title: &newTitle})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "renamed" {
		t.Errorf("title should change, got %q", updated.Title)
	}
	if updated.Description != "keep me" {
		t.Errorf("description should be untouched, got %q", updated.Description)
	}
	if updated.Status != models.TaskStatusTodo {
		t.Errorf("status should be untouched, got %q", updated.Status)
	}
}

func TestTaskUpdateNotFound(t *testing.T) {
	tasks := NewTaskStore(openTestDB(t))
	title := "x"
	if _, err := tasks.Update("missing", models.UpdateTask{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTaskSetErrorMovesToReview(t *testing.T) {
	tasks := NewTaskStore(openTestDB(t))
	created, err := tasks.Create(models.CreateTask{Title: "t", ProjectPath: "/p"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tasks.SetStatus(created.ID, models.TaskStatusInProgress); err != nil {
		t.Fatal(err)
	}

	updated, err := tasks.SetError(created.ID, "agent exited with code 1")
	if err != nil {
		t.Fatalf("SetError: %v", err)
	}
	if updated.Status != models.TaskStatusReview {
		t.Errorf("error should move task to review, got %q", updated.Status)
	}
	if updated.ErrorMessage != "agent exited with code 1" {
		t.Errorf("error message not stored: %q", updated.ErrorMessage)
	}
}

func TestTaskWorkspaceRoundTrip(t *testing.T) {
	tasks := NewTaskStore(openTestDB(t))
	created, err := tasks.Create(models.CreateTask{Title: "t", ProjectPath: "/p"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := tasks.SetWorkspace(created.ID, "tf/t-abcd1234", "/tmp/wt/t-abcd1234")
	if err != nil {
		t.Fatalf("SetWorkspace: %v", err)
	}
	if !updated.HasWorkspace() {
		t.Error("task should have a workspace after SetWorkspace")
	}

	cleared, err := tasks.ClearWorkspace(created.ID)
	if err != nil {
		t.Fatalf("ClearWorkspace: %v", err)
	}
	if cleared.HasWorkspace() {
		t.Error("task should have no workspace after ClearWorkspace")
	}
}

func TestTaskFindAllByProject(t *testing.T) {
	tasks := NewTaskStore(openTestDB(t))
	for _, p := range []string{"/a", "/a", "/b"} {
		if _, err := tasks.Create(models.CreateTask{Title: "t", ProjectPath: p}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := tasks.FindAllByProject("/a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 tasks for /a, got %d", len(got))
	}

	all, err := tasks.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 tasks total, got %d", len(all))
	}
}

func TestTaskDelete(t *testing.T) {
	tasks := NewTaskStore(openTestDB(t))
	created, err := tasks.Create(models.CreateTask{Title: "t", ProjectPath: "/p"})
	if err != nil {
		t.Fatal(err)
	}

	if err := tasks.Delete(created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := tasks.Get(created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted task should be gone, got %v", err)
	}
	if err := tasks.Delete(created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete should report ErrNotFound, got %v", err)
	}
}

func TestChatRoundTrip(t *testing.T) {
	chat := NewChatStore(openTestDB(t))

	if _, err := chat.Create(models.CreateChatMessage{ProjectPath: "/p", Role: models.ChatRoleUser, Content: "hello"}); err != nil {
		t.Fatal(err)
	}
	if _, err := chat.Create(models.CreateChatMessage{ProjectPath: "/p", Role: models.ChatRoleAssistant, Content: "hi there"}); err != nil {
		t.Fatal(err)
	}
	if _, err := chat.Create(models.CreateChatMessage{ProjectPath: "/other", Role: models.ChatRoleUser, Content: "unrelated"}); err != nil {
		t.Fatal(err)
	}

	msgs, err := chat.FindByProject("/p", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != models.ChatRoleUser || msgs[1].Role != models.ChatRoleAssistant {
		t.Error("messages should come back in chronological order")
	}
}

func TestChatLimitKeepsNewest(t *testing.T) {
	chat := NewChatStore(openTestDB(t))
	for _, content := range []string{"one", "two", "three"} {
		if _, err := chat.Create(models.CreateChatMessage{ProjectPath: "/p", Role: models.ChatRoleUser, Content: content}); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := chat.FindByProject("/p", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "two" || msgs[1].Content != "three" {
		t.Errorf("limit should keep the newest messages in order, got %q then %q", msgs[0].Content, msgs[1].Content)
	}
}

func TestChatDeleteByProject(t *testing.T) {
	chat := NewChatStore(openTestDB(t))
	if _, err := chat.Create(models.CreateChatMessage{ProjectPath: "/p", Role: models.ChatRoleUser, Content: "hello"}); err != nil {
		t.Fatal(err)
	}

	if err := chat.DeleteByProject("/p"); err != nil {
		t.Fatal(err)
	}
	msgs, err := chat.FindByProject("/p", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages after delete, got %d", len(msgs))
	}
}
