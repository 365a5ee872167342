package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/katakuxiko/finqa/internal/model"
)

func newTestConversations(t *testing.T) *ConversationStore {
	t.Helper()
	s, err := NewConversationStore(openTestDB(t), DriverSQLite)
	if err != nil {
		t.Fatalf("conversation store: %v", err)
	}
	return s
}

func TestConversationStore_RoundTrip(t *testing.T) {
	s := newTestConversations(t)
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := s.Create(ctx, "tok-1", "Выручка", t0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	saved, err := s.Append(ctx, "tok-1",
		model.Message{Role: model.RoleUser, Content: "What was revenue?", CreatedAt: t0},
		model.Message{Role: model.RoleAssistant, Content: "$5M", CreatedAt: t0},
	)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(saved) != 2 || saved[0].ID == 0 || saved[1].ID <= saved[0].ID {
		t.Fatalf("ids not assigned in order: %+v", saved)
	}
	if _, err := s.Append(ctx, "tok-1",
		model.Message{Role: model.RoleUser, Content: "And EBITDA?", CreatedAt: t0.Add(time.Minute)},
	); err != nil {
		t.Fatal(err)
	}

	c, err := s.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.Name != "Выручка" || !c.CreatedAt.Equal(t0) {
		t.Fatalf("conversation: %+v", c)
	}
	want := []string{"What was revenue?", "$5M", "And EBITDA?"}
	if len(c.Messages) != len(want) {
		t.Fatalf("got %d messages", len(c.Messages))
	}
	for i, m := range c.Messages {
		if m.Content != want[i] {
			t.Errorf("message %d = %q, want %q", i, m.Content, want[i])
		}
		if m.ConversationToken != "tok-1" {
			t.Errorf("message %d token %q", i, m.ConversationToken)
		}
	}
	if c.Messages[1].Role != model.RoleAssistant {
		t.Errorf("role lost: %q", c.Messages[1].Role)
	}

	turns := c.Turns()
	if len(turns) != 3 || turns[0].Role != model.RoleUser {
		t.Errorf("turns: %+v", turns)
	}
}

func TestConversationStore_NotFound(t *testing.T) {
	s := newTestConversations(t)
	ctx := context.Background()
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get: %v", err)
	}
	if _, err := s.Messages(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Messages: %v", err)
	}
}

func TestConversationStore_DuplicateToken(t *testing.T) {
	s := newTestConversations(t)
	ctx := context.Background()
	if err := s.Create(ctx, "dup", "a", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, "dup", "b", time.Now()); err == nil {
		t.Fatal("expected error on duplicate token")
	}
}

func TestConversationStore_ListNewestFirst(t *testing.T) {
	s := newTestConversations(t)
	ctx := context.Background()

	convs, err := s.List(ctx)
	if err != nil || len(convs) != 0 {
		t.Fatalf("empty list: %v, %v", convs, err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, tok := range []string{"old", "mid", "new"} {
		if err := s.Create(ctx, tok, tok, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Append(ctx, "mid", model.Message{Role: model.RoleUser, Content: "q"}); err != nil {
		t.Fatal(err)
	}

	convs, err = s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(convs) != 3 || convs[0].Token != "new" || convs[2].Token != "old" {
		t.Fatalf("order: %+v", convs)
	}
	if len(convs[1].Messages) != 1 || len(convs[0].Messages) != 0 {
		t.Fatalf("messages not attached: %+v", convs)
	}
}

func TestConversationStore_StartIsAtomic(t *testing.T) {
	s := newTestConversations(t)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	saved, err := s.Start(ctx, "tok", "Отчёт", t0,
		model.Message{Role: model.RoleUser, Content: "q", CreatedAt: t0},
		model.Message{Role: model.RoleAssistant, Content: "a", CreatedAt: t0},
	)
	if err != nil || len(saved) != 2 {
		t.Fatalf("Start: %v, %+v", err, saved)
	}

	// второй Start с тем же токеном падает на вставке беседы и не
	// добавляет сообщений к существующей
	if _, err := s.Start(ctx, "tok", "dup", t0, model.Message{Role: model.RoleUser, Content: "x"}); err == nil {
		t.Fatal("expected duplicate token error")
	}
	msgs, err := s.Messages(ctx, "tok")
	if err != nil || len(msgs) != 2 {
		t.Fatalf("messages after failed start: %d, %v", len(msgs), err)
	}
}

func TestConversationStore_StartRollsBackOnMessageFailure(t *testing.T) {
	db := openTestDB(t)
	s, err := NewConversationStore(db, DriverSQLite)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TRIGGER reject_boom BEFORE INSERT ON messages
		WHEN NEW.content = 'boom'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	_, err = s.Start(ctx, "tok", "n", time.Now(),
		model.Message{Role: model.RoleUser, Content: "q"},
		model.Message{Role: model.RoleAssistant, Content: "boom"},
	)
	if err == nil {
		t.Fatal("expected insert failure")
	}
	if _, err := s.Get(ctx, "tok"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("conversation left behind: %v", err)
	}
	convs, err := s.List(ctx)
	if err != nil || len(convs) != 0 {
		t.Fatalf("list after failed start: %+v, %v", convs, err)
	}
}
