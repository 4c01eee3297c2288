package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	domainchat "nestly/internal/domain/chat"
)

func seededStore(t *testing.T) *ChatStore {
	t.Helper()
	store := NewChatStore()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time {
		current = current.Add(time.Second)
		return current
	})
	return store
}

func mustCreateConversation(t *testing.T, store *ChatStore, conv domainchat.Conversation) *domainchat.Conversation {
	t.Helper()
	created, err := store.CreateConversation(context.Background(), &conv)
	if err != nil {
		t.Fatal(err)
	}
	return created
}

func mustCreateMessage(t *testing.T, store *ChatStore, msg domainchat.Message) *domainchat.Message {
	t.Helper()
	created, err := store.CreateMessage(context.Background(), &msg)
	if err != nil {
		t.Fatal(err)
	}
	return created
}

func TestConversationNotFoundSentinels(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	if _, err := store.GetConversation(ctx, "missing"); !errors.Is(err, domainchat.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if _, err := store.UpdateConversation(ctx, "missing", domainchat.ConversationPatch{}); !errors.Is(err, domainchat.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound on update, got %v", err)
	}
	if _, err := store.GetMessage(ctx, "missing"); !errors.Is(err, domainchat.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestListConversationsOrderedByActivity(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	oldest := mustCreateConversation(t, store, domainchat.Conversation{Participants: []string{"u1", "a1"}})
	middle := mustCreateConversation(t, store, domainchat.Conversation{Participants: []string{"u1", "a2"}})
	newest := mustCreateConversation(t, store, domainchat.Conversation{Participants: []string{"u1", "a3"}})

	// Bump the oldest conversation with fresh activity.
	when := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if _, err := store.UpdateConversation(ctx, oldest.ID, domainchat.ConversationPatch{LastMessageAt: &when}); err != nil {
		t.Fatal(err)
	}

	items, total, err := store.ListConversations(ctx, domainchat.ConversationFilter{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}
	if items[0].ID != oldest.ID {
		t.Fatalf("expected bumped conversation first, got %q", items[0].ID)
	}
	if items[1].ID != newest.ID || items[2].ID != middle.ID {
		t.Fatalf("unexpected tail order: %q, %q", items[1].ID, items[2].ID)
	}

	// Total counts matches before paging.
	page, total, err := store.ListConversations(ctx, domainchat.ConversationFilter{UserID: "u1", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || total != 3 {
		t.Fatalf("expected 1 item of 3, got %d of %d", len(page), total)
	}
	if page[0].ID != newest.ID {
		t.Fatalf("unexpected page content %q", page[0].ID)
	}
}

func TestListMessagesNewestFirstWithFilters(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()
	conv := mustCreateConversation(t, store, domainchat.Conversation{Participants: []string{"u1", "u2"}})

	first := mustCreateMessage(t, store, domainchat.Message{ConversationID: conv.ID, SenderID: "u1", Content: "one", Status: domainchat.MessageSent})
	mustCreateMessage(t, store, domainchat.Message{ConversationID: conv.ID, SenderID: "u2", Content: "two", Status: domainchat.MessageSent})
	third := mustCreateMessage(t, store, domainchat.Message{ConversationID: conv.ID, SenderID: "u1", Content: "three", Status: domainchat.MessageSent})

	msgs, err := store.ListMessages(ctx, domainchat.MessageFilter{ConversationID: conv.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 || msgs[0].ID != third.ID {
		t.Fatalf("expected newest first, got %v", msgs)
	}

	// SenderNot plus StatusNot is the unread scan shape.
	read := domainchat.MessageRead
	if _, err := store.UpdateMessage(ctx, first.ID, domainchat.MessagePatch{Status: &read}); err != nil {
		t.Fatal(err)
	}
	unread, err := store.ListMessages(ctx, domainchat.MessageFilter{
		ConversationID: conv.ID,
		SenderNot:      "u2",
		StatusNot:      domainchat.MessageRead,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(unread) != 1 || unread[0].ID != third.ID {
		t.Fatalf("expected only the unread u1 message, got %v", unread)
	}

	// Soft-deleted messages are hidden unless explicitly included.
	deleted := true
	if _, err := store.UpdateMessage(ctx, third.ID, domainchat.MessagePatch{IsDeleted: &deleted}); err != nil {
		t.Fatal(err)
	}
	visible, err := store.ListMessages(ctx, domainchat.MessageFilter{ConversationID: conv.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(visible) != 2 {
		t.Fatalf("expected deleted message hidden, got %d", len(visible))
	}
	all, err := store.ListMessages(ctx, domainchat.MessageFilter{ConversationID: conv.ID, IncludeDeleted: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected all messages with IncludeDeleted, got %d", len(all))
	}
}

func TestListConversationsSeesInitiatorOnlyRows(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	// A row whose initiator never made it into participants stays visible
	// to that initiator.
	created := mustCreateConversation(t, store, domainchat.Conversation{
		InitiatorID:  "u1",
		Participants: []string{"agent-1"},
	})

	items, total, err := store.ListConversations(ctx, domainchat.ConversationFilter{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != created.ID {
		t.Fatalf("expected initiator-only row to be listed, got %d of %d", len(items), total)
	}
}

func TestStoredCopiesAreIsolated(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()
	conv := mustCreateConversation(t, store, domainchat.Conversation{Participants: []string{"u1", "u2"}})

	// Mutating the returned value must not leak into the store.
	conv.Participants[0] = "intruder"
	conv.Subject = "tampered"

	fresh, err := store.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Participants[0] != "u1" || fresh.Subject != "" {
		t.Fatalf("stored state was mutated through a returned copy: %v", fresh)
	}

	msg := mustCreateMessage(t, store, domainchat.Message{
		ConversationID: conv.ID,
		SenderID:       "u1",
		Content:        "see the floor plan",
		Status:         domainchat.MessageSent,
		Attachments: []domainchat.Attachment{
			{ID: "att-1", Name: "plan.pdf", URL: "https://cdn.example/plan.pdf"},
		},
	})
	msg.Attachments[0].URL = "https://evil.example/swap.pdf"

	freshMsg, err := store.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if freshMsg.Attachments[0].URL != "https://cdn.example/plan.pdf" {
		t.Fatalf("stored attachment was mutated through a returned copy: %v", freshMsg.Attachments)
	}
}
