package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domainchat "nestly/internal/domain/chat"
	"nestly/internal/infra/storage/memory"
)

// flakyStore wraps the memory store and fails CreateMessage on demand so the
// optimistic send path can be driven into its error branch.
type flakyStore struct {
	*memory.ChatStore
	failCreateMessage bool
}

var errStoreDown = errors.New("store down")

func (s *flakyStore) CreateMessage(ctx context.Context, msg *domainchat.Message) (*domainchat.Message, error) {
	if s.failCreateMessage {
		return nil, errStoreDown
	}
	return s.ChatStore.CreateMessage(ctx, msg)
}

type inboxFixture struct {
	store *flakyStore
	inbox *Inbox
	conv  *domainchat.Conversation
}

func newInboxFixture(t *testing.T) inboxFixture {
	t.Helper()
	base := memory.NewChatStore()
	base.SetClock(tickingClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), time.Second))
	store := &flakyStore{ChatStore: base}
	directory := &Directory{Store: store}
	thread := &Thread{Store: store, Directory: directory}
	ctx := context.Background()

	conv, err := directory.Create(ctx, CreateParams{
		InitiatorID:   "agent-1",
		InitiatorName: "Bob",
		InitiatorRole: domainchat.RoleAgent,
		Participants:  []string{"u2"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := thread.Send(ctx, SendParams{ConversationID: conv.ID, SenderID: "agent-1", Content: "welcome"}); err != nil {
		t.Fatal(err)
	}

	inbox := NewInbox(directory, thread, nil, InboxUser{
		ID:        "u2",
		Name:      "Carol",
		Role:      domainchat.RoleUser,
		AvatarURL: "https://cdn.example/avatars/carol.png",
	})
	if err := inbox.Refresh(ctx, ListOptions{}); err != nil {
		t.Fatal(err)
	}
	return inboxFixture{store: store, inbox: inbox, conv: conv}
}

func TestInboxSelectMarksReadAndZeroesCounter(t *testing.T) {
	f := newInboxFixture(t)
	ctx := context.Background()

	before := f.inbox.Conversations()
	if len(before) != 1 || before[0].UnreadCount != 1 {
		t.Fatalf("expected one conversation with one unread, got %v", before)
	}

	if err := f.inbox.Select(ctx, f.conv.ID); err != nil {
		t.Fatal(err)
	}
	if f.inbox.ActiveConversationID() != f.conv.ID {
		t.Fatal("expected conversation selected")
	}
	if msgs := f.inbox.Messages(); len(msgs) != 1 || msgs[0].Content != "welcome" {
		t.Fatalf("unexpected thread cache %v", msgs)
	}

	after := f.inbox.Conversations()
	if after[0].UnreadCount != 0 {
		t.Fatalf("expected cached unread zeroed, got %d", after[0].UnreadCount)
	}
	server, err := f.store.GetConversation(ctx, f.conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if server.UnreadCount != 0 {
		t.Fatalf("expected server unread zeroed, got %d", server.UnreadCount)
	}
}

func TestInboxSendRequiresSelection(t *testing.T) {
	f := newInboxFixture(t)
	if _, err := f.inbox.Send(context.Background(), "hello"); err != ErrNoActiveConversation {
		t.Fatalf("expected ErrNoActiveConversation, got %v", err)
	}
}

func TestInboxSendReplacesPlaceholderOnSuccess(t *testing.T) {
	f := newInboxFixture(t)
	ctx := context.Background()
	if err := f.inbox.Select(ctx, f.conv.ID); err != nil {
		t.Fatal(err)
	}

	sent, err := f.inbox.Send(ctx, "when can I view?")
	if err != nil {
		t.Fatal(err)
	}
	if sent.ID == "" || strings.HasPrefix(sent.ID, "local-") {
		t.Fatalf("expected server-assigned id, got %q", sent.ID)
	}

	msgs := f.inbox.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after send, got %d", len(msgs))
	}
	for _, msg := range msgs {
		if strings.HasPrefix(msg.ID, "local-") {
			t.Fatalf("placeholder survived the refetch: %q", msg.ID)
		}
	}
	if msgs[1].Content != "when can I view?" {
		t.Fatalf("unexpected latest message %q", msgs[1].Content)
	}
	if msgs[1].SenderAvatarURL != "https://cdn.example/avatars/carol.png" {
		t.Fatalf("expected sender avatar carried through, got %q", msgs[1].SenderAvatarURL)
	}
}

func TestInboxSendFailureRemovesOnlyPlaceholder(t *testing.T) {
	f := newInboxFixture(t)
	ctx := context.Background()
	if err := f.inbox.Select(ctx, f.conv.ID); err != nil {
		t.Fatal(err)
	}

	f.store.failCreateMessage = true
	if _, err := f.inbox.Send(ctx, "this will not land"); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}

	// The placeholder is gone from the thread cache.
	for _, msg := range f.inbox.Messages() {
		if strings.HasPrefix(msg.ID, "local-") {
			t.Fatalf("placeholder left behind: %q", msg.ID)
		}
	}
	if msgs := f.inbox.Messages(); len(msgs) != 1 {
		t.Fatalf("expected original thread restored, got %d messages", len(msgs))
	}

	// The conversation-list patch is not rolled back; it shows the failed
	// send's snippet until the next Refresh.
	cached := f.inbox.Conversations()
	if cached[0].LastMessagePreview != "this will not land" {
		t.Fatalf("expected stale optimistic preview, got %q", cached[0].LastMessagePreview)
	}

	f.store.failCreateMessage = false
	if err := f.inbox.Refresh(ctx, ListOptions{}); err != nil {
		t.Fatal(err)
	}
	healed := f.inbox.Conversations()
	if healed[0].LastMessagePreview != "welcome" {
		t.Fatalf("expected refresh to heal the preview, got %q", healed[0].LastMessagePreview)
	}
}

func TestInboxTogglesMirrorServerState(t *testing.T) {
	f := newInboxFixture(t)
	ctx := context.Background()

	if err := f.inbox.ToggleStar(ctx, f.conv.ID, true); err != nil {
		t.Fatal(err)
	}
	if cached := f.inbox.Conversations(); !cached[0].IsStarred {
		t.Fatal("expected cached conversation starred")
	}

	if err := f.inbox.ToggleMute(ctx, f.conv.ID, true); err != nil {
		t.Fatal(err)
	}
	if cached := f.inbox.Conversations(); !cached[0].IsMuted {
		t.Fatal("expected cached conversation muted")
	}

	server, err := f.store.GetConversation(ctx, f.conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !server.IsStarred || !server.IsMuted {
		t.Fatal("expected flags persisted server-side")
	}

	// A failed toggle leaves the cache untouched.
	if err := f.inbox.ToggleStar(ctx, "missing", true); !errors.Is(err, domainchat.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}
