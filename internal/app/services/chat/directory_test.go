package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	domainchat "nestly/internal/domain/chat"
	"nestly/internal/infra/storage/memory"
)

func newTestDirectory(t *testing.T) (*Directory, *memory.ChatStore) {
	t.Helper()
	store := memory.NewChatStore()
	return &Directory{Store: store}, store
}

// tickingClock hands out strictly increasing timestamps so ordering
// assertions do not depend on wall-clock resolution.
func tickingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(step)
		return current
	}
}

func TestCreateConversationDefaults(t *testing.T) {
	directory, _ := newTestDirectory(t)
	conv, err := directory.Create(context.Background(), CreateParams{
		InitiatorID:   "u1",
		InitiatorName: "Alice",
		InitiatorRole: domainchat.RoleUser,
		Participants:  []string{"agent-1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if conv.ID == "" {
		t.Fatal("expected generated id")
	}
	if conv.Status != domainchat.StatusActive {
		t.Fatalf("expected active status, got %q", conv.Status)
	}
	if conv.Type != domainchat.TypeGeneral {
		t.Fatalf("expected general type default, got %q", conv.Type)
	}
	if len(conv.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %v", conv.Participants)
	}
	if !strings.HasPrefix(conv.ReferenceCode, "NST-") {
		t.Fatalf("unexpected reference code format: %q", conv.ReferenceCode)
	}
	if conv.TotalMessages != 0 || conv.UnreadCount != 0 {
		t.Fatalf("expected zeroed counters, got total=%d unread=%d", conv.TotalMessages, conv.UnreadCount)
	}
	if conv.StartedAt.IsZero() {
		t.Fatal("expected StartedAt to be stamped")
	}
}

func TestCreateConversationValidation(t *testing.T) {
	directory, _ := newTestDirectory(t)
	ctx := context.Background()

	if _, err := directory.Create(ctx, CreateParams{Participants: []string{"u2"}}); err != ErrInitiatorRequired {
		t.Fatalf("expected ErrInitiatorRequired, got %v", err)
	}
	if _, err := directory.Create(ctx, CreateParams{InitiatorID: "u1"}); err != ErrParticipantRequired {
		t.Fatalf("expected ErrParticipantRequired, got %v", err)
	}
	// The initiator listed twice does not count as a second participant.
	if _, err := directory.Create(ctx, CreateParams{InitiatorID: "u1", Participants: []string{"u1"}}); err != ErrParticipantRequired {
		t.Fatalf("expected ErrParticipantRequired for self-chat, got %v", err)
	}
}

func TestGetOrCreateReturnsExistingThread(t *testing.T) {
	directory, _ := newTestDirectory(t)
	ctx := context.Background()
	params := CreateParams{
		InitiatorID: "u1",
		Type:        domainchat.TypeInquiry,
		PropertyID:  "prop-9",
	}

	first, err := directory.GetOrCreate(ctx, params, "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := directory.GetOrCreate(ctx, params, "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same conversation, got %q and %q", first.ID, second.ID)
	}

	// A different property between the same pair is a separate thread.
	otherProperty := params
	otherProperty.PropertyID = "prop-10"
	third, err := directory.GetOrCreate(ctx, otherProperty, "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if third.ID == first.ID {
		t.Fatal("expected a new conversation for a different property")
	}
}

func TestGetOrCreateValidation(t *testing.T) {
	directory, _ := newTestDirectory(t)
	ctx := context.Background()

	if _, err := directory.GetOrCreate(ctx, CreateParams{}, "u2"); err != ErrInitiatorRequired {
		t.Fatalf("expected ErrInitiatorRequired, got %v", err)
	}
	if _, err := directory.GetOrCreate(ctx, CreateParams{InitiatorID: "u1"}, "u1"); err != ErrParticipantRequired {
		t.Fatalf("expected ErrParticipantRequired for self target, got %v", err)
	}
}

func TestListFiltersAndSearch(t *testing.T) {
	directory, store := newTestDirectory(t)
	store.SetClock(tickingClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), time.Second))
	ctx := context.Background()

	mustCreate := func(params CreateParams) *domainchat.Conversation {
		t.Helper()
		conv, err := directory.Create(ctx, params)
		if err != nil {
			t.Fatal(err)
		}
		return conv
	}

	mustCreate(CreateParams{InitiatorID: "u1", Participants: []string{"agent-1"}, Type: domainchat.TypeInquiry, Subject: "Inquiry about Unit 5, Riverside"})
	mustCreate(CreateParams{InitiatorID: "u1", Participants: []string{"agent-2"}, Type: domainchat.TypeGeneral, Subject: "Viewing times"})
	mustCreate(CreateParams{InitiatorID: "u3", Participants: []string{"agent-1"}, Type: domainchat.TypeInquiry, Subject: "Unit 5 deposit"})

	page, err := directory.List(ctx, "u1", ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 || page.Total != 2 {
		t.Fatalf("expected u1 to see 2 conversations, got %d (total %d)", len(page.Items), page.Total)
	}

	page, err = directory.List(ctx, "u1", ListOptions{Type: domainchat.TypeInquiry})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 inquiry for u1, got %d", len(page.Items))
	}

	page, err = directory.List(ctx, "agent-1", ListOptions{Search: "unit 5"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 matches for case-insensitive search, got %d", len(page.Items))
	}

	page, err = directory.List(ctx, "agent-1", ListOptions{Search: "penthouse"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("expected no matches, got %d", len(page.Items))
	}
}

func TestListPagination(t *testing.T) {
	directory, store := newTestDirectory(t)
	store.SetClock(tickingClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), time.Second))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := directory.Create(ctx, CreateParams{InitiatorID: "u1", Participants: []string{"agent-1"}}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := directory.List(ctx, "u1", ListOptions{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 || page.Total != 5 || !page.HasMore {
		t.Fatalf("unexpected first page: items=%d total=%d hasMore=%v", len(page.Items), page.Total, page.HasMore)
	}

	page, err = directory.List(ctx, "u1", ListOptions{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.HasMore {
		t.Fatalf("unexpected last page: items=%d hasMore=%v", len(page.Items), page.HasMore)
	}
}

func TestArchiveConversation(t *testing.T) {
	directory, store := newTestDirectory(t)
	ctx := context.Background()
	conv, err := directory.Create(ctx, CreateParams{InitiatorID: "u1", Participants: []string{"u2"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := directory.Archive(ctx, conv.ID); err != nil {
		t.Fatal(err)
	}
	archived, err := store.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if archived.Status != domainchat.StatusArchived {
		t.Fatalf("expected archived status, got %q", archived.Status)
	}
	if archived.ArchivedAt.IsZero() {
		t.Fatal("expected ArchivedAt to be stamped")
	}
}

func TestToggleStarAndMute(t *testing.T) {
	directory, _ := newTestDirectory(t)
	ctx := context.Background()
	conv, err := directory.Create(ctx, CreateParams{InitiatorID: "u1", Participants: []string{"u2"}})
	if err != nil {
		t.Fatal(err)
	}

	starred, err := directory.ToggleStar(ctx, conv.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !starred.IsStarred {
		t.Fatal("expected starred flag set")
	}
	unstarred, err := directory.ToggleStar(ctx, conv.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if unstarred.IsStarred {
		t.Fatal("expected starred flag cleared")
	}

	muted, err := directory.ToggleMute(ctx, conv.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !muted.IsMuted {
		t.Fatal("expected muted flag set")
	}
}

// fakeBadgeCache records calls so tests can assert cache interaction without
// a running Redis.
type fakeBadgeCache struct {
	mu      sync.Mutex
	values  map[string]int
	sets    int
	deletes int
}

func newFakeBadgeCache() *fakeBadgeCache {
	return &fakeBadgeCache{values: make(map[string]int)}
}

func (f *fakeBadgeCache) GetUnreadTotal(ctx context.Context, userID string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total, ok := f.values[userID]
	return total, ok, nil
}

func (f *fakeBadgeCache) SetUnreadTotal(ctx context.Context, userID string, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[userID] = total
	f.sets++
	return nil
}

func (f *fakeBadgeCache) InvalidateUnreadTotal(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, userID)
	f.deletes++
	return nil
}

func TestUnreadCountForUserUsesBadgeCache(t *testing.T) {
	store := memory.NewChatStore()
	cache := newFakeBadgeCache()
	directory := &Directory{Store: store, Badges: cache}
	thread := &Thread{Store: store, Directory: directory, Badges: cache}
	ctx := context.Background()

	conv, err := directory.Create(ctx, CreateParams{InitiatorID: "u1", Participants: []string{"u2"}})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := thread.Send(ctx, SendParams{ConversationID: conv.ID, SenderID: "u1", Content: "hello"}); err != nil {
			t.Fatal(err)
		}
	}

	total, err := directory.UnreadCountForUser(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("expected 3 unread, got %d", total)
	}
	if cache.sets != 1 {
		t.Fatalf("expected one cache fill, got %d", cache.sets)
	}

	// Second read is served from the cache without recomputing.
	if _, err := directory.UnreadCountForUser(ctx, "u2"); err != nil {
		t.Fatal(err)
	}
	if cache.sets != 1 {
		t.Fatalf("expected cached read, cache was refilled %d times", cache.sets)
	}

	// A new send invalidates the recipient's badge.
	if _, err := thread.Send(ctx, SendParams{ConversationID: conv.ID, SenderID: "u1", Content: "again"}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := cache.GetUnreadTotal(ctx, "u2"); ok {
		t.Fatal("expected recipient badge to be invalidated after send")
	}
}
