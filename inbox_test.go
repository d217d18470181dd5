package haven

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

// inboxBackend is a minimal fake of the DM endpoints.
type inboxBackend struct {
	mux *http.ServeMux

	insertStatus int    // 0 means success
	insertCode   string // envelope error code when set
	inserted     []MessageDraft
	history      func(offset, limit int) []Message
}

func newInboxBackend() *inboxBackend {
	b := &inboxBackend{mux: http.NewServeMux()}

	b.mux.HandleFunc("GET /api/chats/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		var msgs []Message
		if b.history != nil {
			msgs = b.history(offset, limit)
		}
		writeOK(w, msgs)
	})

	b.mux.HandleFunc("POST /api/chats/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		if b.insertStatus != 0 {
			w.WriteHeader(b.insertStatus)
			return
		}
		if b.insertCode != "" {
			writeErr(w, b.insertCode, "rejected")
			return
		}
		var draft MessageDraft
		json.NewDecoder(r.Body).Decode(&draft)
		b.inserted = append(b.inserted, draft)
		writeOK(w, Message{
			ID:        fmt.Sprintf("srv-%d", len(b.inserted)),
			ChatID:    draft.ChatID,
			SenderID:  draft.SenderID,
			Body:      draft.Body,
			CreatedAt: time.Now(),
		})
	})

	return b
}

func (b *inboxBackend) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(b.mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestInbox(t *testing.T, srv *httptest.Server) *InboxStore {
	t.Helper()
	off, _ := newOfflineStore(t, true)
	return NewInboxStore(newTestClient(srv), off, nil)
}

func TestSendMessageConvergesToSingleConfirmed(t *testing.T) {
	ctx := context.Background()
	backend := newInboxBackend()
	inbox := newTestInbox(t, backend.serve(t))

	if err := inbox.LoadMessages(ctx, "c1"); err != nil {
		t.Fatalf("LoadMessages returned error: %v", err)
	}

	id, err := inbox.SendMessage(ctx, "c1", "hello")
	if err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if id != "srv-1" {
		t.Errorf("expected confirmed id srv-1, got %q", id)
	}

	// Realtime echo of the same row must not duplicate it.
	record, _ := json.Marshal(Message{ID: "srv-1", ChatID: "c1", SenderID: testUserID, Body: "hello", CreatedAt: time.Now()})
	inbox.handleEvent("c1", ChangeEvent{Type: "insert", Table: "chat_messages", Record: record})

	msgs := inbox.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("expected exactly 1 message, got %d", len(msgs))
	}
	if msgs[0].Pending {
		t.Error("confirmed message still pending")
	}
	if msgs[0].ID != "srv-1" {
		t.Errorf("expected id srv-1, got %q", msgs[0].ID)
	}
}

func TestSendMessageQueuedOnConnectivityFailure(t *testing.T) {
	ctx := context.Background()
	backend := newInboxBackend()
	backend.insertStatus = http.StatusServiceUnavailable
	srv := backend.serve(t)

	off, _ := newOfflineStore(t, true)
	inbox := NewInboxStore(newTestClient(srv), off, nil)

	id, err := inbox.SendMessage(ctx, "c1", "hello")
	if err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if !strings.HasPrefix(id, localIDPrefix) {
		t.Errorf("expected placeholder id, got %q", id)
	}

	msgs := inbox.Messages("c1")
	if len(msgs) != 1 || !msgs[0].Pending {
		t.Fatalf("expected one pending placeholder, got %+v", msgs)
	}

	items, _ := off.Queued(ctx)
	if len(items) != 1 || items[0].Type != QueueMessage {
		t.Fatalf("expected one queued message, got %+v", items)
	}
}

func TestSendMessageRejectionRollsBackPlaceholder(t *testing.T) {
	ctx := context.Background()
	backend := newInboxBackend()
	backend.insertCode = "VALIDATION"
	inbox := newTestInbox(t, backend.serve(t))

	_, err := inbox.SendMessage(ctx, "c1", "hello")
	if err == nil {
		t.Fatal("expected rejection error")
	}
	if msgs := inbox.Messages("c1"); len(msgs) != 0 {
		t.Errorf("expected placeholder removed, got %d messages", len(msgs))
	}

	off := inbox.off
	if items, _ := off.Queued(ctx); len(items) != 0 {
		t.Errorf("rejected write must not be queued, got %d items", len(items))
	}
}

func TestSendMessageEmptyBody(t *testing.T) {
	backend := newInboxBackend()
	inbox := newTestInbox(t, backend.serve(t))

	if _, err := inbox.SendMessage(context.Background(), "c1", "   "); err != ErrEmptyContent {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if len(backend.inserted) != 0 {
		t.Error("empty send must not reach the backend")
	}
}

func TestLoadMessagesFallsBackToCache(t *testing.T) {
	ctx := context.Background()

	off, _ := newOfflineStore(t, true)
	cached := []Message{{ID: "old-1", ChatID: "c1", Body: "from cache", CreatedAt: time.Now()}}
	off.CacheSet(ctx, "messages:c1", cached)

	// Every request fails like an unreachable backend.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	inbox := NewInboxStore(newTestClient(srv), off, nil)
	if err := inbox.LoadMessages(ctx, "c1"); err != nil {
		t.Fatalf("LoadMessages returned error despite cache: %v", err)
	}
	msgs := inbox.Messages("c1")
	if len(msgs) != 1 || msgs[0].ID != "old-1" {
		t.Errorf("expected cached list, got %+v", msgs)
	}
}

func TestLoadMessagesOverwritesCache(t *testing.T) {
	ctx := context.Background()
	backend := newInboxBackend()
	fresh := []Message{{ID: "new-1", ChatID: "c1", Body: "fresh", CreatedAt: time.Now()}}
	backend.history = func(offset, limit int) []Message {
		if offset == 0 {
			return fresh
		}
		return nil
	}
	srv := backend.serve(t)

	off, _ := newOfflineStore(t, true)
	off.CacheSet(ctx, "messages:c1", []Message{{ID: "stale-1", ChatID: "c1"}})

	inbox := NewInboxStore(newTestClient(srv), off, nil)
	if err := inbox.LoadMessages(ctx, "c1"); err != nil {
		t.Fatalf("LoadMessages returned error: %v", err)
	}

	var cachedNow []Message
	if !off.CacheGet(ctx, "messages:c1", &cachedNow) {
		t.Fatal("expected cache entry")
	}
	if len(cachedNow) != 1 || cachedNow[0].ID != "new-1" {
		t.Errorf("expected cache overwritten with fresh list, got %+v", cachedNow)
	}
}

func TestLoadMoreMessagesPaginates(t *testing.T) {
	ctx := context.Background()
	backend := newInboxBackend()
	backend.history = func(offset, limit int) []Message {
		if offset >= 60 {
			return nil
		}
		msgs := make([]Message, 0, limit)
		base := time.Now().Add(-2 * time.Hour)
		for i := offset; i < offset+limit && i < 60; i++ {
			msgs = append(msgs, Message{
				ID:        fmt.Sprintf("m-%d", i),
				ChatID:    "c1",
				Body:      "x",
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			})
		}
		return msgs
	}
	inbox := newTestInbox(t, backend.serve(t))

	if err := inbox.LoadMessages(ctx, "c1"); err != nil {
		t.Fatalf("LoadMessages returned error: %v", err)
	}
	if err := inbox.LoadMoreMessages(ctx, "c1"); err != nil {
		t.Fatalf("LoadMoreMessages returned error: %v", err)
	}

	msgs := inbox.Messages("c1")
	if len(msgs) != 60 {
		t.Fatalf("expected 60 messages after two pages, got %d", len(msgs))
	}
	seen := make(map[string]bool)
	for i, m := range msgs {
		if seen[m.ID] {
			t.Fatalf("duplicate message %s", m.ID)
		}
		seen[m.ID] = true
		if i > 0 && m.CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("list out of creation order at %d: %s before %s", i, msgs[i].ID, msgs[i-1].ID)
		}
	}
	if msgs[0].ID != "m-0" || msgs[59].ID != "m-59" {
		t.Errorf("second page not appended: head=%s tail=%s", msgs[0].ID, msgs[59].ID)
	}

	// The history is exhausted; another load must change nothing.
	if err := inbox.LoadMoreMessages(ctx, "c1"); err != nil {
		t.Fatalf("LoadMoreMessages returned error: %v", err)
	}
	if got := len(inbox.Messages("c1")); got != 60 {
		t.Errorf("empty page changed the list: %d messages", got)
	}
}

func TestRealtimeEventsBufferedUntilLoaded(t *testing.T) {
	ctx := context.Background()
	backend := newInboxBackend()
	backend.history = func(offset, limit int) []Message {
		if offset == 0 {
			return []Message{{ID: "m-1", ChatID: "c1", Body: "first", CreatedAt: time.Now().Add(-time.Minute)}}
		}
		return nil
	}
	inbox := newTestInbox(t, backend.serve(t))

	record, _ := json.Marshal(Message{ID: "m-live", ChatID: "c1", SenderID: "user-2", Body: "early", CreatedAt: time.Now()})
	inbox.handleEvent("c1", ChangeEvent{Type: "insert", Table: "chat_messages", Record: record})

	if got := inbox.Messages("c1"); len(got) != 0 {
		t.Fatalf("event applied before load: %+v", got)
	}

	if err := inbox.LoadMessages(ctx, "c1"); err != nil {
		t.Fatalf("LoadMessages returned error: %v", err)
	}
	msgs := inbox.Messages("c1")
	if len(msgs) != 2 {
		t.Fatalf("expected page plus buffered event, got %d messages", len(msgs))
	}
	if msgs[1].ID != "m-live" {
		t.Errorf("expected buffered event last, got %+v", msgs)
	}
}

func TestRealtimeEchoClaimsPendingPlaceholder(t *testing.T) {
	ctx := context.Background()
	backend := newInboxBackend()
	backend.insertStatus = http.StatusServiceUnavailable
	srv := backend.serve(t)

	off, _ := newOfflineStore(t, true)
	inbox := NewInboxStore(newTestClient(srv), off, nil)
	if err := inbox.LoadMessages(ctx, "c1"); err != nil {
		t.Fatalf("LoadMessages returned error: %v", err)
	}

	if _, err := inbox.SendMessage(ctx, "c1", "hello"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}

	// The feed does not echo client ids; the match is sender, body, and time.
	record, _ := json.Marshal(Message{ID: "srv-9", ChatID: "c1", SenderID: testUserID, Body: "hello", CreatedAt: time.Now()})
	inbox.handleEvent("c1", ChangeEvent{Type: "insert", Table: "chat_messages", Record: record})

	msgs := inbox.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("expected placeholder replaced, got %d messages", len(msgs))
	}
	if msgs[0].ID != "srv-9" || msgs[0].Pending {
		t.Errorf("expected confirmed srv-9, got %+v", msgs[0])
	}
}

func TestLoadThreadsResolvesParticipants(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/me/chats", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, []string{"c1"})
	})
	mux.HandleFunc("GET /api/rpc/chat_members", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, []ChatMember{{UserID: testUserID}, {UserID: "user-2"}})
	})
	mux.HandleFunc("GET /api/profiles/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, Profile{ID: r.PathValue("id"), Nickname: "Jordan", Role: RoleMentor})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	inbox := newTestInbox(t, srv)
	if err := inbox.LoadThreads(context.Background()); err != nil {
		t.Fatalf("LoadThreads returned error: %v", err)
	}

	threads := inbox.Threads()
	if len(threads) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(threads))
	}
	got := threads[0]
	if got.ID != "c1" || got.OtherID != "user-2" || got.OtherName != "Jordan" || got.OtherRole != RoleMentor {
		t.Errorf("unexpected thread: %+v", got)
	}
}
