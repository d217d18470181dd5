package haven

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// dedupWindow bounds the created-at distance for matching a realtime echo of
// the current user's own message against its pending placeholder. The feed
// does not echo client correlation ids, so the match is heuristic.
const dedupWindow = 2 * time.Second

const localIDPrefix = "local-"

// InboxStore holds the direct-message state of one signed-in user: the thread
// list and the per-chat message lists, kept current through paginated loads,
// optimistic sends, the offline queue, and the realtime feed.
//
// Message lists are ordered by creation time ascending. All exported methods
// are safe for concurrent use.
type InboxStore struct {
	c    *Client
	off  *Offline
	feed *FeedClient
	log  *zap.Logger

	mu       sync.RWMutex
	threads  []Thread
	messages map[string][]Message
	loaded   map[string]bool
	buffered map[string][]Message
	pages    *pager
}

func NewInboxStore(c *Client, off *Offline, feed *FeedClient) *InboxStore {
	return &InboxStore{
		c:        c,
		off:      off,
		feed:     feed,
		log:      c.log,
		messages: make(map[string][]Message),
		loaded:   make(map[string]bool),
		buffered: make(map[string][]Message),
		pages:    newPager(),
	}
}

// Threads returns a copy of the current thread list.
func (s *InboxStore) Threads() []Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Thread(nil), s.threads...)
}

// Messages returns a copy of a chat's message list, oldest first.
func (s *InboxStore) Messages(chatID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages[chatID]...)
}

// LoadThreads fetches the user's chats and resolves the other participant of
// each into a Thread. Member and profile lookups for distinct chats run
// concurrently. When the backend is unreachable the last cached thread list is
// served instead; a successful load overwrites the cache.
func (s *InboxStore) LoadThreads(ctx context.Context) error {
	userID := s.c.UserID()
	if userID == "" {
		return ErrNoSession
	}

	chatIDs, err := s.c.Chats.Mine(ctx)
	if err != nil {
		if IsRetryable(err) && s.loadThreadsFromCache(ctx) {
			return nil
		}
		return err
	}

	threads := make([]Thread, len(chatIDs))
	errs := make([]error, len(chatIDs))
	var wg sync.WaitGroup
	for i, chatID := range chatIDs {
		wg.Add(1)
		go func(i int, chatID string) {
			defer wg.Done()
			t, err := s.resolveThread(ctx, userID, chatID)
			if err != nil {
				errs[i] = err
				return
			}
			threads[i] = *t
		}(i, chatID)
	}
	wg.Wait()

	resolved := make([]Thread, 0, len(threads))
	for i, t := range threads {
		if errs[i] != nil {
			s.log.Warn("thread resolve failed",
				zap.String("chat_id", chatIDs[i]), zap.Error(errs[i]))
			continue
		}
		resolved = append(resolved, t)
	}

	s.mu.Lock()
	s.threads = resolved
	s.mu.Unlock()

	s.off.CacheSet(ctx, "threads", resolved)
	return nil
}

func (s *InboxStore) resolveThread(ctx context.Context, userID, chatID string) (*Thread, error) {
	members, err := s.c.RPC.ChatMembers(ctx, chatID)
	if err != nil {
		return nil, err
	}
	otherID := ""
	for _, m := range members {
		if m.UserID != userID {
			otherID = m.UserID
			break
		}
	}
	t := Thread{ID: chatID, OtherID: otherID}
	if otherID != "" {
		profile, err := s.c.Profiles.Get(ctx, otherID)
		if err != nil {
			return nil, err
		}
		t.OtherName = profile.Nickname
		t.OtherRole = profile.Role
	}
	return &t, nil
}

func (s *InboxStore) loadThreadsFromCache(ctx context.Context) bool {
	var cached []Thread
	if !s.off.CacheGet(ctx, "threads", &cached) {
		return false
	}
	s.mu.Lock()
	s.threads = cached
	s.mu.Unlock()
	return true
}

// LoadMessages fetches the first page of a chat's history and marks the chat
// loaded, replaying any realtime events buffered while the load was in
// flight. A fetch that fails with a connectivity-class error, or returns
// nothing, falls back to the cached list; a non-empty fetch overwrites the
// cache.
func (s *InboxStore) LoadMessages(ctx context.Context, chatID string) error {
	msgs, err := s.c.Messages.List(ctx, chatID, 0, pageSizeMessages)
	if err != nil {
		if !IsRetryable(err) {
			return err
		}
		msgs = nil
	}
	if len(msgs) == 0 {
		var cached []Message
		if s.off.CacheGet(ctx, "messages:"+chatID, &cached) {
			msgs = cached
		}
		if err != nil && msgs == nil {
			return err
		}
	} else {
		s.off.CacheSet(ctx, "messages:"+chatID, msgs)
	}

	s.mu.Lock()
	s.messages[chatID] = msgs
	s.loaded[chatID] = true
	buffered := s.buffered[chatID]
	delete(s.buffered, chatID)
	s.mu.Unlock()

	s.pages.reset(chatID)

	for _, m := range buffered {
		s.applyInsert(chatID, m)
	}
	return nil
}

// LoadMoreMessages fetches the next history page and appends it, keeping the
// list in creation order. An empty page leaves both the list and the page
// counter untouched.
func (s *InboxStore) LoadMoreMessages(ctx context.Context, chatID string) error {
	offset, limit := s.pages.next(chatID, pageSizeMessages)
	more, err := s.c.Messages.List(ctx, chatID, offset, limit)
	if err != nil {
		return err
	}
	if len(more) == 0 {
		return nil
	}

	s.mu.Lock()
	merged := append([]Message(nil), s.messages[chatID]...)
	for _, m := range more {
		if !containsMessageID(merged, m.ID) {
			merged = append(merged, m)
		}
	}
	s.messages[chatID] = merged
	s.mu.Unlock()

	s.pages.advance(chatID)
	return nil
}

// SendMessage sends body to a chat optimistically: a pending placeholder is
// appended immediately and the returned id refers to it until the backend
// confirms. A connectivity failure queues the draft for replay and keeps the
// placeholder pending; a backend rejection removes the placeholder and
// surfaces the error.
func (s *InboxStore) SendMessage(ctx context.Context, chatID, body string) (string, error) {
	userID := s.c.UserID()
	if userID == "" {
		return "", ErrNoSession
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrEmptyContent
	}

	clientID := uuid.NewString()
	placeholder := Message{
		ID:        localIDPrefix + clientID,
		ClientID:  clientID,
		ChatID:    chatID,
		SenderID:  userID,
		Body:      body,
		CreatedAt: time.Now(),
		Pending:   true,
	}

	s.mu.Lock()
	s.messages[chatID] = append(s.messages[chatID], placeholder)
	s.mu.Unlock()

	draft := MessageDraft{ChatID: chatID, SenderID: userID, Body: body, ClientID: clientID}
	confirmed, err := s.c.Messages.Insert(ctx, draft)
	if err != nil {
		if IsRetryable(err) {
			payload, _ := json.Marshal(draft)
			if qerr := s.off.Enqueue(ctx, QueueItem{Type: QueueMessage, Payload: payload}); qerr != nil {
				s.log.Warn("enqueue message failed", zap.Error(qerr))
			}
			return placeholder.ID, nil
		}
		s.removeMessage(chatID, placeholder.ID)
		return "", err
	}

	s.confirmMessage(chatID, clientID, *confirmed)
	s.notifyPush(ctx, chatID, confirmed.ID)
	return confirmed.ID, nil
}

// notifyPush asks the backend push fan-out function to notify the recipient.
// Best-effort: delivery is a courtesy, not part of the write.
func (s *InboxStore) notifyPush(ctx context.Context, chatID, messageID string) {
	err := s.c.Functions.Invoke(ctx, "message-push", map[string]string{
		"chatId":    chatID,
		"messageId": messageID,
	})
	if err != nil {
		s.log.Debug("push notify failed", zap.Error(err))
	}
}

// CreateDM creates (or finds) the direct chat with targetID and refreshes the
// thread list.
func (s *InboxStore) CreateDM(ctx context.Context, targetID string) (string, error) {
	if s.c.UserID() == "" {
		return "", ErrNoSession
	}
	chatID, err := s.c.RPC.CreateDM(ctx, targetID)
	if err != nil {
		return "", err
	}
	if err := s.LoadThreads(ctx); err != nil {
		s.log.Warn("thread refresh after dm create failed", zap.Error(err))
	}
	return chatID, nil
}

// MarkRead stamps the chat read on the backend.
func (s *InboxStore) MarkRead(ctx context.Context, chatID string) error {
	return s.c.Chats.MarkRead(ctx, chatID)
}

// Subscribe attaches the store to the realtime feed for one chat and returns
// an unsubscribe function. Events arriving before the first page load are
// buffered and replayed by LoadMessages.
func (s *InboxStore) Subscribe(ctx context.Context, chatID string) (func(), error) {
	if s.feed == nil {
		return func() {}, nil
	}
	topic := Topic("chat_messages", "chat_id", chatID)
	return s.feed.Subscribe(ctx, topic, func(ev ChangeEvent) {
		s.handleEvent(chatID, ev)
	})
}

// handleEvent merges one realtime change into the chat's list.
func (s *InboxStore) handleEvent(chatID string, ev ChangeEvent) {
	var m Message
	if json.Unmarshal(ev.Record, &m) != nil {
		return
	}
	switch ev.Type {
	case "insert":
		s.mu.Lock()
		if !s.loaded[chatID] {
			s.buffered[chatID] = append(s.buffered[chatID], m)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.applyInsert(chatID, m)
	case "delete":
		s.removeMessage(chatID, m.ID)
	}
}

// applyInsert merges one confirmed message into a loaded chat list. A message
// already present by id is dropped. The current user's own echo first tries to
// claim a pending placeholder: by client correlation id when echoed, otherwise
// by matching sender and body within the dedup window.
func (s *InboxStore) applyInsert(chatID string, m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.messages[chatID]
	if containsMessageID(list, m.ID) {
		return
	}

	if m.SenderID == s.c.UserID() {
		for i, existing := range list {
			if !existing.Pending {
				continue
			}
			match := (m.ClientID != "" && m.ClientID == existing.ClientID) ||
				(existing.Body == m.Body && absDuration(m.CreatedAt.Sub(existing.CreatedAt)) <= dedupWindow)
			if match {
				list[i] = m
				s.messages[chatID] = list
				return
			}
		}
	}

	list = append(list, m)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	s.messages[chatID] = list
}

func (s *InboxStore) confirmMessage(chatID, clientID string, confirmed Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[chatID]
	for i, m := range list {
		if m.ClientID == clientID {
			if containsMessageID(list, confirmed.ID) {
				// Realtime echo won the race; drop the placeholder.
				s.messages[chatID] = append(list[:i], list[i+1:]...)
				return
			}
			list[i] = confirmed
			return
		}
	}
}

func (s *InboxStore) removeMessage(chatID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[chatID]
	for i, m := range list {
		if m.ID == messageID {
			s.messages[chatID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// QueueProcessor returns the replay processor for queued direct messages,
// for registration under QueueMessage in Offline.Flush.
func (s *InboxStore) QueueProcessor() Processor {
	return func(ctx context.Context, payload json.RawMessage) error {
		var draft MessageDraft
		if err := json.Unmarshal(payload, &draft); err != nil {
			// Unreadable payloads can never replay.
			return &APIError{Code: "INVALID_INPUT", Message: "malformed queued message"}
		}
		confirmed, err := s.c.Messages.Insert(ctx, draft)
		if err != nil {
			if IsPermanent(err) {
				s.removeByClientID(draft.ChatID, draft.ClientID)
			}
			return err
		}
		s.confirmMessage(draft.ChatID, draft.ClientID, *confirmed)
		s.notifyPush(ctx, draft.ChatID, confirmed.ID)
		return nil
	}
}

func (s *InboxStore) removeByClientID(chatID, clientID string) {
	if clientID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[chatID]
	for i, m := range list {
		if m.ClientID == clientID {
			s.messages[chatID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func containsMessageID(list []Message, id string) bool {
	for _, m := range list {
		if m.ID == id {
			return true
		}
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
