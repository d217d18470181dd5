package haven

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SpacesStore holds the cohort community state: cohort membership, the
// channels of each cohort, and the post and chat feeds of those channels.
// Feeds are ordered by creation time descending (newest first). All exported
// methods are safe for concurrent use.
type SpacesStore struct {
	c    *Client
	off  *Offline
	gate *Gate
	feed *FeedClient
	log  *zap.Logger

	mu        sync.RWMutex
	cohorts   []Cohort
	channels  map[string][]Channel        // by cohort id
	posts     map[string][]Post           // by channel id, newest first
	chat      map[string][]ChannelMessage // by channel id, newest first
	authors   map[string]Profile
	reactions map[string]map[string]bool // post id -> reaction type -> mine

	loadedPosts map[string]bool
	loadedChat  map[string]bool
	bufPosts    map[string][]Post
	bufChat     map[string][]ChannelMessage
	pages       *pager
}

func NewSpacesStore(c *Client, off *Offline, gate *Gate, feed *FeedClient) *SpacesStore {
	return &SpacesStore{
		c:           c,
		off:         off,
		gate:        gate,
		feed:        feed,
		log:         c.log,
		channels:    make(map[string][]Channel),
		posts:       make(map[string][]Post),
		chat:        make(map[string][]ChannelMessage),
		authors:     make(map[string]Profile),
		reactions:   make(map[string]map[string]bool),
		loadedPosts: make(map[string]bool),
		loadedChat:  make(map[string]bool),
		bufPosts:    make(map[string][]Post),
		bufChat:     make(map[string][]ChannelMessage),
		pages:       newPager(),
	}
}

// ── Accessors ────────────────────────────────────────────

func (s *SpacesStore) Cohorts() []Cohort {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Cohort(nil), s.cohorts...)
}

func (s *SpacesStore) Channels(cohortID string) []Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Channel(nil), s.channels[cohortID]...)
}

func (s *SpacesStore) Posts(channelID string) []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Post(nil), s.posts[channelID]...)
}

func (s *SpacesStore) ChannelMessages(channelID string) []ChannelMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ChannelMessage(nil), s.chat[channelID]...)
}

// Author returns the cached profile of a post or message author.
func (s *SpacesStore) Author(userID string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.authors[userID]
	return p, ok
}

// HasReacted reports whether the current user has the given reaction on a post.
func (s *SpacesStore) HasReacted(postID, reactionType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reactions[postID][reactionType]
}

// ── Cohorts and channels ─────────────────────────────────

// LoadCohorts fetches the cohorts the current user belongs to, serving the
// cached list when the backend is unreachable.
func (s *SpacesStore) LoadCohorts(ctx context.Context) error {
	if s.c.UserID() == "" {
		return ErrNoSession
	}
	cohorts, err := s.c.Cohorts.Mine(ctx)
	if err != nil {
		if IsRetryable(err) {
			var cached []Cohort
			if s.off.CacheGet(ctx, "cohorts", &cached) {
				s.mu.Lock()
				s.cohorts = cached
				s.mu.Unlock()
				return nil
			}
		}
		return err
	}

	s.mu.Lock()
	s.cohorts = cohorts
	s.mu.Unlock()
	s.off.CacheSet(ctx, "cohorts", cohorts)
	return nil
}

// FetchAllCohorts lists every joinable cohort; used by the join flow, not
// cached.
func (s *SpacesStore) FetchAllCohorts(ctx context.Context) ([]Cohort, error) {
	return s.c.Cohorts.All(ctx)
}

// JoinCohort adds the current user to a cohort and refreshes the membership
// list. Joining a cohort the user already belongs to succeeds.
func (s *SpacesStore) JoinCohort(ctx context.Context, cohortID string) error {
	if s.c.UserID() == "" {
		return ErrNoSession
	}
	if err := s.c.Cohorts.Join(ctx, cohortID); err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Code != "CONFLICT" {
			return err
		}
	}
	return s.LoadCohorts(ctx)
}

// LoadChannels fetches the channels of one cohort.
func (s *SpacesStore) LoadChannels(ctx context.Context, cohortID string) error {
	channels, err := s.c.Channels.ForCohort(ctx, cohortID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.channels[cohortID] = channels
	s.mu.Unlock()
	return nil
}

// ── Posts feed ───────────────────────────────────────────

// LoadPosts fetches the first page of a channel's posts, falls back to the
// cache on connectivity failure, and hydrates author profiles and the current
// user's reactions for the visible page.
func (s *SpacesStore) LoadPosts(ctx context.Context, channelID string) error {
	posts, err := s.c.Posts.List(ctx, channelID, 0, pageSizePosts)
	if err != nil {
		if !IsRetryable(err) {
			return err
		}
		posts = nil
	}
	if len(posts) == 0 {
		var cached []Post
		if s.off.CacheGet(ctx, "posts:"+channelID, &cached) {
			posts = cached
		}
		if err != nil && posts == nil {
			return err
		}
	} else {
		s.off.CacheSet(ctx, "posts:"+channelID, posts)
	}

	s.mu.Lock()
	s.posts[channelID] = posts
	s.loadedPosts[channelID] = true
	buffered := s.bufPosts[channelID]
	delete(s.bufPosts, channelID)
	s.mu.Unlock()

	s.pages.reset("posts:" + channelID)

	for _, p := range buffered {
		s.applyPostInsert(channelID, p)
	}

	s.hydratePostAuthors(ctx, posts)
	s.hydrateReactions(ctx, posts)
	return nil
}

// LoadMorePosts appends the next page of older posts.
func (s *SpacesStore) LoadMorePosts(ctx context.Context, channelID string) error {
	key := "posts:" + channelID
	offset, limit := s.pages.next(key, pageSizePosts)
	older, err := s.c.Posts.List(ctx, channelID, offset, limit)
	if err != nil {
		return err
	}
	if len(older) == 0 {
		return nil
	}

	s.mu.Lock()
	existing := s.posts[channelID]
	for _, p := range older {
		if !containsPostID(existing, p.ID) {
			existing = append(existing, p)
		}
	}
	s.posts[channelID] = existing
	s.mu.Unlock()

	s.pages.advance(key)
	s.hydratePostAuthors(ctx, older)
	s.hydrateReactions(ctx, older)
	return nil
}

// InsertPost creates a community post optimistically. The advisory cooldown
// gate runs first; a denial returns ErrCooldown without touching the feed.
// Empty content is allowed only when the post carries media. A connectivity
// failure queues the draft for replay; a backend rejection rolls the
// placeholder back.
func (s *SpacesStore) InsertPost(ctx context.Context, channelID, content, mediaURL string) (string, error) {
	userID := s.c.UserID()
	if userID == "" {
		return "", ErrNoSession
	}
	content = strings.TrimSpace(content)
	if content == "" && mediaURL == "" {
		return "", ErrEmptyContent
	}
	if s.gate != nil && !s.gate.AllowPost(ctx, userID) {
		return "", ErrCooldown
	}

	clientID := uuid.NewString()
	placeholder := Post{
		ID:        localIDPrefix + clientID,
		ClientID:  clientID,
		ChannelID: channelID,
		AuthorID:  userID,
		Content:   content,
		MediaURL:  mediaURL,
		CreatedAt: time.Now(),
		Pending:   true,
	}

	s.mu.Lock()
	s.posts[channelID] = append([]Post{placeholder}, s.posts[channelID]...)
	s.mu.Unlock()

	draft := PostDraft{ChannelID: channelID, AuthorID: userID, Content: content, MediaURL: mediaURL, ClientID: clientID}
	confirmed, err := s.c.Posts.Insert(ctx, draft)
	if err != nil {
		if IsRetryable(err) {
			payload, _ := json.Marshal(draft)
			if qerr := s.off.Enqueue(ctx, QueueItem{Type: QueuePost, Payload: payload}); qerr != nil {
				s.log.Warn("enqueue post failed", zap.Error(qerr))
			}
			return placeholder.ID, nil
		}
		s.removePost(channelID, placeholder.ID)
		return "", err
	}

	s.confirmPost(channelID, clientID, *confirmed)
	return confirmed.ID, nil
}

// DeletePost removes a post on the backend and scrubs it locally.
func (s *SpacesStore) DeletePost(ctx context.Context, channelID, postID string) error {
	if err := s.c.Posts.Delete(ctx, postID); err != nil {
		return err
	}
	s.removePost(channelID, postID)
	return nil
}

// ToggleReaction flips the current user's reaction on a post. The local state
// decides the direction, so toggling twice always lands back where it started.
func (s *SpacesStore) ToggleReaction(ctx context.Context, postID, reactionType string) error {
	if s.c.UserID() == "" {
		return ErrNoSession
	}

	s.mu.Lock()
	mine := s.reactions[postID][reactionType]
	s.mu.Unlock()

	var err error
	if mine {
		err = s.c.Reactions.Remove(ctx, postID, reactionType)
	} else {
		err = s.c.Reactions.Add(ctx, postID, reactionType)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.reactions[postID] == nil {
		s.reactions[postID] = make(map[string]bool)
	}
	s.reactions[postID][reactionType] = !mine
	s.mu.Unlock()
	return nil
}

// ── Channel chat ─────────────────────────────────────────

// LoadMessages fetches the first page of a channel's chat and hydrates author
// profiles. Channel chat is ephemeral room talk and is not cached offline.
func (s *SpacesStore) LoadMessages(ctx context.Context, channelID string) error {
	msgs, err := s.c.Channels.Messages(ctx, channelID, 0, pageSizeChannelMessages)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.chat[channelID] = msgs
	s.loadedChat[channelID] = true
	buffered := s.bufChat[channelID]
	delete(s.bufChat, channelID)
	s.mu.Unlock()

	s.pages.reset("chat:" + channelID)

	for _, m := range buffered {
		s.applyChatInsert(channelID, m)
	}

	s.hydrateMessageAuthors(ctx, msgs)
	return nil
}

// LoadMoreMessages appends the next page of older chat messages.
func (s *SpacesStore) LoadMoreMessages(ctx context.Context, channelID string) error {
	key := "chat:" + channelID
	offset, limit := s.pages.next(key, pageSizeChannelMessages)
	older, err := s.c.Channels.Messages(ctx, channelID, offset, limit)
	if err != nil {
		return err
	}
	if len(older) == 0 {
		return nil
	}

	s.mu.Lock()
	existing := s.chat[channelID]
	for _, m := range older {
		if !containsChatID(existing, m.ID) {
			existing = append(existing, m)
		}
	}
	s.chat[channelID] = existing
	s.mu.Unlock()

	s.pages.advance(key)
	s.hydrateMessageAuthors(ctx, older)
	return nil
}

// InsertMessage sends a channel chat message optimistically. Unlike posts and
// direct messages, failed chat messages are not queued for replay; room talk
// sent hours late reads wrong, so a connectivity failure leaves the
// placeholder pending for the user to retry.
func (s *SpacesStore) InsertMessage(ctx context.Context, channelID, content string) (string, error) {
	userID := s.c.UserID()
	if userID == "" {
		return "", ErrNoSession
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if s.gate != nil && !s.gate.AllowMessage(ctx, userID) {
		return "", ErrCooldown
	}

	clientID := uuid.NewString()
	placeholder := ChannelMessage{
		ID:        localIDPrefix + clientID,
		ClientID:  clientID,
		ChannelID: channelID,
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now(),
		Pending:   true,
	}

	s.mu.Lock()
	s.chat[channelID] = append([]ChannelMessage{placeholder}, s.chat[channelID]...)
	s.mu.Unlock()

	draft := ChannelMessageDraft{ChannelID: channelID, UserID: userID, Content: content, ClientID: clientID}
	confirmed, err := s.c.Channels.InsertMessage(ctx, draft)
	if err != nil {
		if IsRetryable(err) {
			s.log.Warn("channel message send failed, left pending", zap.Error(err))
			return placeholder.ID, nil
		}
		s.removeChatMessage(channelID, placeholder.ID)
		return "", err
	}

	s.confirmChatMessage(channelID, clientID, *confirmed)
	return confirmed.ID, nil
}

// DeleteMessage removes a channel chat message on the backend and locally.
func (s *SpacesStore) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := s.c.Channels.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	s.removeChatMessage(channelID, messageID)
	return nil
}

// ── Moderation ───────────────────────────────────────────

// ReportPost files a moderation report against a post.
func (s *SpacesStore) ReportPost(ctx context.Context, postID, reason, details string) error {
	userID := s.c.UserID()
	if userID == "" {
		return ErrNoSession
	}
	return s.c.Moderation.Report(ctx, Report{
		ReporterID: userID,
		TargetType: "post",
		TargetID:   postID,
		Reason:     reason,
		Details:    details,
	})
}

// BlockUser blocks another user and drops their content from loaded feeds.
func (s *SpacesStore) BlockUser(ctx context.Context, blockedID string) error {
	if s.c.UserID() == "" {
		return ErrNoSession
	}
	if err := s.c.Moderation.Block(ctx, blockedID); err != nil {
		return err
	}

	s.mu.Lock()
	for channelID, posts := range s.posts {
		kept := posts[:0]
		for _, p := range posts {
			if p.AuthorID != blockedID {
				kept = append(kept, p)
			}
		}
		s.posts[channelID] = kept
	}
	for channelID, msgs := range s.chat {
		kept := msgs[:0]
		for _, m := range msgs {
			if m.UserID != blockedID {
				kept = append(kept, m)
			}
		}
		s.chat[channelID] = kept
	}
	s.mu.Unlock()
	return nil
}

// ── Realtime ─────────────────────────────────────────────

// SubscribePosts attaches the posts feed of a channel to the realtime feed.
func (s *SpacesStore) SubscribePosts(ctx context.Context, channelID string) (func(), error) {
	if s.feed == nil {
		return func() {}, nil
	}
	topic := Topic("posts", "channel_id", channelID)
	return s.feed.Subscribe(ctx, topic, func(ev ChangeEvent) {
		s.handlePostEvent(channelID, ev)
	})
}

func (s *SpacesStore) handlePostEvent(channelID string, ev ChangeEvent) {
	var p Post
	if json.Unmarshal(ev.Record, &p) != nil {
		return
	}
	switch ev.Type {
	case "insert":
		s.mu.Lock()
		if !s.loadedPosts[channelID] {
			s.bufPosts[channelID] = append(s.bufPosts[channelID], p)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.applyPostInsert(channelID, p)
	case "delete":
		s.removePost(channelID, p.ID)
	}
}

// SubscribeChat attaches the chat feed of a channel to the realtime feed.
func (s *SpacesStore) SubscribeChat(ctx context.Context, channelID string) (func(), error) {
	if s.feed == nil {
		return func() {}, nil
	}
	topic := Topic("channel_messages", "channel_id", channelID)
	return s.feed.Subscribe(ctx, topic, func(ev ChangeEvent) {
		s.handleChatEvent(channelID, ev)
	})
}

func (s *SpacesStore) handleChatEvent(channelID string, ev ChangeEvent) {
	var m ChannelMessage
	if json.Unmarshal(ev.Record, &m) != nil {
		return
	}
	switch ev.Type {
	case "insert":
		s.mu.Lock()
		if !s.loadedChat[channelID] {
			s.bufChat[channelID] = append(s.bufChat[channelID], m)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.applyChatInsert(channelID, m)
	case "delete":
		s.removeChatMessage(channelID, m.ID)
	}
}

func (s *SpacesStore) applyPostInsert(channelID string, p Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.posts[channelID]
	if containsPostID(list, p.ID) {
		return
	}
	if p.AuthorID == s.c.UserID() {
		for i, existing := range list {
			if !existing.Pending {
				continue
			}
			match := (p.ClientID != "" && p.ClientID == existing.ClientID) ||
				(existing.Content == p.Content && absDuration(p.CreatedAt.Sub(existing.CreatedAt)) <= dedupWindow)
			if match {
				list[i] = p
				s.posts[channelID] = list
				return
			}
		}
	}
	s.posts[channelID] = append([]Post{p}, list...)
}

func (s *SpacesStore) applyChatInsert(channelID string, m ChannelMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.chat[channelID]
	if containsChatID(list, m.ID) {
		return
	}
	if m.UserID == s.c.UserID() {
		for i, existing := range list {
			if !existing.Pending {
				continue
			}
			match := (m.ClientID != "" && m.ClientID == existing.ClientID) ||
				(existing.Content == m.Content && absDuration(m.CreatedAt.Sub(existing.CreatedAt)) <= dedupWindow)
			if match {
				list[i] = m
				s.chat[channelID] = list
				return
			}
		}
	}
	s.chat[channelID] = append([]ChannelMessage{m}, list...)
}

// ── Queue replay ─────────────────────────────────────────

// QueueProcessor returns the replay processor for queued posts, for
// registration under QueuePost in Offline.Flush.
func (s *SpacesStore) QueueProcessor() Processor {
	return func(ctx context.Context, payload json.RawMessage) error {
		var draft PostDraft
		if err := json.Unmarshal(payload, &draft); err != nil {
			return &APIError{Code: "INVALID_INPUT", Message: "malformed queued post"}
		}
		confirmed, err := s.c.Posts.Insert(ctx, draft)
		if err != nil {
			if IsPermanent(err) {
				s.removePostByClientID(draft.ChannelID, draft.ClientID)
			}
			return err
		}
		s.confirmPost(draft.ChannelID, draft.ClientID, *confirmed)
		return nil
	}
}

// ── Internal helpers ─────────────────────────────────────

func (s *SpacesStore) confirmPost(channelID, clientID string, confirmed Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.posts[channelID]
	for i, p := range list {
		if p.ClientID == clientID {
			if containsPostID(list, confirmed.ID) {
				s.posts[channelID] = append(list[:i], list[i+1:]...)
				return
			}
			list[i] = confirmed
			return
		}
	}
}

func (s *SpacesStore) confirmChatMessage(channelID, clientID string, confirmed ChannelMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.chat[channelID]
	for i, m := range list {
		if m.ClientID == clientID {
			if containsChatID(list, confirmed.ID) {
				s.chat[channelID] = append(list[:i], list[i+1:]...)
				return
			}
			list[i] = confirmed
			return
		}
	}
}

func (s *SpacesStore) removePost(channelID, postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.posts[channelID]
	for i, p := range list {
		if p.ID == postID {
			s.posts[channelID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (s *SpacesStore) removePostByClientID(channelID, clientID string) {
	if clientID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.posts[channelID]
	for i, p := range list {
		if p.ClientID == clientID {
			s.posts[channelID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (s *SpacesStore) removeChatMessage(channelID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.chat[channelID]
	for i, m := range list {
		if m.ID == messageID {
			s.chat[channelID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (s *SpacesStore) hydratePostAuthors(ctx context.Context, posts []Post) {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.AuthorID)
	}
	s.hydrateAuthors(ctx, ids)
}

func (s *SpacesStore) hydrateMessageAuthors(ctx context.Context, msgs []ChannelMessage) {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.UserID)
	}
	s.hydrateAuthors(ctx, ids)
}

func (s *SpacesStore) hydrateAuthors(ctx context.Context, userIDs []string) {
	s.mu.RLock()
	missing := make([]string, 0, len(userIDs))
	seen := make(map[string]bool)
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := s.authors[id]; !ok {
			missing = append(missing, id)
		}
	}
	s.mu.RUnlock()
	if len(missing) == 0 {
		return
	}

	profiles, err := s.c.Profiles.Many(ctx, missing)
	if err != nil {
		s.log.Debug("author hydration failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	for _, p := range profiles {
		s.authors[p.ID] = p
	}
	s.mu.Unlock()
}

func (s *SpacesStore) hydrateReactions(ctx context.Context, posts []Post) {
	if s.c.UserID() == "" || len(posts) == 0 {
		return
	}
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	reactions, err := s.c.Reactions.Mine(ctx, ids)
	if err != nil {
		s.log.Debug("reaction hydration failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	for _, r := range reactions {
		if s.reactions[r.PostID] == nil {
			s.reactions[r.PostID] = make(map[string]bool)
		}
		s.reactions[r.PostID][r.Type] = true
	}
	s.mu.Unlock()
}

func containsPostID(list []Post, id string) bool {
	for _, p := range list {
		if p.ID == id {
			return true
		}
	}
	return false
}

func containsChatID(list []ChannelMessage, id string) bool {
	for _, m := range list {
		if m.ID == id {
			return true
		}
	}
	return false
}
