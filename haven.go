// Package haven provides the Go client SDK for the Haven mentorship platform
// backend.
//
// The backend owns all business logic (storage, access policies, relational
// queries, realtime fan-out); this SDK implements the client side: typed
// resource access plus the offline-resilient synchronization layer (durable
// cache, offline write queue, optimistic mutations, realtime merge).
//
// Example:
//
//	client := haven.NewClient(token, haven.WithSession(userID, token))
//	store, _ := haven.OpenSQLiteStore(ctx, "haven.db")
//	offline := haven.NewOffline(store, haven.NewNetProbe(client.BaseURL()), logger)
//	inbox := haven.NewInboxStore(client, offline)
//
//	inbox.LoadThreads(ctx)
//	inbox.SendMessage(ctx, chatID, "hello")
package haven

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.havenyouth.org"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

type Client struct {
	token      string
	userID     string
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	log        *zap.Logger

	Chats      *ChatsClient
	Messages   *MessagesClient
	Cohorts    *CohortsClient
	Channels   *ChannelsClient
	Posts      *PostsClient
	Reactions  *ReactionsClient
	Profiles   *ProfilesClient
	Clips      *ClipsClient
	Pulse      *PulseClient
	Moderation *ModerationClient
	RPC        *RPCClient
	Functions  *FunctionsClient
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// WithSession sets the authenticated user and bearer token in one step.
func WithSession(userID, token string) ClientOption {
	return func(c *Client) {
		c.userID = userID
		c.token = token
	}
}

// NewClient creates a new Haven client. token may be "" for endpoints that
// allow anonymous reads.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// Trip after a burst of consecutive transport/5xx failures; while open,
	// calls fail fast and are classified as connectivity failures, so writes
	// land in the offline queue instead of hammering a dead link.
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "haven-backend",
		MaxRequests: 1,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Info("circuit breaker state",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	c.Chats = &ChatsClient{c: c}
	c.Messages = &MessagesClient{c: c}
	c.Cohorts = &CohortsClient{c: c}
	c.Channels = &ChannelsClient{c: c}
	c.Posts = &PostsClient{c: c}
	c.Reactions = &ReactionsClient{c: c}
	c.Profiles = &ProfilesClient{c: c}
	c.Clips = &ClipsClient{c: c}
	c.Pulse = &PulseClient{c: c}
	c.Moderation = &ModerationClient{c: c}
	c.RPC = &RPCClient{c: c}
	c.Functions = &FunctionsClient{c: c}
	return c
}

// SetSession updates the authenticated user and token, e.g. after sign-in.
func (c *Client) SetSession(userID, token string) {
	c.userID = userID
	c.token = token
}

// UserID returns the authenticated user id, or "" when signed out.
func (c *Client) UserID() string {
	return c.userID
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ============================================================================
// Internal request helpers
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body any, query map[string]string) ([]byte, error) {
	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyBytes = b
	}
	return c.send(ctx, method, path, bodyBytes, "application/json", query)
}

// send runs one HTTP exchange through the circuit breaker. Transport errors
// and 5xx responses count as breaker failures; 4xx responses reached the
// backend and do not.
func (c *Client) send(ctx context.Context, method, path string, body []byte, contentType string, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	out, err := c.cb.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", contentType)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode >= 500 {
			return nil, &APIError{Code: "UNAVAILABLE", Message: fmt.Sprintf("backend returned %d", resp.StatusCode)}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// do performs a request and unwraps the {ok, data, error} envelope.
func (c *Client) do(ctx context.Context, method, path string, body any, query map[string]string) (*Result, error) {
	data, err := c.doRequest(ctx, method, path, body, query)
	if err != nil {
		return nil, err
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !result.OK {
		if result.Error != nil {
			return nil, result.Error
		}
		return nil, &APIError{Code: "UNKNOWN", Message: "request failed"}
	}
	return &result, nil
}

func pageQuery(offset, limit int) map[string]string {
	return map[string]string{
		"offset": strconv.Itoa(offset),
		"limit":  strconv.Itoa(limit),
	}
}

// ============================================================================
// Sub-clients
// ============================================================================

// ChatsClient handles direct-message chat membership.
type ChatsClient struct{ c *Client }

// Mine lists the ids of every chat the current user belongs to.
func (cc *ChatsClient) Mine(ctx context.Context) ([]string, error) {
	res, err := cc.c.do(ctx, "GET", "/api/me/chats", nil, nil)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := res.Decode(&ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// MarkRead stamps the current user's last-read time on a chat.
func (cc *ChatsClient) MarkRead(ctx context.Context, chatID string) error {
	_, err := cc.c.do(ctx, "POST", "/api/chats/"+chatID+"/read", nil, nil)
	return err
}

// MessagesClient handles direct messages.
type MessagesClient struct{ c *Client }

// List returns messages of a chat ordered by creation time ascending,
// starting at offset.
func (mc *MessagesClient) List(ctx context.Context, chatID string, offset, limit int) ([]Message, error) {
	res, err := mc.c.do(ctx, "GET", "/api/chats/"+chatID+"/messages", nil, pageQuery(offset, limit))
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if err := res.Decode(&msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Insert writes one direct message and returns the authoritative record.
func (mc *MessagesClient) Insert(ctx context.Context, draft MessageDraft) (*Message, error) {
	res, err := mc.c.do(ctx, "POST", "/api/chats/"+draft.ChatID+"/messages", draft, nil)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := res.Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Received lists direct messages delivered to the current user in [from, to).
func (mc *MessagesClient) Received(ctx context.Context, from, to string) ([]Message, error) {
	res, err := mc.c.do(ctx, "GET", "/api/me/received_messages", nil, map[string]string{"from": from, "to": to})
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if err := res.Decode(&msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// CohortsClient handles cohort listing and membership.
type CohortsClient struct{ c *Client }

func (cc *CohortsClient) All(ctx context.Context) ([]Cohort, error) {
	res, err := cc.c.do(ctx, "GET", "/api/cohorts", nil, nil)
	if err != nil {
		return nil, err
	}
	var cohorts []Cohort
	if err := res.Decode(&cohorts); err != nil {
		return nil, err
	}
	return cohorts, nil
}

func (cc *CohortsClient) Mine(ctx context.Context) ([]Cohort, error) {
	res, err := cc.c.do(ctx, "GET", "/api/me/cohorts", nil, nil)
	if err != nil {
		return nil, err
	}
	var cohorts []Cohort
	if err := res.Decode(&cohorts); err != nil {
		return nil, err
	}
	return cohorts, nil
}

// Join adds the current user to a cohort and points their profile at it.
func (cc *CohortsClient) Join(ctx context.Context, cohortID string) error {
	_, err := cc.c.do(ctx, "POST", "/api/cohorts/"+cohortID+"/members", nil, nil)
	return err
}

// ChannelsClient handles cohort channels and channel chat messages.
type ChannelsClient struct{ c *Client }

func (ch *ChannelsClient) ForCohort(ctx context.Context, cohortID string) ([]Channel, error) {
	res, err := ch.c.do(ctx, "GET", "/api/cohorts/"+cohortID+"/channels", nil, nil)
	if err != nil {
		return nil, err
	}
	var channels []Channel
	if err := res.Decode(&channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// Messages returns channel chat messages ordered by creation time descending.
func (ch *ChannelsClient) Messages(ctx context.Context, channelID string, offset, limit int) ([]ChannelMessage, error) {
	res, err := ch.c.do(ctx, "GET", "/api/channels/"+channelID+"/messages", nil, pageQuery(offset, limit))
	if err != nil {
		return nil, err
	}
	var msgs []ChannelMessage
	if err := res.Decode(&msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (ch *ChannelsClient) InsertMessage(ctx context.Context, draft ChannelMessageDraft) (*ChannelMessage, error) {
	res, err := ch.c.do(ctx, "POST", "/api/channels/"+draft.ChannelID+"/messages", draft, nil)
	if err != nil {
		return nil, err
	}
	var msg ChannelMessage
	if err := res.Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage hard-deletes a channel chat message (privileged roles only;
// the backend policy decides).
func (ch *ChannelsClient) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := ch.c.do(ctx, "DELETE", "/api/channel_messages/"+messageID, nil, nil)
	return err
}

// PostsClient handles community posts.
type PostsClient struct{ c *Client }

// List returns posts of a channel ordered by creation time descending.
func (pc *PostsClient) List(ctx context.Context, channelID string, offset, limit int) ([]Post, error) {
	res, err := pc.c.do(ctx, "GET", "/api/channels/"+channelID+"/posts", nil, pageQuery(offset, limit))
	if err != nil {
		return nil, err
	}
	var posts []Post
	if err := res.Decode(&posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (pc *PostsClient) Insert(ctx context.Context, draft PostDraft) (*Post, error) {
	res, err := pc.c.do(ctx, "POST", "/api/channels/"+draft.ChannelID+"/posts", draft, nil)
	if err != nil {
		return nil, err
	}
	var post Post
	if err := res.Decode(&post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (pc *PostsClient) Delete(ctx context.Context, postID string) error {
	_, err := pc.c.do(ctx, "DELETE", "/api/posts/"+postID, nil, nil)
	return err
}

// ReactionsClient handles post reactions.
type ReactionsClient struct{ c *Client }

// Mine lists the current user's reactions across the given posts.
func (rc *ReactionsClient) Mine(ctx context.Context, postIDs []string) ([]Reaction, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	res, err := rc.c.do(ctx, "GET", "/api/me/reactions", nil, map[string]string{
		"postIds": strings.Join(postIDs, ","),
	})
	if err != nil {
		return nil, err
	}
	var reactions []Reaction
	if err := res.Decode(&reactions); err != nil {
		return nil, err
	}
	return reactions, nil
}

func (rc *ReactionsClient) Add(ctx context.Context, postID, reactionType string) error {
	_, err := rc.c.do(ctx, "POST", "/api/posts/"+postID+"/reactions",
		map[string]string{"type": reactionType}, nil)
	return err
}

func (rc *ReactionsClient) Remove(ctx context.Context, postID, reactionType string) error {
	_, err := rc.c.do(ctx, "DELETE", "/api/posts/"+postID+"/reactions/"+reactionType, nil, nil)
	return err
}

// ProfilesClient handles public profile reads.
type ProfilesClient struct{ c *Client }

func (pc *ProfilesClient) Get(ctx context.Context, userID string) (*Profile, error) {
	res, err := pc.c.do(ctx, "GET", "/api/profiles/"+userID, nil, nil)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := res.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Many fetches several profiles in one round trip.
func (pc *ProfilesClient) Many(ctx context.Context, userIDs []string) ([]Profile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	res, err := pc.c.do(ctx, "GET", "/api/profiles", nil, map[string]string{
		"ids": strings.Join(userIDs, ","),
	})
	if err != nil {
		return nil, err
	}
	var profiles []Profile
	if err := res.Decode(&profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// ClipsClient handles the daily clips feed and uploads.
type ClipsClient struct{ c *Client }

// Active lists clips whose active date matches date (YYYY-MM-DD).
func (cl *ClipsClient) Active(ctx context.Context, date string, limit int) ([]Clip, error) {
	res, err := cl.c.do(ctx, "GET", "/api/clips", nil, map[string]string{
		"activeDate": date,
		"limit":      strconv.Itoa(limit),
	})
	if err != nil {
		return nil, err
	}
	var clips []Clip
	if err := res.Decode(&clips); err != nil {
		return nil, err
	}
	return clips, nil
}

// Latest lists the most recent clips regardless of active date.
func (cl *ClipsClient) Latest(ctx context.Context, limit int) ([]Clip, error) {
	res, err := cl.c.do(ctx, "GET", "/api/clips", nil, map[string]string{
		"limit": strconv.Itoa(limit),
	})
	if err != nil {
		return nil, err
	}
	var clips []Clip
	if err := res.Decode(&clips); err != nil {
		return nil, err
	}
	return clips, nil
}

// Insert writes the metadata row of an uploaded clip.
func (cl *ClipsClient) Insert(ctx context.Context, clip Clip) error {
	_, err := cl.c.do(ctx, "POST", "/api/clips", clip, nil)
	return err
}

// Bookmarks lists the clip ids the current user has bookmarked.
func (cl *ClipsClient) Bookmarks(ctx context.Context) ([]string, error) {
	res, err := cl.c.do(ctx, "GET", "/api/me/clip_bookmarks", nil, nil)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := res.Decode(&ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (cl *ClipsClient) Bookmark(ctx context.Context, clipID string) error {
	_, err := cl.c.do(ctx, "POST", "/api/clips/"+clipID+"/bookmark", nil, nil)
	return err
}

func (cl *ClipsClient) Unbookmark(ctx context.Context, clipID string) error {
	_, err := cl.c.do(ctx, "DELETE", "/api/clips/"+clipID+"/bookmark", nil, nil)
	return err
}

// UploadObject uploads raw video bytes to object storage and returns the
// public URL of the stored object.
func (cl *ClipsClient) UploadObject(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "video/mp4"
	}
	raw, err := cl.c.send(ctx, "PUT", "/storage/clips/"+path, data, contentType, nil)
	if err != nil {
		return "", err
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("failed to unmarshal upload response: %w", err)
	}
	if !result.OK {
		if result.Error != nil {
			return "", result.Error
		}
		return "", &APIError{Code: "UNKNOWN", Message: "upload failed"}
	}
	var payload struct {
		PublicURL string `json:"publicUrl"`
	}
	if err := result.Decode(&payload); err != nil {
		return "", err
	}
	return payload.PublicURL, nil
}

// PulseClient handles daily check-ins, prompts, and coping tools.
type PulseClient struct{ c *Client }

// Prompt returns the reflection prompt active on date, or nil when none is.
func (pc *PulseClient) Prompt(ctx context.Context, date string) (*Prompt, error) {
	res, err := pc.c.do(ctx, "GET", "/api/prompts", nil, map[string]string{"activeDate": date})
	if err != nil {
		return nil, err
	}
	var prompts []Prompt
	if err := res.Decode(&prompts); err != nil {
		return nil, err
	}
	if len(prompts) == 0 {
		return nil, nil
	}
	return &prompts[0], nil
}

// CheckedIn reports whether the current user already checked in on date.
func (pc *PulseClient) CheckedIn(ctx context.Context, date string) (bool, error) {
	res, err := pc.c.do(ctx, "GET", "/api/me/checkins", nil, map[string]string{"date": date})
	if err != nil {
		return false, err
	}
	var payload struct {
		Count int `json:"count"`
	}
	if err := res.Decode(&payload); err != nil {
		return false, err
	}
	return payload.Count > 0, nil
}

func (pc *PulseClient) SaveCheckIn(ctx context.Context, in CheckIn) error {
	_, err := pc.c.do(ctx, "POST", "/api/checkins", in, nil)
	return err
}

func (pc *PulseClient) SavedTools(ctx context.Context) ([]string, error) {
	res, err := pc.c.do(ctx, "GET", "/api/me/saved_tools", nil, nil)
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := res.Decode(&keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (pc *PulseClient) SaveTool(ctx context.Context, toolKey string) error {
	_, err := pc.c.do(ctx, "POST", "/api/me/saved_tools",
		map[string]string{"toolKey": toolKey}, nil)
	return err
}

func (pc *PulseClient) RemoveTool(ctx context.Context, toolKey string) error {
	_, err := pc.c.do(ctx, "DELETE", "/api/me/saved_tools/"+toolKey, nil, nil)
	return err
}

func (pc *PulseClient) LogToolUsage(ctx context.Context, usage ToolUsage) error {
	_, err := pc.c.do(ctx, "POST", "/api/tool_usage", usage, nil)
	return err
}

// Recap returns the stored recap for the week starting weekStart, or nil
// when none exists yet.
func (pc *PulseClient) Recap(ctx context.Context, weekStart string) (*WeeklyRecap, error) {
	res, err := pc.c.do(ctx, "GET", "/api/me/recaps", nil, map[string]string{"weekStart": weekStart})
	if err != nil {
		return nil, err
	}
	var recaps []WeeklyRecap
	if err := res.Decode(&recaps); err != nil {
		return nil, err
	}
	if len(recaps) == 0 {
		return nil, nil
	}
	return &recaps[0], nil
}

func (pc *PulseClient) InsertRecap(ctx context.Context, recap WeeklyRecap) error {
	_, err := pc.c.do(ctx, "POST", "/api/recaps", recap, nil)
	return err
}

// CheckInCount counts the current user's check-ins created in [from, to).
func (pc *PulseClient) CheckInCount(ctx context.Context, from, to string) (int, error) {
	return pc.c.windowCount(ctx, "/api/me/checkins", from, to)
}

// ToolUsageCount counts the current user's tool sessions logged in [from, to).
func (pc *PulseClient) ToolUsageCount(ctx context.Context, from, to string) (int, error) {
	return pc.c.windowCount(ctx, "/api/me/tool_usage", from, to)
}

func (c *Client) windowCount(ctx context.Context, path, from, to string) (int, error) {
	res, err := c.do(ctx, "GET", path, nil, map[string]string{"from": from, "to": to})
	if err != nil {
		return 0, err
	}
	var payload struct {
		Count int `json:"count"`
	}
	if err := res.Decode(&payload); err != nil {
		return 0, err
	}
	return payload.Count, nil
}

// ModerationClient handles reports and blocks.
type ModerationClient struct{ c *Client }

func (mc *ModerationClient) Report(ctx context.Context, report Report) error {
	_, err := mc.c.do(ctx, "POST", "/api/reports", report, nil)
	return err
}

func (mc *ModerationClient) Block(ctx context.Context, blockedID string) error {
	_, err := mc.c.do(ctx, "POST", "/api/blocks",
		map[string]string{"blockedId": blockedID}, nil)
	return err
}

// RPCClient calls backend remote procedures.
type RPCClient struct{ c *Client }

// CreateDM creates (or returns the existing) direct-message chat with
// targetID. Idempotent on the backend.
func (rc *RPCClient) CreateDM(ctx context.Context, targetID string) (string, error) {
	res, err := rc.c.do(ctx, "POST", "/api/rpc/create_dm",
		map[string]string{"targetId": targetID}, nil)
	if err != nil {
		return "", err
	}
	var payload struct {
		ChatID string `json:"chatId"`
	}
	if err := res.Decode(&payload); err != nil {
		return "", err
	}
	return payload.ChatID, nil
}

// ChatMembers lists the membership rows of a chat.
func (rc *RPCClient) ChatMembers(ctx context.Context, chatID string) ([]ChatMember, error) {
	res, err := rc.c.do(ctx, "GET", "/api/rpc/chat_members", nil,
		map[string]string{"chatId": chatID})
	if err != nil {
		return nil, err
	}
	var members []ChatMember
	if err := res.Decode(&members); err != nil {
		return nil, err
	}
	return members, nil
}

// LastMessageTime returns when userID last sent a channel chat message.
// ok is false when there is no prior message.
func (rc *RPCClient) LastMessageTime(ctx context.Context, userID string) (time.Time, bool, error) {
	return rc.lastWrite(ctx, "/api/rpc/last_message_time", userID)
}

// LastPostTime returns when userID last created a community post.
func (rc *RPCClient) LastPostTime(ctx context.Context, userID string) (time.Time, bool, error) {
	return rc.lastWrite(ctx, "/api/rpc/last_post_time", userID)
}

func (rc *RPCClient) lastWrite(ctx context.Context, path, userID string) (time.Time, bool, error) {
	res, err := rc.c.do(ctx, "GET", path, nil, map[string]string{"userId": userID})
	if err != nil {
		return time.Time{}, false, err
	}
	var payload struct {
		LastAt *time.Time `json:"lastAt"`
	}
	if err := res.Decode(&payload); err != nil {
		return time.Time{}, false, err
	}
	if payload.LastAt == nil {
		return time.Time{}, false, nil
	}
	return *payload.LastAt, true, nil
}

// FunctionsClient invokes backend edge functions (e.g. push fan-out).
type FunctionsClient struct{ c *Client }

func (fc *FunctionsClient) Invoke(ctx context.Context, name string, body any) error {
	_, err := fc.c.do(ctx, "POST", "/api/functions/"+name, body, nil)
	return err
}
