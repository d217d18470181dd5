package haven

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents a typed error returned by the backend.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Result is the response envelope used by every backend endpoint.
type Result struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *APIError       `json:"error,omitempty"`
}

// Decode unmarshals the Data field into v.
func (r *Result) Decode(v any) error {
	if r.Data == nil {
		return fmt.Errorf("result has no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal result data: %w", err)
	}
	return nil
}

// ============================================================================
// Roles
// ============================================================================

type Role string

const (
	RoleTeen   Role = "teen"
	RoleMentor Role = "mentor"
	RoleStaff  Role = "staff"
)

// ============================================================================
// Inbox Types
// ============================================================================

// Thread is a direct-message conversation between the current user and one
// other participant. Threads are created via the create-or-get RPC and never
// deleted by the client.
type Thread struct {
	ID        string `json:"id"`
	OtherID   string `json:"otherId"`
	OtherName string `json:"otherName"`
	OtherRole Role   `json:"otherRole"`
}

// Message is a direct message inside a Thread. Before the backend confirms a
// send, ID carries a "local-" prefixed placeholder value and Pending is true.
// ClientID is a client-generated correlation id; the realtime feed does not
// echo it, so reconciliation falls back to heuristic matching.
type Message struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId,omitempty"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	Pending   bool      `json:"pending,omitempty"`
}

// MessageDraft is the write payload for a direct message. It is also the
// persisted shape of a queued offline "message" item.
type MessageDraft struct {
	ChatID   string `json:"chatId"`
	SenderID string `json:"senderId"`
	Body     string `json:"body"`
	ClientID string `json:"clientId,omitempty"`
}

// ChatMember is one membership row of a direct-message chat.
type ChatMember struct {
	UserID string `json:"userId"`
}

// ============================================================================
// Spaces Types
// ============================================================================

// Cohort is a mentorship group. Each cohort owns one chat channel and one
// posts channel.
type Cohort struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type ChannelType string

const (
	ChannelChat  ChannelType = "chat"
	ChannelPosts ChannelType = "posts"
)

// Channel belongs to exactly one cohort; Type selects which sub-view renders it.
type Channel struct {
	ID       string      `json:"id"`
	CohortID string      `json:"cohortId"`
	Name     string      `json:"name"`
	Type     ChannelType `json:"type"`
}

// Post is a community post in a cohort's posts channel.
type Post struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId,omitempty"`
	ChannelID string    `json:"channelId"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	MediaURL  string    `json:"mediaUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Pending   bool      `json:"pending,omitempty"`
}

// PostDraft is the write payload for a community post and the persisted shape
// of a queued offline "post" item.
type PostDraft struct {
	ChannelID string `json:"channelId"`
	AuthorID  string `json:"authorId"`
	Content   string `json:"content"`
	MediaURL  string `json:"mediaUrl,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
}

// ChannelMessage is a chat message in a cohort's chat channel.
type ChannelMessage struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId,omitempty"`
	ChannelID string    `json:"channelId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	IsHidden  bool      `json:"isHidden"`
	Pending   bool      `json:"pending,omitempty"`
}

// ChannelMessageDraft is the write payload for a channel chat message.
type ChannelMessageDraft struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
	Content   string `json:"content"`
	ClientID  string `json:"clientId,omitempty"`
}

// Reaction is keyed by (post, user, type); at most one row per key.
type Reaction struct {
	PostID string `json:"postId"`
	UserID string `json:"userId"`
	Type   string `json:"type"`
}

// Report is a user-filed moderation report against a post or user.
type Report struct {
	ReporterID string `json:"reporterId"`
	TargetType string `json:"targetType"`
	TargetID   string `json:"targetId"`
	Reason     string `json:"reason"`
	Details    string `json:"details,omitempty"`
}

// Profile is the public slice of a user record.
type Profile struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Role     Role   `json:"role"`
	CohortID string `json:"cohortId,omitempty"`
}

// ============================================================================
// Clips Types
// ============================================================================

// Clip is a short video published to the daily feed.
type Clip struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"authorId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	VideoURL    string    `json:"videoUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	ActiveDate  string    `json:"activeDate,omitempty"`
}

// ============================================================================
// Daily Pulse Types
// ============================================================================

// CheckIn is a daily mood check-in; the backend accepts at most one per day.
type CheckIn struct {
	UserID string   `json:"userId"`
	Mood   int      `json:"mood"`
	Tags   []string `json:"tags,omitempty"`
	Note   string   `json:"note,omitempty"`
}

// Prompt is the reflection prompt active on a given date.
type Prompt struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	ActiveDate string `json:"activeDate"`
}

// ToolUsage records a completed coping-tool session.
type ToolUsage struct {
	UserID          string         `json:"userId"`
	ToolKey         string         `json:"toolKey"`
	DurationSeconds int            `json:"durationSeconds,omitempty"`
	Meta            map[string]any `json:"meta,omitempty"`
}

// WeeklyRecap is a per-user activity summary for one week, keyed by the
// Monday the week starts on (date string, "2006-01-02").
type WeeklyRecap struct {
	UserID          string `json:"userId"`
	WeekStart       string `json:"weekStart"`
	CheckinsCount   int    `json:"checkinsCount"`
	ToolsCount      int    `json:"toolsCount"`
	MentorMsgsCount int    `json:"mentorMsgsCount"`
}
