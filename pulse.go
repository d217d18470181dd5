package haven

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PulseStore drives the daily pulse flow: one mood check-in per day, the
// day's reflection prompt, and the user's saved coping tools. The in-progress
// check-in (mood, tags, note) lives locally until SaveCheckIn commits it.
type PulseStore struct {
	c   *Client
	log *zap.Logger

	mu         sync.RWMutex
	mood       int
	tags       map[string]bool
	note       string
	prompt     *Prompt
	checkedIn  bool
	savedTools map[string]bool
}

func NewPulseStore(c *Client) *PulseStore {
	return &PulseStore{
		c:          c,
		log:        c.log,
		tags:       make(map[string]bool),
		savedTools: make(map[string]bool),
	}
}

// ── Draft check-in state ─────────────────────────────────

// SetMood records the draft mood value (1..5 by convention; the backend
// validates the range).
func (s *PulseStore) SetMood(mood int) {
	s.mu.Lock()
	s.mood = mood
	s.mu.Unlock()
}

// ToggleTag flips one feeling tag on the draft check-in.
func (s *PulseStore) ToggleTag(tag string) {
	s.mu.Lock()
	if s.tags[tag] {
		delete(s.tags, tag)
	} else {
		s.tags[tag] = true
	}
	s.mu.Unlock()
}

// SetNote records the draft free-text note.
func (s *PulseStore) SetNote(note string) {
	s.mu.Lock()
	s.note = note
	s.mu.Unlock()
}

// Draft returns the current draft check-in values.
func (s *PulseStore) Draft() (mood int, tags []string, note string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for tag := range s.tags {
		tags = append(tags, tag)
	}
	return s.mood, tags, s.note
}

// ── Prompt and check-in ──────────────────────────────────

// Prompt returns the loaded reflection prompt, or nil when none is active.
func (s *PulseStore) Prompt() *Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prompt
}

// CheckedIn reports whether today's check-in is already committed.
func (s *PulseStore) CheckedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkedIn
}

// LoadToday fetches today's prompt and whether the user already checked in.
func (s *PulseStore) LoadToday(ctx context.Context) error {
	if s.c.UserID() == "" {
		return ErrNoSession
	}
	date := time.Now().UTC().Format("2006-01-02")

	prompt, err := s.c.Pulse.Prompt(ctx, date)
	if err != nil {
		return err
	}
	checkedIn, err := s.c.Pulse.CheckedIn(ctx, date)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.prompt = prompt
	s.checkedIn = checkedIn
	s.mu.Unlock()
	return nil
}

// SaveCheckIn commits the draft check-in. At most one check-in per day; a
// second attempt fails locally with ErrAlreadyCheckedIn and the draft is kept.
func (s *PulseStore) SaveCheckIn(ctx context.Context) error {
	userID := s.c.UserID()
	if userID == "" {
		return ErrNoSession
	}

	s.mu.RLock()
	if s.checkedIn {
		s.mu.RUnlock()
		return ErrAlreadyCheckedIn
	}
	in := CheckIn{UserID: userID, Mood: s.mood, Note: s.note}
	for tag := range s.tags {
		in.Tags = append(in.Tags, tag)
	}
	s.mu.RUnlock()

	if err := s.c.Pulse.SaveCheckIn(ctx, in); err != nil {
		return err
	}

	s.mu.Lock()
	s.checkedIn = true
	s.mood = 0
	s.tags = make(map[string]bool)
	s.note = ""
	s.mu.Unlock()
	return nil
}

// ── Coping tools ─────────────────────────────────────────

// IsToolSaved reports whether a coping tool is in the user's saved list.
func (s *PulseStore) IsToolSaved(toolKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.savedTools[toolKey]
}

// LoadSavedTools fetches the user's saved coping tools.
func (s *PulseStore) LoadSavedTools(ctx context.Context) error {
	if s.c.UserID() == "" {
		return ErrNoSession
	}
	keys, err := s.c.Pulse.SavedTools(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.savedTools = make(map[string]bool, len(keys))
	for _, k := range keys {
		s.savedTools[k] = true
	}
	s.mu.Unlock()
	return nil
}

// SaveTool adds a coping tool to the saved list.
func (s *PulseStore) SaveTool(ctx context.Context, toolKey string) error {
	if s.c.UserID() == "" {
		return ErrNoSession
	}
	if err := s.c.Pulse.SaveTool(ctx, toolKey); err != nil {
		return err
	}
	s.mu.Lock()
	s.savedTools[toolKey] = true
	s.mu.Unlock()
	return nil
}

// RemoveTool drops a coping tool from the saved list.
func (s *PulseStore) RemoveTool(ctx context.Context, toolKey string) error {
	if s.c.UserID() == "" {
		return ErrNoSession
	}
	if err := s.c.Pulse.RemoveTool(ctx, toolKey); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.savedTools, toolKey)
	s.mu.Unlock()
	return nil
}

// ── Weekly recap ─────────────────────────────────────────

// lastWeekStart returns midnight UTC of the Monday of the week before now.
func lastWeekStart(now time.Time) time.Time {
	d := now.UTC()
	toMonday := (int(d.Weekday()) + 6) % 7
	d = d.AddDate(0, 0, -toMonday-7)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// EnsureWeeklyRecap builds last week's activity recap (check-ins, coping-tool
// sessions, messages received from mentors or staff) if the backend does not
// hold one yet. Safe to call on every app start; an existing recap row makes
// it a no-op.
func (s *PulseStore) EnsureWeeklyRecap(ctx context.Context) error {
	userID := s.c.UserID()
	if userID == "" {
		return ErrNoSession
	}

	start := lastWeekStart(time.Now())
	weekStart := start.Format("2006-01-02")

	existing, err := s.c.Pulse.Recap(ctx, weekStart)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	from := start.Format(time.RFC3339)
	to := start.AddDate(0, 0, 7).Format(time.RFC3339)

	checkins, err := s.c.Pulse.CheckInCount(ctx, from, to)
	if err != nil {
		return err
	}
	tools, err := s.c.Pulse.ToolUsageCount(ctx, from, to)
	if err != nil {
		return err
	}
	mentorMsgs, err := s.countMentorMessages(ctx, userID, from, to)
	if err != nil {
		return err
	}

	err = s.c.Pulse.InsertRecap(ctx, WeeklyRecap{
		UserID:          userID,
		WeekStart:       weekStart,
		CheckinsCount:   checkins,
		ToolsCount:      tools,
		MentorMsgsCount: mentorMsgs,
	})
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == "CONFLICT" {
		// Another device wrote the same week's row first.
		return nil
	}
	return err
}

// countMentorMessages counts messages the user received from mentor or staff
// senders in the window.
func (s *PulseStore) countMentorMessages(ctx context.Context, userID, from, to string) (int, error) {
	msgs, err := s.c.Messages.Received(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	seen := make(map[string]bool)
	var senderIDs []string
	for _, m := range msgs {
		if m.SenderID == "" || m.SenderID == userID || seen[m.SenderID] {
			continue
		}
		seen[m.SenderID] = true
		senderIDs = append(senderIDs, m.SenderID)
	}
	profiles, err := s.c.Profiles.Many(ctx, senderIDs)
	if err != nil {
		return 0, err
	}

	mentors := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		if p.Role == RoleMentor || p.Role == RoleStaff {
			mentors[p.ID] = true
		}
	}
	n := 0
	for _, m := range msgs {
		if mentors[m.SenderID] {
			n++
		}
	}
	return n, nil
}

// LogToolUsage records a completed coping-tool session. Best-effort analytics;
// failures are logged and swallowed.
func (s *PulseStore) LogToolUsage(ctx context.Context, toolKey string, durationSeconds int) {
	userID := s.c.UserID()
	if userID == "" {
		return
	}
	err := s.c.Pulse.LogToolUsage(ctx, ToolUsage{
		UserID:          userID,
		ToolKey:         toolKey,
		DurationSeconds: durationSeconds,
	})
	if err != nil {
		s.log.Debug("tool usage log failed", zap.Error(err))
	}
}
