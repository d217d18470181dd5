package haven

import (
	"context"
	"fmt"
	"math/rand"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const clipsFallbackLimit = 10

// ClipsStore holds the daily clips feed and the current user's bookmarks.
// The feed shows clips scheduled for today; when none are scheduled it falls
// back to the latest published clips, and when the backend is unreachable to
// the last cached feed.
type ClipsStore struct {
	c   *Client
	off *Offline
	log *zap.Logger

	mu        sync.RWMutex
	clips     []Clip
	bookmarks map[string]bool
}

func NewClipsStore(c *Client, off *Offline) *ClipsStore {
	return &ClipsStore{
		c:         c,
		off:       off,
		log:       c.log,
		bookmarks: make(map[string]bool),
	}
}

// Clips returns a copy of the loaded feed.
func (s *ClipsStore) Clips() []Clip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Clip(nil), s.clips...)
}

// IsBookmarked reports whether the current user bookmarked a clip.
func (s *ClipsStore) IsBookmarked(clipID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bookmarks[clipID]
}

// LoadToday loads the feed for the current UTC date and hydrates bookmarks.
func (s *ClipsStore) LoadToday(ctx context.Context) error {
	date := time.Now().UTC().Format("2006-01-02")

	clips, err := s.c.Clips.Active(ctx, date, clipsFallbackLimit)
	if err != nil && !IsRetryable(err) {
		return err
	}
	if err == nil && len(clips) == 0 {
		clips, err = s.c.Clips.Latest(ctx, clipsFallbackLimit)
		if err != nil && !IsRetryable(err) {
			return err
		}
	}
	if len(clips) == 0 {
		var cached []Clip
		if s.off.CacheGet(ctx, "clips:today", &cached) {
			clips = cached
		}
		if err != nil && clips == nil {
			return err
		}
	} else {
		s.off.CacheSet(ctx, "clips:today", clips)
	}

	s.mu.Lock()
	s.clips = clips
	s.mu.Unlock()

	s.hydrateBookmarks(ctx)
	return nil
}

func (s *ClipsStore) hydrateBookmarks(ctx context.Context) {
	if s.c.UserID() == "" {
		return
	}
	ids, err := s.c.Clips.Bookmarks(ctx)
	if err != nil {
		s.log.Debug("bookmark hydration failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.bookmarks = make(map[string]bool, len(ids))
	for _, id := range ids {
		s.bookmarks[id] = true
	}
	s.mu.Unlock()
}

// Bookmark marks a clip saved for the current user.
func (s *ClipsStore) Bookmark(ctx context.Context, clipID string) error {
	if s.c.UserID() == "" {
		return ErrNoSession
	}
	if err := s.c.Clips.Bookmark(ctx, clipID); err != nil {
		return err
	}
	s.mu.Lock()
	s.bookmarks[clipID] = true
	s.mu.Unlock()
	return nil
}

// Unbookmark removes a saved clip.
func (s *ClipsStore) Unbookmark(ctx context.Context, clipID string) error {
	if s.c.UserID() == "" {
		return ErrNoSession
	}
	if err := s.c.Clips.Unbookmark(ctx, clipID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.bookmarks, clipID)
	s.mu.Unlock()
	return nil
}

// Upload stores video bytes in object storage, writes the clip metadata, and
// refreshes the feed. filename only contributes its extension; the object key
// is derived from the uploader and upload time so names never collide.
func (s *ClipsStore) Upload(ctx context.Context, data []byte, filename, title, description, activeDate string) error {
	userID := s.c.UserID()
	if userID == "" {
		return ErrNoSession
	}
	if strings.TrimSpace(title) == "" {
		return ErrEmptyContent
	}

	ext := path.Ext(filename)
	if ext == "" {
		ext = ".mp4"
	}
	key := fmt.Sprintf("%s/%d-%04d%s", userID, time.Now().UnixMilli(), rand.Intn(10000), ext)

	publicURL, err := s.c.Clips.UploadObject(ctx, key, data, contentTypeForExt(ext))
	if err != nil {
		return err
	}

	err = s.c.Clips.Insert(ctx, Clip{
		AuthorID:    userID,
		Title:       title,
		Description: description,
		VideoURL:    publicURL,
		ActiveDate:  activeDate,
	})
	if err != nil {
		return err
	}
	return s.LoadToday(ctx)
}

func contentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	default:
		return "video/mp4"
	}
}
