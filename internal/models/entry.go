package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// Entry is a contestant or team competing in an event.
type Entry struct {
	ID          string `json:"id" validate:"required,max=128"`
	Name        string `json:"name" validate:"required,max=120"`
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"max=4000"`
	Thumbnail   string `json:"thumbnail"`
	UserID      string `json:"userId,omitempty"`
}

// OwnedBy reports whether the entry is bound to the given user.
func (e Entry) OwnedBy(userID string) bool {
	return userID != "" && e.UserID == userID
}

// NewEntryID returns a short synthetic id, or "{prefix}_{suffix}" when the
// event title yields a usable prefix.
func NewEntryID(eventTitle string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	prefix := EventPrefix(eventTitle)
	if prefix == "" {
		return suffix
	}
	return fmt.Sprintf("%s_%s", prefix, suffix)
}

// EventPrefix derives a compact id prefix from an event title.
func EventPrefix(eventTitle string) string {
	s := slug.Make(eventTitle)
	s = strings.ReplaceAll(s, "-", "")
	if len(s) > 12 {
		s = s[:12]
	}
	return s
}

// EntryIndex returns the position of the entry with the given id, or -1.
func EntryIndex(entries []Entry, id string) int {
	for i, entry := range entries {
		if entry.ID == id {
			return i
		}
	}
	return -1
}
