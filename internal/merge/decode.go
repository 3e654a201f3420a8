package merge

import (
	"bytes"
	"encoding/json"

	"github.com/noah-isme/judging-portal/internal/models"
)

// Remote is a decoded remote document. Each Has* flag records whether the
// corresponding field was present and well formed; an absent field means
// "no data for this field", not "empty".
type Remote struct {
	Entries   []models.Entry
	Ratings   []models.Rating
	Judges    []string
	UpdatedAt int64

	HasEntries bool
	HasRatings bool
	HasJudges  bool
}

// Decode parses a remote payload field by field. A malformed field is
// treated as absent instead of failing the whole document. A body that is
// not a JSON object yields a Remote with every field absent. Items without
// their identifying ids (including null items) are dropped.
func Decode(body []byte) *Remote {
	remote := &Remote{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return remote
	}

	if raw, ok := fields["teams"]; ok && isArray(raw) {
		var entries []models.Entry
		if err := json.Unmarshal(raw, &entries); err == nil {
			remote.Entries = keepIdentified(entries, func(e models.Entry) bool { return e.ID != "" })
			remote.HasEntries = true
		}
	}

	if raw, ok := fields["ratings"]; ok && isArray(raw) {
		var ratings []models.Rating
		if err := json.Unmarshal(raw, &ratings); err == nil {
			remote.Ratings = keepIdentified(ratings, func(r models.Rating) bool { return r.TeamID != "" && r.JudgeID != "" })
			remote.HasRatings = true
		}
	}

	if raw, ok := fields["judges"]; ok && isArray(raw) {
		var judges []string
		if err := json.Unmarshal(raw, &judges); err == nil {
			remote.Judges = keepIdentified(judges, func(id string) bool { return id != "" })
			remote.HasJudges = true
		}
	}

	if raw, ok := fields["updatedAt"]; ok {
		var updatedAt int64
		if err := json.Unmarshal(raw, &updatedAt); err == nil {
			remote.UpdatedAt = updatedAt
		}
	}

	return remote
}

// FromSnapshot wraps a snapshot as a fully-present remote.
func FromSnapshot(s models.Snapshot) *Remote {
	return &Remote{
		Entries:    s.Entries,
		Ratings:    s.Ratings,
		Judges:     s.Judges,
		HasEntries: true,
		HasRatings: true,
		HasJudges:  true,
	}
}

// Snapshot returns the fields that were present as a snapshot.
func (r *Remote) Snapshot() models.Snapshot {
	if r == nil {
		return models.Snapshot{}
	}
	return models.Snapshot{Entries: r.Entries, Ratings: r.Ratings, Judges: r.Judges}
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func keepIdentified[T any](items []T, identified func(T) bool) []T {
	kept := items[:0]
	for _, item := range items {
		if identified(item) {
			kept = append(kept, item)
		}
	}
	return kept
}
