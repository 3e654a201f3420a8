package models

// Document is the shared remote blob for one event.
type Document struct {
	Teams     []Entry  `json:"teams"`
	Ratings   []Rating `json:"ratings"`
	Judges    []string `json:"judges"`
	UpdatedAt int64    `json:"updatedAt"`
}

// Snapshot is the client's view of the synchronised state.
type Snapshot struct {
	Entries []Entry  `json:"entries"`
	Ratings []Rating `json:"ratings"`
	Judges  []string `json:"judges"`
}

// Empty reports whether the snapshot carries no data at all.
func (s Snapshot) Empty() bool {
	return len(s.Entries) == 0 && len(s.Ratings) == 0 && len(s.Judges) == 0
}

// Clone returns a deep copy so callers can roll back to it.
func (s Snapshot) Clone() Snapshot {
	var out Snapshot
	if s.Entries != nil {
		out.Entries = make([]Entry, len(s.Entries))
		copy(out.Entries, s.Entries)
	}
	if s.Judges != nil {
		out.Judges = make([]string, len(s.Judges))
		copy(out.Judges, s.Judges)
	}
	if s.Ratings != nil {
		out.Ratings = make([]Rating, len(s.Ratings))
		for i, rating := range s.Ratings {
			out.Ratings[i] = rating.Clone()
		}
	}
	return out
}

// Document converts the snapshot to its wire shape.
func (s Snapshot) Document(updatedAt int64) Document {
	return Document{
		Teams:     nonNilEntries(s.Entries),
		Ratings:   nonNilRatings(s.Ratings),
		Judges:    nonNilStrings(s.Judges),
		UpdatedAt: updatedAt,
	}
}

// Snapshot converts a wire document back to a snapshot.
func (d Document) Snapshot() Snapshot {
	return Snapshot{Entries: d.Teams, Ratings: d.Ratings, Judges: d.Judges}
}

// RatingsByJudge counts ratings per judge id. Ratings of entries missing
// from the snapshot are not counted.
func (s Snapshot) RatingsByJudge() map[string]int {
	present := make(map[string]struct{}, len(s.Entries))
	for _, entry := range s.Entries {
		present[entry.ID] = struct{}{}
	}
	counts := make(map[string]int, len(s.Judges))
	for _, rating := range s.Ratings {
		if _, ok := present[rating.TeamID]; ok {
			counts[rating.JudgeID]++
		}
	}
	return counts
}

func nonNilEntries(v []Entry) []Entry {
	if v == nil {
		return []Entry{}
	}
	return v
}

func nonNilRatings(v []Rating) []Rating {
	if v == nil {
		return []Rating{}
	}
	return v
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
