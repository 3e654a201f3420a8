package models

// Tombstone kinds recorded in the deleted-ids log.
const (
	TombstoneJudge = "judge"
	TombstoneEntry = "entry"
)

// Tombstones are the ids that must never be resurrected by a stale payload.
type Tombstones struct {
	Judges  map[string]struct{}
	Entries map[string]struct{}
}

// NewTombstones builds tombstone sets from id lists.
func NewTombstones(judges, entries []string) Tombstones {
	t := Tombstones{
		Judges:  make(map[string]struct{}, len(judges)),
		Entries: make(map[string]struct{}, len(entries)),
	}
	for _, id := range judges {
		t.Judges[id] = struct{}{}
	}
	for _, id := range entries {
		t.Entries[id] = struct{}{}
	}
	return t
}

// JudgeBanned reports whether the judge id has been removed.
func (t Tombstones) JudgeBanned(id string) bool {
	_, ok := t.Judges[id]
	return ok
}

// EntryBanned reports whether the entry id has been removed.
func (t Tombstones) EntryBanned(id string) bool {
	_, ok := t.Entries[id]
	return ok
}

// RatingBanned reports whether the rating references a removed judge or entry.
func (t Tombstones) RatingBanned(r Rating) bool {
	return t.JudgeBanned(r.JudgeID) || t.EntryBanned(r.TeamID)
}
