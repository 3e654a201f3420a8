package merge

import (
	"time"

	"github.com/noah-isme/judging-portal/internal/models"
)

// Params describes who is merging.
type Params struct {
	Role models.Role
	// JudgeID identifies ratings authored by the acting judge.
	JudgeID string
	// UserID identifies entries owned by the acting contestant.
	UserID string
	Bans   models.Tombstones
}

// ForPush merges local state with a freshly fetched remote document ahead of
// a push. remote is nil when the store has no document yet.
func ForPush(local models.Snapshot, remote *Remote, p Params, now time.Time) models.Document {
	if remote == nil {
		remote = &Remote{}
	}

	merged := models.Snapshot{
		Ratings: mergeRatings(local.Ratings, remote.Ratings, p.Bans),
	}

	switch p.Role {
	case models.RoleOrganizer:
		merged.Judges = appendMissingJudges(local.Judges, remote.Judges, p.Bans)
		merged.Entries = appendMissingEntries(local.Entries, remote.Entries, p.Bans)
	case models.RoleContestant:
		merged.Judges = appendMissingJudges(local.Judges, remote.Judges, p.Bans)
		merged.Entries = overlayOwnedEntries(remote.Entries, local.Entries, p.UserID, p.Bans)
	default:
		merged.Judges = appendMissingJudges(local.Judges, remote.Judges, p.Bans)
		if len(remote.Entries) > 0 {
			merged.Entries = filterEntries(remote.Entries, p.Bans)
		} else {
			merged.Entries = filterEntries(local.Entries, p.Bans)
		}
	}

	return merged.Document(now.UnixMilli())
}

// mergeRatings unions both sides by composite key. When both sides hold a
// key the strictly newer rating wins and ties keep the local copy.
func mergeRatings(local, remote []models.Rating, bans models.Tombstones) []models.Rating {
	out := make([]models.Rating, 0, len(local)+len(remote))
	index := make(map[models.RatingKey]int, len(local)+len(remote))

	put := func(r models.Rating) {
		if bans.RatingBanned(r) {
			return
		}
		key := r.Key()
		if i, ok := index[key]; ok {
			if r.NewerThan(out[i]) {
				out[i] = r.Clone()
			}
			return
		}
		index[key] = len(out)
		out = append(out, r.Clone())
	}

	for _, r := range local {
		put(r)
	}
	for _, r := range remote {
		put(r)
	}
	return out
}

// appendMissingJudges keeps base as is and appends ids only present in extra.
func appendMissingJudges(base, extra []string, bans models.Tombstones) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, id := range list {
			if id == "" || bans.JudgeBanned(id) {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// appendMissingEntries keeps base entries untouched and appends entries whose
// id base does not know yet.
func appendMissingEntries(base, extra []models.Entry, bans models.Tombstones) []models.Entry {
	out := make([]models.Entry, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]models.Entry{base, extra} {
		for _, entry := range list {
			if bans.EntryBanned(entry.ID) {
				continue
			}
			if _, ok := seen[entry.ID]; ok {
				continue
			}
			seen[entry.ID] = struct{}{}
			out = append(out, entry)
		}
	}
	return out
}

// overlayOwnedEntries takes the remote roster and lets the contestant's own
// entries override or extend it.
func overlayOwnedEntries(remote, local []models.Entry, userID string, bans models.Tombstones) []models.Entry {
	base := remote
	if len(base) == 0 {
		return filterEntries(local, bans)
	}

	owned := make(map[string]models.Entry)
	for _, entry := range local {
		if entry.OwnedBy(userID) {
			owned[entry.ID] = entry
		}
	}

	out := make([]models.Entry, 0, len(base)+len(owned))
	for _, entry := range base {
		if bans.EntryBanned(entry.ID) {
			continue
		}
		if mine, ok := owned[entry.ID]; ok {
			out = append(out, mine)
			delete(owned, entry.ID)
			continue
		}
		out = append(out, entry)
	}
	for _, entry := range local {
		if _, ok := owned[entry.ID]; ok && !bans.EntryBanned(entry.ID) {
			out = append(out, entry)
		}
	}
	return out
}

func filterEntries(entries []models.Entry, bans models.Tombstones) []models.Entry {
	out := make([]models.Entry, 0, len(entries))
	for _, entry := range entries {
		if bans.EntryBanned(entry.ID) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func filterRatings(ratings []models.Rating, bans models.Tombstones) []models.Rating {
	out := make([]models.Rating, 0, len(ratings))
	for _, r := range ratings {
		if bans.RatingBanned(r) {
			continue
		}
		out = append(out, r.Clone())
	}
	return out
}
