package merge

import (
	"github.com/noah-isme/judging-portal/internal/models"
)

// PullResult is the outcome of reconciling a polled remote document.
type PullResult struct {
	Snapshot models.Snapshot
	// NeedsBootstrap is set when the remote has no document and the
	// organizer holds local data that should seed it.
	NeedsBootstrap bool
}

// OnPull reconciles an inbound remote document with current local state.
// remote is nil when the store reported no document for the key.
func OnPull(local models.Snapshot, remote *Remote, p Params) PullResult {
	if remote == nil {
		return PullResult{
			Snapshot:       local,
			NeedsBootstrap: p.Role == models.RoleOrganizer && !local.Empty(),
		}
	}

	var remoteJudges []string
	if remote.HasJudges {
		remoteJudges = remote.Judges
	}

	merged := models.Snapshot{
		Entries: pullEntries(local.Entries, remote, p),
		Ratings: pullRatings(local.Ratings, remote, p),
		Judges:  appendMissingJudges(local.Judges, remoteJudges, p.Bans),
	}

	return PullResult{Snapshot: merged}
}

func pullEntries(local []models.Entry, remote *Remote, p Params) []models.Entry {
	if !remote.HasEntries {
		return filterEntries(local, p.Bans)
	}
	if p.Role == models.RoleOrganizer {
		if len(local) == 0 {
			return filterEntries(remote.Entries, p.Bans)
		}
		return filterEntries(local, p.Bans)
	}
	if len(remote.Entries) > 0 {
		return filterEntries(remote.Entries, p.Bans)
	}
	return filterEntries(local, p.Bans)
}

// pullRatings merges the actor's own ratings individually so an in-flight
// edit is not clobbered by a stale poll, and takes everybody else's ratings
// from the remote as is. Remote order is preserved; own ratings the remote
// has not seen yet are appended.
func pullRatings(local []models.Rating, remote *Remote, p Params) []models.Rating {
	if !remote.HasRatings {
		return filterRatings(local, p.Bans)
	}

	own := func(r models.Rating) bool {
		return p.JudgeID != "" && r.JudgeID == p.JudgeID
	}

	ownLocal := make(map[models.RatingKey]models.Rating)
	for _, r := range local {
		if own(r) {
			ownLocal[r.Key()] = r
		}
	}

	out := make([]models.Rating, 0, len(remote.Ratings)+len(ownLocal))
	index := make(map[models.RatingKey]int, len(remote.Ratings))
	for _, r := range remote.Ratings {
		if p.Bans.RatingBanned(r) {
			continue
		}
		key := r.Key()
		if own(r) {
			if mine, ok := ownLocal[key]; ok && mine.NewerThan(r) {
				r = mine
			}
		}
		if i, ok := index[key]; ok {
			if r.NewerThan(out[i]) {
				out[i] = r.Clone()
			}
			continue
		}
		index[key] = len(out)
		out = append(out, r.Clone())
	}

	for _, r := range local {
		if !own(r) || p.Bans.RatingBanned(r) {
			continue
		}
		if _, ok := index[r.Key()]; ok {
			continue
		}
		index[r.Key()] = len(out)
		out = append(out, r.Clone())
	}
	return out
}
