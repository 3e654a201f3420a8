package orchestrator

import (
	"context"
	"errors"

	"github.com/noah-isme/judging-portal/internal/models"
	"github.com/noah-isme/judging-portal/internal/observability"
)

var errUnchanged = errors.New("unchanged")

// mutate applies fn optimistically and pushes. When the push fails local
// state returns to the pre-mutation snapshot, undo runs and the push error
// is returned wrapped in ErrRollback.
func (o *Orchestrator) mutate(ctx context.Context, name string, fn func(models.Snapshot) (models.Snapshot, error), undo func(context.Context)) error {
	if o.closed.Load() {
		return ErrClosed
	}
	key := o.Key()

	prev, next, err := o.state.Apply(fn)
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		if undo != nil {
			undo(ctx)
		}
		return err
	}
	o.persist(ctx, key, next)
	o.publishStatus()

	if err := o.push(ctx, name); err != nil {
		o.state.Store(prev)
		if undo != nil {
			undo(ctx)
		}
		o.persist(ctx, key, prev)
		observability.SyncRollbacks().WithLabelValues(name).Inc()
		o.publishStatus()
		o.logger.Warn().Err(err).Str("mutation", name).Msg("rolled back local change")
		return rollbackError(err)
	}
	return nil
}

// SubmitRating records the acting judge's rating of an entry.
func (o *Orchestrator) SubmitRating(ctx context.Context, rating models.Rating) error {
	_, params, config := o.session()
	if params.Role != models.RoleJudge || params.JudgeID == "" {
		return ErrNotPermitted
	}
	if rating.JudgeID == "" {
		rating.JudgeID = params.JudgeID
	}
	if rating.JudgeID != params.JudgeID {
		return ErrNotPermitted
	}

	rating.Feedback = o.validator.SanitizeFeedback(rating.Feedback)
	if err := o.validator.ValidateRating(config.Rubric, rating); err != nil {
		return err
	}

	return o.mutate(ctx, "rating", func(s models.Snapshot) (models.Snapshot, error) {
		if models.EntryIndex(s.Entries, rating.TeamID) < 0 {
			return s, ErrEntryNotFound
		}

		stamp := o.now().UnixMilli()
		for i, existing := range s.Ratings {
			if existing.Key() != rating.Key() {
				continue
			}
			if stamp <= existing.LastUpdated {
				stamp = existing.LastUpdated + 1
			}
			rating.LastUpdated = stamp
			s.Ratings[i] = rating.Clone()
			return withJudge(s, rating.JudgeID), nil
		}

		rating.LastUpdated = stamp
		s.Ratings = append(s.Ratings, rating.Clone())
		return withJudge(s, rating.JudgeID), nil
	}, nil)
}

// AddEntry adds an entry. Organizers may add any entry; anyone else may
// register their own entry while registration is open. The stored entry is
// returned.
func (o *Orchestrator) AddEntry(ctx context.Context, entry models.Entry) (models.Entry, error) {
	key, params, config := o.session()

	if params.Role != models.RoleOrganizer {
		if !config.RegistrationOpen() {
			return models.Entry{}, ErrRegistrationClosed
		}
		if params.UserID == "" {
			return models.Entry{}, ErrNotPermitted
		}
		entry.UserID = params.UserID
	}

	entry = o.validator.SanitizeEntry(entry)
	if entry.ID == "" {
		entry.ID = models.NewEntryID(config.Title)
	}
	if err := o.validator.ValidateEntry(entry); err != nil {
		return models.Entry{}, err
	}

	var undo func(context.Context)
	if params.Role == models.RoleOrganizer {
		if err := o.local.ForgetDeletion(ctx, key, models.TombstoneEntry, entry.ID); err != nil {
			o.logger.Warn().Err(err).Str("entry_id", entry.ID).Msg("failed to clear entry tombstone")
		}
	} else if params.Role != models.RoleContestant {
		// A registrant pushes with the contestant policy so the new entry
		// is overlaid on the remote roster.
		previous := o.actorSnapshot()
		o.setRole(models.RoleContestant)
		undo = func(context.Context) { o.SetActor(previous) }
	}

	err := o.mutate(ctx, "entry_add", func(s models.Snapshot) (models.Snapshot, error) {
		if models.EntryIndex(s.Entries, entry.ID) >= 0 {
			return s, ErrDuplicateEntry
		}
		s.Entries = append(s.Entries, entry)
		return s, nil
	}, undo)
	if err != nil {
		return models.Entry{}, err
	}
	return entry, nil
}

// UpdateEntry replaces an entry. Organizers may edit any entry, owners only
// their own.
func (o *Orchestrator) UpdateEntry(ctx context.Context, entry models.Entry) error {
	_, params, _ := o.session()
	if params.Role != models.RoleOrganizer && params.Role != models.RoleContestant {
		return ErrNotPermitted
	}

	entry = o.validator.SanitizeEntry(entry)
	if err := o.validator.ValidateEntry(entry); err != nil {
		return err
	}

	return o.mutate(ctx, "entry_update", func(s models.Snapshot) (models.Snapshot, error) {
		i := models.EntryIndex(s.Entries, entry.ID)
		if i < 0 {
			return s, ErrEntryNotFound
		}
		current := s.Entries[i]
		if params.Role != models.RoleOrganizer {
			if !current.OwnedBy(params.UserID) {
				return s, ErrNotPermitted
			}
			entry.UserID = current.UserID
		}
		if current == entry {
			return s, errUnchanged
		}
		s.Entries[i] = entry
		return s, nil
	}, nil)
}

// DeleteEntry removes an entry and every rating of it. The deletion is
// logged so stale remote copies cannot bring it back.
func (o *Orchestrator) DeleteEntry(ctx context.Context, id string) error {
	key, params, _ := o.session()
	if params.Role != models.RoleOrganizer {
		return ErrNotPermitted
	}

	if err := o.local.RecordDeletion(ctx, key, models.TombstoneEntry, id); err != nil {
		return err
	}
	undo := func(ctx context.Context) {
		if err := o.local.ForgetDeletion(ctx, key, models.TombstoneEntry, id); err != nil {
			o.logger.Warn().Err(err).Str("entry_id", id).Msg("failed to clear entry tombstone")
		}
	}

	return o.mutate(ctx, "entry_delete", func(s models.Snapshot) (models.Snapshot, error) {
		i := models.EntryIndex(s.Entries, id)
		if i < 0 {
			return s, ErrEntryNotFound
		}
		s.Entries = append(s.Entries[:i], s.Entries[i+1:]...)
		s.Ratings = dropRatings(s.Ratings, func(r models.Rating) bool { return r.TeamID == id })
		return s, nil
	}, undo)
}

// JoinJudge adds a judge to the roster. A judge joins as themselves; an
// organizer may add anyone, which also lifts an earlier removal.
func (o *Orchestrator) JoinJudge(ctx context.Context, judgeID string) error {
	key, params, _ := o.session()
	switch params.Role {
	case models.RoleOrganizer:
		if judgeID == "" {
			return ErrJudgeNotFound
		}
		if err := o.local.ForgetDeletion(ctx, key, models.TombstoneJudge, judgeID); err != nil {
			o.logger.Warn().Err(err).Str("judge_id", judgeID).Msg("failed to clear judge tombstone")
		}
	case models.RoleJudge:
		if judgeID == "" {
			judgeID = params.JudgeID
		}
		if judgeID == "" || judgeID != params.JudgeID {
			return ErrNotPermitted
		}
	default:
		return ErrNotPermitted
	}

	return o.mutate(ctx, "judge_join", func(s models.Snapshot) (models.Snapshot, error) {
		for _, existing := range s.Judges {
			if existing == judgeID {
				return s, errUnchanged
			}
		}
		return withJudge(s, judgeID), nil
	}, nil)
}

// RemoveJudge removes a judge and every rating they submitted.
func (o *Orchestrator) RemoveJudge(ctx context.Context, judgeID string) error {
	key, params, _ := o.session()
	if params.Role != models.RoleOrganizer {
		return ErrNotPermitted
	}

	if err := o.local.RecordDeletion(ctx, key, models.TombstoneJudge, judgeID); err != nil {
		return err
	}
	undo := func(ctx context.Context) {
		if err := o.local.ForgetDeletion(ctx, key, models.TombstoneJudge, judgeID); err != nil {
			o.logger.Warn().Err(err).Str("judge_id", judgeID).Msg("failed to clear judge tombstone")
		}
	}

	return o.mutate(ctx, "judge_remove", func(s models.Snapshot) (models.Snapshot, error) {
		found := false
		judges := s.Judges[:0]
		for _, id := range s.Judges {
			if id == judgeID {
				found = true
				continue
			}
			judges = append(judges, id)
		}
		before := len(s.Ratings)
		s.Ratings = dropRatings(s.Ratings, func(r models.Rating) bool { return r.JudgeID == judgeID })
		if !found && before == len(s.Ratings) {
			return s, ErrJudgeNotFound
		}
		s.Judges = judges
		return s, nil
	}, undo)
}

func (o *Orchestrator) actorSnapshot() Actor {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.actor
}

func (o *Orchestrator) setRole(role models.Role) {
	o.mu.Lock()
	o.actor.Role = role
	o.mu.Unlock()
}

func withJudge(s models.Snapshot, judgeID string) models.Snapshot {
	for _, id := range s.Judges {
		if id == judgeID {
			return s
		}
	}
	s.Judges = append(s.Judges, judgeID)
	return s
}

func dropRatings(ratings []models.Rating, drop func(models.Rating) bool) []models.Rating {
	out := ratings[:0]
	for _, r := range ratings {
		if !drop(r) {
			out = append(out, r)
		}
	}
	return out
}
