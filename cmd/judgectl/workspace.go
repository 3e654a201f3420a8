package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/judging-portal/internal/cache"
	"github.com/noah-isme/judging-portal/internal/config"
	"github.com/noah-isme/judging-portal/internal/database"
	"github.com/noah-isme/judging-portal/internal/eventfile"
	"github.com/noah-isme/judging-portal/internal/models"
	"github.com/noah-isme/judging-portal/internal/orchestrator"
	"github.com/noah-isme/judging-portal/internal/scoring"
	"github.com/noah-isme/judging-portal/internal/session"
	"github.com/noah-isme/judging-portal/internal/store"
)

var (
	errNoPhrase   = errors.New("no event selected: pass --phrase or set JUDGE_PHRASE")
	errViewDenied = errors.New("this event is private: pass --view-password")
)

// workspace is one opened event: the local cache, the store client and
// the orchestrator acting with the derived session role.
type workspace struct {
	cfg      config.Client
	logger   zerolog.Logger
	local    *cache.Cache
	remote   *store.Client
	orch     *orchestrator.Orchestrator
	sessions *session.Manager

	phrase    string
	judgeName string
	identity  models.Identity
	pullErr   error

	mu    sync.Mutex
	event models.CompetitionConfig
	gate  *session.PasswordGate
	role  session.Result
}

// openWorkspace opens the cache, loads the event config, pulls once and
// derives the session role. A failed pull leaves the cached state in place
// and is kept in pullErr.
func (a *app) openWorkspace(ctx context.Context) (*workspace, error) {
	event, err := loadEvent(a.cfg.EventFile)
	if err != nil {
		return nil, err
	}

	db, err := database.ConnectSQLite(a.cfg.CachePath)
	if err != nil {
		return nil, err
	}
	local, err := cache.New(db, a.cfg.TombstoneRetention, a.logger)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if pruned, err := local.Prune(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("failed to prune tombstones")
	} else if pruned > 0 {
		a.logger.Debug().Int64("pruned", pruned).Msg("expired tombstones removed")
	}

	w := &workspace{
		cfg:      a.cfg,
		logger:   a.logger.With().Str("component", "workspace").Logger(),
		local:    local,
		remote:   store.NewClient(a.cfg.StoreURL, a.cfg.RequestTimeout, a.logger).WithToken(a.cfg.StoreToken),
		sessions: session.NewManager(local, a.logger),
		event:    event,
		gate:     session.NewPasswordGate(event),
	}

	w.phrase = remembered(ctx, a.cfg.Phrase, local.AccessPhrase, local.SetAccessPhrase, w.logger)
	if w.phrase == "" {
		_ = local.Close()
		return nil, errNoPhrase
	}
	if w.event.Title == "" {
		w.event.Title = w.phrase
	}

	w.judgeName = remembered(ctx, a.cfg.JudgeName, local.JudgeName, local.SetJudgeName, w.logger)
	if w.judgeName == "" {
		w.judgeName = a.cfg.UserID
	}
	w.identity = models.Identity{
		UserID:      a.cfg.UserID,
		Email:       a.cfg.Email,
		DisplayName: a.cfg.DisplayName,
	}
	if w.identity.UserID == "" {
		w.identity.UserID = w.judgeName
	}

	w.orch, err = orchestrator.New(ctx, w.remote, local, orchestrator.Options{
		Phrase:   w.phrase,
		Config:   w.event,
		Interval: a.cfg.PollInterval,
	}, a.logger)
	if err != nil {
		_ = local.Close()
		return nil, err
	}

	w.resolve(ctx)
	if err := w.orch.Pull(ctx); err != nil {
		w.pullErr = err
		w.logger.Warn().Err(err).Str("key", w.orch.Key()).Msg("pull failed, using cached state")
	}
	w.resolve(ctx)
	return w, nil
}

func (w *workspace) close() {
	if err := w.orch.Close(); err != nil {
		w.logger.Debug().Err(err).Msg("orchestrator close")
	}
	if err := w.local.Close(); err != nil {
		w.logger.Debug().Err(err).Msg("cache close")
	}
}

// resolve derives the session role from the current snapshot and hands
// the resulting actor to the orchestrator.
func (w *workspace) resolve(ctx context.Context) session.Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	snapshot := w.orch.Snapshot()
	judges := models.JudgesFromRoster(snapshot.Judges)
	if w.judgeName != "" && w.gate.VerifyJudge(w.cfg.JudgePassword) {
		judges = append(judges, models.Judge{ID: w.judgeName, Name: w.judgeName, UserID: w.identity.UserID})
	}

	w.role = w.sessions.Resolve(ctx, session.Input{
		Identity:               w.identity,
		Config:                 w.event,
		Judges:                 judges,
		Entries:                snapshot.Entries,
		PreferredRole:          models.ParseRole(w.cfg.PreferredRole),
		GuestOrganizerVerified: w.gate.VerifyOrganizer(w.cfg.OrganizerPassword),
	})
	w.orch.SetActor(orchestrator.Actor{
		Role:    w.role.Role,
		JudgeID: w.judgeName,
		UserID:  w.identity.UserID,
	})
	return w.role
}

// applyEvent swaps in a reloaded competition config.
func (w *workspace) applyEvent(ctx context.Context, event models.CompetitionConfig) {
	if event.Title == "" {
		event.Title = w.phrase
	}
	w.mu.Lock()
	w.event = event
	w.gate = session.NewPasswordGate(event)
	w.mu.Unlock()

	w.orch.SetConfig(event)
	role := w.resolve(ctx)
	w.logger.Info().Str("title", event.Title).Str("role", string(role.Role)).Msg("event config reloaded")
}

func (w *workspace) current() (models.CompetitionConfig, session.Result) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.event, w.role
}

// requireView rejects reads of a private event the session may not see.
func (w *workspace) requireView() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !session.CanView(w.event, w.role.Capabilities, w.gate, w.cfg.ViewPassword) {
		return errViewDenied
	}
	return nil
}

// withWorkspace opens the event for the duration of fn.
func (a *app) withWorkspace(cmd *cobra.Command, fn func(ctx context.Context, w *workspace) error) error {
	ctx := cmd.Context()
	w, err := a.openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer w.close()
	return explain(fn(ctx, w))
}

// loadEvent reads the event file. Without one the event has no rubric and
// only roster and entry operations are meaningful.
func loadEvent(path string) (models.CompetitionConfig, error) {
	if path == "" {
		return models.CompetitionConfig{}, nil
	}
	event, err := eventfile.Load(path)
	if err != nil {
		return models.CompetitionConfig{}, err
	}
	if err := validateEvent(event); err != nil {
		return models.CompetitionConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return event, nil
}

func validateEvent(event models.CompetitionConfig) error {
	return scoring.NewValidator(nil).ValidateConfig(event, scoring.LenientTolerance)
}

// remembered returns value and stores it, or falls back to the stored one.
func remembered(ctx context.Context, value string, load func(context.Context) string, save func(context.Context, string) error, logger zerolog.Logger) string {
	if value == "" {
		return load(ctx)
	}
	if err := save(ctx, value); err != nil {
		logger.Warn().Err(err).Msg("failed to remember session setting")
	}
	return value
}

// explain adds a hint to errors the user can act on.
func explain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrPayloadTooLarge):
		return fmt.Errorf("%w: run 'judgectl inspect' to find inline images", err)
	case errors.Is(err, store.ErrPermissionDenied), errors.Is(err, orchestrator.ErrDegraded):
		return fmt.Errorf("%w: check --store-token for this event", err)
	case errors.Is(err, orchestrator.ErrNotPermitted):
		return fmt.Errorf("%w: see 'judgectl role'", err)
	default:
		return err
	}
}
