package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/judging-portal/internal/eventfile"
	"github.com/noah-isme/judging-portal/internal/models"
	"github.com/noah-isme/judging-portal/internal/orchestrator"
	"github.com/noah-isme/judging-portal/internal/realtime"
)

func newSyncCommand(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:     "sync",
		GroupID: "sync",
		Short:   "Pull the event from the store",
		Long: `Pull the event from the store into the local cache.

With --watch the event keeps syncing on the poll interval until interrupted.
Change notifications from the store trigger an early pull, and edits to the
event file are picked up without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withWorkspace(cmd, func(ctx context.Context, w *workspace) error {
				if !watch {
					if err := a.printStatus(w.orch.Status(), w); err != nil {
						return err
					}
					return w.pullErr
				}
				return a.watch(ctx, w)
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep syncing until interrupted")
	return cmd
}

func (a *app) watch(ctx context.Context, w *workspace) error {
	updates, unsubscribe := w.orch.Subscribe()
	defer unsubscribe()

	if err := w.orch.Start(ctx); err != nil {
		return err
	}

	listener, err := realtime.NewListener(a.cfg.StoreURL, w.orch.Key(), func(change realtime.Change) {
		w.logger.Debug().Str("key", change.Key).Str("version", change.Version).Msg("store changed")
		w.orch.RequestPull()
	}, a.logger)
	if err != nil {
		w.logger.Warn().Err(err).Msg("change notifications unavailable, polling only")
	} else {
		if a.cfg.StoreToken != "" {
			listener.WithHeader("Authorization", "Bearer "+a.cfg.StoreToken)
		}
		go func() { _ = listener.Run(ctx) }()
	}

	if a.cfg.EventFile != "" {
		watcher, err := eventfile.NewWatcher(a.cfg.EventFile, func(event models.CompetitionConfig) {
			w.applyEvent(ctx, event)
		}, validateEvent, a.logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer func() { _ = watcher.Stop() }()
	}

	last := w.orch.Status()
	if err := a.printStatus(last, w); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case status, ok := <-updates:
			if !ok {
				return nil
			}
			if status.Syncing || !changed(last, status) {
				continue
			}
			w.resolve(ctx)
			if err := a.printStatus(status, w); err != nil {
				return err
			}
			last = status
		}
	}
}

// changed reports whether a settled status differs in anything the user
// sees.
func changed(prev, next orchestrator.Status) bool {
	return prev.Offline != next.Offline ||
		prev.Degraded != next.Degraded ||
		prev.PayloadTooLarge != next.PayloadTooLarge ||
		prev.Version != next.Version ||
		prev.LastError != next.LastError ||
		!prev.LastSyncedAt.Equal(next.LastSyncedAt)
}

type statusView struct {
	orchestrator.Status
	Role    string `json:"role"`
	Entries int    `json:"entries"`
	Ratings int    `json:"ratings"`
	Judges  int    `json:"judges"`
}

func (a *app) printStatus(status orchestrator.Status, w *workspace) error {
	_, role := w.current()
	snapshot := w.orch.Snapshot()
	view := statusView{
		Status:  status,
		Role:    string(role.Role),
		Entries: len(snapshot.Entries),
		Ratings: len(snapshot.Ratings),
		Judges:  len(snapshot.Judges),
	}
	if a.asJSON {
		return a.printJSON(view)
	}

	state := "synced"
	switch {
	case status.Degraded:
		state = "denied"
	case status.PayloadTooLarge:
		state = "too large"
	case status.Offline:
		state = "offline"
	}

	stamp := "never"
	if !status.LastSyncedAt.IsZero() {
		stamp = status.LastSyncedAt.Local().Format(time.TimeOnly)
	}
	a.printf("%s  %-9s %s v%s  role=%s entries=%d ratings=%d judges=%d\n",
		stamp, state, status.Key, orDash(status.Version), view.Role, view.Entries, view.Ratings, view.Judges)
	if status.LastError != "" {
		a.printf("          last error: %s\n", status.LastError)
	}
	return nil
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
