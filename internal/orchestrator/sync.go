package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/judging-portal/internal/merge"
	"github.com/noah-isme/judging-portal/internal/models"
	"github.com/noah-isme/judging-portal/internal/observability"
	"github.com/noah-isme/judging-portal/internal/store"
)

// Pull fetches the remote document and reconciles it into local state
// without pushing. When the store has no document and the organizer holds
// data, it bootstraps the store with a push instead. Overlapping pulls are
// skipped.
func (o *Orchestrator) Pull(ctx context.Context) error {
	if o.closed.Load() {
		return ErrClosed
	}
	if o.isDegraded() {
		return ErrDegraded
	}
	if !o.pulling.CompareAndSwap(false, true) {
		return nil
	}
	defer o.pulling.Store(false)

	key, params, _ := o.session()
	ctx, span := o.tracer.Start(ctx, "sync.pull")
	span.SetAttributes(attribute.String("sync.key", key), attribute.String("sync.role", string(params.Role)))
	defer span.End()

	start := time.Now()
	o.beginRound()
	defer o.endRound()
	defer func() { observability.SyncLatency().WithLabelValues("pull").Observe(time.Since(start).Seconds()) }()

	fetched, err := o.remote.Fetch(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch_failed")
		o.markFailure(err)
		observability.SyncRounds().WithLabelValues("pull", outcome(err)).Inc()
		o.logger.Warn().Err(err).Str("key", key).Msg("pull failed")
		return err
	}
	if o.closed.Load() {
		return ErrClosed
	}

	var remote *merge.Remote
	if fetched.Found {
		remote = merge.Decode(fetched.Body)
	}

	params.Bans = o.tombstones(ctx, key)
	local, rev := o.state.Load()
	result := merge.OnPull(local, remote, params)

	if result.NeedsBootstrap {
		span.SetAttributes(attribute.Bool("sync.bootstrap", true))
		o.logger.Info().Str("key", key).Int("entries", len(local.Entries)).Msg("remote empty, bootstrapping from local state")
		observability.SyncRounds().WithLabelValues("pull", "bootstrap").Inc()
		return o.push(ctx, "bootstrap")
	}

	if key != o.Key() {
		return nil
	}
	if !o.state.CompareAndSwap(rev, result.Snapshot) {
		// A local change landed while fetching; its own push reconciles.
		observability.SyncRounds().WithLabelValues("pull", "stale").Inc()
		o.markOnline(fetched.Version)
		return nil
	}

	o.persist(ctx, key, result.Snapshot)
	o.markOnline(fetched.Version)
	observability.SyncRounds().WithLabelValues("pull", "ok").Inc()
	return nil
}

// push re-fetches the remote document, merges local state into it and
// writes the result. A version conflict restarts the cycle up to the retry
// limit. Pushes never overlap.
func (o *Orchestrator) push(ctx context.Context, reason string) error {
	o.pushMu.Lock()
	defer o.pushMu.Unlock()

	if o.closed.Load() {
		return ErrClosed
	}
	if o.isDegraded() {
		return ErrDegraded
	}

	key, params, _ := o.session()
	ctx, span := o.tracer.Start(ctx, "sync.push")
	span.SetAttributes(attribute.String("sync.key", key), attribute.String("sync.reason", reason))
	defer span.End()

	start := time.Now()
	o.beginRound()
	defer o.endRound()
	defer func() { observability.SyncLatency().WithLabelValues("push").Observe(time.Since(start).Seconds()) }()

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		err := o.pushOnce(ctx, key, params)
		if err == nil {
			span.SetAttributes(attribute.Int("sync.attempts", attempt+1))
			observability.SyncRounds().WithLabelValues("push", "ok").Inc()
			return nil
		}
		lastErr = err
		if !errors.Is(err, store.ErrVersionConflict) {
			break
		}
		observability.SyncRounds().WithLabelValues("push", "conflict").Inc()
		o.logger.Debug().Str("key", key).Int("attempt", attempt+1).Msg("push conflicted, re-merging")
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "push_failed")
	o.markFailure(lastErr)
	observability.SyncRounds().WithLabelValues("push", outcome(lastErr)).Inc()
	o.logger.Warn().Err(lastErr).Str("key", key).Str("reason", reason).Msg("push failed")
	return lastErr
}

func (o *Orchestrator) pushOnce(ctx context.Context, key string, params merge.Params) error {
	fetched, err := o.remote.Fetch(ctx, key)
	if err != nil {
		return err
	}

	var remote *merge.Remote
	if fetched.Found {
		remote = merge.Decode(fetched.Body)
	}

	params.Bans = o.tombstones(ctx, key)
	local, rev := o.state.Load()
	doc := merge.ForPush(local, remote, params, o.now())

	// A store that sends no ETag leaves fetched.Version empty and the write
	// unconditional; overlapping pushes then keep whichever lands last.
	written, err := o.remote.Push(ctx, key, doc, fetched.Version)
	if err != nil {
		return err
	}
	if o.closed.Load() || key != o.Key() {
		return nil
	}

	merged := doc.Snapshot()
	if !o.state.CompareAndSwap(rev, merged) {
		// Fold what was written into changes made during the push.
		_, merged, _ = o.state.Apply(func(current models.Snapshot) (models.Snapshot, error) {
			return merge.ForPush(current, merge.FromSnapshot(merged), params, o.now()).Snapshot(), nil
		})
	}

	o.persist(ctx, key, merged)
	o.markOnline(written.Version)
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrPermissionDenied):
		return "degraded"
	case errors.Is(err, store.ErrPayloadTooLarge):
		return "too_large"
	case errors.Is(err, store.ErrVersionConflict):
		return "conflict"
	default:
		return "offline"
	}
}

// rollbackError wraps a push failure for callers of mutations.
func rollbackError(err error) error {
	return fmt.Errorf("%w: %w", ErrRollback, err)
}
