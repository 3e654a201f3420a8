// Package orchestrator keeps the local snapshot of an event in sync with
// the remote store: it polls, pushes after every mutation, tracks the
// offline and degraded states and rolls back optimistic changes that fail
// to persist.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/judging-portal/internal/merge"
	"github.com/noah-isme/judging-portal/internal/models"
	"github.com/noah-isme/judging-portal/internal/scoring"
	"github.com/noah-isme/judging-portal/internal/store"
)

// Defaults.
const (
	DefaultInterval           = 5 * time.Second
	DefaultMaxConflictRetries = 3
)

var (
	// ErrRollback wraps a push failure after an optimistic change was undone.
	ErrRollback = errors.New("change was not saved and has been rolled back")
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("orchestrator closed")
	// ErrDegraded is returned while the store denies access to this session.
	ErrDegraded = errors.New("store access denied for this session")
	// ErrNoEvent indicates an access phrase that derives no storage key.
	ErrNoEvent = errors.New("access phrase does not name an event")
	// ErrNotPermitted indicates the acting role may not perform the change.
	ErrNotPermitted = errors.New("not permitted for the current role")
	// ErrEntryNotFound indicates an unknown entry id.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrDuplicateEntry indicates an entry id already in use.
	ErrDuplicateEntry = errors.New("entry already exists")
	// ErrJudgeNotFound indicates an unknown judge id.
	ErrJudgeNotFound = errors.New("judge not found")
	// ErrRegistrationClosed indicates self-registration is not open.
	ErrRegistrationClosed = errors.New("registration is closed")
)

// Remote is the store the orchestrator synchronises with.
type Remote interface {
	Fetch(ctx context.Context, key string) (store.FetchResult, error)
	Push(ctx context.Context, key string, doc models.Document, ifMatch string) (store.PushResult, error)
}

// LocalStore is the durable local copy of the snapshot and deletion log.
type LocalStore interface {
	LoadSnapshot(ctx context.Context, scope string) models.Snapshot
	SaveSnapshot(ctx context.Context, scope string, snapshot models.Snapshot) error
	RecordDeletion(ctx context.Context, scope, kind, ref string) error
	ForgetDeletion(ctx context.Context, scope, kind, ref string) error
	Tombstones(ctx context.Context, scope string) (models.Tombstones, error)
}

// Actor identifies who is acting in this session.
type Actor struct {
	Role    models.Role
	JudgeID string
	UserID  string
}

// Options configures an orchestrator.
type Options struct {
	Phrase             string
	Actor              Actor
	Config             models.CompetitionConfig
	Interval           time.Duration
	MaxConflictRetries int
}

// Status is the observable sync state.
type Status struct {
	Key             string    `json:"key"`
	Syncing         bool      `json:"syncing"`
	Offline         bool      `json:"offline"`
	Degraded        bool      `json:"degraded"`
	PayloadTooLarge bool      `json:"payloadTooLarge"`
	Version         string    `json:"version,omitempty"`
	LastError       string    `json:"lastError,omitempty"`
	LastSyncedAt    time.Time `json:"lastSyncedAt"`
}

// Orchestrator drives synchronisation for one event at a time.
type Orchestrator struct {
	remote    Remote
	local     LocalStore
	validator *scoring.Validator
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	interval   time.Duration
	maxRetries int

	mu       sync.Mutex
	key      string
	actor    Actor
	config   models.CompetitionConfig
	status   Status
	inFlight int
	degraded bool

	pushMu  sync.Mutex
	pulling atomic.Bool
	closed  atomic.Bool

	state  *stateHolder
	broker *statusBroker

	scheduler gocron.Scheduler
	job       gocron.Job
	cancel    context.CancelFunc
}

// New builds an orchestrator and loads the cached snapshot of the event.
func New(ctx context.Context, remote Remote, local LocalStore, opts Options, logger zerolog.Logger) (*Orchestrator, error) {
	key := store.DeriveKey(opts.Phrase)
	if key == "" {
		return nil, ErrNoEvent
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxConflictRetries <= 0 {
		opts.MaxConflictRetries = DefaultMaxConflictRetries
	}
	if opts.Actor.Role == "" {
		opts.Actor.Role = models.RoleViewer
	}

	o := &Orchestrator{
		remote:     remote,
		local:      local,
		validator:  scoring.NewValidator(nil),
		logger:     logger.With().Str("component", "sync_orchestrator").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/judging-portal/internal/orchestrator"),
		now:        time.Now,
		interval:   opts.Interval,
		maxRetries: opts.MaxConflictRetries,
		key:        key,
		actor:      opts.Actor,
		config:     opts.Config,
		status:     Status{Key: key},
		state:      newStateHolder(local.LoadSnapshot(ctx, key)),
		broker:     newStatusBroker(),
	}
	return o, nil
}

// Start schedules polling: immediately, then every interval after the
// previous pull settles.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.closed.Load() {
		return ErrClosed
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	job, err := scheduler.NewJob(
		gocron.DurationJob(o.interval),
		gocron.NewTask(func() {
			if err := o.Pull(runCtx); err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, ErrDegraded) {
				o.logger.Debug().Err(err).Msg("scheduled pull failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithName("pull"),
	)
	if err != nil {
		cancel()
		return fmt.Errorf("schedule pull: %w", err)
	}

	o.mu.Lock()
	o.scheduler = scheduler
	o.job = job
	o.cancel = cancel
	o.mu.Unlock()

	scheduler.Start()
	o.logger.Info().Str("key", o.Key()).Dur("interval", o.interval).Msg("sync started")
	return nil
}

// Close stops polling. Results of rounds still in flight are discarded.
func (o *Orchestrator) Close() error {
	if o.closed.Swap(true) {
		return nil
	}

	o.mu.Lock()
	scheduler, cancel := o.scheduler, o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if scheduler != nil {
		err = scheduler.Shutdown()
	}
	o.broker.closeAll()
	return err
}

// RequestPull asks for an early pull outside the polling cadence.
func (o *Orchestrator) RequestPull() {
	if o.closed.Load() {
		return
	}
	o.mu.Lock()
	job := o.job
	o.mu.Unlock()

	if job != nil {
		if err := job.RunNow(); err == nil {
			return
		}
	}
	go func() { _ = o.Pull(context.Background()) }()
}

// Reconfigure switches to another access phrase. It clears the degraded
// state and loads the cached snapshot of the new event.
func (o *Orchestrator) Reconfigure(ctx context.Context, phrase string) error {
	key := store.DeriveKey(phrase)
	if key == "" {
		return ErrNoEvent
	}

	o.pushMu.Lock()
	o.mu.Lock()
	o.key = key
	o.degraded = false
	o.status = Status{Key: key}
	o.mu.Unlock()
	o.state.Store(o.local.LoadSnapshot(ctx, key))
	o.pushMu.Unlock()

	o.publishStatus()
	o.logger.Info().Str("key", key).Msg("sync reconfigured")
	o.RequestPull()
	return nil
}

// SetActor changes who is acting, for example after a role switch.
func (o *Orchestrator) SetActor(actor Actor) {
	o.mu.Lock()
	o.actor = actor
	o.mu.Unlock()
}

// SetConfig replaces the competition config used for permission checks
// and validation.
func (o *Orchestrator) SetConfig(config models.CompetitionConfig) {
	o.mu.Lock()
	o.config = config
	o.mu.Unlock()
}

// Key returns the storage key of the current event.
func (o *Orchestrator) Key() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.key
}

// Snapshot returns a copy of the current local state.
func (o *Orchestrator) Snapshot() models.Snapshot {
	snapshot, _ := o.state.Load()
	return snapshot
}

// Status returns the current sync status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// IsSyncing reports whether a pull or push is in flight.
func (o *Orchestrator) IsSyncing() bool { return o.Status().Syncing }

// IsOffline reports whether the last round failed.
func (o *Orchestrator) IsOffline() bool { return o.Status().Offline }

// Subscribe streams status changes until the returned cancel is called.
func (o *Orchestrator) Subscribe() (<-chan Status, func()) {
	ch := o.broker.subscribe()
	return ch, func() { o.broker.unsubscribe(ch) }
}

func (o *Orchestrator) session() (string, merge.Params, models.CompetitionConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.key, merge.Params{Role: o.actor.Role, JudgeID: o.actor.JudgeID, UserID: o.actor.UserID}, o.config
}

func (o *Orchestrator) beginRound() {
	o.mu.Lock()
	o.inFlight++
	o.status.Syncing = true
	o.mu.Unlock()
	o.publishStatus()
}

func (o *Orchestrator) endRound() {
	o.mu.Lock()
	o.inFlight--
	o.status.Syncing = o.inFlight > 0
	o.mu.Unlock()
	o.publishStatus()
}

func (o *Orchestrator) markOnline(version string) {
	o.mu.Lock()
	o.status.Offline = false
	o.status.PayloadTooLarge = false
	o.status.LastError = ""
	o.status.LastSyncedAt = o.now()
	if version != "" {
		o.status.Version = version
	}
	o.mu.Unlock()
}

// markFailure records a failed round. Every store failure flips Offline;
// a cancelled context does not. Conflicts that were retried successfully
// never get here.
func (o *Orchestrator) markFailure(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if errors.Is(err, context.Canceled) {
		return
	}
	o.status.LastError = err.Error()
	o.status.Offline = true
	switch {
	case errors.Is(err, store.ErrPermissionDenied):
		o.degraded = true
		o.status.Degraded = true
	case errors.Is(err, store.ErrPayloadTooLarge):
		o.status.PayloadTooLarge = true
	}
}

func (o *Orchestrator) isDegraded() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.degraded
}

func (o *Orchestrator) publishStatus() {
	o.broker.broadcast(o.Status())
}

func (o *Orchestrator) persist(ctx context.Context, key string, snapshot models.Snapshot) {
	if err := o.local.SaveSnapshot(ctx, key, snapshot); err != nil {
		o.logger.Warn().Err(err).Str("key", key).Msg("failed to persist snapshot")
	}
}

func (o *Orchestrator) tombstones(ctx context.Context, key string) models.Tombstones {
	bans, err := o.local.Tombstones(ctx, key)
	if err != nil {
		o.logger.Warn().Err(err).Str("key", key).Msg("failed to load tombstones")
		return models.NewTombstones(nil, nil)
	}
	return bans
}
