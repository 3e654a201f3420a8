package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/judging-portal/internal/cache"
	"github.com/noah-isme/judging-portal/internal/models"
	"github.com/noah-isme/judging-portal/internal/store"
)

const testPhrase = "Spring Hackathon"

var testKey = store.DeriveKey(testPhrase)

type fakeRemote struct {
	mu        sync.Mutex
	docs      map[string][]byte
	versions  map[string]int
	fetchErr  error
	pushErr   error
	conflicts int
	fetches   int
	pushes    []models.Document
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{docs: map[string][]byte{}, versions: map[string]int{}}
}

func (f *fakeRemote) seed(t *testing.T, key string, doc models.Document) {
	t.Helper()
	body, err := json.Marshal(doc)
	require.NoError(t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[key] = body
	f.versions[key]++
}

func (f *fakeRemote) document(t *testing.T, key string) models.Document {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var doc models.Document
	require.NoError(t, json.Unmarshal(f.docs[key], &doc))
	return doc
}

func (f *fakeRemote) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches, len(f.pushes)
}

func (f *fakeRemote) Fetch(_ context.Context, key string) (store.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return store.FetchResult{}, f.fetchErr
	}
	body, ok := f.docs[key]
	if !ok {
		return store.FetchResult{Found: false, Version: store.MissingVersion}, nil
	}
	return store.FetchResult{Found: true, Body: body, Version: strconv.Itoa(f.versions[key])}, nil
}

func (f *fakeRemote) Push(_ context.Context, key string, doc models.Document, ifMatch string) (store.PushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return store.PushResult{}, f.pushErr
	}
	if f.conflicts > 0 {
		f.conflicts--
		return store.PushResult{}, store.ErrVersionConflict
	}
	if ifMatch != "" && ifMatch != strconv.Itoa(f.versions[key]) {
		return store.PushResult{}, store.ErrVersionConflict
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return store.PushResult{}, err
	}
	f.docs[key] = body
	f.versions[key]++
	f.pushes = append(f.pushes, doc)
	return store.PushResult{Version: strconv.Itoa(f.versions[key]), UpdatedAt: doc.UpdatedAt}, nil
}

func setupLocal(t *testing.T) *cache.Cache {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	local, err := cache.New(db, time.Hour, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })
	return local
}

func testConfig() models.CompetitionConfig {
	bands := []models.GuidelineBand{{Min: 1, Max: 5, Label: "low"}, {Min: 6, Max: 10, Label: "high"}}
	return models.CompetitionConfig{
		Title:        "Spring Hackathon",
		Registration: models.RegistrationOpen,
		Rubric: []models.Criterion{
			{ID: "impact", Name: "Impact", Weight: 0.6, Guidelines: bands},
			{ID: "design", Name: "Design", Weight: 0.4, Guidelines: bands},
		},
	}
}

func newTestOrchestrator(t *testing.T, remote Remote, local *cache.Cache, actor Actor) *Orchestrator {
	t.Helper()
	o, err := New(context.Background(), remote, local, Options{
		Phrase:   testPhrase,
		Actor:    actor,
		Config:   testConfig(),
		Interval: time.Hour,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

var (
	organizer = Actor{Role: models.RoleOrganizer, UserID: "u-org"}
	judgeA    = Actor{Role: models.RoleJudge, JudgeID: "A", UserID: "u-a"}
)

func TestNewRejectsPhraseWithoutKey(t *testing.T) {
	_, err := New(context.Background(), newFakeRemote(), setupLocal(t), Options{Phrase: "!!!"}, zerolog.Nop())
	require.ErrorIs(t, err, ErrNoEvent)
}

func TestPullBootstrapsEmptyRemoteFromOrganizerState(t *testing.T) {
	remote := newFakeRemote()
	local := setupLocal(t)
	entries := []models.Entry{{ID: "T1", Name: "One"}, {ID: "T2", Name: "Two"}, {ID: "T3", Name: "Three"}}
	require.NoError(t, local.SaveSnapshot(context.Background(), testKey, models.Snapshot{Entries: entries}))

	o := newTestOrchestrator(t, remote, local, organizer)
	require.NoError(t, o.Pull(context.Background()))

	_, pushes := remote.counts()
	require.Equal(t, 1, pushes)
	require.Equal(t, entries, remote.document(t, testKey).Teams)
	require.False(t, o.IsOffline())
	require.False(t, o.IsSyncing())
	require.Equal(t, "1", o.Status().Version)
}

func TestPullWithoutRemoteDocumentDoesNotPushForJudges(t *testing.T) {
	remote := newFakeRemote()
	local := setupLocal(t)
	require.NoError(t, local.SaveSnapshot(context.Background(), testKey, models.Snapshot{Entries: []models.Entry{{ID: "T1", Name: "One"}}}))

	o := newTestOrchestrator(t, remote, local, judgeA)
	require.NoError(t, o.Pull(context.Background()))

	_, pushes := remote.counts()
	require.Zero(t, pushes)
	require.Len(t, o.Snapshot().Entries, 1)
}

func TestPullAdoptsRemoteAndPersists(t *testing.T) {
	remote := newFakeRemote()
	local := setupLocal(t)
	remote.seed(t, testKey, models.Snapshot{
		Entries: []models.Entry{{ID: "T1", Name: "One"}},
		Ratings: []models.Rating{{JudgeID: "B", TeamID: "T1", Scores: map[string]int{"impact": 4}, LastUpdated: 10}},
		Judges:  []string{"B"},
	}.Document(10))

	o := newTestOrchestrator(t, remote, local, judgeA)
	require.NoError(t, o.Pull(context.Background()))

	snapshot := o.Snapshot()
	require.Len(t, snapshot.Entries, 1)
	require.Len(t, snapshot.Ratings, 1)
	require.Equal(t, []string{"B"}, snapshot.Judges)
	require.Equal(t, snapshot, local.LoadSnapshot(context.Background(), testKey))
}

func TestSubmitRatingPushesMergedDocument(t *testing.T) {
	remote := newFakeRemote()
	local := setupLocal(t)
	remote.seed(t, testKey, models.Snapshot{
		Entries: []models.Entry{{ID: "T1", Name: "One"}},
		Ratings: []models.Rating{{JudgeID: "B", TeamID: "T1", Scores: map[string]int{"impact": 4}, LastUpdated: 10}},
		Judges:  []string{"B"},
	}.Document(10))

	o := newTestOrchestrator(t, remote, local, judgeA)
	require.NoError(t, o.Pull(context.Background()))

	err := o.SubmitRating(context.Background(), models.Rating{TeamID: "T1", Scores: map[string]int{"impact": 8, "design": 7}, Feedback: "<b>nice</b>"})
	require.NoError(t, err)

	doc := remote.document(t, testKey)
	require.Len(t, doc.Ratings, 2)
	require.ElementsMatch(t, []string{"A", "B"}, doc.Judges)
	for _, r := range doc.Ratings {
		if r.JudgeID == "A" {
			require.Equal(t, "nice", r.Feedback)
			require.Positive(t, r.LastUpdated)
		}
	}
	require.Equal(t, len(doc.Ratings), len(o.Snapshot().Ratings))
}

func TestSubmitRatingBumpsTimestampOnResubmit(t *testing.T) {
	remote := newFakeRemote()
	remote.seed(t, testKey, models.Snapshot{Entries: []models.Entry{{ID: "T1", Name: "One"}}}.Document(1))
	o := newTestOrchestrator(t, remote, setupLocal(t), judgeA)
	fixed := time.UnixMilli(5_000)
	o.now = func() time.Time { return fixed }
	require.NoError(t, o.Pull(context.Background()))

	require.NoError(t, o.SubmitRating(context.Background(), models.Rating{TeamID: "T1", Scores: map[string]int{"impact": 3}}))
	require.NoError(t, o.SubmitRating(context.Background(), models.Rating{TeamID: "T1", Scores: map[string]int{"impact": 9}}))

	ratings := remote.document(t, testKey).Ratings
	require.Len(t, ratings, 1)
	require.Equal(t, 9, ratings[0].Scores["impact"])
	require.Equal(t, int64(5_001), ratings[0].LastUpdated)
}

func TestSubmitRatingRejectedBeforeAnyNetworkCall(t *testing.T) {
	remote := newFakeRemote()
	o := newTestOrchestrator(t, remote, setupLocal(t), judgeA)

	err := o.SubmitRating(context.Background(), models.Rating{TeamID: "T1", Scores: map[string]int{"impact": 11}})
	require.Error(t, err)

	viewer := newTestOrchestrator(t, remote, setupLocal(t), Actor{Role: models.RoleViewer})
	require.ErrorIs(t, viewer.SubmitRating(context.Background(), models.Rating{TeamID: "T1"}), ErrNotPermitted)

	other := o.SubmitRating(context.Background(), models.Rating{TeamID: "T1", JudgeID: "B", Scores: map[string]int{"impact": 5}})
	require.ErrorIs(t, other, ErrNotPermitted)

	fetches, pushes := remote.counts()
	require.Zero(t, fetches)
	require.Zero(t, pushes)
}

func TestFailedPushRollsBack(t *testing.T) {
	remote := newFakeRemote()
	local := setupLocal(t)
	remote.seed(t, testKey, models.Snapshot{Entries: []models.Entry{{ID: "T1", Name: "One"}}}.Document(1))

	o := newTestOrchestrator(t, remote, local, judgeA)
	require.NoError(t, o.Pull(context.Background()))
	before := o.Snapshot()

	remote.pushErr = fmt.Errorf("%w: unexpected status 502", store.ErrTransport)
	err := o.SubmitRating(context.Background(), models.Rating{TeamID: "T1", Scores: map[string]int{"impact": 6}})

	require.ErrorIs(t, err, ErrRollback)
	require.ErrorIs(t, err, store.ErrTransport)
	require.Equal(t, before, o.Snapshot())
	require.Equal(t, before, local.LoadSnapshot(context.Background(), testKey))
	require.True(t, o.IsOffline())

	remote.pushErr = nil
	require.NoError(t, o.Pull(context.Background()))
	require.False(t, o.IsOffline())
}

func TestPermissionDeniedDegradesUntilReconfigured(t *testing.T) {
	remote := newFakeRemote()
	o := newTestOrchestrator(t, remote, setupLocal(t), organizer)

	remote.fetchErr = store.ErrPermissionDenied
	require.ErrorIs(t, o.Pull(context.Background()), store.ErrPermissionDenied)
	require.True(t, o.Status().Degraded)
	require.True(t, o.IsOffline())

	remote.fetchErr = nil
	fetches, _ := remote.counts()
	require.ErrorIs(t, o.Pull(context.Background()), ErrDegraded)
	after, _ := remote.counts()
	require.Equal(t, fetches, after)

	_, err := o.AddEntry(context.Background(), models.Entry{Name: "New"})
	require.ErrorIs(t, err, ErrRollback)
	require.ErrorIs(t, err, ErrDegraded)
	require.Empty(t, o.Snapshot().Entries)

	require.NoError(t, o.Reconfigure(context.Background(), "Other Event"))
	require.False(t, o.Status().Degraded)
	require.Equal(t, "judging_otherevent", o.Key())
	require.NoError(t, o.Pull(context.Background()))
}

func TestPayloadTooLargeIsDistinct(t *testing.T) {
	remote := newFakeRemote()
	o := newTestOrchestrator(t, remote, setupLocal(t), organizer)
	remote.pushErr = store.ErrPayloadTooLarge

	_, err := o.AddEntry(context.Background(), models.Entry{Name: "Huge", Thumbnail: "data:image/png;base64,AAAA"})
	require.ErrorIs(t, err, store.ErrPayloadTooLarge)

	status := o.Status()
	require.True(t, status.PayloadTooLarge)
	require.True(t, status.Offline)
	require.False(t, status.Degraded)

	remote.pushErr = nil
	require.NoError(t, o.Pull(context.Background()))
	status = o.Status()
	require.False(t, status.PayloadTooLarge)
	require.False(t, status.Offline)
}

func TestVersionConflictReMergesAndRetries(t *testing.T) {
	remote := newFakeRemote()
	remote.seed(t, testKey, models.Snapshot{Entries: []models.Entry{{ID: "T1", Name: "One"}}}.Document(1))
	o := newTestOrchestrator(t, remote, setupLocal(t), judgeA)
	require.NoError(t, o.Pull(context.Background()))

	remote.conflicts = 2
	require.NoError(t, o.SubmitRating(context.Background(), models.Rating{TeamID: "T1", Scores: map[string]int{"impact": 7}}))
	fetches, pushes := remote.counts()
	require.Equal(t, 1+3, fetches)
	require.Equal(t, 1, pushes)
	require.False(t, o.IsOffline())

	remote.conflicts = 10
	err := o.SubmitRating(context.Background(), models.Rating{TeamID: "T1", Scores: map[string]int{"impact": 2}})
	require.ErrorIs(t, err, ErrRollback)
	require.ErrorIs(t, err, store.ErrVersionConflict)
	require.True(t, o.IsOffline())
	require.Equal(t, 7, o.Snapshot().Ratings[0].Scores["impact"])
}

func TestPushMergesConcurrentRemoteWrite(t *testing.T) {
	remote := newFakeRemote()
	remote.seed(t, testKey, models.Snapshot{Entries: []models.Entry{{ID: "T1", Name: "One"}}, Judges: []string{"A"}}.Document(1))
	o := newTestOrchestrator(t, remote, setupLocal(t), judgeA)
	require.NoError(t, o.Pull(context.Background()))

	// Another judge writes after our last pull.
	remote.seed(t, testKey, models.Snapshot{
		Entries: []models.Entry{{ID: "T1", Name: "One"}},
		Ratings: []models.Rating{{JudgeID: "B", TeamID: "T1", Scores: map[string]int{"impact": 5}, LastUpdated: 50}},
		Judges:  []string{"A", "B"},
	}.Document(50))

	require.NoError(t, o.SubmitRating(context.Background(), models.Rating{TeamID: "T1", Scores: map[string]int{"impact": 9}}))

	doc := remote.document(t, testKey)
	require.Len(t, doc.Ratings, 2)
	require.ElementsMatch(t, []string{"A", "B"}, doc.Judges)
}

func TestRemoveJudgeCascadesAndStaysRemoved(t *testing.T) {
	remote := newFakeRemote()
	local := setupLocal(t)
	stale := models.Snapshot{
		Entries: []models.Entry{{ID: "T1", Name: "One"}, {ID: "T2", Name: "Two"}},
		Ratings: []models.Rating{
			{JudgeID: "B", TeamID: "T1", LastUpdated: 1},
			{JudgeID: "B", TeamID: "T2", LastUpdated: 1},
			{JudgeID: "A", TeamID: "T1", LastUpdated: 1},
		},
		Judges: []string{"A", "B"},
	}.Document(1)
	remote.seed(t, testKey, stale)

	o := newTestOrchestrator(t, remote, local, organizer)
	require.NoError(t, o.Pull(context.Background()))
	require.NoError(t, o.RemoveJudge(context.Background(), "B"))

	doc := remote.document(t, testKey)
	require.Equal(t, []string{"A"}, doc.Judges)
	require.Len(t, doc.Ratings, 1)
	require.Equal(t, "A", doc.Ratings[0].JudgeID)

	// A stale client writes B back; the next pull must not resurrect it.
	remote.seed(t, testKey, stale)
	require.NoError(t, o.Pull(context.Background()))
	snapshot := o.Snapshot()
	require.Equal(t, []string{"A"}, snapshot.Judges)
	for _, r := range snapshot.Ratings {
		require.NotEqual(t, "B", r.JudgeID)
	}

	require.ErrorIs(t, o.RemoveJudge(context.Background(), "Z"), ErrJudgeNotFound)
	bans, err := local.Tombstones(context.Background(), testKey)
	require.NoError(t, err)
	require.False(t, bans.JudgeBanned("Z"))
}

func TestDeleteEntryRollbackForgetsTombstone(t *testing.T) {
	remote := newFakeRemote()
	local := setupLocal(t)
	remote.seed(t, testKey, models.Snapshot{
		Entries: []models.Entry{{ID: "T1", Name: "One"}, {ID: "T2", Name: "Two"}},
		Ratings: []models.Rating{{JudgeID: "A", TeamID: "T2", LastUpdated: 1}},
	}.Document(1))

	o := newTestOrchestrator(t, remote, local, organizer)
	require.NoError(t, o.Pull(context.Background()))

	remote.pushErr = store.ErrTransport
	require.ErrorIs(t, o.DeleteEntry(context.Background(), "T2"), ErrRollback)
	bans, err := local.Tombstones(context.Background(), testKey)
	require.NoError(t, err)
	require.False(t, bans.EntryBanned("T2"))
	require.Len(t, o.Snapshot().Entries, 2)

	remote.pushErr = nil
	require.NoError(t, o.DeleteEntry(context.Background(), "T2"))
	doc := remote.document(t, testKey)
	require.Equal(t, []models.Entry{{ID: "T1", Name: "One"}}, doc.Teams)
	require.Empty(t, doc.Ratings)
}

func TestSelfRegistrationOverlaysRemoteRoster(t *testing.T) {
	remote := newFakeRemote()
	remote.seed(t, testKey, models.Snapshot{Entries: []models.Entry{{ID: "T1", Name: "One"}}}.Document(1))

	o := newTestOrchestrator(t, remote, setupLocal(t), Actor{Role: models.RoleViewer, UserID: "u-9"})
	require.NoError(t, o.Pull(context.Background()))

	entry, err := o.AddEntry(context.Background(), models.Entry{Name: "Mine"})
	require.NoError(t, err)
	require.Equal(t, "u-9", entry.UserID)
	require.Contains(t, entry.ID, "springhackat_")

	doc := remote.document(t, testKey)
	require.Len(t, doc.Teams, 2)
	require.Equal(t, "T1", doc.Teams[0].ID)
	require.Equal(t, entry.ID, doc.Teams[1].ID)

	entry.Name = "Mine, renamed"
	require.NoError(t, o.UpdateEntry(context.Background(), entry))
	require.Equal(t, "Mine, renamed", remote.document(t, testKey).Teams[1].Name)

	require.ErrorIs(t, o.UpdateEntry(context.Background(), models.Entry{ID: "T1", Name: "hijack"}), ErrNotPermitted)
}

func TestRegistrationClosed(t *testing.T) {
	o := newTestOrchestrator(t, newFakeRemote(), setupLocal(t), Actor{Role: models.RoleViewer, UserID: "u-9"})
	cfg := testConfig()
	cfg.Registration = models.RegistrationClosed
	o.SetConfig(cfg)

	_, err := o.AddEntry(context.Background(), models.Entry{Name: "Late"})
	require.ErrorIs(t, err, ErrRegistrationClosed)
}

func TestJoinJudge(t *testing.T) {
	remote := newFakeRemote()
	remote.seed(t, testKey, models.Snapshot{Judges: []string{"B"}}.Document(1))
	o := newTestOrchestrator(t, remote, setupLocal(t), judgeA)
	require.NoError(t, o.Pull(context.Background()))

	require.NoError(t, o.JoinJudge(context.Background(), ""))
	require.ElementsMatch(t, []string{"A", "B"}, remote.document(t, testKey).Judges)

	_, pushesBefore := remote.counts()
	require.NoError(t, o.JoinJudge(context.Background(), "A"))
	_, pushesAfter := remote.counts()
	require.Equal(t, pushesBefore, pushesAfter)

	require.ErrorIs(t, o.JoinJudge(context.Background(), "C"), ErrNotPermitted)
}

func TestClosedOrchestratorDiscardsWork(t *testing.T) {
	remote := newFakeRemote()
	o := newTestOrchestrator(t, remote, setupLocal(t), organizer)
	require.NoError(t, o.Close())

	require.ErrorIs(t, o.Pull(context.Background()), ErrClosed)
	_, err := o.AddEntry(context.Background(), models.Entry{Name: "Late"})
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, o.Start(context.Background()), ErrClosed)
}

func TestStartPullsImmediately(t *testing.T) {
	remote := newFakeRemote()
	o := newTestOrchestrator(t, remote, setupLocal(t), judgeA)
	updates, cancel := o.Subscribe()
	defer cancel()

	require.NoError(t, o.Start(context.Background()))
	require.Eventually(t, func() bool {
		fetches, _ := remote.counts()
		return fetches >= 1
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case status := <-updates:
		require.Equal(t, testKey, status.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a status update")
	}
}

func TestRollbackErrorUnwrapsBoth(t *testing.T) {
	err := rollbackError(store.ErrTransport)
	require.True(t, errors.Is(err, ErrRollback))
	require.True(t, errors.Is(err, store.ErrTransport))
}
