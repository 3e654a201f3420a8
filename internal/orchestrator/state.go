package orchestrator

import (
	"sync"

	"github.com/noah-isme/judging-portal/internal/models"
)

// stateHolder is the reference cell holding the latest snapshot. Every
// change bumps the revision so a round that read an older revision can tell
// its result is stale.
type stateHolder struct {
	mu       sync.RWMutex
	snapshot models.Snapshot
	revision uint64
}

func newStateHolder(initial models.Snapshot) *stateHolder {
	return &stateHolder{snapshot: initial.Clone()}
}

// Load returns a private copy of the snapshot and its revision.
func (h *stateHolder) Load() (models.Snapshot, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshot.Clone(), h.revision
}

// Store replaces the snapshot unconditionally.
func (h *stateHolder) Store(s models.Snapshot) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = s.Clone()
	h.revision++
	return h.revision
}

// CompareAndSwap replaces the snapshot only if nothing changed since rev.
func (h *stateHolder) CompareAndSwap(rev uint64, s models.Snapshot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.revision != rev {
		return false
	}
	h.snapshot = s.Clone()
	h.revision++
	return true
}

// Apply runs fn on a copy of the current snapshot and stores the result.
// It returns the snapshot before and after the change. When fn fails
// nothing is stored.
func (h *stateHolder) Apply(fn func(models.Snapshot) (models.Snapshot, error)) (models.Snapshot, models.Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.snapshot.Clone()
	next, err := fn(h.snapshot.Clone())
	if err != nil {
		return prev, prev, err
	}
	h.snapshot = next.Clone()
	h.revision++
	return prev, next, nil
}
