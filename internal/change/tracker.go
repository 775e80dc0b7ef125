package change

import (
	"shadow/internal/errors"
	"shadow/internal/storage"

	"go.uber.org/zap"
)

// Tracker holds the pending change list of every path and mirrors each list
// to the changes bucket. The in-memory lists are authoritative; a failed write
// is logged and the session continues. Tracker is not safe for concurrent use.
type Tracker struct {
	store   storage.Store
	pending map[string][]Change
	logger  *zap.Logger
}

func NewTracker(store storage.Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:   store,
		pending: make(map[string][]Change),
		logger:  logger,
	}
}

// Get returns a copy of the pending list for path, loading it from storage
// on first access.
func (t *Tracker) Get(path string) []Change {
	changes := t.load(path)
	out := make([]Change, len(changes))
	copy(out, changes)
	return out
}

// Set replaces the pending list for path.
func (t *Tracker) Set(path string, changes []Change) {
	if changes == nil {
		changes = []Change{}
	}
	t.pending[path] = changes
	t.persist(path)
}

// Refresh replaces the pending list for path with a fresh detection result.
// A pending change that matches an earlier change hunk for hunk (same kind,
// base range and content) inherits that change's review decision. The
// updated list is returned.
func (t *Tracker) Refresh(path string, changes []Change) []Change {
	previous := t.load(path)
	for i := range changes {
		if changes[i].Approved != Pending {
			continue
		}
		for _, old := range previous {
			if sameHunk(old, changes[i]) {
				changes[i].Approved = old.Approved
				break
			}
		}
	}
	t.Set(path, changes)
	return t.Get(path)
}

func sameHunk(a, b Change) bool {
	as, ae := a.BaseRange()
	bs, be := b.BaseRange()
	return a.Type == b.Type && as == bs && ae == be && a.Content == b.Content
}

// Clear empties the pending list for path.
func (t *Tracker) Clear(path string) {
	t.Set(path, nil)
}

func (t *Tracker) Approve(path string, id int) bool {
	return t.mark(path, id, Approved)
}

func (t *Tracker) Disapprove(path string, id int) bool {
	return t.mark(path, id, Disapproved)
}

func (t *Tracker) ApproveAll(path string) int {
	return t.markAll(path, Approved)
}

func (t *Tracker) DisapproveAll(path string) int {
	return t.markAll(path, Disapproved)
}

func (t *Tracker) mark(path string, id int, approval Approval) bool {
	changes := t.load(path)
	for i := range changes {
		if changes[i].ID == id {
			changes[i].Approved = approval
			t.persist(path)
			return true
		}
	}
	return false
}

func (t *Tracker) markAll(path string, approval Approval) int {
	changes := t.load(path)
	if len(changes) == 0 {
		return 0
	}
	for i := range changes {
		changes[i].Approved = approval
	}
	t.persist(path)
	return len(changes)
}

func (t *Tracker) load(path string) []Change {
	if changes, ok := t.pending[path]; ok {
		return changes
	}

	var changes []Change
	if err := t.store.Get(storage.Changes, path, &changes); err != nil {
		if !errors.IsNotFound(err) {
			t.logger.Warn("Failed to load pending changes",
				zap.String("path", path),
				zap.Error(err))
		}
		changes = []Change{}
	}
	t.pending[path] = changes
	return changes
}

func (t *Tracker) persist(path string) {
	if err := t.store.Put(storage.Changes, path, t.pending[path]); err != nil {
		t.logger.Error("Failed to persist pending changes",
			zap.String("path", path),
			zap.Error(err))
	}
}
