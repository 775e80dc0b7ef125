// internal/engine/engine.go
package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"shadow/internal/change"
	"shadow/internal/checkpoint"
	"shadow/internal/config"
	"shadow/internal/content"
	"shadow/internal/diff"
	"shadow/internal/errors"
	"shadow/internal/storage"
	"shadow/internal/workspace"

	"go.uber.org/zap"
)

// Engine is one independently rooted shadow VCS instance over a workspace.
// Every exported operation serializes on the instance mutex.
type Engine struct {
	mu sync.Mutex

	workspace  string
	root       string
	engineType string
	config     *config.Config
	logger     *zap.Logger

	records     storage.Store
	ownsRecords bool

	snapshots   *content.Store
	tracker     *change.Tracker
	differ      *diff.Engine
	checkpoints *checkpoint.Manager
}

// New opens the engine instance for workspaceDir. Its records live in
// <workspace>/<storage.dir>/<type> unless WithRoot says otherwise.
func New(workspaceDir string, opts ...Option) (*Engine, error) {
	o := options{engineType: TypeMain}
	for _, opt := range opts {
		opt(&o)
	}
	if err := validateType(o.engineType); err != nil {
		return nil, err
	}
	if o.config == nil {
		o.config = config.Default()
	}
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	absWorkspace, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}
	root := o.root
	if root == "" {
		root = o.config.EngineRoot(absWorkspace, o.engineType)
	}

	e := &Engine{
		workspace:  absWorkspace,
		root:       root,
		engineType: o.engineType,
		config:     o.config,
		logger:     o.logger,
		records:    o.store,
		differ:     diff.NewEngine(0),
	}

	if e.records == nil && o.db != nil {
		e.records = storage.NewBadgerStore(o.db, o.engineType)
	}
	if e.records == nil {
		if e.records, err = openStore(o.config.Storage.Backend, root); err != nil {
			return nil, err
		}
		e.ownsRecords = true
	}

	if err := e.init(); err != nil {
		if e.ownsRecords {
			e.records.Close()
		}
		return nil, err
	}

	e.logger.Info("Engine opened",
		zap.String("type", e.engineType),
		zap.String("workspace", e.workspace),
		zap.String("root", e.root),
		zap.Int("tracked", len(e.snapshots.Tracked())))
	return e, nil
}

// validateType accepts tags that name a single directory under the storage
// dir.
func validateType(engineType string) error {
	if engineType == "" {
		return errors.ValidationError("engine type cannot be empty")
	}
	if engineType == "." || engineType == ".." || strings.ContainsAny(engineType, `/\`) {
		return errors.ValidationError(fmt.Sprintf("invalid engine type %q", engineType))
	}
	return nil
}

func openStore(backend, root string) (storage.Store, error) {
	switch backend {
	case config.BackendBadger:
		store, err := storage.OpenBadger(filepath.Join(root, "db"))
		if err != nil {
			return nil, fmt.Errorf("opening badger store: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewDirStore(root)
		if err != nil {
			return nil, fmt.Errorf("opening record directory: %w", err)
		}
		return store, nil
	}
}

func (e *Engine) init() error {
	var err error
	e.snapshots, err = content.NewStore(e.workspace, e.root, e.records,
		e.config.Snapshots.CacheSize, e.logger.Named("content"))
	if err != nil {
		return err
	}

	e.tracker = change.NewTracker(e.records, e.logger.Named("changes"))

	e.checkpoints, err = checkpoint.NewManager(e.engineType,
		checkpoint.Policy(e.config.Checkpoint.Policy),
		e.snapshots, e.tracker, e.records, e.detectChanges,
		e.logger.Named("checkpoint"))
	if err != nil {
		return fmt.Errorf("loading checkpoints: %w", err)
	}
	return nil
}

func (e *Engine) Workspace() string { return e.workspace }
func (e *Engine) Root() string      { return e.root }
func (e *Engine) Type() string      { return e.engineType }

// Close releases the record store when the engine opened it.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ownsRecords {
		return nil
	}
	return e.records.Close()
}

// TakeSnapshot captures the current content of path as its new baseline.
func (e *Engine) TakeSnapshot(path string) (*content.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rel, err := workspace.Rel(e.workspace, path)
	if err != nil {
		return nil, err
	}

	snap, err := e.snapshots.Take(rel)
	if err != nil {
		e.logger.Error("Failed to take snapshot",
			zap.String("path", rel),
			zap.Error(err))
		return nil, err
	}
	return snap, nil
}

// SnapshotTree snapshots every non-ignored file under dir and returns how
// many were taken. Unreadable files are logged and skipped.
func (e *Engine) SnapshotTree(dir string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	err := workspace.Walk(e.workspace, dir, func(rel string) error {
		if _, err := e.snapshots.Take(rel); err != nil {
			e.logger.Warn("Failed to snapshot file",
				zap.String("path", rel),
				zap.Error(err))
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("walking %s: %w", dir, err)
	}
	return count, nil
}

// GetTrackedFiles lists every path with a snapshot.
func (e *Engine) GetTrackedFiles() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.snapshots.Tracked()
}

// DetectChanges diffs path against its snapshot and records the result as
// the path's pending changes.
func (e *Engine) DetectChanges(path string) ([]change.Change, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rel, err := workspace.Rel(e.workspace, path)
	if err != nil {
		return nil, err
	}

	changes, err := e.detectChanges(rel)
	if err != nil {
		e.logger.Error("Failed to detect changes",
			zap.String("path", rel),
			zap.Error(err))
		return nil, err
	}
	return changes, nil
}

// detectChanges expects the mutex to be held and rel to be normalized.
func (e *Engine) detectChanges(rel string) ([]change.Change, error) {
	snap, ok := e.snapshots.Get(rel)
	if !ok {
		// First observation: everything is new.
		snap, err := e.snapshots.Take(rel)
		if err != nil {
			return nil, err
		}
		return []change.Change{{
			ID:        0,
			Type:      change.Addition,
			StartLine: 0,
			EndLine:   len(snap.Lines) - 1,
			Content:   snap.Content,
			Approved:  change.Pending,
		}}, nil
	}

	data, err := os.ReadFile(e.snapshots.AbsPath(rel))
	if err != nil {
		if os.IsNotExist(err) {
			deleted := []change.Change{{
				ID:        0,
				Type:      change.Deletion,
				StartLine: 0,
				EndLine:   len(snap.Lines) - 1,
				Content:   snap.Content,
				Approved:  change.Pending,
				BaseStart: 0,
				BaseCount: len(snap.Lines),
			}}
			return e.tracker.Refresh(rel, deleted), nil
		}
		return nil, errors.IOError(fmt.Sprintf("reading %s", rel), err)
	}

	if content.HashContent(data) == snap.Hash {
		e.tracker.Clear(rel)
		return []change.Change{}, nil
	}

	changes := e.differ.Compute(snap.Lines, strings.Split(string(data), "\n"))
	e.logger.Debug("Changes detected",
		zap.String("path", rel),
		zap.Int("count", len(changes)))
	return e.tracker.Refresh(rel, changes), nil
}

// PendingChanges returns the recorded pending list for path without running
// detection.
func (e *Engine) PendingChanges(path string) ([]change.Change, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rel, err := workspace.Rel(e.workspace, path)
	if err != nil {
		return nil, err
	}
	return e.tracker.Get(rel), nil
}

func (e *Engine) ApproveChange(path string, id int) bool {
	return e.markOne(path, id, (*change.Tracker).Approve)
}

func (e *Engine) DisapproveChange(path string, id int) bool {
	return e.markOne(path, id, (*change.Tracker).Disapprove)
}

func (e *Engine) ApproveAllChanges(path string) int {
	return e.markAll(path, (*change.Tracker).ApproveAll)
}

func (e *Engine) DisapproveAllChanges(path string) int {
	return e.markAll(path, (*change.Tracker).DisapproveAll)
}

func (e *Engine) markOne(path string, id int, mark func(*change.Tracker, string, int) bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	rel, err := workspace.Rel(e.workspace, path)
	if err != nil {
		e.logger.Warn("Rejected path", zap.String("path", path), zap.Error(err))
		return false
	}
	return mark(e.tracker, rel, id)
}

func (e *Engine) markAll(path string, mark func(*change.Tracker, string) int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	rel, err := workspace.Rel(e.workspace, path)
	if err != nil {
		e.logger.Warn("Rejected path", zap.String("path", path), zap.Error(err))
		return 0
	}
	return mark(e.tracker, rel)
}

// CreateCheckpoint re-runs detection on every tracked file and records the
// result as a new checkpoint.
func (e *Engine) CreateCheckpoint(message string) (*checkpoint.Checkpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.checkpoints.Create(message)
}

// GetCheckpoints lists checkpoints oldest first.
func (e *Engine) GetCheckpoints() []checkpoint.Checkpoint {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.checkpoints.List()
}

func (e *Engine) GetCheckpoint(id string) (*checkpoint.Checkpoint, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.checkpoints.Get(id)
}

func (e *Engine) DeleteCheckpoint(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.checkpoints.Delete(id)
}

// ApplyCheckpoint restores the files captured by a checkpoint.
func (e *Engine) ApplyCheckpoint(id string) (*checkpoint.ApplyResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.checkpoints.Apply(id)
}

// CreateTempSnapshotFile writes the snapshot of path to a scratch file and
// returns its location.
func (e *Engine) CreateTempSnapshotFile(path string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rel, err := workspace.Rel(e.workspace, path)
	if err != nil {
		return "", err
	}
	return e.snapshots.Materialize(rel)
}

func (e *Engine) ExportCheckpoint(id string, w io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.checkpoints.Export(id, w)
}

func (e *Engine) ImportCheckpoint(r io.Reader) (*checkpoint.Checkpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.checkpoints.Import(r)
}
