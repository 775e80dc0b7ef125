// internal/checkpoint/manager.go
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"shadow/internal/change"
	"shadow/internal/content"
	"shadow/internal/errors"
	"shadow/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DetectFunc re-runs change detection for one tracked path.
type DetectFunc func(path string) ([]change.Change, error)

// Manager creates, lists, restores and deletes the checkpoints of one engine
// instance. It is not safe for concurrent use.
type Manager struct {
	engineType  string
	policy      Policy
	snapshots   *content.Store
	tracker     *change.Tracker
	records     storage.Store
	detect      DetectFunc
	checkpoints []*Checkpoint
	logger      *zap.Logger
}

// NewManager loads the persisted checkpoints of an engine instance. Records
// that cannot be decoded are logged and left out.
func NewManager(engineType string, policy Policy, snapshots *content.Store, tracker *change.Tracker,
	records storage.Store, detect DetectFunc, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == "" {
		policy = CaptureAll
	}
	if policy != CaptureAll && policy != CaptureApproved {
		return nil, errors.ValidationError(fmt.Sprintf("unknown checkpoint policy %q", policy))
	}

	m := &Manager{
		engineType: engineType,
		policy:     policy,
		snapshots:  snapshots,
		tracker:    tracker,
		records:    records,
		detect:     detect,
		logger:     logger,
	}

	keys, err := records.Keys(storage.Checkpoints)
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	for _, key := range keys {
		var cp Checkpoint
		if err := records.Get(storage.Checkpoints, key, &cp); err != nil {
			logger.Warn("Skipping unreadable checkpoint",
				zap.String("id", key),
				zap.Error(err))
			continue
		}
		m.checkpoints = append(m.checkpoints, &cp)
	}
	m.sort()

	return m, nil
}

func (m *Manager) sort() {
	sort.SliceStable(m.checkpoints, func(i, j int) bool {
		return m.checkpoints[i].Timestamp.Before(m.checkpoints[j].Timestamp)
	})
}

// Create records a checkpoint over every tracked path and clears all pending
// change lists. Files that cannot be read are logged and left out.
func (m *Manager) Create(message string) (*Checkpoint, error) {
	paths := m.snapshots.Tracked()

	cp := &Checkpoint{
		ID:        uuid.New().String(),
		Message:   message,
		Timestamp: time.Now(),
		Changes:   make(map[string][]change.Change),
		Type:      m.engineType,
		Bases:     make(map[string]string),
	}

	for _, path := range paths {
		if _, err := m.detect(path); err != nil {
			m.logger.Warn("Change detection failed during checkpoint",
				zap.String("path", path),
				zap.Error(err))
			continue
		}

		data, err := os.ReadFile(m.snapshots.AbsPath(path))
		if err != nil {
			m.logger.Warn("Skipping unreadable file",
				zap.String("path", path),
				zap.Error(errors.IOError(fmt.Sprintf("reading %s", path), err)))
			continue
		}

		captured := m.capture(path, data)
		if len(captured) == 0 {
			continue
		}

		cp.Changes[path] = captured
		if snap, ok := m.snapshots.Get(path); ok {
			cp.Bases[path] = snap.Hash
		}
	}

	m.checkpoints = append(m.checkpoints, cp)
	if err := m.records.Put(storage.Checkpoints, cp.ID, cp); err != nil {
		m.logger.Error("Failed to persist checkpoint",
			zap.String("id", cp.ID),
			zap.Error(err))
	}

	for _, path := range paths {
		m.tracker.Clear(path)
	}

	m.logger.Info("Checkpoint created",
		zap.String("id", cp.ID),
		zap.String("message", message),
		zap.Int("files", len(cp.Changes)))
	return cp.clone(), nil
}

// capture selects the changes of one path according to the policy.
func (m *Manager) capture(path string, data []byte) []change.Change {
	pending := m.tracker.Get(path)

	if m.policy == CaptureApproved {
		var approved []change.Change
		for _, c := range pending {
			if c.Approved == change.Approved {
				approved = append(approved, c)
			}
		}
		return approved
	}

	if len(pending) == 0 {
		pending = []change.Change{m.fullFile(path, data)}
	}
	for i := range pending {
		pending[i].Approved = change.Approved
	}
	return pending
}

// fullFile synthesizes a modification replacing the whole base with data.
func (m *Manager) fullFile(path string, data []byte) change.Change {
	text := string(data)
	c := change.Change{
		ID:        0,
		Type:      change.Modification,
		StartLine: 0,
		EndLine:   strings.Count(text, "\n"),
		Content:   text,
		Approved:  change.Approved,
		WholeFile: true,
	}
	if snap, ok := m.snapshots.Get(path); ok {
		c.BaseCount = len(snap.Lines)
	}
	return c
}

// Get returns a copy of the checkpoint with the given id.
func (m *Manager) Get(id string) (*Checkpoint, bool) {
	cp, ok := m.find(id)
	if !ok {
		return nil, false
	}
	return cp.clone(), true
}

func (m *Manager) find(id string) (*Checkpoint, bool) {
	for _, cp := range m.checkpoints {
		if cp.ID == id {
			return cp, true
		}
	}
	return nil, false
}

// List returns copies of every checkpoint, oldest first.
func (m *Manager) List() []Checkpoint {
	out := make([]Checkpoint, 0, len(m.checkpoints))
	for _, cp := range m.checkpoints {
		out = append(out, *cp.clone())
	}
	return out
}

// Delete removes a checkpoint and its record. It reports false when the id
// is unknown.
func (m *Manager) Delete(id string) bool {
	for i, cp := range m.checkpoints {
		if cp.ID != id {
			continue
		}
		m.checkpoints = append(m.checkpoints[:i], m.checkpoints[i+1:]...)
		if err := m.records.Delete(storage.Checkpoints, id); err != nil && !errors.IsNotFound(err) {
			m.logger.Error("Failed to delete checkpoint record",
				zap.String("id", id),
				zap.Error(err))
		}
		m.logger.Info("Checkpoint deleted", zap.String("id", id))
		return true
	}
	return false
}

// Apply restores every file captured by the checkpoint. Each path is replayed
// over its current base snapshot, written back, and re-snapshotted. A failure
// on one path is logged and recorded as a warning; the rest still run.
func (m *Manager) Apply(id string) (*ApplyResult, error) {
	cp, ok := m.find(id)
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("checkpoint %s not found", id))
	}

	result := &ApplyResult{
		Checkpoint: cp.clone(),
		Warnings:   []string{},
	}

	paths := cp.Paths()
	sort.Strings(paths)
	for _, path := range paths {
		if err := m.restore(cp, path); err != nil {
			m.logger.Warn("Failed to restore file",
				zap.String("checkpoint", id),
				zap.String("path", path),
				zap.Error(err))
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		result.FilesRestored++
	}

	m.logger.Info("Checkpoint applied",
		zap.String("id", id),
		zap.Int("restored", result.FilesRestored),
		zap.Int("warnings", len(result.Warnings)))
	return result, nil
}

func (m *Manager) restore(cp *Checkpoint, path string) error {
	base, ok := m.snapshots.Get(path)
	if !ok {
		return errors.NotFound(fmt.Sprintf("no base snapshot for %s", path))
	}
	if want, ok := cp.Bases[path]; ok && want != base.Hash {
		m.logger.Warn("Base snapshot changed since checkpoint",
			zap.String("path", path),
			zap.String("checkpoint_base", want),
			zap.String("current_base", base.Hash))
	}

	restored := strings.Join(change.Apply(base.Lines, cp.Changes[path]), "\n")

	abs := m.snapshots.AbsPath(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return errors.IOError(fmt.Sprintf("creating directory for %s", path), err)
	}
	if err := os.WriteFile(abs, []byte(restored), 0644); err != nil {
		return errors.IOError(fmt.Sprintf("writing %s", path), err)
	}

	if _, err := m.snapshots.Take(path); err != nil {
		return fmt.Errorf("re-snapshotting %s: %w", path, err)
	}
	// The pending list described the old baseline.
	m.tracker.Clear(path)
	return nil
}
