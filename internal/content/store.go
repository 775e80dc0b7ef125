// internal/content/store.go
package content

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"shadow/internal/errors"
	"shadow/internal/storage"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const tempDir = "temp"

// Store captures and serves snapshots for the files of one workspace.
// Snapshots live in a bounded cache backed by the snapshots bucket; the set
// of tracked paths is indexed separately so eviction never untracks a file.
// Store is not safe for concurrent use.
type Store struct {
	workspace string
	root      string
	records   storage.Store
	cache     *lru.Cache[string, *Snapshot]
	tracked   map[string]bool
	logger    *zap.Logger
}

// NewStore opens the content store for workspace. root is the engine's
// private directory, used for temp materializations.
func NewStore(workspace, root string, records storage.Store, cacheSize int, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := lru.New[string, *Snapshot](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot cache: %w", err)
	}

	keys, err := records.Keys(storage.Snapshots)
	if err != nil {
		return nil, fmt.Errorf("indexing snapshots: %w", err)
	}

	s := &Store{
		workspace: workspace,
		root:      root,
		records:   records,
		cache:     cache,
		tracked:   make(map[string]bool, len(keys)),
		logger:    logger,
	}
	for _, key := range keys {
		s.tracked[key] = true
	}

	return s, nil
}

// AbsPath maps a slash-separated workspace-relative path to the real file.
func (s *Store) AbsPath(path string) string {
	return filepath.Join(s.workspace, filepath.FromSlash(path))
}

// Take reads the file's current bytes and installs them as its snapshot,
// replacing any earlier one.
func (s *Store) Take(path string) (*Snapshot, error) {
	data, err := os.ReadFile(s.AbsPath(path))
	if err != nil {
		return nil, errors.IOError(fmt.Sprintf("reading %s", path), err)
	}
	return s.Put(path, data), nil
}

// Put installs content as the snapshot of path and persists it.
func (s *Store) Put(path string, content []byte) *Snapshot {
	snap := NewSnapshot(content)
	s.cache.Add(path, snap)
	s.tracked[path] = true

	if err := s.records.Put(storage.Snapshots, path, snap); err != nil {
		s.logger.Error("Failed to persist snapshot",
			zap.String("path", path),
			zap.Error(err))
	}

	s.logger.Debug("Snapshot taken",
		zap.String("path", path),
		zap.String("hash", snap.Hash))
	return snap
}

// Get returns the snapshot of path, reading the persisted record when it is
// not resident.
func (s *Store) Get(path string) (*Snapshot, bool) {
	if snap, ok := s.cache.Get(path); ok {
		return snap, true
	}

	var snap Snapshot
	if err := s.records.Get(storage.Snapshots, path, &snap); err != nil {
		if !errors.IsNotFound(err) {
			s.logger.Warn("Failed to load snapshot",
				zap.String("path", path),
				zap.Error(err))
		}
		return nil, false
	}
	if !snap.valid() {
		s.logger.Warn("Discarding snapshot with mismatched hash",
			zap.String("path", path),
			zap.String("hash", snap.Hash))
		return nil, false
	}
	snap.Lines = strings.Split(snap.Content, "\n")

	s.cache.Add(path, &snap)
	s.tracked[path] = true
	return &snap, true
}

// Tracked lists every path that has a snapshot, sorted.
func (s *Store) Tracked() []string {
	paths := make([]string, 0, len(s.tracked))
	for path := range s.tracked {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Materialize writes the snapshot content of path to
// <root>/temp/<filename>.snapshot and returns that file's path.
func (s *Store) Materialize(path string) (string, error) {
	snap, ok := s.Get(path)
	if !ok {
		return "", errors.NotFound(fmt.Sprintf("no snapshot for %s", path))
	}

	dir := filepath.Join(s.root, tempDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.IOError("creating temp directory", err)
	}

	tempPath := filepath.Join(dir, filepath.Base(filepath.FromSlash(path))+".snapshot")
	if err := os.WriteFile(tempPath, []byte(snap.Content), 0644); err != nil {
		return "", errors.IOError(fmt.Sprintf("writing temp snapshot for %s", path), err)
	}
	return tempPath, nil
}
