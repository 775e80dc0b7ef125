package checkpoint

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shadow/internal/change"
	"shadow/internal/content"
	"shadow/internal/diff"
	"shadow/internal/errors"
	"shadow/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	workspace string
	root      string
	records   storage.Store
	snapshots *content.Store
	tracker   *change.Tracker
	differ    *diff.Engine
	manager   *Manager
}

func setup(t *testing.T, policy Policy) *fixture {
	t.Helper()
	workspace := t.TempDir()
	root := filepath.Join(workspace, ".shadow", "main")

	records, err := storage.NewDirStore(root)
	require.NoError(t, err)
	snapshots, err := content.NewStore(workspace, root, records, 16, nil)
	require.NoError(t, err)

	f := &fixture{
		workspace: workspace,
		root:      root,
		records:   records,
		snapshots: snapshots,
		tracker:   change.NewTracker(records, nil),
		differ:    diff.NewEngine(0),
	}
	f.manager = f.open(t, policy)
	return f
}

func (f *fixture) open(t *testing.T, policy Policy) *Manager {
	t.Helper()
	m, err := NewManager("main", policy, f.snapshots, f.tracker, f.records, f.detect, nil)
	require.NoError(t, err)
	return m
}

func (f *fixture) detect(path string) ([]change.Change, error) {
	snap, _ := f.snapshots.Get(path)
	data, err := os.ReadFile(f.snapshots.AbsPath(path))
	if err != nil {
		return nil, err
	}
	changes := f.differ.Compute(snap.Lines, strings.Split(string(data), "\n"))
	return f.tracker.Refresh(path, changes), nil
}

func (f *fixture) write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.workspace, path), []byte(body), 0644))
}

func (f *fixture) read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.workspace, path))
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) track(t *testing.T, path, body string) {
	t.Helper()
	f.write(t, path, body)
	_, err := f.snapshots.Take(path)
	require.NoError(t, err)
}

func TestCreate(t *testing.T) {
	t.Run("captures every tracked file", func(t *testing.T) {
		f := setup(t, CaptureAll)
		f.track(t, "a.txt", "a\nb\nc")
		f.track(t, "b.txt", "x\ny")
		f.write(t, "a.txt", "a\nX\nc")

		_, err := f.detect("a.txt")
		require.NoError(t, err)
		f.tracker.Disapprove("a.txt", 0)

		cp, err := f.manager.Create("msg")
		require.NoError(t, err)
		assert.Equal(t, "msg", cp.Message)
		assert.Equal(t, "main", cp.Type)
		require.Len(t, cp.Changes, 2)

		edited := cp.Changes["a.txt"]
		require.Len(t, edited, 1)
		assert.Equal(t, change.Modification, edited[0].Type)
		assert.Equal(t, "X", edited[0].Content)
		assert.Equal(t, change.Approved, edited[0].Approved)

		untouched := cp.Changes["b.txt"]
		require.Len(t, untouched, 1)
		assert.Equal(t, change.Change{
			ID: 0, Type: change.Modification, StartLine: 0, EndLine: 1, Content: "x\ny",
			Approved: change.Approved, BaseStart: 0, BaseCount: 2, WholeFile: true,
		}, untouched[0])

		assert.Empty(t, f.tracker.Get("a.txt"))
		assert.Empty(t, f.tracker.Get("b.txt"))
	})

	t.Run("skips files that cannot be read", func(t *testing.T) {
		f := setup(t, CaptureAll)
		f.track(t, "a.txt", "a")
		f.track(t, "gone.txt", "bye")
		require.NoError(t, os.Remove(filepath.Join(f.workspace, "gone.txt")))

		cp, err := f.manager.Create("without gone")
		require.NoError(t, err)
		assert.Contains(t, cp.Changes, "a.txt")
		assert.NotContains(t, cp.Changes, "gone.txt")
	})

	t.Run("approved policy keeps only approved changes", func(t *testing.T) {
		f := setup(t, CaptureApproved)
		f.track(t, "a.txt", "a\nb\nc")
		f.track(t, "b.txt", "untouched")
		f.write(t, "a.txt", "a\nX\nc\nd")

		changes, err := f.detect("a.txt")
		require.NoError(t, err)
		require.Len(t, changes, 2)
		require.True(t, f.tracker.Approve("a.txt", 0))

		cp, err := f.manager.Create("reviewed")
		require.NoError(t, err)
		require.Len(t, cp.Changes, 1)
		require.Len(t, cp.Changes["a.txt"], 1)
		assert.Equal(t, "X", cp.Changes["a.txt"][0].Content)

		f.write(t, "a.txt", "scratch")
		result, err := f.manager.Apply(cp.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, result.FilesRestored)
		assert.Equal(t, "a\nX\nc", f.read(t, "a.txt"))
	})

	t.Run("rejects unknown policy", func(t *testing.T) {
		f := setup(t, CaptureAll)
		_, err := NewManager("main", Policy("some"), f.snapshots, f.tracker, f.records, f.detect, nil)
		assert.True(t, errors.IsValidation(err))
	})
}

func TestApply(t *testing.T) {
	t.Run("restores captured content", func(t *testing.T) {
		f := setup(t, CaptureAll)
		f.track(t, "a.txt", "a\nb\nc")
		f.track(t, "b.txt", "x\ny")
		f.write(t, "a.txt", "a\nX\nc")

		cp, err := f.manager.Create("edit")
		require.NoError(t, err)

		f.write(t, "a.txt", "junk")
		f.write(t, "b.txt", "more junk")

		result, err := f.manager.Apply(cp.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, result.FilesRestored)
		assert.Empty(t, result.Warnings)
		assert.Equal(t, "a\nX\nc", f.read(t, "a.txt"))
		assert.Equal(t, "x\ny", f.read(t, "b.txt"))

		snap, ok := f.snapshots.Get("a.txt")
		require.True(t, ok)
		assert.Equal(t, "a\nX\nc", snap.Content)

		changes, err := f.detect("a.txt")
		require.NoError(t, err)
		assert.Empty(t, changes)
	})

	t.Run("recreates missing directories", func(t *testing.T) {
		f := setup(t, CaptureAll)
		require.NoError(t, os.MkdirAll(filepath.Join(f.workspace, "sub"), 0755))
		f.track(t, "sub/a.txt", "one\ntwo")

		cp, err := f.manager.Create("nested")
		require.NoError(t, err)
		require.NoError(t, os.RemoveAll(filepath.Join(f.workspace, "sub")))

		result, err := f.manager.Apply(cp.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, result.FilesRestored)
		assert.Equal(t, "one\ntwo", f.read(t, "sub/a.txt"))
	})

	t.Run("unknown id", func(t *testing.T) {
		f := setup(t, CaptureAll)
		_, err := f.manager.Apply("nonexistent")
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("path without a base snapshot is skipped", func(t *testing.T) {
		f := setup(t, CaptureAll)
		f.track(t, "a.txt", "alpha")
		f.track(t, "b.txt", "beta")

		cp, err := f.manager.Create("both")
		require.NoError(t, err)

		require.NoError(t, os.Remove(filepath.Join(f.root, string(storage.Snapshots), "b.txt.json")))
		snapshots, err := content.NewStore(f.workspace, f.root, f.records, 16, nil)
		require.NoError(t, err)
		m, err := NewManager("main", CaptureAll, snapshots, f.tracker, f.records, f.detect, nil)
		require.NoError(t, err)

		f.write(t, "a.txt", "scratch")
		f.write(t, "b.txt", "scratch")

		result, err := m.Apply(cp.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, result.FilesRestored)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "b.txt")
		assert.Equal(t, "alpha", f.read(t, "a.txt"))
		assert.Equal(t, "scratch", f.read(t, "b.txt"))
	})

	t.Run("write failure does not stop other paths", func(t *testing.T) {
		f := setup(t, CaptureAll)
		f.track(t, "a.txt", "alpha")
		f.track(t, "b.txt", "beta")

		cp, err := f.manager.Create("both")
		require.NoError(t, err)

		// A directory in place of the file cannot be written as one.
		require.NoError(t, os.Remove(filepath.Join(f.workspace, "a.txt")))
		require.NoError(t, os.Mkdir(filepath.Join(f.workspace, "a.txt"), 0755))
		f.write(t, "b.txt", "scratch")

		result, err := f.manager.Apply(cp.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, result.FilesRestored)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "a.txt")
		assert.Equal(t, "beta", f.read(t, "b.txt"))
	})
}

func TestCheckpointsAreImmutable(t *testing.T) {
	f := setup(t, CaptureAll)
	f.track(t, "a.txt", "orig")

	created, err := f.manager.Create("original")
	require.NoError(t, err)
	created.Changes["a.txt"][0].Content = "from create"

	got, ok := f.manager.Get(created.ID)
	require.True(t, ok)
	got.Changes["a.txt"][0].Content = "from get"
	got.Bases["a.txt"] = "bogus"
	got.Changes["extra.txt"] = []change.Change{{Content: "extra"}}

	listed := f.manager.List()
	listed[0].Changes["a.txt"][0].Content = "from list"
	listed[0].Message = "renamed"

	f.write(t, "a.txt", "scratch")
	result, err := f.manager.Apply(created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesRestored)
	assert.Equal(t, "orig", f.read(t, "a.txt"))

	stored, ok := f.manager.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, "original", stored.Message)
	assert.NotContains(t, stored.Changes, "extra.txt")
	assert.NotEqual(t, "bogus", stored.Bases["a.txt"])
}

func TestListDeleteAndReload(t *testing.T) {
	f := setup(t, CaptureAll)
	f.track(t, "a.txt", "a")

	first, err := f.manager.Create("first")
	require.NoError(t, err)
	second, err := f.manager.Create("second")
	require.NoError(t, err)

	list := f.manager.List()
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].Message)
	assert.Equal(t, "second", list[1].Message)

	reloaded := f.open(t, CaptureAll)
	require.Len(t, reloaded.List(), 2)
	got, ok := reloaded.Get(first.ID)
	require.True(t, ok)
	assert.Equal(t, first.Changes, got.Changes)

	assert.True(t, reloaded.Delete(first.ID))
	assert.False(t, reloaded.Delete(first.ID))
	assert.False(t, reloaded.Delete("nonexistent"))

	list = f.open(t, CaptureAll).List()
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)
}

func TestMalformedRecordsAreSkipped(t *testing.T) {
	f := setup(t, CaptureAll)
	f.track(t, "a.txt", "a")
	_, err := f.manager.Create("good")
	require.NoError(t, err)

	dir := filepath.Join(f.root, string(storage.Checkpoints))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0644))

	m := f.open(t, CaptureAll)
	require.Len(t, m.List(), 1)
	assert.Equal(t, "good", m.List()[0].Message)
}

func TestExportImport(t *testing.T) {
	src := setup(t, CaptureAll)
	src.track(t, "a.txt", "a\nb")
	src.write(t, "a.txt", "a\nB")
	cp, err := src.manager.Create("portable")
	require.NoError(t, err)

	var bundle bytes.Buffer
	require.NoError(t, src.manager.Export(cp.ID, &bundle))
	assert.True(t, errors.IsNotFound(src.manager.Export("nonexistent", &bytes.Buffer{})))

	dst := setup(t, CaptureAll)
	imported, err := dst.manager.Import(bytes.NewReader(bundle.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, cp.ID, imported.ID)
	assert.Equal(t, "portable", imported.Message)
	assert.Equal(t, cp.Changes, imported.Changes)
	assert.Len(t, dst.open(t, CaptureAll).List(), 1)

	_, err = dst.manager.Import(bytes.NewReader(bundle.Bytes()))
	assert.True(t, errors.IsValidation(err))

	_, err = dst.manager.Import(strings.NewReader("not a bundle"))
	assert.True(t, errors.IsMalformed(err))
}
