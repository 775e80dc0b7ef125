package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"shadow/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRel(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"relative", "a.txt", "a.txt", false},
		{"nested", "dir/sub/a.txt", "dir/sub/a.txt", false},
		{"absolute inside", filepath.Join(root, "dir", "a.txt"), "dir/a.txt", false},
		{"cleaned", "dir/../b.txt", "b.txt", false},
		{"escapes", "../outside.txt", "", true},
		{"absolute outside", filepath.Join(filepath.Dir(root), "x.txt"), "", true},
		{"workspace itself", root, "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rel(root, tt.path)
			if tt.wantErr {
				assert.True(t, errors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShouldIgnore(t *testing.T) {
	assert.True(t, ShouldIgnore(".shadow/main/snapshots/a.txt.json"))
	assert.True(t, ShouldIgnore("web/node_modules/x.js"))
	assert.True(t, ShouldIgnore("dir/.hidden"))
	assert.True(t, ShouldIgnore(""))
	assert.False(t, ShouldIgnore("src/main.go"))
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"a.txt", "src/b.go", ".shadow/main/x.json", "vendor/c.go", "src/.env"} {
		abs := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
		require.NoError(t, os.WriteFile(abs, []byte("x"), 0644))
	}

	var seen []string
	require.NoError(t, Walk(root, root, func(rel string) error {
		seen = append(seen, rel)
		return nil
	}))
	sort.Strings(seen)
	assert.Equal(t, []string{"a.txt", "src/b.go"}, seen)

	seen = nil
	require.NoError(t, Walk(root, "src", func(rel string) error {
		seen = append(seen, rel)
		return nil
	}))
	assert.Equal(t, []string{"src/b.go"}, seen)
}

func TestFindRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".shadow"), 0755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	found, err := FindRoot(nested, ".shadow")
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(found)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = FindRoot(t.TempDir(), ".no-such-marker")
	assert.True(t, errors.IsNotFound(err))
}
