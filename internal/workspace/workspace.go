// internal/workspace/workspace.go
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"shadow/internal/errors"
)

// FindRoot searches upward from startDir for a directory containing marker
// (the engine storage directory, usually ".shadow").
func FindRoot(startDir, marker string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if info, err := os.Stat(filepath.Join(dir, marker)); err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.NotFound(fmt.Sprintf("no %s directory above %s", marker, startDir))
}

// Rel maps an absolute or workspace-relative path to the slash-separated
// relative key used for storage. Paths outside the workspace are rejected.
func Rel(root, path string) (string, error) {
	if path == "" {
		return "", errors.ValidationError("path cannot be empty")
	}

	absPath := path
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(root, path)
	}

	rel, err := filepath.Rel(root, filepath.Clean(absPath))
	if err != nil {
		return "", errors.ValidationError(fmt.Sprintf("path %s is not inside the workspace", path))
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", errors.ValidationError(fmt.Sprintf("path %s is not inside the workspace", path))
	}
	return rel, nil
}

// ShouldIgnore reports whether a slash-separated relative path is hidden or
// lives under a dependency or build directory.
func ShouldIgnore(rel string) bool {
	if rel == "" {
		return true
	}

	for _, part := range strings.Split(rel, "/") {
		if part == "" {
			continue
		}
		// Hidden files and directories, including the engine's own storage.
		if strings.HasPrefix(part, ".") {
			return true
		}
		switch part {
		case "node_modules", "vendor", "dist", "build":
			return true
		}
	}

	return false
}

// Walk calls fn with the relative key of every regular, non-ignored file
// under dir. Ignored directories are not descended into.
func Walk(root, dir string, fn func(rel string) error) error {
	start := dir
	if !filepath.IsAbs(start) {
		start = filepath.Join(root, dir)
	}

	return filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := Rel(root, p)
		if relErr != nil {
			// The walk root itself may be the workspace.
			if p == filepath.Clean(root) {
				return nil
			}
			return relErr
		}
		if ShouldIgnore(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return fn(rel)
	})
}
