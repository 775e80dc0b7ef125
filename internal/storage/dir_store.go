package storage

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"shadow/internal/errors"
)

const recordExt = ".json"

// DirStore keeps every record as a pretty-printed JSON file at
// <root>/<bucket>/<key>.json. Keys containing slashes become subdirectories.
type DirStore struct {
	root string
}

func NewDirStore(root string) (*DirStore, error) {
	if root == "" {
		return nil, fmt.Errorf("root path cannot be empty")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.IOError("creating storage directory", err)
	}
	return &DirStore{root: root}, nil
}

func (s *DirStore) Root() string {
	return s.root
}

func (s *DirStore) recordPath(bucket Bucket, key string) string {
	return filepath.Join(s.root, string(bucket), filepath.FromSlash(key)+recordExt)
}

func (s *DirStore) Put(bucket Bucket, key string, v any) error {
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s/%s: %w", bucket, key, err)
	}

	path := s.recordPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.IOError(fmt.Sprintf("creating directory for %s/%s", bucket, key), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.IOError(fmt.Sprintf("writing %s/%s", bucket, key), err)
	}
	return nil
}

func (s *DirStore) Get(bucket Bucket, key string, v any) error {
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := os.ReadFile(s.recordPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound(fmt.Sprintf("%s record not found: %s", bucket, key))
		}
		return errors.IOError(fmt.Sprintf("reading %s/%s", bucket, key), err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return errors.MalformedRecord(fmt.Sprintf("decoding %s/%s", bucket, key), err)
	}
	return nil
}

func (s *DirStore) Delete(bucket Bucket, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := os.Remove(s.recordPath(bucket, key)); err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound(fmt.Sprintf("%s record not found: %s", bucket, key))
		}
		return errors.IOError(fmt.Sprintf("removing %s/%s", bucket, key), err)
	}
	return nil
}

// Keys lists every record key in a bucket, sorted.
func (s *DirStore) Keys(bucket Bucket) ([]string, error) {
	dir := filepath.Join(s.root, string(bucket))
	var keys []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), recordExt) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(strings.TrimSuffix(rel, recordExt)))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.IOError(fmt.Sprintf("listing %s", bucket), err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *DirStore) Close() error {
	return nil
}
