package storage

import (
	"path"
	"strings"

	"shadow/internal/errors"
)

// Bucket names one record family. Each bucket maps to a directory under the
// engine root (DirStore) or a key prefix (BadgerStore).
type Bucket string

const (
	Snapshots   Bucket = "snapshots"
	Changes     Bucket = "changes"
	Checkpoints Bucket = "checkpoints"
)

// Store persists one JSON record per key. Get and Delete report a missing key
// with errors.NotFound and an undecodable record with errors.MalformedRecord.
type Store interface {
	Put(bucket Bucket, key string, v any) error
	Get(bucket Bucket, key string, v any) error
	Delete(bucket Bucket, key string) error
	Keys(bucket Bucket) ([]string, error)
	Close() error
}

// validateKey accepts slash-separated relative keys that stay inside the bucket.
func validateKey(key string) error {
	if key == "" {
		return errors.ValidationError("record key cannot be empty")
	}
	if strings.HasPrefix(key, "/") || path.Clean(key) != key || key == ".." || strings.HasPrefix(key, "../") {
		return errors.ValidationError("invalid record key: " + key)
	}
	return nil
}
