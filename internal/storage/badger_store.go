// internal/storage/badger_store.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"shadow/internal/errors"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps records in a badger database under "<bucket>:<key>",
// optionally behind a "<namespace>/" prefix.
type BadgerStore struct {
	db        *badger.DB
	namespace string
	owned     bool
}

// OpenBadger opens (or creates) a database in dir. An empty dir opens an
// in-memory database.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
		opts.Logger = nil
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.IOError("creating database directory", err)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.IOError("opening database", err)
	}

	return &BadgerStore{db: db, owned: true}, nil
}

// NewBadgerStore wraps a database owned by the caller; Close leaves it open.
// Records are kept under namespace so several stores can share one database.
func NewBadgerStore(db *badger.DB, namespace string) *BadgerStore {
	return &BadgerStore{db: db, namespace: namespace}
}

func (s *BadgerStore) bucketPrefix(bucket Bucket) string {
	if s.namespace == "" {
		return string(bucket) + ":"
	}
	return s.namespace + "/" + string(bucket) + ":"
}

func (s *BadgerStore) makeKey(bucket Bucket, key string) []byte {
	return []byte(s.bucketPrefix(bucket) + key)
}

func (s *BadgerStore) Put(bucket Bucket, key string, v any) error {
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s/%s: %w", bucket, key, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.makeKey(bucket, key), data)
	})
	if err != nil {
		return errors.IOError(fmt.Sprintf("storing %s/%s", bucket, key), err)
	}
	return nil
}

func (s *BadgerStore) Get(bucket Bucket, key string, v any) error {
	if err := validateKey(key); err != nil {
		return err
	}

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.makeKey(bucket, key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return errors.NotFound(fmt.Sprintf("%s record not found: %s", bucket, key))
	}
	if err != nil {
		return errors.IOError(fmt.Sprintf("reading %s/%s", bucket, key), err)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return errors.MalformedRecord(fmt.Sprintf("decoding %s/%s", bucket, key), err)
	}
	return nil
}

func (s *BadgerStore) Delete(bucket Bucket, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	k := s.makeKey(bucket, key)
	err := s.db.Update(func(txn *badger.Txn) error {
		// Check if exists
		if _, err := txn.Get(k); err != nil {
			return err
		}
		return txn.Delete(k)
	})
	if err == badger.ErrKeyNotFound {
		return errors.NotFound(fmt.Sprintf("%s record not found: %s", bucket, key))
	}
	if err != nil {
		return errors.IOError(fmt.Sprintf("deleting %s/%s", bucket, key), err)
	}
	return nil
}

func (s *BadgerStore) Keys(bucket Bucket) ([]string, error) {
	prefix := []byte(s.bucketPrefix(bucket))
	var keys []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().KeyCopy(nil)), string(prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, errors.IOError(fmt.Sprintf("listing %s", bucket), err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *BadgerStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
