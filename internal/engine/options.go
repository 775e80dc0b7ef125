package engine

import (
	"shadow/internal/config"
	"shadow/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const (
	TypeMain    = "main"
	TypeWorking = "working"
)

type options struct {
	engineType string
	root       string
	config     *config.Config
	logger     *zap.Logger
	store      storage.Store
	db         *badger.DB
}

// Option configures an Engine.
type Option func(*options)

// WithType sets the instance type tag. It also names the default storage
// directory, so "main" and "working" engines never share records.
func WithType(engineType string) Option {
	return func(o *options) {
		o.engineType = engineType
	}
}

// WithRoot overrides the private storage directory of the instance.
func WithRoot(root string) Option {
	return func(o *options) {
		o.root = root
	}
}

func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStore supplies the record store. The engine does not close a store it
// was given.
func WithStore(store storage.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithBadgerDB keeps the instance's records in a database the caller already
// holds open, so several instances can share one. Each instance keeps its
// records under its type tag. Close leaves the database open.
func WithBadgerDB(db *badger.DB) Option {
	return func(o *options) {
		o.db = db
	}
}
