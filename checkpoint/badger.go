package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/kshedden/sustain/sustainlib"
)

// keyPrefix namespaces checkpoint keys in the database.
const keyPrefix = "sustain/checkpoint/"

// Config configures a BadgerStore.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal messages.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns the configuration of a persistent store at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns the configuration of a store without persistence.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
	}
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore is a sustainlib.Store backed by BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

var _ sustainlib.Store = (*BadgerStore)(nil)

// OpenBadger opens the database described by cfg.
func OpenBadger(cfg Config) (*BadgerStore, error) {

	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("checkpoint: path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

// Close closes the database.
func (bs *BadgerStore) Close() error {
	return bs.db.Close()
}

func dbKey(key sustainlib.Key) []byte {
	return []byte(keyPrefix + key.String())
}

// Save implements sustainlib.Store.
func (bs *BadgerStore) Save(ctx context.Context, key sustainlib.Key, cp *sustainlib.Checkpoint) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := marshal(cp)
	if err != nil {
		return err
	}

	err = bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dbKey(key), b)
	})
	if err != nil {
		return fmt.Errorf("write checkpoint %s: %w", key, err)
	}

	return nil
}

// Load implements sustainlib.Store.
func (bs *BadgerStore) Load(ctx context.Context, key sustainlib.Key) (*sustainlib.Checkpoint, bool, error) {

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var b []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(key))
		if err != nil {
			return err
		}
		b, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read checkpoint %s: %w", key, err)
	}

	cp, err := Decode(bytes.NewReader(b))
	if err != nil {
		return nil, false, err
	}

	return cp, true, nil
}

// Keys returns the names of all stored checkpoints.
func (bs *BadgerStore) Keys() ([]string, error) {

	var keys []string
	err := bs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	return keys, nil
}
