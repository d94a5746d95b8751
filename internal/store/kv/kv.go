// Package kv persists plan history in BadgerDB.
//
// Entries are stored under history/<write type>/<hash as 16 hex digits>,
// so a prefix scan returns them grouped by write type in hash order. The hash
// layout version lives under meta/hash_version.
package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/horizon/internal/history"
	"github.com/roach88/horizon/internal/ir"
)

const (
	historyPrefix  = "history/"
	hashVersionKey = "meta/hash_version"
)

// Config holds configuration for a Badger-backed store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is
	// true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. If nil, it is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns a durable configuration rooted at path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Store keeps history entries in BadgerDB.
//
// Thread-safety: safe for concurrent use.
type Store struct {
	db *badger.DB
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Open opens a store with cfg, creating the directory if needed.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	s := &Store{db: db}
	if err := s.checkHashVersion(ir.HashVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("check hash version: %w", err)
	}
	return s, nil
}

// checkHashVersion drops stored entries written under another hash layout.
func (s *Store) checkHashVersion(want string) error {
	var got string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(hashVersionKey))
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		got = string(v)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return err
	case got == want:
		return nil
	default:
		if err := s.db.DropPrefix([]byte(historyPrefix)); err != nil {
			return err
		}
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(hashVersionKey), []byte(want))
	})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func entryKey(writeType string, hash uint64) []byte {
	return fmt.Appendf(nil, "%s%s/%016x", historyPrefix, writeType, hash)
}

// parseKey splits a key into write type and hash. Write types may contain
// slashes; the hash never does.
func parseKey(key []byte) (string, uint64, error) {
	rest, ok := strings.CutPrefix(string(key), historyPrefix)
	if !ok {
		return "", 0, fmt.Errorf("key %q outside history", key)
	}
	i := strings.LastIndexByte(rest, '/')
	if i <= 0 {
		return "", 0, fmt.Errorf("malformed key %q", key)
	}
	hash, err := strconv.ParseUint(rest[i+1:], 16, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed key %q: %w", key, err)
	}
	return rest[:i], hash, nil
}

// SaveHistory writes snap. Entries already stored are kept. Large
// snapshots are split across transactions.
func (s *Store) SaveHistory(ctx context.Context, snap history.Snapshot) error {
	txn := s.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	for _, wt := range snap.WriteTypes() {
		for hash, value := range snap[wt] {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := entryKey(wt, hash)
			_, err := txn.Get(key)
			switch {
			case err == nil:
				continue
			case !errors.Is(err, badger.ErrKeyNotFound):
				return fmt.Errorf("save history: %w", err)
			}

			err = txn.Set(key, value)
			if errors.Is(err, badger.ErrTxnTooBig) {
				if err := txn.Commit(); err != nil {
					return fmt.Errorf("save history: %w", err)
				}
				txn = s.db.NewTransaction(true)
				err = txn.Set(key, value)
			}
			if err != nil {
				return fmt.Errorf("save history: %w", err)
			}
		}
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// LoadHistory reads every stored entry.
func (s *Store) LoadHistory(ctx context.Context) (history.Snapshot, error) {
	snap := history.Snapshot{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(historyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			wt, hash, err := parseKey(item.Key())
			if err != nil {
				return err
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if snap[wt] == nil {
				snap[wt] = make(map[uint64][]byte)
			}
			snap[wt][hash] = value
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return snap, nil
}

// Len counts stored entries without reading values.
func (s *Store) Len() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(historyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
