// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/showtrail/internal/logging"
	"github.com/tomtom215/showtrail/internal/metrics"
)

const changesTopic = "store.changes"

// Options configures a BadgerStore.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	InMemory   bool
	SyncWrites bool

	// TxnMaxRetries bounds conflict retries per transaction. Defaults to 100.
	TxnMaxRetries int
}

// BadgerStore implements Store on BadgerDB. Transactions use Badger's
// optimistic concurrency control: a commit that raced with another writer
// of the same key fails with badger.ErrConflict and is re-run against the
// fresh value. Committed mutations are fanned out to subscribers through an
// in-process watermill channel.
type BadgerStore struct {
	db         *badger.DB
	changes    *gochannel.GoChannel
	maxRetries int
	closed     atomic.Bool
}

// OpenBadger opens (or creates) the database described by opts.
func OpenBadger(opts Options) (*BadgerStore, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithMemTableSize(16 << 20)
	} else {
		if opts.Path == "" {
			return nil, fmt.Errorf("open store: path is required for on-disk mode")
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts.SyncWrites = opts.SyncWrites
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	maxRetries := opts.TxnMaxRetries
	if maxRetries <= 0 {
		maxRetries = 100
	}

	s := &BadgerStore{
		db: db,
		changes: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			watermill.NewSlogLogger(logging.NewSlogLogger()),
		),
		maxRetries: maxRetries,
	}

	logging.Info().
		Str("path", opts.Path).
		Bool("in_memory", opts.InMemory).
		Bool("sync_writes", opts.SyncWrites).
		Msg("Document store opened")
	return s, nil
}

// Get returns the document at path.
func (s *BadgerStore) Get(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	value, err := s.get(ctx, path)
	metrics.RecordStoreOperation("get", time.Since(start), ignoreNotFound(err))
	return value, err
}

func (s *BadgerStore) get(ctx context.Context, path string) ([]byte, error) {
	if err := s.check(ctx, path); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		v, err := readValue(txn, []byte(path))
		value = v
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	if value == nil {
		return nil, ErrNotFound
	}
	return value, nil
}

// Set overwrites the document at path.
func (s *BadgerStore) Set(ctx context.Context, path string, value []byte) error {
	start := time.Now()
	err := s.set(ctx, path, value)
	metrics.RecordStoreOperation("set", time.Since(start), err)
	return err
}

func (s *BadgerStore) set(ctx context.Context, path string, value []byte) error {
	if err := s.check(ctx, path); err != nil {
		return err
	}
	if value == nil {
		return s.remove(ctx, path)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(path), value)
	}); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	s.publish(Change{Path: path, Kind: ChangeSet, Value: value})
	return nil
}

// Update merges fields into the JSON object at path.
func (s *BadgerStore) Update(ctx context.Context, path string, fields map[string]any) error {
	start := time.Now()
	_, err := s.transaction(ctx, path, func(current []byte) ([]byte, error) {
		doc := make(map[string]any, len(fields))
		if current != nil {
			if err := json.Unmarshal(current, &doc); err != nil {
				return nil, fmt.Errorf("update %s: existing value is not an object: %w", path, err)
			}
		}
		for k, v := range fields {
			if v == nil {
				delete(doc, k)
				continue
			}
			doc[k] = v
		}
		return json.Marshal(doc)
	})
	metrics.RecordStoreOperation("update", time.Since(start), err)
	return err
}

// Remove deletes the document at path. Removing an absent path is not an error.
func (s *BadgerStore) Remove(ctx context.Context, path string) error {
	start := time.Now()
	err := s.remove(ctx, path)
	metrics.RecordStoreOperation("remove", time.Since(start), err)
	return err
}

func (s *BadgerStore) remove(ctx context.Context, path string) error {
	if err := s.check(ctx, path); err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(path))
	}); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	s.publish(Change{Path: path, Kind: ChangeRemove})
	return nil
}

// Transaction atomically replaces the value at path with fn(current).
func (s *BadgerStore) Transaction(ctx context.Context, path string, fn TxnFunc) (TxnResult, error) {
	start := time.Now()
	res, err := s.transaction(ctx, path, fn)
	metrics.RecordStoreOperation("transaction", time.Since(start), err)
	return res, err
}

func (s *BadgerStore) transaction(ctx context.Context, path string, fn TxnFunc) (TxnResult, error) {
	if err := s.check(ctx, path); err != nil {
		return TxnResult{}, err
	}
	key := []byte(path)

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return TxnResult{}, err
		}

		var result TxnResult
		var change *Change
		err := s.db.Update(func(txn *badger.Txn) error {
			current, err := readValue(txn, key)
			if err != nil {
				return err
			}
			next, err := fn(current)
			if errors.Is(err, ErrTxnAborted) {
				result = TxnResult{Committed: false, Value: current}
				return nil
			}
			if err != nil {
				return err
			}
			if next == nil {
				if current != nil {
					if err := txn.Delete(key); err != nil {
						return err
					}
					change = &Change{Path: path, Kind: ChangeRemove}
				}
				result = TxnResult{Committed: true}
				return nil
			}
			if err := txn.Set(key, next); err != nil {
				return err
			}
			change = &Change{Path: path, Kind: ChangeSet, Value: next}
			result = TxnResult{Committed: true, Value: next}
			return nil
		})

		if errors.Is(err, badger.ErrConflict) {
			metrics.StoreTxnConflicts.Inc()
			backoff(attempt)
			continue
		}
		if err != nil {
			return TxnResult{}, fmt.Errorf("transaction %s: %w", path, err)
		}
		if change != nil {
			s.publish(*change)
		}
		return result, nil
	}

	return TxnResult{}, fmt.Errorf("transaction %s: %w", path, ErrConflictRetriesExhausted)
}

// List returns all documents below prefix.
func (s *BadgerStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	start := time.Now()
	entries, err := s.list(ctx, prefix)
	metrics.RecordStoreOperation("list", time.Since(start), err)
	return entries, err
}

func (s *BadgerStore) list(ctx context.Context, prefix string) ([]Entry, error) {
	if err := s.check(ctx, prefix); err != nil {
		return nil, err
	}
	p := []byte(childPrefix(prefix))

	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			entries = append(entries, Entry{Path: string(item.KeyCopy(nil)), Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return entries, nil
}

// Subscribe streams changes below prefix to fn on a dedicated goroutine.
func (s *BadgerStore) Subscribe(ctx context.Context, prefix string, fn func(Change)) (func(), error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	subCtx, cancel := context.WithCancel(ctx)
	messages, err := s.changes.Subscribe(subCtx, changesTopic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", prefix, err)
	}

	go func() {
		for msg := range messages {
			path := msg.Metadata.Get("path")
			if Under(path, prefix) {
				change := Change{Path: path, Kind: ChangeKind(msg.Metadata.Get("kind"))}
				if change.Kind == ChangeSet {
					change.Value = msg.Payload
				}
				fn(change)
			}
			msg.Ack()
		}
	}()

	return cancel, nil
}

// RunGC runs value-log garbage collection until nothing is left to rewrite.
func (s *BadgerStore) RunGC(discardRatio float64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	for {
		err := s.db.RunValueLogGC(discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close shuts down subscriptions and the database.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.changes.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close store change feed")
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	logging.Info().Msg("Document store closed")
	return nil
}

func (s *BadgerStore) check(ctx context.Context, path string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ValidatePath(path)
}

func (s *BadgerStore) publish(c Change) {
	msg := message.NewMessage(watermill.NewUUID(), c.Value)
	msg.Metadata.Set("path", c.Path)
	msg.Metadata.Set("kind", string(c.Kind))
	if err := s.changes.Publish(changesTopic, msg); err != nil {
		logging.Debug().Err(err).Str("path", c.Path).Msg("Change feed publish skipped")
	}
}

func readValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// backoff sleeps a short jittered interval that grows with attempt.
func backoff(attempt int) {
	ceiling := time.Duration(attempt+1) * 200 * time.Microsecond
	if ceiling > 20*time.Millisecond {
		ceiling = 20 * time.Millisecond
	}
	time.Sleep(time.Duration(rand.Int64N(int64(ceiling)) + 1))
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
