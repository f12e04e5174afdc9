// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package badgerstore implements the storage.Store contract on BadgerDB.
//
// Each experiment aggregate is one JSON document under "experiment/<id>".
// Badger transactions read the document before writing it back, so the
// engine's check-then-act sequences (sample exhaustion, forced ethical stop)
// get serializable conflict detection for free: a concurrent commit to the
// same key surfaces as badger.ErrConflict and drives the bounded retry loop.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/praxislearn/splitengine/services/experiment/datatypes"
	"github.com/praxislearn/splitengine/services/experiment/storage"
)

const keyPrefix = "experiment/"

// maxUpdateAttempts bounds the optimistic retry loop before the store gives
// up with storage.ErrConcurrencyExhausted.
const maxUpdateAttempts = 3

// Config holds configuration for a badger-backed experiment store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Used in tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. If nil, that output
	// is discarded.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: durable, synchronous writes.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests: no disk I/O.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
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

// Store is the BadgerDB-backed experiment store.
type Store struct {
	db *badger.DB
}

// Open creates the data directory if needed and opens the store.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badgerstore: path is required unless InMemory is set")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(id string) []byte {
	return []byte(keyPrefix + id)
}

// Create persists a new experiment, failing if the id already exists.
func (s *Store) Create(ctx context.Context, exp *datatypes.Experiment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("failed to encode experiment: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key(exp.ID))
		if err == nil {
			return storage.ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key(exp.ID), payload)
	})
}

// Get returns the experiment by id.
func (s *Store) Get(ctx context.Context, id string) (*datatypes.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var exp datatypes.Experiment
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &exp)
		})
	})
	if err != nil {
		return nil, err
	}
	return &exp, nil
}

// List returns experiments matching the filter, ordered by creation time.
// Experiment counts are small (one per module under test at most), so a
// prefix scan is the right tool; there is no secondary index to drift.
func (s *Store) List(ctx context.Context, filter storage.Filter) ([]*datatypes.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*datatypes.Experiment
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var exp datatypes.Experiment
				if err := json.Unmarshal(val, &exp); err != nil {
					return err
				}
				if filter.Status != "" && exp.Status != filter.Status {
					return nil
				}
				if filter.ModuleID != "" && exp.ModuleID != filter.ModuleID {
					return nil
				}
				out = append(out, &exp)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return strings.Compare(out[i].ID, out[j].ID) < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ActiveByModule returns the active experiment for a module, if any.
func (s *Store) ActiveByModule(ctx context.Context, moduleID string) (*datatypes.Experiment, error) {
	matches, err := s.List(ctx, storage.Filter{Status: datatypes.StatusActive, ModuleID: moduleID})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, storage.ErrNotFound
	}
	return matches[0], nil
}

// Update atomically applies mutate to the stored aggregate, retrying the
// whole read-mutate-write on transaction conflict.
func (s *Store) Update(ctx context.Context, id string, mutate func(*datatypes.Experiment) error) (*datatypes.Experiment, error) {
	var updated *datatypes.Experiment
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			if err != nil {
				return err
			}
			var exp datatypes.Experiment
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &exp)
			}); err != nil {
				return err
			}
			if err := mutate(&exp); err != nil {
				return err
			}
			exp.Revision++
			payload, err := json.Marshal(&exp)
			if err != nil {
				return fmt.Errorf("failed to encode experiment: %w", err)
			}
			if err := txn.Set(key(id), payload); err != nil {
				return err
			}
			updated = &exp
			return nil
		})
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return nil, err
		}
	}
	return nil, storage.ErrConcurrencyExhausted
}
