// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage defines the persistence contract for experiment aggregates.
//
// The engine never touches a database directly; it goes through Store. Any
// implementation must provide atomic conditional updates on the aggregate:
// Update loads the record, applies the caller's mutation, and commits only if
// the record was not concurrently modified, retrying a bounded number of
// times on conflict. This is what makes the allocation engine's sample
// exhaustion check and the ethical monitor's forced stop race-free.
package storage

import (
	"context"
	"errors"

	"github.com/praxislearn/splitengine/services/experiment/datatypes"
)

var (
	// ErrNotFound indicates no experiment exists under the given id.
	ErrNotFound = errors.New("experiment not found")

	// ErrAlreadyExists indicates a create collided with an existing id.
	ErrAlreadyExists = errors.New("experiment already exists")

	// ErrConcurrencyExhausted indicates the bounded optimistic retry loop
	// gave up. Transient: the caller may retry the whole operation.
	ErrConcurrencyExhausted = errors.New("concurrent updates exhausted retries")
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status   datatypes.ExperimentStatus
	ModuleID string
}

// Store is the aggregate persistence contract.
type Store interface {
	// Create persists a new experiment. Fails with ErrAlreadyExists if the
	// id is taken.
	Create(ctx context.Context, exp *datatypes.Experiment) error

	// Get returns the experiment by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*datatypes.Experiment, error)

	// List returns experiments matching the filter, ordered by creation time.
	List(ctx context.Context, filter Filter) ([]*datatypes.Experiment, error)

	// ActiveByModule returns the active experiment for a module, or
	// ErrNotFound when the module has none. At most one experiment per
	// module is active at a time.
	ActiveByModule(ctx context.Context, moduleID string) (*datatypes.Experiment, error)

	// Update atomically applies mutate to the stored aggregate. The
	// mutation runs against a fresh read on every attempt; the commit
	// succeeds only if no concurrent writer got there first, otherwise the
	// whole read-mutate-write is retried up to the implementation's bound
	// before ErrConcurrencyExhausted. An error returned by mutate aborts
	// immediately without retry and leaves the record untouched.
	Update(ctx context.Context, id string, mutate func(*datatypes.Experiment) error) (*datatypes.Experiment, error)

	// Close releases underlying resources.
	Close() error
}
