// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxislearn/splitengine/services/experiment/datatypes"
	"github.com/praxislearn/splitengine/services/experiment/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleExperiment(id, moduleID string, status datatypes.ExperimentStatus, createdAt time.Time) *datatypes.Experiment {
	return &datatypes.Experiment{
		ID:               id,
		ModuleID:         moduleID,
		Status:           status,
		TargetSampleSize: 100,
		CreatedAt:        createdAt,
	}
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	exp := sampleExperiment("exp-1", "mod-1", datatypes.StatusDraft, base)
	require.NoError(t, store.Create(ctx, exp))

	t.Run("round trips the aggregate", func(t *testing.T) {
		got, err := store.Get(ctx, "exp-1")
		require.NoError(t, err)
		assert.Equal(t, exp.ID, got.ID)
		assert.Equal(t, exp.ModuleID, got.ModuleID)
		assert.Equal(t, exp.Status, got.Status)
		assert.True(t, exp.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		err := store.Create(ctx, sampleExperiment("exp-1", "mod-2", datatypes.StatusDraft, base))
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.Get(ctx, "no-such-id")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, sampleExperiment("exp-1", "mod-1", datatypes.StatusDraft, base)))

	t.Run("applies the mutation and bumps the revision", func(t *testing.T) {
		updated, err := store.Update(ctx, "exp-1", func(exp *datatypes.Experiment) error {
			exp.Status = datatypes.StatusActive
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, datatypes.StatusActive, updated.Status)
		assert.Equal(t, uint64(1), updated.Revision)

		got, err := store.Get(ctx, "exp-1")
		require.NoError(t, err)
		assert.Equal(t, datatypes.StatusActive, got.Status)
	})

	t.Run("mutation error aborts without persisting", func(t *testing.T) {
		wantErr := fmt.Errorf("validation failed")
		_, err := store.Update(ctx, "exp-1", func(exp *datatypes.Experiment) error {
			exp.Status = datatypes.StatusConcluded
			return wantErr
		})
		assert.ErrorIs(t, err, wantErr)

		got, err := store.Get(ctx, "exp-1")
		require.NoError(t, err)
		assert.Equal(t, datatypes.StatusActive, got.Status)
		assert.Equal(t, uint64(1), got.Revision)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.Update(ctx, "no-such-id", func(exp *datatypes.Experiment) error { return nil })
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.Update(cancelled, "exp-1", func(exp *datatypes.Experiment) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestUpdateConcurrent(t *testing.T) {
	// Many concurrent counter increments on one aggregate: conflicts retry
	// internally and no increment is lost or doubled.
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, sampleExperiment("exp-1", "mod-1", datatypes.StatusActive, time.Now())))

	const writers = 20
	done := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			for {
				_, err := store.Update(ctx, "exp-1", func(exp *datatypes.Experiment) error {
					exp.SampleControl++
					return nil
				})
				if errors.Is(err, storage.ErrConcurrencyExhausted) {
					continue
				}
				done <- err
				return
			}
		}()
	}
	for i := 0; i < writers; i++ {
		require.NoError(t, <-done)
	}

	got, err := store.Get(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, writers, got.SampleControl)
	assert.Equal(t, uint64(writers), got.Revision)
}

func TestList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Create(ctx, sampleExperiment("exp-b", "mod-1", datatypes.StatusActive, base.Add(time.Hour))))
	require.NoError(t, store.Create(ctx, sampleExperiment("exp-a", "mod-1", datatypes.StatusConcluded, base)))
	require.NoError(t, store.Create(ctx, sampleExperiment("exp-c", "mod-2", datatypes.StatusActive, base.Add(2*time.Hour))))

	t.Run("unfiltered returns all in creation order", func(t *testing.T) {
		all, err := store.List(ctx, storage.Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "exp-a", all[0].ID)
		assert.Equal(t, "exp-b", all[1].ID)
		assert.Equal(t, "exp-c", all[2].ID)
	})

	t.Run("status filter", func(t *testing.T) {
		active, err := store.List(ctx, storage.Filter{Status: datatypes.StatusActive})
		require.NoError(t, err)
		require.Len(t, active, 2)
	})

	t.Run("module filter", func(t *testing.T) {
		mod1, err := store.List(ctx, storage.Filter{ModuleID: "mod-1"})
		require.NoError(t, err)
		require.Len(t, mod1, 2)
	})

	t.Run("combined filter", func(t *testing.T) {
		got, err := store.List(ctx, storage.Filter{Status: datatypes.StatusActive, ModuleID: "mod-1"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "exp-b", got[0].ID)
	})
}

func TestActiveByModule(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Create(ctx, sampleExperiment("exp-old", "mod-1", datatypes.StatusConcluded, base)))
	require.NoError(t, store.Create(ctx, sampleExperiment("exp-live", "mod-1", datatypes.StatusActive, base.Add(time.Hour))))

	t.Run("finds the active experiment", func(t *testing.T) {
		got, err := store.ActiveByModule(ctx, "mod-1")
		require.NoError(t, err)
		assert.Equal(t, "exp-live", got.ID)
	})

	t.Run("no active experiment for the module", func(t *testing.T) {
		_, err := store.ActiveByModule(ctx, "mod-2")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
