// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxislearn/splitengine/services/experiment/datatypes"
	"github.com/praxislearn/splitengine/services/experiment/observability"
	"github.com/praxislearn/splitengine/services/experiment/storage"
)

// allocationsCounted reads the allocation counter across both arms. Counters
// are process-global, so tests compare deltas rather than absolute values.
func allocationsCounted() float64 {
	return testutil.ToFloat64(observability.AllocationsTotal.WithLabelValues(string(datatypes.VersionControl))) +
		testutil.ToFloat64(observability.AllocationsTotal.WithLabelValues(string(datatypes.VersionVariant)))
}

// allocateAll enrols n distinct participants, retrying transient conflicts.
func allocateAll(t *testing.T, env *testEnv, expID string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		_, err := env.eng.Allocate(ctx, expID, fmt.Sprintf("learner-%04d", i))
		require.NoError(t, err)
	}
}

func TestAllocateBalance(t *testing.T) {
	t.Run("random_50_50 splits evenly over a large sample", func(t *testing.T) {
		env := newTestEngine(t, 42)
		exp := createActive(t, env, 2000)
		allocateAll(t, env, exp.ID, 2000)

		got, err := env.eng.Get(context.Background(), exp.ID)
		require.NoError(t, err)
		assert.Equal(t, 2000, got.SampleTotal())
		// 3 sigma on 2000 Bernoulli(0.5) draws is about 67.
		assert.InDelta(t, 1000, got.SampleControl, 70)
	})

	t.Run("random_70_30 favors the control", func(t *testing.T) {
		env := newTestEngine(t, 42)
		req := testCreateRequest(2000)
		req.AllocationStrategy = datatypes.StrategyRandom7030
		ctx := context.Background()
		exp, err := env.eng.Create(ctx, req)
		require.NoError(t, err)
		_, err = env.eng.Start(ctx, exp.ID)
		require.NoError(t, err)
		allocateAll(t, env, exp.ID, 2000)

		got, err := env.eng.Get(ctx, exp.ID)
		require.NoError(t, err)
		assert.InDelta(t, 1400, got.SampleControl, 70)
	})

	t.Run("sequential fills control first", func(t *testing.T) {
		env := newTestEngine(t, 1)
		req := testCreateRequest(10)
		req.AllocationStrategy = datatypes.StrategySequential
		ctx := context.Background()
		exp, err := env.eng.Create(ctx, req)
		require.NoError(t, err)
		_, err = env.eng.Start(ctx, exp.ID)
		require.NoError(t, err)

		for i := 0; i < 10; i++ {
			p, err := env.eng.Allocate(ctx, exp.ID, fmt.Sprintf("learner-%d", i))
			require.NoError(t, err)
			want := datatypes.VersionControl
			if i >= 5 {
				want = datatypes.VersionVariant
			}
			assert.Equal(t, want, p.AssignedVersion, "participant %d", i)
		}
	})
}

func TestAllocateIdempotent(t *testing.T) {
	env := newTestEngine(t, 1)
	exp := createActive(t, env, 10)
	ctx := context.Background()
	before := allocationsCounted()

	first, err := env.eng.Allocate(ctx, exp.ID, "learner-1")
	require.NoError(t, err)
	again, err := env.eng.Allocate(ctx, exp.ID, "learner-1")
	require.NoError(t, err)
	assert.Equal(t, first.AssignedVersion, again.AssignedVersion)

	got, err := env.eng.Get(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SampleTotal())
	assert.Len(t, got.Participants, 1)
	assert.Equal(t, before+1, allocationsCounted(),
		"a re-enrolment does not count as a new allocation")
}

func TestAllocateExhaustion(t *testing.T) {
	env := newTestEngine(t, 1)
	exp := createActive(t, env, 3)
	ctx := context.Background()
	allocateAll(t, env, exp.ID, 3)

	t.Run("target reached auto-completes in the same commit", func(t *testing.T) {
		got, err := env.eng.Get(ctx, exp.ID)
		require.NoError(t, err)
		assert.Equal(t, datatypes.StatusCompleted, got.Status)
		require.NotNil(t, got.CompletedAt)
		assert.Contains(t, env.notifier.kinds(), "completed")
	})

	t.Run("further enrolments are refused", func(t *testing.T) {
		_, err := env.eng.Allocate(ctx, exp.ID, "learner-late")
		assert.ErrorIs(t, err, ErrExperimentNotActive)
	})
}

// TestAllocateConcurrentCap hammers one experiment from many goroutines and
// verifies the sample never exceeds the target, with every participant counted
// at most once.
func TestAllocateConcurrentCap(t *testing.T) {
	env := newTestEngine(t, 7)
	exp := createActive(t, env, 40)
	ctx := context.Background()

	const attempts = 120
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := fmt.Sprintf("learner-%03d", i)
			for {
				_, err := env.eng.Allocate(ctx, exp.ID, ref)
				if errors.Is(err, storage.ErrConcurrencyExhausted) {
					continue
				}
				errs[i] = err
				return
			}
		}(i)
	}
	wg.Wait()

	allocated := 0
	for _, err := range errs {
		if err == nil {
			allocated++
		} else {
			require.True(t,
				errors.Is(err, ErrSampleExhausted) || errors.Is(err, ErrExperimentNotActive),
				"unexpected error: %v", err)
		}
	}
	assert.Equal(t, 40, allocated)

	got, err := env.eng.Get(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.SampleTotal())
	assert.Len(t, got.Participants, 40)
	assert.Equal(t, datatypes.StatusCompleted, got.Status)
}

func TestAllocateForModule(t *testing.T) {
	ctx := context.Background()

	t.Run("module without an active experiment is a skip", func(t *testing.T) {
		env := newTestEngine(t, 1)
		resp, err := env.eng.AllocateForModule(ctx, "mod-unknown", "learner-1")
		require.NoError(t, err)
		assert.False(t, resp.Allocated)
		assert.Empty(t, resp.ExperimentID)
	})

	t.Run("draft experiment does not allocate", func(t *testing.T) {
		env := newTestEngine(t, 1)
		_, err := env.eng.Create(ctx, testCreateRequest(10))
		require.NoError(t, err)
		resp, err := env.eng.AllocateForModule(ctx, "mod-fractions-101", "learner-1")
		require.NoError(t, err)
		assert.False(t, resp.Allocated)
	})

	t.Run("active experiment allocates", func(t *testing.T) {
		env := newTestEngine(t, 1)
		exp := createActive(t, env, 10)
		resp, err := env.eng.AllocateForModule(ctx, "mod-fractions-101", "learner-1")
		require.NoError(t, err)
		assert.True(t, resp.Allocated)
		assert.Equal(t, exp.ID, resp.ExperimentID)
		assert.Contains(t, []datatypes.VersionKey{datatypes.VersionControl, datatypes.VersionVariant}, resp.AssignedVersion)
	})

	t.Run("full experiment is a skip, not an error", func(t *testing.T) {
		env := newTestEngine(t, 1)
		exp := createActive(t, env, 1)
		allocateAll(t, env, exp.ID, 1)
		resp, err := env.eng.AllocateForModule(ctx, "mod-fractions-101", "learner-late")
		require.NoError(t, err)
		assert.False(t, resp.Allocated)
	})
}
