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

	"github.com/praxislearn/splitengine/services/experiment/datatypes"
	"github.com/praxislearn/splitengine/services/experiment/notify"
	"github.com/praxislearn/splitengine/services/experiment/observability"
	"github.com/praxislearn/splitengine/services/experiment/storage"
)

// Allocate assigns an arriving participant to an arm of the experiment.
//
// The status check, the exhaustion check, the counter increment, and the
// participant append all run inside one atomic Store.Update mutation. A
// forced ethical stop committed by a concurrent outcome submission is
// therefore visible to this call: the mutation re-reads status on every
// attempt, so an in-flight allocation can never slip past a stop.
//
// Reaching the target sample inside the mutation auto-completes the
// experiment (active -> completed) in the same commit.
func (e *Engine) Allocate(ctx context.Context, experimentID, participantRef string) (*datatypes.Participant, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Allocate")
	defer span.End()

	var assigned datatypes.VersionKey
	var enrolled, completed bool
	exp, err := e.store.Update(ctx, experimentID, func(exp *datatypes.Experiment) error {
		enrolled, completed = false, false
		if exp.Status != datatypes.StatusActive {
			return fmt.Errorf("%w: status is %s", ErrExperimentNotActive, exp.Status)
		}
		if existing := exp.FindParticipant(participantRef); existing != nil {
			// Allocation is assign-once: re-enrolment returns the original
			// assignment rather than double-counting the learner.
			assigned = existing.AssignedVersion
			return nil
		}
		if exp.SampleTotal()+1 > exp.TargetSampleSize {
			return fmt.Errorf("%w: %d of %d allocated", ErrSampleExhausted, exp.SampleTotal(), exp.TargetSampleSize)
		}

		assigned = e.chooseVersion(exp)
		now := e.clock.Now().UTC()
		exp.Participants = append(exp.Participants, datatypes.Participant{
			Ref:             participantRef,
			AssignedVersion: assigned,
			AssignedAt:      now,
			StartedAt:       now,
		})
		if assigned == datatypes.VersionControl {
			exp.SampleControl++
		} else {
			exp.SampleVariant++
		}
		enrolled = true

		if exp.SampleTotal() >= exp.TargetSampleSize {
			if err := transition(exp, datatypes.StatusCompleted); err != nil {
				return err
			}
			completedAt := now
			exp.CompletedAt = &completedAt
			completed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if enrolled {
		observability.AllocationsTotal.WithLabelValues(string(assigned)).Inc()
	}
	if completed {
		e.log.Info("experiment reached target sample",
			"experiment_id", exp.ID, "target_sample", exp.TargetSampleSize)
		e.notifier.Notify(ctx, notify.Event{
			ExperimentID: exp.ID,
			ModuleID:     exp.ModuleID,
			Kind:         "completed",
			Status:       exp.Status,
			OccurredAt:   e.clock.Now().UTC(),
		})
	}
	return exp.FindParticipant(participantRef), nil
}

// AllocateForModule is the enrolment hook: it allocates against the module's
// active experiment, or reports a skip when the module has none. A module
// without an active experiment is the normal case, not an error.
func (e *Engine) AllocateForModule(ctx context.Context, moduleID, participantRef string) (datatypes.EnrolmentResponse, error) {
	exp, err := e.store.ActiveByModule(ctx, moduleID)
	if errors.Is(err, storage.ErrNotFound) {
		return datatypes.EnrolmentResponse{Allocated: false}, nil
	}
	if err != nil {
		return datatypes.EnrolmentResponse{}, err
	}
	participant, err := e.Allocate(ctx, exp.ID, participantRef)
	if err != nil {
		// The experiment may have filled or stopped between the lookup and
		// the allocation attempt; the learner just proceeds unallocated.
		if errors.Is(err, ErrExperimentNotActive) || errors.Is(err, ErrSampleExhausted) {
			return datatypes.EnrolmentResponse{Allocated: false}, nil
		}
		return datatypes.EnrolmentResponse{}, err
	}
	return datatypes.EnrolmentResponse{
		Allocated:       true,
		ExperimentID:    exp.ID,
		AssignedVersion: participant.AssignedVersion,
	}, nil
}

// chooseVersion picks an arm per the experiment's strategy. Random
// strategies draw from the engine's seedable Bernoulli source and take no
// memory of past draws; running counts feed only the sequential strategy and
// the exhaustion check.
func (e *Engine) chooseVersion(exp *datatypes.Experiment) datatypes.VersionKey {
	switch exp.AllocationStrategy {
	case datatypes.StrategyRandom7030:
		if e.bernoulli(0.7) {
			return datatypes.VersionControl
		}
		return datatypes.VersionVariant
	case datatypes.StrategySequential:
		// First half of the target goes to control, remainder to variant,
		// determined purely by current counts.
		if exp.SampleControl < exp.TargetSampleSize/2 {
			return datatypes.VersionControl
		}
		return datatypes.VersionVariant
	default: // random_50_50
		if e.bernoulli(0.5) {
			return datatypes.VersionControl
		}
		return datatypes.VersionVariant
	}
}
