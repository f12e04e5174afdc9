// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"fmt"

	"github.com/praxislearn/splitengine/services/experiment/datatypes"
	"github.com/praxislearn/splitengine/services/experiment/notify"
)

// transitions is the complete lifecycle table. Anything absent here fails
// with ErrInvalidTransition. stopped_ethics is reachable only through the
// ethical monitor's forced stop, never through a public lifecycle action.
var transitions = map[datatypes.ExperimentStatus]map[datatypes.ExperimentStatus]bool{
	datatypes.StatusDraft: {
		datatypes.StatusActive: true,
	},
	datatypes.StatusActive: {
		datatypes.StatusPaused:        true,
		datatypes.StatusCompleted:     true,
		datatypes.StatusStoppedEthics: true,
		datatypes.StatusStoppedManual: true,
	},
	datatypes.StatusPaused: {
		datatypes.StatusActive:        true,
		datatypes.StatusStoppedEthics: true,
		datatypes.StatusStoppedManual: true,
	},
	datatypes.StatusCompleted: {
		datatypes.StatusConcluded: true,
	},
	datatypes.StatusStoppedEthics: {
		datatypes.StatusConcluded: true,
	},
	datatypes.StatusStoppedManual: {
		datatypes.StatusConcluded: true,
	},
	datatypes.StatusConcluded: {},
}

// CanTransition reports whether from -> to is in the lifecycle table.
func CanTransition(from, to datatypes.ExperimentStatus) bool {
	return transitions[from][to]
}

// transition applies from -> to on the aggregate or fails without mutating.
func transition(exp *datatypes.Experiment, to datatypes.ExperimentStatus) error {
	if !CanTransition(exp.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, exp.Status, to)
	}
	exp.Status = to
	return nil
}

// Start moves a draft experiment to active. Both versions must be populated
// and the target sample size positive.
func (e *Engine) Start(ctx context.Context, id string) (*datatypes.Experiment, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Start")
	defer span.End()

	exp, err := e.store.Update(ctx, id, func(exp *datatypes.Experiment) error {
		if exp.Status != datatypes.StatusDraft {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, exp.Status, datatypes.StatusActive)
		}
		if !exp.Control.Populated() || !exp.Variant.Populated() {
			return ErrVersionsNotPopulated
		}
		if exp.TargetSampleSize <= 0 {
			return fmt.Errorf("%w: target sample size must be positive", ErrInvalidTransition)
		}
		if err := transition(exp, datatypes.StatusActive); err != nil {
			return err
		}
		now := e.clock.Now().UTC()
		exp.StartedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("experiment started", "experiment_id", exp.ID, "module_id", exp.ModuleID)
	e.notifier.Notify(ctx, notify.Event{
		ExperimentID: exp.ID,
		ModuleID:     exp.ModuleID,
		Kind:         "started",
		Status:       exp.Status,
		OccurredAt:   e.clock.Now().UTC(),
	})
	return exp, nil
}

// Pause suspends an active experiment. Allocation refuses while paused.
func (e *Engine) Pause(ctx context.Context, id string) (*datatypes.Experiment, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Pause")
	defer span.End()

	exp, err := e.store.Update(ctx, id, func(exp *datatypes.Experiment) error {
		if err := transition(exp, datatypes.StatusPaused); err != nil {
			return err
		}
		now := e.clock.Now().UTC()
		exp.PausedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("experiment paused", "experiment_id", exp.ID)
	e.notifier.Notify(ctx, notify.Event{
		ExperimentID: exp.ID,
		ModuleID:     exp.ModuleID,
		Kind:         "paused",
		Status:       exp.Status,
		OccurredAt:   e.clock.Now().UTC(),
	})
	return exp, nil
}

// Resume reactivates a paused experiment. The ethical monitor's
// dissatisfaction window restarts from this point: only completions after
// the resume count toward the pattern rule.
func (e *Engine) Resume(ctx context.Context, id string) (*datatypes.Experiment, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Resume")
	defer span.End()

	exp, err := e.store.Update(ctx, id, func(exp *datatypes.Experiment) error {
		if exp.Status != datatypes.StatusPaused {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, exp.Status, datatypes.StatusActive)
		}
		if err := transition(exp, datatypes.StatusActive); err != nil {
			return err
		}
		now := e.clock.Now().UTC()
		exp.ResumedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("experiment resumed", "experiment_id", exp.ID)
	e.notifier.Notify(ctx, notify.Event{
		ExperimentID: exp.ID,
		ModuleID:     exp.ModuleID,
		Kind:         "resumed",
		Status:       exp.Status,
		OccurredAt:   e.clock.Now().UTC(),
	})
	return exp, nil
}

// Stop halts an experiment by explicit human action. A reason is required.
func (e *Engine) Stop(ctx context.Context, id, reason string) (*datatypes.Experiment, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Stop")
	defer span.End()

	if reason == "" {
		return nil, ErrStopReasonRequired
	}
	exp, err := e.store.Update(ctx, id, func(exp *datatypes.Experiment) error {
		if err := transition(exp, datatypes.StatusStoppedManual); err != nil {
			return err
		}
		now := e.clock.Now().UTC()
		exp.StoppedAt = &now
		exp.StopReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("experiment stopped manually", "experiment_id", exp.ID, "reason", reason)
	e.notifier.Notify(ctx, notify.Event{
		ExperimentID: exp.ID,
		ModuleID:     exp.ModuleID,
		Kind:         "stopped_manual",
		Status:       exp.Status,
		Detail:       reason,
		OccurredAt:   e.clock.Now().UTC(),
	})
	return exp, nil
}
