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
	"github.com/praxislearn/splitengine/services/experiment/observability"
)

// Conclude finalizes an experiment with a winner choice. The choice may
// ratify the analyzer's winner or override it; notes carry the human
// justification either way. Permitted only from completed, stopped_ethics,
// or stopped_manual.
func (e *Engine) Conclude(ctx context.Context, id string, winner datatypes.Winner, notes string) (*datatypes.Experiment, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Conclude")
	defer span.End()

	exp, err := e.store.Update(ctx, id, func(exp *datatypes.Experiment) error {
		if err := transition(exp, datatypes.StatusConcluded); err != nil {
			return err
		}
		now := e.clock.Now().UTC()
		exp.Winner = winner
		exp.ConclusionNotes = notes
		exp.ConcludedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("experiment concluded",
		"experiment_id", exp.ID, "winner", winner)
	e.notifier.Notify(ctx, notify.Event{
		ExperimentID: exp.ID,
		ModuleID:     exp.ModuleID,
		Kind:         "concluded",
		Status:       exp.Status,
		Detail:       string(winner),
		OccurredAt:   e.clock.Now().UTC(),
	})
	return exp, nil
}

// Deploy hands the winning version to the external content system.
// Deployment is never automatic: it is a separately authorized action even
// after conclusion, permitted only when the experiment is concluded with a
// real winner that has not been deployed yet.
//
// The deployed flag is set only after the content system acknowledges the
// request, so a failed deploy leaves the experiment deployable and the
// caller retries.
//
// Concurrent Deploy calls are serialized under deployMu: the loser of the
// race re-reads the deployed flag and is rejected before its external call,
// so the content system sees at most one request per experiment.
func (e *Engine) Deploy(ctx context.Context, id string) (*datatypes.Experiment, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Deploy")
	defer span.End()

	e.deployMu.Lock()
	defer e.deployMu.Unlock()

	exp, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := deployable(exp); err != nil {
		return nil, err
	}

	winning := exp.Control
	if exp.Winner == datatypes.WinnerVariant {
		winning = exp.Variant
	}
	deployErr := e.deployer.Deploy(ctx, notify.DeploymentRequest{
		ExperimentID: exp.ID,
		ModuleID:     exp.ModuleID,
		Winner:       exp.Winner,
		Version:      winning,
		RequestedAt:  e.clock.Now().UTC(),
	})
	if deployErr != nil {
		observability.DeploymentsTotal.WithLabelValues("failed").Inc()
		e.log.Error("deployment request failed",
			"experiment_id", exp.ID, "winner", exp.Winner, "error", deployErr)
		return nil, fmt.Errorf("deployment not acknowledged: %w", deployErr)
	}

	exp, err = e.store.Update(ctx, id, func(exp *datatypes.Experiment) error {
		// Re-validate: the experiment may have changed while the external
		// call was in flight.
		if err := deployable(exp); err != nil {
			return err
		}
		now := e.clock.Now().UTC()
		exp.WinnerDeployed = true
		exp.DeployedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.DeploymentsTotal.WithLabelValues("deployed").Inc()
	e.log.Info("winner deployed",
		"experiment_id", exp.ID, "module_id", exp.ModuleID, "winner", exp.Winner)
	e.notifier.Notify(ctx, notify.Event{
		ExperimentID: exp.ID,
		ModuleID:     exp.ModuleID,
		Kind:         "deployed",
		Status:       exp.Status,
		Detail:       string(exp.Winner),
		OccurredAt:   e.clock.Now().UTC(),
	})
	return exp, nil
}

// deployable validates the deploy preconditions without mutating.
func deployable(exp *datatypes.Experiment) error {
	if exp.Status != datatypes.StatusConcluded {
		return fmt.Errorf("%w: experiment is %s, not concluded", ErrWinnerNotDeployable, exp.Status)
	}
	if exp.Winner == datatypes.WinnerUnset || exp.Winner == datatypes.WinnerNoDifference {
		return fmt.Errorf("%w: winner is %q", ErrWinnerNotDeployable, exp.Winner)
	}
	if exp.WinnerDeployed {
		return fmt.Errorf("%w: already deployed", ErrWinnerNotDeployable)
	}
	return nil
}
