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

// outcomeChange records which safety-relevant state changed while applying a
// delta, so the ethical monitor reacts to changes rather than re-submissions.
type outcomeChange struct {
	sentimentChanged bool
	justCompleted    bool
}

// RecordOutcome folds an incremental outcome update into the participant's
// record. Updates are idempotent per field: re-sending an identical delta is
// a no-op. The ethical monitor runs synchronously inside the same store
// mutation, so a forced stop commits atomically with the outcome and its
// ethical event; this evaluation is in the critical path of every outcome
// submission on purpose.
func (e *Engine) RecordOutcome(ctx context.Context, experimentID, participantRef string, delta datatypes.OutcomeDelta) (*datatypes.Participant, error) {
	ctx, span := e.tracer.Start(ctx, "engine.RecordOutcome")
	defer span.End()

	if delta.Empty() {
		return nil, ErrEmptyDelta
	}

	var updated datatypes.Participant
	var event *datatypes.EthicalEvent
	exp, err := e.store.Update(ctx, experimentID, func(exp *datatypes.Experiment) error {
		p := exp.FindParticipant(participantRef)
		if p == nil {
			return fmt.Errorf("%w: %s", ErrParticipantNotFound, participantRef)
		}
		change := e.applyDelta(p, delta)

		event = e.evaluateEthics(exp, p, change)
		if event != nil {
			if err := e.applyEthicalStop(exp, event); err != nil {
				return err
			}
		}
		updated = *p
		return nil
	})
	if err != nil {
		observability.OutcomesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	observability.OutcomesTotal.WithLabelValues("applied").Inc()
	if event != nil {
		observability.EthicalEventsTotal.WithLabelValues(string(event.Condition), string(event.Severity)).Inc()
		if event.TestStopped {
			// An ethical stop is a successful, intentional transition, not
			// an error. It is surfaced loudly and is final for the
			// experiment.
			e.log.Warn("ethical stop triggered",
				"experiment_id", exp.ID,
				"condition", event.Condition,
				"version", event.Version,
				"summary", event.FeedbackSummary)
			e.notifier.Notify(ctx, notify.Event{
				ExperimentID: exp.ID,
				ModuleID:     exp.ModuleID,
				Kind:         "stopped_ethics",
				Status:       exp.Status,
				Detail:       event.FeedbackSummary,
				OccurredAt:   e.clock.Now().UTC(),
			})
		} else {
			e.log.Warn("ethical warning recorded",
				"experiment_id", exp.ID,
				"condition", event.Condition,
				"version", event.Version)
		}
	}
	return &updated, nil
}

// applyDelta merges the delta into the participant. Terminal flags are
// monotonic: completed and abandoned never revert once set. Returns which
// safety-relevant state actually changed.
func (e *Engine) applyDelta(p *datatypes.Participant, delta datatypes.OutcomeDelta) outcomeChange {
	var change outcomeChange

	if delta.CompetencyAchieved != nil && *delta.CompetencyAchieved && !p.CompetencyAchieved {
		p.CompetencyAchieved = true
	}
	if delta.MessagesToCompetency != nil && *delta.MessagesToCompetency != p.MessagesToCompetency {
		p.MessagesToCompetency = *delta.MessagesToCompetency
	}
	if delta.SatisfactionScore != nil && *delta.SatisfactionScore != p.SatisfactionScore {
		p.SatisfactionScore = *delta.SatisfactionScore
	}
	if delta.GotStuck != nil && *delta.GotStuck && !p.GotStuck {
		p.GotStuck = true
	}
	if delta.Abandoned != nil && *delta.Abandoned && !p.Abandoned {
		p.Abandoned = true
	}
	if delta.Completed != nil && *delta.Completed && !p.Completed {
		p.Completed = true
		now := e.clock.Now().UTC()
		p.CompletedAt = &now
		change.justCompleted = true
	}
	if delta.FeedbackSentiment != nil && *delta.FeedbackSentiment != p.FeedbackSentiment {
		p.FeedbackSentiment = *delta.FeedbackSentiment
		change.sentimentChanged = true
	}
	return change
}
