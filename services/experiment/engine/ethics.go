// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/praxislearn/splitengine/services/experiment/datatypes"
)

// dissatisfactionWindow is the number of consecutive completions with
// negative-or-worse feedback on one arm that forces a stop.
const dissatisfactionWindow = 3

// evaluateEthics inspects an updated participant for safety-relevant signals
// and returns the ethical event to record, or nil.
//
// Rule 1: a single very_negative feedback forces a stop immediately. One
// severely distressed learner never waits for statistical confirmation, so
// this rule is always severity stop, never warning.
//
// Rule 2: if the last 3 chronologically completed participants on the
// updated participant's arm all reported negative or worse feedback, stop.
// The window slides over completions, not submissions, and is re-evaluated
// whenever this update completes the participant or changes the feedback of
// an already completed one; learners commonly finish a module first and rate
// it afterwards. Two consecutive negatives (the window one short of firing)
// are recorded as a warning.
//
// The caller applies the returned event inside the same store mutation that
// recorded the outcome, so a stop event and the stopped_ethics transition
// commit atomically.
//
// Both rules fire on state changes, not on re-submissions: re-sending an
// identical delta changes nothing and therefore triggers nothing.
func (e *Engine) evaluateEthics(exp *datatypes.Experiment, p *datatypes.Participant, change outcomeChange) *datatypes.EthicalEvent {
	if change.sentimentChanged && p.FeedbackSentiment == datatypes.SentimentVeryNegative {
		return &datatypes.EthicalEvent{
			ID:          uuid.New().String(),
			TriggeredAt: e.clock.Now().UTC(),
			Condition:   datatypes.ConditionLearnerOffended,
			Version:     p.AssignedVersion,
			FeedbackSummary: fmt.Sprintf(
				"a participant on the %s version reported very negative feedback", p.AssignedVersion),
			Severity: datatypes.SeverityStop,
		}
	}

	if !change.justCompleted && !(change.sentimentChanged && p.Completed) {
		return nil
	}
	window := completionWindow(exp, p.AssignedVersion)
	run := 0
	for i := len(window) - 1; i >= 0; i-- {
		if !window[i].NegativeOrWorse() {
			break
		}
		run++
	}
	switch {
	case run >= dissatisfactionWindow:
		return &datatypes.EthicalEvent{
			ID:          uuid.New().String(),
			TriggeredAt: e.clock.Now().UTC(),
			Condition:   datatypes.ConditionPatternOfDissatisfaction,
			Version:     p.AssignedVersion,
			FeedbackSummary: fmt.Sprintf(
				"the last %d completed participants on the %s version reported negative or worse feedback",
				dissatisfactionWindow, p.AssignedVersion),
			Severity: datatypes.SeverityStop,
		}
	case run == dissatisfactionWindow-1:
		return &datatypes.EthicalEvent{
			ID:          uuid.New().String(),
			TriggeredAt: e.clock.Now().UTC(),
			Condition:   datatypes.ConditionPatternOfDissatisfaction,
			Version:     p.AssignedVersion,
			FeedbackSummary: fmt.Sprintf(
				"%d consecutive completed participants on the %s version reported negative or worse feedback",
				dissatisfactionWindow-1, p.AssignedVersion),
			Severity: datatypes.SeverityWarning,
		}
	}
	return nil
}

// completionWindow returns the feedback sentiments of the arm's completed
// participants in completion order, scoped to the current run: the window
// resets on pause and on resume, so a dissatisfaction pattern never spans a
// pause/resume cycle.
func completionWindow(exp *datatypes.Experiment, v datatypes.VersionKey) []datatypes.Sentiment {
	boundary := runBoundary(exp)
	type completion struct {
		at        time.Time
		sentiment datatypes.Sentiment
	}
	var completions []completion
	for i := range exp.Participants {
		p := &exp.Participants[i]
		if p.AssignedVersion != v || p.CompletedAt == nil {
			continue
		}
		if p.CompletedAt.Before(boundary) {
			continue
		}
		completions = append(completions, completion{at: *p.CompletedAt, sentiment: p.FeedbackSentiment})
	}
	sort.SliceStable(completions, func(i, j int) bool {
		return completions[i].at.Before(completions[j].at)
	})
	out := make([]datatypes.Sentiment, len(completions))
	for i, c := range completions {
		out[i] = c.sentiment
	}
	return out
}

// runBoundary is the start of the current run: the latest of the start,
// pause, and resume timestamps.
func runBoundary(exp *datatypes.Experiment) time.Time {
	var boundary time.Time
	if exp.StartedAt != nil {
		boundary = *exp.StartedAt
	}
	if exp.PausedAt != nil && exp.PausedAt.After(boundary) {
		boundary = *exp.PausedAt
	}
	if exp.ResumedAt != nil && exp.ResumedAt.After(boundary) {
		boundary = *exp.ResumedAt
	}
	return boundary
}

// applyEthicalStop appends the event and, for stop severity, transitions the
// experiment to stopped_ethics in place. Must run inside a store mutation.
func (e *Engine) applyEthicalStop(exp *datatypes.Experiment, event *datatypes.EthicalEvent) error {
	if event.Severity == datatypes.SeverityStop &&
		(exp.Status == datatypes.StatusActive || exp.Status == datatypes.StatusPaused) {
		if err := transition(exp, datatypes.StatusStoppedEthics); err != nil {
			return err
		}
		now := e.clock.Now().UTC()
		exp.StoppedAt = &now
		exp.StopReason = string(event.Condition)
		event.TestStopped = true
	}
	exp.EthicalEvents = append(exp.EthicalEvents, *event)
	return nil
}
