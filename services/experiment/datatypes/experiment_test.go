// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusStoppedEthics.Terminal())
	assert.True(t, StatusStoppedManual.Terminal())
	assert.False(t, StatusDraft.Terminal())
	assert.False(t, StatusActive.Terminal())
	assert.False(t, StatusPaused.Terminal())
	assert.False(t, StatusConcluded.Terminal())
}

func TestSentimentNegativeOrWorse(t *testing.T) {
	assert.True(t, SentimentNegative.NegativeOrWorse())
	assert.True(t, SentimentVeryNegative.NegativeOrWorse())
	assert.False(t, SentimentNeutral.NegativeOrWorse())
	assert.False(t, SentimentPositive.NegativeOrWorse())
	assert.False(t, SentimentUnset.NegativeOrWorse())
}

func TestAllocationStrategyValid(t *testing.T) {
	assert.True(t, StrategyRandom5050.Valid())
	assert.True(t, StrategyRandom7030.Valid())
	assert.True(t, StrategySequential.Valid())
	assert.False(t, AllocationStrategy("coin_flip").Valid())
	assert.False(t, AllocationStrategy("").Valid())
}

func TestVersionPopulated(t *testing.T) {
	assert.True(t, Version{Name: "a", Content: json.RawMessage(`{}`)}.Populated())
	assert.False(t, Version{Name: "a"}.Populated())
	assert.False(t, Version{Content: json.RawMessage(`{}`)}.Populated())
}

func TestOutcomeDeltaEmpty(t *testing.T) {
	assert.True(t, OutcomeDelta{}.Empty())
	b := true
	assert.False(t, OutcomeDelta{Completed: &b}.Empty())
	s := SentimentNeutral
	assert.False(t, OutcomeDelta{FeedbackSentiment: &s}.Empty())
}

func TestExperimentHelpers(t *testing.T) {
	exp := &Experiment{
		SampleControl: 3,
		SampleVariant: 2,
		Participants: []Participant{
			{Ref: "a", AssignedVersion: VersionControl},
			{Ref: "b", AssignedVersion: VersionVariant},
		},
	}

	assert.Equal(t, 5, exp.SampleTotal())
	assert.Equal(t, 3, exp.VersionSample(VersionControl))
	assert.Equal(t, 2, exp.VersionSample(VersionVariant))
	assert.False(t, exp.HasEthicalConcern())

	t.Run("find participant returns a mutable pointer", func(t *testing.T) {
		p := exp.FindParticipant("b")
		require.NotNil(t, p)
		p.Completed = true
		assert.True(t, exp.Participants[1].Completed)

		assert.Nil(t, exp.FindParticipant("missing"))
	})
}

func TestExperimentJSONRoundTrip(t *testing.T) {
	// The sample counters keep their historical wire names.
	exp := Experiment{ID: "exp-1", SampleControl: 7, SampleVariant: 5}
	payload, err := json.Marshal(exp)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"current_sample_a":7`)
	assert.Contains(t, string(payload), `"current_sample_b":5`)

	var back Experiment
	require.NoError(t, json.Unmarshal(payload, &back))
	assert.Equal(t, exp.SampleControl, back.SampleControl)
	assert.Equal(t, exp.SampleVariant, back.SampleVariant)
}
