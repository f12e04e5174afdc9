// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// VersionMetrics is the derived outcome summary for one arm. Metrics are
// always recomputed by folding over the participant set at read time; they
// are embedded in Analysis snapshots but never maintained as running totals.
type VersionMetrics struct {
	SampleSize                 int     `json:"sample_size"`
	CompetencyRate             float64 `json:"competency_rate"`
	AvgMessagesToCompetency    float64 `json:"avg_messages_to_competency"`
	MedianMessagesToCompetency float64 `json:"median_messages_to_competency"`
	AvgSatisfaction            float64 `json:"avg_satisfaction"`
	StuckRate                  float64 `json:"stuck_rate"`
	CompletionRate             float64 `json:"completion_rate"`
	DropoutRate                float64 `json:"dropout_rate"`
	NegativeFeedbackCount      int     `json:"negative_feedback_count"`
	VeryNegativeFeedbackCount  int     `json:"very_negative_feedback_count"`
}

// Analysis is one immutable statistical comparison between the two arms.
// Every analyzer run appends a new Analysis to the experiment's history;
// existing entries are never mutated.
type Analysis struct {
	AnalyzedAt time.Time      `json:"analyzed_at"`
	Control    VersionMetrics `json:"control"`
	Variant    VersionMetrics `json:"variant"`

	// RateDifference is variant competency rate minus control competency
	// rate, in absolute proportion (0.117 = 11.7 points).
	RateDifference float64 `json:"rate_difference"`

	// PValue of the two-proportion pooled z-test on competency rate.
	// Reported even when the sample is too small; see SampleSizeSufficient.
	PValue float64 `json:"p_value"`

	// ConfidenceInterval is the 95% CI on RateDifference, [low, high].
	ConfidenceInterval [2]float64 `json:"confidence_interval"`

	// StatisticalSignificance is forced false whenever either arm is below
	// the experiment's minimum sample, regardless of the computed p-value.
	StatisticalSignificance bool `json:"statistical_significance"`
	SampleSizeSufficient    bool `json:"sample_size_sufficient"`

	Winner             Winner `json:"winner"`
	Recommendation     string `json:"recommendation"`
	ShouldDeployWinner bool   `json:"should_deploy_winner"`
}
