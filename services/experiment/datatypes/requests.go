// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "encoding/json"

// CreateExperimentRequest is the payload accepted from the suggestion
// producer (or an operator) to register a new experiment in draft status.
type CreateExperimentRequest struct {
	ModuleID     string  `json:"module_id" binding:"required"`
	ModuleTitle  string  `json:"module_title"`
	SuggestionID *string `json:"suggestion_id,omitempty"`

	Control VersionPayload `json:"control" binding:"required"`
	Variant VersionPayload `json:"variant" binding:"required"`

	AllocationStrategy AllocationStrategy `json:"allocation_strategy" binding:"required,oneof=random_50_50 random_70_30 sequential"`
	TargetSampleSize   int                `json:"target_sample_size" binding:"required,gt=0"`

	// MinSampleForSignificance overrides the default per-arm floor of 30
	// below which the analyzer refuses to call significance.
	MinSampleForSignificance int `json:"min_sample_for_significance" binding:"omitempty,gt=0"`

	CreatedBy string `json:"created_by"`
}

// VersionPayload is one arm's content as submitted at creation time.
type VersionPayload struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Content     json.RawMessage `json:"content" binding:"required,version_content"`
	ContentHash string          `json:"content_hash"`
}

// EnrolmentRequest is the enrolment hook payload: a learner began a module.
// If no active experiment exists for the module the engine reports a skip
// rather than an error; allocation is simply not this learner's path.
type EnrolmentRequest struct {
	ModuleID       string `json:"module_id" binding:"required"`
	ParticipantRef string `json:"participant_ref" binding:"required"`
}

// EnrolmentResponse reports the allocation result for an enrolment event.
type EnrolmentResponse struct {
	Allocated       bool       `json:"allocated"`
	ExperimentID    string     `json:"experiment_id,omitempty"`
	AssignedVersion VersionKey `json:"assigned_version,omitempty"`
}

// OutcomeDelta is an incremental outcome update for one participant. Pointer
// fields distinguish "not reported in this event" from a genuine zero value;
// applying the same delta twice is a no-op per field.
type OutcomeDelta struct {
	CompetencyAchieved   *bool      `json:"competency_achieved,omitempty"`
	MessagesToCompetency *int       `json:"messages_to_competency,omitempty" binding:"omitempty,gte=0"`
	SatisfactionScore    *int       `json:"satisfaction_score,omitempty" binding:"omitempty,gte=1,lte=5"`
	GotStuck             *bool      `json:"got_stuck,omitempty"`
	Completed            *bool      `json:"completed,omitempty"`
	Abandoned            *bool      `json:"abandoned,omitempty"`
	FeedbackSentiment    *Sentiment `json:"feedback_sentiment,omitempty" binding:"omitempty,oneof=positive neutral negative very_negative"`
}

// Empty reports whether the delta carries no fields at all.
func (d OutcomeDelta) Empty() bool {
	return d.CompetencyAchieved == nil && d.MessagesToCompetency == nil &&
		d.SatisfactionScore == nil && d.GotStuck == nil &&
		d.Completed == nil && d.Abandoned == nil && d.FeedbackSentiment == nil
}

// RecordOutcomeRequest is the progress hook payload.
type RecordOutcomeRequest struct {
	ExperimentID   string       `json:"experiment_id" binding:"required"`
	ParticipantRef string       `json:"participant_ref" binding:"required"`
	Delta          OutcomeDelta `json:"delta" binding:"required"`
}

// StopRequest is the explicit human stop action. A reason is mandatory.
type StopRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ConcludeRequest ratifies or overrides the analyzer's winner.
type ConcludeRequest struct {
	Winner Winner `json:"winner" binding:"required,oneof=control variant no_difference"`
	Notes  string `json:"notes"`
}

// ExperimentSummary is the dashboard-facing live view of one experiment.
type ExperimentSummary struct {
	ExperimentID    string           `json:"experiment_id"`
	ModuleID        string           `json:"module_id"`
	Status          ExperimentStatus `json:"status"`
	ProgressPercent float64          `json:"progress_percent"`
	SampleControl   int              `json:"sample_control"`
	SampleVariant   int              `json:"sample_variant"`
	TargetSample    int              `json:"target_sample"`
	ControlRate     float64          `json:"control_competency_rate"`
	VariantRate     float64          `json:"variant_competency_rate"`
	EthicalConcern  bool             `json:"ethical_concern"`
	DaysRunning     float64          `json:"days_running"`
	Winner          Winner           `json:"winner,omitempty"`
	WinnerDeployed  bool             `json:"winner_deployed"`
}
