// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the experiment aggregate and the request/response
// shapes of the split-testing engine.
//
// The Experiment is the unit of consistency: every mutating operation loads
// the aggregate, validates against its current status, mutates, and persists
// it atomically (see the storage package). Participants and ethical events
// are ordered sub-collections of the aggregate, never free-standing records.
package datatypes

import (
	"encoding/json"
	"time"
)

// ExperimentStatus is the lifecycle state of an experiment.
type ExperimentStatus string

const (
	StatusDraft         ExperimentStatus = "draft"
	StatusActive        ExperimentStatus = "active"
	StatusPaused        ExperimentStatus = "paused"
	StatusCompleted     ExperimentStatus = "completed"
	StatusStoppedEthics ExperimentStatus = "stopped_ethics"
	StatusStoppedManual ExperimentStatus = "stopped_manual"
	StatusConcluded     ExperimentStatus = "concluded"
)

// Terminal reports whether the status admits a conclude action.
// Concluded itself is final and is not "terminal but concludable".
func (s ExperimentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusStoppedEthics, StatusStoppedManual:
		return true
	}
	return false
}

// VersionKey identifies one arm of an experiment.
type VersionKey string

const (
	VersionControl VersionKey = "control"
	VersionVariant VersionKey = "variant"
)

// AllocationStrategy is the rule assigning an arriving participant to an arm.
type AllocationStrategy string

const (
	StrategyRandom5050 AllocationStrategy = "random_50_50"
	StrategyRandom7030 AllocationStrategy = "random_70_30"
	StrategySequential AllocationStrategy = "sequential"
)

// Valid reports whether s is a known strategy.
func (s AllocationStrategy) Valid() bool {
	switch s {
	case StrategyRandom5050, StrategyRandom7030, StrategySequential:
		return true
	}
	return false
}

// Sentiment is the anonymized feedback classification for a participant.
// Values are ordered: very_negative < negative < neutral < positive.
type Sentiment string

const (
	SentimentUnset        Sentiment = ""
	SentimentPositive     Sentiment = "positive"
	SentimentNeutral      Sentiment = "neutral"
	SentimentNegative     Sentiment = "negative"
	SentimentVeryNegative Sentiment = "very_negative"
)

// NegativeOrWorse reports whether the sentiment counts toward the
// pattern-of-dissatisfaction window.
func (s Sentiment) NegativeOrWorse() bool {
	return s == SentimentNegative || s == SentimentVeryNegative
}

// Winner is the declared outcome of an experiment.
type Winner string

const (
	WinnerUnset        Winner = ""
	WinnerControl      Winner = "control"
	WinnerVariant      Winner = "variant"
	WinnerNoDifference Winner = "no_difference"
)

// Version is one arm's content under test. Content is an opaque snapshot
// supplied by the caller; the engine never interprets it.
type Version struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Content     json.RawMessage `json:"content"`
	ContentHash string          `json:"content_hash,omitempty"`
}

// Populated reports whether the version carries a usable payload.
func (v Version) Populated() bool {
	return v.Name != "" && len(v.Content) > 0
}

// Participant is one learner inside one experiment. The assignment is
// immutable after allocation; the outcome bundle fills in incrementally as
// the learner progresses.
type Participant struct {
	Ref             string     `json:"ref"`
	AssignedVersion VersionKey `json:"assigned_version"`
	AssignedAt      time.Time  `json:"assigned_at"`

	CompetencyAchieved    bool       `json:"competency_achieved"`
	MessagesToCompetency  int        `json:"messages_to_competency,omitempty"`
	SatisfactionScore     int        `json:"satisfaction_score,omitempty"` // 1-5, 0 = not reported
	GotStuck              bool       `json:"got_stuck"`
	Completed             bool       `json:"completed"`
	Abandoned             bool       `json:"abandoned"`
	FeedbackSentiment     Sentiment  `json:"feedback_sentiment,omitempty"`
	StartedAt             time.Time  `json:"started_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}

// EthicalCondition names the safety rule that fired.
type EthicalCondition string

const (
	ConditionLearnerOffended          EthicalCondition = "learner_offended"
	ConditionPatternOfDissatisfaction EthicalCondition = "pattern_of_dissatisfaction"
)

// EthicalSeverity is the action level of an ethical event.
type EthicalSeverity string

const (
	SeverityWarning EthicalSeverity = "warning"
	SeverityStop    EthicalSeverity = "stop"
)

// EthicalEvent records one firing of an ethical stop condition. An event with
// TestStopped=true is persisted in the same atomic mutation that moves the
// experiment to stopped_ethics; the two are never observably separate.
type EthicalEvent struct {
	ID              string           `json:"id"`
	TriggeredAt     time.Time        `json:"triggered_at"`
	Condition       EthicalCondition `json:"condition"`
	Version         VersionKey       `json:"version"`
	FeedbackSummary string           `json:"feedback_summary,omitempty"`
	Severity        EthicalSeverity  `json:"severity"`
	TestStopped     bool             `json:"test_stopped"`
}

// Experiment is the aggregate root for one controlled content comparison.
type Experiment struct {
	ID           string  `json:"id"`
	ModuleID     string  `json:"module_id"`
	ModuleTitle  string  `json:"module_title,omitempty"`
	SuggestionID *string `json:"suggestion_id,omitempty"`

	Status  ExperimentStatus `json:"status"`
	Control Version          `json:"control"`
	Variant Version          `json:"variant"`

	AllocationStrategy       AllocationStrategy `json:"allocation_strategy"`
	TargetSampleSize         int                `json:"target_sample_size"`
	MinSampleForSignificance int                `json:"min_sample_for_significance"`

	// Running counts per arm. While active, SampleControl+SampleVariant
	// never exceeds TargetSampleSize.
	SampleControl int `json:"current_sample_a"`
	SampleVariant int `json:"current_sample_b"`

	Participants  []Participant  `json:"participants"`
	EthicalEvents []EthicalEvent `json:"ethical_events"`

	AnalysisHistory []Analysis `json:"analysis_history"`
	LatestAnalysis  *Analysis  `json:"latest_analysis,omitempty"`

	Winner          Winner     `json:"winner,omitempty"`
	WinnerDeployed  bool       `json:"winner_deployed"`
	DeployedAt      *time.Time `json:"deployed_at,omitempty"`
	ConclusionNotes string     `json:"conclusion_notes,omitempty"`
	StopReason      string     `json:"stop_reason,omitempty"`

	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	ResumedAt   *time.Time `json:"resumed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
	ConcludedAt *time.Time `json:"concluded_at,omitempty"`

	// Revision is the optimistic concurrency token, bumped by the store on
	// every successful mutation.
	Revision uint64 `json:"revision"`
}

// SampleTotal is the number of allocated participants across both arms.
func (e *Experiment) SampleTotal() int {
	return e.SampleControl + e.SampleVariant
}

// FindParticipant returns the participant with the given enrolment reference,
// or nil if it was never allocated in this experiment.
func (e *Experiment) FindParticipant(ref string) *Participant {
	for i := range e.Participants {
		if e.Participants[i].Ref == ref {
			return &e.Participants[i]
		}
	}
	return nil
}

// VersionSample returns the running count for one arm.
func (e *Experiment) VersionSample(v VersionKey) int {
	if v == VersionControl {
		return e.SampleControl
	}
	return e.SampleVariant
}

// HasEthicalConcern reports whether any ethical event has been recorded.
func (e *Experiment) HasEthicalConcern() bool {
	return len(e.EthicalEvents) > 0
}
