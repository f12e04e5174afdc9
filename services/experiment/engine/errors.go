// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import "errors"

var (
	// ErrExperimentNotActive indicates an allocation was attempted while the
	// experiment is not in the active state. Not retryable.
	ErrExperimentNotActive = errors.New("experiment is not active")

	// ErrSampleExhausted indicates the allocation would push the combined
	// sample past the target size. Not retryable.
	ErrSampleExhausted = errors.New("target sample size exhausted")

	// ErrParticipantNotFound indicates an outcome referenced an enrolment
	// that was never allocated in this experiment.
	ErrParticipantNotFound = errors.New("participant not found in experiment")

	// ErrInvalidTransition indicates a lifecycle action not permitted from
	// the experiment's current status.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrVersionsNotPopulated indicates a start was attempted before both
	// content versions were supplied.
	ErrVersionsNotPopulated = errors.New("both versions must be populated before start")

	// ErrStopReasonRequired indicates a manual stop without a reason.
	ErrStopReasonRequired = errors.New("manual stop requires a reason")

	// ErrWinnerNotDeployable indicates a deploy on a no_difference winner,
	// an unconcluded experiment, or an already-deployed winner.
	ErrWinnerNotDeployable = errors.New("winner is not deployable")

	// ErrEmptyDelta indicates an outcome submission carrying no fields.
	ErrEmptyDelta = errors.New("outcome delta carries no fields")
)
