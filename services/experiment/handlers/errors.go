// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP surface of the split-testing engine.
// Handlers stay thin: decode, call the engine, map errors to status codes
// with explicit reason codes. No business rule lives here.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/praxislearn/splitengine/services/experiment/engine"
	"github.com/praxislearn/splitengine/services/experiment/storage"
)

// reason codes surfaced to callers. State errors are not retryable; a
// concurrency_exhausted response is.
const (
	reasonNotFound             = "experiment_not_found"
	reasonParticipantNotFound  = "participant_not_found"
	reasonNotActive            = "experiment_not_active"
	reasonSampleExhausted      = "sample_exhausted"
	reasonInvalidTransition    = "invalid_transition"
	reasonValidationFailed     = "validation_failed"
	reasonNotDeployable        = "winner_not_deployable"
	reasonConcurrencyExhausted = "concurrency_exhausted"
	reasonInternal             = "internal_error"
)

// respondError maps an engine or storage error onto an HTTP response with an
// explicit reason code. Every error path goes through here so no caller ever
// sees a generic failure.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"reason": reasonNotFound, "error": err.Error()})
	case errors.Is(err, engine.ErrParticipantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"reason": reasonParticipantNotFound, "error": err.Error()})
	case errors.Is(err, engine.ErrExperimentNotActive):
		c.JSON(http.StatusConflict, gin.H{"reason": reasonNotActive, "error": err.Error()})
	case errors.Is(err, engine.ErrSampleExhausted):
		c.JSON(http.StatusConflict, gin.H{"reason": reasonSampleExhausted, "error": err.Error()})
	case errors.Is(err, engine.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"reason": reasonInvalidTransition, "error": err.Error()})
	case errors.Is(err, engine.ErrWinnerNotDeployable):
		c.JSON(http.StatusConflict, gin.H{"reason": reasonNotDeployable, "error": err.Error()})
	case errors.Is(err, engine.ErrVersionsNotPopulated),
		errors.Is(err, engine.ErrStopReasonRequired),
		errors.Is(err, engine.ErrEmptyDelta):
		c.JSON(http.StatusBadRequest, gin.H{"reason": reasonValidationFailed, "error": err.Error()})
	case errors.Is(err, storage.ErrConcurrencyExhausted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"reason": reasonConcurrencyExhausted, "error": err.Error()})
	case errors.Is(err, storage.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"reason": reasonValidationFailed, "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"reason": reasonInternal, "error": err.Error()})
	}
}
