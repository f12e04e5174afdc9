// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/praxislearn/splitengine/services/experiment/datatypes"
	"github.com/praxislearn/splitengine/services/experiment/engine"
)

// HandleEnrolment is the enrolment hook: a learner began a module. If the
// module has an active experiment the learner is allocated to an arm;
// otherwise the response reports a skip and the platform proceeds with the
// regular content.
func HandleEnrolment(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.EnrolmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"reason": reasonValidationFailed, "error": err.Error()})
			return
		}
		resp, err := eng.AllocateForModule(c.Request.Context(), req.ModuleID, req.ParticipantRef)
		if err != nil {
			slog.Error("enrolment allocation failed",
				"module_id", req.ModuleID, "participant_ref", req.ParticipantRef, "error", err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleOutcome is the progress hook: competency, satisfaction, or
// completion changed for a participant. The ethical monitor runs inside this
// call; the response carries the experiment status so the platform can see a
// forced stop immediately.
func HandleOutcome(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RecordOutcomeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"reason": reasonValidationFailed, "error": err.Error()})
			return
		}
		participant, err := eng.RecordOutcome(c.Request.Context(), req.ExperimentID, req.ParticipantRef, req.Delta)
		if err != nil {
			respondError(c, err)
			return
		}
		exp, err := eng.Get(c.Request.Context(), req.ExperimentID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"participant":       participant,
			"experiment_status": exp.Status,
		})
	}
}
