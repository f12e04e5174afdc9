// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/praxislearn/splitengine/services/experiment/datatypes"
	"github.com/praxislearn/splitengine/services/experiment/engine"
)

// StartExperiment moves a draft experiment to active.
func StartExperiment(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		exp, err := eng.Start(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, exp)
	}
}

// PauseExperiment suspends an active experiment.
func PauseExperiment(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		exp, err := eng.Pause(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, exp)
	}
}

// ResumeExperiment reactivates a paused experiment.
func ResumeExperiment(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		exp, err := eng.Resume(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, exp)
	}
}

// StopExperiment halts an experiment by explicit human action. The reason is
// mandatory and recorded on the experiment.
func StopExperiment(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.StopRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"reason": reasonValidationFailed, "error": err.Error()})
			return
		}
		exp, err := eng.Stop(c.Request.Context(), c.Param("id"), req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, exp)
	}
}

// ConcludeExperiment finalizes the winner, ratifying or overriding the
// analyzer's call.
func ConcludeExperiment(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ConcludeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"reason": reasonValidationFailed, "error": err.Error()})
			return
		}
		exp, err := eng.Conclude(c.Request.Context(), c.Param("id"), req.Winner, req.Notes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, exp)
	}
}

// DeployWinner signals the external content system to roll out the winning
// version. Always explicit; never triggered by conclusion itself.
func DeployWinner(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		exp, err := eng.Deploy(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, exp)
	}
}
