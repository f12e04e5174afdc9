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
	"github.com/praxislearn/splitengine/services/experiment/storage"
)

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CreateExperiment registers a new experiment in draft status. This is the
// creation interface used by the suggestion producer.
func CreateExperiment(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateExperimentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"reason": reasonValidationFailed, "error": err.Error()})
			return
		}
		exp, err := eng.Create(c.Request.Context(), req)
		if err != nil {
			slog.Error("failed to create experiment", "module_id", req.ModuleID, "error", err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, exp)
	}
}

// ListExperiments returns experiments, optionally filtered by status and
// module id query parameters.
func ListExperiments(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := storage.Filter{
			Status:   datatypes.ExperimentStatus(c.Query("status")),
			ModuleID: c.Query("module_id"),
		}
		experiments, err := eng.List(c.Request.Context(), filter)
		if err != nil {
			slog.Error("failed to list experiments", "error", err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"experiments": experiments, "count": len(experiments)})
	}
}

// GetExperiment returns one experiment by id.
func GetExperiment(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		exp, err := eng.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, exp)
	}
}

// GetSummary returns the live dashboard view of one experiment.
func GetSummary(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := eng.Summary(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
