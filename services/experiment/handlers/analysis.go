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

	"github.com/praxislearn/splitengine/services/experiment/engine"
)

// RunAnalysis computes a fresh statistical comparison and appends it to the
// experiment's analysis history.
func RunAnalysis(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		analysis, err := eng.Analyze(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, analysis)
	}
}

// GetLatestAnalysis returns the most recent analysis, or 404 when the
// experiment has never been analyzed.
func GetLatestAnalysis(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		exp, err := eng.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if exp.LatestAnalysis == nil {
			c.JSON(http.StatusNotFound, gin.H{"reason": "no_analysis", "error": "experiment has not been analyzed"})
			return
		}
		c.JSON(http.StatusOK, exp.LatestAnalysis)
	}
}
