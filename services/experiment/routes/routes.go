// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/praxislearn/splitengine/services/experiment/engine"
	"github.com/praxislearn/splitengine/services/experiment/handlers"
	"github.com/praxislearn/splitengine/services/experiment/middleware"
	"github.com/praxislearn/splitengine/services/experiment/observability"
)

// SetupRoutes wires the experiment service's HTTP surface.
func SetupRoutes(router *gin.Engine, eng *engine.Engine, authToken string) {
	registerValidations()
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1", middleware.BearerAuth(authToken), requestMetrics())
	{
		experiments := v1.Group("/experiments")
		{
			experiments.POST("", handlers.CreateExperiment(eng))
			experiments.GET("", handlers.ListExperiments(eng))
			experiments.GET("/:id", handlers.GetExperiment(eng))
			experiments.GET("/:id/summary", handlers.GetSummary(eng))
			experiments.GET("/:id/analysis", handlers.GetLatestAnalysis(eng))
			experiments.POST("/:id/analyze", handlers.RunAnalysis(eng))
			experiments.GET("/:id/live", handlers.HandleLiveSummary(eng))

			// Lifecycle controls
			experiments.POST("/:id/start", handlers.StartExperiment(eng))
			experiments.POST("/:id/pause", handlers.PauseExperiment(eng))
			experiments.POST("/:id/resume", handlers.ResumeExperiment(eng))
			experiments.POST("/:id/stop", handlers.StopExperiment(eng))
			experiments.POST("/:id/conclude", handlers.ConcludeExperiment(eng))
			experiments.POST("/:id/deploy", handlers.DeployWinner(eng))
		}

		// Platform hooks: enrolment and learner progress
		v1.POST("/enrolments", handlers.HandleEnrolment(eng))
		v1.POST("/outcomes", handlers.HandleOutcome(eng))
	}
}

// registerValidations adds the version_content rule to gin's binding
// validator: an arm's content must be a real JSON document, not JSON null.
func registerValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("version_content", func(fl validator.FieldLevel) bool {
		raw, ok := fl.Field().Interface().(json.RawMessage)
		if !ok {
			return false
		}
		return len(raw) > 0 && json.Valid(raw) && string(raw) != "null"
	})
}

// requestMetrics records per-route latency into the Prometheus histogram.
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		observability.RequestDurationSeconds.
			WithLabelValues(route, statusClass(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
