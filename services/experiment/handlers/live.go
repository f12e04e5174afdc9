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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/praxislearn/splitengine/services/experiment/engine"
)

// liveSummaryInterval is how often the live feed pushes a summary snapshot.
const liveSummaryInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

// HandleLiveSummary streams experiment summaries over a websocket so
// dashboards can watch allocation progress and ethical flags without
// polling. The feed is a read-only observer: snapshots may trail writers by
// up to one interval and never block them.
func HandleLiveSummary(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := eng.Get(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		slog.Info("live summary client connected", "experiment_id", id)

		// Read pump: discard client messages, detect disconnect.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(liveSummaryInterval)
		defer ticker.Stop()
		for {
			summary, err := eng.Summary(c.Request.Context(), id)
			if err != nil {
				slog.Warn("live summary read failed", "experiment_id", id, "error", err)
				return
			}
			if err := ws.WriteJSON(summary); err != nil {
				slog.Info("live summary client disconnected", "experiment_id", id)
				return
			}
			select {
			case <-done:
				return
			case <-c.Request.Context().Done():
				return
			case <-ticker.C:
			}
		}
	}
}
