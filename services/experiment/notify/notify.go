// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package notify carries the engine's outbound signals to external
// collaborators: the content system that deploys a winning version, and any
// listener interested in lifecycle events (dashboards, email pipelines).
//
// Deployment is the only call whose result matters to engine state: the
// winner_deployed flag is set only after a positive acknowledgment.
// Lifecycle notifications are fire-and-forget; a failure is logged and never
// fails the triggering operation.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/praxislearn/splitengine/services/experiment/datatypes"
)

// externalCallTimeout bounds outbound HTTP calls. External systems are never
// allowed to stall the engine's request path.
const externalCallTimeout = 5 * time.Second

// DeploymentRequest is the signal handed to the external content system when
// a concluded winner is deployed.
type DeploymentRequest struct {
	ExperimentID string            `json:"experiment_id"`
	ModuleID     string            `json:"module_id"`
	Winner       datatypes.Winner  `json:"winner"`
	Version      datatypes.Version `json:"version"`
	RequestedAt  time.Time         `json:"requested_at"`
}

// Deployer delivers the deployment signal. The engine records the winner as
// deployed only when Deploy returns nil.
type Deployer interface {
	Deploy(ctx context.Context, req DeploymentRequest) error
}

// Event is a lifecycle notification.
type Event struct {
	ExperimentID string                     `json:"experiment_id"`
	ModuleID     string                     `json:"module_id"`
	Kind         string                     `json:"kind"` // started, paused, resumed, completed, stopped_ethics, stopped_manual, concluded, deployed
	Status       datatypes.ExperimentStatus `json:"status"`
	Detail       string                     `json:"detail,omitempty"`
	OccurredAt   time.Time                  `json:"occurred_at"`
}

// Notifier receives fire-and-forget lifecycle events.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NopDeployer acknowledges every deployment without side effects. Default in
// local setups where no content system is wired.
type NopDeployer struct{}

func (NopDeployer) Deploy(ctx context.Context, req DeploymentRequest) error { return nil }

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, event Event) {}

// HTTPDeployer POSTs the deployment request to the content system.
type HTTPDeployer struct {
	URL    string
	Client *http.Client
}

// NewHTTPDeployer builds a deployer with the standard short timeout.
func NewHTTPDeployer(url string) *HTTPDeployer {
	return &HTTPDeployer{
		URL:    url,
		Client: &http.Client{Timeout: externalCallTimeout},
	}
}

// Deploy posts the request and treats any non-2xx response as failure so the
// caller can retry the deploy action later.
func (d *HTTPDeployer) Deploy(ctx context.Context, req DeploymentRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode deployment request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build deployment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("deployment request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("content system rejected deployment: status %d", resp.StatusCode)
	}
	return nil
}

// WebhookNotifier POSTs lifecycle events to a webhook URL. Failures are
// logged and swallowed.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
	Logger *slog.Logger
}

// NewWebhookNotifier builds a notifier with the standard short timeout.
func NewWebhookNotifier(url string, logger *slog.Logger) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		URL:    url,
		Client: &http.Client{Timeout: externalCallTimeout},
		Logger: logger,
	}
}

// Notify posts the event. Never blocks the caller beyond the short timeout
// and never returns the failure.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.Logger.Warn("failed to encode lifecycle event", "error", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(payload))
	if err != nil {
		n.Logger.Warn("failed to build lifecycle notification", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		n.Logger.Warn("lifecycle notification failed",
			"experiment_id", event.ExperimentID, "kind", event.Kind, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.Logger.Warn("lifecycle notification rejected",
			"experiment_id", event.ExperimentID, "kind", event.Kind, "status", resp.StatusCode)
	}
}
