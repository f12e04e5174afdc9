// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine implements the content split-testing engine: experiment
// lifecycle management, participant allocation, outcome recording, ethical
// monitoring, statistical analysis, and conclusion/deployment.
//
// # Design
//
// There is no process-wide experiment state. Every operation is request
// scoped: it loads the aggregate through storage.Store, validates against the
// current status, mutates, and persists atomically. Check-then-act sequences
// (sample exhaustion, forced ethical stop) run inside a single Store.Update
// mutation, so optimistic conflict detection in the store makes them
// race-free without any external locking.
//
// # Thread Safety
//
// Engine is safe for concurrent use. The random source is guarded by a
// mutex; everything else is either immutable or serialized by the store.
package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/praxislearn/splitengine/services/experiment/datatypes"
	"github.com/praxislearn/splitengine/services/experiment/notify"
	"github.com/praxislearn/splitengine/services/experiment/storage"
)

// defaultMinSample is the per-arm floor below which the analyzer refuses to
// call statistical significance. Overridable per experiment at creation.
const defaultMinSample = 30

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Config holds the engine's collaborators. Zero-value fields get production
// defaults from New.
type Config struct {
	Store storage.Store

	// Clock defaults to the wall clock.
	Clock Clock

	// Rand is the allocation randomness source. Injectable and seedable so
	// allocation balance is deterministically testable. Defaults to a
	// time-seeded source.
	Rand *rand.Rand

	// Deployer receives the deployment signal for a concluded winner.
	// Defaults to notify.NopDeployer.
	Deployer notify.Deployer

	// Notifier receives fire-and-forget lifecycle notifications (started,
	// stopped, concluded). Defaults to notify.NopNotifier.
	Notifier notify.Notifier

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Engine is the split-testing engine. Construct with New.
type Engine struct {
	store    storage.Store
	clock    Clock
	deployer notify.Deployer
	notifier notify.Notifier
	log      *slog.Logger
	tracer   trace.Tracer

	randMu sync.Mutex
	rand   *rand.Rand

	// deployMu serializes Deploy calls so at most one deployment request
	// reaches the content system per experiment lifetime.
	deployMu sync.Mutex
}

// New constructs an engine. Config.Store is required.
func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Deployer == nil {
		cfg.Deployer = notify.NopDeployer{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NopNotifier{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		store:    cfg.Store,
		clock:    cfg.Clock,
		deployer: cfg.Deployer,
		notifier: cfg.Notifier,
		log:      cfg.Logger,
		tracer:   otel.Tracer("splitengine/experiment"),
		rand:     cfg.Rand,
	}
}

// bernoulli draws true with probability p, under the rand mutex.
func (e *Engine) bernoulli(p float64) bool {
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return e.rand.Float64() < p
}

// Create registers a new experiment in draft status.
func (e *Engine) Create(ctx context.Context, req datatypes.CreateExperimentRequest) (*datatypes.Experiment, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Create")
	defer span.End()

	minSample := req.MinSampleForSignificance
	if minSample <= 0 {
		minSample = defaultMinSample
	}
	exp := &datatypes.Experiment{
		ID:           uuid.New().String(),
		ModuleID:     req.ModuleID,
		ModuleTitle:  req.ModuleTitle,
		SuggestionID: req.SuggestionID,
		Status:       datatypes.StatusDraft,
		Control: datatypes.Version{
			Name:        req.Control.Name,
			Description: req.Control.Description,
			Content:     req.Control.Content,
			ContentHash: req.Control.ContentHash,
		},
		Variant: datatypes.Version{
			Name:        req.Variant.Name,
			Description: req.Variant.Description,
			Content:     req.Variant.Content,
			ContentHash: req.Variant.ContentHash,
		},
		AllocationStrategy:       req.AllocationStrategy,
		TargetSampleSize:         req.TargetSampleSize,
		MinSampleForSignificance: minSample,
		Participants:             []datatypes.Participant{},
		EthicalEvents:            []datatypes.EthicalEvent{},
		AnalysisHistory:          []datatypes.Analysis{},
		CreatedBy:                req.CreatedBy,
		CreatedAt:                e.clock.Now().UTC(),
	}
	if err := e.store.Create(ctx, exp); err != nil {
		return nil, err
	}
	e.log.Info("experiment created",
		"experiment_id", exp.ID,
		"module_id", exp.ModuleID,
		"strategy", exp.AllocationStrategy,
		"target_sample", exp.TargetSampleSize)
	return exp, nil
}

// Get returns the experiment by id.
func (e *Engine) Get(ctx context.Context, id string) (*datatypes.Experiment, error) {
	return e.store.Get(ctx, id)
}

// List returns experiments matching the filter.
func (e *Engine) List(ctx context.Context, filter storage.Filter) ([]*datatypes.Experiment, error) {
	return e.store.List(ctx, filter)
}

// Summary builds the dashboard view of one experiment: progress, live
// per-arm competency rates, ethical flag, days running.
func (e *Engine) Summary(ctx context.Context, id string) (datatypes.ExperimentSummary, error) {
	exp, err := e.store.Get(ctx, id)
	if err != nil {
		return datatypes.ExperimentSummary{}, err
	}
	control := ComputeVersionMetrics(exp.Participants, datatypes.VersionControl)
	variant := ComputeVersionMetrics(exp.Participants, datatypes.VersionVariant)

	progress := 0.0
	if exp.TargetSampleSize > 0 {
		progress = float64(exp.SampleTotal()) / float64(exp.TargetSampleSize) * 100
	}
	days := 0.0
	if exp.StartedAt != nil {
		end := e.clock.Now().UTC()
		if exp.StoppedAt != nil {
			end = *exp.StoppedAt
		} else if exp.CompletedAt != nil {
			end = *exp.CompletedAt
		}
		days = end.Sub(*exp.StartedAt).Hours() / 24
	}
	return datatypes.ExperimentSummary{
		ExperimentID:    exp.ID,
		ModuleID:        exp.ModuleID,
		Status:          exp.Status,
		ProgressPercent: progress,
		SampleControl:   exp.SampleControl,
		SampleVariant:   exp.SampleVariant,
		TargetSample:    exp.TargetSampleSize,
		ControlRate:     control.CompetencyRate,
		VariantRate:     variant.CompetencyRate,
		EthicalConcern:  exp.HasEthicalConcern(),
		DaysRunning:     days,
		Winner:          exp.Winner,
		WinnerDeployed:  exp.WinnerDeployed,
	}, nil
}
