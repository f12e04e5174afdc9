// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/praxislearn/splitengine/services/experiment/datatypes"
	"github.com/praxislearn/splitengine/services/experiment/engine"
	"github.com/praxislearn/splitengine/services/experiment/storage"
	"github.com/praxislearn/splitengine/services/experiment/storage/badgerstore"
)

var (
	simAllocations int
	simSeed        int64
	simWorkers     int
	simStrategy    string

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run a local allocation simulation against an in-memory engine",
		Long: `Creates a throwaway in-memory experiment and hammers it with concurrent
allocation calls from a seeded random source. Prints the observed
control/variant split and verifies the sample cap held under concurrency.
Useful for eyeballing strategy balance without touching a live service.`,
		Run: runSimulateCommand,
	}
)

func runSimulateCommand(cmd *cobra.Command, args []string) {
	store, err := badgerstore.Open(badgerstore.InMemoryConfig())
	if err != nil {
		logger.Error("cannot open in-memory store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	eng := engine.New(engine.Config{
		Store:  store,
		Rand:   rand.New(rand.NewSource(simSeed)),
		Logger: logger.Slog(),
	})
	ctx := context.Background()

	exp, err := eng.Create(ctx, datatypes.CreateExperimentRequest{
		ModuleID: "simulated-module",
		Control: datatypes.VersionPayload{
			Name:    "control",
			Content: json.RawMessage(`{"simulated":true}`),
		},
		Variant: datatypes.VersionPayload{
			Name:    "variant",
			Content: json.RawMessage(`{"simulated":true}`),
		},
		AllocationStrategy: datatypes.AllocationStrategy(simStrategy),
		TargetSampleSize:   simAllocations,
		CreatedBy:          "splitctl-simulate",
	})
	if err != nil {
		logger.Error("cannot create simulated experiment", "error", err)
		os.Exit(1)
	}
	if _, err := eng.Start(ctx, exp.ID); err != nil {
		logger.Error("cannot start simulated experiment", "error", err)
		os.Exit(1)
	}

	var control, variant, rejected atomic.Int64
	next := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(next)
		for i := 0; i < simAllocations; i++ {
			select {
			case next <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < simWorkers; w++ {
		g.Go(func() error {
			for i := range next {
				for {
					p, err := eng.Allocate(gctx, exp.ID, fmt.Sprintf("sim-participant-%d", i))
					if errors.Is(err, storage.ErrConcurrencyExhausted) {
						// Transient under heavy contention; retry the call.
						continue
					}
					if err != nil {
						if errors.Is(err, engine.ErrSampleExhausted) || errors.Is(err, engine.ErrExperimentNotActive) {
							rejected.Add(1)
							break
						}
						return err
					}
					if p.AssignedVersion == datatypes.VersionControl {
						control.Add(1)
					} else {
						variant.Add(1)
					}
					break
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("simulation failed", "error", err)
		os.Exit(1)
	}

	final, err := eng.Get(ctx, exp.ID)
	if err != nil {
		logger.Error("cannot read back experiment", "error", err)
		os.Exit(1)
	}

	total := control.Load() + variant.Load()
	fmt.Printf("strategy:     %s\n", simStrategy)
	fmt.Printf("seed:         %d\n", simSeed)
	fmt.Printf("allocations:  %d (rejected %d)\n", total, rejected.Load())
	fmt.Printf("control:      %d (%.1f%%)\n", control.Load(), pct(control.Load(), total))
	fmt.Printf("variant:      %d (%.1f%%)\n", variant.Load(), pct(variant.Load(), total))
	fmt.Printf("final status: %s\n", final.Status)
	if final.SampleTotal() > final.TargetSampleSize {
		fmt.Println("SAMPLE CAP VIOLATED: this is a bug")
		os.Exit(1)
	}
	fmt.Printf("sample cap:   held (%d / %d)\n", final.SampleTotal(), final.TargetSampleSize)
}

func pct(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
