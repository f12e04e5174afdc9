// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/praxislearn/splitengine/pkg/logging"
	"github.com/praxislearn/splitengine/services/experiment/datatypes"
)

var logger = logging.New(logging.Config{Service: "splitctl"})

var (
	rootCmd = &cobra.Command{
		Use:   "splitctl",
		Short: "A CLI to manage content split-testing experiments",
		Long: `splitctl drives the experiment service: create experiments from YAML
definitions, start and stop them, inspect live summaries, run statistical
analyses, and deploy concluded winners.`,
	}

	definitionFile string
	createCmd      = &cobra.Command{
		Use:   "create",
		Short: "Create an experiment from a YAML definition file",
		Run:   runCreateCommand,
	}

	listStatus string
	listModule string
	listCmd    = &cobra.Command{
		Use:   "list",
		Short: "List experiments, optionally filtered by status or module",
		Run:   runListCommand,
	}
	getCmd = &cobra.Command{
		Use:   "get [experiment-id]",
		Short: "Show one experiment",
		Args:  cobra.ExactArgs(1),
		Run:   runGetCommand,
	}
	summaryCmd = &cobra.Command{
		Use:   "summary [experiment-id]",
		Short: "Show the live summary of an experiment",
		Args:  cobra.ExactArgs(1),
		Run:   runSummaryCommand,
	}

	startCmd = &cobra.Command{
		Use:   "start [experiment-id]",
		Short: "Start a draft experiment",
		Args:  cobra.ExactArgs(1),
		Run:   lifecycleRunner("start"),
	}
	pauseCmd = &cobra.Command{
		Use:   "pause [experiment-id]",
		Short: "Pause an active experiment",
		Args:  cobra.ExactArgs(1),
		Run:   lifecycleRunner("pause"),
	}
	resumeCmd = &cobra.Command{
		Use:   "resume [experiment-id]",
		Short: "Resume a paused experiment",
		Args:  cobra.ExactArgs(1),
		Run:   lifecycleRunner("resume"),
	}

	stopReason string
	stopCmd    = &cobra.Command{
		Use:   "stop [experiment-id]",
		Short: "Stop an experiment (requires --reason)",
		Args:  cobra.ExactArgs(1),
		Run:   runStopCommand,
	}

	concludeWinner string
	concludeNotes  string
	concludeCmd    = &cobra.Command{
		Use:   "conclude [experiment-id]",
		Short: "Conclude an experiment with a winner choice",
		Args:  cobra.ExactArgs(1),
		Run:   runConcludeCommand,
	}
	deployCmd = &cobra.Command{
		Use:   "deploy [experiment-id]",
		Short: "Deploy the concluded winner to the content system",
		Args:  cobra.ExactArgs(1),
		Run:   lifecycleRunner("deploy"),
	}
	analyzeCmd = &cobra.Command{
		Use:   "analyze [experiment-id]",
		Short: "Run a statistical analysis and print the result",
		Args:  cobra.ExactArgs(1),
		Run:   runAnalyzeCommand,
	}
)

func init() {
	createCmd.Flags().StringVarP(&definitionFile, "file", "f", "", "YAML experiment definition (required)")
	_ = createCmd.MarkFlagRequired("file")

	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	listCmd.Flags().StringVar(&listModule, "module", "", "filter by module id")

	stopCmd.Flags().StringVar(&stopReason, "reason", "", "reason for stopping (required)")
	_ = stopCmd.MarkFlagRequired("reason")

	concludeCmd.Flags().StringVar(&concludeWinner, "winner", "", "winner: control, variant, or no_difference (required)")
	_ = concludeCmd.MarkFlagRequired("winner")
	concludeCmd.Flags().StringVar(&concludeNotes, "notes", "", "justification notes")

	simulateCmd.Flags().IntVarP(&simAllocations, "allocations", "n", 2000, "number of allocations to simulate")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 1, "random seed")
	simulateCmd.Flags().IntVar(&simWorkers, "workers", 8, "concurrent allocation workers")
	simulateCmd.Flags().StringVar(&simStrategy, "strategy", "random_50_50", "allocation strategy")

	rootCmd.AddCommand(createCmd, listCmd, getCmd, summaryCmd,
		startCmd, pauseCmd, resumeCmd, stopCmd, concludeCmd, deployCmd,
		analyzeCmd, simulateCmd)
}

// serverURL resolves the experiment service address. Defaults to localhost
// because splitctl is usually run on the host next to the service.
func serverURL() string {
	url := os.Getenv("SPLITCTL_SERVER_URL")
	if url == "" {
		url = "http://localhost:12310"
	}
	return url
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// doRequest performs an authenticated request against the service and
// returns the response body, failing loudly on a non-2xx status.
func doRequest(method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, serverURL()+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := os.Getenv("SPLITCTL_AUTH_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to experiment service failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("service returned %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// printJSON pretty-prints a JSON response body.
func printJSON(body []byte) {
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(out.String())
}

// experimentDefinition is the YAML shape accepted by splitctl create.
// Version content is arbitrary YAML, converted to JSON for the service.
type experimentDefinition struct {
	ModuleID                 string            `yaml:"module_id"`
	ModuleTitle              string            `yaml:"module_title"`
	SuggestionID             string            `yaml:"suggestion_id"`
	AllocationStrategy       string            `yaml:"allocation_strategy"`
	TargetSampleSize         int               `yaml:"target_sample_size"`
	MinSampleForSignificance int               `yaml:"min_sample_for_significance"`
	CreatedBy                string            `yaml:"created_by"`
	Control                  versionDefinition `yaml:"control"`
	Variant                  versionDefinition `yaml:"variant"`
}

type versionDefinition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Content     any    `yaml:"content"`
	ContentHash string `yaml:"content_hash"`
}

func (v versionDefinition) payload() (datatypes.VersionPayload, error) {
	content, err := json.Marshal(v.Content)
	if err != nil {
		return datatypes.VersionPayload{}, fmt.Errorf("failed to convert content to JSON: %w", err)
	}
	return datatypes.VersionPayload{
		Name:        v.Name,
		Description: v.Description,
		Content:     content,
		ContentHash: v.ContentHash,
	}, nil
}

func runCreateCommand(cmd *cobra.Command, args []string) {
	raw, err := os.ReadFile(definitionFile)
	if err != nil {
		logger.Error("cannot read definition file", "file", definitionFile, "error", err)
		os.Exit(1)
	}
	var def experimentDefinition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		logger.Error("invalid definition file", "file", definitionFile, "error", err)
		os.Exit(1)
	}
	control, err := def.Control.payload()
	if err != nil {
		logger.Error("invalid control version", "error", err)
		os.Exit(1)
	}
	variant, err := def.Variant.payload()
	if err != nil {
		logger.Error("invalid variant version", "error", err)
		os.Exit(1)
	}
	req := datatypes.CreateExperimentRequest{
		ModuleID:                 def.ModuleID,
		ModuleTitle:              def.ModuleTitle,
		Control:                  control,
		Variant:                  variant,
		AllocationStrategy:       datatypes.AllocationStrategy(def.AllocationStrategy),
		TargetSampleSize:         def.TargetSampleSize,
		MinSampleForSignificance: def.MinSampleForSignificance,
		CreatedBy:                def.CreatedBy,
	}
	if def.SuggestionID != "" {
		req.SuggestionID = &def.SuggestionID
	}
	body, err := doRequest(http.MethodPost, "/v1/experiments", req)
	if err != nil {
		logger.Error("create failed", "error", err)
		os.Exit(1)
	}
	printJSON(body)
}

func runListCommand(cmd *cobra.Command, args []string) {
	path := "/v1/experiments?status=" + listStatus + "&module_id=" + listModule
	body, err := doRequest(http.MethodGet, path, nil)
	if err != nil {
		logger.Error("list failed", "error", err)
		os.Exit(1)
	}
	printJSON(body)
}

func runGetCommand(cmd *cobra.Command, args []string) {
	body, err := doRequest(http.MethodGet, "/v1/experiments/"+args[0], nil)
	if err != nil {
		logger.Error("get failed", "error", err)
		os.Exit(1)
	}
	printJSON(body)
}

func runSummaryCommand(cmd *cobra.Command, args []string) {
	body, err := doRequest(http.MethodGet, "/v1/experiments/"+args[0]+"/summary", nil)
	if err != nil {
		logger.Error("summary failed", "error", err)
		os.Exit(1)
	}
	printJSON(body)
}

// lifecycleRunner builds a Run function for the body-less lifecycle verbs.
func lifecycleRunner(action string) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		body, err := doRequest(http.MethodPost, "/v1/experiments/"+args[0]+"/"+action, nil)
		if err != nil {
			logger.Error(action+" failed", "error", err)
			os.Exit(1)
		}
		printJSON(body)
	}
}

func runStopCommand(cmd *cobra.Command, args []string) {
	body, err := doRequest(http.MethodPost, "/v1/experiments/"+args[0]+"/stop",
		datatypes.StopRequest{Reason: stopReason})
	if err != nil {
		logger.Error("stop failed", "error", err)
		os.Exit(1)
	}
	printJSON(body)
}

func runConcludeCommand(cmd *cobra.Command, args []string) {
	body, err := doRequest(http.MethodPost, "/v1/experiments/"+args[0]+"/conclude",
		datatypes.ConcludeRequest{Winner: datatypes.Winner(concludeWinner), Notes: concludeNotes})
	if err != nil {
		logger.Error("conclude failed", "error", err)
		os.Exit(1)
	}
	printJSON(body)
}

func runAnalyzeCommand(cmd *cobra.Command, args []string) {
	body, err := doRequest(http.MethodPost, "/v1/experiments/"+args[0]+"/analyze", nil)
	if err != nil {
		logger.Error("analyze failed", "error", err)
		os.Exit(1)
	}
	printJSON(body)
}
