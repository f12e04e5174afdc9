// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxislearn/splitengine/services/experiment/datatypes"
	"github.com/praxislearn/splitengine/services/experiment/engine"
	"github.com/praxislearn/splitengine/services/experiment/notify"
	"github.com/praxislearn/splitengine/services/experiment/storage/badgerstore"
)

type ackDeployer struct {
	deployed int
}

func (d *ackDeployer) Deploy(ctx context.Context, req notify.DeploymentRequest) error {
	d.deployed++
	return nil
}

type testServer struct {
	router   *gin.Engine
	deployer *ackDeployer
}

func newTestServer(t *testing.T, authToken string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	deployer := &ackDeployer{}
	eng := engine.New(engine.Config{
		Store:    store,
		Rand:     rand.New(rand.NewSource(1)),
		Deployer: deployer,
	})

	router := gin.New()
	SetupRoutes(router, eng, authToken)
	return &testServer{router: router, deployer: deployer}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func createBody() gin.H {
	return gin.H{
		"module_id":    "mod-fractions-101",
		"module_title": "Fractions deep dive",
		"control": gin.H{
			"name":    "current lesson",
			"content": gin.H{"style": "worked-examples"},
		},
		"variant": gin.H{
			"name":    "socratic rewrite",
			"content": gin.H{"style": "socratic"},
		},
		"allocation_strategy": "random_50_50",
		"target_sample_size":  10,
	}
}

func TestHealthAndAuth(t *testing.T) {
	srv := newTestServer(t, "secret-token")

	t.Run("health is open", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("metrics is open", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/metrics", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("v1 requires the token", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/v1/experiments", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = srv.do(t, http.MethodGet, "/v1/experiments", "wrong-token", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = srv.do(t, http.MethodGet, "/v1/experiments", "secret-token", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestExperimentEndpoints(t *testing.T) {
	srv := newTestServer(t, "")

	t.Run("create validates the payload", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/v1/experiments", "", gin.H{"module_id": "mod-x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		body := createBody()
		body["allocation_strategy"] = "coin_flip"
		rec = srv.do(t, http.MethodPost, "/v1/experiments", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		body = createBody()
		body["control"] = gin.H{"name": "current lesson", "content": nil}
		rec = srv.do(t, http.MethodPost, "/v1/experiments", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "null content is rejected")
	})

	var exp datatypes.Experiment
	rec := srv.do(t, http.MethodPost, "/v1/experiments", "", createBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &exp)
	require.NotEmpty(t, exp.ID)

	t.Run("get and list", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/v1/experiments/"+exp.ID, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = srv.do(t, http.MethodGet, "/v1/experiments/does-not-exist", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var listing struct {
			Count int `json:"count"`
		}
		rec = srv.do(t, http.MethodGet, "/v1/experiments?status=draft", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &listing)
		assert.Equal(t, 1, listing.Count)
	})

	t.Run("analysis before any run is 404", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/v1/experiments/"+exp.ID+"/analysis", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("lifecycle over HTTP", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/start", "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = srv.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/start", "", nil)
		assert.Equal(t, http.StatusConflict, rec.Code, "double start conflicts")

		rec = srv.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/pause", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		rec = srv.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/resume", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("enrolment allocates against the active experiment", func(t *testing.T) {
		var resp datatypes.EnrolmentResponse
		rec := srv.do(t, http.MethodPost, "/v1/enrolments", "", gin.H{
			"module_id":       "mod-fractions-101",
			"participant_ref": "learner-1",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &resp)
		assert.True(t, resp.Allocated)
		assert.Equal(t, exp.ID, resp.ExperimentID)

		rec = srv.do(t, http.MethodPost, "/v1/enrolments", "", gin.H{
			"module_id":       "mod-without-experiment",
			"participant_ref": "learner-2",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &resp)
		assert.False(t, resp.Allocated)
	})

	t.Run("outcome records and reports the experiment status", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/v1/outcomes", "", gin.H{
			"experiment_id":   exp.ID,
			"participant_ref": "learner-1",
			"delta":           gin.H{"competency_achieved": true, "satisfaction_score": 4},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			Participant      datatypes.Participant      `json:"participant"`
			ExperimentStatus datatypes.ExperimentStatus `json:"experiment_status"`
		}
		decode(t, rec, &resp)
		assert.True(t, resp.Participant.CompetencyAchieved)
		assert.Equal(t, datatypes.StatusActive, resp.ExperimentStatus)

		rec = srv.do(t, http.MethodPost, "/v1/outcomes", "", gin.H{
			"experiment_id":   exp.ID,
			"participant_ref": "learner-ghost",
			"delta":           gin.H{"completed": true},
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = srv.do(t, http.MethodPost, "/v1/outcomes", "", gin.H{
			"experiment_id":   exp.ID,
			"participant_ref": "learner-1",
			"delta":           gin.H{"satisfaction_score": 11},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "score outside 1-5")
	})

	t.Run("summary and analyze", func(t *testing.T) {
		var summary datatypes.ExperimentSummary
		rec := srv.do(t, http.MethodGet, "/v1/experiments/"+exp.ID+"/summary", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &summary)
		assert.Equal(t, 1, summary.SampleControl+summary.SampleVariant)

		rec = srv.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/analyze", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var analysis datatypes.Analysis
		decode(t, rec, &analysis)
		assert.False(t, analysis.SampleSizeSufficient)

		rec = srv.do(t, http.MethodGet, "/v1/experiments/"+exp.ID+"/analysis", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("stop requires a reason", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/stop", "", gin.H{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = srv.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/stop", "", gin.H{
			"reason": "reviewed enough data",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("conclude and deploy", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/conclude", "", gin.H{
			"winner": "variant",
			"notes":  "overridden after manual review",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = srv.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/deploy", "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 1, srv.deployer.deployed)

		rec = srv.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/deploy", "", nil)
		assert.Equal(t, http.StatusConflict, rec.Code, "second deploy conflicts")
	})
}

func TestSequentialFillOverHTTP(t *testing.T) {
	srv := newTestServer(t, "")

	body := createBody()
	body["allocation_strategy"] = "sequential"
	body["target_sample_size"] = 4
	var exp datatypes.Experiment
	rec := srv.do(t, http.MethodPost, "/v1/experiments", "", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	decode(t, rec, &exp)
	rec = srv.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/start", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	for i := 0; i < 4; i++ {
		rec := srv.do(t, http.MethodPost, "/v1/enrolments", "", gin.H{
			"module_id":       "mod-fractions-101",
			"participant_ref": fmt.Sprintf("learner-%d", i),
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	var got datatypes.Experiment
	rec = srv.do(t, http.MethodGet, "/v1/experiments/"+exp.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &got)
	assert.Equal(t, datatypes.StatusCompleted, got.Status)
	assert.Equal(t, 2, got.SampleControl)
	assert.Equal(t, 2, got.SampleVariant)

	t.Run("late enrolment is a skip", func(t *testing.T) {
		var resp datatypes.EnrolmentResponse
		rec := srv.do(t, http.MethodPost, "/v1/enrolments", "", gin.H{
			"module_id":       "mod-fractions-101",
			"participant_ref": "learner-late",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &resp)
		assert.False(t, resp.Allocated)
	})
}
