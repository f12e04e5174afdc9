// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func authRouter(token string) (*gin.Engine, *string) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	var caller string
	router.GET("/protected", BearerAuth(token), func(c *gin.Context) {
		caller = Caller(c)
		c.Status(http.StatusOK)
	})
	return router, &caller
}

func get(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestBearerAuth(t *testing.T) {
	t.Run("no token configured passes through as local operator", func(t *testing.T) {
		router, caller := authRouter("")
		rec := get(router, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "local-operator", *caller)
	})

	t.Run("valid token", func(t *testing.T) {
		router, caller := authRouter("secret")
		rec := get(router, "Bearer secret")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "token-bearer", *caller)
	})

	t.Run("missing header", func(t *testing.T) {
		router, _ := authRouter("secret")
		rec := get(router, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong token", func(t *testing.T) {
		router, _ := authRouter("secret")
		rec := get(router, "Bearer not-the-secret")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		router, _ := authRouter("secret")
		rec := get(router, "Basic secret")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
