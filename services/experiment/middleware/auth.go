// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the experiment service.
//
// Authentication and authorization are external collaborators of the
// split-testing engine; this middleware is only the seam. With no token
// configured every request is authenticated as the local operator, which
// keeps single-machine setups working with zero infrastructure. When
// EXPERIMENT_AUTH_TOKEN is set, requests must carry it as a bearer token.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// callerKey is the gin context key for the authenticated caller identity.
const callerKey = "splitengine_caller"

// localCaller is the identity assigned when no token is configured.
const localCaller = "local-operator"

// Caller returns the authenticated caller identity, if any.
func Caller(c *gin.Context) string {
	v, _ := c.Get(callerKey)
	s, _ := v.(string)
	return s
}

// BearerAuth returns middleware enforcing a static bearer token. An empty
// token disables enforcement.
func BearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Set(callerKey, localCaller)
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing bearer token"})
			return
		}
		c.Set(callerKey, "token-bearer")
		c.Next()
	}
}
