// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity for the demo authentication scheme:
// the X-User-ID header names the acting user, with a development fallback.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID is the request header carrying the caller identity.
const HeaderUserID = "X-User-ID"

// ctxKeyUserID is the Gin context key under which the resolved user id is
// stored. Downstream middleware (rate limiting, idempotency) and handlers
// read it via UserID.
const ctxKeyUserID = "userID"

// defaultUserID is the development fallback identity used when no header is
// present. It keeps local testing friction-free; production deployments put
// an authenticating proxy in front.
const defaultUserID = "demo-user"

// Identity resolves the acting user from the X-User-ID header and stashes it
// in the Gin context. Place it before any middleware that keys on the user
// (rate limiting, idempotency lookups).
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if uid == "" {
			uid = defaultUserID
		}
		c.Set(ctxKeyUserID, uid)
		c.Next()
	}
}

// UserID returns the resolved user id for the request. It falls back to the
// header and then the development default so callers never receive an empty
// identity.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
			return h
		}
	}
	return defaultUserID
}
