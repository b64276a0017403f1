// Package middleware – authentication gate.
//
// This file implements the per-request authentication gate. It extracts an
// access token from the Authorization header (preferred) or the
// "accessToken" cookie (fallback), validates it, and on success records the
// caller's identity in the Gin context under "userID" and "userRole". The
// gate itself never rejects a request: routes that need an identity opt in
// via RequireUser, so public endpoints stay reachable without a token.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys populated by AuthGate.
const (
	// CtxKeyUserID holds the authenticated user's id as a decimal string.
	CtxKeyUserID = "userID"
	// CtxKeyUserRole holds the authenticated user's role claim.
	CtxKeyUserRole = "userRole"
)

// accessTokenCookie is the fallback cookie carrying an access token.
const accessTokenCookie = "accessToken"

// TokenVerifier validates access tokens and extracts their claims.
// Satisfied by auth.TokenService.
type TokenVerifier interface {
	Validate(token, expectedType string) bool
	Subject(token string) (uint64, error)
	Role(token string) (string, error)
}

// AuthGate returns middleware that authenticates the request when a valid
// access token is present and stays silent otherwise.
//
// Token sources, in order:
//  1. Authorization: Bearer <token>
//  2. Cookie: accessToken=<token>
//
// A malformed, expired, or wrong-typed token is treated the same as no
// token at all: the request continues anonymously. Rejection is the job of
// RequireUser on protected routes.
func AuthGate(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" || !verifier.Validate(token, "ACCESS") {
			c.Next()
			return
		}
		userID, err := verifier.Subject(token)
		if err != nil {
			c.Next()
			return
		}
		role, _ := verifier.Role(token)

		c.Set(CtxKeyUserID, strconv.FormatUint(userID, 10))
		if role != "" {
			c.Set(CtxKeyUserRole, role)
		}
		c.Next()
	}
}

// RequireUser returns middleware that aborts with 401 unless AuthGate has
// established an identity on the request.
//
// The response mirrors the shared error envelope:
//
//	HTTP/1.1 401 Unauthorized
//	{
//	  "request_id": "<uuid>",
//	  "code":       "unauthorized",
//	  "message":    "authentication required"
//	}
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentUserID(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "unauthorized",
				"message":    "authentication required",
			})
			return
		}
		c.Next()
	}
}

// CurrentUserID returns the authenticated user's numeric id, when present.
func CurrentUserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(CtxKeyUserID)
	if !ok {
		return 0, false
	}
	s, _ := v.(string)
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// extractToken pulls the access token off the request, header first.
func extractToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if v, err := c.Cookie(accessTokenCookie); err == nil {
		return strings.TrimSpace(v)
	}
	return ""
}
