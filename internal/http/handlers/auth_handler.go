// Authentication HTTP handlers.
//
// This file exposes the authentication endpoints:
//   - POST /auth/login    (Kakao profile upsert + token pair)
//   - POST /auth/refresh  (single-use refresh rotation)
//   - POST /auth/logout   (revoke the presented refresh token)
//
// Tokens travel two ways at once: in the JSON body for API clients and as
// cookies ("accessToken", "refreshToken") for browser clients. Both are set
// on login and refresh and cleared on logout.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-counsel-backend/internal/domain"
	"github.com/tbourn/go-counsel-backend/internal/services"
)

// Cookie names used for the browser token flow.
const (
	cookieAccessToken  = "accessToken"
	cookieRefreshToken = "refreshToken"
)

// AuthService defines the authentication operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type AuthService interface {
	// Login upserts the user identified by the Kakao profile and issues a
	// fresh token pair.
	Login(ctx context.Context, profile services.LoginProfile) (*domain.User, *services.TokenPair, error)
	// Rotate exchanges a valid, unused refresh token for a new pair.
	Rotate(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	// Logout revokes the presented refresh token.
	Logout(ctx context.Context, refreshToken string) error
}

// AuthHandlers groups the authentication endpoints.
type AuthHandlers struct {
	svc AuthService

	// CookieSecure controls the Secure attribute on auth cookies; enable
	// behind TLS.
	CookieSecure bool
	// AccessMaxAge / RefreshMaxAge are the cookie lifetimes in seconds.
	AccessMaxAge  int
	RefreshMaxAge int
}

// NewAuthHandlers constructs AuthHandlers bound to the given service.
func NewAuthHandlers(svc AuthService, accessMaxAge, refreshMaxAge int, secure bool) *AuthHandlers {
	return &AuthHandlers{
		svc:           svc,
		CookieSecure:  secure,
		AccessMaxAge:  accessMaxAge,
		RefreshMaxAge: refreshMaxAge,
	}
}

//
// DTOs
//

// LoginRequest is the JSON payload for the Kakao login upsert.
type LoginRequest struct {
	// KakaoID is the caller's Kakao account identifier.
	KakaoID string `json:"kakaoId" binding:"required" example:"3412345678"`
	// Nickname is the display name; a default is used when empty.
	Nickname string `json:"nickname" example:"지수"`
	// ProfileImageURL optionally carries the profile image.
	ProfileImageURL *string `json:"profileImageUrl,omitempty"`
	// ThumbnailImageURL optionally carries the thumbnail image.
	ThumbnailImageURL *string `json:"thumbnailImageUrl,omitempty"`
}

// RefreshRequest is the JSON payload for token rotation. The token may
// instead arrive in the "refreshToken" cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LoginResponse carries the upserted identity plus the fresh token pair.
type LoginResponse struct {
	UserID       uint64 `json:"userId" example:"42"`
	Nickname     string `json:"nickname" example:"지수"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

//
// Handlers
//

// Login godoc
// @ID          login
// @Summary     Log in with a Kakao profile
// @Description Upserts the user identified by kakaoId and returns a fresh access/refresh token pair.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.LoginRequest  true  "Kakao profile"
//
// @Success     200  {object}  handlers.LoginResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Account deleted"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/login [post]
func (h *AuthHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.KakaoID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "kakaoId required")
		return
	}

	user, pair, err := h.svc.Login(c.Request.Context(), services.LoginProfile{
		KakaoID:           strings.TrimSpace(req.KakaoID),
		Nickname:          strings.TrimSpace(req.Nickname),
		ProfileImageURL:   req.ProfileImageURL,
		ThumbnailImageURL: req.ThumbnailImageURL,
	})
	if errors.Is(err, services.ErrUserNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "account no longer available")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	h.setTokenCookies(c, pair)
	ok(c, http.StatusOK, LoginResponse{
		UserID:       user.ID,
		Nickname:     user.Nickname,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Refresh godoc
// @ID          refreshTokens
// @Summary     Rotate the refresh token
// @Description Exchanges a valid refresh token for a brand-new access/refresh pair. Each refresh token is single-use.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RefreshRequest  false  "Refresh token (or refreshToken cookie)"
//
// @Success     200  {object}  services.TokenPair
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid refresh token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/refresh [post]
func (h *AuthHandlers) Refresh(c *gin.Context) {
	token := h.refreshTokenFrom(c)
	if token == "" {
		fail(c, http.StatusUnauthorized, ErrCodeInvalidRefreshToken, "refresh token required")
		return
	}

	pair, err := h.svc.Rotate(c.Request.Context(), token)
	switch {
	case errors.Is(err, services.ErrInvalidRefreshToken), errors.Is(err, services.ErrUserNotFound):
		h.clearTokenCookies(c)
		fail(c, http.StatusUnauthorized, ErrCodeInvalidRefreshToken, "invalid refresh token")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	h.setTokenCookies(c, pair)
	ok(c, http.StatusOK, pair)
}

// Logout godoc
// @ID          logout
// @Summary     Log out
// @Description Revokes the presented refresh token and clears auth cookies. Succeeds even when no token is supplied.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RefreshRequest  false  "Refresh token (or refreshToken cookie)"
//
// @Success     204  {string}  string  "No Content"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/logout [post]
func (h *AuthHandlers) Logout(c *gin.Context) {
	token := h.refreshTokenFrom(c)
	if token != "" {
		if err := h.svc.Logout(c.Request.Context(), token); err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
			return
		}
	}
	h.clearTokenCookies(c)
	noContent(c)
}

// refreshTokenFrom pulls the refresh token from the JSON body when present,
// otherwise from the cookie.
func (h *AuthHandlers) refreshTokenFrom(c *gin.Context) string {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err == nil && strings.TrimSpace(req.RefreshToken) != "" {
		return strings.TrimSpace(req.RefreshToken)
	}
	if v, err := c.Cookie(cookieRefreshToken); err == nil {
		return strings.TrimSpace(v)
	}
	return ""
}

func (h *AuthHandlers) setTokenCookies(c *gin.Context, pair *services.TokenPair) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieAccessToken, pair.AccessToken, h.AccessMaxAge, "/", "", h.CookieSecure, true)
	c.SetCookie(cookieRefreshToken, pair.RefreshToken, h.RefreshMaxAge, "/", "", h.CookieSecure, true)
}

func (h *AuthHandlers) clearTokenCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieAccessToken, "", -1, "/", "", h.CookieSecure, true)
	c.SetCookie(cookieRefreshToken, "", -1, "/", "", h.CookieSecure, true)
}
