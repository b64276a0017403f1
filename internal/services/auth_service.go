// Package services – AuthService
//
// This file implements the AuthService, which owns login, refresh-token
// rotation, and logout. It builds on the stateless auth.TokenService and the
// persisted refresh record: a refresh token is redeemable exactly once, and
// redeeming it atomically replaces the server-side record with one for the
// newly issued token.
//
// Service-level errors (e.g., ErrInvalidRefreshToken) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-counsel-backend/internal/auth"
	"github.com/tbourn/go-counsel-backend/internal/domain"
	"github.com/tbourn/go-counsel-backend/internal/repo"
)

// TokenPair carries a freshly issued access/refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginProfile is the provider profile handed over after the upstream OAuth2
// handshake. Only KakaoID is mandatory.
type LoginProfile struct {
	KakaoID           string
	Nickname          string
	ProfileImageURL   *string
	ThumbnailImageURL *string
}

// AuthService provides login, rotation, and revocation on top of the token
// service and the refresh-record store.
type AuthService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Tokens signs and validates JWTs.
	Tokens *auth.TokenService
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, tokens *auth.TokenService) *AuthService {
	return &AuthService{DB: db, Tokens: tokens}
}

// Login upserts the user for the given provider profile, issues a fresh
// token pair, and replaces any live refresh record in the same transaction.
func (s *AuthService) Login(ctx context.Context, p LoginProfile) (*domain.User, *TokenPair, error) {
	kakaoID := strings.TrimSpace(p.KakaoID)
	if kakaoID == "" {
		return nil, nil, ErrUserNotFound
	}
	nickname := strings.TrimSpace(p.Nickname)
	if nickname == "" {
		nickname = "카카오사용자"
	}

	now := time.Now().UTC()
	user, err := repo.GetUserByKakaoID(ctx, s.DB, kakaoID)
	switch {
	case err == nil:
		if user.Status == domain.StatusDeleted {
			return nil, nil, ErrUserNotFound
		}
		if uerr := repo.UpdateUserProfile(ctx, s.DB, user.ID, nickname, p.ProfileImageURL, p.ThumbnailImageURL, now); uerr != nil {
			return nil, nil, uerr
		}
		user.Nickname = nickname
		user.ProfileImageURL = p.ProfileImageURL
		user.ThumbnailImageURL = p.ThumbnailImageURL
		user.LastLoginAt = &now
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = &domain.User{
			KakaoID:           kakaoID,
			Nickname:          nickname,
			ProfileImageURL:   p.ProfileImageURL,
			ThumbnailImageURL: p.ThumbnailImageURL,
			Role:              domain.RoleUser,
			Status:            domain.StatusActive,
			LastLoginAt:       &now,
		}
		if cerr := repo.CreateUser(ctx, s.DB, user); cerr != nil {
			return nil, nil, cerr
		}
	default:
		return nil, nil, err
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Rotate redeems a refresh token for a new pair. The presented token must be
// a valid REFRESH JWT with a live record matching its exact value and owner;
// the record is then deleted and a new one persisted as a single atomic
// unit. Redeeming the same token twice always fails the second time with
// ErrInvalidRefreshToken, because the conditional delete finds nothing.
func (s *AuthService) Rotate(ctx context.Context, presented string) (*TokenPair, error) {
	if !s.Tokens.Validate(presented, auth.TypeRefresh) {
		return nil, ErrInvalidRefreshToken
	}

	var pair *TokenPair
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := repo.GetRefreshByToken(ctx, tx, presented)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidRefreshToken
		}
		if err != nil {
			return err
		}

		// Stale records are purged on read.
		if rec.ExpiresAt.Before(time.Now().UTC()) {
			if _, derr := repo.DeleteRefreshByToken(ctx, tx, presented); derr != nil {
				return derr
			}
			return ErrInvalidRefreshToken
		}

		subject, err := s.Tokens.Subject(presented)
		if err != nil || subject != rec.UserID {
			return ErrInvalidRefreshToken
		}

		// Single-use guard: only the rotation that actually removes the row
		// may issue the replacement pair.
		deleted, err := repo.DeleteRefreshByToken(ctx, tx, presented)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return ErrInvalidRefreshToken
		}

		user, err := repo.GetUser(ctx, tx, rec.UserID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		pair, err = s.issuePairTx(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout deletes the record matching the presented refresh token, if any.
// An unknown or empty token is a silent no-op.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	_, err := repo.DeleteRefreshByToken(ctx, s.DB, refreshToken)
	return err
}

// Revoke deletes any live refresh record for the user (forced invalidation).
func (s *AuthService) Revoke(ctx context.Context, userID uint64) error {
	return repo.DeleteRefreshByUser(ctx, s.DB, userID)
}

// issuePair issues a token pair and swaps the refresh record inside a fresh
// transaction.
func (s *AuthService) issuePair(ctx context.Context, user *domain.User) (*TokenPair, error) {
	var pair *TokenPair
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var terr error
		pair, terr = s.issuePairTx(ctx, tx, user)
		return terr
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// issuePairTx issues a new access+refresh pair for the user and persists the
// refresh record within the caller's transaction, removing any previous one
// first so the single-live-record invariant holds.
func (s *AuthService) issuePairTx(ctx context.Context, tx *gorm.DB, user *domain.User) (*TokenPair, error) {
	access, err := s.Tokens.IssueAccessToken(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}
	refresh, err := s.Tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}
	expiresAt, err := s.Tokens.ExpiresAt(refresh)
	if err != nil {
		return nil, err
	}

	if err := repo.DeleteRefreshByUser(ctx, tx, user.ID); err != nil {
		return nil, err
	}
	if _, err := repo.CreateRefresh(ctx, tx, user.ID, refresh, expiresAt); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
