// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// RefreshToken model.
//
// The refresh record is the server-side half of the rotation protocol:
// a token is redeemable only while its record exists, and the record is
// removed with a conditional delete so that two concurrent redemptions of
// the same token can never both succeed. The service layer composes these
// functions inside a transaction (see services.AuthService.Rotate).
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-counsel-backend/internal/domain"
)

// GetRefreshByToken fetches the record whose stored value equals the
// presented token, or ErrNotFound.
func GetRefreshByToken(ctx context.Context, db *gorm.DB, token string) (*domain.RefreshToken, error) {
	var rt domain.RefreshToken
	err := db.WithContext(ctx).
		Where("token = ?", token).
		First(&rt).Error
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// DeleteRefreshByToken removes the record matching the exact token value and
// returns the number of rows removed. A zero count means the token was
// already redeemed or never existed; the caller uses this as the single-use
// guard in the rotation protocol.
func DeleteRefreshByToken(ctx context.Context, db *gorm.DB, token string) (int64, error) {
	res := db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&domain.RefreshToken{})
	return res.RowsAffected, res.Error
}

// DeleteRefreshByUser removes any live record for the user. Deleting a user
// with no record is not an error (idempotent revoke).
func DeleteRefreshByUser(ctx context.Context, db *gorm.DB, userID uint64) error {
	return db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.RefreshToken{}).Error
}

// CreateRefresh persists a new record for the user. The unique index on
// user_id enforces the single-live-record invariant; callers must delete the
// previous record first (inside the same transaction).
func CreateRefresh(ctx context.Context, db *gorm.DB, userID uint64, token string, expiresAt time.Time) (*domain.RefreshToken, error) {
	rt := &domain.RefreshToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rt).Error; err != nil {
		return nil, err
	}
	return rt, nil
}
