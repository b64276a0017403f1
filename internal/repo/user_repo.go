// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-counsel-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetUser fetches a user by primary key, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id uint64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByKakaoID fetches a user by the external provider identifier, or
// ErrNotFound.
func GetUserByKakaoID(ctx context.Context, db *gorm.DB, kakaoID string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("kakao_id = ?", kakaoID).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user row. Role and status default to USER/ACTIVE
// when unset.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	if u.Status == "" {
		u.Status = domain.StatusActive
	}
	return db.WithContext(ctx).Create(u).Error
}

// UpdateUserProfile refreshes the provider profile fields and bumps the
// last-login timestamp. Returns ErrNotFound if no row was updated.
func UpdateUserProfile(ctx context.Context, db *gorm.DB, id uint64, nickname string, profileURL, thumbnailURL *string, loginAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"nickname":            nickname,
			"profile_image_url":   profileURL,
			"thumbnail_image_url": thumbnailURL,
			"last_login_at":       loginAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UserExists reports whether an active lookup by id succeeds. A missing row
// is not an error.
func UserExists(ctx context.Context, db *gorm.DB, id uint64) (bool, error) {
	_, err := GetUser(ctx, db, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
