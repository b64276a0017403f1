// Package services – IdempotencyService
//
// Thin application wrapper around the idempotency repository: it scopes
// stored keys to the authenticated user and applies the retention TTL so
// replayed submissions can be answered with the originally created counsel.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-counsel-backend/internal/repo"
)

// IdempotencyService resolves and records idempotency keys for counsel
// submissions.
type IdempotencyService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// TTL is how long a stored key can be replayed. Default 24h.
	TTL time.Duration
}

// NewIdempotencyService constructs an IdempotencyService.
func NewIdempotencyService(db *gorm.DB) *IdempotencyService {
	return &IdempotencyService{DB: db, TTL: 24 * time.Hour}
}

// Lookup returns the counsel id previously recorded for (userID, key), when
// a non-expired record exists.
func (s *IdempotencyService) Lookup(ctx context.Context, userID uint64, key string) (uint64, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rec.CounselID, true, nil
}

// Save records key → counselID for userID. A concurrent duplicate insert is
// not an error: the first writer wins and the stored mapping stands.
func (s *IdempotencyService) Save(ctx context.Context, userID uint64, key string, counselID uint64, status int) error {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, err := repo.CreateIdempotency(ctx, s.DB, userID, key, counselID, status, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}
