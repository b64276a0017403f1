// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Counsel
// model and its status state machine.
//
// Error semantics:
//   - When a counsel is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Terminal transitions are conditional UPDATEs guarded on the PENDING
//     status; the returned row count tells the caller whether the transition
//     actually happened. A repeat terminal call affects zero rows and is
//     therefore harmless.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-counsel-backend/internal/domain"
)

// CreateCounsel inserts a new counsel row. Status defaults to PENDING.
func CreateCounsel(ctx context.Context, db *gorm.DB, c *domain.Counsel) error {
	if c.Status == "" {
		c.Status = domain.StatusPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(c).Error
}

// GetCounsel fetches a counsel by primary key, or ErrNotFound. Ownership is
// checked at the service layer so that a wrong owner yields Forbidden rather
// than NotFound.
func GetCounsel(ctx context.Context, db *gorm.DB, id uint64) (*domain.Counsel, error) {
	var c domain.Counsel
	if err := db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CounselExists reports whether a counsel row with the given id exists.
func CounselExists(ctx context.Context, db *gorm.DB, id uint64) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Counsel{}).
		Where("id = ?", id).
		Count(&n).Error
	return n > 0, err
}

// ListCounselsCursor returns up to limit counsels for the user ordered by id
// descending, starting strictly below cursorID when it is non-zero. The id
// of the last returned row is the next cursor.
func ListCounselsCursor(ctx context.Context, db *gorm.DB, userID, cursorID uint64, limit int) ([]domain.Counsel, error) {
	q := db.WithContext(ctx).
		Where("user_id = ?", userID)
	if cursorID > 0 {
		q = q.Where("id < ?", cursorID)
	}
	var out []domain.Counsel
	err := q.Order("id desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkCounselCompleted transitions a PENDING counsel to COMPLETED, storing
// the raw AI envelope and the extracted category. It returns the number of
// rows updated: zero means the counsel was missing or already terminal, and
// the caller must not publish a notification for it.
func MarkCounselCompleted(ctx context.Context, db *gorm.DB, id uint64, summaryJSON string, category domain.CounselCategory) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Counsel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"summary_json": summaryJSON,
			"category":     string(category),
			"status":       domain.StatusCompleted,
		})
	return res.RowsAffected, res.Error
}

// MarkCounselFailed transitions a PENDING counsel to FAILED, discarding any
// partial result. Same row-count contract as MarkCounselCompleted.
func MarkCounselFailed(ctx context.Context, db *gorm.DB, id uint64) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Counsel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"summary_json": nil,
			"category":     nil,
			"status":       domain.StatusFailed,
		})
	return res.RowsAffected, res.Error
}

// ResetCounselForRetry overwrites the payload fields of a FAILED counsel and
// re-enters PENDING under the same id. The guard on the FAILED status keeps
// the retry policy enforceable even under concurrent submissions; zero rows
// means the counsel left FAILED in the meantime.
func ResetCounselForRetry(ctx context.Context, db *gorm.DB, id uint64, title, content string, date time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Counsel{}).
		Where("id = ? AND status = ?", id, domain.StatusFailed).
		Updates(map[string]any{
			"title":        title,
			"content":      content,
			"counsel_date": date,
			"summary_json": nil,
			"category":     nil,
			"status":       domain.StatusPending,
		})
	return res.RowsAffected, res.Error
}

// UpdateCounselSummary replaces the stored summary document without touching
// the status. Used by the follow-up Q&A append. Returns ErrNotFound when the
// row is missing.
func UpdateCounselSummary(ctx context.Context, db *gorm.DB, id uint64, summaryJSON string) error {
	res := db.WithContext(ctx).
		Model(&domain.Counsel{}).
		Where("id = ?", id).
		Update("summary_json", summaryJSON)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
