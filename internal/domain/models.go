// Package domain defines the persistence models for users, refresh tokens,
// and counsel records. These types are mapped with GORM and form the core
// data layer of the counsel analysis backend.
package domain

import (
	"time"
)

// UserRole enumerates the authorization roles a user can hold. The role is
// embedded in access tokens and checked by route policies.
type UserRole string

const (
	// RoleUser is the default role for every signed-up user.
	RoleUser UserRole = "USER"
	// RoleAdmin marks operators with elevated permissions.
	RoleAdmin UserRole = "ADMIN"
)

// UserStatus enumerates account lifecycle states.
type UserStatus string

const (
	// StatusActive marks a normal, usable account.
	StatusActive UserStatus = "ACTIVE"
	// StatusInactive marks a temporarily disabled account.
	StatusInactive UserStatus = "INACTIVE"
	// StatusDeleted marks a withdrawn account; it must never authenticate.
	StatusDeleted UserStatus = "DELETED"
)

// User represents an account created through the social-login flow. The
// OAuth2 handshake itself happens upstream; this backend only persists the
// resulting profile and keys tokens off the numeric ID.
//
// Fields:
//   - ID: auto-increment primary key; the JWT subject is its decimal form.
//   - KakaoID: stable external identifier from the social provider (unique).
//   - Nickname / ProfileImageURL / ThumbnailImageURL: provider profile data,
//     refreshed on every login.
//   - Role / Status: authorization role and account lifecycle state.
//   - LastLoginAt: bumped on each successful login.
type User struct {
	ID                uint64     `json:"id"                  gorm:"primaryKey;autoIncrement"`
	KakaoID           string     `json:"kakao_id"            gorm:"type:varchar(64);not null;uniqueIndex"`
	Nickname          string     `json:"nickname"            gorm:"type:varchar(255);not null"`
	ProfileImageURL   *string    `json:"profile_image_url,omitempty"   gorm:"type:varchar(512)"`
	ThumbnailImageURL *string    `json:"thumbnail_image_url,omitempty" gorm:"type:varchar(512)"`
	Role              UserRole   `json:"role"                gorm:"type:varchar(16);not null;default:'USER'"`
	Status            UserStatus `json:"status"              gorm:"type:varchar(16);not null;default:'ACTIVE'"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// RefreshToken is the server-side record backing a signed refresh token.
// At most one live record exists per user (enforced by the unique index on
// user_id); the record is deleted the instant the token is redeemed or the
// user logs out, which is what makes a refresh token single-use.
//
// Fields:
//   - UserID: owner of the token (one live record per user).
//   - Token: the exact signed token value handed to the client. Rotation
//     matches on this value with a conditional delete.
//   - ExpiresAt: mirror of the JWT exp claim; stale records are purged on read.
type RefreshToken struct {
	ID        uint64    `json:"id"         gorm:"primaryKey;autoIncrement"`
	UserID    uint64    `json:"user_id"    gorm:"not null;uniqueIndex:ux_refresh_user"`
	Token     string    `json:"-"          gorm:"type:text;not null;index"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for RefreshToken.
func (RefreshToken) TableName() string { return "refresh_tokens" }

// CounselStatus is the analysis state machine for a counsel record:
// PENDING (initial) → COMPLETED | FAILED (terminal). A FAILED counsel may be
// retried, which re-enters PENDING under the same id.
type CounselStatus string

const (
	// StatusPending means the analysis has been dispatched but not finished.
	StatusPending CounselStatus = "PENDING"
	// StatusCompleted means the analysis produced a summary and category.
	StatusCompleted CounselStatus = "COMPLETED"
	// StatusFailed means the analysis ended without a usable result.
	StatusFailed CounselStatus = "FAILED"
)

// Counsel represents one consultation transcript submitted for AI analysis.
// Status transitions are owned exclusively by the counsel service; rows are
// never deleted by this backend.
//
// Fields:
//   - ID: auto-increment primary key, also the cursor for list pagination.
//   - UserID: owner; all reads and mutations are scoped to it.
//   - CounselDate: the date the consultation took place (yyyy-MM-dd input).
//   - Content: the raw transcript sent to the AI collaborator.
//   - SummaryJSON: the raw AI response envelope, present once COMPLETED.
//     Follow-up Q&A pairs are appended inside this document.
//   - Category: classification extracted from the AI response.
type Counsel struct {
	ID          uint64           `json:"id"           gorm:"primaryKey;autoIncrement"`
	UserID      uint64           `json:"user_id"      gorm:"not null;index:idx_user_counsels"`
	Title       string           `json:"title"        gorm:"type:varchar(255)"`
	CounselDate time.Time        `json:"counsel_date" gorm:"not null"`
	Content     string           `json:"content"      gorm:"type:text;not null"`
	SummaryJSON *string          `json:"summary_json,omitempty" gorm:"type:text"`
	Category    *CounselCategory `json:"category,omitempty"     gorm:"type:varchar(32)"`
	Status      CounselStatus    `json:"status"       gorm:"type:varchar(16);not null;default:'PENDING';index"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// TableName returns the database table name for Counsel.
func (Counsel) TableName() string { return "counsel" }

// StatusChangedEvent is the ephemeral notification produced by a terminal
// status transition. It is pushed once to the owner's live channels and never
// persisted.
type StatusChangedEvent struct {
	UserID    uint64        `json:"-"`
	CounselID uint64        `json:"counselId"`
	Status    CounselStatus `json:"status"`
}
