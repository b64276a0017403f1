package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	if (User{}).TableName() != "users" {
		t.Fatalf("User.TableName() = %q; want %q", (User{}).TableName(), "users")
	}
	if (RefreshToken{}).TableName() != "refresh_tokens" {
		t.Fatalf("RefreshToken.TableName() = %q; want %q", (RefreshToken{}).TableName(), "refresh_tokens")
	}
	if (Counsel{}).TableName() != "counsels" {
		t.Fatalf("Counsel.TableName() = %q; want %q", (Counsel{}).TableName(), "counsels")
	}
	if (Idempotency{}).TableName() != "idempotency" {
		t.Fatalf("Idempotency.TableName() = %q; want %q", (Idempotency{}).TableName(), "idempotency")
	}
}

func TestMigrations_Indexes_AndDefaults(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&User{}, &RefreshToken{}, &Counsel{}, &Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&User{}, &RefreshToken{}, &Counsel{}, &Idempotency{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// Indexes from tags exist
	if !m.HasIndex(&RefreshToken{}, "ux_refresh_user") {
		t.Fatalf("expected unique index ux_refresh_user on refresh_tokens")
	}
	if !m.HasIndex(&Counsel{}, "idx_user_counsels") {
		t.Fatalf("expected index idx_user_counsels on counsels")
	}
	if !m.HasIndex(&Idempotency{}, "ux_idem_user_key") {
		t.Fatalf("expected unique index ux_idem_user_key on idempotency")
	}

	// Column defaults: a bare user comes back USER/ACTIVE, a bare counsel PENDING.
	u := &User{KakaoID: "k-defaults", Nickname: "n"}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("insert user: %v", err)
	}
	var gotUser User
	if err := db.First(&gotUser, u.ID).Error; err != nil {
		t.Fatalf("readback user: %v", err)
	}
	if gotUser.Role != RoleUser || gotUser.Status != StatusActive {
		t.Fatalf("user defaults: role=%q status=%q", gotUser.Role, gotUser.Status)
	}

	c := &Counsel{UserID: u.ID, CounselDate: time.Now(), Content: "chat"}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("insert counsel: %v", err)
	}
	var gotCounsel Counsel
	if err := db.First(&gotCounsel, c.ID).Error; err != nil {
		t.Fatalf("readback counsel: %v", err)
	}
	if gotCounsel.Status != StatusPending {
		t.Fatalf("counsel default status = %q; want PENDING", gotCounsel.Status)
	}
}

func TestRefreshToken_OneLiveRecordPerUser(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&User{}, &RefreshToken{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	first := &RefreshToken{UserID: 77, Token: "t1", ExpiresAt: time.Now().Add(time.Hour)}
	if err := db.Create(first).Error; err != nil {
		t.Fatalf("insert first: %v", err)
	}
	second := &RefreshToken{UserID: 77, Token: "t2", ExpiresAt: time.Now().Add(time.Hour)}
	if err := db.Create(second).Error; err == nil {
		t.Fatalf("expected unique violation for second live token of user 77")
	}
}
