package database

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/vocabquiz/internal/models"
	"github.com/charlesng35/vocabquiz/pkg/crypto"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	if err := db.Exec("SELECT 1").Error; err != nil {
		t.Fatalf("expected health query to succeed: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported database driver")
}

func TestAutoMigrateCreatesAuthTables(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	migrator := db.Migrator()
	for _, model := range []any{
		&models.User{},
		&models.RefreshToken{},
		&models.EmailVerificationToken{},
		&models.PasswordResetToken{},
		&models.CacheEntry{},
		&models.SystemSetting{},
	} {
		require.True(t, migrator.HasTable(model), "expected table for %T", model)
	}
	require.True(t, migrator.HasColumn(&models.RefreshToken{}, "replaced_by"))
	require.True(t, migrator.HasColumn(&models.PasswordResetToken{}, "used_at"))
}

func TestTokenHashesAreUnique(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	user := &models.User{Email: "digest@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(user).Error)

	digest := crypto.SHA256Hex("refresh-secret")
	require.NoError(t, db.Create(&models.RefreshToken{JTI: uuid.NewString(), UserID: user.ID, TokenHash: digest}).Error)
	require.Error(t, db.Create(&models.RefreshToken{JTI: uuid.NewString(), UserID: user.ID, TokenHash: digest}).Error)

	require.NoError(t, db.Create(&models.PasswordResetToken{CapabilityToken: models.CapabilityToken{UserID: user.ID, TokenHash: digest}}).Error)
	require.Error(t, db.Create(&models.PasswordResetToken{CapabilityToken: models.CapabilityToken{UserID: user.ID, TokenHash: digest}}).Error)

	require.True(t, db.Migrator().HasIndex(&models.RefreshToken{}, "TokenHash"))
}

func TestUserDeleteCascadesToTokens(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	user := &models.User{Email: "cascade@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Create(&models.RefreshToken{JTI: uuid.NewString(), UserID: user.ID, TokenHash: "h"}).Error)
	require.NoError(t, db.Create(&models.EmailVerificationToken{CapabilityToken: models.CapabilityToken{UserID: user.ID, TokenHash: "v"}}).Error)

	require.NoError(t, db.Delete(user).Error)

	var refresh, verification int64
	require.NoError(t, db.Model(&models.RefreshToken{}).Count(&refresh).Error)
	require.NoError(t, db.Model(&models.EmailVerificationToken{}).Count(&verification).Error)
	require.Zero(t, refresh)
	require.Zero(t, verification)
}

func TestSeedAdmin(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	created, err := SeedAdmin(db, AdminSeed{})
	require.NoError(t, err)
	require.False(t, created)

	created, err = SeedAdmin(db, AdminSeed{Email: "root@example.com", Password: "Secret123!"})
	require.NoError(t, err)
	require.True(t, created)

	var admin models.User
	require.NoError(t, db.Where("email = ?", "root@example.com").Take(&admin).Error)
	require.Equal(t, models.RoleAdmin, admin.Role)
	require.True(t, admin.IsEmailVerified)
	require.True(t, crypto.VerifyPassword(admin.PasswordHash, "Secret123!"))

	created, err = SeedAdmin(db, AdminSeed{Email: "other@example.com", Password: "Secret123!"})
	require.NoError(t, err)
	require.False(t, created, "an existing admin blocks further seeding")
}

func TestSeedAdminPromotesExistingUser(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	user := &models.User{Email: "owner@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(user).Error)

	created, err := SeedAdmin(db, AdminSeed{Email: "owner@example.com", Password: "ignored1"})
	require.NoError(t, err)
	require.True(t, created)

	var reloaded models.User
	require.NoError(t, db.Take(&reloaded, "id = ?", user.ID).Error)
	require.Equal(t, models.RoleAdmin, reloaded.Role)
	require.Equal(t, "x", reloaded.PasswordHash)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite", DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
