package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/vocabquiz/internal/models"
	"github.com/charlesng35/vocabquiz/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.EmailVerificationToken{},
		&models.PasswordResetToken{},
		&models.CacheEntry{},
		&models.SystemSetting{},
	)
}

// AdminSeed describes the operator account created on first start.
type AdminSeed struct {
	Email    string
	Password string
}

// Enabled reports whether both email and password were supplied.
func (s AdminSeed) Enabled() bool {
	return strings.TrimSpace(s.Email) != "" && s.Password != ""
}

// SeedAdmin creates a verified ADMIN from seed when no admin exists yet.
// It reports whether a user was created.
func SeedAdmin(db *gorm.DB, seed AdminSeed) (bool, error) {
	if !seed.Enabled() {
		return false, nil
	}

	created := false
	err := db.Transaction(func(tx *gorm.DB) error {
		var admins int64
		if err := tx.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&admins).Error; err != nil {
			return fmt.Errorf("count admins: %w", err)
		}
		if admins > 0 {
			return nil
		}

		email := strings.TrimSpace(seed.Email)
		var existing models.User
		err := tx.Where("email = ?", email).Take(&existing).Error
		switch {
		case err == nil:
			// Promote the account that already owns the address.
			if err := tx.Model(&existing).Updates(map[string]any{
				"role":              models.RoleAdmin,
				"is_email_verified": true,
			}).Error; err != nil {
				return fmt.Errorf("promote admin: %w", err)
			}
			created = true
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("lookup admin email: %w", err)
		}

		hash, err := crypto.HashPassword(seed.Password)
		if err != nil {
			return fmt.Errorf("hash admin password: %w", err)
		}

		admin := &models.User{
			Email:           email,
			PasswordHash:    hash,
			Role:            models.RoleAdmin,
			IsEmailVerified: true,
		}
		if err := tx.Create(admin).Error; err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		created = true
		return nil
	})
	return created, err
}
