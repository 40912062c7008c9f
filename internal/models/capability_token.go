package models

import "time"

// CapabilityToken is the shared row shape of single-use tokens mailed to users.
// Each kind lives in its own table.
type CapabilityToken struct {
	BaseModel

	UserID    string     `gorm:"size:26;not null;index" json:"user_id"`
	User      *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	TokenHash string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"index" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// Valid reports whether the token is unused and unexpired at now.
func (t *CapabilityToken) Valid(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// EmailVerificationToken proves ownership of a registered email address.
type EmailVerificationToken struct {
	CapabilityToken
}

func (EmailVerificationToken) TableName() string { return "email_verification_tokens" }

// PasswordResetToken authorises a single password reset.
type PasswordResetToken struct {
	CapabilityToken
}

func (PasswordResetToken) TableName() string { return "password_reset_tokens" }
