package models

import "time"

// RefreshToken is one link of a refresh rotation chain. The signed token itself
// is never stored, only its SHA-256 digest.
type RefreshToken struct {
	BaseModel

	JTI        string     `gorm:"column:jti;uniqueIndex;size:36;not null" json:"jti"`
	UserID     string     `gorm:"size:26;not null;index" json:"user_id"`
	User       *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	TokenHash  string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	ReplacedBy *string    `gorm:"size:36" json:"replaced_by,omitempty"`
}

// Active reports whether the token is neither revoked nor expired at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
