package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// Role values stored on User.Role.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is an identity record. Ids are ULIDs so they sort by creation time.
type User struct {
	ID              string    `gorm:"primaryKey;size:26" json:"id"`
	Email           string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash    string    `gorm:"not null" json:"-"`
	Role            string    `gorm:"size:16;not null;default:USER" json:"role"`
	IsEmailVerified bool      `gorm:"not null;default:false" json:"is_email_verified"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BeforeCreate assigns a ULID when the caller did not provide one.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = ulid.Make().String()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// IsAdmin reports whether the user carries the ADMIN role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// PublicUser is the view of a user that may leave the process.
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Public strips everything but id, email and role.
func (u *User) Public() PublicUser {
	if u == nil {
		return PublicUser{}
	}
	return PublicUser{ID: u.ID, Email: u.Email, Role: u.Role}
}
