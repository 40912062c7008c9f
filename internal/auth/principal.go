package auth

import "github.com/charlesng35/vocabquiz/internal/models"

// Principal is the authenticated caller, established once per request from a
// verified access token and a fresh user lookup.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

// IsAdmin reports whether the principal carries the ADMIN role.
func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// User returns the public view of the principal.
func (p Principal) User() models.PublicUser {
	return models.PublicUser{ID: p.UserID, Email: p.Email, Role: p.Role}
}

func principalFromUser(u *models.User) Principal {
	return Principal{UserID: u.ID, Email: u.Email, Role: u.Role}
}
