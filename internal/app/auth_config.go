package app

import (
	"strings"
	"time"

	"github.com/charlesng35/vocabquiz/internal/auth"
	"github.com/charlesng35/vocabquiz/internal/database"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
// Malformed lifetimes fall back to the defaults.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	return auth.JWTConfig{
		Secret:          c.JWT.Secret,
		Issuer:          strings.TrimSpace(c.JWT.Issuer),
		AccessTokenTTL:  auth.TTLOrDefault(c.JWT.AccessTokenTTL, auth.DefaultAccessTokenTTL),
		RefreshTokenTTL: auth.TTLOrDefault(c.Session.RefreshTokenTTL, auth.DefaultRefreshTokenTTL),
	}
}

// ServiceConfig converts AuthConfig and the public app settings into auth.Config.
func (c AuthConfig) ServiceConfig(appCfg AppConfig) auth.Config {
	return auth.Config{
		BaseURL:            strings.TrimSpace(appCfg.BaseURL),
		VerificationTTL:    auth.TTLOrDefault(c.Verification.TTL, auth.DefaultVerificationTTL),
		ResetTTL:           auth.TTLOrDefault(c.PasswordReset.TTL, auth.DefaultResetTTL),
		VerificationPolicy: c.Verification.policy(),
		ResetPolicy:        c.PasswordReset.policy(),
	}
}

func (s SendSettings) policy() auth.SendPolicy {
	return auth.SendPolicy{
		Cooldown: time.Duration(s.CooldownSeconds) * time.Second,
		DailyCap: s.DailyCap,
	}
}

// CookieConfig converts cookie settings. Production forces Secure cookies.
func (c AuthConfig) CookieConfig(production bool) auth.CookieConfig {
	return auth.CookieConfig{
		Secure:     c.Cookies.Secure,
		SameSite:   c.Cookies.SameSite,
		Domain:     c.Cookies.Domain,
		Production: production,
		AccessTTL:  c.JWT.AccessTokenTTL,
		RefreshTTL: c.Session.RefreshTokenTTL,
	}
}

// AdminSeed converts the bootstrap admin settings.
func (c AuthConfig) AdminSeed() database.AdminSeed {
	return database.AdminSeed{
		Email:    strings.TrimSpace(c.BootstrapAdmin.Email),
		Password: c.BootstrapAdmin.Password,
	}
}
