package auth

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Session cookie names.
const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

var ttlPattern = regexp.MustCompile(`^(\d+)\s*(ms|s|m|h|d)?$`)

// ParseTTL converts strings such as "15m", "7d", "3600" or "1h30m" into a
// duration. Bare integers are seconds.
func ParseTTL(value string) (time.Duration, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return 0, errors.New("ttl: empty value")
	}

	if m := ttlPattern.FindStringSubmatch(value); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("ttl: %w", err)
		}
		unit := time.Second
		switch m[2] {
		case "ms":
			unit = time.Millisecond
		case "m":
			unit = time.Minute
		case "h":
			unit = time.Hour
		case "d":
			unit = 24 * time.Hour
		}
		if n > math.MaxInt64/int64(unit) {
			return 0, fmt.Errorf("ttl: %q overflows", value)
		}
		return time.Duration(n) * unit, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("ttl: invalid duration %q", value)
	}
	if d < 0 {
		return 0, fmt.Errorf("ttl: negative duration %q", value)
	}
	return d, nil
}

// TTLOrDefault parses value, falling back to def when it is malformed or zero.
func TTLOrDefault(value string, def time.Duration) time.Duration {
	d, err := ParseTTL(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// MaxAgeSeconds converts a TTL string into a cookie Max-Age. Malformed values
// yield 0, which leaves the cookie session scoped.
func MaxAgeSeconds(value string) int {
	d, err := ParseTTL(value)
	if err != nil {
		return 0
	}
	return int(d / time.Second)
}

// CookieConfig captures cookie settings from configuration.
type CookieConfig struct {
	Secure     bool
	SameSite   string
	Domain     string
	Production bool
	AccessTTL  string
	RefreshTTL string
}

// CookiePolicy builds the session cookies.
type CookiePolicy struct {
	secure        bool
	sameSite      http.SameSite
	domain        string
	accessMaxAge  int
	refreshMaxAge int
}

// NewCookiePolicy resolves cfg. Production forces Secure, and so does SameSite=None.
func NewCookiePolicy(cfg CookieConfig) CookiePolicy {
	sameSite := parseSameSite(cfg.SameSite)
	return CookiePolicy{
		secure:        cfg.Secure || cfg.Production || sameSite == http.SameSiteNoneMode,
		sameSite:      sameSite,
		domain:        strings.TrimSpace(cfg.Domain),
		accessMaxAge:  MaxAgeSeconds(cfg.AccessTTL),
		refreshMaxAge: MaxAgeSeconds(cfg.RefreshTTL),
	}
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Secure reports whether cookies carry the Secure attribute.
func (p CookiePolicy) Secure() bool { return p.secure }

// AccessCookie wraps an access token.
func (p CookiePolicy) AccessCookie(token string) *http.Cookie {
	return p.cookie(AccessCookieName, token, p.accessMaxAge)
}

// RefreshCookie wraps a refresh token.
func (p CookiePolicy) RefreshCookie(token string) *http.Cookie {
	return p.cookie(RefreshCookieName, token, p.refreshMaxAge)
}

// ClearCookies returns expired copies of both session cookies.
func (p CookiePolicy) ClearCookies() []*http.Cookie {
	access := p.cookie(AccessCookieName, "", -1)
	refresh := p.cookie(RefreshCookieName, "", -1)
	access.Expires = time.Unix(0, 0).UTC()
	refresh.Expires = time.Unix(0, 0).UTC()
	return []*http.Cookie{access, refresh}
}

func (p CookiePolicy) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   p.domain,
		MaxAge:   maxAge,
		Secure:   p.secure,
		HttpOnly: true,
		SameSite: p.sameSite,
	}
}
