package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/charlesng35/vocabquiz/internal/models"
)

const (
	// DefaultAccessTokenTTL defines the fallback validity period for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute
	// DefaultRefreshTokenTTL defines the fallback validity period for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	// ErrWrongTokenType is returned when a token is presented for the wrong purpose.
	ErrWrongTokenType = errors.New("jwt: unexpected token type")
	// ErrMissingClaims is returned when a verified token lacks subject or jti.
	ErrMissingClaims = errors.New("jwt: missing required claims")
)

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret          string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Clock           func() time.Time
}

// Claims is the wire shape of issued tokens.
type Claims struct {
	Role string `json:"role,omitempty"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// VerifiedClaims are produced only after signature, expiry and type checks pass.
type VerifiedClaims struct {
	UserID    string
	Role      string
	Type      string
	JTI       string
	ExpiresAt time.Time
}

// SignedToken is a freshly minted token with the values needed to persist it.
type SignedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// JWTService is responsible for issuing and validating JSON Web Tokens.
type JWTService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewJWTService constructs a JWTService instance when provided with the required configuration.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        now,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *JWTService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *JWTService) RefreshTTL() time.Duration { return s.refreshTTL }

// SignAccess issues a short lived access token for user.
func (s *JWTService) SignAccess(user *models.User) (SignedToken, error) {
	if user == nil || user.ID == "" {
		return SignedToken{}, errors.New("jwt: user id is required")
	}
	return s.sign(user, TokenTypeAccess, "", s.accessTTL)
}

// SignRefresh issues a refresh token with a fresh jti.
func (s *JWTService) SignRefresh(user *models.User) (SignedToken, error) {
	if user == nil || user.ID == "" {
		return SignedToken{}, errors.New("jwt: user id is required")
	}
	return s.sign(user, TokenTypeRefresh, uuid.NewString(), s.refreshTTL)
}

func (s *JWTService) sign(user *models.User, tokenType, jti string, ttl time.Duration) (SignedToken, error) {
	now := s.now()
	issuedAt := jwt.NewNumericDate(now)
	expiresAt := jwt.NewNumericDate(now.Add(ttl))

	claims := &Claims{
		Role: user.Role,
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			ID:        jti,
			ExpiresAt: expiresAt,
			IssuedAt:  issuedAt,
			NotBefore: issuedAt,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return SignedToken{}, fmt.Errorf("jwt: sign token: %w", err)
	}

	return SignedToken{Token: signed, JTI: jti, ExpiresAt: expiresAt.Time.UTC()}, nil
}

// VerifyAccess validates an access token.
func (s *JWTService) VerifyAccess(tokenString string) (VerifiedClaims, error) {
	return s.verify(tokenString, TokenTypeAccess)
}

// VerifyRefresh validates a refresh token. The result always carries a jti.
func (s *JWTService) VerifyRefresh(tokenString string) (VerifiedClaims, error) {
	claims, err := s.verify(tokenString, TokenTypeRefresh)
	if err != nil {
		return VerifiedClaims{}, err
	}
	if claims.JTI == "" {
		return VerifiedClaims{}, ErrMissingClaims
	}
	return claims, nil
}

func (s *JWTService) verify(tokenString, wantType string) (VerifiedClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return VerifiedClaims{}, errors.New("jwt: token string is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return VerifiedClaims{}, fmt.Errorf("jwt: parse token: %w", err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return VerifiedClaims{}, errors.New("jwt: invalid issuer")
	}
	if claims.Type != wantType {
		return VerifiedClaims{}, ErrWrongTokenType
	}
	if claims.Subject == "" {
		return VerifiedClaims{}, ErrMissingClaims
	}

	return VerifiedClaims{
		UserID:    claims.Subject,
		Role:      claims.Role,
		Type:      claims.Type,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}
