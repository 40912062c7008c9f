package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/vocabquiz/internal/models"
	"github.com/charlesng35/vocabquiz/pkg/crypto"
	"github.com/charlesng35/vocabquiz/pkg/logger"
	"github.com/charlesng35/vocabquiz/pkg/metrics"
)

const (
	DefaultVerificationTTL = 24 * time.Hour
	DefaultResetTTL        = time.Hour

	registeredMessage = "Registration successful. Please check your email to verify your account."
)

// errUserGone aborts a send whose user was deleted after lookup.
var errUserGone = errors.New("auth service: user no longer exists")

// Notifier delivers capability links by email.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to, link, displayName string) error
	SendPasswordResetEmail(ctx context.Context, to, link, displayName string) error
}

// Config tunes the Service.
type Config struct {
	BaseURL            string
	VerificationTTL    time.Duration
	ResetTTL           time.Duration
	VerificationPolicy SendPolicy
	ResetPolicy        SendPolicy
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// Session is a freshly issued token pair.
type Session struct {
	AccessToken      string            `json:"access_token"`
	RefreshToken     string            `json:"refresh_token"`
	AccessExpiresAt  time.Time         `json:"access_expires_at"`
	RefreshExpiresAt time.Time         `json:"refresh_expires_at"`
	User             models.PublicUser `json:"user"`
}

// Service is the auth orchestrator. It keeps no per-request state; all
// coordination happens in database transactions.
type Service struct {
	db            *gorm.DB
	users         *CredentialStore
	sessions      *SessionService
	verifications *CapabilityLedger
	resets        *CapabilityLedger
	jwt           *JWTService
	notifier      Notifier
	cfg           Config
	now           func() time.Time
	log           *zap.Logger
}

// NewService wires the orchestrator over db.
func NewService(db *gorm.DB, jwtService *JWTService, notifier Notifier, cfg Config, opts ...Option) (*Service, error) {
	if db == nil {
		return nil, errors.New("auth service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("auth service: jwt service is required")
	}
	if notifier == nil {
		return nil, errors.New("auth service: notifier is required")
	}

	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = DefaultVerificationTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTTL
	}
	cfg.VerificationPolicy = cfg.VerificationPolicy.withDefaults()
	cfg.ResetPolicy = cfg.ResetPolicy.withDefaults()
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	svc := &Service{
		db:       db,
		jwt:      jwtService,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.WithModule("auth"),
	}
	for _, opt := range opts {
		opt(svc)
	}

	var err error
	svc.users = NewCredentialStore(db)
	if svc.sessions, err = NewSessionService(db, SessionConfig{Clock: svc.now}); err != nil {
		return nil, err
	}
	if svc.verifications, err = NewCapabilityLedger(db, TokenEmailVerification, svc.now); err != nil {
		return nil, err
	}
	if svc.resets, err = NewCapabilityLedger(db, TokenPasswordReset, svc.now); err != nil {
		return nil, err
	}

	return svc, nil
}

// Sessions exposes the refresh token ledger for maintenance jobs.
func (s *Service) Sessions() *SessionService { return s.sessions }

// Ledger exposes the capability ledger of kind for maintenance jobs.
func (s *Service) Ledger(kind TokenKind) *CapabilityLedger {
	if kind == TokenPasswordReset {
		return s.resets
	}
	return s.verifications
}

// Register creates an unverified USER and mails a verification link. No
// session is issued. If the email cannot be sent the user row stays; the
// caller can recover through ResendVerification.
func (s *Service) Register(ctx context.Context, email, password string) (string, error) {
	user, err := s.createUser(ctx, email, password, models.RoleUser, false)
	if err != nil {
		s.observe("register", err)
		return "", err
	}

	if err := s.issueAndSend(ctx, s.verifications, user, nil); err != nil {
		s.observe("register", err)
		return "", err
	}

	s.log.Info("user registered", zap.String("user_id", user.ID))
	s.observe("register", nil)
	return registeredMessage, nil
}

// RegisterAdmin creates a verified ADMIN and signs it in immediately. caller
// must be an admin.
func (s *Service) RegisterAdmin(ctx context.Context, caller Principal, email, password string) (*Session, error) {
	if !caller.IsAdmin() {
		s.observe("register_admin", ErrAdminRequired)
		return nil, ErrAdminRequired
	}

	user, err := s.createUser(ctx, email, password, models.RoleAdmin, true)
	if err != nil {
		s.observe("register_admin", err)
		return nil, err
	}

	session, err := s.issueSession(ctx, user)
	s.observe("register_admin", err)
	if err == nil {
		s.log.Info("admin registered", zap.String("user_id", user.ID), zap.String("created_by", caller.UserID))
	}
	return session, err
}

// NeedsSetup reports whether no user exists yet.
func (s *Service) NeedsSetup(ctx context.Context) (bool, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// InitializeAdmin creates the first account as a verified ADMIN. It fails with
// ErrSetupComplete once any user exists.
func (s *Service) InitializeAdmin(ctx context.Context, email, password string) (*Session, error) {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("auth service: hash password: %w", err)
	}

	var user *models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.users.WithTx(tx)
		count, err := store.Count(ctx)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrSetupComplete
		}
		user, err = store.Create(ctx, email, hash, models.RoleAdmin, true)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("initial admin created", zap.String("user_id", user.ID))
	return s.issueSession(ctx, user)
}

// Login checks credentials and issues a session for verified users.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.VerifyCredentials(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("auth service: login: %w", err)
	}
	if user == nil {
		s.observe("login", ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}
	if !user.IsEmailVerified {
		s.observe("login", ErrEmailNotVerified)
		return nil, ErrEmailNotVerified
	}

	session, err := s.issueSession(ctx, user)
	s.observe("login", err)
	return session, err
}

// Refresh rotates a refresh token. Any presentation of a token that is not
// the active head of its chain revokes every session of the owner.
func (s *Service) Refresh(ctx context.Context, presented string) (*Session, error) {
	claims, err := s.jwt.VerifyRefresh(presented)
	if err != nil {
		s.revokeByUnverifiedJTI(ctx, presented)
		s.observe("refresh", ErrSessionInvalid)
		return nil, ErrSessionInvalid.withCause(err)
	}

	record, err := s.sessions.FindByJTI(ctx, claims.JTI)
	if err != nil {
		return nil, fmt.Errorf("auth service: refresh: %w", err)
	}
	if record == nil || !record.Active(s.now()) || !s.sessions.Matches(record, presented) {
		owner := claims.UserID
		if record != nil {
			owner = record.UserID
		}
		return nil, s.reuseDetected(ctx, owner, claims.JTI)
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		return nil, fmt.Errorf("auth service: refresh: %w", err)
	}
	if user == nil {
		s.observe("refresh", ErrSessionInvalid)
		return nil, ErrSessionInvalid
	}

	next, err := s.jwt.SignRefresh(user)
	if err != nil {
		return nil, fmt.Errorf("auth service: refresh: %w", err)
	}
	access, err := s.jwt.SignAccess(user)
	if err != nil {
		return nil, fmt.Errorf("auth service: refresh: %w", err)
	}

	if _, err := s.sessions.Rotate(ctx, record, next); err != nil {
		if errors.Is(err, ErrRotationConflict) {
			return nil, s.reuseDetected(ctx, record.UserID, claims.JTI)
		}
		return nil, fmt.Errorf("auth service: refresh: %w", err)
	}

	s.observe("refresh", nil)
	return newSession(user, access, next), nil
}

// revokeByUnverifiedJTI handles refresh tokens that failed verification. The
// jti is read without trusting the token; the owner comes from the ledger row.
func (s *Service) revokeByUnverifiedJTI(ctx context.Context, presented string) {
	claims, ok := PeekUnverifiedClaims(presented)
	if !ok || claims.JTI == "" {
		return
	}

	record, err := s.sessions.FindByJTI(ctx, claims.JTI)
	if err != nil {
		s.log.Warn("lookup of unverified refresh jti failed", zap.Error(err))
		return
	}
	if record == nil {
		return
	}

	revoked, err := s.sessions.RevokeAll(ctx, record.UserID)
	if err != nil {
		s.log.Error("revoke after invalid refresh token failed", zap.String("user_id", record.UserID), zap.Error(err))
		return
	}
	if revoked > 0 {
		metrics.RefreshReuse.Inc()
		s.log.Warn("invalid refresh token with known jti; sessions revoked",
			zap.String("user_id", record.UserID),
			zap.Int64("revoked", revoked),
		)
	}
}

func (s *Service) reuseDetected(ctx context.Context, userID, jti string) error {
	metrics.RefreshReuse.Inc()
	s.observe("refresh", ErrRefreshReused)

	revoked, err := s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return fmt.Errorf("auth service: revoke after reuse: %w", err)
	}
	s.log.Warn("refresh token reuse detected",
		zap.String("user_id", userID),
		zap.String("jti", jti),
		zap.Int64("revoked", revoked),
	)
	return ErrRefreshReused
}

// Validate authenticates an access token against the current user row.
func (s *Service) Validate(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.jwt.VerifyAccess(accessToken)
	if err != nil {
		return Principal{}, ErrSessionInvalid.withCause(err)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return Principal{}, fmt.Errorf("auth service: validate: %w", err)
	}
	if user == nil {
		return Principal{}, ErrSessionInvalid
	}
	return principalFromUser(user), nil
}

// Logout revokes every session of the token's owner when the token is known
// to the ledger. It never fails; the caller clears cookies regardless.
func (s *Service) Logout(ctx context.Context, presented string) {
	claims, ok := PeekUnverifiedClaims(presented)
	if !ok || claims.JTI == "" {
		return
	}

	record, err := s.sessions.FindByJTI(ctx, claims.JTI)
	if err != nil {
		s.log.Warn("logout lookup failed", zap.Error(err))
		return
	}
	if !s.sessions.Matches(record, presented) {
		return
	}

	if _, err := s.sessions.RevokeAll(ctx, record.UserID); err != nil {
		s.log.Error("logout revoke failed", zap.String("user_id", record.UserID), zap.Error(err))
		return
	}
	s.observe("logout", nil)
}

// VerifyEmail consumes a verification token and marks the owner verified.
func (s *Service) VerifyEmail(ctx context.Context, secret string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.verifications.WithTx(tx).Consume(ctx, strings.TrimSpace(secret))
		if err != nil {
			return err
		}
		return s.users.WithTx(tx).SetEmailVerified(ctx, record.UserID)
	})
	s.observe("verify_email", err)
	return err
}

// ResendVerification mails a new verification link. Unknown or already
// verified emails succeed silently.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("auth service: resend verification: %w", err)
	}
	if user == nil || user.IsEmailVerified {
		return nil
	}

	err = s.issueAndSend(ctx, s.verifications, user, &s.cfg.VerificationPolicy)
	s.observe("resend_verification", err)
	return err
}

// ForgotPassword mails a reset link. Unknown emails succeed silently.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("auth service: forgot password: %w", err)
	}
	if user == nil {
		return nil
	}

	err = s.issueAndSend(ctx, s.resets, user, &s.cfg.ResetPolicy)
	s.observe("forgot_password", err)
	return err
}

// ResetPassword consumes a reset token, stores the new password and revokes
// every session of the owner, all in one transaction.
func (s *Service) ResetPassword(ctx context.Context, secret, newPassword string) error {
	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth service: hash password: %w", err)
	}

	var userID string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.resets.WithTx(tx).Consume(ctx, strings.TrimSpace(secret))
		if err != nil {
			return err
		}
		userID = record.UserID
		if err := s.users.WithTx(tx).UpdatePassword(ctx, record.UserID, hash); err != nil {
			return err
		}
		_, err = s.sessions.WithTx(tx).RevokeAll(ctx, record.UserID)
		return err
	})
	s.observe("reset_password", err)
	if err == nil {
		s.log.Info("password reset", zap.String("user_id", userID))
	}
	return err
}

// ChangePassword replaces the caller's password after checking the current
// one and revokes all of their sessions.
func (s *Service) ChangePassword(ctx context.Context, caller Principal, currentPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, caller.UserID)
	if err != nil {
		return fmt.Errorf("auth service: change password: %w", err)
	}

	hash := ""
	if user != nil {
		hash = user.PasswordHash
	}
	if !crypto.VerifyPassword(hash, currentPassword) || user == nil {
		s.observe("change_password", ErrInvalidCredentials)
		return ErrInvalidCredentials
	}

	newHash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth service: hash password: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).UpdatePassword(ctx, user.ID, newHash); err != nil {
			return err
		}
		_, err := s.sessions.WithTx(tx).RevokeAll(ctx, user.ID)
		return err
	})
	s.observe("change_password", err)
	if err == nil {
		s.log.Info("password changed", zap.String("user_id", user.ID))
	}
	return err
}

func (s *Service) createUser(ctx context.Context, email, password, role string, verified bool) (*models.User, error) {
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("auth service: create user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("auth service: hash password: %w", err)
	}

	return s.users.Create(ctx, email, hash, role, verified)
}

func (s *Service) issueSession(ctx context.Context, user *models.User) (*Session, error) {
	access, err := s.jwt.SignAccess(user)
	if err != nil {
		return nil, fmt.Errorf("auth service: sign access token: %w", err)
	}
	refresh, err := s.jwt.SignRefresh(user)
	if err != nil {
		return nil, fmt.Errorf("auth service: sign refresh token: %w", err)
	}
	if _, err := s.sessions.Record(ctx, user.ID, refresh); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	return newSession(user, access, refresh), nil
}

func newSession(user *models.User, access, refresh SignedToken) *Session {
	return &Session{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
		User:             user.Public(),
	}
}

// issueAndSend replaces the user's outstanding tokens of the ledger's kind
// with a new one and mails it after commit. With a policy, the user row is
// locked and the policy checked in the same transaction, so concurrent
// requests cannot both pass the cooldown. Send failures are returned to the
// caller.
func (s *Service) issueAndSend(ctx context.Context, ledger *CapabilityLedger, user *models.User, policy *SendPolicy) error {
	ttl := s.cfg.VerificationTTL
	if ledger.Kind() == TokenPasswordReset {
		ttl = s.cfg.ResetTTL
	}

	var secret string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txLedger := ledger.WithTx(tx)
		if policy != nil {
			locked, err := s.users.WithTx(tx).LockByID(ctx, user.ID)
			if err != nil {
				return err
			}
			if locked == nil {
				return errUserGone
			}
			if err := policy.Check(ctx, txLedger, user.ID, s.now()); err != nil {
				return err
			}
		}
		if _, err := txLedger.InvalidateOutstanding(ctx, user.ID); err != nil {
			return err
		}
		var err error
		secret, _, err = txLedger.Issue(ctx, user.ID, ttl)
		return err
	})
	switch {
	case errors.Is(err, errUserGone):
		return nil
	case errors.Is(err, ErrRateLimited):
		return err
	case err != nil:
		return fmt.Errorf("auth service: issue %s token: %w", ledger.Kind(), err)
	}

	name := displayName(user.Email)
	switch ledger.Kind() {
	case TokenPasswordReset:
		err = s.notifier.SendPasswordResetEmail(ctx, user.Email, s.link("/reset-password", secret), name)
	default:
		err = s.notifier.SendVerificationEmail(ctx, user.Email, s.link("/verify-email", secret), name)
	}
	if err != nil {
		s.log.Error("capability email failed",
			zap.String("kind", string(ledger.Kind())),
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return fmt.Errorf("auth service: send %s email: %w", ledger.Kind(), err)
	}
	return nil
}

func (s *Service) link(path, secret string) string {
	return s.cfg.BaseURL + path + "?token=" + url.QueryEscape(secret)
}

func displayName(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

func (s *Service) observe(operation string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
		if authErr, ok := AsError(err); ok && authErr.Kind == KindTooManyRequests {
			result = "rate_limited"
		}
	}
	metrics.AuthAttempts.WithLabelValues(operation, result).Inc()
}
