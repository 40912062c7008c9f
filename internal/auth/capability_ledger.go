package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/vocabquiz/internal/models"
	"github.com/charlesng35/vocabquiz/pkg/crypto"
)

// TokenKind selects the ledger table of a capability token.
type TokenKind string

const (
	TokenEmailVerification TokenKind = "email_verification"
	TokenPasswordReset     TokenKind = "password_reset"
)

// Table returns the table backing the kind.
func (k TokenKind) Table() string {
	switch k {
	case TokenEmailVerification:
		return models.EmailVerificationToken{}.TableName()
	case TokenPasswordReset:
		return models.PasswordResetToken{}.TableName()
	default:
		return ""
	}
}

// CapabilityLedger issues and consumes single-use tokens of one kind. Only the
// SHA-256 digest of a secret is stored.
type CapabilityLedger struct {
	db   *gorm.DB
	kind TokenKind
	now  func() time.Time
}

// NewCapabilityLedger builds a ledger for kind.
func NewCapabilityLedger(db *gorm.DB, kind TokenKind, clock func() time.Time) (*CapabilityLedger, error) {
	if db == nil {
		return nil, errors.New("capability ledger: db is required")
	}
	if kind.Table() == "" {
		return nil, fmt.Errorf("capability ledger: unknown token kind %q", kind)
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &CapabilityLedger{db: db, kind: kind, now: clock}, nil
}

// Kind returns the token kind served by the ledger.
func (l *CapabilityLedger) Kind() TokenKind { return l.kind }

// WithTx returns a copy bound to tx.
func (l *CapabilityLedger) WithTx(tx *gorm.DB) *CapabilityLedger {
	cp := *l
	cp.db = tx
	return &cp
}

func (l *CapabilityLedger) table(ctx context.Context) *gorm.DB {
	return l.db.WithContext(ctx).Table(l.kind.Table())
}

// Issue persists a new token for userID and returns its secret.
func (l *CapabilityLedger) Issue(ctx context.Context, userID string, ttl time.Duration) (string, *models.CapabilityToken, error) {
	if userID == "" {
		return "", nil, errors.New("capability ledger: user id is required")
	}
	if ttl <= 0 {
		return "", nil, errors.New("capability ledger: ttl must be positive")
	}

	secret, err := crypto.GenerateOpaqueToken()
	if err != nil {
		return "", nil, fmt.Errorf("capability ledger: generate token: %w", err)
	}

	now := l.now()
	record := &models.CapabilityToken{
		BaseModel: models.BaseModel{CreatedAt: now},
		UserID:    userID,
		TokenHash: crypto.SHA256Hex(secret),
		ExpiresAt: now.Add(ttl),
	}
	if err := l.table(ctx).Create(record).Error; err != nil {
		return "", nil, fmt.Errorf("capability ledger: store %s token: %w", l.kind, err)
	}

	return secret, record, nil
}

// InvalidateOutstanding marks every unused, unexpired token of userID as used.
func (l *CapabilityLedger) InvalidateOutstanding(ctx context.Context, userID string) (int64, error) {
	now := l.now()
	res := l.table(ctx).
		Where("user_id = ? AND used_at IS NULL AND expires_at > ?", userID, now).
		Update("used_at", now)
	if res.Error != nil {
		return 0, fmt.Errorf("capability ledger: invalidate %s tokens: %w", l.kind, res.Error)
	}
	return res.RowsAffected, nil
}

// Consume marks the token matching secret as used. It fails with
// ErrInvalidToken when the token is unknown, used or expired. Callers wrap
// Consume and the effect it guards in one transaction.
func (l *CapabilityLedger) Consume(ctx context.Context, secret string) (*models.CapabilityToken, error) {
	if secret == "" {
		return nil, ErrInvalidToken
	}

	var record models.CapabilityToken
	err := l.table(ctx).Where("token_hash = ?", crypto.SHA256Hex(secret)).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("capability ledger: lookup %s token: %w", l.kind, err)
	}

	now := l.now()
	if !record.Valid(now) {
		return nil, ErrInvalidToken
	}

	res := l.table(ctx).
		Where("id = ? AND used_at IS NULL", record.ID).
		Update("used_at", now)
	if res.Error != nil {
		return nil, fmt.Errorf("capability ledger: consume %s token: %w", l.kind, res.Error)
	}
	if res.RowsAffected == 0 {
		// Consumed concurrently.
		return nil, ErrInvalidToken
	}

	record.UsedAt = &now
	return &record, nil
}

// IssuedSince counts tokens issued to userID at or after since.
func (l *CapabilityLedger) IssuedSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	if err := l.table(ctx).Where("user_id = ? AND created_at >= ?", userID, since).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("capability ledger: count %s tokens: %w", l.kind, err)
	}
	return count, nil
}

// LatestIssuedAt returns when the newest token for userID was issued.
func (l *CapabilityLedger) LatestIssuedAt(ctx context.Context, userID string) (time.Time, bool, error) {
	var record models.CapabilityToken
	err := l.table(ctx).Where("user_id = ?", userID).Order("created_at DESC").Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("capability ledger: latest %s token: %w", l.kind, err)
	}
	return record.CreatedAt, true, nil
}

// DeleteExpired removes tokens that expired before cutoff.
func (l *CapabilityLedger) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := l.table(ctx).Where("expires_at < ?", cutoff).Delete(&models.CapabilityToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("capability ledger: delete expired %s tokens: %w", l.kind, res.Error)
	}
	return res.RowsAffected, nil
}
