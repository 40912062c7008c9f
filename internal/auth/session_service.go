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

// ErrRotationConflict is returned by Rotate when the old token was revoked or
// rotated by someone else first.
var ErrRotationConflict = errors.New("session: refresh token already rotated or revoked")

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	Clock func() time.Time
}

// SessionService is the refresh token ledger. Rows are keyed by jti and hold
// the SHA-256 digest of the signed token.
type SessionService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSessionService constructs a ledger backed by db.
func NewSessionService(db *gorm.DB, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &SessionService{db: db, now: clock}, nil
}

// WithTx returns a copy bound to tx.
func (s *SessionService) WithTx(tx *gorm.DB) *SessionService {
	cp := *s
	cp.db = tx
	return &cp
}

// Record persists a freshly signed refresh token for userID.
func (s *SessionService) Record(ctx context.Context, userID string, token SignedToken) (*models.RefreshToken, error) {
	record, err := s.newRecord(userID, token)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("session service: record refresh token: %w", err)
	}
	return record, nil
}

func (s *SessionService) newRecord(userID string, token SignedToken) (*models.RefreshToken, error) {
	if userID == "" {
		return nil, errors.New("session service: user id is required")
	}
	if token.JTI == "" || token.Token == "" {
		return nil, errors.New("session service: refresh token and jti are required")
	}
	return &models.RefreshToken{
		BaseModel: models.BaseModel{CreatedAt: s.now()},
		JTI:       token.JTI,
		UserID:    userID,
		TokenHash: crypto.SHA256Hex(token.Token),
		ExpiresAt: token.ExpiresAt,
	}, nil
}

// FindByJTI returns nil without error when no row carries jti.
func (s *SessionService) FindByJTI(ctx context.Context, jti string) (*models.RefreshToken, error) {
	if jti == "" {
		return nil, nil
	}

	var record models.RefreshToken
	err := s.db.WithContext(ctx).Where("jti = ?", jti).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session service: lookup refresh token: %w", err)
	}
	return &record, nil
}

// Matches reports whether token is the one recorded in record.
func (s *SessionService) Matches(record *models.RefreshToken, token string) bool {
	return record != nil && crypto.ConstantTimeEqual(crypto.SHA256Hex(token), record.TokenHash)
}

// Rotate inserts next and revokes old, pointing old.ReplacedBy at the new
// row. Both writes commit together or not at all. ErrRotationConflict means
// old was no longer active when the update ran.
func (s *SessionService) Rotate(ctx context.Context, old *models.RefreshToken, next SignedToken) (*models.RefreshToken, error) {
	if old == nil {
		return nil, errors.New("session service: old refresh token is required")
	}

	record, err := s.newRecord(old.UserID, next)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("session service: record rotated token: %w", err)
		}

		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", old.ID).
			Updates(map[string]any{
				"revoked_at":  s.now(),
				"replaced_by": record.ID,
			})
		if res.Error != nil {
			return fmt.Errorf("session service: revoke rotated token: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrRotationConflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// RevokeAll revokes every active refresh token of userID.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", s.now())
	if res.Error != nil {
		return 0, fmt.Errorf("session service: revoke user tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ActiveCount returns the number of unrevoked, unexpired tokens of userID.
func (s *SessionService) ActiveCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, s.now()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("session service: count active tokens: %w", err)
	}
	return count, nil
}

// CleanupExpired removes refresh tokens that expired before cutoff.
func (s *SessionService) CleanupExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", cutoff).Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("session service: cleanup expired tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}
