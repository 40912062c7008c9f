package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/vocabquiz/internal/models"
	"github.com/charlesng35/vocabquiz/pkg/crypto"
)

// CredentialStore persists users. Emails match exactly as stored.
type CredentialStore struct {
	db *gorm.DB
}

// NewCredentialStore returns a store over db.
func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// WithTx returns a copy bound to tx.
func (s *CredentialStore) WithTx(tx *gorm.DB) *CredentialStore {
	return &CredentialStore{db: tx}
}

// FindByEmail returns nil without error when no user owns email.
func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.take(ctx, "email = ?", strings.TrimSpace(email))
}

// FindByID returns nil without error when the user does not exist.
func (s *CredentialStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	return s.take(ctx, "id = ?", id)
}

// LockByID loads the user row FOR UPDATE. Only meaningful inside a
// transaction; SQLite ignores the lock and serialises writers instead.
func (s *CredentialStore) LockByID(ctx context.Context, id string) (*models.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	return s.query(s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

func (s *CredentialStore) take(ctx context.Context, query string, arg any) (*models.User, error) {
	return s.query(s.db.WithContext(ctx), query, arg)
}

func (s *CredentialStore) query(db *gorm.DB, query string, arg any) (*models.User, error) {
	var user models.User
	err := db.Where(query, arg).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credential store: query user: %w", err)
	}
	return &user, nil
}

// Create inserts a user. A duplicate email yields ErrEmailTaken.
func (s *CredentialStore) Create(ctx context.Context, email, passwordHash, role string, verified bool) (*models.User, error) {
	user := &models.User{
		Email:           strings.TrimSpace(email),
		PasswordHash:    passwordHash,
		Role:            role,
		IsEmailVerified: verified,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailTaken.withCause(err)
		}
		return nil, fmt.Errorf("credential store: create user: %w", err)
	}
	return user, nil
}

// UpdatePassword replaces the stored hash.
func (s *CredentialStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("password_hash", passwordHash)
	if res.Error != nil {
		return fmt.Errorf("credential store: update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("credential store: update password: %w", gorm.ErrRecordNotFound)
	}
	return nil
}

// SetEmailVerified flags the user's email as verified.
func (s *CredentialStore) SetEmailVerified(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_email_verified", true)
	if res.Error != nil {
		return fmt.Errorf("credential store: set email verified: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("credential store: set email verified: %w", gorm.ErrRecordNotFound)
	}
	return nil
}

// VerifyCredentials returns the user when password matches. The bcrypt
// comparison runs even for unknown emails so both paths cost the same.
func (s *CredentialStore) VerifyCredentials(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	hash := ""
	if user != nil {
		hash = user.PasswordHash
	}
	if !crypto.VerifyPassword(hash, password) || user == nil {
		return nil, nil
	}
	return user, nil
}

// Count returns the number of users.
func (s *CredentialStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("credential store: count users: %w", err)
	}
	return count, nil
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") || strings.Contains(lower, "duplicate")
}
