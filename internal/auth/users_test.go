package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/vocabquiz/internal/database/testutil"
	"github.com/charlesng35/vocabquiz/internal/models"
)

func TestCredentialStoreCreateAndFind(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewCredentialStore(db)
	ctx := context.Background()

	user := createTestUser(t, db, "a@x.com", false)
	require.Len(t, user.ID, 26)
	require.Equal(t, models.RoleUser, user.Role)

	found, err := store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, user.ID, found.ID)

	missing, err := store.FindByEmail(ctx, "A@X.COM")
	require.NoError(t, err)
	require.Nil(t, missing, "emails match exactly as stored")

	byID, err := store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", byID.Email)

	none, err := store.FindByID(ctx, "")
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestCredentialStoreDuplicateEmail(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	createTestUser(t, db, "dup@x.com", false)

	_, err := NewCredentialStore(db).Create(context.Background(), "dup@x.com", "hash", models.RoleUser, false)
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestCredentialStoreUpdates(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewCredentialStore(db)
	ctx := context.Background()
	user := createTestUser(t, db, "u@x.com", false)

	require.NoError(t, store.SetEmailVerified(ctx, user.ID))
	require.NoError(t, store.UpdatePassword(ctx, user.ID, "new-hash"))

	reloaded, err := store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, reloaded.IsEmailVerified)
	require.Equal(t, "new-hash", reloaded.PasswordHash)

	require.Error(t, store.UpdatePassword(ctx, "missing", "x"))
	require.Error(t, store.SetEmailVerified(ctx, "missing"))
}

func TestCredentialStoreVerifyCredentials(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewCredentialStore(db)
	ctx := context.Background()
	createTestUser(t, db, "v@x.com", true)

	user, err := store.VerifyCredentials(ctx, "v@x.com", "Secret123!")
	require.NoError(t, err)
	require.NotNil(t, user)

	user, err = store.VerifyCredentials(ctx, "v@x.com", "wrong")
	require.NoError(t, err)
	require.Nil(t, user)

	user, err = store.VerifyCredentials(ctx, "nobody@x.com", "Secret123!")
	require.NoError(t, err)
	require.Nil(t, user)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestIsUniqueConstraintError(t *testing.T) {
	require.False(t, isUniqueConstraintError(nil))
	require.True(t, isUniqueConstraintError(errors.New("UNIQUE constraint failed: users.email")))
	require.True(t, isUniqueConstraintError(errors.New("Error 1062: Duplicate entry")))
	require.False(t, isUniqueConstraintError(errors.New("FOREIGN KEY constraint failed")))
	require.True(t, isUniqueConstraintError(&pgconn.PgError{Code: "23505"}))
	require.True(t, isUniqueConstraintError(&mysql.MySQLError{Number: 1062, Message: "x"}))
}
