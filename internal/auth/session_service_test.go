package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/vocabquiz/internal/database/testutil"
	"github.com/charlesng35/vocabquiz/internal/models"
	"github.com/charlesng35/vocabquiz/pkg/crypto"
)

func setupSessionService(t *testing.T) (*gorm.DB, *SessionService, *JWTService, *testClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newTestClock()

	jwtService, err := NewJWTService(JWTConfig{
		Secret:          "session-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 2 * time.Hour,
		Clock:           clock.Now,
	})
	require.NoError(t, err)

	sessionService, err := NewSessionService(db, SessionConfig{Clock: clock.Now})
	require.NoError(t, err)

	return db, sessionService, jwtService, clock
}

func TestRecordStoresHashNotToken(t *testing.T) {
	db, svc, jwtService, clock := setupSessionService(t)
	user := createTestUser(t, db, "record@x.com", true)
	ctx := context.Background()

	signed, err := jwtService.SignRefresh(user)
	require.NoError(t, err)

	record, err := svc.Record(ctx, user.ID, signed)
	require.NoError(t, err)

	var reloaded models.RefreshToken
	require.NoError(t, db.Take(&reloaded, "id = ?", record.ID).Error)
	require.Equal(t, signed.JTI, reloaded.JTI)
	require.Equal(t, crypto.SHA256Hex(signed.Token), reloaded.TokenHash)
	require.True(t, reloaded.ExpiresAt.Equal(clock.Now().Add(2*time.Hour)))
	require.True(t, reloaded.Active(clock.Now()))

	found, err := svc.FindByJTI(ctx, signed.JTI)
	require.NoError(t, err)
	require.True(t, svc.Matches(found, signed.Token))
	require.False(t, svc.Matches(found, signed.Token+"x"))
	require.False(t, svc.Matches(nil, signed.Token))

	missing, err := svc.FindByJTI(ctx, "unknown")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRotateLinksChain(t *testing.T) {
	db, svc, jwtService, _ := setupSessionService(t)
	user := createTestUser(t, db, "rotate@x.com", true)
	ctx := context.Background()

	first, err := jwtService.SignRefresh(user)
	require.NoError(t, err)
	old, err := svc.Record(ctx, user.ID, first)
	require.NoError(t, err)

	second, err := jwtService.SignRefresh(user)
	require.NoError(t, err)
	next, err := svc.Rotate(ctx, old, second)
	require.NoError(t, err)
	require.NotEqual(t, old.JTI, next.JTI)

	var reloaded models.RefreshToken
	require.NoError(t, db.Take(&reloaded, "id = ?", old.ID).Error)
	require.NotNil(t, reloaded.RevokedAt)
	require.NotNil(t, reloaded.ReplacedBy)
	require.Equal(t, next.ID, *reloaded.ReplacedBy)

	active, err := svc.ActiveCount(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, active)
}

func TestRotateConflictLeavesNoPartialState(t *testing.T) {
	db, svc, jwtService, _ := setupSessionService(t)
	user := createTestUser(t, db, "conflict@x.com", true)
	ctx := context.Background()

	first, err := jwtService.SignRefresh(user)
	require.NoError(t, err)
	old, err := svc.Record(ctx, user.ID, first)
	require.NoError(t, err)

	winner, err := jwtService.SignRefresh(user)
	require.NoError(t, err)
	_, err = svc.Rotate(ctx, old, winner)
	require.NoError(t, err)

	loser, err := jwtService.SignRefresh(user)
	require.NoError(t, err)
	_, err = svc.Rotate(ctx, old, loser)
	require.ErrorIs(t, err, ErrRotationConflict)

	orphan, err := svc.FindByJTI(ctx, loser.JTI)
	require.NoError(t, err)
	require.Nil(t, orphan, "losing rotation must not leave its new row behind")
}

func TestRevokeAllAndCleanup(t *testing.T) {
	db, svc, jwtService, clock := setupSessionService(t)
	user := createTestUser(t, db, "revoke@x.com", true)
	other := createTestUser(t, db, "other@x.com", true)
	ctx := context.Background()

	for _, u := range []*models.User{user, user, other} {
		signed, err := jwtService.SignRefresh(u)
		require.NoError(t, err)
		_, err = svc.Record(ctx, u.ID, signed)
		require.NoError(t, err)
	}

	revoked, err := svc.RevokeAll(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, revoked)

	active, err := svc.ActiveCount(ctx, other.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, active)

	clock.Advance(3 * time.Hour)
	deleted, err := svc.CleanupExpired(ctx, clock.Now())
	require.NoError(t, err)
	require.EqualValues(t, 3, deleted)
}
