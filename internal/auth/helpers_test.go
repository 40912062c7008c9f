package auth

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/vocabquiz/internal/database/testutil"
	"github.com/charlesng35/vocabquiz/internal/models"
	"github.com/charlesng35/vocabquiz/pkg/crypto"
)

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

type sentLink struct {
	Kind        string
	To          string
	Link        string
	DisplayName string
}

func (l sentLink) Token(t *testing.T) string {
	t.Helper()
	parsed, err := url.Parse(l.Link)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentLink
	err  error
}

func (n *fakeNotifier) SendVerificationEmail(_ context.Context, to, link, displayName string) error {
	return n.record("verification", to, link, displayName)
}

func (n *fakeNotifier) SendPasswordResetEmail(_ context.Context, to, link, displayName string) error {
	return n.record("reset", to, link, displayName)
}

func (n *fakeNotifier) record(kind, to, link, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentLink{Kind: kind, To: to, Link: link, DisplayName: name})
	return nil
}

func (n *fakeNotifier) Last(t *testing.T, kind string) sentLink {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			return n.sent[i]
		}
	}
	t.Fatalf("no %s email sent", kind)
	return sentLink{}
}

func (n *fakeNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

var errMailDown = errors.New("smtp: dial failed")

type serviceFixture struct {
	db       *gorm.DB
	svc      *Service
	jwt      *JWTService
	notifier *fakeNotifier
	clock    *testClock
}

func setupService(t *testing.T) *serviceFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newTestClock()

	jwtService, err := NewJWTService(JWTConfig{
		Secret:          "service-secret",
		Issuer:          "vocabquiz",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Clock:           clock.Now,
	})
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	svc, err := NewService(db, jwtService, notifier, Config{
		BaseURL:            "http://localhost:3000/",
		VerificationPolicy: SendPolicy{Cooldown: time.Minute, DailyCap: 3},
		ResetPolicy:        SendPolicy{Cooldown: time.Minute, DailyCap: 3},
	}, WithClock(clock.Now))
	require.NoError(t, err)

	return &serviceFixture{db: db, svc: svc, jwt: jwtService, notifier: notifier, clock: clock}
}

func createTestUser(t *testing.T, db *gorm.DB, email string, verified bool) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("Secret123!")
	require.NoError(t, err)

	user, err := NewCredentialStore(db).Create(context.Background(), email, hashed, models.RoleUser, verified)
	require.NoError(t, err)
	return user
}
