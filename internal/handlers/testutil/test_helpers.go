package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/vocabquiz/internal/api"
	"github.com/charlesng35/vocabquiz/internal/app"
	iauth "github.com/charlesng35/vocabquiz/internal/auth"
	sharedtestutil "github.com/charlesng35/vocabquiz/internal/database/testutil"
	"github.com/charlesng35/vocabquiz/internal/middleware"
	"github.com/charlesng35/vocabquiz/internal/models"
	"github.com/charlesng35/vocabquiz/pkg/crypto"
	"github.com/charlesng35/vocabquiz/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T       *testing.T
	DB      *gorm.DB
	Router  *gin.Engine
	JWT     *iauth.JWTService
	Auth    *iauth.Service
	Outbox  *Outbox
	Cookies iauth.CookiePolicy

	jar        map[string]*http.Cookie
	csrfToken  string
	csrfCookie *http.Cookie
}

// EnvOption customises NewEnv.
type EnvOption func(*envConfig)

type envConfig struct {
	csrf      bool
	rateLimit int
	rateStore middleware.RateStore
	sendCap   iauth.SendPolicy
}

// WithoutCSRF disables the double-submit check.
func WithoutCSRF() EnvOption {
	return func(cfg *envConfig) { cfg.csrf = false }
}

// WithRateLimit enables the HTTP limiter with n requests per minute.
func WithRateLimit(n int, store middleware.RateStore) EnvOption {
	return func(cfg *envConfig) {
		cfg.rateLimit = n
		cfg.rateStore = store
	}
}

// WithSendPolicy overrides the verification and reset send policy.
func WithSendPolicy(policy iauth.SendPolicy) EnvOption {
	return func(cfg *envConfig) { cfg.sendCap = policy }
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	envCfg := envConfig{csrf: true, sendCap: iauth.SendPolicy{Cooldown: time.Nanosecond, DailyCap: 100}}
	for _, opt := range opts {
		opt(&envCfg)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:          "test-suite-super-secret-key-32-bytes!!",
		Issuer:          "test-suite",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	require.NoError(t, err)

	outbox := &Outbox{}
	svc, err := iauth.NewService(db, jwtSvc, outbox, iauth.Config{
		BaseURL:            "http://quiz.test",
		VerificationPolicy: envCfg.sendCap,
		ResetPolicy:        envCfg.sendCap,
	})
	require.NoError(t, err)

	cookies := iauth.NewCookiePolicy(iauth.CookieConfig{SameSite: "lax", AccessTTL: "15m", RefreshTTL: "1d"})

	cfg := &app.Config{
		Server: app.ServerConfig{
			CSRF:      app.CSRFConfig{Enabled: envCfg.csrf},
			RateLimit: app.RateLimitConfig{Requests: envCfg.rateLimit, Window: time.Minute},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}

	rateStore := envCfg.rateStore
	if rateStore == nil {
		rateStore = middleware.NewMemoryRateStore()
	}

	router, err := api.NewRouter(api.Deps{
		DB:        db,
		Config:    cfg,
		Auth:      svc,
		Cookies:   cookies,
		RateStore: rateStore,
	})
	require.NoError(t, err)

	return &Env{
		T:       t,
		DB:      db,
		Router:  router,
		JWT:     jwtSvc,
		Auth:    svc,
		Outbox:  outbox,
		Cookies: cookies,
		jar:     make(map[string]*http.Cookie),
	}
}

// CreateUser inserts a user directly, bypassing the verification flow.
func (e *Env) CreateUser(email, password, role string, verified bool) *models.User {
	e.T.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	user, err := iauth.NewCredentialStore(e.DB).Create(context.Background(), email, hashed, role, verified)
	require.NoError(e.T, err)
	return user
}

// SessionPayload mirrors the token pair returned by login, refresh and setup.
type SessionPayload struct {
	AccessToken      string      `json:"access_token"`
	RefreshToken     string      `json:"refresh_token"`
	AccessExpiresAt  time.Time   `json:"access_expires_at"`
	RefreshExpiresAt time.Time   `json:"refresh_expires_at"`
	User             UserPayload `json:"user"`
}

// UserPayload is the public user view.
type UserPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Login authenticates and returns the issued session. Cookies land in the jar.
func (e *Env) Login(email, password string) SessionPayload {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var session SessionPayload
	DecodeInto(e.T, resp.Data, &session)
	require.NotEmpty(e.T, session.AccessToken)
	require.NotEmpty(e.T, session.RefreshToken)
	require.Equal(e.T, email, session.User.Email)
	return session
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON
// encoding, the bearer token and any cookies held in the jar.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.request(method, path, body, token, false)
}

// Cookie returns the jar entry for name, or nil.
func (e *Env) Cookie(name string) *http.Cookie {
	return e.jar[name]
}

// ClearCookies empties the session cookie jar. The CSRF pair is kept.
func (e *Env) ClearCookies() {
	e.jar = make(map[string]*http.Cookie)
}

func (e *Env) request(method, path string, body any, token string, skipCSRF bool) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range e.jar {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	if !skipCSRF && requiresCSRFAttestation(method) {
		e.ensureCSRFToken()
		if e.csrfCookie != nil {
			req.AddCookie(e.csrfCookie)
		}
		if e.csrfToken != "" {
			req.Header.Set(middleware.CSRFHeaderName, e.csrfToken)
		}
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)

	result := w.Result()
	e.captureCSRF(result)
	e.captureSession(result)
	return w
}

func (e *Env) ensureCSRFToken() {
	if e.csrfToken != "" && e.csrfCookie != nil {
		return
	}
	resp := e.request(http.MethodGet, "/health", nil, "", true)
	require.Equal(e.T, http.StatusOK, resp.Code, resp.Body.String())
}

func (e *Env) captureCSRF(resp *http.Response) {
	if resp == nil {
		return
	}

	if token := resp.Header.Get(middleware.CSRFHeaderName); token != "" {
		e.csrfToken = token
	}
	for _, c := range resp.Cookies() {
		if c.Name == middleware.CSRFCookieName {
			e.csrfCookie = &http.Cookie{Name: c.Name, Value: c.Value}
			break
		}
	}
}

func (e *Env) captureSession(resp *http.Response) {
	if resp == nil {
		return
	}
	defer resp.Body.Close()

	for _, c := range resp.Cookies() {
		if c.Name != iauth.AccessCookieName && c.Name != iauth.RefreshCookieName {
			continue
		}
		if c.MaxAge < 0 || c.Value == "" {
			delete(e.jar, c.Name)
			continue
		}
		e.jar[c.Name] = c
	}
}

func requiresCSRFAttestation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// Mail is one captured notification.
type Mail struct {
	Kind string
	To   string
	Link string
}

// Token extracts the token query parameter from the link.
func (m Mail) Token(t *testing.T) string {
	t.Helper()
	parsed, err := url.Parse(m.Link)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

// Outbox records notifications instead of sending them.
type Outbox struct {
	mu   sync.Mutex
	sent []Mail
}

func (o *Outbox) SendVerificationEmail(_ context.Context, to, link, _ string) error {
	o.record("verification", to, link)
	return nil
}

func (o *Outbox) SendPasswordResetEmail(_ context.Context, to, link, _ string) error {
	o.record("reset", to, link)
	return nil
}

func (o *Outbox) record(kind, to, link string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, Mail{Kind: kind, To: to, Link: link})
}

// Last returns the newest mail of kind addressed to to.
func (o *Outbox) Last(t *testing.T, kind, to string) Mail {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].Kind == kind && o.sent[i].To == to {
			return o.sent[i]
		}
	}
	t.Fatalf("no %s mail to %s", kind, to)
	return Mail{}
}

// Count returns how many mails were recorded.
func (o *Outbox) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}
