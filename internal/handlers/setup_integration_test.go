package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/vocabquiz/internal/auth"
	"github.com/charlesng35/vocabquiz/internal/handlers/testutil"
	"github.com/charlesng35/vocabquiz/internal/models"
)

func serve(env *testutil.Env, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	return w
}

func TestSetupHandler_StatusAndInitialize(t *testing.T) {
	env := testutil.NewEnv(t)

	status := env.Request(http.MethodGet, "/api/setup/status", nil, "")
	require.Equal(t, http.StatusOK, status.Code)
	var state map[string]bool
	testutil.DecodeInto(t, testutil.DecodeResponse(t, status).Data, &state)
	require.False(t, state["initialized"])

	invalid := env.Request(http.MethodPost, "/api/setup/initialize", map[string]string{"email": "root@example.com"}, "")
	require.Equal(t, http.StatusBadRequest, invalid.Code)

	init := env.Request(http.MethodPost, "/api/setup/initialize", map[string]string{
		"email":    "root@example.com",
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusCreated, init.Code, init.Body.String())
	var session testutil.SessionPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, init).Data, &session)
	require.Equal(t, models.RoleAdmin, session.User.Role)
	require.NotNil(t, env.Cookie(iauth.AccessCookieName))

	status = env.Request(http.MethodGet, "/api/setup/status", nil, "")
	testutil.DecodeInto(t, testutil.DecodeResponse(t, status).Data, &state)
	require.True(t, state["initialized"])

	again := env.Request(http.MethodPost, "/api/setup/initialize", map[string]string{
		"email":    "other@example.com",
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusConflict, again.Code)

	// The setup admin is verified and can sign in straight away.
	env.ClearCookies()
	env.Login("root@example.com", testPassword)
}

func TestHealthHandler(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &body)
	require.Equal(t, "ok", body["status"])

	sqlDB, err := env.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	degraded := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, degraded.Code)
}

func TestRateLimitedEndpoint(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithoutCSRF(), testutil.WithRateLimit(2, nil))

	for i := 0; i < 2; i++ {
		w := env.Request(http.MethodGet, "/api/setup/status", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
	}
	limited := env.Request(http.MethodGet, "/api/setup/status", nil, "")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.NotEmpty(t, limited.Header().Get("Retry-After"))
}
