package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/vocabquiz/internal/auth"
	"github.com/charlesng35/vocabquiz/internal/handlers/testutil"
	"github.com/charlesng35/vocabquiz/internal/models"
)

const testPassword = "Sup3rSecret!"

func registerAndVerify(t *testing.T, env *testutil.Env, email string) {
	t.Helper()

	w := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    email,
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	token := env.Outbox.Last(t, "verification", email).Token(t)
	w = env.Request(http.MethodGet, "/api/auth/verify-email?token="+token, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAuthHandler_RegisterVerifyLogin(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "learner@example.com",
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	var body map[string]string
	testutil.DecodeInto(t, resp.Data, &body)
	require.Contains(t, body["message"], "verify")
	require.Nil(t, env.Cookie(iauth.AccessCookieName))

	login := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "learner@example.com",
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusUnauthorized, login.Code)
	require.Equal(t, "email not verified", testutil.DecodeResponse(t, login).Error.Message)

	token := env.Outbox.Last(t, "verification", "learner@example.com").Token(t)
	verify := env.Request(http.MethodPost, "/api/auth/verify-email", map[string]string{"token": token}, "")
	require.Equal(t, http.StatusOK, verify.Code, verify.Body.String())

	again := env.Request(http.MethodPost, "/api/auth/verify-email", map[string]string{"token": token}, "")
	require.Equal(t, http.StatusUnauthorized, again.Code)

	session := env.Login("learner@example.com", testPassword)
	require.Equal(t, models.RoleUser, session.User.Role)
	require.NotNil(t, env.Cookie(iauth.AccessCookieName))
	require.NotNil(t, env.Cookie(iauth.RefreshCookieName))
	require.True(t, env.Cookie(iauth.RefreshCookieName).HttpOnly)
}

func TestAuthHandler_RegisterValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	cases := []struct {
		name string
		body map[string]string
	}{
		{name: "bad email", body: map[string]string{"email": "nope", "password": testPassword}},
		{name: "short password", body: map[string]string{"email": "a@example.com", "password": "short"}},
		{name: "missing password", body: map[string]string{"email": "a@example.com"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.Request(http.MethodPost, "/api/auth/register", tc.body, "")
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			resp := testutil.DecodeResponse(t, w)
			require.False(t, resp.Success)
			require.NotNil(t, resp.Error)
		})
	}
	require.Zero(t, env.Outbox.Count())
}

func TestAuthHandler_RegisterDuplicate(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("taken@example.com", testPassword, models.RoleUser, true)

	w := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "taken@example.com",
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestAuthHandler_LoginWrongPassword(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("user@example.com", testPassword, models.RoleUser, true)

	wrong := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "user@example.com",
		"password": "not-the-password",
	}, "")
	require.Equal(t, http.StatusUnauthorized, wrong.Code)

	unknown := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "ghost@example.com",
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	require.Equal(t,
		testutil.DecodeResponse(t, wrong).Error.Message,
		testutil.DecodeResponse(t, unknown).Error.Message,
	)
}

func TestAuthHandler_MeAndValidate(t *testing.T) {
	env := testutil.NewEnv(t)
	registerAndVerify(t, env, "me@example.com")
	session := env.Login("me@example.com", testPassword)

	// Cookie-authenticated.
	me := env.Request(http.MethodGet, "/api/auth/me", nil, "")
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())
	var user testutil.UserPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, me).Data, &user)
	require.Equal(t, session.User.ID, user.ID)
	require.Equal(t, "me@example.com", user.Email)

	// Bearer-authenticated.
	env.ClearCookies()
	validate := env.Request(http.MethodGet, "/api/auth/validate", nil, session.AccessToken)
	require.Equal(t, http.StatusOK, validate.Code, validate.Body.String())
	var payload struct {
		Valid bool                 `json:"valid"`
		User  testutil.UserPayload `json:"user"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, validate).Data, &payload)
	require.True(t, payload.Valid)
	require.Equal(t, session.User.ID, payload.User.ID)

	anonymous := env.Request(http.MethodGet, "/api/auth/me", nil, "")
	require.Equal(t, http.StatusUnauthorized, anonymous.Code)
	require.NotEmpty(t, anonymous.Header().Get("WWW-Authenticate"))

	bogus := env.Request(http.MethodGet, "/api/auth/validate", nil, "not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, bogus.Code)

	// A refresh token is not an access token.
	wrongType := env.Request(http.MethodGet, "/api/auth/validate", nil, session.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, wrongType.Code)
}

func TestAuthHandler_RefreshRotationAndReuse(t *testing.T) {
	env := testutil.NewEnv(t)
	registerAndVerify(t, env, "rotate@example.com")
	first := env.Login("rotate@example.com", testPassword)

	// Cookie-driven refresh.
	w := env.Request(http.MethodPost, "/api/auth/refresh", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var second testutil.SessionPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &second)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Equal(t, second.RefreshToken, env.Cookie(iauth.RefreshCookieName).Value)

	// Body-driven replay of the rotated token is reuse.
	env.ClearCookies()
	replay := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": first.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, replay.Code)
	require.Equal(t, "refresh token reuse detected", testutil.DecodeResponse(t, replay).Error.Message)
	cleared := false
	for _, c := range replay.Result().Cookies() {
		if c.Name == iauth.RefreshCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	require.True(t, cleared)

	// The legitimate holder lost the session too.
	holder := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": second.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, holder.Code)
}

func TestAuthHandler_RefreshWithoutToken(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/refresh", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	garbage := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": "garbage"}, "")
	require.Equal(t, http.StatusUnauthorized, garbage.Code)
}

func TestAuthHandler_Logout(t *testing.T) {
	env := testutil.NewEnv(t)
	registerAndVerify(t, env, "bye@example.com")
	session := env.Login("bye@example.com", testPassword)

	w := env.Request(http.MethodPost, "/api/auth/logout", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Nil(t, env.Cookie(iauth.AccessCookieName))
	require.Nil(t, env.Cookie(iauth.RefreshCookieName))

	refresh := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": session.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, refresh.Code)

	// Logging out without a session still succeeds.
	anonymous := env.Request(http.MethodPost, "/api/auth/logout", nil, "")
	require.Equal(t, http.StatusOK, anonymous.Code)
}

func TestAuthHandler_ForgotAndResetPassword(t *testing.T) {
	env := testutil.NewEnv(t)
	registerAndVerify(t, env, "forgot@example.com")
	old := env.Login("forgot@example.com", testPassword)
	env.ClearCookies()

	unknown := env.Request(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "ghost@example.com"}, "")
	require.Equal(t, http.StatusOK, unknown.Code)

	w := env.Request(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "forgot@example.com"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := env.Outbox.Last(t, "reset", "forgot@example.com").Token(t)

	weak := env.Request(http.MethodPost, "/api/auth/reset-password", map[string]string{
		"token":        token,
		"new_password": "short",
	}, "")
	require.Equal(t, http.StatusBadRequest, weak.Code)

	reset := env.Request(http.MethodPost, "/api/auth/reset-password", map[string]string{
		"token":        token,
		"new_password": "BrandNewPass1",
	}, "")
	require.Equal(t, http.StatusOK, reset.Code, reset.Body.String())

	replay := env.Request(http.MethodPost, "/api/auth/reset-password", map[string]string{
		"token":        token,
		"new_password": "AnotherPass1",
	}, "")
	require.Equal(t, http.StatusUnauthorized, replay.Code)

	refresh := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": old.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, refresh.Code)

	env.Login("forgot@example.com", "BrandNewPass1")
}

func TestAuthHandler_ResendVerificationThrottled(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithSendPolicy(iauth.SendPolicy{Cooldown: time.Minute, DailyCap: 5}))

	w := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "slow@example.com",
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resend := env.Request(http.MethodPost, "/api/auth/resend-verification", map[string]string{"email": "slow@example.com"}, "")
	require.Equal(t, http.StatusTooManyRequests, resend.Code)
	require.Equal(t, 1, env.Outbox.Count())

	unknown := env.Request(http.MethodPost, "/api/auth/resend-verification", map[string]string{"email": "ghost@example.com"}, "")
	require.Equal(t, http.StatusOK, unknown.Code)
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	env := testutil.NewEnv(t)
	registerAndVerify(t, env, "change@example.com")
	env.Login("change@example.com", testPassword)

	wrong := env.Request(http.MethodPost, "/api/auth/change-password", map[string]string{
		"current_password": "not-it-at-all",
		"new_password":     "ChangedPass1",
	}, "")
	require.Equal(t, http.StatusUnauthorized, wrong.Code)

	w := env.Request(http.MethodPost, "/api/auth/change-password", map[string]string{
		"current_password": testPassword,
		"new_password":     "ChangedPass1",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Nil(t, env.Cookie(iauth.RefreshCookieName))

	old := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "change@example.com",
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusUnauthorized, old.Code)
	env.Login("change@example.com", "ChangedPass1")
}

func TestAuthHandler_RegisterAdminRequiresAdmin(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("admin@example.com", testPassword, models.RoleAdmin, true)
	env.CreateUser("plain@example.com", testPassword, models.RoleUser, true)

	payload := map[string]string{"email": "second-admin@example.com", "password": testPassword}

	anonymous := env.Request(http.MethodPost, "/api/auth/register/admin", payload, "")
	require.Equal(t, http.StatusUnauthorized, anonymous.Code)

	user := env.Login("plain@example.com", testPassword)
	env.ClearCookies()
	forbidden := env.Request(http.MethodPost, "/api/auth/register/admin", payload, user.AccessToken)
	require.Equal(t, http.StatusForbidden, forbidden.Code)

	admin := env.Login("admin@example.com", testPassword)
	env.ClearCookies()
	created := env.Request(http.MethodPost, "/api/auth/register/admin", payload, admin.AccessToken)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	var session testutil.SessionPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, created).Data, &session)
	require.Equal(t, models.RoleAdmin, session.User.Role)
	require.NotEmpty(t, session.AccessToken)
	require.Nil(t, env.Cookie(iauth.AccessCookieName))

	env.Login("second-admin@example.com", testPassword)
}

func TestAuthHandler_CSRFRequiredForCookieSessions(t *testing.T) {
	env := testutil.NewEnv(t)
	registerAndVerify(t, env, "csrf@example.com")
	env.Login("csrf@example.com", testPassword)

	req, err := http.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	require.NoError(t, err)
	req.AddCookie(env.Cookie(iauth.RefreshCookieName))
	w := serve(env, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthHandler_StaleAccessCookieIsCleared(t *testing.T) {
	env := testutil.NewEnv(t)

	req, err := http.NewRequest(http.MethodGet, "/api/auth/me", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: iauth.AccessCookieName, Value: "stale-access"})
	req.AddCookie(&http.Cookie{Name: iauth.RefreshCookieName, Value: "stale-refresh"})
	w := serve(env, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	expired := map[string]bool{}
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			expired[c.Name] = true
		}
	}
	require.True(t, expired[iauth.AccessCookieName])
	require.True(t, expired[iauth.RefreshCookieName])
}
