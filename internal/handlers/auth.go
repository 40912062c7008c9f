package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/vocabquiz/internal/auth"
	"github.com/charlesng35/vocabquiz/internal/middleware"
	"github.com/charlesng35/vocabquiz/pkg/errors"
	"github.com/charlesng35/vocabquiz/pkg/response"
)

// AuthHandler exposes the account and session flows over HTTP.
type AuthHandler struct {
	svc     *iauth.Service
	cookies iauth.CookiePolicy
}

func NewAuthHandler(svc *iauth.Service, cookies iauth.CookiePolicy) *AuthHandler {
	return &AuthHandler{svc: svc, cookies: cookies}
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,password"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required"`
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,password"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	message, err := h.svc.Register(requestContext(c), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeAuthError(c, h.cookies, err)
		return
	}
	response.Message(c, http.StatusCreated, message)
}

// POST /api/auth/register/admin
func (h *AuthHandler) RegisterAdmin(c *gin.Context) {
	caller, ok := principalFrom(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req credentialsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	session, err := h.svc.RegisterAdmin(requestContext(c), caller, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeAuthError(c, h.cookies, err)
		return
	}
	response.Success(c, http.StatusCreated, session)
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	session, err := h.svc.Login(requestContext(c), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeAuthError(c, h.cookies, err)
		return
	}

	h.setSessionCookies(c, session)
	response.Success(c, http.StatusOK, session)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)

	presented := h.refreshToken(c, req.RefreshToken)
	h.svc.Logout(requestContext(c), presented)

	setCookies(c, h.cookies.ClearCookies()...)
	response.OK(c)
}

// GET /api/auth/validate
func (h *AuthHandler) Validate(c *gin.Context) {
	token := middleware.AccessToken(c)
	if token == "" {
		writeAuthError(c, h.cookies, iauth.ErrSessionInvalid)
		return
	}

	principal, err := h.svc.Validate(requestContext(c), token)
	if err != nil {
		writeAuthError(c, h.cookies, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"valid": true, "user": principal.User()})
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	presented := h.refreshToken(c, req.RefreshToken)
	if presented == "" {
		writeAuthError(c, h.cookies, iauth.ErrSessionInvalid)
		return
	}

	session, err := h.svc.Refresh(requestContext(c), presented)
	if err != nil {
		writeAuthError(c, h.cookies, err)
		return
	}

	h.setSessionCookies(c, session)
	response.Success(c, http.StatusOK, session)
}

// POST /api/auth/verify-email and GET /api/auth/verify-email?token=
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if c.Request.Method != http.MethodGet {
		var req tokenRequest
		if !bindAndValidate(c, &req) {
			return
		}
		token = strings.TrimSpace(req.Token)
	}
	if token == "" {
		response.Error(c, errors.NewBadRequest("token is required"))
		return
	}

	if err := h.svc.VerifyEmail(requestContext(c), token); err != nil {
		writeAuthError(c, h.cookies, err)
		return
	}
	response.Message(c, http.StatusOK, "Email verified successfully. You can now log in.")
}

// POST /api/auth/resend-verification
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.svc.ResendVerification(requestContext(c), strings.TrimSpace(req.Email)); err != nil {
		writeAuthError(c, h.cookies, err)
		return
	}
	response.OK(c)
}

// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.svc.ForgotPassword(requestContext(c), strings.TrimSpace(req.Email)); err != nil {
		writeAuthError(c, h.cookies, err)
		return
	}
	response.OK(c)
}

// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.svc.ResetPassword(requestContext(c), strings.TrimSpace(req.Token), req.NewPassword); err != nil {
		writeAuthError(c, h.cookies, err)
		return
	}
	response.Message(c, http.StatusOK, "Password has been reset. Please log in with your new password.")
}

// POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	caller, ok := principalFrom(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.svc.ChangePassword(requestContext(c), caller, req.CurrentPassword, req.NewPassword); err != nil {
		writeAuthError(c, h.cookies, err)
		return
	}

	// Every refresh token is gone; the browser session goes with them.
	setCookies(c, h.cookies.ClearCookies()...)
	response.Message(c, http.StatusOK, "Password changed. Please log in again.")
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	caller, ok := principalFrom(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, caller.User())
}

func (h *AuthHandler) setSessionCookies(c *gin.Context, session *iauth.Session) {
	setCookies(c,
		h.cookies.AccessCookie(session.AccessToken),
		h.cookies.RefreshCookie(session.RefreshToken),
	)
}

// refreshToken prefers the refresh cookie and falls back to the body value.
func (h *AuthHandler) refreshToken(c *gin.Context, fromBody string) string {
	if value, err := c.Cookie(iauth.RefreshCookieName); err == nil && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(fromBody)
}
