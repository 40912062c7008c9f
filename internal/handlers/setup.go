package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/vocabquiz/internal/auth"
	"github.com/charlesng35/vocabquiz/pkg/errors"
	"github.com/charlesng35/vocabquiz/pkg/response"
)

// SetupHandler creates the first administrator on an empty installation.
type SetupHandler struct {
	svc     *iauth.Service
	cookies iauth.CookiePolicy
}

func NewSetupHandler(svc *iauth.Service, cookies iauth.CookiePolicy) *SetupHandler {
	return &SetupHandler{svc: svc, cookies: cookies}
}

// GET /api/setup/status
func (h *SetupHandler) Status(c *gin.Context) {
	needs, err := h.svc.NeedsSetup(requestContext(c))
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"initialized": !needs})
}

// POST /api/setup/initialize
func (h *SetupHandler) Initialize(c *gin.Context) {
	var req credentialsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	session, err := h.svc.InitializeAdmin(requestContext(c), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeAuthError(c, h.cookies, err)
		return
	}

	setCookies(c,
		h.cookies.AccessCookie(session.AccessToken),
		h.cookies.RefreshCookie(session.RefreshToken),
	)
	response.Success(c, http.StatusCreated, session)
}
