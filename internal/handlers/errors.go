package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/vocabquiz/internal/auth"
	"github.com/charlesng35/vocabquiz/pkg/errors"
	"github.com/charlesng35/vocabquiz/pkg/logger"
	"github.com/charlesng35/vocabquiz/pkg/response"
)

// toAppError translates a core auth failure into the API error envelope.
func toAppError(err error) *errors.AppError {
	authErr, ok := iauth.AsError(err)
	if !ok {
		return errors.ErrInternalServer.WithInternal(err)
	}

	switch authErr.Kind {
	case iauth.KindUnauthorized:
		return errors.ErrUnauthorized.WithMessage(authErr.Reason)
	case iauth.KindForbidden:
		return errors.ErrForbidden.WithMessage(authErr.Reason)
	case iauth.KindConflict:
		return errors.ErrConflict.WithMessage(authErr.Reason)
	case iauth.KindTooManyRequests:
		return errors.ErrRateLimit.WithMessage(authErr.Reason)
	default:
		return errors.ErrInternalServer.WithInternal(err)
	}
}

// writeAuthError renders err, clearing the session cookies when the failure
// demands it.
func writeAuthError(c *gin.Context, cookies iauth.CookiePolicy, err error) {
	if authErr, ok := iauth.AsError(err); ok && authErr.ClearSession {
		setCookies(c, cookies.ClearCookies()...)
	}

	appErr := toAppError(err)
	if appErr.StatusCode == http.StatusInternalServerError {
		logger.WithModule("http").Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	response.Error(c, appErr)
}

func setCookies(c *gin.Context, cookies ...*http.Cookie) {
	for _, cookie := range cookies {
		http.SetCookie(c.Writer, cookie)
	}
}
