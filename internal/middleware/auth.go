package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/vocabquiz/internal/auth"
	"github.com/charlesng35/vocabquiz/pkg/errors"
	"github.com/charlesng35/vocabquiz/pkg/response"
)

// CtxPrincipalKey holds the authenticated iauth.Principal.
const CtxPrincipalKey = "authPrincipal"

// TokenValidator resolves an access token into the principal it belongs to.
type TokenValidator interface {
	Validate(ctx context.Context, accessToken string) (iauth.Principal, error)
}

// Authenticate requires a valid access token, taken from the access cookie or
// an Authorization bearer header, and stores the principal on the context.
// Rejections that invalidate the session also expire the session cookies.
func Authenticate(validator TokenValidator, cookies iauth.CookiePolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := AccessToken(c)
		if token == "" {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		principal, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			authErr, ok := iauth.AsError(err)
			if !ok {
				response.Error(c, errors.ErrInternalServer.WithInternal(err))
				c.Abort()
				return
			}
			if authErr.ClearSession {
				for _, cookie := range cookies.ClearCookies() {
					http.SetCookie(c.Writer, cookie)
				}
			}
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxPrincipalKey, principal)
		c.Next()
	}
}

// AccessToken returns the presented access token, preferring the cookie.
func AccessToken(c *gin.Context) string {
	if value, err := c.Cookie(iauth.AccessCookieName); err == nil && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[7:])
}

// PrincipalFrom returns the principal stored by Authenticate.
func PrincipalFrom(c *gin.Context) (iauth.Principal, bool) {
	value, ok := c.Get(CtxPrincipalKey)
	if !ok {
		return iauth.Principal{}, false
	}
	principal, ok := value.(iauth.Principal)
	return principal, ok
}
