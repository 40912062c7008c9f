package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/vocabquiz/internal/auth"
	"github.com/charlesng35/vocabquiz/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// principalFrom returns the caller authenticated by middleware.Authenticate.
func principalFrom(c *gin.Context) (iauth.Principal, bool) {
	if c == nil {
		return iauth.Principal{}, false
	}
	return middleware.PrincipalFrom(c)
}
