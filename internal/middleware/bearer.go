package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-export/internal/backend"
	appErrors "github.com/noah-isme/course-export/pkg/errors"
	"github.com/noah-isme/course-export/pkg/response"
)

// ContextTokenKey is the gin context key storing the caller's bearer token.
const ContextTokenKey = "bearerToken"

// Bearer forwards the caller's token to backend calls through the request
// context. Without a header the request proceeds only when allowAnonymous is
// set, in which case backend calls use the service token. Expired JWTs are
// rejected up front since the backend would refuse them anyway.
func Bearer(allowAnonymous bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if allowAnonymous {
				c.Next()
				return
			}
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}
		token := strings.TrimSpace(parts[1])
		if backend.TokenExpired(token, time.Now()) {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "token expired"))
			c.Abort()
			return
		}

		c.Set(ContextTokenKey, token)
		c.Request = c.Request.WithContext(backend.WithToken(c.Request.Context(), token))
		c.Next()
	}
}
