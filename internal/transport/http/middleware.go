package httptransport

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mochimon-server-go/internal/domain/auth"
	"mochimon-server-go/internal/platform/logging"
)

const (
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "request_id"
	subjectKey   = "auth_subject"
)

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// BearerAuth rejects requests without a valid "Authorization: Bearer" token.
func BearerAuth(tokens *auth.AuthToken, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			logger.WarnTag("Auth", "未提供认证token path=%s", c.Request.URL.Path)
			AbortWithError(c, http.StatusUnauthorized, "missing bearer token")
			return
		}

		subject, err := tokens.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			logger.WarnTag("Auth", "无效的token path=%s: %v", c.Request.URL.Path, err)
			AbortWithError(c, http.StatusUnauthorized, "invalid bearer token")
			return
		}

		c.Set(subjectKey, subject)
		c.Next()
	}
}

// Subject returns the authenticated token subject, if any.
func Subject(c *gin.Context) string {
	return c.GetString(subjectKey)
}
