package session

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// CookieName stores the opaque session token.
	CookieName = "session_token"
	// CSRFCookieName stores the double-submit CSRF token.
	CSRFCookieName = "csrf_token"
	// CSRFHeaderName is the header mutating requests must echo.
	CSRFHeaderName = "X-CSRF-Token"

	sessionContextKey = "study_session"
)

// Middleware resolves the session token and stores the session in the
// request context. Requests without a live session are rejected.
func (s *Store) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session required"})
			return
		}
		sess, err := s.Get(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

// CSRFMiddleware enforces double-submit CSRF protection for
// cookie-authenticated mutating requests.
func (s *Store) CSRFMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requiresCSRFCheck(c.Request.Method) {
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			// Explicit bearer authorization is exempt from CSRF checks.
			c.Next()
			return
		}
		headerToken := c.GetHeader(CSRFHeaderName)
		cookieToken, err := c.Cookie(CSRFCookieName)
		if err != nil || headerToken == "" || cookieToken == "" || headerToken != cookieToken {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid csrf token"})
			return
		}
		c.Next()
	}
}

// FromContext retrieves the session stored by the middleware.
func FromContext(c *gin.Context) (*Session, bool) {
	val, ok := c.Get(sessionContextKey)
	if !ok {
		return nil, false
	}
	sess, ok := val.(*Session)
	return sess, ok
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if token, err := c.Cookie(CookieName); err == nil && token != "" {
		return token
	}
	return ""
}

func requiresCSRFCheck(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}
