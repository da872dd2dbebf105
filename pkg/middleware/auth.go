package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// subjectContextKey is an unexported key type to avoid collisions in the Gin
// context store.
type subjectContextKey string

const subjectKey subjectContextKey = "subject"

// AuthConfig captures the knobs for bearer-token authentication.
type AuthConfig struct {
	// Secret is the HMAC key used to verify tokens.
	Secret []byte
	// Issuer, when set, must match the token's iss claim.
	Issuer string
}

// BearerAuth returns a Gin middleware that verifies an HS256 bearer token and
// stores its subject on the context for downstream handlers.
func BearerAuth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing bearer token",
			})
			return
		}

		opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
		if cfg.Issuer != "" {
			opts = append(opts, jwt.WithIssuer(cfg.Issuer))
		}
		token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
			return cfg.Secret, nil
		}, opts...)
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid bearer token",
			})
			return
		}

		subject, err := token.Claims.GetSubject()
		if err == nil && subject != "" {
			c.Set(string(subjectKey), subject)
		}
		c.Next()
	}
}

// SubjectFromGinContext extracts the token subject previously stored by
// BearerAuth.
func SubjectFromGinContext(c *gin.Context) (string, error) {
	if value, ok := c.Get(string(subjectKey)); ok {
		if subject, ok := value.(string); ok && subject != "" {
			return subject, nil
		}
	}
	return "", errors.New("subject not found in context")
}
