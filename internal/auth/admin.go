package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"workshops/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminKeyHeader carries the admin API key
const AdminKeyHeader = "X-Admin-Key"

// AdminMiddleware admits requests that present the admin API key, either in
// X-Admin-Key or as a bearer token, or a valid admin JWT as the bearer token.
// tokens may be nil to accept the API key only.
func AdminMiddleware(apiKey string, tokens *TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearer := bearerToken(c.GetHeader("Authorization"))
		presented := c.GetHeader(AdminKeyHeader)
		if presented == "" {
			presented = bearer
		}

		if apiKey != "" && presented != "" &&
			subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) == 1 {
			c.Set("role", "admin")
			c.Set("admin_subject", "api-key")
			c.Next()
			return
		}

		if tokens != nil && bearer != "" {
			claims, err := tokens.Validate(bearer)
			if err == nil {
				c.Set("role", "admin")
				c.Set("admin_subject", claims.Subject)
				c.Next()
				return
			}
			logger.Debug("Admin token rejected", zap.Error(err))
		}

		logger.Warn("Rejected admin request",
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", utils.GetRealClientIP(c)),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		c.Abort()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
