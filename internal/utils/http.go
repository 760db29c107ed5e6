package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetRealClientIP returns the caller address for audit logs. X-Real-IP wins,
// then the first valid X-Forwarded-For entry, then gin's ClientIP.
// Header values that do not parse as an IP are ignored.
func GetRealClientIP(c *gin.Context) string {
	if ip := parseIP(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}

	for _, hop := range strings.Split(c.GetHeader("X-Forwarded-For"), ",") {
		if ip := parseIP(hop); ip != "" {
			return ip
		}
	}

	return c.ClientIP()
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
