package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/maqua/membership-api/internal/logger"
)

// RequireSession validates the session token on protected routes.
func RequireSession(log *logger.Logger, gate *Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		// No password configured means the gate is open.
		if !gate.Enabled() {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Authorization header required"})
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Invalid authorization format. Use: Authorization: Bearer <token>"})
			c.Abort()
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if err := gate.Verify(token); err != nil {
			log.Warn("Session token rejected", "error", err, "remote_addr", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "session expired or invalid"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequestID attaches a request identifier to the context and response so
// access logs can be correlated across the lookup call chain.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
