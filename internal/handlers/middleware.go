package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	webhookTokenHeader = "X-Webhook-Token"
	ctxUserID          = "userId"
)

// userIdMiddleware guards the operator API with a bearer token.
func (h *Handler) userIdMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing Authorization header",
		})
		return
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid Authorization header format",
		})
		return
	}

	userId, err := h.services.ParseToken(parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
		})
		return
	}

	// store in Gin context
	c.Set(ctxUserID, userId)
	c.Next()
}

// webhookTokenMiddleware checks the shared ingress secret when one is configured.
func (h *Handler) webhookTokenMiddleware(c *gin.Context) {
	if h.webhookToken == "" {
		c.Next()
		return
	}
	got := c.GetHeader(webhookTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid webhook token",
		})
		return
	}
	c.Next()
}
