package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
	"github.com/layer-3/tokenauth/service"
)

// AuthMiddleware validates the request with the endpoint's strategy
func AuthMiddleware(manager *service.Manager, strategy ports.Strategy) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := manager.AuthenticateAndIssue(c.Request.Context(), NewAuthContext(c), strategy, service.Validate)
		if !accept(c, out) {
			return
		}

		c.Next()
	}
}

// accept aborts the request unless the outcome is authenticated.
// Rejections never say why.
func accept(c *gin.Context, out core.Outcome) bool {
	switch out.Kind {
	case core.KindAuthenticated:
		c.Set(identityKey, out.Identity)
		return true
	case core.KindError:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return false
	default:
		if out.Challenge != "" {
			c.Header("WWW-Authenticate", out.Challenge)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}
}
