package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/tokenauth/core"
)

const identityKey = "tokenauth.identity"

// ginContext adapts a gin request to core.AuthContext
type ginContext struct {
	c *gin.Context
}

// NewAuthContext wraps a gin context for use by strategies
func NewAuthContext(c *gin.Context) core.AuthContext {
	return ginContext{c: c}
}

func (g ginContext) Header(name string) string {
	return g.c.GetHeader(name)
}

func (g ginContext) Query(name string) string {
	return g.c.Query(name)
}

func (g ginContext) SetIdentity(id core.Identity) {
	g.c.Set(identityKey, id)
}

func (g ginContext) Identity() (core.Identity, bool) {
	return IdentityFrom(g.c)
}

// IdentityFrom returns the identity a strategy recorded on the request
func IdentityFrom(c *gin.Context) (core.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return "", false
	}
	id, ok := v.(core.Identity)
	return id, ok
}
