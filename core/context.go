package core

import (
	"net/http"
	"sync"
)

// AuthContext is the view of an inbound request handed to a strategy.
// Header and Query expose credential material; the identity slot is shared
// with the caller so downstream handlers can read it without re-authenticating.
type AuthContext interface {
	Header(name string) string
	Query(name string) string
	SetIdentity(id Identity)
	Identity() (Identity, bool)
}

// RequestContext adapts a plain *http.Request to AuthContext
type RequestContext struct {
	req *http.Request

	mu       sync.RWMutex
	identity Identity
	set      bool
}

// NewRequestContext wraps an http.Request
func NewRequestContext(req *http.Request) *RequestContext {
	return &RequestContext{req: req}
}

// Header returns the first value of the named request header
func (c *RequestContext) Header(name string) string {
	return c.req.Header.Get(name)
}

// Query returns the first value of the named query parameter
func (c *RequestContext) Query(name string) string {
	return c.req.URL.Query().Get(name)
}

// SetIdentity records the authenticated identity
func (c *RequestContext) SetIdentity(id Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.identity = id
	c.set = true
}

// Identity returns the identity set by a strategy, if any
func (c *RequestContext) Identity() (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.identity, c.set
}
