package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
	"github.com/layer-3/tokenauth/service"
)

// SessionResponse is returned by credential exchange and session lookups
type SessionResponse struct {
	User        core.Profile `json:"user"`
	Token       string       `json:"token"`
	CreatedAt   *time.Time   `json:"created_at,omitempty"`
	LastUsedAt  *time.Time   `json:"last_used_at,omitempty"`
	ResourceURI string       `json:"resource_uri"`
}

// SessionList is returned by the session collection
type SessionList struct {
	Meta    ListMeta          `json:"meta"`
	Objects []SessionResponse `json:"objects"`
}

// ListMeta describes a collection response
type ListMeta struct {
	TotalCount int `json:"total_count"`
}

// SessionHandlers contains HTTP handlers for session and user endpoints
type SessionHandlers struct {
	manager    *service.Manager
	directory  ports.AccountDirectory
	userFields []string
	basePath   string
	logger     watermill.LoggerAdapter
}

// NewSessionHandlers creates new session handlers. directory may be nil, in
// which case users are rendered by id only.
func NewSessionHandlers(manager *service.Manager, directory ports.AccountDirectory, userFields []string, basePath string, logger watermill.LoggerAdapter) *SessionHandlers {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &SessionHandlers{
		manager:    manager,
		directory:  directory,
		userFields: userFields,
		basePath:   basePath,
		logger:     logger,
	}
}

// Exchange authenticates with strategy and answers with a freshly issued token
func (h *SessionHandlers) Exchange(strategy ports.Strategy, status int) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		out := h.manager.AuthenticateAndIssue(ctx, NewAuthContext(c), strategy, service.Exchange)
		if !accept(c, out) {
			return
		}

		c.JSON(status, SessionResponse{
			User:        h.userView(ctx, out.Identity),
			Token:       out.Token,
			ResourceURI: h.sessionURI(out.Token),
		})
	}
}

// ListSessions returns the caller's sessions
func (h *SessionHandlers) ListSessions(c *gin.Context) {
	id, ok := IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	tokens, err := h.manager.Sessions(ctx, id)
	if err != nil {
		h.internalError(c, "Failed to list sessions", err)
		return
	}

	user := h.userView(ctx, id)
	objects := make([]SessionResponse, 0, len(tokens))
	for _, tok := range tokens {
		objects = append(objects, h.sessionView(user, tok))
	}

	c.JSON(http.StatusOK, SessionList{
		Meta:    ListMeta{TotalCount: len(objects)},
		Objects: objects,
	})
}

// GetSession returns one of the caller's sessions
func (h *SessionHandlers) GetSession(c *gin.Context) {
	id, ok := IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	tok, err := h.manager.Session(ctx, id, c.Param("token"))
	if errors.Is(err, core.ErrTokenNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		h.internalError(c, "Failed to load session", err)
		return
	}

	c.JSON(http.StatusOK, h.sessionView(h.userView(ctx, id), tok))
}

// DeleteSession revokes one of the caller's sessions
func (h *SessionHandlers) DeleteSession(c *gin.Context) {
	id, ok := IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	err := h.manager.RevokeOwned(c.Request.Context(), id, c.Param("token"))
	if errors.Is(err, core.ErrTokenNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		h.internalError(c, "Failed to revoke session", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// User returns the authenticated user's profile
func (h *SessionHandlers) User(c *gin.Context) {
	id, ok := IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if h.directory == nil {
		c.JSON(http.StatusOK, core.Profile{"id": id.String()})
		return
	}

	profile, err := h.directory.Profile(c.Request.Context(), id)
	if errors.Is(err, core.ErrIdentityNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		h.internalError(c, "Failed to load user", err)
		return
	}

	view := profile.Select(h.userFields)
	view["id"] = id.String()
	c.JSON(http.StatusOK, view)
}

func (h *SessionHandlers) userView(ctx context.Context, id core.Identity) core.Profile {
	view := core.Profile{}
	if h.directory != nil {
		profile, err := h.directory.Profile(ctx, id)
		if err != nil {
			h.logger.Error("Failed to load user profile", err, watermill.LogFields{"identity": id.String()})
		} else {
			view = profile.Select(h.userFields)
		}
	}
	view["id"] = id.String()
	return view
}

func (h *SessionHandlers) sessionView(user core.Profile, tok core.Token) SessionResponse {
	created, lastUsed := tok.CreatedAt, tok.LastUsedAt
	return SessionResponse{
		User:        user,
		Token:       tok.Value,
		CreatedAt:   &created,
		LastUsedAt:  &lastUsed,
		ResourceURI: h.sessionURI(tok.Value),
	}
}

func (h *SessionHandlers) sessionURI(value string) string {
	return h.basePath + "/sessions/" + value
}

func (h *SessionHandlers) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, err, watermill.LogFields{"path": c.FullPath()})
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
