package http

import (
	"net/http"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/tokenauth/ports"
	"github.com/layer-3/tokenauth/service"
)

// BasePath is where the API is mounted
const BasePath = "/api/v1"

// Bindings fixes which strategy guards which endpoint group. A nil
// strategy leaves its endpoints unregistered.
type Bindings struct {
	Password ports.Strategy // POST and GET /authenticate
	OAuth    ports.Strategy // GET /oauth/authenticate
	Token    ports.Strategy // /sessions and /user
}

// RouterConfig holds everything the router needs besides the manager
type RouterConfig struct {
	Bindings   Bindings
	Directory  ports.AccountDirectory
	UserFields []string
	Metrics    http.Handler // served at /metrics when set
	Logger     watermill.LoggerAdapter
	Debug      bool
}

// SetupRouter sets up the Gin router
func SetupRouter(manager *service.Manager, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Debug {
		router.Use(gin.Logger())
	}

	handlers := NewSessionHandlers(manager, cfg.Directory, cfg.UserFields, BasePath, cfg.Logger)
	api := router.Group(BasePath)

	// Credential exchange
	if s := cfg.Bindings.Password; s != nil {
		api.POST("/authenticate", handlers.Exchange(s, http.StatusCreated))
		api.GET("/authenticate", handlers.Exchange(s, http.StatusOK))
	}
	if s := cfg.Bindings.OAuth; s != nil {
		api.GET("/oauth/authenticate", handlers.Exchange(s, http.StatusOK))
	}

	// Token protected resources
	if s := cfg.Bindings.Token; s != nil {
		protected := api.Group("")
		protected.Use(AuthMiddleware(manager, s))
		{
			protected.GET("/sessions", handlers.ListSessions)
			protected.GET("/sessions/:token", handlers.GetSession)
			protected.DELETE("/sessions/:token", handlers.DeleteSession)
			protected.GET("/user", handlers.User)
		}
	}

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	return router
}
