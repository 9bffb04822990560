// Package tokenauth assembles the authentication service: token store,
// strategies, session manager and HTTP router, wired from a config.Config.
package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/tokenauth/adapters/account"
	"github.com/layer-3/tokenauth/adapters/basic"
	"github.com/layer-3/tokenauth/adapters/events"
	"github.com/layer-3/tokenauth/adapters/generator"
	"github.com/layer-3/tokenauth/adapters/introspect"
	"github.com/layer-3/tokenauth/adapters/metrics"
	"github.com/layer-3/tokenauth/adapters/store"
	"github.com/layer-3/tokenauth/config"
	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
	"github.com/layer-3/tokenauth/service"
	"github.com/layer-3/tokenauth/strategy"
	transport "github.com/layer-3/tokenauth/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

const shutdownTimeout = 5 * time.Second

// accounts is what the service needs from an account backend
type accounts interface {
	ports.IdentityVerifier
	ports.IdentityResolver
	ports.AccountDirectory
	Register(ctx context.Context, username, password string, profile core.Profile) (core.Identity, error)
}

// Service provides the assembled authentication service
type Service struct {
	cfg    config.Config
	logger watermill.LoggerAdapter

	redis     *redis.Client
	pool      *pgxpool.Pool
	publisher message.Publisher

	store    ports.TokenStore
	accounts accounts
	manager  *service.Manager
	registry *prometheus.Registry
	router   *gin.Engine
}

// NewService connects the configured backends and builds the router.
// The returned Service must be closed.
func NewService(ctx context.Context, cfg config.Config, logger watermill.LoggerAdapter) (_ *Service, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	s := &Service{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			err = multierr.Append(err, s.Close())
		}
	}()

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	gen := generator.NewDigest()
	switch cfg.Store {
	case config.StoreRedis:
		s.store = store.NewRedisStore(s.redis, gen, store.WithKeyPrefix(cfg.RedisKeyPrefix))
	case config.StorePostgres:
		pg := store.NewPostgresStore(s.pool, gen)
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		s.store = pg
	default:
		s.store = store.NewMemoryStore(gen)
	}

	if err := s.setupAccounts(ctx); err != nil {
		return nil, err
	}

	var eventPub ports.EventPublisher = events.NopPublisher{}
	if s.publisher != nil {
		eventPub = events.NewWatermillPublisher(s.publisher, cfg.EventsTopic)
	}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewRecorder(s.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	s.manager = service.NewManager(s.store, eventPub,
		service.WithMetrics(recorder),
		service.WithLogger(logger),
	)

	bindings, err := s.bindings(ctx)
	if err != nil {
		return nil, err
	}

	if !cfg.LogDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = transport.SetupRouter(s.manager, transport.RouterConfig{
		Bindings:   bindings,
		Directory:  s.accounts,
		UserFields: cfg.UserFields,
		Metrics:    promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}),
		Logger:     logger,
		Debug:      cfg.LogDebug,
	})

	return s, nil
}

func (s *Service) connect(ctx context.Context) error {
	if s.cfg.NeedsRedis() {
		opts, err := redis.ParseURL(s.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		s.redis = redis.NewClient(opts)
	}

	if s.cfg.NeedsPostgres() {
		pool, err := pgxpool.New(ctx, s.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		s.pool = pool
	}

	if s.cfg.Events == config.EventsRedis {
		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: s.redis,
			},
			s.logger,
		)
		if err != nil {
			return fmt.Errorf("failed to create Redis publisher: %w", err)
		}
		s.publisher = publisher
	}

	return nil
}

func (s *Service) setupAccounts(ctx context.Context) error {
	if s.cfg.Accounts == config.AccountsPostgres {
		dir := account.NewPostgresDirectory(s.pool)
		if err := dir.Migrate(ctx); err != nil {
			return err
		}
		s.accounts = dir
	} else {
		s.accounts = account.NewMemoryDirectory()
	}

	for _, entry := range s.cfg.BootstrapUsers {
		username, password, _ := strings.Cut(entry, ":")
		_, err := s.accounts.Register(ctx, username, password, core.Profile{account.FieldUsername: username})
		if errors.Is(err, account.ErrUsernameTaken) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to bootstrap user %q: %w", username, err)
		}
		s.logger.Info("Bootstrapped user", watermill.LogFields{"username": username})
	}
	return nil
}

func (s *Service) bindings(ctx context.Context) (transport.Bindings, error) {
	cfg := s.cfg
	opts := []strategy.Option{
		strategy.WithTimeout(cfg.CollaboratorTimeout),
		strategy.WithLogger(s.logger),
	}

	tokenCfg := strategy.TokenConfig{
		Header: cfg.Token.Header,
		Scheme: cfg.Token.Scheme,
		Expiry: core.Expiry{Window: cfg.Token.ValidTime, MaxLifetime: cfg.Token.MaxLifetime},
	}
	if cfg.Token.OwnerCheck {
		tokenCfg.Directory = s.accounts
	}

	b := transport.Bindings{
		Token: strategy.NewTokenStrategy(s.store, tokenCfg, opts...),
		Password: strategy.NewPasswordStrategy(basic.NewDecoder(), s.accounts, strategy.PasswordConfig{
			Realm: cfg.Password.Realm,
		}, opts...),
	}

	introspector, err := s.introspector(ctx)
	if err != nil {
		return transport.Bindings{}, err
	}
	if introspector != nil {
		b.OAuth = strategy.NewDelegatedOAuthStrategy(introspector, s.accounts, strategy.OAuthConfig{
			QueryParam:    cfg.OAuth.QueryParam,
			RequiredField: cfg.OAuth.ProfileField,
		}, opts...)
	}

	return b, nil
}

func (s *Service) introspector(ctx context.Context) (ports.OAuthIntrospector, error) {
	o := s.cfg.OAuth
	switch o.Provider {
	case config.ProviderGraph:
		return introspect.NewGraph(introspect.GraphConfig{
			BaseURL:    o.GraphURL,
			Fields:     o.GraphFields,
			HTTPClient: &http.Client{Timeout: s.cfg.CollaboratorTimeout},
		}), nil
	case config.ProviderOIDC:
		return introspect.NewOIDC(ctx, o.Issuer)
	case config.ProviderJWT:
		return introspect.NewJWTFromJWKS(ctx, o.JWKSURL, introspect.JWTConfig{
			Issuer:   o.Issuer,
			Audience: o.Audience,
		})
	default:
		return nil, nil
	}
}

// Router returns the gin router
func (s *Service) Router() *gin.Engine {
	return s.router
}

// Manager returns the session manager
func (s *Service) Manager() *service.Manager {
	return s.manager
}

// RegisterUser creates a password account in the configured account backend
func (s *Service) RegisterUser(ctx context.Context, username, password string, profile core.Profile) (core.Identity, error) {
	if profile == nil {
		profile = core.Profile{}
	}
	return s.accounts.Register(ctx, username, password, profile)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Service) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("HTTP server started", watermill.LogFields{"addr": s.cfg.HTTPAddr})

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	s.logger.Info("HTTP server stopped", nil)
	return nil
}

// Close releases every backend connection
func (s *Service) Close() error {
	var err error
	if s.publisher != nil {
		err = multierr.Append(err, s.publisher.Close())
	}
	if s.redis != nil {
		err = multierr.Append(err, s.redis.Close())
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}
