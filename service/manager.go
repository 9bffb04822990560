package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
)

// Mode selects what AuthenticateAndIssue does after a successful strategy run
type Mode int

const (
	// Validate only authenticates the request
	Validate Mode = iota
	// Exchange also issues a fresh token for the authenticated identity
	Exchange
)

func (m Mode) String() string {
	if m == Exchange {
		return "exchange"
	}
	return "validate"
}

// Manager is the session manager: it runs strategies, issues tokens on
// credential exchange and revokes them
type Manager struct {
	store    ports.TokenStore
	eventPub ports.EventPublisher
	metrics  ports.Metrics
	logger   watermill.LoggerAdapter
	now      func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithMetrics sets the metrics recorder
func WithMetrics(m ports.Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(l watermill.LoggerAdapter) Option {
	return func(mgr *Manager) {
		mgr.logger = l
	}
}

// WithClock overrides the time source used by Purge
func WithClock(now func() time.Time) Option {
	return func(mgr *Manager) {
		mgr.now = now
	}
}

// NewManager creates a new session manager. eventPub may be nil.
func NewManager(store ports.TokenStore, eventPub ports.EventPublisher, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		eventPub: eventPub,
		metrics:  ports.NopMetrics{},
		logger:   watermill.NopLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AuthenticateAndIssue runs strategy against the request. In Exchange mode an
// authenticated outcome carries a newly issued token; a generation failure
// turns it into an error outcome.
func (m *Manager) AuthenticateAndIssue(ctx context.Context, ac core.AuthContext, strategy ports.Strategy, mode Mode) (out core.Outcome) {
	name := strategy.Name()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Strategy panicked", fmt.Errorf("%w: %v", core.ErrCollaboratorPanic, r), watermill.LogFields{"strategy": name})
			out = core.Unauthenticated("")
		}
		m.metrics.ObserveOutcome(name, out.Kind.String())
	}()

	out = strategy.Authenticate(ctx, ac)
	if !out.IsAuthenticated() || mode != Exchange {
		return out
	}

	tok, err := m.store.Create(ctx, out.Identity)
	if err != nil {
		fields := watermill.LogFields{"strategy": name, "identity": out.Identity.String()}
		if errors.Is(err, core.ErrGenerationFailed) {
			m.logger.Error("Token generation failed", err, fields)
			return core.Failed(err)
		}
		m.logger.Error("Failed to persist token", err, fields)
		return core.Unauthenticated("")
	}

	m.metrics.TokenIssued()
	m.logger.Info("Token issued", watermill.LogFields{
		"strategy": name,
		"identity": tok.Owner.String(),
		"token":    tok.Fingerprint(),
	})
	m.publish(ctx, tok, true)

	return out.WithToken(tok.Value)
}

// Revoke deletes the token. Revoking an unknown token succeeds.
func (m *Manager) Revoke(ctx context.Context, value string) error {
	tok, err := m.store.Lookup(ctx, value)
	if err != nil && !errors.Is(err, core.ErrTokenNotFound) {
		return fmt.Errorf("failed to lookup token: %w", err)
	}
	found := err == nil

	if err := m.store.Revoke(ctx, value); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	if found {
		m.revoked(ctx, tok)
	}
	return nil
}

// RevokeOwned revokes value only when it belongs to id. An already revoked
// token succeeds; a token owned by someone else is reported as not found.
func (m *Manager) RevokeOwned(ctx context.Context, id core.Identity, value string) error {
	tok, err := m.store.Lookup(ctx, value)
	if errors.Is(err, core.ErrTokenNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to lookup token: %w", err)
	}
	if tok.Owner != id {
		return core.ErrTokenNotFound
	}

	if err := m.store.Revoke(ctx, value); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	m.revoked(ctx, tok)
	return nil
}

// Sessions lists the identity's tokens, oldest first
func (m *Manager) Sessions(ctx context.Context, id core.Identity) ([]core.Token, error) {
	tokens, err := m.store.ListForIdentity(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return tokens, nil
}

// Session returns one of the identity's tokens
func (m *Manager) Session(ctx context.Context, id core.Identity, value string) (core.Token, error) {
	tok, err := m.store.Lookup(ctx, value)
	if err != nil {
		return core.Token{}, err
	}
	if tok.Owner != id {
		return core.Token{}, core.ErrTokenNotFound
	}
	return tok, nil
}

// Purge deletes tokens unused for longer than olderThan
func (m *Manager) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := m.now().Add(-olderThan)

	n, err := m.store.Purge(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("failed to purge tokens: %w", err)
	}

	m.logger.Info("Purged stale tokens", watermill.LogFields{"count": n, "cutoff": cutoff.Format(time.RFC3339)})
	return n, nil
}

func (m *Manager) revoked(ctx context.Context, tok core.Token) {
	m.metrics.TokenRevoked()
	m.logger.Info("Token revoked", watermill.LogFields{
		"identity": tok.Owner.String(),
		"token":    tok.Fingerprint(),
	})
	m.publish(ctx, tok, false)
}

// publish is best-effort: the store is the source of truth
func (m *Manager) publish(ctx context.Context, tok core.Token, issued bool) {
	if m.eventPub == nil {
		return
	}

	var err error
	if issued {
		err = m.eventPub.PublishIssued(ctx, tok)
	} else {
		err = m.eventPub.PublishRevoked(ctx, tok)
	}
	if err != nil {
		m.logger.Error("Failed to publish session event", err, watermill.LogFields{"token": tok.Fingerprint()})
	}
}
