package ports

import (
	"context"

	"github.com/layer-3/tokenauth/core"
)

// EventPublisher publishes session lifecycle events to other instances
type EventPublisher interface {
	PublishIssued(ctx context.Context, tok core.Token) error
	PublishRevoked(ctx context.Context, tok core.Token) error
}
