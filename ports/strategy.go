package ports

import (
	"context"

	"github.com/layer-3/tokenauth/core"
)

// Strategy is one way of verifying a caller's claimed identity.
// Implementations never return an error: every failure is folded into the Outcome.
type Strategy interface {
	Name() string
	Authenticate(ctx context.Context, ac core.AuthContext) core.Outcome
}
