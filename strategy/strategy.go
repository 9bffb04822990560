// Package strategy holds the closed set of authentication strategies: a
// pre-issued API token, a Basic username/password pair and a third-party
// OAuth access token. Each one turns an inbound request into a core.Outcome
// and never reports a collaborator failure as anything but a rejection.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/tokenauth/core"
)

// Strategy names, also used as metric labels
const (
	NameToken    = "token"
	NamePassword = "password"
	NameOAuth    = "oauth"
)

type options struct {
	now     func() time.Time
	timeout time.Duration
	logger  watermill.LoggerAdapter
}

// Option configures a strategy
type Option func(*options)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithTimeout bounds every collaborator call. Zero relies on the caller's deadline only.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithLogger sets the logger used for rejection diagnostics
func WithLogger(logger watermill.LoggerAdapter) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: watermill.NopLogger{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type result[T any] struct {
	val T
	err error
}

// guard runs a collaborator call, converting a panic into an error and
// giving up once the context (bounded by timeout, if set) is done.
func guard[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	done := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: fmt.Errorf("%w: %v", core.ErrCollaboratorPanic, r)}
			}
		}()
		v, err := fn(ctx)
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
