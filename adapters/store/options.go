package store

import "time"

// maxCreateAttempts bounds how many fresh values Create tries when a generated
// value is already taken
const maxCreateAttempts = 3

// Option configures a token store
type Option func(*options)

type options struct {
	now       func() time.Time
	keyPrefix string
}

// WithClock overrides the time source used for CreatedAt and LastUsedAt on create
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithKeyPrefix sets the key prefix used by the Redis store
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:       time.Now,
		keyPrefix: "tokenauth:",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// stamp normalises a timestamp to the precision every backend can round-trip
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
