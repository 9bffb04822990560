package strategy

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/layer-3/tokenauth/adapters/basic"
	"github.com/layer-3/tokenauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	users map[string]string
	err   error
	delay time.Duration
	panic bool
}

func (v fakeVerifier) Verify(ctx context.Context, username, secret string) (core.Identity, error) {
	if v.panic {
		panic("verifier exploded")
	}
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if v.err != nil {
		return "", v.err
	}
	if pw, ok := v.users[username]; ok && pw == secret {
		return core.Identity("id-" + username), nil
	}
	return "", core.ErrInvalidCredentials
}

func basicHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestPasswordStrategySuccess(t *testing.T) {
	strat := NewPasswordStrategy(basic.NewDecoder(), fakeVerifier{users: map[string]string{"alice": "pw"}}, PasswordConfig{})

	ac := requestWithHeader(basicHeader("alice", "pw"))
	out := strat.Authenticate(context.Background(), ac)

	require.True(t, out.IsAuthenticated())
	assert.Equal(t, core.Identity("id-alice"), out.Identity)
	id, ok := ac.Identity()
	require.True(t, ok)
	assert.Equal(t, core.Identity("id-alice"), id)
}

func TestPasswordStrategyRejections(t *testing.T) {
	users := map[string]string{"alice": "pw"}

	tests := []struct {
		name     string
		verifier fakeVerifier
		header   string
	}{
		{"no header", fakeVerifier{users: users}, ""},
		{"malformed base64", fakeVerifier{users: users}, "Basic !!!"},
		{"token scheme", fakeVerifier{users: users}, "Token abc"},
		{"wrong password", fakeVerifier{users: users}, basicHeader("alice", "nope")},
		{"verifier error", fakeVerifier{err: errors.New("db down")}, basicHeader("alice", "pw")},
		{"verifier panic", fakeVerifier{panic: true}, basicHeader("alice", "pw")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strat := NewPasswordStrategy(basic.NewDecoder(), tt.verifier, PasswordConfig{Realm: "api"})
			ac := requestWithHeader(tt.header)
			out := strat.Authenticate(context.Background(), ac)

			assert.Equal(t, core.KindUnauthenticated, out.Kind)
			assert.Equal(t, `Basic realm="api"`, out.Challenge)
			_, ok := ac.Identity()
			assert.False(t, ok)
		})
	}
}

func TestPasswordStrategyTimeout(t *testing.T) {
	verifier := fakeVerifier{users: map[string]string{"alice": "pw"}, delay: time.Second}
	strat := NewPasswordStrategy(basic.NewDecoder(), verifier, PasswordConfig{}, WithTimeout(20*time.Millisecond))

	out := strat.Authenticate(context.Background(), requestWithHeader(basicHeader("alice", "pw")))
	assert.Equal(t, core.KindUnauthenticated, out.Kind)
}

func TestPasswordStrategyHonoursCallerDeadline(t *testing.T) {
	verifier := fakeVerifier{users: map[string]string{"alice": "pw"}, delay: time.Second}
	strat := NewPasswordStrategy(basic.NewDecoder(), verifier, PasswordConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out := strat.Authenticate(ctx, requestWithHeader(basicHeader("alice", "pw")))
	assert.Equal(t, core.KindUnauthenticated, out.Kind)
}
