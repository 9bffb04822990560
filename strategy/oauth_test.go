package strategy

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/layer-3/tokenauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIntrospector struct {
	ext   core.ExternalIdentity
	err   error
	panic bool
	seen  []string
}

func (f *fakeIntrospector) Introspect(_ context.Context, accessToken string) (core.ExternalIdentity, error) {
	f.seen = append(f.seen, accessToken)
	if f.panic {
		panic("provider sdk exploded")
	}
	return f.ext, f.err
}

type fakeResolver struct {
	err   error
	calls int
}

func (f *fakeResolver) ResolveOrCreate(_ context.Context, ext core.ExternalIdentity) (core.Identity, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return core.Identity(ext.Provider + "/" + ext.Handle), nil
}

func oauthRequest(query string) *core.RequestContext {
	return core.NewRequestContext(httptest.NewRequest("GET", "/api/v1/oauth/authenticate"+query, nil))
}

func validExternal() core.ExternalIdentity {
	return core.ExternalIdentity{
		Provider: "graph",
		Handle:   "1001",
		Profile:  core.Profile{"email": "carol@example.com"},
	}
}

func TestOAuthStrategySuccess(t *testing.T) {
	intro := &fakeIntrospector{ext: validExternal()}
	resolver := &fakeResolver{}
	strat := NewDelegatedOAuthStrategy(intro, resolver, OAuthConfig{})

	ac := oauthRequest("?access_token=provider-token")
	out := strat.Authenticate(context.Background(), ac)

	require.True(t, out.IsAuthenticated())
	assert.Equal(t, core.Identity("graph/1001"), out.Identity)
	assert.Equal(t, []string{"provider-token"}, intro.seen)

	id, ok := ac.Identity()
	require.True(t, ok)
	assert.Equal(t, out.Identity, id)
}

func TestOAuthStrategyMissingProfileField(t *testing.T) {
	ext := validExternal()
	ext.Profile = core.Profile{"first_name": "Carol"}
	resolver := &fakeResolver{}
	strat := NewDelegatedOAuthStrategy(&fakeIntrospector{ext: ext}, resolver, OAuthConfig{RequiredField: "email"})

	ac := oauthRequest("?access_token=provider-token")
	out := strat.Authenticate(context.Background(), ac)

	assert.Equal(t, core.KindUnauthenticated, out.Kind)
	assert.Zero(t, resolver.calls)
	_, ok := ac.Identity()
	assert.False(t, ok)
}

func TestOAuthStrategyRejections(t *testing.T) {
	noHandle := validExternal()
	noHandle.Handle = ""

	tests := []struct {
		name     string
		query    string
		intro    *fakeIntrospector
		resolver *fakeResolver
	}{
		{"no access token", "", &fakeIntrospector{ext: validExternal()}, &fakeResolver{}},
		{"empty access token", "?access_token=", &fakeIntrospector{ext: validExternal()}, &fakeResolver{}},
		{"introspection failed", "?access_token=x", &fakeIntrospector{err: core.ErrIntrospectionFailed}, &fakeResolver{}},
		{"introspector panic", "?access_token=x", &fakeIntrospector{panic: true}, &fakeResolver{}},
		{"ambiguous identity", "?access_token=x", &fakeIntrospector{ext: noHandle}, &fakeResolver{}},
		{"resolver failure", "?access_token=x", &fakeIntrospector{ext: validExternal()}, &fakeResolver{err: errors.New("db down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strat := NewDelegatedOAuthStrategy(tt.intro, tt.resolver, OAuthConfig{})
			out := strat.Authenticate(context.Background(), oauthRequest(tt.query))
			assert.Equal(t, core.KindUnauthenticated, out.Kind)
			assert.NoError(t, out.Err)
		})
	}
}

func TestOAuthStrategyCustomQueryParam(t *testing.T) {
	strat := NewDelegatedOAuthStrategy(&fakeIntrospector{ext: validExternal()}, &fakeResolver{}, OAuthConfig{QueryParam: "fb_token"})

	assert.True(t, strat.Authenticate(context.Background(), oauthRequest("?fb_token=x")).IsAuthenticated())
	assert.False(t, strat.Authenticate(context.Background(), oauthRequest("?access_token=x")).IsAuthenticated())
}
