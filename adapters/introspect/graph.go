package introspect

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
	"golang.org/x/oauth2"
)

// DefaultGraphFields are requested from the "/me" endpoint when none are configured
var DefaultGraphFields = []string{"id", "name", "first_name", "last_name", "email"}

// GraphConfig configures a Graph-API style introspector
type GraphConfig struct {
	// BaseURL of the API, e.g. "https://graph.facebook.com/v19.0"
	BaseURL string

	// Fields requested from the profile endpoint; must include "id"
	Fields []string

	// Provider name reported in the external identity. Default: "graph"
	Provider string

	// HTTPClient used as the transport base. Default: http.DefaultClient
	HTTPClient *http.Client
}

// Graph verifies an access token by fetching the caller's profile with it
type Graph struct {
	endpoint string
	provider string
	client   *http.Client
}

// NewGraph creates a Graph introspector
func NewGraph(cfg GraphConfig) ports.OAuthIntrospector {
	fields := cfg.Fields
	if len(fields) == 0 {
		fields = DefaultGraphFields
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "graph"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	query := url.Values{}
	query.Set("fields", strings.Join(fields, ","))

	return &Graph{
		endpoint: strings.TrimSuffix(cfg.BaseURL, "/") + "/me?" + query.Encode(),
		provider: provider,
		client:   client,
	}
}

// Introspect fetches the profile owned by accessToken
func (g *Graph) Introspect(ctx context.Context, accessToken string) (core.ExternalIdentity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint, nil)
	if err != nil {
		return core.ExternalIdentity{}, failure("build request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return core.ExternalIdentity{}, failure("request profile: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return core.ExternalIdentity{}, failure("read profile: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return core.ExternalIdentity{}, failure("profile endpoint returned %s", resp.Status)
	}

	var claims map[string]any
	if err := json.Unmarshal(body, &claims); err != nil {
		return core.ExternalIdentity{}, failure("decode profile: %v", err)
	}

	profile := profileFromClaims(claims)
	handle := profile["id"]
	if handle == "" {
		return core.ExternalIdentity{}, failure("profile has no id")
	}

	return core.ExternalIdentity{
		Provider: g.provider,
		Handle:   handle,
		Profile:  profile,
	}, nil
}
