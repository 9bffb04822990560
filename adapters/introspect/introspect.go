// Package introspect verifies third-party OAuth access tokens and returns the
// caller's external profile.
//
// Three providers are available:
//   - Graph: a Graph-API style "/me" endpoint queried with the access token
//     as a bearer credential.
//   - OIDC: the userinfo endpoint of an OpenID Connect issuer found through
//     discovery.
//   - JWT: self-contained JWT access tokens verified locally, with keys from
//     a JWKS endpoint or a caller-supplied keyfunc.
//
// Every failure wraps core.ErrIntrospectionFailed. Callers are expected to
// treat any error as "not authenticated" without inspecting it further.
package introspect

import (
	"fmt"
	"strconv"

	"github.com/layer-3/tokenauth/core"
)

// profileFromClaims keeps scalar claims as strings
func profileFromClaims(claims map[string]any) core.Profile {
	profile := make(core.Profile, len(claims))
	for k, v := range claims {
		switch val := v.(type) {
		case string:
			profile[k] = val
		case float64:
			profile[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			profile[k] = strconv.FormatBool(val)
		}
	}
	return profile
}

func failure(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrIntrospectionFailed, fmt.Sprintf(format, args...))
}
