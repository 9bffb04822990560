package basic

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
)

// Scheme is the authorization scheme handled by the decoder
const Scheme = "Basic"

// Decoder parses RFC 7617 "Basic <base64(user:secret)>" header values
type Decoder struct{}

// NewDecoder creates a Basic credential decoder
func NewDecoder() ports.BasicCredentialDecoder {
	return Decoder{}
}

// Decode splits the header value into username and secret
func (Decoder) Decode(headerValue string) (string, string, error) {
	scheme, payload, ok := strings.Cut(headerValue, " ")
	if !ok || !strings.EqualFold(scheme, Scheme) {
		return "", "", fmt.Errorf("unexpected scheme: %w", core.ErrMalformedCredentials)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return "", "", fmt.Errorf("invalid base64 payload: %w", core.ErrMalformedCredentials)
	}

	username, secret, ok := strings.Cut(string(raw), ":")
	if !ok || username == "" {
		return "", "", fmt.Errorf("missing username: %w", core.ErrMalformedCredentials)
	}

	return username, secret, nil
}
