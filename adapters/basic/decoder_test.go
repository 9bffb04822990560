package basic

import (
	"encoding/base64"
	"testing"

	"github.com/layer-3/tokenauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestDecode(t *testing.T) {
	user, secret, err := NewDecoder().Decode("Basic " + encode("alice:s3cr:et"))
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "s3cr:et", secret)
}

func TestDecodeMalformed(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"no payload":     "Basic",
		"wrong scheme":   "Token " + encode("alice:pw"),
		"bad base64":     "Basic !!!",
		"no colon":       "Basic " + encode("alice"),
		"empty username": "Basic " + encode(":pw"),
	}

	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := NewDecoder().Decode(header)
			assert.ErrorIs(t, err, core.ErrMalformedCredentials)
		})
	}
}
