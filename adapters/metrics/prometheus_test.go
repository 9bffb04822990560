package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	r.ObserveOutcome("password", "authenticated")
	r.ObserveOutcome("password", "authenticated")
	r.ObserveOutcome("token", "unauthenticated")
	r.TokenIssued()
	r.TokenRevoked()
	r.TokenRevoked()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.outcomes.WithLabelValues("password", "authenticated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues("token", "unauthenticated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.issued))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.revoked))

	expected := `
# HELP tokenauth_tokens_issued_total Tokens issued by credential exchange
# TYPE tokenauth_tokens_issued_total counter
tokenauth_tokens_issued_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "tokenauth_tokens_issued_total"))
}

func TestRecorderDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg)
	require.NoError(t, err)

	_, err = NewRecorder(reg)
	assert.Error(t, err)
}
