package tokenauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/layer-3/tokenauth/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, environ map[string]string) config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(environ)
	require.NoError(t, err)
	return cfg
}

func newService(t *testing.T, cfg config.Config) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, svc.Close()) })
	return svc
}

func login(t *testing.T, svc *Service, user, pass string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/authenticate", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Token
}

func get(svc *Service, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, req)
	return w
}

func TestServiceMemoryBackend(t *testing.T) {
	svc := newService(t, loadConfig(t, map[string]string{
		"BOOTSTRAP_USERS": "alice:s3cret",
	}))

	token := login(t, svc, "alice", "s3cret")

	w := get(svc, "/api/v1/user", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"alice"`)

	// OAuth is disabled by default.
	assert.Equal(t, http.StatusNotFound, get(svc, "/api/v1/oauth/authenticate?access_token=x", "").Code)

	assert.Equal(t, http.StatusOK, get(svc, "/metrics", "").Code)

	n, err := svc.Manager().Purge(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestServiceRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	svc := newService(t, loadConfig(t, map[string]string{
		"STORE":           "redis",
		"EVENTS":          "redis",
		"REDIS_URL":       "redis://" + mr.Addr() + "/0",
		"BOOTSTRAP_USERS": "alice:s3cret",
	}))

	token := login(t, svc, "alice", "s3cret")
	assert.True(t, mr.Exists("tokenauth:token:"+token))
	assert.Equal(t, http.StatusOK, get(svc, "/api/v1/sessions", token).Code)

	entries, err := mr.Stream("tokenauth.sessions")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestServiceRejectsInvalidConfig(t *testing.T) {
	cfg := loadConfig(t, map[string]string{})
	cfg.Store = "cassandra"

	_, err := NewService(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestServiceRun(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"HTTP_ADDR": "127.0.0.1:0"})
	svc := newService(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
