package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/newsdesk/apiserver/config"
	"github.com/newsdesk/apiserver/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() config.Config {
	return config.Config{
		LogLevel: "error",
		Database: config.DatabaseConfig{Driver: config.DriverMemory},
		Auth: config.AuthConfig{
			JWTSecret:        "server-test",
			TokenTTL:         time.Hour,
			BcryptCost:       4,
			MaxLoginAttempts: 5,
			LockDuration:     2 * time.Hour,
		},
	}
}

func TestNewApp_RejectsInvalidConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Auth.JWTSecret = ""

	_, err := NewApp(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}

func TestRouter_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	app, err := NewApp(ctx, memoryConfig(), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(ctx) })
	assert.Nil(t, app.MQ)

	router := NewRouter(app, logging.Discard())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := `{"username":"admin","email":"admin@newsapp.com","password":"admin123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res struct {
		Account struct {
			Role string `json:"role"`
		} `json:"account"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "super_admin", res.Account.Role)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/news", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/news/admin/all", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/news/admin/all", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Shutdown(t *testing.T) {
	cfg := memoryConfig()
	cfg.ServerPort = 0

	srv, err := New(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}
