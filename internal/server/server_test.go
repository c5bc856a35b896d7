package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/cdms-be/internal/auth"
	"github.com/hongminglow/cdms-be/internal/config"
	"github.com/hongminglow/cdms-be/internal/logger"
	"github.com/hongminglow/cdms-be/internal/storage/memory"
)

func newDeps(t *testing.T) Deps {
	t.Helper()
	store := memory.New()
	tokens, err := auth.NewTokenManager("secret", "HS256", "cdms-backend", time.Hour)
	require.NoError(t, err)
	log := logger.Discard()
	return Deps{
		Config:   config.Config{Port: "0", CORSOrigins: []string{"*"}},
		Logger:   log,
		Store:    store,
		Users:    store,
		Tokens:   tokens,
		Resolver: auth.NewDefaultResolver(auth.ResolverConfig{Users: store, Tokens: tokens, Logger: log}),
	}
}

func TestRoutes(t *testing.T) {
	h := Routes(newDeps(t), nil)

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/", http.StatusOK},
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/alerts", http.StatusUnauthorized},
		{http.MethodGet, "/api/data/site-level", http.StatusUnauthorized},
		{http.MethodDelete, "/api/alerts", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRoutes_Preflight(t *testing.T) {
	h := Routes(newDeps(t), nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNew(t *testing.T) {
	srv, err := New(newDeps(t))
	require.NoError(t, err)
	t.Cleanup(srv.limiter.Close)
	assert.Equal(t, ":0", srv.inner.Addr)
}

func TestNew_RejectsBadTrustedProxy(t *testing.T) {
	d := newDeps(t)
	d.Config.TrustedProxies = []string{"10.0.0.0/33"}

	_, err := New(d)
	assert.ErrorContains(t, err, "TRUSTED_PROXIES")
}
