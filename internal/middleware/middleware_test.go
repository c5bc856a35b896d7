package middleware

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/cdms-be/internal/auth"
	"github.com/hongminglow/cdms-be/internal/logger"
	"github.com/hongminglow/cdms-be/internal/models"
	"github.com/hongminglow/cdms-be/internal/storage"
)

type resolverFunc func(ctx context.Context, credential string) (auth.Resolution, error)

func (f resolverFunc) Resolve(ctx context.Context, credential string) (auth.Resolution, error) {
	return f(ctx, credential)
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	_, _ = w.Write([]byte(user.Email))
})

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":     "abc",
		"bearer  abc ":   "abc",
		"Basic dXNlcg==": "",
		"":               "",
		"Bearer":         "",
	}
	for header, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, BearerToken(r), "header %q", header)
	}
}

func TestRequireAuth(t *testing.T) {
	resolver := resolverFunc(func(_ context.Context, credential string) (auth.Resolution, error) {
		switch credential {
		case "":
			return auth.Resolution{}, auth.ErrMissingCredential
		case "good":
			return auth.Resolution{User: models.User{Email: "a@x.com"}}, nil
		case "expired":
			return auth.Resolution{}, auth.ErrTokenExpired
		case "ghost":
			return auth.Resolution{}, auth.ErrUserNotFound
		default:
			return auth.Resolution{}, fmt.Errorf("%w: db down", storage.ErrUnavailable)
		}
	})
	h := RequireAuth(resolver, logger.Discard())(okHandler)

	tests := []struct {
		token      string
		wantStatus int
		wantBody   string
	}{
		{token: "", wantStatus: http.StatusUnauthorized, wantBody: MsgMissingToken},
		{token: "good", wantStatus: http.StatusOK, wantBody: "a@x.com"},
		{token: "expired", wantStatus: http.StatusUnauthorized, wantBody: MsgInvalidCredentials},
		{token: "ghost", wantStatus: http.StatusUnauthorized, wantBody: MsgInvalidCredentials},
		{token: "down", wantStatus: http.StatusServiceUnavailable, wantBody: MsgAuthUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(logger.Discard(), models.RoleAdmin)(okHandler)

	for role, want := range map[string]int{models.RoleAdmin: http.StatusOK, models.RoleCRA: http.StatusForbidden} {
		r := httptest.NewRequest(http.MethodPost, "/api/data/cache/clear", nil)
		r = r.WithContext(auth.WithResolution(r.Context(), auth.Resolution{User: models.User{Email: "a@x.com", Role: role}}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, want, rec.Code, role)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/data/cache/clear", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), MsgForbidden)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example.com"}, okHandler)

	r := httptest.NewRequest(http.MethodOptions, "/api/alerts", nil)
	r.Header.Set("Origin", "https://app.example.com")
	r.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	open := CORS([]string{"*"}, okHandler)
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, r)
	assert.Equal(t, "https://evil.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, nil)
	t.Cleanup(rl.Close)
	h := rl.Middleware(okHandler)

	do := func(ip string) int {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		r.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2"))
}

func TestRateLimiter_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	rl := NewRateLimiter(2, nil)
	t.Cleanup(rl.Close)
	h := rl.Middleware(okHandler)

	codes := make([]int, 0, 10)
	for i := range 10 {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		r.RemoteAddr = "198.51.100.7:4000"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, codes[:2])
	for _, code := range codes[2:] {
		assert.Equal(t, http.StatusTooManyRequests, code)
	}
}

func TestRateLimiter_TrustedProxyKeysOnForwardedClient(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	rl := NewRateLimiter(1, trusted)
	t.Cleanup(rl.Close)
	h := rl.Middleware(okHandler)

	do := func(client string) int {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		r.RemoteAddr = "10.0.0.5:4000"
		r.Header.Set("X-Forwarded-For", client)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, do("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("203.0.113.1"))
	assert.Equal(t, http.StatusOK, do("203.0.113.2"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	r.Header.Set("X-Real-IP", "203.0.113.10")
	assert.Equal(t, "192.0.2.1", ClientIP(r))
	assert.Equal(t, "192.0.2.1", TrustedProxies(nil).ClientIP(r))

	trusted, err := ParseTrustedProxies([]string{"192.0.2.1", "10.0.0.0/8"})
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", trusted.ClientIP(r))

	r.Header.Set("X-Forwarded-For", "198.51.100.1, 203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", trusted.ClientIP(r), "spoofed leftmost hop is ignored")

	r.Header.Del("X-Forwarded-For")
	assert.Equal(t, "203.0.113.10", trusted.ClientIP(r))

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Logging(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.NotZero(t, buf.Len())
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/api/health"`)
}
