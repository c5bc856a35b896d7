package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/cdms-be/internal/analytics"
	"github.com/hongminglow/cdms-be/internal/auth"
	"github.com/hongminglow/cdms-be/internal/cache"
	"github.com/hongminglow/cdms-be/internal/logger"
	"github.com/hongminglow/cdms-be/internal/middleware"
	"github.com/hongminglow/cdms-be/internal/models"
	"github.com/hongminglow/cdms-be/internal/storage/memory"
	"github.com/hongminglow/cdms-be/internal/validation"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type tokenBody struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	User        map[string]any `json:"user"`
}

type harness struct {
	mux      *http.ServeMux
	store    *memory.Store
	tokens   *auth.TokenManager
	resolver *auth.Resolver
}

type harnessOpts struct {
	gateway   *analytics.Gateway
	completer *stubCompleter
	verifier  auth.FederatedVerifier
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	store := memory.New()
	tokens, err := auth.NewTokenManager("test-secret", "HS256", "cdms-backend", time.Hour)
	require.NoError(t, err)
	log := logger.Discard()
	resolver := auth.NewDefaultResolver(auth.ResolverConfig{
		Users:           store,
		Tokens:          tokens,
		Verifier:        opts.verifier,
		AllowUnverified: true,
		Logger:          log,
	})
	v := validation.New()
	protect := Middleware(middleware.RequireAuth(resolver, log))
	passthrough := Middleware(func(next http.Handler) http.Handler { return next })

	mux := http.NewServeMux()
	NewHealthHandler(time.Now(), HealthStatus{Database: store, Analytics: opts.gateway != nil}).Register(mux)
	NewAuthHandler(AuthDeps{Users: store, Tokens: tokens, Resolver: resolver, Verifier: opts.verifier, Validator: v, Logger: log}).Register(mux, protect, passthrough)
	NewDataHandler(opts.gateway, log).Register(mux, protect)
	NewAlertHandler(store, v, log).Register(mux, protect)
	NewAnnotationHandler(store, v, log).Register(mux, protect)
	if opts.completer != nil {
		NewAIHandler(opts.completer, opts.gateway, v, log).Register(mux, protect)
	} else {
		NewAIHandler(nil, opts.gateway, v, log).Register(mux, protect)
	}
	return &harness{mux: mux, store: store, tokens: tokens, resolver: resolver}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func (h *harness) register(t *testing.T, email, password string) tokenBody {
	t.Helper()
	rec, env := h.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "password": password, "full_name": "Alice Example", "role": "DQT",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out tokenBody
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

// admin stores an admin user directly, the way operators provision one, and
// returns a session token for it.
func (h *harness) admin(t *testing.T) string {
	t.Helper()
	user, err := h.store.CreateUser(context.Background(), models.User{Email: "ops@x.com", FullName: "Ops", Role: models.RoleAdmin})
	require.NoError(t, err)
	token, err := h.tokens.Issue(user.ID, user.Email)
	require.NoError(t, err)
	return token
}

func TestRegisterThenResolve(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	reg := h.register(t, "a@x.com", "p1")

	assert.Equal(t, "bearer", reg.TokenType)
	assert.NotEmpty(t, reg.AccessToken)
	assert.NotContains(t, reg.User, "password_hash")
	assert.NotContains(t, reg.User, "PasswordHash")

	id, _ := reg.User["id"].(string)
	token, err := h.tokens.Issue(id, "a@x.com")
	require.NoError(t, err)
	res, err := h.resolver.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "Alice Example", res.User.FullName)
	assert.Equal(t, "a@x.com", res.User.Email)
	assert.Equal(t, "DQT", res.User.Role)

	rec, env := h.do(t, http.MethodGet, "/api/auth/me", reg.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, string(env.Data), "password")
	assert.Contains(t, string(env.Data), `"full_name":"Alice Example"`)
}

func TestRegister_DefaultsAndConflicts(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	rec, env := h.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "b@x.com", "password": "pw", "full_name": "Bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	var out tokenBody
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "CRA", out.User["role"])

	rec, env = h.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "B@x.com", "password": "pw", "full_name": "Bob"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already registered", env.Message)

	rec, env = h.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Message, "email must be a valid email address")

	rec, env = h.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "long@x.com", "password": strings.Repeat("a", 73), "full_name": "Long"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Password must be at most 72 bytes", env.Message)

	rec, _ = h.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "edge@x.com", "password": strings.Repeat("a", 72), "full_name": "Edge"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "root@x.com", "password": "pw", "full_name": "Root", "role": "Admin"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Role cannot be self-assigned", env.Message)
}

func TestLogin(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.register(t, "a@x.com", "p1")

	rec, env := h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@x.com", "password": "p1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var out tokenBody
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.NotEmpty(t, out.AccessToken)

	for _, creds := range []map[string]string{
		{"email": "a@x.com", "password": "wrong"},
		{"email": "ghost@x.com", "password": "p1"},
	} {
		rec, env = h.do(t, http.MethodPost, "/api/auth/login", "", creds)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid email or password", env.Message)
	}
}

func TestProtectedRoutesRejectUniformly(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	rec, env := h.do(t, http.MethodGet, "/api/alerts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, middleware.MsgMissingToken, env.Message)

	ghost, err := h.tokens.Issue("ghost", "ghost@x.com")
	require.NoError(t, err)
	for _, token := range []string{"garbage", ghost} {
		rec, env = h.do(t, http.MethodGet, "/api/alerts", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, middleware.MsgInvalidCredentials, env.Message)
	}
}

type stubVerifier struct{ uid string }

func (s stubVerifier) VerifyToken(_ context.Context, token string) (auth.FederatedIdentity, error) {
	if token == "fed-token" {
		return auth.FederatedIdentity{UID: s.uid}, nil
	}
	return auth.FederatedIdentity{}, auth.ErrInvalidToken
}

func TestFirebaseRegisterAndLogin(t *testing.T) {
	h := newHarness(t, harnessOpts{verifier: stubVerifier{uid: "fb-1"}})
	body := map[string]string{"firebase_uid": "fb-1", "email": "f@x.com", "full_name": "Fed User"}

	rec, _ := h.do(t, http.MethodPost, "/api/auth/firebase-register", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := h.do(t, http.MethodPost, "/api/auth/firebase-register", "fed-token", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, string(env.Data), `"firebase_uid":"fb-1"`)

	rec, env = h.do(t, http.MethodPost, "/api/auth/firebase-login", "fed-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"email":"f@x.com"`)

	rec, _ = h.do(t, http.MethodGet, "/api/auth/me", "fed-token", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(t, http.MethodPost, "/api/auth/firebase-register", "fed-token",
		map[string]string{"firebase_uid": "fb-1", "email": "other@x.com", "full_name": "Fed User"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Account already registered", env.Message)
}

func TestAlerts(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	token := h.register(t, "a@x.com", "p1").AccessToken

	rec, env := h.do(t, http.MethodPost, "/api/alerts", token, map[string]any{
		"title": "Query backlog", "description": "42 open queries", "priority": "High",
		"site_id": "S-01", "alert_type": "Data Quality",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "open", created.Status)

	rec, _ = h.do(t, http.MethodPatch, "/api/alerts/"+created.ID+"/status?status=resolved", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = h.do(t, http.MethodPatch, "/api/alerts/missing/status?status=resolved", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, env = h.do(t, http.MethodGet, "/api/alerts?status=open", token, nil)
	assert.JSONEq(t, `[]`, string(env.Data))
	_, env = h.do(t, http.MethodGet, "/api/alerts?status=resolved", token, nil)
	assert.Contains(t, string(env.Data), created.ID)
}

func TestCommentsAndTags(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	token := h.register(t, "a@x.com", "p1").AccessToken

	rec, _ := h.do(t, http.MethodPost, "/api/comments", token, map[string]string{"entity_type": "site", "entity_id": "S-01", "comment_text": "visit scheduled"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = h.do(t, http.MethodPost, "/api/tags", token, map[string]string{"entity_type": "site", "entity_id": "S-01", "tag_name": "watchlist"})
	require.Equal(t, http.StatusOK, rec.Code)

	_, env := h.do(t, http.MethodGet, "/api/comments/site/S-01", token, nil)
	assert.Contains(t, string(env.Data), "visit scheduled")
	_, env = h.do(t, http.MethodGet, "/api/tags/site/S-01", token, nil)
	assert.Contains(t, string(env.Data), "watchlist")
	_, env = h.do(t, http.MethodGet, "/api/tags/site/S-99", token, nil)
	assert.JSONEq(t, `[]`, string(env.Data))

	rec, _ = h.do(t, http.MethodPost, "/api/tags", token, map[string]string{"entity_type": "site"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type tableSource struct {
	mu    sync.Mutex
	rows  map[string][]analytics.Record
	calls int
}

func (s *tableSource) FetchPage(_ context.Context, table string, offset, limit int) ([]analytics.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	rows := s.rows[table]
	if offset >= len(rows) {
		return nil, nil
	}
	return rows[offset:min(offset+limit, len(rows))], nil
}

func TestDataEndpoints(t *testing.T) {
	src := &tableSource{rows: map[string][]analytics.Record{
		analytics.TableSites: {
			{"Site_ID": "S-01", "Risk_Level": "High", "Avg_DQI": 70.0},
			{"Site_ID": "S-02", "Risk_Level": "Low", "Avg_DQI": 90.0},
		},
		analytics.TablePatients: {{"Clean_Patient_Status": "Clean"}, {"Clean_Patient_Status": "Dirty"}},
	}}
	gw := analytics.NewGateway(src, cache.New(), analytics.Options{PageSize: 10}, logger.Discard())
	h := newHarness(t, harnessOpts{gateway: gw})
	token := h.register(t, "a@x.com", "p1").AccessToken

	rec, env := h.do(t, http.MethodGet, "/api/data/site-level", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var table TableResponse
	require.NoError(t, json.Unmarshal(env.Data, &table))
	assert.Equal(t, 2, table.Count)
	assert.False(t, table.Partial)

	_, _ = h.do(t, http.MethodGet, "/api/data/site-level", token, nil)
	assert.Equal(t, 1, src.calls)
	_, _ = h.do(t, http.MethodGet, "/api/data/site-level?refresh=true", token, nil)
	assert.Equal(t, 2, src.calls)

	_, env = h.do(t, http.MethodGet, "/api/data/dashboard-stats", token, nil)
	var stats analytics.DashboardStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.HighRiskSites)
	assert.Equal(t, 80.0, stats.AvgDQI)
	assert.Equal(t, 50.0, stats.CleanPatientPercentage)

	rec, env = h.do(t, http.MethodPost, "/api/data/cache/clear", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, middleware.MsgForbidden, env.Message)

	rec, env = h.do(t, http.MethodPost, "/api/data/cache/clear", h.admin(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cleared":2}`, string(env.Data))
}

func TestDataEndpoints_NotConfigured(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	token := h.register(t, "a@x.com", "p1").AccessToken

	rec, env := h.do(t, http.MethodGet, "/api/data/high-risk-sites", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Supabase not configured", env.Message)
}

type stubCompleter struct {
	system, prompt string
	err            error
}

func (s *stubCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	s.system, s.prompt = system, prompt
	if s.err != nil {
		return "", s.err
	}
	return "answer", nil
}

func TestAIEndpoints(t *testing.T) {
	completer := &stubCompleter{}
	h := newHarness(t, harnessOpts{completer: completer})
	token := h.register(t, "a@x.com", "p1").AccessToken

	rec, env := h.do(t, http.MethodPost, "/api/ai/query", token, map[string]string{"query": "Which sites lag?"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":"answer"}`, string(env.Data))
	assert.Equal(t, "Which sites lag?", completer.prompt)

	rec, env = h.do(t, http.MethodPost, "/api/ai/generate-report", token, map[string]any{"report_type": "site_performance", "site_id": "S-04"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"report":"answer","report_type":"site_performance"}`, string(env.Data))
	assert.True(t, strings.Contains(completer.prompt, "Site S-04"))

	rec, _ = h.do(t, http.MethodPost, "/api/ai/recommend-actions?site_id=S-02", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, completer.prompt, "site S-02")

	completer.err = errors.New("upstream 500")
	rec, _ = h.do(t, http.MethodPost, "/api/ai/query", token, map[string]string{"query": "x"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAIEndpoints_NotConfigured(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	token := h.register(t, "a@x.com", "p1").AccessToken

	rec, env := h.do(t, http.MethodPost, "/api/ai/query", token, map[string]string{"query": "x"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "AI service not configured", env.Message)
}

func TestRootAndHealth(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	_, env := h.do(t, http.MethodGet, "/api/", "", nil)
	assert.JSONEq(t, `{"message":"Clinical Data Monitoring System API","version":"1.0.0"}`, string(env.Data))

	rec, env := h.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "not_configured", health["supabase"])
	assert.Equal(t, "not_configured", health["ai_service"])
}
