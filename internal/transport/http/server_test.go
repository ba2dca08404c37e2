package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/auth"
	"github.com/gensart-projs/openai-like-api/internal/broker"
	"github.com/gensart-projs/openai-like-api/internal/config"
	"github.com/gensart-projs/openai-like-api/internal/gateway"
	"github.com/gensart-projs/openai-like-api/internal/policy"
	"github.com/gensart-projs/openai-like-api/internal/service"
	"github.com/gensart-projs/openai-like-api/internal/session"
	"github.com/gensart-projs/openai-like-api/internal/testutil"
	"github.com/gensart-projs/openai-like-api/internal/transport/ws"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServers(t *testing.T, mutate func(cfg *config.Config)) (external, internal *echo.Echo, verifier *auth.JWTVerifier) {
	t.Helper()
	store := testutil.NewTestSQLiteStore(t)
	testutil.SeedModel(t, store, "gpt-4", "http://127.0.0.1:1")

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	catalog := gateway.NewCatalog(store)
	b := broker.New(16)
	manager := session.NewManager(store, engine, catalog, b, session.Options{})
	svc := service.New(manager, gateway.New(catalog, gateway.Options{}), b)

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	if mutate != nil {
		mutate(cfg)
	}
	verifier = auth.NewJWTVerifier([]byte(cfg.JWTSecret), "")
	external = NewExternalServer(cfg, svc, verifier, ws.NewServer(cfg, svc, verifier))
	internal = NewInternalServer(cfg, svc)
	return external, internal, verifier
}

func serve(e *echo.Echo, req *stdhttp.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) apperr.ErrorBody {
	t.Helper()
	var body apperr.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	external, internal, _ := newTestServers(t, nil)

	rec := serve(external, httptest.NewRequest(stdhttp.MethodGet, "/v2/nothing", nil))
	assert.Equal(t, stdhttp.StatusNotFound, rec.Code)
	body := errorBody(t, rec)
	assert.Equal(t, "route_not_found", body.Code)
	assert.Equal(t, "invalid_request_error", body.Type)

	rec = serve(internal, httptest.NewRequest(stdhttp.MethodGet, "/v1/models", nil))
	assert.Equal(t, stdhttp.StatusNotFound, rec.Code)
}

func TestBodyLimit(t *testing.T) {
	external, _, verifier := newTestServers(t, func(cfg *config.Config) {
		cfg.BodyLimit = "1K"
	})
	token, err := verifier.Generate("u1", time.Hour)
	require.NoError(t, err)

	body := `{"model":"gpt-4","messages":[{"role":"user","content":"` + strings.Repeat("x", 4096) + `"}]}`
	req := httptest.NewRequest(stdhttp.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)

	rec := serve(external, req)
	assert.Equal(t, stdhttp.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "request_too_large", errorBody(t, rec).Code)
}

func TestRateLimit(t *testing.T) {
	external, _, _ := newTestServers(t, func(cfg *config.Config) {
		cfg.RateLimitRPS = 1
		cfg.RateLimitBurst = 2
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(external, httptest.NewRequest(stdhttp.MethodGet, "/v1/models", nil)).Code)
	}
	assert.Equal(t, []int{stdhttp.StatusUnauthorized, stdhttp.StatusUnauthorized, stdhttp.StatusTooManyRequests}, codes)

	rec := serve(external, httptest.NewRequest(stdhttp.MethodGet, "/v1/models", nil))
	assert.Equal(t, "rate_limit_error", errorBody(t, rec).Type)

	rec = serve(external, httptest.NewRequest(stdhttp.MethodGet, "/health", nil))
	assert.Equal(t, stdhttp.StatusOK, rec.Code)
}

func TestCORSExposesSessionHeader(t *testing.T) {
	external, _, _ := newTestServers(t, nil)

	req := httptest.NewRequest(stdhttp.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example.com")
	rec := serve(external, req)

	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlExposeHeaders), "X-Session-Id")
}

func TestInternalHealth(t *testing.T) {
	_, internal, _ := newTestServers(t, nil)

	rec := serve(internal, httptest.NewRequest(stdhttp.MethodGet, "/health", nil))
	assert.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"connections":0`)
}
