package internalapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gensart-projs/openai-like-api/internal/broker"
	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/gensart-projs/openai-like-api/internal/gateway"
	"github.com/gensart-projs/openai-like-api/internal/policy"
	"github.com/gensart-projs/openai-like-api/internal/service"
	"github.com/gensart-projs/openai-like-api/internal/session"
	"github.com/gensart-projs/openai-like-api/internal/testutil"
	"github.com/gensart-projs/openai-like-api/internal/transport/http/httpx"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*echo.Echo, *service.Service) {
	t.Helper()
	store := testutil.NewTestSQLiteStore(t)
	testutil.SeedModel(t, store, "gpt-4", "http://127.0.0.1:1")

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	catalog := gateway.NewCatalog(store)
	b := broker.New(16)
	manager := session.NewManager(store, engine, catalog, b, session.Options{})
	svc := service.New(manager, gateway.New(catalog, gateway.Options{}), b)

	e := echo.New()
	e.HTTPErrorHandler = httpx.ErrorHandler(false)
	NewHandler(svc).RegisterRoutes(e)
	return e, svc
}

func post(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func receive(t *testing.T, conn *broker.Connection) broker.Frame {
	t.Helper()
	select {
	case data := <-conn.Send:
		var frame broker.Frame
		require.NoError(t, json.Unmarshal(data, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return broker.Frame{}
	}
}

func TestSubmitReply(t *testing.T) {
	e, svc := newTestHandler(t)
	ctx := context.Background()

	s, err := svc.CreateSession(ctx, "u1", "gpt-4", "")
	require.NoError(t, err)

	conn := svc.Broker().NewConnection("u1")
	require.NoError(t, svc.Broker().SubscribeUser(conn, "u1"))
	require.NoError(t, svc.Broker().JoinSession(conn, s.SessionID))
	t.Cleanup(func() { svc.Broker().OnDisconnect(conn) })

	rec := post(e, "/internal/sessions/"+s.SessionID+"/reply", `{"content":"late answer"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var msg domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, domain.RoleAssistant, msg.Role)
	assert.Equal(t, "late answer", msg.Content)

	frame := receive(t, conn)
	assert.Equal(t, domain.EventMessageNew, frame.Type)

	got, err := svc.GetSession(ctx, "u1", s.SessionID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "late answer", got.Messages[0].Content)
}

func TestSubmitReplyErrors(t *testing.T) {
	e, svc := newTestHandler(t)

	rec := post(e, "/internal/sessions/sess_missing/reply", `{"content":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s, err := svc.CreateSession(context.Background(), "u1", "gpt-4", "")
	require.NoError(t, err)
	rec = post(e, "/internal/sessions/"+s.SessionID+"/reply", `{"content":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSend(t *testing.T) {
	e, svc := newTestHandler(t)

	conn := svc.Broker().NewConnection("u1")
	require.NoError(t, svc.Broker().SubscribeUser(conn, "u1"))
	t.Cleanup(func() { svc.Broker().OnDisconnect(conn) })

	rec := post(e, "/internal/send", `{"topic":"user:u1","event":"session:deleted","data":{"sessionId":"s1"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp SendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, SendResponse{OK: true, Delivered: 1}, resp)
	assert.Equal(t, domain.EventSessionDeleted, receive(t, conn).Type)

	rec = post(e, "/internal/send", `{"topic":"user:u1","event":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(e, "/internal/send", `{"topic":"room:1","event":"message:new"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(e, "/internal/send", `{"event":"message:new"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	e, svc := newTestHandler(t)
	conn := svc.Broker().NewConnection("u1")
	require.NoError(t, svc.Broker().SubscribeUser(conn, "u1"))
	t.Cleanup(func() { svc.Broker().OnDisconnect(conn) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 1, body["connections"])
	assert.EqualValues(t, 1, body["topics"])
}
