package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/broker"
	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/gensart-projs/openai-like-api/internal/gateway"
	"github.com/gensart-projs/openai-like-api/internal/policy"
	"github.com/gensart-projs/openai-like-api/internal/session"
	"github.com/gensart-projs/openai-like-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, upstream http.HandlerFunc, deadline time.Duration) *Service {
	t.Helper()
	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)

	store := testutil.NewTestSQLiteStore(t)
	testutil.SeedModel(t, store, "gpt-4", server.URL)

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	catalog := gateway.NewCatalog(store)
	b := broker.New(16)
	manager := session.NewManager(store, engine, catalog, b, session.Options{})
	gw := gateway.New(catalog, gateway.Options{Deadline: deadline, Timeout: 5 * time.Second})
	return New(manager, gw, b)
}

func reply(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":"` + content + `"}`))
	}
}

func chatRequest(sessionID, model, content string) *domain.CompletionRequest {
	msgs, _ := json.Marshal([]domain.ChatMessage{{Role: domain.RoleUser, Content: content}})
	return &domain.CompletionRequest{Model: model, SessionID: sessionID, Messages: msgs}
}

func TestCompleteCreatesSessionAndDerivesTitle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, reply("Hi! How can I help?"), time.Second)

	res, err := svc.Complete(ctx, "u1", domain.CompletionKindChat, chatRequest("", "gpt-4", "Hello"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.False(t, res.Pending)

	c, ok := res.Body.(domain.Completion)
	require.True(t, ok)
	assert.Equal(t, "Hi! How can I help?", c.Choices[0].Message.Content)

	sess, err := svc.GetSession(ctx, "u1", res.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, domain.RoleUser, sess.Messages[0].Role)
	assert.Equal(t, domain.RoleAssistant, sess.Messages[1].Role)
	assert.Equal(t, "Hello", sess.Title)
	assert.Equal(t, domain.SessionStatusActive, sess.Status)
}

func TestCompleteReusesSessionModel(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, reply("ok"), time.Second)

	first, err := svc.Complete(ctx, "u1", domain.CompletionKindChat, chatRequest("", "gpt-4", "one"))
	require.NoError(t, err)

	second, err := svc.Complete(ctx, "u1", domain.CompletionKindChat, chatRequest(first.SessionID, "", "two"))
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	sess, err := svc.GetSession(ctx, "u1", first.SessionID)
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 4)
}

func TestCompletePublishesToSessionViewers(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, reply("pong"), time.Second)

	created, err := svc.CreateSession(ctx, "u1", "gpt-4", "")
	require.NoError(t, err)

	viewer := svc.Broker().NewConnection("u1")
	require.NoError(t, svc.Broker().SubscribeUser(viewer, "u1"))
	require.NoError(t, svc.Broker().JoinSession(viewer, created.SessionID))
	defer svc.Broker().OnDisconnect(viewer)

	_, err = svc.Complete(ctx, "u1", domain.CompletionKindChat, chatRequest(created.SessionID, "", "ping"))
	require.NoError(t, err)

	var names []domain.EventName
	timeout := time.After(time.Second)
	for len(names) < 3 {
		select {
		case data := <-viewer.Send:
			var f broker.Frame
			require.NoError(t, json.Unmarshal(data, &f))
			names = append(names, f.Type)
		case <-timeout:
			t.Fatalf("received only %v", names)
		}
	}
	assert.Contains(t, names, domain.EventMessageNew)
	assert.Contains(t, names, domain.EventSessionUpdated)
}

func TestCompletePublishesSessionUpdatedOnEveryExchange(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, reply("pong"), time.Second)

	first, err := svc.Complete(ctx, "u1", domain.CompletionKindChat, chatRequest("", "gpt-4", "ping"))
	require.NoError(t, err)

	viewer := svc.Broker().NewConnection("u1")
	require.NoError(t, svc.Broker().SubscribeUser(viewer, "u1"))
	defer svc.Broker().OnDisconnect(viewer)

	_, err = svc.Complete(ctx, "u1", domain.CompletionKindChat, chatRequest(first.SessionID, "", "ping again"))
	require.NoError(t, err)

	select {
	case data := <-viewer.Send:
		var f struct {
			Type domain.EventName    `json:"type"`
			Data domain.PublicSession `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &f))
		assert.Equal(t, domain.EventSessionUpdated, f.Type)
		assert.Equal(t, first.SessionID, f.Data.SessionID)
		assert.Equal(t, 4, f.Data.MessageCount)
		assert.Equal(t, "ping", f.Data.Title)
	case <-time.After(time.Second):
		t.Fatal("no session:updated after the second completion")
	}
}

func TestCompleteDeadlineDoesNotStoreSyntheticReply(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)

	res, err := svc.Complete(ctx, "u1", domain.CompletionKindChat, chatRequest("", "gpt-4", "slow please"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, res.Status)
	assert.True(t, res.Pending)

	sess, err := svc.GetSession(ctx, "u1", res.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 1)

	msg, err := svc.ReceiveReply(ctx, res.SessionID, domain.ReplyRequest{Content: "finally"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAssistant, msg.Role)

	sess, err = svc.GetSession(ctx, "u1", res.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "slow please", sess.Title)
}

func TestCompleteUpstreamFailureKeepsUserMessage(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, time.Second)

	res, err := svc.Complete(ctx, "u1", domain.CompletionKindChat, chatRequest("", "gpt-4", "boom"))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindBadGateway))
	require.NotNil(t, res)

	sess, err := svc.GetSession(ctx, "u1", res.SessionID)
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 1)
}

func TestCompleteSurvivesClientCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		cancel()
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte(`{"content":"still here"}`))
	}, time.Second)

	res, err := svc.Complete(ctx, "u1", domain.CompletionKindChat, chatRequest("", "gpt-4", "hang up"))
	require.NoError(t, err)

	sess, err := svc.GetSession(context.Background(), "u1", res.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "still here", sess.Messages[1].Content)
}

func TestCompleteValidatesBeforeMutation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, reply("x"), time.Second)

	_, err := svc.Complete(ctx, "u1", domain.CompletionKindChat, &domain.CompletionRequest{Model: "gpt-4"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.Complete(ctx, "u1", domain.CompletionKindChat, chatRequest("", "unknown", "hi"))
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = svc.Complete(ctx, "u1", domain.CompletionKindCompletion, &domain.CompletionRequest{Model: "gpt-4"})
	assert.Equal(t, "prompt", apperr.From(err).Param)

	page, err := svc.ListSessions(ctx, "u1", session.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

func TestCompleteTextCompletion(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, reply("a poem"), time.Second)

	res, err := svc.Complete(ctx, "u1", domain.CompletionKindCompletion, &domain.CompletionRequest{
		Model:  "gpt-4",
		Prompt: json.RawMessage(`"write a poem"`),
	})
	require.NoError(t, err)
	c := res.Body.(domain.Completion)
	assert.Equal(t, domain.ObjectTextCompletion, c.Object)
	assert.Equal(t, "a poem", *c.Choices[0].Text)
}

func TestUpdateSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, reply("x"), time.Second)
	created, err := svc.CreateSession(ctx, "u1", "gpt-4", "")
	require.NoError(t, err)

	title := "Renamed"
	archived := domain.SessionStatusArchived
	updated, err := svc.UpdateSession(ctx, "u1", created.SessionID, UpdateSessionInput{Title: &title, Status: &archived})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, domain.SessionStatusArchived, updated.Status)

	same, err := svc.UpdateSession(ctx, "u1", created.SessionID, UpdateSessionInput{Status: &archived})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusArchived, same.Status)

	deleted := domain.SessionStatusDeleted
	_, err = svc.UpdateSession(ctx, "u1", created.SessionID, UpdateSessionInput{Status: &deleted})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.UpdateSession(ctx, "u1", created.SessionID, UpdateSessionInput{})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestPublishValidatesVocabulary(t *testing.T) {
	svc := newTestService(t, reply("x"), time.Second)

	_, err := svc.Publish("session:s1", "custom:event", nil)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.Publish("room:1", domain.EventMessageNew, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	n, err := svc.Publish("session:s1", domain.EventMessageNew, map[string]string{"content": "hi"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, Stats{}, svc.Stats())
}
