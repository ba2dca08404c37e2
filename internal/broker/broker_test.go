package broker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	goleak.VerifyTestMain(m)
}

func subscribed(t *testing.T, b *Broker, user string) *Connection {
	t.Helper()
	conn := b.NewConnection(user)
	require.NoError(t, b.SubscribeUser(conn, user))
	return conn
}

func receive(t *testing.T, conn *Connection) Frame {
	t.Helper()
	select {
	case data, ok := <-conn.Send:
		require.True(t, ok, "send channel closed")
		var f Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return Frame{}
}

func assertNothing(t *testing.T, conn *Connection) {
	t.Helper()
	select {
	case data := <-conn.Send:
		t.Fatalf("unexpected frame: %s", data)
	default:
	}
}

func TestPublishReachesOnlySessionSubscribers(t *testing.T) {
	b := New(8)
	joined := subscribed(t, b, "u1")
	other := subscribed(t, b, "u1")
	require.NoError(t, b.JoinSession(joined, "S"))

	n, err := b.Publish(SessionTopic("S"), domain.EventMessageNew, domain.Message{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f := receive(t, joined)
	assert.Equal(t, domain.EventMessageNew, f.Type)
	assert.Equal(t, "session:S", f.Topic)
	assertNothing(t, other)

	b.OnDisconnect(joined)
	b.OnDisconnect(other)
}

func TestJoinSessionLeavesPrevious(t *testing.T) {
	b := New(8)
	conn := subscribed(t, b, "u1")
	require.NoError(t, b.JoinSession(conn, "S1"))
	require.NoError(t, b.JoinSession(conn, "S2"))

	b.PublishToSession("S1", domain.EventMessageNew, domain.Message{Content: "old"})
	assertNothing(t, conn)

	b.PublishToSession("S2", domain.EventMessageNew, domain.Message{Content: "new"})
	f := receive(t, conn)
	assert.Equal(t, "session:S2", f.Topic)
	assert.Equal(t, "S2", b.JoinedSession(conn))
	assert.False(t, b.HasSubscribers(SessionTopic("S1")))

	b.LeaveSession(conn)
	assert.Equal(t, "", b.JoinedSession(conn))
	b.OnDisconnect(conn)
}

func TestUserTopicDelivery(t *testing.T) {
	b := New(8)
	alice := subscribed(t, b, "alice")
	bob := subscribed(t, b, "bob")

	b.PublishToUser("alice", domain.EventSessionDeleted, domain.SessionDeletedPayload{SessionID: "sess_1"})

	f := receive(t, alice)
	assert.Equal(t, domain.EventSessionDeleted, f.Type)
	assertNothing(t, bob)

	b.OnDisconnect(alice)
	b.OnDisconnect(bob)
}

func TestJoinRequiresSubscription(t *testing.T) {
	b := New(8)
	conn := b.NewConnection("u1")
	assert.ErrorIs(t, b.JoinSession(conn, "S"), ErrNotSubscribed)
}

func TestOnDisconnectIsIdempotent(t *testing.T) {
	b := New(8)
	conn := subscribed(t, b, "u1")
	require.NoError(t, b.JoinSession(conn, "S"))
	assert.Equal(t, 1, b.ConnectionCount())
	assert.Equal(t, 2, b.TopicCount())

	b.OnDisconnect(conn)
	b.OnDisconnect(conn)

	assert.Equal(t, 0, b.ConnectionCount())
	assert.Equal(t, 0, b.TopicCount())
	_, ok := <-conn.Send
	assert.False(t, ok)
	assert.ErrorIs(t, b.SubscribeUser(conn, "u1"), ErrClosed)
	assert.ErrorIs(t, b.SendTo(conn, []byte("x")), ErrClosed)
}

func TestSlowConsumerIsDisconnected(t *testing.T) {
	b := New(1)
	slow := subscribed(t, b, "u1")

	_, err := b.Publish(UserTopic("u1"), domain.EventSessionUpdated, nil)
	require.NoError(t, err)
	n, err := b.Publish(UserTopic("u1"), domain.EventSessionUpdated, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.Eventually(t, func() bool { return b.ConnectionCount() == 0 }, time.Second, 5*time.Millisecond)
	<-slow.Send
	_, ok := <-slow.Send
	assert.False(t, ok)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := New(8)
	n, err := b.Publish(SessionTopic("nobody"), domain.EventMessageNew, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
