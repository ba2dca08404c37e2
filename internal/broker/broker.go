// Package broker fans real-time events out to live connections.
//
// Membership is process-local and in memory. Delivery is best effort: a
// connection receives an event only if it is subscribed to the topic at
// publish time, and nothing is replayed.
package broker

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultBufferSize = 256

var (
	// ErrClosed is returned for operations on a disconnected connection.
	ErrClosed = errors.New("connection closed")
	// ErrNotSubscribed is returned when joining a session before the user subscription.
	ErrNotSubscribed = errors.New("connection has no user subscription")
	// ErrBufferFull is returned when a direct send finds the buffer full.
	ErrBufferFull = errors.New("send buffer full")
)

// UserTopic is the topic carrying lifecycle events of one owner.
func UserTopic(ownerID string) string { return "user:" + ownerID }

// SessionTopic is the topic carrying message events of one session.
func SessionTopic(sessionID string) string { return "session:" + sessionID }

// Frame is the wire form of a published event.
type Frame struct {
	Type  domain.EventName `json:"type"`
	Topic string           `json:"topic"`
	Ts    int64            `json:"ts"`
	Data  interface{}      `json:"data"`
}

// Connection is a live viewer. Frames queued for it are read from Send.
type Connection struct {
	ID     string
	UserID string
	Send   chan []byte

	// guarded by Broker.mu
	userTopic    string
	sessionTopic string
	closed       bool
}

// Broker owns the topic membership table.
type Broker struct {
	// topics maps a topic to its subscribed connections by ID
	topics      map[string]map[string]*Connection
	connections map[string]*Connection
	bufferSize  int

	mu sync.RWMutex
}

// New creates a Broker whose connections buffer up to bufferSize frames.
func New(bufferSize int) *Broker {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Broker{
		topics:      make(map[string]map[string]*Connection),
		connections: make(map[string]*Connection),
		bufferSize:  bufferSize,
	}
}

// NewConnection creates a connection handle. It holds no membership until
// SubscribeUser succeeds.
func (b *Broker) NewConnection(userID string) *Connection {
	return &Connection{
		ID:     uuid.New().String(),
		UserID: userID,
		Send:   make(chan []byte, b.bufferSize),
	}
}

// SubscribeUser registers conn and joins it to the owner's user topic.
func (b *Broker) SubscribeUser(conn *Connection, ownerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conn.closed {
		return ErrClosed
	}
	if conn.userTopic != "" {
		b.removeLocked(conn.userTopic, conn.ID)
	}
	conn.UserID = ownerID
	conn.userTopic = UserTopic(ownerID)
	b.connections[conn.ID] = conn
	b.addLocked(conn.userTopic, conn)

	log.Debug().Str("component", "broker").Str("connection_id", conn.ID).
		Str("user_id", ownerID).Msg("connection subscribed")
	return nil
}

// JoinSession joins conn to the session topic, leaving any session topic it
// joined before.
func (b *Broker) JoinSession(conn *Connection, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conn.closed {
		return ErrClosed
	}
	if conn.userTopic == "" {
		return ErrNotSubscribed
	}
	if conn.sessionTopic != "" {
		b.removeLocked(conn.sessionTopic, conn.ID)
	}
	conn.sessionTopic = SessionTopic(sessionID)
	b.addLocked(conn.sessionTopic, conn)
	return nil
}

// LeaveSession removes conn from its current session topic, if any.
func (b *Broker) LeaveSession(conn *Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conn.sessionTopic != "" {
		b.removeLocked(conn.sessionTopic, conn.ID)
		conn.sessionTopic = ""
	}
}

// JoinedSession returns the session ID conn currently follows, or "".
func (b *Broker) JoinedSession(conn *Connection) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if conn.sessionTopic == "" {
		return ""
	}
	return conn.sessionTopic[len("session:"):]
}

// OnDisconnect removes every membership of conn and closes its Send channel.
// It is safe to call more than once.
func (b *Broker) OnDisconnect(conn *Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conn.closed {
		return
	}
	if conn.userTopic != "" {
		b.removeLocked(conn.userTopic, conn.ID)
	}
	if conn.sessionTopic != "" {
		b.removeLocked(conn.sessionTopic, conn.ID)
	}
	conn.userTopic, conn.sessionTopic = "", ""
	delete(b.connections, conn.ID)
	conn.closed = true
	close(conn.Send)

	log.Debug().Str("component", "broker").Str("connection_id", conn.ID).Msg("connection removed")
}

// Publish delivers event to every connection subscribed to topic and returns
// the number of connections it was queued for. It never blocks: a connection
// whose buffer is full is disconnected.
func (b *Broker) Publish(topic string, event domain.EventName, payload interface{}) (int, error) {
	data, err := json.Marshal(Frame{Type: event, Topic: topic, Ts: time.Now().UnixMilli(), Data: payload})
	if err != nil {
		return 0, errors.Wrapf(err, "encoding %s event", event)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, conn := range b.topics[topic] {
		select {
		case conn.Send <- data:
			delivered++
		default:
			log.Warn().Str("component", "broker").Str("connection_id", conn.ID).
				Str("topic", topic).Msg("send buffer full, disconnecting")
			go b.OnDisconnect(conn)
		}
	}
	return delivered, nil
}

// PublishToUser publishes to the owner's user topic.
func (b *Broker) PublishToUser(ownerID string, event domain.EventName, payload interface{}) {
	if _, err := b.Publish(UserTopic(ownerID), event, payload); err != nil {
		log.Error().Err(err).Str("component", "broker").Msg("publish failed")
	}
}

// PublishToSession publishes to the session topic.
func (b *Broker) PublishToSession(sessionID string, event domain.EventName, payload interface{}) {
	if _, err := b.Publish(SessionTopic(sessionID), event, payload); err != nil {
		log.Error().Err(err).Str("component", "broker").Msg("publish failed")
	}
}

// SendTo queues a pre-encoded frame for a single connection.
func (b *Broker) SendTo(conn *Connection, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if conn.closed {
		return ErrClosed
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendJSONTo encodes v and queues it for a single connection.
func (b *Broker) SendJSONTo(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.SendTo(conn, data)
}

// ConnectionCount returns the number of subscribed connections.
func (b *Broker) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.connections)
}

// TopicCount returns the number of topics with at least one subscriber.
func (b *Broker) TopicCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics)
}

// HasSubscribers checks if a topic has any subscribed connection.
func (b *Broker) HasSubscribers(topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic]) > 0
}

func (b *Broker) addLocked(topic string, conn *Connection) {
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[string]*Connection)
	}
	b.topics[topic][conn.ID] = conn
}

func (b *Broker) removeLocked(topic, connID string) {
	if members := b.topics[topic]; members != nil {
		delete(members, connID)
		if len(members) == 0 {
			delete(b.topics, topic)
		}
	}
}
