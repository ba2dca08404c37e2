// Package ws provides the WebSocket endpoint for live viewers.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/auth"
	"github.com/gensart-projs/openai-like-api/internal/broker"
	"github.com/gensart-projs/openai-like-api/internal/config"
	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/gensart-projs/openai-like-api/internal/protocol"
	"github.com/gensart-projs/openai-like-api/internal/service"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const authorizeTimeout = 5 * time.Second

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	service  *service.Service
	broker   *broker.Broker
	verifier auth.TokenVerifier
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, svc *service.Service, verifier auth.TokenVerifier) *Server {
	return &Server{
		cfg:      cfg,
		service:  svc,
		broker:   svc.Broker(),
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.CORSOrigins),
		},
	}
}

// RegisterRoutes mounts the WebSocket endpoint.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", s.HandleWebSocket)
}

// HandleWebSocket upgrades the request. The client authenticates with a
// token query parameter, a bearer header or a hello frame.
func (s *Server) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		token, _ = auth.ExtractBearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "ws").Msg("failed to upgrade websocket")
		return nil
	}

	go s.serve(ws, token)
	return nil
}

func (s *Server) serve(ws *websocket.Conn, token string) {
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	userID, err := s.authenticate(ws, token)
	if err != nil {
		s.reject(ws, err)
		return
	}

	conn := s.broker.NewConnection(userID)
	if err := s.broker.SubscribeUser(conn, userID); err != nil {
		s.reject(ws, err)
		return
	}

	ack := protocol.HelloAckMessage{
		BaseMessage:  protocol.NewBase(protocol.TypeHelloAck, ""),
		UserID:       userID,
		ConnectionID: conn.ID,
	}
	if err := s.broker.SendJSONTo(conn, ack); err != nil {
		s.broker.OnDisconnect(conn)
		_ = ws.Close()
		return
	}

	log.Info().Str("component", "ws").Str("user_id", userID).Str("conn_id", conn.ID).Msg("connection authenticated")

	go s.writePump(ws, conn)
	s.readPump(ws, conn)
}

// authenticate verifies token, or waits for a hello frame when the upgrade
// carried none.
func (s *Server) authenticate(ws *websocket.Conn, token string) (string, error) {
	if token == "" {
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, data, err := ws.ReadMessage()
		if err != nil {
			return "", errors.Wrap(auth.ErrMissingToken, "no hello frame")
		}
		var hello protocol.HelloMessage
		if err := json.Unmarshal(data, &hello); err != nil || hello.Type != protocol.TypeHello {
			return "", errors.Wrap(auth.ErrMissingToken, "first frame must be hello")
		}
		token = hello.Token
	}
	if token == "" {
		return "", auth.ErrMissingToken
	}
	return s.verifier.Verify(token)
}

// reject reports an authentication failure and closes the socket. No
// topic membership exists at this point.
func (s *Server) reject(ws *websocket.Conn, cause error) {
	log.Info().Err(cause).Str("component", "ws").Msg("connection rejected")

	deadline := time.Now().Add(s.cfg.WriteTimeout)
	_ = ws.SetWriteDeadline(deadline)
	_ = ws.WriteJSON(protocol.ErrorMessage{
		BaseMessage: protocol.NewBase(protocol.TypeError, ""),
		Code:        protocol.ErrorCodeAuth,
		Message:     "authentication failed",
	})
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"), deadline)
	_ = ws.Close()
}

// readPump reads frames until the connection fails, then drops every
// membership of conn.
func (s *Server) readPump(ws *websocket.Conn, conn *broker.Connection) {
	defer func() {
		s.broker.OnDisconnect(conn)
		_ = ws.Close()
	}()

	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("component", "ws").Str("conn_id", conn.ID).Msg("websocket read failed")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		s.handleMessage(conn, message)
	}
}

// writePump is the only writer of ws once the connection is authenticated.
func (s *Server) writePump(ws *websocket.Conn, conn *broker.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Broker closed the channel
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("component", "ws").Str("conn_id", conn.ID).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *broker.Connection, data []byte) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch base.Type {
	case protocol.TypeHello:
		s.sendJSON(conn, protocol.HelloAckMessage{
			BaseMessage:  protocol.NewBase(protocol.TypeHelloAck, s.broker.JoinedSession(conn)),
			UserID:       conn.UserID,
			ConnectionID: conn.ID,
		})
	case protocol.TypeJoinSession:
		s.handleJoin(conn, base)
	case protocol.TypeLeaveSession:
		left := s.broker.JoinedSession(conn)
		s.broker.LeaveSession(conn)
		s.sendJSON(conn, protocol.NewBase(protocol.TypeSessionLeft, left))
	case protocol.TypeTyping:
		s.handleTyping(conn, data)
	default:
		s.sendError(conn, base.SessionID, protocol.ErrorCodeInvalidMessage, "unknown message type: "+base.Type)
	}
}

func (s *Server) handleJoin(conn *broker.Connection, msg protocol.BaseMessage) {
	if msg.SessionID == "" {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "session_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), authorizeTimeout)
	defer cancel()

	if err := s.service.AuthorizeJoin(ctx, conn.UserID, msg.SessionID); err != nil {
		ae := apperr.From(err)
		code := protocol.ErrorCodeInternalError
		switch ae.Kind {
		case apperr.KindAuth:
			code = protocol.ErrorCodeAuth
		case apperr.KindNotFound:
			code = protocol.ErrorCodeNotFound
		}
		s.sendError(conn, msg.SessionID, code, ae.Message)
		return
	}

	if err := s.broker.JoinSession(conn, msg.SessionID); err != nil {
		return
	}
	ack := protocol.NewBase(protocol.TypeSessionJoined, msg.SessionID)
	ack.RequestID = msg.RequestID
	s.sendJSON(conn, ack)
}

func (s *Server) handleTyping(conn *broker.Connection, data []byte) {
	var msg protocol.TypingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid typing message")
		return
	}

	sessionID := s.broker.JoinedSession(conn)
	if sessionID == "" {
		s.sendError(conn, "", protocol.ErrorCodeSessionRequired, "join a session first")
		return
	}
	s.broker.PublishToSession(sessionID, domain.EventUserTyping, domain.TypingPayload{
		UserID:   conn.UserID,
		IsTyping: msg.IsTyping,
	})
}

func (s *Server) sendError(conn *broker.Connection, sessionID, code, message string) {
	s.sendJSON(conn, protocol.ErrorMessage{
		BaseMessage: protocol.NewBase(protocol.TypeError, sessionID),
		Code:        code,
		Message:     message,
	})
}

func (s *Server) sendJSON(conn *broker.Connection, v interface{}) {
	if err := s.broker.SendJSONTo(conn, v); err != nil {
		log.Debug().Err(err).Str("component", "ws").Str("conn_id", conn.ID).Msg("dropped frame")
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
