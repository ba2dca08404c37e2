// Package service ties the session manager, the completion gateway and the
// broker into the operations exposed by the transports.
package service

import (
	"github.com/gensart-projs/openai-like-api/internal/broker"
	"github.com/gensart-projs/openai-like-api/internal/gateway"
	"github.com/gensart-projs/openai-like-api/internal/session"
)

type Service struct {
	sessions *session.Manager
	gateway  *gateway.Gateway
	broker   *broker.Broker
}

func New(sessions *session.Manager, gw *gateway.Gateway, b *broker.Broker) *Service {
	return &Service{
		sessions: sessions,
		gateway:  gw,
		broker:   b,
	}
}

// Broker returns the fan-out broker used by the WebSocket transport.
func (s *Service) Broker() *broker.Broker {
	return s.broker
}
