package service

import (
	"strings"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/domain"
)

// Stats describes live broker state.
type Stats struct {
	Connections int `json:"connections"`
	Topics      int `json:"topics"`
}

// Publish sends a vocabulary event to a user or session topic and returns
// the number of connections it was queued for.
func (s *Service) Publish(topic string, event domain.EventName, data interface{}) (int, error) {
	if !event.Valid() {
		return 0, apperr.Validation("invalid_event", "unknown event "+string(event)).WithParam("event")
	}
	if !validTopic(topic) {
		return 0, apperr.Validation("invalid_topic", "topic must be user:<id> or session:<id>").WithParam("topic")
	}
	n, err := s.broker.Publish(topic, event, data)
	if err != nil {
		return 0, apperr.Internal(err, "failed to publish event")
	}
	return n, nil
}

// Stats returns the live connection and topic counts.
func (s *Service) Stats() Stats {
	return Stats{
		Connections: s.broker.ConnectionCount(),
		Topics:      s.broker.TopicCount(),
	}
}

func validTopic(topic string) bool {
	for _, prefix := range []string{"user:", "session:"} {
		if strings.HasPrefix(topic, prefix) && len(topic) > len(prefix) {
			return true
		}
	}
	return false
}
