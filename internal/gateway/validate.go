package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/domain"
)

type rawMessage struct {
	Role    domain.Role     `json:"role"`
	Content json.RawMessage `json:"content"`
	Name    string          `json:"name,omitempty"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ParseMessages validates the messages field of a chat request. It must be a
// non-empty array of {role, content}; content may be a string or an array of
// text parts.
func ParseMessages(raw json.RawMessage) ([]domain.ChatMessage, error) {
	if isNull(raw) {
		return nil, apperr.Validation("", "messages is required").WithParam("messages")
	}

	var items []rawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, apperr.Validation("", "messages must be an array of {role, content} objects").WithParam("messages")
	}
	if len(items) == 0 {
		return nil, apperr.Validation("", "messages must be a non-empty array").WithParam("messages")
	}

	out := make([]domain.ChatMessage, 0, len(items))
	for i, item := range items {
		if !item.Role.Valid() {
			return nil, apperr.Validation("invalid_role",
				fmt.Sprintf("messages[%d].role must be one of system, user, assistant", i)).WithParam("messages")
		}
		content, ok := parseContent(item.Content)
		if !ok {
			return nil, apperr.Validation("invalid_content",
				fmt.Sprintf("messages[%d].content must be a string", i)).WithParam("messages")
		}
		out = append(out, domain.ChatMessage{Role: item.Role, Content: content, Name: item.Name})
	}
	return out, nil
}

func parseContent(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", false
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n"), true
}

// ParsePrompt validates the prompt field of a text completion request and
// returns it as a single user message. An array of strings is joined by newlines.
func ParsePrompt(raw json.RawMessage) (string, []domain.ChatMessage, error) {
	if isNull(raw) {
		return "", nil, apperr.Validation("", "prompt is required").WithParam("prompt")
	}

	var prompt string
	if err := json.Unmarshal(raw, &prompt); err != nil {
		var lines []string
		if err := json.Unmarshal(raw, &lines); err != nil {
			return "", nil, apperr.Validation("", "prompt must be a string or an array of strings").WithParam("prompt")
		}
		prompt = strings.Join(lines, "\n")
	}
	if strings.TrimSpace(prompt) == "" {
		return "", nil, apperr.Validation("", "prompt must not be empty").WithParam("prompt")
	}
	return prompt, []domain.ChatMessage{{Role: domain.RoleUser, Content: prompt}}, nil
}
