package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/google/uuid"
)

// contentKeys are the upstream fields holding the reply text, by priority.
var contentKeys = []string{"content", "response", "output", "text"}

// normalize converts an upstream success payload into canonical envelopes.
// An upstream array yields one envelope per element, in order.
func (g *Gateway) normalize(call Call, payload []byte) ([]domain.Completion, bool) {
	trimmed := bytes.TrimSpace(payload)

	var items []json.RawMessage
	if len(trimmed) > 0 && trimmed[0] == '[' && json.Unmarshal(trimmed, &items) == nil {
		out := make([]domain.Completion, 0, len(items))
		for _, item := range items {
			content, usage := extract(item)
			out = append(out, g.envelope(call, content, usage))
		}
		return out, true
	}

	content, usage := extract(trimmed)
	return []domain.Completion{g.envelope(call, content, usage)}, false
}

// extract reads the reply text and the verbatim usage block of one upstream
// value. Non-JSON bodies and JSON strings are the content itself.
func extract(raw json.RawMessage) (string, json.RawMessage) {
	if len(raw) == 0 {
		return "", nil
	}

	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw), nil
	}

	switch v := value.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	case map[string]interface{}:
		var fields map[string]json.RawMessage
		_ = json.Unmarshal(raw, &fields)
		usage := fields["usage"]
		if !isObject(usage) {
			usage = nil
		}
		return contentOf(v), usage
	default:
		return string(raw), nil
	}
}

func contentOf(obj map[string]interface{}) string {
	for _, key := range contentKeys {
		if val, ok := obj[key]; ok && val != nil {
			return stringify(val)
		}
	}
	// OpenAI-shaped upstreams
	if choices, ok := obj["choices"].([]interface{}); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]interface{}); ok {
			if msg, ok := choice["message"].(map[string]interface{}); ok && msg["content"] != nil {
				return stringify(msg["content"])
			}
			if text, ok := choice["text"]; ok && text != nil {
				return stringify(text)
			}
		}
	}
	return ""
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64, bool:
		return fmt.Sprint(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// envelope builds one canonical completion around content.
func (g *Gateway) envelope(call Call, content string, usage json.RawMessage) domain.Completion {
	c := domain.Completion{
		Created: g.now().Unix(),
		Model:   call.Model.Slug,
		Usage:   usage,
	}
	if c.Usage == nil {
		c.Usage = estimateUsage(content)
	}

	suffix := uuid.New().String()[:8]
	if call.Kind == domain.CompletionKindCompletion {
		text := content
		c.ID = "cmpl-" + suffix
		c.Object = domain.ObjectTextCompletion
		c.Choices = []domain.Choice{{Index: 0, Text: &text, FinishReason: domain.FinishReasonStop}}
		return c
	}

	c.ID = "chatcmpl-" + suffix
	c.Object = domain.ObjectChatCompletion
	c.Choices = []domain.Choice{{
		Index:        0,
		Message:      &domain.ChatMessage{Role: domain.RoleAssistant, Content: content},
		FinishReason: domain.FinishReasonStop,
	}}
	return c
}

// estimateUsage approximates completion tokens at four characters per token.
func estimateUsage(content string) json.RawMessage {
	tokens := 0
	if content != "" {
		tokens = (utf8.RuneCountInString(content) + 3) / 4
	}
	data, _ := json.Marshal(domain.Usage{CompletionTokens: tokens, TotalTokens: tokens})
	return data
}

// promptFromMessages flattens chat messages for text-completion upstreams.
func promptFromMessages(messages []domain.ChatMessage) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n")
}
