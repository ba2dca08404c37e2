package domain

import "encoding/json"

// ChatMessage is a message as exchanged with clients and upstream webhooks.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// SamplingParams are forwarded to the upstream webhook untouched.
type SamplingParams struct {
	Temperature      *float64    `json:"temperature,omitempty"`
	MaxTokens        *int        `json:"max_tokens,omitempty"`
	TopP             *float64    `json:"top_p,omitempty"`
	FrequencyPenalty *float64    `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64    `json:"presence_penalty,omitempty"`
	Stop             interface{} `json:"stop,omitempty"`
	N                *int        `json:"n,omitempty"`
	User             string      `json:"user,omitempty"`
}

// CompletionRequest is the inbound body of /v1/chat/completions and /v1/completions.
// Messages and Prompt stay raw so that shape errors can be reported precisely.
type CompletionRequest struct {
	Model     string          `json:"model"`
	Messages  json.RawMessage `json:"messages,omitempty"`
	Prompt    json.RawMessage `json:"prompt,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Stream    bool            `json:"stream,omitempty"`
	SamplingParams
}

// WebhookRequest is the body posted to an upstream webhook.
type WebhookRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Prompt   string        `json:"prompt,omitempty"`
	SamplingParams
	WebhookType CompletionKind `json:"webhook_type"`
	SessionID   string         `json:"sessionId,omitempty"`
	OwnerID     string         `json:"ownerId,omitempty"`
}

// ReplyRequest is posted by an upstream workflow that finished out-of-band.
type ReplyRequest struct {
	Role     Role              `json:"role,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
