package domain

import "encoding/json"

const (
	ObjectChatCompletion = "chat.completion"
	ObjectTextCompletion = "text_completion"

	FinishReasonStop = "stop"
)

// Completion is the canonical completion envelope returned to callers.
type Completion struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Model   string          `json:"model"`
	Choices []Choice        `json:"choices"`
	Usage   json.RawMessage `json:"usage"`
}

// Choice is a single completion choice. Chat completions carry Message,
// text completions carry Text.
type Choice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Text         *string      `json:"text,omitempty"`
	FinishReason string       `json:"finish_reason"`
}

// Content returns the textual content of the choice regardless of its kind.
func (c Choice) Content() string {
	if c.Message != nil {
		return c.Message.Content
	}
	if c.Text != nil {
		return *c.Text
	}
	return ""
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Model is an entry of the OpenAI-style model listing.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
	Name    string `json:"name,omitempty"`
}

// ModelsResponse is the body of GET /v1/models.
type ModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}
