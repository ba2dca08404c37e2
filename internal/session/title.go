package session

import (
	"strings"

	"github.com/gensart-projs/openai-like-api/internal/domain"
)

const titleMaxRunes = 50

// DeriveTitle builds a session title from the first user message: its first
// 50 characters, with an ellipsis when truncated.
func DeriveTitle(messages []domain.Message) string {
	for _, m := range messages {
		if m.Role != domain.RoleUser {
			continue
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		runes := []rune(content)
		if len(runes) > titleMaxRunes {
			return string(runes[:titleMaxRunes]) + "..."
		}
		return content
	}
	return ""
}
