// Package repository defines the session storage interface and its SQLite
// implementation.
package repository

import (
	"context"

	"github.com/gensart-projs/openai-like-api/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Session operations
	FindSessions(ctx context.Context, filter SessionFilter, sort Sort, page Pagination) ([]domain.Session, error)
	CountSessions(ctx context.Context, filter SessionFilter) (int, error)
	FindOneSession(ctx context.Context, filter SessionFilter) (*domain.Session, error)
	InsertSession(ctx context.Context, session *domain.Session) error
	UpdateSession(ctx context.Context, filter SessionFilter, patch SessionPatch) (bool, error)

	// Model configuration operations
	GetModelConfig(ctx context.Context, slug string) (*domain.ModelConfig, error)
	ListModelConfigs(ctx context.Context, activeOnly bool) ([]domain.ModelConfig, error)
	UpsertModelConfig(ctx context.Context, model *domain.ModelConfig) error

	// Lifecycle
	Close() error
}

// SessionFilter selects sessions. Empty fields do not constrain the match.
type SessionFilter struct {
	SessionID      string
	OwnerID        string
	Status         domain.SessionStatus
	ExcludeDeleted bool
	// Title matches the exact current title, used for compare-and-set updates.
	Title *string
}

// Sort orders FindSessions results.
type Sort struct {
	Field string
	Desc  bool
}

// Pagination bounds FindSessions results. Limit 0 means unbounded.
type Pagination struct {
	Offset int
	Limit  int
}

// SessionPatch is an atomic change to a single session. ClearMessages runs
// before AppendMessages.
type SessionPatch struct {
	Title          *string
	Status         *domain.SessionStatus
	ClearMessages  bool
	AppendMessages []domain.Message
}
