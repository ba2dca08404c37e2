package session

import (
	"fmt"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/domain"
)

// Action is a lifecycle transition request.
type Action string

const (
	ActionArchive Action = "archive"
	ActionRestore Action = "restore"
	ActionDelete  Action = "delete"
)

// Transition returns the status reached by applying action to from.
// Deleted sessions are terminal and reported as not found.
func Transition(from domain.SessionStatus, action Action) (domain.SessionStatus, error) {
	if from == domain.SessionStatusDeleted {
		return from, apperr.NotFound("session_not_found", "Session not found")
	}

	switch {
	case action == ActionArchive && from == domain.SessionStatusActive:
		return domain.SessionStatusArchived, nil
	case action == ActionRestore && from == domain.SessionStatusArchived:
		return domain.SessionStatusActive, nil
	case action == ActionDelete && (from == domain.SessionStatusActive || from == domain.SessionStatusArchived):
		return domain.SessionStatusDeleted, nil
	}
	return from, apperr.Conflict("invalid_transition",
		fmt.Sprintf("cannot %s a session that is %s", action, from))
}

// ActionFor maps a requested target status to the transition reaching it.
func ActionFor(target domain.SessionStatus) (Action, bool) {
	switch target {
	case domain.SessionStatusArchived:
		return ActionArchive, true
	case domain.SessionStatusActive:
		return ActionRestore, true
	case domain.SessionStatusDeleted:
		return ActionDelete, true
	}
	return "", false
}
