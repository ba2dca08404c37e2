// Package policy evaluates session access decisions with OPA.
package policy

import (
	"context"

	"github.com/open-policy-agent/opa/rego"
	"github.com/pkg/errors"
)

// Decision is the outcome of a session access check.
type Decision string

const (
	DecisionAllow     Decision = "allow"
	DecisionForbidden Decision = "forbidden"
	DecisionNotFound  Decision = "not_found"
	DecisionDeny      Decision = "deny"
)

// Action names the operation a caller attempts on a session.
type Action string

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionCompose Action = "compose"
	ActionJoin    Action = "join"
)

// Input is the document evaluated by the policy.
type Input struct {
	Action   Action       `json:"action"`
	CallerID string       `json:"caller_id"`
	Session  SessionInput `json:"session"`
}

// SessionInput is the part of a session visible to the policy.
type SessionInput struct {
	OwnerID string `json:"owner_id"`
	Status  string `json:"status"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.session_policy.decision"),
		rego.Module("session_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare rego")
	}

	return &Engine{query: query}, nil
}

// Evaluate returns the decision for input. An undefined result denies.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return DecisionDeny, errors.Wrap(err, "failed to evaluate policy")
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionDeny, nil
	}

	s, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return DecisionDeny, errors.Errorf("unexpected policy result %T", results[0].Expressions[0].Value)
	}
	return Decision(s), nil
}

// DefaultPolicy restricts every session to its owner and hides deleted sessions.
const DefaultPolicy = `
package session_policy

import rego.v1

default decision := "deny"

decision := "not_found" if {
	input.session.status == "deleted"
}

decision := "allow" if {
	input.session.status != "deleted"
	input.caller_id != ""
	input.session.owner_id == input.caller_id
}

decision := "forbidden" if {
	input.session.status != "deleted"
	input.session.owner_id != input.caller_id
}

decision := "forbidden" if {
	input.session.status != "deleted"
	input.caller_id == ""
}
`
