package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyDecisions(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	cases := []struct {
		name   string
		input  Input
		expect Decision
	}{
		{
			name:   "owner reads active session",
			input:  Input{Action: ActionRead, CallerID: "u1", Session: SessionInput{OwnerID: "u1", Status: "active"}},
			expect: DecisionAllow,
		},
		{
			name:   "owner composes in archived session",
			input:  Input{Action: ActionCompose, CallerID: "u1", Session: SessionInput{OwnerID: "u1", Status: "archived"}},
			expect: DecisionAllow,
		},
		{
			name:   "other user joins",
			input:  Input{Action: ActionJoin, CallerID: "u2", Session: SessionInput{OwnerID: "u1", Status: "active"}},
			expect: DecisionForbidden,
		},
		{
			name:   "anonymous caller",
			input:  Input{Action: ActionRead, Session: SessionInput{Status: "active"}},
			expect: DecisionForbidden,
		},
		{
			name:   "deleted session hidden even from owner",
			input:  Input{Action: ActionRead, CallerID: "u1", Session: SessionInput{OwnerID: "u1", Status: "deleted"}},
			expect: DecisionNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.Evaluate(ctx, tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, got)
		})
	}
}

func TestNewEngineRejectsInvalidPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package session_policy\n\ndecision := {")
	assert.Error(t, err)
}

func TestUndefinedDecisionDenies(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, "package session_policy\n\nimport rego.v1\n\ndecision := \"allow\" if { input.caller_id == \"root\" }\n")
	require.NoError(t, err)

	got, err := engine.Evaluate(ctx, Input{CallerID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, got)
}
