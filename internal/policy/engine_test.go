package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateScopesToOwnedDocuments(t *testing.T) {
	e, err := New(Config{Enabled: true, Path: "rego", Mode: ModeEnforce, FailClosed: true}, nil)
	require.NoError(t, err)

	decision, err := e.Evaluate(context.Background(), DocumentScopeInput{
		UserID:             "u1",
		ChatID:             "c1",
		RequestedDocuments: []string{"d1", "d2"},
		OwnedDocuments: []OwnedDocument{
			{ID: "d1", UserID: "u1", ChatID: "c1"},
			{ID: "d2", UserID: "u1", ChatID: "c2"}, // different chat, must be excluded
		},
	})
	require.NoError(t, err)
	assert.True(t, decision.Allow)
	assert.Equal(t, []string{"d1"}, decision.AllowedDocumentIDs)
}

func TestEvaluateAllowsEmptyRequestedDocuments(t *testing.T) {
	e, err := New(Config{Enabled: true, Path: "rego", Mode: ModeEnforce, FailClosed: true}, nil)
	require.NoError(t, err)

	decision, err := e.Evaluate(context.Background(), DocumentScopeInput{UserID: "u1", ChatID: "c1"})
	require.NoError(t, err)
	assert.True(t, decision.Allow)
	assert.Empty(t, decision.AllowedDocumentIDs)
}

func TestDisabledEngineFailsOpen(t *testing.T) {
	e, err := New(Config{Enabled: false}, nil)
	require.NoError(t, err)

	decision, err := e.Evaluate(context.Background(), DocumentScopeInput{
		UserID: "u1", ChatID: "c1", RequestedDocuments: []string{"d1"},
	})
	require.NoError(t, err)
	assert.True(t, decision.Allow)
	assert.Equal(t, []string{"d1"}, decision.AllowedDocumentIDs)
}
