// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/gensart-projs/openai-like-api/internal/repository"
)

// NewTestSQLiteStore opens an in-memory store closed at test cleanup.
func NewTestSQLiteStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	s, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// SeedModel stores an active model whose webhooks point at baseURL.
func SeedModel(t *testing.T, s repository.Store, slug, baseURL string) *domain.ModelConfig {
	t.Helper()

	model := &domain.ModelConfig{
		Slug:          slug,
		Name:          slug,
		ChatURL:       baseURL + "/chat",
		CompletionURL: baseURL + "/completions",
		IsActive:      true,
	}
	if err := s.UpsertModelConfig(context.Background(), model); err != nil {
		t.Fatalf("failed to seed model %s: %v", slug, err)
	}
	return model
}
