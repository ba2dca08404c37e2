package gateway

import (
	"context"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/domain"
)

// ModelStore is the read side of the model configuration store.
type ModelStore interface {
	GetModelConfig(ctx context.Context, slug string) (*domain.ModelConfig, error)
	ListModelConfigs(ctx context.Context, activeOnly bool) ([]domain.ModelConfig, error)
}

// Catalog resolves model slugs to active model configurations.
type Catalog struct {
	store ModelStore
}

// NewCatalog creates a Catalog over store.
func NewCatalog(store ModelStore) *Catalog {
	return &Catalog{store: store}
}

// Resolve returns the active configuration of slug.
func (c *Catalog) Resolve(ctx context.Context, slug string) (*domain.ModelConfig, error) {
	if slug == "" {
		return nil, apperr.Validation("model_required", "model is required").WithParam("model")
	}
	model, err := c.store.GetModelConfig(ctx, slug)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load model configuration")
	}
	if model == nil {
		return nil, apperr.NotFound("model_not_found", "The model '"+slug+"' does not exist").WithParam("model")
	}
	if !model.IsActive {
		return nil, apperr.NotFound("model_inactive", "The model '"+slug+"' is not active").WithParam("model")
	}
	return model, nil
}

// List returns the active models in the OpenAI listing format.
func (c *Catalog) List(ctx context.Context) (*domain.ModelsResponse, error) {
	models, err := c.store.ListModelConfigs(ctx, true)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list models")
	}
	resp := &domain.ModelsResponse{Object: "list", Data: make([]domain.Model, 0, len(models))}
	for i := range models {
		resp.Data = append(resp.Data, toModel(&models[i]))
	}
	return resp, nil
}

// Get returns one active model in the OpenAI listing format.
func (c *Catalog) Get(ctx context.Context, slug string) (*domain.Model, error) {
	model, err := c.Resolve(ctx, slug)
	if err != nil {
		return nil, err
	}
	m := toModel(model)
	return &m, nil
}

func toModel(m *domain.ModelConfig) domain.Model {
	return domain.Model{
		ID:      m.Slug,
		Object:  "model",
		Created: m.CreatedAt.Unix(),
		OwnedBy: "organization",
		Name:    m.Name,
	}
}
