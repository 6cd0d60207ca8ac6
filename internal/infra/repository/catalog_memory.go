package repository

import (
	"context"

	"checkout/internal/domain/model"
	repo "checkout/internal/repository"
)

type catalogMemoryRepository struct {
	templates map[string]model.OrderTemplate
}

// DI
func NewCatalogMemoryRepository(templates []model.OrderTemplate) repo.CatalogRepository {
	m := make(map[string]model.OrderTemplate, len(templates))
	for _, t := range templates {
		m[t.ID] = t
	}
	return &catalogMemoryRepository{templates: m}
}

func (r *catalogMemoryRepository) FindTemplate(ctx context.Context, templateID string) (model.OrderTemplate, error) {
	t, ok := r.templates[templateID]
	if !ok {
		return model.OrderTemplate{}, repo.ErrNotFound
	}
	t.Packages = model.ClonePackages(t.Packages)
	return t, nil
}
