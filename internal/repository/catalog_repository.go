package repository

import (
	"context"

	"checkout/internal/domain/model"
)

// 注文ひな形の取得
type CatalogRepository interface {
	FindTemplate(ctx context.Context, templateID string) (model.OrderTemplate, error)
}
