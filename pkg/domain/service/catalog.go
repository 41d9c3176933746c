package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
)

var ErrInvalidProduct = errors.New("invalid product")

type CatalogService interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	SaveProduct(ctx context.Context, product *model.Product) error
}

func NewCatalogService(repo model.ProductRepository) CatalogService {
	return &catalogService{repo: repo}
}

type catalogService struct {
	repo model.ProductRepository
}

func (s *catalogService) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.repo.List(ctx)
}

func (s *catalogService) SaveProduct(ctx context.Context, product *model.Product) error {
	product.ID = strings.TrimSpace(product.ID)
	if product.ID == "" || strings.TrimSpace(product.Name) == "" {
		return ErrInvalidProduct
	}
	if product.PriceCents < 0 {
		return ErrInvalidProduct
	}
	switch product.Category {
	case model.CategorySubscription, model.CategoryDevice:
	case "":
		product.Category = model.CategorySubscription
	default:
		return ErrInvalidProduct
	}
	product.UpdatedAt = time.Now().UTC()
	return s.repo.Upsert(ctx, product)
}
