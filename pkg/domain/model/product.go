package model

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProductNotFound       = errors.New("product not found")
	ErrProductNotPurchasable = errors.New("product has no payment processor price")
)

type ProductCategory string

const (
	CategorySubscription ProductCategory = "subscription"
	CategoryDevice       ProductCategory = "device"
)

type Product struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	PriceCents         int64           `json:"price"`
	Category           ProductCategory `json:"category"`
	ProcessorPriceID   string          `json:"processorPriceId,omitempty"`
	ProcessorProductID string          `json:"processorProductId,omitempty"`
	Active             bool            `json:"active"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

func (p *Product) Shippable() bool {
	return p.Category == CategoryDevice
}

type ProductRepository interface {
	Find(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context) ([]Product, error)
	Upsert(ctx context.Context, product *Product) error
}
