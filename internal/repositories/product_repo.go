package repositories

import (
	"context"

	"storefront/internal/models"
)

// ProductRepository defines the interface for product data access.
type ProductRepository interface {
	GetAll(ctx context.Context) ([]models.Product, error)
	GetByActive(ctx context.Context, active bool) ([]models.Product, error)
	GetByID(ctx context.Context, id uint) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	// Update writes only the given columns, keyed by column name.
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	Delete(ctx context.Context, id uint) error
	// DecreaseInventory subtracts quantity from the product's stock in a single
	// conditional update, failing with InsufficientInventoryError rather than
	// letting inventory go below zero.
	DecreaseInventory(ctx context.Context, id uint, quantity int) (*models.Product, error)
}
