package repositories

import (
	"context"

	"storefront/internal/models"
)

// OrderRepository defines the interface for order data access. Reads return
// orders with their items and each item's product.
type OrderRepository interface {
	GetAll(ctx context.Context) ([]models.Order, error)
	GetByID(ctx context.Context, id uint) (*models.Order, error)
	GetByCustomer(ctx context.Context, customerID uint) ([]models.Order, error)
	// Create inserts the order together with its Items.
	Create(ctx context.Context, order *models.Order) error
	UpdateStatus(ctx context.Context, id uint, status models.OrderStatus) error
	Delete(ctx context.Context, id uint) error
}
