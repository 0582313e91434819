package repositories

import (
	"context"

	"storefront/internal/models"
)

// CustomerRepository defines the interface for customer data access.
type CustomerRepository interface {
	GetAll(ctx context.Context) ([]models.Customer, error)
	GetByID(ctx context.Context, id uint) (*models.Customer, error)
	GetByEmail(ctx context.Context, email string) (*models.Customer, error)
	// Create fails with a ConflictError when the email is already registered.
	Create(ctx context.Context, customer *models.Customer) error
	// Update writes only the given columns, keyed by column name.
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	Delete(ctx context.Context, id uint) error
}
