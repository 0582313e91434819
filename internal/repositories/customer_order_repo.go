package repositories

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/models"
)

// CustomerOrderRepository stores the customer service's order history.
type CustomerOrderRepository interface {
	// Record inserts the order unless one with the same OrderID exists; it
	// reports whether a row was written.
	Record(ctx context.Context, order *models.CustomerOrder) (bool, error)
	GetByCustomer(ctx context.Context, customerID uint) ([]models.CustomerOrder, error)
}

// GORMCustomerOrderRepository is a GORM implementation of CustomerOrderRepository.
type GORMCustomerOrderRepository struct {
	db *gorm.DB
}

// NewGORMCustomerOrderRepository creates a new instance of GORMCustomerOrderRepository.
func NewGORMCustomerOrderRepository(db *gorm.DB) *GORMCustomerOrderRepository {
	return &GORMCustomerOrderRepository{db: db}
}

func (r *GORMCustomerOrderRepository) Record(ctx context.Context, order *models.CustomerOrder) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(order)
	if res.Error != nil {
		return false, fmt.Errorf("failed to record customer order %d: %w", order.OrderID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *GORMCustomerOrderRepository) GetByCustomer(ctx context.Context, customerID uint) ([]models.CustomerOrder, error) {
	orders := []models.CustomerOrder{}
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC, id DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get orders of customer %d: %w", customerID, err)
	}
	return orders, nil
}
