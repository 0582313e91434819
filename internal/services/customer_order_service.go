package services

import (
	"context"

	"go.uber.org/zap"

	"storefront/internal/apperrors"
	"storefront/internal/events"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

// CustomerOrderService maintains the customer service's view of placed orders.
type CustomerOrderService struct {
	repo      repositories.CustomerOrderRepository
	customers repositories.CustomerRepository
	logger    *zap.Logger
}

// NewCustomerOrderService creates a new CustomerOrderService.
func NewCustomerOrderService(repo repositories.CustomerOrderRepository, customers repositories.CustomerRepository, logger *zap.Logger) *CustomerOrderService {
	return &CustomerOrderService{repo: repo, customers: customers, logger: logger}
}

// RecordOrderCreated stores the order from an order.created event. Redelivered
// events for an already recorded order are ignored. An event for a customer
// that does not exist fails with a NotFoundError.
func (s *CustomerOrderService) RecordOrderCreated(ctx context.Context, event events.OrderCreatedEvent) error {
	fields := map[string]string{}
	if event.ID == 0 {
		fields["id"] = "is required"
	}
	if event.CustomerID == 0 {
		fields["customerId"] = "is required"
	}
	if len(fields) > 0 {
		return &apperrors.ValidationError{Fields: fields}
	}

	if _, err := s.customers.GetByID(ctx, event.CustomerID); err != nil {
		return err
	}

	status := event.Status
	if status == "" {
		status = models.OrderStatusPending
	}
	record := &models.CustomerOrder{
		OrderID:     event.ID,
		CustomerID:  event.CustomerID,
		TotalAmount: event.TotalAmount,
		Status:      status,
		CreatedAt:   event.CreatedAt,
	}
	inserted, err := s.repo.Record(ctx, record)
	if err != nil {
		return err
	}
	if !inserted {
		s.logger.Info("duplicate order.created ignored", zap.Uint("order_id", event.ID))
		return nil
	}
	s.logger.Info("customer order recorded", zap.Uint("order_id", event.ID), zap.Uint("customer_id", event.CustomerID))
	return nil
}

// ListCustomerOrders returns a customer's recorded orders, newest first.
func (s *CustomerOrderService) ListCustomerOrders(ctx context.Context, customerID uint) ([]models.CustomerOrder, error) {
	if _, err := s.customers.GetByID(ctx, customerID); err != nil {
		return nil, err
	}
	return s.repo.GetByCustomer(ctx, customerID)
}
