package services

import (
	"context"
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"storefront/internal/events"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/validation"
)

// Notifier is told when new outbox rows have been committed.
type Notifier interface {
	Notify()
}

// OrderService handles business logic related to orders.
type OrderService struct {
	store    *repositories.Store
	notifier Notifier
	validate *validatorv10.Validate
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewOrderService creates a new OrderService. notifier may be nil.
func NewOrderService(store *repositories.Store, notifier Notifier, validate *validatorv10.Validate, logger *zap.Logger) *OrderService {
	return &OrderService{
		store:    store,
		notifier: notifier,
		validate: validate,
		logger:   logger,
		tracer:   otel.Tracer("storefront/services"),
	}
}

// ListOrders retrieves all orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	return s.store.Orders.GetAll(ctx)
}

// GetOrder retrieves a single order with its items and their products.
func (s *OrderService) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	return s.store.Orders.GetByID(ctx, id)
}

// ListOrdersByCustomer retrieves a customer's orders, newest first.
func (s *OrderService) ListOrdersByCustomer(ctx context.Context, customerID uint) ([]models.Order, error) {
	return s.store.Orders.GetByCustomer(ctx, customerID)
}

// CreateOrder decrements inventory for every requested item, snapshots
// prices, persists the order with its items and queues the order.created
// event, all in one transaction. The first failing item aborts the call and
// no inventory changes survive.
func (s *OrderService) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (_ *models.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder", trace.WithAttributes(
		attribute.Int64("customer.id", int64(req.CustomerID)),
		attribute.Int("order.item_count", len(req.Items)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}

	var orderID uint
	err = s.store.WithTx(ctx, func(tx *repositories.Store) error {
		totalAmount := decimal.Zero
		items := make([]models.OrderItem, 0, len(req.Items))

		for _, item := range req.Items {
			product, err := tx.Products.DecreaseInventory(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			itemPrice := product.Price // price at the time of order creation
			items = append(items, models.OrderItem{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     itemPrice,
			})
			totalAmount = totalAmount.Add(itemPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		order := &models.Order{
			CustomerID:      req.CustomerID,
			TotalAmount:     totalAmount,
			Status:          models.OrderStatusPending,
			ShippingAddress: req.ShippingAddress,
			Items:           items,
		}
		if err := tx.Orders.Create(ctx, order); err != nil {
			return err
		}

		event, err := events.NewOrderCreatedOutbox(order)
		if err != nil {
			return err
		}
		if err := tx.Outbox.Create(ctx, event); err != nil {
			return err
		}
		orderID = order.ID
		return nil
	})
	if err != nil {
		s.logger.Info("order rejected", zap.Uint("customer_id", req.CustomerID), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order.id", int64(orderID)))
	s.logger.Info("order created", zap.Uint("order_id", orderID), zap.Uint("customer_id", req.CustomerID))
	if s.notifier != nil {
		s.notifier.Notify()
	}

	order, err := s.store.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload order %d: %w", orderID, err)
	}
	return order, nil
}

// UpdateOrderStatus overwrites the status of an order. Any status may follow any other.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id uint, req models.UpdateOrderStatusRequest) (*models.Order, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}
	if err := s.store.Orders.UpdateStatus(ctx, id, req.Status); err != nil {
		return nil, err
	}
	s.logger.Info("order status updated", zap.Uint("order_id", id), zap.String("status", string(req.Status)))
	return s.store.Orders.GetByID(ctx, id)
}

// DeleteOrder deletes an order and its items.
func (s *OrderService) DeleteOrder(ctx context.Context, id uint) error {
	return s.store.Orders.Delete(ctx, id)
}
