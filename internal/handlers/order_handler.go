package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/services"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service *services.OrderService
	logger  *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the order routes with the Fiber app.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/", h.HandleGetOrders)
	orderRoutes.Get("/customer/:customerId", h.HandleGetOrdersByCustomer)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Put("/:id/status", h.HandleUpdateOrderStatus)
	orderRoutes.Delete("/:id", h.HandleDeleteOrder)
}

// HandleGetOrders retrieves all orders.
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	orders, err := h.service.ListOrders(c.UserContext())
	if err != nil {
		return respondError(c, h.logger, "Could not retrieve orders", err)
	}
	return c.JSON(orders)
}

// HandleGetOrderByID retrieves a single order by its ID.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.logger, "Invalid order ID", err)
	}
	order, err := h.service.GetOrder(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, "Could not retrieve order", err)
	}
	return c.JSON(order)
}

// HandleGetOrdersByCustomer retrieves a customer's orders, newest first.
func (h *OrderHandler) HandleGetOrdersByCustomer(c *fiber.Ctx) error {
	customerID, err := parseID(c, "customerId")
	if err != nil {
		return respondError(c, h.logger, "Invalid customer ID", err)
	}
	orders, err := h.service.ListOrdersByCustomer(c.UserContext(), customerID)
	if err != nil {
		return respondError(c, h.logger, "Could not retrieve orders", err)
	}
	return c.JSON(orders)
}

// HandleCreateOrder creates a new order.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req models.CreateOrderRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.logger, "Invalid request body", err)
	}

	createdOrder, err := h.service.CreateOrder(c.UserContext(), req)
	if err != nil {
		return respondError(c, h.logger, "Could not create order", err)
	}
	return c.Status(fiber.StatusCreated).JSON(createdOrder)
}

// HandleUpdateOrderStatus updates the status of an existing order.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.logger, "Invalid order ID", err)
	}
	var req models.UpdateOrderStatusRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.logger, "Invalid request body for status update", err)
	}

	order, err := h.service.UpdateOrderStatus(c.UserContext(), id, req)
	if err != nil {
		return respondError(c, h.logger, "Could not update order status", err)
	}
	return c.JSON(order)
}

// HandleDeleteOrder deletes an order and its items.
func (h *OrderHandler) HandleDeleteOrder(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.logger, "Invalid order ID", err)
	}
	if err := h.service.DeleteOrder(c.UserContext(), id); err != nil {
		return respondError(c, h.logger, "Could not delete order", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
