package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/services"
)

// CustomerOrderHandler serves the customer service's order history.
type CustomerOrderHandler struct {
	service *services.CustomerOrderService
	logger  *zap.Logger
}

func NewCustomerOrderHandler(service *services.CustomerOrderService, logger *zap.Logger) *CustomerOrderHandler {
	return &CustomerOrderHandler{service: service, logger: logger}
}

func (h *CustomerOrderHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/customers/:id/orders", h.HandleGetCustomerOrders)
}

// HandleGetCustomerOrders lists the orders recorded for a customer, newest first.
func (h *CustomerOrderHandler) HandleGetCustomerOrders(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.logger, "Invalid customer ID", err)
	}
	orders, err := h.service.ListCustomerOrders(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, "Could not retrieve customer orders", err)
	}
	return c.JSON(orders)
}
