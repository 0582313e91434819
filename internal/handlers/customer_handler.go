package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/services"
)

// CustomerHandler handles HTTP requests for customers.
type CustomerHandler struct {
	service *services.CustomerService
	logger  *zap.Logger
}

// NewCustomerHandler creates a new CustomerHandler.
func NewCustomerHandler(service *services.CustomerService, logger *zap.Logger) *CustomerHandler {
	return &CustomerHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the customer routes with the Fiber app.
func (h *CustomerHandler) RegisterRoutes(router fiber.Router) {
	customerRoutes := router.Group("/customers")
	customerRoutes.Get("/", h.HandleGetCustomers)
	customerRoutes.Get("/:id", h.HandleGetCustomerByID)
	customerRoutes.Post("/", h.HandleCreateCustomer)
	customerRoutes.Put("/:id", h.HandleUpdateCustomer)
	customerRoutes.Delete("/:id", h.HandleDeleteCustomer)
}

// HandleGetCustomers lists all customers.
func (h *CustomerHandler) HandleGetCustomers(c *fiber.Ctx) error {
	customers, err := h.service.ListCustomers(c.UserContext())
	if err != nil {
		return respondError(c, h.logger, "Could not retrieve customers", err)
	}
	return c.JSON(customers)
}

// HandleGetCustomerByID retrieves a single customer by ID.
func (h *CustomerHandler) HandleGetCustomerByID(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.logger, "Invalid customer ID", err)
	}
	customer, err := h.service.GetCustomer(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, "Could not retrieve customer", err)
	}
	return c.JSON(customer)
}

// HandleCreateCustomer registers a new customer.
func (h *CustomerHandler) HandleCreateCustomer(c *fiber.Ctx) error {
	var req models.CreateCustomerRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.logger, "Invalid request body", err)
	}
	customer, err := h.service.CreateCustomer(c.UserContext(), req)
	if err != nil {
		return respondError(c, h.logger, "Could not create customer", err)
	}
	return c.Status(fiber.StatusCreated).JSON(customer)
}

// HandleUpdateCustomer applies a partial update to a customer.
func (h *CustomerHandler) HandleUpdateCustomer(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.logger, "Invalid customer ID", err)
	}
	var req models.UpdateCustomerRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.logger, "Invalid request body", err)
	}
	customer, err := h.service.UpdateCustomer(c.UserContext(), id, req)
	if err != nil {
		return respondError(c, h.logger, "Could not update customer", err)
	}
	return c.JSON(customer)
}

// HandleDeleteCustomer deletes a customer.
func (h *CustomerHandler) HandleDeleteCustomer(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.logger, "Invalid customer ID", err)
	}
	if err := h.service.DeleteCustomer(c.UserContext(), id); err != nil {
		return respondError(c, h.logger, "Could not delete customer", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
