package models

import "github.com/shopspring/decimal"

// OrderItemRequest is one requested line of a new order.
type OrderItemRequest struct {
	ProductID uint `json:"productId" validate:"required,gt=0"`
	Quantity  int  `json:"quantity" validate:"required,gt=0"`
}

// CreateOrderRequest is the payload for POST /orders.
type CreateOrderRequest struct {
	CustomerID      uint               `json:"customerId" validate:"required,gt=0"`
	Items           []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingAddress string             `json:"shippingAddress" validate:"omitempty,max=500"`
}

// UpdateOrderStatusRequest is the payload for PUT /orders/:id/status.
type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status" validate:"required,order_status"`
}

// CreateProductRequest is the payload for POST /products.
type CreateProductRequest struct {
	Name        string          `json:"name" validate:"required,min=1,max=255"`
	Description string          `json:"description" validate:"omitempty,max=2000"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	Inventory   int             `json:"inventory" validate:"gte=0"`
	ImageURL    string          `json:"imageUrl" validate:"omitempty,url"`
	IsActive    *bool           `json:"isActive"`
}

// UpdateProductRequest is the payload for PUT /products/:id. Nil fields are left unchanged.
type UpdateProductRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	Inventory   *int             `json:"inventory" validate:"omitempty,gte=0"`
	ImageURL    *string          `json:"imageUrl" validate:"omitempty,url"`
	IsActive    *bool            `json:"isActive"`
}

// CreateCustomerRequest is the payload for POST /customers.
type CreateCustomerRequest struct {
	FirstName   string `json:"firstName" validate:"required,max=100"`
	LastName    string `json:"lastName" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,email,max=255"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
	Address     string `json:"address" validate:"omitempty,max=500"`
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,max=50"`
}

// UpdateCustomerRequest is the payload for PUT /customers/:id. Email and
// password cannot be changed here; nil fields are left unchanged.
type UpdateCustomerRequest struct {
	FirstName   *string `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName    *string `json:"lastName" validate:"omitempty,min=1,max=100"`
	Address     *string `json:"address" validate:"omitempty,max=500"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,max=50"`
}
