package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerOrder is the customer service's record of an order placed by one of
// its customers, built from order.created events.
type CustomerOrder struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	OrderID     uint            `json:"orderId" gorm:"not null;uniqueIndex"` // ID from the order service
	CustomerID  uint            `json:"customerId" gorm:"not null;index"`
	TotalAmount decimal.Decimal `json:"totalAmount" gorm:"type:decimal(10,2);not null"`
	Status      OrderStatus     `json:"status" gorm:"type:varchar(20);not null;default:pending"`
	CreatedAt   time.Time       `json:"createdAt"`
}
