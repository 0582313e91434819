// Package events defines the order.created payload, its wire envelope and
// the Publisher contract implemented by each broker transport.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/internal/models"
)

// PatternOrderCreated names the event published after an order is committed.
const PatternOrderCreated = "order.created"

// OrderCreatedItem is one line of an OrderCreatedEvent.
type OrderCreatedItem struct {
	ProductID uint            `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderCreatedEvent is the summary of a newly created order sent to consumers.
type OrderCreatedEvent struct {
	ID          uint               `json:"id"`
	CustomerID  uint               `json:"customerId"`
	TotalAmount decimal.Decimal    `json:"totalAmount"`
	Status      models.OrderStatus `json:"status"`
	Items       []OrderCreatedItem `json:"items"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// NewOrderCreatedEvent summarizes order.
func NewOrderCreatedEvent(order *models.Order) OrderCreatedEvent {
	items := make([]OrderCreatedItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderCreatedItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return OrderCreatedEvent{
		ID:          order.ID,
		CustomerID:  order.CustomerID,
		TotalAmount: order.TotalAmount,
		Status:      order.Status,
		Items:       items,
		CreatedAt:   order.CreatedAt,
	}
}

// Envelope frames every message body as {"pattern": ..., "data": ...}.
type Envelope struct {
	Pattern string          `json:"pattern"`
	Data    json.RawMessage `json:"data"`
}

// Encode wraps data in an Envelope for pattern.
func Encode(pattern string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", pattern, err)
	}
	body, err := json.Marshal(Envelope{Pattern: pattern, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", pattern, err)
	}
	return body, nil
}

// Decode parses a message body into its Envelope.
func Decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Pattern == "" {
		return Envelope{}, fmt.Errorf("failed to decode envelope: missing pattern")
	}
	return env, nil
}

// NewOrderCreatedOutbox builds the outbox row that carries the order.created
// event for order.
func NewOrderCreatedOutbox(order *models.Order) (*models.OutboxEvent, error) {
	body, err := Encode(PatternOrderCreated, NewOrderCreatedEvent(order))
	if err != nil {
		return nil, err
	}
	return &models.OutboxEvent{
		EventID:     uuid.NewString(),
		AggregateID: order.ID,
		EventType:   PatternOrderCreated,
		Payload:     body,
		Status:      models.OutboxStatusPending,
	}, nil
}

// Message is a transport-neutral broker message.
type Message struct {
	ID      string
	Type    string
	Key     string
	Body    []byte
	Headers map[string]string
}

// MessageFromOutbox turns an outbox row into a Message keyed by its aggregate.
func MessageFromOutbox(event models.OutboxEvent, headers map[string]string) Message {
	return Message{
		ID:      event.EventID,
		Type:    event.EventType,
		Key:     strconv.FormatUint(uint64(event.AggregateID), 10),
		Body:    event.Payload,
		Headers: headers,
	}
}

// Publisher hands messages to a broker. Publish returns once the broker has
// accepted the message or with an error; it never retries on its own.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// HandlerFunc processes one consumed message body. A non-nil error asks the
// transport to redeliver the message.
type HandlerFunc func(ctx context.Context, body []byte, headers map[string]string) error
