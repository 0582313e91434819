package services_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"storefront/internal/apperrors"
	"storefront/internal/events"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"
	"storefront/internal/testutil"
	"storefront/internal/validation"
)

type countingNotifier struct {
	calls atomic.Int32
}

func (n *countingNotifier) Notify() { n.calls.Add(1) }

type orderEnv struct {
	ctx      context.Context
	store    *repositories.Store
	service  *services.OrderService
	notifier *countingNotifier
}

func newOrderEnv(t *testing.T) *orderEnv {
	t.Helper()
	store := repositories.NewStore(testutil.NewDB(t))
	notifier := &countingNotifier{}
	return &orderEnv{
		ctx:      context.Background(),
		store:    store,
		service:  services.NewOrderService(store, notifier, validation.New(), zaptest.NewLogger(t)),
		notifier: notifier,
	}
}

func (e *orderEnv) product(t *testing.T, name, price string, inventory int) *models.Product {
	t.Helper()
	p := &models.Product{Name: name, Description: name, Price: decimal.RequireFromString(price), Inventory: inventory, IsActive: true}
	require.NoError(t, e.store.Products.Create(e.ctx, p))
	return p
}

func (e *orderEnv) inventory(t *testing.T, id uint) int {
	t.Helper()
	p, err := e.store.Products.GetByID(e.ctx, id)
	require.NoError(t, err)
	return p.Inventory
}

func assertTotalMatchesItems(t *testing.T, order *models.Order) {
	t.Helper()
	assert.True(t, order.TotalAmount.Equal(order.ItemsTotal()), "total %s != items %s", order.TotalAmount, order.ItemsTotal())
}

func TestCreateOrder_HappyPath(t *testing.T) {
	env := newOrderEnv(t)
	a := env.product(t, "A", "10.00", 5)

	order, err := env.service.CreateOrder(env.ctx, models.CreateOrderRequest{
		CustomerID:      7,
		Items:           []models.OrderItemRequest{{ProductID: a.ID, Quantity: 2}},
		ShippingAddress: "1 Main St",
	})
	require.NoError(t, err)

	assert.NotZero(t, order.ID)
	assert.Equal(t, uint(7), order.CustomerID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "1 Main St", order.ShippingAddress)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("20.00")))
	require.Len(t, order.Items, 1)
	assert.Equal(t, a.ID, order.Items[0].ProductID)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.True(t, order.Items[0].Price.Equal(decimal.RequireFromString("10.00")))
	require.NotNil(t, order.Items[0].Product)
	assert.Equal(t, "A", order.Items[0].Product.Name)
	assertTotalMatchesItems(t, order)

	assert.Equal(t, 3, env.inventory(t, a.ID))
	assert.EqualValues(t, 1, env.notifier.calls.Load())
}

func TestCreateOrder_QueuesOrderCreatedEvent(t *testing.T) {
	env := newOrderEnv(t)
	a := env.product(t, "A", "10.00", 5)

	order, err := env.service.CreateOrder(env.ctx, models.CreateOrderRequest{
		CustomerID: 7,
		Items:      []models.OrderItemRequest{{ProductID: a.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	due, err := env.store.Outbox.FetchDue(env.ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, order.ID, due[0].AggregateID)
	assert.Equal(t, events.PatternOrderCreated, due[0].EventType)

	decoded, err := events.Decode(due[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, events.PatternOrderCreated, decoded.Pattern)
	assert.Contains(t, string(decoded.Data), `"customerId":7`)
	assert.Contains(t, string(decoded.Data), `"totalAmount":"20"`)
}

func TestCreateOrder_MultiItem(t *testing.T) {
	env := newOrderEnv(t)
	a := env.product(t, "A", "10", 5)
	b := env.product(t, "B", "25", 2)

	order, err := env.service.CreateOrder(env.ctx, models.CreateOrderRequest{
		CustomerID: 1,
		Items:      []models.OrderItemRequest{{ProductID: a.ID, Quantity: 2}, {ProductID: b.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(45)))
	require.Len(t, order.Items, 2)
	assert.Equal(t, a.ID, order.Items[0].ProductID)
	assert.Equal(t, b.ID, order.Items[1].ProductID)
	assertTotalMatchesItems(t, order)
	assert.Equal(t, 3, env.inventory(t, a.ID))
	assert.Equal(t, 1, env.inventory(t, b.ID))
}

// A failing item rolls back inventory already taken for earlier items.
func TestCreateOrder_PartialFailureRollsBack(t *testing.T) {
	env := newOrderEnv(t)
	a := env.product(t, "A", "10", 5)
	b := env.product(t, "B", "25", 0)

	_, err := env.service.CreateOrder(env.ctx, models.CreateOrderRequest{
		CustomerID: 1,
		Items:      []models.OrderItemRequest{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, apperrors.ErrInsufficientInventory)

	var insufficient *apperrors.InsufficientInventoryError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, b.ID, insufficient.ProductID)
	assert.Equal(t, "B", insufficient.ProductName)

	assert.Equal(t, 5, env.inventory(t, a.ID))
	assert.Equal(t, 0, env.inventory(t, b.ID))

	orders, err := env.service.ListOrders(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
	pending, err := env.store.Outbox.CountPending(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
	assert.Zero(t, env.notifier.calls.Load())
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	env := newOrderEnv(t)
	a := env.product(t, "A", "10", 3)

	_, err := env.service.CreateOrder(env.ctx, models.CreateOrderRequest{
		CustomerID: 1,
		Items:      []models.OrderItemRequest{{ProductID: a.ID, Quantity: 4}},
	})
	require.ErrorIs(t, err, apperrors.ErrInsufficientInventory)
	assert.Contains(t, err.Error(), "requested: 4, available: 3")
	assert.Equal(t, 3, env.inventory(t, a.ID))
}

func TestCreateOrder_FirstFailureWins(t *testing.T) {
	env := newOrderEnv(t)
	a := env.product(t, "A", "10", 0)

	_, err := env.service.CreateOrder(env.ctx, models.CreateOrderRequest{
		CustomerID: 1,
		Items:      []models.OrderItemRequest{{ProductID: 999, Quantity: 1}, {ProductID: a.ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NotErrorIs(t, err, apperrors.ErrInsufficientInventory)
}

func TestCreateOrder_Validation(t *testing.T) {
	env := newOrderEnv(t)
	a := env.product(t, "A", "10", 5)

	cases := []struct {
		name  string
		req   models.CreateOrderRequest
		field string
	}{
		{"no items", models.CreateOrderRequest{CustomerID: 1}, "items"},
		{"zero quantity", models.CreateOrderRequest{CustomerID: 1, Items: []models.OrderItemRequest{{ProductID: a.ID, Quantity: 0}}}, "items[0].quantity"},
		{"negative quantity", models.CreateOrderRequest{CustomerID: 1, Items: []models.OrderItemRequest{{ProductID: a.ID, Quantity: -1}}}, "items[0].quantity"},
		{"missing customer", models.CreateOrderRequest{Items: []models.OrderItemRequest{{ProductID: a.ID, Quantity: 1}}}, "customerId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.service.CreateOrder(env.ctx, tc.req)
			require.ErrorIs(t, err, apperrors.ErrValidation)
			var ve *apperrors.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, ve.Fields, tc.field)
		})
	}
	assert.Equal(t, 5, env.inventory(t, a.ID))
}

func TestCreateOrder_PriceSnapshotIsImmutable(t *testing.T) {
	env := newOrderEnv(t)
	a := env.product(t, "A", "10.00", 5)

	order, err := env.service.CreateOrder(env.ctx, models.CreateOrderRequest{
		CustomerID: 1,
		Items:      []models.OrderItemRequest{{ProductID: a.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	products := services.NewProductService(env.store.Products, validation.New())
	newPrice := decimal.RequireFromString("99.99")
	_, err = products.UpdateProduct(env.ctx, a.ID, models.UpdateProductRequest{Price: &newPrice})
	require.NoError(t, err)

	reloaded, err := env.service.GetOrder(env.ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Items[0].Price.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, reloaded.TotalAmount.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, reloaded.Items[0].Product.Price.Equal(newPrice))
}

func TestGetOrder_IsIdempotent(t *testing.T) {
	env := newOrderEnv(t)
	a := env.product(t, "A", "10", 5)
	order, err := env.service.CreateOrder(env.ctx, models.CreateOrderRequest{
		CustomerID: 1,
		Items:      []models.OrderItemRequest{{ProductID: a.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	first, err := env.service.GetOrder(env.ctx, order.ID)
	require.NoError(t, err)
	second, err := env.service.GetOrder(env.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = env.service.GetOrder(env.ctx, 999)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListOrdersByCustomer(t *testing.T) {
	env := newOrderEnv(t)
	a := env.product(t, "A", "10", 10)

	var ids []uint
	for i := 0; i < 3; i++ {
		order, err := env.service.CreateOrder(env.ctx, models.CreateOrderRequest{
			CustomerID: 5,
			Items:      []models.OrderItemRequest{{ProductID: a.ID, Quantity: 1}},
		})
		require.NoError(t, err)
		ids = append(ids, order.ID)
	}

	orders, err := env.service.ListOrdersByCustomer(env.ctx, 5)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, ids[2], orders[0].ID)
	assert.Equal(t, ids[0], orders[2].ID)
	require.Len(t, orders[0].Items, 1)

	orders, err = env.service.ListOrdersByCustomer(env.ctx, 6)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestUpdateOrderStatus(t *testing.T) {
	env := newOrderEnv(t)
	a := env.product(t, "A", "10", 5)
	order, err := env.service.CreateOrder(env.ctx, models.CreateOrderRequest{
		CustomerID: 1,
		Items:      []models.OrderItemRequest{{ProductID: a.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	updated, err := env.service.UpdateOrderStatus(env.ctx, order.ID, models.UpdateOrderStatusRequest{Status: models.OrderStatusShipped})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, updated.Status)

	reloaded, err := env.service.GetOrder(env.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, reloaded.Status)

	// No transition is rejected.
	for _, status := range []models.OrderStatus{models.OrderStatusDelivered, models.OrderStatusPending, models.OrderStatusCancelled, models.OrderStatusProcessing} {
		updated, err = env.service.UpdateOrderStatus(env.ctx, order.ID, models.UpdateOrderStatusRequest{Status: status})
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)
	}

	_, err = env.service.UpdateOrderStatus(env.ctx, order.ID, models.UpdateOrderStatusRequest{Status: "lost"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = env.service.UpdateOrderStatus(env.ctx, 999, models.UpdateOrderStatusRequest{Status: models.OrderStatusShipped})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeleteOrder(t *testing.T) {
	env := newOrderEnv(t)
	a := env.product(t, "A", "10", 5)
	order, err := env.service.CreateOrder(env.ctx, models.CreateOrderRequest{
		CustomerID: 1,
		Items:      []models.OrderItemRequest{{ProductID: a.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, env.service.DeleteOrder(env.ctx, order.ID))
	_, err = env.service.GetOrder(env.ctx, order.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, env.service.DeleteOrder(env.ctx, order.ID), apperrors.ErrNotFound)

	// Deleting an order does not restock.
	assert.Equal(t, 4, env.inventory(t, a.ID))
}

func TestCreateOrder_ConcurrentOrdersNeverOversell(t *testing.T) {
	env := newOrderEnv(t)
	a := env.product(t, "A", "10", 5)

	const buyers = 10
	var (
		wg           sync.WaitGroup
		succeeded    atomic.Int32
		insufficient atomic.Int32
		unexpected   = make(chan error, buyers)
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(customer uint) {
			defer wg.Done()
			_, err := env.service.CreateOrder(env.ctx, models.CreateOrderRequest{
				CustomerID: customer,
				Items:      []models.OrderItemRequest{{ProductID: a.ID, Quantity: 1}},
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, apperrors.ErrInsufficientInventory):
				insufficient.Add(1)
			default:
				unexpected <- err
			}
		}(uint(i + 1))
	}
	wg.Wait()
	close(unexpected)

	for err := range unexpected {
		t.Errorf("unexpected error: %v", err)
	}
	assert.EqualValues(t, 5, succeeded.Load())
	assert.EqualValues(t, 5, insufficient.Load())
	assert.Equal(t, 0, env.inventory(t, a.ID))

	orders, err := env.service.ListOrders(env.ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 5)
	for i := range orders {
		assertTotalMatchesItems(t, &orders[i])
	}
}

func TestCreateOrder_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	env := newOrderEnv(t)
	a := env.product(t, "A", "10", 1)

	_, err := env.service.CreateOrder(env.ctx, models.CreateOrderRequest{CustomerID: 1, Items: []models.OrderItemRequest{{ProductID: a.ID, Quantity: 1}}})
	require.NoError(t, err)
	_, err = env.service.CreateOrder(env.ctx, models.CreateOrderRequest{CustomerID: 1, Items: []models.OrderItemRequest{{ProductID: a.ID, Quantity: 1}}})
	require.Error(t, err)

	var spans []sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() == "OrderService.CreateOrder" {
			spans = append(spans, s)
		}
	}
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

// interleavingProductRepository places an order once the catalog edit has
// touched the store, before the edit's write lands.
type interleavingProductRepository struct {
	repositories.ProductRepository
	once  sync.Once
	order func()
}

func (r *interleavingProductRepository) GetByID(ctx context.Context, id uint) (*models.Product, error) {
	p, err := r.ProductRepository.GetByID(ctx, id)
	r.once.Do(r.order)
	return p, err
}

func (r *interleavingProductRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	r.once.Do(r.order)
	return r.ProductRepository.Update(ctx, id, fields)
}

func TestUpdateProduct_KeepsConcurrentInventoryDecrement(t *testing.T) {
	e := newOrderEnv(t)
	p := e.product(t, "Widget", "10.00", 5)

	repo := &interleavingProductRepository{
		ProductRepository: e.store.Products,
		order: func() {
			_, err := e.service.CreateOrder(e.ctx, models.CreateOrderRequest{
				CustomerID: 1,
				Items:      []models.OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
			})
			require.NoError(t, err)
		},
	}
	products := services.NewProductService(repo, validation.New())

	price := decimal.RequireFromString("12.00")
	updated, err := products.UpdateProduct(e.ctx, p.ID, models.UpdateProductRequest{Price: &price})
	require.NoError(t, err)

	assert.True(t, updated.Price.Equal(price))
	assert.Equal(t, 4, updated.Inventory)
	assert.Equal(t, 4, e.inventory(t, p.ID))
}
