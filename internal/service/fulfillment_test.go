package service_test

import (
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/nikolayk812/fulfillment/internal/domain"
	"github.com/nikolayk812/fulfillment/internal/notifier"
	"github.com/nikolayk812/fulfillment/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

func newFulfillment(t *testing.T, store *memStore) *service.Fulfillment {
	t.Helper()

	s, err := service.NewFulfillment(&memTxManager{store: store}, notifier.DefaultTopics(), nil, nil)
	require.NoError(t, err)

	return s
}

func seedProduct(t *testing.T, store *memStore, price string, quantity int32) domain.Product {
	t.Helper()

	p := domain.Product{
		ID:       uuid.New(),
		Name:     gofakeit.ProductName(),
		Price:    domain.Money{Amount: decimal.RequireFromString(price), Currency: currency.MustParseISO("EUR")},
		Quantity: quantity,
		Active:   true,
	}
	store.products[p.ID] = p

	return p
}

func TestCreateOrder(t *testing.T) {
	store := newMemStore()
	s := newFulfillment(t, store)

	productA := seedProduct(t, store, "25.00", 10)
	productB := seedProduct(t, store, "9.99", 5)

	order, err := s.CreateOrder(t.Context(), service.CreateOrderRequest{
		CustomerID:      42,
		ShippingAddress: gofakeit.Address().Address,
		Lines: []service.CreateOrderLine{
			{ProductID: productA.ID, Quantity: 2},
			{ProductID: productB.ID, Quantity: 3},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Contains(t, order.OrderNumber, "ORD-")

	// unit prices snapshotted at reservation time
	require.Len(t, order.Lines, 2)
	assert.True(t, order.Lines[0].UnitPrice.Amount.Equal(productA.Price.Amount))
	assert.True(t, order.Lines[1].UnitPrice.Amount.Equal(productB.Price.Amount))
	assert.Equal(t, "79.97", order.Total.Amount.StringFixed(2))

	// stock decremented
	assert.Equal(t, int32(8), store.products[productA.ID].Quantity)
	assert.Equal(t, int32(2), store.products[productB.ID].Quantity)

	// order persisted
	persisted, ok := store.orders[order.ID]
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusPending, persisted.Status)

	// one creation event plus a stock event per line, all still pending:
	// delivery is the relay's job, creation never depends on the broker
	topics := store.pendingTopics()
	assert.Equal(t, []string{
		domain.EventOrderCreated,
		domain.EventProductStockUpdate,
		domain.EventProductStockUpdate,
	}, topics)
}

// One line cannot be covered: the whole order is rejected and stock reserved
// for earlier lines is handed back.
func TestCreateOrderInsufficientStock(t *testing.T) {
	store := newMemStore()
	s := newFulfillment(t, store)

	productA := seedProduct(t, store, "25.00", 10)
	productB := seedProduct(t, store, "9.99", 1)

	_, err := s.CreateOrder(t.Context(), service.CreateOrderRequest{
		CustomerID:      42,
		ShippingAddress: gofakeit.Address().Address,
		Lines: []service.CreateOrderLine{
			{ProductID: productA.ID, Quantity: 2},
			{ProductID: productB.ID, Quantity: 5},
		},
	})

	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.ErrorIs(t, err, domain.ErrBusinessRule)
	assert.Equal(t, productB.ID, stockErr.ProductID)
	assert.Equal(t, int32(5), stockErr.Quantity)

	// compensation returned the reserved prefix
	assert.Equal(t, int32(10), store.products[productA.ID].Quantity)
	assert.Equal(t, int32(1), store.products[productB.ID].Quantity)
	assert.Equal(t, []restoreCall{{ProductID: productA.ID, Quantity: 2}}, store.restores)

	// nothing persisted, nothing emitted
	assert.Empty(t, store.orders)
	assert.Empty(t, store.outbox)
}

func TestCreateOrderPersistFailureCompensates(t *testing.T) {
	store := newMemStore()
	s := newFulfillment(t, store)

	product := seedProduct(t, store, "25.00", 10)
	store.insertOrderErr = assert.AnError

	_, err := s.CreateOrder(t.Context(), service.CreateOrderRequest{
		CustomerID:      42,
		ShippingAddress: gofakeit.Address().Address,
		Lines:           []service.CreateOrderLine{{ProductID: product.ID, Quantity: 4}},
	})
	require.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, int32(10), store.products[product.ID].Quantity)
	assert.Empty(t, store.orders)
	assert.Empty(t, store.outbox)
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	store := newMemStore()
	s := newFulfillment(t, store)

	_, err := s.CreateOrder(t.Context(), service.CreateOrderRequest{
		CustomerID:      42,
		ShippingAddress: gofakeit.Address().Address,
		Lines:           []service.CreateOrderLine{{ProductID: uuid.New(), Quantity: 1}},
	})
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestCreateOrderInvalidRequest(t *testing.T) {
	store := newMemStore()
	s := newFulfillment(t, store)

	product := seedProduct(t, store, "25.00", 10)

	_, err := s.CreateOrder(t.Context(), service.CreateOrderRequest{
		CustomerID:      0,
		ShippingAddress: gofakeit.Address().Address,
		Lines:           []service.CreateOrderLine{{ProductID: product.ID, Quantity: 1}},
	})
	require.Error(t, err)

	// validation runs before any reservation
	assert.Equal(t, int32(10), store.products[product.ID].Quantity)
	assert.Empty(t, store.restores)
}

func TestCancelOrder(t *testing.T) {
	store := newMemStore()
	s := newFulfillment(t, store)

	product := seedProduct(t, store, "25.00", 10)

	order, err := s.CreateOrder(t.Context(), service.CreateOrderRequest{
		CustomerID:      42,
		ShippingAddress: gofakeit.Address().Address,
		Lines:           []service.CreateOrderLine{{ProductID: product.ID, Quantity: 4}},
	})
	require.NoError(t, err)
	require.Equal(t, int32(6), store.products[product.ID].Quantity)

	cancelled, err := s.CancelOrder(t.Context(), order.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, domain.OrderStatusCancelled, store.orders[order.ID].Status)
	assert.Equal(t, int32(10), store.products[product.ID].Quantity)

	topics := store.pendingTopics()
	assert.Contains(t, topics, domain.EventOrderCancelled)
}

// Two cancellations racing on the same order: both read a pending order, but
// the conditional status write lets only one transaction commit. Stock comes
// back exactly once.
func TestCancelOrderConcurrentDuplicate(t *testing.T) {
	store := newMemStore()
	s := newFulfillment(t, store)

	product := seedProduct(t, store, "25.00", 10)

	order, err := s.CreateOrder(t.Context(), service.CreateOrderRequest{
		CustomerID:      42,
		ShippingAddress: gofakeit.Address().Address,
		Lines:           []service.CreateOrderLine{{ProductID: product.ID, Quantity: 4}},
	})
	require.NoError(t, err)
	require.Equal(t, int32(6), store.products[product.ID].Quantity)

	// hold both goroutines at the order read so each sees a pending order
	// before either writes
	var barrier sync.WaitGroup
	barrier.Add(2)
	store.onGetOrder = func() {
		barrier.Done()
		barrier.Wait()
	}

	errs := make(chan error, 2)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CancelOrder(t.Context(), order.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, conflicted int
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, domain.ErrConcurrencyConflict)
		conflicted++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	// stock restored exactly once, back to the pre-order level
	assert.Equal(t, int32(10), store.products[product.ID].Quantity)
	assert.Equal(t, []restoreCall{{ProductID: product.ID, Quantity: 4}}, store.restores)
	assert.Equal(t, domain.OrderStatusCancelled, store.orders[order.ID].Status)
}

func TestCancelOrderShippedRejected(t *testing.T) {
	store := newMemStore()
	s := newFulfillment(t, store)

	product := seedProduct(t, store, "25.00", 10)

	order, err := s.CreateOrder(t.Context(), service.CreateOrderRequest{
		CustomerID:      42,
		ShippingAddress: gofakeit.Address().Address,
		Lines:           []service.CreateOrderLine{{ProductID: product.ID, Quantity: 4}},
	})
	require.NoError(t, err)

	o := store.orders[order.ID]
	o.Status = domain.OrderStatusShipped
	store.orders[order.ID] = o

	_, err = s.CancelOrder(t.Context(), order.ID)
	require.ErrorIs(t, err, domain.ErrBusinessRule)

	// no stock movement on a rejected cancellation
	assert.Equal(t, domain.OrderStatusShipped, store.orders[order.ID].Status)
	assert.Equal(t, int32(6), store.products[product.ID].Quantity)
}

func TestCancelOrderNotFound(t *testing.T) {
	store := newMemStore()
	s := newFulfillment(t, store)

	_, err := s.CancelOrder(t.Context(), uuid.New())
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestAdvanceOrder(t *testing.T) {
	store := newMemStore()
	s := newFulfillment(t, store)

	product := seedProduct(t, store, "25.00", 10)

	order, err := s.CreateOrder(t.Context(), service.CreateOrderRequest{
		CustomerID:      42,
		ShippingAddress: gofakeit.Address().Address,
		Lines:           []service.CreateOrderLine{{ProductID: product.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	t.Run("legal transition", func(t *testing.T) {
		advanced, err := s.AdvanceOrder(t.Context(), order.ID, domain.OrderStatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusConfirmed, advanced.Status)
		assert.Equal(t, domain.OrderStatusConfirmed, store.orders[order.ID].Status)
	})

	t.Run("skipping a stage: rejected", func(t *testing.T) {
		_, err := s.AdvanceOrder(t.Context(), order.ID, domain.OrderStatusDelivered)

		var transitionErr *domain.TransitionError
		require.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, domain.OrderStatusConfirmed, store.orders[order.ID].Status)
	})

	t.Run("cancellation must use the cancel operation", func(t *testing.T) {
		_, err := s.AdvanceOrder(t.Context(), order.ID, domain.OrderStatusCancelled)

		var ruleErr *domain.RuleError
		require.ErrorAs(t, err, &ruleErr)
	})

	t.Run("completion emits its own event", func(t *testing.T) {
		for _, next := range []domain.OrderStatus{
			domain.OrderStatusProcessing,
			domain.OrderStatusShipped,
			domain.OrderStatusDelivered,
			domain.OrderStatusCompleted,
		} {
			_, err := s.AdvanceOrder(t.Context(), order.ID, next)
			require.NoError(t, err)
		}

		topics := store.pendingTopics()
		assert.Contains(t, topics, domain.EventOrderCompleted)
	})
}
