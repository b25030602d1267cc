package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/fulfillment/internal/domain"
	"github.com/nikolayk812/fulfillment/internal/port"
)

// memStore is an in-memory port.Store shared by the fake repositories, good
// enough to exercise orchestration logic without a database.
type memStore struct {
	mu sync.Mutex

	products map[uuid.UUID]domain.Product
	orders   map[uuid.UUID]domain.Order
	payments map[uuid.UUID]domain.Payment
	outbox   []domain.OutboxRecord

	nextOutboxID int64

	// failure hooks
	reserveErr      map[uuid.UUID]error
	updateConflicts map[uuid.UUID]int
	insertOrderErr  error

	// onGetOrder runs outside the store lock on every order read, useful as
	// a rendezvous point in concurrency tests.
	onGetOrder func()

	restores []restoreCall
}

type restoreCall struct {
	ProductID uuid.UUID
	Quantity  int32
}

func newMemStore() *memStore {
	return &memStore{
		products:        make(map[uuid.UUID]domain.Product),
		orders:          make(map[uuid.UUID]domain.Order),
		payments:        make(map[uuid.UUID]domain.Payment),
		reserveErr:      make(map[uuid.UUID]error),
		updateConflicts: make(map[uuid.UUID]int),
	}
}

func (m *memStore) Products() port.ProductRepository { return &memProducts{m} }
func (m *memStore) Orders() port.OrderRepository     { return &memOrders{m} }
func (m *memStore) Payments() port.PaymentRepository { return &memPayments{m} }
func (m *memStore) Outbox() port.OutboxRepository    { return &memOutbox{m} }

func (m *memStore) pendingTopics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var topics []string
	for _, rec := range m.outbox {
		if rec.SentAt == nil {
			topics = append(topics, rec.Topic)
		}
	}
	return topics
}

// memTxManager runs InTx against a snapshot-protected store: on error every
// map is restored, mirroring a rolled-back transaction. Transactions are
// serialized by txMu the way competing writers serialize on row locks.
type memTxManager struct {
	store *memStore
	txMu  sync.Mutex
}

func (t *memTxManager) Store() port.Store { return t.store }

func (t *memTxManager) InTx(_ context.Context, fn func(s port.Store) error) error {
	t.txMu.Lock()
	defer t.txMu.Unlock()

	m := t.store

	m.mu.Lock()
	products := cloneMap(m.products)
	orders := cloneMap(m.orders)
	payments := cloneMap(m.payments)
	outbox := append([]domain.OutboxRecord(nil), m.outbox...)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.products = products
		m.orders = orders
		m.payments = payments
		m.outbox = outbox
		m.mu.Unlock()
		return err
	}

	return nil
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

type memProducts struct{ m *memStore }

func (r *memProducts) GetProduct(_ context.Context, productID uuid.UUID) (domain.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	p, ok := r.m.products[productID]
	if !ok {
		return p, domain.ErrProductNotFound
	}
	return p, nil
}

func (r *memProducts) InsertProduct(_ context.Context, product domain.Product) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	r.m.products[product.ID] = product
	return nil
}

func (r *memProducts) Reserve(_ context.Context, productID uuid.UUID, quantity int32) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if err := r.m.reserveErr[productID]; err != nil {
		return false, err
	}

	p, ok := r.m.products[productID]
	if !ok {
		return false, domain.ErrProductNotFound
	}
	if !p.Active || p.Quantity < quantity {
		return false, nil
	}

	p.Quantity -= quantity
	p.Revision++
	r.m.products[productID] = p
	return true, nil
}

func (r *memProducts) Restore(_ context.Context, productID uuid.UUID, quantity int32) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	p, ok := r.m.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}

	p.Quantity += quantity
	p.Revision++
	r.m.products[productID] = p
	r.m.restores = append(r.m.restores, restoreCall{ProductID: productID, Quantity: quantity})
	return nil
}

func (r *memProducts) GetProductForUpdate(ctx context.Context, productID uuid.UUID) (domain.Product, error) {
	return r.GetProduct(ctx, productID)
}

func (r *memProducts) UpdateProduct(_ context.Context, product domain.Product) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if n := r.m.updateConflicts[product.ID]; n > 0 {
		r.m.updateConflicts[product.ID] = n - 1
		return domain.ErrConcurrencyConflict
	}

	current, ok := r.m.products[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if current.Revision != product.Revision {
		return domain.ErrConcurrencyConflict
	}

	product.Revision++
	r.m.products[product.ID] = product
	return nil
}

type memOrders struct{ m *memStore }

func (r *memOrders) GetOrder(_ context.Context, orderID uuid.UUID) (domain.Order, error) {
	if r.m.onGetOrder != nil {
		r.m.onGetOrder()
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	o, ok := r.m.orders[orderID]
	if !ok {
		return o, domain.ErrOrderNotFound
	}
	return o, nil
}

func (r *memOrders) InsertOrder(_ context.Context, order domain.Order) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if r.m.insertOrderErr != nil {
		return r.m.insertOrderErr
	}
	if _, exists := r.m.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}

	r.m.orders[order.ID] = order
	return nil
}

func (r *memOrders) UpdateOrderStatus(_ context.Context, orderID uuid.UUID, from, to domain.OrderStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	o, ok := r.m.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.Status != from {
		return domain.ErrConcurrencyConflict
	}

	o.Status = to
	r.m.orders[orderID] = o
	return nil
}

type memPayments struct{ m *memStore }

func (r *memPayments) GetPayment(_ context.Context, paymentID uuid.UUID) (domain.Payment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	p, ok := r.m.payments[paymentID]
	if !ok {
		return p, domain.ErrPaymentNotFound
	}
	return p, nil
}

func (r *memPayments) GetPaymentByOrderID(_ context.Context, orderID uuid.UUID) (domain.Payment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for _, p := range r.m.payments {
		if p.OrderID == orderID {
			return p, nil
		}
	}
	return domain.Payment{}, domain.ErrPaymentNotFound
}

func (r *memPayments) InsertPayment(_ context.Context, payment domain.Payment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	r.m.payments[payment.ID] = payment
	return nil
}

func (r *memPayments) GetPaymentForUpdate(ctx context.Context, paymentID uuid.UUID) (domain.Payment, error) {
	return r.GetPayment(ctx, paymentID)
}

func (r *memPayments) UpdatePayment(_ context.Context, payment domain.Payment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	current, ok := r.m.payments[payment.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if current.Revision != payment.Revision {
		return domain.ErrConcurrencyConflict
	}

	payment.Revision++
	r.m.payments[payment.ID] = payment
	return nil
}

type memOutbox struct{ m *memStore }

func (r *memOutbox) InsertEvent(_ context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var envelope struct {
		EventID string `json:"eventId"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	r.m.nextOutboxID++
	r.m.outbox = append(r.m.outbox, domain.OutboxRecord{
		ID:      r.m.nextOutboxID,
		EventID: envelope.EventID,
		Topic:   topic,
		Key:     key,
		Payload: data,
	})
	return nil
}

func (r *memOutbox) FetchPending(_ context.Context, limit int) ([]domain.OutboxRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var pending []domain.OutboxRecord
	for _, rec := range r.m.outbox {
		if rec.SentAt == nil {
			pending = append(pending, rec)
		}
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (r *memOutbox) MarkSent(_ context.Context, recordID int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for i := range r.m.outbox {
		if r.m.outbox[i].ID == recordID {
			now := time.Now()
			r.m.outbox[i].SentAt = &now
			return nil
		}
	}
	return fmt.Errorf("outbox record %d not found", recordID)
}

// fakeGateway records calls and answers with canned results.
type fakeGateway struct {
	mu sync.Mutex

	chargeResult port.ChargeResult
	chargeErr    error
	refundErr    error

	charges []port.ChargeRequest
	refunds []string
}

func (g *fakeGateway) Charge(_ context.Context, req port.ChargeRequest) (port.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.charges = append(g.charges, req)
	if g.chargeErr != nil {
		return port.ChargeResult{}, g.chargeErr
	}
	return g.chargeResult, nil
}

func (g *fakeGateway) RefundCharge(_ context.Context, transactionID string, _ domain.Money) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.refunds = append(g.refunds, transactionID)
	return g.refundErr
}
