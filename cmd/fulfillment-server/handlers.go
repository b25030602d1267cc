package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nikolayk812/fulfillment/internal/domain"
	"github.com/nikolayk812/fulfillment/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
)

type handlers struct {
	fulfillment *service.Fulfillment
	catalog     *service.Catalog
	payments    *service.Payments
	logger      *zap.Logger
}

type orderLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int32  `json:"quantity"`
}

type createOrderRequest struct {
	CustomerID      int64              `json:"customerId"`
	ShippingAddress string             `json:"shippingAddress"`
	Lines           []orderLineRequest `json:"lines"`
}

type processPaymentRequest struct {
	OrderID    string `json:"orderId"`
	CustomerID int64  `json:"customerId"`
	Method     string `json:"method"`
	CardNumber string `json:"cardNumber"`
	CardExpiry string `json:"cardExpiry"` // MM/YYYY
	CardToken  string `json:"cardToken"`
}

type refundRequest struct {
	Amount string `json:"amount"`
}

type createProductRequest struct {
	Name     string `json:"name"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	Quantity int32  `json:"quantity"`
}

type updatePriceRequest struct {
	Price    string `json:"price"`
	Currency string `json:"currency"`
}

type paymentResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Payment any    `json:"payment,omitempty"`
}

func (h *handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if req.CustomerID <= 0 {
		writeError(w, http.StatusBadRequest, "customerId must be positive")
		return
	}
	if len(req.Lines) == 0 {
		writeError(w, http.StatusBadRequest, "lines is required")
		return
	}

	lines := make([]service.CreateOrderLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		productID, err := uuid.Parse(l.ProductID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid productId: "+l.ProductID)
			return
		}
		if l.Quantity < 1 || l.Quantity > 100 {
			writeError(w, http.StatusBadRequest, "quantity must be in [1,100]")
			return
		}
		lines = append(lines, service.CreateOrderLine{ProductID: productID, Quantity: l.Quantity})
	}

	order, err := h.fulfillment.CreateOrder(r.Context(), service.CreateOrderRequest{
		CustomerID:      req.CustomerID,
		ShippingAddress: req.ShippingAddress,
		Lines:           lines,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, chi.URLParam(r, "orderID"))
	if !ok {
		return
	}

	order, err := h.fulfillment.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *handlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, chi.URLParam(r, "orderID"))
	if !ok {
		return
	}

	order, err := h.fulfillment.CancelOrder(r.Context(), orderID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *handlers) advanceOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, chi.URLParam(r, "orderID"))
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	status, err := domain.ToOrderStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid status: "+req.Status)
		return
	}

	order, err := h.fulfillment.AdvanceOrder(r.Context(), orderID, status)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *handlers) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	price, ok := parseMoneyRequest(w, req.Price, req.Currency)
	if !ok {
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), req.Name, price, req.Quantity)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *handlers) getProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseID(w, chi.URLParam(r, "productID"))
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), productID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *handlers) updateProductPrice(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseID(w, chi.URLParam(r, "productID"))
	if !ok {
		return
	}

	var req updatePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	price, ok := parseMoneyRequest(w, req.Price, req.Currency)
	if !ok {
		return
	}

	product, err := h.catalog.UpdateProductPrice(r.Context(), productID, price)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *handlers) deactivateProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseID(w, chi.URLParam(r, "productID"))
	if !ok {
		return
	}

	product, err := h.catalog.DeactivateProduct(r.Context(), productID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *handlers) processPayment(w http.ResponseWriter, r *http.Request) {
	var req processPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid orderId")
		return
	}
	if req.CustomerID <= 0 {
		writeError(w, http.StatusBadRequest, "customerId must be positive")
		return
	}
	if req.CardNumber != "" {
		if err := validateCard(req.CardNumber, req.CardExpiry); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	payment, err := h.payments.ProcessPayment(r.Context(), service.ProcessPaymentRequest{
		OrderID:    orderID,
		CustomerID: req.CustomerID,
		Method:     domain.PaymentMethod(req.Method),
		CardToken:  req.CardToken,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	result := paymentResult{
		Success: payment.Status == domain.PaymentStatusCompleted,
		Payment: toPaymentResponse(payment),
	}
	if !result.Success {
		result.Message = payment.FailureReason
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) refundPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := parseID(w, chi.URLParam(r, "paymentID"))
	if !ok {
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payment, err := h.payments.RefundPayment(r.Context(), paymentID, amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *handlers) cancelPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := parseID(w, chi.URLParam(r, "paymentID"))
	if !ok {
		return
	}

	payment, err := h.payments.CancelPayment(r.Context(), paymentID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *handlers) getPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := parseID(w, chi.URLParam(r, "paymentID"))
	if !ok {
		return
	}

	payment, err := h.payments.GetPayment(r.Context(), paymentID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *handlers) getPaymentByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, chi.URLParam(r, "orderID"))
	if !ok {
		return
	}

	payment, err := h.payments.GetPaymentByOrderID(r.Context(), orderID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *handlers) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrPaymentNotFound),
		errors.Is(err, domain.ErrProductNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrBusinessRule):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotImplemented):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id: "+raw)
		return uuid.Nil, false
	}
	return id, true
}

// parseAmount accepts monetary amounts with at most 2 decimal digits.
func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount: %s", raw)
	}

	if amount.Exponent() < -2 {
		return decimal.Zero, fmt.Errorf("amount must have at most 2 decimal digits: %s", raw)
	}

	return amount, nil
}

func parseMoneyRequest(w http.ResponseWriter, rawAmount, rawCurrency string) (domain.Money, bool) {
	amount, err := parseAmount(rawAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.Money{}, false
	}

	unit, err := currency.ParseISO(rawCurrency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid currency: "+rawCurrency)
		return domain.Money{}, false
	}

	return domain.Money{Amount: amount, Currency: unit}, true
}

func validateCard(number, expiry string) error {
	if len(number) < 13 || len(number) > 19 {
		return fmt.Errorf("card number must have 13-19 digits")
	}
	for _, c := range number {
		if c < '0' || c > '9' {
			return fmt.Errorf("card number must have digits only")
		}
	}

	exp, err := time.Parse("01/2006", expiry)
	if err != nil {
		return fmt.Errorf("card expiry must be MM/YYYY")
	}
	if exp.AddDate(0, 1, 0).Before(time.Now()) {
		return fmt.Errorf("card is expired")
	}

	return nil
}

type orderLineResponse struct {
	ProductID string `json:"productId"`
	Quantity  int32  `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Subtotal  string `json:"subtotal"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"orderNumber"`
	CustomerID      int64               `json:"customerId"`
	Status          string              `json:"status"`
	TotalAmount     string              `json:"totalAmount"`
	Currency        string              `json:"currency"`
	ShippingAddress string              `json:"shippingAddress"`
	Lines           []orderLineResponse `json:"lines"`
}

func toOrderResponse(o domain.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, orderLineResponse{
			ProductID: l.ProductID.String(),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.Amount.StringFixed(2),
			Subtotal:  l.Subtotal.Amount.StringFixed(2),
		})
	}

	return orderResponse{
		ID:              o.ID.String(),
		OrderNumber:     o.OrderNumber,
		CustomerID:      o.CustomerID,
		Status:          string(o.Status),
		TotalAmount:     o.Total.Amount.StringFixed(2),
		Currency:        o.Total.Currency.String(),
		ShippingAddress: o.ShippingAddress,
		Lines:           lines,
	}
}

type productResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	Quantity int32  `json:"quantity"`
	Active   bool   `json:"active"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:       p.ID.String(),
		Name:     p.Name,
		Price:    p.Price.Amount.StringFixed(2),
		Currency: p.Price.Currency.String(),
		Quantity: p.Quantity,
		Active:   p.Active,
	}
}

type paymentResponse struct {
	ID             string `json:"id"`
	PaymentRef     string `json:"paymentRef"`
	OrderID        string `json:"orderId"`
	CustomerID     int64  `json:"customerId"`
	Amount         string `json:"amount"`
	RefundedAmount string `json:"refundedAmount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	Method         string `json:"method"`
	FailureReason  string `json:"failureReason,omitempty"`
}

func toPaymentResponse(p domain.Payment) paymentResponse {
	return paymentResponse{
		ID:             p.ID.String(),
		PaymentRef:     p.PaymentRef,
		OrderID:        p.OrderID.String(),
		CustomerID:     p.CustomerID,
		Amount:         p.Amount.Amount.StringFixed(2),
		RefundedAmount: p.RefundedAmount.StringFixed(2),
		Currency:       p.Amount.Currency.String(),
		Status:         string(p.Status),
		Method:         string(p.Method),
		FailureReason:  p.FailureReason,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
