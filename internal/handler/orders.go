package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/ledger/internal/database"
	"github.com/kiwari-pos/ledger/internal/middleware"
	"github.com/kiwari-pos/ledger/internal/service"
)

// OrderStore defines the database methods needed by order handlers.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	AdvanceOrderStatus(ctx context.Context, arg database.AdvanceOrderStatusParams) (database.Order, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	store    OrderStore
	orders   *service.OrderService
	stock    *service.StockService
	notifier service.Notifier
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(store OrderStore, orders *service.OrderService, stock *service.StockService, notifier service.Notifier) *OrderHandler {
	if notifier == nil {
		notifier = service.NopNotifier{}
	}
	return &OrderHandler{store: store, orders: orders, stock: stock, notifier: notifier}
}

// RegisterRoutes registers order endpoints on the given Chi router.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.AdvanceStatus)
}

// --- Request types ---

type createOrderRequest struct {
	CustomerName  string             `json:"customer_name"`
	TableNumber   string             `json:"table_number"`
	PaymentMethod string             `json:"payment_method"`
	Discount      int64              `json:"discount"`
	Items         []orderItemRequest `json:"items"`
}

type orderItemRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int32  `json:"quantity"`
	Note       string `json:"note"`
}

type advanceStatusRequest struct {
	Status string `json:"status"`
}

// --- Handlers ---

// Create handles POST /orders: a dine-in order paid up front by cash or
// QRIS. Pay-later bills go through the open-bill endpoints instead.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.orders.CreateOrder(r.Context(), service.CreateOrderRequest{
		CustomerName:  req.CustomerName,
		TableNumber:   req.TableNumber,
		PaymentMethod: req.PaymentMethod,
		Discount:      req.Discount,
		CreatedBy:     claims.UserID,
		Items:         toServiceItems(req.Items),
	})
	if err != nil {
		writeOrderServiceError(w, err)
		return
	}

	// Cash orders go straight to the kitchen; QRIS orders are announced on
	// dispatch by the payment reconciler instead.
	if result.Order.Status == database.OrderStatusPENDING {
		h.notifier.Broadcast(service.ChannelKitchen, "order.dispatched", dbOrderToResponseWithItems(result.Order, result.Items))
	}

	resp := map[string]interface{}{"order": dbOrderToResponseWithItems(result.Order, result.Items)}
	if result.Degraded {
		resp["degraded"] = true
	}
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /orders with optional status, payment_status, limit and
// offset query params.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	params := database.ListOrdersParams{Limit: 50}

	if s := r.URL.Query().Get("status"); s != "" {
		if !isValidOrderStatus(s) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status filter"})
			return
		}
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if ps := r.URL.Query().Get("payment_status"); ps != "" {
		if !isValidPaymentStatus(ps) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment_status filter"})
			return
		}
		params.PaymentStatus = pgtype.Text{String: ps, Valid: true}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 || n > 200 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		params.Limit = int32(n)
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid offset"})
			return
		}
		params.Offset = int32(n)
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = dbOrderToResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /orders/{id}, returning the order with its items.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, dbOrderToResponseWithItems(order, items))
}

// AdvanceStatus handles PATCH /orders/{id}/status. The order status only
// moves forward: PENDING -> PREPARING -> SERVED. Serving triggers the
// recipe-driven stock deduction; a shortfall is reported over the realtime
// channel but never blocks the serve.
func (h *OrderHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req advanceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	target := database.OrderStatus(req.Status)
	var from database.OrderStatus
	switch target {
	case database.OrderStatusPREPARING:
		from = database.OrderStatusPENDING
	case database.OrderStatusSERVED:
		from = database.OrderStatusPREPARING
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be PREPARING or SERVED"})
		return
	}

	order, err := h.store.AdvanceOrderStatus(r.Context(), database.AdvanceOrderStatusParams{
		ID:         orderID,
		Status:     target,
		FromStatus: from,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := h.store.GetOrder(r.Context(), orderID); errors.Is(getErr, pgx.ErrNoRows) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
				return
			}
			writeJSON(w, http.StatusConflict, map[string]string{"error": "order is not in " + string(from)})
			return
		}
		log.Printf("ERROR: advance order status: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	// The compare-and-set above makes SERVED reachable exactly once, so the
	// deduction cannot double-fire for one order.
	if target == database.OrderStatusSERVED {
		h.deductStock(r.Context(), order)
	}

	h.notifier.Broadcast(service.ChannelCashier, "order.updated", dbOrderToResponse(order))
	writeJSON(w, http.StatusOK, dbOrderToResponse(order))
}

// deductStock expands the served order through recipes and deducts
// inventory. Failures are logged and broadcast; the serve already happened
// on the floor and is never rolled back.
func (h *OrderHandler) deductStock(ctx context.Context, order database.Order) {
	items, err := h.store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		log.Printf("ERROR: list items for stock deduction of %s: %v", order.OrderNumber, err)
		return
	}

	lines := make([]service.StockLine, len(items))
	for i, it := range items {
		lines[i] = service.StockLine{MenuItemID: it.MenuItemID, Quantity: it.Quantity}
	}

	if err := h.stock.DeductForOrder(ctx, lines); err != nil {
		var shortfall *service.InsufficientStockError
		if errors.As(err, &shortfall) {
			log.Printf("WARN: stock deduction shortfall for %s: %v", order.OrderNumber, err)
			h.notifier.Broadcast(service.ChannelCashier, "stock.deduction_failed", map[string]interface{}{
				"order_number": order.OrderNumber,
				"shortfall":    shortfall.Items,
			})
			return
		}
		log.Printf("ERROR: stock deduction for %s: %v", order.OrderNumber, err)
	}
}

// --- Helpers ---

func toServiceItems(items []orderItemRequest) []service.CreateOrderItemRequest {
	result := make([]service.CreateOrderItemRequest, len(items))
	for i, it := range items {
		result[i] = service.CreateOrderItemRequest{
			MenuItemID: it.MenuItemID,
			Quantity:   it.Quantity,
			Note:       it.Note,
		}
	}
	return result
}

func isValidOrderStatus(s string) bool {
	switch database.OrderStatus(s) {
	case database.OrderStatusQUEUED, database.OrderStatusPENDING,
		database.OrderStatusPREPARING, database.OrderStatusSERVED:
		return true
	}
	return false
}

func isValidPaymentStatus(s string) bool {
	switch database.PaymentStatus(s) {
	case database.PaymentStatusPENDING, database.PaymentStatusPAID,
		database.PaymentStatusFAILED, database.PaymentStatusEXPIRED,
		database.PaymentStatusUNPAID:
		return true
	}
	return false
}

// writeOrderServiceError maps order service validation errors onto HTTP
// statuses.
func writeOrderServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyItems),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidMenuItemID),
		errors.Is(err, service.ErrInvalidDiscount),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrTableRequired):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrMenuItemNotFound):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, service.ErrNotOpenBill),
		errors.Is(err, service.ErrBillNotOpen),
		errors.Is(err, service.ErrBillAlreadyPaid):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: order service: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
