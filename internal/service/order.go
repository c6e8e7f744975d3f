package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/ledger/internal/database"
	"github.com/kiwari-pos/ledger/internal/enum"
	"github.com/kiwari-pos/ledger/internal/gateway"
)

const maxOrderNumberRetries = 3

// Errors returned by the order services.
var (
	ErrEmptyItems           = errors.New("items are required")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidMenuItemID    = errors.New("invalid menu_item_id")
	ErrMenuItemNotFound     = errors.New("menu item not found")
	ErrInvalidDiscount      = errors.New("discount must be between 0 and subtotal")
	ErrInvalidPaymentMethod = errors.New("invalid payment_method")
	ErrOrderNotFound        = errors.New("order not found")
)

// TxBeginner starts a new database transaction. Satisfied by *pgxpool.Pool
// and by the in-memory fallback store.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SnapshotTxBeginner starts a transaction with explicit isolation options,
// used where a computation must read several ledgers from one consistent
// snapshot.
type SnapshotTxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Charger creates QRIS charges against the external payment gateway.
// Satisfied by *gateway.Client.
type Charger interface {
	CreateCharge(ctx context.Context, orderRef string, amount int64, items []gateway.ChargeItem) (*gateway.Charge, error)
}

// OrderStore defines the DB methods needed to create orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetNextOrderNumber(ctx context.Context) (int32, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// CreateOrderRequest is the validated input for creating a dine-in order
// that is paid up front (cash at the counter or QRIS).
type CreateOrderRequest struct {
	CustomerName  string
	TableNumber   string
	PaymentMethod string
	Discount      int64
	CreatedBy     uuid.UUID
	Items         []CreateOrderItemRequest
}

// CreateOrderItemRequest is a single line in the order.
type CreateOrderItemRequest struct {
	MenuItemID string
	Quantity   int32
	Note       string
}

// CreateOrderResult is the full created order with items. Degraded is true
// when the QRIS gateway was unreachable and the order carries a local
// placeholder charge instead of a real QR payload.
type CreateOrderResult struct {
	Order    database.Order
	Items    []database.OrderItem
	Degraded bool
}

// OrderService handles order creation.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
	charger  Charger
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, charger Charger) *OrderService {
	return &OrderService{pool: pool, newStore: newStore, charger: charger}
}

// preparedItem is a priced order line ready for insertion.
type preparedItem struct {
	menuItemID uuid.UUID
	name       string
	unitPrice  int64
	quantity   int32
	note       string
}

// CreateOrder validates items, snapshots prices, optionally opens a QRIS
// charge, and persists the order atomically.
//
// Cash orders are born dispatched and settled: status PENDING, payment PAID,
// paid_at stamped. QRIS orders are born QUEUED with payment PENDING and are
// dispatched by the reconciliation service once the gateway settles. A
// gateway failure degrades the order to a placeholder pending charge
// instead of failing creation; the counter can still settle it by poll or
// webhook later.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if req.PaymentMethod != enum.PaymentMethodCash && req.PaymentMethod != enum.PaymentMethodQRIS {
		return nil, ErrInvalidPaymentMethod
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if req.Discount < 0 {
		return nil, ErrInvalidDiscount
	}

	items, subtotal, err := s.prepareItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	if req.Discount > subtotal {
		return nil, ErrInvalidDiscount
	}
	total := subtotal - req.Discount

	params := database.CreateOrderParams{
		CustomerName:  textOrNull(req.CustomerName),
		TableNumber:   textOrNull(req.TableNumber),
		Subtotal:      subtotal,
		Discount:      req.Discount,
		Total:         total,
		PaymentMethod: database.PaymentMethod(req.PaymentMethod),
		CreatedBy:     req.CreatedBy,
	}

	degraded := false
	switch req.PaymentMethod {
	case enum.PaymentMethodCash:
		params.Status = database.OrderStatusPENDING
		params.PaymentStatus = database.PaymentStatusPAID
		params.PaidAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	case enum.PaymentMethodQRIS:
		// Held in QUEUED until the gateway reports settlement; the
		// reconciliation service dispatches it to the kitchen.
		params.Status = database.OrderStatusQUEUED
		params.PaymentStatus = database.PaymentStatusPENDING

		// The gateway correlation ID is generated locally so a later charge
		// retry or manual settlement can still find the order.
		gatewayOrderID := "ORD-" + uuid.New().String()
		params.GatewayOrderID = pgtype.Text{String: gatewayOrderID, Valid: true}

		charge, err := s.charger.CreateCharge(ctx, gatewayOrderID, total, chargeItems(items))
		if err != nil {
			if !errors.Is(err, gateway.ErrUnavailable) {
				return nil, fmt.Errorf("create charge: %w", err)
			}
			log.Printf("WARN: payment gateway unavailable, creating degraded order %s: %v", gatewayOrderID, err)
			degraded = true
		} else {
			params.GatewayTransactionID = pgtype.Text{String: charge.TransactionID, Valid: true}
			params.QrisPayload = pgtype.Text{String: charge.QRPayload, Valid: true}
			params.QrisExpiry = pgtype.Timestamptz{Time: charge.Expiry, Valid: true}
		}
	}

	// Retry loop: handles the order_number unique constraint race where
	// concurrent transactions read the same MAX.
	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.createOrderTx(ctx, params, items)
		if err == nil {
			result.Degraded = degraded
			return result, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// prepareItems validates the requested lines against the menu and snapshots
// unit prices. Runs against the pool; the snapshot is re-read nowhere else.
func (s *OrderService) prepareItems(ctx context.Context, reqItems []CreateOrderItemRequest) ([]preparedItem, int64, error) {
	store := s.newStore(nil)
	var items []preparedItem
	var subtotal int64

	for i, item := range reqItems {
		if item.Quantity <= 0 {
			return nil, 0, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		menuItemID, err := uuid.Parse(item.MenuItemID)
		if err != nil {
			return nil, 0, fmt.Errorf("items[%d]: %w", i, ErrInvalidMenuItemID)
		}
		menuItem, err := store.GetMenuItem(ctx, menuItemID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, 0, fmt.Errorf("items[%d]: %w", i, ErrMenuItemNotFound)
			}
			return nil, 0, fmt.Errorf("items[%d]: get menu item: %w", i, err)
		}

		items = append(items, preparedItem{
			menuItemID: menuItemID,
			name:       menuItem.Name,
			unitPrice:  menuItem.Price,
			quantity:   item.Quantity,
			note:       item.Note,
		})
		subtotal += menuItem.Price * int64(item.Quantity)
	}
	return items, subtotal, nil
}

// createOrderTx inserts the order and its items in a single transaction.
func (s *OrderService) createOrderTx(ctx context.Context, params database.CreateOrderParams, items []preparedItem) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	nextNum, err := store.GetNextOrderNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}
	params.OrderNumber = fmt.Sprintf("POS-%s-%03d", time.Now().Format("20060102"), nextNum)

	order, err := store.CreateOrder(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	var created []database.OrderItem
	for i, pi := range items {
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:    order.ID,
			MenuItemID: pi.menuItemID,
			Name:       pi.name,
			UnitPrice:  pi.unitPrice,
			Quantity:   pi.quantity,
			Note:       textOrNull(pi.note),
			Position:   int32(i),
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		created = append(created, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CreateOrderResult{Order: order, Items: created}, nil
}

// isOrderNumberConflict checks for a unique constraint violation on the
// order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_order_number_key"
	}
	return false
}

func chargeItems(items []preparedItem) []gateway.ChargeItem {
	result := make([]gateway.ChargeItem, len(items))
	for i, it := range items {
		result[i] = gateway.ChargeItem{
			ID:       it.menuItemID.String(),
			Name:     it.name,
			Price:    it.unitPrice,
			Quantity: it.quantity,
		}
	}
	return result
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
