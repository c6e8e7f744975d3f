package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiwari-pos/ledger/internal/database"
	"github.com/kiwari-pos/ledger/internal/gateway"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr   error
	rollbackErr error
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error          { return m.commitErr }
func (m *mockTx) Rollback(ctx context.Context) error        { return m.rollbackErr }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner and SnapshotTxBeginner.
type mockTxBeginner struct {
	tx  pgx.Tx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, m.err
}

func (m *mockTxBeginner) BeginTx(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	return m.tx, m.err
}

// mockCharger implements Charger.
type mockCharger struct {
	createChargeFn func(ctx context.Context, orderRef string, amount int64, items []gateway.ChargeItem) (*gateway.Charge, error)
}

func (m *mockCharger) CreateCharge(ctx context.Context, orderRef string, amount int64, items []gateway.ChargeItem) (*gateway.Charge, error) {
	return m.createChargeFn(ctx, orderRef, amount, items)
}

// mockOrderStore implements OrderStore with configurable behavior.
type mockOrderStore struct {
	getNextOrderNumberFn func(ctx context.Context) (int32, error)
	getMenuItemFn        func(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	createOrderFn        func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	createOrderItemFn    func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
}

func (m *mockOrderStore) GetNextOrderNumber(ctx context.Context) (int32, error) {
	return m.getNextOrderNumberFn(ctx)
}
func (m *mockOrderStore) GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error) {
	return m.getMenuItemFn(ctx, id)
}
func (m *mockOrderStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	return m.createOrderFn(ctx, arg)
}
func (m *mockOrderStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	return m.createOrderItemFn(ctx, arg)
}

// --- Test helpers ---

func okCharger() *mockCharger {
	return &mockCharger{
		createChargeFn: func(ctx context.Context, orderRef string, amount int64, items []gateway.ChargeItem) (*gateway.Charge, error) {
			return &gateway.Charge{
				OrderRef:      orderRef,
				TransactionID: "tx-" + orderRef,
				QRPayload:     "qr-payload",
				Expiry:        time.Now().Add(15 * time.Minute),
			}, nil
		},
	}
}

// newTestOrderService creates an OrderService with mocked dependencies.
func newTestOrderService(store *mockOrderStore, charger Charger) *OrderService {
	pool := &mockTxBeginner{tx: &mockTx{}}
	newStore := func(db database.DBTX) OrderStore { return store }
	return NewOrderService(pool, newStore, charger)
}

// defaultOrderStore returns a mockOrderStore that knows one menu item.
// Individual tests override the functions they care about.
func defaultOrderStore(menuItemID uuid.UUID, price int64) *mockOrderStore {
	return &mockOrderStore{
		getNextOrderNumberFn: func(ctx context.Context) (int32, error) {
			return 1, nil
		},
		getMenuItemFn: func(ctx context.Context, id uuid.UUID) (database.MenuItem, error) {
			if id == menuItemID {
				return database.MenuItem{ID: menuItemID, Name: "Nasi Bakar Ayam", Price: price, Active: true}, nil
			}
			return database.MenuItem{}, pgx.ErrNoRows
		},
		createOrderFn: func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
			return database.Order{
				ID:                   uuid.New(),
				OrderNumber:          arg.OrderNumber,
				Subtotal:             arg.Subtotal,
				Discount:             arg.Discount,
				Total:                arg.Total,
				PaymentMethod:        arg.PaymentMethod,
				PaymentStatus:        arg.PaymentStatus,
				Status:               arg.Status,
				PayLater:             arg.PayLater,
				GatewayOrderID:       arg.GatewayOrderID,
				GatewayTransactionID: arg.GatewayTransactionID,
				QrisPayload:          arg.QrisPayload,
				QrisExpiry:           arg.QrisExpiry,
				PaidAt:               arg.PaidAt,
				CreatedBy:            arg.CreatedBy,
			}, nil
		},
		createOrderItemFn: func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
			return database.OrderItem{
				ID:         uuid.New(),
				OrderID:    arg.OrderID,
				MenuItemID: arg.MenuItemID,
				Name:       arg.Name,
				UnitPrice:  arg.UnitPrice,
				Quantity:   arg.Quantity,
				Note:       arg.Note,
				Position:   arg.Position,
			}, nil
		},
	}
}

func cashReq(menuItemID uuid.UUID, qty int32) CreateOrderRequest {
	return CreateOrderRequest{
		PaymentMethod: "CASH",
		CreatedBy:     uuid.New(),
		Items: []CreateOrderItemRequest{
			{MenuItemID: menuItemID.String(), Quantity: qty},
		},
	}
}

// =====================
// Validation tests
// =====================

func TestCreateOrder_EmptyItems(t *testing.T) {
	svc := newTestOrderService(defaultOrderStore(uuid.New(), 25000), okCharger())

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		PaymentMethod: "CASH",
		CreatedBy:     uuid.New(),
		Items:         nil,
	})
	if !errors.Is(err, ErrEmptyItems) {
		t.Fatalf("expected ErrEmptyItems, got: %v", err)
	}
}

func TestCreateOrder_InvalidPaymentMethod(t *testing.T) {
	menuItemID := uuid.New()
	svc := newTestOrderService(defaultOrderStore(menuItemID, 25000), okCharger())

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		PaymentMethod: "CHECK",
		CreatedBy:     uuid.New(),
		Items: []CreateOrderItemRequest{
			{MenuItemID: menuItemID.String(), Quantity: 1},
		},
	})
	if !errors.Is(err, ErrInvalidPaymentMethod) {
		t.Fatalf("expected ErrInvalidPaymentMethod, got: %v", err)
	}
}

func TestCreateOrder_ZeroQuantity(t *testing.T) {
	menuItemID := uuid.New()
	svc := newTestOrderService(defaultOrderStore(menuItemID, 25000), okCharger())

	_, err := svc.CreateOrder(context.Background(), cashReq(menuItemID, 0))
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got: %v", err)
	}
}

func TestCreateOrder_MenuItemNotFound(t *testing.T) {
	svc := newTestOrderService(defaultOrderStore(uuid.New(), 25000), okCharger())

	_, err := svc.CreateOrder(context.Background(), cashReq(uuid.New(), 1))
	if !errors.Is(err, ErrMenuItemNotFound) {
		t.Fatalf("expected ErrMenuItemNotFound, got: %v", err)
	}
}

func TestCreateOrder_InvalidMenuItemID(t *testing.T) {
	svc := newTestOrderService(defaultOrderStore(uuid.New(), 25000), okCharger())

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		PaymentMethod: "CASH",
		CreatedBy:     uuid.New(),
		Items: []CreateOrderItemRequest{
			{MenuItemID: "not-a-uuid", Quantity: 1},
		},
	})
	if !errors.Is(err, ErrInvalidMenuItemID) {
		t.Fatalf("expected ErrInvalidMenuItemID, got: %v", err)
	}
}

func TestCreateOrder_DiscountExceedsSubtotal(t *testing.T) {
	menuItemID := uuid.New()
	svc := newTestOrderService(defaultOrderStore(menuItemID, 25000), okCharger())

	req := cashReq(menuItemID, 1)
	req.Discount = 30000
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrInvalidDiscount) {
		t.Fatalf("expected ErrInvalidDiscount, got: %v", err)
	}
}

func TestCreateOrder_NegativeDiscount(t *testing.T) {
	menuItemID := uuid.New()
	svc := newTestOrderService(defaultOrderStore(menuItemID, 25000), okCharger())

	req := cashReq(menuItemID, 1)
	req.Discount = -1
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrInvalidDiscount) {
		t.Fatalf("expected ErrInvalidDiscount, got: %v", err)
	}
}

// =====================
// Cash order semantics
// =====================

func TestCreateOrder_CashBornPaidAndDispatched(t *testing.T) {
	menuItemID := uuid.New()
	store := defaultOrderStore(menuItemID, 25000)
	svc := newTestOrderService(store, okCharger())

	result, err := svc.CreateOrder(context.Background(), cashReq(menuItemID, 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Order.Status != database.OrderStatusPENDING {
		t.Errorf("status: got %v, want PENDING", result.Order.Status)
	}
	if result.Order.PaymentStatus != database.PaymentStatusPAID {
		t.Errorf("payment_status: got %v, want PAID", result.Order.PaymentStatus)
	}
	if !result.Order.PaidAt.Valid {
		t.Error("paid_at should be stamped for cash orders")
	}
	if result.Order.Subtotal != 50000 || result.Order.Total != 50000 {
		t.Errorf("amounts: subtotal=%d total=%d, want 50000/50000", result.Order.Subtotal, result.Order.Total)
	}
	if result.Degraded {
		t.Error("cash order must never be degraded")
	}
}

func TestCreateOrder_PriceSnapshotAndPositions(t *testing.T) {
	menuItemID := uuid.New()
	store := defaultOrderStore(menuItemID, 25000)

	var captured []database.CreateOrderItemParams
	store.createOrderItemFn = func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
		captured = append(captured, arg)
		return database.OrderItem{ID: uuid.New(), OrderID: arg.OrderID, Position: arg.Position}, nil
	}

	svc := newTestOrderService(store, okCharger())
	req := cashReq(menuItemID, 2)
	req.Items = append(req.Items, CreateOrderItemRequest{MenuItemID: menuItemID.String(), Quantity: 1, Note: "pedas"})

	_, err := svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(captured) != 2 {
		t.Fatalf("expected 2 item inserts, got %d", len(captured))
	}
	if captured[0].UnitPrice != 25000 || captured[0].Name != "Nasi Bakar Ayam" {
		t.Errorf("item 0 snapshot: got %q/%d, want Nasi Bakar Ayam/25000", captured[0].Name, captured[0].UnitPrice)
	}
	if captured[0].Position != 0 || captured[1].Position != 1 {
		t.Errorf("positions: got %d,%d, want 0,1", captured[0].Position, captured[1].Position)
	}
	if !captured[1].Note.Valid || captured[1].Note.String != "pedas" {
		t.Errorf("note: got %v, want pedas", captured[1].Note)
	}
}

// =====================
// QRIS order semantics
// =====================

func TestCreateOrder_QRISBornQueuedPending(t *testing.T) {
	menuItemID := uuid.New()
	store := defaultOrderStore(menuItemID, 25000)

	var chargedRef string
	var chargedAmount int64
	charger := &mockCharger{
		createChargeFn: func(ctx context.Context, orderRef string, amount int64, items []gateway.ChargeItem) (*gateway.Charge, error) {
			chargedRef = orderRef
			chargedAmount = amount
			return &gateway.Charge{TransactionID: "mid-123", QRPayload: "qr-data", Expiry: time.Now().Add(15 * time.Minute)}, nil
		},
	}

	svc := newTestOrderService(store, charger)
	req := cashReq(menuItemID, 2)
	req.PaymentMethod = "QRIS"
	req.Discount = 10000

	result, err := svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Order.Status != database.OrderStatusQUEUED {
		t.Errorf("status: got %v, want QUEUED", result.Order.Status)
	}
	if result.Order.PaymentStatus != database.PaymentStatusPENDING {
		t.Errorf("payment_status: got %v, want PENDING", result.Order.PaymentStatus)
	}
	if result.Order.PaidAt.Valid {
		t.Error("paid_at must not be stamped before settlement")
	}
	if !strings.HasPrefix(chargedRef, "ORD-") {
		t.Errorf("gateway order ref: got %q, want ORD- prefix", chargedRef)
	}
	if chargedAmount != 40000 {
		t.Errorf("charged amount: got %d, want 40000 (subtotal-discount)", chargedAmount)
	}
	if !result.Order.QrisPayload.Valid || result.Order.QrisPayload.String != "qr-data" {
		t.Errorf("qris payload: got %v", result.Order.QrisPayload)
	}
	if !result.Order.GatewayTransactionID.Valid || result.Order.GatewayTransactionID.String != "mid-123" {
		t.Errorf("gateway transaction id: got %v", result.Order.GatewayTransactionID)
	}
	if result.Degraded {
		t.Error("order should not be degraded when the gateway answered")
	}
}

func TestCreateOrder_QRISGatewayDownDegrades(t *testing.T) {
	menuItemID := uuid.New()
	store := defaultOrderStore(menuItemID, 25000)
	charger := &mockCharger{
		createChargeFn: func(ctx context.Context, orderRef string, amount int64, items []gateway.ChargeItem) (*gateway.Charge, error) {
			return nil, gateway.ErrUnavailable
		},
	}

	svc := newTestOrderService(store, charger)
	req := cashReq(menuItemID, 1)
	req.PaymentMethod = "QRIS"

	result, err := svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("gateway outage must not fail creation, got: %v", err)
	}
	if !result.Degraded {
		t.Error("expected degraded result")
	}
	if !result.Order.GatewayOrderID.Valid {
		t.Error("degraded order still needs its local gateway order id")
	}
	if result.Order.QrisPayload.Valid {
		t.Error("degraded order must not carry a QR payload")
	}
	if result.Order.PaymentStatus != database.PaymentStatusPENDING {
		t.Errorf("payment_status: got %v, want PENDING", result.Order.PaymentStatus)
	}
}

func TestCreateOrder_QRISNonTransientGatewayError(t *testing.T) {
	menuItemID := uuid.New()
	store := defaultOrderStore(menuItemID, 25000)
	charger := &mockCharger{
		createChargeFn: func(ctx context.Context, orderRef string, amount int64, items []gateway.ChargeItem) (*gateway.Charge, error) {
			return nil, errors.New("validation rejected by gateway")
		},
	}

	svc := newTestOrderService(store, charger)
	req := cashReq(menuItemID, 1)
	req.PaymentMethod = "QRIS"

	_, err := svc.CreateOrder(context.Background(), req)
	if err == nil {
		t.Fatal("expected error for non-transient gateway failure")
	}
}

// =====================
// Order number generation
// =====================

func TestCreateOrder_OrderNumberFormat(t *testing.T) {
	menuItemID := uuid.New()
	store := defaultOrderStore(menuItemID, 25000)
	store.getNextOrderNumberFn = func(ctx context.Context) (int32, error) {
		return 42, nil
	}

	svc := newTestOrderService(store, okCharger())
	result, err := svc.CreateOrder(context.Background(), cashReq(menuItemID, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "POS-" + time.Now().Format("20060102") + "-042"
	if result.Order.OrderNumber != want {
		t.Errorf("order number: got %v, want %v", result.Order.OrderNumber, want)
	}
}

func TestCreateOrder_RetryOnUniqueViolation(t *testing.T) {
	menuItemID := uuid.New()
	store := defaultOrderStore(menuItemID, 25000)

	createCallCount := 0
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		createCallCount++
		if createCallCount == 1 {
			return database.Order{}, &pgconn.PgError{
				Code:           "23505",
				ConstraintName: "orders_order_number_key",
			}
		}
		return database.Order{ID: uuid.New(), OrderNumber: arg.OrderNumber, Status: arg.Status, PaymentStatus: arg.PaymentStatus}, nil
	}

	orderNumCallCount := 0
	store.getNextOrderNumberFn = func(ctx context.Context) (int32, error) {
		orderNumCallCount++
		return int32(orderNumCallCount), nil
	}

	svc := newTestOrderService(store, okCharger())
	result, err := svc.CreateOrder(context.Background(), cashReq(menuItemID, 1))
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if result == nil {
		t.Fatal("expected result, got nil")
	}
	if createCallCount != 2 {
		t.Errorf("expected 2 CreateOrder calls (1 fail + 1 success), got %d", createCallCount)
	}
	if orderNumCallCount != 2 {
		t.Errorf("expected 2 GetNextOrderNumber calls, got %d", orderNumCallCount)
	}
}

func TestCreateOrder_RetryExhausted(t *testing.T) {
	menuItemID := uuid.New()
	store := defaultOrderStore(menuItemID, 25000)
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		return database.Order{}, &pgconn.PgError{
			Code:           "23505",
			ConstraintName: "orders_order_number_key",
		}
	}

	svc := newTestOrderService(store, okCharger())
	_, err := svc.CreateOrder(context.Background(), cashReq(menuItemID, 1))
	if err == nil {
		t.Fatal("expected error after exhausting retries, got nil")
	}
	if !strings.Contains(err.Error(), "create order") {
		t.Errorf("expected 'create order' in error message, got: %v", err)
	}
}

func TestCreateOrder_NonUniqueErrorNotRetried(t *testing.T) {
	menuItemID := uuid.New()
	store := defaultOrderStore(menuItemID, 25000)

	callCount := 0
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		callCount++
		return database.Order{}, errors.New("some other DB error")
	}

	svc := newTestOrderService(store, okCharger())
	_, err := svc.CreateOrder(context.Background(), cashReq(menuItemID, 1))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if callCount != 1 {
		t.Errorf("non-unique errors should not retry: expected 1 call, got %d", callCount)
	}
}
