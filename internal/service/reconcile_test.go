package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/ledger/internal/database"
)

type mockReconcileStore struct {
	getOrderFn                 func(ctx context.Context, id uuid.UUID) (database.Order, error)
	getOrderByGatewayOrderIDFn func(ctx context.Context, gatewayOrderID string) (database.Order, error)
	updateOrderPaymentStatusFn func(ctx context.Context, arg database.UpdateOrderPaymentStatusParams) (database.Order, error)
	advanceOrderStatusFn       func(ctx context.Context, arg database.AdvanceOrderStatusParams) (database.Order, error)
}

func (m *mockReconcileStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return m.getOrderFn(ctx, id)
}
func (m *mockReconcileStore) GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (database.Order, error) {
	return m.getOrderByGatewayOrderIDFn(ctx, gatewayOrderID)
}
func (m *mockReconcileStore) UpdateOrderPaymentStatus(ctx context.Context, arg database.UpdateOrderPaymentStatusParams) (database.Order, error) {
	return m.updateOrderPaymentStatusFn(ctx, arg)
}
func (m *mockReconcileStore) AdvanceOrderStatus(ctx context.Context, arg database.AdvanceOrderStatusParams) (database.Order, error) {
	return m.advanceOrderStatusFn(ctx, arg)
}

type mockStatusPoller struct {
	queryStatusFn func(ctx context.Context, gatewayOrderID string) (string, error)
}

func (m *mockStatusPoller) QueryStatus(ctx context.Context, gatewayOrderID string) (string, error) {
	return m.queryStatusFn(ctx, gatewayOrderID)
}

func queuedQRISOrder() database.Order {
	return database.Order{
		ID:             uuid.New(),
		OrderNumber:    "POS-20260823-001",
		Status:         database.OrderStatusQUEUED,
		PaymentStatus:  database.PaymentStatusPENDING,
		PaymentMethod:  database.PaymentMethodQRIS,
		GatewayOrderID: pgtype.Text{String: "ORD-" + uuid.NewString(), Valid: true},
		Total:          50000,
	}
}

// defaultReconcileStore applies updates like the conditional SQL would:
// the CAS succeeds only when FromStatus matches the stored order.
func defaultReconcileStore(order *database.Order) *mockReconcileStore {
	return &mockReconcileStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			if id == order.ID {
				return *order, nil
			}
			return database.Order{}, pgx.ErrNoRows
		},
		getOrderByGatewayOrderIDFn: func(ctx context.Context, gatewayOrderID string) (database.Order, error) {
			if order.GatewayOrderID.Valid && order.GatewayOrderID.String == gatewayOrderID {
				return *order, nil
			}
			return database.Order{}, pgx.ErrNoRows
		},
		updateOrderPaymentStatusFn: func(ctx context.Context, arg database.UpdateOrderPaymentStatusParams) (database.Order, error) {
			if order.PaymentStatus != arg.FromStatus {
				return database.Order{}, pgx.ErrNoRows
			}
			order.PaymentStatus = arg.PaymentStatus
			if arg.PaidAt.Valid {
				order.PaidAt = arg.PaidAt
			}
			if arg.GatewayTransactionID.Valid {
				order.GatewayTransactionID = arg.GatewayTransactionID
			}
			return *order, nil
		},
		advanceOrderStatusFn: func(ctx context.Context, arg database.AdvanceOrderStatusParams) (database.Order, error) {
			if order.Status != arg.FromStatus {
				return database.Order{}, pgx.ErrNoRows
			}
			order.Status = arg.Status
			return *order, nil
		},
	}
}

// =====================
// Status mapping
// =====================

func TestMapGatewayStatus(t *testing.T) {
	cases := []struct {
		txStatus string
		want     database.PaymentStatus
		ok       bool
	}{
		{"settlement", database.PaymentStatusPAID, true},
		{"capture", database.PaymentStatusPAID, true},
		{"deny", database.PaymentStatusFAILED, true},
		{"cancel", database.PaymentStatusFAILED, true},
		{"failure", database.PaymentStatusFAILED, true},
		{"expire", database.PaymentStatusEXPIRED, true},
		{"pending", "", false},
		{"refund", "", false},
	}
	for _, c := range cases {
		got, ok := MapGatewayStatus(c.txStatus)
		if got != c.want || ok != c.ok {
			t.Errorf("MapGatewayStatus(%q) = (%v, %v), want (%v, %v)", c.txStatus, got, ok, c.want, c.ok)
		}
	}
}

// =====================
// Settlement and dispatch
// =====================

func TestApplyGatewayStatus_SettlementDispatchesQueuedOrder(t *testing.T) {
	order := queuedQRISOrder()
	store := defaultReconcileStore(&order)
	svc := NewReconcileService(store, nil)

	var hooked *database.Order
	svc.OnPaid(func(ctx context.Context, o database.Order) {
		hooked = &o
	})

	updated, changed, err := svc.ApplyGatewayStatus(context.Background(), order, "settlement", "mid-999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Error("expected the order to change")
	}
	if updated.PaymentStatus != database.PaymentStatusPAID {
		t.Errorf("payment_status: got %v, want PAID", updated.PaymentStatus)
	}
	if !updated.PaidAt.Valid {
		t.Error("paid_at should be stamped on settlement")
	}
	if updated.Status != database.OrderStatusPENDING {
		t.Errorf("kitchen status: got %v, want PENDING after dispatch", updated.Status)
	}
	if updated.GatewayTransactionID.String != "mid-999" {
		t.Errorf("gateway transaction id: got %q", updated.GatewayTransactionID.String)
	}
	if hooked == nil {
		t.Fatal("paid hook did not run")
	}
	if hooked.Status != database.OrderStatusPENDING {
		t.Errorf("hook must see the dispatched order, got status %v", hooked.Status)
	}
}

func TestApplyGatewayStatus_PanickingHookIsolated(t *testing.T) {
	order := queuedQRISOrder()
	store := defaultReconcileStore(&order)
	svc := NewReconcileService(store, nil)

	svc.OnPaid(func(ctx context.Context, o database.Order) {
		panic("broadcast blew up")
	})
	secondRan := false
	svc.OnPaid(func(ctx context.Context, o database.Order) {
		secondRan = true
	})

	updated, changed, err := svc.ApplyGatewayStatus(context.Background(), order, "settlement", "")
	if err != nil {
		t.Fatalf("hook panic must not fail the transition: %v", err)
	}
	if !changed || updated.PaymentStatus != database.PaymentStatusPAID {
		t.Fatalf("transition lost: changed=%v status=%v", changed, updated.PaymentStatus)
	}
	if !secondRan {
		t.Error("later hooks must still run after an earlier one panicked")
	}
}

// =====================
// Idempotency and terminal guard
// =====================

func TestApplyGatewayStatus_RedeliveryIsIdempotent(t *testing.T) {
	order := queuedQRISOrder()
	order.PaymentStatus = database.PaymentStatusPAID
	order.Status = database.OrderStatusPENDING

	updateCalls := 0
	store := defaultReconcileStore(&order)
	inner := store.updateOrderPaymentStatusFn
	store.updateOrderPaymentStatusFn = func(ctx context.Context, arg database.UpdateOrderPaymentStatusParams) (database.Order, error) {
		updateCalls++
		return inner(ctx, arg)
	}

	svc := NewReconcileService(store, nil)
	updated, changed, err := svc.ApplyGatewayStatus(context.Background(), order, "settlement", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Error("re-delivered settlement must not report a change")
	}
	if updateCalls != 0 {
		t.Errorf("re-delivery must not write, got %d update calls", updateCalls)
	}
	if updated.PaymentStatus != database.PaymentStatusPAID {
		t.Errorf("payment_status: got %v", updated.PaymentStatus)
	}
}

func TestApplyGatewayStatus_TerminalStateNeverRegresses(t *testing.T) {
	order := queuedQRISOrder()
	order.PaymentStatus = database.PaymentStatusFAILED

	store := defaultReconcileStore(&order)
	svc := NewReconcileService(store, nil)

	updated, changed, err := svc.ApplyGatewayStatus(context.Background(), order, "settlement", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Error("terminal FAILED must not change on a late settlement")
	}
	if updated.PaymentStatus != database.PaymentStatusFAILED {
		t.Errorf("payment_status: got %v, want FAILED", updated.PaymentStatus)
	}
}

func TestApplyGatewayStatus_PendingIsNoop(t *testing.T) {
	order := queuedQRISOrder()
	store := defaultReconcileStore(&order)
	svc := NewReconcileService(store, nil)

	for _, status := range []string{"pending", "authorize"} {
		_, changed, err := svc.ApplyGatewayStatus(context.Background(), order, status, "")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", status, err)
		}
		if changed {
			t.Errorf("%s must not change the order", status)
		}
	}
}

func TestApplyGatewayStatus_UnknownStatus(t *testing.T) {
	order := queuedQRISOrder()
	svc := NewReconcileService(defaultReconcileStore(&order), nil)

	_, _, err := svc.ApplyGatewayStatus(context.Background(), order, "refund", "")
	if !errors.Is(err, ErrUnknownGatewayStatus) {
		t.Fatalf("expected ErrUnknownGatewayStatus, got: %v", err)
	}
}

func TestApplyGatewayStatus_OpenBillRejected(t *testing.T) {
	order := queuedQRISOrder()
	order.PayLater = true
	svc := NewReconcileService(defaultReconcileStore(&order), nil)

	_, _, err := svc.ApplyGatewayStatus(context.Background(), order, "settlement", "")
	if !errors.Is(err, ErrOpenBillPayment) {
		t.Fatalf("expected ErrOpenBillPayment, got: %v", err)
	}
}

// =====================
// CAS race handling
// =====================

func TestApplyGatewayStatus_LostRaceConverges(t *testing.T) {
	// The stale copy passed in still says PENDING, but the stored order was
	// already paid by a concurrent webhook. The CAS misses, the reload sees
	// PAID, and the second attempt converges without writing.
	order := queuedQRISOrder()
	stale := order
	order.PaymentStatus = database.PaymentStatusPAID
	order.Status = database.OrderStatusPENDING

	store := defaultReconcileStore(&order)
	svc := NewReconcileService(store, nil)

	updated, changed, err := svc.ApplyGatewayStatus(context.Background(), stale, "settlement", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Error("losing the race must not report a change")
	}
	if updated.PaymentStatus != database.PaymentStatusPAID {
		t.Errorf("payment_status: got %v, want PAID", updated.PaymentStatus)
	}
}

// =====================
// Webhook and poll entry points
// =====================

func TestApplyWebhook_UnknownGatewayOrderID(t *testing.T) {
	order := queuedQRISOrder()
	svc := NewReconcileService(defaultReconcileStore(&order), nil)

	_, _, err := svc.ApplyWebhook(context.Background(), "ORD-missing", "settlement", "")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
}

func TestPoll_MergesGatewayAnswer(t *testing.T) {
	order := queuedQRISOrder()
	store := defaultReconcileStore(&order)
	var polledRef string
	poller := &mockStatusPoller{
		queryStatusFn: func(ctx context.Context, gatewayOrderID string) (string, error) {
			polledRef = gatewayOrderID
			return "settlement", nil
		},
	}

	svc := NewReconcileService(store, poller)
	updated, changed, err := svc.Poll(context.Background(), order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if polledRef != order.GatewayOrderID.String {
		t.Errorf("polled ref: got %q, want %q", polledRef, order.GatewayOrderID.String)
	}
	if !changed || updated.PaymentStatus != database.PaymentStatusPAID {
		t.Fatalf("poll result not merged: changed=%v status=%v", changed, updated.PaymentStatus)
	}
}

func TestPoll_NonGatewayOrder(t *testing.T) {
	order := queuedQRISOrder()
	order.GatewayOrderID = pgtype.Text{}
	svc := NewReconcileService(defaultReconcileStore(&order), &mockStatusPoller{})

	_, _, err := svc.Poll(context.Background(), order)
	if !errors.Is(err, ErrNotGatewayOrder) {
		t.Fatalf("expected ErrNotGatewayOrder, got: %v", err)
	}
}
