package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/ledger/internal/database"
	"github.com/kiwari-pos/ledger/internal/enum"
)

// Errors returned by payment reconciliation.
var (
	ErrUnknownGatewayStatus = errors.New("unknown gateway transaction status")
	ErrNotGatewayOrder      = errors.New("order has no gateway charge")
	ErrOpenBillPayment      = errors.New("open bills are settled at the counter, not by the gateway")
)

// ReconcileStore defines the DB methods needed to merge gateway state.
type ReconcileStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (database.Order, error)
	UpdateOrderPaymentStatus(ctx context.Context, arg database.UpdateOrderPaymentStatusParams) (database.Order, error)
	AdvanceOrderStatus(ctx context.Context, arg database.AdvanceOrderStatusParams) (database.Order, error)
}

// StatusPoller queries the gateway for the authoritative transaction status.
// Satisfied by *gateway.Client.
type StatusPoller interface {
	QueryStatus(ctx context.Context, gatewayOrderID string) (string, error)
}

// PaidHook runs after an order transitions to PAID. Hooks are best effort:
// a panicking or failing hook is logged and never unwinds the transition.
type PaidHook func(ctx context.Context, order database.Order)

// ReconcileService merges gateway transaction statuses into the order
// ledger. Webhook pushes and status polls both funnel through Apply, so the
// two paths cannot diverge.
type ReconcileService struct {
	store  ReconcileStore
	poller StatusPoller
	hooks  []PaidHook
}

func NewReconcileService(store ReconcileStore, poller StatusPoller) *ReconcileService {
	return &ReconcileService{store: store, poller: poller}
}

// OnPaid registers a hook to run after a transition to PAID. Not safe to
// call after the service starts receiving traffic.
func (s *ReconcileService) OnPaid(h PaidHook) {
	s.hooks = append(s.hooks, h)
}

// MapGatewayStatus translates the gateway's transaction_status vocabulary
// into a payment status. The second return is false for statuses that carry
// no ledger meaning (pending, authorize).
func MapGatewayStatus(txStatus string) (database.PaymentStatus, bool) {
	switch txStatus {
	case enum.GatewayStatusSettlement, enum.GatewayStatusCapture:
		return database.PaymentStatusPAID, true
	case enum.GatewayStatusDeny, enum.GatewayStatusCancel, enum.GatewayStatusFailure:
		return database.PaymentStatusFAILED, true
	case enum.GatewayStatusExpire:
		return database.PaymentStatusEXPIRED, true
	case enum.GatewayStatusPending:
		return "", false
	default:
		return "", false
	}
}

// ApplyGatewayStatus merges one gateway report into the order. Returns the
// (possibly updated) order and whether this call changed it.
//
// The merge is idempotent: re-delivered webhooks and poll results for a
// status the order already carries are acknowledged without effect, and
// paid_at is stamped exactly once by the conditional UPDATE underneath.
func (s *ReconcileService) ApplyGatewayStatus(ctx context.Context, order database.Order, txStatus, gatewayTxID string) (database.Order, bool, error) {
	if order.PayLater {
		return order, false, ErrOpenBillPayment
	}

	target, ok := MapGatewayStatus(txStatus)
	if !ok {
		if txStatus == enum.GatewayStatusPending || txStatus == enum.GatewayStatusAuthorize {
			return order, false, nil
		}
		return order, false, fmt.Errorf("%w: %q", ErrUnknownGatewayStatus, txStatus)
	}

	// Two attempts cover the webhook/poll race: if our compare-and-set loses,
	// re-read and either converge or retry from the fresh status.
	for attempt := 0; attempt < 2; attempt++ {
		if order.PaymentStatus == target {
			return order, false, nil
		}
		// Terminal states never regress. A FAILED order that later reports
		// settlement is an operator problem, not a ledger transition.
		if isTerminalPayment(order.PaymentStatus) {
			log.Printf("WARN: order %s ignoring gateway status %q over terminal payment status %s",
				order.OrderNumber, txStatus, order.PaymentStatus)
			return order, false, nil
		}

		params := database.UpdateOrderPaymentStatusParams{
			ID:            order.ID,
			PaymentStatus: target,
			FromStatus:    order.PaymentStatus,
		}
		if gatewayTxID != "" {
			params.GatewayTransactionID = pgtype.Text{String: gatewayTxID, Valid: true}
		}
		if target == database.PaymentStatusPAID {
			params.PaidAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
		}

		updated, err := s.store.UpdateOrderPaymentStatus(ctx, params)
		if err == nil {
			if target == database.PaymentStatusPAID {
				updated = s.afterPaid(ctx, updated)
			}
			return updated, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return order, false, fmt.Errorf("update payment status: %w", err)
		}

		order, err = s.store.GetOrder(ctx, order.ID)
		if err != nil {
			return order, false, fmt.Errorf("reload order: %w", err)
		}
	}
	return order, false, nil
}

// ApplyWebhook resolves the order by the gateway's order_id and merges the
// notification.
func (s *ReconcileService) ApplyWebhook(ctx context.Context, gatewayOrderID, txStatus, gatewayTxID string) (database.Order, bool, error) {
	order, err := s.store.GetOrderByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, false, ErrOrderNotFound
		}
		return database.Order{}, false, fmt.Errorf("get order by gateway id: %w", err)
	}
	return s.ApplyGatewayStatus(ctx, order, txStatus, gatewayTxID)
}

// Lookup fetches an order by ID with the service's error vocabulary.
func (s *ReconcileService) Lookup(ctx context.Context, id uuid.UUID) (database.Order, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// Poll asks the gateway for the current status of the order's charge and
// merges the answer. Used as the cashier-driven fallback when webhooks are
// delayed or lost.
func (s *ReconcileService) Poll(ctx context.Context, order database.Order) (database.Order, bool, error) {
	if !order.GatewayOrderID.Valid {
		return order, false, ErrNotGatewayOrder
	}
	txStatus, err := s.poller.QueryStatus(ctx, order.GatewayOrderID.String)
	if err != nil {
		return order, false, fmt.Errorf("query gateway status: %w", err)
	}
	return s.ApplyGatewayStatus(ctx, order, txStatus, "")
}

// afterPaid advances the kitchen status off QUEUED if needed and runs the
// registered hooks.
func (s *ReconcileService) afterPaid(ctx context.Context, order database.Order) database.Order {
	if order.Status == database.OrderStatusQUEUED {
		advanced, err := s.store.AdvanceOrderStatus(ctx, database.AdvanceOrderStatusParams{
			ID:         order.ID,
			Status:     database.OrderStatusPENDING,
			FromStatus: database.OrderStatusQUEUED,
		})
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				log.Printf("ERROR: order %s dispatch after payment: %v", order.OrderNumber, err)
			}
		} else {
			order = advanced
		}
	}

	for _, hook := range s.hooks {
		runPaidHook(ctx, hook, order)
	}
	return order
}

func runPaidHook(ctx context.Context, hook PaidHook, order database.Order) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: paid hook panicked for order %s: %v", order.OrderNumber, r)
		}
	}()
	hook(ctx, order)
}

func isTerminalPayment(s database.PaymentStatus) bool {
	switch s {
	case database.PaymentStatusPAID, database.PaymentStatusFAILED, database.PaymentStatusEXPIRED:
		return true
	}
	return false
}
