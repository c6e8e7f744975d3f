package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/ledger/internal/database"
	"github.com/kiwari-pos/ledger/internal/enum"
)

// Errors returned by the refund service.
var (
	ErrOrderNotPaid       = errors.New("order is not paid")
	ErrRefundExceedsTotal = errors.New("refund exceeds remaining refundable amount")
	ErrInvalidRefundType  = errors.New("invalid refund_type")
	ErrRefundNotFound     = errors.New("refund not found")
	ErrRefundNotPending   = errors.New("refund is not pending")
	ErrRefundNotApproved  = errors.New("refund is not approved")
)

// RefundStore defines the DB methods for the refund workflow.
type RefundStore interface {
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	SumCommittedRefundsByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	CreateRefund(ctx context.Context, arg database.CreateRefundParams) (database.Refund, error)
	GetRefund(ctx context.Context, id uuid.UUID) (database.Refund, error)
	ResolveRefund(ctx context.Context, arg database.ResolveRefundParams) (database.Refund, error)
	CompleteRefund(ctx context.Context, arg database.CompleteRefundParams) (database.Refund, error)
}

// NewRefundStore creates a RefundStore from a DBTX.
type NewRefundStore func(db database.DBTX) RefundStore

// RefundService runs the request/approve/complete refund workflow. The
// invariant it protects: committed refunds for an order never exceed the
// order total, checked under a row lock at both request and approval time.
type RefundService struct {
	pool     TxBeginner
	newStore NewRefundStore
}

func NewRefundService(pool TxBeginner, newStore NewRefundStore) *RefundService {
	return &RefundService{pool: pool, newStore: newStore}
}

// RequestRefundParams is the cashier's refund request.
type RequestRefundParams struct {
	OrderID     uuid.UUID
	Amount      int64
	RefundType  string
	Reason      string
	RequestedBy uuid.UUID
}

// Request files a refund against a paid order. The amount is validated
// against total minus already committed (approved or completed) refunds.
func (s *RefundService) Request(ctx context.Context, params RequestRefundParams) (database.Refund, error) {
	if params.Amount <= 0 {
		return database.Refund{}, ErrInvalidCashAmount
	}
	if params.RefundType != enum.RefundTypeCash && params.RefundType != enum.RefundTypeNonCash {
		return database.Refund{}, ErrInvalidRefundType
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Refund{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, params.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Refund{}, ErrOrderNotFound
		}
		return database.Refund{}, fmt.Errorf("lock order: %w", err)
	}
	if order.PaymentStatus != database.PaymentStatusPAID {
		return database.Refund{}, ErrOrderNotPaid
	}

	if err := s.checkCap(ctx, store, order, params.Amount); err != nil {
		return database.Refund{}, err
	}

	refund, err := store.CreateRefund(ctx, database.CreateRefundParams{
		OrderID:      order.ID,
		RefundAmount: params.Amount,
		RefundType:   database.RefundType(params.RefundType),
		Reason:       textOrNull(params.Reason),
		RequestedBy:  params.RequestedBy,
	})
	if err != nil {
		return database.Refund{}, fmt.Errorf("create refund: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Refund{}, fmt.Errorf("commit tx: %w", err)
	}
	return refund, nil
}

// Approve commits a pending refund. The cap is re-checked under the order
// lock because other refunds may have been committed since the request.
func (s *RefundService) Approve(ctx context.Context, refundID, authorizedBy uuid.UUID) (database.Refund, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Refund{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	refund, err := store.GetRefund(ctx, refundID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Refund{}, ErrRefundNotFound
		}
		return database.Refund{}, fmt.Errorf("get refund: %w", err)
	}
	if refund.Status != database.RefundStatusPENDING {
		return database.Refund{}, ErrRefundNotPending
	}

	order, err := store.GetOrderForUpdate(ctx, refund.OrderID)
	if err != nil {
		return database.Refund{}, fmt.Errorf("lock order: %w", err)
	}
	if err := s.checkCap(ctx, store, order, refund.RefundAmount); err != nil {
		return database.Refund{}, err
	}

	approved, err := store.ResolveRefund(ctx, database.ResolveRefundParams{
		ID:           refundID,
		Status:       database.RefundStatusAPPROVED,
		AuthorizedBy: authorizedBy,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Refund{}, ErrRefundNotPending
		}
		return database.Refund{}, fmt.Errorf("approve refund: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Refund{}, fmt.Errorf("commit tx: %w", err)
	}
	return approved, nil
}

// Reject closes a pending refund without committing any amount.
func (s *RefundService) Reject(ctx context.Context, refundID, authorizedBy uuid.UUID) (database.Refund, error) {
	store := s.newStore(nil)
	rejected, err := store.ResolveRefund(ctx, database.ResolveRefundParams{
		ID:           refundID,
		Status:       database.RefundStatusREJECTED,
		AuthorizedBy: authorizedBy,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := store.GetRefund(ctx, refundID); errors.Is(getErr, pgx.ErrNoRows) {
				return database.Refund{}, ErrRefundNotFound
			}
			return database.Refund{}, ErrRefundNotPending
		}
		return database.Refund{}, fmt.Errorf("reject refund: %w", err)
	}
	return rejected, nil
}

// Complete marks an approved refund as handed back to the customer.
func (s *RefundService) Complete(ctx context.Context, refundID uuid.UUID) (database.Refund, error) {
	store := s.newStore(nil)
	completed, err := store.CompleteRefund(ctx, database.CompleteRefundParams{ID: refundID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := store.GetRefund(ctx, refundID); errors.Is(getErr, pgx.ErrNoRows) {
				return database.Refund{}, ErrRefundNotFound
			}
			return database.Refund{}, ErrRefundNotApproved
		}
		return database.Refund{}, fmt.Errorf("complete refund: %w", err)
	}
	return completed, nil
}

// checkCap verifies amount fits in what is still refundable on the order.
func (s *RefundService) checkCap(ctx context.Context, store RefundStore, order database.Order, amount int64) error {
	committed, err := store.SumCommittedRefundsByOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("sum committed refunds: %w", err)
	}
	if committed+amount > order.Total {
		return fmt.Errorf("%w: requested %d, remaining %d", ErrRefundExceedsTotal, amount, order.Total-committed)
	}
	return nil
}
