package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/ledger/internal/database"
)

// Errors returned by the deletion-approval service.
var (
	ErrItemIndexOutOfRange  = errors.New("item index out of range")
	ErrDeletionNotFound     = errors.New("deletion request not found")
	ErrDeletionNotPending   = errors.New("deletion request is not pending")
	ErrStaleItemIndex       = errors.New("order items changed since the request was filed")
	ErrLastItem             = errors.New("cannot delete the only remaining item")
	ErrBillNotModifiable    = errors.New("items can only be deleted from an unpaid open bill")
	ErrItemSnapshotMismatch = errors.New("item at index no longer matches the requested item")
)

// DeletionStore defines the DB methods for the item-deletion workflow.
type DeletionStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	DeleteOrderItemAtPosition(ctx context.Context, arg database.DeleteOrderItemAtPositionParams) (database.OrderItem, error)
	ShiftOrderItemPositions(ctx context.Context, arg database.DeleteOrderItemAtPositionParams) error
	UpdateOrderAmounts(ctx context.Context, arg database.UpdateOrderAmountsParams) (database.Order, error)
	CreateDeletionRequest(ctx context.Context, arg database.CreateDeletionRequestParams) (database.DeletionRequest, error)
	GetDeletionRequest(ctx context.Context, id uuid.UUID) (database.DeletionRequest, error)
	ResolveDeletionRequest(ctx context.Context, arg database.ResolveDeletionRequestParams) (database.DeletionRequest, error)
	ListDeletionRequestsByStatus(ctx context.Context, status database.DeletionStatus) ([]database.DeletionRequest, error)
}

// NewDeletionStore creates a DeletionStore from a DBTX.
type NewDeletionStore func(db database.DBTX) DeletionStore

// DeletionService runs the two-person item deletion workflow: a cashier
// files a request against an open bill, a manager approves or rejects it.
// The resolved request row is the permanent deletion log.
type DeletionService struct {
	pool     TxBeginner
	newStore NewDeletionStore
	notifier Notifier
}

func NewDeletionService(pool TxBeginner, newStore NewDeletionStore, notifier Notifier) *DeletionService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &DeletionService{pool: pool, newStore: newStore, notifier: notifier}
}

// RequestDeletionParams identifies the item by its zero-based index in the
// bill's item list.
type RequestDeletionParams struct {
	OrderID     uuid.UUID
	ItemIndex   int32
	Reason      string
	RequestedBy uuid.UUID
}

// Request files a deletion request, snapshotting the targeted item so the
// approver sees exactly what the cashier pointed at.
func (s *DeletionService) Request(ctx context.Context, params RequestDeletionParams) (database.DeletionRequest, error) {
	store := s.newStore(nil)

	order, err := store.GetOrder(ctx, params.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.DeletionRequest{}, ErrOrderNotFound
		}
		return database.DeletionRequest{}, fmt.Errorf("get order: %w", err)
	}
	if !order.PayLater || order.PaymentStatus != database.PaymentStatusUNPAID {
		return database.DeletionRequest{}, ErrBillNotModifiable
	}

	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return database.DeletionRequest{}, fmt.Errorf("list order items: %w", err)
	}
	if params.ItemIndex < 0 || int(params.ItemIndex) >= len(items) {
		return database.DeletionRequest{}, ErrItemIndexOutOfRange
	}
	target := items[params.ItemIndex]

	request, err := store.CreateDeletionRequest(ctx, database.CreateDeletionRequestParams{
		OrderID:       order.ID,
		ItemIndex:     params.ItemIndex,
		ItemName:      target.Name,
		ItemQuantity:  target.Quantity,
		ItemUnitPrice: target.UnitPrice,
		Reason:        params.Reason,
		RequestedBy:   params.RequestedBy,
	})
	if err != nil {
		return database.DeletionRequest{}, fmt.Errorf("create deletion request: %w", err)
	}

	s.notifier.Broadcast(ChannelCashier, "deletion.requested", request)
	return request, nil
}

// ApproveResult is the resolved request and the bill as mutated.
type ApproveResult struct {
	Request database.DeletionRequest
	Order   database.Order
}

// Approve deletes the requested item and resolves the request, all in one
// transaction. The item list may have changed since the request was filed,
// so the index and the snapshot are both re-checked under the order lock;
// a mismatch fails with a conflict and leaves the request pending.
func (s *DeletionService) Approve(ctx context.Context, requestID, authorizedBy uuid.UUID) (*ApproveResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	request, err := store.GetDeletionRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeletionNotFound
		}
		return nil, fmt.Errorf("get deletion request: %w", err)
	}
	if request.Status != database.DeletionStatusPENDING {
		return nil, ErrDeletionNotPending
	}

	order, err := store.GetOrderForUpdate(ctx, request.OrderID)
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if !order.PayLater || order.PaymentStatus != database.PaymentStatusUNPAID {
		return nil, ErrBillNotModifiable
	}

	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	if int(request.ItemIndex) >= len(items) {
		return nil, ErrStaleItemIndex
	}
	if len(items) == 1 {
		return nil, ErrLastItem
	}
	target := items[request.ItemIndex]
	if target.Name != request.ItemName || target.Quantity != request.ItemQuantity || target.UnitPrice != request.ItemUnitPrice {
		return nil, ErrItemSnapshotMismatch
	}

	deleted, err := store.DeleteOrderItemAtPosition(ctx, database.DeleteOrderItemAtPositionParams{
		OrderID:  order.ID,
		Position: request.ItemIndex,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaleItemIndex
		}
		return nil, fmt.Errorf("delete order item: %w", err)
	}
	if err := store.ShiftOrderItemPositions(ctx, database.DeleteOrderItemAtPositionParams{
		OrderID:  order.ID,
		Position: request.ItemIndex,
	}); err != nil {
		return nil, fmt.Errorf("reindex order items: %w", err)
	}

	subtotal := order.Subtotal - deleted.UnitPrice*int64(deleted.Quantity)
	discount := order.Discount
	total := subtotal - discount
	if total < 0 {
		discount = 0
		total = subtotal
	}
	order, err = store.UpdateOrderAmounts(ctx, database.UpdateOrderAmountsParams{
		ID:       order.ID,
		Subtotal: subtotal,
		Discount: discount,
		Total:    total,
	})
	if err != nil {
		return nil, fmt.Errorf("update order amounts: %w", err)
	}

	request, err = store.ResolveDeletionRequest(ctx, database.ResolveDeletionRequestParams{
		ID:           requestID,
		Status:       database.DeletionStatusAPPROVED,
		AuthorizedBy: authorizedBy,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeletionNotPending
		}
		return nil, fmt.Errorf("resolve deletion request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.notifier.Broadcast(ChannelKitchen, "deletion.approved", request)
	return &ApproveResult{Request: request, Order: order}, nil
}

// Reject settles the request without touching the bill.
func (s *DeletionService) Reject(ctx context.Context, requestID, authorizedBy uuid.UUID) (database.DeletionRequest, error) {
	store := s.newStore(nil)
	request, err := store.ResolveDeletionRequest(ctx, database.ResolveDeletionRequestParams{
		ID:           requestID,
		Status:       database.DeletionStatusREJECTED,
		AuthorizedBy: authorizedBy,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := store.GetDeletionRequest(ctx, requestID); errors.Is(getErr, pgx.ErrNoRows) {
				return database.DeletionRequest{}, ErrDeletionNotFound
			}
			return database.DeletionRequest{}, ErrDeletionNotPending
		}
		return database.DeletionRequest{}, fmt.Errorf("resolve deletion request: %w", err)
	}
	return request, nil
}

// ListPending returns the approval queue for managers.
func (s *DeletionService) ListPending(ctx context.Context) ([]database.DeletionRequest, error) {
	requests, err := s.newStore(nil).ListDeletionRequestsByStatus(ctx, database.DeletionStatusPENDING)
	if err != nil {
		return nil, fmt.Errorf("list pending deletion requests: %w", err)
	}
	return requests, nil
}
