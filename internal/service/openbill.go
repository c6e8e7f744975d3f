package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/ledger/internal/database"
	"github.com/kiwari-pos/ledger/internal/enum"
)

// Errors returned by the open-bill service.
var (
	ErrTableRequired   = errors.New("table_number is required for open bills")
	ErrBillNotOpen     = errors.New("bill is not open")
	ErrBillAlreadyPaid = errors.New("bill is already paid")
	ErrNotOpenBill     = errors.New("order is not an open bill")
)

// OpenBillStore defines the DB methods for the pay-later lifecycle.
type OpenBillStore interface {
	GetNextOrderNumber(ctx context.Context) (int32, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	GetOpenBillByTable(ctx context.Context, tableNumber string) (database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	CountOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error)
	DeleteOrderItems(ctx context.Context, orderID uuid.UUID) error
	UpdateOrderAmounts(ctx context.Context, arg database.UpdateOrderAmountsParams) (database.Order, error)
	AdvanceOrderStatus(ctx context.Context, arg database.AdvanceOrderStatusParams) (database.Order, error)
	PayOpenBill(ctx context.Context, arg database.PayOpenBillParams) (database.Order, error)
}

// NewOpenBillStore creates an OpenBillStore from a DBTX.
type NewOpenBillStore func(db database.DBTX) OpenBillStore

// OpenBillRequest carries the lines to place on a table's bill.
type OpenBillRequest struct {
	CustomerName string
	TableNumber  string
	CreatedBy    uuid.UUID
	Items        []CreateOrderItemRequest
}

// OpenBillResult is the bill after a create, append or replace.
type OpenBillResult struct {
	Order database.Order
	Items []database.OrderItem
	// Appended is false when this call created the table's bill.
	Appended bool
}

// OpenBillService manages pay-later bills: one bill per occupied table, new
// rounds appended to it, payment deferred until the table closes out.
type OpenBillService struct {
	pool     TxBeginner
	newStore NewOpenBillStore
}

func NewOpenBillService(pool TxBeginner, newStore NewOpenBillStore) *OpenBillService {
	return &OpenBillService{pool: pool, newStore: newStore}
}

// Place adds the requested lines to the table's bill, creating the bill if
// the table has none. The open-bill lookup and the append happen in one
// transaction, so two waiters submitting rounds for the same table can
// never produce two bills.
func (s *OpenBillService) Place(ctx context.Context, req OpenBillRequest) (*OpenBillResult, error) {
	if req.TableNumber == "" {
		return nil, ErrTableRequired
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.placeTx(ctx, req)
		if err == nil {
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

func (s *OpenBillService) placeTx(ctx context.Context, req OpenBillRequest) (*OpenBillResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	appended := false
	bill, err := store.GetOpenBillByTable(ctx, req.TableNumber)
	switch {
	case err == nil:
		// Lock the bill before appending so concurrent rounds serialize.
		bill, err = store.GetOrderForUpdate(ctx, bill.ID)
		if err != nil {
			return nil, fmt.Errorf("lock open bill: %w", err)
		}
		if isOpenBill(bill) {
			appended = true
		} else {
			// Paid or submitted between the lookup and the lock. The table
			// is starting over with a fresh bill.
			bill, err = s.createBill(ctx, store, req)
			if err != nil {
				return nil, err
			}
		}
	case errors.Is(err, pgx.ErrNoRows):
		bill, err = s.createBill(ctx, store, req)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("get open bill: %w", err)
	}

	_, added, err := s.appendItems(ctx, store, bill.ID, req.Items)
	if err != nil {
		return nil, err
	}

	subtotal := bill.Subtotal + added
	total := subtotal - bill.Discount
	bill, err = store.UpdateOrderAmounts(ctx, database.UpdateOrderAmountsParams{
		ID:       bill.ID,
		Subtotal: subtotal,
		Discount: bill.Discount,
		Total:    total,
	})
	if err != nil {
		return nil, fmt.Errorf("update bill amounts: %w", err)
	}

	items, err := store.ListOrderItemsByOrder(ctx, bill.ID)
	if err != nil {
		return nil, fmt.Errorf("list bill items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &OpenBillResult{Order: bill, Items: items, Appended: appended}, nil
}

// Replace swaps the bill's entire item list for the given one, repricing
// every line from the current menu. Used when the table edits its order
// before submitting to the kitchen.
func (s *OpenBillService) Replace(ctx context.Context, billID uuid.UUID, items []CreateOrderItemRequest) (*OpenBillResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	bill, err := store.GetOrderForUpdate(ctx, billID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock bill: %w", err)
	}
	if err := checkOpenBill(bill); err != nil {
		return nil, err
	}

	if err := store.DeleteOrderItems(ctx, bill.ID); err != nil {
		return nil, fmt.Errorf("clear bill items: %w", err)
	}

	_, subtotal, err := s.appendItems(ctx, store, bill.ID, items)
	if err != nil {
		return nil, err
	}

	total := subtotal - bill.Discount
	if total < 0 {
		// The replaced list no longer covers the discount; drop it.
		bill.Discount = 0
		total = subtotal
	}
	bill, err = store.UpdateOrderAmounts(ctx, database.UpdateOrderAmountsParams{
		ID:       bill.ID,
		Subtotal: subtotal,
		Discount: bill.Discount,
		Total:    total,
	})
	if err != nil {
		return nil, fmt.Errorf("update bill amounts: %w", err)
	}

	newItems, err := store.ListOrderItemsByOrder(ctx, bill.ID)
	if err != nil {
		return nil, fmt.Errorf("list bill items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &OpenBillResult{Order: bill, Items: newItems, Appended: false}, nil
}

// Submit dispatches the bill to the kitchen (QUEUED -> PENDING). Payment
// status is untouched; the bill stays unpaid until Pay.
func (s *OpenBillService) Submit(ctx context.Context, billID uuid.UUID) (database.Order, error) {
	store := s.newStore(nil)
	order, err := store.AdvanceOrderStatus(ctx, database.AdvanceOrderStatusParams{
		ID:         billID,
		Status:     database.OrderStatusPENDING,
		FromStatus: database.OrderStatusQUEUED,
	})
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return database.Order{}, fmt.Errorf("submit bill: %w", err)
	}

	existing, getErr := store.GetOrder(ctx, billID)
	if getErr != nil {
		if errors.Is(getErr, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get bill: %w", getErr)
	}
	if !existing.PayLater {
		return database.Order{}, ErrNotOpenBill
	}
	return database.Order{}, ErrBillNotOpen
}

// Pay settles the bill in place with the method the customer chose at the
// counter. The bill row itself flips UNPAID -> PAID; no second order is
// created.
func (s *OpenBillService) Pay(ctx context.Context, billID uuid.UUID, method string) (database.Order, error) {
	if method != enum.PaymentMethodCash && method != enum.PaymentMethodQRIS {
		return database.Order{}, ErrInvalidPaymentMethod
	}

	store := s.newStore(nil)
	order, err := store.PayOpenBill(ctx, database.PayOpenBillParams{
		ID:            billID,
		PaymentMethod: database.PaymentMethod(method),
	})
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return database.Order{}, fmt.Errorf("pay bill: %w", err)
	}

	existing, getErr := store.GetOrder(ctx, billID)
	if getErr != nil {
		if errors.Is(getErr, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get bill: %w", getErr)
	}
	if !existing.PayLater {
		return database.Order{}, ErrNotOpenBill
	}
	return database.Order{}, ErrBillAlreadyPaid
}

// FindByTable returns the table's current open bill with its items.
func (s *OpenBillService) FindByTable(ctx context.Context, tableNumber string) (database.Order, []database.OrderItem, error) {
	store := s.newStore(nil)
	bill, err := store.GetOpenBillByTable(ctx, tableNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, nil, ErrOrderNotFound
		}
		return database.Order{}, nil, fmt.Errorf("get open bill: %w", err)
	}
	items, err := store.ListOrderItemsByOrder(ctx, bill.ID)
	if err != nil {
		return database.Order{}, nil, fmt.Errorf("list bill items: %w", err)
	}
	return bill, items, nil
}

// createBill inserts a fresh pay-later order for the table. Payment method
// is a CASH placeholder until Pay records the real one.
func (s *OpenBillService) createBill(ctx context.Context, store OpenBillStore, req OpenBillRequest) (database.Order, error) {
	nextNum, err := store.GetNextOrderNumber(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("get next order number: %w", err)
	}
	bill, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OrderNumber:   fmt.Sprintf("POS-%s-%03d", time.Now().Format("20060102"), nextNum),
		CustomerName:  textOrNull(req.CustomerName),
		TableNumber:   textOrNull(req.TableNumber),
		PaymentMethod: database.PaymentMethodCASH,
		PaymentStatus: database.PaymentStatusUNPAID,
		Status:        database.OrderStatusQUEUED,
		PayLater:      true,
		CreatedBy:     req.CreatedBy,
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("create bill: %w", err)
	}
	return bill, nil
}

// appendItems prices and inserts the lines after the bill's existing items,
// returning the added subtotal.
func (s *OpenBillService) appendItems(ctx context.Context, store OpenBillStore, billID uuid.UUID, reqItems []CreateOrderItemRequest) ([]database.OrderItem, int64, error) {
	count, err := store.CountOrderItems(ctx, billID)
	if err != nil {
		return nil, 0, fmt.Errorf("count bill items: %w", err)
	}
	position := int32(count)

	var created []database.OrderItem
	var added int64
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

		oi, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:    billID,
			MenuItemID: menuItemID,
			Name:       menuItem.Name,
			UnitPrice:  menuItem.Price,
			Quantity:   item.Quantity,
			Note:       textOrNull(item.Note),
			Position:   position,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("create bill item: %w", err)
		}
		position++
		created = append(created, oi)
		added += menuItem.Price * int64(item.Quantity)
	}
	return created, added, nil
}

func isOpenBill(o database.Order) bool {
	return o.PayLater &&
		o.Status == database.OrderStatusQUEUED &&
		o.PaymentStatus == database.PaymentStatusUNPAID
}

func checkOpenBill(o database.Order) error {
	if !o.PayLater {
		return ErrNotOpenBill
	}
	if o.PaymentStatus == database.PaymentStatusPAID {
		return ErrBillAlreadyPaid
	}
	if o.Status != database.OrderStatusQUEUED {
		return ErrBillNotOpen
	}
	return nil
}
