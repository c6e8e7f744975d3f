package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, customer_name, table_number, subtotal, discount, total,
	payment_method, payment_status, status, pay_later,
	gateway_order_id, gateway_transaction_id, qris_payload, qris_expiry,
	paid_at, created_by, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...interface{}) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerName, &o.TableNumber, &o.Subtotal, &o.Discount, &o.Total,
		&o.PaymentMethod, &o.PaymentStatus, &o.Status, &o.PayLater,
		&o.GatewayOrderID, &o.GatewayTransactionID, &o.QrisPayload, &o.QrisExpiry,
		&o.PaidAt, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

// Order numbers look like POS-20060102-001; the daily sequence starts at
// character 14, after the POS- prefix and the eight-digit date.
const getNextOrderNumber = `
SELECT COALESCE(MAX(CAST(SUBSTRING(order_number FROM 14) AS INTEGER)), 0) + 1
FROM orders
WHERE created_at::date = CURRENT_DATE
`

// GetNextOrderNumber returns the next sequential order number for today.
// Concurrent transactions can race on MAX; callers retry on the unique
// constraint violation.
func (q *Queries) GetNextOrderNumber(ctx context.Context) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, getNextOrderNumber).Scan(&n)
	return n, err
}

type CreateOrderParams struct {
	OrderNumber          string
	CustomerName         pgtype.Text
	TableNumber          pgtype.Text
	Subtotal             int64
	Discount             int64
	Total                int64
	PaymentMethod        PaymentMethod
	PaymentStatus        PaymentStatus
	Status               OrderStatus
	PayLater             bool
	GatewayOrderID       pgtype.Text
	GatewayTransactionID pgtype.Text
	QrisPayload          pgtype.Text
	QrisExpiry           pgtype.Timestamptz
	PaidAt               pgtype.Timestamptz
	CreatedBy            uuid.UUID
}

const createOrder = `
INSERT INTO orders (
	order_number, customer_name, table_number, subtotal, discount, total,
	payment_method, payment_status, status, pay_later,
	gateway_order_id, gateway_transaction_id, qris_payload, qris_expiry,
	paid_at, created_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING ` + orderColumns

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.OrderNumber, arg.CustomerName, arg.TableNumber, arg.Subtotal, arg.Discount, arg.Total,
		arg.PaymentMethod, arg.PaymentStatus, arg.Status, arg.PayLater,
		arg.GatewayOrderID, arg.GatewayTransactionID, arg.QrisPayload, arg.QrisExpiry,
		arg.PaidAt, arg.CreatedBy,
	)
	return scanOrder(row)
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR NO KEY UPDATE`

// GetOrderForUpdate locks the order row for the rest of the transaction,
// serializing concurrent payment and item mutations on a single order.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const getOrderByGatewayOrderID = `SELECT ` + orderColumns + ` FROM orders WHERE gateway_order_id = $1`

func (q *Queries) GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByGatewayOrderID, gatewayOrderID))
}

type ListOrdersParams struct {
	Status        pgtype.Text
	PaymentStatus pgtype.Text
	Limit         int32
	Offset        int32
}

const listOrders = `
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::text IS NULL OR status = $1)
  AND ($2::text IS NULL OR payment_status = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4
`

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.Status, arg.PaymentStatus, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

const getOpenBillByTable = `
SELECT ` + orderColumns + `
FROM orders
WHERE table_number = $1
  AND pay_later = TRUE
  AND status = 'QUEUED'
  AND payment_status = 'UNPAID'
ORDER BY created_at DESC
LIMIT 1
`

// GetOpenBillByTable finds the active open bill for a table, if any.
func (q *Queries) GetOpenBillByTable(ctx context.Context, tableNumber string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOpenBillByTable, tableNumber))
}

type AdvanceOrderStatusParams struct {
	ID         uuid.UUID
	Status     OrderStatus
	FromStatus OrderStatus
}

const advanceOrderStatus = `
UPDATE orders
SET status = $2, updated_at = NOW()
WHERE id = $1 AND status = $3
RETURNING ` + orderColumns

// AdvanceOrderStatus moves the order status forward with a compare-and-set
// on the current value. pgx.ErrNoRows means the status changed underneath
// the caller (or the order does not exist).
func (q *Queries) AdvanceOrderStatus(ctx context.Context, arg AdvanceOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, advanceOrderStatus, arg.ID, arg.Status, arg.FromStatus))
}

type UpdateOrderPaymentStatusParams struct {
	ID                   uuid.UUID
	PaymentStatus        PaymentStatus
	FromStatus           PaymentStatus
	GatewayTransactionID pgtype.Text
	PaidAt               pgtype.Timestamptz
}

const updateOrderPaymentStatus = `
UPDATE orders
SET payment_status = $2,
    gateway_transaction_id = COALESCE($4, gateway_transaction_id),
    paid_at = COALESCE(paid_at, $5),
    updated_at = NOW()
WHERE id = $1 AND payment_status = $3
RETURNING ` + orderColumns

// UpdateOrderPaymentStatus applies a payment-state transition with a
// compare-and-set on the current payment_status. Concurrent webhook and
// poll writers converge: the loser of the race gets pgx.ErrNoRows and
// re-reads. paid_at is only ever stamped once.
func (q *Queries) UpdateOrderPaymentStatus(ctx context.Context, arg UpdateOrderPaymentStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderPaymentStatus,
		arg.ID, arg.PaymentStatus, arg.FromStatus, arg.GatewayTransactionID, arg.PaidAt))
}

const payOpenBill = `
UPDATE orders
SET payment_status = 'PAID', payment_method = $2, paid_at = NOW(), updated_at = NOW()
WHERE id = $1 AND pay_later = TRUE AND payment_status = 'UNPAID'
RETURNING ` + orderColumns

type PayOpenBillParams struct {
	ID            uuid.UUID
	PaymentMethod PaymentMethod
}

// PayOpenBill settles an open bill in place. No second order row is ever
// created; the order was already dispatched to the kitchen at creation.
func (q *Queries) PayOpenBill(ctx context.Context, arg PayOpenBillParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, payOpenBill, arg.ID, arg.PaymentMethod))
}

type UpdateOrderAmountsParams struct {
	ID       uuid.UUID
	Subtotal int64
	Discount int64
	Total    int64
}

const updateOrderAmounts = `
UPDATE orders
SET subtotal = $2, discount = $3, total = $4, updated_at = NOW()
WHERE id = $1
RETURNING ` + orderColumns

func (q *Queries) UpdateOrderAmounts(ctx context.Context, arg UpdateOrderAmountsParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderAmounts, arg.ID, arg.Subtotal, arg.Discount, arg.Total))
}

type ListPaidServedOrdersInWindowParams struct {
	StartTime pgtype.Timestamptz
	EndTime   pgtype.Timestamptz
}

const listPaidServedOrdersInWindow = `
SELECT ` + orderColumns + `
FROM orders
WHERE paid_at >= $1 AND paid_at <= $2
  AND payment_status = 'PAID'
  AND status = 'SERVED'
ORDER BY paid_at
`

// ListPaidServedOrdersInWindow selects the revenue-bearing orders for a
// shift window. Failed and expired payments are excluded here by
// payment_status, never by order status.
func (q *Queries) ListPaidServedOrdersInWindow(ctx context.Context, arg ListPaidServedOrdersInWindowParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listPaidServedOrdersInWindow, arg.StartTime, arg.EndTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// --- Order items ---

const orderItemColumns = `id, order_id, menu_item_id, name, unit_price, quantity, note, position`

func scanOrderItem(row interface{ Scan(dest ...interface{}) error }) (OrderItem, error) {
	var it OrderItem
	err := row.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.UnitPrice, &it.Quantity, &it.Note, &it.Position)
	return it, err
}

type CreateOrderItemParams struct {
	OrderID    uuid.UUID
	MenuItemID uuid.UUID
	Name       string
	UnitPrice  int64
	Quantity   int32
	Note       pgtype.Text
	Position   int32
}

const createOrderItem = `
INSERT INTO order_items (order_id, menu_item_id, name, unit_price, quantity, note, position)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + orderItemColumns

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID, arg.MenuItemID, arg.Name, arg.UnitPrice, arg.Quantity, arg.Note, arg.Position)
	return scanOrderItem(row)
}

const listOrderItemsByOrder = `
SELECT ` + orderItemColumns + `
FROM order_items
WHERE order_id = $1
ORDER BY position
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		it, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

const countOrderItems = `SELECT COUNT(*) FROM order_items WHERE order_id = $1`

func (q *Queries) CountOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countOrderItems, orderID).Scan(&n)
	return n, err
}

const deleteOrderItems = `DELETE FROM order_items WHERE order_id = $1`

// DeleteOrderItems clears all items of an order prior to a full replace.
func (q *Queries) DeleteOrderItems(ctx context.Context, orderID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteOrderItems, orderID)
	return err
}

type DeleteOrderItemAtPositionParams struct {
	OrderID  uuid.UUID
	Position int32
}

const deleteOrderItemAtPosition = `
DELETE FROM order_items WHERE order_id = $1 AND position = $2
RETURNING ` + orderItemColumns

// DeleteOrderItemAtPosition removes the item at the given zero-based index.
// pgx.ErrNoRows means the index no longer exists.
func (q *Queries) DeleteOrderItemAtPosition(ctx context.Context, arg DeleteOrderItemAtPositionParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, deleteOrderItemAtPosition, arg.OrderID, arg.Position))
}

const shiftOrderItemPositions = `
UPDATE order_items SET position = position - 1
WHERE order_id = $1 AND position > $2
`

// ShiftOrderItemPositions closes the gap left by a deleted item so that
// positions stay dense zero-based indices.
func (q *Queries) ShiftOrderItemPositions(ctx context.Context, arg DeleteOrderItemAtPositionParams) error {
	_, err := q.db.Exec(ctx, shiftOrderItemPositions, arg.OrderID, arg.Position)
	return err
}
