package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const refundColumns = `id, order_id, refund_amount, refund_type, reason, status,
	requested_by, authorized_by, created_at, processed_at`

func scanRefund(row interface{ Scan(dest ...interface{}) error }) (Refund, error) {
	var r Refund
	err := row.Scan(
		&r.ID, &r.OrderID, &r.RefundAmount, &r.RefundType, &r.Reason, &r.Status,
		&r.RequestedBy, &r.AuthorizedBy, &r.CreatedAt, &r.ProcessedAt,
	)
	return r, err
}

type CreateRefundParams struct {
	OrderID      uuid.UUID
	RefundAmount int64
	RefundType   RefundType
	Reason       pgtype.Text
	RequestedBy  uuid.UUID
}

const createRefund = `
INSERT INTO refunds (order_id, refund_amount, refund_type, reason, status, requested_by)
VALUES ($1, $2, $3, $4, 'PENDING', $5)
RETURNING ` + refundColumns

func (q *Queries) CreateRefund(ctx context.Context, arg CreateRefundParams) (Refund, error) {
	row := q.db.QueryRow(ctx, createRefund,
		arg.OrderID, arg.RefundAmount, arg.RefundType, arg.Reason, arg.RequestedBy)
	return scanRefund(row)
}

const getRefund = `SELECT ` + refundColumns + ` FROM refunds WHERE id = $1`

func (q *Queries) GetRefund(ctx context.Context, id uuid.UUID) (Refund, error) {
	return scanRefund(q.db.QueryRow(ctx, getRefund, id))
}

type ResolveRefundParams struct {
	ID           uuid.UUID
	Status       RefundStatus
	AuthorizedBy uuid.UUID
}

const resolveRefund = `
UPDATE refunds
SET status = $2, authorized_by = $3, processed_at = NOW()
WHERE id = $1 AND status = 'PENDING'
RETURNING ` + refundColumns

// ResolveRefund moves a refund out of PENDING exactly once; a raced second
// resolution gets pgx.ErrNoRows.
func (q *Queries) ResolveRefund(ctx context.Context, arg ResolveRefundParams) (Refund, error) {
	return scanRefund(q.db.QueryRow(ctx, resolveRefund, arg.ID, arg.Status, arg.AuthorizedBy))
}

type CompleteRefundParams struct {
	ID uuid.UUID
}

const completeRefund = `
UPDATE refunds
SET status = 'COMPLETED', processed_at = NOW()
WHERE id = $1 AND status = 'APPROVED'
RETURNING ` + refundColumns

func (q *Queries) CompleteRefund(ctx context.Context, arg CompleteRefundParams) (Refund, error) {
	return scanRefund(q.db.QueryRow(ctx, completeRefund, arg.ID))
}

const sumCommittedRefundsByOrder = `
SELECT COALESCE(SUM(refund_amount), 0)
FROM refunds
WHERE order_id = $1 AND status IN ('APPROVED', 'COMPLETED')
`

// SumCommittedRefundsByOrder returns the cumulative approved+completed
// refund amount for an order, used to cap further refund requests.
func (q *Queries) SumCommittedRefundsByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var sum int64
	err := q.db.QueryRow(ctx, sumCommittedRefundsByOrder, orderID).Scan(&sum)
	return sum, err
}

type ListCompletedRefundsByCashierInWindowParams struct {
	RequestedBy uuid.UUID
	StartTime   pgtype.Timestamptz
	EndTime     pgtype.Timestamptz
}

const listCompletedRefundsByCashierInWindow = `
SELECT ` + refundColumns + `
FROM refunds
WHERE requested_by = $1
  AND processed_at >= $2 AND processed_at <= $3
  AND status = 'COMPLETED'
ORDER BY processed_at
`

func (q *Queries) ListCompletedRefundsByCashierInWindow(ctx context.Context, arg ListCompletedRefundsByCashierInWindowParams) ([]Refund, error) {
	rows, err := q.db.Query(ctx, listCompletedRefundsByCashierInWindow, arg.RequestedBy, arg.StartTime, arg.EndTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refunds []Refund
	for rows.Next() {
		r, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, r)
	}
	return refunds, rows.Err()
}
