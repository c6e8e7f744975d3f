package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type SalesWindowParams struct {
	StartTime pgtype.Timestamptz
	EndTime   pgtype.Timestamptz
}

type GetDailySalesRow struct {
	SaleDate     pgtype.Date
	OrderCount   int64
	GrossRevenue int64
	Discounts    int64
	NetRevenue   int64
}

const getDailySales = `
SELECT paid_at::date AS sale_date,
       COUNT(*) AS order_count,
       COALESCE(SUM(subtotal), 0) AS gross_revenue,
       COALESCE(SUM(discount), 0) AS discounts,
       COALESCE(SUM(total), 0) AS net_revenue
FROM orders
WHERE paid_at >= $1 AND paid_at <= $2 AND payment_status = 'PAID'
GROUP BY paid_at::date
ORDER BY sale_date
`

func (q *Queries) GetDailySales(ctx context.Context, arg SalesWindowParams) ([]GetDailySalesRow, error) {
	rows, err := q.db.Query(ctx, getDailySales, arg.StartTime, arg.EndTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []GetDailySalesRow
	for rows.Next() {
		var r GetDailySalesRow
		if err := rows.Scan(&r.SaleDate, &r.OrderCount, &r.GrossRevenue, &r.Discounts, &r.NetRevenue); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

type GetPaymentSummaryRow struct {
	PaymentMethod PaymentMethod
	OrderCount    int64
	TotalAmount   int64
}

const getPaymentSummary = `
SELECT payment_method,
       COUNT(*) AS order_count,
       COALESCE(SUM(total), 0) AS total_amount
FROM orders
WHERE paid_at >= $1 AND paid_at <= $2 AND payment_status = 'PAID'
GROUP BY payment_method
ORDER BY payment_method
`

func (q *Queries) GetPaymentSummary(ctx context.Context, arg SalesWindowParams) ([]GetPaymentSummaryRow, error) {
	rows, err := q.db.Query(ctx, getPaymentSummary, arg.StartTime, arg.EndTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []GetPaymentSummaryRow
	for rows.Next() {
		var r GetPaymentSummaryRow
		if err := rows.Scan(&r.PaymentMethod, &r.OrderCount, &r.TotalAmount); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
