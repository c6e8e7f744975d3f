package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const expenseColumns = `id, cashier_id, amount, description, spent_at`

type CreateExpenseParams struct {
	CashierID   uuid.UUID
	Amount      int64
	Description string
}

const createExpense = `
INSERT INTO expenses (cashier_id, amount, description)
VALUES ($1, $2, $3)
RETURNING ` + expenseColumns

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (Expense, error) {
	var e Expense
	err := q.db.QueryRow(ctx, createExpense, arg.CashierID, arg.Amount, arg.Description).
		Scan(&e.ID, &e.CashierID, &e.Amount, &e.Description, &e.SpentAt)
	return e, err
}

type ListExpensesByCashierInWindowParams struct {
	CashierID uuid.UUID
	StartTime pgtype.Timestamptz
	EndTime   pgtype.Timestamptz
}

const listExpensesByCashierInWindow = `
SELECT ` + expenseColumns + `
FROM expenses
WHERE cashier_id = $1 AND spent_at >= $2 AND spent_at <= $3
ORDER BY spent_at
`

func (q *Queries) ListExpensesByCashierInWindow(ctx context.Context, arg ListExpensesByCashierInWindowParams) ([]Expense, error) {
	rows, err := q.db.Query(ctx, listExpensesByCashierInWindow, arg.CashierID, arg.StartTime, arg.EndTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.CashierID, &e.Amount, &e.Description, &e.SpentAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}
