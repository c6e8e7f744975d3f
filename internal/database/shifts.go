package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const shiftColumns = `id, cashier_id, initial_cash, start_time, end_time, status,
	total_orders, total_revenue, total_cash_revenue, total_non_cash_revenue,
	system_cash, final_cash, cash_difference, notes`

func scanShift(row interface{ Scan(dest ...interface{}) error }) (Shift, error) {
	var s Shift
	err := row.Scan(
		&s.ID, &s.CashierID, &s.InitialCash, &s.StartTime, &s.EndTime, &s.Status,
		&s.TotalOrders, &s.TotalRevenue, &s.TotalCashRevenue, &s.TotalNonCashRevenue,
		&s.SystemCash, &s.FinalCash, &s.CashDifference, &s.Notes,
	)
	return s, err
}

type CreateShiftParams struct {
	CashierID   uuid.UUID
	InitialCash int64
}

const createShift = `
INSERT INTO shifts (cashier_id, initial_cash, start_time, status)
VALUES ($1, $2, NOW(), 'OPEN')
RETURNING ` + shiftColumns

func (q *Queries) CreateShift(ctx context.Context, arg CreateShiftParams) (Shift, error) {
	return scanShift(q.db.QueryRow(ctx, createShift, arg.CashierID, arg.InitialCash))
}

const getShift = `SELECT ` + shiftColumns + ` FROM shifts WHERE id = $1`

func (q *Queries) GetShift(ctx context.Context, id uuid.UUID) (Shift, error) {
	return scanShift(q.db.QueryRow(ctx, getShift, id))
}

const getOpenShiftByCashier = `
SELECT ` + shiftColumns + `
FROM shifts
WHERE cashier_id = $1 AND status = 'OPEN'
`

// GetOpenShiftByCashier returns the cashier's open shift. A partial unique
// index on (cashier_id) WHERE status = 'OPEN' guarantees at most one row.
func (q *Queries) GetOpenShiftByCashier(ctx context.Context, cashierID uuid.UUID) (Shift, error) {
	return scanShift(q.db.QueryRow(ctx, getOpenShiftByCashier, cashierID))
}

type CloseShiftParams struct {
	ID                  uuid.UUID
	TotalOrders         int64
	TotalRevenue        int64
	TotalCashRevenue    int64
	TotalNonCashRevenue int64
	SystemCash          int64
	FinalCash           int64
	CashDifference      int64
	Notes               pgtype.Text
}

const closeShift = `
UPDATE shifts
SET end_time = NOW(), status = 'CLOSED',
    total_orders = $2, total_revenue = $3,
    total_cash_revenue = $4, total_non_cash_revenue = $5,
    system_cash = $6, final_cash = $7, cash_difference = $8,
    notes = $9
WHERE id = $1 AND status = 'OPEN'
RETURNING ` + shiftColumns

// CloseShift persists the reconciliation and flips the shift to CLOSED.
// The status guard makes closing idempotent-hostile on purpose: a second
// close attempt gets pgx.ErrNoRows instead of overwriting the audit record.
func (q *Queries) CloseShift(ctx context.Context, arg CloseShiftParams) (Shift, error) {
	return scanShift(q.db.QueryRow(ctx, closeShift,
		arg.ID, arg.TotalOrders, arg.TotalRevenue,
		arg.TotalCashRevenue, arg.TotalNonCashRevenue,
		arg.SystemCash, arg.FinalCash, arg.CashDifference, arg.Notes))
}

// --- Cash movements ---

const cashMovementColumns = `id, shift_id, type, amount, description, created_at`

type CreateCashMovementParams struct {
	ShiftID     uuid.UUID
	Type        MovementType
	Amount      int64
	Description string
}

const createCashMovement = `
INSERT INTO cash_movements (shift_id, type, amount, description)
VALUES ($1, $2, $3, $4)
RETURNING ` + cashMovementColumns

func (q *Queries) CreateCashMovement(ctx context.Context, arg CreateCashMovementParams) (CashMovement, error) {
	var m CashMovement
	err := q.db.QueryRow(ctx, createCashMovement, arg.ShiftID, arg.Type, arg.Amount, arg.Description).
		Scan(&m.ID, &m.ShiftID, &m.Type, &m.Amount, &m.Description, &m.CreatedAt)
	return m, err
}

const listCashMovementsByShift = `
SELECT ` + cashMovementColumns + `
FROM cash_movements
WHERE shift_id = $1
ORDER BY created_at
`

func (q *Queries) ListCashMovementsByShift(ctx context.Context, shiftID uuid.UUID) ([]CashMovement, error) {
	rows, err := q.db.Query(ctx, listCashMovementsByShift, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []CashMovement
	for rows.Next() {
		var m CashMovement
		if err := rows.Scan(&m.ID, &m.ShiftID, &m.Type, &m.Amount, &m.Description, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}
