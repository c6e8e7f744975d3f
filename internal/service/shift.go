package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/ledger/internal/database"
)

// Errors returned by the shift service.
var (
	ErrShiftAlreadyOpen  = errors.New("cashier already has an open shift")
	ErrNoOpenShift       = errors.New("no open shift for cashier")
	ErrShiftNotFound     = errors.New("shift not found")
	ErrShiftClosed       = errors.New("shift is already closed")
	ErrShiftNotOwned     = errors.New("shift belongs to another cashier")
	ErrInvalidCashAmount = errors.New("amount must be > 0")
)

// ShiftStore defines the DB methods for the shift lifecycle and the ledgers
// read during reconciliation.
type ShiftStore interface {
	CreateShift(ctx context.Context, arg database.CreateShiftParams) (database.Shift, error)
	GetShift(ctx context.Context, id uuid.UUID) (database.Shift, error)
	GetOpenShiftByCashier(ctx context.Context, cashierID uuid.UUID) (database.Shift, error)
	CloseShift(ctx context.Context, arg database.CloseShiftParams) (database.Shift, error)
	CreateCashMovement(ctx context.Context, arg database.CreateCashMovementParams) (database.CashMovement, error)
	ListCashMovementsByShift(ctx context.Context, shiftID uuid.UUID) ([]database.CashMovement, error)
	ListPaidServedOrdersInWindow(ctx context.Context, arg database.ListPaidServedOrdersInWindowParams) ([]database.Order, error)
	ListExpensesByCashierInWindow(ctx context.Context, arg database.ListExpensesByCashierInWindowParams) ([]database.Expense, error)
	ListCompletedRefundsByCashierInWindow(ctx context.Context, arg database.ListCompletedRefundsByCashierInWindowParams) ([]database.Refund, error)
}

// NewShiftStore creates a ShiftStore from a DBTX.
type NewShiftStore func(db database.DBTX) ShiftStore

// ShiftService owns the cashier shift lifecycle: open, drawer movements,
// and the closing reconciliation.
type ShiftService struct {
	pool     SnapshotTxBeginner
	newStore NewShiftStore
}

func NewShiftService(pool SnapshotTxBeginner, newStore NewShiftStore) *ShiftService {
	return &ShiftService{pool: pool, newStore: newStore}
}

// Open starts a shift with the counted opening float. The partial unique
// index on open shifts backs the application-level check, so two concurrent
// opens cannot both succeed.
func (s *ShiftService) Open(ctx context.Context, cashierID uuid.UUID, initialCash int64) (database.Shift, error) {
	if initialCash < 0 {
		return database.Shift{}, ErrInvalidCashAmount
	}
	store := s.newStore(nil)

	if _, err := store.GetOpenShiftByCashier(ctx, cashierID); err == nil {
		return database.Shift{}, ErrShiftAlreadyOpen
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return database.Shift{}, fmt.Errorf("check open shift: %w", err)
	}

	shift, err := store.CreateShift(ctx, database.CreateShiftParams{
		CashierID:   cashierID,
		InitialCash: initialCash,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return database.Shift{}, ErrShiftAlreadyOpen
		}
		return database.Shift{}, fmt.Errorf("create shift: %w", err)
	}
	return shift, nil
}

// Current returns the cashier's open shift.
func (s *ShiftService) Current(ctx context.Context, cashierID uuid.UUID) (database.Shift, error) {
	shift, err := s.newStore(nil).GetOpenShiftByCashier(ctx, cashierID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Shift{}, ErrNoOpenShift
		}
		return database.Shift{}, fmt.Errorf("get open shift: %w", err)
	}
	return shift, nil
}

// RecordMovement logs a manual drawer adjustment (change float in, bank
// drop out) against the cashier's open shift.
func (s *ShiftService) RecordMovement(ctx context.Context, cashierID uuid.UUID, movementType database.MovementType, amount int64, description string) (database.CashMovement, error) {
	if amount <= 0 {
		return database.CashMovement{}, ErrInvalidCashAmount
	}

	store := s.newStore(nil)
	shift, err := store.GetOpenShiftByCashier(ctx, cashierID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.CashMovement{}, ErrNoOpenShift
		}
		return database.CashMovement{}, fmt.Errorf("get open shift: %w", err)
	}

	movement, err := store.CreateCashMovement(ctx, database.CreateCashMovementParams{
		ShiftID:     shift.ID,
		Type:        movementType,
		Amount:      amount,
		Description: description,
	})
	if err != nil {
		return database.CashMovement{}, fmt.Errorf("create cash movement: %w", err)
	}
	return movement, nil
}

// CloseShiftResult is the persisted shift plus the full reconciliation
// breakdown for the closing receipt. The cash and non-cash revenue buckets
// are net of completed refunds of the matching type; TotalRevenue is gross.
type CloseShiftResult struct {
	Shift               database.Shift
	TotalOrders         int64
	TotalRevenue        int64
	TotalCashRevenue    int64
	TotalNonCashRevenue int64
	CashRefunds         int64
	NonCashRefunds      int64
	CashExpenses        int64
	CashIn              int64
	CashOut             int64
	SystemCash          int64
	FinalCash           int64
	CashDifference      int64
}

// Close reconciles and closes the cashier's shift against the counted
// drawer. All ledgers are read inside one repeatable-read transaction so
// the totals come from a single consistent snapshot. Completed refunds are
// split by type and netted against the matching revenue bucket:
//
//	systemCash = initialCash + netCashRevenue
//	           + cashIn - cashOut - cashExpenses
//	cashDifference = finalCash - systemCash
//
// Revenue counts only orders that are both PAID and SERVED inside the shift
// window; failed and expired payments never contribute.
func (s *ShiftService) Close(ctx context.Context, cashierID, shiftID uuid.UUID, finalCash int64, notes string) (*CloseShiftResult, error) {
	if finalCash < 0 {
		return nil, ErrInvalidCashAmount
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	shift, err := store.GetShift(ctx, shiftID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShiftNotFound
		}
		return nil, fmt.Errorf("get shift: %w", err)
	}
	if shift.CashierID != cashierID {
		return nil, ErrShiftNotOwned
	}
	if shift.Status != database.ShiftStatusOPEN {
		return nil, ErrShiftClosed
	}

	now := time.Now()
	window := database.ListPaidServedOrdersInWindowParams{
		StartTime: pgtype.Timestamptz{Time: shift.StartTime, Valid: true},
		EndTime:   pgtype.Timestamptz{Time: now, Valid: true},
	}

	orders, err := store.ListPaidServedOrdersInWindow(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("list revenue orders: %w", err)
	}

	result := &CloseShiftResult{FinalCash: finalCash}
	for _, o := range orders {
		result.TotalOrders++
		result.TotalRevenue += o.Total
		if o.PaymentMethod == database.PaymentMethodCASH {
			result.TotalCashRevenue += o.Total
		} else {
			result.TotalNonCashRevenue += o.Total
		}
	}

	refunds, err := store.ListCompletedRefundsByCashierInWindow(ctx, database.ListCompletedRefundsByCashierInWindowParams{
		RequestedBy: cashierID,
		StartTime:   window.StartTime,
		EndTime:     window.EndTime,
	})
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	for _, r := range refunds {
		if r.RefundType == database.RefundTypeCASH {
			result.CashRefunds += r.RefundAmount
		} else {
			result.NonCashRefunds += r.RefundAmount
		}
	}
	// Net each bucket; only the cash side touches the drawer.
	result.TotalCashRevenue -= result.CashRefunds
	result.TotalNonCashRevenue -= result.NonCashRefunds

	expenses, err := store.ListExpensesByCashierInWindow(ctx, database.ListExpensesByCashierInWindowParams{
		CashierID: cashierID,
		StartTime: window.StartTime,
		EndTime:   window.EndTime,
	})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	for _, e := range expenses {
		result.CashExpenses += e.Amount
	}

	movements, err := store.ListCashMovementsByShift(ctx, shift.ID)
	if err != nil {
		return nil, fmt.Errorf("list cash movements: %w", err)
	}
	for _, m := range movements {
		switch m.Type {
		case database.MovementTypeCASHIN:
			result.CashIn += m.Amount
		case database.MovementTypeCASHOUT:
			result.CashOut += m.Amount
		}
	}

	result.SystemCash = shift.InitialCash + result.TotalCashRevenue + result.CashIn - result.CashOut - result.CashExpenses
	result.CashDifference = finalCash - result.SystemCash

	closed, err := store.CloseShift(ctx, database.CloseShiftParams{
		ID:                  shift.ID,
		TotalOrders:         result.TotalOrders,
		TotalRevenue:        result.TotalRevenue,
		TotalCashRevenue:    result.TotalCashRevenue,
		TotalNonCashRevenue: result.TotalNonCashRevenue,
		SystemCash:          result.SystemCash,
		FinalCash:           finalCash,
		CashDifference:      result.CashDifference,
		Notes:               textOrNull(notes),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShiftClosed
		}
		return nil, fmt.Errorf("close shift: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	result.Shift = closed
	return result, nil
}
