package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/ledger/internal/database"
	"github.com/kiwari-pos/ledger/internal/handler"
	"github.com/kiwari-pos/ledger/internal/middleware"
	"github.com/kiwari-pos/ledger/internal/service"
)

type mockShiftStore struct {
	createShiftFn                           func(ctx context.Context, arg database.CreateShiftParams) (database.Shift, error)
	getShiftFn                              func(ctx context.Context, id uuid.UUID) (database.Shift, error)
	getOpenShiftByCashierFn                 func(ctx context.Context, cashierID uuid.UUID) (database.Shift, error)
	closeShiftFn                            func(ctx context.Context, arg database.CloseShiftParams) (database.Shift, error)
	createCashMovementFn                    func(ctx context.Context, arg database.CreateCashMovementParams) (database.CashMovement, error)
	listCashMovementsByShiftFn              func(ctx context.Context, shiftID uuid.UUID) ([]database.CashMovement, error)
	listPaidServedOrdersInWindowFn          func(ctx context.Context, arg database.ListPaidServedOrdersInWindowParams) ([]database.Order, error)
	listExpensesByCashierInWindowFn         func(ctx context.Context, arg database.ListExpensesByCashierInWindowParams) ([]database.Expense, error)
	listCompletedRefundsByCashierInWindowFn func(ctx context.Context, arg database.ListCompletedRefundsByCashierInWindowParams) ([]database.Refund, error)
}

func (m *mockShiftStore) CreateShift(ctx context.Context, arg database.CreateShiftParams) (database.Shift, error) {
	if m.createShiftFn != nil {
		return m.createShiftFn(ctx, arg)
	}
	return database.Shift{
		ID:          uuid.New(),
		CashierID:   arg.CashierID,
		InitialCash: arg.InitialCash,
		StartTime:   time.Now(),
		Status:      database.ShiftStatusOPEN,
	}, nil
}

func (m *mockShiftStore) GetShift(ctx context.Context, id uuid.UUID) (database.Shift, error) {
	if m.getShiftFn != nil {
		return m.getShiftFn(ctx, id)
	}
	return database.Shift{}, pgx.ErrNoRows
}

func (m *mockShiftStore) GetOpenShiftByCashier(ctx context.Context, cashierID uuid.UUID) (database.Shift, error) {
	if m.getOpenShiftByCashierFn != nil {
		return m.getOpenShiftByCashierFn(ctx, cashierID)
	}
	return database.Shift{}, pgx.ErrNoRows
}

func (m *mockShiftStore) CloseShift(ctx context.Context, arg database.CloseShiftParams) (database.Shift, error) {
	if m.closeShiftFn != nil {
		return m.closeShiftFn(ctx, arg)
	}
	return database.Shift{
		ID:             arg.ID,
		Status:         database.ShiftStatusCLOSED,
		EndTime:        pgtype.Timestamptz{Time: time.Now(), Valid: true},
		SystemCash:     pgtype.Int8{Int64: arg.SystemCash, Valid: true},
		FinalCash:      pgtype.Int8{Int64: arg.FinalCash, Valid: true},
		CashDifference: pgtype.Int8{Int64: arg.CashDifference, Valid: true},
		Notes:          arg.Notes,
	}, nil
}

func (m *mockShiftStore) CreateCashMovement(ctx context.Context, arg database.CreateCashMovementParams) (database.CashMovement, error) {
	if m.createCashMovementFn != nil {
		return m.createCashMovementFn(ctx, arg)
	}
	return database.CashMovement{
		ID: uuid.New(), ShiftID: arg.ShiftID, Type: arg.Type,
		Amount: arg.Amount, Description: arg.Description, CreatedAt: time.Now(),
	}, nil
}

func (m *mockShiftStore) ListCashMovementsByShift(ctx context.Context, shiftID uuid.UUID) ([]database.CashMovement, error) {
	if m.listCashMovementsByShiftFn != nil {
		return m.listCashMovementsByShiftFn(ctx, shiftID)
	}
	return []database.CashMovement{}, nil
}

func (m *mockShiftStore) ListPaidServedOrdersInWindow(ctx context.Context, arg database.ListPaidServedOrdersInWindowParams) ([]database.Order, error) {
	if m.listPaidServedOrdersInWindowFn != nil {
		return m.listPaidServedOrdersInWindowFn(ctx, arg)
	}
	return []database.Order{}, nil
}

func (m *mockShiftStore) ListExpensesByCashierInWindow(ctx context.Context, arg database.ListExpensesByCashierInWindowParams) ([]database.Expense, error) {
	if m.listExpensesByCashierInWindowFn != nil {
		return m.listExpensesByCashierInWindowFn(ctx, arg)
	}
	return []database.Expense{}, nil
}

func (m *mockShiftStore) ListCompletedRefundsByCashierInWindow(ctx context.Context, arg database.ListCompletedRefundsByCashierInWindowParams) ([]database.Refund, error) {
	if m.listCompletedRefundsByCashierInWindowFn != nil {
		return m.listCompletedRefundsByCashierInWindowFn(ctx, arg)
	}
	return []database.Refund{}, nil
}

func setupShiftRouter(store *mockShiftStore) *chi.Mux {
	svc := service.NewShiftService(&mockPool{}, func(db database.DBTX) service.ShiftStore { return store })
	h := handler.NewShiftHandler(svc)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/shifts", h.RegisterRoutes)
	return r
}

func openShiftFor(cashierID uuid.UUID, initialCash int64) database.Shift {
	return database.Shift{
		ID:          uuid.New(),
		CashierID:   cashierID,
		InitialCash: initialCash,
		StartTime:   time.Now().Add(-8 * time.Hour),
		Status:      database.ShiftStatusOPEN,
	}
}

// =====================
// Open and Current
// =====================

func TestShiftOpen_Success(t *testing.T) {
	router := setupShiftRouter(&mockShiftStore{})
	cashierID := uuid.New()

	rr := doAuthRequest(t, router, "POST", "/shifts", map[string]interface{}{"initial_cash": 100000}, cashierID, "CASHIER")
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["initial_cash"] != float64(100000) {
		t.Errorf("initial_cash: got %v, want 100000", resp["initial_cash"])
	}
	if resp["status"] != "OPEN" {
		t.Errorf("status: got %v, want OPEN", resp["status"])
	}
	if resp["cashier_id"] != cashierID.String() {
		t.Errorf("cashier_id: got %v, want %s", resp["cashier_id"], cashierID)
	}
}

func TestShiftOpen_AlreadyOpen(t *testing.T) {
	cashierID := uuid.New()
	existing := openShiftFor(cashierID, 100000)
	store := &mockShiftStore{
		getOpenShiftByCashierFn: func(ctx context.Context, id uuid.UUID) (database.Shift, error) {
			return existing, nil
		},
	}
	router := setupShiftRouter(store)

	rr := doAuthRequest(t, router, "POST", "/shifts", map[string]interface{}{"initial_cash": 50000}, cashierID, "CASHIER")
	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}

func TestShiftOpen_NegativeFloat(t *testing.T) {
	router := setupShiftRouter(&mockShiftStore{})

	rr := doAuthRequest(t, router, "POST", "/shifts", map[string]interface{}{"initial_cash": -1}, uuid.New(), "CASHIER")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestShiftCurrent_NoOpenShift(t *testing.T) {
	router := setupShiftRouter(&mockShiftStore{})

	rr := doAuthRequest(t, router, "GET", "/shifts/current", nil, uuid.New(), "CASHIER")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestShiftCurrent_ReturnsOpenShift(t *testing.T) {
	cashierID := uuid.New()
	shift := openShiftFor(cashierID, 100000)
	store := &mockShiftStore{
		getOpenShiftByCashierFn: func(ctx context.Context, id uuid.UUID) (database.Shift, error) {
			if id == cashierID {
				return shift, nil
			}
			return database.Shift{}, pgx.ErrNoRows
		},
	}
	router := setupShiftRouter(store)

	rr := doAuthRequest(t, router, "GET", "/shifts/current", nil, cashierID, "CASHIER")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["id"] != shift.ID.String() {
		t.Errorf("id: got %v, want %s", resp["id"], shift.ID)
	}
	// Aggregates are only stamped at close.
	if _, ok := resp["system_cash"]; ok {
		t.Error("open shift must not carry close aggregates")
	}
}

// =====================
// Movements
// =====================

func TestShiftMovement_Success(t *testing.T) {
	cashierID := uuid.New()
	shift := openShiftFor(cashierID, 100000)
	store := &mockShiftStore{
		getOpenShiftByCashierFn: func(ctx context.Context, id uuid.UUID) (database.Shift, error) {
			return shift, nil
		},
	}
	router := setupShiftRouter(store)

	rr := doAuthRequest(t, router, "POST", "/shifts/movements", map[string]interface{}{
		"type":        "CASH_IN",
		"amount":      20000,
		"description": "change float top-up",
	}, cashierID, "CASHIER")
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["shift_id"] != shift.ID.String() {
		t.Errorf("shift_id: got %v, want %s", resp["shift_id"], shift.ID)
	}
	if resp["type"] != "CASH_IN" || resp["amount"] != float64(20000) {
		t.Errorf("movement: got %v/%v", resp["type"], resp["amount"])
	}
}

func TestShiftMovement_Validation(t *testing.T) {
	cashierID := uuid.New()
	shift := openShiftFor(cashierID, 100000)
	store := &mockShiftStore{
		getOpenShiftByCashierFn: func(ctx context.Context, id uuid.UUID) (database.Shift, error) {
			return shift, nil
		},
	}
	router := setupShiftRouter(store)

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"bad type", map[string]interface{}{"type": "TRANSFER", "amount": 1000, "description": "x"}},
		{"zero amount", map[string]interface{}{"type": "CASH_IN", "amount": 0, "description": "x"}},
		{"missing description", map[string]interface{}{"type": "CASH_OUT", "amount": 1000}},
	}
	for _, c := range cases {
		rr := doAuthRequest(t, router, "POST", "/shifts/movements", c.body, cashierID, "CASHIER")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status got %d, want %d; body: %s", c.name, rr.Code, http.StatusBadRequest, rr.Body.String())
		}
	}
}

func TestShiftMovement_NoOpenShift(t *testing.T) {
	router := setupShiftRouter(&mockShiftStore{})

	rr := doAuthRequest(t, router, "POST", "/shifts/movements", map[string]interface{}{
		"type": "CASH_OUT", "amount": 50000, "description": "bank drop",
	}, uuid.New(), "CASHIER")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// =====================
// Close
// =====================

func TestShiftClose_Reconciliation(t *testing.T) {
	cashierID := uuid.New()
	shift := openShiftFor(cashierID, 100000)
	store := &mockShiftStore{
		getShiftFn: func(ctx context.Context, id uuid.UUID) (database.Shift, error) {
			if id == shift.ID {
				return shift, nil
			}
			return database.Shift{}, pgx.ErrNoRows
		},
		listPaidServedOrdersInWindowFn: func(ctx context.Context, arg database.ListPaidServedOrdersInWindowParams) ([]database.Order, error) {
			return []database.Order{
				{Total: 50000, PaymentMethod: database.PaymentMethodCASH},
				{Total: 60000, PaymentMethod: database.PaymentMethodQRIS},
			}, nil
		},
		listExpensesByCashierInWindowFn: func(ctx context.Context, arg database.ListExpensesByCashierInWindowParams) ([]database.Expense, error) {
			return []database.Expense{{Amount: 20000}}, nil
		},
	}
	router := setupShiftRouter(store)

	rr := doAuthRequest(t, router, "POST", "/shifts/"+shift.ID.String()+"/close", map[string]interface{}{
		"final_cash": 130000,
		"notes":      "drawer balanced",
	}, cashierID, "CASHIER")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	// system = 100000 float + 50000 cash revenue - 20000 expenses.
	if resp["system_cash"] != float64(130000) {
		t.Errorf("system_cash: got %v, want 130000", resp["system_cash"])
	}
	if resp["cash_difference"] != float64(0) {
		t.Errorf("cash_difference: got %v, want 0", resp["cash_difference"])
	}
	if resp["total_revenue"] != float64(110000) {
		t.Errorf("total_revenue: got %v, want 110000", resp["total_revenue"])
	}
	if resp["total_non_cash_revenue"] != float64(60000) {
		t.Errorf("total_non_cash_revenue: got %v, want 60000", resp["total_non_cash_revenue"])
	}
	sh := resp["shift"].(map[string]interface{})
	if sh["status"] != "CLOSED" {
		t.Errorf("shift status: got %v, want CLOSED", sh["status"])
	}
}

func TestShiftClose_NotOwned(t *testing.T) {
	owner := uuid.New()
	shift := openShiftFor(owner, 100000)
	store := &mockShiftStore{
		getShiftFn: func(ctx context.Context, id uuid.UUID) (database.Shift, error) {
			return shift, nil
		},
	}
	router := setupShiftRouter(store)

	rr := doAuthRequest(t, router, "POST", "/shifts/"+shift.ID.String()+"/close",
		map[string]interface{}{"final_cash": 100000}, uuid.New(), "CASHIER")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusForbidden, rr.Body.String())
	}
}

func TestShiftClose_AlreadyClosed(t *testing.T) {
	cashierID := uuid.New()
	shift := openShiftFor(cashierID, 100000)
	shift.Status = database.ShiftStatusCLOSED
	store := &mockShiftStore{
		getShiftFn: func(ctx context.Context, id uuid.UUID) (database.Shift, error) {
			return shift, nil
		},
	}
	router := setupShiftRouter(store)

	rr := doAuthRequest(t, router, "POST", "/shifts/"+shift.ID.String()+"/close",
		map[string]interface{}{"final_cash": 100000}, cashierID, "CASHIER")
	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}

func TestShiftClose_InvalidID(t *testing.T) {
	router := setupShiftRouter(&mockShiftStore{})

	rr := doAuthRequest(t, router, "POST", "/shifts/not-a-uuid/close",
		map[string]interface{}{"final_cash": 100000}, uuid.New(), "CASHIER")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
