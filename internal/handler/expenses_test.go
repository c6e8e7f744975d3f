package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/ledger/internal/database"
	"github.com/kiwari-pos/ledger/internal/handler"
	"github.com/kiwari-pos/ledger/internal/middleware"
)

type mockExpenseStore struct {
	createExpenseFn                 func(ctx context.Context, arg database.CreateExpenseParams) (database.Expense, error)
	listExpensesByCashierInWindowFn func(ctx context.Context, arg database.ListExpensesByCashierInWindowParams) ([]database.Expense, error)
}

func (m *mockExpenseStore) CreateExpense(ctx context.Context, arg database.CreateExpenseParams) (database.Expense, error) {
	if m.createExpenseFn != nil {
		return m.createExpenseFn(ctx, arg)
	}
	return database.Expense{
		ID: uuid.New(), CashierID: arg.CashierID, Amount: arg.Amount,
		Description: arg.Description, SpentAt: time.Now(),
	}, nil
}

func (m *mockExpenseStore) ListExpensesByCashierInWindow(ctx context.Context, arg database.ListExpensesByCashierInWindowParams) ([]database.Expense, error) {
	if m.listExpensesByCashierInWindowFn != nil {
		return m.listExpensesByCashierInWindowFn(ctx, arg)
	}
	return []database.Expense{}, nil
}

func setupExpenseRouter(store *mockExpenseStore) *chi.Mux {
	h := handler.NewExpenseHandler(store)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/expenses", h.RegisterRoutes)
	return r
}

func TestExpenseCreate_Success(t *testing.T) {
	router := setupExpenseRouter(&mockExpenseStore{})
	cashierID := uuid.New()

	rr := doAuthRequest(t, router, "POST", "/expenses", map[string]interface{}{
		"amount":      15000,
		"description": "gas refill",
	}, cashierID, "CASHIER")
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["amount"] != float64(15000) {
		t.Errorf("amount: got %v, want 15000", resp["amount"])
	}
	if resp["cashier_id"] != cashierID.String() {
		t.Errorf("cashier_id: got %v, want %s", resp["cashier_id"], cashierID)
	}
}

func TestExpenseCreate_Validation(t *testing.T) {
	router := setupExpenseRouter(&mockExpenseStore{})

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"zero amount", map[string]interface{}{"amount": 0, "description": "x"}},
		{"negative amount", map[string]interface{}{"amount": -500, "description": "x"}},
		{"missing description", map[string]interface{}{"amount": 1000}},
	}
	for _, c := range cases {
		rr := doAuthRequest(t, router, "POST", "/expenses", c.body, uuid.New(), "CASHIER")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status got %d, want %d", c.name, rr.Code, http.StatusBadRequest)
		}
	}
}

func TestExpenseList_ScopedToCaller(t *testing.T) {
	cashierID := uuid.New()
	var captured database.ListExpensesByCashierInWindowParams
	store := &mockExpenseStore{
		listExpensesByCashierInWindowFn: func(ctx context.Context, arg database.ListExpensesByCashierInWindowParams) ([]database.Expense, error) {
			captured = arg
			return []database.Expense{
				{ID: uuid.New(), CashierID: cashierID, Amount: 15000, Description: "gas refill", SpentAt: time.Now()},
			}, nil
		},
	}
	router := setupExpenseRouter(store)

	rr := doAuthRequest(t, router, "GET", "/expenses", nil, cashierID, "CASHIER")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if captured.CashierID != cashierID {
		t.Errorf("cashier scope: got %v, want %v", captured.CashierID, cashierID)
	}
	list := decodeListResponse(t, rr)
	if len(list) != 1 {
		t.Fatalf("expenses: got %d, want 1", len(list))
	}
}

func TestExpenseList_CustomWindow(t *testing.T) {
	var captured database.ListExpensesByCashierInWindowParams
	store := &mockExpenseStore{
		listExpensesByCashierInWindowFn: func(ctx context.Context, arg database.ListExpensesByCashierInWindowParams) ([]database.Expense, error) {
			captured = arg
			return []database.Expense{}, nil
		},
	}
	router := setupExpenseRouter(store)

	rr := doAuthRequest(t, router, "GET", "/expenses?start=2026-08-20T00:00:00Z&end=2026-08-21T00:00:00Z", nil, uuid.New(), "CASHIER")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if got := captured.StartTime.Time.UTC().Format(time.RFC3339); got != "2026-08-20T00:00:00Z" {
		t.Errorf("start: got %s", got)
	}

	rr = doAuthRequest(t, router, "GET", "/expenses?start=yesterday", nil, uuid.New(), "CASHIER")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad start: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
