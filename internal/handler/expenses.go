package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/ledger/internal/database"
	"github.com/kiwari-pos/ledger/internal/middleware"
)

// ExpenseStore defines the database methods needed by expense handlers.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, arg database.CreateExpenseParams) (database.Expense, error)
	ListExpensesByCashierInWindow(ctx context.Context, arg database.ListExpensesByCashierInWindowParams) ([]database.Expense, error)
}

// ExpenseHandler handles petty-cash expense endpoints. Expenses recorded
// during a shift are drawn from the drawer and reduce the expected cash at
// shift close.
type ExpenseHandler struct {
	store ExpenseStore
}

// NewExpenseHandler creates a new ExpenseHandler.
func NewExpenseHandler(store ExpenseStore) *ExpenseHandler {
	return &ExpenseHandler{store: store}
}

// RegisterRoutes registers expense endpoints on the given Chi router.
func (h *ExpenseHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
}

type createExpenseRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// Create handles POST /expenses.
func (h *ExpenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount must be positive"})
		return
	}
	if req.Description == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "description is required"})
		return
	}

	expense, err := h.store.CreateExpense(r.Context(), database.CreateExpenseParams{
		CashierID:   claims.UserID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		log.Printf("ERROR: create expense: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusCreated, dbExpenseToResponse(expense))
}

// List handles GET /expenses?start=RFC3339&end=RFC3339, scoped to the
// caller's own expenses. Defaults to the last 24 hours.
func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	end := time.Now()
	start := end.Add(-24 * time.Hour)
	if s := r.URL.Query().Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start time"})
			return
		}
		start = t
	}
	if e := r.URL.Query().Get("end"); e != "" {
		t, err := time.Parse(time.RFC3339, e)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end time"})
			return
		}
		end = t
	}

	expenses, err := h.store.ListExpensesByCashierInWindow(r.Context(), database.ListExpensesByCashierInWindowParams{
		CashierID: claims.UserID,
		StartTime: pgtype.Timestamptz{Time: start, Valid: true},
		EndTime:   pgtype.Timestamptz{Time: end, Valid: true},
	})
	if err != nil {
		log.Printf("ERROR: list expenses: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	resp := make([]expenseResponse, len(expenses))
	for i, e := range expenses {
		resp[i] = dbExpenseToResponse(e)
	}
	writeJSON(w, http.StatusOK, resp)
}
