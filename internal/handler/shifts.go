package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/ledger/internal/database"
	"github.com/kiwari-pos/ledger/internal/enum"
	"github.com/kiwari-pos/ledger/internal/middleware"
	"github.com/kiwari-pos/ledger/internal/service"
)

// ShiftHandler handles cashier shift endpoints.
type ShiftHandler struct {
	shifts *service.ShiftService
}

// NewShiftHandler creates a new ShiftHandler.
func NewShiftHandler(shifts *service.ShiftService) *ShiftHandler {
	return &ShiftHandler{shifts: shifts}
}

// RegisterRoutes registers shift endpoints on the given Chi router.
func (h *ShiftHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Open)
	r.Get("/current", h.Current)
	r.Post("/movements", h.RecordMovement)
	r.Post("/{id}/close", h.Close)
}

// --- Request types ---

type openShiftRequest struct {
	InitialCash int64 `json:"initial_cash"`
}

type cashMovementRequest struct {
	Type        string `json:"type"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type closeShiftRequest struct {
	FinalCash int64  `json:"final_cash"`
	Notes     string `json:"notes"`
}

type closeShiftResponse struct {
	Shift               shiftResponse `json:"shift"`
	TotalOrders         int64         `json:"total_orders"`
	TotalRevenue        int64         `json:"total_revenue"`
	TotalCashRevenue    int64         `json:"total_cash_revenue"`
	TotalNonCashRevenue int64         `json:"total_non_cash_revenue"`
	CashRefunds         int64         `json:"cash_refunds"`
	NonCashRefunds      int64         `json:"non_cash_refunds"`
	CashExpenses        int64         `json:"cash_expenses"`
	CashIn              int64         `json:"cash_in"`
	CashOut             int64         `json:"cash_out"`
	SystemCash          int64         `json:"system_cash"`
	FinalCash           int64         `json:"final_cash"`
	CashDifference      int64         `json:"cash_difference"`
}

// --- Handlers ---

// Open handles POST /shifts, starting a shift with the counted float.
func (h *ShiftHandler) Open(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req openShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	shift, err := h.shifts.Open(r.Context(), claims.UserID, req.InitialCash)
	if err != nil {
		writeShiftServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dbShiftToResponse(shift))
}

// Current handles GET /shifts/current.
func (h *ShiftHandler) Current(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	shift, err := h.shifts.Current(r.Context(), claims.UserID)
	if err != nil {
		writeShiftServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dbShiftToResponse(shift))
}

// RecordMovement handles POST /shifts/movements: a manual drawer
// adjustment on the caller's open shift.
func (h *ShiftHandler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req cashMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Type != enum.MovementTypeCashIn && req.Type != enum.MovementTypeCashOut {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "type must be CASH_IN or CASH_OUT"})
		return
	}
	if req.Description == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "description is required"})
		return
	}

	movement, err := h.shifts.RecordMovement(r.Context(), claims.UserID, database.MovementType(req.Type), req.Amount, req.Description)
	if err != nil {
		writeShiftServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dbCashMovementToResponse(movement))
}

// Close handles POST /shifts/{id}/close, reconciling the drawer against
// the ledgers and flipping the shift to CLOSED.
func (h *ShiftHandler) Close(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	shiftID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid shift ID"})
		return
	}

	var req closeShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.shifts.Close(r.Context(), claims.UserID, shiftID, req.FinalCash, req.Notes)
	if err != nil {
		writeShiftServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, closeShiftResponse{
		Shift:               dbShiftToResponse(result.Shift),
		TotalOrders:         result.TotalOrders,
		TotalRevenue:        result.TotalRevenue,
		TotalCashRevenue:    result.TotalCashRevenue,
		TotalNonCashRevenue: result.TotalNonCashRevenue,
		CashRefunds:         result.CashRefunds,
		NonCashRefunds:      result.NonCashRefunds,
		CashExpenses:        result.CashExpenses,
		CashIn:              result.CashIn,
		CashOut:             result.CashOut,
		SystemCash:          result.SystemCash,
		FinalCash:           result.FinalCash,
		CashDifference:      result.CashDifference,
	})
}

// --- Helpers ---

func writeShiftServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCashAmount):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrShiftAlreadyOpen), errors.Is(err, service.ErrShiftClosed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrNoOpenShift), errors.Is(err, service.ErrShiftNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrShiftNotOwned):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: shift service: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
