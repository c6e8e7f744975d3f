package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/ledger/internal/middleware"
	"github.com/kiwari-pos/ledger/internal/service"
)

// RefundHandler handles the refund workflow endpoints. Requesting is open
// to cashiers; approval and rejection are manager-only (enforced by the
// router).
type RefundHandler struct {
	refunds *service.RefundService
}

// NewRefundHandler creates a new RefundHandler.
func NewRefundHandler(refunds *service.RefundService) *RefundHandler {
	return &RefundHandler{refunds: refunds}
}

// RegisterRoutes registers cashier-level refund endpoints.
func (h *RefundHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Request)
	r.Post("/{id}/complete", h.Complete)
}

// RegisterManagerRoutes registers the approval endpoints.
func (h *RefundHandler) RegisterManagerRoutes(r chi.Router) {
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/reject", h.Reject)
}

type requestRefundRequest struct {
	OrderID    string `json:"order_id"`
	Amount     int64  `json:"amount"`
	RefundType string `json:"refund_type"`
	Reason     string `json:"reason"`
}

// Request handles POST /refunds.
func (h *RefundHandler) Request(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req requestRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order_id"})
		return
	}

	refund, err := h.refunds.Request(r.Context(), service.RequestRefundParams{
		OrderID:     orderID,
		Amount:      req.Amount,
		RefundType:  req.RefundType,
		Reason:      req.Reason,
		RequestedBy: claims.UserID,
	})
	if err != nil {
		writeRefundServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dbRefundToResponse(refund))
}

// Approve handles POST /refunds/{id}/approve.
func (h *RefundHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, true)
}

// Reject handles POST /refunds/{id}/reject.
func (h *RefundHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, false)
}

func (h *RefundHandler) resolve(w http.ResponseWriter, r *http.Request, approve bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	refundID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid refund ID"})
		return
	}

	resolve := h.refunds.Reject
	if approve {
		resolve = h.refunds.Approve
	}
	refund, err := resolve(r.Context(), refundID, claims.UserID)
	if err != nil {
		writeRefundServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dbRefundToResponse(refund))
}

// Complete handles POST /refunds/{id}/complete: the cashier confirms the
// approved amount was handed back to the customer.
func (h *RefundHandler) Complete(w http.ResponseWriter, r *http.Request) {
	refundID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid refund ID"})
		return
	}

	refund, err := h.refunds.Complete(r.Context(), refundID)
	if err != nil {
		writeRefundServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dbRefundToResponse(refund))
}

func writeRefundServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCashAmount), errors.Is(err, service.ErrInvalidRefundType):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrRefundNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderNotPaid),
		errors.Is(err, service.ErrRefundExceedsTotal),
		errors.Is(err, service.ErrRefundNotPending),
		errors.Is(err, service.ErrRefundNotApproved):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: refund service: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
