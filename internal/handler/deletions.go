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

// DeletionHandler handles the two-person item deletion workflow.
type DeletionHandler struct {
	deletions *service.DeletionService
}

// NewDeletionHandler creates a new DeletionHandler.
func NewDeletionHandler(deletions *service.DeletionService) *DeletionHandler {
	return &DeletionHandler{deletions: deletions}
}

// RegisterRoutes registers the cashier-level deletion endpoints.
func (h *DeletionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Request)
}

// RegisterManagerRoutes registers the approval-queue endpoints.
func (h *DeletionHandler) RegisterManagerRoutes(r chi.Router) {
	r.Get("/", h.ListPending)
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/reject", h.Reject)
}

type requestDeletionRequest struct {
	OrderID   string `json:"order_id"`
	ItemIndex int32  `json:"item_index"`
	Reason    string `json:"reason"`
}

// Request handles POST /deletion-requests: a cashier asks to remove one
// line from an unpaid open bill, identified by its index.
func (h *DeletionHandler) Request(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req requestDeletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order_id"})
		return
	}
	if req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reason is required"})
		return
	}

	request, err := h.deletions.Request(r.Context(), service.RequestDeletionParams{
		OrderID:     orderID,
		ItemIndex:   req.ItemIndex,
		Reason:      req.Reason,
		RequestedBy: claims.UserID,
	})
	if err != nil {
		writeDeletionServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dbDeletionRequestToResponse(request))
}

// ListPending handles GET /deletion-requests: the manager approval queue.
func (h *DeletionHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	requests, err := h.deletions.ListPending(r.Context())
	if err != nil {
		log.Printf("ERROR: list pending deletion requests: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]deletionRequestResponse, len(requests))
	for i, d := range requests {
		resp[i] = dbDeletionRequestToResponse(d)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Approve handles POST /deletion-requests/{id}/approve. The item list is
// re-validated against the request snapshot; a stale index or changed item
// comes back as 409 and the request stays pending for re-filing.
func (h *DeletionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request ID"})
		return
	}

	result, err := h.deletions.Approve(r.Context(), requestID, claims.UserID)
	if err != nil {
		writeDeletionServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"request": dbDeletionRequestToResponse(result.Request),
		"order":   dbOrderToResponse(result.Order),
	})
}

// Reject handles POST /deletion-requests/{id}/reject.
func (h *DeletionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request ID"})
		return
	}

	request, err := h.deletions.Reject(r.Context(), requestID, claims.UserID)
	if err != nil {
		writeDeletionServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dbDeletionRequestToResponse(request))
}

func writeDeletionServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrItemIndexOutOfRange):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrDeletionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrDeletionNotPending),
		errors.Is(err, service.ErrStaleItemIndex),
		errors.Is(err, service.ErrLastItem),
		errors.Is(err, service.ErrBillNotModifiable),
		errors.Is(err, service.ErrItemSnapshotMismatch):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: deletion service: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
