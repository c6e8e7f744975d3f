package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/ledger/internal/middleware"
	"github.com/kiwari-pos/ledger/internal/service"
)

// OpenBillHandler handles the pay-later bill endpoints.
type OpenBillHandler struct {
	bills    *service.OpenBillService
	notifier service.Notifier
}

// NewOpenBillHandler creates a new OpenBillHandler.
func NewOpenBillHandler(bills *service.OpenBillService, notifier service.Notifier) *OpenBillHandler {
	if notifier == nil {
		notifier = service.NopNotifier{}
	}
	return &OpenBillHandler{bills: bills, notifier: notifier}
}

// RegisterRoutes registers open-bill endpoints on the given Chi router.
func (h *OpenBillHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Place)
	r.Get("/tables/{table}", h.GetByTable)
	r.Put("/{id}/items", h.ReplaceItems)
	r.Post("/{id}/submit", h.Submit)
	r.Post("/{id}/pay", h.Pay)
}

// --- Request types ---

type placeOpenBillRequest struct {
	CustomerName string             `json:"customer_name"`
	TableNumber  string             `json:"table_number"`
	Items        []orderItemRequest `json:"items"`
}

type replaceItemsRequest struct {
	Items []orderItemRequest `json:"items"`
}

type payOpenBillRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// --- Handlers ---

// Place handles POST /open-bills. If the table already has an open bill the
// items are appended to it; otherwise a new bill is created. The response
// reports which happened.
func (h *OpenBillHandler) Place(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req placeOpenBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.bills.Place(r.Context(), service.OpenBillRequest{
		CustomerName: req.CustomerName,
		TableNumber:  req.TableNumber,
		CreatedBy:    claims.UserID,
		Items:        toServiceItems(req.Items),
	})
	if err != nil {
		writeOrderServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Appended {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]interface{}{
		"order":    dbOrderToResponseWithItems(result.Order, result.Items),
		"appended": result.Appended,
	})
}

// GetByTable handles GET /open-bills/tables/{table}.
func (h *OpenBillHandler) GetByTable(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if table == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "table is required"})
		return
	}

	bill, items, err := h.bills.FindByTable(r.Context(), table)
	if err != nil {
		writeOrderServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dbOrderToResponseWithItems(bill, items))
}

// ReplaceItems handles PUT /open-bills/{id}/items: the whole item list is
// swapped and repriced. Only valid while the bill is still open.
func (h *OpenBillHandler) ReplaceItems(w http.ResponseWriter, r *http.Request) {
	billID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid bill ID"})
		return
	}

	var req replaceItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.bills.Replace(r.Context(), billID, toServiceItems(req.Items))
	if err != nil {
		writeOrderServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dbOrderToResponseWithItems(result.Order, result.Items))
}

// Submit handles POST /open-bills/{id}/submit, dispatching the bill to the
// kitchen while payment stays deferred.
func (h *OpenBillHandler) Submit(w http.ResponseWriter, r *http.Request) {
	billID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid bill ID"})
		return
	}

	order, err := h.bills.Submit(r.Context(), billID)
	if err != nil {
		writeOrderServiceError(w, err)
		return
	}

	h.notifier.Broadcast(service.ChannelKitchen, "order.dispatched", dbOrderToResponse(order))
	writeJSON(w, http.StatusOK, dbOrderToResponse(order))
}

// Pay handles POST /open-bills/{id}/pay, settling the bill in place with
// the method chosen at the counter.
func (h *OpenBillHandler) Pay(w http.ResponseWriter, r *http.Request) {
	billID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid bill ID"})
		return
	}

	var req payOpenBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	order, err := h.bills.Pay(r.Context(), billID, req.PaymentMethod)
	if err != nil {
		writeOrderServiceError(w, err)
		return
	}

	h.notifier.Broadcast(service.ChannelCashier, "payment.settled", dbOrderToResponse(order))
	writeJSON(w, http.StatusOK, dbOrderToResponse(order))
}
