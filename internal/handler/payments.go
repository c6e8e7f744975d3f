package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/ledger/internal/database"
	"github.com/kiwari-pos/ledger/internal/gateway"
	"github.com/kiwari-pos/ledger/internal/service"
)

// PaymentHandler handles gateway payment reconciliation endpoints: the
// webhook the gateway pushes to, and the poll fallback the cashier drives.
type PaymentHandler struct {
	reconcile *service.ReconcileService
	serverKey string
	notifier  service.Notifier
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(reconcile *service.ReconcileService, serverKey string, notifier service.Notifier) *PaymentHandler {
	if notifier == nil {
		notifier = service.NopNotifier{}
	}
	return &PaymentHandler{reconcile: reconcile, serverKey: serverKey, notifier: notifier}
}

// RegisterWebhook registers the unauthenticated gateway notification
// endpoint. The signature check replaces bearer auth here.
func (h *PaymentHandler) RegisterWebhook(r chi.Router) {
	r.Post("/payments/webhook", h.Webhook)
}

// RegisterRoutes registers the authenticated payment endpoints.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/{orderID}/poll", h.Poll)
}

// webhookNotification is the gateway's transaction notification payload.
type webhookNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
}

// Webhook handles POST /payments/webhook. The merge is idempotent, so
// re-deliveries are acknowledged without effect. A bad signature is also
// acknowledged with 200 but not applied: returning an error would only
// make the gateway retry a notification we will never accept.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var n webhookNotification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if n.OrderID == "" || n.TransactionStatus == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order_id and transaction_status are required"})
		return
	}

	if !gateway.VerifySignature(n.OrderID, n.StatusCode, n.GrossAmount, h.serverKey, n.SignatureKey) {
		log.Printf("WARN: webhook signature mismatch for gateway order %s", n.OrderID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
		return
	}

	order, changed, err := h.reconcile.ApplyWebhook(r.Context(), n.OrderID, n.TransactionStatus, n.TransactionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrUnknownGatewayStatus), errors.Is(err, service.ErrOpenBillPayment):
			log.Printf("WARN: webhook for gateway order %s rejected: %v", n.OrderID, err)
			writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
		default:
			log.Printf("ERROR: apply webhook for gateway order %s: %v", n.OrderID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	if changed {
		h.broadcastPayment(order)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Poll handles POST /payments/{orderID}/poll: the cashier-driven fallback
// that asks the gateway for the authoritative status when the webhook is
// late or lost.
func (h *PaymentHandler) Poll(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.reconcile.Lookup(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order for poll: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	updated, changed, err := h.reconcile.Poll(r.Context(), order)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotGatewayOrder), errors.Is(err, service.ErrOpenBillPayment):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, gateway.ErrUnavailable):
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "payment gateway unavailable"})
		default:
			log.Printf("ERROR: poll payment status for %s: %v", order.OrderNumber, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	if changed {
		h.broadcastPayment(updated)
	}
	writeJSON(w, http.StatusOK, dbOrderToResponse(updated))
}

func (h *PaymentHandler) broadcastPayment(order database.Order) {
	switch order.PaymentStatus {
	case database.PaymentStatusPAID:
		h.notifier.Broadcast(service.ChannelCashier, "payment.settled", dbOrderToResponse(order))
	case database.PaymentStatusFAILED, database.PaymentStatusEXPIRED:
		h.notifier.Broadcast(service.ChannelCashier, "payment.failed", dbOrderToResponse(order))
	}
}
