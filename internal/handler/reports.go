package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/ledger/internal/database"
)

// ReportStore defines the database methods needed by report handlers.
type ReportStore interface {
	GetDailySales(ctx context.Context, arg database.SalesWindowParams) ([]database.GetDailySalesRow, error)
	GetPaymentSummary(ctx context.Context, arg database.SalesWindowParams) ([]database.GetPaymentSummaryRow, error)
}

// ReportHandler serves manager-only sales reports aggregated from paid
// orders.
type ReportHandler struct {
	store ReportStore
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(store ReportStore) *ReportHandler {
	return &ReportHandler{store: store}
}

// RegisterRoutes registers report endpoints on the given Chi router.
func (h *ReportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/daily-sales", h.DailySales)
	r.Get("/payment-summary", h.PaymentSummary)
}

type dailySalesRow struct {
	Date         string `json:"date"`
	OrderCount   int64  `json:"order_count"`
	GrossRevenue int64  `json:"gross_revenue"`
	Discounts    int64  `json:"discounts"`
	NetRevenue   int64  `json:"net_revenue"`
}

type paymentSummaryRow struct {
	PaymentMethod string `json:"payment_method"`
	OrderCount    int64  `json:"order_count"`
	TotalAmount   int64  `json:"total_amount"`
}

// DailySales handles GET /reports/daily-sales?start=RFC3339&end=RFC3339.
// Defaults to the last 7 days. Only PAID orders count; revenue is bucketed
// by the day payment settled, not the day the order was placed.
func (h *ReportHandler) DailySales(w http.ResponseWriter, r *http.Request) {
	window, ok := parseReportWindow(w, r, 7*24*time.Hour)
	if !ok {
		return
	}

	rows, err := h.store.GetDailySales(r.Context(), window)
	if err != nil {
		log.Printf("ERROR: daily sales report: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]dailySalesRow, len(rows))
	for i, row := range rows {
		resp[i] = dailySalesRow{
			Date:         row.SaleDate.Time.Format("2006-01-02"),
			OrderCount:   row.OrderCount,
			GrossRevenue: row.GrossRevenue,
			Discounts:    row.Discounts,
			NetRevenue:   row.NetRevenue,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// PaymentSummary handles GET /reports/payment-summary. Defaults to the
// last 24 hours.
func (h *ReportHandler) PaymentSummary(w http.ResponseWriter, r *http.Request) {
	window, ok := parseReportWindow(w, r, 24*time.Hour)
	if !ok {
		return
	}

	rows, err := h.store.GetPaymentSummary(r.Context(), window)
	if err != nil {
		log.Printf("ERROR: payment summary report: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]paymentSummaryRow, len(rows))
	for i, row := range rows {
		resp[i] = paymentSummaryRow{
			PaymentMethod: string(row.PaymentMethod),
			OrderCount:    row.OrderCount,
			TotalAmount:   row.TotalAmount,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseReportWindow(w http.ResponseWriter, r *http.Request, span time.Duration) (database.SalesWindowParams, bool) {
	end := time.Now()
	start := end.Add(-span)
	if s := r.URL.Query().Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start time"})
			return database.SalesWindowParams{}, false
		}
		start = t
	}
	if e := r.URL.Query().Get("end"); e != "" {
		t, err := time.Parse(time.RFC3339, e)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end time"})
			return database.SalesWindowParams{}, false
		}
		end = t
	}
	if end.Before(start) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end must not be before start"})
		return database.SalesWindowParams{}, false
	}
	return database.SalesWindowParams{
		StartTime: pgtype.Timestamptz{Time: start, Valid: true},
		EndTime:   pgtype.Timestamptz{Time: end, Valid: true},
	}, true
}
