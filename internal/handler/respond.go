package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/ledger/internal/database"
	"github.com/shopspring/decimal"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

// formatMoney renders integer minor units as a fixed two-decimal string for
// display fields ("46000" -> "46000.00").
func formatMoney(amount int64) string {
	return decimal.NewFromInt(amount).StringFixed(2)
}

// --- Shared response types ---

type orderItemResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	UnitPrice int64     `json:"unit_price"`
	Quantity  int32     `json:"quantity"`
	Note      string    `json:"note,omitempty"`
	Position  int32     `json:"position"`
	LineTotal int64     `json:"line_total"`
}

type orderResponse struct {
	ID                   uuid.UUID           `json:"id"`
	OrderNumber          string              `json:"order_number"`
	CustomerName         string              `json:"customer_name,omitempty"`
	TableNumber          string              `json:"table_number,omitempty"`
	Subtotal             int64               `json:"subtotal"`
	Discount             int64               `json:"discount"`
	Total                int64               `json:"total"`
	TotalDisplay         string              `json:"total_display"`
	PaymentMethod        string              `json:"payment_method"`
	PaymentStatus        string              `json:"payment_status"`
	Status               string              `json:"status"`
	PayLater             bool                `json:"pay_later"`
	GatewayOrderID       string              `json:"gateway_order_id,omitempty"`
	QrisPayload          string              `json:"qris_payload,omitempty"`
	QrisExpiry           *time.Time          `json:"qris_expiry,omitempty"`
	PaidAt               *time.Time          `json:"paid_at,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	Items                []orderItemResponse `json:"items,omitempty"`
}

func dbOrderToResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		Subtotal:      o.Subtotal,
		Discount:      o.Discount,
		Total:         o.Total,
		TotalDisplay:  formatMoney(o.Total),
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		Status:        string(o.Status),
		PayLater:      o.PayLater,
		CreatedAt:     o.CreatedAt,
	}
	if o.CustomerName.Valid {
		resp.CustomerName = o.CustomerName.String
	}
	if o.TableNumber.Valid {
		resp.TableNumber = o.TableNumber.String
	}
	if o.GatewayOrderID.Valid {
		resp.GatewayOrderID = o.GatewayOrderID.String
	}
	if o.QrisPayload.Valid {
		resp.QrisPayload = o.QrisPayload.String
	}
	if o.QrisExpiry.Valid {
		t := o.QrisExpiry.Time
		resp.QrisExpiry = &t
	}
	if o.PaidAt.Valid {
		t := o.PaidAt.Time
		resp.PaidAt = &t
	}
	return resp
}

func dbOrderToResponseWithItems(o database.Order, items []database.OrderItem) orderResponse {
	resp := dbOrderToResponse(o)
	resp.Items = make([]orderItemResponse, len(items))
	for i, it := range items {
		resp.Items[i] = dbOrderItemToResponse(it)
	}
	return resp
}

func dbOrderItemToResponse(it database.OrderItem) orderItemResponse {
	resp := orderItemResponse{
		ID:        it.ID,
		Name:      it.Name,
		UnitPrice: it.UnitPrice,
		Quantity:  it.Quantity,
		Position:  it.Position,
		LineTotal: it.UnitPrice * int64(it.Quantity),
	}
	if it.Note.Valid {
		resp.Note = it.Note.String
	}
	return resp
}

type shiftResponse struct {
	ID                  uuid.UUID  `json:"id"`
	CashierID           uuid.UUID  `json:"cashier_id"`
	InitialCash         int64      `json:"initial_cash"`
	StartTime           time.Time  `json:"start_time"`
	EndTime             *time.Time `json:"end_time,omitempty"`
	Status              string     `json:"status"`
	TotalOrders         *int64     `json:"total_orders,omitempty"`
	TotalRevenue        *int64     `json:"total_revenue,omitempty"`
	TotalCashRevenue    *int64     `json:"total_cash_revenue,omitempty"`
	TotalNonCashRevenue *int64     `json:"total_non_cash_revenue,omitempty"`
	SystemCash          *int64     `json:"system_cash,omitempty"`
	FinalCash           *int64     `json:"final_cash,omitempty"`
	CashDifference      *int64     `json:"cash_difference,omitempty"`
	Notes               string     `json:"notes,omitempty"`
}

func dbShiftToResponse(s database.Shift) shiftResponse {
	resp := shiftResponse{
		ID:          s.ID,
		CashierID:   s.CashierID,
		InitialCash: s.InitialCash,
		StartTime:   s.StartTime,
		Status:      string(s.Status),
	}
	if s.EndTime.Valid {
		t := s.EndTime.Time
		resp.EndTime = &t
	}
	resp.TotalOrders = int8Ptr(s.TotalOrders)
	resp.TotalRevenue = int8Ptr(s.TotalRevenue)
	resp.TotalCashRevenue = int8Ptr(s.TotalCashRevenue)
	resp.TotalNonCashRevenue = int8Ptr(s.TotalNonCashRevenue)
	resp.SystemCash = int8Ptr(s.SystemCash)
	resp.FinalCash = int8Ptr(s.FinalCash)
	resp.CashDifference = int8Ptr(s.CashDifference)
	if s.Notes.Valid {
		resp.Notes = s.Notes.String
	}
	return resp
}

type expenseResponse struct {
	ID          uuid.UUID `json:"id"`
	CashierID   uuid.UUID `json:"cashier_id"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	SpentAt     time.Time `json:"spent_at"`
}

func dbExpenseToResponse(e database.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		CashierID:   e.CashierID,
		Amount:      e.Amount,
		Description: e.Description,
		SpentAt:     e.SpentAt,
	}
}

type cashMovementResponse struct {
	ID          uuid.UUID `json:"id"`
	ShiftID     uuid.UUID `json:"shift_id"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func dbCashMovementToResponse(m database.CashMovement) cashMovementResponse {
	return cashMovementResponse{
		ID:          m.ID,
		ShiftID:     m.ShiftID,
		Type:        string(m.Type),
		Amount:      m.Amount,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

type refundResponse struct {
	ID           uuid.UUID  `json:"id"`
	OrderID      uuid.UUID  `json:"order_id"`
	RefundAmount int64      `json:"refund_amount"`
	RefundType   string     `json:"refund_type"`
	Reason       string     `json:"reason,omitempty"`
	Status       string     `json:"status"`
	RequestedBy  uuid.UUID  `json:"requested_by"`
	AuthorizedBy *uuid.UUID `json:"authorized_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

func dbRefundToResponse(r database.Refund) refundResponse {
	resp := refundResponse{
		ID:           r.ID,
		OrderID:      r.OrderID,
		RefundAmount: r.RefundAmount,
		RefundType:   string(r.RefundType),
		Status:       string(r.Status),
		RequestedBy:  r.RequestedBy,
		CreatedAt:    r.CreatedAt,
	}
	if r.Reason.Valid {
		resp.Reason = r.Reason.String
	}
	if r.AuthorizedBy.Valid {
		id := uuid.UUID(r.AuthorizedBy.Bytes)
		resp.AuthorizedBy = &id
	}
	if r.ProcessedAt.Valid {
		t := r.ProcessedAt.Time
		resp.ProcessedAt = &t
	}
	return resp
}

type deletionRequestResponse struct {
	ID            uuid.UUID  `json:"id"`
	OrderID       uuid.UUID  `json:"order_id"`
	ItemIndex     int32      `json:"item_index"`
	ItemName      string     `json:"item_name"`
	ItemQuantity  int32      `json:"item_quantity"`
	ItemUnitPrice int64      `json:"item_unit_price"`
	Reason        string     `json:"reason"`
	Status        string     `json:"status"`
	RequestedBy   uuid.UUID  `json:"requested_by"`
	AuthorizedBy  *uuid.UUID `json:"authorized_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

func dbDeletionRequestToResponse(d database.DeletionRequest) deletionRequestResponse {
	resp := deletionRequestResponse{
		ID:            d.ID,
		OrderID:       d.OrderID,
		ItemIndex:     d.ItemIndex,
		ItemName:      d.ItemName,
		ItemQuantity:  d.ItemQuantity,
		ItemUnitPrice: d.ItemUnitPrice,
		Reason:        d.Reason,
		Status:        string(d.Status),
		RequestedBy:   d.RequestedBy,
		CreatedAt:     d.CreatedAt,
	}
	if d.AuthorizedBy.Valid {
		id := uuid.UUID(d.AuthorizedBy.Bytes)
		resp.AuthorizedBy = &id
	}
	if d.ResolvedAt.Valid {
		t := d.ResolvedAt.Time
		resp.ResolvedAt = &t
	}
	return resp
}
