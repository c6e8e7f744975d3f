package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type OrderStatus string

const (
	OrderStatusQUEUED    OrderStatus = "QUEUED"
	OrderStatusPENDING   OrderStatus = "PENDING"
	OrderStatusPREPARING OrderStatus = "PREPARING"
	OrderStatusSERVED    OrderStatus = "SERVED"
)

type PaymentStatus string

const (
	PaymentStatusPENDING PaymentStatus = "PENDING"
	PaymentStatusPAID    PaymentStatus = "PAID"
	PaymentStatusFAILED  PaymentStatus = "FAILED"
	PaymentStatusEXPIRED PaymentStatus = "EXPIRED"
	PaymentStatusUNPAID  PaymentStatus = "UNPAID"
)

type PaymentMethod string

const (
	PaymentMethodCASH PaymentMethod = "CASH"
	PaymentMethodQRIS PaymentMethod = "QRIS"
)

type ShiftStatus string

const (
	ShiftStatusOPEN   ShiftStatus = "OPEN"
	ShiftStatusCLOSED ShiftStatus = "CLOSED"
)

type MovementType string

const (
	MovementTypeCASHIN  MovementType = "CASH_IN"
	MovementTypeCASHOUT MovementType = "CASH_OUT"
)

type RefundStatus string

const (
	RefundStatusPENDING   RefundStatus = "PENDING"
	RefundStatusAPPROVED  RefundStatus = "APPROVED"
	RefundStatusREJECTED  RefundStatus = "REJECTED"
	RefundStatusCOMPLETED RefundStatus = "COMPLETED"
)

type RefundType string

const (
	RefundTypeCASH    RefundType = "CASH"
	RefundTypeNONCASH RefundType = "NON_CASH"
)

type DeletionStatus string

const (
	DeletionStatusPENDING  DeletionStatus = "PENDING"
	DeletionStatusAPPROVED DeletionStatus = "APPROVED"
	DeletionStatusREJECTED DeletionStatus = "REJECTED"
)

type User struct {
	ID             uuid.UUID
	FullName       string
	Email          string
	HashedPassword string
	Role           string
	CreatedAt      time.Time
}

type MenuItem struct {
	ID        uuid.UUID
	Name      string
	Price     int64
	Active    bool
	CreatedAt time.Time
}

// RecipeLine maps a menu item to one required inventory item.
// QuantityPerUnit is expressed in the inventory item's base unit.
type RecipeLine struct {
	MenuItemID      uuid.UUID
	InventoryItemID uuid.UUID
	QuantityPerUnit int64
}

type InventoryItem struct {
	ID        uuid.UUID
	Name      string
	Unit      string
	Stock     int64
	MinStock  int64
	MaxStock  pgtype.Int8
	UpdatedAt time.Time
}

// Order is the order aggregate header. All money fields are integer minor
// units (rupiah).
type Order struct {
	ID                   uuid.UUID
	OrderNumber          string
	CustomerName         pgtype.Text
	TableNumber          pgtype.Text
	Subtotal             int64
	Discount             int64
	Total                int64
	PaymentMethod        PaymentMethod
	PaymentStatus        PaymentStatus
	Status               OrderStatus
	PayLater             bool
	GatewayOrderID       pgtype.Text
	GatewayTransactionID pgtype.Text
	QrisPayload          pgtype.Text
	QrisExpiry           pgtype.Timestamptz
	PaidAt               pgtype.Timestamptz
	CreatedBy            uuid.UUID
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// OrderItem is one line of an order. Position is the zero-based index used
// by the item replace and deletion-approval operations.
type OrderItem struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	MenuItemID uuid.UUID
	Name       string
	UnitPrice  int64
	Quantity   int32
	Note       pgtype.Text
	Position   int32
}

type Shift struct {
	ID                  uuid.UUID
	CashierID           uuid.UUID
	InitialCash         int64
	StartTime           time.Time
	EndTime             pgtype.Timestamptz
	Status              ShiftStatus
	TotalOrders         pgtype.Int8
	TotalRevenue        pgtype.Int8
	TotalCashRevenue    pgtype.Int8
	TotalNonCashRevenue pgtype.Int8
	SystemCash          pgtype.Int8
	FinalCash           pgtype.Int8
	CashDifference      pgtype.Int8
	Notes               pgtype.Text
}

type CashMovement struct {
	ID          uuid.UUID
	ShiftID     uuid.UUID
	Type        MovementType
	Amount      int64
	Description string
	CreatedAt   time.Time
}

type Expense struct {
	ID          uuid.UUID
	CashierID   uuid.UUID
	Amount      int64
	Description string
	SpentAt     time.Time
}

type Refund struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	RefundAmount int64
	RefundType   RefundType
	Reason       pgtype.Text
	Status       RefundStatus
	RequestedBy  uuid.UUID
	AuthorizedBy pgtype.UUID
	CreatedAt    time.Time
	ProcessedAt  pgtype.Timestamptz
}

// DeletionRequest records a request to remove one line item from an unpaid
// open bill. The item fields snapshot the targeted line at request time, so
// a resolved row doubles as the immutable deletion log entry.
type DeletionRequest struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	ItemIndex     int32
	ItemName      string
	ItemQuantity  int32
	ItemUnitPrice int64
	Reason        string
	Status        DeletionStatus
	RequestedBy   uuid.UUID
	AuthorizedBy  pgtype.UUID
	CreatedAt     time.Time
	ResolvedAt    pgtype.Timestamptz
}
