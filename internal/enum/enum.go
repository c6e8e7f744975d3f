package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusQueued    = "QUEUED"
	OrderStatusPending   = "PENDING"
	OrderStatusPreparing = "PREPARING"
	OrderStatusServed    = "SERVED"
)

const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
	PaymentStatusFailed  = "FAILED"
	PaymentStatusExpired = "EXPIRED"
	PaymentStatusUnpaid  = "UNPAID"
)

const (
	ShiftStatusOpen   = "OPEN"
	ShiftStatusClosed = "CLOSED"
)

const (
	RefundStatusPending   = "PENDING"
	RefundStatusApproved  = "APPROVED"
	RefundStatusRejected  = "REJECTED"
	RefundStatusCompleted = "COMPLETED"
)

const (
	DeletionStatusPending  = "PENDING"
	DeletionStatusApproved = "APPROVED"
	DeletionStatusRejected = "REJECTED"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleManager = "MANAGER"
	UserRoleCashier = "CASHIER"
	UserRoleKitchen = "KITCHEN"
)

const (
	MovementTypeCashIn  = "CASH_IN"
	MovementTypeCashOut = "CASH_OUT"
)

// ── Group B: Configurable labels (no DB constraint) ──

const (
	PaymentMethodCash = "CASH"
	PaymentMethodQRIS = "QRIS"
)

const (
	RefundTypeCash    = "CASH"
	RefundTypeNonCash = "NON_CASH"
)

// Gateway transaction-status vocabulary (Midtrans Core API terms).
// These arrive from the payment gateway and are mapped onto PaymentStatus
// by the reconciliation service.
const (
	GatewayStatusPending    = "pending"
	GatewayStatusAuthorize  = "authorize"
	GatewayStatusSettlement = "settlement"
	GatewayStatusCapture    = "capture"
	GatewayStatusDeny       = "deny"
	GatewayStatusCancel     = "cancel"
	GatewayStatusFailure    = "failure"
	GatewayStatusExpire     = "expire"
)
