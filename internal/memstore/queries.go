package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/ledger/internal/database"
)

// Queries mirrors database.Queries against the in-memory store. Each method
// keeps the same pgx error contract: pgx.ErrNoRows for misses and guarded
// updates, *pgconn.PgError 23505 for unique violations.
type Queries struct {
	store  *Store
	locked bool
}

func (q *Queries) lock() func() {
	if q.locked {
		return func() {}
	}
	q.store.mu.Lock()
	return q.store.mu.Unlock
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

// --- Users ---

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (database.User, error) {
	defer q.lock()()
	for _, u := range q.store.users {
		if u.Email == email {
			return u, nil
		}
	}
	return database.User{}, pgx.ErrNoRows
}

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error) {
	defer q.lock()()
	u, ok := q.store.users[id]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (q *Queries) CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
	defer q.lock()()
	for _, u := range q.store.users {
		if u.Email == arg.Email {
			return database.User{}, uniqueViolation("users_email_key")
		}
	}
	u := database.User{
		ID:             uuid.New(),
		FullName:       arg.FullName,
		Email:          arg.Email,
		HashedPassword: arg.HashedPassword,
		Role:           arg.Role,
		CreatedAt:      time.Now(),
	}
	q.store.users[u.ID] = u
	return u, nil
}

// --- Menu and recipes ---

func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error) {
	defer q.lock()()
	m, ok := q.store.menuItems[id]
	if !ok || !m.Active {
		return database.MenuItem{}, pgx.ErrNoRows
	}
	return m, nil
}

func (q *Queries) ListRecipeByMenuItem(ctx context.Context, menuItemID uuid.UUID) ([]database.RecipeLine, error) {
	defer q.lock()()
	return append([]database.RecipeLine(nil), q.store.recipes[menuItemID]...), nil
}

// SeedMenuItem registers a menu item; memory mode has no menu admin API.
func (q *Queries) SeedMenuItem(name string, price int64) database.MenuItem {
	defer q.lock()()
	m := database.MenuItem{ID: uuid.New(), Name: name, Price: price, Active: true, CreatedAt: time.Now()}
	q.store.menuItems[m.ID] = m
	return m
}

// SeedRecipeLine links a menu item to an inventory requirement.
func (q *Queries) SeedRecipeLine(menuItemID, inventoryItemID uuid.UUID, quantityPerUnit int64) {
	defer q.lock()()
	q.store.recipes[menuItemID] = append(q.store.recipes[menuItemID], database.RecipeLine{
		MenuItemID:      menuItemID,
		InventoryItemID: inventoryItemID,
		QuantityPerUnit: quantityPerUnit,
	})
}

// SeedInventoryItem registers an inventory item with opening stock.
func (q *Queries) SeedInventoryItem(name, unit string, stock, minStock int64) database.InventoryItem {
	defer q.lock()()
	it := database.InventoryItem{
		ID: uuid.New(), Name: name, Unit: unit,
		Stock: stock, MinStock: minStock, UpdatedAt: time.Now(),
	}
	q.store.inventoryItems[it.ID] = it
	return it
}

// --- Inventory ---

func (q *Queries) GetInventoryItem(ctx context.Context, id uuid.UUID) (database.InventoryItem, error) {
	defer q.lock()()
	it, ok := q.store.inventoryItems[id]
	if !ok {
		return database.InventoryItem{}, pgx.ErrNoRows
	}
	return it, nil
}

func (q *Queries) ListInventoryItems(ctx context.Context) ([]database.InventoryItem, error) {
	defer q.lock()()
	items := make([]database.InventoryItem, 0, len(q.store.inventoryItems))
	for _, it := range q.store.inventoryItems {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (q *Queries) DeductInventoryStock(ctx context.Context, arg database.DeductInventoryStockParams) (database.InventoryItem, error) {
	defer q.lock()()
	it, ok := q.store.inventoryItems[arg.ID]
	if !ok || it.Stock < arg.Amount {
		return database.InventoryItem{}, pgx.ErrNoRows
	}
	it.Stock -= arg.Amount
	it.UpdatedAt = time.Now()
	q.store.inventoryItems[arg.ID] = it
	return it, nil
}

func (q *Queries) AddInventoryStock(ctx context.Context, arg database.AddInventoryStockParams) (database.InventoryItem, error) {
	defer q.lock()()
	it, ok := q.store.inventoryItems[arg.ID]
	if !ok {
		return database.InventoryItem{}, pgx.ErrNoRows
	}
	it.Stock += arg.Amount
	it.UpdatedAt = time.Now()
	q.store.inventoryItems[arg.ID] = it
	return it, nil
}

// --- Orders ---

func (q *Queries) GetNextOrderNumber(ctx context.Context) (int32, error) {
	defer q.lock()()
	today := time.Now().Format("20060102")
	if q.store.lastOrderDay != today {
		q.store.lastOrderDay = today
		q.store.orderSeq = 0
	}
	return q.store.orderSeq + 1, nil
}

func (q *Queries) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	defer q.lock()()
	for _, o := range q.store.orders {
		if o.OrderNumber == arg.OrderNumber {
			return database.Order{}, uniqueViolation("orders_order_number_key")
		}
	}
	now := time.Now()
	o := database.Order{
		ID:                   uuid.New(),
		OrderNumber:          arg.OrderNumber,
		CustomerName:         arg.CustomerName,
		TableNumber:          arg.TableNumber,
		Subtotal:             arg.Subtotal,
		Discount:             arg.Discount,
		Total:                arg.Total,
		PaymentMethod:        arg.PaymentMethod,
		PaymentStatus:        arg.PaymentStatus,
		Status:               arg.Status,
		PayLater:             arg.PayLater,
		GatewayOrderID:       arg.GatewayOrderID,
		GatewayTransactionID: arg.GatewayTransactionID,
		QrisPayload:          arg.QrisPayload,
		QrisExpiry:           arg.QrisExpiry,
		PaidAt:               arg.PaidAt,
		CreatedBy:            arg.CreatedBy,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	q.store.orders[o.ID] = o
	q.store.orderSeq++
	return o, nil
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	defer q.lock()()
	o, ok := q.store.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

// GetOrderForUpdate is GetOrder; the store lock already serializes writers.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return q.GetOrder(ctx, id)
}

func (q *Queries) GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (database.Order, error) {
	defer q.lock()()
	for _, o := range q.store.orders {
		if o.GatewayOrderID.Valid && o.GatewayOrderID.String == gatewayOrderID {
			return o, nil
		}
	}
	return database.Order{}, pgx.ErrNoRows
}

func (q *Queries) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	defer q.lock()()
	var orders []database.Order
	for _, o := range q.store.orders {
		if arg.Status.Valid && string(o.Status) != arg.Status.String {
			continue
		}
		if arg.PaymentStatus.Valid && string(o.PaymentStatus) != arg.PaymentStatus.String {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })

	start := int(arg.Offset)
	if start > len(orders) {
		start = len(orders)
	}
	end := start + int(arg.Limit)
	if arg.Limit <= 0 || end > len(orders) {
		end = len(orders)
	}
	return orders[start:end], nil
}

func (q *Queries) GetOpenBillByTable(ctx context.Context, tableNumber string) (database.Order, error) {
	defer q.lock()()
	var found *database.Order
	for _, o := range q.store.orders {
		o := o
		if !o.PayLater || o.Status != database.OrderStatusQUEUED || o.PaymentStatus != database.PaymentStatusUNPAID {
			continue
		}
		if !o.TableNumber.Valid || o.TableNumber.String != tableNumber {
			continue
		}
		if found == nil || o.CreatedAt.After(found.CreatedAt) {
			found = &o
		}
	}
	if found == nil {
		return database.Order{}, pgx.ErrNoRows
	}
	return *found, nil
}

func (q *Queries) AdvanceOrderStatus(ctx context.Context, arg database.AdvanceOrderStatusParams) (database.Order, error) {
	defer q.lock()()
	o, ok := q.store.orders[arg.ID]
	if !ok || o.Status != arg.FromStatus {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	o.UpdatedAt = time.Now()
	q.store.orders[arg.ID] = o
	return o, nil
}

func (q *Queries) UpdateOrderPaymentStatus(ctx context.Context, arg database.UpdateOrderPaymentStatusParams) (database.Order, error) {
	defer q.lock()()
	o, ok := q.store.orders[arg.ID]
	if !ok || o.PaymentStatus != arg.FromStatus {
		return database.Order{}, pgx.ErrNoRows
	}
	o.PaymentStatus = arg.PaymentStatus
	if arg.GatewayTransactionID.Valid {
		o.GatewayTransactionID = arg.GatewayTransactionID
	}
	if !o.PaidAt.Valid && arg.PaidAt.Valid {
		o.PaidAt = arg.PaidAt
	}
	o.UpdatedAt = time.Now()
	q.store.orders[arg.ID] = o
	return o, nil
}

func (q *Queries) PayOpenBill(ctx context.Context, arg database.PayOpenBillParams) (database.Order, error) {
	defer q.lock()()
	o, ok := q.store.orders[arg.ID]
	if !ok || !o.PayLater || o.PaymentStatus != database.PaymentStatusUNPAID {
		return database.Order{}, pgx.ErrNoRows
	}
	o.PaymentStatus = database.PaymentStatusPAID
	o.PaymentMethod = arg.PaymentMethod
	o.PaidAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	o.UpdatedAt = time.Now()
	q.store.orders[arg.ID] = o
	return o, nil
}

func (q *Queries) UpdateOrderAmounts(ctx context.Context, arg database.UpdateOrderAmountsParams) (database.Order, error) {
	defer q.lock()()
	o, ok := q.store.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Subtotal = arg.Subtotal
	o.Discount = arg.Discount
	o.Total = arg.Total
	o.UpdatedAt = time.Now()
	q.store.orders[arg.ID] = o
	return o, nil
}

func (q *Queries) ListPaidServedOrdersInWindow(ctx context.Context, arg database.ListPaidServedOrdersInWindowParams) ([]database.Order, error) {
	defer q.lock()()
	var orders []database.Order
	for _, o := range q.store.orders {
		if o.PaymentStatus != database.PaymentStatusPAID || o.Status != database.OrderStatusSERVED {
			continue
		}
		if !o.PaidAt.Valid || o.PaidAt.Time.Before(arg.StartTime.Time) || o.PaidAt.Time.After(arg.EndTime.Time) {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].PaidAt.Time.Before(orders[j].PaidAt.Time) })
	return orders, nil
}

// --- Order items ---

func (q *Queries) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	defer q.lock()()
	it := database.OrderItem{
		ID:         uuid.New(),
		OrderID:    arg.OrderID,
		MenuItemID: arg.MenuItemID,
		Name:       arg.Name,
		UnitPrice:  arg.UnitPrice,
		Quantity:   arg.Quantity,
		Note:       arg.Note,
		Position:   arg.Position,
	}
	q.store.orderItems[arg.OrderID] = append(q.store.orderItems[arg.OrderID], it)
	return it, nil
}

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	defer q.lock()()
	items := append([]database.OrderItem(nil), q.store.orderItems[orderID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	return items, nil
}

func (q *Queries) CountOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error) {
	defer q.lock()()
	return int64(len(q.store.orderItems[orderID])), nil
}

func (q *Queries) DeleteOrderItems(ctx context.Context, orderID uuid.UUID) error {
	defer q.lock()()
	delete(q.store.orderItems, orderID)
	return nil
}

func (q *Queries) DeleteOrderItemAtPosition(ctx context.Context, arg database.DeleteOrderItemAtPositionParams) (database.OrderItem, error) {
	defer q.lock()()
	items := q.store.orderItems[arg.OrderID]
	for i, it := range items {
		if it.Position == arg.Position {
			q.store.orderItems[arg.OrderID] = append(items[:i], items[i+1:]...)
			return it, nil
		}
	}
	return database.OrderItem{}, pgx.ErrNoRows
}

func (q *Queries) ShiftOrderItemPositions(ctx context.Context, arg database.DeleteOrderItemAtPositionParams) error {
	defer q.lock()()
	items := q.store.orderItems[arg.OrderID]
	for i := range items {
		if items[i].Position > arg.Position {
			items[i].Position--
		}
	}
	return nil
}

// --- Shifts ---

func (q *Queries) CreateShift(ctx context.Context, arg database.CreateShiftParams) (database.Shift, error) {
	defer q.lock()()
	for _, s := range q.store.shifts {
		if s.CashierID == arg.CashierID && s.Status == database.ShiftStatusOPEN {
			return database.Shift{}, uniqueViolation("idx_shifts_one_open_per_cashier")
		}
	}
	s := database.Shift{
		ID:          uuid.New(),
		CashierID:   arg.CashierID,
		InitialCash: arg.InitialCash,
		StartTime:   time.Now(),
		Status:      database.ShiftStatusOPEN,
	}
	q.store.shifts[s.ID] = s
	return s, nil
}

func (q *Queries) GetShift(ctx context.Context, id uuid.UUID) (database.Shift, error) {
	defer q.lock()()
	s, ok := q.store.shifts[id]
	if !ok {
		return database.Shift{}, pgx.ErrNoRows
	}
	return s, nil
}

func (q *Queries) GetOpenShiftByCashier(ctx context.Context, cashierID uuid.UUID) (database.Shift, error) {
	defer q.lock()()
	for _, s := range q.store.shifts {
		if s.CashierID == cashierID && s.Status == database.ShiftStatusOPEN {
			return s, nil
		}
	}
	return database.Shift{}, pgx.ErrNoRows
}

func (q *Queries) CloseShift(ctx context.Context, arg database.CloseShiftParams) (database.Shift, error) {
	defer q.lock()()
	s, ok := q.store.shifts[arg.ID]
	if !ok || s.Status != database.ShiftStatusOPEN {
		return database.Shift{}, pgx.ErrNoRows
	}
	s.Status = database.ShiftStatusCLOSED
	s.EndTime = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	s.TotalOrders = pgtype.Int8{Int64: arg.TotalOrders, Valid: true}
	s.TotalRevenue = pgtype.Int8{Int64: arg.TotalRevenue, Valid: true}
	s.TotalCashRevenue = pgtype.Int8{Int64: arg.TotalCashRevenue, Valid: true}
	s.TotalNonCashRevenue = pgtype.Int8{Int64: arg.TotalNonCashRevenue, Valid: true}
	s.SystemCash = pgtype.Int8{Int64: arg.SystemCash, Valid: true}
	s.FinalCash = pgtype.Int8{Int64: arg.FinalCash, Valid: true}
	s.CashDifference = pgtype.Int8{Int64: arg.CashDifference, Valid: true}
	s.Notes = arg.Notes
	q.store.shifts[arg.ID] = s
	return s, nil
}

func (q *Queries) CreateCashMovement(ctx context.Context, arg database.CreateCashMovementParams) (database.CashMovement, error) {
	defer q.lock()()
	m := database.CashMovement{
		ID:          uuid.New(),
		ShiftID:     arg.ShiftID,
		Type:        arg.Type,
		Amount:      arg.Amount,
		Description: arg.Description,
		CreatedAt:   time.Now(),
	}
	q.store.cashMovements[arg.ShiftID] = append(q.store.cashMovements[arg.ShiftID], m)
	return m, nil
}

func (q *Queries) ListCashMovementsByShift(ctx context.Context, shiftID uuid.UUID) ([]database.CashMovement, error) {
	defer q.lock()()
	return append([]database.CashMovement(nil), q.store.cashMovements[shiftID]...), nil
}

// --- Expenses ---

func (q *Queries) CreateExpense(ctx context.Context, arg database.CreateExpenseParams) (database.Expense, error) {
	defer q.lock()()
	e := database.Expense{
		ID:          uuid.New(),
		CashierID:   arg.CashierID,
		Amount:      arg.Amount,
		Description: arg.Description,
		SpentAt:     time.Now(),
	}
	q.store.expenses = append(q.store.expenses, e)
	return e, nil
}

func (q *Queries) ListExpensesByCashierInWindow(ctx context.Context, arg database.ListExpensesByCashierInWindowParams) ([]database.Expense, error) {
	defer q.lock()()
	var expenses []database.Expense
	for _, e := range q.store.expenses {
		if e.CashierID != arg.CashierID {
			continue
		}
		if e.SpentAt.Before(arg.StartTime.Time) || e.SpentAt.After(arg.EndTime.Time) {
			continue
		}
		expenses = append(expenses, e)
	}
	return expenses, nil
}

// --- Refunds ---

func (q *Queries) CreateRefund(ctx context.Context, arg database.CreateRefundParams) (database.Refund, error) {
	defer q.lock()()
	r := database.Refund{
		ID:           uuid.New(),
		OrderID:      arg.OrderID,
		RefundAmount: arg.RefundAmount,
		RefundType:   arg.RefundType,
		Reason:       arg.Reason,
		Status:       database.RefundStatusPENDING,
		RequestedBy:  arg.RequestedBy,
		CreatedAt:    time.Now(),
	}
	q.store.refunds[r.ID] = r
	return r, nil
}

func (q *Queries) GetRefund(ctx context.Context, id uuid.UUID) (database.Refund, error) {
	defer q.lock()()
	r, ok := q.store.refunds[id]
	if !ok {
		return database.Refund{}, pgx.ErrNoRows
	}
	return r, nil
}

func (q *Queries) ResolveRefund(ctx context.Context, arg database.ResolveRefundParams) (database.Refund, error) {
	defer q.lock()()
	r, ok := q.store.refunds[arg.ID]
	if !ok || r.Status != database.RefundStatusPENDING {
		return database.Refund{}, pgx.ErrNoRows
	}
	r.Status = arg.Status
	r.AuthorizedBy = pgtype.UUID{Bytes: arg.AuthorizedBy, Valid: true}
	r.ProcessedAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	q.store.refunds[arg.ID] = r
	return r, nil
}

func (q *Queries) CompleteRefund(ctx context.Context, arg database.CompleteRefundParams) (database.Refund, error) {
	defer q.lock()()
	r, ok := q.store.refunds[arg.ID]
	if !ok || r.Status != database.RefundStatusAPPROVED {
		return database.Refund{}, pgx.ErrNoRows
	}
	r.Status = database.RefundStatusCOMPLETED
	r.ProcessedAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	q.store.refunds[arg.ID] = r
	return r, nil
}

func (q *Queries) SumCommittedRefundsByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	defer q.lock()()
	var sum int64
	for _, r := range q.store.refunds {
		if r.OrderID != orderID {
			continue
		}
		if r.Status == database.RefundStatusAPPROVED || r.Status == database.RefundStatusCOMPLETED {
			sum += r.RefundAmount
		}
	}
	return sum, nil
}

func (q *Queries) ListCompletedRefundsByCashierInWindow(ctx context.Context, arg database.ListCompletedRefundsByCashierInWindowParams) ([]database.Refund, error) {
	defer q.lock()()
	var refunds []database.Refund
	for _, r := range q.store.refunds {
		if r.RequestedBy != arg.RequestedBy || r.Status != database.RefundStatusCOMPLETED {
			continue
		}
		if !r.ProcessedAt.Valid || r.ProcessedAt.Time.Before(arg.StartTime.Time) || r.ProcessedAt.Time.After(arg.EndTime.Time) {
			continue
		}
		refunds = append(refunds, r)
	}
	sort.Slice(refunds, func(i, j int) bool { return refunds[i].ProcessedAt.Time.Before(refunds[j].ProcessedAt.Time) })
	return refunds, nil
}

// --- Deletion requests ---

func (q *Queries) CreateDeletionRequest(ctx context.Context, arg database.CreateDeletionRequestParams) (database.DeletionRequest, error) {
	defer q.lock()()
	d := database.DeletionRequest{
		ID:            uuid.New(),
		OrderID:       arg.OrderID,
		ItemIndex:     arg.ItemIndex,
		ItemName:      arg.ItemName,
		ItemQuantity:  arg.ItemQuantity,
		ItemUnitPrice: arg.ItemUnitPrice,
		Reason:        arg.Reason,
		Status:        database.DeletionStatusPENDING,
		RequestedBy:   arg.RequestedBy,
		CreatedAt:     time.Now(),
	}
	q.store.deletionRequests[d.ID] = d
	return d, nil
}

func (q *Queries) GetDeletionRequest(ctx context.Context, id uuid.UUID) (database.DeletionRequest, error) {
	defer q.lock()()
	d, ok := q.store.deletionRequests[id]
	if !ok {
		return database.DeletionRequest{}, pgx.ErrNoRows
	}
	return d, nil
}

func (q *Queries) ResolveDeletionRequest(ctx context.Context, arg database.ResolveDeletionRequestParams) (database.DeletionRequest, error) {
	defer q.lock()()
	d, ok := q.store.deletionRequests[arg.ID]
	if !ok || d.Status != database.DeletionStatusPENDING {
		return database.DeletionRequest{}, pgx.ErrNoRows
	}
	d.Status = arg.Status
	d.AuthorizedBy = pgtype.UUID{Bytes: arg.AuthorizedBy, Valid: true}
	d.ResolvedAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	q.store.deletionRequests[arg.ID] = d
	return d, nil
}

func (q *Queries) ListDeletionRequestsByStatus(ctx context.Context, status database.DeletionStatus) ([]database.DeletionRequest, error) {
	defer q.lock()()
	var requests []database.DeletionRequest
	for _, d := range q.store.deletionRequests {
		if d.Status == status {
			requests = append(requests, d)
		}
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].CreatedAt.Before(requests[j].CreatedAt) })
	return requests, nil
}

// --- Reports ---

func (q *Queries) GetDailySales(ctx context.Context, arg database.SalesWindowParams) ([]database.GetDailySalesRow, error) {
	defer q.lock()()
	byDate := make(map[string]*database.GetDailySalesRow)
	for _, o := range q.store.orders {
		if o.PaymentStatus != database.PaymentStatusPAID || !o.PaidAt.Valid {
			continue
		}
		if o.PaidAt.Time.Before(arg.StartTime.Time) || o.PaidAt.Time.After(arg.EndTime.Time) {
			continue
		}
		day := o.PaidAt.Time.Format("2006-01-02")
		row, ok := byDate[day]
		if !ok {
			date, _ := time.Parse("2006-01-02", day)
			row = &database.GetDailySalesRow{SaleDate: pgtype.Date{Time: date, Valid: true}}
			byDate[day] = row
		}
		row.OrderCount++
		row.GrossRevenue += o.Subtotal
		row.Discounts += o.Discount
		row.NetRevenue += o.Total
	}

	result := make([]database.GetDailySalesRow, 0, len(byDate))
	for _, row := range byDate {
		result = append(result, *row)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SaleDate.Time.Before(result[j].SaleDate.Time) })
	return result, nil
}

func (q *Queries) GetPaymentSummary(ctx context.Context, arg database.SalesWindowParams) ([]database.GetPaymentSummaryRow, error) {
	defer q.lock()()
	byMethod := make(map[database.PaymentMethod]*database.GetPaymentSummaryRow)
	for _, o := range q.store.orders {
		if o.PaymentStatus != database.PaymentStatusPAID || !o.PaidAt.Valid {
			continue
		}
		if o.PaidAt.Time.Before(arg.StartTime.Time) || o.PaidAt.Time.After(arg.EndTime.Time) {
			continue
		}
		row, ok := byMethod[o.PaymentMethod]
		if !ok {
			row = &database.GetPaymentSummaryRow{PaymentMethod: o.PaymentMethod}
			byMethod[o.PaymentMethod] = row
		}
		row.OrderCount++
		row.TotalAmount += o.Total
	}

	result := make([]database.GetPaymentSummaryRow, 0, len(byMethod))
	for _, row := range byMethod {
		result = append(result, *row)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PaymentMethod < result[j].PaymentMethod })
	return result, nil
}
