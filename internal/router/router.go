package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kiwari-pos/ledger/internal/config"
	"github.com/kiwari-pos/ledger/internal/database"
	"github.com/kiwari-pos/ledger/internal/enum"
	"github.com/kiwari-pos/ledger/internal/handler"
	mw "github.com/kiwari-pos/ledger/internal/middleware"
	"github.com/kiwari-pos/ledger/internal/service"
	"github.com/kiwari-pos/ledger/internal/ws"
)

// TxStarter starts plain and isolation-scoped transactions. Satisfied by
// *pgxpool.Pool and by the in-memory fallback store.
type TxStarter interface {
	service.TxBeginner
	service.SnapshotTxBeginner
}

// Store is the full query surface the router wires handlers and services
// to. Satisfied by *database.Queries and by the memory fallback queries.
type Store interface {
	handler.AuthStore
	handler.OrderStore
	handler.ExpenseStore
	handler.ReportStore
	handler.InventoryStore
	service.OrderStore
	service.StockStore
	service.OpenBillStore
	service.ShiftStore
	service.RefundStore
	service.DeletionStore
	service.ReconcileStore
}

// NewStore creates a Store bound to a transaction, or to the pool when db
// is nil.
type NewStore func(db database.DBTX) Store

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, db TxStarter, newStore NewStore, charger service.Charger, poller service.StatusPoller, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	queries := newStore(nil)

	// Services
	orderService := service.NewOrderService(db, func(d database.DBTX) service.OrderStore { return newStore(d) }, charger)
	stockService := service.NewStockService(db, func(d database.DBTX) service.StockStore { return newStore(d) })
	openBillService := service.NewOpenBillService(db, func(d database.DBTX) service.OpenBillStore { return newStore(d) })
	shiftService := service.NewShiftService(db, func(d database.DBTX) service.ShiftStore { return newStore(d) })
	refundService := service.NewRefundService(db, func(d database.DBTX) service.RefundStore { return newStore(d) })
	deletionService := service.NewDeletionService(db, func(d database.DBTX) service.DeletionStore { return newStore(d) }, hub)

	reconcileService := service.NewReconcileService(queries, poller)
	reconcileService.OnPaid(func(ctx context.Context, order database.Order) {
		hub.Broadcast(service.ChannelKitchen, "order.dispatched", map[string]interface{}{
			"id":           order.ID.String(),
			"order_number": order.OrderNumber,
			"status":       string(order.Status),
			"table_number": order.TableNumber.String,
		})
	})

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	paymentHandler := handler.NewPaymentHandler(reconcileService, cfg.GatewayServerKey, hub)
	paymentHandler.RegisterWebhook(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		orderHandler := handler.NewOrderHandler(queries, orderService, stockService, hub)
		r.Route("/orders", orderHandler.RegisterRoutes)

		openBillHandler := handler.NewOpenBillHandler(openBillService, hub)
		r.Route("/open-bills", openBillHandler.RegisterRoutes)

		r.Route("/payments", paymentHandler.RegisterRoutes)

		shiftHandler := handler.NewShiftHandler(shiftService)
		r.Route("/shifts", shiftHandler.RegisterRoutes)

		expenseHandler := handler.NewExpenseHandler(queries)
		r.Route("/expenses", expenseHandler.RegisterRoutes)

		inventoryHandler := handler.NewInventoryHandler(queries)
		r.Route("/inventory", inventoryHandler.RegisterRoutes)

		refundHandler := handler.NewRefundHandler(refundService)
		deletionHandler := handler.NewDeletionHandler(deletionService)
		r.Route("/refunds", func(r chi.Router) {
			refundHandler.RegisterRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleManager))
				refundHandler.RegisterManagerRoutes(r)
			})
		})
		r.Route("/deletion-requests", func(r chi.Router) {
			deletionHandler.RegisterRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleManager))
				deletionHandler.RegisterManagerRoutes(r)
			})
		})

		// Manager-only routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleManager))
			reportHandler := handler.NewReportHandler(queries)
			r.Route("/reports", reportHandler.RegisterRoutes)
		})
	})

	return r
}
