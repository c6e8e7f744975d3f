package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiwari-pos/ledger/internal/config"
	"github.com/kiwari-pos/ledger/internal/database"
	"github.com/kiwari-pos/ledger/internal/enum"
	"github.com/kiwari-pos/ledger/internal/gateway"
	"github.com/kiwari-pos/ledger/internal/memstore"
	"github.com/kiwari-pos/ledger/internal/router"
	"github.com/kiwari-pos/ledger/internal/ws"
)

func main() {
	cfg := config.Load()

	hub := ws.NewHub()
	go hub.Run()

	gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayServerKey, cfg.GatewayTimeout)

	db, newStore, err := connect(cfg)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	r := router.New(cfg, db, newStore, gw, gw, hub)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("ERROR: shutdown: %v", err)
	}
}

// connect opens the Postgres pool and runs migrations. When the database is
// unreachable and FALLBACK_MEMORY=true, the server boots against the
// volatile in-memory store instead; the backend is chosen once and never
// switched at runtime.
func connect(cfg *config.Config) (router.TxStarter, router.NewStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err == nil {
		err = pool.Ping(ctx)
	}
	if err != nil {
		if !cfg.FallbackMemory {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		log.Printf("WARN: database unreachable (%v), falling back to in-memory store; all data is volatile", err)
		mem := memstore.New()
		if err := seedMemory(ctx, mem); err != nil {
			return nil, nil, fmt.Errorf("seed in-memory store: %w", err)
		}
		return mem, func(db database.DBTX) router.Store { return mem.Queries(db) }, nil
	}

	if err := runMigrations(cfg); err != nil {
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Println("Connected to database")

	newStore := func(db database.DBTX) router.Store {
		if db == nil {
			return database.New(pool)
		}
		return database.New(db)
	}
	return pool, newStore, nil
}

// seedMemory gives the volatile store a usable login and a small menu so
// the floor can keep taking orders during an outage.
func seedMemory(ctx context.Context, mem *memstore.Store) error {
	q := mem.Queries(nil)

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	for _, u := range []database.CreateUserParams{
		{FullName: "Fallback Cashier", Email: "cashier@local", HashedPassword: string(hashed), Role: enum.UserRoleCashier},
		{FullName: "Fallback Manager", Email: "manager@local", HashedPassword: string(hashed), Role: enum.UserRoleManager},
		{FullName: "Fallback Kitchen", Email: "kitchen@local", HashedPassword: string(hashed), Role: enum.UserRoleKitchen},
	} {
		if _, err := q.CreateUser(ctx, u); err != nil {
			return err
		}
	}

	rice := q.SeedInventoryItem("Beras", "gram", 50000, 5000)
	chicken := q.SeedInventoryItem("Ayam", "gram", 20000, 2000)
	nasiBakar := q.SeedMenuItem("Nasi Bakar Ayam", 25000)
	q.SeedRecipeLine(nasiBakar.ID, rice.ID, 200)
	q.SeedRecipeLine(nasiBakar.ID, chicken.ID, 150)
	q.SeedMenuItem("Es Teh Manis", 8000)

	log.Println("Seeded in-memory store with fallback users and menu")
	return nil
}

func runMigrations(cfg *config.Config) error {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+cfg.MigrationsPath, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
