// Package memstore is a volatile fallback used when Postgres is not
// reachable at startup. It mirrors the database package's calling
// convention so services and handlers run unchanged; data lives only for
// the lifetime of the process.
package memstore

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiwari-pos/ledger/internal/database"
)

var errNotRelational = errors.New("memstore does not execute SQL")

// Store holds all POS state in process memory.
type Store struct {
	mu sync.Mutex

	users            map[uuid.UUID]database.User
	menuItems        map[uuid.UUID]database.MenuItem
	inventoryItems   map[uuid.UUID]database.InventoryItem
	recipes          map[uuid.UUID][]database.RecipeLine
	orders           map[uuid.UUID]database.Order
	orderItems       map[uuid.UUID][]database.OrderItem
	shifts           map[uuid.UUID]database.Shift
	cashMovements    map[uuid.UUID][]database.CashMovement
	expenses         []database.Expense
	refunds          map[uuid.UUID]database.Refund
	deletionRequests map[uuid.UUID]database.DeletionRequest

	orderSeq     int32
	lastOrderDay string
}

func New() *Store {
	return &Store{
		users:            make(map[uuid.UUID]database.User),
		menuItems:        make(map[uuid.UUID]database.MenuItem),
		inventoryItems:   make(map[uuid.UUID]database.InventoryItem),
		recipes:          make(map[uuid.UUID][]database.RecipeLine),
		orders:           make(map[uuid.UUID]database.Order),
		orderItems:       make(map[uuid.UUID][]database.OrderItem),
		shifts:           make(map[uuid.UUID]database.Shift),
		cashMovements:    make(map[uuid.UUID][]database.CashMovement),
		refunds:          make(map[uuid.UUID]database.Refund),
		deletionRequests: make(map[uuid.UUID]database.DeletionRequest),
	}
}

// Begin takes the store lock for the duration of the transaction.
// Transactions serialize fully; there is no rollback of applied mutations,
// which is acceptable for a volatile fallback mode.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	s.mu.Lock()
	return &memTx{store: s}, nil
}

// BeginTx ignores isolation options: the single lock already gives every
// transaction a fully serialized view.
func (s *Store) BeginTx(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	return s.Begin(ctx)
}

// Queries returns the query API bound to either the ambient store (db nil
// or unknown) or an open transaction. Inside a transaction the lock is
// already held, so per-call locking is skipped.
func (s *Store) Queries(db database.DBTX) *Queries {
	_, inTx := db.(*memTx)
	return &Queries{store: s, locked: inTx}
}

// memTx satisfies pgx.Tx so services can drive the memstore through the
// same TxBeginner seam as a pgx pool. SQL entry points are rejected;
// callers go through Queries instead.
type memTx struct {
	store *Store
	done  bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		// Matches pgx: rollback after commit is a silent no-op for the
		// defer tx.Rollback(ctx) pattern.
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, errNotRelational }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errNotRelational
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errNotRelational
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errNotRelational
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errNotRelational
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return errRow{} }
func (t *memTx) Conn() *pgx.Conn                                               { return nil }

type errRow struct{}

func (errRow) Scan(dest ...any) error { return errNotRelational }
