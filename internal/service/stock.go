package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/ledger/internal/database"
)

// StockStore defines the DB methods needed for recipe-driven deduction.
type StockStore interface {
	ListRecipeByMenuItem(ctx context.Context, menuItemID uuid.UUID) ([]database.RecipeLine, error)
	GetInventoryItem(ctx context.Context, id uuid.UUID) (database.InventoryItem, error)
	DeductInventoryStock(ctx context.Context, arg database.DeductInventoryStockParams) (database.InventoryItem, error)
}

// NewStockStore creates a StockStore from a DBTX.
type NewStockStore func(db database.DBTX) StockStore

// StockLine identifies one ordered menu item to expand through its recipe.
type StockLine struct {
	MenuItemID uuid.UUID
	Quantity   int32
}

// ShortfallItem reports one ingredient that cannot cover the requirement.
type ShortfallItem struct {
	InventoryItemID uuid.UUID `json:"inventory_item_id"`
	Name            string    `json:"name"`
	Unit            string    `json:"unit"`
	Required        int64     `json:"required"`
	Available       int64     `json:"available"`
}

// InsufficientStockError carries the complete per-ingredient shortfall
// report. No partial deduction has happened when this is returned.
type InsufficientStockError struct {
	Items []ShortfallItem
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %d ingredient(s)", len(e.Items))
}

// StockService deducts inventory for served orders by expanding order lines
// through recipe definitions.
type StockService struct {
	pool     TxBeginner
	newStore NewStockStore
}

func NewStockService(pool TxBeginner, newStore NewStockStore) *StockService {
	return &StockService{pool: pool, newStore: newStore}
}

// DeductForOrder aggregates ingredient requirements across all lines and
// deducts them in one transaction. Either every ingredient is deducted or
// none is; a shortfall returns *InsufficientStockError listing every
// deficient ingredient, not just the first.
//
// Menu items without a recipe contribute nothing and never block.
func (s *StockService) DeductForOrder(ctx context.Context, lines []StockLine) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	required, err := aggregateRequirements(ctx, store, lines)
	if err != nil {
		return err
	}
	if len(required) == 0 {
		return tx.Commit(ctx)
	}

	// Deterministic ordering keeps concurrent deductions from deadlocking
	// on row locks.
	ids := make([]uuid.UUID, 0, len(required))
	for id := range required {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	// Validation pass: collect the full shortfall report before touching rows.
	var shortfall []ShortfallItem
	for _, id := range ids {
		item, err := store.GetInventoryItem(ctx, id)
		if err != nil {
			return fmt.Errorf("get inventory item %s: %w", id, err)
		}
		if item.Stock < required[id] {
			shortfall = append(shortfall, ShortfallItem{
				InventoryItemID: item.ID,
				Name:            item.Name,
				Unit:            item.Unit,
				Required:        required[id],
				Available:       item.Stock,
			})
		}
	}
	if len(shortfall) > 0 {
		return &InsufficientStockError{Items: shortfall}
	}

	// Commit pass: guarded UPDATEs catch deductions that raced past the
	// validation reads. Any miss rolls back the whole batch.
	for _, id := range ids {
		_, err := store.DeductInventoryStock(ctx, database.DeductInventoryStockParams{
			ID:     id,
			Amount: required[id],
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				item, getErr := store.GetInventoryItem(ctx, id)
				if getErr != nil {
					return fmt.Errorf("get inventory item %s after raced deduction: %w", id, getErr)
				}
				return &InsufficientStockError{Items: []ShortfallItem{{
					InventoryItemID: item.ID,
					Name:            item.Name,
					Unit:            item.Unit,
					Required:        required[id],
					Available:       item.Stock,
				}}}
			}
			return fmt.Errorf("deduct inventory item %s: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// aggregateRequirements sums ingredient needs across lines so an ingredient
// shared by several menu items is checked once against its combined total.
func aggregateRequirements(ctx context.Context, store StockStore, lines []StockLine) (map[uuid.UUID]int64, error) {
	required := make(map[uuid.UUID]int64)
	for _, line := range lines {
		recipe, err := store.ListRecipeByMenuItem(ctx, line.MenuItemID)
		if err != nil {
			return nil, fmt.Errorf("list recipe for %s: %w", line.MenuItemID, err)
		}
		for _, rl := range recipe {
			required[rl.InventoryItemID] += rl.QuantityPerUnit * int64(line.Quantity)
		}
	}
	return required, nil
}
