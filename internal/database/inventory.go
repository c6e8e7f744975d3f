package database

import (
	"context"

	"github.com/google/uuid"
)

const inventoryItemColumns = `id, name, unit, stock, min_stock, max_stock, updated_at`

func scanInventoryItem(row interface{ Scan(dest ...interface{}) error }) (InventoryItem, error) {
	var it InventoryItem
	err := row.Scan(&it.ID, &it.Name, &it.Unit, &it.Stock, &it.MinStock, &it.MaxStock, &it.UpdatedAt)
	return it, err
}

const getInventoryItem = `SELECT ` + inventoryItemColumns + ` FROM inventory_items WHERE id = $1`

func (q *Queries) GetInventoryItem(ctx context.Context, id uuid.UUID) (InventoryItem, error) {
	return scanInventoryItem(q.db.QueryRow(ctx, getInventoryItem, id))
}

const listInventoryItems = `SELECT ` + inventoryItemColumns + ` FROM inventory_items ORDER BY name`

func (q *Queries) ListInventoryItems(ctx context.Context) ([]InventoryItem, error) {
	rows, err := q.db.Query(ctx, listInventoryItems)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []InventoryItem
	for rows.Next() {
		it, err := scanInventoryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type DeductInventoryStockParams struct {
	ID     uuid.UUID
	Amount int64
}

const deductInventoryStock = `
UPDATE inventory_items
SET stock = stock - $2, updated_at = NOW()
WHERE id = $1 AND stock >= $2
RETURNING ` + inventoryItemColumns

// DeductInventoryStock decrements stock with a database-level guard against
// going negative. pgx.ErrNoRows means another deduction raced in and the
// remaining stock is insufficient; the caller rolls back the batch.
func (q *Queries) DeductInventoryStock(ctx context.Context, arg DeductInventoryStockParams) (InventoryItem, error) {
	return scanInventoryItem(q.db.QueryRow(ctx, deductInventoryStock, arg.ID, arg.Amount))
}

type AddInventoryStockParams struct {
	ID     uuid.UUID
	Amount int64
}

const addInventoryStock = `
UPDATE inventory_items
SET stock = stock + $2, updated_at = NOW()
WHERE id = $1
RETURNING ` + inventoryItemColumns

func (q *Queries) AddInventoryStock(ctx context.Context, arg AddInventoryStockParams) (InventoryItem, error) {
	return scanInventoryItem(q.db.QueryRow(ctx, addInventoryStock, arg.ID, arg.Amount))
}
