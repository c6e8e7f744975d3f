package database

import (
	"context"

	"github.com/google/uuid"
)

const menuItemColumns = `id, name, price, active, created_at`

const getMenuItem = `SELECT ` + menuItemColumns + ` FROM menu_items WHERE id = $1 AND active = TRUE`

// GetMenuItem looks up an active menu item. Menu management itself is owned
// elsewhere; the ledger only reads price snapshots and recipes.
func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	var m MenuItem
	err := q.db.QueryRow(ctx, getMenuItem, id).Scan(&m.ID, &m.Name, &m.Price, &m.Active, &m.CreatedAt)
	return m, err
}

const listRecipeByMenuItem = `
SELECT menu_item_id, inventory_item_id, quantity_per_unit
FROM recipes
WHERE menu_item_id = $1
`

func (q *Queries) ListRecipeByMenuItem(ctx context.Context, menuItemID uuid.UUID) ([]RecipeLine, error) {
	rows, err := q.db.Query(ctx, listRecipeByMenuItem, menuItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []RecipeLine
	for rows.Next() {
		var l RecipeLine
		if err := rows.Scan(&l.MenuItemID, &l.InventoryItemID, &l.QuantityPerUnit); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
