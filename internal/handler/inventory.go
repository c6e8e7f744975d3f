package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/ledger/internal/database"
)

// InventoryStore defines the database methods needed by inventory handlers.
type InventoryStore interface {
	ListInventoryItems(ctx context.Context) ([]database.InventoryItem, error)
	AddInventoryStock(ctx context.Context, arg database.AddInventoryStockParams) (database.InventoryItem, error)
}

// InventoryHandler serves ingredient stock levels and restocking.
type InventoryHandler struct {
	store InventoryStore
}

// NewInventoryHandler creates a new InventoryHandler.
func NewInventoryHandler(store InventoryStore) *InventoryHandler {
	return &InventoryHandler{store: store}
}

// RegisterRoutes registers inventory endpoints on the given Chi router.
func (h *InventoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/{id}/restock", h.Restock)
}

type inventoryItemResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	Stock    int64  `json:"stock"`
	MinStock int64  `json:"min_stock"`
	MaxStock *int64 `json:"max_stock,omitempty"`
	LowStock bool   `json:"low_stock"`
}

func dbInventoryItemToResponse(it database.InventoryItem) inventoryItemResponse {
	resp := inventoryItemResponse{
		ID:       it.ID.String(),
		Name:     it.Name,
		Unit:     it.Unit,
		Stock:    it.Stock,
		MinStock: it.MinStock,
		LowStock: it.Stock <= it.MinStock,
	}
	if it.MaxStock.Valid {
		resp.MaxStock = &it.MaxStock.Int64
	}
	return resp
}

// List handles GET /inventory. Items at or below their minimum stock are
// flagged low_stock for the dashboard.
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListInventoryItems(r.Context())
	if err != nil {
		log.Printf("ERROR: list inventory: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]inventoryItemResponse, len(items))
	for i, it := range items {
		resp[i] = dbInventoryItemToResponse(it)
	}
	writeJSON(w, http.StatusOK, resp)
}

type restockRequest struct {
	Amount int64 `json:"amount"`
}

// Restock handles POST /inventory/{id}/restock.
func (h *InventoryHandler) Restock(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid inventory item ID"})
		return
	}

	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount must be positive"})
		return
	}

	item, err := h.store.AddInventoryStock(r.Context(), database.AddInventoryStockParams{
		ID:     itemID,
		Amount: req.Amount,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "inventory item not found"})
			return
		}
		log.Printf("ERROR: restock inventory item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, dbInventoryItemToResponse(item))
}
