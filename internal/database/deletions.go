package database

import (
	"context"

	"github.com/google/uuid"
)

const deletionRequestColumns = `id, order_id, item_index, item_name, item_quantity, item_unit_price,
	reason, status, requested_by, authorized_by, created_at, resolved_at`

func scanDeletionRequest(row interface{ Scan(dest ...interface{}) error }) (DeletionRequest, error) {
	var d DeletionRequest
	err := row.Scan(
		&d.ID, &d.OrderID, &d.ItemIndex, &d.ItemName, &d.ItemQuantity, &d.ItemUnitPrice,
		&d.Reason, &d.Status, &d.RequestedBy, &d.AuthorizedBy, &d.CreatedAt, &d.ResolvedAt,
	)
	return d, err
}

type CreateDeletionRequestParams struct {
	OrderID       uuid.UUID
	ItemIndex     int32
	ItemName      string
	ItemQuantity  int32
	ItemUnitPrice int64
	Reason        string
	RequestedBy   uuid.UUID
}

const createDeletionRequest = `
INSERT INTO deletion_requests (order_id, item_index, item_name, item_quantity, item_unit_price, reason, status, requested_by)
VALUES ($1, $2, $3, $4, $5, $6, 'PENDING', $7)
RETURNING ` + deletionRequestColumns

func (q *Queries) CreateDeletionRequest(ctx context.Context, arg CreateDeletionRequestParams) (DeletionRequest, error) {
	row := q.db.QueryRow(ctx, createDeletionRequest,
		arg.OrderID, arg.ItemIndex, arg.ItemName, arg.ItemQuantity, arg.ItemUnitPrice,
		arg.Reason, arg.RequestedBy)
	return scanDeletionRequest(row)
}

const getDeletionRequest = `SELECT ` + deletionRequestColumns + ` FROM deletion_requests WHERE id = $1`

func (q *Queries) GetDeletionRequest(ctx context.Context, id uuid.UUID) (DeletionRequest, error) {
	return scanDeletionRequest(q.db.QueryRow(ctx, getDeletionRequest, id))
}

type ResolveDeletionRequestParams struct {
	ID           uuid.UUID
	Status       DeletionStatus
	AuthorizedBy uuid.UUID
}

const resolveDeletionRequest = `
UPDATE deletion_requests
SET status = $2, authorized_by = $3, resolved_at = NOW()
WHERE id = $1 AND status = 'PENDING'
RETURNING ` + deletionRequestColumns

// ResolveDeletionRequest settles a request exactly once. The resolved row is
// the immutable deletion log entry: item snapshot plus both actors.
func (q *Queries) ResolveDeletionRequest(ctx context.Context, arg ResolveDeletionRequestParams) (DeletionRequest, error) {
	return scanDeletionRequest(q.db.QueryRow(ctx, resolveDeletionRequest, arg.ID, arg.Status, arg.AuthorizedBy))
}

const listDeletionRequestsByStatus = `
SELECT ` + deletionRequestColumns + `
FROM deletion_requests
WHERE status = $1
ORDER BY created_at
`

func (q *Queries) ListDeletionRequestsByStatus(ctx context.Context, status DeletionStatus) ([]DeletionRequest, error) {
	rows, err := q.db.Query(ctx, listDeletionRequestsByStatus, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []DeletionRequest
	for rows.Next() {
		d, err := scanDeletionRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, d)
	}
	return requests, rows.Err()
}
