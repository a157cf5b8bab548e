package repository

import (
	"context"

	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const rfqColumns = `id, buyer_org_id, supplier_org_id, status, items, created_at, updated_at`

func scanRFQ(row pgx.Row) (models.RFQ, error) {
	var i models.RFQ
	err := row.Scan(
		&i.ID,
		&i.BuyerOrgID,
		&i.SupplierOrgID,
		&i.Status,
		&i.Items,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertRFQ = `-- name: InsertRFQ :one
INSERT INTO rfqs (id, buyer_org_id, supplier_org_id, status, items)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at, updated_at
`

func (q *Queries) InsertRFQ(ctx context.Context, rfq *models.RFQ) error {
	return q.db.QueryRow(ctx, insertRFQ,
		rfq.ID,
		rfq.BuyerOrgID,
		rfq.SupplierOrgID,
		rfq.Status,
		rfq.Items,
	).Scan(&rfq.CreatedAt, &rfq.UpdatedAt)
}

const getRFQ = `-- name: GetRFQ :one
SELECT ` + rfqColumns + ` FROM rfqs WHERE id = $1
`

func (q *Queries) GetRFQ(ctx context.Context, id uuid.UUID) (models.RFQ, error) {
	return scanRFQ(q.db.QueryRow(ctx, getRFQ, id))
}

const getRFQForUpdate = `-- name: GetRFQForUpdate :one
SELECT ` + rfqColumns + ` FROM rfqs WHERE id = $1 FOR UPDATE
`

func (q *Queries) GetRFQForUpdate(ctx context.Context, id uuid.UUID) (models.RFQ, error) {
	return scanRFQ(q.db.QueryRow(ctx, getRFQForUpdate, id))
}

const updateRFQ = `-- name: UpdateRFQ :execrows
UPDATE rfqs
SET supplier_org_id = $2, status = $3, items = $4, updated_at = NOW()
WHERE id = $1
`

func (q *Queries) UpdateRFQ(ctx context.Context, arg UpdateRFQParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateRFQ, arg.ID, arg.SupplierOrgID, arg.Status, arg.Items)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// Suppliers never see drafts, only RFQs addressed to them.
const listRFQs = `-- name: ListRFQs :many
SELECT ` + rfqColumns + ` FROM rfqs
WHERE (
    ($2 = 'buyer' AND buyer_org_id = $1)
 OR ($2 = 'supplier' AND supplier_org_id = $1 AND status <> 'draft')
 OR ($2 = '' AND (buyer_org_id = $1 OR (supplier_org_id = $1 AND status <> 'draft')))
)
AND ($3 = '' OR status = $3)
ORDER BY created_at DESC, id
LIMIT $4 OFFSET $5
`

func (q *Queries) ListRFQs(ctx context.Context, arg ListParams) ([]models.RFQ, error) {
	rows, err := q.db.Query(ctx, listRFQs, arg.OrgID, arg.Role, arg.Status, pageLimit(arg.Limit), arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.RFQ{}
	for rows.Next() {
		i, err := scanRFQ(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
